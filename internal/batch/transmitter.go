// internal/batch/transmitter.go
package batch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"beacon-relay/internal/config"
	"beacon-relay/internal/model"
	"beacon-relay/internal/pool"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

// 전송 payload 의 common 블록에 찍히는 고정 식별자들.
const (
	SourceAlias = "beacon-relay"
	SDKName     = "beacon-relay-go"

	// collector 가 배치 경로 트래픽을 구분하는 고정 query marker.
	queryMarker = "?src=batch"

	// 파생 태그 key: 이 프로세스(컨테이너) 버전.
	tagContainerVersion = "container_version"
)

// Transmitter
// ------------------------------------------------------------
// 큐 스냅샷 하나를 wire payload 로 만들어 collector 에 단일 POST 로
// 보낸다. Manager 의 reconciliation 은 "항상 outcome 을 돌려받는다"에
// 의존하므로, 이 경계 밖으로는 어떤 에러도 새어 나가지 않는다 —
// 모든 실패는 false 로 수렴한다.
//
// 재시도는 없다 (fire-and-forget). 실패한 배치의 재시도 상태는
// persisted queue 그 자체이며, 다음 invocation 이 이어받는다.
type Transmitter struct {
	cfg    config.Config
	client *http.Client

	// 프로세스 시작 시 한 번 계산되는 불변 값들.
	url    string            // endpoint + customer id + query marker
	tags   map[string]string // 설정 태그 + 파생 태그 병합
	deploy map[string]string // 배포 메타데이터 (common.context)
}

func NewTransmitter(cfg config.Config) *Transmitter {
	return &Transmitter{
		cfg: cfg,

		// timeout 은 transport 레벨에서 한 번만 건다. 전송이 시작되면
		// 외부에서 끊을 방법은 없고, 이 timeout 까지 invocation 이
		// 동기적으로 기다린다.
		client: &http.Client{Timeout: cfg.SendTimeout},

		url:    joinEndpoint(cfg.EndpointURL, cfg.CustomerID) + queryMarker,
		tags:   mergeTags(cfg),
		deploy: deploymentContext(cfg),
	}
}

// Send 는 스냅샷 하나를 단일 POST 로 전송한다.
// 반환값: HTTP 응답이 도착했고 status 가 2xx 인 경우에만 true.
// transport 에러/timeout/non-2xx 는 전부 false.
func (t *Transmitter) Send(ctx context.Context, snapshot []model.CanonicalRecord, sessionID string) bool {
	payload := model.WirePayload{
		Requests: snapshot,
		Common: model.Common{
			Context:      t.deploy,
			TpID:         t.cfg.CustomerID,
			SourceAlias:  SourceAlias,
			Environment:  t.cfg.Environment,
			SDK:          SDKName,
			SDKVersion:   config.Version,
			SamplingRate: t.cfg.SamplingRate,
			Tags:         t.tags,
		},
	}
	if t.cfg.UseSessions && sessionID != "" {
		payload.Common.SessionID = sessionID
	}

	body, err := t.encode(payload)
	if err != nil {
		// goccy 인코딩 실패는 레코드에 직렬화 불가능한 값이 들어온
		// 경우뿐이며, 이 배치는 재시도해도 똑같이 실패한다.
		// 그래도 정책은 동일하게 failure outcome 으로 처리한다.
		log.Error().Err(err).Msg("batch payload encode failed")
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("url", t.url).Msg("batch request build failed")
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.SendGzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("batch send transport error")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) // keep-alive 재사용 위해 drain

	log.Debug().Int("status", resp.StatusCode).Int("batch_size", len(snapshot)).Msg("collector responded")

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// encode 는 payload 를 JSON(설정에 따라 +gzip) 으로 직렬화한다.
// pool 버퍼는 재사용되므로 결과는 항상 caller 소유의 새 slice 로
// 복사해 돌려준다.
func (t *Transmitter) encode(payload model.WirePayload) ([]byte, error) {
	buf := pool.BufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if t.cfg.SendGzip {
		gz := pool.GzipPool.Get().(*gzip.Writer)
		gz.Reset(buf)

		if err := json.NewEncoder(gz).Encode(payload); err != nil {
			_ = gz.Close()
			pool.GzipPool.Put(gz)
			pool.PutBuffer(buf)
			return nil, err
		}
		if err := gz.Close(); err != nil {
			pool.GzipPool.Put(gz)
			pool.PutBuffer(buf)
			return nil, err
		}
		pool.GzipPool.Put(gz)
	} else {
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			pool.PutBuffer(buf)
			return nil, err
		}
	}

	raw := buf.Bytes()
	data := make([]byte, len(raw))
	copy(data, raw)

	pool.PutBuffer(buf)
	return data, nil
}

// joinEndpoint 는 endpoint 와 customer id 를 path separator 정확히
// 한 개로 잇는다. endpoint 의 trailing slash 유무에 영향받지 않는다.
func joinEndpoint(endpoint, customerID string) string {
	return strings.TrimRight(endpoint, "/") + "/" + customerID
}

// mergeTags 는 설정 태그 위에 파생 태그를 얹는다.
// 설정 태그가 파생 태그와 같은 key 를 가지면 파생 값이 이긴다.
func mergeTags(cfg config.Config) map[string]string {
	tags := make(map[string]string, len(cfg.CustomTags)+1)
	for k, v := range cfg.CustomTags {
		tags[k] = v
	}
	tags[tagContainerVersion] = config.Version
	return tags
}

// deploymentContext 는 이 프로세스의 배포 메타데이터 매핑.
// 배치 공통 블록의 context 로 실린다.
func deploymentContext(cfg config.Config) map[string]string {
	return map[string]string{
		"service":  cfg.ServiceName,
		"version":  config.Version,
		"instance": cfg.InstanceID,
	}
}
