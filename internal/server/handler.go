package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync/atomic"

	"beacon-relay/internal/batch"
	"beacon-relay/internal/capture"
	"beacon-relay/internal/config"
	"beacon-relay/internal/metrics"
	"beacon-relay/internal/pool"
	"beacon-relay/internal/session"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	pipeline *batch.Pipeline
	bus      *capture.Bus
}

func NewHandler(cfg config.Config, m *metrics.Metrics, p *batch.Pipeline, bus *capture.Bus) *Handler {
	return &Handler{
		cfg:      cfg,
		metrics:  m,
		pipeline: p,
		bus:      bus,
	}
}

// HandleCollect
//
// 트래킹 이벤트 수집 엔드포인트.
// - GET: Query String 기반 속성 bag
// - POST: JSON Body 기반 속성 bag
//
// 한 요청 = 한 invocation. 흐름은 전부 동기다:
//
//	stale 체크 → 캡처 → (dedup → sampling → append → 필요 시 전송)
//
// append 가 전송을 트리거하면 collector POST 가 끝날 때까지 이 요청이
// 블로킹된다 — 의도된 동작이다. invocation 밖에서는 아무 진행도
// 일어나지 않는다 (백그라운드 타이머 없음).
func (h *Handler) HandleCollect(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.metrics.HTTPRequestsTotal, 1)

	// 허용 메서드 검사
	if r.Method != http.MethodGet &&
		r.Method != http.MethodPost &&
		r.Method != http.MethodOptions {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// OPTIONS 요청은 CORS preflight 로 가정 → 즉시 204
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// 클라이언트가 끊어도 invocation 은 완주한다 (전송 중 취소 없음)
	// → 요청 컨텍스트 대신 Background 를 쓴다.
	ctx := context.Background()

	sessionID := ""
	if h.cfg.UseSessions {
		sessionID = session.CurrentSessionID(w, r)
	}

	// stale 체크는 이벤트 처리 전, 매 invocation 마다 한 번.
	// 이 요청이 수집 대상이 아니어도(캡처 꺼짐 등) 실행된다.
	h.pipeline.CheckStale(ctx, sessionID)

	// --------------------------------------------------------------------
	// 요청 Body 최대 크기 강제 제한
	// --------------------------------------------------------------------
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	defer r.Body.Close()

	var (
		payload interface{}
		attrs   capture.Attributes
	)

	if r.Method == http.MethodGet {
		// ----------------------------------------------------------------
		// GET 방식 처리: QueryString → 속성 bag
		// ----------------------------------------------------------------
		if len(r.URL.RawQuery) > int(h.cfg.MaxBodySize) {
			atomic.AddInt64(&h.metrics.HTTPRequestsRejectedBodyTooLargeTotal, 1)
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}

		attrs = make(capture.Attributes)
		for k, vs := range r.URL.Query() {
			if len(vs) > 0 {
				attrs[k] = vs[0]
			}
		}

	} else {
		// ----------------------------------------------------------------
		// POST 방식 처리: BodyPool 기반 메모리 재사용
		// ----------------------------------------------------------------
		buf := pool.BodyPool.Get().(*bytes.Buffer)
		buf.Reset()
		defer pool.PutBody(buf, h.cfg.MaxBodySize*2)

		if _, err := io.Copy(buf, r.Body); err != nil {
			atomic.AddInt64(&h.metrics.HTTPRequestsRejectedBodyTooLargeTotal, 1)
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}

		// body 가 JSON object 면 그게 곧 이벤트 속성 bag 이다.
		// JSON 이 아니거나 object 가 아니면 payload 로만 남긴다 —
		// malformed 도 수집은 된다 (빌더는 실패하지 않는다).
		if buf.Len() > 0 {
			var v interface{}
			if err := json.Unmarshal(buf.Bytes(), &v); err == nil {
				payload = v
				if obj, ok := v.(map[string]interface{}); ok {
					attrs = capture.Attributes(obj)
				}
			} else {
				payload = buf.String()
				log.Debug().Err(err).Msg("collect body is not json, kept as opaque payload")
			}
		}
	}

	// 실 사용자 IP 를 파생 속성으로 보강
	if attrs == nil {
		attrs = make(capture.Attributes)
	}
	if ip := clientIP(r); ip != "" {
		attrs["client_ip"] = ip
	}

	req := &capture.Request{
		Method:  r.Method,
		URL:     r.URL.RequestURI(),
		Referer: r.Referer(),
		Payload: payload,
	}

	h.pipeline.ProcessRequest(ctx, req, attrs, sessionID)

	// 내부 결과(중복/샘플링 탈락/전송 실패)와 무관하게 host 에는
	// 항상 완료를 응답한다.
	w.WriteHeader(http.StatusOK)
}

// HandleRelay
//
// 다른 컴포넌트가 중계하는 {url, body} 메시지 수신 엔드포인트.
// 수신한 메시지는 고정 message-type 태그로 Bus 에 동기 dispatch 되고,
// 구독해 둔 파이프라인 handler 가 같은 invocation 안에서 처리한다.
//
// malformed 입력(파싱 불가, url 누락)은 진단 로그와 함께 버리되,
// 응답은 항상 204 — host 는 완료 확인만 기대한다.
func (h *Handler) HandleRelay(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.metrics.HTTPRequestsTotal, 1)

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := context.Background()

	// relay invocation 도 invocation 이다 — stale 체크는 동일하게 수행.
	h.pipeline.CheckStale(ctx, "")

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	defer r.Body.Close()

	var msg capture.RelayMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		atomic.AddInt64(&h.metrics.RelayMessagesTotal, 1)
		atomic.AddInt64(&h.metrics.RelayDroppedTotal, 1)
		log.Info().Err(err).Msg("relayed message unparsable, dropped")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.bus.Dispatch(ctx, capture.RelayMessageType, msg)

	w.WriteHeader(http.StatusNoContent)
}

// HandleMetrics
//
// relay 서버 상태를 나타내는 카운터 값들을 출력한다.
// Prometheus pull 방식으로도 쉽게 전환 가능.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}
