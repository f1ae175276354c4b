// internal/batch/pipeline.go
package batch

import (
	"context"
	"sync/atomic"

	"beacon-relay/internal/capture"
	"beacon-relay/internal/config"
	"beacon-relay/internal/metrics"

	"github.com/rs/zerolog/log"
)

// dedup token 으로 쓰는 이벤트 속성 key.
// 같은 논리 이벤트의 재전달에서는 값이 같고, 서로 다른 이벤트 간에는
// 다르다고 기대되는 upstream request-start timestamp.
const attrRequestStartMs = "request_start_ms"

// Pipeline
// ------------------------------------------------------------
// invocation 당 수집 흐름의 오케스트레이터:
//
//	관측 이벤트 → Builder → Deduplicator → Sampler → Manager.Append
//
// 단계 순서는 계약이다. dedup 이 sampling 보다 먼저라서 중복 이벤트가
// 샘플링 추첨을 소모하지 않고, 둘 다 enqueue 보다 먼저라서 탈락
// 레코드가 큐 용량을 차지하지 않는다.
type Pipeline struct {
	cfg     config.Config
	metrics *metrics.Metrics
	builder *Builder
	dedup   *Deduplicator
	sampler *Sampler
	manager *Manager
}

func NewPipeline(cfg config.Config, m *metrics.Metrics, builder *Builder, dedup *Deduplicator, sampler *Sampler, manager *Manager) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		metrics: m,
		builder: builder,
		dedup:   dedup,
		sampler: sampler,
		manager: manager,
	}
}

// CheckStale 은 Manager.CheckStale 의 위임 — 핸들러가 이벤트 처리 전에
// 매 invocation 마다 호출한다.
func (p *Pipeline) CheckStale(ctx context.Context, sessionID string) {
	p.manager.CheckStale(ctx, sessionID)
}

// ProcessRequest 는 /collect 로 직접 관측된 요청 하나를 처리한다.
// CaptureOwnEvents=false 면 이 경로 전체가 꺼진다 (relay 는 무관).
func (p *Pipeline) ProcessRequest(ctx context.Context, req *capture.Request, attrs capture.Attributes, sessionID string) {
	if !p.cfg.CaptureOwnEvents {
		log.Debug().Msg("own-event capture disabled, skipping")
		return
	}

	atomic.AddInt64(&p.metrics.EventsCapturedTotal, 1)

	// dedup 먼저 — sampling 추첨 소모 전에 중복을 걸러낸다.
	token := attrs.Str(attrRequestStartMs)
	if p.dedup.IsDuplicate(ctx, token) {
		atomic.AddInt64(&p.metrics.EventsDuplicateTotal, 1)
		log.Info().Str("token", token).Msg("duplicate event dropped")
		return
	}

	if !p.sampler.Admit(p.cfg.SamplingRate) {
		atomic.AddInt64(&p.metrics.EventsSampledOutTotal, 1)
		log.Debug().Msg("event sampled out")
		return
	}

	rec := p.builder.FromRequest(req, attrs)
	p.manager.Append(ctx, rec, sessionID)
}

// HandleRelay 는 capture.Bus 구독 콜백 (capture.Handler 시그니처).
// 중계 메시지는 속성 bag 이 없어 dedup token 이 없고, 따라서 언제나
// 비중복으로 취급된다. sampling 은 동일하게 적용된다.
//
// malformed(빈 url) 메시지는 진단과 함께 버린다 — 재시도도, 에러
// 전파도 없다. invocation 은 그래도 host 에 완료 응답을 한다.
func (p *Pipeline) HandleRelay(ctx context.Context, msgType string, msg capture.RelayMessage) {
	atomic.AddInt64(&p.metrics.RelayMessagesTotal, 1)

	if msg.URL == "" {
		atomic.AddInt64(&p.metrics.RelayDroppedTotal, 1)
		log.Info().Str("msg_type", msgType).Msg("relayed message missing url, dropped")
		return
	}

	atomic.AddInt64(&p.metrics.EventsCapturedTotal, 1)

	if !p.sampler.Admit(p.cfg.SamplingRate) {
		atomic.AddInt64(&p.metrics.EventsSampledOutTotal, 1)
		log.Debug().Msg("relayed message sampled out")
		return
	}

	rec := p.builder.FromRelay(msg)
	p.manager.Append(ctx, rec, "")
}
