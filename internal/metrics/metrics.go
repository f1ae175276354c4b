package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 relay 서버 상태를 나타내는 카운터 모음이다.
// Prometheus 포맷이 아니라 운영자가 장애 원인을 추적할 때 보는
// 내부 카운터이며, /metrics 에서 name=value 라인으로 출력된다.
type Metrics struct {
	// ======================
	// HTTP 레벨 지표
	// ======================

	// HTTPRequestsTotal
	// - /collect, /relay 로 들어온 모든 HTTP 요청 수 (시도 기준).
	// - 메서드/성공/실패 여부와 관계없이 진입마다 1씩 증가한다.
	HTTPRequestsTotal int64

	// HTTPRequestsRejectedBodyTooLargeTotal
	// - 요청 Body 가 MaxBodySize 를 초과해서 거절된(413 반환) 요청 수.
	// - upstream 이 비정상적으로 큰 payload 를 보내는지 확인하는 용도.
	HTTPRequestsRejectedBodyTooLargeTotal int64

	// ======================
	// 파이프라인 지표
	// ======================

	// EventsCapturedTotal
	// - 빌더까지 도달한 수집 이벤트 수 (SYSTEM_EVENT + RELAYED_MESSAGE).
	// - 중복/샘플링 탈락 포함. 아래 카운터들과의 차이로 각 단계의
	//   드랍 규모를 파악한다.
	EventsCapturedTotal int64

	// EventsDuplicateTotal
	// - dedup token 이 seen-set 에 이미 있어서 버린 이벤트 수.
	// - 같은 논리 이벤트의 재전달(re-delivery)이 얼마나 자주 일어나는지의 지표.
	EventsDuplicateTotal int64

	// EventsSampledOutTotal
	// - 1-in-N 샘플링에서 탈락한 이벤트 수.
	// - SamplingRate=1 운영이면 항상 0 이어야 한다.
	EventsSampledOutTotal int64

	// EventsEnqueuedTotal
	// - 모든 필터를 통과해 persisted queue 에 실제 append 된 레코드 수.
	EventsEnqueuedTotal int64

	// RelayMessagesTotal
	// - /relay 로 수신한 중계 메시지 수 (드랍 포함).
	RelayMessagesTotal int64

	// RelayDroppedTotal
	// - url 누락 등 malformed 중계 메시지를 버린 횟수.
	// - 이 값이 증가하면 중계하는 쪽 컴포넌트의 계약 위반을 의심한다.
	RelayDroppedTotal int64

	// ======================
	// 배치 전송 지표
	// ======================

	// BatchesSentTotal
	// - collector 로 전송에 성공(2xx)한 배치 수.
	BatchesSentTotal int64

	// EventsSentTotal
	// - 전송 성공 배치에 포함된 레코드 수의 누적 합.
	// - 단위는 "이벤트 수"이며 "배치 수"가 아니다.
	//   예: 20개 레코드 배치 1개 전송 성공 → +20.
	EventsSentTotal int64

	// BatchSendFailuresTotal
	// - 전송 시도가 실패(transport 에러 또는 non-2xx)한 횟수.
	// - 비관적 reconciliation 이므로 실패한 배치는 큐에 그대로 남고,
	//   다음 invocation 의 stale 체크/append 트리거가 재시도한다.
	//   따라서 이 값이 증가해도 즉시 유실은 아니지만,
	//   지속 증가는 collector 장애 또는 endpoint 설정 오류 신호다.
	BatchSendFailuresTotal int64

	// StaleDrainsTotal
	// - stale 체크(나이 초과 큐 발견)가 drain 을 트리거한 횟수.
	// - 트래픽이 끊겨 size 트리거가 동작하지 못한 배치를
	//   다음 invocation 이 얼마나 자주 수습하는지의 지표.
	StaleDrainsTotal int64

	// ======================
	// Store 지표
	// ======================

	// StoreReadFallbacksTotal
	// - store 읽기 실패 또는 corrupt 값 → 기본값(빈 큐/0/빈 seen-set)으로
	//   대체한 횟수. key 부재(정상)는 세지 않는다.
	// - 0 이 아닌 값은 Redis 장애 또는 직렬화 포맷 불일치 신호.
	//   이때 큐가 비어 보이므로 레코드 유실이 실제로 발생할 수 있다
	//   (availability 우선 설계의 비용 — §store 참고).
	StoreReadFallbacksTotal int64

	// StoreWriteErrorsTotal
	// - store 쓰기 실패 횟수. 쓰기 실패는 호출자에게 전파하지 않고
	//   여기로만 집계된다 (invocation 은 항상 완료 응답을 해야 하므로).
	StoreWriteErrorsTotal int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)

	fmt.Fprintf(&sb, "http_requests_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_body_too_large_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedBodyTooLargeTotal))

	fmt.Fprintf(&sb, "events_captured_total=%d\n", atomic.LoadInt64(&m.EventsCapturedTotal))
	fmt.Fprintf(&sb, "events_duplicate_total=%d\n", atomic.LoadInt64(&m.EventsDuplicateTotal))
	fmt.Fprintf(&sb, "events_sampled_out_total=%d\n", atomic.LoadInt64(&m.EventsSampledOutTotal))
	fmt.Fprintf(&sb, "events_enqueued_total=%d\n", atomic.LoadInt64(&m.EventsEnqueuedTotal))
	fmt.Fprintf(&sb, "relay_messages_total=%d\n", atomic.LoadInt64(&m.RelayMessagesTotal))
	fmt.Fprintf(&sb, "relay_dropped_total=%d\n", atomic.LoadInt64(&m.RelayDroppedTotal))

	fmt.Fprintf(&sb, "batches_sent_total=%d\n", atomic.LoadInt64(&m.BatchesSentTotal))
	fmt.Fprintf(&sb, "events_sent_total=%d\n", atomic.LoadInt64(&m.EventsSentTotal))
	fmt.Fprintf(&sb, "batch_send_failures_total=%d\n", atomic.LoadInt64(&m.BatchSendFailuresTotal))
	fmt.Fprintf(&sb, "stale_drains_total=%d\n", atomic.LoadInt64(&m.StaleDrainsTotal))

	fmt.Fprintf(&sb, "store_read_fallbacks_total=%d\n", atomic.LoadInt64(&m.StoreReadFallbacksTotal))
	fmt.Fprintf(&sb, "store_write_errors_total=%d\n", atomic.LoadInt64(&m.StoreWriteErrorsTotal))

	return sb.String()
}
