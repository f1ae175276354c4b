// internal/capture/capture.go
package capture

import (
	"context"
	"strconv"
	"sync"
)

// ------------------------------------------------------------
// Capture 계층
//
// 파이프라인이 소비하는 "관측된 요청"의 뷰를 정의한다.
// 빌더(batch.Builder)는 net/http 를 직접 알지 않고 이 뷰만 본다.
// HTTP 세부(header 추출, body 파싱, client IP)는 server 핸들러가
// 이 구조로 번역해 넘긴다.
// ------------------------------------------------------------

// Request 는 현재 처리 중인 수집 요청의 스냅샷이다.
type Request struct {
	Method  string      // GET / POST
	URL     string      // 관측된 path+query
	Referer string      // Referer 헤더 (없으면 "")
	Payload interface{} // 파싱된 body (없으면 nil)
}

// Attributes 는 이벤트에 딸려 온 속성 bag 이다.
// POST 면 JSON object body, GET 이면 query 파라미터에서 만들어진다.
type Attributes map[string]interface{}

// Str 은 속성 값을 best-effort 로 문자열화한다.
// JSON 숫자(float64)는 정수형이면 소수점 없이 표현한다
// (dedup token 으로 쓰이는 request_start_ms 가 숫자로 오는 경우 대응).
// 없는 key / 표현 불가 타입은 "" 를 반환하며, 이는 "속성 없음"과 동일하게
// 취급된다.
func (a Attributes) Str(key string) string {
	v, ok := a[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// ------------------------------------------------------------
// Relay 구독
//
// 다른 컴포넌트가 중계한 {url, body} 메시지를 고정 message-type 태그로
// 전달받는 명시적 구독 인터페이스.
// Dispatch 는 같은 invocation 안에서 handler 를 동기 호출한다 —
// handler 자체는 어디에도 영속되지 않고, 프로세스 기동 시 한 번 등록된다.
// ------------------------------------------------------------

// RelayMessageType 은 중계 메시지의 고정 message-type 태그.
const RelayMessageType = "beacon.relay"

// RelayMessage 는 중계된 단일 메시지. URL 이 비어 있으면 malformed 로
// 간주되어 구독자 측에서 버려진다.
type RelayMessage struct {
	URL  string      `json:"url"`
	Body interface{} `json:"body,omitempty"`
}

// Handler 는 중계 메시지 구독 콜백.
type Handler func(ctx context.Context, msgType string, msg RelayMessage)

// Bus 는 message-type → handler 목록의 단순 레지스트리다.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe 는 msgType 에 대한 handler 를 등록한다.
func (b *Bus) Subscribe(msgType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[msgType] = append(b.handlers[msgType], h)
}

// Dispatch 는 등록된 handler 들을 등록 순서대로 동기 호출한다.
// handler 가 없으면 아무 일도 하지 않는다.
func (b *Bus) Dispatch(ctx context.Context, msgType string, msg RelayMessage) {
	b.mu.RLock()
	hs := b.handlers[msgType]
	b.mu.RUnlock()

	for _, h := range hs {
		h(ctx, msgType, msg)
	}
}
