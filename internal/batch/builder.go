// internal/batch/builder.go
package batch

import (
	"net/http"
	"time"

	"beacon-relay/internal/capture"
	"beacon-relay/internal/config"
	"beacon-relay/internal/model"
)

// ProtocolTag 는 이 통합을 식별하는 고정 프로토콜 태그.
// 모든 CanonicalRecord 에 동일하게 찍힌다.
const ProtocolTag = "beacon/1"

// referrer fallback 1순위로 쓰는 이벤트 속성 key.
const attrPageLocation = "page_location"

// Builder
// ------------------------------------------------------------
// 관측된 요청/중계 메시지를 CanonicalRecord 로 정규화하는
// 순수 변환기. 절대 실패하지 않는다 — 없는 선택 필드는 에러가 아니라
// zero value 로 남는다.
//
// tags 는 프로세스 전체가 공유하는 설정 태그 맵이며, 모든 레코드가
// 같은 맵을 참조한다 (레코드는 불변이므로 공유해도 안전).
type Builder struct {
	tags map[string]string
	now  func() int64 // epoch ms, 테스트에서 주입
}

func NewBuilder(cfg config.Config) *Builder {
	return &Builder{
		tags: cfg.CustomTags,
		now:  func() int64 { return time.Now().UnixMilli() },
	}
}

// FromRequest 는 /collect 로 직접 관측된 요청을 SYSTEM_EVENT 레코드로
// 만든다. referrer 는 best-effort fallback:
//
//	1) 이벤트 속성 page_location
//	2) Referer 헤더
//	3) 없음("")
//
// 이벤트 속성 bag 전체는 context 로 실린다.
func (b *Builder) FromRequest(req *capture.Request, attrs capture.Attributes) model.CanonicalRecord {
	referrer := attrs.Str(attrPageLocation)
	if referrer == "" {
		referrer = req.Referer
	}

	var ctx interface{}
	if len(attrs) > 0 {
		ctx = map[string]interface{}(attrs)
	}

	return model.CanonicalRecord{
		Provider:        model.ProviderSystemEvent,
		Endpoint:        req.URL,
		Method:          req.Method,
		Payload:         req.Payload,
		Protocol:        ProtocolTag,
		ReferrerURL:     referrer,
		Tags:            b.tags,
		TimestampMillis: b.now(),
		Context:         ctx,
	}
}

// FromRelay 는 중계된 {url, body} 메시지를 RELAYED_MESSAGE 레코드로
// 만든다. 중계 메시지는 언제나 POST 로 취급한다.
// url 유효성 검사는 호출자(파이프라인) 책임 — 여기서는 변환만 한다.
func (b *Builder) FromRelay(msg capture.RelayMessage) model.CanonicalRecord {
	return model.CanonicalRecord{
		Provider:        model.ProviderRelayedMessage,
		Endpoint:        msg.URL,
		Method:          http.MethodPost,
		Payload:         msg.Body,
		Protocol:        ProtocolTag,
		Tags:            b.tags,
		TimestampMillis: b.now(),
	}
}
