// internal/model/record.go
package model

// Provider
// ------------------------------------------------------------
// CanonicalRecord 가 어떤 경로로 수집되었는지 나타내는 구분 값.
//   - SYSTEM_EVENT: /collect 로 직접 관측된 트래킹 이벤트
//   - RELAYED_MESSAGE: 다른 컴포넌트가 /relay 로 중계한 메시지
type Provider string

const (
	ProviderSystemEvent    Provider = "SYSTEM_EVENT"
	ProviderRelayedMessage Provider = "RELAYED_MESSAGE"
)

// CanonicalRecord
// ------------------------------------------------------------
// 수집된 단일 트래킹 이벤트의 정규화 형태.
// 파이프라인 전체(빌더 → 중복제거 → 샘플링 → 큐 → 전송)의 기본 단위이며,
// 생성 이후에는 절대 수정하지 않는다(불변). 큐에 append 된 순간부터
// 소유권은 큐로 넘어간다.
//
// Redis 에 msgpack 으로 영속되고, collector 전송 시에는 JSON 으로
// 직렬화되므로 두 태그를 모두 유지한다.
type CanonicalRecord struct {
	Provider        Provider          `json:"provider" msgpack:"provider"`
	Endpoint        string            `json:"endpoint" msgpack:"endpoint"`
	Method          string            `json:"method" msgpack:"method"`
	Payload         interface{}       `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Protocol        string            `json:"protocol" msgpack:"protocol"`
	ReferrerURL     string            `json:"referrer_url,omitempty" msgpack:"referrer_url,omitempty"`
	Tags            map[string]string `json:"tags,omitempty" msgpack:"tags,omitempty"`
	TimestampMillis int64             `json:"timestamp_millis" msgpack:"timestamp_millis"`
	Context         interface{}       `json:"context,omitempty" msgpack:"context,omitempty"`
}

// WirePayload
// ------------------------------------------------------------
// collector 로 전송되는 단일 배치의 wire 포맷.
// requests 는 큐 스냅샷 그대로(FIFO 순서 유지), common 은
// 배치 내 모든 레코드가 공유하는 메타데이터 블록이다.
type WirePayload struct {
	Requests []CanonicalRecord `json:"requests"`
	Common   Common            `json:"common"`
}

// Common
// ------------------------------------------------------------
// 배치 공통 블록. tp_id 는 customer id, context 는 이 프로세스의
// 배포 메타데이터(service/version/instance), tags 는 설정 태그와
// 파생 태그(container_version 포함)를 병합한 값.
// session_id 는 세션 추적이 켜진 경우에만 포함된다.
type Common struct {
	Context      map[string]string `json:"context"`
	TpID         string            `json:"tp_id"`
	SourceAlias  string            `json:"source_alias"`
	Environment  string            `json:"environment"`
	SDK          string            `json:"sdk"`
	SDKVersion   string            `json:"sdk_version"`
	SamplingRate int               `json:"sampling_rate"`
	Tags         map[string]string `json:"tags"`
	SessionID    string            `json:"session_id,omitempty"`
}
