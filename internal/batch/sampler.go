// internal/batch/sampler.go
package batch

import (
	"math/rand"
)

// Sampler
// ------------------------------------------------------------
// 1-in-N 확률 샘플링. rate ≤ 1 이면 전량 통과, 그 외에는
// [1, rate] 균등 추첨에서 1 이 나온 레코드만 통과시킨다
// (기대 통과율 1/rate).
//
// 추첨은 레코드마다 새로 한다 — 결과를 캐싱하면 같은 invocation 의
// 연속 이벤트가 전부 같이 살거나 같이 죽어 분포가 깨진다.
type Sampler struct {
	intn func(n int) int // 테스트에서 deterministic source 주입
}

// NewSampler 는 전역 rand 소스를 쓴다 (goroutine-safe —
// 동시 요청이 각자 Admit 을 호출한다).
func NewSampler() *Sampler {
	return &Sampler{intn: rand.Intn}
}

// Admit 은 이번 레코드의 수집 여부를 추첨한다.
func (s *Sampler) Admit(rate int) bool {
	if rate <= 1 {
		return true
	}
	draw := s.intn(rate) + 1 // [1, rate]
	return draw == 1
}
