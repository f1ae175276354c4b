// internal/batch/dedup.go
package batch

import (
	"context"

	"beacon-relay/internal/store"
)

// MaxHashSize 는 seen-set 이 기억하는 dedup token 의 최대 개수.
const MaxHashSize = 100

// Deduplicator
// ------------------------------------------------------------
// 같은 논리 이벤트의 재전달(accidental re-delivery)을 걸러내는
// bounded seen-set. token 은 이벤트 속성에서 온 correlation 문자열로,
// 같은 이벤트의 재전달에서는 같고 서로 다른 이벤트 간에는 다르다고
// 기대되는 값이다 (예: upstream request-start timestamp).
//
// seen-set 은 store 에 영속되며 매 검사마다 fresh 하게 읽는다 —
// 같은 invocation 의 앞선 읽기를 신뢰하지 않는 것은 큐와 동일한 이유
// (동시 invocation 이 그 사이 갱신했을 수 있음).
//
// eviction: 용량 초과 시 가장 오래된 절반(len/2, 내림)을 한 번에
// 잘라낸다. 매 insert 마다 한 개씩 미는 대신 amortize 하는 선택.
type Deduplicator struct {
	store *store.Store
}

func NewDeduplicator(st *store.Store) *Deduplicator {
	return &Deduplicator{store: st}
}

// IsDuplicate 는 token 이 이미 관측된 값인지 판정하고,
// 처음 보는 token 이면 기록하는 부수효과를 가진다.
//
// 빈 token 은 "dedup 불가"이지 에러가 아니다 — 항상 비중복으로
// 통과시키고 seen-set 은 건드리지 않는다.
func (d *Deduplicator) IsDuplicate(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	seen := d.store.SeenHashes(ctx)
	for _, t := range seen {
		if t == token {
			return true
		}
	}

	seen = append(seen, token)
	if len(seen) > MaxHashSize {
		seen = seen[len(seen)/2:]
	}
	d.store.SetSeenHashes(ctx, seen)

	return false
}
