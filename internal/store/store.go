// internal/store/store.go
package store

import (
	"context"
	"strconv"
	"sync/atomic"

	"beacon-relay/internal/metrics"
	"beacon-relay/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// ------------------------------------------------------------
// Persisted Store
//
// 배치 엔진의 모든 공유 상태(큐, 큐 시작시각, dedup seen-set)가
// 사는 곳. 여러 replica 의 여러 요청이 같은 key 를 동시에
// 읽고 쓰며, 보장은 "단일 key GET/SET 원자성" 뿐이다.
//
// 의도적으로 WATCH/MULTI/SETNX 를 쓰지 않는다. 엔진의 정합성은
// snapshot + prefix-drop reconciliation 프로토콜(batch.Manager)이
// 책임지며, store 레벨 락으로 경쟁을 가리면 그 프로토콜의
// 전제(락 없음)가 무너진다.
//
// 에러 정책: 읽기 실패/corrupt 값은 기본값(빈 큐, 0, 빈 seen-set)으로
// 대체하고, 쓰기 실패는 로그+카운터로만 남긴다. 어느 쪽도 호출자에게
// 에러를 전파하지 않는다 — invocation 은 store 장애 중에도 항상
// 완료 응답을 해야 하기 때문 (availability 우선, 유실 감수).
// ------------------------------------------------------------

// 고정 key 이름. 세 key 는 논리적으로 독립이며,
// 한 key 의 읽기가 다른 key 의 최신성을 보장하지 않는다.
const (
	KeyQueue      = "beacon:queue"
	KeyQueueStart = "beacon:queue_start"
	KeySeen       = "beacon:seen"
)

type Store struct {
	rdb     *redis.Client
	metrics *metrics.Metrics
}

func New(rdb *redis.Client, m *metrics.Metrics) *Store {
	return &Store{rdb: rdb, metrics: m}
}

// Queue 는 persisted queue 의 현재 복사본을 읽는다.
// key 부재는 정상(빈 큐)이고, 그 외 실패는 fallback 카운터와 함께
// 빈 큐로 대체된다. 반환 slice 는 호출자 소유의 복사본이다
// (msgpack decode 가 매번 새 값을 만들기 때문).
func (s *Store) Queue(ctx context.Context) []model.CanonicalRecord {
	raw, err := s.rdb.Get(ctx, KeyQueue).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		s.fallback(KeyQueue, err)
		return nil
	}

	var q []model.CanonicalRecord
	if err := msgpack.Unmarshal(raw, &q); err != nil {
		s.fallback(KeyQueue, err)
		return nil
	}
	return q
}

// SetQueue 는 큐 전체를 교체한다. 빈 큐는 key 삭제로 표현한다.
func (s *Store) SetQueue(ctx context.Context, q []model.CanonicalRecord) {
	if len(q) == 0 {
		if err := s.rdb.Del(ctx, KeyQueue).Err(); err != nil {
			s.writeError(KeyQueue, err)
		}
		return
	}

	raw, err := msgpack.Marshal(q)
	if err != nil {
		s.writeError(KeyQueue, err)
		return
	}
	if err := s.rdb.Set(ctx, KeyQueue, raw, 0).Err(); err != nil {
		s.writeError(KeyQueue, err)
	}
}

// QueueStart 는 큐 첫 레코드의 적재 시각(epoch ms)을 읽는다. 0 = 미설정.
// 사람이 redis-cli 로 바로 읽을 수 있도록 10진수 문자열로 저장한다.
func (s *Store) QueueStart(ctx context.Context) int64 {
	v, err := s.rdb.Get(ctx, KeyQueueStart).Result()
	if err == redis.Nil {
		return 0
	}
	if err != nil {
		s.fallback(KeyQueueStart, err)
		return 0
	}

	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		s.fallback(KeyQueueStart, err)
		return 0
	}
	return ms
}

// SetQueueStart 는 큐 시작시각을 기록한다. 0 은 key 삭제(큐 비움과 동시).
func (s *Store) SetQueueStart(ctx context.Context, ms int64) {
	if ms == 0 {
		if err := s.rdb.Del(ctx, KeyQueueStart).Err(); err != nil {
			s.writeError(KeyQueueStart, err)
		}
		return
	}
	if err := s.rdb.Set(ctx, KeyQueueStart, strconv.FormatInt(ms, 10), 0).Err(); err != nil {
		s.writeError(KeyQueueStart, err)
	}
}

// SeenHashes 는 dedup seen-set(관측 순서 유지 slice)을 읽는다.
func (s *Store) SeenHashes(ctx context.Context) []string {
	raw, err := s.rdb.Get(ctx, KeySeen).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		s.fallback(KeySeen, err)
		return nil
	}

	var seen []string
	if err := msgpack.Unmarshal(raw, &seen); err != nil {
		s.fallback(KeySeen, err)
		return nil
	}
	return seen
}

// SetSeenHashes 는 seen-set 전체를 교체한다.
func (s *Store) SetSeenHashes(ctx context.Context, seen []string) {
	if len(seen) == 0 {
		if err := s.rdb.Del(ctx, KeySeen).Err(); err != nil {
			s.writeError(KeySeen, err)
		}
		return
	}

	raw, err := msgpack.Marshal(seen)
	if err != nil {
		s.writeError(KeySeen, err)
		return
	}
	if err := s.rdb.Set(ctx, KeySeen, raw, 0).Err(); err != nil {
		s.writeError(KeySeen, err)
	}
}

func (s *Store) fallback(key string, err error) {
	atomic.AddInt64(&s.metrics.StoreReadFallbacksTotal, 1)
	log.Warn().Err(err).Str("key", key).Msg("store read failed, using default value")
}

func (s *Store) writeError(key string, err error) {
	atomic.AddInt64(&s.metrics.StoreWriteErrorsTotal, 1)
	log.Warn().Err(err).Str("key", key).Msg("store write failed")
}
