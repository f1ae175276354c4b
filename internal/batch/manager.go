// internal/batch/manager.go
package batch

import (
	"context"
	"sync/atomic"
	"time"

	"beacon-relay/internal/config"
	"beacon-relay/internal/metrics"
	"beacon-relay/internal/model"
	"beacon-relay/internal/store"

	"github.com/rs/zerolog/log"
)

// Manager
// ------------------------------------------------------------
// 배치 엔진의 핵심 상태기계. persisted pair (Queue, QueueStartTime) 를
// 다음 상태로 움직인다:
//
//	EMPTY        (queue=[], start=0)
//	ACCUMULATING (queue≠[], start>0)
//
// EMPTY → 첫 append → ACCUMULATING → drain 이 전부 걷어가면 EMPTY,
// prefix 만 걷어가면 더 짧은 ACCUMULATING.
//
// 동시성 전제 (설계의 심장부):
//   - 같은 두 key 를 여러 replica 의 여러 요청이 동시에 읽고 쓴다.
//   - store 는 단일 key GET/SET 원자성만 제공한다. CAS 없음, 락 없음.
//   - 따라서 read-modify-write 끼리의 lost-update 는 원천 차단이
//     불가능하며, 이 설계는 그 위험을 숨기지 않고 감수한다.
//   - 유일한 완화 장치는 snapshot + prefix-drop reconciliation:
//     스냅샷 이후에 끼어든 append 는 살아남는다. 동시 drain 끼리는
//     보호되지 않는다 (중복 전송 가능 — 텔레메트리에서 수용).
//   - 프로세스 내 mutex 로 이 경쟁을 가리지 않는다. replica 가 2개만
//     되어도 mutex 는 아무것도 보장하지 못하면서 단일 replica 테스트만
//     통과시키는 가짜 안전장치가 된다.
type Manager struct {
	cfg     config.Config
	metrics *metrics.Metrics
	store   *store.Store
	tx      *Transmitter

	now func() int64 // epoch ms, 테스트에서 주입
}

func NewManager(cfg config.Config, m *metrics.Metrics, st *store.Store, tx *Transmitter) *Manager {
	return &Manager{
		cfg:     cfg,
		metrics: m,
		store:   st,
		tx:      tx,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// Append 는 레코드 하나를 persisted queue 에 적재하고 flush 여부를
// 판정한다. sessionID 는 이 append 가 전송을 트리거할 때 payload 에
// 실릴 현재 세션 식별자다 (세션 미사용 시 "").
//
// 순서가 중요하다:
//
//  1. 두 key 를 store 에서 fresh 하게 읽는다. 같은 invocation 의
//     이전 읽기를 재사용하지 않는다 — 그 사이 동시 invocation 이
//     썼을 수 있다.
//  2. 빈 큐였으면 start=now (큐 수명에서 정확히 한 번 설정됨).
//  3. append 결과를 flush 판정 **전에** 즉시 영속한다. 판정을 먼저
//     하면 전송이 끝날 때까지 동시 invocation 이 실제보다 짧은 큐를
//     보는 창이 길어진다.
//  4. dueBySize / dueByAge 판정. 둘 중 하나라도 참이면 현재 큐의
//     불변 스냅샷 복사본을 떠서 drain 한다.
func (m *Manager) Append(ctx context.Context, rec model.CanonicalRecord, sessionID string) {
	q := m.store.Queue(ctx)
	start := m.store.QueueStart(ctx)
	now := m.now()

	if len(q) == 0 {
		start = now
	}
	q = append(q, rec)

	m.store.SetQueue(ctx, q)
	m.store.SetQueueStart(ctx, start)

	atomic.AddInt64(&m.metrics.EventsEnqueuedTotal, 1)
	log.Debug().Int("queue_len", len(q)).Int64("queue_start", start).Msg("record appended")

	dueBySize := len(q) >= m.cfg.MaxBatchSize
	dueByAge := len(q) > 0 && now-start >= m.cfg.MaxBatchAgeMs

	if dueBySize || dueByAge {
		snap := make([]model.CanonicalRecord, len(q))
		copy(snap, q)
		m.drainAndSend(ctx, snap, sessionID)
	}
}

// CheckStale 은 매 invocation 시작 시, 이벤트 처리 여부와 무관하게
// 한 번 실행된다. 트래픽이 끊겨 size 트리거를 영영 못 받는 큐를
// 수습하는 유일한 경로다 — 백그라운드 타이머는 없고, 진행은 오직
// 다음 invocation 에서만 일어난다.
func (m *Manager) CheckStale(ctx context.Context, sessionID string) {
	q := m.store.Queue(ctx)
	if len(q) == 0 {
		return
	}

	start := m.store.QueueStart(ctx)
	age := m.now() - start
	if age < m.cfg.MaxBatchAgeMs {
		return
	}

	atomic.AddInt64(&m.metrics.StaleDrainsTotal, 1)
	log.Debug().Int("queue_len", len(q)).Int64("age_ms", age).Msg("stale queue found, draining")

	snap := make([]model.CanonicalRecord, len(q))
	copy(snap, q)
	m.drainAndSend(ctx, snap, sessionID)
}

// drainAndSend 는 스냅샷을 Transmitter 에 넘기고 결과에 따라
// persisted 상태를 reconcile 한다.
//
// reconciliation 은 비관적(pessimistic)이다: 2xx 확인 전에는 store 를
// 절대 건드리지 않는다. 전송 실패/timeout 시 큐는 그대로 남고,
// 재시도는 다음 invocation 의 stale 체크 또는 다음 append 의 트리거가
// 맡는다. 낙관적(선삭제) 방식의 "실패 시 배치 통째 유실"보다,
// reconciliation 경쟁에서의 중복 전송 가능성(at-least-once)을 택한 것.
//
// 성공 시 prefix-drop 규칙:
//   - 현재 큐를 다시 읽어 길이를 잰다.
//   - 스냅샷보다 길면, 초과분은 스냅샷 이후 동시 append 된 살아있는
//     레코드다 → 정확히 스냅샷 길이만큼의 prefix 만 자르고 나머지를
//     새 큐로 쓴다. start 는 그대로 둔다 (꼬리의 누적은 계속된다).
//   - 아니면 큐 전체 삭제 + start=0.
//
// 이 산술이 맞으려면 큐가 FIFO append-only 이고 소비가 항상 prefix
// 단위여야 한다. 어디선가 순서를 바꾸면 엉뚱한 레코드가 잘린다.
func (m *Manager) drainAndSend(ctx context.Context, snapshot []model.CanonicalRecord, sessionID string) {
	if !m.tx.Send(ctx, snapshot, sessionID) {
		atomic.AddInt64(&m.metrics.BatchSendFailuresTotal, 1)
		log.Info().Int("batch_size", len(snapshot)).Msg("batch send failed, queue left intact for retry")
		return
	}

	survivors := 0
	cur := m.store.Queue(ctx)
	if len(cur) > len(snapshot) {
		survivors = len(cur) - len(snapshot)
		m.store.SetQueue(ctx, cur[len(snapshot):])
		// start 는 건드리지 않는다: 남은 꼬리가 계속 나이를 먹어야
		// 다음 age 트리거가 제때 온다.
	} else {
		m.store.SetQueue(ctx, nil)
		m.store.SetQueueStart(ctx, 0)
	}

	atomic.AddInt64(&m.metrics.BatchesSentTotal, 1)
	atomic.AddInt64(&m.metrics.EventsSentTotal, int64(len(snapshot)))
	log.Info().Int("batch_size", len(snapshot)).Int("survivors", survivors).Msg("batch sent")
}
