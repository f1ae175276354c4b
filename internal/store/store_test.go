package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"beacon-relay/internal/metrics"
	"beacon-relay/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, *metrics.Metrics) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	m := metrics.New()
	return New(rdb, m), mr, m
}

func TestQueueRoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if got := s.Queue(ctx); len(got) != 0 {
		t.Fatalf("fresh store queue length = %d, want 0", len(got))
	}

	q := []model.CanonicalRecord{
		{Provider: model.ProviderSystemEvent, Endpoint: "/a", Method: "GET", Protocol: "beacon/1", TimestampMillis: 1},
		{Provider: model.ProviderRelayedMessage, Endpoint: "https://example.com/b", Method: "POST", Protocol: "beacon/1", TimestampMillis: 2},
	}
	s.SetQueue(ctx, q)

	got := s.Queue(ctx)
	if len(got) != 2 {
		t.Fatalf("queue length = %d, want 2", len(got))
	}
	// FIFO order survives persistence
	if got[0].Endpoint != "/a" || got[1].Endpoint != "https://example.com/b" {
		t.Fatalf("order lost: %q, %q", got[0].Endpoint, got[1].Endpoint)
	}
	if got[1].Provider != model.ProviderRelayedMessage || got[1].TimestampMillis != 2 {
		t.Fatalf("record fields lost: %+v", got[1])
	}
}

func TestQueueReadsAreCopies(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	s.SetQueue(ctx, []model.CanonicalRecord{{Endpoint: "/a"}})

	first := s.Queue(ctx)
	first[0].Endpoint = "/mutated"

	second := s.Queue(ctx)
	if second[0].Endpoint != "/a" {
		t.Fatalf("mutation of a read leaked into the store: %q", second[0].Endpoint)
	}
}

func TestEmptyQueueDeletesKey(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()

	s.SetQueue(ctx, []model.CanonicalRecord{{Endpoint: "/a"}})
	s.SetQueue(ctx, nil)

	if mr.Exists(KeyQueue) {
		t.Fatal("empty queue left a key behind")
	}
}

func TestQueueStartRoundTrip(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()

	if got := s.QueueStart(ctx); got != 0 {
		t.Fatalf("fresh start time = %d, want 0", got)
	}

	s.SetQueueStart(ctx, 1_700_000_000_123)
	if got := s.QueueStart(ctx); got != 1_700_000_000_123 {
		t.Fatalf("start time = %d", got)
	}

	s.SetQueueStart(ctx, 0)
	if mr.Exists(KeyQueueStart) {
		t.Fatal("zero start time left a key behind")
	}
}

func TestSeenHashesRoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	s.SetSeenHashes(ctx, []string{"a", "b", "c"})

	got := s.SeenHashes(ctx)
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("seen-set round trip failed: %v", got)
	}
}

func TestCorruptValuesReadAsDefaults(t *testing.T) {
	s, mr, m := newTestStore(t)
	ctx := context.Background()

	mr.Set(KeyQueue, "not msgpack at all")
	mr.Set(KeyQueueStart, "not-a-number")
	mr.Set(KeySeen, "\x00garbage")

	if got := s.Queue(ctx); got != nil {
		t.Errorf("corrupt queue read as %v, want nil", got)
	}
	if got := s.QueueStart(ctx); got != 0 {
		t.Errorf("corrupt start read as %d, want 0", got)
	}
	if got := s.SeenHashes(ctx); got != nil {
		t.Errorf("corrupt seen-set read as %v, want nil", got)
	}

	if got := atomic.LoadInt64(&m.StoreReadFallbacksTotal); got != 3 {
		t.Errorf("StoreReadFallbacksTotal = %d, want 3", got)
	}
}

func TestUnavailableStoreReadsAsDefaults(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	m := metrics.New()
	s := New(rdb, m)
	ctx := context.Background()

	mock.ExpectGet(KeyQueue).SetErr(errors.New("connection refused"))
	mock.ExpectGet(KeyQueueStart).SetErr(errors.New("connection refused"))

	if got := s.Queue(ctx); got != nil {
		t.Errorf("unavailable store queue = %v, want nil", got)
	}
	if got := s.QueueStart(ctx); got != 0 {
		t.Errorf("unavailable store start = %d, want 0", got)
	}
	if got := atomic.LoadInt64(&m.StoreReadFallbacksTotal); got != 2 {
		t.Errorf("StoreReadFallbacksTotal = %d, want 2", got)
	}
}

func TestWriteFailureIsNonFatal(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	m := metrics.New()
	s := New(rdb, m)
	ctx := context.Background()

	mock.ExpectSet(KeyQueueStart, "123", 0).SetErr(errors.New("connection refused"))

	// must not panic, must not propagate
	s.SetQueueStart(ctx, 123)

	if got := atomic.LoadInt64(&m.StoreWriteErrorsTotal); got != 1 {
		t.Errorf("StoreWriteErrorsTotal = %d, want 1", got)
	}
}
