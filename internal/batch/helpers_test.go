package batch

import (
	"testing"

	"beacon-relay/internal/config"
	"beacon-relay/internal/metrics"
	"beacon-relay/internal/model"
	"beacon-relay/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// newTestStore spins up a miniredis-backed store for one test.
func newTestStore(t *testing.T) (*store.Store, *miniredis.Miniredis, *metrics.Metrics) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	m := metrics.New()
	return store.New(rdb, m), mr, m
}

func testConfig() config.Config {
	return config.Config{
		CustomerID:       "cust-1",
		Environment:      "TEST",
		MaxBatchSize:     100,
		MaxBatchAgeMs:    5000,
		SamplingRate:     1,
		CaptureOwnEvents: true,
		ServiceName:      "beacon-relay",
		InstanceID:       "test-instance",
		MaxBodySize:      64 * 1024,
	}
}

// newTestManager wires a Manager against the given collector URL with an
// injectable clock. Mutate *nowMs to move time.
func newTestManager(cfg config.Config, m *metrics.Metrics, st *store.Store, collectorURL string, nowMs *int64) *Manager {
	cfg.EndpointURL = collectorURL
	mgr := NewManager(cfg, m, st, NewTransmitter(cfg))
	mgr.now = func() int64 { return *nowMs }
	return mgr
}

func testRecord(endpoint string) model.CanonicalRecord {
	return model.CanonicalRecord{
		Provider:        model.ProviderSystemEvent,
		Endpoint:        endpoint,
		Method:          "POST",
		Protocol:        ProtocolTag,
		TimestampMillis: 1,
	}
}
