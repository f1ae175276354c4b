package config

import (
	"testing"
	"time"
)

func TestParseTags(t *testing.T) {
	tags := parseTags("team=growth, region=apac ,=dropped,novalue,  ")

	if len(tags) != 3 {
		t.Fatalf("tags = %v, want 3 entries", tags)
	}
	if tags["team"] != "growth" || tags["region"] != "apac" {
		t.Errorf("tags = %v", tags)
	}
	// a bare key keeps an empty value; an empty key is dropped
	if v, ok := tags["novalue"]; !ok || v != "" {
		t.Errorf("bare key handling wrong: %v", tags)
	}
	if _, ok := tags[""]; ok {
		t.Error("empty key survived")
	}
}

func TestParseTagsEmpty(t *testing.T) {
	if tags := parseTags(""); len(tags) != 0 {
		t.Fatalf("tags from empty input = %v", tags)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CUSTOMER_ID", "cust-42")

	cfg := Load()

	if cfg.CustomerID != "cust-42" {
		t.Errorf("CustomerID = %q", cfg.CustomerID)
	}
	if cfg.MaxBatchSize != 1 {
		t.Errorf("MaxBatchSize default = %d, want 1", cfg.MaxBatchSize)
	}
	if cfg.MaxBatchAgeMs != 5000 {
		t.Errorf("MaxBatchAgeMs default = %d, want 5000 (5s)", cfg.MaxBatchAgeMs)
	}
	if cfg.SamplingRate != 1 {
		t.Errorf("SamplingRate default = %d, want 1", cfg.SamplingRate)
	}
	if cfg.Environment != "PRODUCTION" {
		t.Errorf("Environment default = %q", cfg.Environment)
	}
	if cfg.EndpointURL != DefaultCollectorURL {
		t.Errorf("EndpointURL default = %q", cfg.EndpointURL)
	}
	if cfg.SendTimeout != 5*time.Second {
		t.Errorf("SendTimeout default = %v", cfg.SendTimeout)
	}
	if !cfg.CaptureOwnEvents || cfg.UseSessions || cfg.VerboseLogging || cfg.SendGzip {
		t.Errorf("flag defaults wrong: %+v", cfg)
	}
	if cfg.InstanceID == "" {
		t.Error("InstanceID empty")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CUSTOMER_ID", "cust-42")
	t.Setenv("MAX_BATCH_SIZE", "20")
	t.Setenv("BATCH_AGE_SECONDS", "7")
	t.Setenv("SAMPLING_RATE", "10")
	t.Setenv("CUSTOM_TAGS", "team=growth")
	t.Setenv("USE_SESSIONS", "true")

	cfg := Load()

	if cfg.MaxBatchSize != 20 {
		t.Errorf("MaxBatchSize = %d", cfg.MaxBatchSize)
	}
	if cfg.MaxBatchAgeMs != 7000 {
		t.Errorf("MaxBatchAgeMs = %d, want 7000", cfg.MaxBatchAgeMs)
	}
	if cfg.SamplingRate != 10 {
		t.Errorf("SamplingRate = %d", cfg.SamplingRate)
	}
	if cfg.CustomTags["team"] != "growth" {
		t.Errorf("CustomTags = %v", cfg.CustomTags)
	}
	if !cfg.UseSessions {
		t.Error("UseSessions not set")
	}
}
