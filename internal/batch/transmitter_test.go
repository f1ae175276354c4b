package batch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"beacon-relay/internal/config"
	"beacon-relay/internal/model"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

func TestJoinEndpoint(t *testing.T) {
	cases := []struct {
		endpoint string
		want     string
	}{
		{"https://collect.example.net/v1/", "https://collect.example.net/v1/cust-1"},
		{"https://collect.example.net/v1", "https://collect.example.net/v1/cust-1"},
		{"https://collect.example.net/v1//", "https://collect.example.net/v1/cust-1"},
	}
	for _, c := range cases {
		if got := joinEndpoint(c.endpoint, "cust-1"); got != c.want {
			t.Errorf("joinEndpoint(%q) = %q, want %q", c.endpoint, got, c.want)
		}
	}
}

func TestSendPayloadShape(t *testing.T) {
	var (
		gotPath        string
		gotQuery       string
		gotContentType string
		gotPayload     model.WirePayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.EndpointURL = srv.URL
	cfg.SamplingRate = 10
	cfg.UseSessions = true
	cfg.CustomTags = map[string]string{"team": "growth"}

	tx := NewTransmitter(cfg)
	snapshot := []model.CanonicalRecord{testRecord("/a"), testRecord("/b")}

	if !tx.Send(context.Background(), snapshot, "sess-abc") {
		t.Fatal("send outcome = failure, want success")
	}

	if gotPath != "/cust-1" {
		t.Errorf("path = %q, want /cust-1", gotPath)
	}
	if gotQuery != "src=batch" {
		t.Errorf("query = %q, want src=batch", gotQuery)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}

	if len(gotPayload.Requests) != 2 ||
		gotPayload.Requests[0].Endpoint != "/a" ||
		gotPayload.Requests[1].Endpoint != "/b" {
		t.Errorf("requests wrong or reordered: %+v", gotPayload.Requests)
	}

	c := gotPayload.Common
	if c.TpID != "cust-1" {
		t.Errorf("tp_id = %q", c.TpID)
	}
	if c.SourceAlias != SourceAlias || c.SDK != SDKName || c.SDKVersion != config.Version {
		t.Errorf("identity block wrong: %+v", c)
	}
	if c.Environment != "TEST" {
		t.Errorf("environment = %q", c.Environment)
	}
	if c.SamplingRate != 10 {
		t.Errorf("sampling_rate = %d", c.SamplingRate)
	}
	if c.SessionID != "sess-abc" {
		t.Errorf("session_id = %q", c.SessionID)
	}
	if c.Tags["team"] != "growth" || c.Tags["container_version"] != config.Version {
		t.Errorf("tags = %v", c.Tags)
	}
	if c.Context["service"] != "beacon-relay" || c.Context["instance"] != "test-instance" {
		t.Errorf("context = %v", c.Context)
	}
}

func TestSendOmitsSessionWhenDisabled(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.EndpointURL = srv.URL
	cfg.UseSessions = false

	tx := NewTransmitter(cfg)
	// Even with a session id on hand, the flag controls the wire format.
	if !tx.Send(context.Background(), []model.CanonicalRecord{testRecord("/a")}, "sess-abc") {
		t.Fatal("send failed")
	}

	common, ok := raw["common"].(map[string]interface{})
	if !ok {
		t.Fatalf("payload missing common block: %v", raw)
	}
	if _, present := common["session_id"]; present {
		t.Error("session_id present despite sessions disabled")
	}
}

func TestSendGzipEncoding(t *testing.T) {
	var gotPayload model.WirePayload
	var gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Content-Encoding")
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			t.Errorf("gzip reader: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer gz.Close()
		if err := json.NewDecoder(gz).Decode(&gotPayload); err != nil {
			t.Errorf("decode gunzipped payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.EndpointURL = srv.URL
	cfg.SendGzip = true

	tx := NewTransmitter(cfg)
	if !tx.Send(context.Background(), []model.CanonicalRecord{testRecord("/a")}, "") {
		t.Fatal("send failed")
	}

	if gotEncoding != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", gotEncoding)
	}
	if len(gotPayload.Requests) != 1 || gotPayload.Requests[0].Endpoint != "/a" {
		t.Errorf("payload did not round-trip through gzip: %+v", gotPayload.Requests)
	}
}

func TestSendNon2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.EndpointURL = srv.URL

	tx := NewTransmitter(cfg)
	if tx.Send(context.Background(), []model.CanonicalRecord{testRecord("/a")}, "") {
		t.Error("non-2xx reported as success")
	}
}

func TestSendTransportErrorIsFailureNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused from here on

	cfg := testConfig()
	cfg.EndpointURL = srv.URL

	tx := NewTransmitter(cfg)
	if tx.Send(context.Background(), []model.CanonicalRecord{testRecord("/a")}, "") {
		t.Error("transport error reported as success")
	}
}
