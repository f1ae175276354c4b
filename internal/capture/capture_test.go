package capture

import (
	"context"
	"testing"
)

func TestAttributesStr(t *testing.T) {
	a := Attributes{
		"s":     "hello",
		"ms":    float64(1724567890123), // JSON numbers arrive as float64
		"f":     float64(1.5),
		"n":     int64(42),
		"b":     true,
		"other": []interface{}{"x"},
	}

	cases := []struct {
		key  string
		want string
	}{
		{"s", "hello"},
		{"ms", "1724567890123"}, // integral floats must not grow a decimal point
		{"f", "1.5"},
		{"n", "42"},
		{"b", "true"},
		{"other", ""}, // unrepresentable → treated as absent
		{"missing", ""},
	}
	for _, c := range cases {
		if got := a.Str(c.key); got != c.want {
			t.Errorf("Str(%q) = %q, want %q", c.key, got, c.want)
		}
	}
}

func TestBusDispatchIsSynchronousAndOrdered(t *testing.T) {
	b := NewBus()

	var calls []string
	b.Subscribe(RelayMessageType, func(_ context.Context, msgType string, msg RelayMessage) {
		calls = append(calls, "first:"+msg.URL)
	})
	b.Subscribe(RelayMessageType, func(_ context.Context, _ string, msg RelayMessage) {
		calls = append(calls, "second:"+msg.URL)
	})

	b.Dispatch(context.Background(), RelayMessageType, RelayMessage{URL: "https://example.com/a"})

	// handlers ran inside Dispatch, in registration order
	if len(calls) != 2 || calls[0] != "first:https://example.com/a" || calls[1] != "second:https://example.com/a" {
		t.Fatalf("dispatch calls = %v", calls)
	}
}

func TestBusDispatchUnknownTypeIsNoop(t *testing.T) {
	b := NewBus()
	b.Subscribe(RelayMessageType, func(context.Context, string, RelayMessage) {
		t.Fatal("handler invoked for unrelated message type")
	})

	b.Dispatch(context.Background(), "some.other.type", RelayMessage{URL: "https://example.com"})
}
