package worker

import (
	"context"
	"errors"
	"testing"

	"collector-decode/internal/config"
	"collector-decode/internal/metrics"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestForward(t *testing.T) {
	w := &fakeWriter{}
	f := NewForwarderWithWriter(w, metrics.New())

	if err := f.Forward(context.Background(), "req-1", "client-a", []string{`{"a":1}`, `{"b":2}`}); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("got %d messages", len(w.msgs))
	}
	for _, msg := range w.msgs {
		if string(msg.Key) != "req-1" {
			t.Errorf("key = %q", msg.Key)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "client-a" {
			t.Errorf("headers = %v", msg.Headers)
		}
	}
	if string(w.msgs[1].Value) != `{"b":2}` {
		t.Errorf("value = %q", w.msgs[1].Value)
	}

	if err := f.Close(); err != nil || !w.closed {
		t.Fatalf("Close: %v closed=%v", err, w.closed)
	}
}

func TestForwardError(t *testing.T) {
	m := metrics.New()
	f := NewForwarderWithWriter(&fakeWriter{err: errors.New("broker down")}, m)

	if err := f.Forward(context.Background(), "r", "c", []string{`{}`}); err == nil {
		t.Fatal("expected error")
	}
	if m.ForwardErrorsTotal != 1 {
		t.Fatalf("ForwardErrorsTotal = %d", m.ForwardErrorsTotal)
	}
}

func TestForwarderDisabled(t *testing.T) {
	if f := NewForwarder(config.Defaults(), metrics.New()); f != nil {
		t.Fatal("forwarder enabled without brokers")
	}

	var f *Forwarder
	if err := f.Forward(context.Background(), "r", "c", []string{`{}`}); err != nil {
		t.Fatalf("nil forwarder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}
