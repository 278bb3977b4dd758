package decode

import (
	"errors"
	"testing"

	"collector-decode/internal/model"

	json "github.com/goccy/go-json"
)

func legacyEvents() []model.Event {
	return []model.Event{
		{"name": "first", "extNet": []any{map[string]any{"cost": "Unmetered"}}},
		{"name": "second", "extDevice": "broken", "extOs": []any{map[string]any{"ver": "14"}}},
	}
}

func TestPipelineRun(t *testing.T) {
	raw := mustEncode(t, legacyEvents())
	body, err := Compress(raw, "gzip")
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	p := NewPipeline(Options{Pretty: true})
	batch, err := p.Run(body, "gzip")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(batch.Records) != 2 {
		t.Fatalf("got %d records", len(batch.Records))
	}
	if batch.FieldErrors != 1 {
		t.Errorf("FieldErrors = %d, want 1", batch.FieldErrors)
	}
	if batch.Corrupt {
		t.Errorf("unexpected corrupt: %s", batch.CorruptReason)
	}

	var arr []map[string]any
	if err := json.Unmarshal([]byte(batch.JSON), &arr); err != nil {
		t.Fatalf("batch JSON invalid: %v", err)
	}
	if arr[0]["name"] != "first" || arr[1]["name"] != "second" {
		t.Fatalf("order not preserved: %v", arr)
	}
	if arr[0]["ext"].(map[string]any)["net"].(map[string]any)["cost"] != "Unmetered" {
		t.Errorf("record 1 ext = %v", arr[0]["ext"])
	}
	if arr[1]["ext"].(map[string]any)["os"].(map[string]any)["ver"] != "14" {
		t.Errorf("record 2 ext = %v", arr[1]["ext"])
	}
}

func TestPipelineCorruptTail(t *testing.T) {
	raw := mustEncode(t, sampleEvents(3))
	raw = raw[:len(raw)-1]

	batch, err := NewPipeline(Options{}).Run(raw, "")
	if err != nil {
		t.Fatalf("lenient Run: %v", err)
	}
	if len(batch.Records) != 2 || !batch.Corrupt {
		t.Fatalf("records=%d corrupt=%v", len(batch.Records), batch.Corrupt)
	}

	_, err = NewPipeline(Options{Strict: true}).Run(raw, "")
	if !errors.Is(err, ErrCorruptBatch) {
		t.Fatalf("strict Run: got %v, want ErrCorruptBatch", err)
	}
}

func TestPipelineUnsupportedEncoding(t *testing.T) {
	_, err := NewPipeline(Options{}).Run(mustEncode(t, sampleEvents(1)), "brotli")
	if !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("got %v, want ErrUnsupportedEncoding", err)
	}
}
