package decode

import (
	"strings"
	"testing"

	"collector-decode/internal/model"

	json "github.com/goccy/go-json"
)

func sampleEvents(n int) []model.Event {
	events := make([]model.Event, n)
	for i := range events {
		events[i] = model.Event{
			"name": "Ms.Web.PageView",
			"seq":  int64(i),
			"data": map[string]any{"uri": "https://example.test/", "ok": true},
		}
	}
	return events
}

func mustEncode(t *testing.T, events []model.Event) []byte {
	t.Helper()
	data, err := Encode(events)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestDecodeAllCountsRecords(t *testing.T) {
	for _, n := range []int{0, 1, 5, 50} {
		records, stats := DecodeAll(mustEncode(t, sampleEvents(n)))
		if len(records) != n {
			t.Errorf("n=%d: got %d records", n, len(records))
		}
		if stats.Corrupt {
			t.Errorf("n=%d: unexpected corrupt: %s", n, stats.Reason)
		}
		if stats.Records != n {
			t.Errorf("n=%d: stats.Records = %d", n, stats.Records)
		}
	}
}

func TestDecodeAllRecordJSON(t *testing.T) {
	records, _ := DecodeAll(mustEncode(t, sampleEvents(2)))
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(records[1]), &got); err != nil {
		t.Fatalf("record is not JSON: %v (%s)", err, records[1])
	}
	if got["name"] != "Ms.Web.PageView" {
		t.Errorf("name = %v", got["name"])
	}
	if got["seq"] != float64(1) {
		t.Errorf("seq = %v", got["seq"])
	}
	data, ok := got["data"].(map[string]any)
	if !ok || data["ok"] != true {
		t.Errorf("data = %v", got["data"])
	}
}

func TestDecodeAllTruncatedStopsEarly(t *testing.T) {
	events := sampleEvents(3)
	full := mustEncode(t, events)
	prefix := mustEncode(t, events[:2])

	records, stats := DecodeAll(full[:len(full)-3])
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if !stats.Corrupt {
		t.Fatal("expected Corrupt for truncated batch")
	}
	if stats.Offset != int64(len(prefix)) {
		t.Errorf("corrupt offset = %d, want %d", stats.Offset, len(prefix))
	}
}

func TestDecoderNonMapItem(t *testing.T) {
	data := append(mustEncode(t, sampleEvents(1)), 0x63, 'a', 'b', 'c') // text "abc"

	d := NewDecoder(data)
	if res := d.Next(); res.Kind != KindRecord {
		t.Fatalf("first: got %s, want record", res.Kind)
	}
	res := d.Next()
	if res.Kind != KindCorrupt {
		t.Fatalf("second: got %s, want corrupt", res.Kind)
	}
	if !strings.Contains(res.Reason, "want map") {
		t.Errorf("reason = %q", res.Reason)
	}
	if again := d.Next(); again.Kind != KindCorrupt {
		t.Errorf("decoder not sticky after corrupt: %s", again.Kind)
	}
}

func TestDecoderCleanEnd(t *testing.T) {
	d := NewDecoder(nil)
	if res := d.Next(); res.Kind != KindEnd {
		t.Fatalf("got %s, want end", res.Kind)
	}
}

func TestDecodeAllByteStringsAsBase64(t *testing.T) {
	records, stats := DecodeAll(mustEncode(t, []model.Event{{"blob": []byte{1, 2, 3}}}))
	if stats.Corrupt || len(records) != 1 {
		t.Fatalf("records=%d corrupt=%v", len(records), stats.Corrupt)
	}
	if records[0] != `{"blob":"AQID"}` {
		t.Errorf("got %s", records[0])
	}
}

func TestEncodeNormalizesJSONNumbers(t *testing.T) {
	ev := model.Event{"i": json.Number("42"), "f": json.Number("1.5")}
	records, _ := DecodeAll(mustEncode(t, []model.Event{ev}))
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0] != `{"f":1.5,"i":42}` {
		t.Errorf("got %s", records[0])
	}
}
