package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"collector-decode/internal/model"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"
)

// ------------------------------------------------------------
// Event codec
//
// 배치 wire 포맷은 CBOR sequence (RFC 8742) 이다.
// 길이 prefix 없이 CBOR map 이 연속으로 붙어 있고,
// map 하나가 이벤트 하나다.
//
// 입력이 끝났는지(clean end)와 중간 레코드가 잘렸는지(corrupt)를
// Result.Kind 로 구분한다.
// ------------------------------------------------------------

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("decode: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// 이벤트 키는 항상 text string. any 로 디코딩할 때
		// map[interface{}]interface{} 대신 JSON 으로 바로 쓸 수 있는 타입을 고른다.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("decode: CBOR decoder initialization failed: " + err.Error())
	}
}

// Kind 는 Decoder.Next 결과의 종류.
type Kind int

const (
	KindRecord  Kind = iota // 이벤트 하나를 읽음
	KindEnd                 // 입력을 정상적으로 다 읽음
	KindCorrupt             // 잘리거나 깨진 레코드에서 멈춤
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindEnd:
		return "end"
	case KindCorrupt:
		return "corrupt"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Result 는 Next 한 번의 결과.
type Result struct {
	Kind   Kind
	Event  model.Event // KindRecord
	Reason string      // KindCorrupt
	Offset int64       // 이 결과가 시작된 byte 위치
}

// Decoder 는 한 배치에서 이벤트를 하나씩 꺼낸다.
// 되감기 불가. KindEnd / KindCorrupt 이후에는 같은 결과만 반복한다.
type Decoder struct {
	dec  *cbor.Decoder
	last *Result
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{dec: decMode.NewDecoder(bytes.NewReader(data))}
}

// Next 는 다음 이벤트를 읽는다.
func (d *Decoder) Next() Result {
	if d.last != nil {
		return *d.last
	}

	start := int64(d.dec.NumBytesRead())

	var v any
	err := d.dec.Decode(&v)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		return d.stop(Result{Kind: KindEnd, Offset: start})
	case errors.Is(err, io.ErrUnexpectedEOF):
		return d.stop(Result{Kind: KindCorrupt, Reason: "truncated record", Offset: start})
	default:
		return d.stop(Result{Kind: KindCorrupt, Reason: err.Error(), Offset: start})
	}

	ev, ok := v.(map[string]any)
	if !ok {
		return d.stop(Result{
			Kind:   KindCorrupt,
			Reason: fmt.Sprintf("record is %T, want map", v),
			Offset: start,
		})
	}
	return Result{Kind: KindRecord, Event: model.Event(ev), Offset: start}
}

func (d *Decoder) stop(r Result) Result {
	d.last = &r
	return r
}

// DecodeStats 는 DecodeAll 이 멈춘 사유.
type DecodeStats struct {
	Records int
	Corrupt bool
	Reason  string
	Offset  int64
}

// DecodeAll 은 첫 번째 non-record 결과가 나올 때까지 이벤트를 읽고,
// 각 이벤트를 읽은 즉시 compact JSON 으로 직렬화한다.
//
// 깨진 레코드는 에러로 돌려주지 않는다. 그 앞까지 읽은 레코드만
// 반환하고 stats 에 Corrupt 를 표시한다.
func DecodeAll(data []byte) ([]string, DecodeStats) {
	var (
		out   []string
		stats DecodeStats
	)

	d := NewDecoder(data)
	for {
		res := d.Next()
		if res.Kind != KindRecord {
			if res.Kind == KindCorrupt {
				stats.Corrupt = true
				stats.Reason = res.Reason
				stats.Offset = res.Offset
			}
			break
		}

		b, err := json.Marshal(res.Event)
		if err != nil {
			// NaN 등 JSON 으로 표현할 수 없는 값 → 깨진 레코드와 동일하게 취급
			stats.Corrupt = true
			stats.Reason = "json encode: " + err.Error()
			stats.Offset = res.Offset
			break
		}
		out = append(out, string(b))
	}

	stats.Records = len(out)
	return out, stats
}

// Encode 는 events 를 CBOR sequence 로 직렬화한다.
// json.Number 값은 정수면 int64, 아니면 float64 로 바꿔서 넣는다.
func Encode(events []model.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := encMode.NewEncoder(&buf)
	for i, ev := range events {
		if err := enc.Encode(normalize(map[string]any(ev))); err != nil {
			return nil, fmt.Errorf("encode event %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case model.Event:
		return normalize(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}
