package decode

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// ErrNotObject 는 레코드 최상위가 JSON object 가 아닌 경우.
var ErrNotObject = errors.New("record is not a JSON object")

// ExtensionMap
// ------------------------------------------------------------
// legacy 필드명 → ext 아래 short key.
// 예전 SDK 는 extNet: [{...}] 처럼 최상위 배열 필드로 보냈고,
// 지금은 ext.net 으로 모은다. 항목 추가는 이 표만 고치면 된다.
var ExtensionMap = map[string]string{
	"extApp":      "app",
	"extCloud":    "cloud",
	"extDevice":   "device",
	"extLoc":      "loc",
	"extMetadata": "metadata",
	"extNet":      "net",
	"extOs":       "os",
	"extProtocol": "protocol",
	"extSdk":      "sdk",
	"extUser":     "user",
	"extUtc":      "utc",
}

// extensionOrder 는 ExtensionMap 키를 정렬한 것. 처리/로그 순서를 고정한다.
var extensionOrder = func() []string {
	keys := make([]string, 0, len(ExtensionMap))
	for k := range ExtensionMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}()

// FieldError 는 extension 필드 하나를 옮기지 못한 사유.
// 레코드 전체는 계속 처리된다.
type FieldError struct {
	Field  string
	Reason string
	Value  any
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Flatten 은 레코드의 legacy extension 필드를 ext 아래로 모은 compact JSON 을 돌려준다.
// 필드 단위 실패는 로그만 남기고 건너뛴다.
func Flatten(record string) (string, error) {
	out, _, err := FlattenFields(record)
	return out, err
}

// FlattenFields 는 Flatten 과 같고, 건너뛴 필드 목록을 함께 돌려준다.
// 에러는 레코드 자체가 JSON object 가 아닐 때만 난다.
func FlattenFields(record string) (string, []FieldError, error) {
	var tree map[string]any

	dec := json.NewDecoder(strings.NewReader(record))
	dec.UseNumber()
	if err := dec.Decode(&tree); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if tree == nil {
		return "", nil, ErrNotObject
	}

	var fieldErrs []FieldError

	ext, ok := tree["ext"].(map[string]any)
	if !ok {
		if v, exists := tree["ext"]; exists {
			fe := FieldError{Field: "ext", Reason: fmt.Sprintf("ext is %s, replaced with object", jsonKind(v)), Value: v}
			fieldErrs = append(fieldErrs, fe)
			logFieldError(fe)
		}
		ext = map[string]any{}
		tree["ext"] = ext
	}

	for _, legacy := range extensionOrder {
		v, exists := tree[legacy]
		if !exists {
			continue
		}
		if err := moveExtension(ext, ExtensionMap[legacy], v); err != nil {
			fe := FieldError{Field: legacy, Reason: err.Error(), Value: v}
			fieldErrs = append(fieldErrs, fe)
			logFieldError(fe)
		}
		// 옮기기 성공 여부와 상관없이 legacy 필드는 제거
		delete(tree, legacy)
	}

	b, err := json.MarshalNoEscape(tree)
	if err != nil {
		return "", fieldErrs, fmt.Errorf("marshal flattened record: %w", err)
	}
	return string(b), fieldErrs, nil
}

// moveExtension 은 legacy 값(배열)의 첫 번째 object 를 ext[short] 로 복사한다.
// ext[short] 가 이미 있으면 덮어쓰지 않는다.
func moveExtension(ext map[string]any, short string, v any) error {
	arr, ok := v.([]any)
	if !ok {
		return fmt.Errorf("expected array, got %s", jsonKind(v))
	}
	if len(arr) == 0 {
		return nil
	}
	first, ok := arr[0].(map[string]any)
	if !ok {
		return fmt.Errorf("expected object element, got %s", jsonKind(arr[0]))
	}
	if _, exists := ext[short]; exists {
		return nil
	}
	ext[short] = deepCopy(first)
	return nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	}
	return v
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, float64:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func logFieldError(fe FieldError) {
	raw, err := json.MarshalNoEscape(fe.Value)
	if err != nil || len(raw) == 0 {
		raw = []byte("null")
	}
	log.Warn().
		Str("field", fe.Field).
		Str("reason", fe.Reason).
		RawJSON("value", raw).
		Msg("extension flatten skipped")
}
