package decode

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"
)

// Assemble 은 레코드들을 입력 순서 그대로 하나의 JSON 배열 문자열로 붙인다.
// 결과는 항상 개행으로 끝난다.
//
// pretty 가 true 면 2칸 들여쓰기로 다시 출력한다. 들여쓰기에 실패하면
// (레코드 중 하나가 올바른 JSON 이 아닌 경우) compact 결과를 그대로 쓴다.
func Assemble(records []string, pretty bool) string {
	var sb strings.Builder
	n := 3 // '[' ']' '\n'
	for _, r := range records {
		n += len(r) + 1
	}
	sb.Grow(n)

	sb.WriteByte('[')
	sb.WriteString(strings.Join(records, ","))
	sb.WriteByte(']')
	compact := sb.String()

	if !pretty {
		return compact + "\n"
	}

	if !json.Valid([]byte(compact)) {
		return compact + "\n"
	}
	var out bytes.Buffer
	if err := json.Indent(&out, []byte(compact), "", "  "); err != nil {
		return compact + "\n"
	}
	return strings.TrimRight(out.String(), " \t\r\n") + "\n"
}
