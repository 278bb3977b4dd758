// internal/model/event.go
package model

// Event
// ------------------------------------------------------------
// 코덱이 배치에서 꺼낸 단일 텔레메트리 이벤트.
// 배치 내 위치 외에는 식별자가 없고, JSON 으로 직렬화된 직후 버려진다.
//
// 키는 항상 문자열이며 값은 JSON 으로 표현 가능한 타입
// (string, number, bool, nil, []any, map[string]any) 만 들어온다.
type Event map[string]any

// Batch
// ------------------------------------------------------------
// 요청 하나를 디코딩한 결과.
// Handler → Journal / Forwarder 로 그대로 전달된다.
type Batch struct {
	Records []string // flatten 된 compact JSON 레코드 (디코딩 순서 유지)
	JSON    string   // 응답 body 로 나갈 JSON 배열 (pretty 옵션 적용)

	Corrupt       bool   // 배치 중간에서 디코딩이 멈췄는지 여부
	CorruptReason string // 멈춘 이유 (Corrupt == true 일 때만)
	CorruptOffset int64  // 멈춘 위치 (압축 해제 후 byte offset)
	DroppedCount  int    // 객체가 아니라서 flatten 단계에서 버려진 레코드 수
	FieldErrors   int    // 건너뛴 extension 필드 수 (레코드 합계)
}
