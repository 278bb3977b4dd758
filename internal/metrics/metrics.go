package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 서버 상태를 나타내는 카운터 모음이다.
// 모든 필드는 sync/atomic 으로만 접근한다.
type Metrics struct {
	// ======================
	// HTTP 레벨 지표
	// ======================

	// HTTPRequestsTotal
	// - /OneCollector/ 로 들어온 모든 요청 수 (메서드/결과 무관).
	HTTPRequestsTotal int64

	// HTTPRequestsOKTotal
	// - 200 으로 응답한 요청 수.
	HTTPRequestsOKTotal int64

	// HTTPRequestsBadTotal
	// - 400 으로 응답한 요청 수 (압축 해제, 디코딩, journal 실패 포함).
	HTTPRequestsBadTotal int64

	// HTTPRequestsRejectedBodyTooLargeTotal
	// - MaxBodySize 를 넘어서 413 으로 거절된 요청 수.
	HTTPRequestsRejectedBodyTooLargeTotal int64

	// ======================
	// 디코딩 지표
	// ======================

	// RecordsDecodedTotal
	// - flatten 까지 끝나고 응답에 포함된 레코드 수.
	RecordsDecodedTotal int64

	// CorruptBatchesTotal
	// - 중간에 깨진 레코드를 만나 디코딩이 일찍 멈춘 배치 수.
	// - strict 모드가 아니면 이 배치들도 200 으로 응답되므로
	//   클라이언트는 알 수 없다. 이 값으로만 감지 가능.
	CorruptBatchesTotal int64

	// FlattenFieldErrorsTotal
	// - extXxx 필드 형식이 잘못되어 건너뛴 횟수 (필드 단위).
	FlattenFieldErrorsTotal int64

	// ======================
	// Journal (data.json) 지표
	// ======================

	// JournalRecordsAppendedTotal
	// - data.json 에 추가된 레코드 수.
	JournalRecordsAppendedTotal int64

	// JournalErrorsTotal
	// - Resume/Add/Close 중 I/O 실패 횟수.
	JournalErrorsTotal int64

	// JournalLockTimeoutsTotal
	// - LockTimeout 안에 lock 을 얻지 못한 횟수.
	// - 계속 증가한다면 디스크가 느리거나 lock 보유자가 멈춘 상태.
	JournalLockTimeoutsTotal int64

	// ======================
	// Archive / Forward 지표
	// ======================

	// ArchiveUploadsTotal
	// - S3 에 성공적으로 올라간 snapshot 수.
	ArchiveUploadsTotal int64

	// ArchivePutErrorsTotal
	// - S3 PutObject 실패 시도(attempt) 수. retry 마다 증가한다.
	ArchivePutErrorsTotal int64

	// ForwardErrorsTotal
	// - Kafka 로 레코드 전달에 실패한 배치 수.
	ForwardErrorsTotal int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)

	fmt.Fprintf(&sb, "http_requests_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsTotal))
	fmt.Fprintf(&sb, "http_requests_ok_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsOKTotal))
	fmt.Fprintf(&sb, "http_requests_bad_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsBadTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_body_too_large_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedBodyTooLargeTotal))

	fmt.Fprintf(&sb, "records_decoded_total=%d\n", atomic.LoadInt64(&m.RecordsDecodedTotal))
	fmt.Fprintf(&sb, "corrupt_batches_total=%d\n", atomic.LoadInt64(&m.CorruptBatchesTotal))
	fmt.Fprintf(&sb, "flatten_field_errors_total=%d\n", atomic.LoadInt64(&m.FlattenFieldErrorsTotal))

	fmt.Fprintf(&sb, "journal_records_appended_total=%d\n", atomic.LoadInt64(&m.JournalRecordsAppendedTotal))
	fmt.Fprintf(&sb, "journal_errors_total=%d\n", atomic.LoadInt64(&m.JournalErrorsTotal))
	fmt.Fprintf(&sb, "journal_lock_timeouts_total=%d\n", atomic.LoadInt64(&m.JournalLockTimeoutsTotal))

	fmt.Fprintf(&sb, "archive_uploads_total=%d\n", atomic.LoadInt64(&m.ArchiveUploadsTotal))
	fmt.Fprintf(&sb, "archive_put_errors_total=%d\n", atomic.LoadInt64(&m.ArchivePutErrorsTotal))
	fmt.Fprintf(&sb, "forward_errors_total=%d\n", atomic.LoadInt64(&m.ForwardErrorsTotal))

	return sb.String()
}
