// internal/worker/keys.go
package worker

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// ------------------------------------------------------------
// archive 파일명 / S3 key 규칙
//
//	<prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<unix>_<instance>_<counter>.json.gz
//
// 예:
//
//	archive/dt=2026-10-15/hr=09/1760518800_collector1_000042.json.gz
//
// 파일명 문자열 정렬 = 시간 정렬. 파티션 시각은 UTC 기준.
// ------------------------------------------------------------
var globalCounter uint64

// NextCounter 는 1,000,000 에서 0 으로 돌아가는 순차 번호.
func NextCounter() uint64 {
	return atomic.AddUint64(&globalCounter, 1) % 1_000_000
}

// NewFilename 은 <unix>_<instance>_<counter>.json.gz 형태의 이름을 만든다.
func NewFilename(instanceID string, now time.Time) string {
	return fmt.Sprintf("%d_%s_%06d.json.gz", now.Unix(), instanceID, NextCounter())
}

// BuildS3Key 는 파티션 경로를 붙인 S3 key 를 만든다.
func BuildS3Key(prefix, filename string, now time.Time) string {
	now = now.UTC()
	prefix = strings.TrimSuffix(prefix, "/")
	return fmt.Sprintf("%s/dt=%s/hr=%s/%s", prefix, now.Format("2006-01-02"), now.Format("15"), filename)
}
