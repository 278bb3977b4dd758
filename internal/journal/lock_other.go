//go:build !unix

package journal

import (
	"context"
	"os"
	"time"
)

// flock 이 없는 플랫폼에서는 프로세스 내부 세마포어만 사용한다.
func lockFile(context.Context, *os.File, time.Time) error { return nil }

func unlockFile(*os.File) error { return nil }
