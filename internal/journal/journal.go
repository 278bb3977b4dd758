// internal/journal/journal.go
package journal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// ------------------------------------------------------------
// Durable append log
//
// 디코딩된 모든 레코드를 파일 하나(data.json)에 JSON 배열로 쌓는다.
//
//	Closed ──Resume──▶ Open ──Add*──▶ Open ──Close──▶ Closed
//
// Closed 상태의 파일은 항상 '[' 로 시작해 ']' 로 끝나는 완전한 배열이다.
// Resume 은 마지막 ']' 를 잘라서 배열을 다시 열고, Close 가 닫는다.
// Resume~Close 사이에는 배열이 열려 있으므로 같은 파일을 쓰는 writer 는
// 항상 하나뿐이어야 한다.
//
// lock 은 두 단계:
//   - 프로세스 내부: 1칸짜리 채널 세마포어 (대기 시간 제한)
//   - 프로세스 간: flock(2) advisory lock (unix 에서만)
// ------------------------------------------------------------

var (
	// ErrLockTimeout 은 LockTimeout 안에 lock 을 얻지 못한 경우.
	ErrLockTimeout = errors.New("journal lock timeout")

	// ErrCorruptLog 는 파일이 ']' 로 끝나지 않는 경우.
	// 이전 bracket 이 Close 전에 실패했을 때 남는 상태이며 자동 복구하지 않는다.
	ErrCorruptLog = errors.New("journal file is not a closed JSON array")

	// ErrSessionClosed 는 Close 이후 Add 를 호출한 경우.
	ErrSessionClosed = errors.New("journal session closed")
)

const defaultLockTimeout = 5 * time.Second

// Options 는 Log 설정.
type Options struct {
	LockTimeout time.Duration // 0 이면 5s
}

// Log 는 파일 하나에 대한 append-only JSON 배열 writer.
type Log struct {
	path    string
	timeout time.Duration
	sem     chan struct{}

	// 성공적으로 Close 된 bracket 수. archive 가 변경 여부 판단에 쓴다.
	generation atomic.Uint64
}

// Open 은 path 에 대한 Log 를 만든다. 첫 Resume 전까지 파일은 건드리지 않는다.
func Open(path string, opts Options) *Log {
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &Log{
		path:    path,
		timeout: timeout,
		sem:     make(chan struct{}, 1),
	}
}

// Path 는 log 파일 경로.
func (l *Log) Path() string { return l.path }

// Generation 은 지금까지 Close 에 성공한 bracket 수.
func (l *Log) Generation() uint64 { return l.generation.Load() }

// Session 은 열린(Open) 상태의 log. Resume 으로 얻고 반드시 Close 해야 한다.
type Session struct {
	log      *Log
	f        *os.File
	w        *bufio.Writer
	hasElems bool
	added    int
	closed   bool
}

// Resume 은 lock 을 얻고 배열을 다시 연다.
//   - 파일이 없거나 비어 있으면 '[' 를 쓴다.
//   - 있으면 마지막 ']' 위치에서 잘라낸다.
func (l *Log) Resume(ctx context.Context) (*Session, error) {
	deadline := time.Now().Add(l.timeout)

	if err := l.acquire(ctx, deadline); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		l.release()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := lockFile(ctx, f, deadline); err != nil {
		_ = f.Close()
		l.release()
		return nil, err
	}

	s := &Session{log: l, f: f}
	if err := s.reopen(); err != nil {
		s.abort()
		return nil, err
	}
	s.w = bufio.NewWriterSize(f, 64*1024)
	return s, nil
}

// reopen 은 파일 끝의 ']' 를 제거하고 쓰기 위치를 그곳으로 옮긴다.
func (s *Session) reopen() error {
	info, err := s.f.Stat()
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}

	end, b, err := lastNonSpace(s.f, info.Size())
	if err != nil {
		return err
	}
	if end < 0 {
		// 새 파일 (또는 공백뿐인 파일)
		if err := s.f.Truncate(0); err != nil {
			return fmt.Errorf("truncate journal: %w", err)
		}
		if _, err := s.f.WriteAt([]byte("["), 0); err != nil {
			return fmt.Errorf("write journal open marker: %w", err)
		}
		_, err := s.f.Seek(1, io.SeekStart)
		return err
	}
	if b != ']' {
		return fmt.Errorf("%w: trailing byte %q at %d", ErrCorruptLog, b, end)
	}

	prev, pb, err := lastNonSpace(s.f, end)
	if err != nil {
		return err
	}
	if prev < 0 {
		return fmt.Errorf("%w: missing '['", ErrCorruptLog)
	}
	s.hasElems = pb != '['

	if err := s.f.Truncate(end); err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}
	if _, err := s.f.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("seek journal: %w", err)
	}
	return nil
}

// Add 는 레코드 하나를 배열 원소로 추가한다.
// 레코드는 그대로 기록된다. '[' 로 시작하는 레코드도 벗기지 않으며,
// 그 경우 중첩 배열 원소가 된다.
func (s *Session) Add(record string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.hasElems {
		if err := s.w.WriteByte(','); err != nil {
			return fmt.Errorf("write journal: %w", err)
		}
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	if _, err := s.w.WriteString(record); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	s.hasElems = true
	s.added++
	return nil
}

// Added 는 이 세션에서 추가한 레코드 수.
func (s *Session) Added() int { return s.added }

// Close 는 배열을 닫고 디스크에 sync 한 뒤 lock 을 푼다.
// 에러가 나도 lock 은 항상 풀린다. 여러 번 호출해도 된다.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}

	var err error
	if _, werr := s.w.WriteString("\n]\n"); werr != nil {
		err = fmt.Errorf("write journal close marker: %w", werr)
	} else if ferr := s.w.Flush(); ferr != nil {
		err = fmt.Errorf("flush journal: %w", ferr)
	} else if serr := s.f.Sync(); serr != nil {
		err = fmt.Errorf("sync journal: %w", serr)
	}

	s.abort()
	if err == nil {
		s.log.generation.Add(1)
	}
	return err
}

// abort 는 쓰기 없이 파일과 lock 만 정리한다.
func (s *Session) abort() {
	s.closed = true
	_ = unlockFile(s.f)
	_ = s.f.Close()
	s.log.release()
}

// Append 는 Resume → Add(각 레코드) → Close 를 한 번에 수행한다.
func (l *Log) Append(ctx context.Context, records []string) error {
	s, err := l.Resume(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := s.Add(r); err != nil {
			return errors.Join(err, s.Close())
		}
	}
	return s.Close()
}

// Snapshot 은 lock 을 잡은 상태에서 파일 전체를 읽는다.
// 따라서 결과는 항상 닫힌 배열이다. 파일이 없으면 (nil, gen, nil).
func (l *Log) Snapshot(ctx context.Context) ([]byte, uint64, error) {
	deadline := time.Now().Add(l.timeout)
	if err := l.acquire(ctx, deadline); err != nil {
		return nil, 0, err
	}
	defer l.release()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, l.Generation(), nil
		}
		return nil, 0, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if err := lockFile(ctx, f, deadline); err != nil {
		return nil, 0, err
	}
	defer unlockFile(f)

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, fmt.Errorf("read journal: %w", err)
	}
	return data, l.Generation(), nil
}

func (l *Log) acquire(ctx context.Context, deadline time.Time) error {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrLockTimeout
	}
}

func (l *Log) release() {
	<-l.sem
}

// lastNonSpace 는 [0, end) 구간에서 마지막 공백 아닌 byte 의 위치와 값을 돌려준다.
// 없으면 위치 -1.
func lastNonSpace(f *os.File, end int64) (int64, byte, error) {
	const chunk = 4096
	buf := make([]byte, chunk)

	for end > 0 {
		start := end - chunk
		if start < 0 {
			start = 0
		}
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return -1, 0, fmt.Errorf("read journal tail: %w", err)
		}
		for i := n - 1; i >= 0; i-- {
			switch buf[i] {
			case ' ', '\t', '\r', '\n':
				continue
			}
			return start + int64(i), buf[i], nil
		}
		end = start
	}
	return -1, 0, nil
}
