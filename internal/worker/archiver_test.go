package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"collector-decode/internal/config"
	"collector-decode/internal/metrics"

	"github.com/klauspost/compress/gzip"
)

type fakeSnapshotter struct {
	mu   sync.Mutex
	data []byte
	gen  uint64
	err  error
}

func (f *fakeSnapshotter) Snapshot(context.Context) ([]byte, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.gen, f.err
}

func (f *fakeSnapshotter) set(data string, gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data, f.gen = []byte(data), gen
}

type fakeUploader struct {
	mu     sync.Mutex
	keys   []string
	bodies [][]byte
	err    error
}

func (f *fakeUploader) UploadBytesWithRetryCtx(_ context.Context, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakeUploader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func archiveConfig() config.Config {
	cfg := config.Defaults()
	cfg.InstanceID = "test1"
	cfg.ArchiveBucket = "bucket"
	cfg.ArchivePrefix = "archive"
	cfg.ArchiveInterval = 20 * time.Millisecond
	cfg.ArchiveTimeout = time.Second
	cfg.ArchiveRetries = 1
	return cfg
}

func gunzip(t *testing.T, b []byte) string {
	t.Helper()
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	return string(out)
}

func TestArchiveOnce(t *testing.T) {
	src := &fakeSnapshotter{}
	up := &fakeUploader{}
	m := metrics.New()
	a := NewArchiver(archiveConfig(), m, src, up)
	a.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }

	// 파일이 아직 없으면 건너뜀
	if key, err := a.ArchiveOnce(context.Background()); err != nil || key != "" {
		t.Fatalf("empty snapshot: key=%q err=%v", key, err)
	}

	src.set(`[{"a":1}]`, 1)
	key, err := a.ArchiveOnce(context.Background())
	if err != nil {
		t.Fatalf("ArchiveOnce: %v", err)
	}
	if !strings.HasPrefix(key, "archive/dt=2026-10-15/hr=09/") || !strings.HasSuffix(key, ".json.gz") {
		t.Fatalf("unexpected key %q", key)
	}
	if got := gunzip(t, up.bodies[0]); got != `[{"a":1}]` {
		t.Fatalf("uploaded %q", got)
	}

	// 같은 generation → 건너뜀
	if key, _ := a.ArchiveOnce(context.Background()); key != "" {
		t.Fatalf("unchanged journal uploaded again: %q", key)
	}

	src.set(`[{"a":1},{"b":2}]`, 2)
	if key, _ := a.ArchiveOnce(context.Background()); key == "" {
		t.Fatal("changed journal not uploaded")
	}
	if m.ArchiveUploadsTotal != 2 {
		t.Fatalf("ArchiveUploadsTotal = %d", m.ArchiveUploadsTotal)
	}
}

func TestArchiveOnceErrors(t *testing.T) {
	src := &fakeSnapshotter{err: errors.New("disk gone")}
	a := NewArchiver(archiveConfig(), metrics.New(), src, &fakeUploader{})
	if _, err := a.ArchiveOnce(context.Background()); err == nil {
		t.Fatal("expected snapshot error")
	}

	src = &fakeSnapshotter{data: []byte("[]"), gen: 1}
	up := &fakeUploader{err: errors.New("s3 down")}
	a = NewArchiver(archiveConfig(), metrics.New(), src, up)
	if _, err := a.ArchiveOnce(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}

	// 실패한 generation 은 다음에 다시 시도해야 한다
	up.mu.Lock()
	up.err = nil
	up.mu.Unlock()
	if key, err := a.ArchiveOnce(context.Background()); err != nil || key == "" {
		t.Fatalf("retry: key=%q err=%v", key, err)
	}
}

func TestArchiverLoopAndShutdown(t *testing.T) {
	src := &fakeSnapshotter{}
	src.set(`[{"a":1}]`, 1)
	up := &fakeUploader{}
	a := NewArchiver(archiveConfig(), metrics.New(), src, up)

	a.Start()
	deadline := time.Now().Add(2 * time.Second)
	for up.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if up.count() == 0 {
		t.Fatal("archiver loop never uploaded")
	}

	src.set(`[{"a":1},{"b":2}]`, 2)
	a.Shutdown()
	a.Shutdown()
	if a.lastGen.Load() != 2 {
		t.Fatalf("final snapshot not uploaded on shutdown, lastGen=%d", a.lastGen.Load())
	}
}
