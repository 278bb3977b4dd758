// internal/worker/archiver.go
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"collector-decode/internal/config"
	"collector-decode/internal/metrics"
	"collector-decode/internal/pool"

	"github.com/rs/zerolog/log"
)

// Snapshotter 는 log 파일 전체를 일관된 상태로 읽어주는 쪽 (journal.Log).
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]byte, uint64, error)
}

// BytesUploader 는 key 로 바이트를 올리는 쪽 (S3Uploader).
type BytesUploader interface {
	UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error
}

// Archiver
// ------------------------------------------------------------
// ArchiveInterval 마다 data.json snapshot 을 gzip 으로 압축해 S3 에 올린다.
//
//   - snapshot 은 journal lock 아래에서 읽으므로 항상 완전한 배열
//   - 마지막 업로드 이후 journal 이 바뀌지 않았으면 건너뜀
//   - 업로드 실패는 로그 + metrics 만 남기고 다음 주기에 다시 시도
//
// Shutdown 시 마지막으로 한 번 더 올린 뒤 종료한다.
type Archiver struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	source   Snapshotter
	uploader BytesUploader
	now      func() time.Time

	lastGen atomic.Uint64
	synced  atomic.Bool // lastGen 이 유효한지

	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewArchiver(cfg config.Config, m *metrics.Metrics, source Snapshotter, uploader BytesUploader) *Archiver {
	return &Archiver{
		cfg:      cfg,
		metrics:  m,
		source:   source,
		uploader: uploader,
		now:      time.Now,
	}
}

// Start 는 주기 업로드 goroutine 을 띄운다.
func (a *Archiver) Start() {
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.wg.Add(1)
	go a.loop()
}

// Shutdown 은 루프를 멈추고 마지막 snapshot 을 올린다.
// 여러 번 호출해도 safe.
func (a *Archiver) Shutdown() {
	a.stopOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ArchiveTimeout*time.Duration(a.cfg.ArchiveRetries+1))
		defer cancel()
		if _, err := a.ArchiveOnce(ctx); err != nil {
			log.Error().Err(err).Msg("final archive failed")
		}
	})
}

func (a *Archiver) loop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.ArchiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.ArchiveOnce(a.ctx); err != nil {
				log.Warn().Err(err).Msg("archive failed")
			}
		}
	}
}

// ArchiveOnce 는 snapshot 하나를 올린다.
// 올렸으면 key 를, 변경 없음/빈 파일로 건너뛰었으면 "" 를 돌려준다.
func (a *Archiver) ArchiveOnce(ctx context.Context) (string, error) {
	data, gen, err := a.source.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	if a.synced.Load() && a.lastGen.Load() == gen {
		return "", nil
	}

	gz, err := pool.Gzip(data)
	if err != nil {
		return "", err
	}

	now := a.now()
	key := BuildS3Key(a.cfg.ArchivePrefix, NewFilename(a.cfg.InstanceID, now), now)

	if err := a.uploader.UploadBytesWithRetryCtx(ctx, key, gz); err != nil {
		return "", err
	}

	a.lastGen.Store(gen)
	a.synced.Store(true)
	atomic.AddInt64(&a.metrics.ArchiveUploadsTotal, 1)

	log.Info().
		Str("key", key).
		Int("bytes", len(data)).
		Int("gzip_bytes", len(gz)).
		Uint64("generation", gen).
		Msg("journal archived")
	return key, nil
}
