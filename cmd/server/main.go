package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"collector-decode/internal/config"
	"collector-decode/internal/decode"
	"collector-decode/internal/journal"
	"collector-decode/internal/logger"
	"collector-decode/internal/metrics"
	"collector-decode/internal/server"
	"collector-decode/internal/worker"

	"github.com/rs/zerolog/log"
)

func main() {

	// ====================================================================
	// Config / Logger / Metrics 초기화
	// ====================================================================
	//
	// - Config: COLLECTOR_* 환경변수 (없으면 기본값)
	// - Logger: zerolog 전역 로거 (service / instance 필드 포함)
	// - Metrics: /metrics 에서 반환하는 내부 카운터
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg)
	m := metrics.New()

	// ====================================================================
	// 디코딩 파이프라인 + durable log
	// ====================================================================
	//
	// 파이프라인은 상태가 없어 모든 요청이 공유한다.
	// journal 은 파일 하나당 하나만 만들어야 한다 (프로세스 내부 lock 공유).
	// ====================================================================
	pipeline := decode.NewPipeline(decode.Options{
		MaxDecompressedSize: cfg.MaxDecompressedSize,
		Strict:              cfg.StrictDecode,
		Pretty:              cfg.PrettyResponse,
	})
	jr := journal.Open(cfg.LogPath, journal.Options{LockTimeout: cfg.LockTimeout})

	// ====================================================================
	// 선택 구성 요소 (S3 archive, Kafka forward)
	// ====================================================================
	var archiver *worker.Archiver
	if cfg.ArchiveBucket != "" {
		uploader, err := worker.NewS3Uploader(context.Background(), cfg, m)
		if err != nil {
			log.Fatal().Err(err).Msg("archive uploader init failed")
		}
		archiver = worker.NewArchiver(cfg, m, jr, uploader)
		archiver.Start()
		log.Info().Str("bucket", cfg.ArchiveBucket).Dur("interval", cfg.ArchiveInterval).Msg("journal archiver started")
	}

	var forwarder server.Forwarder
	if fw := worker.NewForwarder(cfg, m); fw != nil {
		forwarder = fw
		defer fw.Close()
	}

	// ====================================================================
	// HTTP 서버
	// ====================================================================
	stopCh := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(stopCh) }) }

	h := server.NewHandler(cfg, m, pipeline, jr, forwarder, stop)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      h.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// ====================================================================
	// Graceful Shutdown
	// ====================================================================
	//
	// SIGTERM / SIGINT 또는 POST /admin/stop 수신 시:
	//   1) HTTP 서버를 먼저 멈춘다 (진행 중인 journal append 는 끝까지 수행)
	//   2) archiver 를 멈추고 마지막 snapshot 을 올린다
	// ====================================================================
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		case <-stopCh:
			log.Info().Msg("shutdown requested via /admin/stop")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}()

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("log_path", cfg.LogPath).
		Msg("collector decode server listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server terminated")
	}
	<-done

	if archiver != nil {
		log.Info().Msg("stopping journal archiver...")
		archiver.Shutdown()
	}
	log.Info().Msg("shutdown complete")
}
