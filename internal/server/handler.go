package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"collector-decode/internal/config"
	"collector-decode/internal/journal"
	"collector-decode/internal/metrics"
	"collector-decode/internal/model"
	"collector-decode/internal/pool"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const badRequestBody = "400 Bad Request"

// Decoder 는 요청 body 를 Batch 로 바꾸는 쪽 (decode.Pipeline).
type Decoder interface {
	Run(body []byte, encoding string) (*model.Batch, error)
}

// Appender 는 레코드를 durable log 에 쌓는 쪽 (journal.Log).
type Appender interface {
	Append(ctx context.Context, records []string) error
}

// Forwarder 는 레코드를 외부로 흘려보내는 쪽 (worker.Forwarder). nil 가능.
type Forwarder interface {
	Forward(ctx context.Context, requestID, clientID string, records []string) error
}

type Handler struct {
	cfg       config.Config
	metrics   *metrics.Metrics
	decoder   Decoder
	journal   Appender
	forwarder Forwarder
	stop      func()
}

// NewHandler 의 forwarder 와 stop 은 nil 이어도 된다.
func NewHandler(cfg config.Config, m *metrics.Metrics, d Decoder, j Appender, f Forwarder, stop func()) *Handler {
	return &Handler{
		cfg:       cfg,
		metrics:   m,
		decoder:   d,
		journal:   j,
		forwarder: f,
		stop:      stop,
	}
}

// Routes 는 이 서버의 전체 라우팅을 구성한다.
//   - /OneCollector/* : 배치 디코딩 (핵심)
//   - /admin/stop     : 프로세스 종료 (인증 없음)
//   - /metrics        : 운영 지표
//   - /health         : health check
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/OneCollector", h.HandleCollect)
	mux.HandleFunc("/OneCollector/", h.HandleCollect)
	mux.HandleFunc("/admin/stop", h.HandleStop)
	mux.HandleFunc("/metrics", h.HandleMetrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// HandleCollect
//
// 인코딩된 배치 하나를 처리한다.
//  1. body 를 MaxBodySize 까지만 읽음 (초과 시 413)
//  2. 압축 해제 → 디코딩 → flatten → 배열 조립
//  3. 레코드를 durable log 에 append
//  4. 200 + JSON 배열 응답
//
// 2, 3 단계의 어떤 실패든 400 "400 Bad Request" 로 응답하고
// 상세 원인은 서버 로그에만 남긴다.
func (h *Handler) HandleCollect(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.metrics.HTTPRequestsTotal, 1)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.NewString()
	clientID := r.Header.Get("Client-Id")
	encoding := r.Header.Get("Content-Encoding")

	logger := log.With().
		Str("request_id", requestID).
		Str("client_id", clientID).
		Str("ip", clientIP(r)).
		Str("path", r.URL.Path).
		Str("content_type", r.Header.Get("Content-Type")).
		Str("content_encoding", encoding).
		Logger()

	// --------------------------------------------------------------------
	// body 읽기 (BodyPool 재사용, 최대 MaxBodySize)
	// --------------------------------------------------------------------
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	defer r.Body.Close()

	buf := pool.BodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer pool.PutBody(buf, h.cfg.MaxBodySize*2)

	if r.ContentLength > 0 && r.ContentLength <= h.cfg.MaxBodySize {
		buf.Grow(int(r.ContentLength))
	}

	if _, err := io.Copy(buf, r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			atomic.AddInt64(&h.metrics.HTTPRequestsRejectedBodyTooLargeTotal, 1)
			logger.Warn().Int64("limit", tooLarge.Limit).Msg("request body too large")
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		h.badRequest(w, logger, err, "read body failed")
		return
	}

	// --------------------------------------------------------------------
	// 디코딩 파이프라인
	// --------------------------------------------------------------------
	batch, err := h.decoder.Run(buf.Bytes(), encoding)
	if err != nil {
		h.badRequest(w, logger, err, "decode failed")
		return
	}

	if batch.Corrupt {
		atomic.AddInt64(&h.metrics.CorruptBatchesTotal, 1)
		logger.Warn().
			Int("records", len(batch.Records)).
			Int64("offset", batch.CorruptOffset).
			Str("reason", batch.CorruptReason).
			Msg("batch decoding stopped early")
	}
	if batch.FieldErrors > 0 {
		atomic.AddInt64(&h.metrics.FlattenFieldErrorsTotal, int64(batch.FieldErrors))
	}

	// --------------------------------------------------------------------
	// durable log append (응답 전에 수행 → 실패하면 400)
	// --------------------------------------------------------------------
	if len(batch.Records) > 0 {
		if err := h.journal.Append(r.Context(), batch.Records); err != nil {
			atomic.AddInt64(&h.metrics.JournalErrorsTotal, 1)
			if errors.Is(err, journal.ErrLockTimeout) {
				atomic.AddInt64(&h.metrics.JournalLockTimeoutsTotal, 1)
			}
			h.badRequest(w, logger, err, "journal append failed")
			return
		}
		atomic.AddInt64(&h.metrics.JournalRecordsAppendedTotal, int64(len(batch.Records)))

		if h.forwarder != nil {
			if err := h.forwarder.Forward(r.Context(), requestID, clientID, batch.Records); err != nil {
				logger.Error().Err(err).Msg("forward failed")
			}
		}
	}

	atomic.AddInt64(&h.metrics.RecordsDecodedTotal, int64(len(batch.Records)))
	atomic.AddInt64(&h.metrics.HTTPRequestsOKTotal, 1)

	logger.Debug().Int("records", len(batch.Records)).Int("bytes", buf.Len()).Msg("batch decoded")

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, batch.JSON)
}

func (h *Handler) badRequest(w http.ResponseWriter, logger zerolog.Logger, err error, msg string) {
	atomic.AddInt64(&h.metrics.HTTPRequestsBadTotal, 1)
	logger.Error().Err(err).Msg(msg)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = io.WriteString(w, badRequestBody)
}

// HandleStop
//
// 운영용 비상 종료. 응답을 먼저 보낸 뒤 stop 콜백을 호출한다.
// 인증이 없으므로 외부에 노출되는 환경에서는 라우팅에서 막아야 한다.
func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	log.Warn().Str("ip", clientIP(r)).Msg("stop requested via /admin/stop")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "stopping\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	if h.stop != nil {
		go h.stop()
	}
}

// HandleMetrics 는 카운터 값들을 key=value 로 출력한다.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}
