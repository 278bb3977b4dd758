// internal/worker/forwarder.go
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"collector-decode/internal/config"
	"collector-decode/internal/metrics"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// MessageWriter 는 kafka.Writer 의 부분집합. 테스트에서 fake 로 바꾼다.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Forwarder 는 디코딩된 레코드를 Kafka topic 으로 그대로 흘려보낸다.
// journal 과는 독립적이며 실패해도 요청 결과에 영향을 주지 않는다.
type Forwarder struct {
	writer  MessageWriter
	metrics *metrics.Metrics
	timeout time.Duration
}

// NewForwarder 는 KafkaBrokers / KafkaTopic 설정으로 writer 를 만든다.
// 설정이 없으면 nil 을 돌려준다 (forward 비활성).
func NewForwarder(cfg config.Config, m *metrics.Metrics) *Forwarder {
	brokers := cfg.Brokers()
	if len(brokers) == 0 || cfg.KafkaTopic == "" {
		return nil
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{}, // 같은 요청의 레코드는 같은 partition
		BatchSize:    100,
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf("kafka writer: "+msg, args...)
		}),
	}

	log.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Msg("kafka forwarder enabled")
	return NewForwarderWithWriter(w, m)
}

// NewForwarderWithWriter 는 주어진 writer 로 forwarder 를 만든다.
func NewForwarderWithWriter(w MessageWriter, m *metrics.Metrics) *Forwarder {
	return &Forwarder{writer: w, metrics: m, timeout: 5 * time.Second}
}

// Forward 는 records 를 requestID 를 key 로 한 배치로 보낸다.
func (f *Forwarder) Forward(ctx context.Context, requestID, clientID string, records []string) error {
	if f == nil || len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		msgs[i] = kafka.Message{
			Key:   []byte(requestID),
			Value: []byte(r),
			Headers: []kafka.Header{
				{Key: "Client-Id", Value: []byte(clientID)},
			},
		}
	}

	if err := f.writer.WriteMessages(ctx, msgs...); err != nil {
		atomic.AddInt64(&f.metrics.ForwardErrorsTotal, 1)
		return fmt.Errorf("forward %d records: %w", len(records), err)
	}
	return nil
}

// Close 는 남은 메시지를 flush 하고 writer 를 닫는다.
func (f *Forwarder) Close() error {
	if f == nil {
		return nil
	}
	return f.writer.Close()
}
