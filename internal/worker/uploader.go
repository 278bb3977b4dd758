// internal/worker/uploader.go
package worker

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"collector-decode/internal/config"
	"collector-decode/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter 는 S3Uploader 가 쓰는 S3 API 부분집합. 테스트에서 fake 로 바꾼다.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader 는 archive snapshot 을 S3 에 올린다.
// 모든 업로드는 시도당 timeout + 재시도(backoff) 를 가진다.
type S3Uploader struct {
	bucket  string
	timeout time.Duration
	retries int
	metrics *metrics.Metrics
	client  ObjectPutter
}

// NewS3Uploader 는 AWS 기본 설정을 로드해서 S3 client 를 만든다.
// SDK 자체 retry 는 0 으로 고정하고 재시도는 애플리케이션 레벨(ArchiveRetries)만 쓴다.
func NewS3Uploader(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*S3Uploader, error) {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, awsCfgLib.WithRegion(cfg.ArchiveRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})
	return NewS3UploaderWithClient(cfg, m, client), nil
}

// NewS3UploaderWithClient 는 주어진 client 로 uploader 를 만든다.
func NewS3UploaderWithClient(cfg config.Config, m *metrics.Metrics, client ObjectPutter) *S3Uploader {
	retries := cfg.ArchiveRetries
	if retries < 1 {
		retries = 1
	}
	return &S3Uploader{
		bucket:  cfg.ArchiveBucket,
		timeout: cfg.ArchiveTimeout,
		retries: retries,
		metrics: m,
		client:  client,
	}
}

// UploadBytesWithRetryCtx
// -----------------------
// 메모리에 있는 바이트 배열을 S3 로 올린다.
// - retry + exponential backoff (최대 2초)
// - ctx.Done() 시 즉시 중단
//
// body 는 매 재시도마다 reader 를 새로 만들어야 하므로 bytes.NewReader 사용.
func (u *S3Uploader) UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 1; attempt <= u.retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := u.putObject(ctx, key, body); err == nil {
			return nil
		} else {
			lastErr = err
			atomic.AddInt64(&u.metrics.ArchivePutErrorsTotal, 1)
		}

		if attempt == u.retries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}
	}

	return lastErr
}

// putObject 는 PutObject 1회 호출. 시도당 timeout 적용.
func (u *S3Uploader) putObject(ctx context.Context, key string, body []byte) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(u.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentLength:   aws.Int64(int64(len(body))),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	return err
}
