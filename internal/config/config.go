// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// EnvPrefix 는 모든 설정 환경변수의 공통 prefix 이다.
// 예: COLLECTOR_HTTP_ADDR, COLLECTOR_LOG_PATH
const EnvPrefix = "COLLECTOR_"

// Config
//
// 서비스 실행 시 필요한 모든 설정 값을 보관하는 구조체.
// 프로세스 시작 시점에 Load() 로 한 번 초기화되며,
// 이후에는 변경되지 않는 불변(read-only) 값이다.
type Config struct {

	// ---------------------------
	// 서버 식별자 / 네트워크
	// ---------------------------

	ServiceName string `koanf:"service_name" validate:"required"`
	InstanceID  string `koanf:"instance_id"` // 비어 있으면 hostname → 랜덤 hex
	HTTPAddr    string `koanf:"http_addr" validate:"required"`

	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"gt=0"`

	// ---------------------------
	// 요청 처리 파라미터
	// ---------------------------

	MaxBodySize         int64 `koanf:"max_body_size" validate:"gt=0"`          // 압축된 요청 body 최대 크기
	MaxDecompressedSize int64 `koanf:"max_decompressed_size" validate:"gte=0"` // 압축 해제 결과 최대 크기 (0 = 무제한)
	StrictDecode        bool  `koanf:"strict_decode"`                          // 깨진 레코드를 만나면 400 으로 거절
	PrettyResponse      bool  `koanf:"pretty_response"`                        // 응답 JSON 들여쓰기

	// ---------------------------
	// Durable log (data.json)
	// ---------------------------

	LogPath     string        `koanf:"log_path" validate:"required"`
	LockTimeout time.Duration `koanf:"lock_timeout" validate:"gt=0"` // 파일 lock 최대 대기 시간

	// ---------------------------
	// 로깅
	// ---------------------------

	LogLevel   string `koanf:"log_level"`
	LogPretty  bool   `koanf:"log_pretty"`
	LogSampleN uint32 `koanf:"log_sample_n"`

	// ---------------------------
	// S3 archive (선택)
	// ---------------------------
	// ArchiveBucket 이 비어 있으면 archiver 는 시작하지 않는다.

	ArchiveBucket   string        `koanf:"archive_bucket"`
	ArchivePrefix   string        `koanf:"archive_prefix" validate:"required_with=ArchiveBucket"`
	ArchiveRegion   string        `koanf:"archive_region" validate:"required_with=ArchiveBucket"`
	ArchiveInterval time.Duration `koanf:"archive_interval" validate:"gt=0"`
	ArchiveTimeout  time.Duration `koanf:"archive_timeout" validate:"gt=0"`
	ArchiveRetries  int           `koanf:"archive_retries" validate:"gte=1"`

	// ---------------------------
	// Kafka forward (선택)
	// ---------------------------
	// 쉼표로 구분된 broker 목록. 비어 있으면 forwarder 비활성.

	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic" validate:"required_with=KafkaBrokers"`
}

// Defaults 는 환경변수가 없을 때 사용하는 기본값이다.
// 로컬에서 아무 설정 없이 띄워도 동작하도록 잡혀 있다.
func Defaults() Config {
	return Config{
		ServiceName: "collector-decode",
		HTTPAddr:    ":8080",

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,

		MaxBodySize:         4 << 20,
		MaxDecompressedSize: 64 << 20,
		PrettyResponse:      true,

		LogPath:     "data.json",
		LockTimeout: 5 * time.Second,

		LogLevel:   "info",
		LogSampleN: 1,

		ArchiveInterval: 5 * time.Minute,
		ArchiveTimeout:  10 * time.Second,
		ArchiveRetries:  3,
	}
}

// Load
//
// 환경 변수 기반으로 Config 값을 초기화한다.
// 값이 잘못되어 있으면 즉시 프로세스를 종료(fail-fast)한다.
func Load() Config {
	cfg, err := Parse()
	if err != nil {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	return cfg
}

// Parse 는 Defaults() 위에 COLLECTOR_* 환경변수를 덮어쓰고 검증한다.
func Parse() (Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	// 기본값 struct 에 unmarshal → env 에 없는 키는 기본값 유지
	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = fallbackInstanceID()
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Brokers 는 KafkaBrokers 를 쉼표 기준으로 나눈 목록이다.
func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// fallbackInstanceID
//
// 이 서버 인스턴스를 식별하는 고유 값.
//   - 기본: hostname
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
