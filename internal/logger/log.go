// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"collector-decode/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 애플리케이션 시작 시 한 번만 호출되는 로거 초기화 함수.
//
//  1. 로그 포맷:
//     - LOG_PRETTY=true : 사람이 읽는 콘솔 출력
//     - LOG_PRETTY=false: JSON (수집 시스템 분석용)
//
//  2. 공통 필드: 모든 로그에 "service", "instance" 가 붙는다.
//
//  3. 샘플링: Debug/Info 는 LOG_SAMPLE_N 중 1개만 기록,
//     Warn/Error 는 항상 100% 기록.
func Init(cfg config.Config) {
	zlog.Logger = New(cfg, os.Stdout)

	// 표준 log 패키지 출력도 zerolog 로 돌린다.
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

// New 는 Init 과 같은 규칙으로 out 에 쓰는 로거를 만든다.
// 전역 로거를 건드리지 않으므로 테스트에서 그대로 쓸 수 있다.
func New(cfg config.Config, out io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && l != zerolog.NoLevel {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	w := out
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	if cfg.LogSampleN > 1 {
		return base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}
	return base
}
