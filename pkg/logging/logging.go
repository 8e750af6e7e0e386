// Package logging はサービス共通の構造化ロガーを提供する。
//
// zerologを使い、JSON形式で標準出力に書き出す。全ログに service フィールドを付与する。
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nao1215/rentit/pkg/config"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// New はサービス名を付与したロガーを生成する。
// ログレベルは環境変数 LOG_LEVEL（debug, info, warn, error）で指定する。
func New(service string) zerolog.Logger {
	return NewWithWriter(os.Stdout, service, config.GetEnvOr("LOG_LEVEL", "info"))
}

// NewWithWriter は出力先とレベルを指定してロガーを生成する。
func NewWithWriter(w io.Writer, service, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Nop は何も出力しないロガーを返す。テストで使用する。
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// parseLevel はレベル文字列を解釈する。不明な値はinfoとして扱う。
func parseLevel(level string) zerolog.Level {
	lv, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lv == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lv
}
