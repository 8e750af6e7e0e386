// Package config は環境変数から設定値を読み込む補助関数を提供する。
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func GetEnvOr(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvList はカンマ区切りの環境変数をスライスとして返す。
// 空要素は取り除く。未設定の場合はデフォルト値を返す。
func GetEnvList(key string, defaultValue []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}

	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// GetEnvInt は整数の環境変数を取得する。
// 未設定または解釈できない場合はデフォルト値を返す。
func GetEnvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetEnvDuration は time.ParseDuration 形式の環境変数を取得する。
// 未設定または解釈できない場合はデフォルト値を返す。
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

// GetEnvFloat は浮動小数点数の環境変数を取得する。
// 未設定または解釈できない場合はデフォルト値を返す。
func GetEnvFloat(key string, defaultValue float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
