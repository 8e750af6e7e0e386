package config

import (
	"slices"
	"testing"
	"time"
)

// TestGetEnvOr はGetEnvOr関数を検証する。
// t.Setenvを使うため並列実行しない。
func TestGetEnvOr(t *testing.T) {
	t.Run("設定済みの値を返すこと", func(t *testing.T) {
		t.Setenv("RENTIT_TEST_VALUE", "  value  ")
		if got := GetEnvOr("RENTIT_TEST_VALUE", "default"); got != "value" {
			t.Errorf("GetEnvOr() = %q, want %q", got, "value")
		}
	})

	t.Run("未設定の場合はデフォルト値を返すこと", func(t *testing.T) {
		t.Setenv("RENTIT_TEST_VALUE", "")
		if got := GetEnvOr("RENTIT_TEST_VALUE", "default"); got != "default" {
			t.Errorf("GetEnvOr() = %q, want %q", got, "default")
		}
	})
}

// TestGetEnvList はGetEnvList関数を検証する。
func TestGetEnvList(t *testing.T) {
	t.Run("カンマ区切りを分割し空要素を除くこと", func(t *testing.T) {
		t.Setenv("RENTIT_TEST_LIST", "/health, ,/metrics,")
		got := GetEnvList("RENTIT_TEST_LIST", nil)
		want := []string{"/health", "/metrics"}
		if !slices.Equal(got, want) {
			t.Errorf("GetEnvList() = %v, want %v", got, want)
		}
	})

	t.Run("未設定の場合はデフォルト値を返すこと", func(t *testing.T) {
		t.Setenv("RENTIT_TEST_LIST", "")
		got := GetEnvList("RENTIT_TEST_LIST", []string{"/health"})
		if !slices.Equal(got, []string{"/health"}) {
			t.Errorf("GetEnvList() = %v", got)
		}
	})
}

// TestGetEnvIntAndDuration は数値と期間の読み込みを検証する。
func TestGetEnvIntAndDuration(t *testing.T) {
	t.Setenv("RENTIT_TEST_INT", "42")
	t.Setenv("RENTIT_TEST_BAD_INT", "x")
	t.Setenv("RENTIT_TEST_DURATION", "90m")
	t.Setenv("RENTIT_TEST_BAD_DURATION", "soon")

	if got := GetEnvInt("RENTIT_TEST_INT", 1); got != 42 {
		t.Errorf("GetEnvInt() = %d, want 42", got)
	}
	if got := GetEnvInt("RENTIT_TEST_BAD_INT", 1); got != 1 {
		t.Errorf("GetEnvInt(不正値) = %d, want 1", got)
	}
	if got := GetEnvDuration("RENTIT_TEST_DURATION", time.Second); got != 90*time.Minute {
		t.Errorf("GetEnvDuration() = %v, want 90m", got)
	}
	if got := GetEnvDuration("RENTIT_TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("GetEnvDuration(不正値) = %v, want 1s", got)
	}
}

// TestGetEnvFloat は浮動小数点数の読み込みを検証する。
func TestGetEnvFloat(t *testing.T) {
	t.Setenv("RENTIT_TEST_FLOAT", "2.5")
	t.Setenv("RENTIT_TEST_BAD_FLOAT", "fast")

	if got := GetEnvFloat("RENTIT_TEST_FLOAT", 0); got != 2.5 {
		t.Errorf("GetEnvFloat() = %v, want 2.5", got)
	}
	if got := GetEnvFloat("RENTIT_TEST_BAD_FLOAT", 1); got != 1 {
		t.Errorf("GetEnvFloat(不正値) = %v, want 1", got)
	}
	if got := GetEnvFloat("RENTIT_TEST_UNSET_FLOAT", 3); got != 3 {
		t.Errorf("GetEnvFloat(未設定) = %v, want 3", got)
	}
}
