// Package storage は設定に応じてレンタルストアの実装を選んで開く。
package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/internal/rental/postgres"
	"github.com/nao1215/rentit/internal/rental/sqlite"
	"github.com/nao1215/rentit/pkg/config"
)

// DefaultDBPath はSQLiteファイルの既定パス。
const DefaultDBPath = "rentit.db"

// Config はストアの接続設定。
type Config struct {
	// DatabaseURL はPostgreSQLの接続文字列。設定されていればSQLiteより優先する。
	DatabaseURL string
	// DBPath はSQLiteファイルのパス。
	DBPath string
}

// LoadConfig は環境変数 DATABASE_URL と DB_PATH からストアの設定を読み込む。
func LoadConfig() Config {
	return Config{
		DatabaseURL: config.GetEnvOr("DATABASE_URL", ""),
		DBPath:      config.GetEnvOr("DB_PATH", DefaultDBPath),
	}
}

// Open は設定に応じてPostgreSQLまたはSQLiteのストアを開く。
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (rental.Store, error) {
	if cfg.DatabaseURL != "" {
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("PostgreSQLストアの初期化に失敗: %w", err)
		}
		logger.Info().Str("driver", "postgres").Msg("ストアを開きました")
		return store, nil
	}

	path := cfg.DBPath
	if path == "" {
		path = DefaultDBPath
	}
	store, err := sqlite.Open(ctx, path, logger)
	if err != nil {
		return nil, fmt.Errorf("SQLiteストアの初期化に失敗: %w", err)
	}
	logger.Info().Str("driver", "sqlite").Str("path", path).Msg("ストアを開きました")
	return store, nil
}
