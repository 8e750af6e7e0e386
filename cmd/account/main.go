// アカウントサービスのエントリポイント。
// ログイン、利用者登録、ロールと地域の参照データを提供する。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/rentit/internal/account"
	"github.com/nao1215/rentit/internal/rental/storage"
	"github.com/nao1215/rentit/pkg/auth"
	"github.com/nao1215/rentit/pkg/config"
	"github.com/nao1215/rentit/pkg/logging"
)

func main() {
	logger := logging.New("account")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := auth.NewTokenService(auth.LoadConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("トークン設定が不正です")
	}

	store, err := storage.Open(ctx, storage.LoadConfig(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ストアの初期化に失敗")
	}
	defer store.Close()

	cfg := account.Config{
		Port:           config.GetEnvOr("PORT", "8081"),
		PublicPaths:    config.GetEnvList("PUBLIC_PATHS", account.DefaultPublicPaths),
		AllowedOrigins: config.GetEnvList("FRONTEND_URL", []string{"http://localhost:3000"}),
		BcryptCost:     config.GetEnvInt("BCRYPT_COST", 0),
	}
	server := account.NewServer(cfg, store, tokens, logger)

	email, password := os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD")
	if email != "" && password != "" {
		if err := server.Accounts().EnsureAdmin(ctx, email, password); err != nil {
			logger.Fatal().Err(err).Msg("管理者アカウントの作成に失敗")
		}
	}

	logger.Info().Str("port", cfg.Port).Msg("アカウントサービスを起動します")
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("アカウントサービスの起動に失敗")
	}
}
