// API Gatewayサービスのエントリポイント。
// 外部からの全てのリクエストを受け付け、ルートテーブルに従って内部サービスへ転送する。
// 認証は行わず、各サービスがトークンを検証する。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/rentit/internal/gateway"
	"github.com/nao1215/rentit/pkg/logging"
)

func main() {
	logger := logging.New("gateway")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := gateway.LoadConfig()
	rules, err := gateway.LoadRules(cfg.RoutesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("ルート定義の読み込みに失敗")
	}
	table, err := gateway.NewRouteTable(rules)
	if err != nil {
		logger.Fatal().Err(err).Msg("ルートテーブルの構築に失敗")
	}
	upstreams, err := gateway.ResolveUpstreams(table, os.Getenv)
	if err != nil {
		logger.Fatal().Err(err).Msg("転送先の解決に失敗")
	}

	server, err := gateway.NewServer(cfg, table, upstreams, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Gatewayサーバーの初期化に失敗")
	}

	logger.Info().Str("port", cfg.Port).Int("routes", len(table.Rules())).Msg("Gatewayサービスを起動します")
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Gatewayサービスの起動に失敗")
	}
}
