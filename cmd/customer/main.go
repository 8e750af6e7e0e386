// 顧客サービスのエントリポイント。
// 出品の閲覧、カート操作、注文確定を提供し、確定した注文のイベントを
// アウトボックス経由でメッセージブローカーへ配信する。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/rentit/internal/customer"
	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/internal/rental/storage"
	"github.com/nao1215/rentit/pkg/auth"
	"github.com/nao1215/rentit/pkg/config"
	"github.com/nao1215/rentit/pkg/kafka"
	"github.com/nao1215/rentit/pkg/logging"
	"github.com/nao1215/rentit/pkg/outbox"
)

func main() {
	logger := logging.New("customer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := auth.NewTokenService(auth.LoadConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("トークン設定が不正です")
	}

	deliveryMode, err := rental.ParseDeliveryMode(config.GetEnvOr("DEFAULT_DELIVERY_MODE", string(rental.DeliverySelf)))
	if err != nil {
		logger.Fatal().Err(err).Msg("DEFAULT_DELIVERY_MODE が不正です")
	}
	topic := config.GetEnvOr("OUTBOX_TOPIC", outbox.DefaultTopic)

	store, err := storage.Open(ctx, storage.LoadConfig(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ストアの初期化に失敗")
	}
	defer store.Close()

	var publisher outbox.Publisher = kafka.LogPublisher{Logger: logger}
	if brokers := kafka.ParseBrokers(config.GetEnvOr("KAFKA_BROKERS", "")); len(brokers) > 0 {
		p := kafka.NewPublisher(brokers)
		defer p.Close()
		publisher = p
		logger.Info().Strs("brokers", brokers).Str("topic", topic).Msg("Kafkaへイベントを配信します")
	}
	relay := outbox.NewRelay(store, publisher,
		config.GetEnvDuration("OUTBOX_INTERVAL", 0),
		config.GetEnvInt("OUTBOX_BATCH_SIZE", 0),
		logger)

	cfg := customer.Config{
		Port:           config.GetEnvOr("PORT", "8085"),
		PublicPaths:    config.GetEnvList("PUBLIC_PATHS", nil),
		AllowedOrigins: config.GetEnvList("FRONTEND_URL", []string{"http://localhost:3000"}),
		Order: customer.OrderConfig{
			DeliveryMode: deliveryMode,
			Topic:        topic,
		},
	}
	server := customer.NewServer(cfg, store, tokens, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	logger.Info().Str("port", cfg.Port).Str("delivery_mode", string(deliveryMode)).Msg("顧客サービスを起動します")
	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("顧客サービスの実行に失敗")
	}
}
