// Package kafka はアウトボックスのメッセージをKafkaへ発行するパブリッシャーを提供する。
package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ParseBrokers はカンマ区切りのブローカーアドレスを分割する。
func ParseBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Publisher はKafkaへメッセージを発行する。
// トピックはメッセージごとに指定するため、1つのWriterを全トピックで共有する。
type Publisher struct {
	// writer はKafkaのWriter。
	writer *kafka.Writer
}

// NewPublisher は指定ブローカーへ発行するPublisherを生成する。
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
	}
}

// Publish はトピックにキーと値を発行する。ブローカーの応答を待って戻る。
func (p *Publisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("Kafkaへの発行に失敗: %w", err)
	}
	return nil
}

// Close はWriterを閉じる。
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// LogPublisher はブローカーが設定されていない環境で使うパブリッシャー。
// メッセージをログに出力するだけで、常に成功する。
type LogPublisher struct {
	// Logger は出力先のロガー。
	Logger zerolog.Logger
}

// Publish はメッセージをログに出力する。
func (p LogPublisher) Publish(_ context.Context, topic, key string, value []byte) error {
	p.Logger.Info().
		Str("topic", topic).
		Str("key", key).
		RawJSON("value", value).
		Msg("ブローカー未設定のためイベントをログに出力します")
	return nil
}
