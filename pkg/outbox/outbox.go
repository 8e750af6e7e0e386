// Package outbox はトランザクショナルアウトボックスの配信リレーを提供する。
//
// 業務トランザクションと同じコミットで書き込まれたメッセージを定期的に取り出し、
// メッセージブローカーへ発行して送信済みにする。発行に失敗したメッセージは
// 次の周期で再送する（少なくとも1回の配信）。
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nao1215/rentit/pkg/event"
)

// DefaultTopic は注文イベントの配信先トピック。
const DefaultTopic = "rentit.orders"

// Message はアウトボックスに保存された未配信メッセージ。
type Message struct {
	// ID はアウトボックス内の連番。配信順序はこの値に従う。
	ID int64 `json:"id"`
	// EventID はイベントの一意識別子。
	EventID string `json:"event_id"`
	// Topic は配信先トピック。
	Topic string `json:"topic"`
	// Key はパーティションキー。
	Key string `json:"key"`
	// Payload はイベント本体（JSON）。
	Payload json.RawMessage `json:"payload"`
	// CreatedAt は書き込み日時。
	CreatedAt time.Time `json:"created_at"`
	// SentAt は配信日時。未配信の場合はnil。
	SentAt *time.Time `json:"sent_at"`
}

// NewMessage はイベントからアウトボックスのメッセージを組み立てる。
// キーは集約IDとし、同じ注文のイベントが同じパーティションに入るようにする。
func NewMessage(topic string, ev *event.Event) (Message, error) {
	payload, err := ev.Marshal()
	if err != nil {
		return Message{}, fmt.Errorf("アウトボックスメッセージの生成に失敗: %w", err)
	}
	return Message{
		EventID:   ev.ID,
		Topic:     topic,
		Key:       ev.AggregateID,
		Payload:   payload,
		CreatedAt: ev.CreatedAt,
	}, nil
}

// Source は未配信メッセージの取得と送信済みの記録を行う。
type Source interface {
	// FetchPending は未配信メッセージをID順に最大limit件返す。
	FetchPending(ctx context.Context, limit int) ([]Message, error)
	// MarkSent はメッセージを送信済みにする。
	MarkSent(ctx context.Context, id int64) error
}

// Publisher はメッセージをブローカーへ発行する。
type Publisher interface {
	// Publish はトピックにキーと値を発行する。
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Relay はアウトボックスからブローカーへメッセージを中継する。
type Relay struct {
	// source は未配信メッセージの取得元。
	source Source
	// publisher は発行先。
	publisher Publisher
	// interval はポーリング間隔。
	interval time.Duration
	// batchSize は1回の周期で扱う最大件数。
	batchSize int
	// logger はリレーのロガー。
	logger zerolog.Logger
}

// NewRelay は新しいRelayを生成する。intervalとbatchSizeが0以下の場合は既定値を使う。
func NewRelay(source Source, publisher Publisher, interval time.Duration, batchSize int, logger zerolog.Logger) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		source:    source,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Flush は未配信メッセージをID順に発行し、発行できたものを送信済みにする。
// 発行に失敗した時点で中断し、残りは次の周期に回す。発行件数を返す。
func (r *Relay) Flush(ctx context.Context) (int, error) {
	msgs, err := r.source.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("未配信メッセージの取得に失敗: %w", err)
	}

	sent := 0
	for _, m := range msgs {
		if err := r.publisher.Publish(ctx, m.Topic, m.Key, m.Payload); err != nil {
			return sent, fmt.Errorf("メッセージ %d の発行に失敗: %w", m.ID, err)
		}
		if err := r.source.MarkSent(ctx, m.ID); err != nil {
			return sent, fmt.Errorf("メッセージ %d の送信済み記録に失敗: %w", m.ID, err)
		}
		sent++
	}
	return sent, nil
}

// Run はコンテキストが終了するまで一定間隔でFlushを繰り返す。
// 終了時はnilを返す。
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.interval).Msg("アウトボックスリレーを開始します")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("アウトボックスリレーを停止しました")
			return nil
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn().Err(err).Int("sent", n).Msg("アウトボックスの配信に失敗しました")
				continue
			}
			if n > 0 {
				r.logger.Debug().Int("sent", n).Msg("アウトボックスを配信しました")
			}
		}
	}
}
