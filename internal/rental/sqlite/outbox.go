package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nao1215/rentit/pkg/outbox"
)

// FetchPending は未配信メッセージをID順に最大limit件返す。
func (s *Store) FetchPending(ctx context.Context, limit int) ([]outbox.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, topic, msg_key, payload, created_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("未配信メッセージの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []outbox.Message
	for rows.Next() {
		var (
			m            outbox.Message
			payload, cat string
		)
		if err := rows.Scan(&m.ID, &m.EventID, &m.Topic, &m.Key, &payload, &cat); err != nil {
			return nil, fmt.Errorf("メッセージの読み取りに失敗: %w", err)
		}
		m.Payload = json.RawMessage(payload)
		if m.CreatedAt, err = parseTime(cat); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkSent はメッセージを送信済みにする。
func (s *Store) MarkSent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET sent_at = ? WHERE id = ? AND sent_at IS NULL`,
		s.timestamp(), id,
	)
	if err != nil {
		return fmt.Errorf("送信済みの記録に失敗: %w", err)
	}
	return nil
}
