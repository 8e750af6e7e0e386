package sqlite

import (
	"context"
	"fmt"

	"github.com/nao1215/rentit/internal/rental"
)

// AddCartEntry はカートエントリを作成する。
func (s *Store) AddCartEntry(ctx context.Context, customerID, ownerItemID int64) (rental.CartEntry, error) {
	createdAt := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cart (customer_id, owner_item_id, created_at) VALUES (?, ?, ?)`,
		customerID, ownerItemID, createdAt,
	)
	if err != nil {
		return rental.CartEntry{}, fmt.Errorf("カートへの追加に失敗: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return rental.CartEntry{}, fmt.Errorf("カートIDの取得に失敗: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return rental.CartEntry{}, err
	}
	return rental.CartEntry{ID: id, CustomerID: customerID, OwnerItemID: ownerItemID, CreatedAt: t}, nil
}

// GetCartEntry はカートエントリを取得する。
func (s *Store) GetCartEntry(ctx context.Context, id int64) (rental.CartEntry, error) {
	return getCartEntry(ctx, s.db, id)
}

// DeleteCartEntry は指定顧客のカートエントリを削除する。
func (s *Store) DeleteCartEntry(ctx context.Context, id, customerID int64) error {
	return deleteCartEntry(ctx, s.db, id, customerID)
}

// ListCartEntries は顧客のカートエントリをID順に返す。
func (s *Store) ListCartEntries(ctx context.Context, customerID int64) ([]rental.CartEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cart_id, customer_id, owner_item_id, created_at FROM cart WHERE customer_id = ? ORDER BY cart_id`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("カート一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []rental.CartEntry
	for rows.Next() {
		e, err := scanCartEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("カートエントリの読み取りに失敗: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// getCartEntry はトランザクション内外で共通のカートエントリ取得処理。
func getCartEntry(ctx context.Context, q queryer, id int64) (rental.CartEntry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT cart_id, customer_id, owner_item_id, created_at FROM cart WHERE cart_id = ?`, id)
	e, err := scanCartEntry(row)
	if err != nil {
		return rental.CartEntry{}, notFound(err, "カートエントリ")
	}
	return e, nil
}

// deleteCartEntry はIDと顧客IDの両方が一致する行だけを削除する。
func deleteCartEntry(ctx context.Context, q queryer, id, customerID int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM cart WHERE cart_id = ? AND customer_id = ?`, id, customerID)
	if err != nil {
		return fmt.Errorf("カートエントリの削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("カートエントリ %d: %w", id, rental.ErrNotFound)
	}
	return nil
}

// scanCartEntry は1行をカートエントリに変換する。
func scanCartEntry(r rowScanner) (rental.CartEntry, error) {
	var (
		e         rental.CartEntry
		createdAt string
	)
	if err := r.Scan(&e.ID, &e.CustomerID, &e.OwnerItemID, &createdAt); err != nil {
		return rental.CartEntry{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return rental.CartEntry{}, err
	}
	e.CreatedAt = t
	return e, nil
}
