package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/pkg/outbox"
)

// RunInTx はfnを1つのトランザクションで実行する。
// 接続文字列の _txlock=immediate により開始時点で書き込みロックを取得するため、
// 同時に実行された確定処理は先行のコミットまたはロールバックを待つ。
func (s *Store) RunInTx(ctx context.Context, fn func(tx rental.OrderTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck

	if err := fn(&orderTx{tx: sqlTx, store: s}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return nil
}

// orderTx はSQLiteトランザクション上の rental.OrderTx 実装。
type orderTx struct {
	tx    *sql.Tx
	store *Store
}

// LockCartEntry はカートエントリを取得する。
// トランザクションが書き込みロックを保持しているため、追加のロック句は不要。
func (t *orderTx) LockCartEntry(ctx context.Context, cartID int64) (rental.CartEntry, error) {
	return getCartEntry(ctx, t.tx, cartID)
}

// GetListing は出品を取得する。
func (t *orderTx) GetListing(ctx context.Context, id int64) (rental.Listing, error) {
	return getListing(ctx, t.tx, id)
}

// GetUser は利用者を取得する。
func (t *orderTx) GetUser(ctx context.Context, id int64) (rental.User, error) {
	return getUser(ctx, t.tx, `user_id = ?`, id)
}

// ConsumeCartEntry はカートエントリを消費する。
func (t *orderTx) ConsumeCartEntry(ctx context.Context, cartID, customerID int64) error {
	return deleteCartEntry(ctx, t.tx, cartID, customerID)
}

// CreateBill は請求を作成する。
func (t *orderTx) CreateBill(ctx context.Context, b rental.Bill) (rental.Bill, error) {
	createdAt := t.store.timestamp()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO bill (customer_id, owner_id, owner_item_id, cart_id, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.CustomerID, b.OwnerID, b.OwnerItemID, b.CartID, b.Amount, createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rental.Bill{}, fmt.Errorf("カートエントリ %d の請求: %w", b.CartID, rental.ErrDuplicate)
		}
		return rental.Bill{}, fmt.Errorf("請求の作成に失敗: %w", err)
	}
	if b.BillNo, err = res.LastInsertId(); err != nil {
		return rental.Bill{}, fmt.Errorf("請求番号の取得に失敗: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return rental.Bill{}, err
	}
	return b, nil
}

// CreateOrder は注文を作成する。
func (t *orderTx) CreateOrder(ctx context.Context, o rental.Order) (rental.Order, error) {
	createdAt := t.store.timestamp()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_table (bill_no, customer_id, owner_id, owner_item_id,
			start_date, end_date, payment_status, delivery_mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.BillNo, o.CustomerID, o.OwnerID, o.OwnerItemID,
		rental.FormatDate(o.StartDate), rental.FormatDate(o.EndDate),
		string(o.PaymentStatus), string(o.DeliveryMode), createdAt,
	)
	if err != nil {
		return rental.Order{}, fmt.Errorf("注文の作成に失敗: %w", err)
	}
	if o.ID, err = res.LastInsertId(); err != nil {
		return rental.Order{}, fmt.Errorf("注文IDの取得に失敗: %w", err)
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return rental.Order{}, err
	}
	return o, nil
}

// EnqueueOutbox はアウトボックスにメッセージを書き込む。
func (t *orderTx) EnqueueOutbox(ctx context.Context, m outbox.Message) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox (event_id, topic, msg_key, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.EventID, m.Topic, m.Key, string(m.Payload), t.store.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("アウトボックスへの書き込みに失敗: %w", err)
	}
	return nil
}

// ListOrdersByCustomer は顧客の注文をID順に返す。
func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]rental.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, bill_no, customer_id, owner_id, owner_item_id,
			start_date, end_date, payment_status, delivery_mode, created_at
		FROM order_table WHERE customer_id = ? ORDER BY order_id`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []rental.Order
	for rows.Next() {
		var (
			o                          rental.Order
			start, end, pay, mode, cat string
		)
		if err := rows.Scan(&o.ID, &o.BillNo, &o.CustomerID, &o.OwnerID, &o.OwnerItemID,
			&start, &end, &pay, &mode, &cat); err != nil {
			return nil, fmt.Errorf("注文の読み取りに失敗: %w", err)
		}
		if o.StartDate, err = rental.ParseDate(start); err != nil {
			return nil, err
		}
		if o.EndDate, err = rental.ParseDate(end); err != nil {
			return nil, err
		}
		if o.CreatedAt, err = parseTime(cat); err != nil {
			return nil, err
		}
		o.PaymentStatus = rental.PaymentStatus(pay)
		o.DeliveryMode = rental.DeliveryMode(mode)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListBills は条件に合う請求を請求番号順に返す。
func (s *Store) ListBills(ctx context.Context, filter rental.BillFilter) ([]rental.BillDetail, error) {
	var (
		where []string
		args  []any
	)
	if filter.CustomerID != 0 {
		where = append(where, "b.customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.OwnerID != 0 {
		where = append(where, "b.owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.BillNo != 0 {
		where = append(where, "b.bill_no = ?")
		args = append(args, filter.BillNo)
	}
	query := `
		SELECT b.bill_no, b.customer_id, b.owner_id, b.owner_item_id, b.cart_id, b.amount, b.created_at,
			o.order_id, o.start_date, o.end_date,
			i.brand, i.description, i.rent_per_day, i.deposit_amt
		FROM bill b
		JOIN order_table o ON o.bill_no = b.bill_no
		JOIN owner_items i ON i.ot_id = b.owner_item_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY b.bill_no"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("請求一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []rental.BillDetail
	for rows.Next() {
		var (
			d               rental.BillDetail
			cat, start, end string
		)
		if err := rows.Scan(&d.BillNo, &d.CustomerID, &d.OwnerID, &d.OwnerItemID, &d.CartID, &d.Amount, &cat,
			&d.OrderID, &start, &end,
			&d.ItemBrand, &d.ItemDesc, &d.RentPerDay, &d.DepositAmount); err != nil {
			return nil, fmt.Errorf("請求の読み取りに失敗: %w", err)
		}
		if d.CreatedAt, err = parseTime(cat); err != nil {
			return nil, err
		}
		if d.StartDate, err = rental.ParseDate(start); err != nil {
			return nil, err
		}
		if d.EndDate, err = rental.ParseDate(end); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
