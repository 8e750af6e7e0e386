// Package postgres はPostgreSQL（pgx）によるレンタルストアの実装を提供する。
//
// 注文確定ではカートエントリを SELECT ... FOR UPDATE で行ロックし、
// 消費はIDと顧客IDを条件にした削除で行う。同じカートに対する後続の確定処理は
// 行ロックの解放を待ち、行が消えていれば ErrNotFound になる。
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/pkg/auth"
	"github.com/nao1215/rentit/pkg/outbox"
)

//go:embed schema.sql
var schema string

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// Store はPostgreSQLによるレンタルストア。
type Store struct {
	// pool はコネクションプール。
	pool *pgxpool.Pool
}

var _ rental.Store = (*Store)(nil)

// Open はPostgreSQLに接続し、スキーマを作成する。
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("スキーマ作成に失敗: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping は接続を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close はコネクションプールを閉じる。
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// queryer は *pgxpool.Pool と pgx.Tx に共通する問い合わせ操作。
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// notFound は pgx.ErrNoRows を rental.ErrNotFound に変換する。
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%sが見つかりません: %w", what, rental.ErrNotFound)
	}
	return fmt.Errorf("%sの取得に失敗: %w", what, err)
}

// isUniqueViolation は一意制約違反のエラーかを返す。
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// listingColumns は出品の取得カラム。
const listingColumns = `ot_id, owner_id, item_id, brand, description, condition_type,
	rent_per_day, deposit_amt, status, max_rent_days`

// CreateListing は出品を登録する。
// 本番では出品者サービスが書き込むため、初期データの投入とテストでのみ使う。
func (s *Store) CreateListing(ctx context.Context, l rental.Listing) (rental.Listing, error) {
	if l.Status == "" {
		l.Status = rental.ListingAvailable
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO owner_items (owner_id, item_id, brand, description, condition_type,
			rent_per_day, deposit_amt, status, max_rent_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ot_id`,
		l.OwnerID, l.ItemID, l.Brand, l.Description, l.ConditionType,
		l.RentPerDay, l.DepositAmount, string(l.Status), l.MaxRentDays,
	).Scan(&l.ID)
	if err != nil {
		return rental.Listing{}, fmt.Errorf("出品の登録に失敗: %w", err)
	}
	return l, nil
}

// GetListing は出品を取得する。
func (s *Store) GetListing(ctx context.Context, id int64) (rental.Listing, error) {
	return getListing(ctx, s.pool, id)
}

// ListAvailableListings は貸出可能な出品をID順に返す。
func (s *Store) ListAvailableListings(ctx context.Context) ([]rental.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM owner_items WHERE status = $1 ORDER BY ot_id`,
		string(rental.ListingAvailable),
	)
	if err != nil {
		return nil, fmt.Errorf("出品一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	var out []rental.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("出品の読み取りに失敗: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func getListing(ctx context.Context, q queryer, id int64) (rental.Listing, error) {
	l, err := scanListing(q.QueryRow(ctx, `SELECT `+listingColumns+` FROM owner_items WHERE ot_id = $1`, id))
	if err != nil {
		return rental.Listing{}, notFound(err, "出品")
	}
	return l, nil
}

func scanListing(r pgx.Row) (rental.Listing, error) {
	var (
		l      rental.Listing
		status string
	)
	if err := r.Scan(&l.ID, &l.OwnerID, &l.ItemID, &l.Brand, &l.Description, &l.ConditionType,
		&l.RentPerDay, &l.DepositAmount, &status, &l.MaxRentDays); err != nil {
		return rental.Listing{}, err
	}
	l.Status = rental.ListingStatus(status)
	return l, nil
}

// AddCartEntry はカートエントリを作成する。
func (s *Store) AddCartEntry(ctx context.Context, customerID, ownerItemID int64) (rental.CartEntry, error) {
	e := rental.CartEntry{CustomerID: customerID, OwnerItemID: ownerItemID}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cart (customer_id, owner_item_id) VALUES ($1, $2) RETURNING cart_id, created_at`,
		customerID, ownerItemID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return rental.CartEntry{}, fmt.Errorf("カートへの追加に失敗: %w", err)
	}
	return e, nil
}

// GetCartEntry はカートエントリを取得する。
func (s *Store) GetCartEntry(ctx context.Context, id int64) (rental.CartEntry, error) {
	return getCartEntry(ctx, s.pool, id, false)
}

// DeleteCartEntry は指定顧客のカートエントリを削除する。
func (s *Store) DeleteCartEntry(ctx context.Context, id, customerID int64) error {
	return deleteCartEntry(ctx, s.pool, id, customerID)
}

// ListCartEntries は顧客のカートエントリをID順に返す。
func (s *Store) ListCartEntries(ctx context.Context, customerID int64) ([]rental.CartEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cart_id, customer_id, owner_item_id, created_at FROM cart WHERE customer_id = $1 ORDER BY cart_id`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("カート一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	var out []rental.CartEntry
	for rows.Next() {
		var e rental.CartEntry
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.OwnerItemID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("カートエントリの読み取りに失敗: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// getCartEntry はカートエントリを取得する。forUpdateが真の場合は行ロックを取る。
func getCartEntry(ctx context.Context, q queryer, id int64, forUpdate bool) (rental.CartEntry, error) {
	query := `SELECT cart_id, customer_id, owner_item_id, created_at FROM cart WHERE cart_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var e rental.CartEntry
	if err := q.QueryRow(ctx, query, id).Scan(&e.ID, &e.CustomerID, &e.OwnerItemID, &e.CreatedAt); err != nil {
		return rental.CartEntry{}, notFound(err, "カートエントリ")
	}
	return e, nil
}

// deleteCartEntry はIDと顧客IDの両方が一致する行だけを削除する。
func deleteCartEntry(ctx context.Context, q queryer, id, customerID int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM cart WHERE cart_id = $1 AND customer_id = $2`, id, customerID)
	if err != nil {
		return fmt.Errorf("カートエントリの削除に失敗: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("カートエントリ %d: %w", id, rental.ErrNotFound)
	}
	return nil
}

// RunInTx はfnを1つのトランザクション（READ COMMITTED）で実行する。
func (s *Store) RunInTx(ctx context.Context, fn func(tx rental.OrderTx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if err := fn(&orderTx{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return nil
}

// orderTx はpgxトランザクション上の rental.OrderTx 実装。
type orderTx struct {
	tx pgx.Tx
}

// LockCartEntry はカートエントリを行ロック付きで取得する。
func (t *orderTx) LockCartEntry(ctx context.Context, cartID int64) (rental.CartEntry, error) {
	return getCartEntry(ctx, t.tx, cartID, true)
}

// GetListing は出品を取得する。
func (t *orderTx) GetListing(ctx context.Context, id int64) (rental.Listing, error) {
	return getListing(ctx, t.tx, id)
}

// GetUser は利用者を取得する。
func (t *orderTx) GetUser(ctx context.Context, id int64) (rental.User, error) {
	return getUser(ctx, t.tx, `user_id = $1`, id)
}

// ConsumeCartEntry はカートエントリを消費する。
func (t *orderTx) ConsumeCartEntry(ctx context.Context, cartID, customerID int64) error {
	return deleteCartEntry(ctx, t.tx, cartID, customerID)
}

// CreateBill は請求を作成する。
func (t *orderTx) CreateBill(ctx context.Context, b rental.Bill) (rental.Bill, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bill (customer_id, owner_id, owner_item_id, cart_id, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING bill_no, created_at`,
		b.CustomerID, b.OwnerID, b.OwnerItemID, b.CartID, b.Amount,
	).Scan(&b.BillNo, &b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return rental.Bill{}, fmt.Errorf("カートエントリ %d の請求: %w", b.CartID, rental.ErrDuplicate)
		}
		return rental.Bill{}, fmt.Errorf("請求の作成に失敗: %w", err)
	}
	return b, nil
}

// CreateOrder は注文を作成する。
func (t *orderTx) CreateOrder(ctx context.Context, o rental.Order) (rental.Order, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO order_table (bill_no, customer_id, owner_id, owner_item_id,
			start_date, end_date, payment_status, delivery_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING order_id, created_at`,
		o.BillNo, o.CustomerID, o.OwnerID, o.OwnerItemID,
		o.StartDate, o.EndDate, string(o.PaymentStatus), string(o.DeliveryMode),
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return rental.Order{}, fmt.Errorf("注文の作成に失敗: %w", err)
	}
	return o, nil
}

// EnqueueOutbox はアウトボックスにメッセージを書き込む。
func (t *orderTx) EnqueueOutbox(ctx context.Context, m outbox.Message) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO outbox (event_id, topic, msg_key, payload) VALUES ($1, $2, $3, $4)`,
		m.EventID, m.Topic, m.Key, string(m.Payload),
	)
	if err != nil {
		return fmt.Errorf("アウトボックスへの書き込みに失敗: %w", err)
	}
	return nil
}

// ListOrdersByCustomer は顧客の注文をID順に返す。
func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]rental.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, bill_no, customer_id, owner_id, owner_item_id,
			start_date, end_date, payment_status, delivery_mode, created_at
		FROM order_table WHERE customer_id = $1 ORDER BY order_id`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	var out []rental.Order
	for rows.Next() {
		var (
			o         rental.Order
			pay, mode string
		)
		if err := rows.Scan(&o.ID, &o.BillNo, &o.CustomerID, &o.OwnerID, &o.OwnerItemID,
			&o.StartDate, &o.EndDate, &pay, &mode, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("注文の読み取りに失敗: %w", err)
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
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("b.customer_id = $%d", len(args)))
	}
	if filter.OwnerID != 0 {
		args = append(args, filter.OwnerID)
		where = append(where, fmt.Sprintf("b.owner_id = $%d", len(args)))
	}
	if filter.BillNo != 0 {
		args = append(args, filter.BillNo)
		where = append(where, fmt.Sprintf("b.bill_no = $%d", len(args)))
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

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("請求一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	var out []rental.BillDetail
	for rows.Next() {
		var d rental.BillDetail
		if err := rows.Scan(&d.BillNo, &d.CustomerID, &d.OwnerID, &d.OwnerItemID, &d.CartID, &d.Amount, &d.CreatedAt,
			&d.OrderID, &d.StartDate, &d.EndDate,
			&d.ItemBrand, &d.ItemDesc, &d.RentPerDay, &d.DepositAmount); err != nil {
			return nil, fmt.Errorf("請求の読み取りに失敗: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// userColumns は利用者の取得カラム。
const userColumns = `user_id, role, first_name, last_name, email, password_hash,
	phone_no, address, state_id, city_id, status, created_at`

// CreateUser は利用者を登録する。メールアドレスは小文字に揃えて保存する。
func (s *Store) CreateUser(ctx context.Context, u rental.User) (rental.User, error) {
	if u.Status == "" {
		u.Status = rental.UserActive
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (role, first_name, last_name, email, password_hash,
			phone_no, address, state_id, city_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING user_id, created_at`,
		string(u.Role), u.FirstName, u.LastName, u.Email, u.PasswordHash,
		u.PhoneNo, u.Address, u.StateID, u.CityID, string(u.Status),
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return rental.User{}, fmt.Errorf("メールアドレス %q: %w", u.Email, rental.ErrDuplicate)
		}
		return rental.User{}, fmt.Errorf("利用者の登録に失敗: %w", err)
	}
	return u, nil
}

// GetUser は利用者を取得する。
func (s *Store) GetUser(ctx context.Context, id int64) (rental.User, error) {
	return getUser(ctx, s.pool, `user_id = $1`, id)
}

// GetUserByEmail はメールアドレスで利用者を取得する。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (rental.User, error) {
	return getUser(ctx, s.pool, `email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

// ListUsers は全利用者をID順に返す。
func (s *Store) ListUsers(ctx context.Context) ([]rental.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("利用者一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	var out []rental.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("利用者の読み取りに失敗: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func getUser(ctx context.Context, q queryer, cond string, arg any) (rental.User, error) {
	u, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+cond, arg))
	if err != nil {
		return rental.User{}, notFound(err, "利用者")
	}
	return u, nil
}

func scanUser(r pgx.Row) (rental.User, error) {
	var (
		u            rental.User
		role, status string
	)
	if err := r.Scan(&u.ID, &role, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
		&u.PhoneNo, &u.Address, &u.StateID, &u.CityID, &status, &u.CreatedAt); err != nil {
		return rental.User{}, err
	}
	u.Role = auth.Role(role)
	u.Status = rental.UserStatus(status)
	return u, nil
}

// ListStates は州をID順に返す。
func (s *Store) ListStates(ctx context.Context) ([]rental.State, error) {
	rows, err := s.pool.Query(ctx, `SELECT state_id, state_name FROM states ORDER BY state_id`)
	if err != nil {
		return nil, fmt.Errorf("州一覧の取得に失敗: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (rental.State, error) {
		var st rental.State
		err := r.Scan(&st.ID, &st.Name)
		return st, err
	})
}

// ListCities は州に属する市区町村をID順に返す。
func (s *Store) ListCities(ctx context.Context, stateID int64) ([]rental.City, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT city_id, state_id, city_name FROM cities WHERE state_id = $1 ORDER BY city_id`, stateID)
	if err != nil {
		return nil, fmt.Errorf("市区町村一覧の取得に失敗: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (rental.City, error) {
		var c rental.City
		err := r.Scan(&c.ID, &c.StateID, &c.Name)
		return c, err
	})
}

// ListRoles はロールをID順に返す。
func (s *Store) ListRoles(ctx context.Context) ([]rental.RoleInfo, error) {
	rows, err := s.pool.Query(ctx, `SELECT role_id, role_name FROM roles ORDER BY role_id`)
	if err != nil {
		return nil, fmt.Errorf("ロール一覧の取得に失敗: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (rental.RoleInfo, error) {
		var (
			ri   rental.RoleInfo
			name string
		)
		err := r.Scan(&ri.ID, &name)
		ri.Name = auth.Role(name)
		return ri, err
	})
}

// FetchPending は未配信メッセージをID順に最大limit件返す。
func (s *Store) FetchPending(ctx context.Context, limit int) ([]outbox.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, topic, msg_key, payload, created_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("未配信メッセージの取得に失敗: %w", err)
	}
	defer rows.Close()

	var out []outbox.Message
	for rows.Next() {
		var m outbox.Message
		if err := rows.Scan(&m.ID, &m.EventID, &m.Topic, &m.Key, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("メッセージの読み取りに失敗: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkSent はメッセージを送信済みにする。
func (s *Store) MarkSent(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET sent_at = $1 WHERE id = $2 AND sent_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("送信済みの記録に失敗: %w", err)
	}
	return nil
}
