// Package sqlite はSQLite（modernc.org/sqlite）によるレンタルストアの実装を提供する。
//
// 全てのトランザクションは BEGIN IMMEDIATE で開始するため、書き込みトランザクションは
// データベース単位で直列化される。注文確定では後続の処理が先行のコミットを待ってから
// カートエントリを読み直すことになり、同じカートから2件の注文が作られることはない。
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout は日時カラムの文字列表現。
const timeLayout = time.RFC3339Nano

// Store はSQLiteによるレンタルストア。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// now は現在時刻を返す。テスト時に差し替える。
	now func() time.Time
}

var _ rental.Store = (*Store)(nil)

// DSN はファイルパスからmodernc.org/sqlite用の接続文字列を組み立てる。
// ビジー待ち、外部キー、WAL、即時ロックのトランザクションを有効にする。
func DSN(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(10000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

// Open はSQLiteデータベースを開き、マイグレーションを適用する。
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	if err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Ping は接続を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// timestamp は現在時刻をカラム用の文字列で返す。
func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// queryer は *sql.DB と *sql.Tx に共通する問い合わせ操作。
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner は *sql.Row と *sql.Rows に共通する読み取り操作。
type rowScanner interface {
	Scan(dest ...any) error
}

// notFound は sql.ErrNoRows を rental.ErrNotFound に変換する。
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%sが見つかりません: %w", what, rental.ErrNotFound)
	}
	return fmt.Errorf("%sの取得に失敗: %w", what, err)
}

// isUniqueViolation は一意制約違反のエラーかを返す。
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// parseTime はカラムの日時文字列を解釈する。
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日時の解釈に失敗: %w", err)
	}
	return t, nil
}
