// Package migration は埋め込みSQLファイルによるスキーマの版管理を提供する。
//
// ファイル名は 000001_description.up.sql の形式とし、先頭の番号を版として扱う。
// 適用した版と名前は schema_migrations テーブルに記録し、次回以降は未適用の版だけを実行する。
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// upSuffix は適用用ファイルの拡張子。
const upSuffix = ".up.sql"

// Migration は1つの版のスキーマ変更。
type Migration struct {
	// Version は版番号。
	Version int
	// Name はファイル名の説明部分。
	Name string
	// SQL は実行する文。
	SQL string
}

// Load はディレクトリから適用用ファイルを読み込み、版の昇順に返す。
// 命名規則に合わないファイルは無視し、同じ版が2つあればエラーにする。
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションディレクトリの読み込みに失敗: %w", err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, upSuffix) {
			continue
		}
		prefix, rest, ok := strings.Cut(strings.TrimSuffix(name, upSuffix), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("版 %d が重複しています: %s, %s", version, prev, name)
		}
		seen[version] = name

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s の読み込みに失敗: %w", name, err)
		}
		out = append(out, Migration{Version: version, Name: rest, SQL: string(body)})
	}

	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

// Run はディレクトリの未適用の版を昇順に適用する。各版は個別のトランザクションで実行する。
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, logger zerolog.Logger) error {
	migrations, err := Load(fsys, dir)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("マイグレーション %06d_%s の適用に失敗: %w", m.Version, m.Name, err)
		}
		logger.Info().Int("version", m.Version).Str("name", m.Name).Msg("マイグレーションを適用しました")
	}
	return nil
}

// currentVersion は適用済みの最大の版を返す。未適用なら0。
func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("適用済みの版の取得に失敗: %w", err)
	}
	return int(v.Int64), nil
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Name, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("版の記録に失敗: %w", err)
	}
	return tx.Commit()
}
