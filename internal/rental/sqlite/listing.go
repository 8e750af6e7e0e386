package sqlite

import (
	"context"
	"fmt"

	"github.com/nao1215/rentit/internal/rental"
)

// listingColumns は出品の取得カラム。
const listingColumns = `ot_id, owner_id, item_id, brand, description, condition_type,
	rent_per_day, deposit_amt, status, max_rent_days`

// CreateListing は出品を登録する。
// 本番では出品者サービスが書き込むため、初期データの投入とテストでのみ使う。
func (s *Store) CreateListing(ctx context.Context, l rental.Listing) (rental.Listing, error) {
	if l.Status == "" {
		l.Status = rental.ListingAvailable
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO owner_items (owner_id, item_id, brand, description, condition_type,
			rent_per_day, deposit_amt, status, max_rent_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.OwnerID, l.ItemID, l.Brand, l.Description, l.ConditionType,
		l.RentPerDay, l.DepositAmount, string(l.Status), l.MaxRentDays,
	)
	if err != nil {
		return rental.Listing{}, fmt.Errorf("出品の登録に失敗: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return rental.Listing{}, fmt.Errorf("出品IDの取得に失敗: %w", err)
	}
	l.ID = id
	return l, nil
}

// GetListing は出品を取得する。
func (s *Store) GetListing(ctx context.Context, id int64) (rental.Listing, error) {
	return getListing(ctx, s.db, id)
}

// ListAvailableListings は貸出可能な出品をID順に返す。
func (s *Store) ListAvailableListings(ctx context.Context) ([]rental.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM owner_items WHERE status = ? ORDER BY ot_id`,
		string(rental.ListingAvailable),
	)
	if err != nil {
		return nil, fmt.Errorf("出品一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// getListing はトランザクション内外で共通の出品取得処理。
func getListing(ctx context.Context, q queryer, id int64) (rental.Listing, error) {
	row := q.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM owner_items WHERE ot_id = ?`, id)
	l, err := scanListing(row)
	if err != nil {
		return rental.Listing{}, notFound(err, "出品")
	}
	return l, nil
}

// scanListing は1行を出品に変換する。
func scanListing(r rowScanner) (rental.Listing, error) {
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
