package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/pkg/apperr"
	"github.com/nao1215/rentit/pkg/auth"
)

// CartItem は出品情報を添えたカートエントリ。
type CartItem struct {
	rental.CartEntry
	// Listing はカートが参照する出品。
	Listing rental.Listing `json:"listing"`
}

// CartService は顧客のカート操作を行う。
type CartService struct {
	// carts はカートの永続化先。
	carts rental.CartStore
	// listings は出品の参照先。
	listings rental.ListingStore
	// logger はカート操作を記録するロガー。
	logger zerolog.Logger
}

// NewCartService は新しいカートサービスを生成する。
func NewCartService(carts rental.CartStore, listings rental.ListingStore, logger zerolog.Logger) *CartService {
	return &CartService{carts: carts, listings: listings, logger: logger}
}

// Add は出品を利用者のカートに追加する。
// 顧客ロール以外は Authorization、出品が無ければ NotFound、
// 貸出可能でなければ Conflict を返す。
func (s *CartService) Add(ctx context.Context, p auth.Principal, ownerItemID int64) (rental.CartEntry, error) {
	if !p.HasRole(auth.RoleCustomer) {
		return rental.CartEntry{}, apperr.Wrap(apperr.KindAuthorization, ErrRoleRequired, "顧客のみカートに追加できます")
	}
	if ownerItemID <= 0 {
		return rental.CartEntry{}, apperr.New(apperr.KindValidation, "ownerItemIdを指定してください")
	}

	listing, err := s.listings.GetListing(ctx, ownerItemID)
	if err != nil {
		if errors.Is(err, rental.ErrNotFound) {
			return rental.CartEntry{}, apperr.Wrap(apperr.KindNotFound, ErrListingNotFound, "出品が見つかりません")
		}
		return rental.CartEntry{}, apperr.Wrap(apperr.KindInternal, err, "出品の取得に失敗しました")
	}
	if listing.Status != rental.ListingAvailable {
		return rental.CartEntry{}, apperr.Wrap(apperr.KindConflict, ErrListingUnavailable, "この出品は現在レンタルできません")
	}

	entry, err := s.carts.AddCartEntry(ctx, p.UserID, ownerItemID)
	if err != nil {
		return rental.CartEntry{}, apperr.Wrap(apperr.KindInternal, err, "カートへの追加に失敗しました")
	}
	s.logger.Info().
		Int64("cart_id", entry.ID).
		Int64("customer_id", p.UserID).
		Int64("owner_item_id", ownerItemID).
		Msg("カートに追加しました")
	return entry, nil
}

// Remove は利用者のカートエントリを削除する。
// 存在しなければ NotFound、他の顧客のエントリであれば Authorization を返し、エントリは残る。
func (s *CartService) Remove(ctx context.Context, p auth.Principal, cartID int64) error {
	if !p.HasRole(auth.RoleCustomer) {
		return apperr.Wrap(apperr.KindAuthorization, ErrRoleRequired, "顧客のみカートを操作できます")
	}

	entry, err := s.carts.GetCartEntry(ctx, cartID)
	if err != nil {
		if errors.Is(err, rental.ErrNotFound) {
			return apperr.Wrap(apperr.KindNotFound, ErrCartNotFound, "カートエントリが見つかりません")
		}
		return apperr.Wrap(apperr.KindInternal, err, "カートエントリの取得に失敗しました")
	}
	if entry.CustomerID != p.UserID {
		s.logger.Warn().
			Int64("cart_id", cartID).
			Int64("customer_id", p.UserID).
			Msg("他の顧客のカートエントリは削除できません")
		return apperr.Wrap(apperr.KindAuthorization, ErrOwnershipViolation, "このカートエントリは削除できません")
	}

	// 取得から削除までの間に注文確定で消費された場合も NotFound とする
	if err := s.carts.DeleteCartEntry(ctx, cartID, p.UserID); err != nil {
		if errors.Is(err, rental.ErrNotFound) {
			return apperr.Wrap(apperr.KindNotFound, ErrCartNotFound, "カートエントリが見つかりません")
		}
		return apperr.Wrap(apperr.KindInternal, err, "カートエントリの削除に失敗しました")
	}
	s.logger.Info().Int64("cart_id", cartID).Int64("customer_id", p.UserID).Msg("カートから削除しました")
	return nil
}

// ListMine は利用者自身のカートエントリを出品情報付きで返す。
func (s *CartService) ListMine(ctx context.Context, p auth.Principal) ([]CartItem, error) {
	entries, err := s.carts.ListCartEntries(ctx, p.UserID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "カート一覧の取得に失敗しました")
	}

	items := make([]CartItem, 0, len(entries))
	for _, e := range entries {
		listing, err := s.listings.GetListing(ctx, e.OwnerItemID)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal,
				fmt.Errorf("カートエントリ %d の出品 %d: %w", e.ID, e.OwnerItemID, err),
				"カート一覧の取得に失敗しました")
		}
		items = append(items, CartItem{CartEntry: e, Listing: listing})
	}
	return items, nil
}
