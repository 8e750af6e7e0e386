package customer

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/pkg/apperr"
	"github.com/nao1215/rentit/pkg/logging"
)

func TestCartService_Add(t *testing.T) {
	t.Parallel()

	t.Run("顧客は貸出可能な出品をカートに追加できる", func(t *testing.T) {
		t.Parallel()
		f := setupFixture(t)
		svc := NewCartService(f.store, f.store, logging.Nop())

		entry, err := svc.Add(context.Background(), principalOf(f.customer), f.listing.ID)
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		if entry.CustomerID != f.customer.ID || entry.OwnerItemID != f.listing.ID {
			t.Errorf("entry = %+v", entry)
		}
	})

	t.Run("所有者ロールはAuthorization", func(t *testing.T) {
		t.Parallel()
		f := setupFixture(t)
		svc := NewCartService(f.store, f.store, logging.Nop())

		_, err := svc.Add(context.Background(), principalOf(f.owner), f.listing.ID)
		if got := apperr.KindOf(err); got != apperr.KindAuthorization {
			t.Errorf("KindOf() = %v, want authorization", got)
		}
	})

	t.Run("存在しない出品はNotFound", func(t *testing.T) {
		t.Parallel()
		f := setupFixture(t)
		svc := NewCartService(f.store, f.store, logging.Nop())

		_, err := svc.Add(context.Background(), principalOf(f.customer), 9999)
		if got := apperr.KindOf(err); got != apperr.KindNotFound {
			t.Errorf("KindOf() = %v, want not_found", got)
		}
		if !errors.Is(err, ErrListingNotFound) {
			t.Errorf("error = %v, want ErrListingNotFound", err)
		}
	})

	t.Run("貸出不可の出品はConflict", func(t *testing.T) {
		t.Parallel()
		f := setupFixture(t)
		svc := NewCartService(f.store, f.store, logging.Nop())

		unavailable, err := f.store.CreateListing(context.Background(), rental.Listing{
			OwnerID:    f.owner.ID,
			RentPerDay: 100,
			Status:     rental.ListingUnavailable,
		})
		if err != nil {
			t.Fatalf("CreateListing() error = %v", err)
		}

		_, err = svc.Add(context.Background(), principalOf(f.customer), unavailable.ID)
		if got := apperr.KindOf(err); got != apperr.KindConflict {
			t.Errorf("KindOf() = %v, want conflict", got)
		}
	})
}

func TestCartService_Remove(t *testing.T) {
	t.Parallel()

	t.Run("自分のカートエントリを削除できる", func(t *testing.T) {
		t.Parallel()
		f := setupFixture(t)
		svc := NewCartService(f.store, f.store, logging.Nop())
		entry := mustAddCart(t, f.store, f.customer.ID, f.listing.ID)

		if err := svc.Remove(context.Background(), principalOf(f.customer), entry.ID); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if _, err := f.store.GetCartEntry(context.Background(), entry.ID); !errors.Is(err, rental.ErrNotFound) {
			t.Errorf("GetCartEntry() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("他の顧客のエントリはAuthorizationで削除されない", func(t *testing.T) {
		t.Parallel()
		f := setupFixture(t)
		svc := NewCartService(f.store, f.store, logging.Nop())
		entry := mustAddCart(t, f.store, f.customer.ID, f.listing.ID)

		err := svc.Remove(context.Background(), principalOf(f.other), entry.ID)
		if got := apperr.KindOf(err); got != apperr.KindAuthorization {
			t.Errorf("KindOf() = %v, want authorization", got)
		}
		if _, err := f.store.GetCartEntry(context.Background(), entry.ID); err != nil {
			t.Errorf("エントリが残っていません: %v", err)
		}
	})

	t.Run("存在しないエントリはNotFound", func(t *testing.T) {
		t.Parallel()
		f := setupFixture(t)
		svc := NewCartService(f.store, f.store, logging.Nop())

		err := svc.Remove(context.Background(), principalOf(f.customer), 12345)
		if got := apperr.KindOf(err); got != apperr.KindNotFound {
			t.Errorf("KindOf() = %v, want not_found", got)
		}
	})
}

func TestCartService_ListMine(t *testing.T) {
	t.Parallel()

	f := setupFixture(t)
	svc := NewCartService(f.store, f.store, logging.Nop())
	mine := mustAddCart(t, f.store, f.customer.ID, f.listing.ID)
	mustAddCart(t, f.store, f.other.ID, f.listing.ID)

	items, err := svc.ListMine(context.Background(), principalOf(f.customer))
	if err != nil {
		t.Fatalf("ListMine() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if items[0].ID != mine.ID {
		t.Errorf("items[0].ID = %d, want %d", items[0].ID, mine.ID)
	}
	if items[0].Listing.Brand != "Canon" {
		t.Errorf("items[0].Listing.Brand = %q, want Canon", items[0].Listing.Brand)
	}
}
