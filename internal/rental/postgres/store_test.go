package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/pkg/auth"
	"github.com/nao1215/rentit/pkg/event"
	"github.com/nao1215/rentit/pkg/outbox"
)

// newTestStore は RENTIT_TEST_DATABASE_URL が設定されている場合のみストアを返す。
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("RENTIT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("RENTIT_TEST_DATABASE_URL が未設定のためスキップ")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
}

func TestPostgresStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner, err := s.CreateUser(ctx, rental.User{Role: auth.RoleOwner, Email: uniqueEmail("owner"), PasswordHash: "x"})
	if err != nil {
		t.Fatalf("CreateUser(owner) error = %v", err)
	}
	customer, err := s.CreateUser(ctx, rental.User{Role: auth.RoleCustomer, Email: uniqueEmail("customer"), PasswordHash: "x"})
	if err != nil {
		t.Fatalf("CreateUser(customer) error = %v", err)
	}
	listing, err := s.CreateListing(ctx, rental.Listing{OwnerID: owner.ID, Brand: "Canon", RentPerDay: 100, DepositAmount: 50})
	if err != nil {
		t.Fatalf("CreateListing() error = %v", err)
	}

	t.Run("重複メールアドレスはErrDuplicate", func(t *testing.T) {
		_, err := s.CreateUser(ctx, rental.User{Role: auth.RoleCustomer, Email: customer.Email, PasswordHash: "x"})
		if !errors.Is(err, rental.ErrDuplicate) {
			t.Errorf("error = %v, want ErrDuplicate", err)
		}
	})

	t.Run("同一カートの同時確定は1件だけ成功する", func(t *testing.T) {
		entry, err := s.AddCartEntry(ctx, customer.ID, listing.ID)
		if err != nil {
			t.Fatalf("AddCartEntry() error = %v", err)
		}

		const workers = 5
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			success  int
			notFound int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.RunInTx(ctx, func(tx rental.OrderTx) error {
					e, err := tx.LockCartEntry(ctx, entry.ID)
					if err != nil {
						return err
					}
					if err := tx.ConsumeCartEntry(ctx, e.ID, e.CustomerID); err != nil {
						return err
					}
					bill, err := tx.CreateBill(ctx, rental.Bill{
						CustomerID: e.CustomerID, OwnerID: owner.ID, OwnerItemID: listing.ID, CartID: e.ID, Amount: 350,
					})
					if err != nil {
						return err
					}
					start, _ := rental.ParseDate("2024-02-01")
					end, _ := rental.ParseDate("2024-02-03")
					order, err := tx.CreateOrder(ctx, rental.Order{
						BillNo: bill.BillNo, CustomerID: e.CustomerID, OwnerID: owner.ID, OwnerItemID: listing.ID,
						StartDate: start, EndDate: end,
						PaymentStatus: rental.PaymentPending, DeliveryMode: rental.DeliverySelf,
					})
					if err != nil {
						return err
					}
					ev, err := event.NewOrderPlaced(event.OrderPlacedData{OrderID: order.ID, BillNo: bill.BillNo})
					if err != nil {
						return err
					}
					msg, err := outbox.NewMessage(outbox.DefaultTopic, ev)
					if err != nil {
						return err
					}
					return tx.EnqueueOutbox(ctx, msg)
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					success++
				case errors.Is(err, rental.ErrNotFound):
					notFound++
				default:
					t.Errorf("unexpected error = %v", err)
				}
			}()
		}
		wg.Wait()

		if success != 1 || notFound != workers-1 {
			t.Errorf("success = %d, notFound = %d, want 1 and %d", success, notFound, workers-1)
		}
		bills, err := s.ListBills(ctx, rental.BillFilter{CustomerID: customer.ID})
		if err != nil {
			t.Fatalf("ListBills() error = %v", err)
		}
		if len(bills) != 1 {
			t.Errorf("len(bills) = %d, want 1", len(bills))
		}
	})

	t.Run("参照データを取得できる", func(t *testing.T) {
		roles, err := s.ListRoles(ctx)
		if err != nil {
			t.Fatalf("ListRoles() error = %v", err)
		}
		if len(roles) != 3 {
			t.Errorf("len(roles) = %d, want 3", len(roles))
		}
		cities, err := s.ListCities(ctx, 1)
		if err != nil {
			t.Fatalf("ListCities() error = %v", err)
		}
		if len(cities) == 0 {
			t.Error("cities is empty")
		}
	})
}
