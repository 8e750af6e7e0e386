package customer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/internal/rental/sqlite"
	"github.com/nao1215/rentit/pkg/auth"
	"github.com/nao1215/rentit/pkg/logging"
	"github.com/nao1215/rentit/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fixture はテスト用の利用者と出品。
type fixture struct {
	store    *sqlite.Store
	owner    rental.User
	customer rental.User
	other    rental.User
	listing  rental.Listing
}

// setupFixture は一時ディレクトリのSQLiteに所有者・顧客2名・出品1件を登録する。
// 出品は日額100、保証金50。
func setupFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "customer.db"), logging.Nop())
	if err != nil {
		t.Fatalf("テスト用DBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store}
	f.owner = mustCreateUser(t, store, "owner@example.com", auth.RoleOwner)
	f.customer = mustCreateUser(t, store, "customer@example.com", auth.RoleCustomer)
	f.other = mustCreateUser(t, store, "other@example.com", auth.RoleCustomer)

	f.listing, err = store.CreateListing(ctx, rental.Listing{
		OwnerID:       f.owner.ID,
		Brand:         "Canon",
		Description:   "EOS R6",
		RentPerDay:    100,
		DepositAmount: 50,
	})
	if err != nil {
		t.Fatalf("テスト用出品の作成に失敗: %v", err)
	}
	return f
}

func mustCreateUser(t *testing.T, store *sqlite.Store, email string, role auth.Role) rental.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), rental.User{
		Role:         role,
		FirstName:    "Test",
		Email:        email,
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("テスト用利用者の作成に失敗: %v", err)
	}
	return u
}

func mustAddCart(t *testing.T, store *sqlite.Store, customerID, ownerItemID int64) rental.CartEntry {
	t.Helper()
	e, err := store.AddCartEntry(context.Background(), customerID, ownerItemID)
	if err != nil {
		t.Fatalf("テスト用カートエントリの作成に失敗: %v", err)
	}
	return e
}

// principalOf は利用者のPrincipalを返す。
func principalOf(u rental.User) auth.Principal {
	return auth.Principal{UserID: u.ID, Role: u.Role}
}

// newWorkflow はテスト用の注文ワークフローを生成する。
func newWorkflow(store rental.OrderStore) (*OrderWorkflow, *metrics.Registry) {
	reg := metrics.New(serviceName)
	return NewOrderWorkflow(store, OrderConfig{}, reg, logging.Nop()), reg
}

// mustDate はYYYY-MM-DDを日付に変換する。
func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := rental.ParseDate(s)
	if err != nil {
		t.Fatalf("日付の変換に失敗: %v", err)
	}
	return v
}
