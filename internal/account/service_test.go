package account

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/internal/rental/sqlite"
	"github.com/nao1215/rentit/pkg/apperr"
	"github.com/nao1215/rentit/pkg/auth"
	"github.com/nao1215/rentit/pkg/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWTシークレット。
const testSecret = "account-test-secret"

// newTestStore は一時ディレクトリのSQLiteストアを返す。
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "account.db"), logging.Nop())
	if err != nil {
		t.Fatalf("テスト用DBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// newTestService はテスト用のアカウントサービスを返す。
func newTestService(t *testing.T) (*Service, *sqlite.Store, *auth.TokenService) {
	t.Helper()
	store := newTestStore(t)
	tokens, err := auth.NewTokenService(auth.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("TokenServiceの生成に失敗: %v", err)
	}
	return NewService(store, tokens, bcrypt.MinCost, logging.Nop()), store, tokens
}

func TestService_Register(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       RegisterInput
		wantKind apperr.Kind
		wantErr  error
		wantRole auth.Role
	}{
		{
			name:     "ロール名で顧客を登録できる",
			in:       RegisterInput{FirstName: "Asha", Email: "asha@example.com", Password: "password1", Role: "customer"},
			wantRole: auth.RoleCustomer,
		},
		{
			name:     "ロールIDで所有者を登録できる",
			in:       RegisterInput{FirstName: "Ravi", Email: "ravi@example.com", Password: "password1", RoleID: 2, StateID: 1, CityID: 2},
			wantRole: auth.RoleOwner,
		},
		{
			name:     "管理者は自己登録できない",
			in:       RegisterInput{FirstName: "Root", Email: "root@example.com", Password: "password1", Role: "ROLE_ADMIN"},
			wantKind: apperr.KindValidation,
			wantErr:  ErrRoleNotAllowed,
		},
		{
			name:     "短いパスワードは拒否する",
			in:       RegisterInput{FirstName: "Short", Email: "short@example.com", Password: "abc", Role: "CUSTOMER"},
			wantKind: apperr.KindValidation,
		},
		{
			name:     "州に属さない市区町村は拒否する",
			in:       RegisterInput{FirstName: "Mis", Email: "mis@example.com", Password: "password1", Role: "OWNER", StateID: 1, CityID: 4},
			wantKind: apperr.KindValidation,
		},
		{
			name:     "不明なロールは拒否する",
			in:       RegisterInput{FirstName: "X", Email: "x@example.com", Password: "password1", Role: "GUEST"},
			wantKind: apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, _, _ := newTestService(t)

			u, err := svc.Register(context.Background(), tt.in)
			if tt.wantRole == "" {
				if got := apperr.KindOf(err); err == nil || got != tt.wantKind {
					t.Fatalf("error = %v, want kind %v", err, tt.wantKind)
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Register() error = %v", err)
			}
			if u.Role != tt.wantRole || u.Status != rental.UserActive {
				t.Errorf("user = %+v", u)
			}
			if u.PasswordHash == tt.in.Password {
				t.Error("パスワードが平文で保存されています")
			}
		})
	}

	t.Run("重複したメールアドレスはConflict", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		in := RegisterInput{FirstName: "Dup", Email: "dup@example.com", Password: "password1", Role: "CUSTOMER"}

		if _, err := svc.Register(context.Background(), in); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		in.Email = "DUP@example.com"
		_, err := svc.Register(context.Background(), in)
		if apperr.KindOf(err) != apperr.KindConflict || !errors.Is(err, ErrEmailTaken) {
			t.Errorf("error = %v, want ErrEmailTaken (conflict)", err)
		}
	})
}

func TestService_Login(t *testing.T) {
	t.Parallel()

	svc, store, tokens := newTestService(t)
	ctx := context.Background()
	registered, err := svc.Register(ctx, RegisterInput{FirstName: "Login", Email: "login@example.com", Password: "correct-horse", Role: "OWNER"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	t.Run("正しい資格情報でトークンを発行する", func(t *testing.T) {
		t.Parallel()
		res, err := svc.Login(ctx, "Login@Example.com", "correct-horse")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		p, err := tokens.Verify(res.Token)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if p.UserID != registered.ID || p.Role != auth.RoleOwner {
			t.Errorf("principal = %+v", p)
		}
	})

	t.Run("パスワード違いはAuthentication", func(t *testing.T) {
		t.Parallel()
		_, err := svc.Login(ctx, "login@example.com", "wrong-password")
		if apperr.KindOf(err) != apperr.KindAuthentication {
			t.Errorf("error = %v, want authentication", err)
		}
	})

	t.Run("未登録のメールアドレスもAuthentication", func(t *testing.T) {
		t.Parallel()
		_, err := svc.Login(ctx, "nobody@example.com", "correct-horse")
		if apperr.KindOf(err) != apperr.KindAuthentication {
			t.Errorf("error = %v, want authentication", err)
		}
	})

	t.Run("無効なアカウントはAuthorization", func(t *testing.T) {
		t.Parallel()
		hash, err := bcrypt.GenerateFromPassword([]byte("blocked-pass"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("GenerateFromPassword() error = %v", err)
		}
		if _, err := store.CreateUser(ctx, rental.User{
			Role:         auth.RoleCustomer,
			Email:        "blocked@example.com",
			PasswordHash: string(hash),
			Status:       rental.UserBlocked,
		}); err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}

		_, err = svc.Login(ctx, "blocked@example.com", "blocked-pass")
		if apperr.KindOf(err) != apperr.KindAuthorization || !errors.Is(err, ErrAccountInactive) {
			t.Errorf("error = %v, want ErrAccountInactive (authorization)", err)
		}
	})
}

func TestService_EnsureAdmin(t *testing.T) {
	t.Parallel()

	svc, store, _ := newTestService(t)
	ctx := context.Background()

	for range 2 {
		if err := svc.EnsureAdmin(ctx, "admin@example.com", "admin-password"); err != nil {
			t.Fatalf("EnsureAdmin() error = %v", err)
		}
	}
	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 1 || users[0].Role != auth.RoleAdmin {
		t.Errorf("users = %+v", users)
	}

	if _, err := svc.ListUsers(ctx, auth.Principal{UserID: users[0].ID, Role: auth.RoleCustomer}); apperr.KindOf(err) != apperr.KindAuthorization {
		t.Errorf("顧客の ListUsers() error = %v, want authorization", err)
	}
}
