package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/pkg/apperr"
	"github.com/nao1215/rentit/pkg/auth"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

var (
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しないことを表す。
	ErrInvalidCredentials = errors.New("メールアドレスまたはパスワードが正しくありません")
	// ErrAccountInactive はアカウントが有効ではないことを表す。
	ErrAccountInactive = errors.New("アカウントが有効ではありません")
	// ErrRoleNotAllowed は自己登録できないロールであることを表す。
	ErrRoleNotAllowed = errors.New("このロールでは登録できません")
	// ErrEmailTaken はメールアドレスが既に使われていることを表す。
	ErrEmailTaken = errors.New("メールアドレスは既に登録されています")
)

// RegisterInput は利用者登録の入力。
type RegisterInput struct {
	// FirstName は名。
	FirstName string
	// LastName は姓。
	LastName string
	// Email はメールアドレス。
	Email string
	// Password は平文のパスワード。
	Password string
	// PhoneNo は電話番号。
	PhoneNo string
	// Address は住所。
	Address string
	// StateID は州ID。0は未指定。
	StateID int64
	// CityID は市区町村ID。0は未指定。
	CityID int64
	// Role はロール名。空の場合はRoleIDで解決する。
	Role string
	// RoleID はロールID。
	RoleID int64
}

// LoginResult はログイン結果。
type LoginResult struct {
	// Token は発行したトークン。
	Token string `json:"token"`
	// User はログインした利用者。
	User rental.User `json:"user"`
}

// Service はアカウント操作を行う。
type Service struct {
	// users は利用者の永続化先。
	users rental.UserStore
	// tokens はトークンの発行元。
	tokens *auth.TokenService
	// cost はbcryptのコスト。
	cost int
	// logger はアカウント操作を記録するロガー。
	logger zerolog.Logger
}

// NewService は新しいアカウントサービスを生成する。costが0以下の場合は bcrypt.DefaultCost を使う。
func NewService(users rental.UserStore, tokens *auth.TokenService, cost int, logger zerolog.Logger) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{users: users, tokens: tokens, cost: cost, logger: logger}
}

// Login はメールアドレスとパスワードを検証してトークンを発行する。
// 利用者が存在しない場合とパスワードが一致しない場合は同じ Authentication エラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, rental.ErrNotFound) {
			return LoginResult{}, apperr.Wrap(apperr.KindAuthentication, ErrInvalidCredentials, ErrInvalidCredentials.Error())
		}
		return LoginResult{}, apperr.Wrap(apperr.KindInternal, err, "利用者の取得に失敗しました")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Info().Int64("user_id", u.ID).Msg("パスワードが一致しません")
		return LoginResult{}, apperr.Wrap(apperr.KindAuthentication, ErrInvalidCredentials, ErrInvalidCredentials.Error())
	}
	if u.Status != rental.UserActive {
		return LoginResult{}, apperr.Wrap(apperr.KindAuthorization, ErrAccountInactive, ErrAccountInactive.Error())
	}

	token, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return LoginResult{}, apperr.Wrap(apperr.KindInternal, err, "トークンの発行に失敗しました")
	}
	s.logger.Info().Int64("user_id", u.ID).Str("role", u.Role.String()).Msg("ログインしました")
	return LoginResult{Token: token, User: u}, nil
}

// Register は顧客または所有者として利用者を登録する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (rental.User, error) {
	role, err := s.resolveRole(ctx, in)
	if err != nil {
		return rental.User{}, err
	}
	if role != auth.RoleCustomer && role != auth.RoleOwner {
		return rental.User{}, apperr.Wrap(apperr.KindValidation, ErrRoleNotAllowed, "登録できるロールはCUSTOMERまたはOWNERです")
	}
	if len(in.Password) < MinPasswordLength {
		return rental.User{}, apperr.New(apperr.KindValidation,
			fmt.Sprintf("パスワードは%d文字以上で指定してください", MinPasswordLength))
	}
	if err := s.validateLocation(ctx, in.StateID, in.CityID); err != nil {
		return rental.User{}, err
	}
	return s.create(ctx, in, role)
}

// EnsureAdmin は管理者が存在しなければ作成する。メールアドレスが既に使われている場合は何もしない。
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, rental.ErrNotFound) {
		return fmt.Errorf("管理者の確認に失敗: %w", err)
	}

	u, err := s.create(ctx, RegisterInput{FirstName: "Admin", Email: email, Password: password}, auth.RoleAdmin)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil
		}
		return fmt.Errorf("管理者の作成に失敗: %w", err)
	}
	s.logger.Info().Int64("user_id", u.ID).Msg("管理者を作成しました")
	return nil
}

// Me は利用者自身の情報を返す。
func (s *Service) Me(ctx context.Context, p auth.Principal) (rental.User, error) {
	u, err := s.users.GetUser(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, rental.ErrNotFound) {
			return rental.User{}, apperr.Wrap(apperr.KindNotFound, err, "利用者が見つかりません")
		}
		return rental.User{}, apperr.Wrap(apperr.KindInternal, err, "利用者の取得に失敗しました")
	}
	return u, nil
}

// ListUsers は全利用者を返す。管理者のみ実行できる。
func (s *Service) ListUsers(ctx context.Context, p auth.Principal) ([]rental.User, error) {
	if !p.HasRole(auth.RoleAdmin) {
		return nil, apperr.New(apperr.KindAuthorization, "管理者のみ利用者一覧を参照できます")
	}
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "利用者一覧の取得に失敗しました")
	}
	return users, nil
}

// create はパスワードをハッシュ化して利用者を保存する。
func (s *Service) create(ctx context.Context, in RegisterInput, role auth.Role) (rental.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return rental.User{}, apperr.Wrap(apperr.KindInternal, err, "パスワードのハッシュ化に失敗しました")
	}

	u, err := s.users.CreateUser(ctx, rental.User{
		Role:         role,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        in.Email,
		PasswordHash: string(hash),
		PhoneNo:      strings.TrimSpace(in.PhoneNo),
		Address:      strings.TrimSpace(in.Address),
		StateID:      in.StateID,
		CityID:       in.CityID,
		Status:       rental.UserActive,
	})
	if err != nil {
		if errors.Is(err, rental.ErrDuplicate) {
			return rental.User{}, apperr.Wrap(apperr.KindConflict, ErrEmailTaken, ErrEmailTaken.Error())
		}
		return rental.User{}, apperr.Wrap(apperr.KindInternal, err, "利用者の登録に失敗しました")
	}
	s.logger.Info().Int64("user_id", u.ID).Str("role", role.String()).Msg("利用者を登録しました")
	return u, nil
}

// resolveRole はロール名またはロールIDからロールを決める。
func (s *Service) resolveRole(ctx context.Context, in RegisterInput) (auth.Role, error) {
	if in.Role != "" {
		role, err := auth.NormalizeRole(in.Role)
		if err != nil {
			return "", apperr.Wrap(apperr.KindValidation, err, "ロールが不正です")
		}
		return role, nil
	}

	roles, err := s.users.ListRoles(ctx)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "ロール一覧の取得に失敗しました")
	}
	for _, r := range roles {
		if r.ID == in.RoleID {
			return r.Name, nil
		}
	}
	return "", apperr.New(apperr.KindValidation, "roleまたはroleIdを指定してください")
}

// validateLocation は州と市区町村の組み合わせを検証する。
func (s *Service) validateLocation(ctx context.Context, stateID, cityID int64) error {
	if stateID == 0 {
		if cityID != 0 {
			return apperr.New(apperr.KindValidation, "市区町村を指定する場合は州も指定してください")
		}
		return nil
	}
	cities, err := s.users.ListCities(ctx, stateID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "市区町村一覧の取得に失敗しました")
	}
	if len(cities) == 0 {
		return apperr.New(apperr.KindValidation, "州が存在しません")
	}
	if cityID == 0 {
		return nil
	}
	for _, c := range cities {
		if c.ID == cityID {
			return nil
		}
	}
	return apperr.New(apperr.KindValidation, "市区町村が州に属していません")
}
