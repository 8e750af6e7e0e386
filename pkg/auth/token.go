package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nao1215/rentit/pkg/config"
)

var (
	// ErrExpiredToken はトークンの有効期限が切れていることを表す。
	ErrExpiredToken = errors.New("トークンの有効期限が切れています")
	// ErrInvalidSignature はトークンの署名が検証できないことを表す。
	ErrInvalidSignature = errors.New("トークンの署名が不正です")
	// ErrMalformedToken はトークンの形式または必須クレームが不正であることを表す。
	ErrMalformedToken = errors.New("トークンの形式が不正です")
)

// DefaultRoleClaimKey はロールを格納するクレームのデフォルトキー。
const DefaultRoleClaimKey = "role"

// DefaultTokenTTL はトークンのデフォルト有効期間。
const DefaultTokenTTL = 24 * time.Hour

// Config はトークンの発行・検証設定。全サービスで同じ値を使うこと。
type Config struct {
	// Secret はHMAC-SHA256の共有秘密鍵。
	Secret string
	// RoleClaimKey はロールを格納するクレームのキー。
	RoleClaimKey string
	// TTL はトークンの有効期間。
	TTL time.Duration
	// Issuer は iss クレーム。空の場合は発行も検証もしない。
	Issuer string
}

// LoadConfig は環境変数からトークン設定を読み込む。
func LoadConfig() Config {
	return Config{
		Secret:       config.GetEnvOr("JWT_SECRET", "dev-secret-key"),
		RoleClaimKey: config.GetEnvOr("JWT_ROLE_CLAIM", DefaultRoleClaimKey),
		TTL:          config.GetEnvDuration("JWT_TTL", DefaultTokenTTL),
		Issuer:       config.GetEnvOr("JWT_ISSUER", ""),
	}
}

// TokenService は署名付きトークンの発行と検証を行う。
// 生成後は読み取り専用で、複数のgoroutineから同時に使用できる。
type TokenService struct {
	// secret は署名鍵。
	secret []byte
	// roleClaimKey はロールクレームのキー。
	roleClaimKey string
	// ttl はトークンの有効期間。
	ttl time.Duration
	// issuer は iss クレーム。
	issuer string
	// now は現在時刻を返す。テスト時に差し替える。
	now func() time.Time
	// parser はトークンの検証に使うパーサー。
	parser *jwt.Parser
}

// Option はTokenServiceの生成オプション。
type Option func(*TokenService)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService は新しいTokenServiceを生成する。
func NewTokenService(cfg Config, opts ...Option) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("JWTの秘密鍵が設定されていません")
	}
	if cfg.RoleClaimKey == "" {
		cfg.RoleClaimKey = DefaultRoleClaimKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}

	s := &TokenService{
		secret:       []byte(cfg.Secret),
		roleClaimKey: cfg.RoleClaimKey,
		ttl:          cfg.TTL,
		issuer:       cfg.Issuer,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	}
	if s.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.issuer))
	}
	s.parser = jwt.NewParser(parserOpts...)

	return s, nil
}

// RoleClaimKey はロールクレームのキーを返す。
func (s *TokenService) RoleClaimKey() string {
	return s.roleClaimKey
}

// Issue はユーザーIDとロールから署名付きトークンを発行する。
// クレームは sub（ユーザーIDの10進文字列）、ロール、iat、exp で構成する。
func (s *TokenService) Issue(userID int64, role Role) (string, error) {
	normalized, err := NormalizeRole(string(role))
	if err != nil {
		return "", fmt.Errorf("トークンの発行に失敗: %w", err)
	}

	issuedAt := s.now()
	claims := jwt.MapClaims{
		"sub":          strconv.FormatInt(userID, 10),
		s.roleClaimKey: string(normalized),
		"iat":          issuedAt.Unix(),
		"exp":          issuedAt.Add(s.ttl).Unix(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証してPrincipalを返す。
// 期限切れは ErrExpiredToken、署名不一致は ErrInvalidSignature、
// 必須クレームの欠落は ErrMalformedToken を返す。
func (s *TokenService) Verify(tokenString string) (Principal, error) {
	claims := jwt.MapClaims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return Principal{}, classifyParseError(err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Principal{}, fmt.Errorf("%w: subクレームがありません", ErrMalformedToken)
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: subクレームが整数ではありません", ErrMalformedToken)
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return Principal{}, fmt.Errorf("%w: iatクレームがありません", ErrMalformedToken)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || !exp.After(iat.Time) {
		return Principal{}, fmt.Errorf("%w: expがiat以前です", ErrMalformedToken)
	}

	rawRole, ok := claims[s.roleClaimKey].(string)
	if !ok || rawRole == "" {
		return Principal{}, fmt.Errorf("%w: ロールクレーム %q がありません", ErrMalformedToken, s.roleClaimKey)
	}
	role, err := NormalizeRole(rawRole)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	return Principal{UserID: userID, Role: role}, nil
}

// classifyParseError はjwtライブラリのエラーを検証エラーに分類する。
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpiredToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
