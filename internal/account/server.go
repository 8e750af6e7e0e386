package account

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/pkg/apperr"
	"github.com/nao1215/rentit/pkg/auth"
	"github.com/nao1215/rentit/pkg/httpserver"
	"github.com/nao1215/rentit/pkg/metrics"
	"github.com/nao1215/rentit/pkg/middleware"
)

// serviceName はログとメトリクスに使うサービス名。
const serviceName = "account"

// Config はアカウントサービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// PublicPaths は認証を必要としないパスのプレフィックス。
	PublicPaths []string
	// AllowedOrigins はCORSを許可するオリジン。
	AllowedOrigins []string
	// BcryptCost はパスワードハッシュのコスト。0以下はデフォルト。
	BcryptCost int
}

// DefaultPublicPaths はトークンなしで利用できるパス。
var DefaultPublicPaths = []string{
	"/health",
	"/metrics",
	"/api/login",
	"/api/register",
	"/api/getallroles",
	"/states",
	"/cities/",
}

// Server はアカウントサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は利用者と参照データの永続化先。
	store Store
	// accounts はアカウント操作。
	accounts *Service
	// metrics はサービスのメトリクス。
	metrics *metrics.Registry
	// logger はサービスのロガー。
	logger zerolog.Logger
}

// Store はアカウントサービスが使う永続化操作。
type Store interface {
	rental.UserStore
	// Ping は接続を確認する。
	Ping(ctx context.Context) error
}

// NewServer は新しいアカウントサーバーを生成する。
func NewServer(cfg Config, store Store, tokens *auth.TokenService, logger zerolog.Logger) *Server {
	reg := metrics.New(serviceName)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(reg.Middleware())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	publicPaths := cfg.PublicPaths
	if len(publicPaths) == 0 {
		publicPaths = DefaultPublicPaths
	}
	router.Use(middleware.Identity(middleware.IdentityConfig{
		Tokens:      tokens,
		PublicPaths: publicPaths,
		Logger:      logger,
	}))

	s := &Server{
		router:   router,
		port:     cfg.Port,
		store:    store,
		accounts: NewService(store, tokens, cfg.BcryptCost, logger),
		metrics:  reg,
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

// Accounts はアカウント操作を返す。
func (s *Server) Accounts() *Service {
	return s.accounts
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxが終了するまでブロックする。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Serve(ctx, fmt.Sprintf(":%s", s.port), s.router, s.logger)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		// ログイン
		api.POST("/login", s.handleLogin())
		// 利用者登録
		api.POST("/register", s.handleRegister())
		// ロール一覧
		api.GET("/getallroles", s.handleListRoles())
		// 自分の情報
		api.GET("/me", s.handleMe())
		// 利用者一覧（管理者のみ）
		api.GET("/all", middleware.RequireRole(auth.RoleAdmin), s.handleListUsers())
	}

	// 州一覧
	s.router.GET("/states", s.handleListStates())
	// 州に属する市区町村一覧
	s.router.GET("/cities/:stateId", s.handleListCities())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			s.logger.Error().Err(err).Msg("データベースに接続できません")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": serviceName})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})
	// メトリクス
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
}

// registerRequest は利用者登録リクエストのJSON構造。
type registerRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	PhoneNo   string `json:"phoneNo"`
	Address   string `json:"address"`
	StateID   int64  `json:"state"`
	CityID    int64  `json:"city"`
	Role      string `json:"role"`
	RoleID    int64  `json:"roleId"`
}

// handleLogin はログインのハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, apperr.Wrap(apperr.KindValidation, err, "メールアドレスとパスワードを指定してください"))
			return
		}

		res, err := s.accounts.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// handleRegister は利用者登録のハンドラを返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, apperr.Wrap(apperr.KindValidation, err, fmt.Sprintf("リクエストが不正です: %v", err)))
			return
		}

		u, err := s.accounts.Register(c.Request.Context(), RegisterInput{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Password:  req.Password,
			PhoneNo:   req.PhoneNo,
			Address:   req.Address,
			StateID:   req.StateID,
			CityID:    req.CityID,
			Role:      req.Role,
			RoleID:    req.RoleID,
		})
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, u)
	}
}

// handleListRoles はロール一覧のハンドラを返す。
func (s *Server) handleListRoles() gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, err := s.store.ListRoles(c.Request.Context())
		if err != nil {
			s.respondError(c, apperr.Wrap(apperr.KindInternal, err, "ロール一覧の取得に失敗しました"))
			return
		}
		c.JSON(http.StatusOK, roles)
	}
}

// handleListStates は州一覧のハンドラを返す。
func (s *Server) handleListStates() gin.HandlerFunc {
	return func(c *gin.Context) {
		states, err := s.store.ListStates(c.Request.Context())
		if err != nil {
			s.respondError(c, apperr.Wrap(apperr.KindInternal, err, "州一覧の取得に失敗しました"))
			return
		}
		c.JSON(http.StatusOK, states)
	}
}

// handleListCities は州に属する市区町村一覧のハンドラを返す。
func (s *Server) handleListCities() gin.HandlerFunc {
	return func(c *gin.Context) {
		stateID, err := strconv.ParseInt(c.Param("stateId"), 10, 64)
		if err != nil || stateID <= 0 {
			s.respondError(c, apperr.New(apperr.KindValidation, "州IDが不正です"))
			return
		}
		cities, err := s.store.ListCities(c.Request.Context(), stateID)
		if err != nil {
			s.respondError(c, apperr.Wrap(apperr.KindInternal, err, "市区町村一覧の取得に失敗しました"))
			return
		}
		if cities == nil {
			cities = []rental.City{}
		}
		c.JSON(http.StatusOK, cities)
	}
}

// handleMe は自分の情報のハンドラを返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.GetPrincipal(c)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		u, err := s.accounts.Me(c.Request.Context(), p)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// handleListUsers は利用者一覧のハンドラを返す。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := middleware.GetPrincipal(c)
		users, err := s.accounts.ListUsers(c.Request.Context(), p)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// respondError はエラーの分類に応じたステータスと {"message": ...} を返す。
func (s *Server) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("リクエストの処理に失敗しました")
	}
	c.JSON(apperr.HTTPStatus(kind), gin.H{"message": apperr.MessageOf(err)})
}
