package customer

import (
	"context"
	"errors"
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
const serviceName = "customer"

// Config は顧客サービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// PublicPaths は認証を必要としないパスのプレフィックス。
	PublicPaths []string
	// AllowedOrigins はCORSを許可するオリジン。
	AllowedOrigins []string
	// Order は注文確定の設定。
	Order OrderConfig
}

// Server は顧客サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は永続化先。
	store rental.Store
	// carts はカート操作。
	carts *CartService
	// orders は注文確定と注文・請求の参照。
	orders *OrderWorkflow
	// metrics はサービスのメトリクス。
	metrics *metrics.Registry
	// logger はサービスのロガー。
	logger zerolog.Logger
}

// NewServer は新しい顧客サーバーを生成する。
func NewServer(cfg Config, store rental.Store, tokens *auth.TokenService, logger zerolog.Logger) *Server {
	reg := metrics.New(serviceName)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(reg.Middleware())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router:  router,
		port:    cfg.Port,
		store:   store,
		carts:   NewCartService(store, store, logger),
		orders:  NewOrderWorkflow(store, cfg.Order, reg, logger),
		metrics: reg,
		logger:  logger,
	}
	s.setupRoutes(middleware.Identity(middleware.IdentityConfig{
		Tokens:      tokens,
		PublicPaths: cfg.PublicPaths,
		Logger:      logger,
	}))
	return s
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
func (s *Server) setupRoutes(identity gin.HandlerFunc) {
	// ヘルスチェック
	s.router.GET("/health", s.handleHealth())
	// メトリクス
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	// 貸出可能な出品一覧
	s.router.GET("/getallproducts", s.handleListListings())
	// 出品詳細
	s.router.GET("/:id/details", s.handleListingDetails())

	authed := s.router.Group("/", identity)
	{
		customer := authed.Group("/", middleware.RequireRole(auth.RoleCustomer))
		{
			// カートに追加
			customer.POST("/addtocart", s.handleAddToCart())
			// 自分のカート一覧
			customer.GET("/getallcartproducts", s.handleListCart())
			customer.GET("/getproductsbyid", s.handleListCart())
			// カートから削除
			customer.DELETE("/deleteproductfromcart/:cartId", s.handleRemoveFromCart())
			// 注文確定
			customer.POST("/order/place", s.handlePlaceOrder())
			// 自分の注文一覧
			customer.GET("/order/mine", s.handleListOrders())
		}
		// ロールに応じた請求一覧
		authed.GET("/order/bills", s.handleListBills())
		// 請求1件
		authed.GET("/order/bills/:billNo", s.handleGetBill())
	}
}

// addToCartRequest はカート追加リクエストのJSON構造。
type addToCartRequest struct {
	// OwnerItemID は追加する出品のID。
	OwnerItemID int64 `json:"ownerItemId" binding:"required,gt=0"`
}

// orderResponse は注文のJSONレスポンス構造。
type orderResponse struct {
	rental.Order
	// StartDate はレンタル開始日（YYYY-MM-DD）。
	StartDate string `json:"startDate"`
	// EndDate はレンタル終了日（YYYY-MM-DD）。
	EndDate string `json:"endDate"`
}

// billResponse は請求のJSONレスポンス構造。
type billResponse struct {
	rental.BillDetail
	// StartDate はレンタル開始日（YYYY-MM-DD）。
	StartDate string `json:"startDate"`
	// EndDate はレンタル終了日（YYYY-MM-DD）。
	EndDate string `json:"endDate"`
}

// handleHealth はストアへの疎通を含むヘルスチェックのハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			s.logger.Error().Err(err).Msg("データベースに接続できません")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": serviceName})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	}
}

// handleListListings は貸出可能な出品一覧のハンドラを返す。
func (s *Server) handleListListings() gin.HandlerFunc {
	return func(c *gin.Context) {
		listings, err := s.store.ListAvailableListings(c.Request.Context())
		if err != nil {
			s.respondError(c, apperr.Wrap(apperr.KindInternal, err, "出品一覧の取得に失敗しました"))
			return
		}
		if listings == nil {
			listings = []rental.Listing{}
		}
		c.JSON(http.StatusOK, listings)
	}
}

// handleListingDetails は出品詳細のハンドラを返す。
func (s *Server) handleListingDetails() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			s.respondError(c, apperr.New(apperr.KindValidation, "出品IDが不正です"))
			return
		}
		listing, err := s.store.GetListing(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, rental.ErrNotFound) {
				s.respondError(c, apperr.Wrap(apperr.KindNotFound, err, "出品が見つかりません"))
				return
			}
			s.respondError(c, apperr.Wrap(apperr.KindInternal, err, "出品の取得に失敗しました"))
			return
		}
		c.JSON(http.StatusOK, listing)
	}
}

// handleAddToCart はカート追加のハンドラを返す。
func (s *Server) handleAddToCart() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := middleware.GetPrincipal(c)

		var req addToCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, apperr.Wrap(apperr.KindValidation, err, "リクエストが不正です"))
			return
		}

		entry, err := s.carts.Add(c.Request.Context(), p, req.OwnerItemID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

// handleListCart は自分のカート一覧のハンドラを返す。
func (s *Server) handleListCart() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := middleware.GetPrincipal(c)

		items, err := s.carts.ListMine(c.Request.Context(), p)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

// handleRemoveFromCart はカート削除のハンドラを返す。成功時は本文なしの204を返す。
func (s *Server) handleRemoveFromCart() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := middleware.GetPrincipal(c)

		cartID, err := strconv.ParseInt(c.Param("cartId"), 10, 64)
		if err != nil || cartID <= 0 {
			s.respondError(c, apperr.New(apperr.KindValidation, "cartIdが不正です"))
			return
		}
		if err := s.carts.Remove(c.Request.Context(), p, cartID); err != nil {
			s.respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handlePlaceOrder は注文確定のハンドラを返す。
// 配送方法はクライアントから受け取らず、サーバーの設定値を使う。
func (s *Server) handlePlaceOrder() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := middleware.GetPrincipal(c)

		in, err := ParsePlaceOrderInput(c.Query("cartId"), c.Query("startDate"), c.Query("endDate"))
		if err != nil {
			c.JSON(apperr.HTTPStatus(apperr.KindOf(err)), gin.H{"success": false, "message": apperr.MessageOf(err)})
			return
		}

		res, err := s.orders.PlaceOrder(c.Request.Context(), p, in)
		if err != nil {
			c.JSON(apperr.HTTPStatus(apperr.KindOf(err)), gin.H{"success": false, "message": apperr.MessageOf(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"message":     "注文を確定しました",
			"billNo":      res.BillNo,
			"orderId":     res.OrderID,
			"totalAmount": res.TotalAmount,
			"days":        res.Days,
			"startDate":   res.StartDate,
			"endDate":     res.EndDate,
		})
	}
}

// handleListOrders は自分の注文一覧のハンドラを返す。
func (s *Server) handleListOrders() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := middleware.GetPrincipal(c)

		orders, err := s.orders.ListMine(c.Request.Context(), p)
		if err != nil {
			s.respondError(c, err)
			return
		}
		out := make([]orderResponse, 0, len(orders))
		for _, o := range orders {
			out = append(out, orderResponse{
				Order:     o,
				StartDate: rental.FormatDate(o.StartDate),
				EndDate:   rental.FormatDate(o.EndDate),
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

// handleListBills はロールに応じた請求一覧のハンドラを返す。
func (s *Server) handleListBills() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := middleware.GetPrincipal(c)

		bills, err := s.orders.ListBills(c.Request.Context(), p)
		if err != nil {
			s.respondError(c, err)
			return
		}
		out := make([]billResponse, 0, len(bills))
		for _, b := range bills {
			out = append(out, billResponse{
				BillDetail: b,
				StartDate:  rental.FormatDate(b.StartDate),
				EndDate:    rental.FormatDate(b.EndDate),
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

// handleGetBill は請求1件のハンドラを返す。
func (s *Server) handleGetBill() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := middleware.GetPrincipal(c)

		billNo, err := strconv.ParseInt(c.Param("billNo"), 10, 64)
		if err != nil || billNo <= 0 {
			s.respondError(c, apperr.New(apperr.KindValidation, "billNoが不正です"))
			return
		}
		bill, err := s.orders.GetBill(c.Request.Context(), p, billNo)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, billResponse{
			BillDetail: bill,
			StartDate:  rental.FormatDate(bill.StartDate),
			EndDate:    rental.FormatDate(bill.EndDate),
		})
	}
}

// respondError はエラーの分類に応じたステータスと {"error": ...} を返す。
func (s *Server) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("リクエストの処理に失敗しました")
	}
	c.JSON(apperr.HTTPStatus(kind), gin.H{"error": apperr.MessageOf(err)})
}
