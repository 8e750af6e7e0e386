package customer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/pkg/apperr"
	"github.com/nao1215/rentit/pkg/auth"
	"github.com/nao1215/rentit/pkg/event"
	"github.com/nao1215/rentit/pkg/metrics"
	"github.com/nao1215/rentit/pkg/outbox"
)

// PlaceOrderInput は注文確定の入力。日付はUTCの0時に正規化されている。
type PlaceOrderInput struct {
	// CartID は注文するカートエントリのID。
	CartID int64
	// StartDate はレンタル開始日。
	StartDate time.Time
	// EndDate はレンタル終了日。
	EndDate time.Time
}

// ParsePlaceOrderInput はクエリ文字列から注文確定の入力を組み立てる。
func ParsePlaceOrderInput(cartID, startDate, endDate string) (PlaceOrderInput, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(cartID), 10, 64)
	if err != nil || id <= 0 {
		return PlaceOrderInput{}, apperr.New(apperr.KindValidation, "cartIdが不正です")
	}
	start, err := rental.ParseDate(strings.TrimSpace(startDate))
	if err != nil {
		return PlaceOrderInput{}, apperr.Wrap(apperr.KindValidation, ErrInvalidDate, "startDateはYYYY-MM-DD形式で指定してください")
	}
	end, err := rental.ParseDate(strings.TrimSpace(endDate))
	if err != nil {
		return PlaceOrderInput{}, apperr.Wrap(apperr.KindValidation, ErrInvalidDate, "endDateはYYYY-MM-DD形式で指定してください")
	}
	return PlaceOrderInput{CartID: id, StartDate: start, EndDate: end}, nil
}

// OrderResult は注文確定の結果。
type OrderResult struct {
	// BillNo は作成した請求の番号。
	BillNo int64 `json:"billNo"`
	// OrderID は作成した注文のID。
	OrderID int64 `json:"orderId"`
	// TotalAmount は請求額（最小通貨単位）。
	TotalAmount int64 `json:"totalAmount"`
	// Days はレンタル日数。
	Days int `json:"days"`
	// StartDate はレンタル開始日（YYYY-MM-DD）。
	StartDate string `json:"startDate"`
	// EndDate はレンタル終了日（YYYY-MM-DD）。
	EndDate string `json:"endDate"`
}

// OrderConfig は注文確定の設定。
type OrderConfig struct {
	// DeliveryMode は作成する注文の配送方法。空の場合は SELF。
	DeliveryMode rental.DeliveryMode
	// Topic は OrderPlaced イベントの配信先トピック。空の場合は outbox.DefaultTopic。
	Topic string
}

// OrderWorkflow はカートエントリから請求と注文を作成する。
type OrderWorkflow struct {
	// store は注文トランザクションの実行先。
	store rental.OrderStore
	// deliveryMode は作成する注文の配送方法。
	deliveryMode rental.DeliveryMode
	// topic はイベントの配信先トピック。
	topic string
	// logger は注文確定を記録するロガー。
	logger zerolog.Logger
	// placed は確定した注文数。
	placed prometheus.Counter
	// failures は分類別の失敗数。
	failures *prometheus.CounterVec
}

// NewOrderWorkflow は新しい注文ワークフローを生成する。
// 注文数と失敗数のカウンタを reg に登録する。
func NewOrderWorkflow(store rental.OrderStore, cfg OrderConfig, reg *metrics.Registry, logger zerolog.Logger) *OrderWorkflow {
	if cfg.DeliveryMode == "" {
		cfg.DeliveryMode = rental.DeliverySelf
	}
	if cfg.Topic == "" {
		cfg.Topic = outbox.DefaultTopic
	}
	return &OrderWorkflow{
		store:        store,
		deliveryMode: cfg.DeliveryMode,
		topic:        cfg.Topic,
		logger:       logger,
		placed:       reg.NewCounter("orders_placed_total", "Total number of placed orders."),
		failures:     reg.NewCounterVec("order_failures_total", "Total number of failed order placements.", "kind"),
	}
}

// PlaceOrder はカートエントリを1件の請求と注文に変換する。
//
// 日付の検証はストアに触れる前に行う。以降の処理は1つのトランザクションで実行し、
// 途中で失敗した場合はカートエントリを含めて何も変更しない。
// 同じカートエントリに対する同時実行のうち成功するのは1つだけで、
// 残りは NotFound または Conflict になる。
func (w *OrderWorkflow) PlaceOrder(ctx context.Context, p auth.Principal, in PlaceOrderInput) (OrderResult, error) {
	res, err := w.placeOrder(ctx, p, in)
	if err != nil {
		kind := apperr.KindOf(err)
		w.failures.WithLabelValues(kind.String()).Inc()
		ev := w.logger.Warn()
		if kind == apperr.KindInternal {
			ev = w.logger.Error()
		}
		ev.Err(err).
			Int64("cart_id", in.CartID).
			Int64("customer_id", p.UserID).
			Str("kind", kind.String()).
			Msg("注文確定に失敗しました")
		return OrderResult{}, err
	}

	w.placed.Inc()
	w.logger.Info().
		Int64("order_id", res.OrderID).
		Int64("bill_no", res.BillNo).
		Int64("cart_id", in.CartID).
		Int64("customer_id", p.UserID).
		Int64("total_amount", res.TotalAmount).
		Msg("注文を確定しました")
	return res, nil
}

func (w *OrderWorkflow) placeOrder(ctx context.Context, p auth.Principal, in PlaceOrderInput) (OrderResult, error) {
	if !p.HasRole(auth.RoleCustomer) {
		return OrderResult{}, apperr.Wrap(apperr.KindAuthorization, ErrRoleRequired, "顧客のみ注文できます")
	}
	if in.StartDate.After(in.EndDate) {
		return OrderResult{}, apperr.Wrap(apperr.KindValidation, ErrInvalidDateRange, "開始日は終了日以前の日付を指定してください")
	}

	var res OrderResult
	err := w.store.RunInTx(ctx, func(tx rental.OrderTx) error {
		entry, err := tx.LockCartEntry(ctx, in.CartID)
		if err != nil {
			if errors.Is(err, rental.ErrNotFound) {
				return apperr.Wrap(apperr.KindNotFound, ErrCartNotFound, "カートエントリが見つかりません")
			}
			return apperr.Wrap(apperr.KindInternal, err, "カートエントリの取得に失敗しました")
		}
		if entry.CustomerID != p.UserID {
			return apperr.Wrap(apperr.KindAuthorization, ErrOwnershipViolation, "このカートエントリは注文できません")
		}

		// カートが参照する出品と所有者は存在するはずなので、欠落は内部エラーとする
		listing, err := tx.GetListing(ctx, entry.OwnerItemID)
		if err != nil {
			if errors.Is(err, rental.ErrNotFound) {
				return apperr.Wrap(apperr.KindInternal, fmt.Errorf("出品 %d: %w", entry.OwnerItemID, ErrListingNotFound), "出品が見つかりません")
			}
			return apperr.Wrap(apperr.KindInternal, err, "出品の取得に失敗しました")
		}
		owner, err := tx.GetUser(ctx, listing.OwnerID)
		if err != nil {
			if errors.Is(err, rental.ErrNotFound) {
				return apperr.Wrap(apperr.KindInternal, fmt.Errorf("所有者 %d: %w", listing.OwnerID, ErrOwnerNotFound), "出品の所有者が見つかりません")
			}
			return apperr.Wrap(apperr.KindInternal, err, "出品の所有者の取得に失敗しました")
		}

		days := RentalDays(in.StartDate, in.EndDate)
		if listing.MaxRentDays > 0 && days > listing.MaxRentDays {
			return apperr.Wrap(apperr.KindValidation, ErrRentTooLong,
				fmt.Sprintf("レンタル日数は%d日以内で指定してください", listing.MaxRentDays))
		}
		total, err := TotalAmount(listing.RentPerDay, listing.DepositAmount, days)
		if err != nil {
			return apperr.Wrap(apperr.KindValidation, err, "レンタル期間が長すぎるため請求額を計算できません")
		}

		if err := tx.ConsumeCartEntry(ctx, entry.ID, p.UserID); err != nil {
			if errors.Is(err, rental.ErrNotFound) {
				return apperr.Wrap(apperr.KindConflict, ErrCartConsumed, "カートエントリは既に注文済みです")
			}
			return apperr.Wrap(apperr.KindInternal, err, "カートエントリの消費に失敗しました")
		}

		bill, err := tx.CreateBill(ctx, rental.Bill{
			CustomerID:  p.UserID,
			OwnerID:     owner.ID,
			OwnerItemID: listing.ID,
			CartID:      entry.ID,
			Amount:      total,
		})
		if err != nil {
			if errors.Is(err, rental.ErrDuplicate) {
				return apperr.Wrap(apperr.KindConflict, ErrCartConsumed, "カートエントリは既に注文済みです")
			}
			return apperr.Wrap(apperr.KindInternal, err, "請求の作成に失敗しました")
		}

		order, err := tx.CreateOrder(ctx, rental.Order{
			BillNo:        bill.BillNo,
			CustomerID:    p.UserID,
			OwnerID:       owner.ID,
			OwnerItemID:   listing.ID,
			StartDate:     in.StartDate,
			EndDate:       in.EndDate,
			PaymentStatus: rental.PaymentPending,
			DeliveryMode:  w.deliveryMode,
		})
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "注文の作成に失敗しました")
		}

		res = OrderResult{
			BillNo:      bill.BillNo,
			OrderID:     order.ID,
			TotalAmount: total,
			Days:        days,
			StartDate:   rental.FormatDate(in.StartDate),
			EndDate:     rental.FormatDate(in.EndDate),
		}
		if err := w.enqueueOrderPlaced(ctx, tx, res, p.UserID, owner.ID, listing.ID); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "イベントの記録に失敗しました")
		}
		return nil
	})
	if err != nil {
		var ae *apperr.Error
		if !errors.As(err, &ae) {
			err = apperr.Wrap(apperr.KindInternal, err, "注文の確定に失敗しました")
		}
		return OrderResult{}, err
	}
	return res, nil
}

// enqueueOrderPlaced は OrderPlaced イベントを同じトランザクションでアウトボックスに書き込む。
func (w *OrderWorkflow) enqueueOrderPlaced(ctx context.Context, tx rental.OrderTx, res OrderResult, customerID, ownerID, ownerItemID int64) error {
	ev, err := event.NewOrderPlaced(event.OrderPlacedData{
		OrderID:     res.OrderID,
		BillNo:      res.BillNo,
		CustomerID:  customerID,
		OwnerID:     ownerID,
		OwnerItemID: ownerItemID,
		TotalAmount: res.TotalAmount,
		StartDate:   res.StartDate,
		EndDate:     res.EndDate,
	})
	if err != nil {
		return err
	}
	msg, err := outbox.NewMessage(w.topic, ev)
	if err != nil {
		return err
	}
	return tx.EnqueueOutbox(ctx, msg)
}

// ListMine は利用者自身の注文を返す。
func (w *OrderWorkflow) ListMine(ctx context.Context, p auth.Principal) ([]rental.Order, error) {
	orders, err := w.store.ListOrdersByCustomer(ctx, p.UserID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "注文一覧の取得に失敗しました")
	}
	return orders, nil
}

// ListBills はロールに応じた範囲の請求を返す。
// 顧客は自分の請求、所有者は自分の出品に対する請求、管理者は全件を参照できる。
func (w *OrderWorkflow) ListBills(ctx context.Context, p auth.Principal) ([]rental.BillDetail, error) {
	var filter rental.BillFilter
	switch p.Role {
	case auth.RoleAdmin:
	case auth.RoleOwner:
		filter.OwnerID = p.UserID
	case auth.RoleCustomer:
		filter.CustomerID = p.UserID
	default:
		return nil, apperr.Wrap(apperr.KindAuthorization, ErrRoleRequired, "請求を参照する権限がありません")
	}

	bills, err := w.store.ListBills(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "請求一覧の取得に失敗しました")
	}
	return bills, nil
}

// GetBill は請求番号で請求を1件返す。
// 参照できるのは請求の借り手と出品者、および管理者のみ。
func (w *OrderWorkflow) GetBill(ctx context.Context, p auth.Principal, billNo int64) (rental.BillDetail, error) {
	switch p.Role {
	case auth.RoleAdmin, auth.RoleOwner, auth.RoleCustomer:
	default:
		return rental.BillDetail{}, apperr.Wrap(apperr.KindAuthorization, ErrRoleRequired, "請求を参照する権限がありません")
	}

	bills, err := w.store.ListBills(ctx, rental.BillFilter{BillNo: billNo})
	if err != nil {
		return rental.BillDetail{}, apperr.Wrap(apperr.KindInternal, err, "請求の取得に失敗しました")
	}
	if len(bills) == 0 {
		return rental.BillDetail{}, apperr.Wrap(apperr.KindNotFound, ErrBillNotFound, "請求が見つかりません")
	}
	bill := bills[0]
	if p.Role != auth.RoleAdmin && bill.CustomerID != p.UserID && bill.OwnerID != p.UserID {
		return rental.BillDetail{}, apperr.Wrap(apperr.KindAuthorization, ErrBillAccessDenied, "この請求を参照する権限がありません")
	}
	return bill, nil
}
