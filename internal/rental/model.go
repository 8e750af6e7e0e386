// Package rental はレンタルマーケットプレイスのドメインモデルと永続化の契約を定義する。
//
// 出品・カート・請求・注文・利用者・参照データを扱う。実装はSQLite（sqlite）と
// PostgreSQL（postgres）の2種類があり、各サービスはここのインターフェースだけに依存する。
// 金額は全て最小通貨単位のint64で扱う。
package rental

import (
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/rentit/pkg/auth"
)

// DateLayout は日付の文字列表現（YYYY-MM-DD）。
const DateLayout = "2006-01-02"

// ListingStatus は出品の貸出可否を表す。
type ListingStatus string

const (
	// ListingAvailable は貸出可能な出品。
	ListingAvailable ListingStatus = "AVAILABLE"
	// ListingUnavailable は貸出停止中の出品。
	ListingUnavailable ListingStatus = "UNAVAILABLE"
)

// PaymentStatus は注文の支払い状態を表す。
// 支払い済みへの遷移は決済サービス側で行うため、このサービスは未払いのみを書き込む。
type PaymentStatus string

const (
	// PaymentPending は未払い。注文作成時の初期状態。
	PaymentPending PaymentStatus = "PENDING"
)

// DeliveryMode は受け渡し方法を表す。
type DeliveryMode string

const (
	// DeliverySelf は借り手が自分で受け取る。
	DeliverySelf DeliveryMode = "SELF"
	// DeliveryDelivery は配送する。
	DeliveryDelivery DeliveryMode = "DELIVERY"
)

// ParseDeliveryMode は文字列を受け渡し方法に変換する。大文字小文字は区別しない。
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch m := DeliveryMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case DeliverySelf, DeliveryDelivery:
		return m, nil
	default:
		return "", fmt.Errorf("不明な受け渡し方法です: %q", s)
	}
}

// UserStatus は利用者アカウントの状態を表す。
type UserStatus string

const (
	// UserActive は利用可能なアカウント。
	UserActive UserStatus = "ACTIVE"
	// UserInactive は無効化されたアカウント。
	UserInactive UserStatus = "INACTIVE"
	// UserBlocked は管理者により停止されたアカウント。
	UserBlocked UserStatus = "BLOCKED"
)

// Listing は出品者が貸し出す商品（出品）。
type Listing struct {
	ID            int64         `json:"ownerItemId"`
	OwnerID       int64         `json:"ownerId"`
	ItemID        int64         `json:"itemId"`
	Brand         string        `json:"brand"`
	Description   string        `json:"description"`
	ConditionType string        `json:"conditionType"`
	RentPerDay    int64         `json:"rentPerDay"`
	DepositAmount int64         `json:"depositAmount"`
	Status        ListingStatus `json:"status"`
	// MaxRentDays は最大レンタル日数。0は無制限。
	MaxRentDays int `json:"maxRentDays"`
}

// CartEntry は顧客のカートに入った出品。注文確定時に消費される。
type CartEntry struct {
	ID          int64     `json:"cartId"`
	CustomerID  int64     `json:"customerId"`
	OwnerItemID int64     `json:"ownerItemId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// User は利用者アカウント。
type User struct {
	ID        int64     `json:"userId"`
	Role      auth.Role `json:"role"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	// PasswordHash はbcryptハッシュ。レスポンスには含めない。
	PasswordHash string     `json:"-"`
	PhoneNo      string     `json:"phoneNo"`
	Address      string     `json:"address"`
	StateID      int64      `json:"stateId"`
	CityID       int64      `json:"cityId"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Bill は注文確定時に作成される請求。作成後は変更しない。
type Bill struct {
	BillNo      int64 `json:"billNo"`
	CustomerID  int64 `json:"customerId"`
	OwnerID     int64 `json:"ownerId"`
	OwnerItemID int64 `json:"ownerItemId"`
	// CartID は請求の元になったカートエントリ。1つのカートエントリにつき請求は1件。
	CartID    int64     `json:"cartId"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

// Order はレンタル注文。
type Order struct {
	ID            int64         `json:"orderId"`
	BillNo        int64         `json:"billNo"`
	CustomerID    int64         `json:"customerId"`
	OwnerID       int64         `json:"ownerId"`
	OwnerItemID   int64         `json:"ownerItemId"`
	StartDate     time.Time     `json:"-"`
	EndDate       time.Time     `json:"-"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	DeliveryMode  DeliveryMode  `json:"deliveryMode"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// BillDetail は請求一覧で返す、請求と注文期間と出品情報の組。
type BillDetail struct {
	Bill
	OrderID       int64     `json:"orderId"`
	StartDate     time.Time `json:"-"`
	EndDate       time.Time `json:"-"`
	ItemBrand     string    `json:"itemBrand"`
	ItemDesc      string    `json:"itemDescription"`
	RentPerDay    int64     `json:"rentPerDay"`
	DepositAmount int64     `json:"depositAmount"`
}

// BillFilter は請求一覧の絞り込み条件。0のフィールドは条件にしない。
type BillFilter struct {
	// CustomerID は借り手で絞り込む。
	CustomerID int64
	// OwnerID は出品者で絞り込む。
	OwnerID int64
	// BillNo は請求番号で絞り込む。
	BillNo int64
}

// State は州（都道府県）の参照データ。
type State struct {
	ID   int64  `json:"stateId"`
	Name string `json:"stateName"`
}

// City は市区町村の参照データ。
type City struct {
	ID      int64  `json:"cityId"`
	StateID int64  `json:"stateId"`
	Name    string `json:"cityName"`
}

// RoleInfo はロールの参照データ。
type RoleInfo struct {
	ID   int64     `json:"roleId"`
	Name auth.Role `json:"roleName"`
}

// ParseDate はYYYY-MM-DD形式の日付をUTCの0時として解釈する。
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("日付の形式が不正です（YYYY-MM-DD）: %q", s)
	}
	return t, nil
}

// FormatDate は日付をYYYY-MM-DD形式で返す。
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
