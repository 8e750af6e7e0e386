// Package event はサービス間で配信するドメインイベントの型を定義する。
//
// イベントは注文トランザクションと同じコミットでアウトボックスに書き込まれ、
// リレーがメッセージブローカーへ配信する。
package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeOrder は注文エンティティを表す。
	AggregateTypeOrder AggregateType = "Order"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeOrderPlaced はカートから請求と注文が確定したことを表す。
	TypeOrderPlaced Type = "OrderPlaced"
)

// Event は配信される不変のイベントレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。配信先での重複排除に使用する。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// OrderPlacedData はOrderPlacedイベントのデータ。
type OrderPlacedData struct {
	// OrderID は確定した注文のID。
	OrderID int64 `json:"order_id"`
	// BillNo は請求番号。
	BillNo int64 `json:"bill_no"`
	// CustomerID は借り手のユーザーID。
	CustomerID int64 `json:"customer_id"`
	// OwnerID は貸し手のユーザーID。
	OwnerID int64 `json:"owner_id"`
	// OwnerItemID は出品のID。
	OwnerItemID int64 `json:"owner_item_id"`
	// TotalAmount は請求総額（最小通貨単位）。
	TotalAmount int64 `json:"total_amount"`
	// StartDate はレンタル開始日（YYYY-MM-DD）。
	StartDate string `json:"start_date"`
	// EndDate はレンタル終了日（YYYY-MM-DD）。
	EndDate string `json:"end_date"`
}
