package rental

import (
	"context"
	"errors"

	"github.com/nao1215/rentit/pkg/outbox"
)

var (
	// ErrNotFound は対象の行が存在しないことを表す。
	ErrNotFound = errors.New("対象が見つかりません")
	// ErrDuplicate は一意制約に違反したことを表す。
	ErrDuplicate = errors.New("既に登録されています")
)

// ListingStore は出品の読み書きを行う。
// 本番の出品データは出品者サービスが同じテーブルに書き込む。
type ListingStore interface {
	// CreateListing は出品を登録する。
	// 出品者サービスの書き込みを持たない環境で、初期データの投入とテストに使う。
	CreateListing(ctx context.Context, l Listing) (Listing, error)
	// GetListing は出品を取得する。存在しない場合は ErrNotFound を返す。
	GetListing(ctx context.Context, id int64) (Listing, error)
	// ListAvailableListings は貸出可能な出品をID順に返す。
	ListAvailableListings(ctx context.Context) ([]Listing, error)
}

// CartStore はカートの読み書きを行う。
type CartStore interface {
	// AddCartEntry はカートエントリを作成する。
	AddCartEntry(ctx context.Context, customerID, ownerItemID int64) (CartEntry, error)
	// GetCartEntry はカートエントリを取得する。存在しない場合は ErrNotFound を返す。
	GetCartEntry(ctx context.Context, id int64) (CartEntry, error)
	// DeleteCartEntry は指定顧客のカートエントリを削除する。
	// 該当行が無い場合は ErrNotFound を返す。
	DeleteCartEntry(ctx context.Context, id, customerID int64) error
	// ListCartEntries は顧客のカートエントリをID順に返す。
	ListCartEntries(ctx context.Context, customerID int64) ([]CartEntry, error)
}

// OrderStore は注文トランザクションの実行と注文・請求の参照を行う。
type OrderStore interface {
	// RunInTx はfnを1つのトランザクションで実行する。
	// fnがエラーを返した場合はロールバックし、そのエラーを返す。
	// 同じカートエントリに対する並行実行は直列化される。
	RunInTx(ctx context.Context, fn func(tx OrderTx) error) error
	// ListOrdersByCustomer は顧客の注文をID順に返す。
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]Order, error)
	// ListBills は条件に合う請求を請求番号順に返す。
	ListBills(ctx context.Context, filter BillFilter) ([]BillDetail, error)
}

// OrderTx は注文確定トランザクション内の操作。
type OrderTx interface {
	// LockCartEntry はカートエントリを取得し、トランザクション終了まで他の確定処理から保護する。
	// 存在しない場合は ErrNotFound を返す。
	LockCartEntry(ctx context.Context, cartID int64) (CartEntry, error)
	// GetListing は出品を取得する。存在しない場合は ErrNotFound を返す。
	GetListing(ctx context.Context, id int64) (Listing, error)
	// GetUser は利用者を取得する。存在しない場合は ErrNotFound を返す。
	GetUser(ctx context.Context, id int64) (User, error)
	// ConsumeCartEntry はカートエントリをIDと顧客IDの一致を条件に削除する。
	// 削除行が0件の場合は ErrNotFound を返す。
	ConsumeCartEntry(ctx context.Context, cartID, customerID int64) error
	// CreateBill は請求を作成する。
	CreateBill(ctx context.Context, b Bill) (Bill, error)
	// CreateOrder は注文を作成する。
	CreateOrder(ctx context.Context, o Order) (Order, error)
	// EnqueueOutbox はアウトボックスにメッセージを書き込む。
	EnqueueOutbox(ctx context.Context, m outbox.Message) error
}

// UserStore は利用者と参照データの読み書きを行う。
type UserStore interface {
	// CreateUser は利用者を登録する。メールアドレスが重複する場合は ErrDuplicate を返す。
	CreateUser(ctx context.Context, u User) (User, error)
	// GetUser は利用者を取得する。存在しない場合は ErrNotFound を返す。
	GetUser(ctx context.Context, id int64) (User, error)
	// GetUserByEmail はメールアドレスで利用者を取得する。存在しない場合は ErrNotFound を返す。
	GetUserByEmail(ctx context.Context, email string) (User, error)
	// ListUsers は全利用者をID順に返す。
	ListUsers(ctx context.Context) ([]User, error)
	// ListStates は州をID順に返す。
	ListStates(ctx context.Context) ([]State, error)
	// ListCities は州に属する市区町村をID順に返す。
	ListCities(ctx context.Context, stateID int64) ([]City, error)
	// ListRoles はロールをID順に返す。
	ListRoles(ctx context.Context) ([]RoleInfo, error)
}

// Store は全ての永続化操作をまとめた契約。
type Store interface {
	ListingStore
	CartStore
	OrderStore
	UserStore
	outbox.Source
	// Ping は接続を確認する。
	Ping(ctx context.Context) error
	// Close は接続を閉じる。
	Close() error
}
