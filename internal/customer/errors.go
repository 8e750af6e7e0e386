package customer

import "errors"

var (
	// ErrInvalidDateRange は開始日が終了日より後であることを表す。
	ErrInvalidDateRange = errors.New("開始日が終了日より後です")
	// ErrInvalidDate は日付の書式が不正であることを表す。
	ErrInvalidDate = errors.New("日付の書式が不正です")
	// ErrCartNotFound はカートエントリが存在しないことを表す。
	ErrCartNotFound = errors.New("カートエントリが存在しません")
	// ErrOwnershipViolation はカートエントリが利用者のものではないことを表す。
	ErrOwnershipViolation = errors.New("カートエントリの所有者ではありません")
	// ErrListingNotFound はカートが参照する出品が存在しないことを表す。
	ErrListingNotFound = errors.New("出品が存在しません")
	// ErrOwnerNotFound は出品の所有者が存在しないことを表す。
	ErrOwnerNotFound = errors.New("出品の所有者が存在しません")
	// ErrListingUnavailable は出品が貸出可能ではないことを表す。
	ErrListingUnavailable = errors.New("出品は貸出可能ではありません")
	// ErrRentTooLong はレンタル日数が出品の上限を超えていることを表す。
	ErrRentTooLong = errors.New("レンタル日数が上限を超えています")
	// ErrAmountOverflow は請求額が表現できる範囲を超えることを表す。
	ErrAmountOverflow = errors.New("請求額が上限を超えています")
	// ErrCartConsumed はカートエントリが既に注文に使われたことを表す。
	ErrCartConsumed = errors.New("カートエントリは既に注文済みです")
	// ErrBillNotFound は請求が存在しないことを表す。
	ErrBillNotFound = errors.New("請求が存在しません")
	// ErrBillAccessDenied は請求の借り手でも出品者でもないことを表す。
	ErrBillAccessDenied = errors.New("請求を参照する権限がありません")
	// ErrRoleRequired は操作に必要なロールを持たないことを表す。
	ErrRoleRequired = errors.New("この操作を行う権限がありません")
)
