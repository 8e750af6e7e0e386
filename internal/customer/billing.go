package customer

import (
	"math"
	"time"
)

// secondsPerDay は1日の秒数。
const secondsPerDay = 24 * 60 * 60

// RentalDays は開始日から終了日までの日数を両端を含めて返す。
// 日付はUTCの0時に正規化されている前提で、start > end の場合は0以下を返す。
// time.Duration の上限を超える期間でも正しく数えるため、Unix秒の差から求める。
func RentalDays(start, end time.Time) int {
	return int((end.Unix()-start.Unix())/secondsPerDay) + 1
}

// TotalAmount は日額×日数に保証金を加えた請求額を返す。金額は最小通貨単位。
// 日額・保証金・日数のいずれかが負の場合や、結果がint64に収まらない場合は ErrAmountOverflow を返す。
func TotalAmount(rentPerDay, deposit int64, days int) (int64, error) {
	if rentPerDay < 0 || deposit < 0 || days < 0 {
		return 0, ErrAmountOverflow
	}
	d := int64(days)
	if d > 0 && rentPerDay > (math.MaxInt64-deposit)/d {
		return 0, ErrAmountOverflow
	}
	return rentPerDay*d + deposit, nil
}
