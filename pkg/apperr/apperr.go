// Package apperr はサービス共通のエラー分類とHTTPステータスへの対応付けを提供する。
//
// ワークフローの各ステップは分類付きのエラー値を返し、ハンドラは
// KindOf と HTTPStatus でレスポンスを決める。例外的な制御フローは使わない。
package apperr

import (
	"errors"
	"net/http"
)

// Kind はエラーの分類を表す。
type Kind int

const (
	// KindInternal は参照整合性の破損や永続化の失敗など、内部エラーを表す。
	KindInternal Kind = iota
	// KindAuthentication はトークンの欠落・不正・期限切れを表す。
	KindAuthentication
	// KindAuthorization はロールや所有者の不一致を表す。
	KindAuthorization
	// KindValidation は入力値の不正を表す。
	KindValidation
	// KindNotFound は対象が存在しないことを表す。
	KindNotFound
	// KindConflict は同じリソースへの競合した操作を表す。
	KindConflict
)

// String は分類名を返す。
func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error は分類と利用者向けメッセージを持つエラー。
type Error struct {
	// Kind はエラーの分類。
	Kind Kind
	// Message は利用者に返すメッセージ。
	Message string
	// Err は原因となったエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// New は分類付きのエラーを生成する。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap は原因エラーに分類とメッセージを付与する。
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf はエラーの分類を返す。分類が付いていない場合は KindInternal を返す。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf は利用者に返すメッセージを返す。
// 内部エラーの詳細は外部に出さない。
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "内部サーバーエラーが発生しました"
}

// HTTPStatus は分類に対応するHTTPステータスコードを返す。
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
