package auth

import (
	"context"
	"fmt"
	"strings"
)

// Role は利用者のロールを表す。
type Role string

const (
	// RoleCustomer は商品を借りる顧客。
	RoleCustomer Role = "CUSTOMER"
	// RoleOwner は商品を貸し出す出品者。
	RoleOwner Role = "OWNER"
	// RoleAdmin は管理者。
	RoleAdmin Role = "ADMIN"
)

// rolePrefix はロール名前空間のプレフィックス。
const rolePrefix = "ROLE_"

// String はロール名を返す。
func (r Role) String() string {
	return string(r)
}

// NormalizeRole はクレーム値をロールに正規化する。
// 先頭の "ROLE_" を大文字小文字を区別せずに取り除き、大文字に揃えて比較する。
// 全サービスがこの関数だけを使ってロールを解釈すること。
func NormalizeRole(raw string) (Role, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= len(rolePrefix) && strings.EqualFold(s[:len(rolePrefix)], rolePrefix) {
		s = s[len(rolePrefix):]
	}

	switch r := Role(strings.ToUpper(s)); r {
	case RoleCustomer, RoleOwner, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("不明なロールです: %q", raw)
	}
}

// Principal は検証済みトークンから導出した認証済みの利用者。
// 永続化はしない。
type Principal struct {
	// UserID は利用者のID。
	UserID int64
	// Role は正規化済みのロール。
	Role Role
}

// HasRole はPrincipalが指定したロールのいずれかを持つかを返す。
func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// principalKey はコンテキストにPrincipalを格納するためのキー。
type principalKey struct{}

// WithPrincipal はコンテキストにPrincipalを設定する。
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom はコンテキストからPrincipalを取得する。
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
