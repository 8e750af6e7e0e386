// Package account はログイン・利用者登録・参照データを提供するアカウントサービスを実装する。
//
// パスワードはbcryptでハッシュ化して保存し、ログインに成功すると
// auth.TokenService で署名付きトークンを発行する。
package account
