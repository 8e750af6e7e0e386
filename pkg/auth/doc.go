// Package auth はサービス間で共有する認証トークンの発行と検証を提供する。
//
// 全サービスが同じ秘密鍵とロールクレームのキーを使ってトークンを検証する。
// セッションストアは持たず、検証済みトークンから導出した Principal を
// リクエストのコンテキストに載せて伝播する。
package auth
