// Package customer はカートと注文確定を扱う顧客サービスを提供する。
//
// CartService はカートの追加・削除・一覧を、OrderWorkflow はカートエントリから
// 請求と注文を1つのトランザクションで作成する処理を担う。
// どちらも利用者を引数の auth.Principal で受け取り、失敗は apperr の分類付きエラーで返す。
package customer
