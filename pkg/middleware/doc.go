// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// トークンによる利用者の識別とロール検査、リクエストログ、リクエストID、
// パニックリカバリ、CORS、レート制限を含む。各サービスは同じ設定から
// Identity を組み立て、ゲートウェイに依存せず自身で認証と認可を行う。
package middleware
