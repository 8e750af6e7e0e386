// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// ゲートウェイが上流サービスへリクエストを転送する際と、
// 上流サービスの死活確認を行う際に使用する。
package httpclient
