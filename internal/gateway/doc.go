// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 受け取ったリクエストのパスをルートテーブルと照合し、最初に一致した規則の
// 転送先サービスへそのまま中継する。一致しないパスには404を返し、
// 既定の転送先へは送らない。トークンの検証は各サービスの識別ミドルウェアが行う。
package gateway
