package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout はリクエストの既定タイムアウト。
const DefaultTimeout = 30 * time.Second

// forwardHeaders は上流サービスへ引き継ぐリクエストヘッダー。
var forwardHeaders = []string{
	"Authorization",
	"Content-Type",
	"Accept",
	"X-Request-ID",
}

// Client はサービス間通信用のHTTPクライアント。
// 1つの上流サービスのベースURLとタイムアウトを持つ。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
}

// New は新しいサービス間通信用HTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://customer:8085"）を指定する。
// timeoutが0以下の場合は DefaultTimeout を使う。
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			// 上流のリダイレクトはそのままクライアントへ返す
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: baseURL,
	}
}

// BaseURL は接続先のベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Forward はリクエストを上流サービスへそのまま転送し、レスポンスを返す。
// pathAndQueryには元のリクエストのパスとクエリ（例: "/order/place?cartId=1"）を指定する。
// 呼び出し側でレスポンスボディを閉じること。
func (c *Client) Forward(ctx context.Context, method, pathAndQuery string, header http.Header, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, body)
	if err != nil {
		return nil, fmt.Errorf("転送リクエストの作成に失敗: %w", err)
	}
	for _, h := range forwardHeaders {
		if v := header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("上流サービスへの転送に失敗: %w", err)
	}
	return resp, nil
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTPエラー: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

// Health は上流サービスの /health を呼び出し、正常に応答するかを確認する。
func (c *Client) Health(ctx context.Context) error {
	return c.GetJSON(ctx, "/health", nil)
}
