package gateway

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/nao1215/rentit/pkg/config"
	"github.com/nao1215/rentit/pkg/httpclient"
)

// 転送先サービス名。
const (
	TargetAuth     = "auth"
	TargetAdmin    = "admin"
	TargetSearch   = "search"
	TargetOwner    = "owner"
	TargetCustomer = "customer"
)

// Config はGatewayの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// RoutesFile はルート定義のYAMLファイル。空の場合は DefaultRules を使う。
	RoutesFile string
	// AllowedOrigins はCORSを許可するオリジン。
	AllowedOrigins []string
	// RateLimitRPS は1秒あたりの許容リクエスト数。0以下は無制限。
	RateLimitRPS float64
	// RateLimitBurst はバーストの上限。
	RateLimitBurst int
	// UpstreamTimeout は転送先への要求のタイムアウト。
	UpstreamTimeout time.Duration
}

// LoadConfig は環境変数からGatewayの設定を読み込む。
func LoadConfig() Config {
	return Config{
		Port:            config.GetEnvOr("PORT", "8080"),
		RoutesFile:      config.GetEnvOr("ROUTES_FILE", ""),
		AllowedOrigins:  config.GetEnvList("FRONTEND_URL", []string{"http://localhost:3000"}),
		RateLimitRPS:    config.GetEnvFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst:  config.GetEnvInt("RATE_LIMIT_BURST", 20),
		UpstreamTimeout: config.GetEnvDuration("UPSTREAM_TIMEOUT", httpclient.DefaultTimeout),
	}
}

// DefaultRules は既定のルート定義。上から順に評価する。
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "/api/login", Target: TargetAuth},
		{Pattern: "/api/register", Target: TargetAuth},
		{Pattern: "/states", Target: TargetAuth},
		{Pattern: "/cities/**", Target: TargetAuth},
		{Pattern: "/api/getallroles", Target: TargetAuth},
		{Pattern: "/api/me", Target: TargetAuth},
		{Pattern: "/api/all", Target: TargetAuth},

		{Pattern: "/api/admin/**", Target: TargetAdmin},

		{Pattern: "/api/catalog/categories", Target: TargetSearch},
		{Pattern: "/api/catalog/categories/*/items", Target: TargetSearch},
		{Pattern: "/api/catalog/items/*", Target: TargetSearch},
		{Pattern: "/api/catalog/search", Target: TargetSearch},
		{Pattern: "/api/catalog/**", Target: TargetSearch},

		{Pattern: "/api/categories", Target: TargetOwner},
		{Pattern: "/api/items/**", Target: TargetOwner},
		{Pattern: "/api/products/**", Target: TargetOwner},

		{Pattern: "/addtocart", Target: TargetCustomer},
		{Pattern: "/getallcartproducts", Target: TargetCustomer},
		{Pattern: "/getproductsbyid", Target: TargetCustomer},
		{Pattern: "/deleteproductfromcart/**", Target: TargetCustomer},
		{Pattern: "/order/**", Target: TargetCustomer},
		{Pattern: "/getallproducts", Target: TargetCustomer},
		{Pattern: "/*/details", Target: TargetCustomer},
	}
}

// routesFile はルート定義ファイルの構造。
type routesFile struct {
	// Routes は上から順に評価するルート。
	Routes []Rule `yaml:"routes"`
}

// LoadRules はYAMLファイルからルート定義を読み込む。pathが空の場合は DefaultRules を返す。
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ルート定義ファイルの読み込みに失敗: %w", err)
	}
	return ParseRules(data)
}

// ParseRules はYAMLのルート定義を解析する。
func ParseRules(data []byte) ([]Rule, error) {
	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ルート定義の解析に失敗: %w", err)
	}
	if len(f.Routes) == 0 {
		return nil, errors.New("ルート定義に routes がありません")
	}
	return f.Routes, nil
}

// ResolveUpstreams はルートテーブルが参照する転送先ごとのベースURLを解決する。
// 転送先 foo のURLは環境変数 FOO_URL から読む（認証サービスは AUTH_URL）。
// URLが未設定の転送先が1つでもあればエラーを返す。
func ResolveUpstreams(table *RouteTable, lookup func(key string) string) (map[string]string, error) {
	upstreams := make(map[string]string)
	var missing []string
	for _, target := range table.Targets() {
		key := upstreamEnvKey(target)
		url := strings.TrimRight(strings.TrimSpace(lookup(key)), "/")
		if url == "" {
			missing = append(missing, key)
			continue
		}
		upstreams[target] = url
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("転送先のURLが設定されていません: %s", strings.Join(missing, ", "))
	}
	return upstreams, nil
}

// upstreamEnvKey は転送先のURLを保持する環境変数名を返す。
func upstreamEnvKey(target string) string {
	return strings.ToUpper(strings.ReplaceAll(target, "-", "_")) + "_URL"
}
