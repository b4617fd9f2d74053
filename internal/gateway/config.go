package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/nao1215/productgate/pkg/logging"
)

// DefaultPublicRoutes は PUBLIC_ROUTES 未設定時に認証不要とするルート。
// APIドキュメント関連と運用エンドポイントのみを含む。
var DefaultPublicRoutes = []string{
	"/swagger-ui",
	"/swagger-ui/**",
	"/v3/api-docs/**",
	"/swagger-resources/**",
	"/api-docs/**",
	"/aggregate/**",
	"/health",
	"/metrics",
}

// Config はGatewayサービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string `env:"PORT,default=8080"`
	// ProductServiceURL は商品サービスのベースURL。
	ProductServiceURL string `env:"PRODUCT_SERVICE_URL,default=http://localhost:8084"`
	// UpstreamTimeout は内部サービスへのリクエストのタイムアウト。
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT,default=30s"`
	// FrontendURL はCORSで許可するオリジン。
	FrontendURL string `env:"FRONTEND_URL,default=http://localhost:3000"`
	// PublicRoutes はカンマ区切りの公開ルートパターン。空の場合は DefaultPublicRoutes。
	PublicRoutes string `env:"PUBLIC_ROUTES"`
	// Auth はトークン検証の設定。
	Auth AuthConfig
	// Log はロガーの設定。
	Log logging.Config
}

// AuthConfig はトークン検証の設定。
type AuthConfig struct {
	// Issuer は信頼する発行者の識別子。
	Issuer string `env:"AUTH_ISSUER,required"`
	// JWKSURL はJWK Setのエンドポイント。空の場合はOIDCディスカバリで解決する。
	JWKSURL string `env:"AUTH_JWKS_URL"`
	// JWKSRefresh は鍵の再取得間隔。
	JWKSRefresh time.Duration `env:"AUTH_JWKS_REFRESH,default=15m"`
	// AllowedAlgs はカンマ区切りの許可する署名アルゴリズム。
	AllowedAlgs string `env:"AUTH_ALLOWED_ALGS,default=RS256"`
	// Leeway はexp/nbf判定で許容する時計のずれ。
	// 既定値の30秒では、expを過ぎてから30秒以内のトークンも受理する。
	// 0を指定すると現在時刻と厳密に比較する。
	Leeway time.Duration `env:"AUTH_LEEWAY,default=30s"`
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate は設定値の整合性を検証する。
func (c Config) validate() error {
	if c.Auth.Issuer == "" {
		return errors.New("AUTH_ISSUERが設定されていません")
	}
	if c.ProductServiceURL == "" {
		return errors.New("PRODUCT_SERVICE_URLが設定されていません")
	}
	if c.Auth.Leeway < 0 {
		return fmt.Errorf("AUTH_LEEWAYは0以上である必要があります: %s", c.Auth.Leeway)
	}
	return nil
}

// publicRoutes は公開ルートパターンの一覧を返す。
func (c Config) publicRoutes() []string {
	if routes := splitList(c.PublicRoutes); len(routes) > 0 {
		return routes
	}
	return DefaultPublicRoutes
}

// allowedAlgs は許可する署名アルゴリズムの一覧を返す。
func (c AuthConfig) allowedAlgs() []string {
	return splitList(c.AllowedAlgs)
}

// splitList はカンマ区切りの文字列を空要素を除いて分割する。
func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
