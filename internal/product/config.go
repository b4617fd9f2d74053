package product

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/nao1215/productgate/pkg/logging"
)

// Config は商品サービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string `env:"PORT,default=8084"`
	// DBPath はSQLiteのデータソース名。
	DBPath string `env:"PRODUCT_DB_PATH,default=file:/data/product.db?_pragma=journal_mode(WAL)"`
	// RedisAddr は一覧キャッシュに使うRedisのアドレス。空の場合はキャッシュしない。
	RedisAddr string `env:"REDIS_ADDR"`
	// CacheTTL は一覧キャッシュの有効期間。
	CacheTTL time.Duration `env:"PRODUCT_CACHE_TTL,default=5m"`
	// Log はロガーの設定。
	Log logging.Config
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	return cfg, nil
}
