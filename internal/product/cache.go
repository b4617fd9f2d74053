package product

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ListCache は商品一覧のキャッシュ。
// 書き込み系の操作の後は必ず Invalidate を呼び出すこと。
type ListCache interface {
	// Get はキャッシュ済みの一覧を返す。キャッシュが無い場合はok=falseとなり、
	// ストアを読む前の世代genを返す。
	Get(ctx context.Context) (products []Product, gen int64, ok bool, err error)
	// Set は世代がgenから変わっていない場合に限り一覧をキャッシュする。
	Set(ctx context.Context, gen int64, products []Product) error
	// Invalidate はキャッシュを破棄し、世代を進める。
	Invalidate(ctx context.Context) error
}

const (
	// defaultListKey は商品一覧を保存するRedisキー。
	defaultListKey = "product:list"
	// defaultGenerationKey は一覧の世代を保存するRedisキー。
	defaultGenerationKey = "product:list:gen"
)

// setIfGenerationScript は世代が一致する場合のみ一覧を保存する。
// KEYS[1] = 一覧キー
// KEYS[2] = 世代キー
// ARGV[1] = 読み取り時の世代
// ARGV[2] = 一覧のJSON
// ARGV[3] = TTL(ミリ秒)
var setIfGenerationScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if (gen or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisListCache はRedisに商品一覧を保存する ListCache。
// 一覧の読み取り中に書き込みがあった場合、古い一覧は保存されない。
type RedisListCache struct {
	client redis.UniversalClient
	key    string
	genKey string
	ttl    time.Duration
}

// NewRedisListCache は RedisListCache を生成する。ttlが0以下の場合は5分。
func NewRedisListCache(client redis.UniversalClient, ttl time.Duration) *RedisListCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisListCache{client: client, key: defaultListKey, genKey: defaultGenerationKey, ttl: ttl}
}

// Get はキャッシュ済みの一覧と現在の世代を返す。
func (c *RedisListCache) Get(ctx context.Context) ([]Product, int64, bool, error) {
	values, err := c.client.MGet(ctx, c.key, c.genKey).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("キャッシュの取得に失敗: %w", err)
	}

	var gen int64
	if raw, ok := values[1].(string); ok {
		if gen, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, false, fmt.Errorf("世代の解析に失敗: %w", err)
		}
	}

	raw, ok := values[0].(string)
	if !ok {
		return nil, gen, false, nil
	}
	var products []Product
	if err := json.Unmarshal([]byte(raw), &products); err != nil {
		return nil, gen, false, fmt.Errorf("キャッシュのデシリアライズに失敗: %w", err)
	}
	if products == nil {
		products = []Product{}
	}
	return products, gen, true, nil
}

// Set は世代がgenのままであれば一覧をTTL付きで保存する。
func (c *RedisListCache) Set(ctx context.Context, gen int64, products []Product) error {
	raw, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("キャッシュのシリアライズに失敗: %w", err)
	}
	err = setIfGenerationScript.Run(ctx, c.client, []string{c.key, c.genKey},
		gen, raw, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("キャッシュの保存に失敗: %w", err)
	}
	return nil
}

// Invalidate は世代を進めてキャッシュを破棄する。
func (c *RedisListCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("キャッシュの破棄に失敗: %w", err)
	}
	return nil
}

// noopCache は何もキャッシュしない ListCache。REDIS_ADDR 未設定時に使う。
type noopCache struct{}

func (noopCache) Get(context.Context) ([]Product, int64, bool, error) { return nil, 0, false, nil }
func (noopCache) Set(context.Context, int64, []Product) error         { return nil }
func (noopCache) Invalidate(context.Context) error                    { return nil }
