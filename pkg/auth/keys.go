package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// KeySource は信頼済み発行者の検証鍵を提供する。
// 実装は複数のゴルーチンから同時に呼び出されても安全でなければならない。
type KeySource interface {
	// Keyfunc はトークン検証に使う鍵選択関数を返す。
	// 鍵が一度も取得できていない場合は ErrKeyMaterialUnavailable を返す。
	Keyfunc(ctx context.Context) (jwt.Keyfunc, error)
}

// maxJWKSBytes はJWKSレスポンスの読み取り上限。
const maxJWKSBytes = 1 << 20

// parseJWKSet はJWK Set JSONを検証してkeyfuncに変換する。
func parseJWKSet(raw []byte) (keyfunc.Keyfunc, error) {
	var set struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("JWK Setのパースに失敗: %w", err)
	}
	if len(set.Keys) == 0 {
		return nil, errors.New("JWK Setに鍵が含まれていません")
	}
	kf, err := keyfunc.NewJWKSetJSON(json.RawMessage(raw))
	if err != nil {
		return nil, fmt.Errorf("JWK Setの読み込みに失敗: %w", err)
	}
	return kf, nil
}

// StaticKeySource は固定のJWK Setを提供する KeySource。
// テストやネットワークに出られない環境で使用する。
type StaticKeySource struct {
	kf keyfunc.Keyfunc
}

// NewStaticKeySource はJWK Set JSONから StaticKeySource を生成する。
func NewStaticKeySource(jwksJSON []byte) (*StaticKeySource, error) {
	kf, err := parseJWKSet(jwksJSON)
	if err != nil {
		return nil, err
	}
	return &StaticKeySource{kf: kf}, nil
}

// Keyfunc は固定の鍵選択関数を返す。
func (s *StaticKeySource) Keyfunc(ctx context.Context) (jwt.Keyfunc, error) {
	return s.kf.KeyfuncCtx(ctx), nil
}

// JWKSConfig はリモートJWKSの取得設定。
type JWKSConfig struct {
	// URL はJWK Setを公開するエンドポイント。
	URL string
	// RefreshInterval は鍵の再取得間隔。0以下の場合は15分。
	RefreshInterval time.Duration
	// HTTPClient はJWKS取得に使うクライアント。nilの場合はタイムアウト10秒の既定クライアント。
	HTTPClient *http.Client
	// Metrics は再取得結果を記録するメトリクス。nilでもよい。
	Metrics *KeyMetrics
}

// keySnapshot は取得済みの鍵集合。一度公開したら変更しない。
type keySnapshot struct {
	kf        keyfunc.Keyfunc
	fetchedAt time.Time
}

// JWKSCache はリモートJWKSを定期的に再取得してキャッシュする KeySource。
//
// 現在の鍵集合は atomic.Pointer で差し替えるため、読み手は再取得中でも
// ブロックされない。再取得に失敗した場合は最後に成功した鍵集合を使い続ける。
type JWKSCache struct {
	url      string
	interval time.Duration
	client   *http.Client
	metrics  *KeyMetrics
	logger   *zap.Logger
	current  atomic.Pointer[keySnapshot]
}

// NewJWKSCache は JWKSCache を生成し、初回の鍵取得を同期的に行う。
// 初回取得に失敗した場合はエラーを返す。呼び出し側は起動を中止すること。
func NewJWKSCache(ctx context.Context, cfg JWKSConfig, logger *zap.Logger) (*JWKSCache, error) {
	if cfg.URL == "" {
		return nil, errors.New("JWKSのURLが設定されていません")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 15 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &JWKSCache{
		url:      cfg.URL,
		interval: cfg.RefreshInterval,
		client:   cfg.HTTPClient,
		metrics:  cfg.Metrics,
		logger:   logger.Named("jwks"),
	}
	if err := c.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyMaterialUnavailable, err)
	}
	return c, nil
}

// Keyfunc は現在の鍵集合に対する鍵選択関数を返す。
func (c *JWKSCache) Keyfunc(ctx context.Context) (jwt.Keyfunc, error) {
	snap := c.current.Load()
	if snap == nil {
		return nil, ErrKeyMaterialUnavailable
	}
	return snap.kf.KeyfuncCtx(ctx), nil
}

// FetchedAt は現在の鍵集合を取得した時刻を返す。
func (c *JWKSCache) FetchedAt() time.Time {
	if snap := c.current.Load(); snap != nil {
		return snap.fetchedAt
	}
	return time.Time{}
}

// Refresh はJWKSを取得して鍵集合を差し替える。
// 失敗した場合は既存の鍵集合をそのまま残す。
func (c *JWKSCache) Refresh(ctx context.Context) error {
	kf, err := c.fetch(ctx)
	if err != nil {
		c.metrics.observeRefresh(false)
		return err
	}
	c.current.Store(&keySnapshot{kf: kf, fetchedAt: time.Now()})
	c.metrics.observeRefresh(true)
	c.logger.Debug("JWKSを更新しました", zap.String("url", c.url))
	return nil
}

// Run はコンテキストがキャンセルされるまで一定間隔で Refresh を実行する。
func (c *JWKSCache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("JWKSの再取得に失敗したため前回の鍵を使用します",
					zap.String("url", c.url),
					zap.Time("fetched_at", c.FetchedAt()),
					zap.Error(err),
				)
			}
		}
	}
}

func (c *JWKSCache) fetch(ctx context.Context) (keyfunc.Keyfunc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("JWKSリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("JWKSの取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKSエンドポイントがエラーを返しました: status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("JWKSレスポンスの読み取りに失敗: %w", err)
	}
	return parseJWKSet(body)
}

// KeyMetrics はJWKS再取得のPrometheusメトリクス。
type KeyMetrics struct {
	refreshTotal *prometheus.CounterVec
}

// NewKeyMetrics は KeyMetrics を生成してレジストリに登録する。
func NewKeyMetrics(reg prometheus.Registerer) *KeyMetrics {
	m := &KeyMetrics{
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "jwks",
				Name:      "refresh_total",
				Help:      "Total number of JWKS refresh attempts",
			},
			[]string{"status"},
		),
	}
	m.refreshTotal.WithLabelValues("success")
	m.refreshTotal.WithLabelValues("error")
	if reg != nil {
		reg.MustRegister(m.refreshTotal)
	}
	return m
}

func (m *KeyMetrics) observeRefresh(ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	m.refreshTotal.WithLabelValues(status).Inc()
}
