package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/productgate/pkg/auth"
	"github.com/nao1215/productgate/pkg/httpclient"
	"github.com/nao1215/productgate/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 10 * time.Second

// keyRefresher は鍵集合を定期的に再取得する。*auth.JWKSCache が満たす。
type keyRefresher interface {
	Run(ctx context.Context)
}

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// logger は構造化ロガー。
	logger *zap.Logger
	// product は商品サービスへのクライアント。
	product *httpclient.Client
	// refresher は鍵の定期再取得。静的な鍵の場合はnil。
	refresher keyRefresher
	// registry はPrometheusメトリクスのレジストリ。
	registry *prometheus.Registry
}

// NewServer は新しいGatewayサーバーを生成する。
//
// AUTH_JWKS_URL が空の場合は発行者のOIDCディスカバリで jwks_uri を解決する。
// 初回の鍵取得に失敗した場合はエラーを返す。鍵が無い状態では保護ルートを
// 一切通せないため、呼び出し側は起動を中止すること。
func NewServer(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	jwksURL := cfg.Auth.JWKSURL
	if jwksURL == "" {
		discovered, err := auth.Discover(ctx, cfg.Auth.Issuer, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", auth.ErrKeyMaterialUnavailable, err)
		}
		jwksURL = discovered
		logger.Info("ディスカバリでJWKSのURLを解決しました", zap.String("jwks_url", jwksURL))
	}

	cache, err := auth.NewJWKSCache(ctx, auth.JWKSConfig{
		URL:             jwksURL,
		RefreshInterval: cfg.Auth.JWKSRefresh,
		Metrics:         auth.NewKeyMetrics(registry),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("認証鍵の初回取得に失敗: %w", err)
	}

	s, err := newServer(cfg, logger, cache, registry)
	if err != nil {
		return nil, err
	}
	s.refresher = cache
	return s, nil
}

// newServer は鍵の取得元を指定してサーバーを組み立てる。
func newServer(cfg Config, logger *zap.Logger, keys auth.KeySource, registry *prometheus.Registry) (*Server, error) {
	classifier, err := auth.NewRouteClassifier(cfg.publicRoutes())
	if err != nil {
		return nil, fmt.Errorf("公開ルートの設定が不正です: %w", err)
	}

	validator, err := auth.NewValidator(keys, auth.ValidatorConfig{
		Issuer:      cfg.Auth.Issuer,
		AllowedAlgs: cfg.Auth.allowedAlgs(),
		Leeway:      cfg.Auth.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("トークン検証の初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))
	router.Use(middleware.AuthGate(classifier, validator, logger, middleware.NewGateMetrics(registry)))

	s := &Server{
		router:   router,
		port:     cfg.Port,
		logger:   logger,
		product:  httpclient.New(cfg.ProductServiceURL, cfg.UpstreamTimeout),
		registry: registry,
	}
	s.setupRoutes()

	logger.Info("Gatewayを構成しました",
		zap.Strings("public_routes", classifier.Patterns()),
		zap.String("issuer", cfg.Auth.Issuer),
		zap.String("product_service_url", cfg.ProductServiceURL),
	)
	return s, nil
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーと鍵の再取得を起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.refresher != nil {
		go s.refresher.Run(ctx)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gatewayサービスを起動します", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーが停止しました: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Gatewayサービスを停止します")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	proxy := s.handleProxy()
	s.router.Any("/api/product", proxy)
	s.router.Any("/api/product/*path", proxy)

	// 商品サービスのAPIドキュメント（公開）
	s.router.GET("/aggregate/product-service/v3/api-docs", s.handleProductAPIDocs())

	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "リソースが見つかりません", "code": "not_found"})
	})
}

// handleProxy はリクエストを商品サービスにそのまま転送するハンドラを返す。
// 認可ゲートを通過したユーザーIDは X-User-ID ヘッダーで伝播する。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if userID := middleware.GetUserID(c); userID != "" {
			ctx = httpclient.WithUserID(ctx, userID)
		}

		resp, err := s.product.Forward(ctx, c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery, c.Request.Header, c.Request.Body)
		if err != nil {
			if ctx.Err() != nil {
				c.Abort()
				return
			}
			s.logger.Warn("商品サービスへの転送に失敗しました",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			c.JSON(http.StatusBadGateway, gin.H{"error": "内部サービスとの通信に失敗しました", "code": "bad_gateway"})
			return
		}
		defer resp.Body.Close()

		httpclient.CopyHeader(c.Writer.Header(), resp.Header)
		c.Status(resp.StatusCode)
		if _, err := io.Copy(c.Writer, resp.Body); err != nil {
			s.logger.Warn("レスポンスの転送に失敗しました", zap.String("path", c.Request.URL.Path), zap.Error(err))
		}
	}
}

// handleProductAPIDocs は商品サービスのOpenAPI文書を取得して返すハンドラを返す。
func (s *Server) handleProductAPIDocs() gin.HandlerFunc {
	return func(c *gin.Context) {
		var doc map[string]any
		if err := s.product.GetJSON(c.Request.Context(), "/api-docs", &doc); err != nil {
			s.logger.Warn("APIドキュメントの取得に失敗しました", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "APIドキュメントの取得に失敗しました", "code": "bad_gateway"})
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}
