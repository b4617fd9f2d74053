package product

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/productgate/pkg/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//go:embed openapi.json
var openAPIDocument []byte

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 10 * time.Second

// Server は商品サービスのHTTPサーバー。
// Gatewayの背後でのみ公開され、認証はGatewayが済ませている前提で動作する。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// logger は構造化ロガー。
	logger *zap.Logger
	// store は商品の永続化先。
	store Store
	// cache は商品一覧のキャッシュ。
	cache ListCache
	// closers は停止時に閉じるリソース。
	closers []func() error
}

// NewServer は新しい商品サーバーを生成する。
// SQLiteデータベースを開いてマイグレーションを適用し、REDIS_ADDR が設定されていれば
// 一覧キャッシュとしてRedisに接続する。
func NewServer(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := OpenSQLite(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	closers := []func() error{store.Close}

	var cache ListCache = noopCache{}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = store.Close()
			return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
		}
		cache = NewRedisListCache(client, cfg.CacheTTL)
		closers = append(closers, client.Close)
		logger.Info("商品一覧のキャッシュにRedisを使用します", zap.String("addr", cfg.RedisAddr))
	}

	s := newServer(cfg.Port, store, cache, logger)
	s.closers = closers
	return s, nil
}

// newServer はストアとキャッシュを指定してサーバーを組み立てる。
func newServer(port string, store Store, cache ListCache, logger *zap.Logger) *Server {
	if cache == nil {
		cache = noopCache{}
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.ForwardedUser())
	router.Use(middleware.Logger(logger))

	s := &Server{
		router: router,
		port:   port,
		logger: logger,
		store:  store,
		cache:  cache,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close はデータベースなどのリソースを解放する。
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("商品サービスを起動します", zap.String("addr", srv.Addr))
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

	s.logger.Info("商品サービスを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	products := s.router.Group("/api/product")
	{
		// 商品登録
		products.POST("", s.handleCreate())
		// 商品一覧取得
		products.GET("", s.handleList())
		// 商品取得
		products.GET("/:id", s.handleGet())
		// 商品更新
		products.PUT("/:id", s.handleUpdate())
		// 商品削除
		products.DELETE("/:id", s.handleDelete())
	}

	s.router.GET("/api-docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", openAPIDocument)
	})

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "product"})
	})
}

// productRequest は商品の登録・更新リクエストのJSON構造。
type productRequest struct {
	// Name は商品名。
	Name string `json:"name" binding:"required"`
	// Description は商品の説明。
	Description string `json:"description"`
	// Price は価格。
	Price float64 `json:"price" binding:"gte=0"`
}

// location は商品のLocationヘッダー値を返す。
func location(id string) string {
	return "/api/product/" + id
}

// abortInvalid は400応答を返す。
func abortInvalid(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err), "code": "invalid_request"})
}

// abortNotFound は404応答を返す。
func abortNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "商品が見つかりません", "code": "not_found"})
}

// abortInternal は500応答を返してエラーをログに記録する。
func (s *Server) abortInternal(c *gin.Context, msg string, err error) {
	s.logger.Error(msg,
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg, "code": "internal_error"})
}

// invalidateList は一覧キャッシュを破棄する。失敗はログのみ。
func (s *Server) invalidateList(c *gin.Context) {
	if err := s.cache.Invalidate(c.Request.Context()); err != nil {
		s.logger.Warn("一覧キャッシュの破棄に失敗しました", zap.Error(err))
	}
}

// handleCreate は商品登録を処理するハンドラを返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortInvalid(c, err)
			return
		}

		p := Product{
			ID:          uuid.NewString(),
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			CreatedBy:   middleware.GetUserID(c),
		}
		if err := s.store.Create(c.Request.Context(), p); err != nil {
			s.abortInternal(c, "商品の登録に失敗しました", err)
			return
		}
		s.invalidateList(c)

		s.logger.Info("商品を登録しました",
			zap.String("product_id", p.ID),
			zap.String("user_id", p.CreatedBy),
		)
		c.Header("Location", location(p.ID))
		c.JSON(http.StatusCreated, p)
	}
}

// handleList は商品一覧取得を処理するハンドラを返す。
// キャッシュにあればそれを返し、無ければストアから取得してキャッシュする。
// 取得中に書き込みで世代が進んだ場合、取得した一覧はキャッシュされない。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		products, gen, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("一覧キャッシュの取得に失敗しました", zap.Error(err))
		}
		if ok {
			c.JSON(http.StatusOK, products)
			return
		}

		products, err = s.store.List(ctx)
		if err != nil {
			s.abortInternal(c, "商品一覧の取得に失敗しました", err)
			return
		}
		if err := s.cache.Set(ctx, gen, products); err != nil {
			s.logger.Warn("一覧キャッシュの保存に失敗しました", zap.Error(err))
		}

		c.JSON(http.StatusOK, products)
	}
}

// handleGet は商品取得を処理するハンドラを返す。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.store.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, ErrNotFound) {
			abortNotFound(c)
			return
		}
		if err != nil {
			s.abortInternal(c, "商品の取得に失敗しました", err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// handleUpdate は商品更新を処理するハンドラを返す。
// 成功時はボディなしの204とLocationヘッダーを返す。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortInvalid(c, err)
			return
		}

		err := s.store.Update(c.Request.Context(), Product{
			ID:          id,
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
		})
		if errors.Is(err, ErrNotFound) {
			abortNotFound(c)
			return
		}
		if err != nil {
			s.abortInternal(c, "商品の更新に失敗しました", err)
			return
		}
		s.invalidateList(c)

		c.Header("Location", location(id))
		c.Status(http.StatusNoContent)
	}
}

// handleDelete は商品削除を処理するハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := s.store.Delete(c.Request.Context(), c.Param("id"))
		if errors.Is(err, ErrNotFound) {
			abortNotFound(c)
			return
		}
		if err != nil {
			s.abortInternal(c, "商品の削除に失敗しました", err)
			return
		}
		s.invalidateList(c)

		c.Status(http.StatusNoContent)
	}
}
