// 商品サービスのエントリポイント。
// 商品のCRUDを提供する。Gatewayの背後でのみ公開する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/productgate/internal/product"
	"github.com/nao1215/productgate/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "商品サービスの起動に失敗: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := product.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log, "product")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := product.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("商品サーバーの初期化に失敗しました", zap.Error(err))
		return err
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.Warn("リソースの解放に失敗しました", zap.Error(err))
		}
	}()

	return server.Run(ctx)
}
