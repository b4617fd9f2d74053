// API Gatewayサービスのエントリポイント。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
// 公開ルート以外のリクエストはBearerトークンを検証してから商品サービスに転送する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/productgate/internal/gateway"
	"github.com/nao1215/productgate/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Gatewayサービスの起動に失敗: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := gateway.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log, "gateway")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := gateway.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("Gatewayサーバーの初期化に失敗しました", zap.Error(err))
		return err
	}
	return server.Run(ctx)
}
