package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Discover はOpenID Connect Discoveryで発行者のjwks_uriを解決する。
// 発行者識別子とディスカバリ文書のissuerが一致しない場合はエラーになる。
func Discover(ctx context.Context, issuer string, client *http.Client) (string, error) {
	if issuer == "" {
		return "", errors.New("発行者が設定されていません")
	}
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("OIDCディスカバリに失敗: %w", err)
	}

	var meta struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("ディスカバリ文書のパースに失敗: %w", err)
	}
	if meta.JWKSURI == "" {
		return "", errors.New("ディスカバリ文書にjwks_uriがありません")
	}
	return meta.JWKSURI, nil
}
