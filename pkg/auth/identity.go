package auth

import (
	"context"
	"encoding/json"
	"time"
)

// Identity は検証済みトークンから導出される認証コンテキスト。
// リクエストごとに生成され、リクエストの処理パイプラインだけが所有する。
type Identity struct {
	// Subject はトークンのsubクレーム。
	Subject string
	// Issuer はトークンのissクレーム。
	Issuer string
	// ExpiresAt はトークンの有効期限。
	ExpiresAt time.Time
	// claims は検証済みトークンの全クレーム。
	claims map[string]any
}

// Claim は指定名のクレームを返す。
func (i *Identity) Claim(name string) (any, bool) {
	v, ok := i.claims[name]
	return v, ok
}

// Claims は全クレームを任意の構造体にデコードする。
func (i *Identity) Claims(ref any) error {
	b, err := json.Marshal(i.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

type identityKey struct{}

// WithIdentity はコンテキストに Identity を設定する。
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom はコンテキストから Identity を取得する。
// 認証ゲートを通過していないリクエストでは ok=false になる。
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
