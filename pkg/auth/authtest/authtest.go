// Package authtest はテスト用のトークン発行者を提供する。
//
// RSA鍵を生成し、JWKSとOpenID Connectディスカバリ文書をhttptestサーバーで
// 公開する。テストからは Mint で任意のクレームを持つトークンを発行できる。
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer はテスト用のトークン発行者。
type Issuer struct {
	// Server はJWKSとディスカバリ文書を公開するサーバー。
	Server *httptest.Server
	// KeyID は署名鍵のkid。
	KeyID string

	key     *rsa.PrivateKey
	failing atomic.Bool
	fetches atomic.Int64
}

// NewIssuer は新しいテスト用発行者を起動する。サーバーはテスト終了時に停止する。
func NewIssuer(t testing.TB) *Issuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("RSA鍵の生成に失敗: %v", err)
	}
	iss := &Issuer{KeyID: "test-key-1", key: key}
	jwks := iss.JWKS(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                iss.URL(),
			"jwks_uri":                              iss.JWKSURL(),
			"authorization_endpoint":                iss.URL() + "/authorize",
			"token_endpoint":                        iss.URL() + "/token",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, _ *http.Request) {
		iss.fetches.Add(1)
		if iss.failing.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	})
	iss.Server = httptest.NewServer(mux)
	t.Cleanup(iss.Server.Close)

	return iss
}

// URL は発行者識別子（サーバーのベースURL）を返す。
func (i *Issuer) URL() string { return i.Server.URL }

// JWKSURL はJWKSエンドポイントのURLを返す。
func (i *Issuer) JWKSURL() string { return i.Server.URL + "/jwks" }

// SetJWKSFailing はJWKSエンドポイントを503応答に切り替える。
func (i *Issuer) SetJWKSFailing(failing bool) { i.failing.Store(failing) }

// JWKSFetches はJWKSエンドポイントへのリクエスト回数を返す。
func (i *Issuer) JWKSFetches() int64 { return i.fetches.Load() }

// JWKS は公開鍵のJWK Set JSONを返す。
func (i *Issuer) JWKS(t testing.TB) []byte {
	t.Helper()

	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &i.key.PublicKey,
		KeyID:     i.KeyID,
		Algorithm: "RS256",
		Use:       "sig",
	}}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("JWK Setのシリアライズに失敗: %v", err)
	}
	return b
}

// Claims はこの発行者が発行する既定のクレームを返す。
// 有効期限は現在から1時間後。
func (i *Issuer) Claims(subject string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": i.URL(),
		"sub": subject,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

// Mint は任意のクレームでRS256署名したトークンを発行する。
func (i *Issuer) Mint(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.KeyID
	signed, err := token.SignedString(i.key)
	if err != nil {
		t.Fatalf("トークンの署名に失敗: %v", err)
	}
	return signed
}

// MintFor は既定のクレームで subject 向けのトークンを発行する。
func (i *Issuer) MintFor(t testing.TB, subject string) string {
	t.Helper()
	return i.Mint(t, i.Claims(subject))
}
