package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/productgate/pkg/auth"
	"go.uber.org/zap"
)

// HeaderUserID は内部ネットワークでユーザーIDを伝播するためのHTTPヘッダーキー。
// クライアントから送られた値は AuthGate が必ず削除する。
const HeaderUserID = "X-User-ID"

// contextKeyUserID はGinコンテキストにユーザーIDを格納するためのキー。
const contextKeyUserID = "user_id"

// CredentialValidator はリクエストのBearerトークンを検証する。
// *auth.Validator が満たす。
type CredentialValidator interface {
	Validate(ctx context.Context, r *http.Request) (*auth.Identity, error)
}

// errorMessages はエラーコードごとのレスポンスメッセージ。
var errorMessages = map[string]string{
	"missing_credential":       "Authorizationヘッダーが必要です",
	"malformed_token":          "トークンの形式が不正です",
	"invalid_signature":        "トークンの署名が無効です",
	"token_expired":            "トークンの有効期限が切れています",
	"token_not_yet_valid":      "トークンはまだ有効ではありません",
	"untrusted_issuer":         "信頼されていない発行者のトークンです",
	"key_material_unavailable": "認証鍵を取得できないため認証できません",
}

// AuthGate はリクエスト認可ゲートのGinミドルウェアを返す。
//
// パスが公開ルートに一致した場合は認証ヘッダーを読まずに次へ進む。
// それ以外は validator でトークンを検証し、成功時は Identity をリクエストの
// コンテキストに、ユーザーIDをGinコンテキストの "user_id" に設定する。
// 失敗時はエラー分類に応じたステータスで中断し、後続のハンドラは実行しない。
func AuthGate(classifier *auth.RouteClassifier, validator CredentialValidator, logger *zap.Logger, metrics *GateMetrics) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		// 内部向けヘッダーをクライアントが偽装できないようにする
		c.Request.Header.Del(HeaderUserID)

		if classifier.Classify(c.Request.URL.Path) == auth.Public {
			metrics.observe("public")
			c.Next()
			return
		}

		ctx := c.Request.Context()
		id, err := validator.Validate(ctx, c.Request)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				metrics.observe("canceled")
				c.Abort()
				return
			}

			code := auth.Code(err)
			status := auth.StatusCode(err)
			metrics.observe(code)
			logger.Info("認証に失敗したためリクエストを拒否しました",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("code", code),
				zap.Int("status", status),
				zap.Error(err),
			)

			if status == http.StatusUnauthorized {
				c.Header("WWW-Authenticate", "Bearer")
			}
			msg, ok := errorMessages[code]
			if !ok {
				msg = "認証に失敗しました"
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
			return
		}

		c.Request = c.Request.WithContext(auth.WithIdentity(ctx, id))
		c.Set(contextKeyUserID, id.Subject)
		metrics.observe("admitted")
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// AuthGateミドルウェアで認証されていないリクエストでは空文字列を返す。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetIdentity はリクエストのコンテキストから認証済みの Identity を取得する。
func GetIdentity(c *gin.Context) (*auth.Identity, bool) {
	return auth.IdentityFrom(c.Request.Context())
}

// ForwardedUser はGatewayが付与した X-User-ID をGinコンテキストの "user_id" に設定する
// ミドルウェアを返す。Gatewayの背後にある内部サービス専用で、値の検証は行わない。
func ForwardedUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader(HeaderUserID); userID != "" {
			c.Set(contextKeyUserID, userID)
		}
		c.Next()
	}
}
