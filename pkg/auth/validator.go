package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// bearerScheme はAuthorizationヘッダーの認証スキーム。
const bearerScheme = "Bearer"

// ExtractBearer はAuthorizationヘッダーからBearerトークンを取り出す。
// ヘッダーが無い、または "Bearer <token>" 形式でない場合は ErrMissingCredential を返す。
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", newValidationError(ErrMissingCredential, errors.New("Authorizationヘッダーがありません"))
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", newValidationError(ErrMissingCredential, errors.New("Bearer形式ではありません"))
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", newValidationError(ErrMissingCredential, errors.New("Bearerトークンが空です"))
	}
	return token, nil
}

// ValidatorConfig はトークン検証の設定。
type ValidatorConfig struct {
	// Issuer は信頼する発行者の識別子。issクレームと完全一致で比較する。
	Issuer string
	// AllowedAlgs は許可する署名アルゴリズム。空の場合はRS256のみ。
	AllowedAlgs []string
	// Leeway はexp/nbf判定で許容する時計のずれ。0の場合は許容しない。
	Leeway time.Duration
	// Now は現在時刻を返す関数。nilの場合は time.Now。
	Now func() time.Time
}

// Validator はBearerトークンを検証して Identity を生成する。
// 状態を持たないため、複数のゴルーチンから同時に使用できる。
type Validator struct {
	keys   KeySource
	issuer string
	parser *jwt.Parser
}

// NewValidator は Validator を生成する。
func NewValidator(keys KeySource, cfg ValidatorConfig) (*Validator, error) {
	if keys == nil {
		return nil, errors.New("KeySourceが必要です")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("発行者が設定されていません")
	}
	algs := cfg.AllowedAlgs
	if len(algs) == 0 {
		algs = []string{"RS256"}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Validator{
		keys:   keys,
		issuer: cfg.Issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods(algs),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithTimeFunc(now),
		),
	}, nil
}

// Validate はリクエストのBearerトークンを検証する。
func (v *Validator) Validate(ctx context.Context, r *http.Request) (*Identity, error) {
	raw, err := ExtractBearer(r)
	if err != nil {
		return nil, err
	}
	return v.ValidateToken(ctx, raw)
}

// ValidateToken はトークン文字列を検証する。
//
// 構造のパース、署名、exp/nbf、issの順に検証し、最初に失敗した段階の
// エラー分類を ValidationError として返す。コンテキストがキャンセルされた
// 場合はコンテキストのエラーをそのまま返す。
func (v *Validator) ValidateToken(ctx context.Context, raw string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kf, err := v.keys.Keyfunc(ctx)
		if err != nil {
			return nil, err
		}
		return kf(t)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newValidationError(classifyParseError(err), err)
	}

	iss, _ := claims.GetIssuer()
	if iss != v.issuer {
		return nil, newValidationError(ErrUntrustedIssuer, fmt.Errorf("iss=%q", iss))
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, newValidationError(ErrMalformedToken, errors.New("subクレームがありません"))
	}

	id := &Identity{Subject: sub, Issuer: iss, claims: claims}
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

// classifyParseError はgolang-jwtのエラーを検証段階の順序に従って分類する。
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, ErrKeyMaterialUnavailable):
		return ErrKeyMaterialUnavailable
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenNotYetValid
	default:
		return ErrMalformedToken
	}
}
