package auth

import (
	"errors"
	"net/http"
)

// 認証ゲートのエラー分類。ValidationError.Kind には必ずこのいずれかが入る。
var (
	// ErrMissingCredential はAuthorizationヘッダーが無い、またはBearer形式でないことを表す。
	ErrMissingCredential = errors.New("missing credential")
	// ErrMalformedToken はトークンをデコードできないことを表す。
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature は信頼済み鍵で署名を検証できないことを表す。
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrTokenExpired はexpクレームが現在時刻を過ぎていることを表す。
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenNotYetValid はnbfクレームが現在時刻より未来であることを表す。
	ErrTokenNotYetValid = errors.New("token not yet valid")
	// ErrUntrustedIssuer はissクレームが設定された発行者と一致しないことを表す。
	ErrUntrustedIssuer = errors.New("untrusted issuer")
	// ErrKeyMaterialUnavailable は検証鍵が一度も取得できていないことを表す。
	ErrKeyMaterialUnavailable = errors.New("key material unavailable")
)

// ValidationError はリクエスト単位の検証失敗。
type ValidationError struct {
	// Kind は上記のエラー分類のいずれか。
	Kind error
	// Cause は下位ライブラリが返した元のエラー。nilの場合もある。
	Cause error
}

// Error はエラーメッセージを返す。
func (e *ValidationError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Cause.Error()
}

// Unwrap はKindとCauseの両方をerrors.Isの探索対象にする。
func (e *ValidationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newValidationError(kind, cause error) *ValidationError {
	return &ValidationError{Kind: kind, Cause: cause}
}

// StatusCode はエラー分類に対応するHTTPステータスコードを返す。
// 拒否は401か403だが、ErrKeyMaterialUnavailable だけは資格情報の不備ではなく
// 検証側の障害なので503を返す。NewJWKSCache は鍵を取得できなければ失敗するため、
// 起動後のGatewayでは通常発生しない。
// 分類できないエラーも許可に倒さず401として扱う。
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrUntrustedIssuer):
		return http.StatusForbidden
	case errors.Is(err, ErrKeyMaterialUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// Code はエラー分類に対応する安定したエラーコードを返す。
// レスポンスのエンベロープとメトリクスのラベルに使用する。
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenNotYetValid):
		return "token_not_yet_valid"
	case errors.Is(err, ErrUntrustedIssuer):
		return "untrusted_issuer"
	case errors.Is(err, ErrKeyMaterialUnavailable):
		return "key_material_unavailable"
	default:
		return "unauthorized"
	}
}
