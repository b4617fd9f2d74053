// Package auth はゲートウェイのリクエスト認可ゲートを構成する部品を提供する。
//
// RouteClassifier は公開ルートの許可リストでリクエストパスを分類し、
// Validator は保護されたルートに対してBearerトークン（JWT）の署名・有効期限・
// 発行者を検証する。検証鍵は KeySource 経由で取得し、本番では JWKSCache が
// 発行者のJWKSを定期的に再取得する。
//
// 公開ルートに一致したリクエストは、ヘッダーの内容にかかわらず検証を行わない。
package auth
