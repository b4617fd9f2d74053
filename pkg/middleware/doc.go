// Package middleware はゲートウェイと商品サービスで使用するGinミドルウェアを提供する。
//
// 認可ゲート（公開ルート判定とBearerトークン検証）、リクエストID付与、
// 構造化アクセスログ、パニックリカバリ、CORS設定を含む。
package middleware
