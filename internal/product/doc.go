// Package product は商品サービスの内部実装を提供する。
//
// 商品のCRUDをSQLiteに対して行う。Gatewayの背後でのみ公開され、リクエストは
// Gatewayの認可ゲートを通過済みとして扱う。X-User-ID は登録者の記録とログにのみ使う。
// REDIS_ADDR が設定されている場合、商品一覧をRedisにキャッシュする。
package product
