// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として機能する。
// すべてのリクエストは認可ゲートを通り、公開ルート以外は信頼する発行者の
// Bearerトークンを要求する。認証済みリクエストは X-User-ID を付与して
// 商品サービスに転送する。
package gateway
