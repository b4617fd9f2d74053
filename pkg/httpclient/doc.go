// Package httpclient はゲートウェイから内部サービスへのHTTP通信を行うクライアントを提供する。
//
// 認可ゲートを通過したリクエストの転送（Forward）と、APIドキュメントの集約など
// JSONの取得（GetJSON）に使用する。認証済みユーザーIDは X-User-ID ヘッダーで
// 内部ネットワークにのみ伝播する。
package httpclient
