// Package httpclient は外部サービスからJSONを取得するHTTPクライアントを提供する。
//
// 認証基盤のJWKSエンドポイントから公開鍵セットを取得する際に使用する。
// リクエストIDをコンテキストから引き継ぎ、X-Request-IDヘッダーとして伝播する。
package httpclient
