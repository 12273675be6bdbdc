// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// 権限チェック、リクエストID付与、アクセスログ、Prometheusメトリクス、
// レート制限、パニックリカバリ、CORS設定を含む。
// エラー時のレスポンスはすべて response パッケージのエンベロープ形式で返す。
package middleware
