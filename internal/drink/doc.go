// Package drink はコーヒーショップのドリンクメニューを管理するHTTPサービスを提供する。
//
// ドリンクの一覧取得は認証不要で、詳細取得・作成・更新・削除には
// 認証基盤が発行したトークンに対応する権限（permissions）が必要となる。
// データはSQLiteのdrinksテーブルに保存し、レシピはJSON文字列として格納する。
package drink
