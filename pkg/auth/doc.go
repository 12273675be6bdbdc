// Package auth は外部の認証基盤（Auth0等）が発行したBearerトークンを検証し、
// 権限（permissions）クレームをチェックする。
//
// 署名鍵はJWKSから取得する。JWKSは設定に静的に埋め込むか（StaticKeySet）、
// 認証基盤のエンドポイントから取得してキャッシュする（RemoteKeySet）。
// 失敗はすべて *Error として返し、HTTPステータスと説明文を保持する。
package auth
