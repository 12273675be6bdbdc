// Package authtest はテスト用のトークン発行者を提供する。
// RSA鍵を生成し、その公開鍵のJWKSと署名済みトークンを返す。
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// テストで使用する既定値。
const (
	KeyID    = "test-key-id"
	Issuer   = "https://coffeeshop.test/"
	Audience = "drinks"
)

// TokenIssuer はテスト用にトークンを署名する発行者。
type TokenIssuer struct {
	// KeyID はトークンヘッダーとJWKSに設定するkid。
	KeyID string
	// PrivateKey は署名に使用するRSA秘密鍵。
	PrivateKey *rsa.PrivateKey
}

// NewIssuer はRSA鍵を生成して新しい発行者を返す。
func NewIssuer(tb testing.TB) *TokenIssuer {
	tb.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("RSA鍵の生成に失敗: %v", err)
	}
	return &TokenIssuer{KeyID: KeyID, PrivateKey: key}
}

// JWKS は公開鍵をJWKS形式のJSONで返す。
func (i *TokenIssuer) JWKS(tb testing.TB) []byte {
	tb.Helper()

	key, err := jwk.FromRaw(&i.PrivateKey.PublicKey)
	if err != nil {
		tb.Fatalf("JWKの生成に失敗: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, i.KeyID); err != nil {
		tb.Fatalf("kidの設定に失敗: %v", err)
	}
	if err := key.Set(jwk.AlgorithmKey, "RS256"); err != nil {
		tb.Fatalf("algの設定に失敗: %v", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		tb.Fatalf("JWKSへの鍵の追加に失敗: %v", err)
	}

	data, err := json.Marshal(set)
	if err != nil {
		tb.Fatalf("JWKSのシリアライズに失敗: %v", err)
	}
	return data
}

// Claims は有効なissuer・audience・有効期限を持つクレームを返す。
// permissionsにnilを渡すとpermissionsクレームを含まない。
func Claims(permissions []string) jwt.MapClaims {
	claims := jwt.MapClaims{
		"iss": Issuer,
		"aud": Audience,
		"sub": "auth0|barista",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if permissions != nil {
		claims["permissions"] = permissions
	}
	return claims
}

// Sign はクレームをRS256で署名したトークンを返す。
func (i *TokenIssuer) Sign(tb testing.TB, claims jwt.MapClaims) string {
	tb.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.KeyID
	signed, err := token.SignedString(i.PrivateKey)
	if err != nil {
		tb.Fatalf("トークンの署名に失敗: %v", err)
	}
	return signed
}

// Token はpermissionsを付与した有効なトークンを返す。
func (i *TokenIssuer) Token(tb testing.TB, permissions ...string) string {
	tb.Helper()

	if permissions == nil {
		permissions = []string{}
	}
	return i.Sign(tb, Claims(permissions))
}

// Bearer はAuthorizationヘッダーの値を返す。
func Bearer(token string) string {
	return "Bearer " + token
}
