package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/coffeeshop/pkg/auth"
	"github.com/nao1215/coffeeshop/pkg/response"
)

// contextKeyClaims は検証済みクレームをGinコンテキストに格納するためのキー。
const contextKeyClaims = "claims"

// Authorizer はAuthorizationヘッダーを検証し、permissionが付与されているかを確認する。
// *auth.Verifier が実装する。
type Authorizer interface {
	Verify(ctx context.Context, header, permission string) (*auth.Claims, error)
}

// RequiresAuth はpermissionを要求するGinミドルウェアを返す。
// 検証に成功した場合のみ後続のハンドラを実行し、コンテキストにクレームを設定する。
// 401は認証エラーの説明文をメッセージに、それ以外は固定メッセージを返す。
func RequiresAuth(a Authorizer, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := a.Verify(c.Request.Context(), c.GetHeader("Authorization"), permission)
		if err != nil {
			authErr, ok := auth.AsError(err)
			switch {
			case !ok:
				response.Abort(c, http.StatusInternalServerError)
			case authErr.Status == http.StatusUnauthorized:
				response.AbortWithMessage(c, authErr.Status, authErr.Description)
			default:
				response.Abort(c, authErr.Status)
			}
			_ = c.Error(err)
			return
		}

		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims はGinコンテキストから検証済みクレームを取得する。
// RequiresAuthミドルウェアが事前に適用されている必要がある。
func GetClaims(c *gin.Context) *auth.Claims {
	v, _ := c.Get(contextKeyClaims)
	if claims, ok := v.(*auth.Claims); ok {
		return claims
	}
	return nil
}
