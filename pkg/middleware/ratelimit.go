package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/nao1215/coffeeshop/pkg/response"
)

// RateLimit はサービス全体のリクエストレートを制限するGinミドルウェアを返す。
// rpsが0以下の場合は制限しない。
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}

	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			response.Abort(c, http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
