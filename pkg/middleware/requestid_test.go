package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/coffeeshop/pkg/httpclient"
)

// TestRequestID はRequestIDミドルウェアを検証する。
func TestRequestID(t *testing.T) {
	t.Parallel()

	newRouter := func(gotCtxID *string, gotGinID *string) *gin.Engine {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/drinks", func(c *gin.Context) {
			*gotCtxID, _ = httpclient.RequestIDFrom(c.Request.Context())
			*gotGinID = GetRequestID(c)
			c.Status(http.StatusOK)
		})
		return router
	}

	t.Run("ヘッダーが無い場合は新しいIDが採番されること", func(t *testing.T) {
		t.Parallel()

		var ctxID, ginID string
		w := httptest.NewRecorder()
		newRouter(&ctxID, &ginID).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/drinks", nil))

		got := w.Header().Get(httpclient.HeaderRequestID)
		if got == "" {
			t.Fatal("X-Request-IDが設定されていない")
		}
		if ctxID != got || ginID != got {
			t.Errorf("context=%q gin=%q header=%q が一致しない", ctxID, ginID, got)
		}
	})

	t.Run("クライアントのIDが引き継がれること", func(t *testing.T) {
		t.Parallel()

		var ctxID, ginID string
		req := httptest.NewRequest(http.MethodGet, "/drinks", nil)
		req.Header.Set(httpclient.HeaderRequestID, "client-id-1")
		w := httptest.NewRecorder()
		newRouter(&ctxID, &ginID).ServeHTTP(w, req)

		if got := w.Header().Get(httpclient.HeaderRequestID); got != "client-id-1" {
			t.Errorf("X-Request-ID = %q, want client-id-1", got)
		}
		if ctxID != "client-id-1" {
			t.Errorf("context request id = %q, want client-id-1", ctxID)
		}
	})
}
