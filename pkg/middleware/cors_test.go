package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// TestCORS はCORSミドルウェアを検証する。
func TestCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		allowed     []string
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantHandler bool
	}{
		{
			name:        "許可されたオリジンからのリクエストにCORSヘッダーが設定されること",
			allowed:     []string{"http://localhost:8100", "https://example.com"},
			method:      http.MethodGet,
			origin:      "http://localhost:8100",
			wantStatus:  http.StatusOK,
			wantOrigin:  "http://localhost:8100",
			wantHandler: true,
		},
		{
			name:        "許可されていないオリジンにはCORSヘッダーが設定されないこと",
			allowed:     []string{"http://localhost:8100"},
			method:      http.MethodGet,
			origin:      "https://evil.com",
			wantStatus:  http.StatusOK,
			wantHandler: true,
		},
		{
			name:        "ワイルドカード指定ではすべてのオリジンが許可されること",
			allowed:     []string{"*"},
			method:      http.MethodGet,
			origin:      "https://anywhere.example",
			wantStatus:  http.StatusOK,
			wantOrigin:  "https://anywhere.example",
			wantHandler: true,
		},
		{
			name:        "ワイルドカード指定でもOriginヘッダーが無ければ設定されないこと",
			allowed:     []string{"*"},
			method:      http.MethodGet,
			wantStatus:  http.StatusOK,
			wantHandler: true,
		},
		{
			name:       "OPTIONSリクエストで204が返りリクエストが中断されること",
			allowed:    []string{"http://localhost:8100"},
			method:     http.MethodOptions,
			origin:     "http://localhost:8100",
			wantStatus: http.StatusNoContent,
			wantOrigin: "http://localhost:8100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handlerCalled := false
			router := gin.New()
			router.Use(CORS(tt.allowed))
			router.Handle(tt.method, "/drinks", func(c *gin.Context) {
				handlerCalled = true
				c.JSON(http.StatusOK, gin.H{"success": true})
			})

			req := httptest.NewRequest(tt.method, "/drinks", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if tt.wantOrigin != "" {
				if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PATCH, DELETE, OPTIONS" {
					t.Errorf("Access-Control-Allow-Methods = %q", got)
				}
			}
			if handlerCalled != tt.wantHandler {
				t.Errorf("ハンドラ呼び出し = %v, want %v", handlerCalled, tt.wantHandler)
			}
		})
	}
}
