package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestAbort はエラーエンベロープの形式を検証する。
func TestAbort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		message string
	}{
		{name: "400は固定メッセージを返すこと", status: http.StatusBadRequest, message: "Bad Request"},
		{name: "404は固定メッセージを返すこと", status: http.StatusNotFound, message: "Resource Not Found"},
		{name: "405は固定メッセージを返すこと", status: http.StatusMethodNotAllowed, message: "Method Not Allowed"},
		{name: "422は固定メッセージを返すこと", status: http.StatusUnprocessableEntity, message: "Not Processable"},
		{name: "500は固定メッセージを返すこと", status: http.StatusInternalServerError, message: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := gin.New()
			router.GET("/test", func(c *gin.Context) {
				Abort(c, tt.status)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			if w.Code != tt.status {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tt.status)
			}

			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("レスポンスボディのパースに失敗: %v", err)
			}
			if body["success"] != false {
				t.Errorf("success = %v, want false", body["success"])
			}
			if body["error"] != float64(tt.status) {
				t.Errorf("error = %v, want %d", body["error"], tt.status)
			}
			if body["message"] != tt.message {
				t.Errorf("message = %v, want %q", body["message"], tt.message)
			}
		})
	}
}

// TestOK は成功エンベロープにフィールドが展開されることを検証する。
func TestOK(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.GET("/test", func(c *gin.Context) {
		OK(c, gin.H{"delete": 3})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v", err)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if body["delete"] != float64(3) {
		t.Errorf("delete = %v, want 3", body["delete"])
	}
}

// TestNoRouteAndNoMethod は404と405のフォールバックを検証する。
func TestNoRouteAndNoMethod(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.NoRoute(NoRoute())
	router.NoMethod(NoMethod())
	router.GET("/drinks", func(c *gin.Context) {
		OK(c, nil)
	})

	t.Run("未登録パスは404を返すこと", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("許可されていないメソッドは405を返すこと", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/drinks", nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusMethodNotAllowed)
		}
	})
}
