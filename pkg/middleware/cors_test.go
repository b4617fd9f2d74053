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

	newRouter := func(origins []string, called *bool) *gin.Engine {
		router := gin.New()
		router.Use(CORS(origins))
		h := func(c *gin.Context) {
			if called != nil {
				*called = true
			}
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		}
		router.GET("/api/product", h)
		router.OPTIONS("/api/product", h)
		return router
	}

	t.Run("許可されたオリジンからのリクエストにCORSヘッダーが設定されること", func(t *testing.T) {
		t.Parallel()

		router := newRouter([]string{"http://localhost:3000", "https://example.com"}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/product", nil)
		req.Header.Set("Origin", "https://example.com")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "https://example.com")
		}
		if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, DELETE, OPTIONS" {
			t.Errorf("Access-Control-Allow-Methods = %q, want %q", got, "GET, POST, PUT, DELETE, OPTIONS")
		}
		if got := w.Header().Get("Access-Control-Expose-Headers"); got != "Location, X-Request-ID" {
			t.Errorf("Access-Control-Expose-Headers = %q, want %q", got, "Location, X-Request-ID")
		}
		if got := w.Header().Get("Vary"); got != "Origin" {
			t.Errorf("Vary = %q, want %q", got, "Origin")
		}
	})

	t.Run("許可されていないオリジンにはCORSヘッダーが設定されないこと", func(t *testing.T) {
		t.Parallel()

		router := newRouter([]string{"http://localhost:3000"}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/product", nil)
		req.Header.Set("Origin", "https://evil.com")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty string", got)
		}
	})

	t.Run("空文字のオリジン設定は無視されること", func(t *testing.T) {
		t.Parallel()

		router := newRouter([]string{""}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/product", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty string", got)
		}
	})

	t.Run("プリフライトは204で中断されハンドラが呼ばれないこと", func(t *testing.T) {
		t.Parallel()

		called := false
		router := newRouter([]string{"http://localhost:3000"}, &called)
		req := httptest.NewRequest(http.MethodOptions, "/api/product", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
		}
		if called {
			t.Error("プリフライトでハンドラーが呼ばれるべきではない")
		}
	})

	t.Run("プリフライトでないOPTIONSはハンドラに渡されること", func(t *testing.T) {
		t.Parallel()

		called := false
		router := newRouter([]string{"http://localhost:3000"}, &called)
		req := httptest.NewRequest(http.MethodOptions, "/api/product", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if !called {
			t.Error("ハンドラーが呼ばれるべき")
		}
	})
}
