package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// testRequest はテストサーバーが受け取ったリクエスト情報を保持する構造体。
type testRequest struct {
	// Method はHTTPメソッド。
	Method string
	// Path はリクエストパス。
	Path string
	// RawQuery はクエリ文字列。
	RawQuery string
	// Body はリクエストボディ。
	Body []byte
	// Headers はリクエストヘッダー。
	Headers http.Header
}

// newRecordingServer は受け取ったリクエストを記録するテストサーバーを起動する。
func newRecordingServer(t *testing.T, received *testRequest, status int, body string) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Method = r.Method
		received.Path = r.URL.Path
		received.RawQuery = r.URL.RawQuery
		received.Body, _ = io.ReadAll(r.Body)
		received.Headers = r.Header.Clone()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

// TestNew はNew関数でクライアントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("タイムアウト未指定の場合は30秒になること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:8084", 0)
		if client.BaseURL() != "http://localhost:8084" {
			t.Errorf("BaseURL() = %q, want %q", client.BaseURL(), "http://localhost:8084")
		}
		if client.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want 30s", client.httpClient.Timeout)
		}
	})

	t.Run("指定したタイムアウトが設定されること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:8084", 5*time.Second)
		if client.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want 5s", client.httpClient.Timeout)
		}
	})
}

// TestForward はリクエスト転送を検証する。
func TestForward(t *testing.T) {
	t.Parallel()

	t.Run("メソッド・パス・クエリ・ボディ・ヘッダーが転送されること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, http.StatusCreated, `{"id":"p-1"}`)
		client := New(ts.URL, 0)

		header := http.Header{}
		header.Set("Authorization", "Bearer token")
		header.Set("Content-Type", "application/json")
		header.Set("Connection", "keep-alive")
		header.Set("X-User-ID", "spoofed")

		ctx := WithUserID(context.Background(), "user-123")
		resp, err := client.Forward(ctx, http.MethodPost, "/api/product", "page=1", header, strings.NewReader(`{"name":"TV"}`))
		if err != nil {
			t.Fatalf("Forward()でエラーが発生: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
		}
		if received.Method != http.MethodPost {
			t.Errorf("Method = %q, want %q", received.Method, http.MethodPost)
		}
		if received.Path != "/api/product" {
			t.Errorf("Path = %q, want %q", received.Path, "/api/product")
		}
		if received.RawQuery != "page=1" {
			t.Errorf("RawQuery = %q, want %q", received.RawQuery, "page=1")
		}
		if string(received.Body) != `{"name":"TV"}` {
			t.Errorf("Body = %q, want %q", received.Body, `{"name":"TV"}`)
		}
		if got := received.Headers.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer token")
		}
		if got := received.Headers.Get("X-User-ID"); got != "user-123" {
			t.Errorf("X-User-ID = %q, want %q", got, "user-123")
		}
	})

	t.Run("ユーザーIDが無い場合はX-User-IDを送らないこと", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, http.StatusOK, `[]`)
		client := New(ts.URL, 0)

		header := http.Header{}
		header.Set("X-User-ID", "spoofed")
		resp, err := client.Forward(context.Background(), http.MethodGet, "/api/product", "", header, nil)
		if err != nil {
			t.Fatalf("Forward()でエラーが発生: %v", err)
		}
		resp.Body.Close()

		if got := received.Headers.Get("X-User-ID"); got != "" {
			t.Errorf("X-User-ID = %q, want empty", got)
		}
	})

	t.Run("接続できない場合はエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		client := New("http://127.0.0.1:1", time.Second)
		if _, err := client.Forward(context.Background(), http.MethodGet, "/", "", http.Header{}, nil); err == nil {
			t.Error("エラーが返されるべき")
		}
	})
}

// TestCopyHeader はホップバイホップヘッダーの除外を検証する。
func TestCopyHeader(t *testing.T) {
	t.Parallel()

	src := http.Header{}
	src.Set("Content-Type", "application/json")
	src.Set("Transfer-Encoding", "chunked")
	src.Set("Connection", "close")
	src.Add("Set-Cookie", "a=1")
	src.Add("Set-Cookie", "b=2")

	dst := http.Header{}
	CopyHeader(dst, src)

	if got := dst.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want %q", got, "application/json")
	}
	if got := dst.Get("Transfer-Encoding"); got != "" {
		t.Errorf("Transfer-Encoding = %q, want empty", got)
	}
	if got := dst.Get("Connection"); got != "" {
		t.Errorf("Connection = %q, want empty", got)
	}
	if got := len(dst.Values("Set-Cookie")); got != 2 {
		t.Errorf("Set-Cookieの数 = %d, want 2", got)
	}
}

// TestGetJSON はGetJSON関数を検証する。
func TestGetJSON(t *testing.T) {
	t.Parallel()

	t.Run("レスポンスをデシリアライズできること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, http.StatusOK, `{"openapi":"3.0.1"}`)
		client := New(ts.URL, 0)

		var doc map[string]any
		if err := client.GetJSON(WithUserID(context.Background(), "user-1"), "/api-docs", &doc); err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}
		if doc["openapi"] != "3.0.1" {
			t.Errorf("openapi = %v, want %q", doc["openapi"], "3.0.1")
		}
		if received.Path != "/api-docs" {
			t.Errorf("Path = %q, want %q", received.Path, "/api-docs")
		}
		if got := received.Headers.Get("X-User-ID"); got != "user-1" {
			t.Errorf("X-User-ID = %q, want %q", got, "user-1")
		}
	})

	t.Run("2xx以外はエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, http.StatusInternalServerError, `{"error":"boom"}`)
		client := New(ts.URL, 0)

		err := client.GetJSON(context.Background(), "/api-docs", nil)
		if err == nil {
			t.Fatal("エラーが返されるべき")
		}
		if !strings.Contains(err.Error(), "status=500") {
			t.Errorf("error = %v, status=500を含むべき", err)
		}
	})

	t.Run("不正なJSONはエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, http.StatusOK, `{`)
		client := New(ts.URL, 0)

		var doc map[string]any
		if err := client.GetJSON(context.Background(), "/api-docs", &doc); err == nil {
			t.Error("エラーが返されるべき")
		}
	})
}

// TestUserIDFrom はコンテキストのユーザーIDを検証する。
func TestUserIDFrom(t *testing.T) {
	t.Parallel()

	if _, ok := UserIDFrom(context.Background()); ok {
		t.Error("ユーザーIDが無いコンテキストでok=trueが返された")
	}
	if _, ok := UserIDFrom(WithUserID(context.Background(), "")); ok {
		t.Error("空のユーザーIDでok=trueが返された")
	}
	got, ok := UserIDFrom(WithUserID(context.Background(), "user-1"))
	if !ok || got != "user-1" {
		t.Errorf("UserIDFrom() = (%q, %v), want (%q, true)", got, ok, "user-1")
	}
}
