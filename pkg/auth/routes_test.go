package auth

import "testing"

// TestRouteClassifier_Classify はパスの分類を検証する。
func TestRouteClassifier_Classify(t *testing.T) {
	t.Parallel()

	c := MustRouteClassifier(
		"/swagger-ui",
		"/swagger-ui/**",
		"/v3/api-docs/**",
		"/aggregate/**",
		"/health",
		"/api/product/*/image",
		"/files/*.png",
	)

	tests := []struct {
		name string
		path string
		want Classification
	}{
		{name: "完全一致のパスは公開", path: "/swagger-ui", want: Public},
		{name: "**は0個のセグメントにも一致する", path: "/aggregate", want: Public},
		{name: "**は複数セグメントに一致する", path: "/swagger-ui/index/main.css", want: Public},
		{name: "**は1セグメントに一致する", path: "/v3/api-docs/product", want: Public},
		{name: "末尾スラッシュは無視される", path: "/health/", want: Public},
		{name: "*は1セグメントに一致する", path: "/api/product/abc/image", want: Public},
		{name: "*は空セグメントに一致しない", path: "/api/product//image", want: Protected},
		{name: "*は複数セグメントに一致しない", path: "/api/product/a/b/image", want: Protected},
		{name: "セグメント内のglobに一致する", path: "/files/logo.png", want: Public},
		{name: "セグメント内のglobに一致しない", path: "/files/logo.jpg", want: Protected},
		{name: "大文字小文字を区別する", path: "/Health", want: Protected},
		{name: "前方一致では公開にならない", path: "/swagger-uix", want: Protected},
		{name: "ルート直下に固定される", path: "/x/aggregate/info", want: Protected},
		{name: "許可リストに無いパスは保護", path: "/api/product", want: Protected},
		{name: "ドットセグメントを含むパスは保護", path: "/aggregate/../api/product", want: Protected},
		{name: "カレントディレクトリ表記を含むパスは保護", path: "/aggregate/./x", want: Protected},
		{name: "スラッシュで始まらないパスは保護", path: "health", want: Protected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := c.Classify(tt.path); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

// TestRouteClassifier_Empty はパターンが無い場合の既定動作を検証する。
func TestRouteClassifier_Empty(t *testing.T) {
	t.Parallel()

	t.Run("パターンが空の場合すべて保護されること", func(t *testing.T) {
		t.Parallel()

		c, err := NewRouteClassifier(nil)
		if err != nil {
			t.Fatalf("NewRouteClassifier()でエラーが発生: %v", err)
		}
		for _, p := range []string{"/", "/health", "/public/info"} {
			if got := c.Classify(p); got != Protected {
				t.Errorf("Classify(%q) = %v, want %v", p, got, Protected)
			}
		}
	})

	t.Run("nilのClassifierはすべて保護と判定すること", func(t *testing.T) {
		t.Parallel()

		var c *RouteClassifier
		if got := c.Classify("/health"); got != Protected {
			t.Errorf("Classify() = %v, want %v", got, Protected)
		}
	})

	t.Run("/**はすべてのパスに一致すること", func(t *testing.T) {
		t.Parallel()

		c := MustRouteClassifier("/**")
		for _, p := range []string{"/", "/a", "/a/b/c"} {
			if got := c.Classify(p); got != Public {
				t.Errorf("Classify(%q) = %v, want %v", p, got, Public)
			}
		}
	})
}

// TestNewRouteClassifier はパターンの検証を確認する。
func TestNewRouteClassifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{name: "正常なパターン", pattern: "/public/**", wantErr: false},
		{name: "スラッシュで始まらない", pattern: "public/**", wantErr: true},
		{name: "途中の**は不正", pattern: "/public/**/info", wantErr: true},
		{name: "不正なglob", pattern: "/files/[a-", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewRouteClassifier([]string{tt.pattern})
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRouteClassifier(%q) error = %v, wantErr %v", tt.pattern, err, tt.wantErr)
			}
		})
	}

	t.Run("Patternsは設定順を保持すること", func(t *testing.T) {
		t.Parallel()

		c := MustRouteClassifier("/b", "/a/**")
		got := c.Patterns()
		if len(got) != 2 || got[0] != "/b" || got[1] != "/a/**" {
			t.Errorf("Patterns() = %v, want [/b /a/**]", got)
		}
	})
}
