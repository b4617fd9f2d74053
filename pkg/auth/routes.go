package auth

import (
	"fmt"
	"path"
	"strings"
)

// Classification はリクエストパスの分類結果。
type Classification int

const (
	// Protected は認証が必要なパス。ゼロ値であり、判定できない場合の既定値になる。
	Protected Classification = iota
	// Public は認証不要なパス。
	Public
)

// String は分類名を返す。
func (c Classification) String() string {
	if c == Public {
		return "public"
	}
	return "protected"
}

// multiSegment は末尾の任意個のセグメントに一致するワイルドカード。
const multiSegment = "**"

// routePattern はコンパイル済みのルートパターン。
type routePattern struct {
	// raw は設定された元のパターン文字列。
	raw string
	// segments は "/" で分割したパターンのセグメント。末尾の "**" は含まない。
	segments []string
	// trailing は末尾が "**" かどうか。
	trailing bool
}

// RouteClassifier は公開ルートの許可リストに基づいてリクエストパスを分類する。
// 生成後は不変であり、複数のゴルーチンから同時に使用できる。
type RouteClassifier struct {
	patterns []routePattern
}

// NewRouteClassifier はパターン一覧から RouteClassifier を生成する。
//
// パターンは "/" で始まる必要がある。"*" は空でない1セグメントに、"**" は末尾の
// 0個以上のセグメントに一致する。それ以外のセグメントは path.Match の構文で
// セグメント内を照合する。"**" は最後のセグメントにのみ置ける。
func NewRouteClassifier(patterns []string) (*RouteClassifier, error) {
	compiled := make([]routePattern, 0, len(patterns))
	for _, p := range patterns {
		rp, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, rp)
	}
	return &RouteClassifier{patterns: compiled}, nil
}

// MustRouteClassifier は NewRouteClassifier と同じだが、不正なパターンでpanicする。
func MustRouteClassifier(patterns ...string) *RouteClassifier {
	c, err := NewRouteClassifier(patterns)
	if err != nil {
		panic(err)
	}
	return c
}

func compilePattern(p string) (routePattern, error) {
	if !strings.HasPrefix(p, "/") {
		return routePattern{}, fmt.Errorf("ルートパターンは/で始まる必要があります: %q", p)
	}
	segments := splitPath(p)
	rp := routePattern{raw: p}
	for i, seg := range segments {
		if seg == multiSegment {
			if i != len(segments)-1 {
				return routePattern{}, fmt.Errorf("**は末尾のセグメントにのみ指定できます: %q", p)
			}
			rp.trailing = true
			segments = segments[:i]
			break
		}
		if _, err := path.Match(seg, ""); err != nil {
			return routePattern{}, fmt.Errorf("ルートパターンが不正です: %q: %w", p, err)
		}
	}
	rp.segments = segments
	return rp, nil
}

// Patterns は設定されたパターンを順序通りに返す。
func (c *RouteClassifier) Patterns() []string {
	out := make([]string, 0, len(c.patterns))
	for _, p := range c.patterns {
		out = append(out, p.raw)
	}
	return out
}

// Classify はパスを Public または Protected に分類する。
// パターンが1つも無い場合、すべてのパスが Protected になる。
func (c *RouteClassifier) Classify(p string) Classification {
	if c == nil || len(c.patterns) == 0 || !strings.HasPrefix(p, "/") {
		return Protected
	}
	segments := splitPath(p)
	for _, seg := range segments {
		// ドットセグメントは正規化の解釈がプロキシ先とずれるため公開扱いしない
		if seg == "." || seg == ".." {
			return Protected
		}
	}
	for _, rp := range c.patterns {
		if rp.match(segments) {
			return Public
		}
	}
	return Protected
}

func (rp routePattern) match(segments []string) bool {
	if rp.trailing {
		if len(segments) < len(rp.segments) {
			return false
		}
	} else if len(segments) != len(rp.segments) {
		return false
	}
	for i, pat := range rp.segments {
		if !matchSegment(pat, segments[i]) {
			return false
		}
	}
	return true
}

func matchSegment(pattern, segment string) bool {
	if pattern == "*" {
		return segment != ""
	}
	ok, err := path.Match(pattern, segment)
	return err == nil && ok
}

// splitPath は先頭の "/" と末尾の "/" を1つずつ取り除いてセグメントに分割する。
// ルート "/" は空のセグメント列になる。途中の空セグメントは保持する。
func splitPath(p string) []string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
