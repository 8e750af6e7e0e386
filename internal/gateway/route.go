package gateway

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// wildcardSegment は任意の1セグメントに一致する。
	wildcardSegment = "*"
	// wildcardRest は残りの0個以上のセグメントに一致する。パターンの末尾にのみ置ける。
	wildcardRest = "**"
)

// Rule はパスパターンと転送先サービスの組。
type Rule struct {
	// Pattern は / で始まるパスパターン。
	Pattern string `yaml:"pattern"`
	// Target は転送先サービス名。
	Target string `yaml:"target"`
}

// compiledRule はセグメントに分割済みの規則。
type compiledRule struct {
	rule     Rule
	segments []string
}

// RouteTable は登録順に評価するルートテーブル。
// 生成後は読み取り専用で、複数のgoroutineから同時に使用できる。
type RouteTable struct {
	rules []compiledRule
}

// NewRouteTable は規則を検証してルートテーブルを生成する。
func NewRouteTable(rules []Rule) (*RouteTable, error) {
	if len(rules) == 0 {
		return nil, errors.New("ルートが1件も定義されていません")
	}

	t := &RouteTable{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if r.Target == "" {
			return nil, fmt.Errorf("ルート %d (%s): 転送先が空です", i, r.Pattern)
		}
		if !strings.HasPrefix(r.Pattern, "/") {
			return nil, fmt.Errorf("ルート %d (%s): パターンは / で始まる必要があります", i, r.Pattern)
		}
		segments := splitPath(r.Pattern)
		for j, seg := range segments {
			if seg == wildcardRest && j != len(segments)-1 {
				return nil, fmt.Errorf("ルート %d (%s): ** は末尾にのみ指定できます", i, r.Pattern)
			}
			if seg != wildcardRest && seg != wildcardSegment && strings.Contains(seg, wildcardSegment) {
				return nil, fmt.Errorf("ルート %d (%s): セグメント内のワイルドカードには対応していません", i, r.Pattern)
			}
		}
		t.rules = append(t.rules, compiledRule{rule: r, segments: segments})
	}
	return t, nil
}

// Match はパスに最初に一致した規則を返す。一致しない場合は false を返す。
// 詳細度による並べ替えは行わず、登録順だけで決まる。
func (t *RouteTable) Match(path string) (Rule, bool) {
	segments := splitPath(path)
	for _, r := range t.rules {
		if matchSegments(r.segments, segments) {
			return r.rule, true
		}
	}
	return Rule{}, false
}

// Rules は登録順の規則を返す。
func (t *RouteTable) Rules() []Rule {
	out := make([]Rule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r.rule)
	}
	return out
}

// Targets は規則が参照する転送先を重複なしで登録順に返す。
func (t *RouteTable) Targets() []string {
	seen := make(map[string]struct{}, len(t.rules))
	var out []string
	for _, r := range t.rules {
		if _, ok := seen[r.rule.Target]; ok {
			continue
		}
		seen[r.rule.Target] = struct{}{}
		out = append(out, r.rule.Target)
	}
	return out
}

// splitPath は先頭の / を除いてパスをセグメントに分割する。
func splitPath(path string) []string {
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}

// matchSegments はパターンとパスのセグメントを先頭から照合する。
// リテラルは大文字小文字を区別する。
func matchSegments(pattern, path []string) bool {
	for i, seg := range pattern {
		if seg == wildcardRest {
			return true
		}
		if i >= len(path) {
			return false
		}
		if seg == wildcardSegment {
			if path[i] == "" {
				return false
			}
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return len(pattern) == len(path)
}
