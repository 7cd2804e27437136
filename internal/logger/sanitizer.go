package logger

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Sanitizer 遮罩日誌中的使用者家目錄並移除控制字元
//
// mod 名稱、描述與封存路徑都來自第三方，視為不受信任的輸入。
// A Sanitizer is immutable after construction and safe for concurrent use.
type Sanitizer struct {
	masks []mask
}

type mask struct {
	re   *regexp.Regexp
	with string
}

// 家目錄遮罩，依序套用
var homeMasks = []mask{
	{regexp.MustCompile(`(?i)\b([a-z]):\\users\\[^\\]+`), `${1}:\Users\***`},
	{regexp.MustCompile(`(?i)\\\\[^\\]+\\[^\\]+\\users\\[^\\]+`), `\\***\***\Users\***`},
	{regexp.MustCompile(`/home/[^/]+`), "/home/***"},
	{regexp.MustCompile(`/Users/[^/]+`), "/Users/***"},
}

// NewSanitizer returns a sanitizer with the home directory masks
func NewSanitizer() *Sanitizer {
	return &Sanitizer{masks: homeMasks}
}

// WithRule returns a copy that additionally replaces pattern with replacement
func (s *Sanitizer) WithRule(pattern, replacement string) (*Sanitizer, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	masks := make([]mask, len(s.masks), len(s.masks)+1)
	copy(masks, s.masks)
	return &Sanitizer{masks: append(masks, mask{re, replacement})}, nil
}

// Sanitize strips control characters except tab and newline, then applies the masks
func (s *Sanitizer) Sanitize(input string) string {
	out := strings.Map(func(r rune) rune {
		if r != '\t' && r != '\n' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
	for _, m := range s.masks {
		out = m.re.ReplaceAllString(out, m.with)
	}
	return out
}

// SanitizeArgs returns a copy of key-value args with string, error and
// fmt.Stringer values sanitized. Keys and other values pass through.
func (s *Sanitizer) SanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}
	out := append([]any(nil), args...)
	for i := 1; i < len(out); i += 2 {
		switch v := out[i].(type) {
		case string:
			out[i] = s.Sanitize(v)
		case error:
			out[i] = s.Sanitize(v.Error())
		case fmt.Stringer:
			out[i] = s.Sanitize(v.String())
		}
	}
	return out
}
