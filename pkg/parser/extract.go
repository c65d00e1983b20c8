package parser

import (
	"regexp"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?\\S)\\s*```")

// ExtractJSON は生成モデルの応答テキストから最初の均衡した {...} ブロックを取り出します。
// コードフェンスがあれば中身を優先して探索し、見つからなければ本文全体を探索します。
// 文字列リテラル内の波括弧とエスケープは考慮します。
func ExtractJSON(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	for _, m := range jsonBlockRegex.FindAllStringSubmatch(raw, -1) {
		if block, ok := firstBalancedObject(m[1]); ok {
			return block, nil
		}
	}
	if block, ok := firstBalancedObject(raw); ok {
		return block, nil
	}
	return "", &domain.Error{
		Kind:    domain.KindParse,
		Message: domain.ErrNoJSON.Message,
		Err:     excerptError(raw),
	}
}

// firstBalancedObject は s の中で最初に閉じる {...} を返します。
// 閉じないまま終端に達した開始位置は読み飛ばして次の '{' から探し直します。
func firstBalancedObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
