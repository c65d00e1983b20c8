package parser

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

const excerptLen = 200

// Validator は Decode 後に追加の検証を行う型が実装します。
type Validator interface {
	Validate() error
}

// Decode は応答テキストから JSON を抽出して v にデコードします。
// JSON が見つからなければ parse 種別、デコードや検証に失敗すれば schema 種別のエラーを返します。
func Decode(raw string, v any) error {
	block, err := ExtractJSON(raw)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(block), v); err != nil {
		return domain.NewSchemaError(err, "response JSON does not match schema (excerpt: %q)", truncateString(block, excerptLen))
	}

	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			if domain.IsKind(err, domain.KindSchema) {
				return err
			}
			return domain.NewSchemaError(err, "response failed validation")
		}
	}
	return nil
}

func excerptError(raw string) error {
	if raw == "" {
		return fmt.Errorf("empty response")
	}
	return fmt.Errorf("response excerpt: %q", truncateString(raw, excerptLen))
}

// truncateString は maxLen 文字を超える部分を切り詰めます。マルチバイト文字の途中では切りません。
func truncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
