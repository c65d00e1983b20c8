package styles

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed styles.yaml
var defaultCatalogue []byte

// Style は画風名と対応するプロンプトキーワードです。
type Style struct {
	Name        string   `yaml:"name" json:"name"`
	Aliases     []string `yaml:"aliases" json:"aliases,omitempty"`
	Keywords    string   `yaml:"keywords" json:"keywords"`
	Description string   `yaml:"description" json:"description,omitempty"`
}

type catalogueFile struct {
	Styles []Style `yaml:"styles"`
}

// Catalogue は画風の静的な一覧です。生成後は読み取り専用です。
type Catalogue struct {
	styles []Style
	index  map[string]int
}

// Default は埋め込みの画風一覧を返します。
func Default() (*Catalogue, error) {
	return Parse(defaultCatalogue)
}

// Load は path の YAML を読み込みます。path が空なら埋め込みの一覧を使います。
func Load(path string) (*Catalogue, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("画風ファイルの読み込みに失敗しました (%s): %w", path, err)
	}
	return Parse(data)
}

// Parse は YAML バイト列から Catalogue を構築します。
func Parse(data []byte) (*Catalogue, error) {
	var f catalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("画風一覧のデコードに失敗しました: %w", err)
	}
	if len(f.Styles) == 0 {
		return nil, fmt.Errorf("画風一覧が空です")
	}

	c := &Catalogue{styles: f.Styles, index: make(map[string]int)}
	for i, s := range f.Styles {
		if s.Name == "" || s.Keywords == "" {
			return nil, fmt.Errorf("画風 #%d の name または keywords が空です", i+1)
		}
		for _, key := range append([]string{s.Name}, s.Aliases...) {
			k := normalize(key)
			if _, dup := c.index[k]; dup {
				return nil, fmt.Errorf("画風名 '%s' が重複しています", key)
			}
			c.index[k] = i
		}
	}
	return c, nil
}

// Lookup は名前または別名で画風を探します。
func (c *Catalogue) Lookup(name string) (Style, bool) {
	i, ok := c.index[normalize(name)]
	if !ok {
		return Style{}, false
	}
	return c.styles[i], true
}

// Keywords は画風名に対応するキーワードを返します。
// 一覧に無い名前は、自由記述の画風指定としてそのまま返します。
func (c *Catalogue) Keywords(name string) string {
	if s, ok := c.Lookup(name); ok {
		return s.Keywords
	}
	return strings.TrimSpace(name)
}

// All は定義順の画風一覧のコピーを返します。
func (c *Catalogue) All() []Style {
	out := make([]Style, len(c.styles))
	copy(out, c.styles)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
