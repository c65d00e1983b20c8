package parser

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"素のJSON", `{"a":1}`, `{"a":1}`},
		{"前後に説明文", "Here you go:\n{\"a\":{\"b\":2}}\nHope it helps {not json", `{"a":{"b":2}}`},
		{"コードフェンス", "```json\n{\"title\":\"x\"}\n```", `{"title":"x"}`},
		{"フェンス外の波括弧より中身を優先", "note {draft}\n```\n{\"ok\":true}\n```", `{"ok":true}`},
		{"文字列内の波括弧とエスケープ", `{"s":"a } \" { b","n":[1,2]} trailing }`, `{"s":"a } \" { b","n":[1,2]}`},
		{"閉じない開始位置は読み飛ばす", `{ broken ... {"x":1}`, `{"x":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.raw)
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if got != tt.want {
				t.Errorf("期待値 %s, 実際の値 %s", tt.want, got)
			}
		})
	}
}

func TestExtractJSON_NoBlock(t *testing.T) {
	for _, raw := range []string{"", "I cannot help with that.", "[1,2,3]", "{ never closed"} {
		_, err := ExtractJSON(raw)
		if !errors.Is(err, domain.ErrNoJSON) {
			t.Errorf("raw=%q: ErrNoJSON を期待しましたが %v", raw, err)
		}
		if domain.KindOf(err) != domain.KindParse {
			t.Errorf("raw=%q: parse 種別を期待しましたが %s", raw, domain.KindOf(err))
		}
	}
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (p payload) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func TestDecode(t *testing.T) {
	t.Run("正常系", func(t *testing.T) {
		var p payload
		if err := Decode("```json\n{\"name\":\"a\",\"count\":2}\n```", &p); err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if p.Name != "a" || p.Count != 2 {
			t.Errorf("デコード結果が不正です: %+v", p)
		}
	})

	t.Run("型不一致はスキーマエラー", func(t *testing.T) {
		var p payload
		err := Decode(`{"name":"a","count":"two"}`, &p)
		if domain.KindOf(err) != domain.KindSchema {
			t.Errorf("schema 種別を期待しましたが %v", err)
		}
	})

	t.Run("検証失敗はスキーマエラー", func(t *testing.T) {
		var p payload
		err := Decode(`{"count":1}`, &p)
		if domain.KindOf(err) != domain.KindSchema {
			t.Errorf("schema 種別を期待しましたが %v", err)
		}
	})

	t.Run("JSONが無ければパースエラー", func(t *testing.T) {
		var p payload
		if err := Decode("sorry", &p); !errors.Is(err, domain.ErrNoJSON) {
			t.Errorf("ErrNoJSON を期待しましたが %v", err)
		}
	})
}

func TestTruncateString(t *testing.T) {
	t.Run("短い文字列はそのまま", func(t *testing.T) {
		if got := truncateString("台本", 10); got != "台本" {
			t.Errorf("truncateString() = %q", got)
		}
	})

	t.Run("マルチバイト文字の途中で切らない", func(t *testing.T) {
		s := strings.Repeat("あ", excerptLen+5)
		got := truncateString(s, excerptLen)
		if !utf8.ValidString(got) {
			t.Fatalf("不正な UTF-8 になりました: %q", got)
		}
		if want := strings.Repeat("あ", excerptLen) + "..."; got != want {
			t.Errorf("切り詰め結果が不正です: 長さ %d", utf8.RuneCountInString(got))
		}
	})

	t.Run("schema エラーの抜粋も有効な UTF-8", func(t *testing.T) {
		raw := `{"title": 1, "note": "` + strings.Repeat("雨", excerptLen) + `"}`
		var v struct {
			Title string `json:"title"`
		}
		err := Decode(raw, &v)
		if err == nil {
			t.Fatal("エラーを期待しました")
		}
		if !utf8.ValidString(err.Error()) {
			t.Errorf("エラーメッセージが不正な UTF-8 です")
		}
	})
}
