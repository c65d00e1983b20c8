package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

func TestReadRequirement(t *testing.T) {
	t.Run("引数を優先", func(t *testing.T) {
		got, err := readRequirement([]string{"雨の", "再会"}, "ignored.txt")
		if err != nil || got != "雨の 再会" {
			t.Errorf("readRequirement() = %q, %v", got, err)
		}
	})

	t.Run("ファイル", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "brief.txt")
		if err := os.WriteFile(path, []byte("海辺の少年"), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := readRequirement(nil, path)
		if err != nil || got != "海辺の少年" {
			t.Errorf("readRequirement() = %q, %v", got, err)
		}
	})

	t.Run("存在しないファイル", func(t *testing.T) {
		if _, err := readRequirement(nil, filepath.Join(t.TempDir(), "missing")); err == nil {
			t.Error("エラーを期待しました")
		}
	})
}

func TestTruncate(t *testing.T) {
	if got := truncate("短い", 10); got != "短い" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("あいうえおかきくけこ", 5); got != "あいうえ…" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("a\n b", 10); got != "a b" {
		t.Errorf("改行が畳まれていません: %q", got)
	}
}

func TestRenderRunSummary(t *testing.T) {
	run := domain.Run{
		ID:     "run-1",
		Status: domain.RunFailed,
		Stage:  "keyframes",
		Error:  "image generation returned no images",
		Script: &domain.Script{Scenes: make([]domain.Scene, 5)},
	}
	out := renderRunSummary(run)
	for _, want := range []string{"run-1", "failed at keyframes", "script", "video-prompts"} {
		if !strings.Contains(out, want) {
			t.Errorf("出力に %q がありません:\n%s", want, out)
		}
	}
}
