package publisher

import (
	"fmt"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// BuildMarkdown は台本・キーフレーム・動画プロンプトを1枚の絵コンテ表として Markdown にまとめます。
// imageNames はシーン番号から同梱画像のファイル名への対応です。
func BuildMarkdown(pkg Package, imageNames map[int]string) string {
	var sb strings.Builder

	title := "Storyboard"
	if pkg.Script != nil && pkg.Script.Title != "" {
		title = pkg.Script.Title
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	if pkg.Script != nil && pkg.Script.Logline != "" {
		fmt.Fprintf(&sb, "> %s\n\n", strings.TrimSpace(pkg.Script.Logline))
	}

	style := pkg.VideoPrompts.OverallStyle
	sb.WriteString("## Overall Style\n")
	fmt.Fprintf(&sb, "- visual style: %s\n", style.VisualStyle)
	fmt.Fprintf(&sb, "- color grade: %s\n", style.ColorGrade)
	fmt.Fprintf(&sb, "- pacing: %s\n", style.Pacing)
	fmt.Fprintf(&sb, "- music: %s\n\n", style.Music)

	for i, kf := range pkg.Keyframes.Sorted() {
		fmt.Fprintf(&sb, "## Scene %d\n", kf.SceneNumber)
		if name, ok := imageNames[kf.SceneNumber]; ok {
			fmt.Fprintf(&sb, "![scene %d](%s)\n\n", kf.SceneNumber, name)
		}
		if pkg.Script != nil {
			if sc, ok := pkg.Script.SceneAt(i); ok && sc.SceneNumber == kf.SceneNumber {
				if sc.Action != "" {
					fmt.Fprintf(&sb, "- action: %s\n", strings.TrimSpace(sc.Action))
				}
				if sc.Dialogue != "" {
					fmt.Fprintf(&sb, "- dialogue: %s\n", strings.TrimSpace(sc.Dialogue))
				}
			}
		}
		if vp, ok := pkg.VideoPrompts.Find(kf.SceneNumber); ok {
			fmt.Fprintf(&sb, "- camera: %s\n", vp.CameraMovement)
			fmt.Fprintf(&sb, "- duration: %gs\n", vp.Duration)
			for _, tool := range domain.SupportedTools {
				fmt.Fprintf(&sb, "- %s: %s\n", tool, vp.Prompts[tool])
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
