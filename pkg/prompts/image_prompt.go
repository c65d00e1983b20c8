package prompts

import (
	"fmt"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

const (
	// PhotorealKeywords は画風強度が低いときに注入する写実寄りのキーワードです。
	PhotorealKeywords = "photorealistic, realistic skin texture, natural lighting, shot on 35mm film, high detail"
	// CharacterAspectTag はキャラクター参照画像のプロンプト末尾に付与する固定タグです。
	CharacterAspectTag = "full body, plain background, 3:4 aspect ratio"
	// CharacterAspectRatio はキャラクター参照画像のアスペクト比です。
	CharacterAspectRatio = "3:4"

	// NegativePrompt は透かしや文字の混入を避けるための共通ネガティブプロンプトです。
	NegativePrompt = "watermark, signature, text, letters, logo, low quality, distorted, bad anatomy, extra limbs"

	photorealThreshold = 50
)

// ClampStrength は画風強度を 0〜100 に丸めます。
func ClampStrength(strength int) int {
	return max(0, min(strength, 100))
}

// CharacterBasePrompt はキャラクター自身の生成プロンプトを返します。空の場合は属性から組み立てます。
func CharacterBasePrompt(c domain.CharacterInfo) string {
	if p := strings.TrimSpace(c.Prompt); p != "" {
		return p
	}
	return joinNonEmpty(", ",
		"character reference of "+c.Name,
		c.Gender, c.Ethnicity, c.Age, c.Appearance,
		wearing(c.Outfit), c.Expression,
	)
}

// CharacterRegenerationPrompt は再生成用にプロンプトを書き換えます。
// 強度が 50 未満なら写実キーワードを加え、統一画風キーワードが含まれていなければ先頭に付け、
// 最後にアスペクト比タグを付与します。
func CharacterRegenerationPrompt(c domain.CharacterInfo, styleKeywords string, strength int) string {
	base := CharacterBasePrompt(c)
	styleKeywords = strings.TrimSpace(styleKeywords)

	parts := make([]string, 0, 4)
	if styleKeywords != "" && !containsFold(base, styleKeywords) {
		parts = append(parts, styleKeywords)
	}
	parts = append(parts, base)
	if ClampStrength(strength) < photorealThreshold && !containsFold(base, PhotorealKeywords) {
		parts = append(parts, PhotorealKeywords)
	}
	parts = append(parts, CharacterAspectTag)
	return strings.Join(parts, ", ")
}

// CharacterDescriptor はキーフレームの複数人物を区別するための短い記述です。
// 形式は "gender, ethnicity, appearance, wearing outfit, position" で、空の項目は省きます。
func CharacterDescriptor(mc domain.MappedCharacter) string {
	return joinNonEmpty(", ", mc.Gender, mc.Ethnicity, mc.Appearance, wearing(mc.Outfit), mc.Position)
}

// KeyframePrompt は登場キャラクターがいる場合、キャラクターごとの記述を先頭に付けます。
func KeyframePrompt(base string, chars []domain.MappedCharacter) string {
	if len(chars) == 0 {
		return base
	}
	var sb strings.Builder
	for _, mc := range chars {
		desc := CharacterDescriptor(mc)
		if desc == "" {
			desc = mc.Name
		}
		fmt.Fprintf(&sb, "[%s] ", desc)
	}
	sb.WriteString(base)
	return sb.String()
}

// StylePreviewPrompt は画風プレビュー用に主題と画風キーワードを組み合わせます。
func StylePreviewPrompt(subject, styleKeywords string) string {
	return joinNonEmpty(", ", strings.TrimSpace(subject), styleKeywords, "cinematic composition, sharp focus")
}

func wearing(outfit string) string {
	if outfit = strings.TrimSpace(outfit); outfit == "" {
		return ""
	}
	return "wearing " + outfit
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
