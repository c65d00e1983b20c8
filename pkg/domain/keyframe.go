package domain

import "sort"

// KeyframeScene はシーンを代表する1枚の静止画です。
type KeyframeScene struct {
	SceneNumber int    `json:"sceneNumber"`
	Prompt      string `json:"prompt"`
	Image       string `json:"image"`
}

// Keyframes はシーン番号で対応付けられるキーフレームの一覧です。
type Keyframes []KeyframeScene

// Sorted はシーン番号順に並べ替えたコピーを返します。
func (k Keyframes) Sorted() Keyframes {
	out := make(Keyframes, len(k))
	copy(out, k)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SceneNumber < out[j].SceneNumber })
	return out
}

// Find はシーン番号でキーフレームを探します。
func (k Keyframes) Find(sceneNumber int) (KeyframeScene, bool) {
	for _, kf := range k {
		if kf.SceneNumber == sceneNumber {
			return kf, true
		}
	}
	return KeyframeScene{}, false
}

// WithImage は指定シーンの画像だけを差し替えた新しい Keyframes を返します。
func (k Keyframes) WithImage(sceneNumber int, image string) (Keyframes, error) {
	out := make(Keyframes, len(k))
	copy(out, k)
	for i := range out {
		if out[i].SceneNumber == sceneNumber {
			out[i].Image = image
			return out, nil
		}
	}
	return k, NewNotFoundError("keyframe for scene %d not found", sceneNumber)
}

// CoversStoryboard はストーリーボードのシーン番号集合と過不足・重複なく一致するかを確認します。
func (k Keyframes) CoversStoryboard(board Storyboard) error {
	want := make(map[int]bool, len(board.Scenes))
	for _, sc := range board.Scenes {
		want[sc.SceneNumber] = false
	}
	for _, kf := range k {
		seen, ok := want[kf.SceneNumber]
		if !ok {
			return NewSchemaError(nil, "keyframe for unknown scene %d", kf.SceneNumber)
		}
		if seen {
			return NewSchemaError(nil, "duplicate keyframe for scene %d", kf.SceneNumber)
		}
		want[kf.SceneNumber] = true
	}
	for n, seen := range want {
		if !seen {
			return NewSchemaError(nil, "missing keyframe for scene %d", n)
		}
	}
	return nil
}

// RenderMode はキーフレーム生成の解像度モードです。
type RenderMode string

const (
	RenderFast     RenderMode = "fast"
	RenderStandard RenderMode = "standard"
)

// ParseRenderMode は文字列をモードに変換します。空文字は standard とみなします。
func ParseRenderMode(s string) (RenderMode, error) {
	switch RenderMode(s) {
	case "", RenderStandard:
		return RenderStandard, nil
	case RenderFast:
		return RenderFast, nil
	default:
		return "", NewValidationError("unknown render mode %q (want fast or standard)", s)
	}
}

// ImageSize はモードに対応する画像サイズ指定です。
func (m RenderMode) ImageSize() string {
	if m == RenderFast {
		return "1K"
	}
	return "2K"
}
