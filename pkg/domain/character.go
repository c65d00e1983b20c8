package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// CharacterInfo はキャラクターデザイナーが生成する1人分の設定です。
type CharacterInfo struct {
	Name         string `json:"name"`
	Role         string `json:"role"`
	Relationship string `json:"relationship"`
	Ethnicity    string `json:"ethnicity"`
	Age          string `json:"age"`
	Gender       string `json:"gender"`
	Description  string `json:"description"`
	Appearance   string `json:"appearance"`
	Outfit       string `json:"outfit"`
	Expression   string `json:"expression"`
	Prompt       string `json:"prompt"`
}

// String はキャラクターの情報を文字列で返します。
func (c CharacterInfo) String() string {
	if c.Role == "" {
		return c.Name
	}
	return fmt.Sprintf("%s (%s)", c.Name, c.Role)
}

// DesignedCharacter はキャラクター設定と生成済み画像を1つの実体として束ねます。
type DesignedCharacter struct {
	CharacterInfo
	Image string `json:"image"`
}

// CharacterDesign はキャラクターの順序付きリストです。
// 順序は台本での初出順で、実行中に変わりません。
type CharacterDesign struct {
	Characters []DesignedCharacter `json:"characters"`
}

// Infos はキャラクター設定だけを順序通りに返します。
func (d CharacterDesign) Infos() []CharacterInfo {
	out := make([]CharacterInfo, len(d.Characters))
	for i, c := range d.Characters {
		out[i] = c.CharacterInfo
	}
	return out
}

// Images は画像参照だけを順序通りに返します。Infos と同じ長さ・同じ並びです。
func (d CharacterDesign) Images() []string {
	out := make([]string, len(d.Characters))
	for i, c := range d.Characters {
		out[i] = c.Image
	}
	return out
}

// Find は名前でキャラクターを探します。完全一致を優先し、見つからなければ空白・大小文字を無視して比較します。
func (d CharacterDesign) Find(name string) (DesignedCharacter, bool) {
	for _, c := range d.Characters {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range d.Characters {
		if SameName(c.Name, name) {
			return c, true
		}
	}
	return DesignedCharacter{}, false
}

// IndexOf は名前に一致するキャラクターの位置を返します。見つからなければ -1 です。
func (d CharacterDesign) IndexOf(name string) int {
	for i, c := range d.Characters {
		if SameName(c.Name, name) {
			return i
		}
	}
	return -1
}

// WithImage は index 番目の画像だけを差し替えた新しい CharacterDesign を返します。
// レシーバは変更しません。
func (d CharacterDesign) WithImage(index int, image string) (CharacterDesign, error) {
	if index < 0 || index >= len(d.Characters) {
		return d, NewValidationError("character index %d out of range [0, %d)", index, len(d.Characters))
	}
	out := CharacterDesign{Characters: make([]DesignedCharacter, len(d.Characters))}
	copy(out.Characters, d.Characters)
	out.Characters[index].Image = image
	return out, nil
}

// GetSeedFromName は名前から決定論的なシード値を生成します。
func GetSeedFromName(name string) int32 {
	hash := sha256.Sum256([]byte(name))
	seed := int32(binary.BigEndian.Uint32(hash[:4]))
	// 生成サービスのシード値は正の数が望ましいため、最上位ビットを落とす
	return seed & 0x7FFFFFFF
}
