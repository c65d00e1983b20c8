package domain

import (
	"regexp"
	"sort"
	"strings"
)

var defaultPositions = []string{"left", "center", "right"}

var positionSplitter = regexp.MustCompile(`[,;，、；]|\band\b`)

// MappedCharacter はシーン内に登場するキャラクター1人分の視覚情報です。
type MappedCharacter struct {
	Name       string `json:"name"`
	Position   string `json:"position"`
	Gender     string `json:"gender,omitempty"`
	Ethnicity  string `json:"ethnicity,omitempty"`
	Appearance string `json:"appearance,omitempty"`
	Outfit     string `json:"outfit,omitempty"`
	Expression string `json:"expression,omitempty"`
	Image      string `json:"image,omitempty"`
}

// Resolved はキャラクターデザインと紐づいたかどうかを返します。
func (m MappedCharacter) Resolved() bool {
	return m.Image != ""
}

// SceneCharacterMapping はシーン番号から登場キャラクターへの対応表です。
// 台本から導出される派生データで、正とはしません。
type SceneCharacterMapping map[int][]MappedCharacter

// SceneNumbers は登録済みのシーン番号を昇順で返します。
func (m SceneCharacterMapping) SceneNumbers() []int {
	nums := make([]int, 0, len(m))
	for n := range m {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// BuildSceneCharacterMapping はストーリーボードの各シーンに対応する台本シーンを位置で引き、
// 登場キャラクターをデザインと名前で突き合わせます。外部呼び出しは行いません。
func BuildSceneCharacterMapping(script Script, board Storyboard, design CharacterDesign) SceneCharacterMapping {
	mapping := make(SceneCharacterMapping, len(board.Scenes))
	for i, bs := range board.Scenes {
		mapped := []MappedCharacter{}
		sc, ok := script.SceneAt(i)
		if ok {
			names := cleanNames(sc.Characters)
			hints := positionHints(bs.CharacterPosition, names)
			for j, name := range names {
				mc := MappedCharacter{Name: name, Position: hints[j]}
				if c, found := design.Find(name); found {
					mc.Gender = c.Gender
					mc.Ethnicity = c.Ethnicity
					mc.Appearance = c.Appearance
					mc.Outfit = c.Outfit
					mc.Expression = c.Expression
					mc.Image = c.Image
				}
				mapped = append(mapped, mc)
			}
		}
		mapping[bs.SceneNumber] = mapped
	}
	return mapping
}

func cleanNames(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, n := range raw {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// positionHints は立ち位置の記述をキャラクターごとに割り当てます。
// 記述中に名前が含まれていればその断片を、数が揃っていれば順番に、
// それ以外は left / center / right を順に使います。
func positionHints(text string, names []string) []string {
	hints := make([]string, len(names))
	var parts []string
	for _, p := range positionSplitter.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	for i, name := range names {
		for _, p := range parts {
			if strings.Contains(strings.ToLower(p), strings.ToLower(name)) {
				hints[i] = p
				break
			}
		}
		if hints[i] != "" {
			continue
		}
		if len(parts) == len(names) {
			hints[i] = parts[i]
			continue
		}
		if len(names) == 1 && len(parts) > 0 {
			hints[i] = strings.TrimSpace(text)
			continue
		}
		hints[i] = defaultPositions[i%len(defaultPositions)]
	}
	return hints
}
