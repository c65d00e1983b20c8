package domain

import (
	"strings"
)

const (
	MinScenes = 5
	MaxScenes = 8
)

// Script は Brief Interpreter が生成する台本全体の構造です。
type Script struct {
	Title          string  `json:"title"`
	Genre          string  `json:"genre"`
	Logline        string  `json:"logline"`
	Summary        string  `json:"summary"`
	EmotionalArc   string  `json:"emotionalArc"`
	TargetAudience string  `json:"targetAudience"`
	VisualStyle    string  `json:"visualStyle"`
	Scenes         []Scene `json:"scenes"`
}

// Scene は台本の1シーン（物語上の1ビート）です。
type Scene struct {
	SceneNumber   int      `json:"sceneNumber"`
	Location      string   `json:"location"`
	TimeOfDay     string   `json:"timeOfDay"`
	Mood          string   `json:"mood"`
	Characters    []string `json:"characters"`
	Action        string   `json:"action"`
	Dialogue      string   `json:"dialogue,omitempty"`
	EmotionalBeat string   `json:"emotionalBeat"`
	VisualHook    string   `json:"visualHook"`
	Duration      float64  `json:"duration"`
}

// Validate は生成された台本が最低限の構造を満たしているかを確認します。
// シーン番号の連番チェックは Renumber 後に行う想定です。
func (s Script) Validate() error {
	if len(s.Scenes) == 0 {
		return NewSchemaError(nil, "script has no scenes")
	}
	for i, sc := range s.Scenes {
		if sc.SceneNumber != i+1 {
			return NewSchemaError(nil, "scene at position %d has number %d", i+1, sc.SceneNumber)
		}
		if strings.TrimSpace(sc.VisualHook) == "" {
			return NewSchemaError(nil, "scene %d has no visual hook", sc.SceneNumber)
		}
	}
	return nil
}

// WithinSceneBudget はシーン数が 5〜8 の範囲にあるかを返します。
func (s Script) WithinSceneBudget() bool {
	return len(s.Scenes) >= MinScenes && len(s.Scenes) <= MaxScenes
}

// TotalDuration はシーン尺の合計秒数です。
func (s Script) TotalDuration() float64 {
	var total float64
	for _, sc := range s.Scenes {
		total += sc.Duration
	}
	return total
}

// Renumber はシーン番号を配列位置に合わせた 1 始まりの連番に振り直した新しい Script を返します。
func (s Script) Renumber() Script {
	out := s
	out.Scenes = make([]Scene, len(s.Scenes))
	for i, sc := range s.Scenes {
		sc.SceneNumber = i + 1
		out.Scenes[i] = sc
	}
	return out
}

// SceneAt は位置 i (0 始まり) のシーンを返します。
func (s Script) SceneAt(i int) (Scene, bool) {
	if i < 0 || i >= len(s.Scenes) {
		return Scene{}, false
	}
	return s.Scenes[i], true
}
