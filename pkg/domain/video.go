package domain

// VideoTool は対応する外部動画生成ツールの識別子です。
type VideoTool string

const (
	ToolRunway VideoTool = "runway"
	ToolPika   VideoTool = "pika"
	ToolKling  VideoTool = "kling"
	ToolSora   VideoTool = "sora"
)

// SupportedTools は出力順も兼ねます。
var SupportedTools = []VideoTool{ToolRunway, ToolPika, ToolKling, ToolSora}

// VideoPrompts は動画プロンプト変換の成果物です。
type VideoPrompts struct {
	OverallStyle OverallStyle       `json:"overallStyle"`
	Scenes       []VideoPromptScene `json:"scenes"`
}

// OverallStyle は作品全体で共有するトーン指定です。
type OverallStyle struct {
	VisualStyle string `json:"visualStyle"`
	ColorGrade  string `json:"colorGrade"`
	Pacing      string `json:"pacing"`
	Music       string `json:"music"`
}

// VideoPromptScene はキーフレームとシーン番号で 1:1 に対応します。
type VideoPromptScene struct {
	SceneNumber     int                  `json:"sceneNumber"`
	Description     string               `json:"description"`
	Prompts         map[VideoTool]string `json:"prompts"`
	CameraMovement  string               `json:"cameraMovement"`
	Duration        float64              `json:"duration"`
	MotionIntensity string               `json:"motionIntensity"`
	Audio           string               `json:"audio"`
}

// Find はシーン番号で動画プロンプトを探します。
func (v VideoPrompts) Find(sceneNumber int) (VideoPromptScene, bool) {
	for _, sc := range v.Scenes {
		if sc.SceneNumber == sceneNumber {
			return sc, true
		}
	}
	return VideoPromptScene{}, false
}

// Validate はすべてのキーフレームに対応するシーンがあり、各ツールのプロンプトが揃っているかを確認します。
func (v VideoPrompts) Validate(keyframes Keyframes) error {
	for _, kf := range keyframes {
		sc, ok := v.Find(kf.SceneNumber)
		if !ok {
			return NewSchemaError(nil, "video prompts missing scene %d", kf.SceneNumber)
		}
		for _, tool := range SupportedTools {
			if sc.Prompts[tool] == "" {
				return NewSchemaError(nil, "scene %d has no %s prompt", kf.SceneNumber, tool)
			}
		}
	}
	return nil
}
