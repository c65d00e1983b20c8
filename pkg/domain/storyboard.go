package domain

// DefaultAspectRatio はストーリーボード全体で共有される既定のアスペクト比です。
const DefaultAspectRatio = "16:9"

// Storyboard は台本から導出されたショット単位の映像設計です。
type Storyboard struct {
	ArtStyle    string            `json:"artStyle"`
	AspectRatio string            `json:"aspectRatio"`
	Scenes      []StoryboardScene `json:"scenes"`
}

// StoryboardScene は1シーン分のカメラ・照明・構図と画像生成プロンプトです。
type StoryboardScene struct {
	SceneNumber       int    `json:"sceneNumber"`
	ShotType          string `json:"shotType"`
	CameraAngle       string `json:"cameraAngle"`
	CameraMovement    string `json:"cameraMovement"`
	Composition       string `json:"composition"`
	CharacterPosition string `json:"characterPosition"`
	Lighting          string `json:"lighting"`
	ColorTemperature  string `json:"colorTemperature"`
	Mood              string `json:"mood"`
	Prompt            string `json:"prompt"`
}

// Validate は台本とシーン数・番号・順序が一致しているかを確認します。
func (b Storyboard) Validate(script Script) error {
	if len(b.Scenes) != len(script.Scenes) {
		return NewSchemaError(nil, "storyboard has %d scenes, script has %d", len(b.Scenes), len(script.Scenes))
	}
	for i, sc := range b.Scenes {
		if sc.SceneNumber != script.Scenes[i].SceneNumber {
			return NewSchemaError(nil, "storyboard scene at position %d has number %d, want %d",
				i+1, sc.SceneNumber, script.Scenes[i].SceneNumber)
		}
		if sc.Prompt == "" {
			return NewSchemaError(nil, "storyboard scene %d has an empty prompt", sc.SceneNumber)
		}
	}
	return nil
}

// WithPrompts はシーン番号をキーにプロンプトだけを差し替えた新しい Storyboard を返します。
// マップに無いシーンは元のプロンプトのままです。
func (b Storyboard) WithPrompts(prompts map[int]string) Storyboard {
	out := b
	out.Scenes = make([]StoryboardScene, len(b.Scenes))
	for i, sc := range b.Scenes {
		if p, ok := prompts[sc.SceneNumber]; ok && p != "" {
			sc.Prompt = p
		}
		out.Scenes[i] = sc
	}
	return out
}
