package generator

const (
	// ImageSize1K は標準的な解像度の設定（1024x1024相当）です。
	ImageSize1K = "1K"
	// ImageSize2K は高解像度の設定（2048x2048相当）です。
	ImageSize2K = "2K"

	// DefaultTemperature はテキスト生成の既定温度です。
	DefaultTemperature = 0.8
)

// Role はメッセージの話者です。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message はテキスト生成に渡す役割付きメッセージです。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TextRequest はテキスト生成の要求です。
type TextRequest struct {
	Messages    []Message
	Temperature float32
	// JSON が true の場合、対応するバックエンドでは JSON 形式の応答を要求します。
	JSON bool
}

// ImageRequest は画像生成の要求です。
type ImageRequest struct {
	Prompt      string
	Size        string
	AspectRatio string
	// ReferenceImage は同一性・画風の手がかりとして渡す既存画像の参照です。
	ReferenceImage string
	Watermark      bool
	Seed           *int32
	// Name は保存時のファイル名の接頭辞です。
	Name string
}
