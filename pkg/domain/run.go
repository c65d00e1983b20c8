package domain

import "time"

// RunStatus はパイプライン実行の状態です。
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run は1回のパイプライン実行で生成された成果物一式です。
type Run struct {
	ID              string           `json:"id"`
	Requirement     string           `json:"requirement"`
	ArtStyle        string           `json:"artStyle"`
	Mode            string           `json:"mode"`
	Status          RunStatus        `json:"status"`
	Stage           string           `json:"stage,omitempty"`
	Error           string           `json:"error,omitempty"`
	Script          *Script          `json:"script,omitempty"`
	Storyboard      *Storyboard      `json:"storyboard,omitempty"`
	CharacterDesign *CharacterDesign `json:"characterDesign,omitempty"`
	Keyframes       Keyframes        `json:"keyframes,omitempty"`
	VideoPrompts    *VideoPrompts    `json:"videoPrompts,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}
