package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
)

// ScriptRequest は台本生成の入力です。PreviousScript があれば改訂モードになります。
type ScriptRequest struct {
	Requirement    string         `json:"requirement"`
	PreviousScript *domain.Script `json:"previousScript,omitempty"`
}

// scriptPayload は Validate を持たない Script で、番号の振り直し前にデコードするために使います。
type scriptPayload domain.Script

// ScriptRunner はブリーフから台本を生成します。
type ScriptRunner struct {
	deps Deps
}

// NewScriptRunner は依存関係を注入して初期化します。
func NewScriptRunner(deps Deps) *ScriptRunner {
	return &ScriptRunner{deps: deps}
}

// Run は要件テキスト（と改訂元の台本）から Script を生成します。再試行は行いません。
func (sr *ScriptRunner) Run(ctx context.Context, req ScriptRequest) (domain.Script, error) {
	requirement := strings.TrimSpace(req.Requirement)
	if requirement == "" {
		return domain.Script{}, domain.NewValidationError("requirement is required")
	}

	data := prompts.TemplateData{
		Requirement: requirement,
		MinScenes:   domain.MinScenes,
		MaxScenes:   domain.MaxScenes,
	}
	mode := prompts.ModeScript
	if req.PreviousScript != nil {
		prev, err := json.MarshalIndent(req.PreviousScript, "", "  ")
		if err != nil {
			return domain.Script{}, fmt.Errorf("改訂元の台本のシリアライズに失敗しました: %w", err)
		}
		data.PreviousScript = string(prev)
		mode = prompts.ModeScriptRevision
	}

	slog.InfoContext(ctx, "ScriptRunner: generating script", "revision", req.PreviousScript != nil)

	var payload scriptPayload
	if err := sr.deps.generateJSON(ctx, "script", prompts.ModeScriptSystem, mode, data, &payload); err != nil {
		return domain.Script{}, err
	}

	script := domain.Script(payload).Renumber()
	if len(script.Scenes) > domain.MaxScenes {
		slog.WarnContext(ctx, "Script exceeds scene budget, truncating", "scenes", len(script.Scenes), "max", domain.MaxScenes)
		script.Scenes = script.Scenes[:domain.MaxScenes]
	}
	if len(script.Scenes) < domain.MinScenes {
		return domain.Script{}, domain.NewSchemaError(nil, "script has %d scenes, want %d-%d", len(script.Scenes), domain.MinScenes, domain.MaxScenes)
	}
	if err := script.Validate(); err != nil {
		return domain.Script{}, err
	}

	slog.InfoContext(ctx, "ScriptRunner: script generated",
		"title", script.Title,
		"scenes", len(script.Scenes),
		"duration_seconds", script.TotalDuration())
	return script, nil
}
