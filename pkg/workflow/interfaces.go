package workflow

import (
	"context"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/runner"
)

// Workflow は、絵コンテ生成ワークフローの各工程を担当する Runner を構築するためのインターフェースを定義します。
type Workflow interface {
	BuildScriptRunner() ScriptRunner
	BuildStoryboardRunner() StoryboardRunner
	BuildDesignRunner() DesignRunner
	BuildEnhanceRunner() EnhanceRunner
	BuildKeyframeRunner() KeyframeRunner
	BuildVideoPromptRunner() VideoPromptRunner
	BuildPreviewRunner() PreviewRunner
}

// ScriptRunner は、要件テキストから構造化された台本を生成する責務を持ちます。
type ScriptRunner interface {
	Run(ctx context.Context, req runner.ScriptRequest) (domain.Script, error)
}

// StoryboardRunner は、台本からシーンごとのショット設計を生成する責務を持ちます。
type StoryboardRunner interface {
	Run(ctx context.Context, req runner.StoryboardRequest) (domain.Storyboard, error)
}

// DesignRunner は、キャラクター設定と参照画像を生成・再生成する責務を持ちます。
type DesignRunner interface {
	Run(ctx context.Context, req runner.DesignRequest) (domain.CharacterDesign, error)
	Regenerate(ctx context.Context, req runner.RegenerateCharacterRequest) (string, error)
}

// EnhanceRunner は、シーンの生成プロンプトを書き換えます。失敗しても入力を返します。
type EnhanceRunner interface {
	Run(ctx context.Context, req runner.EnhanceRequest) domain.Storyboard
}

// KeyframeRunner は、シーンごとのキーフレーム画像を生成・再生成する責務を持ちます。
type KeyframeRunner interface {
	Run(ctx context.Context, req runner.KeyframeRequest) (domain.Keyframes, error)
	Regenerate(ctx context.Context, req runner.RegenerateKeyframeRequest) (string, error)
}

// VideoPromptRunner は、キーフレームごとに動画生成ツール向けのプロンプトを作ります。
type VideoPromptRunner interface {
	Run(ctx context.Context, req runner.VideoPromptRequest) (domain.VideoPrompts, error)
}

// PreviewRunner は、画風ごとのプレビュー画像を生成します。
type PreviewRunner interface {
	Run(ctx context.Context, req runner.PreviewRequest) (runner.PreviewResult, error)
}

// ProgressReporter はパイプラインの進捗を受け取ります。
type ProgressReporter interface {
	Report(ev Event)
}

// RunRecorder はパイプラインの途中経過を永続化します。
type RunRecorder interface {
	SaveRun(ctx context.Context, run domain.Run) error
}

// ReporterFunc は関数を ProgressReporter として扱うためのアダプタです。
type ReporterFunc func(Event)

func (f ReporterFunc) Report(ev Event) { f(ev) }
