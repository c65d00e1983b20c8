package workflow

import (
	"github.com/shouni/go-storyboard-kit/pkg/runner"
)

// Runners はパイプライン全工程の Runner をまとめたものです。
type Runners struct {
	Script      ScriptRunner
	Storyboard  StoryboardRunner
	Design      DesignRunner
	Enhance     EnhanceRunner
	Keyframe    KeyframeRunner
	VideoPrompt VideoPromptRunner
	Preview     PreviewRunner
}

// BuildScriptRunner は、台本生成を担当する Runner を作成します。
func (m *Manager) BuildScriptRunner() ScriptRunner {
	return runner.NewScriptRunner(m.deps())
}

// BuildStoryboardRunner は、絵コンテ生成を担当する Runner を作成します。
func (m *Manager) BuildStoryboardRunner() StoryboardRunner {
	return runner.NewStoryboardRunner(m.deps())
}

// BuildDesignRunner は、キャラクターデザインを担当する Runner を作成します。
func (m *Manager) BuildDesignRunner() DesignRunner {
	return runner.NewDesignRunner(m.deps())
}

// BuildEnhanceRunner は、プロンプト強化を担当する Runner を作成します。
func (m *Manager) BuildEnhanceRunner() EnhanceRunner {
	return runner.NewEnhanceRunner(m.deps())
}

// BuildKeyframeRunner は、キーフレーム生成を担当する Runner を作成します。
func (m *Manager) BuildKeyframeRunner() KeyframeRunner {
	return runner.NewKeyframeRunner(m.deps())
}

// BuildVideoPromptRunner は、動画プロンプト変換を担当する Runner を作成します。
func (m *Manager) BuildVideoPromptRunner() VideoPromptRunner {
	return runner.NewVideoPromptRunner(m.deps())
}

// BuildPreviewRunner は、画風プレビューを担当する Runner を作成します。
func (m *Manager) BuildPreviewRunner() PreviewRunner {
	return runner.NewPreviewRunner(m.deps())
}

// BuildRunners は同じ設定スナップショットから全工程の Runner を作成します。
func (m *Manager) BuildRunners() Runners {
	deps := m.deps()
	return Runners{
		Script:      runner.NewScriptRunner(deps),
		Storyboard:  runner.NewStoryboardRunner(deps),
		Design:      runner.NewDesignRunner(deps),
		Enhance:     runner.NewEnhanceRunner(deps),
		Keyframe:    runner.NewKeyframeRunner(deps),
		VideoPrompt: runner.NewVideoPromptRunner(deps),
		Preview:     runner.NewPreviewRunner(deps),
	}
}

var _ Workflow = (*Manager)(nil)
