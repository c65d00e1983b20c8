package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/runner"
)

// Pipeline は5工程を順番に実行します。工程 n+1 は工程 n の成果物が揃ってから始まります。
type Pipeline struct {
	runners  Runners
	recorder RunRecorder
	reporter ProgressReporter
	now      func() time.Time
}

// NewPipeline は Pipeline を初期化します。recorder と reporter は nil でも構いません。
func NewPipeline(runners Runners, recorder RunRecorder, reporter ProgressReporter) *Pipeline {
	return &Pipeline{
		runners:  runners,
		recorder: recorder,
		reporter: reporter,
		now:      time.Now,
	}
}

// NewPipeline は現在の設定で構築した Runner 群から Pipeline を作成します。
func (m *Manager) NewPipeline(recorder RunRecorder, reporter ProgressReporter) *Pipeline {
	return NewPipeline(m.BuildRunners(), recorder, reporter)
}

// Run はブリーフから動画プロンプトまでを一括で生成します。
// 失敗した場合も、それまでの成果物と失敗した工程を記録した Run をエラーと共に返します。
func (p *Pipeline) Run(ctx context.Context, req PipelineRequest) (domain.Run, error) {
	if strings.TrimSpace(req.Requirement) == "" {
		return domain.Run{}, domain.NewValidationError("requirement is required")
	}
	if strings.TrimSpace(req.ArtStyle) == "" {
		return domain.Run{}, domain.NewValidationError("artStyle is required")
	}
	mode, err := domain.ParseRenderMode(req.Mode)
	if err != nil {
		return domain.Run{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	now := p.now()
	run := domain.Run{
		ID:          runID,
		Requirement: req.Requirement,
		ArtStyle:    req.ArtStyle,
		Mode:        string(mode),
		Status:      domain.RunRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	logger := slog.With("run_id", runID)
	logger.InfoContext(ctx, "Pipeline started", "art_style", req.ArtStyle, "mode", mode)
	startTime := time.Now()
	p.save(ctx, &run)

	if err := p.stage(ctx, &run, StageScript, func() (string, error) {
		script, err := p.runners.Script.Run(ctx, runner.ScriptRequest{Requirement: req.Requirement})
		if err != nil {
			return "", err
		}
		run.Script = &script
		return fmt.Sprintf("%d scenes", len(script.Scenes)), nil
	}); err != nil {
		return run, err
	}

	if err := p.stage(ctx, &run, StageStoryboard, func() (string, error) {
		board, err := p.runners.Storyboard.Run(ctx, runner.StoryboardRequest{
			Script:      *run.Script,
			ArtStyle:    req.ArtStyle,
			AspectRatio: req.AspectRatio,
		})
		if err != nil {
			return "", err
		}
		run.Storyboard = &board
		return fmt.Sprintf("%d shots", len(board.Scenes)), nil
	}); err != nil {
		return run, err
	}

	if err := p.stage(ctx, &run, StageCharacters, func() (string, error) {
		design, err := p.runners.Design.Run(ctx, runner.DesignRequest{Script: *run.Script, ArtStyle: req.ArtStyle})
		if err != nil {
			return "", err
		}
		run.CharacterDesign = &design
		return fmt.Sprintf("%d characters", len(design.Characters)), nil
	}); err != nil {
		return run, err
	}

	if err := p.stage(ctx, &run, StageKeyframes, func() (string, error) {
		board := *run.Storyboard
		mapping := domain.BuildSceneCharacterMapping(*run.Script, board, *run.CharacterDesign)
		if !req.SkipEnhance {
			board = p.runners.Enhance.Run(ctx, runner.EnhanceRequest{Storyboard: board, Mapping: mapping})
			run.Storyboard = &board
		}
		keyframes, err := p.runners.Keyframe.Run(ctx, runner.KeyframeRequest{
			Storyboard: board,
			Design:     *run.CharacterDesign,
			Mapping:    mapping,
			Mode:       mode,
		})
		if err != nil {
			return "", err
		}
		run.Keyframes = keyframes
		return fmt.Sprintf("%d keyframes", len(keyframes)), nil
	}); err != nil {
		return run, err
	}

	if err := p.stage(ctx, &run, StageVideoPrompts, func() (string, error) {
		vp, err := p.runners.VideoPrompt.Run(ctx, runner.VideoPromptRequest{
			Script:     *run.Script,
			Storyboard: *run.Storyboard,
			Keyframes:  run.Keyframes,
		})
		if err != nil {
			return "", err
		}
		run.VideoPrompts = &vp
		return fmt.Sprintf("%d scenes", len(vp.Scenes)), nil
	}); err != nil {
		return run, err
	}

	run.Status = domain.RunSucceeded
	run.Stage = ""
	run.UpdatedAt = p.now()
	p.save(ctx, &run)
	p.report(Event{RunID: runID, Status: EventFinished, Message: string(domain.RunSucceeded)})

	logger.InfoContext(ctx, "Pipeline completed", "duration", time.Since(startTime).Round(time.Millisecond))
	return run, nil
}

// stage は1工程を実行し、進捗の通知と途中経過の保存を行います。
func (p *Pipeline) stage(ctx context.Context, run *domain.Run, stage Stage, fn func() (string, error)) error {
	run.Stage = string(stage)
	run.UpdatedAt = p.now()
	p.report(Event{RunID: run.ID, Stage: stage, Status: EventStarted})
	slog.InfoContext(ctx, "Stage started", "run_id", run.ID, "stage", stage)
	startTime := time.Now()

	summary, err := fn()
	if err != nil {
		run.Status = domain.RunFailed
		run.Error = err.Error()
		run.UpdatedAt = p.now()
		p.save(ctx, run)
		p.report(Event{RunID: run.ID, Stage: stage, Status: EventFailed, Message: err.Error()})
		p.report(Event{RunID: run.ID, Status: EventFinished, Message: string(domain.RunFailed)})
		slog.ErrorContext(ctx, "Stage failed", "run_id", run.ID, "stage", stage, "error", err)
		return fmt.Errorf("%s stage failed: %w", stage, err)
	}

	run.UpdatedAt = p.now()
	p.save(ctx, run)
	p.report(Event{RunID: run.ID, Stage: stage, Status: EventCompleted, Message: summary})
	slog.InfoContext(ctx, "Stage completed",
		"run_id", run.ID,
		"stage", stage,
		"result", summary,
		"duration", time.Since(startTime).Round(time.Millisecond))
	return nil
}

func (p *Pipeline) report(ev Event) {
	if p.reporter == nil {
		return
	}
	ev.Time = p.now()
	p.reporter.Report(ev)
}

// save の失敗は生成を止めずに警告だけ記録します。
func (p *Pipeline) save(ctx context.Context, run *domain.Run) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.SaveRun(context.WithoutCancel(ctx), *run); err != nil {
		slog.WarnContext(ctx, "Failed to persist run", "run_id", run.ID, "stage", run.Stage, "error", err)
	}
}
