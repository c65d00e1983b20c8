package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-storyboard-kit/pkg/batch"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
)

// KeyframeRequest はキーフレーム生成の入力です。
type KeyframeRequest struct {
	Storyboard domain.Storyboard
	Design     domain.CharacterDesign
	Mapping    domain.SceneCharacterMapping
	Mode       domain.RenderMode
}

// RegenerateKeyframeRequest は1シーン分のキーフレーム再生成の入力です。
type RegenerateKeyframeRequest struct {
	Keyframe        domain.KeyframeScene `json:"keyframe"`
	CharacterImages []string             `json:"characterImages"`
	Prompt          string               `json:"prompt"`
	AspectRatio     string               `json:"aspectRatio,omitempty"`
	Mode            domain.RenderMode    `json:"mode,omitempty"`
}

// KeyframeRunner はシーンごとにキャラクター参照画像を使って静止画を生成します。
type KeyframeRunner struct {
	deps Deps
}

// NewKeyframeRunner は依存関係を注入して初期化します。
func NewKeyframeRunner(deps Deps) *KeyframeRunner {
	return &KeyframeRunner{deps: deps}
}

// Policy はキーフレームのファンアウト方式です。既定では全シーンを同時に投入します。
func (kr *KeyframeRunner) Policy() batch.Policy {
	if size := kr.deps.Config.KeyframeBatchSize; size > 0 {
		return batch.Batched(size, kr.deps.Config.BatchCooldown)
	}
	return batch.Unbounded()
}

// Run は全シーンのキーフレームを生成し、シーン番号順で返します。
// 1シーンでも失敗すれば一覧は返さず、ステージ全体を失敗とします。
func (kr *KeyframeRunner) Run(ctx context.Context, req KeyframeRequest) (domain.Keyframes, error) {
	scenes := req.Storyboard.Scenes
	if len(scenes) == 0 {
		return nil, domain.NewValidationError("storyboard has no scenes")
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.RenderStandard
	}
	aspect := req.Storyboard.AspectRatio
	if aspect == "" {
		aspect = kr.deps.Config.DefaultAspectRatio
	}
	designImages := req.Design.Images()

	tasks := make([]batch.Task[domain.KeyframeScene], len(scenes))
	for i, scene := range scenes {
		chars := req.Mapping[scene.SceneNumber]
		ref := referenceFor(chars, designImages)
		prompt := prompts.KeyframePrompt(scene.Prompt, chars)

		tasks[i] = func(ctx context.Context) (domain.KeyframeScene, error) {
			logger := slog.With("scene", scene.SceneNumber, "characters", len(chars), "has_reference", ref != "")
			logger.Info("Starting keyframe generation")

			image, err := kr.deps.generateOne(ctx, generator.ImageRequest{
				Prompt:         prompt,
				Size:           mode.ImageSize(),
				AspectRatio:    aspect,
				ReferenceImage: ref,
				Name:           fmt.Sprintf("scene_%02d", scene.SceneNumber),
			})
			if err != nil {
				return domain.KeyframeScene{}, fmt.Errorf("scene %d keyframe generation failed: %w", scene.SceneNumber, err)
			}
			return domain.KeyframeScene{SceneNumber: scene.SceneNumber, Prompt: prompt, Image: image}, nil
		}
	}

	results := batch.Run(ctx, kr.deps.batchOptions("keyframes", kr.Policy()), tasks)
	values, err := batch.RequireAll(results)
	if err != nil {
		return nil, domain.NewGenerationError(err, "keyframe generation failed")
	}
	return domain.Keyframes(values).Sorted(), nil
}

// Regenerate は1シーンの画像を先頭のキャラクター画像を参照にして作り直し、新しい画像参照だけを返します。
// 反映は呼び出し側が Keyframes.WithImage で行います。
func (kr *KeyframeRunner) Regenerate(ctx context.Context, req RegenerateKeyframeRequest) (string, error) {
	prompt := req.Prompt
	if prompt == "" {
		prompt = req.Keyframe.Prompt
	}
	if prompt == "" {
		return "", domain.NewValidationError("prompt is required")
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.RenderStandard
	}
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = kr.deps.Config.DefaultAspectRatio
	}

	var ref string
	for _, img := range req.CharacterImages {
		if img != "" {
			ref = img
			break
		}
	}

	slog.InfoContext(ctx, "Regenerating keyframe", "scene", req.Keyframe.SceneNumber, "has_reference", ref != "")
	image, err := kr.deps.generateOne(ctx, generator.ImageRequest{
		Prompt:         prompt,
		Size:           mode.ImageSize(),
		AspectRatio:    aspect,
		ReferenceImage: ref,
		Name:           fmt.Sprintf("scene_%02d", req.Keyframe.SceneNumber),
	})
	if err != nil {
		return "", domain.NewGenerationError(err, "keyframe regeneration failed")
	}
	return image, nil
}

// referenceFor はシーンの参照画像を決めます。最初に解決済みの登場キャラクター画像を使い、
// 登場キャラクターがいないか未解決ならデザインの先頭画像、それも無ければ参照なしです。
func referenceFor(chars []domain.MappedCharacter, designImages []string) string {
	for _, mc := range chars {
		if mc.Image != "" {
			return mc.Image
		}
	}
	if len(designImages) > 0 {
		return designImages[0]
	}
	return ""
}
