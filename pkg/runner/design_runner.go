package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/batch"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
)

// DesignRequest はキャラクターデザイン生成の入力です。
type DesignRequest struct {
	Script   domain.Script `json:"script"`
	ArtStyle string        `json:"artStyle"`
}

// RegenerateCharacterRequest は1キャラクター分の画像再生成の入力です。
type RegenerateCharacterRequest struct {
	Character     domain.CharacterInfo `json:"character"`
	StyleKeywords string               `json:"styleKeywords"`
	StyleStrength int                  `json:"styleStrength"`
}

// DesignRunner はキャラクター設定と参照画像を生成します。
type DesignRunner struct {
	deps Deps
}

// NewDesignRunner は依存関係を注入して初期化します。
func NewDesignRunner(deps Deps) *DesignRunner {
	return &DesignRunner{deps: deps}
}

// Run は台本に登場するキャラクターの設定を1回のテキスト生成で作り、
// キャラクターごとの画像をバッチで生成します。画像は1枚でも失敗すれば全体を失敗とします。
func (dr *DesignRunner) Run(ctx context.Context, req DesignRequest) (domain.CharacterDesign, error) {
	names := domain.UniqueCharacterNames(req.Script)
	if len(names) == 0 {
		return domain.CharacterDesign{}, domain.NewValidationError("no character information")
	}

	data := prompts.TemplateData{
		Script:        req.Script,
		ArtStyle:      req.ArtStyle,
		StyleKeywords: dr.deps.styleKeywords(req.ArtStyle),
		Names:         names,
	}
	var payload struct {
		Characters []domain.CharacterInfo `json:"characters"`
	}
	if err := dr.deps.generateJSON(ctx, "characters", prompts.ModeJSONSystem, prompts.ModeCharacters, data, &payload); err != nil {
		return domain.CharacterDesign{}, err
	}

	infos, err := reconcileCharacters(names, payload.Characters)
	if err != nil {
		return domain.CharacterDesign{}, err
	}

	slog.InfoContext(ctx, "Executing character image generation", slog.Any("chars", names))

	tasks := make([]batch.Task[string], len(infos))
	for i, info := range infos {
		seed := domain.GetSeedFromName(info.Name)
		tasks[i] = func(ctx context.Context) (string, error) {
			ref, err := dr.deps.generateOne(ctx, generator.ImageRequest{
				Prompt:      prompts.CharacterBasePrompt(info),
				Size:        generator.ImageSize1K,
				AspectRatio: prompts.CharacterAspectRatio,
				Seed:        &seed,
				Name:        "character_" + info.Name,
			})
			if err != nil {
				return "", fmt.Errorf("character %d (%s) image generation failed: %w", i+1, info.Name, err)
			}
			return ref, nil
		}
	}

	policy := batch.Batched(dr.deps.Config.BatchSize, dr.deps.Config.BatchCooldown)
	results := batch.Run(ctx, dr.deps.batchOptions("character-images", policy), tasks)
	images, err := batch.RequireAll(results)
	if err != nil {
		return domain.CharacterDesign{}, domain.NewGenerationError(err, "character image generation failed")
	}

	design := domain.CharacterDesign{Characters: make([]domain.DesignedCharacter, len(infos))}
	for i, info := range infos {
		design.Characters[i] = domain.DesignedCharacter{CharacterInfo: info, Image: images[i]}
	}
	return design, nil
}

// Regenerate は1キャラクターのプロンプトを書き換えて画像を1枚生成し、新しい画像参照だけを返します。
// 反映は呼び出し側が CharacterDesign.WithImage で行います。
func (dr *DesignRunner) Regenerate(ctx context.Context, req RegenerateCharacterRequest) (string, error) {
	if strings.TrimSpace(req.Character.Name) == "" && strings.TrimSpace(req.Character.Prompt) == "" {
		return "", domain.NewValidationError("character name or prompt is required")
	}

	prompt := prompts.CharacterRegenerationPrompt(req.Character, req.StyleKeywords, req.StyleStrength)
	slog.InfoContext(ctx, "Regenerating character image",
		"name", req.Character.Name,
		"style_strength", prompts.ClampStrength(req.StyleStrength))

	ref, err := dr.deps.generateOne(ctx, generator.ImageRequest{
		Prompt:      prompt,
		Size:        generator.ImageSize1K,
		AspectRatio: prompts.CharacterAspectRatio,
		Name:        "character_" + req.Character.Name,
	})
	if err != nil {
		return "", domain.NewGenerationError(err, "character regeneration failed")
	}
	return ref, nil
}

// reconcileCharacters は生成された設定を台本の初出順に並べ直します。
// 台本に無い名前は捨て、台本の名前が欠けていればスキーマエラーとします。
func reconcileCharacters(names []string, generated []domain.CharacterInfo) ([]domain.CharacterInfo, error) {
	used := make([]bool, len(generated))
	out := make([]domain.CharacterInfo, 0, len(names))
	var missing []string

	for _, name := range names {
		idx := -1
		for j, c := range generated {
			if !used[j] && c.Name == name {
				idx = j
				break
			}
		}
		if idx < 0 {
			for j, c := range generated {
				if !used[j] && domain.SameName(c.Name, name) {
					idx = j
					break
				}
			}
		}
		if idx < 0 {
			missing = append(missing, name)
			continue
		}
		used[idx] = true
		info := generated[idx]
		info.Name = name
		out = append(out, info)
	}

	if len(missing) > 0 {
		return nil, domain.NewSchemaError(nil, "character design is missing: %s", strings.Join(missing, ", "))
	}
	for j, c := range generated {
		if !used[j] {
			slog.Warn("Dropping character not present in script", "name", c.Name)
		}
	}
	return out, nil
}
