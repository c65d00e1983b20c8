package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/store"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/publisher"
	"github.com/shouni/go-storyboard-kit/pkg/runner"
	"github.com/shouni/go-storyboard-kit/pkg/styles"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

// Backend はリクエストごとに Runner を組み立てる生成側の依存です。
type Backend interface {
	BuildRunners() workflow.Runners
	Styles() *styles.Catalogue
}

// RunStore はパイプライン実行の永続化先です。
type RunStore interface {
	SaveRun(ctx context.Context, run domain.Run) error
	GetRun(ctx context.Context, id string) (domain.Run, error)
	ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
}

// ReloadFunc は設定を読み直し、機密値を伏せた新しい設定を返します。
type ReloadFunc func(ctx context.Context) (config.Config, error)

// Handler は各工程を HTTP で公開します。
type Handler struct {
	backend  Backend
	runs     RunStore
	hub      *Hub
	exporter *publisher.Exporter
	reload   ReloadFunc
	resp     *ResponseHelper
}

// NewHandler は Handler を初期化します。reload が nil なら設定の再読み込みは 404 になります。
func NewHandler(backend Backend, runs RunStore, hub *Hub, exporter *publisher.Exporter, reload ReloadFunc) *Handler {
	if hub == nil {
		hub = NewHub()
	}
	return &Handler{
		backend:  backend,
		runs:     runs,
		hub:      hub,
		exporter: exporter,
		reload:   reload,
		resp:     NewResponseHelper(),
	}
}

type characterRegenerateRequest struct {
	runner.RegenerateCharacterRequest
	CharacterDesign *domain.CharacterDesign `json:"characterDesign,omitempty"`
}

type keyframesRequest struct {
	Script          domain.Script          `json:"script"`
	Storyboard      domain.Storyboard      `json:"storyboard"`
	CharacterDesign domain.CharacterDesign `json:"characterDesign"`
	Mode            string                 `json:"mode"`
	Enhance         bool                   `json:"enhance,omitempty"`
}

type keyframeRegenerateRequest struct {
	runner.RegenerateKeyframeRequest
	Keyframes domain.Keyframes `json:"keyframes,omitempty"`
}

type pipelineRequest struct {
	RunID       string `json:"runId,omitempty"`
	Requirement string `json:"requirement"`
	ArtStyle    string `json:"artStyle"`
	Mode        string `json:"mode"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	SkipEnhance bool   `json:"skipEnhance,omitempty"`
}

// bind は JSON ボディを読み込みます。失敗時は 400 を書き込んで false を返します。
func (h *Handler) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		h.resp.BadRequest(c, "Invalid request body", err.Error())
		return false
	}
	return true
}

// Script は要件テキストから台本を生成します。
func (h *Handler) Script(c *gin.Context) {
	var req runner.ScriptRequest
	if !h.bind(c, &req) {
		return
	}
	script, err := h.backend.BuildRunners().Script.Run(c.Request.Context(), req)
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	h.resp.Success(c, "script", script)
}

// Storyboard は台本からショット設計を生成します。
func (h *Handler) Storyboard(c *gin.Context) {
	var req runner.StoryboardRequest
	if !h.bind(c, &req) {
		return
	}
	board, err := h.backend.BuildRunners().Storyboard.Run(c.Request.Context(), req)
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	h.resp.Success(c, "storyboard", board)
}

// Characters はキャラクター設定と参照画像を生成します。
func (h *Handler) Characters(c *gin.Context) {
	var req runner.DesignRequest
	if !h.bind(c, &req) {
		return
	}
	design, err := h.backend.BuildRunners().Design.Run(c.Request.Context(), req)
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	h.resp.Success(c, "characterDesign", design)
}

// RegenerateCharacter は1キャラクターの画像を作り直します。
// characterDesign が添えられていれば、該当キャラクターだけを差し替えた設定も返します。
func (h *Handler) RegenerateCharacter(c *gin.Context) {
	var req characterRegenerateRequest
	if !h.bind(c, &req) {
		return
	}
	idx := -1
	if req.CharacterDesign != nil {
		// 差し替え先が無ければ画像を作る前に断る
		if idx = req.CharacterDesign.IndexOf(req.Character.Name); idx < 0 {
			h.resp.Fail(c, domain.NewValidationError("character %q is not in the character design", req.Character.Name))
			return
		}
	}
	image, err := h.backend.BuildRunners().Design.Regenerate(c.Request.Context(), req.RegenerateCharacterRequest)
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	if req.CharacterDesign == nil {
		h.resp.Success(c, "image", image)
		return
	}
	updated, err := req.CharacterDesign.WithImage(idx, image)
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	h.resp.Success(c, "image", image, gin.H{"characterDesign": updated})
}

// Keyframes はシーンごとのキーフレームを生成します。enhance が真なら先にプロンプトを書き換えます。
func (h *Handler) Keyframes(c *gin.Context) {
	var req keyframesRequest
	if !h.bind(c, &req) {
		return
	}
	mode, err := domain.ParseRenderMode(req.Mode)
	if err != nil {
		h.resp.Fail(c, err)
		return
	}

	ctx := c.Request.Context()
	runners := h.backend.BuildRunners()
	board := req.Storyboard
	mapping := domain.BuildSceneCharacterMapping(req.Script, board, req.CharacterDesign)
	if req.Enhance {
		board = runners.Enhance.Run(ctx, runner.EnhanceRequest{Storyboard: board, Mapping: mapping})
	}
	keyframes, err := runners.Keyframe.Run(ctx, runner.KeyframeRequest{
		Storyboard: board,
		Design:     req.CharacterDesign,
		Mapping:    mapping,
		Mode:       mode,
	})
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	h.resp.Success(c, "keyframes", keyframes, gin.H{"storyboard": board})
}

// RegenerateKeyframe は1シーンのキーフレームを作り直します。
func (h *Handler) RegenerateKeyframe(c *gin.Context) {
	var req keyframeRegenerateRequest
	if !h.bind(c, &req) {
		return
	}
	image, err := h.backend.BuildRunners().Keyframe.Regenerate(c.Request.Context(), req.RegenerateKeyframeRequest)
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	if len(req.Keyframes) == 0 {
		h.resp.Success(c, "image", image)
		return
	}
	updated, err := req.Keyframes.WithImage(req.Keyframe.SceneNumber, image)
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	h.resp.Success(c, "image", image, gin.H{"keyframes": updated})
}

// VideoPrompts はキーフレームごとに動画生成ツール向けのプロンプトを作ります。
func (h *Handler) VideoPrompts(c *gin.Context) {
	var req runner.VideoPromptRequest
	if !h.bind(c, &req) {
		return
	}
	vp, err := h.backend.BuildRunners().VideoPrompt.Run(c.Request.Context(), req)
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	h.resp.Success(c, "videoPrompts", vp)
}

// Previews は画風ごとのプレビューを生成します。一部の失敗は成功レスポンスの中で報告します。
func (h *Handler) Previews(c *gin.Context) {
	var req runner.PreviewRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.backend.BuildRunners().Preview.Run(c.Request.Context(), req)
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	h.resp.Success(c, "previews", res.Items, gin.H{"succeeded": res.Succeeded, "failed": res.Failed})
}

// Pipeline は5工程を一括で実行します。進捗は /ws/runs/:id で購読できます。
func (h *Handler) Pipeline(c *gin.Context) {
	var req pipelineRequest
	if !h.bind(c, &req) {
		return
	}
	pipeline := workflow.NewPipeline(h.backend.BuildRunners(), h.runs, h.hub)
	run, err := pipeline.Run(c.Request.Context(), workflow.PipelineRequest{
		RunID:       req.RunID,
		Requirement: req.Requirement,
		ArtStyle:    req.ArtStyle,
		Mode:        req.Mode,
		AspectRatio: req.AspectRatio,
		SkipEnhance: req.SkipEnhance,
	})
	if err != nil {
		if run.ID != "" {
			h.resp.Fail(c, err, fmt.Sprintf("run %s failed at stage %s", run.ID, run.Stage))
			return
		}
		h.resp.Fail(c, err)
		return
	}
	h.resp.Success(c, "run", run)
}

// GetRun は保存済みの実行を返します。
func (h *Handler) GetRun(c *gin.Context) {
	if h.runs == nil {
		h.resp.Error(c, http.StatusNotFound, ErrorNotFound, "run history is disabled")
		return
	}
	run, err := h.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	h.resp.Success(c, "run", run)
}

// ListRuns は新しい順に実行の概要を返します。
func (h *Handler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		h.resp.Success(c, "runs", []store.RunSummary{})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.resp.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	h.resp.Success(c, "runs", runs)
}

// ExportRun は実行のキーフレームと動画プロンプトを ZIP で返します。
func (h *Handler) ExportRun(c *gin.Context) {
	if h.runs == nil || h.exporter == nil {
		h.resp.Error(c, http.StatusNotFound, ErrorNotFound, "export is disabled")
		return
	}
	ctx := c.Request.Context()
	run, err := h.runs.GetRun(ctx, c.Param("id"))
	if err != nil {
		h.resp.Fail(c, err)
		return
	}
	pkg, err := publisher.PackageFromRun(run)
	if err != nil {
		h.resp.Fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.WriteZip(ctx, &buf, pkg); err != nil {
		if domain.KindOf(err) != domain.KindInternal {
			h.resp.Fail(c, err)
			return
		}
		h.resp.Error(c, http.StatusInternalServerError, ErrorExportFailed, "export failed", err.Error())
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="storyboard_%s.zip"`, run.ID))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// Styles は画風の一覧を返します。
func (h *Handler) Styles(c *gin.Context) {
	h.resp.Success(c, "styles", h.backend.Styles().All())
}

// ReloadConfig は設定ファイルと環境変数を読み直します。失敗しても以前の設定で動き続けます。
func (h *Handler) ReloadConfig(c *gin.Context) {
	if h.reload == nil {
		h.resp.Error(c, http.StatusNotFound, ErrorNotFound, "config reload is disabled")
		return
	}
	cfg, err := h.reload(c.Request.Context())
	if err != nil {
		h.resp.Error(c, http.StatusInternalServerError, ErrorConfigReload, "config reload failed", err.Error())
		return
	}
	h.resp.Success(c, "config", cfg.Redacted())
}

// RunEvents は実行の進捗を WebSocket で配信します。
func (h *Handler) RunEvents(c *gin.Context) {
	runID := strings.TrimSpace(c.Param("id"))
	if runID == "" {
		h.resp.BadRequest(c, "run id is required")
		return
	}
	h.hub.ServeWS(c, runID)
}

// Health は死活監視用です。
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
