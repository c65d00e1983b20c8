package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// Store はパイプライン実行の履歴を SQLite に保存します。
type Store struct {
	db   *sql.DB
	path string
}

// RunSummary は一覧表示用の実行概要です。
type RunSummary struct {
	ID          string           `json:"id"`
	Requirement string           `json:"requirement"`
	ArtStyle    string           `json:"artStyle"`
	Status      domain.RunStatus `json:"status"`
	Stage       string           `json:"stage,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// artifacts は runs.artifacts_json に格納する成果物です。
type artifacts struct {
	Script          *domain.Script          `json:"script,omitempty"`
	Storyboard      *domain.Storyboard      `json:"storyboard,omitempty"`
	CharacterDesign *domain.CharacterDesign `json:"characterDesign,omitempty"`
	Keyframes       domain.Keyframes        `json:"keyframes,omitempty"`
	VideoPrompts    *domain.VideoPrompts    `json:"videoPrompts,omitempty"`
}

// Open はデータベースを開き、マイグレーションを適用します。
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun は実行を挿入し、既に存在すれば上書きします。
func (s *Store) SaveRun(ctx context.Context, run domain.Run) error {
	payload, err := json.Marshal(artifacts{
		Script:          run.Script,
		Storyboard:      run.Storyboard,
		CharacterDesign: run.CharacterDesign,
		Keyframes:       run.Keyframes,
		VideoPrompts:    run.VideoPrompts,
	})
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := run.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (
            id, requirement, art_style, mode, status, stage, error, artifacts_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            stage = excluded.stage,
            error = excluded.error,
            artifacts_json = excluded.artifacts_json,
            updated_at = excluded.updated_at`,
		run.ID,
		run.Requirement,
		run.ArtStyle,
		run.Mode,
		string(run.Status),
		nullableString(run.Stage),
		nullableString(run.Error),
		string(payload),
		formatTime(createdAt),
		formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun は ID で実行を取得します。存在しなければ not_found エラーを返します。
func (s *Store) GetRun(ctx context.Context, id string) (domain.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, requirement, art_style, mode, status, stage, error, artifacts_json, created_at, updated_at
         FROM runs WHERE id = ?`, id)

	var (
		run              domain.Run
		status           string
		stage, errText   sql.NullString
		payload          string
		created, updated string
	)
	err := row.Scan(&run.ID, &run.Requirement, &run.ArtStyle, &run.Mode, &status, &stage, &errText, &payload, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, domain.NewNotFoundError("run %s not found", id)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("scan run %s: %w", id, err)
	}

	var a artifacts
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return domain.Run{}, fmt.Errorf("decode artifacts of run %s: %w", id, err)
	}
	run.Status = domain.RunStatus(status)
	run.Stage = stage.String
	run.Error = errText.String
	run.Script = a.Script
	run.Storyboard = a.Storyboard
	run.CharacterDesign = a.CharacterDesign
	run.Keyframes = a.Keyframes
	run.VideoPrompts = a.VideoPrompts
	run.CreatedAt = parseTime(created)
	run.UpdatedAt = parseTime(updated)
	return run, nil
}

// ListRuns は新しい順に最大 limit 件の概要を返します。limit が 0 以下なら 50 件です。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, requirement, art_style, status, stage, created_at, updated_at
         FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			sum              RunSummary
			status           string
			stage            sql.NullString
			created, updated string
		)
		if err := rows.Scan(&sum.ID, &sum.Requirement, &sum.ArtStyle, &status, &stage, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		sum.Status = domain.RunStatus(status)
		sum.Stage = stage.String
		sum.CreatedAt = parseTime(created)
		sum.UpdatedAt = parseTime(updated)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
