package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Save upserts run and replaces its labels, intervals and assets.
func (s *Store) Save(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("save run: empty id")
	}
	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	if run.DetectionsJSON == "" {
		run.DetectionsJSON = "[]"
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin save tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `
INSERT INTO runs (id, video_path, video_duration, summary, status, stage, error_message,
                  detections_json, selected_sample, audio_path, output_path, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    video_path = excluded.video_path,
    video_duration = excluded.video_duration,
    summary = excluded.summary,
    status = excluded.status,
    stage = excluded.stage,
    error_message = excluded.error_message,
    detections_json = excluded.detections_json,
    selected_sample = excluded.selected_sample,
    audio_path = excluded.audio_path,
    output_path = excluded.output_path,
    updated_at = excluded.updated_at`,
			run.ID, run.VideoPath, run.VideoDuration, run.Summary, string(run.Status), run.Stage, run.ErrorMessage,
			run.DetectionsJSON, run.SelectedSample, run.AudioPath, run.OutputPath,
			formatTime(run.CreatedAt), formatTime(run.UpdatedAt),
		); err != nil {
			return fmt.Errorf("upsert run: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM labels WHERE run_id = ?", run.ID); err != nil {
			return fmt.Errorf("clear labels: %w", err)
		}
		for _, label := range run.Labels {
			if err := insertLabel(ctx, tx, run.ID, label); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit save: %w", err)
		}
		return nil
	})
}

func insertLabel(ctx context.Context, tx *sql.Tx, runID string, label Label) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO labels (run_id, name, relevant, prompt, status, error_message, duration_seconds)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, label.Name, boolToInt(label.Relevant), label.Prompt, label.Status, label.ErrorMessage, label.DurationSeconds,
	); err != nil {
		return fmt.Errorf("insert label %q: %w", label.Name, err)
	}
	for i, iv := range label.Intervals {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO intervals (run_id, label, position, start_time, end_time) VALUES (?, ?, ?, ?, ?)",
			runID, label.Name, i, iv.Start, iv.End,
		); err != nil {
			return fmt.Errorf("insert interval %q[%d]: %w", label.Name, i, err)
		}
	}
	for _, asset := range label.Assets {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO assets (run_id, label, position, sample, path, duration_seconds) VALUES (?, ?, ?, ?, ?, ?)",
			runID, label.Name, asset.Position, asset.Sample, asset.Path, asset.DurationSeconds,
		); err != nil {
			return fmt.Errorf("insert asset %q[%d/%d]: %w", label.Name, asset.Position, asset.Sample, err)
		}
	}
	return nil
}

const runColumns = "id, video_path, video_duration, summary, status, stage, error_message, detections_json, selected_sample, audio_path, output_path, created_at, updated_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run        Run
		status     string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&run.ID, &run.VideoPath, &run.VideoDuration, &run.Summary, &status, &run.Stage, &run.ErrorMessage,
		&run.DetectionsJSON, &run.SelectedSample, &run.AudioPath, &run.OutputPath, &createdRaw, &updatedRaw,
	); err != nil {
		return Run{}, err
	}
	run.Status = Status(status)
	run.CreatedAt = parseTime(createdRaw)
	run.UpdatedAt = parseTime(updatedRaw)
	return run, nil
}

// Get loads a run with all its labels. Unknown ids return ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("load run %s: %w", id, err)
	}
	labels, err := s.loadLabels(ctx, id)
	if err != nil {
		return Run{}, err
	}
	run.Labels = labels
	return run, nil
}

// FindByPrefix resolves a unique run id from a prefix of at least four
// characters, for CLI convenience.
func (s *Store) FindByPrefix(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < 4 {
		return "", fmt.Errorf("%w: prefix %q too short", ErrNotFound, prefix)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM runs WHERE id LIKE ? ESCAPE '\\' LIMIT 2", escapeLike(prefix)+"%")
	if err != nil {
		return "", fmt.Errorf("find run: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate runs: %w", err)
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("run prefix %q is ambiguous", prefix)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *Store) loadLabels(ctx context.Context, runID string) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, relevant, prompt, status, error_message, duration_seconds
FROM labels WHERE run_id = ? ORDER BY name`, runID)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	var labels []Label
	index := map[string]int{}
	for rows.Next() {
		var (
			label    Label
			relevant int
		)
		if err := rows.Scan(&label.Name, &relevant, &label.Prompt, &label.Status, &label.ErrorMessage, &label.DurationSeconds); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan label: %w", err)
		}
		label.Relevant = relevant != 0
		index[label.Name] = len(labels)
		labels = append(labels, label)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}

	ivRows, err := s.db.QueryContext(ctx,
		"SELECT label, start_time, end_time FROM intervals WHERE run_id = ? ORDER BY label, position", runID)
	if err != nil {
		return nil, fmt.Errorf("load intervals: %w", err)
	}
	for ivRows.Next() {
		var (
			name string
			iv   Interval
		)
		if err := ivRows.Scan(&name, &iv.Start, &iv.End); err != nil {
			ivRows.Close()
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		if i, ok := index[name]; ok {
			labels[i].Intervals = append(labels[i].Intervals, iv)
		}
	}
	ivRows.Close()
	if err := ivRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intervals: %w", err)
	}

	assetRows, err := s.db.QueryContext(ctx,
		"SELECT label, position, sample, path, duration_seconds FROM assets WHERE run_id = ? ORDER BY label, sample, position", runID)
	if err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}
	defer assetRows.Close()
	for assetRows.Next() {
		var (
			name  string
			asset Asset
		)
		if err := assetRows.Scan(&name, &asset.Position, &asset.Sample, &asset.Path, &asset.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		if i, ok := index[name]; ok {
			labels[i].Assets = append(labels[i].Assets, asset)
		}
	}
	if err := assetRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return labels, nil
}

// List returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	query := `
SELECT r.id, r.video_path, r.status, r.stage, r.output_path, r.created_at, r.updated_at,
       (SELECT COUNT(1) FROM labels l WHERE l.run_id = r.id)
FROM runs r ORDER BY r.created_at DESC, r.id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum        Summary
			status     string
			createdRaw string
			updatedRaw string
		)
		if err := rows.Scan(&sum.ID, &sum.VideoPath, &status, &sum.Stage, &sum.OutputPath, &createdRaw, &updatedRaw, &sum.Labels); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		sum.Status = Status(status)
		sum.CreatedAt = parseTime(createdRaw)
		sum.UpdatedAt = parseTime(updatedRaw)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Delete removes a run and its children.
func (s *Store) Delete(ctx context.Context, id string) error {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
