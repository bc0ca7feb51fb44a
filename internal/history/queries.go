package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnoah/qualitygate/internal/gate"
	"github.com/lucasnoah/qualitygate/internal/sonar"
)

// Run is one recorded gate evaluation.
type Run struct {
	ID          int64
	Project     string
	PR          int
	Commit      string
	Passed      bool
	Reasons     []string
	Flags       []string
	QualityGate string
	CreatedAt   time.Time
	Stages      []StageRow
}

// StageRow is one stage's verdict within a Run.
type StageRow struct {
	Stage    string
	Reported string
	Expected string
	Core     bool
	Passed   bool
	Reason   string
}

// NewRun builds a Run from a decision and, optionally, the analysis snapshot.
func NewRun(project string, pr int, commit string, d *gate.Decision, snap *sonar.Snapshot) *Run {
	r := &Run{
		Project: project,
		PR:      pr,
		Commit:  commit,
		Passed:  d.Passed,
		Reasons: d.Reasons,
		Flags:   d.Flags,
	}
	if snap != nil && snap.QualityGate != nil {
		r.QualityGate = snap.QualityGate.Status
	}
	for _, v := range d.Verdicts {
		r.Stages = append(r.Stages, StageRow{
			Stage:    string(v.Stage),
			Reported: string(v.Reported),
			Expected: string(v.Outcome),
			Core:     v.Core,
			Passed:   v.Passed,
			Reason:   v.Reason,
		})
	}
	return r
}

// RecordRun stores r and its stage rows in one transaction and returns the
// new run ID. CreatedAt is set to the current time.
func (d *DB) RecordRun(ctx context.Context, r *Run) (int64, error) {
	reasons, err := json.Marshal(r.Reasons)
	if err != nil {
		return 0, fmt.Errorf("marshal reasons: %w", err)
	}
	r.CreatedAt = d.now().UTC()

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, d.dialect.rebind(
		`INSERT INTO gate_runs (project, pr, commit_sha, passed, reasons, flags, quality_gate, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		r.Project, r.PR, r.Commit, r.Passed, string(reasons), strings.Join(r.Flags, ","), r.QualityGate, formatTime(r.CreatedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert gate run: %w", err)
	}

	stmt := d.dialect.rebind(`INSERT INTO stage_results (run_id, position, stage, reported, expected, core, passed, reason) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	for i, s := range r.Stages {
		if _, err := tx.ExecContext(ctx, stmt, id, i, s.Stage, s.Reported, s.Expected, s.Core, s.Passed, s.Reason); err != nil {
			return 0, fmt.Errorf("insert stage result %s: %w", s.Stage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit gate run: %w", err)
	}
	r.ID = id
	return id, nil
}

// ListRuns returns up to limit runs, newest first. An empty project lists
// every project. Stage rows are not loaded; use GetRun for those.
func (d *DB) ListRuns(ctx context.Context, project string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, project, pr, commit_sha, passed, reasons, flags, quality_gate, created_at FROM gate_runs`
	var args []any
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.QueryContext(ctx, d.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun returns a run with its stage rows, or nil if it does not exist.
func (d *DB) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := d.conn.QueryRowContext(ctx, d.dialect.rebind(
		`SELECT id, project, pr, commit_sha, passed, reasons, flags, quality_gate, created_at FROM gate_runs WHERE id = ?`), id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}

	rows, err := d.conn.QueryContext(ctx, d.dialect.rebind(
		`SELECT stage, reported, expected, core, passed, reason FROM stage_results WHERE run_id = ? ORDER BY position`), id)
	if err != nil {
		return nil, fmt.Errorf("get stage results: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s StageRow
		if err := rows.Scan(&s.Stage, &s.Reported, &s.Expected, &s.Core, &s.Passed, &s.Reason); err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}
		r.Stages = append(r.Stages, s)
	}
	return r, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var reasons, flags, created string
	if err := s.Scan(&r.ID, &r.Project, &r.PR, &r.Commit, &r.Passed, &reasons, &flags, &r.QualityGate, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reasons), &r.Reasons); err != nil {
		return nil, fmt.Errorf("parse reasons: %w", err)
	}
	if flags != "" {
		r.Flags = strings.Split(flags, ",")
	}
	r.CreatedAt = parseTime(created)
	return &r, nil
}
