package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lucasnoah/qualitygate/internal/gate"
	"github.com/lucasnoah/qualitygate/internal/sonar"
	"github.com/lucasnoah/qualitygate/internal/stage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// fixedClock returns a clock that advances one second per call.
func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	d := testDB(t)
	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	for _, table := range []string{"schema_version", "gate_runs", "stage_results"} {
		var name string
		err := d.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
	var versions int
	d.conn.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&versions)
	if versions != 1 {
		t.Errorf("expected one schema version row, got %d", versions)
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestDialectFor(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@db/qg":   "postgres",
		"postgresql://db/qg":     "postgres",
		"file:history.db":        "sqlite",
		"/var/lib/qg/history.db": "sqlite",
	}
	for dsn, want := range tests {
		if got := dialectFor(dsn).name; got != want {
			t.Errorf("dialectFor(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestRebind(t *testing.T) {
	q := "INSERT INTO t (a, b) VALUES (?, ?)"
	if got := pg.rebind(q); got != "INSERT INTO t (a, b) VALUES ($1, $2)" {
		t.Errorf("postgres rebind = %q", got)
	}
	if got := sqlite.rebind(q); got != q {
		t.Errorf("sqlite rebind should be a no-op, got %q", got)
	}
}

func TestRecordAndGetRun(t *testing.T) {
	d := testDB(t)
	d.now = fixedClock()
	ctx := context.Background()

	results := stage.NewSet(
		stage.Result{Name: stage.Lint, Outcome: stage.Success},
		stage.Result{Name: stage.TypeCheck, Outcome: stage.Success},
		stage.Result{Name: stage.Build, Outcome: stage.Failure},
	)
	dec := gate.Evaluate(results, gate.DefaultPolicy(), gate.NewFlags("skip_sonar"))
	snap := &sonar.Snapshot{QualityGate: &sonar.QualityGate{Status: "ERROR"}}

	id, err := d.RecordRun(ctx, NewRun("my-app", 42, "abc123", dec, snap))
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	got, err := d.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Passed || got.PR != 42 || got.Commit != "abc123" || got.QualityGate != "ERROR" {
		t.Errorf("unexpected run %+v", got)
	}
	if diff := cmp.Diff(dec.Reasons, got.Reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"skip_sonar"}, got.Flags); diff != "" {
		t.Errorf("flags mismatch (-want +got):\n%s", diff)
	}
	if len(got.Stages) != len(dec.Verdicts) {
		t.Fatalf("expected %d stage rows, got %d", len(dec.Verdicts), len(got.Stages))
	}
	for _, s := range got.Stages {
		if s.Stage == string(stage.Docker) && (s.Expected != string(stage.Skipped) || s.Reported != string(stage.NotStarted)) {
			t.Errorf("docker row = %+v", s)
		}
	}
	if !got.CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}
}

func TestGetRun_Missing(t *testing.T) {
	d := testDB(t)
	r, err := d.GetRun(context.Background(), 999)
	if err != nil || r != nil {
		t.Errorf("expected nil, nil; got %v, %v", r, err)
	}
}

func TestListRuns_NewestFirstAndFiltered(t *testing.T) {
	d := testDB(t)
	d.now = fixedClock()
	ctx := context.Background()

	pass := gate.Evaluate(stage.NewSet(
		stage.Result{Name: stage.Lint, Outcome: stage.Success},
		stage.Result{Name: stage.TypeCheck, Outcome: stage.Success},
		stage.Result{Name: stage.Build, Outcome: stage.Success},
	), gate.DefaultPolicy(), nil)

	for _, p := range []struct {
		project string
		pr      int
	}{{"a", 1}, {"b", 2}, {"a", 3}, {"a", 4}} {
		if _, err := d.RecordRun(ctx, NewRun(p.project, p.pr, "", pass, nil)); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	runs, err := d.ListRuns(ctx, "a", 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].PR != 4 || runs[1].PR != 3 {
		t.Errorf("expected PRs [4 3], got %+v", runs)
	}
	if !runs[0].Passed || runs[0].Flags != nil {
		t.Errorf("unexpected run %+v", runs[0])
	}

	all, err := d.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns all: %v", err)
	}
	if len(all) != 4 || all[len(all)-1].Project != "a" || all[len(all)-1].PR != 1 {
		t.Errorf("unexpected full listing %+v", all)
	}
}

func TestGetRun_KeepsVerdictOrder(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	results := stage.NewSet(
		stage.Result{Name: stage.Lint, Outcome: stage.Success},
		stage.Result{Name: stage.TypeCheck, Outcome: stage.Success},
		stage.Result{Name: stage.Build, Outcome: stage.Success},
		stage.Result{Name: stage.Security, Outcome: stage.Failure},
		stage.Result{Name: stage.Docker, Outcome: stage.Success},
	)
	dec := gate.Evaluate(results, gate.DefaultPolicy(), nil)
	id, err := d.RecordRun(ctx, NewRun("my-app", 0, "abc123", dec, nil))
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	got, err := d.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	var want, order []string
	for _, v := range dec.Verdicts {
		want = append(want, string(v.Stage))
	}
	for _, s := range got.Stages {
		order = append(order, s.Stage)
	}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("stage order mismatch (-want +got):\n%s", diff)
	}
	if order[0] != string(stage.Lint) {
		t.Errorf("first stage = %q, want lint", order[0])
	}
}
