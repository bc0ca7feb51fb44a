package sonar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Credentials locate and authenticate against a SonarQube server.
type Credentials struct {
	Token   string
	HostURL string
}

// Limits caps how many items of each list are kept for display.
type Limits struct {
	Issues      int
	Hotspots    int
	LowCoverage int
}

// DefaultLimits are the display caps used when none are configured.
var DefaultLimits = Limits{Issues: 10, Hotspots: 5, LowCoverage: 5}

// Request describes one fetch.
type Request struct {
	ProjectKey  string
	PullRequest string
	Branch      string
	Hint        Hint
}

// Fetcher builds a Snapshot from the five analysis endpoints.
type Fetcher struct {
	creds   Credentials
	limits  Limits
	timeout time.Duration
	opts    []Option
	logger  *zap.SugaredLogger
}

// NewFetcher creates a Fetcher. timeout bounds each request individually;
// extra client options (e.g. WithHTTPClient in tests) are passed through.
func NewFetcher(creds Credentials, limits Limits, timeout time.Duration, logger *zap.SugaredLogger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Fetcher{
		creds:   creds,
		limits:  limits,
		timeout: timeout,
		opts:    opts,
		logger:  logger,
	}
}

// Fetch returns the analysis snapshot for req. It never fails: when the
// analysis did not run or credentials are missing the snapshot is empty
// with Skipped set, and a failing endpoint only empties its own section
// and records the reason in Errors.
func (f *Fetcher) Fetch(ctx context.Context, req Request) *Snapshot {
	snap := &Snapshot{ProjectKey: req.ProjectKey}

	switch {
	case !req.Hint.Ran():
		snap.Skipped = "analysis did not run"
	case f.creds.Token == "":
		snap.Skipped = "SONAR_TOKEN not set"
	case f.creds.HostURL == "":
		snap.Skipped = "SONAR_HOST_URL not set"
	case req.ProjectKey == "":
		snap.Skipped = "project key not set"
	}
	if snap.Skipped != "" {
		f.logger.Infow("skipping analysis fetch", "reason", snap.Skipped)
		return snap
	}

	opts := append([]Option{WithLogger(f.logger), WithTimeout(f.timeout)}, f.opts...)
	client, err := New(f.creds.HostURL, f.creds.Token, opts...)
	if err != nil {
		snap.Errors = make(map[Section]string, len(Sections))
		for _, sec := range Sections {
			snap.Errors[sec] = err.Error()
		}
		return snap
	}

	scope := Scope{ProjectKey: req.ProjectKey, PullRequest: req.PullRequest, Branch: req.Branch}
	errs := make([]error, len(Sections))

	// Tasks record their own error and always return nil so one failing
	// endpoint never cancels its siblings.
	var g errgroup.Group
	g.Go(func() error {
		metrics, err := client.Measures(ctx, scope, MetricKeys)
		if err != nil {
			errs[0] = err
			return nil
		}
		for k, v := range metrics {
			if isRating(k) {
				metrics[k] = Rating(v)
			}
		}
		snap.Metrics = metrics
		return nil
	})
	g.Go(func() error {
		qg, err := client.QualityGateStatus(ctx, scope)
		if err != nil {
			errs[1] = err
			return nil
		}
		snap.QualityGate = qg
		return nil
	})
	g.Go(func() error {
		issues, total, err := client.Issues(ctx, scope, f.limits.Issues)
		if err != nil {
			errs[2] = err
			return nil
		}
		snap.Issues, snap.IssuesTotal = issues, total
		return nil
	})
	g.Go(func() error {
		hotspots, total, err := client.Hotspots(ctx, scope, f.limits.Hotspots)
		if err != nil {
			errs[3] = err
			return nil
		}
		snap.Hotspots, snap.HotspotsTotal = hotspots, total
		return nil
	})
	g.Go(func() error {
		files, err := client.LowCoverage(ctx, scope, f.limits.LowCoverage)
		if err != nil {
			errs[4] = err
			return nil
		}
		snap.LowCoverage = files
		return nil
	})
	_ = g.Wait() // errors captured per section

	rejected := false
	for i, err := range errs {
		if err == nil {
			continue
		}
		if snap.Errors == nil {
			snap.Errors = make(map[Section]string)
		}
		snap.Errors[Sections[i]] = sectionError(err, req.ProjectKey)
		rejected = rejected || IsUnauthorized(err) || IsForbidden(err)
		f.logger.Warnw("analysis section unavailable", "section", Sections[i], "status", statusOf(err), "error", err)
	}
	if rejected {
		f.logger.Errorw("SonarQube rejected the token; check SONAR_TOKEN and its Browse permission on the project",
			"host", f.creds.HostURL, "project", req.ProjectKey)
	}
	return snap
}

// sectionError phrases a fetch failure for the report, naming the likely
// cause for auth and lookup failures.
func sectionError(err error, projectKey string) string {
	switch {
	case IsUnauthorized(err):
		return fmt.Sprintf("SONAR_TOKEN was rejected (%v)", err)
	case IsForbidden(err):
		return fmt.Sprintf("SONAR_TOKEN cannot browse project %s (%v)", projectKey, err)
	case IsNotFound(err):
		return fmt.Sprintf("project %s or its analysis was not found (%v)", projectKey, err)
	}
	return err.Error()
}

// statusOf returns the HTTP status of an API error, or 0.
func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode()
	}
	return 0
}
