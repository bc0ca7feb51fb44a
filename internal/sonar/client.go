// Package sonar reads analysis results from the SonarQube Web API.
package sonar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client is a read-only client for the SonarQube Web API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// Option configures the Client during construction.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient *http.Client
	logger     *zap.SugaredLogger
	timeout    time.Duration
}

// New creates a Client for the SonarQube instance at baseURL. The token is
// sent as a bearer token on every request.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("sonar: baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	cfg := &clientConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// Copy so the timeout never leaks into a client shared with other code.
	httpClient := &http.Client{}
	if cfg.httpClient != nil {
		c := *cfg.httpClient
		httpClient = &c
	}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(cfg *clientConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithTimeout bounds every request made by the client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		if d < 0 {
			return fmt.Errorf("sonar: negative timeout %s", d)
		}
		cfg.timeout = d
		return nil
	}
}

// Scope selects what an API call reports on: a project, optionally
// narrowed to a pull request or branch analysis.
type Scope struct {
	ProjectKey  string
	PullRequest string
	Branch      string
}

func (s Scope) apply(q url.Values) {
	if s.PullRequest != "" {
		q.Set("pullRequest", s.PullRequest)
	} else if s.Branch != "" {
		q.Set("branch", s.Branch)
	}
}

type errorResponse struct {
	Errors []struct {
		Msg string `json:"msg"`
	} `json:"errors"`
}

// getJSON issues a GET to path with query q and decodes the response into dst.
func (c *Client) getJSON(ctx context.Context, path string, q url.Values, operation string, dst any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", operation, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debugw("API request", "operation", operation, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: do request: %w", operation, err)
	}
	defer resp.Body.Close()

	c.logger.Debugw("API response", "operation", operation, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var er errorResponse
		if json.Unmarshal(body, &er) == nil && len(er.Errors) > 0 && er.Errors[0].Msg != "" {
			return newAPIError(operation, resp.StatusCode, er.Errors[0].Msg)
		}
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return newAPIError(operation, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}

type measure struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
	Period *struct {
		Value string `json:"value"`
	} `json:"period"`
	Periods []struct {
		Value string `json:"value"`
	} `json:"periods"`
}

// value returns the overall value, falling back to the new-code period
// value that new_* metrics carry instead.
func (m measure) value() string {
	if m.Value != "" {
		return m.Value
	}
	if m.Period != nil {
		return m.Period.Value
	}
	if len(m.Periods) > 0 {
		return m.Periods[0].Value
	}
	return ""
}

type measuresResponse struct {
	Component struct {
		Key      string    `json:"key"`
		Measures []measure `json:"measures"`
	} `json:"component"`
}

// Measures returns the requested metric values for the project. Metrics the
// server has no value for are absent from the map.
func (c *Client) Measures(ctx context.Context, scope Scope, keys []string) (map[string]string, error) {
	q := url.Values{}
	q.Set("component", scope.ProjectKey)
	q.Set("metricKeys", strings.Join(keys, ","))
	scope.apply(q)

	var resp measuresResponse
	if err := c.getJSON(ctx, "/api/measures/component", q, "get measures", &resp); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(resp.Component.Measures))
	for _, m := range resp.Component.Measures {
		if v := m.value(); v != "" {
			out[m.Metric] = v
		}
	}
	return out, nil
}

type projectStatusResponse struct {
	ProjectStatus struct {
		Status     string `json:"status"`
		Conditions []struct {
			Status         string `json:"status"`
			MetricKey      string `json:"metricKey"`
			Comparator     string `json:"comparator"`
			ErrorThreshold string `json:"errorThreshold"`
			ActualValue    string `json:"actualValue"`
		} `json:"conditions"`
	} `json:"projectStatus"`
}

// QualityGateStatus returns the project's quality-gate status.
func (c *Client) QualityGateStatus(ctx context.Context, scope Scope) (*QualityGate, error) {
	q := url.Values{}
	q.Set("projectKey", scope.ProjectKey)
	scope.apply(q)

	var resp projectStatusResponse
	if err := c.getJSON(ctx, "/api/qualitygates/project_status", q, "get quality gate", &resp); err != nil {
		return nil, err
	}

	qg := &QualityGate{Status: resp.ProjectStatus.Status}
	for _, cond := range resp.ProjectStatus.Conditions {
		qg.Conditions = append(qg.Conditions, Condition{
			Metric:     cond.MetricKey,
			Comparator: cond.Comparator,
			Actual:     cond.ActualValue,
			Threshold:  cond.ErrorThreshold,
			Status:     cond.Status,
		})
	}
	return qg, nil
}

type issuesResponse struct {
	Total  int `json:"total"`
	Paging struct {
		Total int `json:"total"`
	} `json:"paging"`
	Issues []struct {
		Rule      string `json:"rule"`
		Severity  string `json:"severity"`
		Component string `json:"component"`
		Line      int    `json:"line"`
		Message   string `json:"message"`
	} `json:"issues"`
}

// Issues returns up to limit unresolved blocker, critical and major issues,
// most severe first, plus the total number of matching issues.
func (c *Client) Issues(ctx context.Context, scope Scope, limit int) ([]Issue, int, error) {
	q := url.Values{}
	q.Set("componentKeys", scope.ProjectKey)
	q.Set("resolved", "false")
	q.Set("severities", "BLOCKER,CRITICAL,MAJOR")
	q.Set("s", "SEVERITY")
	q.Set("asc", "false")
	q.Set("ps", strconv.Itoa(pageSize(limit)))
	scope.apply(q)

	var resp issuesResponse
	if err := c.getJSON(ctx, "/api/issues/search", q, "search issues", &resp); err != nil {
		return nil, 0, err
	}

	var issues []Issue
	for _, is := range resp.Issues {
		issues = append(issues, Issue{
			Severity: is.Severity,
			Message:  is.Message,
			File:     componentPath(is.Component),
			Line:     is.Line,
			Rule:     is.Rule,
		})
	}
	total := resp.Total
	if total == 0 {
		total = resp.Paging.Total
	}
	if total < len(issues) {
		total = len(issues)
	}
	return truncate(issues, limit), total, nil
}

type hotspotsResponse struct {
	Paging struct {
		Total int `json:"total"`
	} `json:"paging"`
	Hotspots []struct {
		Component                string `json:"component"`
		VulnerabilityProbability string `json:"vulnerabilityProbability"`
		Line                     int    `json:"line"`
		Message                  string `json:"message"`
	} `json:"hotspots"`
}

// Hotspots returns up to limit security hotspots still to review, plus the
// total number awaiting review.
func (c *Client) Hotspots(ctx context.Context, scope Scope, limit int) ([]Hotspot, int, error) {
	q := url.Values{}
	q.Set("projectKey", scope.ProjectKey)
	q.Set("status", "TO_REVIEW")
	q.Set("ps", strconv.Itoa(pageSize(limit)))
	scope.apply(q)

	var resp hotspotsResponse
	if err := c.getJSON(ctx, "/api/hotspots/search", q, "search hotspots", &resp); err != nil {
		return nil, 0, err
	}

	var hotspots []Hotspot
	for _, h := range resp.Hotspots {
		hotspots = append(hotspots, Hotspot{
			Probability: h.VulnerabilityProbability,
			Message:     h.Message,
			File:        componentPath(h.Component),
			Line:        h.Line,
		})
	}
	total := resp.Paging.Total
	if total < len(hotspots) {
		total = len(hotspots)
	}
	return truncate(hotspots, limit), total, nil
}

type componentTreeResponse struct {
	Components []struct {
		Key      string    `json:"key"`
		Path     string    `json:"path"`
		Measures []measure `json:"measures"`
	} `json:"components"`
}

// LowCoverage returns up to limit files with the lowest line coverage.
func (c *Client) LowCoverage(ctx context.Context, scope Scope, limit int) ([]FileCoverage, error) {
	q := url.Values{}
	q.Set("component", scope.ProjectKey)
	q.Set("metricKeys", "coverage,uncovered_lines")
	q.Set("qualifiers", "FIL")
	q.Set("s", "metric")
	q.Set("metricSort", "coverage")
	q.Set("asc", "true")
	q.Set("metricSortFilter", "withMeasuresOnly")
	q.Set("ps", strconv.Itoa(pageSize(limit)))
	scope.apply(q)

	var resp componentTreeResponse
	if err := c.getJSON(ctx, "/api/measures/component_tree", q, "get coverage tree", &resp); err != nil {
		return nil, err
	}

	var files []FileCoverage
	for _, comp := range resp.Components {
		fc := FileCoverage{Path: comp.Path}
		if fc.Path == "" {
			fc.Path = componentPath(comp.Key)
		}
		for _, m := range comp.Measures {
			switch m.Metric {
			case "coverage":
				fc.Coverage = m.value()
			case "uncovered_lines":
				fc.UncoveredLines = m.value()
			}
		}
		files = append(files, fc)
	}
	return truncate(files, limit), nil
}

// componentPath strips the "project:" prefix from a component key.
func componentPath(key string) string {
	if i := strings.Index(key, ":"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// pageSize clamps a display limit to what the search endpoints accept.
func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return 1
	case limit > 500:
		return 500
	}
	return limit
}

func truncate[T any](items []T, limit int) []T {
	if limit >= 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
