package github

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Target identifies the pull request a report is published to.
type Target struct {
	Owner   string
	Repo    string
	PR      int
	HeadSHA string
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s#%d", t.Owner, t.Repo, t.PR)
}

// Publisher keeps exactly one report comment on a pull request.
type Publisher struct {
	api    CommentAPI
	marker string
	logger *zap.SugaredLogger
}

// NewPublisher creates a Publisher. Bot comments that open with marker are
// treated as earlier reports and replaced.
func NewPublisher(api CommentAPI, marker string, logger *zap.SugaredLogger) *Publisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Publisher{api: api, marker: marker, logger: logger}
}

// isReport reports whether c is a report posted earlier. People quoting or
// pasting a report are never matched.
func (p *Publisher) isReport(c Comment) bool {
	return c.User.IsBot() && strings.HasPrefix(strings.TrimSpace(c.Body), p.marker)
}

// Publish deletes every earlier report comment on the pull request and
// posts body as a new one.
//
// Cancellation is honoured up to the first mutation. Once a delete has been
// issued the remaining deletes and the create run to completion so the pull
// request is not left without a report.
func (p *Publisher) Publish(ctx context.Context, body string, t Target) (*Comment, error) {
	if t.Owner == "" || t.Repo == "" {
		return nil, fmt.Errorf("publish: repository not set")
	}
	if err := ValidatePRNumber(t.PR); err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	if p.marker == "" || !strings.HasPrefix(strings.TrimSpace(body), p.marker) {
		return nil, fmt.Errorf("publish: report body does not start with marker %q", p.marker)
	}

	existing, err := p.api.ListComments(ctx, t.Owner, t.Repo, t.PR)
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	ctx = context.WithoutCancel(ctx)

	for _, c := range existing {
		if !p.isReport(c) {
			continue
		}
		if err := p.api.DeleteComment(ctx, t.Owner, t.Repo, c.ID); err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
		p.logger.Debugw("deleted previous report", "pr", t.String(), "comment", c.ID)
	}

	created, err := p.api.CreateComment(ctx, t.Owner, t.Repo, t.PR, body)
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	p.logger.Infow("published report", "pr", t.String(), "comment", created.ID, "url", created.HTMLURL)
	return created, nil
}
