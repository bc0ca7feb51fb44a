package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// CmdRunner provides command execution. Interface for testing.
type CmdRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// GitRunner provides git command execution. Interface for testing.
type GitRunner interface {
	RunGit(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", redact(args), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// RunGit implements GitRunner using exec.CommandContext.
func (r *ExecRunner) RunGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// redact drops comment bodies from command lines quoted in errors.
func redact(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, "body=") {
			a = "body=<" + strconv.Itoa(len(a)-len("body=")) + " bytes>"
		}
		out[i] = a
	}
	return strings.Join(out, " ")
}

// Client provides GitHub operations through the gh CLI.
type Client struct {
	cmd CmdRunner
	git GitRunner
}

// NewClient creates a GitHub client. If cmd also implements GitRunner,
// it will be used for git operations (e.g., HeadSHA).
func NewClient(cmd CmdRunner) *Client {
	c := &Client{cmd: cmd}
	if git, ok := cmd.(GitRunner); ok {
		c.git = git
	}
	return c
}

// NewClientWithGit creates a GitHub client with a separate git runner.
func NewClientWithGit(cmd CmdRunner, git GitRunner) *Client {
	return &Client{cmd: cmd, git: git}
}

// User is the author of a comment. Type is "Bot" for app and Actions
// accounts and "User" for people.
type User struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

// IsBot reports whether the account is an app or Actions bot.
func (u User) IsBot() bool {
	return u.Type == "Bot"
}

// Comment is a pull-request conversation comment.
type Comment struct {
	ID      int64  `json:"id"`
	Body    string `json:"body"`
	User    User   `json:"user"`
	HTMLURL string `json:"html_url"`
}

// CommentAPI is the subset of the GitHub API the publisher needs.
type CommentAPI interface {
	ListComments(ctx context.Context, owner, repo string, pr int) ([]Comment, error)
	DeleteComment(ctx context.Context, owner, repo string, id int64) error
	CreateComment(ctx context.Context, owner, repo string, pr int, body string) (*Comment, error)
}

var _ CommentAPI = (*Client)(nil)

// ValidatePRNumber checks that a pull-request number is positive.
func ValidatePRNumber(n int) error {
	if n <= 0 {
		return fmt.Errorf("invalid pull request number %d: must be positive", n)
	}
	return nil
}

// ParseRepo splits "owner/name" as found in GITHUB_REPOSITORY.
func ParseRepo(s string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q: want owner/name", s)
	}
	return owner, repo, nil
}

// ListComments returns every comment on the pull request, following pagination.
func (c *Client) ListComments(ctx context.Context, owner, repo string, pr int) ([]Comment, error) {
	if err := ValidatePRNumber(pr); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("repos/%s/%s/issues/%d/comments", owner, repo, pr)
	out, err := c.cmd.Run(ctx, "api", path, "--paginate")
	if err != nil {
		return nil, fmt.Errorf("list comments on #%d: %w", pr, err)
	}

	// --paginate prints one JSON array per page back to back.
	var comments []Comment
	dec := json.NewDecoder(strings.NewReader(out))
	for {
		var page []Comment
		err := dec.Decode(&page)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse comments JSON: %w", err)
		}
		comments = append(comments, page...)
	}
	return comments, nil
}

// DeleteComment removes a comment by ID.
func (c *Client) DeleteComment(ctx context.Context, owner, repo string, id int64) error {
	path := fmt.Sprintf("repos/%s/%s/issues/comments/%d", owner, repo, id)
	if _, err := c.cmd.Run(ctx, "api", "-X", "DELETE", path); err != nil {
		return fmt.Errorf("delete comment %d: %w", id, err)
	}
	return nil
}

// CreateComment posts a new comment on the pull request.
func (c *Client) CreateComment(ctx context.Context, owner, repo string, pr int, body string) (*Comment, error) {
	if err := ValidatePRNumber(pr); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("repos/%s/%s/issues/%d/comments", owner, repo, pr)
	out, err := c.cmd.Run(ctx, "api", "-X", "POST", path, "-f", "body="+body)
	if err != nil {
		return nil, fmt.Errorf("create comment on #%d: %w", pr, err)
	}

	var comment Comment
	if err := json.Unmarshal([]byte(out), &comment); err != nil {
		return nil, fmt.Errorf("parse comment JSON: %w", err)
	}
	return &comment, nil
}

// HeadSHA returns the commit checked out in dir.
func (c *Client) HeadSHA(ctx context.Context, dir string) (string, error) {
	if c.git == nil {
		return "", fmt.Errorf("git runner not configured")
	}
	out, err := c.git.RunGit(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}
