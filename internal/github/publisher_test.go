package github

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const marker = "## 🔍 Code Quality Report"

var (
	actionsBot = User{Login: "github-actions[bot]", Type: "Bot"}
	alice      = User{Login: "alice", Type: "User"}
)

// botReport is a report comment posted by an earlier run.
func botReport(id int64, body string) Comment {
	return Comment{ID: id, Body: body, User: actionsBot}
}

// fakeAPI is an in-memory pull request conversation.
type fakeAPI struct {
	comments  []Comment
	nextID    int64
	deleted   []int64
	listErr   error
	deleteErr error
	createErr error
	// cancel is called after the first delete, if set.
	cancel context.CancelFunc
}

func (f *fakeAPI) ListComments(ctx context.Context, owner, repo string, pr int) ([]Comment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Comment(nil), f.comments...), nil
}

func (f *fakeAPI) DeleteComment(ctx context.Context, owner, repo string, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	kept := f.comments[:0]
	for _, c := range f.comments {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	f.comments = kept
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

func (f *fakeAPI) CreateComment(ctx context.Context, owner, repo string, pr int, body string) (*Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	c := Comment{ID: 1000 + f.nextID, Body: body, User: actionsBot}
	f.comments = append(f.comments, c)
	return &c, nil
}

func (f *fakeAPI) reports() int {
	n := 0
	for _, c := range f.comments {
		if c.User.IsBot() && strings.HasPrefix(c.Body, marker) {
			n++
		}
	}
	return n
}

var target = Target{Owner: "acme", Repo: "web", PR: 7, HeadSHA: "abc123"}

func TestPublish_ReplacesPreviousReports(t *testing.T) {
	api := &fakeAPI{comments: []Comment{
		{ID: 1, Body: "LGTM", User: alice},
		botReport(2, marker+"\nold"),
		botReport(3, marker+"\nolder"),
	}}
	p := NewPublisher(api, marker, nil)

	c, err := p.Publish(context.Background(), marker+"\nnew", target)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if api.reports() != 1 {
		t.Errorf("expected exactly one report, got %d", api.reports())
	}
	if len(api.deleted) != 2 {
		t.Errorf("expected 2 deletions, got %v", api.deleted)
	}
	if len(api.comments) != 2 || api.comments[0].ID != 1 {
		t.Error("unrelated comments must be left alone")
	}
	if !strings.HasSuffix(c.Body, "new") {
		t.Errorf("unexpected body %q", c.Body)
	}
}

func TestPublish_Idempotent(t *testing.T) {
	api := &fakeAPI{}
	p := NewPublisher(api, marker, nil)

	for i := 0; i < 3; i++ {
		if _, err := p.Publish(context.Background(), marker+"\nbody", target); err != nil {
			t.Fatalf("Publish #%d: %v", i, err)
		}
		if api.reports() != 1 {
			t.Fatalf("after publish #%d: %d reports", i, api.reports())
		}
	}
}

func TestPublish_CancelledBeforeMutation(t *testing.T) {
	api := &fakeAPI{comments: []Comment{botReport(2, marker)}}
	p := NewPublisher(api, marker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Publish(ctx, marker+"\nnew", target); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(api.deleted) != 0 || len(api.comments) != 1 {
		t.Error("nothing should be mutated after cancellation")
	}
}

func TestPublish_CancelAfterFirstDeleteCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := &fakeAPI{
		comments: []Comment{botReport(2, marker), botReport(3, marker)},
		cancel:   cancel,
	}
	p := NewPublisher(api, marker, nil)

	if _, err := p.Publish(ctx, marker+"\nnew", target); err != nil {
		t.Fatalf("Publish should complete once mutation started: %v", err)
	}
	if api.reports() != 1 || len(api.deleted) != 2 {
		t.Errorf("reports=%d deleted=%v", api.reports(), api.deleted)
	}
}

func TestPublish_Errors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		api  *fakeAPI
	}{
		{"list", &fakeAPI{listErr: boom}},
		{"delete", &fakeAPI{comments: []Comment{botReport(2, marker)}, deleteErr: boom}},
		{"create", &fakeAPI{createErr: boom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPublisher(tt.api, marker, nil)
			if _, err := p.Publish(context.Background(), marker, target); !errors.Is(err, boom) {
				t.Errorf("expected wrapped boom, got %v", err)
			}
		})
	}
}

func TestPublish_Validation(t *testing.T) {
	p := NewPublisher(&fakeAPI{}, marker, nil)
	if _, err := p.Publish(context.Background(), marker, Target{PR: 7}); err == nil {
		t.Error("expected error without repository")
	}
	if _, err := p.Publish(context.Background(), marker, Target{Owner: "a", Repo: "b"}); err == nil {
		t.Error("expected error without PR number")
	}
	if _, err := p.Publish(context.Background(), "no marker here", target); err == nil {
		t.Error("expected error when body lacks the marker")
	}
}

func TestPublish_WithGhClient(t *testing.T) {
	mock := &mockCmd{results: []mockResult{
		{output: `[{"id":10,"body":"> ` + marker + `","user":{"login":"alice","type":"User"}},{"id":11,"body":"` + marker + `","user":{"login":"github-actions[bot]","type":"Bot"}}]`},
		{output: ""},
		{output: `{"id":12,"body":"x"}`},
	}}
	p := NewPublisher(NewClient(mock), marker, nil)

	c, err := p.Publish(context.Background(), marker+"\nnew", target)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if c.ID != 12 || len(mock.calls) != 3 {
		t.Fatalf("unexpected result id=%d calls=%d", c.ID, len(mock.calls))
	}
	if mock.calls[1][2] != "DELETE" || mock.calls[2][2] != "POST" {
		t.Errorf("expected delete then create, got %v", mock.calls)
	}
	if !strings.HasSuffix(mock.calls[1][3], "/comments/11") {
		t.Errorf("expected only the bot report to be deleted, got %v", mock.calls[1])
	}
}

func TestPublish_KeepsCommentsByPeople(t *testing.T) {
	api := &fakeAPI{comments: []Comment{
		{ID: 1, Body: "> " + marker + "\n> Build failed\n\nIs this flaky?", User: alice},
		{ID: 2, Body: marker + "\npasted by hand", User: alice},
		{ID: 3, Body: "see the " + marker + " below", User: actionsBot},
		botReport(4, marker+"\nold"),
	}}
	p := NewPublisher(api, marker, nil)

	if _, err := p.Publish(context.Background(), marker+"\nnew", target); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(api.deleted) != 1 || api.deleted[0] != 4 {
		t.Errorf("expected only comment 4 deleted, got %v", api.deleted)
	}
	for _, id := range []int64{1, 2, 3} {
		found := false
		for _, c := range api.comments {
			found = found || c.ID == id
		}
		if !found {
			t.Errorf("comment %d should have been kept", id)
		}
	}
}
