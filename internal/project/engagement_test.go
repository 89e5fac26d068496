package project

import (
	"context"
	"strings"
	"testing"

	"github.com/lib/pq"

	"github.com/hitoshi/connectin/internal/model"
)

func TestVote_Toggle(t *testing.T) {
	env := newTestEnv()
	env.store.addProject("p-1", "owner-1")
	ctx := context.Background()

	steps := []struct {
		isUpvote    bool
		wantMessage string
		wantCount   int
	}{
		{true, VoteAdded, 1},
		{true, VoteRemoved, 0},
		{false, VoteAdded, -1},
		{true, VoteChanged, 1},
		{false, VoteChanged, -1},
		{false, VoteRemoved, 0},
	}
	for i, st := range steps {
		got, err := env.svc.Vote(ctx, "user-1", "p-1", st.isUpvote)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got.Message != st.wantMessage || got.VoteCount != st.wantCount {
			t.Errorf("step %d: got {%q %d}, want {%q %d}", i, got.Message, got.VoteCount, st.wantMessage, st.wantCount)
		}
	}
}

func TestVote_ProjectNotFound(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.Vote(context.Background(), "user-1", "missing", true)
	assertAPIErrorCode(t, err, model.ErrCodeProjectNotFound)
}

func TestVote_ConcurrentFirstVote(t *testing.T) {
	env := newTestEnv()
	env.store.addProject("p-1", "owner-1")
	env.store.createVoteErr = &pq.Error{Code: "23505"}

	_, err := env.svc.Vote(context.Background(), "user-1", "p-1", true)
	assertAPIErrorCode(t, err, model.ErrCodeVoteConflict)
}

func TestVoteStatus(t *testing.T) {
	env := newTestEnv()
	env.store.addProject("p-1", "owner-1")
	ctx := context.Background()

	status, err := env.svc.VoteStatus(ctx, "user-1", "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.HasVoted || status.IsUpvote != nil {
		t.Errorf("status = %+v, want no vote", status)
	}

	if _, err := env.svc.Vote(ctx, "user-1", "p-1", false); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	status, _ = env.svc.VoteStatus(ctx, "user-1", "p-1")
	if !status.HasVoted || status.IsUpvote == nil || *status.IsUpvote {
		t.Errorf("status = %+v, want downvote", status)
	}
}

func TestAddComment(t *testing.T) {
	env := newTestEnv()
	env.store.addProject("p-1", "owner-1")
	ctx := context.Background()

	c, err := env.svc.AddComment(ctx, "user-1", "p-1", "  参加したいです  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Content != "参加したいです" {
		t.Errorf("Content = %q", c.Content)
	}
	if c.Author == nil || c.Author.Username != "alice" {
		t.Errorf("Author = %+v", c.Author)
	}

	tests := []struct {
		name     string
		project  string
		content  string
		wantCode string
	}{
		{"プロジェクトなし", "missing", "hi", model.ErrCodeProjectNotFound},
		{"空", "p-1", "   ", model.ErrCodeValidationFailed},
		{"長すぎる", "p-1", strings.Repeat("a", 2001), model.ErrCodeValidationFailed},
		{"サニタイズ後に空", "p-1", "<script>x</script>", model.ErrCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.AddComment(ctx, "user-1", tt.project, tt.content)
			assertAPIErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestDeleteComment_AuthorOrOwner(t *testing.T) {
	env := newTestEnv()
	env.store.addProject("p-1", "owner-1")
	env.store.addProject("p-2", "owner-1")
	ctx := context.Background()

	c1, _ := env.svc.AddComment(ctx, "user-1", "p-1", "first")
	c2, _ := env.svc.AddComment(ctx, "user-1", "p-1", "second")

	assertAPIErrorCode(t, env.svc.DeleteComment(ctx, "stranger", "p-1", c1.ID), model.ErrCodeForbidden)
	assertAPIErrorCode(t, env.svc.DeleteComment(ctx, "user-1", "p-2", c1.ID), model.ErrCodeCommentNotFound)

	if err := env.svc.DeleteComment(ctx, "user-1", "p-1", c1.ID); err != nil {
		t.Errorf("author delete: %v", err)
	}
	if err := env.svc.DeleteComment(ctx, "owner-1", "p-1", c2.ID); err != nil {
		t.Errorf("owner delete: %v", err)
	}
	assertAPIErrorCode(t, env.svc.DeleteComment(ctx, "owner-1", "p-1", c2.ID), model.ErrCodeCommentNotFound)
}
