package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/repository"
)

type mockRepo struct {
	createFn      func(ctx context.Context, n *model.Notification) error
	listFn        func(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)
	markReadFn    func(ctx context.Context, id, userID string) error
	markAllReadFn func(ctx context.Context, userID string) (int64, error)
}

func (m *mockRepo) Create(ctx context.Context, n *model.Notification) error {
	return m.createFn(ctx, n)
}
func (m *mockRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	return m.listFn(ctx, userID, unreadOnly, limit)
}
func (m *mockRepo) MarkRead(ctx context.Context, id, userID string) error {
	return m.markReadFn(ctx, id, userID)
}
func (m *mockRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return m.markAllReadFn(ctx, userID)
}

func TestService_Notify_FillsIDAndTimestamp(t *testing.T) {
	var created *model.Notification
	svc := NewService(&mockRepo{
		createFn: func(_ context.Context, n *model.Notification) error {
			created = n
			return nil
		},
	})

	svc.Notify(context.Background(), model.Notification{
		UserID: "owner-1", Type: model.NotificationApplication, Title: "新しい参加申請", ProjectID: "p-1",
	})

	if created == nil {
		t.Fatal("expected notification to be created")
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Errorf("ID/CreatedAt not set: %+v", created)
	}
	if created.Read {
		t.Error("new notification must be unread")
	}
}

func TestService_Notify_SwallowsErrors(t *testing.T) {
	svc := NewService(&mockRepo{
		createFn: func(_ context.Context, _ *model.Notification) error {
			return errors.New("db down")
		},
	})

	// パニックせず戻ること
	svc.Notify(context.Background(), model.Notification{UserID: "u", Type: model.NotificationTodoCompleted})
}

func TestService_List_ClampsLimit(t *testing.T) {
	var gotLimit int
	svc := NewService(&mockRepo{
		listFn: func(_ context.Context, _ string, _ bool, limit int) ([]model.Notification, error) {
			gotLimit = limit
			return nil, nil
		},
	})

	for in, want := range map[int]int{0: 50, 10: 10, 1000: 200} {
		if _, err := svc.List(context.Background(), "u", false, in); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotLimit != want {
			t.Errorf("limit(%d) = %d, want %d", in, gotLimit, want)
		}
	}
}

func TestService_MarkRead_NotFound(t *testing.T) {
	svc := NewService(&mockRepo{
		markReadFn: func(_ context.Context, _, _ string) error {
			return repository.ErrNotFound
		},
	})

	err := svc.MarkRead(context.Background(), "u", "n-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotificationNotFound {
		t.Errorf("err = %v, want NOTIFICATION_NOT_FOUND", err)
	}
}

func TestService_MarkAllRead(t *testing.T) {
	svc := NewService(&mockRepo{
		markAllReadFn: func(_ context.Context, _ string) (int64, error) {
			return 3, nil
		},
	})

	n, err := svc.MarkAllRead(context.Background(), "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("updated = %d, want 3", n)
	}
}
