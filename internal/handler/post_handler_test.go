package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/post"
)

// mockPostService はPostServiceInterfaceのモック実装。
type mockPostService struct {
	createFn     func(ctx context.Context, userID, content string, tagIDs []string) (*model.PostDetail, error)
	listFn       func(ctx context.Context, viewerID string, filter model.PostFilter) ([]model.PostDetail, error)
	getFn        func(ctx context.Context, viewerID, postID string) (*model.PostDetail, error)
	deleteFn     func(ctx context.Context, userID, postID string) error
	toggleLikeFn func(ctx context.Context, userID, postID string) (*post.LikeResult, error)
}

func (m *mockPostService) Create(ctx context.Context, userID, content string, tagIDs []string) (*model.PostDetail, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, content, tagIDs)
	}
	return &model.PostDetail{}, nil
}

func (m *mockPostService) List(ctx context.Context, viewerID string, filter model.PostFilter) ([]model.PostDetail, error) {
	if m.listFn != nil {
		return m.listFn(ctx, viewerID, filter)
	}
	return nil, nil
}

func (m *mockPostService) Get(ctx context.Context, viewerID, postID string) (*model.PostDetail, error) {
	if m.getFn != nil {
		return m.getFn(ctx, viewerID, postID)
	}
	return nil, model.NewPostNotFoundError(postID)
}

func (m *mockPostService) Delete(ctx context.Context, userID, postID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, postID)
	}
	return nil
}

func (m *mockPostService) ToggleLike(ctx context.Context, userID, postID string) (*post.LikeResult, error) {
	if m.toggleLikeFn != nil {
		return m.toggleLikeFn(ctx, userID, postID)
	}
	return &post.LikeResult{}, nil
}

func TestPostHandler_Create(t *testing.T) {
	var gotTags []string
	h := NewPostHandler(&mockPostService{
		createFn: func(ctx context.Context, userID, content string, tagIDs []string) (*model.PostDetail, error) {
			gotTags = tagIDs
			return &model.PostDetail{
				Post:   model.Post{ID: testItemID, AuthorID: userID, Content: content},
				Author: model.UserSummary{ID: userID, Username: "alice"},
				Tags:   []model.Tag{{ID: "tag-1", Name: "go"}},
			}, nil
		},
	})

	req := withUserID(jsonRequest(t, http.MethodPost, "/posts", map[string]any{
		"content": "hello",
		"tag_ids": []string{"tag-1"},
	}), testUserID)
	w := httptest.NewRecorder()

	h.Create(w, req)

	assertStatus(t, w, http.StatusCreated)
	if len(gotTags) != 1 || gotTags[0] != "tag-1" {
		t.Errorf("tagIDs = %v, want [tag-1]", gotTags)
	}
	var resp postResponse
	decodeBody(t, w, &resp)
	if resp.Content != "hello" || resp.Author.Username != "alice" {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Tags) != 1 || resp.Tags[0].Name != "go" {
		t.Errorf("tags = %+v", resp.Tags)
	}
}

func TestPostHandler_Create_ValidationError(t *testing.T) {
	h := NewPostHandler(&mockPostService{
		createFn: func(ctx context.Context, userID, content string, tagIDs []string) (*model.PostDetail, error) {
			return nil, model.NewValidationError("本文を入力してください")
		},
	})

	req := withUserID(jsonRequest(t, http.MethodPost, "/posts", map[string]string{"content": ""}), testUserID)
	w := httptest.NewRecorder()

	h.Create(w, req)

	assertStatus(t, w, http.StatusBadRequest)
	assertErrorCode(t, w, model.ErrCodeValidationFailed)
}

func TestPostHandler_List_PassesFilter(t *testing.T) {
	var got model.PostFilter
	var gotViewer string
	h := NewPostHandler(&mockPostService{
		listFn: func(ctx context.Context, viewerID string, filter model.PostFilter) ([]model.PostDetail, error) {
			got, gotViewer = filter, viewerID
			return nil, nil
		},
	})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/posts?limit=5&offset=10&tag_id=t1&author_id="+testOtherID, nil), testUserID)
	w := httptest.NewRecorder()

	h.List(w, req)

	assertStatus(t, w, http.StatusOK)
	want := model.PostFilter{TagID: "t1", AuthorID: testOtherID, Limit: 5, Offset: 10}
	if got != want {
		t.Errorf("filter = %+v, want %+v", got, want)
	}
	if gotViewer != testUserID {
		t.Errorf("viewerID = %q, want %q", gotViewer, testUserID)
	}
	if w.Body.String() != "[]\n" {
		t.Errorf("body = %q, want empty array", w.Body.String())
	}
}

func TestPostHandler_Get_InvalidID(t *testing.T) {
	h := NewPostHandler(&mockPostService{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/posts/abc", nil), testUserID)
	req = withChiURLParam(req, "id", "abc")
	w := httptest.NewRecorder()

	h.Get(w, req)

	assertStatus(t, w, http.StatusNotFound)
	assertErrorCode(t, w, model.ErrCodePostNotFound)
}

func TestPostHandler_Delete(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "投稿者による削除", wantStatus: http.StatusNoContent},
		{name: "投稿者以外", err: model.NewForbiddenError("投稿者のみ削除できます"), wantStatus: http.StatusForbidden},
		{name: "存在しない投稿", err: model.NewPostNotFoundError(testItemID), wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPostHandler(&mockPostService{
				deleteFn: func(ctx context.Context, userID, postID string) error {
					return tt.err
				},
			})

			req := withUserID(httptest.NewRequest(http.MethodDelete, "/posts/"+testItemID, nil), testUserID)
			req = withChiURLParam(req, "id", testItemID)
			w := httptest.NewRecorder()

			h.Delete(w, req)

			assertStatus(t, w, tt.wantStatus)
		})
	}
}

func TestPostHandler_ToggleLike(t *testing.T) {
	h := NewPostHandler(&mockPostService{
		toggleLikeFn: func(ctx context.Context, userID, postID string) (*post.LikeResult, error) {
			return &post.LikeResult{Liked: true, LikesCount: 3}, nil
		},
	})

	req := withUserID(httptest.NewRequest(http.MethodPost, "/posts/"+testItemID+"/like", nil), testUserID)
	req = withChiURLParam(req, "id", testItemID)
	w := httptest.NewRecorder()

	h.ToggleLike(w, req)

	assertStatus(t, w, http.StatusOK)
	var resp likeResponse
	decodeBody(t, w, &resp)
	if !resp.Liked || resp.LikesCount != 3 {
		t.Errorf("response = %+v, want liked with 3 likes", resp)
	}
}
