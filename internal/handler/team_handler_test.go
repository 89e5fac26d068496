package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/connectin/internal/model"
)

// mockTeamService はTeamServiceInterfaceのモック実装。
type mockTeamService struct {
	createFn       func(ctx context.Context, userID, name, description string) (*model.TeamDetail, error)
	listFn         func(ctx context.Context, userID string) ([]model.Team, error)
	getFn          func(ctx context.Context, teamID string) (*model.TeamDetail, error)
	updateFn       func(ctx context.Context, userID, teamID string, name, description *string) (*model.TeamDetail, error)
	deleteFn       func(ctx context.Context, userID, teamID string) error
	addMemberFn    func(ctx context.Context, userID, teamID, memberID string, isAdmin bool) (*model.TeamDetail, error)
	removeMemberFn func(ctx context.Context, userID, teamID, memberID string) error
}

func (m *mockTeamService) Create(ctx context.Context, userID, name, description string) (*model.TeamDetail, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, name, description)
	}
	return &model.TeamDetail{}, nil
}

func (m *mockTeamService) List(ctx context.Context, userID string) ([]model.Team, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockTeamService) Get(ctx context.Context, teamID string) (*model.TeamDetail, error) {
	if m.getFn != nil {
		return m.getFn(ctx, teamID)
	}
	return nil, model.NewTeamNotFoundError(teamID)
}

func (m *mockTeamService) Update(ctx context.Context, userID, teamID string, name, description *string) (*model.TeamDetail, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, teamID, name, description)
	}
	return &model.TeamDetail{}, nil
}

func (m *mockTeamService) Delete(ctx context.Context, userID, teamID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, teamID)
	}
	return nil
}

func (m *mockTeamService) AddMember(ctx context.Context, userID, teamID, memberID string, isAdmin bool) (*model.TeamDetail, error) {
	if m.addMemberFn != nil {
		return m.addMemberFn(ctx, userID, teamID, memberID, isAdmin)
	}
	return &model.TeamDetail{}, nil
}

func (m *mockTeamService) RemoveMember(ctx context.Context, userID, teamID, memberID string) error {
	if m.removeMemberFn != nil {
		return m.removeMemberFn(ctx, userID, teamID, memberID)
	}
	return nil
}

func testTeamDetail() *model.TeamDetail {
	return &model.TeamDetail{
		Team: model.Team{
			ID:        testItemID,
			Name:      "backend",
			CreatedBy: testUserID,
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Members: []model.TeamMember{
			{UserID: testUserID, Username: "alice", IsAdmin: true},
		},
	}
}

func TestTeamHandler_Create_Success(t *testing.T) {
	var gotName, gotDesc string
	h := NewTeamHandler(&mockTeamService{
		createFn: func(ctx context.Context, userID, name, description string) (*model.TeamDetail, error) {
			gotName, gotDesc = name, description
			return testTeamDetail(), nil
		},
	})

	req := withUserID(jsonRequest(t, http.MethodPost, "/teams", map[string]string{
		"name":        "backend",
		"description": "API team",
	}), testUserID)
	w := httptest.NewRecorder()

	h.Create(w, req)

	assertStatus(t, w, http.StatusCreated)
	if gotName != "backend" || gotDesc != "API team" {
		t.Errorf("service got (%q, %q)", gotName, gotDesc)
	}
	var resp teamResponse
	decodeBody(t, w, &resp)
	if len(resp.Members) != 1 || !resp.Members[0].IsAdmin {
		t.Errorf("members = %+v, want creator as admin", resp.Members)
	}
}

func TestTeamHandler_Create_DuplicateName(t *testing.T) {
	h := NewTeamHandler(&mockTeamService{
		createFn: func(ctx context.Context, userID, name, description string) (*model.TeamDetail, error) {
			return nil, model.NewDuplicateNameError(name)
		},
	})

	req := withUserID(jsonRequest(t, http.MethodPost, "/teams", map[string]string{"name": "backend"}), testUserID)
	w := httptest.NewRecorder()

	h.Create(w, req)

	assertStatus(t, w, http.StatusConflict)
	assertErrorCode(t, w, model.ErrCodeDuplicateName)
}

func TestTeamHandler_List_EmptyArray(t *testing.T) {
	h := NewTeamHandler(&mockTeamService{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/teams", nil), testUserID)
	w := httptest.NewRecorder()

	h.List(w, req)

	assertStatus(t, w, http.StatusOK)
	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want empty array", got)
	}
}

func TestTeamHandler_Get(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		wantStatus int
		wantCode   string
	}{
		{name: "存在するチーム", id: testItemID, wantStatus: http.StatusOK},
		{name: "存在しないチーム", id: testOtherID, wantStatus: http.StatusNotFound, wantCode: model.ErrCodeTeamNotFound},
		{name: "UUIDでないID", id: "not-a-uuid", wantStatus: http.StatusNotFound, wantCode: model.ErrCodeTeamNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTeamHandler(&mockTeamService{
				getFn: func(ctx context.Context, teamID string) (*model.TeamDetail, error) {
					if teamID == testItemID {
						return testTeamDetail(), nil
					}
					return nil, model.NewTeamNotFoundError(teamID)
				},
			})

			req := withUserID(httptest.NewRequest(http.MethodGet, "/teams/"+tt.id, nil), testUserID)
			req = withChiURLParam(req, "id", tt.id)
			w := httptest.NewRecorder()

			h.Get(w, req)

			assertStatus(t, w, tt.wantStatus)
			if tt.wantCode != "" {
				assertErrorCode(t, w, tt.wantCode)
			}
		})
	}
}

func TestTeamHandler_Update_PartialFields(t *testing.T) {
	var gotName, gotDesc *string
	h := NewTeamHandler(&mockTeamService{
		updateFn: func(ctx context.Context, userID, teamID string, name, description *string) (*model.TeamDetail, error) {
			gotName, gotDesc = name, description
			return testTeamDetail(), nil
		},
	})

	req := withUserID(jsonRequest(t, http.MethodPut, "/teams/"+testItemID, map[string]string{"description": "new"}), testUserID)
	req = withChiURLParam(req, "id", testItemID)
	w := httptest.NewRecorder()

	h.Update(w, req)

	assertStatus(t, w, http.StatusOK)
	if gotName != nil {
		t.Errorf("name = %q, want nil", *gotName)
	}
	if gotDesc == nil || *gotDesc != "new" {
		t.Errorf("description = %v, want \"new\"", gotDesc)
	}
}

func TestTeamHandler_Delete_NotAdmin(t *testing.T) {
	h := NewTeamHandler(&mockTeamService{
		deleteFn: func(ctx context.Context, userID, teamID string) error {
			return model.NewNotTeamAdminError()
		},
	})

	req := withUserID(httptest.NewRequest(http.MethodDelete, "/teams/"+testItemID, nil), testOtherID)
	req = withChiURLParam(req, "id", testItemID)
	w := httptest.NewRecorder()

	h.Delete(w, req)

	assertStatus(t, w, http.StatusForbidden)
	assertErrorCode(t, w, model.ErrCodeNotTeamAdmin)
}

func TestTeamHandler_AddMember(t *testing.T) {
	var gotMember string
	var gotAdmin bool
	h := NewTeamHandler(&mockTeamService{
		addMemberFn: func(ctx context.Context, userID, teamID, memberID string, isAdmin bool) (*model.TeamDetail, error) {
			gotMember, gotAdmin = memberID, isAdmin
			return testTeamDetail(), nil
		},
	})

	req := withUserID(jsonRequest(t, http.MethodPost, "/teams/"+testItemID+"/members", map[string]any{
		"user_id":  testOtherID,
		"is_admin": true,
	}), testUserID)
	req = withChiURLParam(req, "id", testItemID)
	w := httptest.NewRecorder()

	h.AddMember(w, req)

	assertStatus(t, w, http.StatusCreated)
	if gotMember != testOtherID || !gotAdmin {
		t.Errorf("service got (%q, %v)", gotMember, gotAdmin)
	}
}

func TestTeamHandler_AddMember_AlreadyMember(t *testing.T) {
	h := NewTeamHandler(&mockTeamService{
		addMemberFn: func(ctx context.Context, userID, teamID, memberID string, isAdmin bool) (*model.TeamDetail, error) {
			return nil, model.NewAlreadyMemberError()
		},
	})

	req := withUserID(jsonRequest(t, http.MethodPost, "/teams/"+testItemID+"/members", map[string]string{"user_id": testOtherID}), testUserID)
	req = withChiURLParam(req, "id", testItemID)
	w := httptest.NewRecorder()

	h.AddMember(w, req)

	assertStatus(t, w, http.StatusBadRequest)
	assertErrorCode(t, w, model.ErrCodeAlreadyMember)
}

func TestTeamHandler_RemoveMember(t *testing.T) {
	called := false
	h := NewTeamHandler(&mockTeamService{
		removeMemberFn: func(ctx context.Context, userID, teamID, memberID string) error {
			called = true
			if memberID != testOtherID {
				t.Errorf("memberID = %q, want %q", memberID, testOtherID)
			}
			return nil
		},
	})

	req := withUserID(httptest.NewRequest(http.MethodDelete, "/teams/"+testItemID+"/members/"+testOtherID, nil), testUserID)
	req = withChiURLParam(req, "id", testItemID)
	req = withChiURLParam(req, "userID", testOtherID)
	w := httptest.NewRecorder()

	h.RemoveMember(w, req)

	assertStatus(t, w, http.StatusNoContent)
	if !called {
		t.Error("expected RemoveMember to be called")
	}
}

func TestTeamHandler_Unauthenticated(t *testing.T) {
	h := NewTeamHandler(&mockTeamService{})

	req := jsonRequest(t, http.MethodPost, "/teams", map[string]string{"name": "x"})
	w := httptest.NewRecorder()

	h.Create(w, req)

	assertStatus(t, w, http.StatusUnauthorized)
	assertErrorCode(t, w, model.ErrCodeUnauthorized)
}
