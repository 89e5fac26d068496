package project

import (
	"context"
	"sort"
	"time"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/repository"
)

// memStore はテスト用のインメモリリポジトリ。
// プロジェクト、メンバーシップ、投票、コメント、ユーザー、タグ・スキルの各インターフェースを満たす。
type memStore struct {
	projects     map[string]model.Project
	members      map[string]map[string]bool
	applications map[string]map[string]time.Time
	votes        map[string]map[string]bool
	comments     map[string]model.Comment
	users        map[string]*model.User

	createAppErr  error
	createVoteErr error
}

func newMemStore() *memStore {
	return &memStore{
		projects:     map[string]model.Project{},
		members:      map[string]map[string]bool{},
		applications: map[string]map[string]time.Time{},
		votes:        map[string]map[string]bool{},
		comments:     map[string]model.Comment{},
		users: map[string]*model.User{
			"owner-1": {ID: "owner-1", Username: "owner"},
			"user-1":  {ID: "user-1", Username: "alice"},
		},
	}
}

func (m *memStore) addProject(id, ownerID string) {
	m.projects[id] = model.Project{ID: id, Name: "ConnectIn", OwnerID: ownerID, Status: model.ProjectStatusDevelopment}
}

// --- ProjectRepository ---

type memProjects struct{ *memStore }

func (m memProjects) Create(_ context.Context, p *model.Project, _, _ []string) error {
	m.projects[p.ID] = *p
	return nil
}
func (m memProjects) FindByID(_ context.Context, id string) (*model.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
func (m memProjects) Update(_ context.Context, p *model.Project, _, _ *[]string) error {
	if _, ok := m.projects[p.ID]; !ok {
		return repository.ErrNotFound
	}
	m.projects[p.ID] = *p
	return nil
}
func (m memProjects) Delete(_ context.Context, id string) error {
	if _, ok := m.projects[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.projects, id)
	return nil
}
func (m memProjects) List(_ context.Context, _ model.ProjectFilter) ([]model.Project, error) {
	var out []model.Project
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
func (m memProjects) ListByUser(_ context.Context, userID string) ([]model.Project, error) {
	var out []model.Project
	for _, p := range m.projects {
		if p.OwnerID == userID || m.members[p.ID][userID] {
			out = append(out, p)
		}
	}
	return out, nil
}
func (m memProjects) LoadDetails(_ context.Context, projects []model.Project) ([]model.ProjectDetail, error) {
	out := make([]model.ProjectDetail, len(projects))
	for i, p := range projects {
		d := model.ProjectDetail{Project: p, Owner: model.UserSummary{ID: p.OwnerID}}
		for uid := range m.members[p.ID] {
			d.Members = append(d.Members, model.UserSummary{ID: uid})
		}
		for _, up := range m.votes[p.ID] {
			if up {
				d.VoteCount++
			} else {
				d.VoteCount--
			}
		}
		out[i] = d
	}
	return out, nil
}

// --- MembershipRepository ---

type memMembers struct{ *memStore }

func (m memMembers) IsMember(_ context.Context, projectID, userID string) (bool, error) {
	return m.members[projectID][userID], nil
}
func (m memMembers) HasApplied(_ context.Context, projectID, userID string) (bool, error) {
	_, ok := m.applications[projectID][userID]
	return ok, nil
}
func (m memMembers) CreateApplication(_ context.Context, projectID, userID string) error {
	if m.createAppErr != nil {
		return m.createAppErr
	}
	if m.applications[projectID] == nil {
		m.applications[projectID] = map[string]time.Time{}
	}
	m.applications[projectID][userID] = time.Now()
	return nil
}
func (m memMembers) ListApplications(_ context.Context, projectID string) ([]model.Application, error) {
	var out []model.Application
	for uid, at := range m.applications[projectID] {
		out = append(out, model.Application{ProjectID: projectID, UserID: uid, CreatedAt: at})
	}
	return out, nil
}
func (m memMembers) AcceptApplication(ctx context.Context, projectID, userID string) error {
	if err := m.DeleteApplication(ctx, projectID, userID); err != nil {
		return err
	}
	return m.AddMember(ctx, projectID, userID)
}
func (m memMembers) DeleteApplication(_ context.Context, projectID, userID string) error {
	if _, ok := m.applications[projectID][userID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.applications[projectID], userID)
	return nil
}
func (m memMembers) AddMember(_ context.Context, projectID, userID string) error {
	if m.members[projectID] == nil {
		m.members[projectID] = map[string]bool{}
	}
	m.members[projectID][userID] = true
	return nil
}
func (m memMembers) ListMembers(_ context.Context, projectID string) ([]model.UserSummary, error) {
	out := []model.UserSummary{}
	for uid := range m.members[projectID] {
		out = append(out, model.UserSummary{ID: uid})
	}
	return out, nil
}
func (m memMembers) RemoveMember(_ context.Context, projectID, userID string) error {
	if !m.members[projectID][userID] {
		return repository.ErrNotFound
	}
	delete(m.members[projectID], userID)
	return nil
}
func (m memMembers) DeleteStaleApplications(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// --- VoteRepository ---

type memVotes struct{ *memStore }

func (m memVotes) Find(_ context.Context, projectID, userID string) (*model.Vote, error) {
	up, ok := m.votes[projectID][userID]
	if !ok {
		return nil, nil
	}
	return &model.Vote{ProjectID: projectID, UserID: userID, IsUpvote: up}, nil
}
func (m memVotes) Create(_ context.Context, v *model.Vote) error {
	if m.createVoteErr != nil {
		return m.createVoteErr
	}
	if m.votes[v.ProjectID] == nil {
		m.votes[v.ProjectID] = map[string]bool{}
	}
	m.votes[v.ProjectID][v.UserID] = v.IsUpvote
	return nil
}
func (m memVotes) UpdateDirection(_ context.Context, projectID, userID string, isUpvote bool) error {
	m.votes[projectID][userID] = isUpvote
	return nil
}
func (m memVotes) Delete(_ context.Context, projectID, userID string) error {
	delete(m.votes[projectID], userID)
	return nil
}
func (m memVotes) Sum(_ context.Context, projectID string) (int, error) {
	sum := 0
	for _, up := range m.votes[projectID] {
		if up {
			sum++
		} else {
			sum--
		}
	}
	return sum, nil
}

// --- CommentRepository ---

type memComments struct{ *memStore }

func (m memComments) Create(_ context.Context, c *model.Comment) error {
	m.comments[c.ID] = *c
	return nil
}
func (m memComments) FindByID(_ context.Context, id string) (*model.Comment, error) {
	c, ok := m.comments[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}
func (m memComments) ListByProject(_ context.Context, projectID string) ([]model.Comment, error) {
	var out []model.Comment
	for _, c := range m.comments {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (m memComments) Delete(_ context.Context, id string) error {
	if _, ok := m.comments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.comments, id)
	return nil
}

// --- UserRepository（FindByIDのみ使用） ---

type memUsers struct {
	repository.UserRepository
	*memStore
}

func (m memUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

// --- TermRepository ---

type memTerms struct {
	repository.TermRepository
	known map[string]bool
}

func (m memTerms) FilterExisting(_ context.Context, ids []string) ([]string, error) {
	out := []string{}
	for _, id := range ids {
		if m.known[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// --- Notifier / Sanitizer / Recorder ---

type recordingNotifier struct {
	sent []model.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, notif model.Notification) {
	n.sent = append(n.sent, notif)
}

type stripSanitizer struct{}

func (stripSanitizer) Sanitize(raw string) string {
	if raw == "<script>x</script>" {
		return ""
	}
	return raw
}
