package handler

import (
	"time"

	"github.com/hitoshi/connectin/internal/model"
)

// deletedUsername は削除済みユーザーの表示名。
const deletedUsername = "Unknown"

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	City          string     `json:"city"`
	Position      string     `json:"position"`
	GitHub        string     `json:"github"`
	LinkedIn      string     `json:"linkedin"`
	Telegram      string     `json:"telegram"`
	AvatarURL     string     `json:"avatar_url"`
	CoverPhotoURL string     `json:"cover_photo_url"`
	LastActive    *time.Time `json:"last_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// userSummaryResponse は一覧・ネスト用の最小限のユーザー情報。
type userSummaryResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url"`
}

// identityResponse は紐付け済みIdP。provider側のユーザーIDは返さない。
type identityResponse struct {
	Provider string    `json:"provider"`
	LinkedAt time.Time `json:"linked_at"`
}

// termResponse はタグ・スキルのAPIレスポンス。
type termResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		City:          u.City,
		Position:      u.Position,
		GitHub:        u.GitHub,
		LinkedIn:      u.LinkedIn,
		Telegram:      u.Telegram,
		AvatarURL:     u.AvatarURL,
		CoverPhotoURL: u.CoverPhotoURL,
		LastActive:    u.LastActive,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func toUserSummaries(users []model.UserSummary) []userSummaryResponse {
	out := make([]userSummaryResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserSummary(u))
	}
	return out
}

func toUserSummary(u model.UserSummary) userSummaryResponse {
	return userSummaryResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
	}
}

func toTermResponses(terms []model.Term) []termResponse {
	out := make([]termResponse, 0, len(terms))
	for _, t := range terms {
		out = append(out, termResponse{ID: t.ID, Name: t.Name})
	}
	return out
}

// --- プロジェクト ---

// projectUserResponse はプロジェクトに埋め込むオーナー・メンバー・申請者の情報。
// メールアドレスは含めない。
type projectUserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// projectResponse はプロジェクト詳細のAPIレスポンス。
type projectResponse struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	Status        string                `json:"status"`
	OwnerID       string                `json:"owner_id"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Owner         projectUserResponse   `json:"owner"`
	Tags          []termResponse        `json:"tags"`
	Skills        []termResponse        `json:"skills"`
	Members       []projectUserResponse `json:"members"`
	Applicants    []projectUserResponse `json:"applicants"`
	CommentsCount int                   `json:"comments_count"`
	VoteCount     int                   `json:"vote_count"`
}

func toProjectResponse(p *model.ProjectDetail) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Status:      string(p.Status),
		OwnerID:     p.OwnerID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		Owner: projectUserResponse{
			ID:        p.Owner.ID,
			Username:  p.Owner.Username,
			AvatarURL: p.Owner.AvatarURL,
		},
		Tags:          toTermResponses(p.Tags),
		Skills:        toTermResponses(p.Skills),
		Members:       toProjectUsers(p.Members),
		Applicants:    toProjectUsers(p.Applicants),
		CommentsCount: p.CommentsCount,
		VoteCount:     p.VoteCount,
	}
}

func toProjectUsers(users []model.UserSummary) []projectUserResponse {
	out := make([]projectUserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, projectUserResponse{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL})
	}
	return out
}

func toProjectResponses(projects []model.ProjectDetail) []projectResponse {
	out := make([]projectResponse, 0, len(projects))
	for i := range projects {
		out = append(out, toProjectResponse(&projects[i]))
	}
	return out
}

// applicationResponse は参加申請のAPIレスポンス。
type applicationResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// commentAuthorResponse はコメント投稿者。
type commentAuthorResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// commentResponse はコメントのAPIレスポンス。
type commentResponse struct {
	ID        string                `json:"id"`
	ProjectID string                `json:"project_id"`
	Content   string                `json:"content"`
	CreatedAt time.Time             `json:"created_at"`
	User      commentAuthorResponse `json:"user"`
}

func toCommentResponse(c *model.Comment) commentResponse {
	author := commentAuthorResponse{ID: c.UserID, Username: deletedUsername}
	if c.Author != nil {
		author = commentAuthorResponse{
			ID:        c.Author.ID,
			Username:  c.Author.Username,
			AvatarURL: c.Author.AvatarURL,
		}
	}
	return commentResponse{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		User:      author,
	}
}

// --- チーム ---

// teamMemberResponse はチームメンバーのAPIレスポンス。
type teamMemberResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// teamResponse はチームのAPIレスポンス。一覧ではメンバーを省略する。
type teamResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	CreatedBy   string               `json:"created_by"`
	CreatedAt   time.Time            `json:"created_at"`
	Members     []teamMemberResponse `json:"members,omitempty"`
}

func toTeamResponse(t model.Team) teamResponse {
	return teamResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
	}
}

func toTeamDetailResponse(t *model.TeamDetail) teamResponse {
	resp := toTeamResponse(t.Team)
	resp.Members = make([]teamMemberResponse, 0, len(t.Members))
	for _, m := range t.Members {
		resp.Members = append(resp.Members, teamMemberResponse{
			ID:       m.UserID,
			Username: m.Username,
			IsAdmin:  m.IsAdmin,
		})
	}
	return resp
}

// --- 投稿 ---

// postResponse は投稿のAPIレスポンス。
type postResponse struct {
	ID         string              `json:"id"`
	AuthorID   string              `json:"author_id"`
	Content    string              `json:"content"`
	CreatedAt  time.Time           `json:"created_at"`
	Author     userSummaryResponse `json:"author"`
	Tags       []termResponse      `json:"tags"`
	LikesCount int                 `json:"likes_count"`
	LikedByMe  bool                `json:"liked_by_me"`
}

func toPostResponse(p *model.PostDetail) postResponse {
	return postResponse{
		ID:         p.ID,
		AuthorID:   p.AuthorID,
		Content:    p.Content,
		CreatedAt:  p.CreatedAt,
		Author:     toUserSummary(p.Author),
		Tags:       toTermResponses(p.Tags),
		LikesCount: p.LikesCount,
		LikedByMe:  p.LikedByMe,
	}
}

// --- TODO ---

// todoResponse はTODOのAPIレスポンス。
type todoResponse struct {
	ID          string                `json:"id"`
	UserID      string                `json:"user_id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	IsCompleted bool                  `json:"is_completed"`
	DueDate     *time.Time            `json:"due_date"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	Tags        []termResponse        `json:"tags"`
	Watchers    []userSummaryResponse `json:"watchers"`
}

func toTodoResponse(t *model.TodoDetail) todoResponse {
	return todoResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		Title:       t.Title,
		Description: t.Description,
		IsCompleted: t.IsCompleted,
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Tags:        toTermResponses(t.Tags),
		Watchers:    toUserSummaries(t.Watchers),
	}
}

// --- チャット ---

// chatMessageResponse はチャットメッセージのAPIレスポンス。
type chatMessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// conversationResponse は会話のAPIレスポンス。
type conversationResponse struct {
	ID           string                `json:"id"`
	Name         string                `json:"name,omitempty"`
	IsGroup      bool                  `json:"is_group"`
	CreatedAt    time.Time             `json:"created_at"`
	Participants []userSummaryResponse `json:"participants"`
	LastMessage  *chatMessageResponse  `json:"last_message"`
}

func toChatMessageResponse(m *model.Message) chatMessageResponse {
	return chatMessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

func toConversationResponse(c *model.ConversationDetail) conversationResponse {
	resp := conversationResponse{
		ID:           c.ID,
		Name:         c.Name,
		IsGroup:      c.IsGroup,
		CreatedAt:    c.CreatedAt,
		Participants: toUserSummaries(c.Participants),
	}
	if c.LastMessage != nil {
		m := toChatMessageResponse(c.LastMessage)
		resp.LastMessage = &m
	}
	return resp
}

// --- 通知 ---

// notificationResponse は通知のAPIレスポンス。
type notificationResponse struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Read      bool       `json:"read"`
	ProjectID string     `json:"project_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}

func toNotificationResponse(n model.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.Read,
		ProjectID: n.ProjectID,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}
}
