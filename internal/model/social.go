package model

import "time"

// Term はタグ・スキルに共通する名前付きの分類項目。
type Term struct {
	ID   string
	Name string
}

// Tag はプロジェクト・投稿・TODOに付けるタグ。
type Tag = Term

// Skill はユーザーやプロジェクトに紐づくスキル。
type Skill = Term

// Team はユーザーのグループ。
type Team struct {
	ID          string
	Name        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
}

// TeamMember はチームの所属メンバー。
type TeamMember struct {
	UserID   string
	Username string
	IsAdmin  bool
}

// TeamDetail はメンバー一覧付きのチーム。
type TeamDetail struct {
	Team
	Members []TeamMember
}

// Post はユーザーのタイムライン投稿。
type Post struct {
	ID        string
	AuthorID  string
	Content   string
	CreatedAt time.Time
}

// PostDetail は投稿者、タグ、いいね数を結合した投稿。
type PostDetail struct {
	Post
	Author     UserSummary
	Tags       []Tag
	LikesCount int
	LikedByMe  bool
}

// PostFilter は投稿一覧の絞り込み条件。
type PostFilter struct {
	// IDを指定すると単一の投稿に絞り込む
	ID       string
	TagID    string
	AuthorID string
	Limit    int
	Offset   int
}

// Todo はユーザーのTODO項目。
type Todo struct {
	ID          string
	UserID      string
	Title       string
	Description string
	IsCompleted bool
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TodoDetail はタグとウォッチャーを結合したTODO。
type TodoDetail struct {
	Todo
	Tags     []Tag
	Watchers []UserSummary
}

// TodoUpdate はTODOの部分更新内容を表す。
type TodoUpdate struct {
	Title       *string
	Description *string
	IsCompleted *bool
	DueDate     *time.Time
	ClearDue    bool
	TagIDs      *[]string
}

// Conversation はチャットの会話。
type Conversation struct {
	ID        string
	Name      string
	IsGroup   bool
	CreatedAt time.Time
}

// ConversationDetail は参加者と最新メッセージ付きの会話。
type ConversationDetail struct {
	Conversation
	Participants []UserSummary
	LastMessage  *Message
}

// Message は会話内のメッセージ。
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
}

// 通知種別
const (
	NotificationApplication         = "application"
	NotificationApplicationAccepted = "application_accepted"
	NotificationApplicationRejected = "application_rejected"
	NotificationTodoCompleted       = "todo_completed"
)

// Notification はユーザーへの通知。
type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Message   string
	Read      bool
	ProjectID string
	CreatedAt time.Time
	ReadAt    *time.Time
}
