package model

import "time"

// ProjectStatus はプロジェクトの進行状態。
type ProjectStatus string

const (
	ProjectStatusDevelopment ProjectStatus = "development"
	ProjectStatusActive      ProjectStatus = "active"
	ProjectStatusCompleted   ProjectStatus = "completed"
	ProjectStatusArchived    ProjectStatus = "archived"
)

// IsValid は定義済みのステータスかどうかを返す。
func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectStatusDevelopment, ProjectStatusActive, ProjectStatusCompleted, ProjectStatusArchived:
		return true
	default:
		return false
	}
}

// Project はユーザーが作成するプロジェクトを表す。
type Project struct {
	ID          string
	Name        string
	Description string
	Status      ProjectStatus
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProjectDetail は一覧・詳細レスポンス用にオーナー、タグ、メンバー、集計値を結合したプロジェクト。
type ProjectDetail struct {
	Project
	Owner         UserSummary
	Tags          []Tag
	Skills        []Skill
	Members       []UserSummary
	Applicants    []UserSummary
	CommentsCount int
	VoteCount     int
}

// ProjectUpdate はプロジェクトの部分更新内容を表す。
type ProjectUpdate struct {
	Name        *string
	Description *string
	Status      *ProjectStatus
	// nilでなければタグ・スキルの関連を置き換える
	TagIDs   *[]string
	SkillIDs *[]string
}

// ProjectFilter はプロジェクト一覧の絞り込み条件。
type ProjectFilter struct {
	TagID   string
	SkillID string
	Query   string
	Limit   int
	Offset  int
}

// Application はプロジェクトへの参加申請を表す。
type Application struct {
	ProjectID string
	UserID    string
	Username  string
	CreatedAt time.Time
}

// Decision は参加申請に対するオーナーの判断。
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// ApplicationState はユーザーとプロジェクトの関係を表す。
type ApplicationState int

const (
	ApplicationStateNone ApplicationState = iota
	ApplicationStateApplied
	ApplicationStateMember
)

// Vote はプロジェクトへの賛成/反対票。
type Vote struct {
	ProjectID string
	UserID    string
	IsUpvote  bool
	CreatedAt time.Time
}

// Comment はプロジェクトへのコメント。
type Comment struct {
	ID        string
	ProjectID string
	UserID    string
	Content   string
	CreatedAt time.Time

	// 投稿者が削除済みの場合は空
	Author *UserSummary
}
