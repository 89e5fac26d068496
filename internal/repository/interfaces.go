// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/connectin/internal/model"
)

// ErrNotFound は更新・削除対象のレコードが存在しない場合に返される。
// 検索系メソッドはこのエラーを返さず、nilを返す。
var ErrNotFound = errors.New("record not found")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名（大文字小文字を区別しない）でユーザーを取得する。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// ExistsByUsername はユーザー名が使用済みかを返す。
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile はnilでないフィールドのみを更新し、更新後のユーザーを返す。
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error)

	// BackfillProfile は空のカラムだけを指定値で埋める。
	// OAuthログイン時にIdPから得た情報を既存ユーザーへ反映するために使用する。
	BackfillProfile(ctx context.Context, id string, fill model.ProfileUpdate) error

	// TouchLastActive は最終アクティブ日時を更新する。
	TouchLastActive(ctx context.Context, id string, at time.Time) error

	// Search はユーザー名の前方一致でユーザーを検索する。
	Search(ctx context.Context, prefix string, limit int) ([]model.UserSummary, error)

	// ListSkills はユーザーのスキル一覧を返す。
	ListSkills(ctx context.Context, userID string) ([]model.Skill, error)

	// ReplaceSkills はユーザーのスキルを指定IDの集合で置き換える。
	ReplaceSkills(ctx context.Context, userID string, skillIDs []string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 所有するプロジェクト、投稿、TODO、identities等はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// ListByUserID はユーザーに紐付くidentityの一覧を返す。
	ListByUserID(ctx context.Context, userID string) ([]model.Identity, error)

	// Link は既存ユーザーにIdPを紐付ける。すでに紐付いていた場合はfalseを返す。
	Link(ctx context.Context, identity *model.Identity) (bool, error)
}

// RevokedTokenRepository は失効済みアクセストークンの永続化インターフェース。
type RevokedTokenRepository interface {
	// Revoke はトークンを失効済みとして記録する。既に記録済みの場合は何もしない。
	Revoke(ctx context.Context, token *model.RevokedToken) error
	// IsRevoked はjtiが失効済みかを返す。有効期限切れのレコードは無視する。
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TermRepository はタグ・スキルの永続化インターフェース。
// テーブル名だけが異なる同一構造のため、1つの実装を使い回す。
type TermRepository interface {
	// List は名前順に一覧を返す。prefixが空でなければ前方一致で絞り込む。
	List(ctx context.Context, prefix string) ([]model.Term, error)
	// FindByName は名前（大文字小文字を区別しない）で検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Term, error)
	// Create は項目を作成する。
	Create(ctx context.Context, term *model.Term) error
	// FilterExisting は指定IDのうち存在するものだけを返す。
	FilterExisting(ctx context.Context, ids []string) ([]string, error)
}

// ProjectRepository はプロジェクトの永続化インターフェース。
type ProjectRepository interface {
	// Create はプロジェクトとタグ・スキルの関連を同一トランザクションで作成する。
	Create(ctx context.Context, project *model.Project, tagIDs, skillIDs []string) error

	// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Project, error)

	// Update はプロジェクトを更新する。tagIDs/skillIDsがnilでなければ関連を置き換える。
	Update(ctx context.Context, project *model.Project, tagIDs, skillIDs *[]string) error

	// Delete はプロジェクトを削除する。関連テーブルはCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// List は条件に一致するプロジェクトを作成日時の降順で返す。
	List(ctx context.Context, filter model.ProjectFilter) ([]model.Project, error)

	// ListByUser はユーザーがオーナーまたはメンバーのプロジェクトを返す。
	ListByUser(ctx context.Context, userID string) ([]model.Project, error)

	// LoadDetails はオーナー、タグ、スキル、メンバー、申請者、コメント数、投票合計をまとめて読み込む。
	// 戻り値の順序は引数の順序と一致する。
	LoadDetails(ctx context.Context, projects []model.Project) ([]model.ProjectDetail, error)
}

// MembershipRepository はプロジェクトの参加申請とメンバーシップの永続化インターフェース。
type MembershipRepository interface {
	// IsMember はユーザーがプロジェクトのメンバーかを返す。
	IsMember(ctx context.Context, projectID, userID string) (bool, error)

	// HasApplied はユーザーが参加申請中かを返す。
	HasApplied(ctx context.Context, projectID, userID string) (bool, error)

	// CreateApplication は参加申請を作成する。
	CreateApplication(ctx context.Context, projectID, userID string) error

	// ListApplications は申請一覧を申請日時の昇順で返す。
	ListApplications(ctx context.Context, projectID string) ([]model.Application, error)

	// AcceptApplication はメンバー追加と申請削除を同一トランザクションで行う。
	// 申請が存在しない場合はErrNotFoundを返す。
	AcceptApplication(ctx context.Context, projectID, userID string) error

	// DeleteApplication は申請を削除する。申請が存在しない場合はErrNotFoundを返す。
	DeleteApplication(ctx context.Context, projectID, userID string) error

	// AddMember はメンバーを追加する。既にメンバーの場合は何もしない。
	AddMember(ctx context.Context, projectID, userID string) error

	// ListMembers はメンバー一覧を参加日時の昇順で返す。
	ListMembers(ctx context.Context, projectID string) ([]model.UserSummary, error)

	// RemoveMember はメンバーを削除する。メンバーでない場合はErrNotFoundを返す。
	RemoveMember(ctx context.Context, projectID, userID string) error

	// DeleteStaleApplications は指定日時より古い申請を削除し、削除件数を返す。
	DeleteStaleApplications(ctx context.Context, before time.Time) (int64, error)
}

// VoteRepository はプロジェクト投票の永続化インターフェース。
type VoteRepository interface {
	// Find はユーザーの投票を取得する。未投票の場合はnilを返す。
	Find(ctx context.Context, projectID, userID string) (*model.Vote, error)
	// Create は投票を作成する。
	Create(ctx context.Context, vote *model.Vote) error
	// UpdateDirection は投票の賛否を変更する。
	UpdateDirection(ctx context.Context, projectID, userID string, isUpvote bool) error
	// Delete は投票を取り消す。
	Delete(ctx context.Context, projectID, userID string) error
	// Sum は賛成を+1、反対を-1とした合計を返す。投票がなければ0。
	Sum(ctx context.Context, projectID string) (int, error)
}

// CommentRepository はプロジェクトコメントの永続化インターフェース。
type CommentRepository interface {
	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error
	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)
	// ListByProject はプロジェクトのコメントを投稿者情報付きで古い順に返す。
	ListByProject(ctx context.Context, projectID string) ([]model.Comment, error)
	// Delete はコメントを削除する。
	Delete(ctx context.Context, id string) error
}

// TeamRepository はチームの永続化インターフェース。
type TeamRepository interface {
	// Create はチームを作成し、作成者を管理者として同一トランザクションで登録する。
	Create(ctx context.Context, team *model.Team) error
	// FindByID は指定IDのチームを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Team, error)
	// ListByUser はユーザーが所属するチームを返す。
	ListByUser(ctx context.Context, userID string) ([]model.Team, error)
	// Update はチーム名と説明を更新する。
	Update(ctx context.Context, team *model.Team) error
	// Delete はチームを削除する。
	Delete(ctx context.Context, id string) error
	// FindMember はチームメンバーを取得する。所属していない場合はnilを返す。
	FindMember(ctx context.Context, teamID, userID string) (*model.TeamMember, error)
	// ListMembers はメンバー一覧を返す。
	ListMembers(ctx context.Context, teamID string) ([]model.TeamMember, error)
	// AddMember はメンバーを追加する。
	AddMember(ctx context.Context, teamID, userID string, isAdmin bool) error
	// RemoveMember はメンバーを削除する。所属していない場合はErrNotFoundを返す。
	RemoveMember(ctx context.Context, teamID, userID string) error
}

// PostRepository は投稿の永続化インターフェース。
type PostRepository interface {
	// Create は投稿とタグの関連を同一トランザクションで作成する。
	Create(ctx context.Context, post *model.Post, tagIDs []string) error
	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)
	// List は投稿者、タグ、いいね数付きで新しい順に返す。viewerIDはLikedByMeの判定に使う。
	List(ctx context.Context, filter model.PostFilter, viewerID string) ([]model.PostDetail, error)
	// Delete は投稿を削除する。
	Delete(ctx context.Context, id string) error
	// HasLiked はユーザーが投稿にいいね済みかを返す。
	HasLiked(ctx context.Context, postID, userID string) (bool, error)
	// Like はいいねを追加する。
	Like(ctx context.Context, postID, userID string) error
	// Unlike はいいねを取り消す。
	Unlike(ctx context.Context, postID, userID string) error
	// CountLikes はいいね数を返す。
	CountLikes(ctx context.Context, postID string) (int, error)
}

// TodoRepository はTODOの永続化インターフェース。
type TodoRepository interface {
	// Create はTODOとタグの関連を同一トランザクションで作成する。
	Create(ctx context.Context, todo *model.Todo, tagIDs []string) error
	// FindByID は指定IDのTODOを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Todo, error)
	// ListForUser はユーザー自身のTODOとウォッチ中のTODOを返す。completedがnilなら全件。
	ListForUser(ctx context.Context, userID string, completed *bool) ([]model.Todo, error)
	// LoadDetails はタグとウォッチャーをまとめて読み込む。
	LoadDetails(ctx context.Context, todos []model.Todo) ([]model.TodoDetail, error)
	// Update はTODOを更新する。tagIDsがnilでなければ関連を置き換える。
	Update(ctx context.Context, todo *model.Todo, tagIDs *[]string) error
	// Delete はTODOを削除する。
	Delete(ctx context.Context, id string) error
	// IsWatcher はユーザーがTODOのウォッチャーかを返す。
	IsWatcher(ctx context.Context, todoID, userID string) (bool, error)
	// AddWatcher はウォッチャーを追加する。既に登録済みの場合は何もしない。
	AddWatcher(ctx context.Context, todoID, userID string) error
	// RemoveWatcher はウォッチャーを削除する。登録されていない場合はErrNotFoundを返す。
	RemoveWatcher(ctx context.Context, todoID, userID string) error
	// ListWatcherIDs はウォッチャーのユーザーID一覧を返す。
	ListWatcherIDs(ctx context.Context, todoID string) ([]string, error)
}

// ChatRepository は会話とメッセージの永続化インターフェース。
type ChatRepository interface {
	// CreateConversation は会話と参加者を同一トランザクションで作成する。
	CreateConversation(ctx context.Context, conv *model.Conversation, participantIDs []string) error
	// FindConversation は指定IDの会話を取得する。見つからない場合はnilを返す。
	FindConversation(ctx context.Context, id string) (*model.Conversation, error)
	// FindDirectConversation は2人だけが参加する1対1の会話を検索する。見つからない場合はnilを返す。
	FindDirectConversation(ctx context.Context, userA, userB string) (*model.Conversation, error)
	// IsParticipant はユーザーが会話の参加者かを返す。
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	// ListConversations はユーザーの会話を最新メッセージ付きで最終更新の新しい順に返す。
	ListConversations(ctx context.Context, userID string) ([]model.ConversationDetail, error)
	// CreateMessage はメッセージを作成する。
	CreateMessage(ctx context.Context, msg *model.Message) error
	// ListMessages はbeforeより前のメッセージを新しい順にlimit件返す。beforeがゼロ値なら最新から。
	ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]model.Message, error)
}

// NotificationRepository は通知の永続化インターフェース。
type NotificationRepository interface {
	// Create は通知を作成する。
	Create(ctx context.Context, n *model.Notification) error
	// ListByUser は通知を新しい順に返す。unreadOnlyがtrueなら未読のみ。
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)
	// MarkRead は通知を既読にする。ユーザーの通知でない場合はErrNotFoundを返す。
	MarkRead(ctx context.Context, id, userID string) error
	// MarkAllRead はユーザーの未読通知をすべて既読にし、更新件数を返す。
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
