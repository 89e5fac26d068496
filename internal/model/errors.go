// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, project, team, post, todo, chat, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken          = "INVALID_TOKEN"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeNotProjectOwner       = "NOT_PROJECT_OWNER"
	ErrCodeNotTeamAdmin          = "NOT_TEAM_ADMIN"
	ErrCodeNotParticipant        = "NOT_PARTICIPANT"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeProjectNotFound       = "PROJECT_NOT_FOUND"
	ErrCodeApplicationNotFound   = "APPLICATION_NOT_FOUND"
	ErrCodeMemberNotFound        = "MEMBER_NOT_FOUND"
	ErrCodeTeamNotFound          = "TEAM_NOT_FOUND"
	ErrCodePostNotFound          = "POST_NOT_FOUND"
	ErrCodeCommentNotFound       = "COMMENT_NOT_FOUND"
	ErrCodeTodoNotFound          = "TODO_NOT_FOUND"
	ErrCodeConversationNotFound  = "CONVERSATION_NOT_FOUND"
	ErrCodeNotificationNotFound  = "NOTIFICATION_NOT_FOUND"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeAlreadyMember         = "ALREADY_MEMBER"
	ErrCodeAlreadyApplied        = "ALREADY_APPLIED"
	ErrCodeVoteConflict          = "VOTE_CONFLICT"
	ErrCodeInvalidDecision       = "INVALID_DECISION"
	ErrCodeDuplicateUser         = "DUPLICATE_USER"
	ErrCodeDuplicateName         = "DUPLICATE_NAME"
	ErrCodeOAuthEmailMissing     = "OAUTH_EMAIL_MISSING"
	ErrCodeInvalidURL            = "INVALID_URL"
	ErrCodeSSRFBlocked           = "SSRF_BLOCKED"
	ErrCodeStorageUnavailable    = "STORAGE_UNAVAILABLE"
	ErrCodeUnsupportedMediaType  = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeInternal              = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded     = "rate_limit_exceeded"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はユーザー名またはパスワード不一致のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewInvalidTokenError はアクセストークンが無効な場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "アクセストークンが無効か、有効期限が切れています。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewForbiddenError は操作権限がない場合のエラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", reason),
		Category: "auth",
		Action:   "作成者本人のみが実行できます。",
	}
}

// NewNotProjectOwnerError はプロジェクトオーナー以外が管理操作を行った場合のエラーを生成する。
func NewNotProjectOwnerError() *APIError {
	return &APIError{
		Code:     ErrCodeNotProjectOwner,
		Message:  "プロジェクトのオーナーのみが実行できる操作です。",
		Category: "project",
		Action:   "プロジェクトのオーナーに依頼してください。",
	}
}

// NewNotTeamAdminError はチーム管理者以外が管理操作を行った場合のエラーを生成する。
func NewNotTeamAdminError() *APIError {
	return &APIError{
		Code:     ErrCodeNotTeamAdmin,
		Message:  "チーム管理者のみが実行できる操作です。",
		Category: "team",
		Action:   "チーム管理者に依頼してください。",
	}
}

// NewNotParticipantError は会話の参加者以外がアクセスした場合のエラーを生成する。
func NewNotParticipantError() *APIError {
	return &APIError{
		Code:     ErrCodeNotParticipant,
		Message:  "この会話の参加者ではありません。",
		Category: "chat",
		Action:   "参加している会話を選択してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewProjectNotFoundError はプロジェクトが見つからない場合のエラーを生成する。
func NewProjectNotFoundError(projectID string) *APIError {
	return &APIError{
		Code:     ErrCodeProjectNotFound,
		Message:  fmt.Sprintf("指定されたプロジェクトが見つかりません: %s", projectID),
		Category: "project",
		Action:   "プロジェクトIDを確認してください。",
	}
}

// NewApplicationNotFoundError は参加申請が見つからない場合のエラーを生成する。
func NewApplicationNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  "参加申請が見つかりません。",
		Category: "project",
		Action:   "申請一覧を再読み込みしてください。",
	}
}

// NewMemberNotFoundError はメンバーが見つからない場合のエラーを生成する。
func NewMemberNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeMemberNotFound,
		Message:  "指定されたユーザーはメンバーではありません。",
		Category: "project",
		Action:   "メンバー一覧を確認してください。",
	}
}

// NewTeamNotFoundError はチームが見つからない場合のエラーを生成する。
func NewTeamNotFoundError(teamID string) *APIError {
	return &APIError{
		Code:     ErrCodeTeamNotFound,
		Message:  fmt.Sprintf("指定されたチームが見つかりません: %s", teamID),
		Category: "team",
		Action:   "チームIDを確認してください。",
	}
}

// NewPostNotFoundError は投稿が見つからない場合のエラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
		Category: "post",
		Action:   "投稿IDを確認してください。",
	}
}

// NewCommentNotFoundError はコメントが見つからない場合のエラーを生成する。
func NewCommentNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  "指定されたコメントが見つかりません。",
		Category: "project",
		Action:   "コメント一覧を再読み込みしてください。",
	}
}

// NewTodoNotFoundError はTODOが見つからない場合のエラーを生成する。
func NewTodoNotFoundError(todoID string) *APIError {
	return &APIError{
		Code:     ErrCodeTodoNotFound,
		Message:  fmt.Sprintf("指定されたTODOが見つかりません: %s", todoID),
		Category: "todo",
		Action:   "TODO IDを確認してください。",
	}
}

// NewConversationNotFoundError は会話が見つからない場合のエラーを生成する。
func NewConversationNotFoundError(conversationID string) *APIError {
	return &APIError{
		Code:     ErrCodeConversationNotFound,
		Message:  fmt.Sprintf("指定された会話が見つかりません: %s", conversationID),
		Category: "chat",
		Action:   "会話IDを確認してください。",
	}
}

// NewNotificationNotFoundError は通知が見つからない場合のエラーを生成する。
func NewNotificationNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotificationNotFound,
		Message:  "指定された通知が見つかりません。",
		Category: "notification",
		Action:   "通知一覧を再読み込みしてください。",
	}
}

// NewInvalidRequestError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewAlreadyMemberError は既にメンバーであるユーザーが申請・追加された場合のエラーを生成する。
func NewAlreadyMemberError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyMember,
		Message:  "既にメンバーです。",
		Category: "project",
		Action:   "メンバー一覧を確認してください。",
	}
}

// NewAlreadyAppliedError は既に申請済みの場合のエラーを生成する。
func NewAlreadyAppliedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyApplied,
		Message:  "既にこのプロジェクトへ参加申請しています。",
		Category: "project",
		Action:   "オーナーの判断をお待ちください。",
	}
}

// NewVoteConflictError は同じユーザーの投票が同時に作成された場合のエラーを生成する。
func NewVoteConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeVoteConflict,
		Message:  "投票が同時に更新されました。",
		Category: "project",
		Action:   "画面を更新してから再度お試しください。",
	}
}

// NewInvalidDecisionError は申請に対する判断が不正な場合のエラーを生成する。
func NewInvalidDecisionError(decision string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDecision,
		Message:  fmt.Sprintf("無効な判断です: %s", decision),
		Category: "validation",
		Action:   "decisionには accepted または rejected を指定してください。",
	}
}

// NewDuplicateUserError はユーザー名またはメールアドレスが登録済みの場合のエラーを生成する。
func NewDuplicateUserError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUser,
		Message:  fmt.Sprintf("この%sは既に登録されています。", field),
		Category: "auth",
		Action:   "別の値を入力するか、ログインしてください。",
	}
}

// NewDuplicateNameError は名前の重複エラーを生成する。
func NewDuplicateNameError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateName,
		Message:  fmt.Sprintf("同じ名前が既に存在します: %s", name),
		Category: "validation",
		Action:   "既存の項目を選択してください。",
	}
}

// NewOAuthEmailMissingError はIdPからメールアドレスを取得できなかった場合のエラーを生成する。
func NewOAuthEmailMissingError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeOAuthEmailMissing,
		Message:  fmt.Sprintf("%sアカウントからメールアドレスを取得できませんでした。", provider),
		Category: "auth",
		Action:   "IdP側でメールアドレスを公開するか、別の方法でログインしてください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewStorageUnavailableError はオブジェクトストレージが未設定の場合のエラーを生成する。
func NewStorageUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageUnavailable,
		Message:  "画像のアップロードは現在利用できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnsupportedMediaTypeError は画像以外のファイルがアップロードされた場合のエラーを生成する。
func NewUnsupportedMediaTypeError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedMediaType,
		Message:  fmt.Sprintf("対応していないファイル形式です: %s", contentType),
		Category: "validation",
		Action:   "PNG、JPEG、GIF、WebPのいずれかの画像を選択してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitExceededError はレート制限超過のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRouteNotFoundError は存在しないエンドポイントへのリクエストのエラーを生成する。
func NewRouteNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "指定されたリソースが見つかりません。",
		Category: "system",
		Action:   "URLを確認してください。",
	}
}
