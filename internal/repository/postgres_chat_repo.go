package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/connectin/internal/model"
)

// PostgresChatRepo はPostgreSQLを使用したチャットリポジトリ。
type PostgresChatRepo struct {
	db *sql.DB
}

// NewPostgresChatRepo はPostgresChatRepoを生成する。
func NewPostgresChatRepo(db *sql.DB) *PostgresChatRepo {
	return &PostgresChatRepo{db: db}
}

// CreateConversation は会話と参加者を同一トランザクションで作成する。
func (r *PostgresChatRepo) CreateConversation(ctx context.Context, conv *model.Conversation, participantIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, name, is_group, created_at) VALUES ($1, $2, $3, $4)`,
		conv.ID, conv.Name, conv.IsGroup, conv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	if err := insertLinks(ctx, tx, "conversation_participants", "conversation_id", "user_id", conv.ID, participantIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindConversation は指定IDの会話を取得する。見つからない場合はnilを返す。
func (r *PostgresChatRepo) FindConversation(ctx context.Context, id string) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, is_group, created_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return c, nil
}

// FindDirectConversation は2人だけが参加する1対1の会話を検索する。
func (r *PostgresChatRepo) FindDirectConversation(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT c.id, c.name, c.is_group, c.created_at
		 FROM conversations c
		 WHERE c.is_group = false
		   AND EXISTS (SELECT 1 FROM conversation_participants p WHERE p.conversation_id = c.id AND p.user_id = $1)
		   AND EXISTS (SELECT 1 FROM conversation_participants p WHERE p.conversation_id = c.id AND p.user_id = $2)
		   AND (SELECT COUNT(*) FROM conversation_participants p WHERE p.conversation_id = c.id) = 2
		 ORDER BY c.created_at
		 LIMIT 1`,
		userA, userB,
	).Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find direct conversation: %w", err)
	}
	return c, nil
}

// IsParticipant はユーザーが会話の参加者かを返す。
func (r *PostgresChatRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var found bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return found, nil
}

// ListConversations はユーザーの会話を最新メッセージ付きで最終更新の新しい順に返す。
func (r *PostgresChatRepo) ListConversations(ctx context.Context, userID string) ([]model.ConversationDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.is_group, c.created_at,
		        m.id, m.sender_id, m.content, m.created_at
		 FROM conversations c
		 JOIN conversation_participants me ON me.conversation_id = c.id AND me.user_id = $1
		 LEFT JOIN LATERAL (
		     SELECT id, sender_id, content, created_at
		     FROM messages
		     WHERE conversation_id = c.id
		     ORDER BY created_at DESC
		     LIMIT 1
		 ) m ON true
		 ORDER BY COALESCE(m.created_at, c.created_at) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	convs := []model.ConversationDetail{}
	for rows.Next() {
		var d model.ConversationDetail
		var msgID, senderID, content sql.NullString
		var sentAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.Name, &d.IsGroup, &d.CreatedAt, &msgID, &senderID, &content, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if msgID.Valid {
			d.LastMessage = &model.Message{
				ID:             msgID.String,
				ConversationID: d.ID,
				SenderID:       senderID.String,
				Content:        content.String,
				CreatedAt:      sentAt.Time,
			}
		}
		convs = append(convs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	ids := make([]string, len(convs))
	for i := range convs {
		ids[i] = convs[i].ID
	}
	participants, err := loadLinkedUsers(ctx, r.db, "conversation_participants", "conversation_id", "joined_at", ids)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		convs[i].Participants = nonNilUsers(participants[convs[i].ID])
	}
	return convs, nil
}

// CreateMessage はメッセージを作成する。
func (r *PostgresChatRepo) CreateMessage(ctx context.Context, msg *model.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListMessages はbeforeより前のメッセージを新しい順にlimit件返す。
func (r *PostgresChatRepo) ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]model.Message, error) {
	var beforeArg any
	if !before.IsZero() {
		beforeArg = before
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, content, created_at
		 FROM messages
		 WHERE conversation_id = $1
		   AND ($2::timestamptz IS NULL OR created_at < $2)
		 ORDER BY created_at DESC, id
		 LIMIT $3`,
		conversationID, beforeArg, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var m model.Message
		var sender sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.SenderID = sender.String
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// compile-time interface check
var _ ChatRepository = (*PostgresChatRepo)(nil)
