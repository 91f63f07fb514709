package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campushq/campus-admin-api/internal/models"
)

// ChatRepository provides persistence for chats, membership, messages and files.
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository creates the repository.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

const chatColumns = `c.id, c.name, c.creator_id, c.course_id, c.batch_id, c.module_id, c.created_at, c.updated_at,
co.name AS course_name, b.code AS batch_code, m.name AS module_name, u.full_name AS creator_name`

const chatJoins = `FROM chats c
JOIN courses co ON co.id = c.course_id
JOIN batches b ON b.id = c.batch_id
LEFT JOIN modules m ON m.id = c.module_id
JOIN users u ON u.id = c.creator_id`

// GetByID returns a chat with its scope names joined.
func (r *ChatRepository) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE c.id = $1`, chatColumns, chatJoins)
	var chat models.Chat
	if err := r.db.GetContext(ctx, &chat, query, id); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListAll returns every chat, newest first.
func (r *ChatRepository) ListAll(ctx context.Context) ([]models.Chat, error) {
	query := fmt.Sprintf(`SELECT %s %s ORDER BY c.created_at DESC`, chatColumns, chatJoins)
	var chats []models.Chat
	if err := r.db.SelectContext(ctx, &chats, query); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// ListByMember returns chats the user is an explicit member of.
func (r *ChatRepository) ListByMember(ctx context.Context, userID string) ([]models.Chat, error) {
	query := fmt.Sprintf(`SELECT %s %s
JOIN chat_members cm ON cm.chat_id = c.id
WHERE cm.user_id = $1
ORDER BY c.created_at DESC`, chatColumns, chatJoins)
	var chats []models.Chat
	if err := r.db.SelectContext(ctx, &chats, query, userID); err != nil {
		return nil, fmt.Errorf("list chats by member: %w", err)
	}
	return chats, nil
}

// CreateWithMembers inserts a chat and its initial membership snapshot in
// one transaction. The snapshot is final; roster changes never touch it.
func (r *ChatRepository) CreateWithMembers(ctx context.Context, chat *models.Chat, memberIDs []string) error {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	chat.CreatedAt = now
	chat.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create chat tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const chatInsert = `INSERT INTO chats (id, name, creator_id, course_id, batch_id, module_id, created_at, updated_at)
VALUES (:id, :name, :creator_id, :course_id, :batch_id, :module_id, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, chatInsert, chat); err != nil {
		return fmt.Errorf("create chat: %w", err)
	}

	const memberInsert = `INSERT INTO chat_members (chat_id, user_id, joined_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	for _, userID := range memberIDs {
		if _, err = tx.ExecContext(ctx, memberInsert, chat.ID, userID, now); err != nil {
			return fmt.Errorf("attach chat member: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create chat tx: %w", err)
	}
	return nil
}

// Delete removes a chat; membership, messages and files cascade.
func (r *ChatRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

// IsMember reports whether the user is in the chat's membership set.
func (r *ChatRepository) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, chatID, userID); err != nil {
		return false, fmt.Errorf("check chat membership: %w", err)
	}
	return exists, nil
}

// AddMember inserts a membership row. The unique constraint on
// (chat_id, user_id) is the backstop against concurrent duplicate adds;
// a violation surfaces as ErrDuplicateMember.
func (r *ChatRepository) AddMember(ctx context.Context, chatID, userID string) error {
	const query = `INSERT INTO chat_members (chat_id, user_id, joined_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, chatID, userID, time.Now().UTC()); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateMember
		}
		return fmt.Errorf("add chat member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership row, reporting whether one existed.
func (r *ChatRepository) RemoveMember(ctx context.Context, chatID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chat_members WHERE chat_id = $1 AND user_id = $2`, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("remove chat member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove chat member rows: %w", err)
	}
	return affected > 0, nil
}

// ListMembers returns the membership set with user names and roles.
func (r *ChatRepository) ListMembers(ctx context.Context, chatID string) ([]models.ChatMember, error) {
	const query = `SELECT cm.chat_id, cm.user_id, cm.joined_at, u.full_name, u.role
FROM chat_members cm
JOIN users u ON u.id = cm.user_id
WHERE cm.chat_id = $1
ORDER BY u.full_name`
	var members []models.ChatMember
	if err := r.db.SelectContext(ctx, &members, query, chatID); err != nil {
		return nil, fmt.Errorf("list chat members: %w", err)
	}
	return members, nil
}

// CountByMember returns how many chats the user belongs to.
func (r *ChatRepository) CountByMember(ctx context.Context, userID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM chat_members WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("count chats by member: %w", err)
	}
	return total, nil
}

// CountAll returns the total number of chats.
func (r *ChatRepository) CountAll(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM chats`); err != nil {
		return 0, fmt.Errorf("count chats: %w", err)
	}
	return total, nil
}

// CreateMessage inserts a message.
func (r *ChatRepository) CreateMessage(ctx context.Context, message *models.ChatMessage) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO chat_messages (id, chat_id, author_id, body, created_at) VALUES (:id, :chat_id, :author_id, :body, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, message); err != nil {
		return fmt.Errorf("create chat message: %w", err)
	}
	return nil
}

// GetMessage returns a single message by id.
func (r *ChatRepository) GetMessage(ctx context.Context, id string) (*models.ChatMessage, error) {
	const query = `SELECT id, chat_id, author_id, body, created_at FROM chat_messages WHERE id = $1`
	var message models.ChatMessage
	if err := r.db.GetContext(ctx, &message, query, id); err != nil {
		return nil, err
	}
	return &message, nil
}

// ListMessages returns the chat history, newest first.
func (r *ChatRepository) ListMessages(ctx context.Context, chatID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT cm.id, cm.chat_id, cm.author_id, cm.body, cm.created_at, u.full_name AS author_name
FROM chat_messages cm
JOIN users u ON u.id = cm.author_id
WHERE cm.chat_id = $1
ORDER BY cm.created_at DESC
LIMIT %d`, limit)
	var messages []models.ChatMessage
	if err := r.db.SelectContext(ctx, &messages, query, chatID); err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return messages, nil
}

// DeleteMessage removes a message permanently.
func (r *ChatRepository) DeleteMessage(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete chat message: %w", err)
	}
	return nil
}

// CreateFile records attachment metadata after the bytes are stored.
func (r *ChatRepository) CreateFile(ctx context.Context, file *models.ChatFile) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO chat_files (id, chat_id, uploaded_by, file_name, path, created_at) VALUES (:id, :chat_id, :uploaded_by, :file_name, :path, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, file); err != nil {
		return fmt.Errorf("create chat file: %w", err)
	}
	return nil
}

// GetFile returns attachment metadata by id.
func (r *ChatRepository) GetFile(ctx context.Context, id string) (*models.ChatFile, error) {
	const query = `SELECT id, chat_id, uploaded_by, file_name, path, created_at FROM chat_files WHERE id = $1`
	var file models.ChatFile
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		return nil, err
	}
	return &file, nil
}

// ListFiles returns attachment metadata for a chat.
func (r *ChatRepository) ListFiles(ctx context.Context, chatID string) ([]models.ChatFile, error) {
	const query = `SELECT cf.id, cf.chat_id, cf.uploaded_by, cf.file_name, cf.path, cf.created_at, u.full_name AS uploader_name
FROM chat_files cf
JOIN users u ON u.id = cf.uploaded_by
WHERE cf.chat_id = $1
ORDER BY cf.created_at DESC`
	var files []models.ChatFile
	if err := r.db.SelectContext(ctx, &files, query, chatID); err != nil {
		return nil, fmt.Errorf("list chat files: %w", err)
	}
	return files, nil
}

// DeleteFile removes attachment metadata.
func (r *ChatRepository) DeleteFile(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chat_files WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete chat file: %w", err)
	}
	return nil
}
