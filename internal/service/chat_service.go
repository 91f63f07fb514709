package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/campus-admin-api/internal/authz"
	"github.com/campushq/campus-admin-api/internal/models"
	"github.com/campushq/campus-admin-api/internal/repository"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
)

type chatRepository interface {
	GetByID(ctx context.Context, id string) (*models.Chat, error)
	ListAll(ctx context.Context) ([]models.Chat, error)
	ListByMember(ctx context.Context, userID string) ([]models.Chat, error)
	CreateWithMembers(ctx context.Context, chat *models.Chat, memberIDs []string) error
	Delete(ctx context.Context, id string) error
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
	AddMember(ctx context.Context, chatID, userID string) error
	RemoveMember(ctx context.Context, chatID, userID string) (bool, error)
	ListMembers(ctx context.Context, chatID string) ([]models.ChatMember, error)
	CreateMessage(ctx context.Context, message *models.ChatMessage) error
	GetMessage(ctx context.Context, id string) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]models.ChatMessage, error)
	DeleteMessage(ctx context.Context, id string) error
	CreateFile(ctx context.Context, file *models.ChatFile) error
	GetFile(ctx context.Context, id string) (*models.ChatFile, error)
	ListFiles(ctx context.Context, chatID string) ([]models.ChatFile, error)
	DeleteFile(ctx context.Context, id string) error
}

type chatRosterRepository interface {
	IsLecturerAssigned(ctx context.Context, lecturerID, courseID, batchID string, moduleID *string) (bool, error)
	StudentIDsForCourseBatch(ctx context.Context, courseID, batchID string) ([]string, error)
	StudentIDsForModule(ctx context.Context, courseID, batchID, moduleID string) ([]string, error)
	LecturerIDsForModule(ctx context.Context, courseID, batchID, moduleID string) ([]string, error)
}

type chatActorRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type chatFileStore interface {
	Save(prefix, originalName string, r io.Reader) (string, error)
	Delete(rel string) error
}

type chatNotifier interface {
	MessagePosted(chatID, messageID, authorID string)
}

// ChatService resolves chat visibility and membership and enforces
// moderation permissions.
type ChatService struct {
	repo      chatRepository
	roster    chatRosterRepository
	users     chatActorRepository
	files     chatFileStore
	notifier  chatNotifier
	dash      dashboardInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewChatService constructs the service. files, notifier and dash may be
// nil in tests; file upload, fanout and cache invalidation become no-ops.
func NewChatService(repo chatRepository, roster chatRosterRepository, users chatActorRepository, files chatFileStore, notifier chatNotifier, dash dashboardInvalidator, validate *validator.Validate, logger *zap.Logger) *ChatService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{repo: repo, roster: roster, users: users, files: files, notifier: notifier, dash: dash, validator: validate, logger: logger}
}

// CreateChatRequest describes a chat creation payload.
type CreateChatRequest struct {
	ActorID  string  `json:"-" validate:"required"`
	Name     string  `json:"name" validate:"required,max=255"`
	CourseID string  `json:"course_id" validate:"required"`
	BatchID  string  `json:"batch_id" validate:"required"`
	ModuleID *string `json:"module_id,omitempty"`
}

// PostMessageRequest describes a message payload.
type PostMessageRequest struct {
	ActorID string `json:"-" validate:"required"`
	ChatID  string `json:"-" validate:"required"`
	Body    string `json:"body" validate:"required,max=5000"`
}

// Create validates the creator's teaching assignment and persists the chat
// with its membership snapshot. The snapshot is computed once, at creation:
// later roster changes never alter who is in the chat.
func (s *ChatService) Create(ctx context.Context, req CreateChatRequest) (*models.Chat, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid chat payload")
	}

	actor, err := s.loadActor(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	if !authz.Can(actor.Role, authz.ChatCreate, authz.Subject{ActorID: actor.ID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to create chats")
	}
	if actor.Role == models.RoleLecturer {
		assigned, err := s.roster.IsLecturerAssigned(ctx, actor.ID, req.CourseID, req.BatchID, req.ModuleID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teaching assignment")
		}
		if !assigned {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not assigned to this course, batch and module")
		}
	}

	memberIDs, err := s.resolveMembers(ctx, req.CourseID, req.BatchID, req.ModuleID)
	if err != nil {
		return nil, err
	}
	memberIDs = appendUnique(memberIDs, actor.ID)

	chat := &models.Chat{
		Name:      req.Name,
		CreatorID: actor.ID,
		CourseID:  req.CourseID,
		BatchID:   req.BatchID,
		ModuleID:  req.ModuleID,
	}
	if err := s.repo.CreateWithMembers(ctx, chat, memberIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create chat")
	}
	s.logger.Info("chat created",
		zap.String("chat_id", chat.ID),
		zap.String("creator_id", actor.ID),
		zap.Int("members", len(memberIDs)))
	if s.dash != nil {
		s.dash.Invalidate(ctx)
	}
	return chat, nil
}

// resolveMembers computes the initial membership snapshot. Module-scoped
// chats take the union of students enrolled in course+batch who hold the
// module assignment and lecturers assigned to the exact triple; module-less
// chats take every student enrolled in course+batch.
func (s *ChatService) resolveMembers(ctx context.Context, courseID, batchID string, moduleID *string) ([]string, error) {
	if moduleID == nil {
		students, err := s.roster.StudentIDsForCourseBatch(ctx, courseID, batchID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrolled students")
		}
		return students, nil
	}
	students, err := s.roster.StudentIDsForModule(ctx, courseID, batchID, *moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve module students")
	}
	lecturers, err := s.roster.LecturerIDsForModule(ctx, courseID, batchID, *moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve module lecturers")
	}
	members := make([]string, 0, len(students)+len(lecturers))
	members = append(members, students...)
	for _, id := range lecturers {
		members = appendUnique(members, id)
	}
	return members, nil
}

// ListVisible returns the chats an actor may see: staff see all, everyone
// else sees the chats they are an explicit member of.
func (s *ChatService) ListVisible(ctx context.Context, actorID string) ([]models.Chat, error) {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if authz.Can(actor.Role, authz.ChatViewAll, authz.Subject{ActorID: actor.ID}) {
		chats, err := s.repo.ListAll(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list chats")
		}
		return chats, nil
	}
	chats, err := s.repo.ListByMember(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list chats")
	}
	return chats, nil
}

// Get returns a chat with its recent messages and files, provided the actor
// has access.
func (s *ChatService) Get(ctx context.Context, actorID, chatID string) (*models.Chat, []models.ChatMessage, []models.ChatFile, error) {
	chat, _, err := s.requireAccess(ctx, actorID, chatID)
	if err != nil {
		return nil, nil, nil, err
	}
	messages, err := s.repo.ListMessages(ctx, chat.ID, 100)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	files, err := s.repo.ListFiles(ctx, chat.ID)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list files")
	}
	return chat, messages, files, nil
}

// Delete removes a chat. Allowed for the chat creator or staff.
func (s *ChatService) Delete(ctx context.Context, actorID, chatID string) error {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return err
	}
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !authz.Can(actor.Role, authz.ChatDelete, authz.Subject{ActorID: actor.ID, CreatorID: chat.CreatorID}) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this chat")
	}
	if err := s.repo.Delete(ctx, chat.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete chat")
	}
	if s.dash != nil {
		s.dash.Invalidate(ctx)
	}
	return nil
}

// PostMessage stores a message and enqueues notification fanout after the
// insert is durable.
func (s *ChatService) PostMessage(ctx context.Context, req PostMessageRequest) (*models.ChatMessage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message body must not be blank")
	}

	chat, actor, err := s.requireAccess(ctx, req.ActorID, req.ChatID)
	if err != nil {
		return nil, err
	}

	message := &models.ChatMessage{
		ChatID:   chat.ID,
		AuthorID: actor.ID,
		Body:     req.Body,
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store message")
	}
	if s.notifier != nil {
		s.notifier.MessagePosted(chat.ID, message.ID, actor.ID)
	}
	return message, nil
}

// DeleteMessage removes a message. Allowed for the author, the chat
// creator, or staff.
func (s *ChatService) DeleteMessage(ctx context.Context, actorID, chatID, messageID string) error {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return err
	}
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	message, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}
	if message.ChatID != chat.ID {
		return appErrors.Clone(appErrors.ErrNotFound, "message does not belong to this chat")
	}
	if !authz.Can(actor.Role, authz.MessageDelete, authz.Subject{ActorID: actor.ID, OwnerID: message.AuthorID, CreatorID: chat.CreatorID}) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this message")
	}
	if err := s.repo.DeleteMessage(ctx, message.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete message")
	}
	return nil
}

// ListMembers returns the chat membership, provided the actor has access.
func (s *ChatService) ListMembers(ctx context.Context, actorID, chatID string) ([]models.ChatMember, error) {
	chat, _, err := s.requireAccess(ctx, actorID, chatID)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.ListMembers(ctx, chat.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list members")
	}
	return members, nil
}

// AddMember adds a user to the chat. The pre-check makes duplicate adds an
// explicit error rather than a silent no-op; the unique constraint in the
// membership table backstops concurrent requests.
func (s *ChatService) AddMember(ctx context.Context, actorID, chatID, userID string) error {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return err
	}
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !authz.Can(actor.Role, authz.ChatManageMembers, authz.Subject{ActorID: actor.ID, CreatorID: chat.CreatorID}) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage members of this chat")
	}
	if _, err := s.loadActor(ctx, userID); err != nil {
		return err
	}

	member, err := s.repo.IsMember(ctx, chat.ID, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if member {
		return appErrors.Clone(appErrors.ErrAlreadyMember, "")
	}
	if err := s.repo.AddMember(ctx, chat.ID, userID); err != nil {
		if errors.Is(err, repository.ErrDuplicateMember) {
			return appErrors.Clone(appErrors.ErrAlreadyMember, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add member")
	}
	return nil
}

// RemoveMember removes a user from the chat, failing when they are not a member.
func (s *ChatService) RemoveMember(ctx context.Context, actorID, chatID, userID string) error {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return err
	}
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !authz.Can(actor.Role, authz.ChatManageMembers, authz.Subject{ActorID: actor.ID, CreatorID: chat.CreatorID}) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage members of this chat")
	}

	member, err := s.repo.IsMember(ctx, chat.ID, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return appErrors.Clone(appErrors.ErrNotMember, "")
	}
	removed, err := s.repo.RemoveMember(ctx, chat.ID, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove member")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotMember, "")
	}
	return nil
}

// UploadFile stores attachment bytes and records the metadata, provided the
// actor has access to the chat.
func (s *ChatService) UploadFile(ctx context.Context, actorID, chatID, fileName string, r io.Reader) (*models.ChatFile, error) {
	chat, actor, err := s.requireAccess(ctx, actorID, chatID)
	if err != nil {
		return nil, err
	}
	if s.files == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "file storage is not configured")
	}
	path, err := s.files.Save("chat_files", fileName, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to store file")
	}

	file := &models.ChatFile{
		ChatID:     chat.ID,
		UploadedBy: actor.ID,
		FileName:   fileName,
		Path:       path,
	}
	if err := s.repo.CreateFile(ctx, file); err != nil {
		_ = s.files.Delete(path)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record file")
	}
	return file, nil
}

// DeleteFile removes attachment metadata and the stored bytes. Allowed for
// the chat creator or staff.
func (s *ChatService) DeleteFile(ctx context.Context, actorID, chatID, fileID string) error {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return err
	}
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	file, err := s.repo.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load file")
	}
	if file.ChatID != chat.ID {
		return appErrors.Clone(appErrors.ErrNotFound, "file does not belong to this chat")
	}
	if !authz.Can(actor.Role, authz.FileDelete, authz.Subject{ActorID: actor.ID, CreatorID: chat.CreatorID}) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this file")
	}
	if err := s.repo.DeleteFile(ctx, file.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete file")
	}
	if s.files != nil {
		if err := s.files.Delete(file.Path); err != nil {
			s.logger.Warn("failed to remove stored file", zap.String("path", file.Path), zap.Error(err))
		}
	}
	return nil
}

// requireAccess loads the chat and verifies the actor may interact with it:
// staff always, everyone else only when they are a member.
func (s *ChatService) requireAccess(ctx context.Context, actorID, chatID string) (*models.Chat, *models.User, error) {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	if authz.Can(actor.Role, authz.ChatViewAll, authz.Subject{ActorID: actor.ID}) {
		return chat, actor, nil
	}
	member, err := s.repo.IsMember(ctx, chat.ID, actor.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not a member of this chat")
	}
	return chat, actor, nil
}

func (s *ChatService) loadActor(ctx context.Context, id string) (*models.User, error) {
	actor, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return actor, nil
}

func (s *ChatService) loadChat(ctx context.Context, id string) (*models.Chat, error) {
	chat, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "chat not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chat")
	}
	return chat, nil
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
