package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/campus-admin-api/internal/models"
	"github.com/campushq/campus-admin-api/internal/repository"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
)

type mockChatRepo struct {
	chats       map[string]*models.Chat
	members     map[string]map[string]bool
	messages    map[string]*models.ChatMessage
	files       map[string]*models.ChatFile
	addErr      error
	createdWith []string
	deletedMsg  []string
}

func newMockChatRepo() *mockChatRepo {
	return &mockChatRepo{
		chats:    map[string]*models.Chat{},
		members:  map[string]map[string]bool{},
		messages: map[string]*models.ChatMessage{},
		files:    map[string]*models.ChatFile{},
	}
}

func (m *mockChatRepo) seedChat(chat *models.Chat, memberIDs ...string) {
	m.chats[chat.ID] = chat
	set := map[string]bool{}
	for _, id := range memberIDs {
		set[id] = true
	}
	m.members[chat.ID] = set
}

func (m *mockChatRepo) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	if c, ok := m.chats[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockChatRepo) ListAll(ctx context.Context) ([]models.Chat, error) {
	var out []models.Chat
	for _, c := range m.chats {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockChatRepo) ListByMember(ctx context.Context, userID string) ([]models.Chat, error) {
	var out []models.Chat
	for id, c := range m.chats {
		if m.members[id][userID] {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockChatRepo) CreateWithMembers(ctx context.Context, chat *models.Chat, memberIDs []string) error {
	chat.ID = "chat-new"
	m.createdWith = memberIDs
	m.seedChat(chat, memberIDs...)
	return nil
}

func (m *mockChatRepo) Delete(ctx context.Context, id string) error {
	delete(m.chats, id)
	return nil
}

func (m *mockChatRepo) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	return m.members[chatID][userID], nil
}

func (m *mockChatRepo) AddMember(ctx context.Context, chatID, userID string) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.members[chatID][userID] = true
	return nil
}

func (m *mockChatRepo) RemoveMember(ctx context.Context, chatID, userID string) (bool, error) {
	if !m.members[chatID][userID] {
		return false, nil
	}
	delete(m.members[chatID], userID)
	return true, nil
}

func (m *mockChatRepo) ListMembers(ctx context.Context, chatID string) ([]models.ChatMember, error) {
	var out []models.ChatMember
	for id := range m.members[chatID] {
		out = append(out, models.ChatMember{ChatID: chatID, UserID: id})
	}
	return out, nil
}

func (m *mockChatRepo) CreateMessage(ctx context.Context, message *models.ChatMessage) error {
	message.ID = "msg-new"
	m.messages[message.ID] = message
	return nil
}

func (m *mockChatRepo) GetMessage(ctx context.Context, id string) (*models.ChatMessage, error) {
	if msg, ok := m.messages[id]; ok {
		return msg, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockChatRepo) ListMessages(ctx context.Context, chatID string, limit int) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (m *mockChatRepo) DeleteMessage(ctx context.Context, id string) error {
	m.deletedMsg = append(m.deletedMsg, id)
	delete(m.messages, id)
	return nil
}

func (m *mockChatRepo) CreateFile(ctx context.Context, file *models.ChatFile) error {
	file.ID = "file-new"
	m.files[file.ID] = file
	return nil
}

func (m *mockChatRepo) GetFile(ctx context.Context, id string) (*models.ChatFile, error) {
	if f, ok := m.files[id]; ok {
		return f, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockChatRepo) ListFiles(ctx context.Context, chatID string) ([]models.ChatFile, error) {
	var out []models.ChatFile
	for _, f := range m.files {
		if f.ChatID == chatID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *mockChatRepo) DeleteFile(ctx context.Context, id string) error {
	delete(m.files, id)
	return nil
}

type mockRosterRepo struct {
	assigned            bool
	courseBatchStudents []string
	moduleStudents      []string
	moduleLecturers     []string
}

func (m *mockRosterRepo) IsLecturerAssigned(ctx context.Context, lecturerID, courseID, batchID string, moduleID *string) (bool, error) {
	return m.assigned, nil
}

func (m *mockRosterRepo) StudentIDsForCourseBatch(ctx context.Context, courseID, batchID string) ([]string, error) {
	return m.courseBatchStudents, nil
}

func (m *mockRosterRepo) StudentIDsForModule(ctx context.Context, courseID, batchID, moduleID string) ([]string, error) {
	return m.moduleStudents, nil
}

func (m *mockRosterRepo) LecturerIDsForModule(ctx context.Context, courseID, batchID, moduleID string) ([]string, error) {
	return m.moduleLecturers, nil
}

type recordingNotifier struct {
	posted [][3]string
}

func (n *recordingNotifier) MessagePosted(chatID, messageID, authorID string) {
	n.posted = append(n.posted, [3]string{chatID, messageID, authorID})
}

func newChatService(repo *mockChatRepo, roster *mockRosterRepo, notifier *recordingNotifier) *ChatService {
	var n chatNotifier
	if notifier != nil {
		n = notifier
	}
	return NewChatService(repo, roster, testUsers(), nil, n, nil, validator.New(), zap.NewNop())
}

func TestChatCreateModuleScopedSnapshot(t *testing.T) {
	repo := newMockChatRepo()
	roster := &mockRosterRepo{
		assigned:        true,
		moduleStudents:  []string{"student", "intruder"},
		moduleLecturers: []string{"lecturer", "lecturer-2"},
	}
	svc := newChatService(repo, roster, nil)

	moduleID := "mod-1"
	chat, err := svc.Create(context.Background(), CreateChatRequest{
		ActorID: "lecturer", Name: "Algorithms Q&A",
		CourseID: "cs-101", BatchID: "2026-fall", ModuleID: &moduleID,
	})
	require.NoError(t, err)
	assert.Equal(t, "lecturer", chat.CreatorID)

	got := append([]string(nil), repo.createdWith...)
	sort.Strings(got)
	// Creator already present via the lecturer assignment; no duplicate entry.
	assert.Equal(t, []string{"intruder", "lecturer", "lecturer-2", "student"}, got)
}

func TestChatCreateModuleLessTakesWholeBatch(t *testing.T) {
	repo := newMockChatRepo()
	roster := &mockRosterRepo{
		assigned:            true,
		courseBatchStudents: []string{"student", "intruder"},
	}
	svc := newChatService(repo, roster, nil)

	_, err := svc.Create(context.Background(), CreateChatRequest{
		ActorID: "lecturer", Name: "Batch Announcements",
		CourseID: "cs-101", BatchID: "2026-fall",
	})
	require.NoError(t, err)

	got := append([]string(nil), repo.createdWith...)
	sort.Strings(got)
	assert.Equal(t, []string{"intruder", "lecturer", "student"}, got)
}

func TestChatCreateLecturerMustBeAssigned(t *testing.T) {
	repo := newMockChatRepo()
	roster := &mockRosterRepo{assigned: false}
	svc := newChatService(repo, roster, nil)

	_, err := svc.Create(context.Background(), CreateChatRequest{
		ActorID: "lecturer", Name: "Rogue Chat",
		CourseID: "cs-101", BatchID: "2026-fall",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestChatCreateStudentForbidden(t *testing.T) {
	repo := newMockChatRepo()
	svc := newChatService(repo, &mockRosterRepo{assigned: true}, nil)

	_, err := svc.Create(context.Background(), CreateChatRequest{
		ActorID: "student", Name: "Study Group",
		CourseID: "cs-101", BatchID: "2026-fall",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestChatListVisible(t *testing.T) {
	repo := newMockChatRepo()
	repo.seedChat(&models.Chat{ID: "chat-1", CreatorID: "lecturer"}, "lecturer", "student")
	repo.seedChat(&models.Chat{ID: "chat-2", CreatorID: "lecturer-2"}, "lecturer-2")
	svc := newChatService(repo, &mockRosterRepo{}, nil)

	all, err := svc.ListVisible(context.Background(), "it")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := svc.ListVisible(context.Background(), "student")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "chat-1", mine[0].ID)
}

func TestChatPostMessageNotifiesAfterInsert(t *testing.T) {
	repo := newMockChatRepo()
	repo.seedChat(&models.Chat{ID: "chat-1", CreatorID: "lecturer"}, "lecturer", "student")
	notifier := &recordingNotifier{}
	svc := newChatService(repo, &mockRosterRepo{}, notifier)

	msg, err := svc.PostMessage(context.Background(), PostMessageRequest{
		ActorID: "student", ChatID: "chat-1", Body: "When is the deadline?",
	})
	require.NoError(t, err)
	require.Len(t, notifier.posted, 1)
	assert.Equal(t, [3]string{"chat-1", msg.ID, "student"}, notifier.posted[0])
}

func TestChatPostMessageNonMemberForbidden(t *testing.T) {
	repo := newMockChatRepo()
	repo.seedChat(&models.Chat{ID: "chat-1", CreatorID: "lecturer"}, "lecturer")
	svc := newChatService(repo, &mockRosterRepo{}, nil)

	_, err := svc.PostMessage(context.Background(), PostMessageRequest{
		ActorID: "intruder", ChatID: "chat-1", Body: "Hello",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestChatPostMessageBlankRejected(t *testing.T) {
	repo := newMockChatRepo()
	repo.seedChat(&models.Chat{ID: "chat-1", CreatorID: "lecturer"}, "lecturer", "student")
	svc := newChatService(repo, &mockRosterRepo{}, nil)

	_, err := svc.PostMessage(context.Background(), PostMessageRequest{
		ActorID: "student", ChatID: "chat-1", Body: "   ",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestChatDeleteMessagePermissions(t *testing.T) {
	cases := []struct {
		name    string
		actor   string
		allowed bool
	}{
		{"author", "student", true},
		{"chat creator", "lecturer", true},
		{"admin", "admin", true},
		{"it staff", "it", true},
		{"other member", "intruder", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockChatRepo()
			repo.seedChat(&models.Chat{ID: "chat-1", CreatorID: "lecturer"}, "lecturer", "student", "intruder")
			repo.messages["msg-1"] = &models.ChatMessage{ID: "msg-1", ChatID: "chat-1", AuthorID: "student"}
			svc := newChatService(repo, &mockRosterRepo{}, nil)

			err := svc.DeleteMessage(context.Background(), tc.actor, "chat-1", "msg-1")
			if tc.allowed {
				require.NoError(t, err)
				assert.Contains(t, repo.deletedMsg, "msg-1")
			} else {
				require.Error(t, err)
				assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
			}
		})
	}
}

func TestChatDeleteMessageWrongChat(t *testing.T) {
	repo := newMockChatRepo()
	repo.seedChat(&models.Chat{ID: "chat-1", CreatorID: "lecturer"}, "lecturer")
	repo.seedChat(&models.Chat{ID: "chat-2", CreatorID: "lecturer-2"}, "lecturer-2")
	repo.messages["msg-1"] = &models.ChatMessage{ID: "msg-1", ChatID: "chat-2", AuthorID: "lecturer-2"}
	svc := newChatService(repo, &mockRosterRepo{}, nil)

	err := svc.DeleteMessage(context.Background(), "admin", "chat-1", "msg-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestChatAddMemberDuplicate(t *testing.T) {
	repo := newMockChatRepo()
	repo.seedChat(&models.Chat{ID: "chat-1", CreatorID: "lecturer"}, "lecturer", "student")
	svc := newChatService(repo, &mockRosterRepo{}, nil)

	err := svc.AddMember(context.Background(), "lecturer", "chat-1", "student")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyMember.Code, appErrors.FromError(err).Code)
}

func TestChatAddMemberConcurrentDuplicateMapped(t *testing.T) {
	repo := newMockChatRepo()
	repo.seedChat(&models.Chat{ID: "chat-1", CreatorID: "lecturer"}, "lecturer")
	repo.addErr = repository.ErrDuplicateMember
	svc := newChatService(repo, &mockRosterRepo{}, nil)

	err := svc.AddMember(context.Background(), "lecturer", "chat-1", "student")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyMember.Code, appErrors.FromError(err).Code)
}

func TestChatAddMemberOnlyCreatorOrStaff(t *testing.T) {
	repo := newMockChatRepo()
	repo.seedChat(&models.Chat{ID: "chat-1", CreatorID: "lecturer"}, "lecturer", "student")
	svc := newChatService(repo, &mockRosterRepo{}, nil)

	err := svc.AddMember(context.Background(), "student", "chat-1", "intruder")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.AddMember(context.Background(), "it", "chat-1", "intruder"))
}

func TestChatRemoveMemberNotMember(t *testing.T) {
	repo := newMockChatRepo()
	repo.seedChat(&models.Chat{ID: "chat-1", CreatorID: "lecturer"}, "lecturer")
	svc := newChatService(repo, &mockRosterRepo{}, nil)

	err := svc.RemoveMember(context.Background(), "lecturer", "chat-1", "student")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotMember.Code, appErrors.FromError(err).Code)
}

func TestChatDeleteCreatorOrStaff(t *testing.T) {
	for _, actor := range []string{"lecturer", "admin", "it"} {
		repo := newMockChatRepo()
		repo.seedChat(&models.Chat{ID: "chat-1", CreatorID: "lecturer"}, "lecturer", "student")
		svc := newChatService(repo, &mockRosterRepo{}, nil)
		require.NoError(t, svc.Delete(context.Background(), actor, "chat-1"), "actor %s", actor)
	}

	repo := newMockChatRepo()
	repo.seedChat(&models.Chat{ID: "chat-1", CreatorID: "lecturer"}, "lecturer", "student")
	svc := newChatService(repo, &mockRosterRepo{}, nil)
	err := svc.Delete(context.Background(), "student", "chat-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
