package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/campus-admin-api/internal/models"
)

func TestCreateChatWithMembersInOneTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChatRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chats").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chat_members").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chat_members").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	chat := &models.Chat{Name: "Algorithms", CreatorID: "lec-1", CourseID: "cs-101", BatchID: "b-1"}
	require.NoError(t, repo.CreateWithMembers(context.Background(), chat, []string{"lec-1", "stu-1"}))
	assert.NotEmpty(t, chat.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMemberMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChatRepository(db)

	mock.ExpectExec("INSERT INTO chat_members").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.AddMember(context.Background(), "chat-1", "stu-1")
	assert.ErrorIs(t, err, ErrDuplicateMember)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsMember(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChatRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2)")).
		WithArgs("chat-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	member, err := repo.IsMember(context.Background(), "chat-1", "stu-1")
	require.NoError(t, err)
	assert.True(t, member)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMemberReportsMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChatRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chat_members WHERE chat_id = $1 AND user_id = $2")).
		WithArgs("chat-1", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.RemoveMember(context.Background(), "chat-1", "stu-1")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
