package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/campus-admin-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func reservationRows(now time.Time, ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "reserved_by", "resource_id", "start_time", "end_time", "purpose", "description", "course", "batch", "status", "created_at", "updated_at"})
	for _, id := range ids {
		rows.AddRow(id, "u-1", "room-1", now, now.Add(time.Hour), "Lecture", "Weekly lecture", nil, nil, string(models.ReservationApproved), now, now)
	}
	return rows
}

func TestFindApprovedOverlapHit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM reservations WHERE resource_id = \\$1 AND status = \\$2 AND start_time < \\$3 AND end_time > \\$4").
		WithArgs("room-1", string(models.ReservationApproved), now.Add(2*time.Hour), now).
		WillReturnRows(reservationRows(now, "res-1"))

	conflict, err := repo.FindApprovedOverlap(context.Background(), "room-1", now, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, "res-1", conflict.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindApprovedOverlapFreeSlot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM reservations WHERE resource_id = \\$1 AND status = \\$2").
		WillReturnRows(reservationRows(now))

	conflict, err := repo.FindApprovedOverlap(context.Background(), "room-1", now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, conflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReservationAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectExec("INSERT INTO reservations").WillReturnResult(sqlmock.NewResult(1, 1))

	reservation := &models.Reservation{
		ReservedBy: "u-1",
		ResourceID: "room-1",
		StartTime:  time.Now(),
		EndTime:    time.Now().Add(time.Hour),
		Purpose:    "Lecture",
		Status:     models.ReservationPending,
	}
	require.NoError(t, repo.Create(context.Background(), reservation))
	assert.NotEmpty(t, reservation.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveCommitsWhenSlotFree(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM resources WHERE id = $1 FOR UPDATE")).
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("room-1"))
	mock.ExpectQuery("SELECT (.+) FROM reservations WHERE resource_id = \\$1 AND status = \\$2 AND id <> \\$3").
		WillReturnRows(reservationRows(now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET status = $2, updated_at = $3 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	conflict, err := repo.Approve(context.Background(), &models.Reservation{
		ID: "res-1", ResourceID: "room-1", StartTime: now, EndTime: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Nil(t, conflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveRollsBackOnConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM resources WHERE id = $1 FOR UPDATE")).
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("room-1"))
	mock.ExpectQuery("SELECT (.+) FROM reservations WHERE resource_id = \\$1 AND status = \\$2 AND id <> \\$3").
		WillReturnRows(reservationRows(now, "res-2"))
	mock.ExpectRollback()

	conflict, err := repo.Approve(context.Background(), &models.Reservation{
		ID: "res-1", ResourceID: "room-1", StartTime: now, EndTime: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, "res-2", conflict.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
