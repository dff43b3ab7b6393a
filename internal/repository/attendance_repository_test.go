package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

func TestMarkParticipantsUnexcusedOnlyTouchesPresent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE occurrence_id = $1 AND person_id = ANY($2) AND state = 'present'")).
		WithArgs(int64(6), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.MarkParticipantsUnexcused(context.Background(), 6, []int64{1, 2}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetUnexcusedTouchesBothTables(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE occurrence_participants SET state = 'present'")).
		WithArgs(int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE occurrence_coaches SET state = 'present'")).
		WithArgs(int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.ResetUnexcused(context.Background(), 6))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantHistoryNewestFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	d1 := time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY o.date DESC, o.id DESC")).
		WithArgs(int64(2), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"occurrence_id", "date", "state"}).
			AddRow(int64(21), d1, "unexcused").
			AddRow(int64(20), d1.AddDate(0, 0, -7), "present"))

	rows, err := repo.ParticipantHistory(context.Background(), 2, 9)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.AttendanceUnexcused, rows[0].State)
}

func TestInsertCoachReturnsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO occurrence_coaches")).
		WithArgs(int64(6), int64(3), int64(4), "present", true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(70)))

	row := &models.CoachAttendance{OccurrenceID: 6, PersonID: 3, PositionID: 4, State: models.AttendancePresent, OneTime: true}
	require.NoError(t, repo.InsertCoach(context.Background(), row))
	assert.Equal(t, int64(70), row.ID)
}
