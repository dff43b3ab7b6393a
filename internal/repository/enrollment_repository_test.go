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

func TestCountApprovedByWeekday(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM participant_enrollments, UNNEST(weekdays) AS w")).
		WithArgs(int64(4), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"weekday", "total"}).AddRow(1, 3).AddRow(3, 1))

	counts, err := repo.CountApprovedByWeekday(context.Background(), 4, 0)
	require.NoError(t, err)
	assert.Equal(t, map[time.Weekday]int{time.Monday: 3, time.Wednesday: 1}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStateOrdersOldestFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "event_id", "person_id", "state", "created_at", "agreed_participation_fee", "weekdays", "transaction_id"}).
		AddRow(int64(1), int64(4), int64(10), "substitute", created, nil, "{1,3}", nil).
		AddRow(int64(2), int64(4), int64(11), "substitute", created.Add(time.Hour), nil, "{}", nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE pe.event_id = $1 AND pe.state = $2 ORDER BY pe.created_at, pe.id")).
		WithArgs(int64(4), "substitute").
		WillReturnRows(rows)

	enrollments, err := repo.ListByState(context.Background(), 4, models.EnrollmentSubstitute)
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	assert.Equal(t, models.WeekdaySet{time.Monday, time.Wednesday}, enrollments[0].Weekdays)
	assert.Empty(t, enrollments[1].Weekdays)
}

func TestEnrollmentCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("INSERT INTO participant_enrollments").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(15)))

	e := &models.Enrollment{EventID: 1, PersonID: 2, State: models.EnrollmentWaiting, CreatedAt: time.Now()}
	require.NoError(t, repo.Create(context.Background(), e))
	assert.Equal(t, int64(15), e.ID)
}
