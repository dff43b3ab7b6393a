package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

var eventRowColumns = []string{"id", "kind", "name", "description", "location", "date_start", "date_end", "capacity",
	"min_age", "max_age", "group_id", "allowed_person_types", "participants_enroll_state", "category",
	"default_participation_fee", "allow_one_time_participants", "main_coach_assignment_id", "updated_at"}

func TestEventFindByIDLoadsTrainingDays(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	start := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM events e WHERE e.id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).AddRow(
			int64(11), "training", "Plavání", "", "Bazén", start, start.AddDate(0, 3, 0), 10,
			nil, nil, nil, "{child}", "substitute", "swimming", nil, false, nil, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM training_weekdays WHERE event_id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"event_id", "weekday", "time_start", "time_end"}).
			AddRow(int64(11), int64(1), "17:00:00", "18:30:00").
			AddRow(int64(11), int64(3), "17:00:00", "18:30:00"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM event_position_assignments WHERE event_id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "position_id", "count"}).AddRow(int64(1), int64(11), int64(4), 2))

	event, err := repo.FindByID(context.Background(), 11)
	require.NoError(t, err)
	assert.True(t, event.IsTraining())
	assert.Equal(t, models.PersonTypeList{models.PersonTypeChild}, event.AllowedPersonTypes)
	require.Len(t, event.Days, 2)
	assert.Equal(t, time.Wednesday, event.Days[1].Weekday)
	assert.Equal(t, models.ClockTime{Hour: 18, Minute: 30}, event.Days[0].TimeEnd)
	assert.True(t, event.HeldWeekdays().Has(time.Monday))
	require.Len(t, event.Positions, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventFindByIDOneTimeSkipsDays(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM events e WHERE e.id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).AddRow(
			int64(3), "one_time", "Kurz", "", "", day, day, nil,
			nil, nil, nil, "{}", "approved", "course", 500, false, nil, time.Now()))
	mock.ExpectQuery("FROM event_position_assignments").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "position_id", "count"}))

	event, err := repo.FindByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, event.Days)
	assert.True(t, event.HasUnlimitedCapacity())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventSetMainCoachMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	id := int64(5)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET main_coach_assignment_id = $2 WHERE id = $1")).
		WithArgs(int64(99), id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetMainCoach(context.Background(), 99, &id)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEventReplaceDays(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectExec("DELETE FROM training_weekdays").
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO training_weekdays").
		WithArgs(int64(2), 2, "16:00:00", "17:00:00").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ReplaceDays(context.Background(), 2, []models.TrainingDay{{
		Weekday:   time.Tuesday,
		TimeStart: models.ClockTime{Hour: 16},
		TimeEnd:   models.ClockTime{Hour: 17},
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
