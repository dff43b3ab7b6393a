package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

func TestMarkExpiryEmailSentLatchesOnce(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeatureRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET expiry_email_sent = true WHERE id = $1 AND expiry_email_sent = false")).
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET expiry_email_sent = true WHERE id = $1 AND expiry_email_sent = false")).
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.MarkExpiryEmailSent(context.Background(), 8)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.MarkExpiryEmailSent(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAssignmentDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeatureRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO feature_assignments")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "feature_assignments_person_id_feature_id_key"})

	err := repo.CreateAssignment(context.Background(), &models.FeatureAssignment{
		PersonID:     1,
		FeatureID:    2,
		DateAssigned: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestFeatureSubtree(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeatureRepository(db)

	rows := sqlmock.NewRows([]string{"id", "feature_type", "parent_id", "name", "assignable", "never_expires", "fee", "collect_issuers", "collect_codes"}).
		AddRow(int64(1), "qualification", nil, "Záchranář", false, nil, nil, nil, nil).
		AddRow(int64(2), "qualification", int64(1), "Záchranář III", true, false, nil, true, false)
	mock.ExpectQuery("WITH RECURSIVE").
		WithArgs(int64(1)).
		WillReturnRows(rows)

	features, err := repo.Subtree(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, features, 2)
	require.NotNil(t, features[1].ParentID)
	assert.Equal(t, int64(1), *features[1].ParentID)
}
