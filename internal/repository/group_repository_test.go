package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

func TestGroupCreateMapsDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	email := "vodaci@vzs.cz"
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO groups (name, google_email, google_as_members_authority)")).
		WithArgs("Vodáci", &email, true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))

	group := &models.Group{Name: "Vodáci", GoogleEmail: &email, GoogleAsMembersAuthority: true}
	require.NoError(t, repo.Create(context.Background(), group))
	assert.Equal(t, int64(4), group.ID)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO groups")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "groups_google_email_key"})
	err := repo.Create(context.Background(), &models.Group{Name: "Kopie", GoogleEmail: &email})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupUpdateMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE groups SET name = $2")).
		WithArgs(int64(9), "Nic", nil, false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Group{ID: 9, Name: "Nic"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGroupMembership(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO group_members (group_id, person_id) SELECT $1, UNNEST($2::bigint[]) ON CONFLICT DO NOTHING")).
		WithArgs(int64(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, repo.AddMembers(ctx, 2, []int64{5, 6}))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM group_members")).
		WithArgs(int64(2), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	member, err := repo.IsMember(ctx, 2, 5)
	require.NoError(t, err)
	assert.True(t, member)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM group_members WHERE group_id = $1 AND person_id = ANY($2)")).
		WithArgs(int64(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RemoveMembers(ctx, 2, []int64{5}))
	require.NoError(t, mock.ExpectationsWereMet())
}
