package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestFindByEmailLoadsPermissions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"person_id", "password_hash", "is_superuser", "last_login", "created_at", "updated_at"}).
		AddRow(int64(7), "hash", false, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users u JOIN persons p ON p.id = u.person_id WHERE LOWER(p.email) = LOWER($1)")).
		WithArgs("coach@example.com").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT codename FROM user_permissions WHERE user_id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"codename"}).AddRow("events.course").AddRow("persons.children"))

	user, err := repo.FindByEmail(context.Background(), "coach@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.PersonID)
	assert.Equal(t, []string{"events.course", "persons.children"}, user.Permissions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmailNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("FROM users u JOIN persons p").
		WithArgs("missing@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "missing@example.com")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSetPermissionsReplacesGrants(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_permissions WHERE user_id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_permissions (user_id, codename) SELECT $1, UNNEST($2::text[])")).
		WithArgs(int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetPermissions(context.Background(), 3, []string{"transactions"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPermissionsEmptyOnlyClears(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("DELETE FROM user_permissions").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetPermissions(context.Background(), 3, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePasswordMissingUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET password_hash = $2")).
		WithArgs(int64(9), "new", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePassword(context.Background(), 9, "new", now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDeleteExpiredRefreshTokens(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExpiredRefreshTokens(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
