package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/vzs-club-api/internal/repository"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clock returns the current time; services take one so tests can pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now() }

func validationError(err error, message string) error {
	wrapped := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		wrapped.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			wrapped.Fields[fe.Field()] = fe.Tag()
		}
	}
	return wrapped
}

// repoError maps repository failures onto the public taxonomy.
func repoError(err error, notFound, failure string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "record already exists")
	}
	return appErrors.Internal(err, failure)
}

func stateConflict(message string) error {
	return appErrors.Clone(appErrors.ErrStateConflict, message)
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }
