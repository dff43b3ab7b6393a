package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

const occurrenceColumns = `o.id, o.event_id, o.state, o.date, o.hours, o.datetime_start, o.datetime_end`

// OccurrenceRepository persists dated event occurrences.
type OccurrenceRepository struct {
	db *sqlx.DB
}

// NewOccurrenceRepository constructs the repository.
func NewOccurrenceRepository(db *sqlx.DB) *OccurrenceRepository {
	return &OccurrenceRepository{db: db}
}

// FindByID returns one occurrence.
func (r *OccurrenceRepository) FindByID(ctx context.Context, id int64) (*models.Occurrence, error) {
	var occurrence models.Occurrence
	if err := conn(ctx, r.db).GetContext(ctx, &occurrence, `SELECT `+occurrenceColumns+` FROM event_occurrences o WHERE o.id = $1`, id); err != nil {
		return nil, err
	}
	return &occurrence, nil
}

// FindForUpdate locks an occurrence for the rest of the transaction.
func (r *OccurrenceRepository) FindForUpdate(ctx context.Context, id int64) (*models.Occurrence, error) {
	var occurrence models.Occurrence
	if err := conn(ctx, r.db).GetContext(ctx, &occurrence, `SELECT `+occurrenceColumns+` FROM event_occurrences o WHERE o.id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &occurrence, nil
}

// ListByEvent returns the occurrences of an event by date.
func (r *OccurrenceRepository) ListByEvent(ctx context.Context, eventID int64) ([]models.Occurrence, error) {
	occurrences := []models.Occurrence{}
	query := `SELECT ` + occurrenceColumns + ` FROM event_occurrences o WHERE o.event_id = $1 ORDER BY o.date, o.id`
	if err := conn(ctx, r.db).SelectContext(ctx, &occurrences, query, eventID); err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	return occurrences, nil
}

// ListUnclosed returns open occurrences of the given kind that ended before
// the cutoff, joined with their events.
func (r *OccurrenceRepository) ListUnclosed(ctx context.Context, kind models.EventKind, before time.Time) ([]models.OccurrenceDetail, error) {
	query := `SELECT ` + occurrenceColumns + `, e.name AS event_name, e.kind AS event_kind, e.category AS event_category
        FROM event_occurrences o JOIN events e ON e.id = o.event_id
        WHERE o.state = 'open' AND e.kind = $1 AND COALESCE(o.datetime_end, (o.date + 1)::timestamptz) <= $2
        ORDER BY o.date, o.id`
	occurrences := []models.OccurrenceDetail{}
	if err := conn(ctx, r.db).SelectContext(ctx, &occurrences, query, kind, before); err != nil {
		return nil, fmt.Errorf("list unclosed occurrences: %w", err)
	}
	return occurrences, nil
}

// ListForPerson returns occurrences from a date on where the person attends
// as participant or coach.
func (r *OccurrenceRepository) ListForPerson(ctx context.Context, personID int64, from time.Time) ([]models.OccurrenceDetail, error) {
	query := `SELECT ` + occurrenceColumns + `, e.name AS event_name, e.kind AS event_kind, e.category AS event_category
        FROM event_occurrences o JOIN events e ON e.id = o.event_id
        WHERE o.date >= $2 AND (
            EXISTS (SELECT 1 FROM occurrence_participants op WHERE op.occurrence_id = o.id AND op.person_id = $1)
            OR EXISTS (SELECT 1 FROM occurrence_coaches oc WHERE oc.occurrence_id = o.id AND oc.person_id = $1))
        ORDER BY o.date, o.id`
	occurrences := []models.OccurrenceDetail{}
	if err := conn(ctx, r.db).SelectContext(ctx, &occurrences, query, personID, from); err != nil {
		return nil, fmt.Errorf("list person occurrences: %w", err)
	}
	return occurrences, nil
}

// Create inserts an occurrence.
func (r *OccurrenceRepository) Create(ctx context.Context, o *models.Occurrence) error {
	const query = `INSERT INTO event_occurrences (event_id, state, date, hours, datetime_start, datetime_end)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query,
		o.EventID, o.State, o.Date, o.Hours, o.DatetimeStart, o.DatetimeEnd,
	).Scan(&o.ID); err != nil {
		return fmt.Errorf("create occurrence: %w", mapError(err))
	}
	return nil
}

// Update overwrites the schedule of an occurrence.
func (r *OccurrenceRepository) Update(ctx context.Context, o *models.Occurrence) error {
	const query = `UPDATE event_occurrences SET date = $2, hours = $3, datetime_start = $4, datetime_end = $5 WHERE id = $1`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, o.ID, o.Date, o.Hours, o.DatetimeStart, o.DatetimeEnd)
	if err != nil {
		return fmt.Errorf("update occurrence: %w", err)
	}
	return expectAffected(res)
}

// SetState moves an occurrence to a new state.
func (r *OccurrenceRepository) SetState(ctx context.Context, id int64, state models.OccurrenceState) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE event_occurrences SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("set occurrence state: %w", err)
	}
	return expectAffected(res)
}

// Delete removes an occurrence; its attendance rows cascade.
func (r *OccurrenceRepository) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM event_occurrences WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete occurrence: %w", err)
	}
	return expectAffected(res)
}
