package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

const enrollmentColumns = `pe.id, pe.event_id, pe.person_id, pe.state, pe.created_at, pe.agreed_participation_fee, pe.weekdays, pe.transaction_id`

// EnrollmentRepository persists participant enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns one enrollment.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id int64) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := conn(ctx, r.db).GetContext(ctx, &enrollment, `SELECT `+enrollmentColumns+` FROM participant_enrollments pe WHERE pe.id = $1`, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByEventPerson returns the enrollment of a person in an event.
func (r *EnrollmentRepository) FindByEventPerson(ctx context.Context, eventID, personID int64) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	query := `SELECT ` + enrollmentColumns + ` FROM participant_enrollments pe WHERE pe.event_id = $1 AND pe.person_id = $2`
	if err := conn(ctx, r.db).GetContext(ctx, &enrollment, query, eventID, personID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByEvent returns enrollments with participant names, oldest first. An
// empty state returns all of them.
func (r *EnrollmentRepository) ListByEvent(ctx context.Context, eventID int64, state models.EnrollmentState) ([]models.EnrollmentDetail, error) {
	query := `SELECT ` + enrollmentColumns + `, p.first_name, p.last_name, p.email
        FROM participant_enrollments pe JOIN persons p ON p.id = pe.person_id
        WHERE pe.event_id = $1 AND ($2 = '' OR pe.state = $2)
        ORDER BY pe.created_at, pe.id`
	enrollments := []models.EnrollmentDetail{}
	if err := conn(ctx, r.db).SelectContext(ctx, &enrollments, query, eventID, string(state)); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByState returns bare enrollments of an event in a state, oldest first.
func (r *EnrollmentRepository) ListByState(ctx context.Context, eventID int64, state models.EnrollmentState) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM participant_enrollments pe
        WHERE pe.event_id = $1 AND pe.state = $2 ORDER BY pe.created_at, pe.id`
	enrollments := []models.Enrollment{}
	if err := conn(ctx, r.db).SelectContext(ctx, &enrollments, query, eventID, state); err != nil {
		return nil, fmt.Errorf("list enrollments by state: %w", err)
	}
	return enrollments, nil
}

// ListByPerson returns every enrollment of a person.
func (r *EnrollmentRepository) ListByPerson(ctx context.Context, personID int64) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM participant_enrollments pe WHERE pe.person_id = $1 ORDER BY pe.created_at DESC, pe.id`
	enrollments := []models.Enrollment{}
	if err := conn(ctx, r.db).SelectContext(ctx, &enrollments, query, personID); err != nil {
		return nil, fmt.Errorf("list person enrollments: %w", err)
	}
	return enrollments, nil
}

// CountApproved returns the number of approved enrollments of an event,
// skipping excludeID.
func (r *EnrollmentRepository) CountApproved(ctx context.Context, eventID, excludeID int64) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM participant_enrollments WHERE event_id = $1 AND state = 'approved' AND id <> $2`
	if err := conn(ctx, r.db).GetContext(ctx, &count, query, eventID, excludeID); err != nil {
		return 0, fmt.Errorf("count approved enrollments: %w", err)
	}
	return count, nil
}

// CountApprovedByWeekday returns approved training enrollments per weekday,
// skipping excludeID.
func (r *EnrollmentRepository) CountApprovedByWeekday(ctx context.Context, eventID, excludeID int64) (map[time.Weekday]int, error) {
	const query = `SELECT w AS weekday, COUNT(*) AS total
        FROM participant_enrollments, UNNEST(weekdays) AS w
        WHERE event_id = $1 AND state = 'approved' AND id <> $2
        GROUP BY w`
	var rows []struct {
		Weekday int `db:"weekday"`
		Total   int `db:"total"`
	}
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, eventID, excludeID); err != nil {
		return nil, fmt.Errorf("count approved enrollments by weekday: %w", err)
	}
	counts := make(map[time.Weekday]int, len(rows))
	for _, row := range rows {
		counts[time.Weekday(row.Weekday)] = row.Total
	}
	return counts, nil
}

// Create inserts an enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, e *models.Enrollment) error {
	const query = `INSERT INTO participant_enrollments (event_id, person_id, state, created_at, agreed_participation_fee, weekdays)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query,
		e.EventID, e.PersonID, e.State, e.CreatedAt, e.AgreedParticipationFee, e.Weekdays,
	).Scan(&e.ID); err != nil {
		return fmt.Errorf("create enrollment: %w", mapError(err))
	}
	return nil
}

// Update overwrites the mutable enrollment columns.
func (r *EnrollmentRepository) Update(ctx context.Context, e *models.Enrollment) error {
	const query = `UPDATE participant_enrollments SET state = $2, agreed_participation_fee = $3, weekdays = $4,
        transaction_id = $5 WHERE id = $1`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, e.ID, e.State, e.AgreedParticipationFee, e.Weekdays, e.TransactionID)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return expectAffected(res)
}

// Delete removes an enrollment.
func (r *EnrollmentRepository) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM participant_enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return expectAffected(res)
}
