package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

const (
	participantColumns = `op.id, op.occurrence_id, op.person_id, op.enrollment_id, op.state`
	coachColumns       = `oc.id, oc.occurrence_id, oc.person_id, oc.position_id, oc.state, oc.one_time, oc.transaction_id`
)

// AttendanceRepository persists the materialized participant and coach rows
// of occurrences.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Participants returns the participant rows of an occurrence.
func (r *AttendanceRepository) Participants(ctx context.Context, occurrenceID int64) ([]models.ParticipantAttendance, error) {
	rows := []models.ParticipantAttendance{}
	query := `SELECT ` + participantColumns + ` FROM occurrence_participants op WHERE op.occurrence_id = $1 ORDER BY op.id`
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, occurrenceID); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return rows, nil
}

// Coaches returns the coach rows of an occurrence.
func (r *AttendanceRepository) Coaches(ctx context.Context, occurrenceID int64) ([]models.CoachAttendance, error) {
	rows := []models.CoachAttendance{}
	query := `SELECT ` + coachColumns + ` FROM occurrence_coaches oc WHERE oc.occurrence_id = $1 ORDER BY oc.id`
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, occurrenceID); err != nil {
		return nil, fmt.Errorf("list coaches: %w", err)
	}
	return rows, nil
}

// FindParticipant returns the row of a person in an occurrence.
func (r *AttendanceRepository) FindParticipant(ctx context.Context, occurrenceID, personID int64) (*models.ParticipantAttendance, error) {
	var row models.ParticipantAttendance
	query := `SELECT ` + participantColumns + ` FROM occurrence_participants op WHERE op.occurrence_id = $1 AND op.person_id = $2`
	if err := conn(ctx, r.db).GetContext(ctx, &row, query, occurrenceID, personID); err != nil {
		return nil, err
	}
	return &row, nil
}

// FindCoach returns the coach row of a person in an occurrence.
func (r *AttendanceRepository) FindCoach(ctx context.Context, occurrenceID, personID int64) (*models.CoachAttendance, error) {
	var row models.CoachAttendance
	query := `SELECT ` + coachColumns + ` FROM occurrence_coaches oc WHERE oc.occurrence_id = $1 AND oc.person_id = $2`
	if err := conn(ctx, r.db).GetContext(ctx, &row, query, occurrenceID, personID); err != nil {
		return nil, err
	}
	return &row, nil
}

// InsertParticipant adds a participant row.
func (r *AttendanceRepository) InsertParticipant(ctx context.Context, row *models.ParticipantAttendance) error {
	const query = `INSERT INTO occurrence_participants (occurrence_id, person_id, enrollment_id, state)
        VALUES ($1, $2, $3, $4) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query, row.OccurrenceID, row.PersonID, row.EnrollmentID, row.State).Scan(&row.ID); err != nil {
		return fmt.Errorf("insert participant: %w", mapError(err))
	}
	return nil
}

// InsertCoach adds a coach row.
func (r *AttendanceRepository) InsertCoach(ctx context.Context, row *models.CoachAttendance) error {
	const query = `INSERT INTO occurrence_coaches (occurrence_id, person_id, position_id, state, one_time)
        VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query, row.OccurrenceID, row.PersonID, row.PositionID, row.State, row.OneTime).Scan(&row.ID); err != nil {
		return fmt.Errorf("insert coach: %w", mapError(err))
	}
	return nil
}

// DeleteParticipant removes a participant row.
func (r *AttendanceRepository) DeleteParticipant(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM occurrence_participants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	return expectAffected(res)
}

// DeleteCoach removes a coach row.
func (r *AttendanceRepository) DeleteCoach(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM occurrence_coaches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coach: %w", err)
	}
	return expectAffected(res)
}

// SetParticipantState changes the state of one participant row.
func (r *AttendanceRepository) SetParticipantState(ctx context.Context, id int64, state models.AttendanceState) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE occurrence_participants SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("set participant state: %w", err)
	}
	return expectAffected(res)
}

// SetCoachState changes the state of one coach row.
func (r *AttendanceRepository) SetCoachState(ctx context.Context, id int64, state models.AttendanceState) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE occurrence_coaches SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("set coach state: %w", err)
	}
	return expectAffected(res)
}

// MarkParticipantsUnexcused turns the present rows of the listed persons
// into unexcused ones.
func (r *AttendanceRepository) MarkParticipantsUnexcused(ctx context.Context, occurrenceID int64, personIDs []int64) error {
	const query = `UPDATE occurrence_participants SET state = 'unexcused'
        WHERE occurrence_id = $1 AND person_id = ANY($2) AND state = 'present'`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, occurrenceID, pq.Array(personIDs)); err != nil {
		return fmt.Errorf("mark participants unexcused: %w", err)
	}
	return nil
}

// MarkCoachesUnexcused turns the present coach rows of the listed persons
// into unexcused ones.
func (r *AttendanceRepository) MarkCoachesUnexcused(ctx context.Context, occurrenceID int64, personIDs []int64) error {
	const query = `UPDATE occurrence_coaches SET state = 'unexcused'
        WHERE occurrence_id = $1 AND person_id = ANY($2) AND state = 'present'`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, occurrenceID, pq.Array(personIDs)); err != nil {
		return fmt.Errorf("mark coaches unexcused: %w", err)
	}
	return nil
}

// ResetUnexcused turns every unexcused row of an occurrence back to present.
func (r *AttendanceRepository) ResetUnexcused(ctx context.Context, occurrenceID int64) error {
	db := conn(ctx, r.db)
	if _, err := db.ExecContext(ctx, `UPDATE occurrence_participants SET state = 'present' WHERE occurrence_id = $1 AND state = 'unexcused'`, occurrenceID); err != nil {
		return fmt.Errorf("reset participants: %w", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE occurrence_coaches SET state = 'present' WHERE occurrence_id = $1 AND state = 'unexcused'`, occurrenceID); err != nil {
		return fmt.Errorf("reset coaches: %w", err)
	}
	return nil
}

// UpdateCoachPosition moves a coach row to another position.
func (r *AttendanceRepository) UpdateCoachPosition(ctx context.Context, id, positionID int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE occurrence_coaches SET position_id = $2 WHERE id = $1`, id, positionID)
	if err != nil {
		return fmt.Errorf("update coach position: %w", err)
	}
	return expectAffected(res)
}

// SetCoachTransaction links or unlinks the wage of a coach row.
func (r *AttendanceRepository) SetCoachTransaction(ctx context.Context, id int64, transactionID *int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE occurrence_coaches SET transaction_id = $2 WHERE id = $1`, id, transactionID)
	if err != nil {
		return fmt.Errorf("set coach transaction: %w", err)
	}
	return expectAffected(res)
}

// ParticipantHistory returns a person's rows across the closed occurrences
// of an event, newest first.
func (r *AttendanceRepository) ParticipantHistory(ctx context.Context, eventID, personID int64) ([]models.PersonAttendance, error) {
	const query = `SELECT op.occurrence_id, o.date, op.state
        FROM occurrence_participants op JOIN event_occurrences o ON o.id = op.occurrence_id
        WHERE o.event_id = $1 AND op.person_id = $2 AND o.state <> 'open'
        ORDER BY o.date DESC, o.id DESC`
	rows := []models.PersonAttendance{}
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, eventID, personID); err != nil {
		return nil, fmt.Errorf("list participant history: %w", err)
	}
	return rows, nil
}
