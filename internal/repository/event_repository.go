package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

const eventColumns = `e.id, e.kind, e.name, e.description, e.location, e.date_start, e.date_end, e.capacity,
        e.min_age, e.max_age, e.group_id, e.allowed_person_types, e.participants_enroll_state, e.category,
        e.default_participation_fee, e.allow_one_time_participants, e.main_coach_assignment_id, e.updated_at`

// EventRepository persists events with their training days, required
// positions and coach assignments.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns events matching the filter, without days or positions.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("e.kind = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("e.category = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("e.date_end >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("e.date_start <= $%d", len(args)))
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM events e%s ORDER BY e.date_start DESC, e.id DESC LIMIT %d OFFSET %d`,
		eventColumns, clause, size, (page-1)*size)

	var events []models.Event
	if err := conn(ctx, r.db).SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	var total int
	if err := conn(ctx, r.db).GetContext(ctx, &total, "SELECT COUNT(*) FROM events e"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

// ListByKind returns every event of a kind, fully loaded. Used by batch jobs.
func (r *EventRepository) ListByKind(ctx context.Context, kind models.EventKind) ([]models.Event, error) {
	var events []models.Event
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.kind = $1 ORDER BY e.id`
	if err := conn(ctx, r.db).SelectContext(ctx, &events, query, kind); err != nil {
		return nil, fmt.Errorf("list events by kind: %w", err)
	}
	for i := range events {
		if err := r.load(ctx, &events[i]); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// FindByID returns an event with its days and positions.
func (r *EventRepository) FindByID(ctx context.Context, id int64) (*models.Event, error) {
	var event models.Event
	if err := conn(ctx, r.db).GetContext(ctx, &event, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id); err != nil {
		return nil, err
	}
	if err := r.load(ctx, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// FindForUpdate locks the event row for the rest of the transaction.
func (r *EventRepository) FindForUpdate(ctx context.Context, id int64) (*models.Event, error) {
	var event models.Event
	if err := conn(ctx, r.db).GetContext(ctx, &event, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	if err := r.load(ctx, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *EventRepository) load(ctx context.Context, event *models.Event) error {
	days := []models.TrainingDay{}
	if event.IsTraining() {
		const query = `SELECT event_id, weekday, time_start, time_end FROM training_weekdays WHERE event_id = $1 ORDER BY weekday`
		if err := conn(ctx, r.db).SelectContext(ctx, &days, query, event.ID); err != nil {
			return fmt.Errorf("list training days: %w", err)
		}
	}
	event.Days = days

	positions, err := r.Positions(ctx, event.ID)
	if err != nil {
		return err
	}
	event.Positions = positions
	return nil
}

// Create inserts an event and its training days.
func (r *EventRepository) Create(ctx context.Context, e *models.Event) error {
	const query = `INSERT INTO events (kind, name, description, location, date_start, date_end, capacity, min_age, max_age,
        group_id, allowed_person_types, participants_enroll_state, category, default_participation_fee,
        allow_one_time_participants, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query,
		e.Kind, e.Name, e.Description, e.Location, e.DateStart, e.DateEnd, e.Capacity, e.MinAge, e.MaxAge,
		e.GroupID, e.AllowedPersonTypes, e.ParticipantsEnrollState, e.Category, e.DefaultParticipationFee,
		e.AllowOneTimeParticipants, e.UpdatedAt,
	).Scan(&e.ID); err != nil {
		return fmt.Errorf("create event: %w", mapError(err))
	}
	if e.IsTraining() {
		return r.ReplaceDays(ctx, e.ID, e.Days)
	}
	return nil
}

// Update overwrites the event columns and, for trainings, its days.
func (r *EventRepository) Update(ctx context.Context, e *models.Event) error {
	const query = `UPDATE events SET name = $2, description = $3, location = $4, date_start = $5, date_end = $6,
        capacity = $7, min_age = $8, max_age = $9, group_id = $10, allowed_person_types = $11,
        participants_enroll_state = $12, category = $13, default_participation_fee = $14,
        allow_one_time_participants = $15, updated_at = $16 WHERE id = $1`
	res, err := conn(ctx, r.db).ExecContext(ctx, query,
		e.ID, e.Name, e.Description, e.Location, e.DateStart, e.DateEnd, e.Capacity, e.MinAge, e.MaxAge,
		e.GroupID, e.AllowedPersonTypes, e.ParticipantsEnrollState, e.Category, e.DefaultParticipationFee,
		e.AllowOneTimeParticipants, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if e.IsTraining() {
		return r.ReplaceDays(ctx, e.ID, e.Days)
	}
	return nil
}

// Delete removes an event; dependent rows cascade.
func (r *EventRepository) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return expectAffected(res)
}

// ReplaceDays rewrites the held weekdays of a training.
func (r *EventRepository) ReplaceDays(ctx context.Context, eventID int64, days []models.TrainingDay) error {
	db := conn(ctx, r.db)
	if _, err := db.ExecContext(ctx, `DELETE FROM training_weekdays WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("clear training days: %w", err)
	}
	const query = `INSERT INTO training_weekdays (event_id, weekday, time_start, time_end) VALUES ($1, $2, $3, $4)`
	for _, d := range days {
		if _, err := db.ExecContext(ctx, query, eventID, int(d.Weekday), d.TimeStart, d.TimeEnd); err != nil {
			return fmt.Errorf("store training day: %w", err)
		}
	}
	return nil
}

// Positions returns the positions required by an event.
func (r *EventRepository) Positions(ctx context.Context, eventID int64) ([]models.EventPositionAssignment, error) {
	positions := []models.EventPositionAssignment{}
	const query = `SELECT id, event_id, position_id, count FROM event_position_assignments WHERE event_id = $1 ORDER BY id`
	if err := conn(ctx, r.db).SelectContext(ctx, &positions, query, eventID); err != nil {
		return nil, fmt.Errorf("list event positions: %w", err)
	}
	return positions, nil
}

// FindPosition returns one required position.
func (r *EventRepository) FindPosition(ctx context.Context, eventID, positionID int64) (*models.EventPositionAssignment, error) {
	var position models.EventPositionAssignment
	const query = `SELECT id, event_id, position_id, count FROM event_position_assignments WHERE event_id = $1 AND position_id = $2`
	if err := conn(ctx, r.db).GetContext(ctx, &position, query, eventID, positionID); err != nil {
		return nil, err
	}
	return &position, nil
}

// CreatePosition adds a required position.
func (r *EventRepository) CreatePosition(ctx context.Context, p *models.EventPositionAssignment) error {
	const query = `INSERT INTO event_position_assignments (event_id, position_id, count) VALUES ($1, $2, $3) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query, p.EventID, p.PositionID, p.Count).Scan(&p.ID); err != nil {
		return fmt.Errorf("create event position: %w", mapError(err))
	}
	return nil
}

// UpdatePositionCount changes the number of coaches needed.
func (r *EventRepository) UpdatePositionCount(ctx context.Context, id int64, count int) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE event_position_assignments SET count = $2 WHERE id = $1`, id, count)
	if err != nil {
		return fmt.Errorf("update event position: %w", err)
	}
	return expectAffected(res)
}

// DeletePosition removes a required position.
func (r *EventRepository) DeletePosition(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM event_position_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event position: %w", err)
	}
	return expectAffected(res)
}

// Coaches returns the coach assignments of an event.
func (r *EventRepository) Coaches(ctx context.Context, eventID int64) ([]models.CoachPositionAssignment, error) {
	coaches := []models.CoachPositionAssignment{}
	const query = `SELECT id, event_id, person_id, position_id FROM coach_position_assignments WHERE event_id = $1 ORDER BY id`
	if err := conn(ctx, r.db).SelectContext(ctx, &coaches, query, eventID); err != nil {
		return nil, fmt.Errorf("list coach assignments: %w", err)
	}
	return coaches, nil
}

// FindCoach returns one coach assignment.
func (r *EventRepository) FindCoach(ctx context.Context, id int64) (*models.CoachPositionAssignment, error) {
	var coach models.CoachPositionAssignment
	const query = `SELECT id, event_id, person_id, position_id FROM coach_position_assignments WHERE id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &coach, query, id); err != nil {
		return nil, err
	}
	return &coach, nil
}

// CountCoaches returns how many coaches occupy a position of an event.
func (r *EventRepository) CountCoaches(ctx context.Context, eventID, positionID int64) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM coach_position_assignments WHERE event_id = $1 AND position_id = $2`
	if err := conn(ctx, r.db).GetContext(ctx, &count, query, eventID, positionID); err != nil {
		return 0, fmt.Errorf("count coach assignments: %w", err)
	}
	return count, nil
}

// CreateCoach assigns a coach to the event.
func (r *EventRepository) CreateCoach(ctx context.Context, c *models.CoachPositionAssignment) error {
	const query = `INSERT INTO coach_position_assignments (event_id, person_id, position_id) VALUES ($1, $2, $3) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query, c.EventID, c.PersonID, c.PositionID).Scan(&c.ID); err != nil {
		return fmt.Errorf("create coach assignment: %w", mapError(err))
	}
	return nil
}

// UpdateCoachPosition moves a coach to another position.
func (r *EventRepository) UpdateCoachPosition(ctx context.Context, id, positionID int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE coach_position_assignments SET position_id = $2 WHERE id = $1`, id, positionID)
	if err != nil {
		return fmt.Errorf("update coach assignment: %w", err)
	}
	return expectAffected(res)
}

// DeleteCoach removes a coach assignment.
func (r *EventRepository) DeleteCoach(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM coach_position_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coach assignment: %w", err)
	}
	return expectAffected(res)
}

// SetMainCoach stores or clears the main coach assignment.
func (r *EventRepository) SetMainCoach(ctx context.Context, eventID int64, assignmentID *int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE events SET main_coach_assignment_id = $2 WHERE id = $1`, eventID, assignmentID)
	if err != nil {
		return fmt.Errorf("set main coach: %w", err)
	}
	return expectAffected(res)
}

// ListCoachedBy returns the ids of events a person coaches.
func (r *EventRepository) ListCoachedBy(ctx context.Context, personID int64) ([]int64, error) {
	ids := []int64{}
	const query = `SELECT event_id FROM coach_position_assignments WHERE person_id = $1 ORDER BY event_id`
	if err := conn(ctx, r.db).SelectContext(ctx, &ids, query, personID); err != nil {
		return nil, fmt.Errorf("list coached events: %w", err)
	}
	return ids, nil
}
