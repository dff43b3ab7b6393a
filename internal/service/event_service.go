package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

// EventService manages one-time events and trainings together with their
// occurrences, positions and coach assignments.
type EventService struct {
	*EventEngine
}

// NewEventService creates an instance of EventService.
func NewEventService(engine *EventEngine) *EventService {
	return &EventService{EventEngine: engine}
}

// List returns events matching the filter.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	if filter.Kind != "" && filter.Kind != models.EventKindOneTime && filter.Kind != models.EventKindTraining {
		return nil, nil, appErrors.Invalid("kind", "unknown event kind")
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, nil, appErrors.Invalid("category", "unknown event category")
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	events, total, err := s.repos.Events.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list events")
	}
	return events, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns an event with its days and positions.
func (s *EventService) Get(ctx context.Context, id int64) (*models.Event, error) {
	return s.loadEvent(ctx, id)
}

// Occurrences lists the occurrences of an event by date.
func (s *EventService) Occurrences(ctx context.Context, id int64) ([]models.Occurrence, error) {
	if _, err := s.loadEvent(ctx, id); err != nil {
		return nil, err
	}
	occurrences, err := s.repos.Occurrences.ListByEvent(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list occurrences")
	}
	return occurrences, nil
}

// Create adds an event and generates its occurrences. The caller must
// administer the event's category.
func (s *EventService) Create(ctx context.Context, principal *models.Principal, req models.EventRequest) (*models.Event, error) {
	event, dates, err := s.buildEvent(ctx, req)
	if err != nil {
		return nil, err
	}
	if !principal.User.HasPermission(permissions.ForCategory(event.Category)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "category outside of your permissions")
	}
	event.UpdatedAt = s.clock()
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repos.Events.Create(ctx, event); err != nil {
			return repoError(err, "event not found", "failed to create event")
		}
		return s.syncOccurrences(ctx, event, s.targetOccurrences(event, dates))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("event created",
		zap.Int64("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("category", string(event.Category)))
	return event, nil
}

// Update edits an event. Occurrences are regenerated with the smallest
// change: missing ones are created, open ones no longer wanted are deleted
// and closed ones are kept as they are.
func (s *EventService) Update(ctx context.Context, principal *models.Principal, id int64, req models.EventRequest) (*models.Event, error) {
	event, dates, err := s.buildEvent(ctx, req)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.lockEvent(ctx, id)
		if err != nil {
			return err
		}
		if existing.Kind != event.Kind {
			return appErrors.Invalid("category", "event kind cannot change")
		}
		if existing.Category != event.Category && !principal.User.HasPermission(permissions.ForCategory(event.Category)) {
			return appErrors.Clone(appErrors.ErrForbidden, "category outside of your permissions")
		}
		event.ID = existing.ID
		event.MainCoachAssignmentID = existing.MainCoachAssignmentID
		event.Positions = existing.Positions
		event.UpdatedAt = s.clock()
		if err := s.repos.Events.Update(ctx, event); err != nil {
			return repoError(err, "event not found", "failed to update event")
		}
		if event.IsTraining() {
			if err := s.trimWeekdays(ctx, event); err != nil {
				return err
			}
		}
		if err := s.syncOccurrences(ctx, event, s.targetOccurrences(event, dates)); err != nil {
			return err
		}
		return s.syncEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// trimWeekdays drops weekdays the training no longer holds from its
// enrollments.
func (s *EventService) trimWeekdays(ctx context.Context, event *models.Event) error {
	held := event.HeldWeekdays()
	enrollments, err := s.repos.Enrollments.ListByEvent(ctx, event.ID, "")
	if err != nil {
		return appErrors.Internal(err, "failed to list enrollments")
	}
	for _, detail := range enrollments {
		en := detail.Enrollment
		dropped := en.Weekdays.Minus(held)
		if len(dropped) == 0 {
			continue
		}
		en.Weekdays = en.Weekdays.Minus(dropped)
		if err := s.repos.Enrollments.Update(ctx, &en); err != nil {
			return repoError(err, "enrollment not found", "failed to update enrollment")
		}
	}
	return nil
}

// Delete removes an event. Its unsettled transactions go with it; settled
// ones stay in the ledger.
func (s *EventService) Delete(ctx context.Context, id int64) error {
	var owners []int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.lockEvent(ctx, id); err != nil {
			return err
		}
		transactions, err := s.repos.Ledger.ListByEvent(ctx, id)
		if err != nil {
			return appErrors.Internal(err, "failed to list event transactions")
		}
		for i := range transactions {
			if err := dropUnsettled(ctx, s.repos.Ledger, &transactions[i]); err != nil {
				return err
			}
			owners = append(owners, transactions[i].PersonID)
		}
		if err := s.repos.Events.Delete(ctx, id); err != nil {
			return repoError(err, "event not found", "failed to delete event")
		}
		return nil
	})
	if err != nil {
		return err
	}
	invalidateLedger(ctx, s.cache, owners...)
	s.logger.Info("event deleted", zap.Int64("event_id", id))
	return nil
}

func (s *EventService) buildEvent(ctx context.Context, req models.EventRequest) (*models.Event, []models.OccurrenceDateRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err, "invalid event payload")
	}
	kind, ok := req.Category.Kind()
	if !ok {
		return nil, nil, appErrors.Invalid("category", "unknown event category")
	}
	if req.DateStart.IsZero() || req.DateEnd.IsZero() {
		return nil, nil, appErrors.Invalid("date_start", "start and end dates are required")
	}
	start, end := models.DateOnly(req.DateStart.Time), models.DateOnly(req.DateEnd.Time)
	if end.Before(start) {
		return nil, nil, appErrors.Invalid("date_end", "event ends before it starts")
	}
	if req.MinAge != nil && req.MaxAge != nil && *req.MinAge > *req.MaxAge {
		return nil, nil, appErrors.Invalid("min_age", "minimum age exceeds maximum age")
	}
	types, err := personTypes("allowed_person_types", req.AllowedPersonTypes)
	if err != nil {
		return nil, nil, err
	}
	if req.GroupID != nil {
		if _, err := s.repos.Groups.FindByID(ctx, *req.GroupID); err != nil {
			return nil, nil, referenceError(err, "group_id", "unknown group")
		}
	}

	event := &models.Event{
		Kind:                     kind,
		Name:                     strings.TrimSpace(req.Name),
		Description:              strings.TrimSpace(req.Description),
		Location:                 strings.TrimSpace(req.Location),
		DateStart:                start,
		DateEnd:                  end,
		Capacity:                 req.Capacity,
		MinAge:                   req.MinAge,
		MaxAge:                   req.MaxAge,
		GroupID:                  req.GroupID,
		AllowedPersonTypes:       types,
		ParticipantsEnrollState:  req.ParticipantsEnrollState,
		Category:                 req.Category,
		DefaultParticipationFee:  req.DefaultParticipationFee,
		AllowOneTimeParticipants: req.AllowOneTimeParticipants,
		Days:                     []models.TrainingDay{},
		Positions:                []models.EventPositionAssignment{},
	}

	if kind == models.EventKindTraining {
		if len(req.Dates) > 0 {
			return nil, nil, appErrors.Invalid("dates", "trainings are scheduled by weekdays")
		}
		if req.DefaultParticipationFee != nil {
			return nil, nil, appErrors.Invalid("default_participation_fee", "trainings are charged per period")
		}
		if end.Sub(start) < models.MinTrainingSpan {
			return nil, nil, appErrors.Invalid("date_end", "a training must span at least 14 days")
		}
		if len(req.Days) == 0 {
			return nil, nil, appErrors.Invalid("days", "at least one weekday is required")
		}
		seen := map[time.Weekday]bool{}
		for _, d := range req.Days {
			weekday := time.Weekday(d.Weekday)
			if seen[weekday] {
				return nil, nil, appErrors.Invalid("days", "weekday listed twice")
			}
			seen[weekday] = true
			if !d.TimeStart.Before(d.TimeEnd) {
				return nil, nil, appErrors.Invalid("days", "training ends before it starts")
			}
			event.Days = append(event.Days, models.TrainingDay{Weekday: weekday, TimeStart: d.TimeStart, TimeEnd: d.TimeEnd})
		}
		return event, nil, nil
	}

	if len(req.Days) > 0 {
		return nil, nil, appErrors.Invalid("days", "one-time events are scheduled by dates")
	}
	if len(req.Dates) == 0 {
		return nil, nil, appErrors.Invalid("dates", "at least one date is required")
	}
	seen := map[time.Time]bool{}
	dates := make([]models.OccurrenceDateRequest, 0, len(req.Dates))
	for _, d := range req.Dates {
		day := models.DateOnly(d.Date.Time)
		if day.Before(start) || day.After(end) {
			return nil, nil, appErrors.Invalid("dates", "date outside of the event")
		}
		if seen[day] {
			return nil, nil, appErrors.Invalid("dates", "date listed twice")
		}
		seen[day] = true
		dates = append(dates, models.OccurrenceDateRequest{Date: models.NewDate(day), Hours: d.Hours})
	}
	return event, dates, nil
}

// targetOccurrences computes the occurrences an event should have.
func (s *EventService) targetOccurrences(event *models.Event, dates []models.OccurrenceDateRequest) []models.Occurrence {
	var out []models.Occurrence
	if !event.IsTraining() {
		for _, d := range dates {
			out = append(out, models.Occurrence{
				EventID: event.ID,
				State:   models.OccurrenceOpen,
				Date:    models.DateOnly(d.Date.Time),
				Hours:   intPtr(d.Hours),
			})
		}
		return out
	}
	for day := event.DateStart; !day.After(event.DateEnd); day = day.AddDate(0, 0, 1) {
		td, ok := event.Day(day.Weekday())
		if !ok {
			continue
		}
		start := td.TimeStart.On(day, s.config.Location)
		end := td.TimeEnd.On(day, s.config.Location)
		out = append(out, models.Occurrence{
			EventID:       event.ID,
			State:         models.OccurrenceOpen,
			Date:          day,
			DatetimeStart: &start,
			DatetimeEnd:   &end,
		})
	}
	return out
}

// syncOccurrences moves the stored occurrences towards target.
func (s *EventService) syncOccurrences(ctx context.Context, event *models.Event, target []models.Occurrence) error {
	existing, err := s.repos.Occurrences.ListByEvent(ctx, event.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to list occurrences")
	}
	wanted := make(map[string]models.Occurrence, len(target))
	for _, occ := range target {
		wanted[occurrenceKey(occ)] = occ
	}
	for _, occ := range existing {
		key := occurrenceKey(occ)
		want, ok := wanted[key]
		if !ok {
			if occ.State == models.OccurrenceOpen {
				if err := s.repos.Occurrences.Delete(ctx, occ.ID); err != nil {
					return repoError(err, "occurrence not found", "failed to delete occurrence")
				}
			}
			continue
		}
		delete(wanted, key)
		if occ.State != models.OccurrenceOpen || sameSchedule(occ, want) {
			continue
		}
		want.ID = occ.ID
		if err := s.repos.Occurrences.Update(ctx, &want); err != nil {
			return repoError(err, "occurrence not found", "failed to update occurrence")
		}
	}
	for _, occ := range target {
		if _, ok := wanted[occurrenceKey(occ)]; !ok {
			continue
		}
		occ := occ
		occ.EventID = event.ID
		if err := s.repos.Occurrences.Create(ctx, &occ); err != nil {
			return repoError(err, "occurrence not found", "failed to create occurrence")
		}
	}
	return nil
}

func occurrenceKey(o models.Occurrence) string {
	return o.Date.Format(models.DateLayout)
}

func sameSchedule(a, b models.Occurrence) bool {
	if (a.Hours == nil) != (b.Hours == nil) || (a.Hours != nil && *a.Hours != *b.Hours) {
		return false
	}
	return sameInstant(a.DatetimeStart, b.DatetimeStart) && sameInstant(a.DatetimeEnd, b.DatetimeEnd)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// AddPosition requires count coaches of a position at the event.
func (s *EventService) AddPosition(ctx context.Context, eventID int64, req models.EventPositionRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid position payload")
	}
	if _, err := s.loadEvent(ctx, eventID); err != nil {
		return nil, err
	}
	if _, err := s.repos.Positions.FindByID(ctx, req.PositionID); err != nil {
		return nil, referenceError(err, "position_id", "unknown position")
	}
	slot := &models.EventPositionAssignment{EventID: eventID, PositionID: req.PositionID, Count: req.Count}
	if err := s.repos.Events.CreatePosition(ctx, slot); err != nil {
		return nil, repoError(err, "position not found", "failed to add position")
	}
	return s.loadEvent(ctx, eventID)
}

// UpdatePosition changes how many coaches of a position the event needs.
func (s *EventService) UpdatePosition(ctx context.Context, eventID int64, req models.EventPositionRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid position payload")
	}
	slot, err := s.repos.Events.FindPosition(ctx, eventID, req.PositionID)
	if err != nil {
		return nil, repoError(err, "position is not part of the event", "failed to load event position")
	}
	assigned, err := s.repos.Events.CountCoaches(ctx, eventID, req.PositionID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count coaches")
	}
	if assigned > req.Count {
		return nil, stateConflict("more coaches are assigned to the position than the new count")
	}
	if err := s.repos.Events.UpdatePositionCount(ctx, slot.ID, req.Count); err != nil {
		return nil, repoError(err, "position is not part of the event", "failed to update event position")
	}
	return s.loadEvent(ctx, eventID)
}

// RemovePosition drops a position nobody is assigned to.
func (s *EventService) RemovePosition(ctx context.Context, eventID, positionID int64) error {
	slot, err := s.repos.Events.FindPosition(ctx, eventID, positionID)
	if err != nil {
		return repoError(err, "position is not part of the event", "failed to load event position")
	}
	assigned, err := s.repos.Events.CountCoaches(ctx, eventID, positionID)
	if err != nil {
		return appErrors.Internal(err, "failed to count coaches")
	}
	if assigned > 0 {
		return stateConflict("coaches are still assigned to the position")
	}
	if err := s.repos.Events.DeletePosition(ctx, slot.ID); err != nil {
		return repoError(err, "position is not part of the event", "failed to remove event position")
	}
	return nil
}

// Coaches lists the coach assignments of an event.
func (s *EventService) Coaches(ctx context.Context, eventID int64) ([]models.CoachPositionAssignment, error) {
	if _, err := s.loadEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.coachesOf(ctx, eventID)
}

// checkSlot verifies that the event needs positionID and has a free slot,
// and that person qualifies for it.
func (s *EventService) checkSlot(ctx context.Context, event *models.Event, person *models.Person, positionID int64) error {
	slot, err := s.repos.Events.FindPosition(ctx, event.ID, positionID)
	if err != nil {
		return referenceError(err, "position_id", "position is not required by the event")
	}
	assigned, err := s.repos.Events.CountCoaches(ctx, event.ID, positionID)
	if err != nil {
		return appErrors.Internal(err, "failed to count coaches")
	}
	if assigned >= slot.Count {
		return stateConflict("all slots of the position are taken")
	}
	position, err := s.repos.Positions.FindByID(ctx, positionID)
	if err != nil {
		return referenceError(err, "position_id", "unknown position")
	}
	return s.requireQualified(ctx, person, position, s.referenceDay(event))
}

// AssignCoach assigns a person to a position for every occurrence of the
// event.
func (s *EventService) AssignCoach(ctx context.Context, eventID int64, req models.CoachAssignmentRequest) (*models.CoachPositionAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid coach payload")
	}
	assignment := &models.CoachPositionAssignment{EventID: eventID, PersonID: req.PersonID, PositionID: req.PositionID}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		event, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		person, err := s.loadPerson(ctx, req.PersonID)
		if err != nil {
			return err
		}
		if err := s.checkSlot(ctx, event, person, req.PositionID); err != nil {
			return err
		}
		if err := s.repos.Events.CreateCoach(ctx, assignment); err != nil {
			return repoError(err, "coach not found", "failed to assign coach")
		}
		return s.syncEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("coach assigned",
		zap.Int64("event_id", eventID),
		zap.Int64("person_id", req.PersonID),
		zap.Int64("position_id", req.PositionID))
	return assignment, nil
}

// MoveCoach puts an assigned coach on another position.
func (s *EventService) MoveCoach(ctx context.Context, eventID, assignmentID int64, req models.CoachPositionRequest) (*models.CoachPositionAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid coach payload")
	}
	var assignment *models.CoachPositionAssignment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		event, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		assignment, err = s.findCoach(ctx, eventID, assignmentID)
		if err != nil {
			return err
		}
		if assignment.PositionID == req.PositionID {
			return nil
		}
		person, err := s.loadPerson(ctx, assignment.PersonID)
		if err != nil {
			return err
		}
		if err := s.checkSlot(ctx, event, person, req.PositionID); err != nil {
			return err
		}
		if err := s.repos.Events.UpdateCoachPosition(ctx, assignment.ID, req.PositionID); err != nil {
			return repoError(err, "coach not found", "failed to move coach")
		}
		assignment.PositionID = req.PositionID
		return s.syncEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// RemoveCoach unassigns a coach; the main coach mark goes with it.
func (s *EventService) RemoveCoach(ctx context.Context, eventID, assignmentID int64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		event, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		assignment, err := s.findCoach(ctx, eventID, assignmentID)
		if err != nil {
			return err
		}
		if event.MainCoachAssignmentID != nil && *event.MainCoachAssignmentID == assignment.ID {
			if err := s.repos.Events.SetMainCoach(ctx, eventID, nil); err != nil {
				return repoError(err, "event not found", "failed to clear main coach")
			}
			event.MainCoachAssignmentID = nil
		}
		if err := s.repos.Events.DeleteCoach(ctx, assignment.ID); err != nil {
			return repoError(err, "coach not found", "failed to remove coach")
		}
		return s.syncEvent(ctx, event)
	})
}

func (s *EventService) findCoach(ctx context.Context, eventID, assignmentID int64) (*models.CoachPositionAssignment, error) {
	assignment, err := s.repos.Events.FindCoach(ctx, assignmentID)
	if err != nil {
		return nil, repoError(err, "coach not found", "failed to load coach")
	}
	if assignment.EventID != eventID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "coach not found")
	}
	return assignment, nil
}

// SetMainCoach marks one of the training's coach assignments as the main
// coach; a nil assignment clears the mark.
func (s *EventService) SetMainCoach(ctx context.Context, eventID int64, req models.MainCoachRequest) (*models.Event, error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsTraining() {
		return nil, stateConflict("only trainings have a main coach")
	}
	if req.AssignmentID != nil {
		assignment, err := s.repos.Events.FindCoach(ctx, *req.AssignmentID)
		if err != nil {
			return nil, referenceError(err, "assignment_id", "unknown coach assignment")
		}
		if assignment.EventID != eventID {
			return nil, appErrors.Invalid("assignment_id", "the coach does not coach this training")
		}
	}
	if err := s.repos.Events.SetMainCoach(ctx, eventID, req.AssignmentID); err != nil {
		return nil, repoError(err, "event not found", "failed to set main coach")
	}
	event.MainCoachAssignmentID = req.AssignmentID
	return event, nil
}
