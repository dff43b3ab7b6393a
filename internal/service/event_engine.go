package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
	"github.com/noah-isme/vzs-club-api/pkg/config"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type eventStore interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	FindByID(ctx context.Context, id int64) (*models.Event, error)
	FindForUpdate(ctx context.Context, id int64) (*models.Event, error)
	Create(ctx context.Context, e *models.Event) error
	Update(ctx context.Context, e *models.Event) error
	Delete(ctx context.Context, id int64) error
	FindPosition(ctx context.Context, eventID, positionID int64) (*models.EventPositionAssignment, error)
	CreatePosition(ctx context.Context, p *models.EventPositionAssignment) error
	UpdatePositionCount(ctx context.Context, id int64, count int) error
	DeletePosition(ctx context.Context, id int64) error
	Coaches(ctx context.Context, eventID int64) ([]models.CoachPositionAssignment, error)
	FindCoach(ctx context.Context, id int64) (*models.CoachPositionAssignment, error)
	CountCoaches(ctx context.Context, eventID, positionID int64) (int, error)
	CreateCoach(ctx context.Context, c *models.CoachPositionAssignment) error
	UpdateCoachPosition(ctx context.Context, id, positionID int64) error
	DeleteCoach(ctx context.Context, id int64) error
	SetMainCoach(ctx context.Context, eventID int64, assignmentID *int64) error
}

type occurrenceStore interface {
	FindByID(ctx context.Context, id int64) (*models.Occurrence, error)
	FindForUpdate(ctx context.Context, id int64) (*models.Occurrence, error)
	ListByEvent(ctx context.Context, eventID int64) ([]models.Occurrence, error)
	ListForPerson(ctx context.Context, personID int64, from time.Time) ([]models.OccurrenceDetail, error)
	ListUnclosed(ctx context.Context, kind models.EventKind, before time.Time) ([]models.OccurrenceDetail, error)
	Create(ctx context.Context, o *models.Occurrence) error
	Update(ctx context.Context, o *models.Occurrence) error
	SetState(ctx context.Context, id int64, state models.OccurrenceState) error
	Delete(ctx context.Context, id int64) error
}

type attendanceStore interface {
	Participants(ctx context.Context, occurrenceID int64) ([]models.ParticipantAttendance, error)
	Coaches(ctx context.Context, occurrenceID int64) ([]models.CoachAttendance, error)
	FindParticipant(ctx context.Context, occurrenceID, personID int64) (*models.ParticipantAttendance, error)
	FindCoach(ctx context.Context, occurrenceID, personID int64) (*models.CoachAttendance, error)
	InsertParticipant(ctx context.Context, row *models.ParticipantAttendance) error
	InsertCoach(ctx context.Context, row *models.CoachAttendance) error
	DeleteParticipant(ctx context.Context, id int64) error
	DeleteCoach(ctx context.Context, id int64) error
	SetParticipantState(ctx context.Context, id int64, state models.AttendanceState) error
	SetCoachState(ctx context.Context, id int64, state models.AttendanceState) error
	MarkParticipantsUnexcused(ctx context.Context, occurrenceID int64, personIDs []int64) error
	MarkCoachesUnexcused(ctx context.Context, occurrenceID int64, personIDs []int64) error
	ResetUnexcused(ctx context.Context, occurrenceID int64) error
	UpdateCoachPosition(ctx context.Context, id, positionID int64) error
	SetCoachTransaction(ctx context.Context, id int64, transactionID *int64) error
	ParticipantHistory(ctx context.Context, eventID, personID int64) ([]models.PersonAttendance, error)
}

type enrollmentStore interface {
	FindByID(ctx context.Context, id int64) (*models.Enrollment, error)
	FindByEventPerson(ctx context.Context, eventID, personID int64) (*models.Enrollment, error)
	ListByEvent(ctx context.Context, eventID int64, state models.EnrollmentState) ([]models.EnrollmentDetail, error)
	ListByState(ctx context.Context, eventID int64, state models.EnrollmentState) ([]models.Enrollment, error)
	ListByPerson(ctx context.Context, personID int64) ([]models.Enrollment, error)
	CountApproved(ctx context.Context, eventID, excludeID int64) (int, error)
	CountApprovedByWeekday(ctx context.Context, eventID, excludeID int64) (map[time.Weekday]int, error)
	Create(ctx context.Context, e *models.Enrollment) error
	Update(ctx context.Context, e *models.Enrollment) error
	Delete(ctx context.Context, id int64) error
}

type engineLedger interface {
	ledgerRepository
	ListByEnrollment(ctx context.Context, enrollmentID int64) ([]models.Transaction, error)
	ListByEvent(ctx context.Context, eventID int64) ([]models.Transaction, error)
}

type enginePersonStore interface {
	FindByID(ctx context.Context, id int64) (*models.Person, error)
	FindByIDs(ctx context.Context, ids []int64) ([]models.Person, error)
	ManagerIDs(ctx context.Context, id int64) ([]int64, error)
	HourlyRate(ctx context.Context, personID int64, category models.EventCategory) (int, error)
	ListWithHourlyRate(ctx context.Context, category models.EventCategory) ([]models.Person, error)
}

type membershipStore interface {
	FindByID(ctx context.Context, id int64) (*models.Group, error)
	IsMember(ctx context.Context, groupID, personID int64) (bool, error)
}

type qualificationStore interface {
	ValidFeatureIDs(ctx context.Context, personID int64, day time.Time) ([]int64, error)
}

type positionFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Position, error)
}

// EngineRepositories bundles the stores behind events, enrollments and
// attendance.
type EngineRepositories struct {
	Events      eventStore
	Occurrences occurrenceStore
	Attendance  attendanceStore
	Enrollments enrollmentStore
	Ledger      engineLedger
	Persons     enginePersonStore
	Groups      membershipStore
	Features    qualificationStore
	Positions   positionFinder
}

// EngineConfig holds the deadlines and thresholds of the event engine.
type EngineConfig struct {
	Location            *time.Location
	Deadlines           config.DeadlineConfig
	WageDueDays         int
	FeeDueDays          int
	MinAbsencesForAlert int
	UnclosedDays        int
}

// EventEngine is the core shared by EventService, EnrollmentService and
// OccurrenceService. It owns the materialization of attendance rows.
type EventEngine struct {
	repos      EngineRepositories
	tx         txRunner
	notifier   Notifier
	recipients recipientResolver
	validator  *validator.Validate
	logger     *zap.Logger
	config     EngineConfig
	clock      Clock
	cache      ledgerCache
	metrics    *MetricsService
}

// NewEventEngine wires the engine.
func NewEventEngine(repos EngineRepositories, tx txRunner, notifier Notifier, recipients recipientResolver, validate *validator.Validate, logger *zap.Logger, cfg EngineConfig) *EventEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.WageDueDays <= 0 {
		cfg.WageDueDays = 14
	}
	if cfg.FeeDueDays <= 0 {
		cfg.FeeDueDays = 14
	}
	return &EventEngine{
		repos:      repos,
		tx:         tx,
		notifier:   notifier,
		recipients: recipients,
		validator:  validate,
		logger:     logger,
		config:     cfg,
		clock:      systemClock,
	}
}

// WithClock overrides the time source.
func (e *EventEngine) WithClock(clock Clock) *EventEngine {
	if clock != nil {
		e.clock = clock
	}
	return e
}

// WithLedgerCache makes fee and wage changes drop cached ledger aggregates.
func (e *EventEngine) WithLedgerCache(cache ledgerCache) *EventEngine {
	e.cache = cache
	return e
}

// WithMetrics enables the domain counters.
func (e *EventEngine) WithMetrics(metrics *MetricsService) *EventEngine {
	e.metrics = metrics
	return e
}

func (e *EventEngine) today() time.Time {
	return dateOnly(e.clock(), e.config.Location)
}

// referenceDay is the day eligibility is judged on: the first day of an
// event that has not started yet, otherwise today.
func (e *EventEngine) referenceDay(event *models.Event) time.Time {
	today := e.today()
	if start := models.DateOnly(event.DateStart); start.After(today) {
		return start
	}
	return today
}

// beforeDeadline reports whether start lies at least days ahead of now.
func (e *EventEngine) beforeDeadline(start time.Time, days int) bool {
	return !e.clock().AddDate(0, 0, days).After(start)
}

func (e *EventEngine) loadEvent(ctx context.Context, id int64) (*models.Event, error) {
	event, err := e.repos.Events.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "event not found", "failed to load event")
	}
	return event, nil
}

func (e *EventEngine) lockEvent(ctx context.Context, id int64) (*models.Event, error) {
	event, err := e.repos.Events.FindForUpdate(ctx, id)
	if err != nil {
		return nil, repoError(err, "event not found", "failed to load event")
	}
	return event, nil
}

func (e *EventEngine) loadPerson(ctx context.Context, id int64) (*models.Person, error) {
	person, err := e.repos.Persons.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "person not found", "failed to load person")
	}
	return person, nil
}

func (e *EventEngine) coachesOf(ctx context.Context, eventID int64) ([]models.CoachPositionAssignment, error) {
	coaches, err := e.repos.Events.Coaches(ctx, eventID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list coaches")
	}
	return coaches, nil
}

// syncEvent brings the attendance rows of every open occurrence of the
// event in line with its approved enrollments and coach assignments.
func (e *EventEngine) syncEvent(ctx context.Context, event *models.Event) error {
	occurrences, err := e.repos.Occurrences.ListByEvent(ctx, event.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to list occurrences")
	}
	enrollments, err := e.repos.Enrollments.ListByState(ctx, event.ID, models.EnrollmentApproved)
	if err != nil {
		return appErrors.Internal(err, "failed to list enrollments")
	}
	coaches, err := e.coachesOf(ctx, event.ID)
	if err != nil {
		return err
	}
	for _, occ := range occurrences {
		if occ.State != models.OccurrenceOpen {
			continue
		}
		if err := e.syncOccurrence(ctx, event, occ, enrollments, coaches); err != nil {
			return err
		}
	}
	return nil
}

// syncOccurrence inserts the missing rows of one open occurrence and drops
// present rows nobody is entitled to any more. Excused and unexcused rows
// and rows added for this occurrence only are left alone.
func (e *EventEngine) syncOccurrence(ctx context.Context, event *models.Event, occ models.Occurrence, enrollments []models.Enrollment, coaches []models.CoachPositionAssignment) error {
	entitled := make(map[int64]bool, len(enrollments))
	for _, en := range enrollments {
		if !event.IsTraining() || en.Weekdays.Has(occ.Date.Weekday()) {
			entitled[en.PersonID] = true
		}
	}
	participants, err := e.repos.Attendance.Participants(ctx, occ.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to list participants")
	}
	for _, row := range participants {
		if entitled[row.PersonID] {
			delete(entitled, row.PersonID)
			continue
		}
		if row.OneTime() || row.State != models.AttendancePresent {
			continue
		}
		if err := e.repos.Attendance.DeleteParticipant(ctx, row.ID); err != nil {
			return repoError(err, "attendance not found", "failed to remove participant")
		}
	}
	for _, en := range enrollments {
		if !entitled[en.PersonID] {
			continue
		}
		row := &models.ParticipantAttendance{
			OccurrenceID: occ.ID,
			PersonID:     en.PersonID,
			EnrollmentID: int64Ptr(en.ID),
			State:        models.AttendancePresent,
		}
		if err := e.repos.Attendance.InsertParticipant(ctx, row); err != nil {
			return repoError(err, "attendance not found", "failed to add participant")
		}
	}

	assigned := make(map[int64]int64, len(coaches))
	for _, c := range coaches {
		assigned[c.PersonID] = c.PositionID
	}
	rows, err := e.repos.Attendance.Coaches(ctx, occ.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to list coaches")
	}
	for _, row := range rows {
		positionID, ok := assigned[row.PersonID]
		if ok {
			delete(assigned, row.PersonID)
			if !row.OneTime && row.PositionID != positionID {
				if err := e.repos.Attendance.UpdateCoachPosition(ctx, row.ID, positionID); err != nil {
					return repoError(err, "attendance not found", "failed to move coach")
				}
			}
			continue
		}
		if row.OneTime || row.State != models.AttendancePresent {
			continue
		}
		if err := e.repos.Attendance.DeleteCoach(ctx, row.ID); err != nil {
			return repoError(err, "attendance not found", "failed to remove coach")
		}
	}
	for _, c := range coaches {
		positionID, ok := assigned[c.PersonID]
		if !ok {
			continue
		}
		row := &models.CoachAttendance{
			OccurrenceID: occ.ID,
			PersonID:     c.PersonID,
			PositionID:   positionID,
			State:        models.AttendancePresent,
		}
		if err := e.repos.Attendance.InsertCoach(ctx, row); err != nil {
			return repoError(err, "attendance not found", "failed to add coach")
		}
	}
	return nil
}

// eligibilityProblems lists why person may not take part in event.
func (e *EventEngine) eligibilityProblems(ctx context.Context, event *models.Event, person *models.Person) ([]string, error) {
	var problems []string
	if !models.AgeAllowed(person.Age(e.referenceDay(event)), event.MinAge, event.MaxAge) {
		problems = append(problems, "age outside of the allowed range")
	}
	if !event.AllowedPersonTypes.Contains(person.PersonType) {
		problems = append(problems, "membership type not allowed")
	}
	if event.GroupID != nil {
		member, err := e.repos.Groups.IsMember(ctx, *event.GroupID, person.ID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to check group membership")
		}
		if !member {
			problems = append(problems, "not a member of the required group")
		}
	}
	return problems, nil
}

func (e *EventEngine) requireEligible(ctx context.Context, event *models.Event, person *models.Person) error {
	problems, err := e.eligibilityProblems(ctx, event, person)
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return appErrors.Invalid("person_id", strings.Join(problems, "; "))
	}
	return nil
}

// positionProblems lists why person may not fill position on day.
func (e *EventEngine) positionProblems(ctx context.Context, person *models.Person, position *models.Position, day time.Time) ([]string, error) {
	var problems []string
	if !models.AgeAllowed(person.Age(day), position.MinAge, position.MaxAge) {
		problems = append(problems, "age outside of the position's range")
	}
	if !position.AllowedPersonTypes.Contains(person.PersonType) {
		problems = append(problems, "membership type not allowed for the position")
	}
	if position.GroupID != nil {
		member, err := e.repos.Groups.IsMember(ctx, *position.GroupID, person.ID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to check group membership")
		}
		if !member {
			problems = append(problems, "not a member of the position's group")
		}
	}
	if len(position.RequiredFeatures) > 0 {
		held, err := e.repos.Features.ValidFeatureIDs(ctx, person.ID, day)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load qualifications")
		}
		for _, id := range position.RequiredFeatures {
			if !containsID(held, id) {
				problems = append(problems, fmt.Sprintf("missing required feature %d", id))
			}
		}
	}
	return problems, nil
}

func (e *EventEngine) requireQualified(ctx context.Context, person *models.Person, position *models.Position, day time.Time) error {
	problems, err := e.positionProblems(ctx, person, position, day)
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return appErrors.Invalid("person_id", strings.Join(problems, "; "))
	}
	return nil
}

// hasRoom reports whether approving en keeps the event within capacity.
// Trainings count capacity per weekday.
func (e *EventEngine) hasRoom(ctx context.Context, event *models.Event, en *models.Enrollment) (bool, error) {
	if event.HasUnlimitedCapacity() {
		return true, nil
	}
	capacity := *event.Capacity
	if capacity == 0 {
		return false, nil
	}
	if event.IsTraining() {
		counts, err := e.repos.Enrollments.CountApprovedByWeekday(ctx, event.ID, en.ID)
		if err != nil {
			return false, appErrors.Internal(err, "failed to count enrollments")
		}
		for _, day := range en.Weekdays {
			if counts[day] >= capacity {
				return false, nil
			}
		}
		return true, nil
	}
	count, err := e.repos.Enrollments.CountApproved(ctx, event.ID, en.ID)
	if err != nil {
		return false, appErrors.Internal(err, "failed to count enrollments")
	}
	return count < capacity, nil
}

// syncParticipationFee keeps the debt of a one-time enrollment equal to its
// agreed fee while approved. A settled fee stays when the enrollment is
// rejected.
func (e *EventEngine) syncParticipationFee(ctx context.Context, event *models.Event, en *models.Enrollment) error {
	if event.IsTraining() {
		return nil
	}
	var current *models.Transaction
	if en.TransactionID != nil {
		t, err := e.repos.Ledger.FindByID(ctx, *en.TransactionID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return appErrors.Internal(err, "failed to load participation fee")
		default:
			current = t
		}
	}
	fee := 0
	if en.State == models.EnrollmentApproved && en.AgreedParticipationFee != nil {
		fee = *en.AgreedParticipationFee
	}
	if fee == 0 && current != nil && current.IsSettled() {
		return nil
	}
	draft := models.Transaction{
		PersonID:     en.PersonID,
		Reason:       fmt.Sprintf("Účastnický poplatek: %s", event.Name),
		DateDue:      dueIn(e.clock(), e.config.Location, e.config.FeeDueDays),
		EventID:      int64Ptr(event.ID),
		EnrollmentID: int64Ptr(en.ID),
		UpdatedAt:    e.clock(),
	}
	if current != nil {
		draft.DateDue = current.DateDue
	}
	debt, err := syncDebt(ctx, e.repos.Ledger, current, fee, draft)
	if err != nil {
		return err
	}
	en.TransactionID = nil
	if debt != nil {
		en.TransactionID = int64Ptr(debt.ID)
	}
	return nil
}

// personRecipients returns the addresses of a person and of whoever manages
// them.
func (e *EventEngine) personRecipients(ctx context.Context, person *models.Person) []string {
	emails := emailsOf(*person)
	managerIDs, err := e.repos.Persons.ManagerIDs(ctx, person.ID)
	if err != nil {
		e.logger.Warn("failed to resolve managers", zap.Int64("person_id", person.ID), zap.Error(err))
		return emails
	}
	if len(managerIDs) == 0 {
		return emails
	}
	managers, err := e.repos.Persons.FindByIDs(ctx, managerIDs)
	if err != nil {
		e.logger.Warn("failed to load managers", zap.Int64("person_id", person.ID), zap.Error(err))
		return emails
	}
	return append(emails, emailsOf(managers...)...)
}

// organizerRecipients returns the main coach of a training, or every coach
// of a one-time event, together with the category administrators.
func (e *EventEngine) organizerRecipients(ctx context.Context, event *models.Event, coaches []models.CoachPositionAssignment) []string {
	var ids []int64
	for _, c := range coaches {
		if !event.IsTraining() || (event.MainCoachAssignmentID != nil && c.ID == *event.MainCoachAssignmentID) {
			ids = append(ids, c.PersonID)
		}
	}
	var emails []string
	if len(ids) > 0 {
		persons, err := e.repos.Persons.FindByIDs(ctx, ids)
		if err != nil {
			e.logger.Warn("failed to load coaches", zap.Int64("event_id", event.ID), zap.Error(err))
		}
		emails = emailsOf(persons...)
	}
	if e.recipients != nil {
		admins, err := e.recipients.HolderEmails(ctx, permissions.ForCategory(event.Category))
		if err != nil {
			e.logger.Warn("failed to resolve event administrators", zap.Int64("event_id", event.ID), zap.Error(err))
		}
		emails = append(emails, admins...)
	}
	return emails
}

// mainCoach returns the person of the training's main coach assignment.
func (e *EventEngine) mainCoach(ctx context.Context, event *models.Event, coaches []models.CoachPositionAssignment) (*models.Person, error) {
	if event.MainCoachAssignmentID == nil {
		return nil, nil
	}
	for _, c := range coaches {
		if c.ID == *event.MainCoachAssignmentID {
			return e.loadPerson(ctx, c.PersonID)
		}
	}
	return nil, nil
}
