package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
	"github.com/noah-isme/vzs-club-api/internal/repository"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

// EnrollmentCheck answers whether a person may enroll into an event.
type EnrollmentCheck struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// EnrollmentService handles participant enrollments and their fees.
type EnrollmentService struct {
	*EventEngine
}

// NewEnrollmentService creates an instance of EnrollmentService.
func NewEnrollmentService(engine *EventEngine) *EnrollmentService {
	return &EnrollmentService{EventEngine: engine}
}

// List returns the enrollments of an event, optionally in one state.
func (s *EnrollmentService) List(ctx context.Context, eventID int64, state models.EnrollmentState) ([]models.EnrollmentDetail, error) {
	switch state {
	case "", models.EnrollmentWaiting, models.EnrollmentApproved, models.EnrollmentSubstitute, models.EnrollmentRejected:
	default:
		return nil, appErrors.Invalid("state", "unknown enrollment state")
	}
	if _, err := s.loadEvent(ctx, eventID); err != nil {
		return nil, err
	}
	enrollments, err := s.repos.Enrollments.ListByEvent(ctx, eventID, state)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list enrollments")
	}
	return enrollments, nil
}

// ForPerson returns every enrollment of a person.
func (s *EnrollmentService) ForPerson(ctx context.Context, personID int64) ([]models.Enrollment, error) {
	enrollments, err := s.repos.Enrollments.ListByPerson(ctx, personID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list enrollments")
	}
	return enrollments, nil
}

// Get returns an enrollment by ID.
func (s *EnrollmentService) Get(ctx context.Context, id int64) (*models.Enrollment, error) {
	en, err := s.repos.Enrollments.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "enrollment not found", "failed to load enrollment")
	}
	return en, nil
}

// CanEnroll reports whether the person satisfies the event's age, group
// and membership type constraints and is not enrolled yet.
func (s *EnrollmentService) CanEnroll(ctx context.Context, eventID, personID int64) (*EnrollmentCheck, error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	person, err := s.loadPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	reasons, err := s.eligibilityProblems(ctx, event, person)
	if err != nil {
		return nil, err
	}
	if _, err := s.repos.Enrollments.FindByEventPerson(ctx, eventID, personID); err == nil {
		reasons = append(reasons, "already enrolled")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	if models.DateOnly(event.DateEnd).Before(s.today()) {
		reasons = append(reasons, "the event is over")
	}
	return &EnrollmentCheck{Allowed: len(reasons) == 0, Reasons: reasons}, nil
}

// Enroll signs a person up. The event decides whether a new enrollment is
// approved or waits as a substitute; an approval that would exceed the
// capacity falls back to substitute.
func (s *EnrollmentService) Enroll(ctx context.Context, principal *models.Principal, eventID int64, req models.EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}
	personID := req.PersonID
	if personID == 0 {
		if principal.ActivePerson == nil {
			return nil, appErrors.Invalid("person_id", "person is required")
		}
		personID = principal.ActivePerson.ID
	}

	en := &models.Enrollment{EventID: eventID, PersonID: personID, CreatedAt: s.clock(), Weekdays: models.WeekdaySet{}}
	box := &outbox{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		event, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		admin := permissions.IsEventAdmin(principal, event)
		if !admin && !principal.Manages(personID) {
			return appErrors.Clone(appErrors.ErrForbidden, "")
		}
		if models.DateOnly(event.DateEnd).Before(s.today()) {
			return stateConflict("the event is over")
		}
		if !admin && !event.IsTraining() && !s.beforeDeadline(event.DateStart.In(s.config.Location), s.config.Deadlines.ParticipantEnrollDays) {
			return stateConflict("the enrollment deadline has passed")
		}
		person, err := s.loadPerson(ctx, personID)
		if err != nil {
			return err
		}
		if err := s.requireEligible(ctx, event, person); err != nil {
			return err
		}

		if event.IsTraining() {
			if req.AgreedParticipationFee != nil {
				return appErrors.Invalid("agreed_participation_fee", "trainings are charged per period")
			}
			en.Weekdays, err = s.chooseWeekdays(event, req.Weekdays)
			if err != nil {
				return err
			}
		} else {
			if len(req.Weekdays) > 0 {
				return appErrors.Invalid("weekdays", "one-time events have no weekdays")
			}
			en.AgreedParticipationFee = event.DefaultParticipationFee
			if req.AgreedParticipationFee != nil {
				if !admin {
					return appErrors.Clone(appErrors.ErrForbidden, "only administrators agree on participation fees")
				}
				en.AgreedParticipationFee = req.AgreedParticipationFee
			}
		}

		en.State = event.ParticipantsEnrollState
		if en.State == models.EnrollmentApproved {
			room, err := s.hasRoom(ctx, event, en)
			if err != nil {
				return err
			}
			if !room {
				en.State = models.EnrollmentSubstitute
			}
		}
		if err := s.repos.Enrollments.Create(ctx, en); err != nil {
			return enrollmentError(err)
		}
		if en.State == models.EnrollmentApproved {
			if err := s.approved(ctx, event, en); err != nil {
				return err
			}
		}
		box.add(enrollmentStateMessage(s.personRecipients(ctx, person), *person, *event, en.State))
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(ctx, s.notifier)
	invalidateLedger(ctx, s.cache, personID)
	s.logger.Info("person enrolled",
		zap.Int64("enrollment_id", en.ID),
		zap.Int64("event_id", eventID),
		zap.Int64("person_id", personID),
		zap.String("state", string(en.State)))
	return en, nil
}

// approved books the fee of a freshly approved enrollment and materializes
// its attendance rows.
func (s *EnrollmentService) approved(ctx context.Context, event *models.Event, en *models.Enrollment) error {
	before := en.TransactionID
	if err := s.syncParticipationFee(ctx, event, en); err != nil {
		return err
	}
	if !sameID(before, en.TransactionID) {
		if err := s.repos.Enrollments.Update(ctx, en); err != nil {
			return repoError(err, "enrollment not found", "failed to update enrollment")
		}
	}
	return s.syncEvent(ctx, event)
}

func (s *EnrollmentService) chooseWeekdays(event *models.Event, values []int) (models.WeekdaySet, error) {
	weekdays := models.ToWeekdays(values)
	if len(weekdays) == 0 {
		return nil, appErrors.Invalid("weekdays", "choose at least one weekday")
	}
	if !weekdays.SubsetOf(event.HeldWeekdays()) {
		return nil, appErrors.Invalid("weekdays", "the training is not held on some of the chosen weekdays")
	}
	return weekdays, nil
}

// Transition moves an enrollment to another state. Approval re-checks
// eligibility and capacity; rejection clears weekdays, drops an unsettled
// fee and removes present attendance rows.
func (s *EnrollmentService) Transition(ctx context.Context, id int64, req models.EnrollmentStateRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment state payload")
	}
	var en *models.Enrollment
	box := &outbox{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if en, err = s.Get(ctx, id); err != nil {
			return err
		}
		event, err := s.lockEvent(ctx, en.EventID)
		if err != nil {
			return err
		}
		if !en.State.CanTransitionTo(req.State) {
			return stateConflict(fmt.Sprintf("enrollment cannot move from %s to %s", en.State, req.State))
		}
		person, err := s.loadPerson(ctx, en.PersonID)
		if err != nil {
			return err
		}
		switch req.State {
		case models.EnrollmentApproved:
			if err := s.requireEligible(ctx, event, person); err != nil {
				return err
			}
			room, err := s.hasRoom(ctx, event, en)
			if err != nil {
				return err
			}
			if !room {
				return stateConflict("the event is full")
			}
		case models.EnrollmentRejected:
			en.Weekdays = models.WeekdaySet{}
		case models.EnrollmentSubstitute:
			if event.IsTraining() && en.State == models.EnrollmentRejected {
				if en.Weekdays, err = s.chooseWeekdays(event, req.Weekdays); err != nil {
					return err
				}
			}
		}
		en.State = req.State
		if err := s.syncParticipationFee(ctx, event, en); err != nil {
			return err
		}
		if err := s.repos.Enrollments.Update(ctx, en); err != nil {
			return repoError(err, "enrollment not found", "failed to update enrollment")
		}
		if err := s.syncEvent(ctx, event); err != nil {
			return err
		}
		box.add(enrollmentStateMessage(s.personRecipients(ctx, person), *person, *event, en.State))
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(ctx, s.notifier)
	invalidateLedger(ctx, s.cache, en.PersonID)
	return en, nil
}

// BulkApprove promotes substitutes, oldest first, while capacity lasts.
// Ineligible substitutes are skipped.
func (s *EnrollmentService) BulkApprove(ctx context.Context, eventID int64) ([]models.Enrollment, error) {
	promoted := []models.Enrollment{}
	box := &outbox{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		event, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Capacity != nil && *event.Capacity == 0 {
			return nil
		}
		substitutes, err := s.repos.Enrollments.ListByState(ctx, eventID, models.EnrollmentSubstitute)
		if err != nil {
			return appErrors.Internal(err, "failed to list substitutes")
		}
		for i := range substitutes {
			en := &substitutes[i]
			person, err := s.loadPerson(ctx, en.PersonID)
			if err != nil {
				return err
			}
			problems, err := s.eligibilityProblems(ctx, event, person)
			if err != nil {
				return err
			}
			if len(problems) > 0 {
				s.logger.Debug("substitute skipped",
					zap.Int64("enrollment_id", en.ID),
					zap.String("reason", strings.Join(problems, "; ")))
				continue
			}
			room, err := s.hasRoom(ctx, event, en)
			if err != nil {
				return err
			}
			if !room {
				if event.IsTraining() {
					continue
				}
				break
			}
			en.State = models.EnrollmentApproved
			if err := s.syncParticipationFee(ctx, event, en); err != nil {
				return err
			}
			if err := s.repos.Enrollments.Update(ctx, en); err != nil {
				return repoError(err, "enrollment not found", "failed to update enrollment")
			}
			promoted = append(promoted, *en)
			box.add(enrollmentStateMessage(s.personRecipients(ctx, person), *person, *event, en.State))
		}
		if len(promoted) == 0 {
			return nil
		}
		return s.syncEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	box.flush(ctx, s.notifier)
	owners := make([]int64, 0, len(promoted))
	for _, en := range promoted {
		owners = append(owners, en.PersonID)
	}
	invalidateLedger(ctx, s.cache, owners...)
	s.logger.Info("substitutes approved", zap.Int64("event_id", eventID), zap.Int("count", len(promoted)))
	return promoted, nil
}

// Update edits the weekdays of a training enrollment or the agreed fee of a
// one-time one.
func (s *EnrollmentService) Update(ctx context.Context, id int64, req models.EnrollmentUpdateRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}
	var en *models.Enrollment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if en, err = s.Get(ctx, id); err != nil {
			return err
		}
		event, err := s.lockEvent(ctx, en.EventID)
		if err != nil {
			return err
		}
		if event.IsTraining() {
			if req.AgreedParticipationFee != nil {
				return appErrors.Invalid("agreed_participation_fee", "trainings are charged per period")
			}
			if req.Weekdays != nil {
				if en.State == models.EnrollmentRejected {
					return stateConflict("rejected enrollments have no weekdays")
				}
				if en.Weekdays, err = s.chooseWeekdays(event, req.Weekdays); err != nil {
					return err
				}
				if en.State == models.EnrollmentApproved {
					room, err := s.hasRoom(ctx, event, en)
					if err != nil {
						return err
					}
					if !room {
						return stateConflict("some of the chosen weekdays are full")
					}
				}
			}
		} else {
			if len(req.Weekdays) > 0 {
				return appErrors.Invalid("weekdays", "one-time events have no weekdays")
			}
			if req.AgreedParticipationFee != nil {
				en.AgreedParticipationFee = req.AgreedParticipationFee
				if err := s.syncParticipationFee(ctx, event, en); err != nil {
					return err
				}
			}
		}
		if err := s.repos.Enrollments.Update(ctx, en); err != nil {
			return repoError(err, "enrollment not found", "failed to update enrollment")
		}
		return s.syncEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	invalidateLedger(ctx, s.cache, en.PersonID)
	return en, nil
}

// Delete unenrolls a person. Event administrators may do so at any time;
// the person or their manager only before the unenroll deadline of a
// one-time event.
func (s *EnrollmentService) Delete(ctx context.Context, principal *models.Principal, id int64) error {
	var personID int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		en, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		personID = en.PersonID
		event, err := s.lockEvent(ctx, en.EventID)
		if err != nil {
			return err
		}
		if !permissions.IsEventAdmin(principal, event) {
			if !principal.Manages(en.PersonID) {
				return appErrors.Clone(appErrors.ErrForbidden, "")
			}
			if !event.IsTraining() && !s.beforeDeadline(event.DateStart.In(s.config.Location), s.config.Deadlines.ParticipantUnenrollDays) {
				return stateConflict("the unenroll deadline has passed")
			}
		}
		fees, err := s.repos.Ledger.ListByEnrollment(ctx, en.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to list enrollment fees")
		}
		for i := range fees {
			if err := dropUnsettled(ctx, s.repos.Ledger, &fees[i]); err != nil {
				return err
			}
		}
		if err := s.dropOpenRows(ctx, en); err != nil {
			return err
		}
		if err := s.repos.Enrollments.Delete(ctx, en.ID); err != nil {
			return repoError(err, "enrollment not found", "failed to delete enrollment")
		}
		return nil
	})
	if err != nil {
		return err
	}
	invalidateLedger(ctx, s.cache, personID)
	s.logger.Info("enrollment deleted", zap.Int64("enrollment_id", id), zap.Int64("person_id", personID))
	return nil
}

// dropOpenRows removes the rows an enrollment produced in open occurrences;
// closed occurrences keep their history.
func (s *EnrollmentService) dropOpenRows(ctx context.Context, en *models.Enrollment) error {
	occurrences, err := s.repos.Occurrences.ListByEvent(ctx, en.EventID)
	if err != nil {
		return appErrors.Internal(err, "failed to list occurrences")
	}
	for _, occ := range occurrences {
		if occ.State != models.OccurrenceOpen {
			continue
		}
		row, err := s.repos.Attendance.FindParticipant(ctx, occ.ID, en.PersonID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return appErrors.Internal(err, "failed to load attendance")
		}
		if row.EnrollmentID == nil || *row.EnrollmentID != en.ID {
			continue
		}
		if err := s.repos.Attendance.DeleteParticipant(ctx, row.ID); err != nil {
			return repoError(err, "attendance not found", "failed to remove participant")
		}
	}
	return nil
}

// Fees lists the transactions linked to an enrollment.
func (s *EnrollmentService) Fees(ctx context.Context, id int64) ([]models.Transaction, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	fees, err := s.repos.Ledger.ListByEnrollment(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list enrollment fees")
	}
	return fees, nil
}

// AddTrainingFee charges a period fee to a training enrollment.
func (s *EnrollmentService) AddTrainingFee(ctx context.Context, id int64, req models.EnrollmentFeeRequest) (*models.Transaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid fee payload")
	}
	en, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	event, err := s.loadEvent(ctx, en.EventID)
	if err != nil {
		return nil, err
	}
	if !event.IsTraining() {
		return nil, stateConflict("period fees belong to training enrollments")
	}
	if en.State == models.EnrollmentRejected {
		return nil, stateConflict("the enrollment was rejected")
	}
	due := dueIn(s.clock(), s.config.Location, s.config.FeeDueDays)
	if !req.DateDue.IsZero() {
		due = models.DateOnly(req.DateDue.Time)
	}
	t := &models.Transaction{
		PersonID:     en.PersonID,
		Amount:       -req.Amount,
		Reason:       strings.TrimSpace(req.Reason),
		DateDue:      due,
		EventID:      int64Ptr(event.ID),
		EnrollmentID: int64Ptr(en.ID),
		UpdatedAt:    s.clock(),
	}
	if err := s.repos.Ledger.Create(ctx, t); err != nil {
		return nil, repoError(err, "transaction not found", "failed to create fee")
	}
	invalidateLedger(ctx, s.cache, en.PersonID)
	return t, nil
}

func enrollmentError(err error) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "person is already enrolled")
	}
	return repoError(err, "enrollment not found", "failed to create enrollment")
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
