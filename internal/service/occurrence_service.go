package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
	"github.com/noah-isme/vzs-club-api/internal/repository"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
	"github.com/noah-isme/vzs-club-api/pkg/mailer"
)

// OccurrenceService runs attendance: closing and reopening occurrences,
// excuses, one-time coaches and participants, and the unclosed reminder.
type OccurrenceService struct {
	*EventEngine
}

// NewOccurrenceService creates an instance of OccurrenceService.
func NewOccurrenceService(engine *EventEngine) *OccurrenceService {
	return &OccurrenceService{EventEngine: engine}
}

// Get returns an occurrence by ID.
func (s *OccurrenceService) Get(ctx context.Context, id int64) (*models.Occurrence, error) {
	occ, err := s.repos.Occurrences.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "occurrence not found", "failed to load occurrence")
	}
	return occ, nil
}

// lockOpen locks an occurrence that must still be open, with its event.
func (s *OccurrenceService) lockOpen(ctx context.Context, id int64) (*models.Occurrence, *models.Event, error) {
	occ, err := s.repos.Occurrences.FindForUpdate(ctx, id)
	if err != nil {
		return nil, nil, repoError(err, "occurrence not found", "failed to load occurrence")
	}
	if occ.State != models.OccurrenceOpen {
		return nil, nil, stateConflict("the occurrence is not open")
	}
	event, err := s.loadEvent(ctx, occ.EventID)
	if err != nil {
		return nil, nil, err
	}
	return occ, event, nil
}

// privileged reports whether the principal runs the event: a category
// administrator or the main coach of a training.
func (s *OccurrenceService) privileged(principal *models.Principal, event *models.Event, coaches []models.CoachPositionAssignment) bool {
	return permissions.IsEventAdmin(principal, event) || permissions.IsMainCoach(principal, event, coaches)
}

// Roster returns the attendance rows of an occurrence.
func (s *OccurrenceService) Roster(ctx context.Context, id int64) (*models.OccurrenceRoster, error) {
	occ, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	participants, err := s.repos.Attendance.Participants(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list participants")
	}
	coaches, err := s.repos.Attendance.Coaches(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list coaches")
	}
	return &models.OccurrenceRoster{Occurrence: *occ, Participants: participants, Coaches: coaches}, nil
}

// ForPerson lists the upcoming occurrences a person attends.
func (s *OccurrenceService) ForPerson(ctx context.Context, personID int64) ([]models.OccurrenceDetail, error) {
	occurrences, err := s.repos.Occurrences.ListForPerson(ctx, personID, s.today())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list occurrences")
	}
	return occurrences, nil
}

// Update changes the hours of an open one-time occurrence.
func (s *OccurrenceService) Update(ctx context.Context, id int64, req models.OccurrenceRequest) (*models.Occurrence, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid occurrence payload")
	}
	var occ *models.Occurrence
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var (
			event *models.Event
			err   error
		)
		if occ, event, err = s.lockOpen(ctx, id); err != nil {
			return err
		}
		if event.IsTraining() {
			return stateConflict("training occurrences follow the training schedule")
		}
		occ.Hours = intPtr(req.Hours)
		if err := s.repos.Occurrences.Update(ctx, occ); err != nil {
			return repoError(err, "occurrence not found", "failed to update occurrence")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return occ, nil
}

// Close freezes the attendance of an open occurrence. Listed persons become
// unexcused, present coaches earn their wage and participants reaching the
// absence threshold are reported to the main coach.
func (s *OccurrenceService) Close(ctx context.Context, id int64, req models.CloseOccurrenceRequest) (*models.OccurrenceRoster, error) {
	var owners []int64
	box := &outbox{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		occ, event, err := s.lockOpen(ctx, id)
		if err != nil {
			return err
		}
		participants, err := s.repos.Attendance.Participants(ctx, occ.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to list participants")
		}
		coachRows, err := s.repos.Attendance.Coaches(ctx, occ.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to list coaches")
		}
		absentParticipants := uniqueIDs(req.AbsentParticipants)
		for _, personID := range absentParticipants {
			if !hasParticipant(participants, personID) {
				return appErrors.Invalid("absent_participants", fmt.Sprintf("person %d is not on the roster", personID))
			}
		}
		absentCoaches := uniqueIDs(req.AbsentCoaches)
		for _, personID := range absentCoaches {
			if !hasCoach(coachRows, personID) {
				return appErrors.Invalid("absent_coaches", fmt.Sprintf("person %d is not on the roster", personID))
			}
		}
		if err := s.repos.Attendance.MarkParticipantsUnexcused(ctx, occ.ID, absentParticipants); err != nil {
			return appErrors.Internal(err, "failed to mark absent participants")
		}
		if err := s.repos.Attendance.MarkCoachesUnexcused(ctx, occ.ID, absentCoaches); err != nil {
			return appErrors.Internal(err, "failed to mark absent coaches")
		}
		if err := s.repos.Occurrences.SetState(ctx, occ.ID, models.OccurrenceClosed); err != nil {
			return repoError(err, "occurrence not found", "failed to close occurrence")
		}
		occ.State = models.OccurrenceClosed

		for _, row := range coachRows {
			if row.State != models.AttendancePresent || containsID(absentCoaches, row.PersonID) {
				continue
			}
			paid, err := s.payWage(ctx, event, occ, row)
			if err != nil {
				return err
			}
			if paid {
				owners = append(owners, row.PersonID)
			}
		}
		if event.IsTraining() {
			return s.alertAbsences(ctx, event, occ, participants, box)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(ctx, s.notifier)
	invalidateLedger(ctx, s.cache, owners...)
	s.metrics.RecordOccurrenceClosed()
	s.logger.Info("occurrence closed", zap.Int64("occurrence_id", id), zap.Int("wages", len(owners)))
	return s.Roster(ctx, id)
}

// payWage books the reward of a present coach at their hourly rate for the
// event's category, rounded half up to whole crowns for partial hours. A
// settled wage is left as it is.
func (s *OccurrenceService) payWage(ctx context.Context, event *models.Event, occ *models.Occurrence, row models.CoachAttendance) (bool, error) {
	rate, err := s.repos.Persons.HourlyRate(ctx, row.PersonID, event.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, appErrors.Internal(err, "failed to load hourly rate")
	}
	amount := (rate*occ.DurationMinutes() + 30) / 60
	if amount <= 0 {
		return false, nil
	}
	reason := fmt.Sprintf("Vedení akce %s dne %s", event.Name, occ.Date.Format(models.DateLayout))
	due := models.DateOnly(occ.Date).AddDate(0, 0, s.config.WageDueDays)

	if row.TransactionID != nil {
		current, err := s.repos.Ledger.FindByID(ctx, *row.TransactionID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return false, appErrors.Internal(err, "failed to load wage")
		case current.IsSettled():
			return false, nil
		default:
			current.Amount = amount
			current.Reason = reason
			current.DateDue = due
			current.UpdatedAt = s.clock()
			if err := s.repos.Ledger.Update(ctx, current); err != nil {
				return false, repoError(err, "transaction not found", "failed to update wage")
			}
			return true, nil
		}
	}
	wage := &models.Transaction{
		PersonID:  row.PersonID,
		Amount:    amount,
		Reason:    reason,
		DateDue:   due,
		EventID:   int64Ptr(event.ID),
		UpdatedAt: s.clock(),
	}
	if err := s.repos.Ledger.Create(ctx, wage); err != nil {
		return false, repoError(err, "transaction not found", "failed to create wage")
	}
	if err := s.repos.Attendance.SetCoachTransaction(ctx, row.ID, int64Ptr(wage.ID)); err != nil {
		return false, repoError(err, "attendance not found", "failed to link wage")
	}
	return true, nil
}

// alertAbsences tells the main coach about participants whose run of
// missed occurrences, counted back from occ, just reached the threshold.
func (s *OccurrenceService) alertAbsences(ctx context.Context, event *models.Event, occ *models.Occurrence, participants []models.ParticipantAttendance, box *outbox) error {
	threshold := s.config.MinAbsencesForAlert
	if threshold <= 0 {
		return nil
	}
	coaches, err := s.coachesOf(ctx, event.ID)
	if err != nil {
		return err
	}
	coach, err := s.mainCoach(ctx, event, coaches)
	if err != nil || coach == nil {
		return err
	}
	for _, row := range participants {
		history, err := s.repos.Attendance.ParticipantHistory(ctx, event.ID, row.PersonID)
		if err != nil {
			return appErrors.Internal(err, "failed to load attendance history")
		}
		if absenceRun(history, occ.Date) != threshold {
			continue
		}
		person, err := s.loadPerson(ctx, row.PersonID)
		if err != nil {
			return err
		}
		box.add(absenceAlertMessage(emailsOf(*coach), *person, *event, threshold))
	}
	return nil
}

// absenceRun counts the missed occurrences in a row ending at day; history
// is ordered newest first.
func absenceRun(history []models.PersonAttendance, day time.Time) int {
	run := 0
	for _, h := range history {
		if h.Date.After(day) {
			continue
		}
		if h.State == models.AttendancePresent {
			break
		}
		run++
	}
	return run
}

// Reopen returns a closed occurrence to open: unsettled wages are deleted,
// unexcused rows turn present again and the rows are reconciled.
func (s *OccurrenceService) Reopen(ctx context.Context, id int64) (*models.Occurrence, error) {
	var (
		occ    *models.Occurrence
		owners []int64
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if occ, err = s.repos.Occurrences.FindForUpdate(ctx, id); err != nil {
			return repoError(err, "occurrence not found", "failed to load occurrence")
		}
		if occ.State != models.OccurrenceClosed {
			return stateConflict("only closed occurrences can be reopened")
		}
		event, err := s.loadEvent(ctx, occ.EventID)
		if err != nil {
			return err
		}
		rows, err := s.repos.Attendance.Coaches(ctx, occ.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to list coaches")
		}
		for _, row := range rows {
			if row.TransactionID == nil {
				continue
			}
			wage, err := s.repos.Ledger.FindByID(ctx, *row.TransactionID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return appErrors.Internal(err, "failed to load wage")
			}
			if wage != nil && wage.IsSettled() {
				continue
			}
			if err := dropUnsettled(ctx, s.repos.Ledger, wage); err != nil {
				return err
			}
			if err := s.repos.Attendance.SetCoachTransaction(ctx, row.ID, nil); err != nil {
				return repoError(err, "attendance not found", "failed to unlink wage")
			}
			owners = append(owners, row.PersonID)
		}
		if err := s.repos.Attendance.ResetUnexcused(ctx, occ.ID); err != nil {
			return appErrors.Internal(err, "failed to reset absences")
		}
		if err := s.repos.Occurrences.SetState(ctx, occ.ID, models.OccurrenceOpen); err != nil {
			return repoError(err, "occurrence not found", "failed to reopen occurrence")
		}
		occ.State = models.OccurrenceOpen
		return s.syncEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	invalidateLedger(ctx, s.cache, owners...)
	s.logger.Info("occurrence reopened", zap.Int64("occurrence_id", id))
	return occ, nil
}

// ExcuseParticipant excuses a participant from one occurrence.
func (s *OccurrenceService) ExcuseParticipant(ctx context.Context, principal *models.Principal, id, personID int64) error {
	return s.excuse(ctx, principal, id, personID, false)
}

// ExcuseCoach excuses a coach from one occurrence and offers the freed
// position to qualified persons who coach the category.
func (s *OccurrenceService) ExcuseCoach(ctx context.Context, principal *models.Principal, id, personID int64) error {
	return s.excuse(ctx, principal, id, personID, true)
}

func (s *OccurrenceService) excuse(ctx context.Context, principal *models.Principal, id, personID int64, coach bool) error {
	box := &outbox{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		occ, event, err := s.lockOpen(ctx, id)
		if err != nil {
			return err
		}
		coaches, err := s.coachesOf(ctx, event.ID)
		if err != nil {
			return err
		}
		if !s.privileged(principal, event, coaches) {
			if !principal.Manages(personID) {
				return appErrors.Clone(appErrors.ErrForbidden, "")
			}
			days := s.config.Deadlines.ParticipantExcuseDays
			if coach {
				days = s.config.Deadlines.CoachExcuseDays
			}
			if !s.beforeDeadline(occ.Start(s.config.Location), days) {
				return stateConflict("the excuse deadline has passed")
			}
		}
		person, err := s.loadPerson(ctx, personID)
		if err != nil {
			return err
		}

		var positionID int64
		if coach {
			row, err := s.repos.Attendance.FindCoach(ctx, occ.ID, personID)
			if err != nil {
				return repoError(err, "the person does not coach this occurrence", "failed to load attendance")
			}
			if row.State != models.AttendancePresent {
				return stateConflict("only present attendance can be excused")
			}
			if err := s.repos.Attendance.SetCoachState(ctx, row.ID, models.AttendanceExcused); err != nil {
				return repoError(err, "attendance not found", "failed to excuse coach")
			}
			positionID = row.PositionID
		} else {
			row, err := s.repos.Attendance.FindParticipant(ctx, occ.ID, personID)
			if err != nil {
				return repoError(err, "the person does not attend this occurrence", "failed to load attendance")
			}
			if row.State != models.AttendancePresent {
				return stateConflict("only present attendance can be excused")
			}
			if err := s.repos.Attendance.SetParticipantState(ctx, row.ID, models.AttendanceExcused); err != nil {
				return repoError(err, "attendance not found", "failed to excuse participant")
			}
		}

		box.add(excuseMessage(s.organizerRecipients(ctx, event, coaches), *person, *event, *occ, s.config.Location, coach))
		if coach {
			offers, err := s.coachOffers(ctx, event, occ, coaches, positionID)
			if err != nil {
				return err
			}
			for _, offer := range offers {
				box.add(offer)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	box.flush(ctx, s.notifier)
	s.logger.Info("attendance excused",
		zap.Int64("occurrence_id", id),
		zap.Int64("person_id", personID),
		zap.Bool("coach", coach))
	return nil
}

// coachOffers offers the freed position to persons with an hourly rate for
// the event's category who are not on the occurrence yet and qualify. Each
// candidate gets a message of their own.
func (s *OccurrenceService) coachOffers(ctx context.Context, event *models.Event, occ *models.Occurrence, coaches []models.CoachPositionAssignment, positionID int64) ([]mailer.Message, error) {
	position, err := s.repos.Positions.FindByID(ctx, positionID)
	if err != nil {
		return nil, repoError(err, "position not found", "failed to load position")
	}
	candidates, err := s.repos.Persons.ListWithHourlyRate(ctx, event.Category)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list coaches of the category")
	}
	rows, err := s.repos.Attendance.Coaches(ctx, occ.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list coaches")
	}
	assigned := make(map[int64]bool, len(rows)+len(coaches))
	for _, row := range rows {
		assigned[row.PersonID] = true
	}
	for _, c := range coaches {
		assigned[c.PersonID] = true
	}
	var offers []mailer.Message
	for i := range candidates {
		person := &candidates[i]
		if assigned[person.ID] {
			continue
		}
		problems, err := s.positionProblems(ctx, person, position, models.DateOnly(occ.Date))
		if err != nil {
			return nil, err
		}
		if len(problems) > 0 {
			continue
		}
		for _, email := range emailsOf(*person) {
			offers = append(offers, coachOfferMessage([]string{email}, *event, *occ, *position, s.config.Location))
		}
	}
	return offers, nil
}

// CancelParticipantExcuse reverts a participant's excuse to present.
func (s *OccurrenceService) CancelParticipantExcuse(ctx context.Context, id, personID int64) error {
	return s.cancelExcuse(ctx, id, personID, false)
}

// CancelCoachExcuse reverts a coach's excuse to present.
func (s *OccurrenceService) CancelCoachExcuse(ctx context.Context, id, personID int64) error {
	return s.cancelExcuse(ctx, id, personID, true)
}

func (s *OccurrenceService) cancelExcuse(ctx context.Context, id, personID int64, coach bool) error {
	box := &outbox{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		occ, event, err := s.lockOpen(ctx, id)
		if err != nil {
			return err
		}
		if coach {
			row, err := s.repos.Attendance.FindCoach(ctx, occ.ID, personID)
			if err != nil {
				return repoError(err, "the person does not coach this occurrence", "failed to load attendance")
			}
			if row.State != models.AttendanceExcused {
				return stateConflict("the coach is not excused")
			}
			if err := s.repos.Attendance.SetCoachState(ctx, row.ID, models.AttendancePresent); err != nil {
				return repoError(err, "attendance not found", "failed to cancel excuse")
			}
		} else {
			row, err := s.repos.Attendance.FindParticipant(ctx, occ.ID, personID)
			if err != nil {
				return repoError(err, "the person does not attend this occurrence", "failed to load attendance")
			}
			if row.State != models.AttendanceExcused {
				return stateConflict("the participant is not excused")
			}
			if err := s.repos.Attendance.SetParticipantState(ctx, row.ID, models.AttendancePresent); err != nil {
				return repoError(err, "attendance not found", "failed to cancel excuse")
			}
		}
		person, err := s.loadPerson(ctx, personID)
		if err != nil {
			return err
		}
		box.add(excuseCancelledMessage(s.personRecipients(ctx, person), *person, *event, *occ, s.config.Location))
		return nil
	})
	if err != nil {
		return err
	}
	box.flush(ctx, s.notifier)
	return nil
}

// AddCoach puts a coach on one occurrence only. Administrators may add
// anyone; self sign-up needs a free slot of the position, qualification and
// the enroll deadline.
func (s *OccurrenceService) AddCoach(ctx context.Context, principal *models.Principal, id int64, req models.OneTimeCoachRequest) (*models.CoachAttendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid coach payload")
	}
	personID, err := s.subject(principal, req.PersonID)
	if err != nil {
		return nil, err
	}
	row := &models.CoachAttendance{
		OccurrenceID: id,
		PersonID:     personID,
		PositionID:   req.PositionID,
		State:        models.AttendancePresent,
		OneTime:      true,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		occ, event, err := s.lockOpen(ctx, id)
		if err != nil {
			return err
		}
		coaches, err := s.coachesOf(ctx, event.ID)
		if err != nil {
			return err
		}
		position, err := s.repos.Positions.FindByID(ctx, req.PositionID)
		if err != nil {
			return referenceError(err, "position_id", "unknown position")
		}
		if !s.privileged(principal, event, coaches) {
			if !principal.Manages(personID) {
				return appErrors.Clone(appErrors.ErrForbidden, "")
			}
			if !s.beforeDeadline(occ.Start(s.config.Location), s.config.Deadlines.CoachEnrollDays) {
				return stateConflict("the enroll deadline has passed")
			}
			if err := s.checkOccurrenceSlot(ctx, event, occ, req.PositionID); err != nil {
				return err
			}
			person, err := s.loadPerson(ctx, personID)
			if err != nil {
				return err
			}
			if err := s.requireQualified(ctx, person, position, models.DateOnly(occ.Date)); err != nil {
				return err
			}
		} else if _, err := s.loadPerson(ctx, personID); err != nil {
			return err
		}
		if err := s.repos.Attendance.InsertCoach(ctx, row); err != nil {
			return rosterError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("one-time coach added", zap.Int64("occurrence_id", id), zap.Int64("person_id", personID))
	return row, nil
}

// checkOccurrenceSlot verifies that fewer present coaches hold the position
// on the occurrence than the event requires.
func (s *OccurrenceService) checkOccurrenceSlot(ctx context.Context, event *models.Event, occ *models.Occurrence, positionID int64) error {
	slot, err := s.repos.Events.FindPosition(ctx, event.ID, positionID)
	if err != nil {
		return referenceError(err, "position_id", "position is not required by the event")
	}
	rows, err := s.repos.Attendance.Coaches(ctx, occ.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to list coaches")
	}
	present := 0
	for _, row := range rows {
		if row.PositionID == positionID && row.State == models.AttendancePresent {
			present++
		}
	}
	if present >= slot.Count {
		return stateConflict("the position is fully staffed")
	}
	return nil
}

// AddParticipant puts a participant on one occurrence only. Self sign-up
// requires the event to admit one-time participants.
func (s *OccurrenceService) AddParticipant(ctx context.Context, principal *models.Principal, id int64, req models.OneTimeParticipantRequest) (*models.ParticipantAttendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid participant payload")
	}
	personID, err := s.subject(principal, req.PersonID)
	if err != nil {
		return nil, err
	}
	row := &models.ParticipantAttendance{OccurrenceID: id, PersonID: personID, State: models.AttendancePresent}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		occ, event, err := s.lockOpen(ctx, id)
		if err != nil {
			return err
		}
		coaches, err := s.coachesOf(ctx, event.ID)
		if err != nil {
			return err
		}
		person, err := s.loadPerson(ctx, personID)
		if err != nil {
			return err
		}
		if !s.privileged(principal, event, coaches) {
			if !principal.Manages(personID) {
				return appErrors.Clone(appErrors.ErrForbidden, "")
			}
			if !event.AllowOneTimeParticipants {
				return stateConflict("the event does not admit one-time participants")
			}
			if !s.beforeDeadline(occ.Start(s.config.Location), s.config.Deadlines.ParticipantEnrollDays) {
				return stateConflict("the enroll deadline has passed")
			}
			if err := s.requireEligible(ctx, event, person); err != nil {
				return err
			}
		}
		if err := s.repos.Attendance.InsertParticipant(ctx, row); err != nil {
			return rosterError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("one-time participant added", zap.Int64("occurrence_id", id), zap.Int64("person_id", personID))
	return row, nil
}

// RemoveCoach takes a one-time coach off an occurrence.
func (s *OccurrenceService) RemoveCoach(ctx context.Context, principal *models.Principal, id, personID int64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		occ, event, err := s.lockOpen(ctx, id)
		if err != nil {
			return err
		}
		row, err := s.repos.Attendance.FindCoach(ctx, occ.ID, personID)
		if err != nil {
			return repoError(err, "the person does not coach this occurrence", "failed to load attendance")
		}
		if !row.OneTime {
			return stateConflict("assigned coaches leave the event, not a single occurrence")
		}
		if err := s.checkUnenroll(ctx, principal, event, occ, personID, s.config.Deadlines.CoachUnenrollDays); err != nil {
			return err
		}
		if err := s.repos.Attendance.DeleteCoach(ctx, row.ID); err != nil {
			return repoError(err, "attendance not found", "failed to remove coach")
		}
		return nil
	})
}

// RemoveParticipant takes a one-time participant off an occurrence.
func (s *OccurrenceService) RemoveParticipant(ctx context.Context, principal *models.Principal, id, personID int64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		occ, event, err := s.lockOpen(ctx, id)
		if err != nil {
			return err
		}
		row, err := s.repos.Attendance.FindParticipant(ctx, occ.ID, personID)
		if err != nil {
			return repoError(err, "the person does not attend this occurrence", "failed to load attendance")
		}
		if !row.OneTime() {
			return stateConflict("enrolled participants excuse themselves instead")
		}
		if err := s.checkUnenroll(ctx, principal, event, occ, personID, s.config.Deadlines.ParticipantUnenrollDays); err != nil {
			return err
		}
		if err := s.repos.Attendance.DeleteParticipant(ctx, row.ID); err != nil {
			return repoError(err, "attendance not found", "failed to remove participant")
		}
		return nil
	})
}

func (s *OccurrenceService) checkUnenroll(ctx context.Context, principal *models.Principal, event *models.Event, occ *models.Occurrence, personID int64, days int) error {
	coaches, err := s.coachesOf(ctx, event.ID)
	if err != nil {
		return err
	}
	if s.privileged(principal, event, coaches) {
		return nil
	}
	if !principal.Manages(personID) {
		return appErrors.Clone(appErrors.ErrForbidden, "")
	}
	if !s.beforeDeadline(occ.Start(s.config.Location), days) {
		return stateConflict("the unenroll deadline has passed")
	}
	return nil
}

// subject resolves the person an attendance request is about; the active
// person by default.
func (s *OccurrenceService) subject(principal *models.Principal, personID int64) (int64, error) {
	if personID != 0 {
		return personID, nil
	}
	if principal.ActivePerson == nil {
		return 0, appErrors.Invalid("person_id", "person is required")
	}
	return principal.ActivePerson.ID, nil
}

// RemindUnclosed emails the organizers of open occurrences of kind that
// ended more than the configured number of days ago, once per person, and
// the administrators of each category. It returns the number of messages.
func (s *OccurrenceService) RemindUnclosed(ctx context.Context, kind models.EventKind) (int, error) {
	cutoff := s.today().AddDate(0, 0, -s.config.UnclosedDays)
	before := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, s.config.Location)
	occurrences, err := s.repos.Occurrences.ListUnclosed(ctx, kind, before)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list unclosed occurrences")
	}
	if len(occurrences) == 0 {
		return 0, nil
	}

	events := map[int64]*models.Event{}
	byEmail := map[string][]models.OccurrenceDetail{}
	byCategory := map[models.EventCategory][]models.OccurrenceDetail{}
	for _, occ := range occurrences {
		event, ok := events[occ.EventID]
		if !ok {
			if event, err = s.loadEvent(ctx, occ.EventID); err != nil {
				return 0, err
			}
			events[occ.EventID] = event
		}
		organizers, err := s.organizers(ctx, event)
		if err != nil {
			return 0, err
		}
		for _, email := range organizers {
			byEmail[email] = append(byEmail[email], occ)
		}
		byCategory[occ.EventCategory] = append(byCategory[occ.EventCategory], occ)
	}

	var messages []mailer.Message
	emails := make([]string, 0, len(byEmail))
	for email := range byEmail {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	for _, email := range emails {
		messages = append(messages, unclosedReminderMessage([]string{email}, byEmail[email], s.config.Location))
	}
	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, string(category))
	}
	sort.Strings(categories)
	for _, category := range categories {
		if s.recipients == nil {
			break
		}
		admins, err := s.recipients.HolderEmails(ctx, permissions.ForCategory(models.EventCategory(category)))
		if err != nil {
			s.logger.Warn("failed to resolve category administrators", zap.String("category", category), zap.Error(err))
			continue
		}
		if len(admins) == 0 {
			continue
		}
		messages = append(messages, unclosedReminderMessage(admins, byCategory[models.EventCategory(category)], s.config.Location))
	}
	s.notifier.Notify(ctx, messages...)
	s.logger.Info("unclosed occurrence reminders sent",
		zap.String("kind", string(kind)),
		zap.Int("occurrences", len(occurrences)),
		zap.Int("messages", len(messages)))
	return len(messages), nil
}

// organizers returns the addresses that answer for closing an event's
// occurrences: the main coach of a training, every coach of a one-time
// event.
func (s *OccurrenceService) organizers(ctx context.Context, event *models.Event) ([]string, error) {
	coaches, err := s.coachesOf(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if event.IsTraining() {
		coach, err := s.mainCoach(ctx, event, coaches)
		if err != nil || coach == nil {
			return nil, err
		}
		return emailsOf(*coach), nil
	}
	ids := make([]int64, 0, len(coaches))
	for _, c := range coaches {
		ids = append(ids, c.PersonID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	persons, err := s.repos.Persons.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load coaches")
	}
	return emailsOf(persons...), nil
}

func hasParticipant(rows []models.ParticipantAttendance, personID int64) bool {
	for _, row := range rows {
		if row.PersonID == personID {
			return true
		}
	}
	return false
}

func hasCoach(rows []models.CoachAttendance, personID int64) bool {
	for _, row := range rows {
		if row.PersonID == personID {
			return true
		}
	}
	return false
}

func rosterError(err error) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "the person is already on the roster")
	}
	return repoError(err, "attendance not found", "failed to add attendance")
}
