package models

import "time"

// EnrollmentState is the lifecycle state of a participant enrollment.
type EnrollmentState string

const (
	EnrollmentWaiting    EnrollmentState = "waiting"
	EnrollmentApproved   EnrollmentState = "approved"
	EnrollmentSubstitute EnrollmentState = "substitute"
	EnrollmentRejected   EnrollmentState = "rejected"
)

var enrollmentTransitions = map[EnrollmentState][]EnrollmentState{
	EnrollmentWaiting:    {EnrollmentSubstitute},
	EnrollmentSubstitute: {EnrollmentWaiting, EnrollmentApproved, EnrollmentRejected},
	EnrollmentApproved:   {EnrollmentRejected},
	EnrollmentRejected:   {EnrollmentSubstitute},
}

// CanTransitionTo reports whether s may move to next.
func (s EnrollmentState) CanTransitionTo(next EnrollmentState) bool {
	for _, allowed := range enrollmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Enrollment is a participant's intent to attend an event. Weekdays is used by
// trainings only; AgreedParticipationFee and TransactionID by one-time events.
type Enrollment struct {
	ID                     int64           `db:"id" json:"id"`
	EventID                int64           `db:"event_id" json:"event_id"`
	PersonID               int64           `db:"person_id" json:"person_id"`
	State                  EnrollmentState `db:"state" json:"state"`
	CreatedAt              time.Time       `db:"created_at" json:"created_at"`
	AgreedParticipationFee *int            `db:"agreed_participation_fee" json:"agreed_participation_fee,omitempty"`
	Weekdays               WeekdaySet      `db:"weekdays" json:"weekdays"`
	TransactionID          *int64          `db:"transaction_id" json:"transaction_id,omitempty"`
}

// EnrollmentDetail joins an enrollment with the participant's name.
type EnrollmentDetail struct {
	Enrollment
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	Email     *string `db:"email" json:"email,omitempty"`
}

// EnrollRequest creates an enrollment. PersonID defaults to the active person.
type EnrollRequest struct {
	PersonID               int64 `json:"person_id" validate:"omitempty,min=1"`
	Weekdays               []int `json:"weekdays" validate:"dive,min=0,max=6"`
	AgreedParticipationFee *int  `json:"agreed_participation_fee" validate:"omitempty,min=0"`
}

// EnrollmentStateRequest transitions an enrollment. Weekdays is required
// when re-admitting a training enrollment out of rejected.
type EnrollmentStateRequest struct {
	State    EnrollmentState `json:"state" validate:"required,oneof=waiting approved substitute rejected"`
	Weekdays []int           `json:"weekdays" validate:"dive,min=0,max=6"`
}

// EnrollmentUpdateRequest edits weekdays or the agreed fee.
type EnrollmentUpdateRequest struct {
	Weekdays               []int `json:"weekdays" validate:"dive,min=0,max=6"`
	AgreedParticipationFee *int  `json:"agreed_participation_fee" validate:"omitempty,min=0"`
}

// EnrollmentFeeRequest adds a period fee debt to a training enrollment.
type EnrollmentFeeRequest struct {
	Amount  int    `json:"amount" validate:"required,min=1"`
	Reason  string `json:"reason" validate:"required,max=150"`
	DateDue Date   `json:"date_due"`
}

// ToWeekdays converts request integers into a weekday set.
func ToWeekdays(values []int) WeekdaySet {
	days := make([]time.Weekday, 0, len(values))
	for _, v := range values {
		days = append(days, time.Weekday(v))
	}
	return NewWeekdaySet(days...)
}
