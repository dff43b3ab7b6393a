package models

import "time"

// OccurrenceState is the lifecycle of an occurrence.
type OccurrenceState string

const (
	OccurrenceOpen      OccurrenceState = "open"
	OccurrenceClosed    OccurrenceState = "closed"
	OccurrenceCompleted OccurrenceState = "completed"
)

// Occurrence is one dated instance of an event. One-time occurrences carry
// Hours; training occurrences carry the start and end datetimes.
type Occurrence struct {
	ID            int64           `db:"id" json:"id"`
	EventID       int64           `db:"event_id" json:"event_id"`
	State         OccurrenceState `db:"state" json:"state"`
	Date          time.Time       `db:"date" json:"date"`
	Hours         *int            `db:"hours" json:"hours,omitempty"`
	DatetimeStart *time.Time      `db:"datetime_start" json:"datetime_start,omitempty"`
	DatetimeEnd   *time.Time      `db:"datetime_end" json:"datetime_end,omitempty"`
}

// Start returns the moment the occurrence begins; one-time occurrences
// begin at local midnight of their date.
func (o Occurrence) Start(loc *time.Location) time.Time {
	if o.DatetimeStart != nil {
		return o.DatetimeStart.In(loc)
	}
	return time.Date(o.Date.Year(), o.Date.Month(), o.Date.Day(), 0, 0, 0, 0, loc)
}

// End returns the moment the occurrence ends; one-time occurrences end at
// the close of their date.
func (o Occurrence) End(loc *time.Location) time.Time {
	if o.DatetimeEnd != nil {
		return o.DatetimeEnd.In(loc)
	}
	return time.Date(o.Date.Year(), o.Date.Month(), o.Date.Day(), 23, 59, 59, 0, loc)
}

// DurationMinutes is the paid length of the occurrence.
func (o Occurrence) DurationMinutes() int {
	if o.Hours != nil {
		return *o.Hours * 60
	}
	if o.DatetimeStart != nil && o.DatetimeEnd != nil {
		return int(o.DatetimeEnd.Sub(*o.DatetimeStart).Minutes())
	}
	return 0
}

// OccurrenceDetail joins an occurrence with its event.
type OccurrenceDetail struct {
	Occurrence
	EventName     string        `db:"event_name" json:"event_name"`
	EventKind     EventKind     `db:"event_kind" json:"event_kind"`
	EventCategory EventCategory `db:"event_category" json:"event_category"`
}

// AttendanceState is the state of a per-occurrence attendance row.
type AttendanceState string

const (
	AttendancePresent   AttendanceState = "present"
	AttendanceExcused   AttendanceState = "excused"
	AttendanceUnexcused AttendanceState = "unexcused"
)

// ParticipantAttendance is a materialized participant row. EnrollmentID is
// nil for one-time participants.
type ParticipantAttendance struct {
	ID           int64           `db:"id" json:"id"`
	OccurrenceID int64           `db:"occurrence_id" json:"occurrence_id"`
	PersonID     int64           `db:"person_id" json:"person_id"`
	EnrollmentID *int64          `db:"enrollment_id" json:"enrollment_id,omitempty"`
	State        AttendanceState `db:"state" json:"state"`
}

// OneTime reports whether the row was added for this occurrence only.
func (a ParticipantAttendance) OneTime() bool { return a.EnrollmentID == nil }

// CoachAttendance is a materialized coach row with its optional wage.
type CoachAttendance struct {
	ID            int64           `db:"id" json:"id"`
	OccurrenceID  int64           `db:"occurrence_id" json:"occurrence_id"`
	PersonID      int64           `db:"person_id" json:"person_id"`
	PositionID    int64           `db:"position_id" json:"position_id"`
	State         AttendanceState `db:"state" json:"state"`
	OneTime       bool            `db:"one_time" json:"one_time"`
	TransactionID *int64          `db:"transaction_id" json:"transaction_id,omitempty"`
}

// PersonAttendance is an attendance row from the point of view of history
// scans: one row of a person across a training's occurrences.
type PersonAttendance struct {
	OccurrenceID int64           `db:"occurrence_id"`
	Date         time.Time       `db:"date"`
	State        AttendanceState `db:"state"`
}

// OccurrenceRequest edits one occurrence of a one-time event.
type OccurrenceRequest struct {
	Hours int `json:"hours" validate:"required,min=1,max=10"`
}

// CloseOccurrenceRequest lists who did not come; everyone else stays present.
type CloseOccurrenceRequest struct {
	AbsentParticipants []int64 `json:"absent_participants"`
	AbsentCoaches      []int64 `json:"absent_coaches"`
}

// OneTimeCoachRequest adds a coach to a single occurrence.
type OneTimeCoachRequest struct {
	PersonID   int64 `json:"person_id" validate:"omitempty,min=1"`
	PositionID int64 `json:"position_id" validate:"required,min=1"`
}

// OneTimeParticipantRequest adds a participant to a single occurrence.
type OneTimeParticipantRequest struct {
	PersonID int64 `json:"person_id" validate:"omitempty,min=1"`
}

// OccurrenceRoster is the attendance of one occurrence.
type OccurrenceRoster struct {
	Occurrence   Occurrence              `json:"occurrence"`
	Participants []ParticipantAttendance `json:"participants"`
	Coaches      []CoachAttendance       `json:"coaches"`
}
