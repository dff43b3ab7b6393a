package models

import (
	"time"
)

// EventKind tags the event variant.
type EventKind string

const (
	EventKindOneTime  EventKind = "one_time"
	EventKindTraining EventKind = "training"
)

// EventCategory is the variant-specific category. Hourly rates are declared
// per category.
type EventCategory string

const (
	CategoryCommercial   EventCategory = "commercial"
	CategoryCourse       EventCategory = "course"
	CategoryPresentation EventCategory = "presentation"
	CategoryClimbing     EventCategory = "climbing"
	CategorySwimming     EventCategory = "swimming"
	CategoryFirstAid     EventCategory = "first-aid"
)

var categoryKinds = map[EventCategory]EventKind{
	CategoryCommercial:   EventKindOneTime,
	CategoryCourse:       EventKindOneTime,
	CategoryPresentation: EventKindOneTime,
	CategoryClimbing:     EventKindTraining,
	CategorySwimming:     EventKindTraining,
	CategoryFirstAid:     EventKindTraining,
}

// CategoryLabels are Czech names used in emails and transaction reasons.
var CategoryLabels = map[EventCategory]string{
	CategoryCommercial:   "komerční akce",
	CategoryCourse:       "kurz",
	CategoryPresentation: "prezentační akce",
	CategoryClimbing:     "lezení",
	CategorySwimming:     "plavání",
	CategoryFirstAid:     "zdravověda",
}

// Kind returns the event variant the category belongs to.
func (c EventCategory) Kind() (EventKind, bool) {
	k, ok := categoryKinds[c]
	return k, ok
}

// Valid reports whether c is a known category.
func (c EventCategory) Valid() bool {
	_, ok := categoryKinds[c]
	return ok
}

// MinTrainingSpan is the minimum distance between a training's first and
// last day.
const MinTrainingSpan = 14 * 24 * time.Hour

// Event is either a one-time event or a training series. Days is populated
// for trainings only; Positions for both.
type Event struct {
	ID                       int64           `db:"id" json:"id"`
	Kind                     EventKind       `db:"kind" json:"kind"`
	Name                     string          `db:"name" json:"name"`
	Description              string          `db:"description" json:"description"`
	Location                 string          `db:"location" json:"location"`
	DateStart                time.Time       `db:"date_start" json:"date_start"`
	DateEnd                  time.Time       `db:"date_end" json:"date_end"`
	Capacity                 *int            `db:"capacity" json:"capacity,omitempty"`
	MinAge                   *int            `db:"min_age" json:"min_age,omitempty"`
	MaxAge                   *int            `db:"max_age" json:"max_age,omitempty"`
	GroupID                  *int64          `db:"group_id" json:"group_id,omitempty"`
	AllowedPersonTypes       PersonTypeList  `db:"allowed_person_types" json:"allowed_person_types"`
	ParticipantsEnrollState  EnrollmentState `db:"participants_enroll_state" json:"participants_enroll_state"`
	Category                 EventCategory   `db:"category" json:"category"`
	DefaultParticipationFee  *int            `db:"default_participation_fee" json:"default_participation_fee,omitempty"`
	AllowOneTimeParticipants bool            `db:"allow_one_time_participants" json:"allow_one_time_participants"`
	MainCoachAssignmentID    *int64          `db:"main_coach_assignment_id" json:"main_coach_assignment_id,omitempty"`
	UpdatedAt                time.Time       `db:"updated_at" json:"updated_at"`

	Days      []TrainingDay             `db:"-" json:"days,omitempty"`
	Positions []EventPositionAssignment `db:"-" json:"positions"`
}

// IsTraining reports whether the event is a training series.
func (e Event) IsTraining() bool { return e.Kind == EventKindTraining }

// HeldWeekdays returns the weekdays on which a training is held.
func (e Event) HeldWeekdays() WeekdaySet {
	days := make([]time.Weekday, 0, len(e.Days))
	for _, d := range e.Days {
		days = append(days, d.Weekday)
	}
	return NewWeekdaySet(days...)
}

// Day returns the schedule of weekday w.
func (e Event) Day(w time.Weekday) (TrainingDay, bool) {
	for _, d := range e.Days {
		if d.Weekday == w {
			return d, true
		}
	}
	return TrainingDay{}, false
}

// HasUnlimitedCapacity reports whether capacity is unset.
func (e Event) HasUnlimitedCapacity() bool { return e.Capacity == nil }

// TrainingDay is the time-of-day pair on which a training is held.
type TrainingDay struct {
	EventID   int64        `db:"event_id" json:"-"`
	Weekday   time.Weekday `db:"weekday" json:"weekday"`
	TimeStart ClockTime    `db:"time_start" json:"time_start"`
	TimeEnd   ClockTime    `db:"time_end" json:"time_end"`
}

// EventPositionAssignment is a position required by an event with the
// number of coaches needed.
type EventPositionAssignment struct {
	ID         int64 `db:"id" json:"id"`
	EventID    int64 `db:"event_id" json:"event_id"`
	PositionID int64 `db:"position_id" json:"position_id"`
	Count      int   `db:"count" json:"count"`
}

// CoachPositionAssignment assigns a person to a position for a whole event.
type CoachPositionAssignment struct {
	ID         int64 `db:"id" json:"id"`
	EventID    int64 `db:"event_id" json:"event_id"`
	PersonID   int64 `db:"person_id" json:"person_id"`
	PositionID int64 `db:"position_id" json:"position_id"`
}

// EventFilter narrows event listings.
type EventFilter struct {
	Kind     EventKind
	Category EventCategory
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// TrainingDayRequest is one held weekday of a training.
type TrainingDayRequest struct {
	Weekday   int       `json:"weekday" validate:"min=0,max=6"`
	TimeStart ClockTime `json:"time_start"`
	TimeEnd   ClockTime `json:"time_end"`
}

// OccurrenceDateRequest is one day of a one-time event.
type OccurrenceDateRequest struct {
	Date  Date `json:"date"`
	Hours int  `json:"hours" validate:"min=1,max=10"`
}

// EventRequest creates or edits either variant. Kind follows from Category.
type EventRequest struct {
	Name                     string                  `json:"name" validate:"required,max=50"`
	Description              string                  `json:"description"`
	Location                 string                  `json:"location" validate:"max=200"`
	DateStart                Date                    `json:"date_start"`
	DateEnd                  Date                    `json:"date_end"`
	Capacity                 *int                    `json:"capacity" validate:"omitempty,min=0"`
	MinAge                   *int                    `json:"min_age" validate:"omitempty,min=1,max=99"`
	MaxAge                   *int                    `json:"max_age" validate:"omitempty,min=1,max=99"`
	GroupID                  *int64                  `json:"group_id"`
	AllowedPersonTypes       []PersonType            `json:"allowed_person_types"`
	ParticipantsEnrollState  EnrollmentState         `json:"participants_enroll_state" validate:"required,oneof=substitute approved"`
	Category                 EventCategory           `json:"category" validate:"required"`
	DefaultParticipationFee  *int                    `json:"default_participation_fee" validate:"omitempty,min=0"`
	AllowOneTimeParticipants bool                    `json:"allow_one_time_participants"`
	Days                     []TrainingDayRequest    `json:"days" validate:"dive"`
	Dates                    []OccurrenceDateRequest `json:"dates" validate:"dive"`
}

// EventPositionRequest adds a position to an event or changes its count.
type EventPositionRequest struct {
	PositionID int64 `json:"position_id" validate:"required,min=1"`
	Count      int   `json:"count" validate:"required,min=1"`
}

// CoachAssignmentRequest assigns a coach to a position for the whole event.
type CoachAssignmentRequest struct {
	PersonID   int64 `json:"person_id" validate:"required,min=1"`
	PositionID int64 `json:"position_id" validate:"required,min=1"`
}

// MainCoachRequest selects (or clears, with nil) the main coach assignment.
type MainCoachRequest struct {
	AssignmentID *int64 `json:"assignment_id"`
}

// CoachPositionRequest moves an assigned coach to another position.
type CoachPositionRequest struct {
	PositionID int64 `json:"position_id" validate:"required,min=1"`
}
