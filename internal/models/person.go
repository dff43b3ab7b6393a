package models

import (
	"regexp"
	"strings"
	"time"
)

// PersonType is the membership type of a person.
type PersonType string

// Membership types.
const (
	PersonTypeAdult     PersonType = "adult"
	PersonTypeExpectant PersonType = "expectant"
	PersonTypeHonorary  PersonType = "honorary"
	PersonTypeChild     PersonType = "child"
	PersonTypeExternal  PersonType = "external"
	PersonTypeParent    PersonType = "parent"
	PersonTypeFormer    PersonType = "former"
	PersonTypeUnknown   PersonType = "unknown"
)

// AllPersonTypes lists every membership type in display order.
var AllPersonTypes = []PersonType{
	PersonTypeAdult,
	PersonTypeExpectant,
	PersonTypeHonorary,
	PersonTypeChild,
	PersonTypeExternal,
	PersonTypeParent,
	PersonTypeFormer,
	PersonTypeUnknown,
}

// PersonTypeLabels are the Czech labels used in exports and emails.
var PersonTypeLabels = map[PersonType]string{
	PersonTypeAdult:     "dospělý člen",
	PersonTypeExpectant: "čekatel",
	PersonTypeHonorary:  "čestný člen",
	PersonTypeChild:     "dítě",
	PersonTypeExternal:  "externista",
	PersonTypeParent:    "rodič",
	PersonTypeFormer:    "bývalý člen",
	PersonTypeUnknown:   "neznámý",
}

// Valid reports whether t is a known membership type.
func (t PersonType) Valid() bool {
	_, ok := PersonTypeLabels[t]
	return ok
}

// Sex of a person.
type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
)

// Person is a club member or an external contact.
type Person struct {
	ID                     int64      `db:"id" json:"id"`
	Email                  *string    `db:"email" json:"email,omitempty"`
	FirstName              string     `db:"first_name" json:"first_name"`
	LastName               string     `db:"last_name" json:"last_name"`
	DateOfBirth            time.Time  `db:"date_of_birth" json:"date_of_birth"`
	Sex                    Sex        `db:"sex" json:"sex"`
	PersonType             PersonType `db:"person_type" json:"person_type"`
	BirthNumber            *string    `db:"birth_number" json:"birth_number,omitempty"`
	HealthInsuranceCompany *int       `db:"health_insurance_company" json:"health_insurance_company,omitempty"`
	Phone                  *string    `db:"phone" json:"phone,omitempty"`
	Street                 *string    `db:"street" json:"street,omitempty"`
	City                   *string    `db:"city" json:"city,omitempty"`
	Postcode               *string    `db:"postcode" json:"postcode,omitempty"`
	SwimmingTime           *string    `db:"swimming_time" json:"swimming_time,omitempty"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns "First Last".
func (p Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Age returns completed years on the given day.
func (p Person) Age(on time.Time) int {
	years := on.Year() - p.DateOfBirth.Year()
	if on.Month() < p.DateOfBirth.Month() || (on.Month() == p.DateOfBirth.Month() && on.Day() < p.DateOfBirth.Day()) {
		years--
	}
	return years
}

// EmailAddress returns the address or "" when none is known.
func (p Person) EmailAddress() string {
	if p.Email == nil {
		return ""
	}
	return *p.Email
}

// PersonFilter narrows person listings. Types is always intersected with the
// caller's visibility scope by the service layer.
type PersonFilter struct {
	Search   string
	Types    []PersonType
	IDs      []int64
	Page     int
	PageSize int
}

// PersonRequest is the create/update payload for a person.
type PersonRequest struct {
	Email                  *string    `json:"email" validate:"omitempty,email"`
	FirstName              string     `json:"first_name" validate:"required,max=50"`
	LastName               string     `json:"last_name" validate:"required,max=50"`
	DateOfBirth            Date       `json:"date_of_birth"`
	Sex                    Sex        `json:"sex" validate:"required,oneof=M F"`
	PersonType             PersonType `json:"person_type" validate:"required"`
	BirthNumber            *string    `json:"birth_number"`
	HealthInsuranceCompany *int       `json:"health_insurance_company" validate:"omitempty,min=100,max=999"`
	Phone                  *string    `json:"phone"`
	Street                 *string    `json:"street" validate:"omitempty,max=100"`
	City                   *string    `json:"city" validate:"omitempty,max=50"`
	Postcode               *string    `json:"postcode" validate:"omitempty,max=10"`
	SwimmingTime           *string    `json:"swimming_time"`
}

// PersonHourlyRate is the wage a person claims for coaching one hour of a
// given event category.
type PersonHourlyRate struct {
	PersonID   int64         `db:"person_id" json:"person_id"`
	Category   EventCategory `db:"category" json:"category"`
	HourlyRate int           `db:"hourly_rate" json:"hourly_rate"`
}

// HourlyRateRequest sets or clears one rate; zero removes it.
type HourlyRateRequest struct {
	Category   EventCategory `json:"category" validate:"required"`
	HourlyRate int           `json:"hourly_rate" validate:"min=0"`
}

var (
	phoneDigits       = regexp.MustCompile(`\D`)
	birthNumberFormat = regexp.MustCompile(`^\d{6}/?\d{3,4}$`)
	swimTimeFormat    = regexp.MustCompile(`^\d{1,2}:\d{2}(\.\d{1,2})?$`)
)

// CanonicalPhone strips formatting and the Czech +420 prefix and returns the
// 9-digit national number.
func CanonicalPhone(raw string) (string, bool) {
	digits := phoneDigits.ReplaceAllString(raw, "")
	if strings.HasPrefix(raw, "+420") || strings.HasPrefix(raw, "00420") {
		digits = strings.TrimPrefix(strings.TrimPrefix(digits, "00"), "420")
	}
	if len(digits) != 9 {
		return "", false
	}
	return digits, true
}

// ValidBirthNumber checks the Czech birth number shape.
func ValidBirthNumber(v string) bool { return birthNumberFormat.MatchString(v) }

// ValidSwimmingTime checks a "MM:SS" or "MM:SS.hh" 100 m time.
func ValidSwimmingTime(v string) bool { return swimTimeFormat.MatchString(v) }
