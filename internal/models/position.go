package models

// Position is a coaching role with a wage and entry requirements.
type Position struct {
	ID                 int64          `db:"id" json:"id"`
	Name               string         `db:"name" json:"name"`
	WageHour           int            `db:"wage_hour" json:"wage_hour"`
	MinAge             *int           `db:"min_age" json:"min_age,omitempty"`
	MaxAge             *int           `db:"max_age" json:"max_age,omitempty"`
	GroupID            *int64         `db:"group_id" json:"group_id,omitempty"`
	AllowedPersonTypes PersonTypeList `db:"allowed_person_types" json:"allowed_person_types"`
	RequiredFeatures   []int64        `db:"-" json:"required_features"`
}

// PositionRequest is the create/update payload for a position.
type PositionRequest struct {
	Name               string       `json:"name" validate:"required,max=50"`
	WageHour           int          `json:"wage_hour" validate:"required,min=1"`
	MinAge             *int         `json:"min_age" validate:"omitempty,min=1,max=99"`
	MaxAge             *int         `json:"max_age" validate:"omitempty,min=1,max=99"`
	GroupID            *int64       `json:"group_id"`
	AllowedPersonTypes []PersonType `json:"allowed_person_types"`
	RequiredFeatures   []int64      `json:"required_features"`
}

// AgeAllowed checks age against optional inclusive bounds.
func AgeAllowed(age int, minAge, maxAge *int) bool {
	if minAge != nil && age < *minAge {
		return false
	}
	if maxAge != nil && age > *maxAge {
		return false
	}
	return true
}
