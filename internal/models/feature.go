package models

import "time"

// FeatureType classifies the feature tree.
type FeatureType string

const (
	FeatureTypeQualification FeatureType = "qualification"
	FeatureTypePermission    FeatureType = "permission"
	FeatureTypeEquipment     FeatureType = "equipment"
)

// FeatureTexts are the Czech phrases used when talking about a feature kind.
type FeatureTexts struct {
	Singular      string
	Plural        string
	Assigned      string
	ExpirySubject string
}

// FeatureTypeTexts maps every feature kind to its wording.
var FeatureTypeTexts = map[FeatureType]FeatureTexts{
	FeatureTypeQualification: {
		Singular:      "kvalifikace",
		Plural:        "kvalifikace",
		Assigned:      "získaná kvalifikace",
		ExpirySubject: "Blížící se konec platnosti kvalifikace",
	},
	FeatureTypePermission: {
		Singular:      "oprávnění",
		Plural:        "oprávnění",
		Assigned:      "udělené oprávnění",
		ExpirySubject: "Blížící se konec platnosti oprávnění",
	},
	FeatureTypeEquipment: {
		Singular:      "vybavení",
		Plural:        "vybavení",
		Assigned:      "zapůjčené vybavení",
		ExpirySubject: "Blížící se termín vrácení vybavení",
	},
}

// Valid reports whether t is a known kind.
func (t FeatureType) Valid() bool {
	_, ok := FeatureTypeTexts[t]
	return ok
}

// Feature is a node of the qualification/permission/equipment forest.
type Feature struct {
	ID             int64       `db:"id" json:"id"`
	FeatureType    FeatureType `db:"feature_type" json:"feature_type"`
	ParentID       *int64      `db:"parent_id" json:"parent_id,omitempty"`
	Name           string      `db:"name" json:"name"`
	Assignable     bool        `db:"assignable" json:"assignable"`
	NeverExpires   *bool       `db:"never_expires" json:"never_expires,omitempty"`
	Fee            *int        `db:"fee" json:"fee,omitempty"`
	CollectIssuers *bool       `db:"collect_issuers" json:"collect_issuers,omitempty"`
	CollectCodes   *bool       `db:"collect_codes" json:"collect_codes,omitempty"`
}

// Expires reports whether assignments of the feature carry an expiry date.
func (f Feature) Expires() bool {
	return f.NeverExpires == nil || !*f.NeverExpires
}

// FeatureRequest is the create/update payload for a feature.
type FeatureRequest struct {
	FeatureType    FeatureType `json:"feature_type" validate:"required,oneof=qualification permission equipment"`
	ParentID       *int64      `json:"parent_id"`
	Name           string      `json:"name" validate:"required,max=50"`
	Assignable     bool        `json:"assignable"`
	NeverExpires   *bool       `json:"never_expires"`
	Fee            *int        `json:"fee" validate:"omitempty,min=0"`
	CollectIssuers *bool       `json:"collect_issuers"`
	CollectCodes   *bool       `json:"collect_codes"`
}

// FeatureAssignment records that a person holds a feature.
type FeatureAssignment struct {
	ID              int64      `db:"id" json:"id"`
	PersonID        int64      `db:"person_id" json:"person_id"`
	FeatureID       int64      `db:"feature_id" json:"feature_id"`
	DateAssigned    time.Time  `db:"date_assigned" json:"date_assigned"`
	DateExpire      *time.Time `db:"date_expire" json:"date_expire,omitempty"`
	DateReturned    *time.Time `db:"date_returned" json:"date_returned,omitempty"`
	Issuer          *string    `db:"issuer" json:"issuer,omitempty"`
	Code            *string    `db:"code" json:"code,omitempty"`
	ExpiryEmailSent bool       `db:"expiry_email_sent" json:"expiry_email_sent"`
}

// ValidOn reports whether the assignment is in force on day: not returned and
// not expired before day.
func (a FeatureAssignment) ValidOn(day time.Time) bool {
	if a.DateReturned != nil {
		return false
	}
	return a.DateExpire == nil || !DateOnly(*a.DateExpire).Before(DateOnly(day))
}

// FeatureAssignmentDetail joins an assignment with its feature and owner.
type FeatureAssignmentDetail struct {
	FeatureAssignment
	FeatureName string      `db:"feature_name" json:"feature_name"`
	FeatureType FeatureType `db:"feature_type" json:"feature_type"`
	FirstName   string      `db:"first_name" json:"first_name"`
	LastName    string      `db:"last_name" json:"last_name"`
	Email       *string     `db:"email" json:"email,omitempty"`
}

// FeatureAssignmentRequest assigns a feature or edits an assignment. Fee and
// DueDate only apply to equipment; Fee falls back to the feature's fee.
type FeatureAssignmentRequest struct {
	FeatureID    int64   `json:"feature_id" validate:"required,min=1"`
	DateAssigned Date    `json:"date_assigned"`
	DateExpire   *Date   `json:"date_expire"`
	DateReturned *Date   `json:"date_returned"`
	Issuer       *string `json:"issuer" validate:"omitempty,max=150"`
	Code         *string `json:"code" validate:"omitempty,max=64"`
	Fee          *int    `json:"fee" validate:"omitempty,min=0"`
	DueDate      *Date   `json:"due_date"`
}

// FeatureMatrix is the persons × features grid of currently valid assignments
// within one subtree.
type FeatureMatrix struct {
	Features []Feature                 `json:"features"`
	Persons  []Person                  `json:"persons"`
	Cells    map[int64]map[int64]int64 `json:"cells"`
}
