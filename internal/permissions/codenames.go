// Package permissions holds the permission catalogue and the per-object
// predicates consulted before every mutation.
package permissions

import "github.com/noah-isme/vzs-club-api/internal/models"

// Membership scopes decide which persons a user may see and edit.
const (
	PersonsMembership = "persons.membership"
	PersonsChildren   = "persons.children"
	PersonsAquatic    = "persons.aquatic_children"
	PersonsClimbing   = "persons.climbing_children"
	PersonsAdults     = "persons.adults"
)

const (
	FeaturesQualifications = "features.qualifications"
	FeaturesPermissions    = "features.permissions"
	FeaturesEquipment      = "features.equipment"

	Groups       = "groups"
	Positions    = "positions"
	Transactions = "transactions"
	Users        = "users"

	EventsCommercial   = "events.commercial"
	EventsCourse       = "events.course"
	EventsPresentation = "events.presentation"
	TrainingsClimbing  = "trainings.climbing"
	TrainingsSwimming  = "trainings.swimming"
	TrainingsFirstAid  = "trainings.first_aid"
)

// All lists every grantable codename.
var All = []string{
	PersonsMembership, PersonsChildren, PersonsAquatic, PersonsClimbing, PersonsAdults,
	FeaturesQualifications, FeaturesPermissions, FeaturesEquipment,
	Groups, Positions, Transactions, Users,
	EventsCommercial, EventsCourse, EventsPresentation,
	TrainingsClimbing, TrainingsSwimming, TrainingsFirstAid,
}

var categoryPermissions = map[models.EventCategory]string{
	models.CategoryCommercial:   EventsCommercial,
	models.CategoryCourse:       EventsCourse,
	models.CategoryPresentation: EventsPresentation,
	models.CategoryClimbing:     TrainingsClimbing,
	models.CategorySwimming:     TrainingsSwimming,
	models.CategoryFirstAid:     TrainingsFirstAid,
}

var featurePermissions = map[models.FeatureType]string{
	models.FeatureTypeQualification: FeaturesQualifications,
	models.FeatureTypePermission:    FeaturesPermissions,
	models.FeatureTypeEquipment:     FeaturesEquipment,
}

// ForCategory returns the codename administering events of category c.
func ForCategory(c models.EventCategory) string { return categoryPermissions[c] }

// ForFeatureType returns the codename administering features of type t.
func ForFeatureType(t models.FeatureType) string { return featurePermissions[t] }

// EventAdminPermissions lists every event or training category codename.
func EventAdminPermissions() []string {
	out := make([]string, 0, len(categoryPermissions))
	for _, c := range []models.EventCategory{
		models.CategoryCommercial, models.CategoryCourse, models.CategoryPresentation,
		models.CategoryClimbing, models.CategorySwimming, models.CategoryFirstAid,
	} {
		out = append(out, categoryPermissions[c])
	}
	return out
}

// Known reports whether codename is in the catalogue.
func Known(codename string) bool {
	for _, c := range All {
		if c == codename {
			return true
		}
	}
	return false
}
