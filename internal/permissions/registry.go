package permissions

import (
	"fmt"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

// EntityKind names a type of entity that can be bound from a path parameter.
type EntityKind string

const (
	EntityPerson     EntityKind = "person"
	EntityFeature    EntityKind = "feature"
	EntityAssignment EntityKind = "feature_assignment"
	EntityGroup      EntityKind = "group"
	EntityPosition   EntityKind = "position"
	EntityEvent      EntityKind = "event"
	EntityEnrollment EntityKind = "enrollment"
	EntityOccurrence EntityKind = "occurrence"
	EntityTxn        EntityKind = "transaction"
)

// Entities holds everything loaded for one request. Loading a child also
// loads its parents: an occurrence brings its event, an enrollment its event
// and person, an assignment its feature and person. Loading an event brings
// its coach assignments.
type Entities struct {
	Person      *models.Person
	Feature     *models.Feature
	Assignment  *models.FeatureAssignment
	Group       *models.Group
	Position    *models.Position
	Event       *models.Event
	Coaches     []models.CoachPositionAssignment
	Enrollment  *models.Enrollment
	Occurrence  *models.Occurrence
	Transaction *models.Transaction
}

// Predicate decides whether the principal may perform an action on the
// loaded entities.
type Predicate func(p *models.Principal, e *Entities) bool

// ActionDescriptor binds path parameters to entity kinds and a predicate.
type ActionDescriptor struct {
	Name      string
	Params    map[string]EntityKind
	Predicate Predicate
}

// Registry maps action names to descriptors.
type Registry struct {
	actions map[string]ActionDescriptor
}

// NewRegistry builds a registry from descriptors; duplicate names panic.
func NewRegistry(descriptors ...ActionDescriptor) *Registry {
	r := &Registry{actions: make(map[string]ActionDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if _, exists := r.actions[d.Name]; exists {
			panic(fmt.Sprintf("permissions: duplicate action %q", d.Name))
		}
		r.actions[d.Name] = d
	}
	return r
}

// Lookup returns the descriptor of an action.
func (r *Registry) Lookup(name string) (ActionDescriptor, bool) {
	d, ok := r.actions[name]
	return d, ok
}

// Allowed evaluates an action that binds no entities.
func (r *Registry) Allowed(name string, p *models.Principal) bool {
	d, ok := r.actions[name]
	if !ok || p == nil {
		return false
	}
	return d.Predicate(p, &Entities{})
}

func user(p *models.Principal) *models.User {
	if p == nil {
		return nil
	}
	return p.User
}

func has(codename string) Predicate {
	return func(p *models.Principal, _ *Entities) bool { return user(p).HasPermission(codename) }
}

func hasAny(codenames ...string) Predicate {
	return func(p *models.Principal, _ *Entities) bool { return user(p).HasAnyPermission(codenames...) }
}

func authenticated(p *models.Principal, _ *Entities) bool { return p != nil && p.User != nil }

func superuser(p *models.Principal, _ *Entities) bool { return user(p) != nil && user(p).IsSuperuser }

// CanViewPerson: own and managed persons, or persons in a visible type.
func CanViewPerson(p *models.Principal, person *models.Person) bool {
	if p == nil || person == nil {
		return false
	}
	return p.Manages(person.ID) || CanSeeType(p.User, person.PersonType)
}

// CanAdministerPerson requires a membership scope covering the person's type.
func CanAdministerPerson(p *models.Principal, person *models.Person) bool {
	return p != nil && person != nil && CanSeeType(p.User, person.PersonType)
}

// IsEventAdmin reports whether the user administers the event's category.
func IsEventAdmin(p *models.Principal, event *models.Event) bool {
	return p != nil && event != nil && p.User.HasPermission(ForCategory(event.Category))
}

// IsMainCoach reports whether the active person is the event's main coach.
func IsMainCoach(p *models.Principal, event *models.Event, coaches []models.CoachPositionAssignment) bool {
	if p == nil || p.ActivePerson == nil || event == nil || event.MainCoachAssignmentID == nil {
		return false
	}
	for _, c := range coaches {
		if c.ID == *event.MainCoachAssignmentID {
			return c.PersonID == p.ActivePerson.ID
		}
	}
	return false
}

// IsEventCoach reports whether the active person coaches the event.
func IsEventCoach(p *models.Principal, coaches []models.CoachPositionAssignment) bool {
	if p == nil || p.ActivePerson == nil {
		return false
	}
	for _, c := range coaches {
		if c.PersonID == p.ActivePerson.ID {
			return true
		}
	}
	return false
}

// CanManageFeature requires the permission of the feature's type.
func CanManageFeature(p *models.Principal, f *models.Feature) bool {
	return p != nil && f != nil && p.User.HasPermission(ForFeatureType(f.FeatureType))
}

// CanViewTransaction: ledger admins, or the owner acting for themselves or a
// managed person.
func CanViewTransaction(p *models.Principal, t *models.Transaction) bool {
	if p == nil || t == nil {
		return false
	}
	return p.User.HasPermission(Transactions) || p.Manages(t.PersonID)
}
