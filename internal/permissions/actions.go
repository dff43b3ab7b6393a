package permissions

import "github.com/noah-isme/vzs-club-api/internal/models"

// Action names used by the HTTP layer.
const (
	ActionPersonList        = "persons.list"
	ActionPersonCreate      = "persons.create"
	ActionPersonView        = "persons.view"
	ActionPersonUpdate      = "persons.update"
	ActionPersonDelete      = "persons.delete"
	ActionPersonRates       = "persons.hourly_rates"
	ActionPersonManaged     = "persons.managed"
	ActionPersonExport      = "persons.export"
	ActionFeatureCreate     = "features.create"
	ActionFeatureView       = "features.view"
	ActionFeatureManage     = "features.manage"
	ActionFeatureAssign     = "features.assign"
	ActionAssignmentManage  = "features.assignment"
	ActionGroupView         = "groups.view"
	ActionGroupManage       = "groups.manage"
	ActionGroupCreate       = "groups.create"
	ActionPositionView      = "positions.view"
	ActionPositionManage    = "positions.manage"
	ActionPositionCreate    = "positions.create"
	ActionEventCreate       = "events.create"
	ActionEventView         = "events.view"
	ActionEventManage       = "events.manage"
	ActionEventEnroll       = "events.enroll"
	ActionEnrollmentManage  = "enrollments.manage"
	ActionEnrollmentView    = "enrollments.view"
	ActionEnrollmentOwn     = "enrollments.own"
	ActionOccurrenceView    = "occurrences.view"
	ActionOccurrenceManage  = "occurrences.manage"
	ActionOccurrenceClose   = "occurrences.close"
	ActionOccurrenceExcuse  = "occurrences.excuse"
	ActionOccurrenceSelf    = "occurrences.self_enroll"
	ActionTransactionManage = "transactions.manage"
	ActionTransactionView   = "transactions.view"
	ActionLedgerView        = "transactions.ledger"
	ActionUserList          = "users.list"
	ActionUserPermissions   = "users.permissions"
	ActionJobRun            = "jobs.run"
	ActionMetricsView       = "metrics.view"
)

var eventAdminAny = hasAny(EventAdminPermissions()...)

// Default is the registry of every action exposed over HTTP.
func Default() *Registry {
	return NewRegistry(
		ActionDescriptor{Name: ActionPersonList, Predicate: authenticated},
		ActionDescriptor{Name: ActionPersonCreate, Predicate: func(p *models.Principal, _ *Entities) bool {
			return HasAnyScope(user(p))
		}},
		ActionDescriptor{
			Name:   ActionPersonView,
			Params: map[string]EntityKind{"id": EntityPerson},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return CanViewPerson(p, e.Person)
			},
		},
		ActionDescriptor{
			Name:   ActionPersonUpdate,
			Params: map[string]EntityKind{"id": EntityPerson},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return CanAdministerPerson(p, e.Person) || (e.Person != nil && p.Manages(e.Person.ID))
			},
		},
		ActionDescriptor{
			Name:   ActionPersonDelete,
			Params: map[string]EntityKind{"id": EntityPerson},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return CanAdministerPerson(p, e.Person)
			},
		},
		ActionDescriptor{
			Name:   ActionPersonRates,
			Params: map[string]EntityKind{"id": EntityPerson},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return CanAdministerPerson(p, e.Person) || (e.Person != nil && p.Manages(e.Person.ID))
			},
		},
		ActionDescriptor{
			Name:   ActionPersonManaged,
			Params: map[string]EntityKind{"id": EntityPerson},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return CanAdministerPerson(p, e.Person)
			},
		},
		ActionDescriptor{Name: ActionPersonExport, Predicate: func(p *models.Principal, _ *Entities) bool {
			return HasAnyScope(user(p))
		}},

		ActionDescriptor{Name: ActionFeatureCreate, Predicate: hasAny(FeaturesQualifications, FeaturesPermissions, FeaturesEquipment)},
		ActionDescriptor{Name: ActionFeatureView, Predicate: authenticated},
		ActionDescriptor{
			Name:   ActionFeatureManage,
			Params: map[string]EntityKind{"id": EntityFeature},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return CanManageFeature(p, e.Feature)
			},
		},
		ActionDescriptor{
			Name:   ActionFeatureAssign,
			Params: map[string]EntityKind{"id": EntityPerson},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return CanViewPerson(p, e.Person) &&
					user(p).HasAnyPermission(FeaturesQualifications, FeaturesPermissions, FeaturesEquipment)
			},
		},
		ActionDescriptor{
			Name:   ActionAssignmentManage,
			Params: map[string]EntityKind{"assignmentId": EntityAssignment},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return CanManageFeature(p, e.Feature) && CanViewPerson(p, e.Person)
			},
		},

		ActionDescriptor{Name: ActionGroupView, Predicate: authenticated},
		ActionDescriptor{Name: ActionGroupCreate, Predicate: has(Groups)},
		ActionDescriptor{
			Name:      ActionGroupManage,
			Params:    map[string]EntityKind{"id": EntityGroup},
			Predicate: has(Groups),
		},

		ActionDescriptor{Name: ActionPositionView, Predicate: authenticated},
		ActionDescriptor{Name: ActionPositionCreate, Predicate: has(Positions)},
		ActionDescriptor{
			Name:      ActionPositionManage,
			Params:    map[string]EntityKind{"id": EntityPosition},
			Predicate: has(Positions),
		},

		ActionDescriptor{Name: ActionEventCreate, Predicate: eventAdminAny},
		ActionDescriptor{
			Name:      ActionEventView,
			Params:    map[string]EntityKind{"id": EntityEvent},
			Predicate: authenticated,
		},
		ActionDescriptor{
			Name:   ActionEventManage,
			Params: map[string]EntityKind{"id": EntityEvent},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return IsEventAdmin(p, e.Event)
			},
		},
		ActionDescriptor{
			Name:      ActionEventEnroll,
			Params:    map[string]EntityKind{"id": EntityEvent},
			Predicate: authenticated,
		},
		ActionDescriptor{
			Name:   ActionEnrollmentView,
			Params: map[string]EntityKind{"id": EntityEvent},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return IsEventAdmin(p, e.Event) || IsEventCoach(p, e.Coaches)
			},
		},
		ActionDescriptor{
			Name:   ActionEnrollmentManage,
			Params: map[string]EntityKind{"enrollmentId": EntityEnrollment},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return IsEventAdmin(p, e.Event)
			},
		},
		ActionDescriptor{
			Name:   ActionEnrollmentOwn,
			Params: map[string]EntityKind{"enrollmentId": EntityEnrollment},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return IsEventAdmin(p, e.Event) || (e.Enrollment != nil && p.Manages(e.Enrollment.PersonID))
			},
		},

		ActionDescriptor{
			Name:      ActionOccurrenceView,
			Params:    map[string]EntityKind{"occurrenceId": EntityOccurrence},
			Predicate: authenticated,
		},
		ActionDescriptor{
			Name:   ActionOccurrenceManage,
			Params: map[string]EntityKind{"occurrenceId": EntityOccurrence},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return IsEventAdmin(p, e.Event)
			},
		},
		ActionDescriptor{
			Name:   ActionOccurrenceClose,
			Params: map[string]EntityKind{"occurrenceId": EntityOccurrence},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return IsEventAdmin(p, e.Event) || IsMainCoach(p, e.Event, e.Coaches)
			},
		},
		ActionDescriptor{
			Name:      ActionOccurrenceExcuse,
			Params:    map[string]EntityKind{"occurrenceId": EntityOccurrence},
			Predicate: authenticated,
		},
		ActionDescriptor{
			Name:      ActionOccurrenceSelf,
			Params:    map[string]EntityKind{"occurrenceId": EntityOccurrence},
			Predicate: authenticated,
		},

		ActionDescriptor{Name: ActionTransactionManage, Predicate: has(Transactions)},
		ActionDescriptor{
			Name:   ActionTransactionView,
			Params: map[string]EntityKind{"id": EntityTxn},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return CanViewTransaction(p, e.Transaction)
			},
		},
		ActionDescriptor{
			Name:   ActionLedgerView,
			Params: map[string]EntityKind{"id": EntityPerson},
			Predicate: func(p *models.Principal, e *Entities) bool {
				return e.Person != nil && (user(p).HasPermission(Transactions) || p.Manages(e.Person.ID))
			},
		},

		ActionDescriptor{Name: ActionUserList, Predicate: has(Users)},
		ActionDescriptor{Name: ActionUserPermissions, Predicate: superuser},
		ActionDescriptor{Name: ActionJobRun, Predicate: superuser},
		ActionDescriptor{Name: ActionMetricsView, Predicate: superuser},
	)
}
