package service

import (
	"context"
	"fmt"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
)

type finder[T any] interface {
	FindByID(ctx context.Context, id int64) (*T, error)
}

type assignmentFinder interface {
	FindAssignment(ctx context.Context, id int64) (*models.FeatureAssignment, error)
}

type eventCoachLister interface {
	finder[models.Event]
	Coaches(ctx context.Context, eventID int64) ([]models.CoachPositionAssignment, error)
}

// EntitySources are the repositories consulted when binding path parameters.
type EntitySources struct {
	Persons      finder[models.Person]
	Features     finder[models.Feature]
	Assignments  assignmentFinder
	Groups       finder[models.Group]
	Positions    finder[models.Position]
	Events       eventCoachLister
	Enrollments  finder[models.Enrollment]
	Occurrences  finder[models.Occurrence]
	Transactions finder[models.Transaction]
}

// EntityLoader fills permissions.Entities for the authorization middleware.
type EntityLoader struct {
	src EntitySources
}

// NewEntityLoader constructs an EntityLoader.
func NewEntityLoader(src EntitySources) *EntityLoader {
	return &EntityLoader{src: src}
}

// Load resolves one entity and its parents into e. A missing entity yields a
// NOT_FOUND error.
func (l *EntityLoader) Load(ctx context.Context, kind permissions.EntityKind, id int64, e *permissions.Entities) error {
	switch kind {
	case permissions.EntityPerson:
		person, err := l.src.Persons.FindByID(ctx, id)
		if err != nil {
			return repoError(err, "person not found", "failed to load person")
		}
		e.Person = person
	case permissions.EntityFeature:
		feature, err := l.src.Features.FindByID(ctx, id)
		if err != nil {
			return repoError(err, "feature not found", "failed to load feature")
		}
		e.Feature = feature
	case permissions.EntityAssignment:
		assignment, err := l.src.Assignments.FindAssignment(ctx, id)
		if err != nil {
			return repoError(err, "feature assignment not found", "failed to load feature assignment")
		}
		e.Assignment = assignment
		if err := l.Load(ctx, permissions.EntityFeature, assignment.FeatureID, e); err != nil {
			return err
		}
		return l.Load(ctx, permissions.EntityPerson, assignment.PersonID, e)
	case permissions.EntityGroup:
		group, err := l.src.Groups.FindByID(ctx, id)
		if err != nil {
			return repoError(err, "group not found", "failed to load group")
		}
		e.Group = group
	case permissions.EntityPosition:
		position, err := l.src.Positions.FindByID(ctx, id)
		if err != nil {
			return repoError(err, "position not found", "failed to load position")
		}
		e.Position = position
	case permissions.EntityEvent:
		if e.Event != nil && e.Event.ID == id {
			return nil
		}
		event, err := l.src.Events.FindByID(ctx, id)
		if err != nil {
			return repoError(err, "event not found", "failed to load event")
		}
		coaches, err := l.src.Events.Coaches(ctx, id)
		if err != nil {
			return repoError(err, "event not found", "failed to load coaches")
		}
		e.Event = event
		e.Coaches = coaches
	case permissions.EntityEnrollment:
		enrollment, err := l.src.Enrollments.FindByID(ctx, id)
		if err != nil {
			return repoError(err, "enrollment not found", "failed to load enrollment")
		}
		e.Enrollment = enrollment
		if err := l.Load(ctx, permissions.EntityEvent, enrollment.EventID, e); err != nil {
			return err
		}
		return l.Load(ctx, permissions.EntityPerson, enrollment.PersonID, e)
	case permissions.EntityOccurrence:
		occurrence, err := l.src.Occurrences.FindByID(ctx, id)
		if err != nil {
			return repoError(err, "occurrence not found", "failed to load occurrence")
		}
		e.Occurrence = occurrence
		return l.Load(ctx, permissions.EntityEvent, occurrence.EventID, e)
	case permissions.EntityTxn:
		txn, err := l.src.Transactions.FindByID(ctx, id)
		if err != nil {
			return repoError(err, "transaction not found", "failed to load transaction")
		}
		e.Transaction = txn
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	return nil
}
