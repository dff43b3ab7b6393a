package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

const featureColumns = `f.id, f.feature_type, f.parent_id, f.name, f.assignable, f.never_expires, f.fee, f.collect_issuers, f.collect_codes`

const assignmentColumns = `a.id, a.person_id, a.feature_id, a.date_assigned, a.date_expire, a.date_returned, a.issuer, a.code, a.expiry_email_sent`

// FeatureRepository persists the feature forest and feature assignments.
type FeatureRepository struct {
	db *sqlx.DB
}

// NewFeatureRepository constructs the repository.
func NewFeatureRepository(db *sqlx.DB) *FeatureRepository {
	return &FeatureRepository{db: db}
}

// List returns features of a type (all types when empty) ordered as a tree walk.
func (r *FeatureRepository) List(ctx context.Context, featureType models.FeatureType) ([]models.Feature, error) {
	query := fmt.Sprintf(`SELECT %s FROM features f`, featureColumns)
	var args []interface{}
	if featureType != "" {
		query += ` WHERE f.feature_type = $1`
		args = append(args, featureType)
	}
	query += ` ORDER BY COALESCE(f.parent_id, f.id), f.parent_id NULLS FIRST, f.name`
	var features []models.Feature
	if err := conn(ctx, r.db).SelectContext(ctx, &features, query, args...); err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	return features, nil
}

// FindByID returns one feature.
func (r *FeatureRepository) FindByID(ctx context.Context, id int64) (*models.Feature, error) {
	query := fmt.Sprintf(`SELECT %s FROM features f WHERE f.id = $1`, featureColumns)
	var feature models.Feature
	if err := conn(ctx, r.db).GetContext(ctx, &feature, query, id); err != nil {
		return nil, err
	}
	return &feature, nil
}

// Subtree returns the feature and all of its descendants.
func (r *FeatureRepository) Subtree(ctx context.Context, rootID int64) ([]models.Feature, error) {
	query := fmt.Sprintf(`WITH RECURSIVE tree AS (
            SELECT id FROM features WHERE id = $1
            UNION
            SELECT c.id FROM features c JOIN tree ON c.parent_id = tree.id
        ) SELECT %s FROM features f JOIN tree ON tree.id = f.id ORDER BY f.name`, featureColumns)
	var features []models.Feature
	if err := conn(ctx, r.db).SelectContext(ctx, &features, query, rootID); err != nil {
		return nil, fmt.Errorf("load feature subtree: %w", err)
	}
	return features, nil
}

// Ancestors returns the ids on the path from id up to its root, id included.
func (r *FeatureRepository) Ancestors(ctx context.Context, id int64) ([]int64, error) {
	const query = `WITH RECURSIVE up AS (
            SELECT id, parent_id FROM features WHERE id = $1
            UNION
            SELECT f.id, f.parent_id FROM features f JOIN up ON f.id = up.parent_id
        ) SELECT id FROM up`
	var ids []int64
	if err := conn(ctx, r.db).SelectContext(ctx, &ids, query, id); err != nil {
		return nil, fmt.Errorf("load feature ancestors: %w", err)
	}
	return ids, nil
}

// Create inserts a feature.
func (r *FeatureRepository) Create(ctx context.Context, f *models.Feature) error {
	const query = `INSERT INTO features (feature_type, parent_id, name, assignable, never_expires, fee, collect_issuers, collect_codes)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query,
		f.FeatureType, f.ParentID, f.Name, f.Assignable, f.NeverExpires, f.Fee, f.CollectIssuers, f.CollectCodes,
	).Scan(&f.ID); err != nil {
		return fmt.Errorf("create feature: %w", mapError(err))
	}
	return nil
}

// Update overwrites a feature.
func (r *FeatureRepository) Update(ctx context.Context, f *models.Feature) error {
	const query = `UPDATE features SET parent_id = $2, name = $3, assignable = $4, never_expires = $5, fee = $6,
        collect_issuers = $7, collect_codes = $8 WHERE id = $1`
	res, err := conn(ctx, r.db).ExecContext(ctx, query,
		f.ID, f.ParentID, f.Name, f.Assignable, f.NeverExpires, f.Fee, f.CollectIssuers, f.CollectCodes)
	if err != nil {
		return fmt.Errorf("update feature: %w", mapError(err))
	}
	return expectAffected(res)
}

// Delete removes a feature, its subtree and their assignments.
func (r *FeatureRepository) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM features WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete feature: %w", err)
	}
	return expectAffected(res)
}

// AssignmentIDsInSubtree lists assignments of the feature and its descendants.
func (r *FeatureRepository) AssignmentIDsInSubtree(ctx context.Context, rootID int64) ([]int64, error) {
	const query = `WITH RECURSIVE tree AS (
            SELECT id FROM features WHERE id = $1
            UNION
            SELECT c.id FROM features c JOIN tree ON c.parent_id = tree.id
        ) SELECT a.id FROM feature_assignments a JOIN tree ON tree.id = a.feature_id ORDER BY a.id`
	var ids []int64
	if err := conn(ctx, r.db).SelectContext(ctx, &ids, query, rootID); err != nil {
		return nil, fmt.Errorf("list subtree assignments: %w", err)
	}
	return ids, nil
}

// FindAssignment returns one assignment.
func (r *FeatureRepository) FindAssignment(ctx context.Context, id int64) (*models.FeatureAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM feature_assignments a WHERE a.id = $1`, assignmentColumns)
	var a models.FeatureAssignment
	if err := conn(ctx, r.db).GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssignmentsByPerson returns a person's assignments with feature names.
func (r *FeatureRepository) ListAssignmentsByPerson(ctx context.Context, personID int64, featureType models.FeatureType) ([]models.FeatureAssignmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s, f.name AS feature_name, f.feature_type, p.first_name, p.last_name, p.email
        FROM feature_assignments a JOIN features f ON f.id = a.feature_id JOIN persons p ON p.id = a.person_id
        WHERE a.person_id = $1`, assignmentColumns)
	args := []interface{}{personID}
	if featureType != "" {
		query += ` AND f.feature_type = $2`
		args = append(args, featureType)
	}
	query += ` ORDER BY a.date_assigned DESC, a.id`
	var out []models.FeatureAssignmentDetail
	if err := conn(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list person assignments: %w", err)
	}
	return out, nil
}

// ValidFeatureIDs returns the features a person currently holds on day.
func (r *FeatureRepository) ValidFeatureIDs(ctx context.Context, personID int64, day time.Time) ([]int64, error) {
	const query = `SELECT feature_id FROM feature_assignments
        WHERE person_id = $1 AND date_returned IS NULL AND (date_expire IS NULL OR date_expire >= $2)`
	var ids []int64
	if err := conn(ctx, r.db).SelectContext(ctx, &ids, query, personID, day); err != nil {
		return nil, fmt.Errorf("list valid features: %w", err)
	}
	return ids, nil
}

// ValidAssignmentsFor returns currently valid assignments of the given
// features, for the assignment matrix.
func (r *FeatureRepository) ValidAssignmentsFor(ctx context.Context, featureIDs []int64, day time.Time) ([]models.FeatureAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM feature_assignments a
        WHERE a.feature_id = ANY($1) AND a.date_returned IS NULL AND (a.date_expire IS NULL OR a.date_expire >= $2)
        ORDER BY a.person_id, a.feature_id`, assignmentColumns)
	var out []models.FeatureAssignment
	if err := conn(ctx, r.db).SelectContext(ctx, &out, query, pq.Array(featureIDs), day); err != nil {
		return nil, fmt.Errorf("list valid assignments: %w", err)
	}
	return out, nil
}

// CreateAssignment inserts an assignment; a second assignment of the same
// feature to the same person yields ErrDuplicate.
func (r *FeatureRepository) CreateAssignment(ctx context.Context, a *models.FeatureAssignment) error {
	const query = `INSERT INTO feature_assignments (person_id, feature_id, date_assigned, date_expire, date_returned, issuer, code, expiry_email_sent)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query,
		a.PersonID, a.FeatureID, a.DateAssigned, a.DateExpire, a.DateReturned, a.Issuer, a.Code, a.ExpiryEmailSent,
	).Scan(&a.ID); err != nil {
		return fmt.Errorf("create feature assignment: %w", mapError(err))
	}
	return nil
}

// UpdateAssignment overwrites an assignment's dates and metadata.
func (r *FeatureRepository) UpdateAssignment(ctx context.Context, a *models.FeatureAssignment) error {
	const query = `UPDATE feature_assignments SET date_assigned = $2, date_expire = $3, date_returned = $4, issuer = $5,
        code = $6, expiry_email_sent = $7 WHERE id = $1`
	res, err := conn(ctx, r.db).ExecContext(ctx, query,
		a.ID, a.DateAssigned, a.DateExpire, a.DateReturned, a.Issuer, a.Code, a.ExpiryEmailSent)
	if err != nil {
		return fmt.Errorf("update feature assignment: %w", err)
	}
	return expectAffected(res)
}

// DeleteAssignment removes an assignment.
func (r *FeatureRepository) DeleteAssignment(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM feature_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete feature assignment: %w", err)
	}
	return expectAffected(res)
}

// ListExpiring returns unreturned, unnotified assignments expiring on or
// before until.
func (r *FeatureRepository) ListExpiring(ctx context.Context, until time.Time) ([]models.FeatureAssignmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s, f.name AS feature_name, f.feature_type, p.first_name, p.last_name, p.email
        FROM feature_assignments a JOIN features f ON f.id = a.feature_id JOIN persons p ON p.id = a.person_id
        WHERE a.expiry_email_sent = false AND a.date_returned IS NULL AND a.date_expire IS NOT NULL AND a.date_expire <= $1
        ORDER BY a.date_expire, a.id`, assignmentColumns)
	var out []models.FeatureAssignmentDetail
	if err := conn(ctx, r.db).SelectContext(ctx, &out, query, until); err != nil {
		return nil, fmt.Errorf("list expiring assignments: %w", err)
	}
	return out, nil
}

// MarkExpiryEmailSent latches the notice flag; it reports false when another
// run already latched it.
func (r *FeatureRepository) MarkExpiryEmailSent(ctx context.Context, id int64) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE feature_assignments SET expiry_email_sent = true WHERE id = $1 AND expiry_email_sent = false`, id)
	if err != nil {
		return false, fmt.Errorf("latch expiry email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
