package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

// GroupRepository persists groups and their members.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// List returns every group by name.
func (r *GroupRepository) List(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := conn(ctx, r.db).SelectContext(ctx, &groups, `SELECT id, name, google_email, google_as_members_authority FROM groups ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// FindByID returns one group.
func (r *GroupRepository) FindByID(ctx context.Context, id int64) (*models.Group, error) {
	var group models.Group
	if err := conn(ctx, r.db).GetContext(ctx, &group, `SELECT id, name, google_email, google_as_members_authority FROM groups WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// Create inserts a group.
func (r *GroupRepository) Create(ctx context.Context, g *models.Group) error {
	const query = `INSERT INTO groups (name, google_email, google_as_members_authority) VALUES ($1, $2, $3) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query, g.Name, g.GoogleEmail, g.GoogleAsMembersAuthority).Scan(&g.ID); err != nil {
		return fmt.Errorf("create group: %w", mapError(err))
	}
	return nil
}

// Update overwrites a group.
func (r *GroupRepository) Update(ctx context.Context, g *models.Group) error {
	const query = `UPDATE groups SET name = $2, google_email = $3, google_as_members_authority = $4 WHERE id = $1`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, g.ID, g.Name, g.GoogleEmail, g.GoogleAsMembersAuthority)
	if err != nil {
		return fmt.Errorf("update group: %w", mapError(err))
	}
	return expectAffected(res)
}

// Delete removes a group.
func (r *GroupRepository) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return expectAffected(res)
}

// Members returns the persons in a group.
func (r *GroupRepository) Members(ctx context.Context, groupID int64) ([]models.Person, error) {
	query := fmt.Sprintf(`SELECT %s FROM persons p JOIN group_members gm ON gm.person_id = p.id
        WHERE gm.group_id = $1 ORDER BY p.last_name, p.first_name`, personColumns)
	var persons []models.Person
	if err := conn(ctx, r.db).SelectContext(ctx, &persons, query, groupID); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return persons, nil
}

// AddMembers inserts memberships, ignoring existing ones.
func (r *GroupRepository) AddMembers(ctx context.Context, groupID int64, personIDs []int64) error {
	const query = `INSERT INTO group_members (group_id, person_id) SELECT $1, UNNEST($2::bigint[]) ON CONFLICT DO NOTHING`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, groupID, pq.Array(personIDs)); err != nil {
		return fmt.Errorf("add group members: %w", err)
	}
	return nil
}

// RemoveMembers deletes memberships.
func (r *GroupRepository) RemoveMembers(ctx context.Context, groupID int64, personIDs []int64) error {
	const query = `DELETE FROM group_members WHERE group_id = $1 AND person_id = ANY($2)`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, groupID, pq.Array(personIDs)); err != nil {
		return fmt.Errorf("remove group members: %w", err)
	}
	return nil
}

// IsMember reports membership.
func (r *GroupRepository) IsMember(ctx context.Context, groupID, personID int64) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND person_id = $2)`
	if err := conn(ctx, r.db).GetContext(ctx, &exists, query, groupID, personID); err != nil {
		return false, fmt.Errorf("check group membership: %w", err)
	}
	return exists, nil
}
