package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

const positionColumns = `id, name, wage_hour, min_age, max_age, group_id, allowed_person_types`

// PositionRepository persists positions and their required features.
type PositionRepository struct {
	db *sqlx.DB
}

// NewPositionRepository constructs the repository.
func NewPositionRepository(db *sqlx.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// List returns every position with required features.
func (r *PositionRepository) List(ctx context.Context) ([]models.Position, error) {
	var positions []models.Position
	if err := conn(ctx, r.db).SelectContext(ctx, &positions, `SELECT `+positionColumns+` FROM positions ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	for i := range positions {
		features, err := r.requiredFeatures(ctx, positions[i].ID)
		if err != nil {
			return nil, err
		}
		positions[i].RequiredFeatures = features
	}
	return positions, nil
}

// FindByID returns one position with required features.
func (r *PositionRepository) FindByID(ctx context.Context, id int64) (*models.Position, error) {
	var position models.Position
	if err := conn(ctx, r.db).GetContext(ctx, &position, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id); err != nil {
		return nil, err
	}
	features, err := r.requiredFeatures(ctx, id)
	if err != nil {
		return nil, err
	}
	position.RequiredFeatures = features
	return &position, nil
}

func (r *PositionRepository) requiredFeatures(ctx context.Context, positionID int64) ([]int64, error) {
	ids := []int64{}
	if err := conn(ctx, r.db).SelectContext(ctx, &ids, `SELECT feature_id FROM position_required_features WHERE position_id = $1 ORDER BY feature_id`, positionID); err != nil {
		return nil, fmt.Errorf("list required features: %w", err)
	}
	return ids, nil
}

// Create inserts a position with its required features.
func (r *PositionRepository) Create(ctx context.Context, p *models.Position) error {
	const query = `INSERT INTO positions (name, wage_hour, min_age, max_age, group_id, allowed_person_types)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query,
		p.Name, p.WageHour, p.MinAge, p.MaxAge, p.GroupID, p.AllowedPersonTypes,
	).Scan(&p.ID); err != nil {
		return fmt.Errorf("create position: %w", mapError(err))
	}
	return r.replaceRequiredFeatures(ctx, p.ID, p.RequiredFeatures)
}

// Update overwrites a position and its required features.
func (r *PositionRepository) Update(ctx context.Context, p *models.Position) error {
	const query = `UPDATE positions SET name = $2, wage_hour = $3, min_age = $4, max_age = $5, group_id = $6,
        allowed_person_types = $7 WHERE id = $1`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, p.ID, p.Name, p.WageHour, p.MinAge, p.MaxAge, p.GroupID, p.AllowedPersonTypes)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	return r.replaceRequiredFeatures(ctx, p.ID, p.RequiredFeatures)
}

func (r *PositionRepository) replaceRequiredFeatures(ctx context.Context, positionID int64, featureIDs []int64) error {
	db := conn(ctx, r.db)
	if _, err := db.ExecContext(ctx, `DELETE FROM position_required_features WHERE position_id = $1`, positionID); err != nil {
		return fmt.Errorf("clear required features: %w", err)
	}
	if len(featureIDs) == 0 {
		return nil
	}
	const query = `INSERT INTO position_required_features (position_id, feature_id) SELECT $1, UNNEST($2::bigint[]) ON CONFLICT DO NOTHING`
	if _, err := db.ExecContext(ctx, query, positionID, pq.Array(featureIDs)); err != nil {
		return fmt.Errorf("store required features: %w", err)
	}
	return nil
}

// Delete removes a position.
func (r *PositionRepository) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return expectAffected(res)
}
