package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

const personColumns = `p.id, p.email, p.first_name, p.last_name, p.date_of_birth, p.sex, p.person_type,
        p.birth_number, p.health_insurance_company, p.phone, p.street, p.city, p.postcode, p.swimming_time, p.updated_at`

// PersonRepository persists persons, their managed relation and hourly rates.
type PersonRepository struct {
	db *sqlx.DB
}

// NewPersonRepository constructs the repository.
func NewPersonRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// List returns persons matching the filter. An empty Types slice matches no
// one, so callers must always pass the caller's visible types.
func (r *PersonRepository) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error) {
	conditions := []string{"p.person_type = ANY($1)"}
	args := []interface{}{personTypeArray(filter.Types)}

	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.first_name || ' ' || p.last_name) LIKE $%d OR LOWER(COALESCE(p.email, '')) LIKE $%d)", len(args), len(args)))
	}
	if len(filter.IDs) > 0 {
		args = append(args, pq.Array(filter.IDs))
		conditions = append(conditions, fmt.Sprintf("p.id = ANY($%d)", len(args)))
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM persons p%s ORDER BY p.last_name, p.first_name, p.id LIMIT %d OFFSET %d`,
		personColumns, clause, size, (page-1)*size)

	var persons []models.Person
	if err := conn(ctx, r.db).SelectContext(ctx, &persons, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list persons: %w", err)
	}
	var total int
	if err := conn(ctx, r.db).GetContext(ctx, &total, "SELECT COUNT(*) FROM persons p"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count persons: %w", err)
	}
	return persons, total, nil
}

// ListAll returns every person of the given types, for exports.
func (r *PersonRepository) ListAll(ctx context.Context, types []models.PersonType) ([]models.Person, error) {
	query := fmt.Sprintf(`SELECT %s FROM persons p WHERE p.person_type = ANY($1) ORDER BY p.last_name, p.first_name, p.id`, personColumns)
	var persons []models.Person
	if err := conn(ctx, r.db).SelectContext(ctx, &persons, query, personTypeArray(types)); err != nil {
		return nil, fmt.Errorf("list all persons: %w", err)
	}
	return persons, nil
}

// FindByID returns a person by id.
func (r *PersonRepository) FindByID(ctx context.Context, id int64) (*models.Person, error) {
	query := fmt.Sprintf(`SELECT %s FROM persons p WHERE p.id = $1`, personColumns)
	var person models.Person
	if err := conn(ctx, r.db).GetContext(ctx, &person, query, id); err != nil {
		return nil, err
	}
	return &person, nil
}

// FindByIDs returns the persons with the given ids in id order.
func (r *PersonRepository) FindByIDs(ctx context.Context, ids []int64) ([]models.Person, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM persons p WHERE p.id = ANY($1) ORDER BY p.id`, personColumns)
	var persons []models.Person
	if err := conn(ctx, r.db).SelectContext(ctx, &persons, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find persons: %w", err)
	}
	return persons, nil
}

// FindByEmail returns a person by case-insensitive email.
func (r *PersonRepository) FindByEmail(ctx context.Context, email string) (*models.Person, error) {
	query := fmt.Sprintf(`SELECT %s FROM persons p WHERE LOWER(p.email) = LOWER($1)`, personColumns)
	var person models.Person
	if err := conn(ctx, r.db).GetContext(ctx, &person, query, email); err != nil {
		return nil, err
	}
	return &person, nil
}

// Create inserts a person and sets its id.
func (r *PersonRepository) Create(ctx context.Context, person *models.Person) error {
	person.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO persons (email, first_name, last_name, date_of_birth, sex, person_type, birth_number,
        health_insurance_company, phone, street, city, postcode, swimming_time, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`
	err := conn(ctx, r.db).QueryRowxContext(ctx, query,
		person.Email, person.FirstName, person.LastName, person.DateOfBirth, person.Sex, person.PersonType,
		person.BirthNumber, person.HealthInsuranceCompany, person.Phone, person.Street, person.City,
		person.Postcode, person.SwimmingTime, person.UpdatedAt,
	).Scan(&person.ID)
	if err != nil {
		return fmt.Errorf("create person: %w", mapError(err))
	}
	return nil
}

// Update overwrites a person's fields.
func (r *PersonRepository) Update(ctx context.Context, person *models.Person) error {
	person.UpdatedAt = time.Now().UTC()
	const query = `UPDATE persons SET email = $2, first_name = $3, last_name = $4, date_of_birth = $5, sex = $6,
        person_type = $7, birth_number = $8, health_insurance_company = $9, phone = $10, street = $11, city = $12,
        postcode = $13, swimming_time = $14, updated_at = $15 WHERE id = $1`
	res, err := conn(ctx, r.db).ExecContext(ctx, query,
		person.ID, person.Email, person.FirstName, person.LastName, person.DateOfBirth, person.Sex, person.PersonType,
		person.BirthNumber, person.HealthInsuranceCompany, person.Phone, person.Street, person.City,
		person.Postcode, person.SwimmingTime, person.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update person: %w", mapError(err))
	}
	return expectAffected(res)
}

// Delete removes a person; dependent rows cascade.
func (r *PersonRepository) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	return expectAffected(res)
}

// ManagedIDs returns every person managed by id, transitively.
func (r *PersonRepository) ManagedIDs(ctx context.Context, id int64) ([]int64, error) {
	const query = `WITH RECURSIVE managed AS (
            SELECT managed_id FROM person_managed_persons WHERE manager_id = $1
            UNION
            SELECT m.managed_id FROM person_managed_persons m JOIN managed ON m.manager_id = managed.managed_id
        ) SELECT managed_id FROM managed ORDER BY managed_id`
	var ids []int64
	if err := conn(ctx, r.db).SelectContext(ctx, &ids, query, id); err != nil {
		return nil, fmt.Errorf("list managed persons: %w", err)
	}
	return ids, nil
}

// ManagerIDs returns the persons directly managing id.
func (r *PersonRepository) ManagerIDs(ctx context.Context, id int64) ([]int64, error) {
	var ids []int64
	if err := conn(ctx, r.db).SelectContext(ctx, &ids, `SELECT manager_id FROM person_managed_persons WHERE managed_id = $1 ORDER BY manager_id`, id); err != nil {
		return nil, fmt.Errorf("list managers: %w", err)
	}
	return ids, nil
}

// AddManaged records that managerID manages managedID.
func (r *PersonRepository) AddManaged(ctx context.Context, managerID, managedID int64) error {
	const query = `INSERT INTO person_managed_persons (manager_id, managed_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, managerID, managedID); err != nil {
		return fmt.Errorf("add managed person: %w", err)
	}
	return nil
}

// RemoveManaged deletes the relation.
func (r *PersonRepository) RemoveManaged(ctx context.Context, managerID, managedID int64) error {
	const query = `DELETE FROM person_managed_persons WHERE manager_id = $1 AND managed_id = $2`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, managerID, managedID); err != nil {
		return fmt.Errorf("remove managed person: %w", err)
	}
	return nil
}

// HourlyRates returns a person's declared rates.
func (r *PersonRepository) HourlyRates(ctx context.Context, personID int64) ([]models.PersonHourlyRate, error) {
	const query = `SELECT person_id, category, hourly_rate FROM person_hourly_rates WHERE person_id = $1 ORDER BY category`
	var rates []models.PersonHourlyRate
	if err := conn(ctx, r.db).SelectContext(ctx, &rates, query, personID); err != nil {
		return nil, fmt.Errorf("list hourly rates: %w", err)
	}
	return rates, nil
}

// HourlyRate returns one rate; sql.ErrNoRows when none is declared.
func (r *PersonRepository) HourlyRate(ctx context.Context, personID int64, category models.EventCategory) (int, error) {
	const query = `SELECT hourly_rate FROM person_hourly_rates WHERE person_id = $1 AND category = $2`
	var rate int
	if err := conn(ctx, r.db).GetContext(ctx, &rate, query, personID, category); err != nil {
		return 0, err
	}
	return rate, nil
}

// SetHourlyRate upserts a rate.
func (r *PersonRepository) SetHourlyRate(ctx context.Context, rate models.PersonHourlyRate) error {
	const query = `INSERT INTO person_hourly_rates (person_id, category, hourly_rate) VALUES ($1, $2, $3)
        ON CONFLICT (person_id, category) DO UPDATE SET hourly_rate = EXCLUDED.hourly_rate`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, rate.PersonID, rate.Category, rate.HourlyRate); err != nil {
		return fmt.Errorf("set hourly rate: %w", err)
	}
	return nil
}

// DeleteHourlyRate removes a rate.
func (r *PersonRepository) DeleteHourlyRate(ctx context.Context, personID int64, category models.EventCategory) error {
	const query = `DELETE FROM person_hourly_rates WHERE person_id = $1 AND category = $2`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, personID, category); err != nil {
		return fmt.Errorf("delete hourly rate: %w", err)
	}
	return nil
}

// ListWithHourlyRate returns persons that declared a rate for category.
func (r *PersonRepository) ListWithHourlyRate(ctx context.Context, category models.EventCategory) ([]models.Person, error) {
	query := fmt.Sprintf(`SELECT %s FROM persons p JOIN person_hourly_rates h ON h.person_id = p.id
        WHERE h.category = $1 ORDER BY p.id`, personColumns)
	var persons []models.Person
	if err := conn(ctx, r.db).SelectContext(ctx, &persons, query, category); err != nil {
		return nil, fmt.Errorf("list persons with hourly rate: %w", err)
	}
	return persons, nil
}

func personTypeArray(types []models.PersonType) interface{} {
	raw := make([]string, 0, len(types))
	for _, t := range types {
		raw = append(raw, string(t))
	}
	return pq.Array(raw)
}
