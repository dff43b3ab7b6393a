package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

const userColumns = `u.person_id, u.password_hash, u.is_superuser, u.last_login, u.created_at, u.updated_at`

// UserRepository persists users, permission grants and auth tokens.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new repository instance.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns the user owning the person with the given email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users u JOIN persons p ON p.id = u.person_id WHERE LOWER(p.email) = LOWER($1) LIMIT 1`, userColumns)
	var user models.User
	if err := conn(ctx, r.db).GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return r.withPermissions(ctx, &user)
}

// FindByID fetches a user by the owning person's id.
func (r *UserRepository) FindByID(ctx context.Context, personID int64) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users u WHERE u.person_id = $1`, userColumns)
	var user models.User
	if err := conn(ctx, r.db).GetContext(ctx, &user, query, personID); err != nil {
		return nil, err
	}
	return r.withPermissions(ctx, &user)
}

func (r *UserRepository) withPermissions(ctx context.Context, user *models.User) (*models.User, error) {
	perms, err := r.Permissions(ctx, user.PersonID)
	if err != nil {
		return nil, err
	}
	user.Permissions = perms
	return user, nil
}

// Permissions returns the codenames granted to a user.
func (r *UserRepository) Permissions(ctx context.Context, userID int64) ([]string, error) {
	perms := []string{}
	if err := conn(ctx, r.db).SelectContext(ctx, &perms, `SELECT codename FROM user_permissions WHERE user_id = $1 ORDER BY codename`, userID); err != nil {
		return nil, fmt.Errorf("list user permissions: %w", err)
	}
	return perms, nil
}

// SetPermissions replaces a user's grants.
func (r *UserRepository) SetPermissions(ctx context.Context, userID int64, codenames []string) error {
	db := conn(ctx, r.db)
	if _, err := db.ExecContext(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear user permissions: %w", err)
	}
	if len(codenames) == 0 {
		return nil
	}
	const query = `INSERT INTO user_permissions (user_id, codename) SELECT $1, UNNEST($2::text[]) ON CONFLICT DO NOTHING`
	if _, err := db.ExecContext(ctx, query, userID, pq.Array(codenames)); err != nil {
		return fmt.Errorf("grant user permissions: %w", err)
	}
	return nil
}

// ListPersonsWithPermission returns persons whose user holds codename,
// including superusers.
func (r *UserRepository) ListPersonsWithPermission(ctx context.Context, codename string) ([]models.Person, error) {
	query := fmt.Sprintf(`SELECT %s FROM persons p JOIN users u ON u.person_id = p.id
        WHERE u.is_superuser OR EXISTS (SELECT 1 FROM user_permissions up WHERE up.user_id = u.person_id AND up.codename = $1)
        ORDER BY p.id`, personColumns)
	var persons []models.Person
	if err := conn(ctx, r.db).SelectContext(ctx, &persons, query, codename); err != nil {
		return nil, fmt.Errorf("list permission holders: %w", err)
	}
	return persons, nil
}

// UpdateLastLogin stores the last login timestamp.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, personID int64, ts time.Time) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE users SET last_login = $2, updated_at = $2 WHERE person_id = $1`, personID, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword updates the password hash for a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, personID int64, passwordHash string, updatedAt time.Time) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE person_id = $1`, personID, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectAffected(res)
}

// List returns users joined with their persons.
func (r *UserRepository) List(ctx context.Context, page, size int) ([]models.UserDetail, int, error) {
	page, size = models.NormalizePage(page, size)
	query := fmt.Sprintf(`SELECT %s, p.first_name, p.last_name, p.email FROM users u JOIN persons p ON p.id = u.person_id
        ORDER BY p.last_name, p.first_name LIMIT %d OFFSET %d`, userColumns, size, (page-1)*size)
	var users []models.UserDetail
	if err := conn(ctx, r.db).SelectContext(ctx, &users, query); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	var total int
	if err := conn(ctx, r.db).GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// Create inserts a new user for an existing person.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	const query = `INSERT INTO users (person_id, password_hash, is_superuser, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, user.PersonID, user.PasswordHash, user.IsSuperuser, now, now); err != nil {
		return fmt.Errorf("create user: %w", mapError(err))
	}
	return nil
}

// CreateRefreshToken persists a refresh token.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, ip_address, user_agent)
        VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :ip_address, :user_agent)`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken loads a refresh token by its value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1`
	var rt models.RefreshToken
	if err := conn(ctx, r.db).GetContext(ctx, &rt, query, token); err != nil {
		return nil, err
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE refresh_tokens SET revoked = true, revoked_at = $2 WHERE id = $1`, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every active token of a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID int64) error {
	const query = `UPDATE refresh_tokens SET revoked = true, revoked_at = NOW() WHERE user_id = $1 AND revoked = false`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// DeleteExpiredRefreshTokens removes refresh tokens past expiry.
func (r *UserRepository) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

// FindAPIToken loads a REST token by key.
func (r *UserRepository) FindAPIToken(ctx context.Context, key string) (*models.APIToken, error) {
	var token models.APIToken
	if err := conn(ctx, r.db).GetContext(ctx, &token, `SELECT key, user_id, created_at FROM api_tokens WHERE key = $1`, key); err != nil {
		return nil, err
	}
	return &token, nil
}

// ReplaceAPIToken stores the user's single REST token, replacing any previous one.
func (r *UserRepository) ReplaceAPIToken(ctx context.Context, token *models.APIToken) error {
	const query = `INSERT INTO api_tokens (key, user_id, created_at) VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE SET key = EXCLUDED.key, created_at = EXCLUDED.created_at`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, token.Key, token.UserID, token.CreatedAt); err != nil {
		return fmt.Errorf("store api token: %w", mapError(err))
	}
	return nil
}

// DeleteAPIToken revokes the user's REST token.
func (r *UserRepository) DeleteAPIToken(ctx context.Context, userID int64) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM api_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete api token: %w", err)
	}
	return nil
}

// CreateResetToken persists a password reset token.
func (r *UserRepository) CreateResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	const query = `INSERT INTO password_reset_tokens (token, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, token.Token, token.UserID, token.ExpiresAt, token.CreatedAt); err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}
	return nil
}

// FindResetToken loads a reset token.
func (r *UserRepository) FindResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	var rt models.PasswordResetToken
	const query = `SELECT token, user_id, expires_at, created_at FROM password_reset_tokens WHERE token = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &rt, query, token); err != nil {
		return nil, err
	}
	return &rt, nil
}

// DeleteResetTokens removes every reset token of a user.
func (r *UserRepository) DeleteResetTokens(ctx context.Context, userID int64) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete reset tokens: %w", err)
	}
	return nil
}

// DeleteExpiredResetTokens removes reset tokens past expiry.
func (r *UserRepository) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired reset tokens: %w", err)
	}
	return res.RowsAffected()
}
