package models

import "time"

// User owns the authentication material of a person. Its key is the
// person's key.
type User struct {
	PersonID     int64      `db:"person_id" json:"person_id"`
	PasswordHash string     `db:"password_hash" json:"-"`
	IsSuperuser  bool       `db:"is_superuser" json:"is_superuser"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	Permissions  []string   `db:"-" json:"permissions"`
}

// HasPermission reports whether the user holds codename. Superusers hold all.
func (u *User) HasPermission(codename string) bool {
	if u == nil {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	for _, p := range u.Permissions {
		if p == codename {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the user holds at least one codename.
func (u *User) HasAnyPermission(codenames ...string) bool {
	for _, c := range codenames {
		if u.HasPermission(c) {
			return true
		}
	}
	return false
}

// UserDetail joins a user with its person for read-only listings.
type UserDetail struct {
	User
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	Email     *string `db:"email" json:"email,omitempty"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NormalizePage clamps page and size into sane bounds.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
