package domain

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the account record behind an identity
type Profile struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FullName     *string   `json:"full_name" db:"full_name"`
	IsAdmin      bool      `json:"is_admin" db:"is_admin"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// RefreshToken is a long-lived token that keeps a session alive
type RefreshToken struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
	Revoked   bool      `db:"revoked"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Role maps the admin flag onto the role carried in access tokens
func (p *Profile) Role() string {
	if p.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// DisplayName is the full name when set, the email otherwise
func (p *Profile) DisplayName() string {
	if p.FullName != nil && *p.FullName != "" {
		return *p.FullName
	}
	return p.Email
}
