package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"perfume-store/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProfileNotFound      = errors.New("profile not found")
	ErrProfileAlreadyExists = errors.New("profile with this email already exists")
)

// ProfileRepository defines the interface for profile data access
type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.Profile) error
	FindByEmail(ctx context.Context, email string) (*domain.Profile, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	List(ctx context.Context) ([]*domain.Profile, error)
	UpdateFullName(ctx context.Context, id uuid.UUID, fullName *string) (*domain.Profile, error)
	ToggleAdmin(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
}

type profileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new instance of ProfileRepository
func NewProfileRepository(db *sql.DB) ProfileRepository {
	return &profileRepository{db: db}
}

const profileColumns = `id, email, password_hash, full_name, is_admin, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*domain.Profile, error) {
	profile := &domain.Profile{}
	var fullName sql.NullString
	err := row.Scan(
		&profile.ID,
		&profile.Email,
		&profile.PasswordHash,
		&fullName,
		&profile.IsAdmin,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fullName.Valid {
		profile.FullName = &fullName.String
	}
	return profile, nil
}

// Create inserts a new profile using parameterized queries
func (r *profileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	query := `
		INSERT INTO profiles (id, email, password_hash, full_name, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		profile.ID,
		profile.Email,
		profile.PasswordHash,
		profile.FullName,
		profile.IsAdmin,
		profile.CreatedAt,
		profile.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err, "profiles_email_key") {
			return ErrProfileAlreadyExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// FindByEmail retrieves a profile by email
func (r *profileRepository) FindByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE email = $1`

	profile, err := scanProfile(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to find profile by email: %w", err)
	}

	return profile, nil
}

// FindByID retrieves a profile by ID
func (r *profileRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	profile, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}

	return profile, nil
}

// List retrieves all profiles, newest first
func (r *profileRepository) List(ctx context.Context) ([]*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := []*domain.Profile{}
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}

	return profiles, nil
}

// UpdateFullName sets the display name of a profile
func (r *profileRepository) UpdateFullName(ctx context.Context, id uuid.UUID, fullName *string) (*domain.Profile, error) {
	query := `
		UPDATE profiles SET full_name = $2
		WHERE id = $1
		RETURNING ` + profileColumns

	profile, err := scanProfile(r.db.QueryRowContext(ctx, query, id, fullName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return profile, nil
}

// ToggleAdmin flips the admin flag in a single statement
func (r *profileRepository) ToggleAdmin(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	query := `
		UPDATE profiles SET is_admin = NOT is_admin
		WHERE id = $1
		RETURNING ` + profileColumns

	profile, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to toggle admin flag: %w", err)
	}

	return profile, nil
}
