package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"perfume-store/internal/domain"

	"github.com/google/uuid"
)

// FavoriteRepository defines the interface for favorites data access
type FavoriteRepository interface {
	// Insert adds the (user, perfume) pair; an existing pair is left as is
	Insert(ctx context.Context, userID, perfumeID uuid.UUID) error
	// DeleteByUserAndPerfume removes the pair and reports how many rows went away
	DeleteByUserAndPerfume(ctx context.Context, userID, perfumeID uuid.UUID) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Favorite, error)
}

type favoriteRepository struct {
	db *sql.DB
}

// NewFavoriteRepository creates a new instance of FavoriteRepository
func NewFavoriteRepository(db *sql.DB) FavoriteRepository {
	return &favoriteRepository{db: db}
}

func (r *favoriteRepository) Insert(ctx context.Context, userID, perfumeID uuid.UUID) error {
	query := `
		INSERT INTO favorites (id, perfume_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT ON CONSTRAINT favorites_perfume_user_key DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, uuid.New(), perfumeID, userID); err != nil {
		if isForeignKeyViolation(err, "fk_favorites_perfume") {
			return ErrPerfumeNotFound
		}
		if isForeignKeyViolation(err, "fk_favorites_user") {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to insert favorite: %w", err)
	}

	return nil
}

func (r *favoriteRepository) DeleteByUserAndPerfume(ctx context.Context, userID, perfumeID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND perfume_id = $2`,
		userID, perfumeID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete favorite: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// ListByUser returns the user's favorites joined with their perfume, newest first
func (r *favoriteRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Favorite, error) {
	query := `
		SELECT f.id, f.perfume_id, f.user_id, f.created_at, ` + qualifiedPerfumeColumns("pf") + `
		FROM favorites f
		JOIN perfumes pf ON pf.id = f.perfume_id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	favorites := []*domain.Favorite{}
	for rows.Next() {
		favorite := &domain.Favorite{}
		var perfume nullablePerfume
		dest := append([]any{
			&favorite.ID,
			&favorite.PerfumeID,
			&favorite.UserID,
			&favorite.CreatedAt,
		}, perfume.targets()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		favorite.Perfume = perfume.toDomain()
		favorites = append(favorites, favorite)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating favorites: %w", err)
	}

	return favorites, nil
}

func qualifiedPerfumeColumns(alias string) string {
	cols := make([]string, len(perfumeColumns))
	for i, c := range perfumeColumns {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
