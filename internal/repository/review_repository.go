package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"perfume-store/internal/domain"

	"github.com/google/uuid"
)

var ErrReviewNotFound = errors.New("review not found")

// ReviewRepository defines the interface for review data access
type ReviewRepository interface {
	Upsert(ctx context.Context, review *domain.Review) error
	ListByPerfume(ctx context.Context, perfumeID uuid.UUID) ([]*domain.Review, error)
	ListAll(ctx context.Context) ([]*domain.Review, error)
	FindByUserAndPerfume(ctx context.Context, userID, perfumeID uuid.UUID) (*domain.Review, error)
}

type reviewRepository struct {
	db *sql.DB
}

// NewReviewRepository creates a new instance of ReviewRepository
func NewReviewRepository(db *sql.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

const reviewSelect = `
	SELECT r.id, r.perfume_id, r.user_id, r.rating, r.comment, p.full_name, r.created_at
	FROM reviews r
	LEFT JOIN profiles p ON p.id = r.user_id`

func scanReview(row interface{ Scan(...any) error }) (*domain.Review, error) {
	review := &domain.Review{}
	var comment, author sql.NullString
	err := row.Scan(
		&review.ID,
		&review.PerfumeID,
		&review.UserID,
		&review.Rating,
		&comment,
		&author,
		&review.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if comment.Valid {
		review.Comment = &comment.String
	}
	if author.Valid {
		review.AuthorName = &author.String
	}
	return review, nil
}

// Upsert stores the review, replacing the user's previous review of the same perfume.
// ID and CreatedAt are refreshed from the stored row.
func (r *reviewRepository) Upsert(ctx context.Context, review *domain.Review) error {
	query := `
		INSERT INTO reviews (id, perfume_id, user_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT reviews_perfume_user_key
		DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, created_at = EXCLUDED.created_at
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		review.ID,
		review.PerfumeID,
		review.UserID,
		review.Rating,
		review.Comment,
		review.CreatedAt,
	).Scan(&review.ID, &review.CreatedAt)

	if err != nil {
		if isForeignKeyViolation(err, "fk_reviews_perfume") {
			return ErrPerfumeNotFound
		}
		if isForeignKeyViolation(err, "fk_reviews_user") {
			return ErrProfileNotFound
		}
		if isCheckViolation(err) {
			return fmt.Errorf("rating out of range: %w", err)
		}
		return fmt.Errorf("failed to upsert review: %w", err)
	}

	return nil
}

// ListByPerfume returns the reviews of one perfume, newest first
func (r *reviewRepository) ListByPerfume(ctx context.Context, perfumeID uuid.UUID) ([]*domain.Review, error) {
	return r.list(ctx, reviewSelect+` WHERE r.perfume_id = $1 ORDER BY r.created_at DESC`, perfumeID)
}

// ListAll returns every review; the browse view aggregates them per perfume
func (r *reviewRepository) ListAll(ctx context.Context) ([]*domain.Review, error) {
	return r.list(ctx, reviewSelect+` ORDER BY r.created_at DESC`)
}

// FindByUserAndPerfume returns the caller's own review of a perfume
func (r *reviewRepository) FindByUserAndPerfume(ctx context.Context, userID, perfumeID uuid.UUID) (*domain.Review, error) {
	query := reviewSelect + ` WHERE r.user_id = $1 AND r.perfume_id = $2`

	review, err := scanReview(r.db.QueryRowContext(ctx, query, userID, perfumeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to find review: %w", err)
	}

	return review, nil
}

func (r *reviewRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*domain.Review{}
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	return reviews, nil
}
