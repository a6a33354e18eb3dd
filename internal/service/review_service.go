package service

import (
	"context"
	"fmt"
	"time"

	"perfume-store/internal/domain"
	"perfume-store/internal/metrics"
	"perfume-store/internal/realtime"
	"perfume-store/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidRating = fmt.Errorf("rating must be between %d and %d", domain.MinRating, domain.MaxRating)

// AggregateReviews computes the rating statistics of one perfume from a flat
// review list. The average is 0 when the perfume has no reviews.
func AggregateReviews(reviews []*domain.Review, perfumeID uuid.UUID) domain.ReviewStats {
	var (
		count int
		sum   int
	)
	for _, r := range reviews {
		if r == nil || r.PerfumeID != perfumeID {
			continue
		}
		count++
		sum += r.Rating
	}
	if count == 0 {
		return domain.ReviewStats{}
	}
	return domain.ReviewStats{
		AverageRating: float64(sum) / float64(count),
		ReviewCount:   count,
	}
}

// SummarizeReviews aggregates every perfume present in reviews in a single pass
func SummarizeReviews(reviews []*domain.Review) map[uuid.UUID]domain.ReviewStats {
	type acc struct{ count, sum int }
	totals := make(map[uuid.UUID]*acc)
	for _, r := range reviews {
		if r == nil {
			continue
		}
		a, ok := totals[r.PerfumeID]
		if !ok {
			a = &acc{}
			totals[r.PerfumeID] = a
		}
		a.count++
		a.sum += r.Rating
	}

	stats := make(map[uuid.UUID]domain.ReviewStats, len(totals))
	for id, a := range totals {
		stats[id] = domain.ReviewStats{
			AverageRating: float64(a.sum) / float64(a.count),
			ReviewCount:   a.count,
		}
	}
	return stats
}

// ReviewDetail is everything the perfume detail view shows about reviews
type ReviewDetail struct {
	Perfume *domain.Perfume    `json:"perfume"`
	Reviews []*domain.Review   `json:"reviews"`
	Stats   domain.ReviewStats `json:"stats"`
	Own     *domain.Review     `json:"own_review"`
}

// ReviewService handles review submission and listing
type ReviewService interface {
	Submit(ctx context.Context, userID, perfumeID uuid.UUID, rating int, comment *string) (*domain.Review, error)
	ListForPerfume(ctx context.Context, perfumeID uuid.UUID) ([]*domain.Review, error)
	Detail(ctx context.Context, userID, perfumeID uuid.UUID) (*ReviewDetail, error)
}

type reviewService struct {
	reviews  repository.ReviewRepository
	perfumes repository.PerfumeRepository
	notifier ChangeNotifier
	rec      *metrics.REDClient
	logger   *zap.Logger
}

// NewReviewService creates a new instance of ReviewService
func NewReviewService(
	reviews repository.ReviewRepository,
	perfumes repository.PerfumeRepository,
	notifier ChangeNotifier,
	rec *metrics.REDClient,
	logger *zap.Logger,
) ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reviewService{
		reviews:  reviews,
		perfumes: perfumes,
		notifier: notifier,
		rec:      rec,
		logger:   logger.Named("reviews"),
	}
}

// Submit stores the user's review of a perfume, replacing an earlier one
func (s *reviewService) Submit(ctx context.Context, userID, perfumeID uuid.UUID, rating int, comment *string) (*domain.Review, error) {
	if rating < domain.MinRating || rating > domain.MaxRating {
		return nil, ErrInvalidRating
	}

	done := s.rec.Record("submit_review")

	review := &domain.Review{
		ID:        uuid.New(),
		PerfumeID: perfumeID,
		UserID:    userID,
		Rating:    rating,
		Comment:   trimOptional(comment),
		CreatedAt: time.Now(),
	}

	if err := done(s.reviews.Upsert(ctx, review)); err != nil {
		s.logger.Error("Failed to submit review",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.String("perfume_id", perfumeID.String()),
		)
		return nil, fmt.Errorf("failed to submit review: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, realtime.TableReviews, realtime.OpUpdate, userID)
	}

	return review, nil
}

// ListForPerfume returns the perfume's reviews, newest first
func (s *reviewService) ListForPerfume(ctx context.Context, perfumeID uuid.UUID) ([]*domain.Review, error) {
	reviews, err := s.reviews.ListByPerfume(ctx, perfumeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

// Detail loads the perfume with its reviews, their statistics and the
// caller's own review if there is one
func (s *reviewService) Detail(ctx context.Context, userID, perfumeID uuid.UUID) (*ReviewDetail, error) {
	perfume, err := s.perfumes.FindByID(ctx, perfumeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load perfume: %w", err)
	}

	reviews, err := s.ListForPerfume(ctx, perfumeID)
	if err != nil {
		return nil, err
	}

	detail := &ReviewDetail{
		Perfume: perfume,
		Reviews: reviews,
		Stats:   AggregateReviews(reviews, perfumeID),
	}

	for _, r := range reviews {
		if r.UserID == userID {
			detail.Own = r
			break
		}
	}

	return detail, nil
}
