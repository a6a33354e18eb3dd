package service

import (
	"context"
	"fmt"

	"perfume-store/internal/domain"
	"perfume-store/internal/metrics"
	"perfume-store/internal/realtime"
	"perfume-store/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FavoritesLedger is the per-user set of favorited perfumes
type FavoritesLedger interface {
	// Toggle flips membership of the perfume and reports whether it is now a favorite
	Toggle(ctx context.Context, userID, perfumeID uuid.UUID) (bool, error)
	List(ctx context.Context, userID uuid.UUID) ([]*domain.Favorite, error)
}

type favoritesLedger struct {
	favorites repository.FavoriteRepository
	notifier  ChangeNotifier
	rec       *metrics.REDClient
	logger    *zap.Logger
}

// NewFavoritesLedger creates a new instance of FavoritesLedger
func NewFavoritesLedger(
	favorites repository.FavoriteRepository,
	notifier ChangeNotifier,
	rec *metrics.REDClient,
	logger *zap.Logger,
) FavoritesLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &favoritesLedger{
		favorites: favorites,
		notifier:  notifier,
		rec:       rec,
		logger:    logger.Named("favorites"),
	}
}

// Toggle removes the favorite if present, otherwise adds it. Both writes are
// keyed on the (user, perfume) pair so repeated calls never duplicate rows.
func (l *favoritesLedger) Toggle(ctx context.Context, userID, perfumeID uuid.UUID) (bool, error) {
	done := l.rec.Record("toggle_favorite")

	removed, err := l.favorites.DeleteByUserAndPerfume(ctx, userID, perfumeID)
	if err != nil {
		return false, l.fail(done(err), userID, perfumeID)
	}

	if removed > 0 {
		_ = done(nil)
		l.notify(ctx, realtime.OpDelete, userID)
		return false, nil
	}

	if err := l.favorites.Insert(ctx, userID, perfumeID); err != nil {
		return false, l.fail(done(err), userID, perfumeID)
	}

	_ = done(nil)
	l.notify(ctx, realtime.OpInsert, userID)
	return true, nil
}

// List returns the user's favorites with their perfume, newest first
func (l *favoritesLedger) List(ctx context.Context, userID uuid.UUID) ([]*domain.Favorite, error) {
	favorites, err := l.favorites.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return favorites, nil
}

func (l *favoritesLedger) fail(err error, userID, perfumeID uuid.UUID) error {
	l.logger.Error("Failed to toggle favorite",
		zap.Error(err),
		zap.String("user_id", userID.String()),
		zap.String("perfume_id", perfumeID.String()),
	)
	return fmt.Errorf("failed to toggle favorite: %w", err)
}

func (l *favoritesLedger) notify(ctx context.Context, op string, userID uuid.UUID) {
	if l.notifier != nil {
		l.notifier.Notify(ctx, realtime.TableFavorites, op, userID)
	}
}
