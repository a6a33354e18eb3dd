package service

import (
	"context"
	"fmt"
	"sync"

	"perfume-store/internal/domain"
	"perfume-store/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Browse sources, reported in CatalogPage.Degraded when they fail
const (
	SourcePerfumes  = "perfumes"
	SourceFavorites = "favorites"
	SourceReviews   = "reviews"
	SourceBrands    = "brands"
)

// PerfumeCard is one catalog entry as the browse view shows it
type PerfumeCard struct {
	Perfume      *domain.Perfume    `json:"perfume"`
	IsFavorite   bool               `json:"is_favorite"`
	Stats        domain.ReviewStats `json:"stats"`
	DisplayPrice decimal.Decimal    `json:"display_price"`
	HasPromotion bool               `json:"has_promotion"`
	CanAddToCart bool               `json:"can_add_to_cart"`
}

// NewPerfumeCard derives the card fields of a perfume
func NewPerfumeCard(p *domain.Perfume, favorite bool, stats domain.ReviewStats) PerfumeCard {
	return PerfumeCard{
		Perfume:    p,
		IsFavorite: favorite,
		Stats: domain.ReviewStats{
			AverageRating: stats.Rounded(),
			ReviewCount:   stats.ReviewCount,
		},
		DisplayPrice: p.EffectivePrice(),
		HasPromotion: p.HasPromotion(),
		CanAddToCart: p.IsAvailable(),
	}
}

// CatalogPage is the joined result of a browse request
type CatalogPage struct {
	Cards    []PerfumeCard `json:"cards"`
	Brands   []string      `json:"brands"`
	Degraded []string      `json:"degraded,omitempty"`
}

// CatalogService serves the read side of the catalog
type CatalogService interface {
	Browse(ctx context.Context, userID uuid.UUID, filter repository.PerfumeFilter) (*CatalogPage, error)
	GetPerfume(ctx context.Context, id uuid.UUID) (*domain.Perfume, error)
}

type catalogService struct {
	perfumes  repository.PerfumeRepository
	favorites repository.FavoriteRepository
	reviews   repository.ReviewRepository
	logger    *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(
	perfumes repository.PerfumeRepository,
	favorites repository.FavoriteRepository,
	reviews repository.ReviewRepository,
	logger *zap.Logger,
) CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &catalogService{
		perfumes:  perfumes,
		favorites: favorites,
		reviews:   reviews,
		logger:    logger.Named("catalog"),
	}
}

// Browse fetches perfumes, the caller's favorites, all reviews and the brand
// list concurrently. A source that fails is replaced by an empty collection
// and named in Degraded.
func (s *catalogService) Browse(ctx context.Context, userID uuid.UUID, filter repository.PerfumeFilter) (*CatalogPage, error) {
	var (
		perfumes  []*domain.Perfume
		favorites []*domain.Favorite
		reviews   []*domain.Review
		brands    []string

		mu       sync.Mutex
		degraded []string
	)

	degrade := func(source string, err error) {
		s.logger.Warn("Catalog source unavailable",
			zap.String("source", source),
			zap.Error(err),
		)
		mu.Lock()
		degraded = append(degraded, source)
		mu.Unlock()
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		var err error
		if perfumes, err = s.perfumes.List(egCtx, filter); err != nil {
			perfumes = nil
			degrade(SourcePerfumes, err)
		}
		return nil
	})

	if userID != uuid.Nil {
		eg.Go(func() error {
			var err error
			if favorites, err = s.favorites.ListByUser(egCtx, userID); err != nil {
				favorites = nil
				degrade(SourceFavorites, err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		var err error
		if reviews, err = s.reviews.ListAll(egCtx); err != nil {
			reviews = nil
			degrade(SourceReviews, err)
		}
		return nil
	})

	eg.Go(func() error {
		var err error
		if brands, err = s.perfumes.Brands(egCtx); err != nil {
			brands = nil
			degrade(SourceBrands, err)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("failed to browse catalog: %w", err)
	}

	favorited := make(map[uuid.UUID]bool, len(favorites))
	for _, f := range favorites {
		favorited[f.PerfumeID] = true
	}
	stats := SummarizeReviews(reviews)

	page := &CatalogPage{
		Cards:    make([]PerfumeCard, 0, len(perfumes)),
		Brands:   append([]string{repository.AllBrands}, brands...),
		Degraded: degraded,
	}
	for _, p := range perfumes {
		page.Cards = append(page.Cards, NewPerfumeCard(p, favorited[p.ID], stats[p.ID]))
	}

	return page, nil
}

func (s *catalogService) GetPerfume(ctx context.Context, id uuid.UUID) (*domain.Perfume, error) {
	perfume, err := s.perfumes.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get perfume: %w", err)
	}
	return perfume, nil
}
