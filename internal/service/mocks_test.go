package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"perfume-store/internal/domain"
	"perfume-store/internal/repository"

	"github.com/google/uuid"
)

// Mock repositories for testing

type mockProfileRepository struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
}

func newMockProfileRepository() *mockProfileRepository {
	return &mockProfileRepository{profiles: make(map[string]*domain.Profile)}
}

func (m *mockProfileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.profiles[profile.Email]; exists {
		return repository.ErrProfileAlreadyExists
	}
	m.profiles[profile.Email] = profile
	return nil
}

func (m *mockProfileRepository) FindByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, exists := m.profiles[email]
	if !exists {
		return nil, repository.ErrProfileNotFound
	}
	return profile, nil
}

func (m *mockProfileRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, profile := range m.profiles {
		if profile.ID == id {
			return profile, nil
		}
	}
	return nil, repository.ErrProfileNotFound
}

func (m *mockProfileRepository) List(ctx context.Context) ([]*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profiles := make([]*domain.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].CreatedAt.After(profiles[j].CreatedAt) })
	return profiles, nil
}

func (m *mockProfileRepository) UpdateFullName(ctx context.Context, id uuid.UUID, fullName *string) (*domain.Profile, error) {
	profile, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	profile.FullName = fullName
	return profile, nil
}

func (m *mockProfileRepository) ToggleAdmin(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	profile, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	profile.IsAdmin = !profile.IsAdmin
	return profile, nil
}

type mockRefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{tokens: make(map[string]*domain.RefreshToken)}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refreshToken, exists := m.tokens[token]
	if !exists {
		return uuid.Nil, repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return refreshToken.UserID, nil
}

type mockPerfumeRepository struct {
	mu       sync.Mutex
	perfumes map[uuid.UUID]*domain.Perfume
	creates  int
	updates  int
	listErr  error
	delay    time.Duration
}

func newMockPerfumeRepository(perfumes ...*domain.Perfume) *mockPerfumeRepository {
	m := &mockPerfumeRepository{perfumes: make(map[uuid.UUID]*domain.Perfume)}
	for _, p := range perfumes {
		m.perfumes[p.ID] = p
	}
	return m
}

func (m *mockPerfumeRepository) Create(ctx context.Context, perfume *domain.Perfume) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	copied := *perfume
	m.perfumes[perfume.ID] = &copied
	return nil
}

func (m *mockPerfumeRepository) Update(ctx context.Context, perfume *domain.Perfume) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if _, ok := m.perfumes[perfume.ID]; !ok {
		return repository.ErrPerfumeNotFound
	}
	copied := *perfume
	m.perfumes[perfume.ID] = &copied
	return nil
}

func (m *mockPerfumeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.perfumes[id]; !ok {
		return repository.ErrPerfumeNotFound
	}
	delete(m.perfumes, id)
	return nil
}

func (m *mockPerfumeRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Perfume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perfumes[id]
	if !ok {
		return nil, repository.ErrPerfumeNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockPerfumeRepository) List(ctx context.Context, filter repository.PerfumeFilter) ([]*domain.Perfume, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*domain.Perfume{}
	term := strings.ToLower(filter.Search)
	for _, p := range m.perfumes {
		if term != "" && !strings.Contains(strings.ToLower(p.Name), term) && !strings.Contains(strings.ToLower(p.Brand), term) {
			continue
		}
		if filter.Brand != "" && filter.Brand != repository.AllBrands && p.Brand != filter.Brand {
			continue
		}
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (m *mockPerfumeRepository) Brands(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	brands := []string{}
	for _, p := range m.perfumes {
		if !seen[p.Brand] {
			seen[p.Brand] = true
			brands = append(brands, p.Brand)
		}
	}
	sort.Strings(brands)
	return brands, nil
}

type mockReviewRepository struct {
	mu      sync.Mutex
	reviews []*domain.Review
	listErr error
}

func (m *mockReviewRepository) Upsert(ctx context.Context, review *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reviews {
		if r.PerfumeID == review.PerfumeID && r.UserID == review.UserID {
			r.Rating = review.Rating
			r.Comment = review.Comment
			r.CreatedAt = review.CreatedAt
			review.ID = r.ID
			return nil
		}
	}
	copied := *review
	m.reviews = append(m.reviews, &copied)
	return nil
}

func (m *mockReviewRepository) ListByPerfume(ctx context.Context, perfumeID uuid.UUID) ([]*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*domain.Review{}
	for _, r := range m.reviews {
		if r.PerfumeID == perfumeID {
			list = append(list, r)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (m *mockReviewRepository) ListAll(ctx context.Context) ([]*domain.Review, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Review{}, m.reviews...), nil
}

func (m *mockReviewRepository) FindByUserAndPerfume(ctx context.Context, userID, perfumeID uuid.UUID) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reviews {
		if r.PerfumeID == perfumeID && r.UserID == userID {
			return r, nil
		}
	}
	return nil, repository.ErrReviewNotFound
}

type favoriteKey struct{ user, perfume uuid.UUID }

type mockFavoriteRepository struct {
	mu        sync.Mutex
	favorites map[favoriteKey]*domain.Favorite
	insertErr error
	listErr   error
}

func newMockFavoriteRepository() *mockFavoriteRepository {
	return &mockFavoriteRepository{favorites: make(map[favoriteKey]*domain.Favorite)}
}

func (m *mockFavoriteRepository) Insert(ctx context.Context, userID, perfumeID uuid.UUID) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := favoriteKey{userID, perfumeID}
	if _, ok := m.favorites[key]; !ok {
		m.favorites[key] = &domain.Favorite{ID: uuid.New(), UserID: userID, PerfumeID: perfumeID, CreatedAt: time.Now()}
	}
	return nil
}

func (m *mockFavoriteRepository) DeleteByUserAndPerfume(ctx context.Context, userID, perfumeID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := favoriteKey{userID, perfumeID}
	if _, ok := m.favorites[key]; !ok {
		return 0, nil
	}
	delete(m.favorites, key)
	return 1, nil
}

func (m *mockFavoriteRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Favorite, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*domain.Favorite{}
	for key, f := range m.favorites {
		if key.user == userID {
			list = append(list, f)
		}
	}
	return list, nil
}

func (m *mockFavoriteRepository) isFavorite(userID, perfumeID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.favorites[favoriteKey{userID, perfumeID}]
	return ok
}

type mockCartRepository struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*domain.CartItem
	perfumes *mockPerfumeRepository
}

func newMockCartRepository(perfumes *mockPerfumeRepository) *mockCartRepository {
	return &mockCartRepository{items: make(map[uuid.UUID]*domain.CartItem), perfumes: perfumes}
}

func (m *mockCartRepository) AddOne(ctx context.Context, userID, perfumeID uuid.UUID) (*domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.UserID == userID && item.PerfumeID == perfumeID {
			item.Quantity++
			copied := *item
			return &copied, nil
		}
	}
	item := &domain.CartItem{ID: uuid.New(), UserID: userID, PerfumeID: perfumeID, Quantity: 1, CreatedAt: time.Now()}
	m.items[item.ID] = item
	copied := *item
	return &copied, nil
}

func (m *mockCartRepository) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok || item.UserID != userID {
		return nil, repository.ErrCartItemNotFound
	}
	if quantity < 1 {
		return nil, repository.ErrInvalidQuantity
	}
	item.Quantity = quantity
	copied := *item
	return &copied, nil
}

func (m *mockCartRepository) Delete(ctx context.Context, userID, itemID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok || item.UserID != userID {
		return 0, nil
	}
	delete(m.items, itemID)
	return 1, nil
}

func (m *mockCartRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, item := range m.items {
		if item.UserID == userID {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func (m *mockCartRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*domain.CartItem{}
	for _, item := range m.items {
		if item.UserID != userID {
			continue
		}
		copied := *item
		if m.perfumes != nil {
			if p, err := m.perfumes.FindByID(ctx, item.PerfumeID); err == nil {
				copied.Perfume = p
			}
		}
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (m *mockCartRepository) SumQuantity(ctx context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, item := range m.items {
		if item.UserID == userID {
			total += item.Quantity
		}
	}
	return total, nil
}

type notification struct {
	table  string
	op     string
	userID uuid.UUID
}

type mockNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (m *mockNotifier) Notify(ctx context.Context, table, op string, userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, notification{table, op, userID})
}

func (m *mockNotifier) count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.table == table {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
