package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"perfume-store/internal/domain"
	"perfume-store/internal/middleware"
	"perfume-store/internal/repository"
	"perfume-store/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "transport-test-secret"

// Mock repositories backing the real session service

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
	return m.byID(id)
}

func (m *mockProfileRepository) byID(id uuid.UUID) (*domain.Profile, error) {
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
	out := make([]*domain.Profile, 0, len(m.profiles))
	for _, profile := range m.profiles {
		out = append(out, profile)
	}
	return out, nil
}

func (m *mockProfileRepository) UpdateFullName(ctx context.Context, id uuid.UUID, fullName *string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, err := m.byID(id)
	if err != nil {
		return nil, err
	}
	profile.FullName = fullName
	return profile, nil
}

func (m *mockProfileRepository) ToggleAdmin(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, err := m.byID(id)
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

// Stub services

type stubCartLedger struct {
	mu       sync.Mutex
	perfumes map[uuid.UUID]*domain.Perfume
	lines    map[uuid.UUID][]*domain.CartItem
	links    service.CheckoutLinks
	countErr error
}

func newStubCartLedger() *stubCartLedger {
	return &stubCartLedger{
		perfumes: make(map[uuid.UUID]*domain.Perfume),
		lines:    make(map[uuid.UUID][]*domain.CartItem),
		links:    service.CheckoutLinks{Phone: "5511999999999", InstagramHandle: "@perfumaria"},
	}
}

func (s *stubCartLedger) addPerfume(name string, price string, status domain.PerfumeStatus) *domain.Perfume {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &domain.Perfume{
		ID:     uuid.New(),
		Name:   name,
		Brand:  "Chanel",
		Price:  decimal.RequireFromString(price),
		Status: status,
	}
	s.perfumes[p.ID] = p
	return p
}

func (s *stubCartLedger) AddOne(ctx context.Context, userID, perfumeID uuid.UUID) (*domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.perfumes[perfumeID]
	if !ok {
		return nil, repository.ErrPerfumeNotFound
	}
	if !p.IsAvailable() {
		return nil, service.ErrPerfumeUnavailable
	}
	for _, line := range s.lines[userID] {
		if line.PerfumeID == perfumeID {
			line.Quantity++
			return line, nil
		}
	}
	line := &domain.CartItem{ID: uuid.New(), PerfumeID: perfumeID, UserID: userID, Quantity: 1, Perfume: p, CreatedAt: time.Now()}
	s.lines[userID] = append(s.lines[userID], line)
	return line, nil
}

func (s *stubCartLedger) SetQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.CartItem, error) {
	if quantity < service.MinQuantity {
		return nil, service.ErrQuantityBelowMinimum
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.lines[userID] {
		if line.ID == itemID {
			line.Quantity = quantity
			return line, nil
		}
	}
	return nil, repository.ErrCartItemNotFound
}

func (s *stubCartLedger) Remove(ctx context.Context, userID, itemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.lines[userID][:0]
	for _, line := range s.lines[userID] {
		if line.ID != itemID {
			kept = append(kept, line)
		}
	}
	s.lines[userID] = kept
	return nil
}

func (s *stubCartLedger) Clear(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lines, userID)
	return nil
}

func (s *stubCartLedger) Lines(ctx context.Context, userID uuid.UUID) ([]*domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.CartItem(nil), s.lines[userID]...), nil
}

func (s *stubCartLedger) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	count := 0
	for _, line := range s.lines[userID] {
		count += line.Quantity
	}
	return count, nil
}

func (s *stubCartLedger) Checkout(ctx context.Context, userID uuid.UUID) (*service.Checkout, error) {
	lines, _ := s.Lines(ctx, userID)
	summary := service.CheckoutSummary(lines)
	return &service.Checkout{
		Lines:        lines,
		Summary:      summary,
		Total:        service.CartTotal(lines),
		WhatsAppURL:  s.links.WhatsApp(summary),
		InstagramURL: s.links.Instagram(),
	}, nil
}

type stubCatalog struct {
	mu         sync.Mutex
	page       *service.CatalogPage
	perfumes   map[uuid.UUID]*domain.Perfume
	lastUser   uuid.UUID
	lastFilter repository.PerfumeFilter
	err        error
}

func (s *stubCatalog) Browse(ctx context.Context, userID uuid.UUID, filter repository.PerfumeFilter) (*service.CatalogPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUser = userID
	s.lastFilter = filter
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

func (s *stubCatalog) GetPerfume(ctx context.Context, id uuid.UUID) (*domain.Perfume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.perfumes[id]
	if !ok {
		return nil, repository.ErrPerfumeNotFound
	}
	return p, nil
}

type submittedReview struct {
	userID    uuid.UUID
	perfumeID uuid.UUID
	rating    int
	comment   *string
}

type stubReviews struct {
	mu        sync.Mutex
	detail    *service.ReviewDetail
	lastUser  uuid.UUID
	submitted []submittedReview
}

func (s *stubReviews) Submit(ctx context.Context, userID, perfumeID uuid.UUID, rating int, comment *string) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, submittedReview{userID, perfumeID, rating, comment})
	return &domain.Review{ID: uuid.New(), PerfumeID: perfumeID, UserID: userID, Rating: rating, Comment: comment, CreatedAt: time.Now()}, nil
}

func (s *stubReviews) ListForPerfume(ctx context.Context, perfumeID uuid.UUID) ([]*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detail == nil {
		return nil, nil
	}
	return s.detail.Reviews, nil
}

func (s *stubReviews) Detail(ctx context.Context, userID, perfumeID uuid.UUID) (*service.ReviewDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUser = userID
	if s.detail == nil || s.detail.Perfume.ID != perfumeID {
		return nil, repository.ErrPerfumeNotFound
	}
	return s.detail, nil
}

type stubFavorites struct {
	mu  sync.Mutex
	set map[uuid.UUID]map[uuid.UUID]bool
}

func newStubFavorites() *stubFavorites {
	return &stubFavorites{set: make(map[uuid.UUID]map[uuid.UUID]bool)}
}

func (s *stubFavorites) Toggle(ctx context.Context, userID, perfumeID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set[userID] == nil {
		s.set[userID] = make(map[uuid.UUID]bool)
	}
	if s.set[userID][perfumeID] {
		delete(s.set[userID], perfumeID)
		return false, nil
	}
	s.set[userID][perfumeID] = true
	return true, nil
}

func (s *stubFavorites) List(ctx context.Context, userID uuid.UUID) ([]*domain.Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Favorite, 0, len(s.set[userID]))
	for perfumeID := range s.set[userID] {
		out = append(out, &domain.Favorite{ID: uuid.New(), PerfumeID: perfumeID, UserID: userID})
	}
	return out, nil
}

type receivedInput struct {
	input service.PerfumeInput
	image []byte
}

type stubAdmin struct {
	mu       sync.Mutex
	inputs   []receivedInput
	token    string
	deleted  []uuid.UUID
	profiles *mockProfileRepository
}

func (s *stubAdmin) record(input service.PerfumeInput) error {
	received := receivedInput{input: input}
	if input.Image != nil {
		data, err := io.ReadAll(input.Image)
		if err != nil {
			return err
		}
		received.image = data
	}
	s.mu.Lock()
	s.inputs = append(s.inputs, received)
	s.mu.Unlock()
	return nil
}

func (s *stubAdmin) ListPerfumes(ctx context.Context) ([]*domain.Perfume, error) {
	return []*domain.Perfume{}, nil
}

func (s *stubAdmin) CreatePerfume(ctx context.Context, adminID uuid.UUID, input service.PerfumeInput) (*domain.Perfume, error) {
	if input.Image == nil {
		return nil, &service.ValidationError{Fields: map[string]string{"image": "is required"}}
	}
	if err := s.record(input); err != nil {
		return nil, err
	}
	return &domain.Perfume{ID: uuid.New(), Name: input.Name, Brand: input.Brand, Status: domain.PerfumeAvailable}, nil
}

func (s *stubAdmin) UpdatePerfume(ctx context.Context, adminID, perfumeID uuid.UUID, input service.PerfumeInput) (*domain.Perfume, error) {
	if err := s.record(input); err != nil {
		return nil, err
	}
	return &domain.Perfume{ID: perfumeID, Name: input.Name, Brand: input.Brand, Status: input.Status}, nil
}

func (s *stubAdmin) RequestDeletion(ctx context.Context, adminID, perfumeID uuid.UUID) (*service.DeletionRequest, error) {
	return &service.DeletionRequest{PerfumeID: perfumeID, Name: "Bleu", Token: s.token, ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (s *stubAdmin) ConfirmDeletion(ctx context.Context, adminID, perfumeID uuid.UUID, token string) error {
	if token == "" || token != s.token {
		return service.ErrConfirmationRequired
	}
	s.mu.Lock()
	s.deleted = append(s.deleted, perfumeID)
	s.mu.Unlock()
	return nil
}

func (s *stubAdmin) ListProfiles(ctx context.Context) ([]*domain.Profile, error) {
	return s.profiles.List(ctx)
}

func (s *stubAdmin) ToggleAdmin(ctx context.Context, adminID, profileID uuid.UUID) (*domain.Profile, error) {
	return s.profiles.ToggleAdmin(ctx, profileID)
}

// testImageMaxBytes is the upload limit of the test admin handler
const testImageMaxBytes = 1024

// testEnv is a router with every handler registered, a real session
// service for tokens and stubs behind the other handlers
type testEnv struct {
	router    chi.Router
	sessions  service.SessionService
	profiles  *mockProfileRepository
	cart      *stubCartLedger
	catalog   *stubCatalog
	reviews   *stubReviews
	favorites *stubFavorites
	admin     *stubAdmin
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	profiles := newMockProfileRepository()
	sessions := service.NewSessionService(profiles, newMockRefreshTokenRepository(), nil,
		service.TokenConfig{Secret: testSecret}, logger)

	env := &testEnv{
		router:    chi.NewRouter(),
		sessions:  sessions,
		profiles:  profiles,
		cart:      newStubCartLedger(),
		catalog:   &stubCatalog{perfumes: make(map[uuid.UUID]*domain.Perfume)},
		reviews:   &stubReviews{},
		favorites: newStubFavorites(),
		admin:     &stubAdmin{token: "confirm-me", profiles: profiles},
	}

	auth := middleware.AuthMiddleware(sessions, logger)
	optional := middleware.OptionalAuth(sessions, logger)
	requireAdmin := middleware.RequireAdmin(sessions, logger)
	passthrough := func(next http.Handler) http.Handler { return next }

	NewSessionHandler(sessions, logger).RegisterRoutes(env.router, auth, passthrough)
	NewProfileHandler(sessions, env.cart.links, logger).RegisterRoutes(env.router, auth)
	NewCatalogHandler(env.catalog, env.reviews, logger).RegisterRoutes(env.router, optional, auth)
	NewFavoriteHandler(env.favorites, logger).RegisterRoutes(env.router, auth)
	NewCartHandler(env.cart, nil, logger).RegisterRoutes(env.router, auth)
	NewAdminHandler(env.admin, testImageMaxBytes, logger).RegisterRoutes(env.router, auth, requireAdmin)

	return env
}

// signToken issues an access token for a user that has no stored profile
func signToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &service.Claims{
		UserID: userID,
		Role:   domain.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// signUp registers a user and returns its id and access token
func (e *testEnv) signUp(t *testing.T, email string, admin bool) (uuid.UUID, string) {
	t.Helper()
	session, err := e.sessions.SignUp(context.Background(), email, "secret123", nil)
	require.NoError(t, err)
	if admin {
		_, err := e.profiles.ToggleAdmin(context.Background(), session.Profile.ID)
		require.NoError(t, err)
	}
	return session.Profile.ID, session.AccessToken
}

func (e *testEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
