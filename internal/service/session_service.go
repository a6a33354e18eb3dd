package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"perfume-store/internal/domain"
	"perfume-store/internal/realtime"
	"perfume-store/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 10

	DefaultAccessTokenExpiration  = 15 * time.Minute
	DefaultRefreshTokenExpiration = 7 * 24 * time.Hour
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
)

// ChangeNotifier announces committed changes to the change feed
type ChangeNotifier interface {
	Notify(ctx context.Context, table, op string, userID uuid.UUID)
}

// Session is the result of a successful sign-in or sign-up
type Session struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Profile      *domain.Profile `json:"profile"`
}

// SessionService is the identity provider: it issues, refreshes and ends sessions
type SessionService interface {
	SignUp(ctx context.Context, email, password string, fullName *string) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (accessToken string, err error)
	ValidateToken(tokenString string) (*Claims, error)
	CurrentProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, fullName *string) (*domain.Profile, error)
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Claims represents the JWT claims
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// TokenConfig controls token signing and lifetimes
type TokenConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type sessionService struct {
	profiles repository.ProfileRepository
	tokens   repository.RefreshTokenRepository
	notifier ChangeNotifier
	cfg      TokenConfig
	logger   *zap.Logger
}

// NewSessionService creates a new instance of SessionService
func NewSessionService(
	profiles repository.ProfileRepository,
	tokens repository.RefreshTokenRepository,
	notifier ChangeNotifier,
	cfg TokenConfig,
	logger *zap.Logger,
) SessionService {
	if cfg.AccessExpiry <= 0 {
		cfg.AccessExpiry = DefaultAccessTokenExpiration
	}
	if cfg.RefreshExpiry <= 0 {
		cfg.RefreshExpiry = DefaultRefreshTokenExpiration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessionService{
		profiles: profiles,
		tokens:   tokens,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Named("session"),
	}
}

// SignUp creates a profile with a hashed password and opens a session for it
func (s *sessionService) SignUp(ctx context.Context, email, password string, fullName *string) (*Session, error) {
	email = normalizeEmail(email)

	existing, err := s.profiles.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to check existing profile: %w", err)
	}
	if existing != nil {
		return nil, repository.ErrProfileAlreadyExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	profile := &domain.Profile{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hashedPassword),
		FullName:     trimOptional(fullName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	s.logger.Info("Profile registered", zap.String("user_id", profile.ID.String()))

	return s.openSession(ctx, profile)
}

// SignIn authenticates a profile and returns fresh tokens
func (s *sessionService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	profile, err := s.profiles.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.openSession(ctx, profile)
}

// SignOut revokes the refresh token and tells live subscriptions of the
// user that the session ended
func (s *sessionService) SignOut(ctx context.Context, refreshToken string) error {
	userID, err := s.tokens.Revoke(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			// Unknown token, already signed out
			return nil
		}
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, realtime.TableSession, realtime.OpSignedOut, userID)
	}

	s.logger.Info("Session ended", zap.String("user_id", userID.String()))
	return nil
}

// Refresh exchanges a valid refresh token for a new access token
func (s *sessionService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	stored, err := s.tokens.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) || errors.Is(err, repository.ErrRefreshTokenRevoked) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("failed to find refresh token: %w", err)
	}

	if time.Now().After(stored.ExpiresAt) {
		return "", ErrTokenExpired
	}

	profile, err := s.profiles.FindByID(ctx, stored.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to find profile: %w", err)
	}

	accessToken, _, err := s.generateAccessToken(profile)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}

	return accessToken, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *sessionService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *sessionService) CurrentProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// UpdateProfile sets the display name; blank clears it
func (s *sessionService) UpdateProfile(ctx context.Context, userID uuid.UUID, fullName *string) (*domain.Profile, error) {
	profile, err := s.profiles.UpdateFullName(ctx, userID, trimOptional(fullName))
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return profile, nil
}

// IsAdmin reads the admin flag from the stored profile, not from the token
func (s *sessionService) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check admin flag: %w", err)
	}
	return profile.IsAdmin, nil
}

func (s *sessionService) openSession(ctx context.Context, profile *domain.Profile) (*Session, error) {
	accessToken, expiresAt, err := s.generateAccessToken(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.generateRefreshToken(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Profile:      profile,
	}, nil
}

// generateAccessToken signs a JWT carrying the user ID and role
func (s *sessionService) generateAccessToken(profile *domain.Profile) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessExpiry)
	claims := &Claims{
		UserID: profile.ID,
		Role:   profile.Role(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// generateRefreshToken generates a refresh token and stores it in the database
func (s *sessionService) generateRefreshToken(ctx context.Context, profile *domain.Profile) (string, error) {
	tokenString := uuid.New().String()

	refreshToken := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    profile.ID,
		Token:     tokenString,
		ExpiresAt: time.Now().Add(s.cfg.RefreshExpiry),
		CreatedAt: time.Now(),
	}

	if err := s.tokens.Create(ctx, refreshToken); err != nil {
		return "", err
	}

	return tokenString, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// trimOptional trims s and maps blank to nil
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
