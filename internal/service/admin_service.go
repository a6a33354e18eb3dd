package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"perfume-store/internal/domain"
	"perfume-store/internal/metrics"
	"perfume-store/internal/repository"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrConfirmationRequired = errors.New("deletion must be confirmed with a valid confirmation token")

const (
	DefaultDeleteConfirmationTTL = 2 * time.Minute
	DefaultImageMaxBytes         = 2 << 20
)

// PerfumeInput is the admin editor form. Prices are the raw form strings.
type PerfumeInput struct {
	Name           string
	Brand          string
	Price          string
	PromotionPrice string
	Status         domain.PerfumeStatus
	Description    *string
	// Image is the uploaded file; nil keeps the current image on update
	Image io.Reader
}

// DeletionRequest is the pending confirmation of a perfume deletion
type DeletionRequest struct {
	PerfumeID uuid.UUID `json:"perfume_id"`
	Name      string    `json:"name"`
	Token     string    `json:"confirmation"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdminConfig tunes catalog administration
type AdminConfig struct {
	DeleteConfirmationTTL time.Duration
	ImageMaxBytes         int64
}

// AdminService manages the catalog and admin flags
type AdminService interface {
	ListPerfumes(ctx context.Context) ([]*domain.Perfume, error)
	CreatePerfume(ctx context.Context, adminID uuid.UUID, input PerfumeInput) (*domain.Perfume, error)
	UpdatePerfume(ctx context.Context, adminID, perfumeID uuid.UUID, input PerfumeInput) (*domain.Perfume, error)
	RequestDeletion(ctx context.Context, adminID, perfumeID uuid.UUID) (*DeletionRequest, error)
	ConfirmDeletion(ctx context.Context, adminID, perfumeID uuid.UUID, token string) error
	ListProfiles(ctx context.Context) ([]*domain.Profile, error)
	ToggleAdmin(ctx context.Context, adminID, profileID uuid.UUID) (*domain.Profile, error)
}

type adminService struct {
	perfumes      repository.PerfumeRepository
	profiles      repository.ProfileRepository
	confirmations ConfirmationStore
	cfg           AdminConfig
	submits       singleflight.Group
	rec           *metrics.REDClient
	logger        *zap.Logger
}

// NewAdminService creates a new instance of AdminService
func NewAdminService(
	perfumes repository.PerfumeRepository,
	profiles repository.ProfileRepository,
	confirmations ConfirmationStore,
	cfg AdminConfig,
	rec *metrics.REDClient,
	logger *zap.Logger,
) AdminService {
	if cfg.DeleteConfirmationTTL <= 0 {
		cfg.DeleteConfirmationTTL = DefaultDeleteConfirmationTTL
	}
	if cfg.ImageMaxBytes <= 0 {
		cfg.ImageMaxBytes = DefaultImageMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &adminService{
		perfumes:      perfumes,
		profiles:      profiles,
		confirmations: confirmations,
		cfg:           cfg,
		rec:           rec,
		logger:        logger.Named("admin"),
	}
}

func (s *adminService) ListPerfumes(ctx context.Context) ([]*domain.Perfume, error) {
	perfumes, err := s.perfumes.List(ctx, repository.PerfumeFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list perfumes: %w", err)
	}
	return perfumes, nil
}

// CreatePerfume validates the form and inserts a new perfume. Identical
// overlapping submits from the same admin collapse onto one insert.
func (s *adminService) CreatePerfume(ctx context.Context, adminID uuid.UUID, input PerfumeInput) (*domain.Perfume, error) {
	input, err := s.bufferImage(input)
	if err != nil {
		return nil, err
	}

	key := submitKey("create", adminID, uuid.Nil, input)
	return s.submit(ctx, key, func() (*domain.Perfume, error) {
		perfume := &domain.Perfume{ID: uuid.New()}
		if err := s.apply(perfume, input, true); err != nil {
			return nil, err
		}

		now := time.Now()
		perfume.CreatedAt = now
		perfume.UpdatedAt = now

		done := s.rec.Record("create_perfume")
		if err := done(s.perfumes.Create(ctx, perfume)); err != nil {
			return nil, fmt.Errorf("failed to create perfume: %w", err)
		}

		s.logger.Info("Perfume created",
			zap.String("admin_id", adminID.String()),
			zap.String("perfume_id", perfume.ID.String()),
		)
		return perfume, nil
	})
}

// UpdatePerfume overwrites the editable fields of a perfume. Identical
// overlapping submits from the same admin collapse onto one update; distinct
// edits are applied in turn and the last write wins.
func (s *adminService) UpdatePerfume(ctx context.Context, adminID, perfumeID uuid.UUID, input PerfumeInput) (*domain.Perfume, error) {
	input, err := s.bufferImage(input)
	if err != nil {
		return nil, err
	}

	key := submitKey("update", adminID, perfumeID, input)
	return s.submit(ctx, key, func() (*domain.Perfume, error) {
		perfume, err := s.perfumes.FindByID(ctx, perfumeID)
		if err != nil {
			return nil, fmt.Errorf("failed to load perfume: %w", err)
		}

		if err := s.apply(perfume, input, false); err != nil {
			return nil, err
		}

		done := s.rec.Record("update_perfume")
		if err := done(s.perfumes.Update(ctx, perfume)); err != nil {
			return nil, fmt.Errorf("failed to update perfume: %w", err)
		}

		s.logger.Info("Perfume updated",
			zap.String("admin_id", adminID.String()),
			zap.String("perfume_id", perfume.ID.String()),
			zap.String("status", string(perfume.Status)),
		)
		return perfume, nil
	})
}

// RequestDeletion issues the confirmation token that ConfirmDeletion requires
func (s *adminService) RequestDeletion(ctx context.Context, adminID, perfumeID uuid.UUID) (*DeletionRequest, error) {
	perfume, err := s.perfumes.FindByID(ctx, perfumeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load perfume: %w", err)
	}

	token, err := s.confirmations.Issue(ctx, deletionScope(adminID, perfumeID), s.cfg.DeleteConfirmationTTL)
	if err != nil {
		return nil, err
	}

	return &DeletionRequest{
		PerfumeID: perfume.ID,
		Name:      perfume.Name,
		Token:     token,
		ExpiresAt: time.Now().Add(s.cfg.DeleteConfirmationTTL),
	}, nil
}

// ConfirmDeletion deletes the perfume if token matches the pending request
// of the same admin. The token is single-use.
func (s *adminService) ConfirmDeletion(ctx context.Context, adminID, perfumeID uuid.UUID, token string) error {
	ok, err := s.confirmations.Consume(ctx, deletionScope(adminID, perfumeID), token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConfirmationRequired
	}

	done := s.rec.Record("delete_perfume")
	if err := done(s.perfumes.Delete(ctx, perfumeID)); err != nil {
		return fmt.Errorf("failed to delete perfume: %w", err)
	}

	s.logger.Info("Perfume deleted",
		zap.String("admin_id", adminID.String()),
		zap.String("perfume_id", perfumeID.String()),
	)
	return nil
}

// ListProfiles returns every profile, newest first
func (s *adminService) ListProfiles(ctx context.Context) ([]*domain.Profile, error) {
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// ToggleAdmin flips the admin flag of a profile
func (s *adminService) ToggleAdmin(ctx context.Context, adminID, profileID uuid.UUID) (*domain.Profile, error) {
	done := s.rec.Record("toggle_admin")
	profile, err := s.profiles.ToggleAdmin(ctx, profileID)
	if err := done(err); err != nil {
		return nil, fmt.Errorf("failed to toggle admin flag: %w", err)
	}

	s.logger.Info("Admin flag toggled",
		zap.String("admin_id", adminID.String()),
		zap.String("profile_id", profileID.String()),
		zap.Bool("is_admin", profile.IsAdmin),
	)
	return profile, nil
}

// submit runs fn once per key among overlapping callers. A caller whose
// context ends stops waiting and gets the context error.
func (s *adminService) submit(ctx context.Context, key string, fn func() (*domain.Perfume, error)) (*domain.Perfume, error) {
	ch := s.submits.DoChan(key, func() (interface{}, error) {
		return fn()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("Collapsed duplicate editor submit", zap.String("key", key))
		}
		if res.Err != nil {
			return nil, res.Err
		}
		// Each caller gets its own copy
		perfume := *res.Val.(*domain.Perfume)
		return &perfume, nil
	}
}

// bufferImage reads the upload into memory so it can be fingerprinted and
// still be encoded later. One byte past the limit is kept so the size check
// in EncodeImage still fires.
func (s *adminService) bufferImage(input PerfumeInput) (PerfumeInput, error) {
	if input.Image == nil {
		return input, nil
	}
	data, err := io.ReadAll(io.LimitReader(input.Image, s.cfg.ImageMaxBytes+1))
	if err != nil {
		return input, fmt.Errorf("failed to read image: %w", err)
	}
	input.Image = bytes.NewReader(data)
	return input, nil
}

// submitKey fingerprints an editor submit: who sent it, what it targets and
// every submitted value including the image bytes.
func submitKey(op string, adminID, perfumeID uuid.UUID, input PerfumeInput) string {
	d := xxhash.New()
	field := func(v string) {
		_, _ = d.WriteString(strconv.Itoa(len(v)))
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(v)
	}
	field(input.Name)
	field(input.Brand)
	field(input.Price)
	field(input.PromotionPrice)
	field(string(input.Status))
	if input.Description != nil {
		field("+" + *input.Description)
	} else {
		field("-")
	}
	if r, ok := input.Image.(*bytes.Reader); ok {
		_, _ = d.WriteString("+image:")
		_, _ = r.WriteTo(d)
		_, _ = r.Seek(0, io.SeekStart)
	} else {
		field("-")
	}
	return op + ":" + adminID.String() + ":" + perfumeID.String() + ":" + strconv.FormatUint(d.Sum64(), 16)
}

// apply validates input and copies it onto perfume. On create an image is required.
func (s *adminService) apply(perfume *domain.Perfume, input PerfumeInput, creating bool) error {
	verr := &ValidationError{}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		verr.add("name", "is required")
	}
	brand := strings.TrimSpace(input.Brand)
	if brand == "" {
		verr.add("brand", "is required")
	}

	price, err := ParsePrice(input.Price)
	if err != nil {
		verr.add("price", err.Error())
	}

	var promotion *decimal.Decimal
	if strings.TrimSpace(input.PromotionPrice) != "" {
		p, err := ParsePrice(input.PromotionPrice)
		if err != nil {
			verr.add("promotion_price", err.Error())
		} else {
			promotion = &p
		}
	}

	status := input.Status
	if status == "" {
		status = domain.PerfumeAvailable
	}
	if !status.Valid() {
		verr.add("status", "must be available or unavailable")
	}

	var image string
	switch {
	case input.Image != nil:
		encoded, err := EncodeImage(input.Image, s.cfg.ImageMaxBytes)
		if err != nil {
			verr.add("image", err.Error())
		}
		image = encoded
	case creating:
		verr.add("image", "is required")
	default:
		image = perfume.ImageBase64
	}

	if err := verr.orNil(); err != nil {
		return err
	}

	perfume.Name = name
	perfume.Brand = brand
	perfume.Price = price
	perfume.PromotionPrice = promotion
	perfume.Status = status
	perfume.Description = trimOptional(input.Description)
	perfume.ImageBase64 = image
	return nil
}

// ParsePrice parses a non-negative price with at most two decimals.
// A decimal comma is accepted when no dot is present.
func ParsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, errors.New("is required")
	}
	if !strings.Contains(raw, ".") && strings.Count(raw, ",") == 1 {
		raw = strings.Replace(raw, ",", ".", 1)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New("must be a number")
	}
	if price.IsNegative() {
		return decimal.Zero, errors.New("must not be negative")
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return decimal.Zero, errors.New("is too large")
	}
	if price.Exponent() < -2 && !price.Equal(price.Round(2)) {
		return decimal.Zero, errors.New("must have at most two decimal places")
	}
	return price, nil
}

// maxPrice is the first value that no longer fits NUMERIC(10, 2)
var maxPrice = decimal.New(1, 8)

func deletionScope(adminID, perfumeID uuid.UUID) string {
	return "delete-perfume:" + adminID.String() + ":" + perfumeID.String()
}
