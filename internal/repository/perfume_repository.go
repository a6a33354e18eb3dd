package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"perfume-store/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrPerfumeNotFound = errors.New("perfume not found")
	ErrInvalidPerfume  = errors.New("perfume violates a catalog constraint")
)

// AllBrands is the brand filter value that disables brand filtering
const AllBrands = "Todos"

// PerfumeFilter narrows a catalog listing
type PerfumeFilter struct {
	// Search matches name or brand, case-insensitive substring
	Search string
	// Brand is an exact brand match; empty or AllBrands means any
	Brand string
}

// PerfumeRepository defines the interface for catalog data access
type PerfumeRepository interface {
	Create(ctx context.Context, perfume *domain.Perfume) error
	Update(ctx context.Context, perfume *domain.Perfume) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Perfume, error)
	List(ctx context.Context, filter PerfumeFilter) ([]*domain.Perfume, error)
	Brands(ctx context.Context) ([]string, error)
}

type perfumeRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewPerfumeRepository creates a new instance of PerfumeRepository
func NewPerfumeRepository(db *sql.DB) PerfumeRepository {
	return &perfumeRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var perfumeColumns = []string{
	"id", "name", "brand", "price", "promotion_price", "image_base64",
	"status", "description", "created_at", "updated_at",
}

func scanPerfume(row interface{ Scan(...any) error }) (*domain.Perfume, error) {
	perfume := &domain.Perfume{}
	var (
		promotion   decimal.NullDecimal
		description sql.NullString
	)
	err := row.Scan(
		&perfume.ID,
		&perfume.Name,
		&perfume.Brand,
		&perfume.Price,
		&promotion,
		&perfume.ImageBase64,
		&perfume.Status,
		&description,
		&perfume.CreatedAt,
		&perfume.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if promotion.Valid {
		perfume.PromotionPrice = &promotion.Decimal
	}
	if description.Valid {
		perfume.Description = &description.String
	}
	return perfume, nil
}

// nullablePerfume receives perfume columns from an outer join
type nullablePerfume struct {
	id          uuid.NullUUID
	name        sql.NullString
	brand       sql.NullString
	price       decimal.NullDecimal
	promotion   decimal.NullDecimal
	image       sql.NullString
	status      sql.NullString
	description sql.NullString
	createdAt   sql.NullTime
	updatedAt   sql.NullTime
}

func (n *nullablePerfume) targets() []any {
	return []any{
		&n.id, &n.name, &n.brand, &n.price, &n.promotion,
		&n.image, &n.status, &n.description, &n.createdAt, &n.updatedAt,
	}
}

// toDomain returns nil when the join found no perfume
func (n *nullablePerfume) toDomain() *domain.Perfume {
	if !n.id.Valid {
		return nil
	}
	perfume := &domain.Perfume{
		ID:          n.id.UUID,
		Name:        n.name.String,
		Brand:       n.brand.String,
		Price:       n.price.Decimal,
		ImageBase64: n.image.String,
		Status:      domain.PerfumeStatus(n.status.String),
		CreatedAt:   n.createdAt.Time,
		UpdatedAt:   n.updatedAt.Time,
	}
	if n.promotion.Valid {
		promotion := n.promotion.Decimal
		perfume.PromotionPrice = &promotion
	}
	if n.description.Valid {
		description := n.description.String
		perfume.Description = &description
	}
	return perfume
}

func nullableDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// Create inserts a new perfume using parameterized queries
func (r *perfumeRepository) Create(ctx context.Context, perfume *domain.Perfume) error {
	query, args, err := r.sb.Insert("perfumes").
		Columns(perfumeColumns...).
		Values(
			perfume.ID,
			perfume.Name,
			perfume.Brand,
			perfume.Price,
			nullableDecimal(perfume.PromotionPrice),
			perfume.ImageBase64,
			perfume.Status,
			perfume.Description,
			perfume.CreatedAt,
			perfume.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build perfume insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isCheckViolation(err) {
			return ErrInvalidPerfume
		}
		return fmt.Errorf("failed to create perfume: %w", err)
	}

	return nil
}

// Update overwrites the editable fields of a perfume
func (r *perfumeRepository) Update(ctx context.Context, perfume *domain.Perfume) error {
	query, args, err := r.sb.Update("perfumes").
		SetMap(map[string]interface{}{
			"name":            perfume.Name,
			"brand":           perfume.Brand,
			"price":           perfume.Price,
			"promotion_price": nullableDecimal(perfume.PromotionPrice),
			"image_base64":    perfume.ImageBase64,
			"status":          perfume.Status,
			"description":     perfume.Description,
		}).
		Where(sq.Eq{"id": perfume.ID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build perfume update: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&perfume.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPerfumeNotFound
		}
		if isCheckViolation(err) {
			return ErrInvalidPerfume
		}
		return fmt.Errorf("failed to update perfume: %w", err)
	}

	return nil
}

// Delete removes a perfume; reviews, favorites and cart lines cascade
func (r *perfumeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM perfumes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete perfume: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrPerfumeNotFound
	}

	return nil
}

// FindByID retrieves a perfume by ID
func (r *perfumeRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Perfume, error) {
	query, args, err := r.sb.Select(perfumeColumns...).
		From("perfumes").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build perfume query: %w", err)
	}

	perfume, err := scanPerfume(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPerfumeNotFound
		}
		return nil, fmt.Errorf("failed to find perfume by ID: %w", err)
	}

	return perfume, nil
}

// List retrieves the catalog newest first, narrowed by the filter
func (r *perfumeRepository) List(ctx context.Context, filter PerfumeFilter) ([]*domain.Perfume, error) {
	builder := r.sb.Select(perfumeColumns...).
		From("perfumes").
		OrderBy("created_at DESC")

	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := "%" + escapeLike(term) + "%"
		builder = builder.Where(sq.Or{
			sq.ILike{"name": pattern},
			sq.ILike{"brand": pattern},
		})
	}

	if filter.Brand != "" && filter.Brand != AllBrands {
		builder = builder.Where(sq.Eq{"brand": filter.Brand})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build perfume listing: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list perfumes: %w", err)
	}
	defer rows.Close()

	perfumes := []*domain.Perfume{}
	for rows.Next() {
		perfume, err := scanPerfume(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan perfume: %w", err)
		}
		perfumes = append(perfumes, perfume)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating perfumes: %w", err)
	}

	return perfumes, nil
}

// Brands returns the distinct brands in the catalog, sorted
func (r *perfumeRepository) Brands(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT brand FROM perfumes ORDER BY brand ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	defer rows.Close()

	brands := []string{}
	for rows.Next() {
		var brand string
		if err := rows.Scan(&brand); err != nil {
			return nil, fmt.Errorf("failed to scan brand: %w", err)
		}
		brands = append(brands, brand)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating brands: %w", err)
	}

	return brands, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
