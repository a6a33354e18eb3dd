package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"perfume-store/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrInvalidQuantity  = errors.New("cart quantity must be at least 1")
)

// CartRepository defines the interface for cart line data access.
// Every operation is scoped to the owning user.
type CartRepository interface {
	AddOne(ctx context.Context, userID, perfumeID uuid.UUID) (*domain.CartItem, error)
	UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.CartItem, error)
	Delete(ctx context.Context, userID, itemID uuid.UUID) (int64, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.CartItem, error)
	SumQuantity(ctx context.Context, userID uuid.UUID) (int, error)
}

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository creates a new instance of CartRepository
func NewCartRepository(db *sql.DB) CartRepository {
	return &cartRepository{db: db}
}

const cartItemReturning = `RETURNING id, perfume_id, user_id, quantity, created_at`

func scanCartItem(row interface{ Scan(...any) error }) (*domain.CartItem, error) {
	item := &domain.CartItem{}
	if err := row.Scan(&item.ID, &item.PerfumeID, &item.UserID, &item.Quantity, &item.CreatedAt); err != nil {
		return nil, err
	}
	return item, nil
}

// AddOne inserts the line with quantity 1 or increments the existing one
func (r *cartRepository) AddOne(ctx context.Context, userID, perfumeID uuid.UUID) (*domain.CartItem, error) {
	query := `
		INSERT INTO cart_items (id, perfume_id, user_id, quantity)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT ON CONSTRAINT cart_items_user_perfume_key
		DO UPDATE SET quantity = cart_items.quantity + 1
		` + cartItemReturning

	item, err := scanCartItem(r.db.QueryRowContext(ctx, query, uuid.New(), perfumeID, userID))
	if err != nil {
		if isForeignKeyViolation(err, "fk_cart_items_perfume") {
			return nil, ErrPerfumeNotFound
		}
		if isForeignKeyViolation(err, "fk_cart_items_user") {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	return item, nil
}

func (r *cartRepository) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.CartItem, error) {
	query := `
		UPDATE cart_items SET quantity = $3
		WHERE id = $1 AND user_id = $2
		` + cartItemReturning

	item, err := scanCartItem(r.db.QueryRowContext(ctx, query, itemID, userID, quantity))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		if isCheckViolation(err) {
			return nil, ErrInvalidQuantity
		}
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}

	return item, nil
}

func (r *cartRepository) Delete(ctx context.Context, userID, itemID uuid.UUID) (int64, error) {
	return r.exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
}

func (r *cartRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
}

// ListByUser returns the user's lines in insertion order. A line whose perfume
// row is gone keeps a nil Perfume.
func (r *cartRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.CartItem, error) {
	query := `
		SELECT c.id, c.perfume_id, c.user_id, c.quantity, c.created_at, ` + qualifiedPerfumeColumns("pf") + `
		FROM cart_items c
		LEFT JOIN perfumes pf ON pf.id = c.perfume_id
		WHERE c.user_id = $1
		ORDER BY c.created_at ASC, c.id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	items := []*domain.CartItem{}
	for rows.Next() {
		item := &domain.CartItem{}
		var perfume nullablePerfume
		dest := append([]any{
			&item.ID,
			&item.PerfumeID,
			&item.UserID,
			&item.Quantity,
			&item.CreatedAt,
		}, perfume.targets()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		item.Perfume = perfume.toDomain()
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return items, nil
}

// SumQuantity returns the total number of units in the user's cart
func (r *cartRepository) SumQuantity(ctx context.Context, userID uuid.UUID) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM cart_items WHERE user_id = $1`,
		userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count cart items: %w", err)
	}
	return total, nil
}

func (r *cartRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cart items: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
