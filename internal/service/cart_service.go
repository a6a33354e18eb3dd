package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"perfume-store/internal/domain"
	"perfume-store/internal/metrics"
	"perfume-store/internal/realtime"
	"perfume-store/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrQuantityBelowMinimum = errors.New("quantity must be at least 1; remove the item instead")
	ErrPerfumeUnavailable   = errors.New("perfume is unavailable")
)

// MinQuantity is the smallest quantity a stored cart line may hold
const MinQuantity = 1

// Checkout is the order hand-off built from the cart
type Checkout struct {
	Lines        []*domain.CartItem `json:"lines"`
	Summary      string             `json:"summary"`
	Total        decimal.Decimal    `json:"total"`
	WhatsAppURL  string             `json:"whatsapp_url"`
	InstagramURL string             `json:"instagram_url"`
}

// CartLedger is the per-user set of (perfume, quantity) lines
type CartLedger interface {
	AddOne(ctx context.Context, userID, perfumeID uuid.UUID) (*domain.CartItem, error)
	SetQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.CartItem, error)
	Remove(ctx context.Context, userID, itemID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
	Lines(ctx context.Context, userID uuid.UUID) ([]*domain.CartItem, error)
	Count(ctx context.Context, userID uuid.UUID) (int, error)
	Checkout(ctx context.Context, userID uuid.UUID) (*Checkout, error)
}

type cartLedger struct {
	items    repository.CartRepository
	perfumes repository.PerfumeRepository
	links    CheckoutLinks
	notifier ChangeNotifier
	rec      *metrics.REDClient
	logger   *zap.Logger
}

// NewCartLedger creates a new instance of CartLedger
func NewCartLedger(
	items repository.CartRepository,
	perfumes repository.PerfumeRepository,
	links CheckoutLinks,
	notifier ChangeNotifier,
	rec *metrics.REDClient,
	logger *zap.Logger,
) CartLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cartLedger{
		items:    items,
		perfumes: perfumes,
		links:    links,
		notifier: notifier,
		rec:      rec,
		logger:   logger.Named("cart"),
	}
}

// AddOne puts one unit of the perfume in the cart, incrementing an existing line
func (l *cartLedger) AddOne(ctx context.Context, userID, perfumeID uuid.UUID) (*domain.CartItem, error) {
	done := l.rec.Record("add_one")

	perfume, err := l.perfumes.FindByID(ctx, perfumeID)
	if err != nil {
		return nil, l.fail("add_one", done(err), userID)
	}
	if !perfume.IsAvailable() {
		_ = done(ErrPerfumeUnavailable)
		return nil, ErrPerfumeUnavailable
	}

	item, err := l.items.AddOne(ctx, userID, perfumeID)
	if err != nil {
		return nil, l.fail("add_one", done(err), userID)
	}
	item.Perfume = perfume

	_ = done(nil)
	op := realtime.OpUpdate
	if item.Quantity == 1 {
		op = realtime.OpInsert
	}
	l.notify(ctx, op, userID)
	return item, nil
}

// SetQuantity replaces the quantity of a line. Quantities below 1 are
// rejected and leave the line untouched.
func (l *cartLedger) SetQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.CartItem, error) {
	if quantity < MinQuantity {
		return nil, ErrQuantityBelowMinimum
	}

	done := l.rec.Record("set_quantity")

	item, err := l.items.UpdateQuantity(ctx, userID, itemID, quantity)
	if err != nil {
		return nil, l.fail("set_quantity", done(err), userID)
	}

	_ = done(nil)
	l.notify(ctx, realtime.OpUpdate, userID)
	return item, nil
}

// Remove deletes a line of the caller. Removing a missing line is not an error.
func (l *cartLedger) Remove(ctx context.Context, userID, itemID uuid.UUID) error {
	done := l.rec.Record("remove")

	removed, err := l.items.Delete(ctx, userID, itemID)
	if err != nil {
		return l.fail("remove", done(err), userID)
	}

	_ = done(nil)
	if removed > 0 {
		l.notify(ctx, realtime.OpDelete, userID)
	}
	return nil
}

// Clear deletes every line of the caller
func (l *cartLedger) Clear(ctx context.Context, userID uuid.UUID) error {
	done := l.rec.Record("clear")

	removed, err := l.items.DeleteByUser(ctx, userID)
	if err != nil {
		return l.fail("clear", done(err), userID)
	}

	_ = done(nil)
	if removed > 0 {
		l.notify(ctx, realtime.OpDelete, userID)
	}
	return nil
}

func (l *cartLedger) Lines(ctx context.Context, userID uuid.UUID) ([]*domain.CartItem, error) {
	lines, err := l.items.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return lines, nil
}

// Count is the number of units in the cart
func (l *cartLedger) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := l.items.SumQuantity(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count cart: %w", err)
	}
	return count, nil
}

// Checkout builds the order text and the outbound links for the current cart
func (l *cartLedger) Checkout(ctx context.Context, userID uuid.UUID) (*Checkout, error) {
	lines, err := l.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := CheckoutSummary(lines)
	return &Checkout{
		Lines:        lines,
		Summary:      summary,
		Total:        CartTotal(lines),
		WhatsAppURL:  l.links.WhatsApp(summary),
		InstagramURL: l.links.Instagram(),
	}, nil
}

func (l *cartLedger) fail(op string, err error, userID uuid.UUID) error {
	l.logger.Error("Cart mutation failed",
		zap.Error(err),
		zap.String("op", op),
		zap.String("user_id", userID.String()),
	)
	return fmt.Errorf("failed to %s: %w", strings.ReplaceAll(op, "_", " "), err)
}

func (l *cartLedger) notify(ctx context.Context, op string, userID uuid.UUID) {
	if l.notifier != nil {
		l.notifier.Notify(ctx, realtime.TableCartItems, op, userID)
	}
}

// LineSubtotal is the effective unit price times quantity; zero when the
// line's perfume is missing
func LineSubtotal(line *domain.CartItem) decimal.Decimal {
	if line == nil || line.Perfume == nil {
		return decimal.Zero
	}
	return line.Perfume.EffectivePrice().Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// CartTotal sums the line subtotals
func CartTotal(lines []*domain.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(LineSubtotal(line))
	}
	return total
}

// CheckoutSummary renders the order message sent through the chat link.
// Lines without a perfume are left out.
func CheckoutSummary(lines []*domain.CartItem) string {
	var b strings.Builder
	b.WriteString("Olá! Gostaria de fazer um pedido:\n\n")

	var items []string
	for _, line := range lines {
		if line == nil || line.Perfume == nil {
			continue
		}
		items = append(items, fmt.Sprintf("• %s - %s (%dx) - R$ %s",
			line.Perfume.Name,
			line.Perfume.Brand,
			line.Quantity,
			LineSubtotal(line).StringFixed(2),
		))
	}
	b.WriteString(strings.Join(items, "\n"))

	b.WriteString("\n\nTotal: R$ ")
	b.WriteString(CartTotal(lines).StringFixed(2))
	return b.String()
}
