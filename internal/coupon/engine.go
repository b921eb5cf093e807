package coupon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/store"
	"tillguard/backend/internal/xid"
)

var (
	ErrNotFound   = errors.New("coupon not found")
	ErrIneligible = errors.New("coupon not applicable")
)

// Engine validates coupons and computes discounts. Validation runs a fixed
// chain of checks and reports the first violated rule with a human-readable
// reason; discount math never runs for an ineligible coupon.
type Engine struct {
	repo store.Repository
	now  func() time.Time
}

func NewEngine(repo store.Repository) *Engine {
	return &Engine{repo: repo, now: time.Now}
}

func (e *Engine) Create(ctx context.Context, req domain.CouponCreateRequest) (*domain.Coupon, error) {
	code := normalizeCode(req.Code)
	if code == "" || strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("code and name are required")
	}
	switch req.DiscountType {
	case domain.DiscountTypeFixed, domain.DiscountTypePercentage:
	default:
		return nil, fmt.Errorf("unknown discount type %q", req.DiscountType)
	}
	if req.DiscountValue <= 0 {
		return nil, errors.New("discount_value must be positive")
	}
	if req.DiscountType == domain.DiscountTypePercentage && req.DiscountValue > 100 {
		return nil, errors.New("percentage discount cannot exceed 100")
	}

	coupon := domain.Coupon{
		CouponID:          xid.New("cpn"),
		Code:              code,
		Name:              strings.TrimSpace(req.Name),
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		UsageLimit:        req.UsageLimit,
		MinPurchaseAmount: req.MinPurchaseAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		PublisherID:       req.PublisherID,
		EventID:           req.EventID,
		Active:            true,
		Filter:            req.Filter,
		CreatedAt:         e.now().UTC(),
	}

	created, err := e.repo.CreateCoupon(ctx, coupon)
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}
	return created, nil
}

func (e *Engine) List(ctx context.Context) ([]domain.Coupon, error) {
	return e.repo.ListCoupons(ctx)
}

// Lookup resolves a coupon code case-insensitively.
func (e *Engine) Lookup(ctx context.Context, code string) (*domain.Coupon, error) {
	coupon, err := e.repo.GetCouponByCode(ctx, normalizeCode(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup coupon: %w", err)
	}
	return coupon, nil
}

// Validate runs the eligibility chain in order: active, valid_from,
// valid_until, usage limit, minimum purchase, publisher scope, event scope.
// The first violated rule wins.
func (e *Engine) Validate(coupon *domain.Coupon, subtotal int64, publisherID, eventID string) error {
	now := e.now().UTC()

	if !coupon.Active {
		return fmt.Errorf("%w: coupon is inactive", ErrIneligible)
	}
	if coupon.ValidFrom != nil && now.Before(*coupon.ValidFrom) {
		return fmt.Errorf("%w: coupon is not yet valid", ErrIneligible)
	}
	if coupon.ValidUntil != nil && now.After(*coupon.ValidUntil) {
		return fmt.Errorf("%w: coupon has expired", ErrIneligible)
	}
	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return fmt.Errorf("%w: usage upper limit reached", ErrIneligible)
	}
	if coupon.MinPurchaseAmount != nil && subtotal < *coupon.MinPurchaseAmount {
		return fmt.Errorf("%w: minimum purchase of %d required", ErrIneligible, *coupon.MinPurchaseAmount)
	}
	if coupon.PublisherID != "" && coupon.PublisherID != publisherID {
		return fmt.Errorf("%w: coupon is limited to a different publisher", ErrIneligible)
	}
	if coupon.EventID != "" && coupon.EventID != eventID {
		return fmt.Errorf("%w: coupon is limited to a different event", ErrIneligible)
	}
	return nil
}

// DiscountBase returns the amount the discount applies to. With no filter
// that is the full subtotal; with a filter, only matching lines count.
func DiscountBase(coupon *domain.Coupon, lines []domain.ReservedItem, categories map[string]string) int64 {
	if coupon.Filter == nil || (len(coupon.Filter.ProductIDs) == 0 && len(coupon.Filter.Categories) == 0) {
		var subtotal int64
		for _, line := range lines {
			subtotal += line.Subtotal
		}
		return subtotal
	}

	var base int64
	for _, line := range lines {
		if matchesFilter(coupon.Filter, line.ProductID, categories[line.ProductID]) {
			base += line.Subtotal
		}
	}
	return base
}

// Discount computes the discount for an eligible coupon against a base
// amount. Percentage values floor; the result is capped by the coupon's
// max discount and never exceeds the base.
func Discount(coupon *domain.Coupon, base int64) int64 {
	if base <= 0 {
		return 0
	}

	var discount int64
	switch coupon.DiscountType {
	case domain.DiscountTypePercentage:
		discount = base * coupon.DiscountValue / 100
	case domain.DiscountTypeFixed:
		discount = coupon.DiscountValue
	default:
		return 0
	}

	if coupon.MaxDiscountAmount != nil && discount > *coupon.MaxDiscountAmount {
		discount = *coupon.MaxDiscountAmount
	}
	if discount > base {
		discount = base
	}
	return discount
}

// Apply resolves, validates and prices a coupon for a reserved cart.
// Eligibility is judged against the full subtotal; the discount itself is
// computed against the filtered base.
func (e *Engine) Apply(ctx context.Context, code string, lines []domain.ReservedItem, publisherID, eventID string) (*domain.CouponApplication, error) {
	coupon, err := e.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	var subtotal int64
	for _, line := range lines {
		subtotal += line.Subtotal
	}
	if err := e.Validate(coupon, subtotal, publisherID, eventID); err != nil {
		return nil, err
	}

	categories, err := e.lineCategories(ctx, coupon, lines)
	if err != nil {
		return nil, err
	}
	base := DiscountBase(coupon, lines, categories)

	return &domain.CouponApplication{
		Coupon:         *coupon,
		DiscountAmount: Discount(coupon, base),
	}, nil
}

// IncrementUsage bumps the advisory usage counter. Called only after the
// sale is durably recorded; failures are logged and never surfaced.
func (e *Engine) IncrementUsage(ctx context.Context, couponID string) {
	if err := e.repo.IncrementCouponUsage(ctx, couponID); err != nil {
		log.Printf("[coupon] WARN: increment usage for %s failed: %v", couponID, err)
	}
}

// lineCategories loads product categories only when the filter needs them.
func (e *Engine) lineCategories(ctx context.Context, coupon *domain.Coupon, lines []domain.ReservedItem) (map[string]string, error) {
	if coupon.Filter == nil || len(coupon.Filter.Categories) == 0 {
		return nil, nil
	}

	productIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		productIDs = append(productIDs, line.ProductID)
	}
	products, err := e.repo.GetStockItems(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load products for coupon filter: %w", err)
	}

	categories := make(map[string]string, len(products))
	for id, product := range products {
		categories[id] = product.Category
	}
	return categories, nil
}

func matchesFilter(filter *domain.CouponFilter, productID, category string) bool {
	for _, id := range filter.ProductIDs {
		if id == productID {
			return true
		}
	}
	for _, c := range filter.Categories {
		if c != "" && c == category {
			return true
		}
	}
	return false
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
