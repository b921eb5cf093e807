package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/store"
	"tillguard/backend/internal/xid"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("at least one item is required")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Ledger mediates every stock mutation and records each one as a history
// entry. QuantityAfter minus QuantityBefore equals QuantityChange on every
// entry it writes.
type Ledger struct {
	repo store.Repository
	now  func() time.Time
}

func NewLedger(repo store.Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Reserve validates a cart against current stock and returns priced
// snapshots. All lines are checked before anything is written; a single
// failing line rejects the whole cart with no mutation.
func (l *Ledger) Reserve(ctx context.Context, items []domain.CartItem) ([]domain.ReservedItem, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, item.ProductID)
		}
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := l.repo.GetStockItems(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load stock: %w", err)
	}

	reserved := make([]domain.ReservedItem, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
		}
		if product.StockQuantity < item.Quantity {
			return nil, fmt.Errorf("%w: %s has %d, requested %d",
				ErrInsufficientStock, item.ProductID, product.StockQuantity, item.Quantity)
		}
		reserved = append(reserved, domain.ReservedItem{
			ProductID:    product.ProductID,
			ProductName:  product.Name,
			Quantity:     item.Quantity,
			UnitPrice:    product.UnitPrice,
			Subtotal:     product.UnitPrice * int64(item.Quantity),
			CurrentStock: product.StockQuantity,
		})
	}
	return reserved, nil
}

// Deduct commits reserved quantities. It works from the reservation
// snapshots, writing snapshot minus quantity for each line, and appends a
// negative history entry per product.
func (l *Ledger) Deduct(ctx context.Context, reserved []domain.ReservedItem, saleID, operatorID string) error {
	now := l.now().UTC()
	reason := fmt.Sprintf("sale (sale_id: %s)", saleID)

	for _, item := range reserved {
		after := item.CurrentStock - item.Quantity
		if err := l.repo.SetStockQuantity(ctx, item.ProductID, after, now); err != nil {
			return fmt.Errorf("deduct %s: %w", item.ProductID, err)
		}
		if err := l.appendHistory(ctx, item.ProductID, item.CurrentStock, after, reason, operatorID); err != nil {
			return err
		}
	}
	return nil
}

// Restore returns a sale's quantities to stock. Unlike Deduct it re-reads
// the current quantity per product so intervening mutations are preserved,
// and appends a positive compensating entry.
func (l *Ledger) Restore(ctx context.Context, sale *domain.Sale, operatorID, reason string) error {
	now := l.now().UTC()
	if reason == "" {
		reason = fmt.Sprintf("sale cancelled (sale_id: %s)", sale.SaleID)
	}

	for _, line := range sale.Items {
		product, err := l.repo.GetStockItem(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
			}
			return fmt.Errorf("load %s: %w", line.ProductID, err)
		}
		after := product.StockQuantity + line.Quantity
		if err := l.repo.SetStockQuantity(ctx, line.ProductID, after, now); err != nil {
			return fmt.Errorf("restore %s: %w", line.ProductID, err)
		}
		if err := l.appendHistory(ctx, line.ProductID, product.StockQuantity, after, reason, operatorID); err != nil {
			return err
		}
	}
	return nil
}

// Adjust sets an absolute quantity with an audited reason.
func (l *Ledger) Adjust(ctx context.Context, productID string, quantity int, reason, operatorID string) (*domain.StockItem, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := l.repo.GetStockItem(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return nil, fmt.Errorf("load %s: %w", productID, err)
	}

	now := l.now().UTC()
	if err := l.repo.SetStockQuantity(ctx, productID, quantity, now); err != nil {
		return nil, fmt.Errorf("adjust %s: %w", productID, err)
	}
	if err := l.appendHistory(ctx, productID, product.StockQuantity, quantity, reason, operatorID); err != nil {
		return nil, err
	}

	product.StockQuantity = quantity
	product.UpdatedAt = now
	return product, nil
}

func (l *Ledger) History(ctx context.Context, productID string, limit int) ([]domain.StockHistoryEntry, error) {
	return l.repo.ListStockHistory(ctx, productID, limit)
}

func (l *Ledger) List(ctx context.Context) ([]domain.StockItem, error) {
	return l.repo.ListStockItems(ctx)
}

func (l *Ledger) appendHistory(ctx context.Context, productID string, before, after int, reason, operatorID string) error {
	entry := domain.StockHistoryEntry{
		ID:             xid.New("sh"),
		ProductID:      productID,
		Timestamp:      l.now().UTC().UnixMilli(),
		QuantityBefore: before,
		QuantityAfter:  after,
		QuantityChange: after - before,
		Reason:         reason,
		OperatorID:     operatorID,
	}
	if err := l.repo.AppendStockHistory(ctx, entry); err != nil {
		return fmt.Errorf("append stock history for %s: %w", productID, err)
	}
	return nil
}
