package stock

import (
	"context"
	"errors"
	"testing"

	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/store/memory"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(memory.NewSeeded())
}

func setQuantity(t *testing.T, l *Ledger, productID string, quantity int) {
	t.Helper()
	if _, err := l.Adjust(context.Background(), productID, quantity, "test setup", "tester"); err != nil {
		t.Fatalf("adjust %s to %d: %v", productID, quantity, err)
	}
}

func currentQuantity(t *testing.T, l *Ledger, productID string) int {
	t.Helper()
	item, err := l.repo.GetStockItem(context.Background(), productID)
	if err != nil {
		t.Fatalf("get %s: %v", productID, err)
	}
	return item.StockQuantity
}

func TestReserveSnapshotsPriceAndStock(t *testing.T) {
	l := newTestLedger(t)
	setQuantity(t, l, "PRD-STICKER-01", 5)

	reserved, err := l.Reserve(context.Background(), []domain.CartItem{
		{ProductID: "PRD-STICKER-01", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if len(reserved) != 1 {
		t.Fatalf("expected 1 reserved line, got %d", len(reserved))
	}
	line := reserved[0]
	if line.CurrentStock != 5 || line.Quantity != 3 {
		t.Fatalf("unexpected snapshot: %+v", line)
	}
	if line.Subtotal != line.UnitPrice*3 {
		t.Fatalf("expected subtotal %d, got %d", line.UnitPrice*3, line.Subtotal)
	}
	// Reservation alone must not mutate stock.
	if got := currentQuantity(t, l, "PRD-STICKER-01"); got != 5 {
		t.Fatalf("expected stock untouched at 5, got %d", got)
	}
}

func TestReserveRejectsWholeCartOnOneBadLine(t *testing.T) {
	l := newTestLedger(t)
	setQuantity(t, l, "PRD-STICKER-01", 5)

	_, err := l.Reserve(context.Background(), []domain.CartItem{
		{ProductID: "PRD-STICKER-01", Quantity: 3},
		{ProductID: "PRD-TOTE-01", Quantity: 100_000},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	_, err = l.Reserve(context.Background(), []domain.CartItem{
		{ProductID: "PRD-STICKER-01", Quantity: 3},
		{ProductID: "PRD-NOPE-99", Quantity: 1},
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	_, err = l.Reserve(context.Background(), []domain.CartItem{
		{ProductID: "PRD-STICKER-01", Quantity: 0},
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}

	if _, err := l.Reserve(context.Background(), nil); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestDeductAndRestoreKeepHistoryConsistent(t *testing.T) {
	l := newTestLedger(t)
	setQuantity(t, l, "PRD-STICKER-01", 5)

	reserved, err := l.Reserve(context.Background(), []domain.CartItem{
		{ProductID: "PRD-STICKER-01", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := l.Deduct(context.Background(), reserved, "sale-123", "1001"); err != nil {
		t.Fatalf("deduct failed: %v", err)
	}
	if got := currentQuantity(t, l, "PRD-STICKER-01"); got != 2 {
		t.Fatalf("expected 2 after deduct, got %d", got)
	}

	history, err := l.History(context.Background(), "PRD-STICKER-01", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	// Newest first: the deduction entry precedes the setup adjustment.
	deduction := history[0]
	if deduction.QuantityBefore != 5 || deduction.QuantityAfter != 2 || deduction.QuantityChange != -3 {
		t.Fatalf("unexpected deduction entry: %+v", deduction)
	}
	if deduction.Reason != "sale (sale_id: sale-123)" {
		t.Fatalf("unexpected deduction reason: %q", deduction.Reason)
	}

	sale := &domain.Sale{
		SaleID: "sale-123",
		Items: []domain.SaleLine{
			{ProductID: "PRD-STICKER-01", Quantity: 3},
		},
	}
	if err := l.Restore(context.Background(), sale, "1001", ""); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if got := currentQuantity(t, l, "PRD-STICKER-01"); got != 5 {
		t.Fatalf("expected 5 after restore, got %d", got)
	}

	history, err = l.History(context.Background(), "PRD-STICKER-01", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	restore := history[0]
	if restore.QuantityBefore != 2 || restore.QuantityAfter != 5 || restore.QuantityChange != 3 {
		t.Fatalf("unexpected restore entry: %+v", restore)
	}
	if restore.Reason != "sale cancelled (sale_id: sale-123)" {
		t.Fatalf("unexpected restore reason: %q", restore.Reason)
	}

	for _, entry := range history {
		if entry.QuantityAfter-entry.QuantityBefore != entry.QuantityChange {
			t.Fatalf("history entry violates delta invariant: %+v", entry)
		}
	}
}

func TestRestoreUsesCurrentStockNotSnapshot(t *testing.T) {
	l := newTestLedger(t)
	setQuantity(t, l, "PRD-STICKER-01", 5)

	reserved, err := l.Reserve(context.Background(), []domain.CartItem{
		{ProductID: "PRD-STICKER-01", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := l.Deduct(context.Background(), reserved, "sale-xyz", "1001"); err != nil {
		t.Fatalf("deduct failed: %v", err)
	}

	// An intervening restock must survive the restore.
	setQuantity(t, l, "PRD-STICKER-01", 10)

	sale := &domain.Sale{
		SaleID: "sale-xyz",
		Items:  []domain.SaleLine{{ProductID: "PRD-STICKER-01", Quantity: 3}},
	}
	if err := l.Restore(context.Background(), sale, "1001", ""); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if got := currentQuantity(t, l, "PRD-STICKER-01"); got != 13 {
		t.Fatalf("expected 13 after restore over restock, got %d", got)
	}
}

func TestAdjustRejectsNegativeQuantity(t *testing.T) {
	l := newTestLedger(t)

	if _, err := l.Adjust(context.Background(), "PRD-STICKER-01", -1, "bad", "tester"); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := l.Adjust(context.Background(), "PRD-NOPE-99", 5, "bad", "tester"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestHistoryLimit(t *testing.T) {
	l := newTestLedger(t)
	for i := 1; i <= 5; i++ {
		setQuantity(t, l, "PRD-STICKER-01", i)
	}

	history, err := l.History(context.Background(), "PRD-STICKER-01", 3)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	if history[0].QuantityAfter != 5 {
		t.Fatalf("expected newest entry first, got %+v", history[0])
	}
}
