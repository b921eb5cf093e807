package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tillguard/backend/internal/coupon"
	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/stock"
	"tillguard/backend/internal/store"
	"tillguard/backend/internal/xid"
)

var (
	ErrLeaderRequired     = errors.New("leader role required")
	ErrSaleNotCancellable = errors.New("sale is not in a cancellable state")
	ErrMissingPayment     = errors.New("payment_method is required")
	ErrMissingLocalSaleID = errors.New("local_sale_id is required")
)

// Service orchestrates the sale pipeline: reserve stock, price the coupon,
// persist the sale, then commit the deduction. Validation failures leave no
// partial mutation; failures after the sale is durable are logged as
// inconsistencies rather than surfaced.
type Service struct {
	repo    store.Repository
	stock   *stock.Ledger
	coupons *coupon.Engine
	now     func() time.Time
}

func New(repo store.Repository, ledger *stock.Ledger, engine *coupon.Engine) *Service {
	return &Service{
		repo:    repo,
		stock:   ledger,
		coupons: engine,
		now:     time.Now,
	}
}

// RecordSale runs the online sale pipeline for an authenticated session.
func (s *Service) RecordSale(ctx context.Context, sess *domain.EmployeeSession, req domain.SaleRequest) (*domain.Sale, error) {
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return nil, ErrMissingPayment
	}

	return s.recordSale(ctx, saleInput{
		items:          req.Items,
		paymentMethod:  req.PaymentMethod,
		couponCode:     req.CouponCode,
		employeeNumber: sess.EmployeeNumber,
		terminalID:     sess.TerminalID,
		publisherID:    sess.PublisherID,
		eventID:        sess.EventID,
		source:         domain.SaleSourceOnline,
		timestamp:      s.now().Unix(),
	})
}

func (s *Service) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	return s.repo.GetSale(ctx, saleID)
}

// CancelSale reverses a completed sale: status flips to cancelled and the
// quantities return to stock with compensating history entries. Leaders
// only.
func (s *Service) CancelSale(ctx context.Context, sess *domain.EmployeeSession, saleID, reason string) (*domain.Sale, error) {
	if sess.Role != domain.RoleLeader {
		return nil, ErrLeaderRequired
	}

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, ErrSaleNotCancellable
	}

	cancelled, err := s.repo.UpdateSaleStatus(ctx, saleID, domain.SaleStatusCancelled, reason)
	if err != nil {
		return nil, fmt.Errorf("cancel sale: %w", err)
	}

	if err := s.stock.Restore(ctx, cancelled, sess.EmployeeNumber, ""); err != nil {
		log.Printf("[service] WARN: stock restore for cancelled sale %s failed: %v", saleID, err)
	}
	return cancelled, nil
}

// SyncOfflineSales drains a terminal's offline queue. Records are keyed by
// LocalSaleID: already-synced and already-failed records replay their prior
// outcome without touching stock, new records run the sale pipeline once.
func (s *Service) SyncOfflineSales(ctx context.Context, terminal *domain.Terminal, records []domain.OfflineSaleRecord) (*domain.OfflineSyncResponse, error) {
	statuses := make([]domain.OfflineSyncStatus, 0, len(records))
	synced := 0

	for _, record := range records {
		status := s.syncOne(ctx, terminal, record)
		if status.Status == domain.SyncStatusSynced {
			synced++
		}
		statuses = append(statuses, status)
	}

	return &domain.OfflineSyncResponse{
		Statuses:      statuses,
		SyncedCount:   synced,
		SyncTimestamp: s.now().Unix(),
	}, nil
}

// PendingOfflineSales lists records accepted but not yet resolved for a
// terminal, for operator-driven recovery.
func (s *Service) PendingOfflineSales(ctx context.Context, terminalID string) ([]domain.OfflineSaleRecord, error) {
	return s.repo.ListPendingOfflineSales(ctx, terminalID)
}

func (s *Service) syncOne(ctx context.Context, terminal *domain.Terminal, record domain.OfflineSaleRecord) domain.OfflineSyncStatus {
	if strings.TrimSpace(record.LocalSaleID) == "" {
		return domain.OfflineSyncStatus{
			Status: domain.SyncStatusFailed,
			Reason: ErrMissingLocalSaleID.Error(),
		}
	}

	existing, err := s.repo.GetOfflineSale(ctx, record.LocalSaleID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.OfflineSyncStatus{
			LocalSaleID: record.LocalSaleID,
			Status:      domain.SyncStatusFailed,
			Reason:      "offline record lookup failed",
		}
	}

	if existing == nil {
		record.TerminalID = terminal.TerminalID
		record.SyncStatus = domain.SyncStatusPending
		if err := s.repo.CreateOfflineSale(ctx, record); err != nil {
			if !errors.Is(err, store.ErrDuplicateRecord) {
				return domain.OfflineSyncStatus{
					LocalSaleID: record.LocalSaleID,
					Status:      domain.SyncStatusFailed,
					Reason:      "offline record write failed",
				}
			}
			existing, err = s.repo.GetOfflineSale(ctx, record.LocalSaleID)
			if err != nil {
				return domain.OfflineSyncStatus{
					LocalSaleID: record.LocalSaleID,
					Status:      domain.SyncStatusFailed,
					Reason:      "offline record lookup failed",
				}
			}
		}
	}

	if existing != nil {
		switch existing.SyncStatus {
		case domain.SyncStatusSynced:
			return domain.OfflineSyncStatus{
				LocalSaleID: existing.LocalSaleID,
				Status:      domain.SyncStatusSynced,
				SaleID:      existing.SaleID,
			}
		case domain.SyncStatusFailed:
			return domain.OfflineSyncStatus{
				LocalSaleID: existing.LocalSaleID,
				Status:      domain.SyncStatusFailed,
				Reason:      existing.FailureReason,
			}
		default:
			// Pending record left by an interrupted sync; process it now.
			record = *existing
		}
	}

	timestamp := record.RecordedAt
	if timestamp <= 0 {
		timestamp = s.now().Unix()
	}

	// Offline records carry no session, so the employee's publisher scope is
	// resolved here to keep coupon eligibility identical to the online path.
	var publisherID string
	if employee, err := s.repo.GetEmployee(ctx, record.EmployeeNumber); err == nil {
		publisherID = employee.PublisherID
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("[service] WARN: employee lookup for offline sale %s failed: %v", record.LocalSaleID, err)
	}

	sale, err := s.recordSale(ctx, saleInput{
		items:          record.Items,
		paymentMethod:  record.PaymentMethod,
		couponCode:     record.CouponCode,
		employeeNumber: record.EmployeeNumber,
		terminalID:     terminal.TerminalID,
		publisherID:    publisherID,
		eventID:        record.EventID,
		source:         domain.SaleSourceOffline,
		timestamp:      timestamp,
	})
	if err != nil {
		reason := err.Error()
		if markErr := s.repo.MarkOfflineSaleFailed(ctx, record.LocalSaleID, reason); markErr != nil {
			log.Printf("[service] WARN: marking offline sale %s failed errored: %v", record.LocalSaleID, markErr)
		}
		return domain.OfflineSyncStatus{
			LocalSaleID: record.LocalSaleID,
			Status:      domain.SyncStatusFailed,
			Reason:      reason,
		}
	}

	if err := s.repo.MarkOfflineSaleSynced(ctx, record.LocalSaleID, sale.SaleID, s.now().UTC()); err != nil {
		log.Printf("[service] WARN: marking offline sale %s synced errored: %v", record.LocalSaleID, err)
	}
	return domain.OfflineSyncStatus{
		LocalSaleID: record.LocalSaleID,
		Status:      domain.SyncStatusSynced,
		SaleID:      sale.SaleID,
	}
}

type saleInput struct {
	items          []domain.CartItem
	paymentMethod  string
	couponCode     string
	employeeNumber string
	terminalID     string
	publisherID    string
	eventID        string
	source         string
	timestamp      int64
}

func (s *Service) recordSale(ctx context.Context, in saleInput) (*domain.Sale, error) {
	reserved, err := s.stock.Reserve(ctx, normalizeItems(in.items))
	if err != nil {
		return nil, err
	}

	var subtotal int64
	for _, line := range reserved {
		subtotal += line.Subtotal
	}

	var applied *domain.CouponApplication
	if strings.TrimSpace(in.couponCode) != "" {
		applied, err = s.coupons.Apply(ctx, in.couponCode, reserved, in.publisherID, in.eventID)
		if err != nil {
			return nil, err
		}
	}

	var discount int64
	var couponID, couponCode string
	if applied != nil {
		discount = applied.DiscountAmount
		couponID = applied.Coupon.CouponID
		couponCode = applied.Coupon.Code
	}

	sale := domain.Sale{
		SaleID:         xid.New("sale"),
		Timestamp:      in.timestamp,
		Items:          toSaleLines(reserved),
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TotalAmount:    subtotal - discount,
		PaymentMethod:  in.paymentMethod,
		Status:         domain.SaleStatusCompleted,
		EmployeeNumber: in.employeeNumber,
		TerminalID:     in.terminalID,
		EventID:        in.eventID,
		CouponID:       couponID,
		CouponCode:     couponCode,
		Source:         in.source,
		CreatedAt:      s.now().UTC(),
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return nil, fmt.Errorf("create sale: %w", err)
	}

	if err := s.stock.Deduct(ctx, reserved, created.SaleID, in.employeeNumber); err != nil {
		log.Printf("[service] WARN: stock deduction for sale %s failed, ledger inconsistent: %v", created.SaleID, err)
	}
	if applied != nil {
		s.coupons.IncrementUsage(ctx, applied.Coupon.CouponID)
	}

	return created, nil
}

// normalizeItems merges duplicate product lines so a cart holding the same
// product twice reserves the combined quantity once.
func normalizeItems(items []domain.CartItem) []domain.CartItem {
	merged := make([]domain.CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if pos, ok := index[item.ProductID]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

func toSaleLines(reserved []domain.ReservedItem) []domain.SaleLine {
	lines := make([]domain.SaleLine, 0, len(reserved))
	for _, item := range reserved {
		lines = append(lines, domain.SaleLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	return lines
}
