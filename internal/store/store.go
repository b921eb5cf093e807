package store

import (
	"context"
	"errors"
	"time"

	"tillguard/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateTerminal = errors.New("terminal id already exists")
	ErrDuplicateEmployee = errors.New("employee number already exists")
	ErrDuplicateCoupon   = errors.New("coupon code already exists")
	ErrDuplicateRecord   = errors.New("record already exists")
)

type Repository interface {
	CreateTerminal(ctx context.Context, terminal domain.Terminal) (*domain.Terminal, error)
	GetTerminal(ctx context.Context, terminalID string) (*domain.Terminal, error)
	ListTerminals(ctx context.Context, status string) ([]domain.Terminal, error)
	RevokeTerminal(ctx context.Context, terminalID string, at time.Time) (*domain.Terminal, error)
	DeleteTerminal(ctx context.Context, terminalID string) error
	TouchTerminal(ctx context.Context, terminalID string, at time.Time) error
	CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	GetEmployee(ctx context.Context, employeeNumber string) (*domain.Employee, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	CreateSession(ctx context.Context, session domain.EmployeeSession) error
	GetSession(ctx context.Context, sessionID string) (*domain.EmployeeSession, error)
	UpdateSessionExpiry(ctx context.Context, sessionID string, expiresAt int64) (*domain.EmployeeSession, error)
	UpdateSessionEvent(ctx context.Context, sessionID string, eventID string) (*domain.EmployeeSession, error)
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteTerminalSessions(ctx context.Context, terminalID string) ([]string, error)
	GetStockItem(ctx context.Context, productID string) (*domain.StockItem, error)
	GetStockItems(ctx context.Context, productIDs []string) (map[string]domain.StockItem, error)
	ListStockItems(ctx context.Context) ([]domain.StockItem, error)
	SetStockQuantity(ctx context.Context, productID string, quantity int, at time.Time) error
	AppendStockHistory(ctx context.Context, entry domain.StockHistoryEntry) error
	ListStockHistory(ctx context.Context, productID string, limit int) ([]domain.StockHistoryEntry, error)
	CreateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	ListCoupons(ctx context.Context) ([]domain.Coupon, error)
	IncrementCouponUsage(ctx context.Context, couponID string) error
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)
	UpdateSaleStatus(ctx context.Context, saleID string, status string, reason string) (*domain.Sale, error)
	CreateOfflineSale(ctx context.Context, record domain.OfflineSaleRecord) error
	GetOfflineSale(ctx context.Context, localSaleID string) (*domain.OfflineSaleRecord, error)
	MarkOfflineSaleSynced(ctx context.Context, localSaleID string, saleID string, at time.Time) error
	MarkOfflineSaleFailed(ctx context.Context, localSaleID string, reason string) error
	ListPendingOfflineSales(ctx context.Context, terminalID string) ([]domain.OfflineSaleRecord, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
