package domain

import "time"

type Terminal struct {
	TerminalID   string     `json:"terminal_id"`
	PublicKey    string     `json:"public_key"`
	DeviceName   string     `json:"device_name"`
	OSType       string     `json:"os_type"`
	Status       string     `json:"status"`
	RegisteredBy string     `json:"registered_by"`
	RegisteredAt time.Time  `json:"registered_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
}

type TerminalRegisterRequest struct {
	TerminalID string `json:"terminal_id"`
	PublicKey  string `json:"public_key"`
	DeviceName string `json:"device_name"`
	OSType     string `json:"os_type"`
}

type TerminalListResponse struct {
	Terminals []Terminal `json:"terminals"`
}

type Employee struct {
	EmployeeNumber string    `json:"employee_number"`
	DisplayName    string    `json:"display_name"`
	PINHash        string    `json:"-"`
	Role           string    `json:"role"`
	PublisherID    string    `json:"publisher_id,omitempty"`
	EventID        string    `json:"event_id,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

type EmployeeCreateRequest struct {
	EmployeeNumber string `json:"employee_number"`
	DisplayName    string `json:"display_name"`
	PIN            string `json:"pin"`
	Role           string `json:"role"`
	PublisherID    string `json:"publisher_id"`
	EventID        string `json:"event_id"`
}

// EmployeeSession timestamps are unix seconds so the offline verification
// hash input is stable across serialization boundaries.
type EmployeeSession struct {
	SessionID      string `json:"session_id"`
	EmployeeNumber string `json:"employee_number"`
	TerminalID     string `json:"terminal_id"`
	DisplayName    string `json:"display_name"`
	Role           string `json:"role"`
	PublisherID    string `json:"publisher_id,omitempty"`
	EventID        string `json:"event_id,omitempty"`
	IssuedAt       int64  `json:"issued_at"`
	ExpiresAt      int64  `json:"expires_at"`
}

type POSLoginRequest struct {
	EmployeeNumber string `json:"employee_number"`
	PIN            string `json:"pin"`
	TerminalID     string `json:"terminal_id"`
}

type POSLoginResponse struct {
	Session                 EmployeeSession `json:"session"`
	OfflineVerificationHash string          `json:"offline_verification_hash"`
}

type StockItem struct {
	ProductID     string    `json:"product_id"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	UnitPrice     int64     `json:"unit_price"`
	StockQuantity int       `json:"stock_quantity"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StockHistoryEntry records one stock mutation. QuantityAfter minus
// QuantityBefore always equals QuantityChange.
type StockHistoryEntry struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	Timestamp      int64  `json:"timestamp"`
	QuantityBefore int    `json:"quantity_before"`
	QuantityAfter  int    `json:"quantity_after"`
	QuantityChange int    `json:"quantity_change"`
	Reason         string `json:"reason"`
	OperatorID     string `json:"operator_id"`
}

type StockAdjustRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ReservedItem is a priced snapshot of a cart line taken at reservation
// time. Deduction works from this snapshot, not from a re-read.
type ReservedItem struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	Subtotal     int64  `json:"subtotal"`
	CurrentStock int    `json:"current_stock"`
}

type DiscountType string

const (
	DiscountTypeFixed      DiscountType = "fixed"
	DiscountTypePercentage DiscountType = "percentage"
)

type CouponFilter struct {
	ProductIDs []string `json:"product_ids,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

type Coupon struct {
	CouponID          string        `json:"coupon_id"`
	Code              string        `json:"code"`
	Name              string        `json:"name"`
	DiscountType      DiscountType  `json:"discount_type"`
	DiscountValue     int64         `json:"discount_value"`
	UsageLimit        *int          `json:"usage_limit,omitempty"`
	UsageCount        int           `json:"usage_count"`
	MinPurchaseAmount *int64        `json:"min_purchase_amount,omitempty"`
	MaxDiscountAmount *int64        `json:"max_discount_amount,omitempty"`
	ValidFrom         *time.Time    `json:"valid_from,omitempty"`
	ValidUntil        *time.Time    `json:"valid_until,omitempty"`
	PublisherID       string        `json:"publisher_id,omitempty"`
	EventID           string        `json:"event_id,omitempty"`
	Active            bool          `json:"active"`
	Filter            *CouponFilter `json:"filter,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

type CouponCreateRequest struct {
	Code              string        `json:"code"`
	Name              string        `json:"name"`
	DiscountType      DiscountType  `json:"discount_type"`
	DiscountValue     int64         `json:"discount_value"`
	UsageLimit        *int          `json:"usage_limit,omitempty"`
	MinPurchaseAmount *int64        `json:"min_purchase_amount,omitempty"`
	MaxDiscountAmount *int64        `json:"max_discount_amount,omitempty"`
	ValidFrom         *time.Time    `json:"valid_from,omitempty"`
	ValidUntil        *time.Time    `json:"valid_until,omitempty"`
	PublisherID       string        `json:"publisher_id"`
	EventID           string        `json:"event_id"`
	Filter            *CouponFilter `json:"filter,omitempty"`
}

type CouponApplication struct {
	Coupon         Coupon `json:"coupon"`
	DiscountAmount int64  `json:"discount_amount"`
}

type CouponPreviewRequest struct {
	Code  string     `json:"code"`
	Items []CartItem `json:"items"`
}

type SaleLine struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

type Sale struct {
	SaleID         string     `json:"sale_id"`
	Timestamp      int64      `json:"timestamp"`
	Items          []SaleLine `json:"items"`
	Subtotal       int64      `json:"subtotal"`
	DiscountAmount int64      `json:"discount_amount"`
	TotalAmount    int64      `json:"total_amount"`
	PaymentMethod  string     `json:"payment_method"`
	Status         string     `json:"status"`
	EmployeeNumber string     `json:"employee_number"`
	TerminalID     string     `json:"terminal_id"`
	EventID        string     `json:"event_id,omitempty"`
	CouponID       string     `json:"coupon_id,omitempty"`
	CouponCode     string     `json:"coupon_code,omitempty"`
	Source         string     `json:"source"`
	CancelReason   string     `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type SaleRequest struct {
	Items         []CartItem `json:"items"`
	PaymentMethod string     `json:"payment_method"`
	CouponCode    string     `json:"coupon_code,omitempty"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type SaleCancelRequest struct {
	Reason string `json:"reason"`
}

type OfflineSaleRecord struct {
	LocalSaleID    string     `json:"local_sale_id"`
	TerminalID     string     `json:"terminal_id"`
	EmployeeNumber string     `json:"employee_number"`
	SessionID      string     `json:"session_id"`
	Items          []CartItem `json:"items"`
	PaymentMethod  string     `json:"payment_method"`
	CouponCode     string     `json:"coupon_code,omitempty"`
	EventID        string     `json:"event_id,omitempty"`
	RecordedAt     int64      `json:"recorded_at"`
	SyncStatus     string     `json:"sync_status"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	SaleID         string     `json:"sale_id,omitempty"`
	SyncedAt       *time.Time `json:"synced_at,omitempty"`
}

type OfflineSyncRequest struct {
	Sales []OfflineSaleRecord `json:"sales"`
}

type OfflineSyncStatus struct {
	LocalSaleID string `json:"local_sale_id"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	SaleID      string `json:"sale_id,omitempty"`
}

type OfflineSyncResponse struct {
	Statuses      []OfflineSyncStatus `json:"statuses"`
	SyncedCount   int                 `json:"synced_count"`
	SyncTimestamp int64               `json:"sync_timestamp"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for admin credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	TerminalStatusActive  = "active"
	TerminalStatusRevoked = "revoked"
)

const (
	RoleLeader = "leader"
	RoleStaff  = "staff"
)

const (
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
)

const (
	SaleSourceOnline  = "pos"
	SaleSourceOffline = "pos_offline"
)

const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusFailed  = "failed"
)
