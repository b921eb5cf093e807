package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/store"
)

type Store struct {
	mu                 sync.RWMutex
	terminalsByID      map[string]domain.Terminal
	employeesByNumber  map[string]domain.Employee
	sessionsByID       map[string]domain.EmployeeSession
	stockByProductID   map[string]domain.StockItem
	stockHistory       map[string][]domain.StockHistoryEntry
	couponsByID        map[string]domain.Coupon
	couponIDByCode     map[string]string
	salesByID          map[string]domain.Sale
	offlineByLocalID   map[string]domain.OfflineSaleRecord
	usersByUsername    map[string]domain.UserAccount
	stockHistoryLength int
}

// seedUsers builds the initial in-memory admin accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD; if unset a hardcoded dev
// default is used with a warning. Production deployments run on PostgreSQL.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev admin credentials. Set SEED_ADMIN_PASSWORD to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}
	return map[string]domain.UserAccount{
		"admin": {
			Username:  "admin",
			Password:  string(hash),
			Role:      "admin",
			Active:    true,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	items := []domain.StockItem{
		{ProductID: "PRD-TSHIRT-01", Name: "Event T-Shirt (M)", Category: "apparel", UnitPrice: 3200, StockQuantity: 80},
		{ProductID: "PRD-TSHIRT-02", Name: "Event T-Shirt (L)", Category: "apparel", UnitPrice: 3200, StockQuantity: 80},
		{ProductID: "PRD-TOTE-01", Name: "Canvas Tote Bag", Category: "goods", UnitPrice: 1800, StockQuantity: 120},
		{ProductID: "PRD-STICKER-01", Name: "Sticker Pack", Category: "goods", UnitPrice: 500, StockQuantity: 300},
		{ProductID: "PRD-POSTER-01", Name: "B2 Poster", Category: "print", UnitPrice: 1500, StockQuantity: 60},
		{ProductID: "PRD-KEYCHAIN-01", Name: "Acrylic Keychain", Category: "goods", UnitPrice: 900, StockQuantity: 200},
		{ProductID: "PRD-CD-01", Name: "Live Album CD", Category: "media", UnitPrice: 2500, StockQuantity: 90},
		{ProductID: "PRD-PAMPHLET-01", Name: "Event Pamphlet", Category: "print", UnitPrice: 1200, StockQuantity: 150},
	}

	usageLimit := 50
	minPurchase := int64(2000)
	maxDiscount := int64(1000)
	coupons := []domain.Coupon{
		{
			CouponID:          "cpn-seed-welcome",
			Code:              "WELCOME10",
			Name:              "Opening 10% Off",
			DiscountType:      domain.DiscountTypePercentage,
			DiscountValue:     10,
			MaxDiscountAmount: &maxDiscount,
			Active:            true,
			CreatedAt:         now,
		},
		{
			CouponID:          "cpn-seed-flat",
			Code:              "FLAT500",
			Name:              "500 Off Over 2000",
			DiscountType:      domain.DiscountTypeFixed,
			DiscountValue:     500,
			UsageLimit:        &usageLimit,
			MinPurchaseAmount: &minPurchase,
			Active:            true,
			CreatedAt:         now,
		},
	}

	stockMap := make(map[string]domain.StockItem, len(items))
	for _, item := range items {
		item.UpdatedAt = now
		stockMap[item.ProductID] = item
	}
	couponMap := make(map[string]domain.Coupon, len(coupons))
	codeIndex := make(map[string]string, len(coupons))
	for _, c := range coupons {
		couponMap[c.CouponID] = c
		codeIndex[c.Code] = c.CouponID
	}

	return &Store{
		terminalsByID:      make(map[string]domain.Terminal),
		employeesByNumber:  make(map[string]domain.Employee),
		sessionsByID:       make(map[string]domain.EmployeeSession),
		stockByProductID:   stockMap,
		stockHistory:       make(map[string][]domain.StockHistoryEntry),
		couponsByID:        couponMap,
		couponIDByCode:     codeIndex,
		salesByID:          make(map[string]domain.Sale),
		offlineByLocalID:   make(map[string]domain.OfflineSaleRecord),
		usersByUsername:    seedUsers(),
		stockHistoryLength: 500,
	}
}

func (s *Store) CreateTerminal(_ context.Context, terminal domain.Terminal) (*domain.Terminal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.terminalsByID[terminal.TerminalID]; exists {
		return nil, store.ErrDuplicateTerminal
	}
	s.terminalsByID[terminal.TerminalID] = terminal
	created := terminal
	return &created, nil
}

func (s *Store) GetTerminal(_ context.Context, terminalID string) (*domain.Terminal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terminal, exists := s.terminalsByID[terminalID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyTerminal := terminal
	return &copyTerminal, nil
}

func (s *Store) ListTerminals(_ context.Context, status string) ([]domain.Terminal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terminals := make([]domain.Terminal, 0, len(s.terminalsByID))
	for _, t := range s.terminalsByID {
		if status != "" && t.Status != status {
			continue
		}
		terminals = append(terminals, t)
	}
	slices.SortFunc(terminals, func(a, b domain.Terminal) int {
		return strings.Compare(a.TerminalID, b.TerminalID)
	})
	return terminals, nil
}

func (s *Store) RevokeTerminal(_ context.Context, terminalID string, at time.Time) (*domain.Terminal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	terminal, exists := s.terminalsByID[terminalID]
	if !exists {
		return nil, store.ErrNotFound
	}
	terminal.Status = domain.TerminalStatusRevoked
	terminal.RevokedAt = &at
	s.terminalsByID[terminalID] = terminal
	copyTerminal := terminal
	return &copyTerminal, nil
}

func (s *Store) DeleteTerminal(_ context.Context, terminalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.terminalsByID[terminalID]; !exists {
		return store.ErrNotFound
	}
	delete(s.terminalsByID, terminalID)
	return nil
}

func (s *Store) TouchTerminal(_ context.Context, terminalID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	terminal, exists := s.terminalsByID[terminalID]
	if !exists {
		return store.ErrNotFound
	}
	terminal.LastSeenAt = &at
	s.terminalsByID[terminalID] = terminal
	return nil
}

func (s *Store) CreateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.employeesByNumber[employee.EmployeeNumber]; exists {
		return nil, store.ErrDuplicateEmployee
	}
	s.employeesByNumber[employee.EmployeeNumber] = employee
	created := employee
	return &created, nil
}

func (s *Store) GetEmployee(_ context.Context, employeeNumber string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employee, exists := s.employeesByNumber[employeeNumber]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyEmployee := employee
	return &copyEmployee, nil
}

func (s *Store) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employees := make([]domain.Employee, 0, len(s.employeesByNumber))
	for _, e := range s.employeesByNumber {
		employees = append(employees, e)
	}
	slices.SortFunc(employees, func(a, b domain.Employee) int {
		return strings.Compare(a.EmployeeNumber, b.EmployeeNumber)
	})
	return employees, nil
}

func (s *Store) CreateSession(_ context.Context, session domain.EmployeeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionsByID[session.SessionID] = session
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*domain.EmployeeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySession := session
	return &copySession, nil
}

func (s *Store) UpdateSessionExpiry(_ context.Context, sessionID string, expiresAt int64) (*domain.EmployeeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	session.ExpiresAt = expiresAt
	s.sessionsByID[sessionID] = session
	copySession := session
	return &copySession, nil
}

func (s *Store) UpdateSessionEvent(_ context.Context, sessionID string, eventID string) (*domain.EmployeeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	session.EventID = eventID
	s.sessionsByID[sessionID] = session
	copySession := session
	return &copySession, nil
}

func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessionsByID, sessionID)
	return nil
}

func (s *Store) DeleteTerminalSessions(_ context.Context, terminalID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []string
	for id, session := range s.sessionsByID {
		if session.TerminalID == terminalID {
			delete(s.sessionsByID, id)
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}

func (s *Store) GetStockItem(_ context.Context, productID string) (*domain.StockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.stockByProductID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyItem := item
	return &copyItem, nil
}

func (s *Store) GetStockItems(_ context.Context, productIDs []string) (map[string]domain.StockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.StockItem, len(productIDs))
	for _, id := range productIDs {
		if item, exists := s.stockByProductID[id]; exists {
			result[id] = item
		}
	}
	return result, nil
}

func (s *Store) ListStockItems(_ context.Context) ([]domain.StockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.StockItem, 0, len(s.stockByProductID))
	for _, item := range s.stockByProductID {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.StockItem) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return items, nil
}

func (s *Store) SetStockQuantity(_ context.Context, productID string, quantity int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.stockByProductID[productID]
	if !exists {
		return store.ErrNotFound
	}
	item.StockQuantity = quantity
	item.UpdatedAt = at
	s.stockByProductID[productID] = item
	return nil
}

func (s *Store) AppendStockHistory(_ context.Context, entry domain.StockHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.stockHistory[entry.ProductID], entry)
	if len(history) > s.stockHistoryLength {
		history = history[len(history)-s.stockHistoryLength:]
	}
	s.stockHistory[entry.ProductID] = history
	return nil
}

func (s *Store) ListStockHistory(_ context.Context, productID string, limit int) ([]domain.StockHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.stockHistory[productID]
	entries := make([]domain.StockHistoryEntry, 0, min(limit, len(history)))
	for i := len(history) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, history[i])
	}
	return entries, nil
}

func (s *Store) CreateCoupon(_ context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.couponIDByCode[coupon.Code]; exists {
		return nil, store.ErrDuplicateCoupon
	}
	s.couponsByID[coupon.CouponID] = coupon
	s.couponIDByCode[coupon.Code] = coupon.CouponID
	created := copyCoupon(coupon)
	return &created, nil
}

func (s *Store) GetCouponByCode(_ context.Context, code string) (*domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	couponID, exists := s.couponIDByCode[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	coupon := copyCoupon(s.couponsByID[couponID])
	return &coupon, nil
}

func (s *Store) ListCoupons(_ context.Context) ([]domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coupons := make([]domain.Coupon, 0, len(s.couponsByID))
	for _, c := range s.couponsByID {
		coupons = append(coupons, copyCoupon(c))
	}
	slices.SortFunc(coupons, func(a, b domain.Coupon) int {
		return strings.Compare(a.Code, b.Code)
	})
	return coupons, nil
}

func (s *Store) IncrementCouponUsage(_ context.Context, couponID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coupon, exists := s.couponsByID[couponID]
	if !exists {
		return store.ErrNotFound
	}
	coupon.UsageCount++
	s.couponsByID[couponID] = coupon
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale.Items = slices.Clone(sale.Items)
	s.salesByID[sale.SaleID] = sale
	created := copySale(sale)
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := copySale(sale)
	return &copied, nil
}

func (s *Store) UpdateSaleStatus(_ context.Context, saleID string, status string, reason string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale.Status = status
	sale.CancelReason = reason
	s.salesByID[saleID] = sale
	copied := copySale(sale)
	return &copied, nil
}

func (s *Store) CreateOfflineSale(_ context.Context, record domain.OfflineSaleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.offlineByLocalID[record.LocalSaleID]; exists {
		return store.ErrDuplicateRecord
	}
	record.Items = slices.Clone(record.Items)
	s.offlineByLocalID[record.LocalSaleID] = record
	return nil
}

func (s *Store) GetOfflineSale(_ context.Context, localSaleID string) (*domain.OfflineSaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.offlineByLocalID[localSaleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := copyOfflineSale(record)
	return &copied, nil
}

func (s *Store) MarkOfflineSaleSynced(_ context.Context, localSaleID string, saleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.offlineByLocalID[localSaleID]
	if !exists {
		return store.ErrNotFound
	}
	record.SyncStatus = domain.SyncStatusSynced
	record.SaleID = saleID
	record.SyncedAt = &at
	record.FailureReason = ""
	s.offlineByLocalID[localSaleID] = record
	return nil
}

func (s *Store) MarkOfflineSaleFailed(_ context.Context, localSaleID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.offlineByLocalID[localSaleID]
	if !exists {
		return store.ErrNotFound
	}
	record.SyncStatus = domain.SyncStatusFailed
	record.FailureReason = reason
	s.offlineByLocalID[localSaleID] = record
	return nil
}

func (s *Store) ListPendingOfflineSales(_ context.Context, terminalID string) ([]domain.OfflineSaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.OfflineSaleRecord, 0)
	for _, record := range s.offlineByLocalID {
		if record.TerminalID != terminalID || record.SyncStatus != domain.SyncStatusPending {
			continue
		}
		records = append(records, copyOfflineSale(record))
	}
	slices.SortFunc(records, func(a, b domain.OfflineSaleRecord) int {
		return strings.Compare(a.LocalSaleID, b.LocalSaleID)
	})
	return records, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func copyCoupon(c domain.Coupon) domain.Coupon {
	copied := c
	if c.UsageLimit != nil {
		v := *c.UsageLimit
		copied.UsageLimit = &v
	}
	if c.MinPurchaseAmount != nil {
		v := *c.MinPurchaseAmount
		copied.MinPurchaseAmount = &v
	}
	if c.MaxDiscountAmount != nil {
		v := *c.MaxDiscountAmount
		copied.MaxDiscountAmount = &v
	}
	if c.ValidFrom != nil {
		v := *c.ValidFrom
		copied.ValidFrom = &v
	}
	if c.ValidUntil != nil {
		v := *c.ValidUntil
		copied.ValidUntil = &v
	}
	if c.Filter != nil {
		copied.Filter = &domain.CouponFilter{
			ProductIDs: slices.Clone(c.Filter.ProductIDs),
			Categories: slices.Clone(c.Filter.Categories),
		}
	}
	return copied
}

func copySale(sale domain.Sale) domain.Sale {
	copied := sale
	copied.Items = slices.Clone(sale.Items)
	return copied
}

func copyOfflineSale(record domain.OfflineSaleRecord) domain.OfflineSaleRecord {
	copied := record
	copied.Items = slices.Clone(record.Items)
	if record.SyncedAt != nil {
		v := *record.SyncedAt
		copied.SyncedAt = &v
	}
	return copied
}
