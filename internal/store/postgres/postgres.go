package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateTerminal(ctx context.Context, terminal domain.Terminal) (*domain.Terminal, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO terminals (terminal_id, public_key, device_name, os_type, status, registered_by, registered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, terminal.TerminalID, terminal.PublicKey, terminal.DeviceName, terminal.OSType, terminal.Status, terminal.RegisteredBy, terminal.RegisteredAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateTerminal
		}
		return nil, err
	}

	created := terminal
	return &created, nil
}

func (s *Store) GetTerminal(ctx context.Context, terminalID string) (*domain.Terminal, error) {
	var terminal domain.Terminal
	var revokedAt, lastSeenAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT terminal_id, public_key, device_name, os_type, status, registered_by, registered_at, revoked_at, last_seen_at
		FROM terminals
		WHERE terminal_id = $1
	`, terminalID).Scan(&terminal.TerminalID, &terminal.PublicKey, &terminal.DeviceName, &terminal.OSType,
		&terminal.Status, &terminal.RegisteredBy, &terminal.RegisteredAt, &revokedAt, &lastSeenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	terminal.RegisteredAt = terminal.RegisteredAt.UTC()
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		terminal.RevokedAt = &t
	}
	if lastSeenAt.Valid {
		t := lastSeenAt.Time.UTC()
		terminal.LastSeenAt = &t
	}
	return &terminal, nil
}

func (s *Store) ListTerminals(ctx context.Context, status string) ([]domain.Terminal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT terminal_id, public_key, device_name, os_type, status, registered_by, registered_at, revoked_at, last_seen_at
		FROM terminals
		WHERE ($1 = '' OR status = $1)
		ORDER BY terminal_id
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	terminals := make([]domain.Terminal, 0, 32)
	for rows.Next() {
		var terminal domain.Terminal
		var revokedAt, lastSeenAt sql.NullTime
		if err := rows.Scan(&terminal.TerminalID, &terminal.PublicKey, &terminal.DeviceName, &terminal.OSType,
			&terminal.Status, &terminal.RegisteredBy, &terminal.RegisteredAt, &revokedAt, &lastSeenAt); err != nil {
			return nil, err
		}
		terminal.RegisteredAt = terminal.RegisteredAt.UTC()
		if revokedAt.Valid {
			t := revokedAt.Time.UTC()
			terminal.RevokedAt = &t
		}
		if lastSeenAt.Valid {
			t := lastSeenAt.Time.UTC()
			terminal.LastSeenAt = &t
		}
		terminals = append(terminals, terminal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return terminals, nil
}

func (s *Store) RevokeTerminal(ctx context.Context, terminalID string, at time.Time) (*domain.Terminal, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE terminals
		SET status = $2, revoked_at = $3
		WHERE terminal_id = $1
	`, terminalID, domain.TerminalStatusRevoked, at)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetTerminal(ctx, terminalID)
}

func (s *Store) DeleteTerminal(ctx context.Context, terminalID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM terminals WHERE terminal_id = $1`, terminalID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) TouchTerminal(ctx context.Context, terminalID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE terminals SET last_seen_at = $2 WHERE terminal_id = $1
	`, terminalID, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (employee_number, display_name, pin_hash, role, publisher_id, event_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, employee.EmployeeNumber, employee.DisplayName, employee.PINHash, employee.Role,
		employee.PublisherID, employee.EventID, employee.Active, employee.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateEmployee
		}
		return nil, err
	}

	created := employee
	return &created, nil
}

func (s *Store) GetEmployee(ctx context.Context, employeeNumber string) (*domain.Employee, error) {
	var employee domain.Employee
	err := s.db.QueryRowContext(ctx, `
		SELECT employee_number, display_name, pin_hash, role, publisher_id, event_id, active, created_at
		FROM employees
		WHERE employee_number = $1
	`, employeeNumber).Scan(&employee.EmployeeNumber, &employee.DisplayName, &employee.PINHash, &employee.Role,
		&employee.PublisherID, &employee.EventID, &employee.Active, &employee.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	employee.CreatedAt = employee.CreatedAt.UTC()
	return &employee, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_number, display_name, pin_hash, role, publisher_id, event_id, active, created_at
		FROM employees
		ORDER BY employee_number
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]domain.Employee, 0, 32)
	for rows.Next() {
		var employee domain.Employee
		if err := rows.Scan(&employee.EmployeeNumber, &employee.DisplayName, &employee.PINHash, &employee.Role,
			&employee.PublisherID, &employee.EventID, &employee.Active, &employee.CreatedAt); err != nil {
			return nil, err
		}
		employee.CreatedAt = employee.CreatedAt.UTC()
		employees = append(employees, employee)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return employees, nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.EmployeeSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pos_sessions (session_id, employee_number, terminal_id, display_name, role, publisher_id, event_id, issued_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, session.SessionID, session.EmployeeNumber, session.TerminalID, session.DisplayName, session.Role,
		session.PublisherID, session.EventID, session.IssuedAt, session.ExpiresAt)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.EmployeeSession, error) {
	var session domain.EmployeeSession
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, employee_number, terminal_id, display_name, role, publisher_id, event_id, issued_at, expires_at
		FROM pos_sessions
		WHERE session_id = $1
	`, sessionID).Scan(&session.SessionID, &session.EmployeeNumber, &session.TerminalID, &session.DisplayName,
		&session.Role, &session.PublisherID, &session.EventID, &session.IssuedAt, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) UpdateSessionExpiry(ctx context.Context, sessionID string, expiresAt int64) (*domain.EmployeeSession, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pos_sessions SET expires_at = $2 WHERE session_id = $1
	`, sessionID, expiresAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSession(ctx, sessionID)
}

func (s *Store) UpdateSessionEvent(ctx context.Context, sessionID string, eventID string) (*domain.EmployeeSession, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pos_sessions SET event_id = $2 WHERE session_id = $1
	`, sessionID, eventID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSession(ctx, sessionID)
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pos_sessions WHERE session_id = $1`, sessionID)
	return err
}

func (s *Store) DeleteTerminalSessions(ctx context.Context, terminalID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `DELETE FROM pos_sessions WHERE terminal_id = $1 RETURNING session_id`, terminalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deleted []string
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, err
		}
		deleted = append(deleted, sessionID)
	}
	return deleted, rows.Err()
}

func (s *Store) GetStockItem(ctx context.Context, productID string) (*domain.StockItem, error) {
	var item domain.StockItem
	err := s.db.QueryRowContext(ctx, `
		SELECT product_id, name, category, unit_price, stock_quantity, updated_at
		FROM stock_items
		WHERE product_id = $1
	`, productID).Scan(&item.ProductID, &item.Name, &item.Category, &item.UnitPrice, &item.StockQuantity, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func (s *Store) GetStockItems(ctx context.Context, productIDs []string) (map[string]domain.StockItem, error) {
	result := make(map[string]domain.StockItem, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, category, unit_price, stock_quantity, updated_at
		FROM stock_items
		WHERE product_id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.StockItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Category, &item.UnitPrice, &item.StockQuantity, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.UpdatedAt = item.UpdatedAt.UTC()
		result[item.ProductID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListStockItems(ctx context.Context) ([]domain.StockItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, category, unit_price, stock_quantity, updated_at
		FROM stock_items
		ORDER BY product_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.StockItem, 0, 64)
	for rows.Next() {
		var item domain.StockItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Category, &item.UnitPrice, &item.StockQuantity, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.UpdatedAt = item.UpdatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetStockQuantity(ctx context.Context, productID string, quantity int, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_items SET stock_quantity = $2, updated_at = $3 WHERE product_id = $1
	`, productID, quantity, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AppendStockHistory(ctx context.Context, entry domain.StockHistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_history (id, product_id, ts, quantity_before, quantity_after, quantity_change, reason, operator_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ProductID, entry.Timestamp, entry.QuantityBefore, entry.QuantityAfter,
		entry.QuantityChange, entry.Reason, entry.OperatorID)
	return err
}

func (s *Store) ListStockHistory(ctx context.Context, productID string, limit int) ([]domain.StockHistoryEntry, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, ts, quantity_before, quantity_after, quantity_change, reason, operator_id
		FROM stock_history
		WHERE product_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockHistoryEntry, 0, limit)
	for rows.Next() {
		var entry domain.StockHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.Timestamp, &entry.QuantityBefore,
			&entry.QuantityAfter, &entry.QuantityChange, &entry.Reason, &entry.OperatorID); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	filterJSON, err := marshalFilter(coupon.Filter)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coupons (coupon_id, code, name, discount_type, discount_value, usage_limit, usage_count,
			min_purchase_amount, max_discount_amount, valid_from, valid_until, publisher_id, event_id, active, filter, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, coupon.CouponID, coupon.Code, coupon.Name, string(coupon.DiscountType), coupon.DiscountValue,
		nullInt(coupon.UsageLimit), coupon.UsageCount, nullInt64(coupon.MinPurchaseAmount), nullInt64(coupon.MaxDiscountAmount),
		nullTime(coupon.ValidFrom), nullTime(coupon.ValidUntil), coupon.PublisherID, coupon.EventID,
		coupon.Active, filterJSON, coupon.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateCoupon
		}
		return nil, err
	}

	created := coupon
	return &created, nil
}

func (s *Store) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT coupon_id, code, name, discount_type, discount_value, usage_limit, usage_count,
			min_purchase_amount, max_discount_amount, valid_from, valid_until, publisher_id, event_id, active, filter, created_at
		FROM coupons
		WHERE code = $1
	`, code)

	coupon, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return coupon, nil
}

func (s *Store) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT coupon_id, code, name, discount_type, discount_value, usage_limit, usage_count,
			min_purchase_amount, max_discount_amount, valid_from, valid_until, publisher_id, event_id, active, filter, created_at
		FROM coupons
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coupons := make([]domain.Coupon, 0, 32)
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, *coupon)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return coupons, nil
}

func (s *Store) IncrementCouponUsage(ctx context.Context, couponID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE coupons SET usage_count = usage_count + 1 WHERE coupon_id = $1
	`, couponID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	itemsJSON, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (sale_id, ts, items, subtotal, discount_amount, total_amount, payment_method, status,
			employee_number, terminal_id, event_id, coupon_id, coupon_code, source, cancel_reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, sale.SaleID, sale.Timestamp, itemsJSON, sale.Subtotal, sale.DiscountAmount, sale.TotalAmount,
		sale.PaymentMethod, sale.Status, sale.EmployeeNumber, sale.TerminalID, sale.EventID,
		sale.CouponID, sale.CouponCode, sale.Source, sale.CancelReason, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	var itemsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT sale_id, ts, items, subtotal, discount_amount, total_amount, payment_method, status,
			employee_number, terminal_id, event_id, coupon_id, coupon_code, source, cancel_reason, created_at
		FROM sales
		WHERE sale_id = $1
	`, saleID).Scan(&sale.SaleID, &sale.Timestamp, &itemsJSON, &sale.Subtotal, &sale.DiscountAmount,
		&sale.TotalAmount, &sale.PaymentMethod, &sale.Status, &sale.EmployeeNumber, &sale.TerminalID,
		&sale.EventID, &sale.CouponID, &sale.CouponCode, &sale.Source, &sale.CancelReason, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &sale.Items); err != nil {
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func (s *Store) UpdateSaleStatus(ctx context.Context, saleID string, status string, reason string) (*domain.Sale, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales SET status = $2, cancel_reason = $3 WHERE sale_id = $1
	`, saleID, status, reason)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSale(ctx, saleID)
}

func (s *Store) CreateOfflineSale(ctx context.Context, record domain.OfflineSaleRecord) error {
	itemsJSON, err := json.Marshal(record.Items)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO offline_sales (local_sale_id, terminal_id, employee_number, session_id, items,
			payment_method, coupon_code, event_id, recorded_at, sync_status, failure_reason, sale_id, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, record.LocalSaleID, record.TerminalID, record.EmployeeNumber, record.SessionID, itemsJSON,
		record.PaymentMethod, record.CouponCode, record.EventID, record.RecordedAt, record.SyncStatus,
		record.FailureReason, record.SaleID, nullTime(record.SyncedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateRecord
		}
		return err
	}
	return nil
}

func (s *Store) GetOfflineSale(ctx context.Context, localSaleID string) (*domain.OfflineSaleRecord, error) {
	var record domain.OfflineSaleRecord
	var itemsJSON []byte
	var syncedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT local_sale_id, terminal_id, employee_number, session_id, items, payment_method,
			coupon_code, event_id, recorded_at, sync_status, failure_reason, sale_id, synced_at
		FROM offline_sales
		WHERE local_sale_id = $1
	`, localSaleID).Scan(&record.LocalSaleID, &record.TerminalID, &record.EmployeeNumber, &record.SessionID,
		&itemsJSON, &record.PaymentMethod, &record.CouponCode, &record.EventID, &record.RecordedAt,
		&record.SyncStatus, &record.FailureReason, &record.SaleID, &syncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &record.Items); err != nil {
		return nil, err
	}
	if syncedAt.Valid {
		t := syncedAt.Time.UTC()
		record.SyncedAt = &t
	}
	return &record, nil
}

func (s *Store) MarkOfflineSaleSynced(ctx context.Context, localSaleID string, saleID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE offline_sales
		SET sync_status = $2, sale_id = $3, synced_at = $4, failure_reason = ''
		WHERE local_sale_id = $1
	`, localSaleID, domain.SyncStatusSynced, saleID, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkOfflineSaleFailed(ctx context.Context, localSaleID string, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE offline_sales
		SET sync_status = $2, failure_reason = $3
		WHERE local_sale_id = $1
	`, localSaleID, domain.SyncStatusFailed, reason)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListPendingOfflineSales(ctx context.Context, terminalID string) ([]domain.OfflineSaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_sale_id, terminal_id, employee_number, session_id, items, payment_method,
			coupon_code, event_id, recorded_at, sync_status, failure_reason, sale_id, synced_at
		FROM offline_sales
		WHERE terminal_id = $1 AND sync_status = $2
		ORDER BY local_sale_id
	`, terminalID, domain.SyncStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.OfflineSaleRecord, 0, 16)
	for rows.Next() {
		var record domain.OfflineSaleRecord
		var itemsJSON []byte
		var syncedAt sql.NullTime
		if err := rows.Scan(&record.LocalSaleID, &record.TerminalID, &record.EmployeeNumber, &record.SessionID,
			&itemsJSON, &record.PaymentMethod, &record.CouponCode, &record.EventID, &record.RecordedAt,
			&record.SyncStatus, &record.FailureReason, &record.SaleID, &syncedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(itemsJSON, &record.Items); err != nil {
			return nil, err
		}
		if syncedAt.Valid {
			t := syncedAt.Time.UTC()
			record.SyncedAt = &t
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row rowScanner) (*domain.Coupon, error) {
	var coupon domain.Coupon
	var discountType string
	var usageLimit sql.NullInt64
	var minPurchase, maxDiscount sql.NullInt64
	var validFrom, validUntil sql.NullTime
	var filterJSON []byte

	if err := row.Scan(&coupon.CouponID, &coupon.Code, &coupon.Name, &discountType, &coupon.DiscountValue,
		&usageLimit, &coupon.UsageCount, &minPurchase, &maxDiscount, &validFrom, &validUntil,
		&coupon.PublisherID, &coupon.EventID, &coupon.Active, &filterJSON, &coupon.CreatedAt); err != nil {
		return nil, err
	}

	coupon.DiscountType = domain.DiscountType(discountType)
	if usageLimit.Valid {
		v := int(usageLimit.Int64)
		coupon.UsageLimit = &v
	}
	if minPurchase.Valid {
		v := minPurchase.Int64
		coupon.MinPurchaseAmount = &v
	}
	if maxDiscount.Valid {
		v := maxDiscount.Int64
		coupon.MaxDiscountAmount = &v
	}
	if validFrom.Valid {
		t := validFrom.Time.UTC()
		coupon.ValidFrom = &t
	}
	if validUntil.Valid {
		t := validUntil.Time.UTC()
		coupon.ValidUntil = &t
	}
	if len(filterJSON) > 0 {
		var filter domain.CouponFilter
		if err := json.Unmarshal(filterJSON, &filter); err != nil {
			return nil, err
		}
		if len(filter.ProductIDs) > 0 || len(filter.Categories) > 0 {
			coupon.Filter = &filter
		}
	}
	coupon.CreatedAt = coupon.CreatedAt.UTC()
	return &coupon, nil
}

func marshalFilter(filter *domain.CouponFilter) ([]byte, error) {
	if filter == nil {
		return nil, nil
	}
	return json.Marshal(filter)
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
