package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"tillguard/backend/internal/coupon"
	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/service"
	"tillguard/backend/internal/session"
	"tillguard/backend/internal/stock"
	"tillguard/backend/internal/store"
	"tillguard/backend/internal/terminal"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	registry      *terminal.Registry
	verifier      *terminal.Verifier
	sessions      *session.Manager
	stock         *stock.Ledger
	coupons       *coupon.Engine
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, registry *terminal.Registry, verifier *terminal.Verifier, sessions *session.Manager, ledger *stock.Ledger, coupons *coupon.Engine, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		registry:      registry,
		verifier:      verifier,
		sessions:      sessions,
		stock:         ledger,
		coupons:       coupons,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleAdminLogin)

	mux.HandleFunc("/api/v1/terminals", a.requireAuth(a.handleTerminals, "admin"))
	mux.HandleFunc("/api/v1/terminals/", a.requireAuth(a.handleTerminalActions, "admin"))
	mux.HandleFunc("/api/v1/employees", a.requireAuth(a.handleEmployees, "admin"))
	mux.HandleFunc("/api/v1/coupons", a.requireAuth(a.handleCoupons, "admin"))
	mux.HandleFunc("/api/v1/stock", a.requireAuth(a.handleStock, "admin"))
	mux.HandleFunc("/api/v1/stock/", a.requireAuth(a.handleStockActions, "admin"))

	mux.HandleFunc("/api/v1/pos/auth/login", a.handlePOSLogin)
	mux.HandleFunc("/api/v1/pos/auth/verify", a.requirePOSSession(a.handlePOSVerify))
	mux.HandleFunc("/api/v1/pos/auth/refresh", a.requirePOSSession(a.handlePOSRefresh))
	mux.HandleFunc("/api/v1/pos/auth/logout", a.requirePOSSession(a.handlePOSLogout))
	mux.HandleFunc("/api/v1/pos/auth/set-event", a.requirePOSSession(a.handlePOSSetEvent))
	mux.HandleFunc("/api/v1/pos/sales", a.requirePOSSession(a.handlePOSSales))
	mux.HandleFunc("/api/v1/pos/sales/", a.requirePOSSession(a.handlePOSSaleActions))
	mux.HandleFunc("/api/v1/pos/coupons/preview", a.requirePOSSession(a.handleCouponPreview))

	mux.HandleFunc("/api/v1/pos/terminals/auth", a.requireTerminal(a.handleTerminalAuth))
	mux.HandleFunc("/api/v1/pos/sync/sales", a.requireTerminal(a.handleSyncSales))
	mux.HandleFunc("/api/v1/pos/sync/pending", a.requireTerminal(a.handleSyncPending))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(withActor(r.Context(), actor)))
	}
}

// requirePOSSession resolves the X-POS-Session header to a live employee
// session. The two failure messages are part of the terminal protocol and
// must not change.
func (a *API) requirePOSSession(next func(http.ResponseWriter, *http.Request, *domain.EmployeeSession)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(r.Header.Get("X-POS-Session"))
		if sessionID == "" {
			writeError(w, http.StatusUnauthorized, errors.New("Missing POS session header"))
			return
		}

		sess, err := a.sessions.Verify(r.Context(), sessionID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, errors.New("Invalid or expired session"))
			return
		}
		next(w, r, sess)
	}
}

// requireTerminal authenticates the signed handshake headers. The signature
// covers "{terminal_id}:{timestamp}" with the timestamp in unix seconds.
func (a *API) requireTerminal(next func(http.ResponseWriter, *http.Request, *domain.Terminal)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		terminalID := strings.TrimSpace(r.Header.Get("X-Terminal-ID"))
		timestampRaw := strings.TrimSpace(r.Header.Get("X-Terminal-Timestamp"))
		signature := strings.TrimSpace(r.Header.Get("X-Terminal-Signature"))
		if terminalID == "" || timestampRaw == "" || signature == "" {
			writeError(w, http.StatusUnauthorized, errors.New("missing terminal auth headers"))
			return
		}

		timestamp, err := strconv.ParseInt(timestampRaw, 10, 64)
		if err != nil {
			writeError(w, http.StatusUnauthorized, errors.New("invalid terminal timestamp"))
			return
		}

		term, err := a.verifier.Verify(r.Context(), terminalID, timestamp, signature)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next(w, r, term)
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleTerminals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		terminals, err := a.registry.List(r.Context(), status)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.TerminalListResponse{Terminals: terminals})
	case http.MethodPost:
		var req domain.TerminalRegisterRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		actor, _ := actorFromContext(r.Context())
		created, err := a.registry.Register(r.Context(), req, actor.Username)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrDuplicateTerminal):
				writeError(w, http.StatusConflict, err)
			case errors.Is(err, terminal.ErrInvalidPublicKey), errors.Is(err, terminal.ErrMissingFields):
				writeError(w, http.StatusBadRequest, err)
			default:
				writeError(w, http.StatusUnprocessableEntity, err)
			}
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"terminal": created})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTerminalActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/terminals/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("terminal id required"))
		return
	}

	if strings.HasSuffix(tail, "/revoke") {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		terminalID := strings.Trim(strings.TrimSuffix(tail, "/revoke"), "/")
		revoked, err := a.registry.Revoke(r.Context(), terminalID)
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"terminal": revoked})
		return
	}

	switch r.Method {
	case http.MethodGet:
		term, err := a.registry.Get(r.Context(), tail)
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"terminal": term})
	case http.MethodDelete:
		if err := a.registry.Delete(r.Context(), tail); err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleEmployees(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		employees, err := a.sessions.ListEmployees(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
	case http.MethodPost:
		var req domain.EmployeeCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		created, err := a.sessions.RegisterEmployee(r.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrDuplicateEmployee):
				writeError(w, http.StatusConflict, err)
			case errors.Is(err, session.ErrInvalidPIN):
				writeError(w, http.StatusBadRequest, err)
			default:
				writeError(w, http.StatusBadRequest, err)
			}
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"employee": created})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCoupons(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		coupons, err := a.coupons.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"coupons": coupons})
	case http.MethodPost:
		var req domain.CouponCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		created, err := a.coupons.Create(r.Context(), req)
		if err != nil {
			if errors.Is(err, store.ErrDuplicateCoupon) {
				writeError(w, http.StatusConflict, err)
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"coupon": created})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	items, err := a.stock.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleStockActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/stock/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	if strings.HasSuffix(tail, "/history") {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		productID := strings.Trim(strings.TrimSuffix(tail, "/history"), "/")
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)

		history, err := a.stock.History(r.Context(), productID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": history})
		return
	}

	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.StockAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeError(w, http.StatusBadRequest, errors.New("reason is required"))
		return
	}

	actor, _ := actorFromContext(r.Context())
	item, err := a.stock.Adjust(r.Context(), tail, req.Quantity, req.Reason, actor.Username)
	if err != nil {
		switch {
		case errors.Is(err, stock.ErrProductNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, stock.ErrInvalidQuantity):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusUnprocessableEntity, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handlePOSLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.pinLimiter.Allow("pin:" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.POSLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.sessions.Login(r.Context(), req.EmployeeNumber, req.PIN, req.TerminalID)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePOSVerify(w http.ResponseWriter, r *http.Request, sess *domain.EmployeeSession) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "session": sess})
}

func (a *API) handlePOSRefresh(w http.ResponseWriter, r *http.Request, sess *domain.EmployeeSession) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	resp, err := a.sessions.Refresh(r.Context(), sess.SessionID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errors.New("Invalid or expired session"))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePOSLogout(w http.ResponseWriter, r *http.Request, sess *domain.EmployeeSession) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	if err := a.sessions.Invalidate(r.Context(), sess.SessionID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handlePOSSetEvent(w http.ResponseWriter, r *http.Request, sess *domain.EmployeeSession) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		EventID string `json:"event_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.EventID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("event_id is required"))
		return
	}

	updated, err := a.sessions.SetEvent(r.Context(), sess.SessionID, req.EventID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": updated})
}

func (a *API) handlePOSSales(w http.ResponseWriter, r *http.Request, sess *domain.EmployeeSession) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sale, err := a.service.RecordSale(r.Context(), sess, req)
	if err != nil {
		writeSaleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.SaleResponse{Sale: *sale})
}

func (a *API) handlePOSSaleActions(w http.ResponseWriter, r *http.Request, sess *domain.EmployeeSession) {
	prefix := "/api/v1/pos/sales/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}

	if strings.HasSuffix(tail, "/cancel") {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		saleID := strings.Trim(strings.TrimSuffix(tail, "/cancel"), "/")

		var req domain.SaleCancelRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		cancelled, err := a.service.CancelSale(r.Context(), sess, saleID, req.Reason)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrLeaderRequired):
				writeError(w, http.StatusForbidden, err)
			case errors.Is(err, service.ErrSaleNotCancellable):
				writeError(w, http.StatusConflict, err)
			case errors.Is(err, store.ErrNotFound):
				writeError(w, http.StatusNotFound, err)
			default:
				writeError(w, http.StatusUnprocessableEntity, err)
			}
			return
		}
		writeJSON(w, http.StatusOK, domain.SaleResponse{Sale: *cancelled})
		return
	}

	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	sale, err := a.service.GetSale(r.Context(), tail)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SaleResponse{Sale: *sale})
}

func (a *API) handleCouponPreview(w http.ResponseWriter, r *http.Request, sess *domain.EmployeeSession) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CouponPreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reserved, err := a.stock.Reserve(r.Context(), req.Items)
	if err != nil {
		writeSaleError(w, err)
		return
	}

	applied, err := a.coupons.Apply(r.Context(), req.Code, reserved, sess.PublisherID, sess.EventID)
	if err != nil {
		switch {
		case errors.Is(err, coupon.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, coupon.ErrIneligible):
			writeError(w, http.StatusUnprocessableEntity, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

func (a *API) handleTerminalAuth(w http.ResponseWriter, r *http.Request, term *domain.Terminal) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "terminal": term})
}

func (a *API) handleSyncSales(w http.ResponseWriter, r *http.Request, term *domain.Terminal) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.OfflineSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.SyncOfflineSales(r.Context(), term, req.Sales)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSyncPending(w http.ResponseWriter, r *http.Request, term *domain.Terminal) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	records, err := a.service.PendingOfflineSales(r.Context(), term.TerminalID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": records})
}

func writeSaleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stock.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, stock.ErrProductNotFound):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, stock.ErrEmptyCart), errors.Is(err, stock.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrMissingPayment):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, coupon.ErrIneligible):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-POS-Session, X-Terminal-ID, X-Terminal-Timestamp, X-Terminal-Signature")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

type actorContextKey struct{}

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func actorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx responses return a generic message so internal details never
	// reach a client; 4xx messages are user-facing and pass through.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
