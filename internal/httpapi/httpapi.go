package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/inventory"
	"laroza/backend/internal/logger"
	"laroza/backend/internal/report"
	"laroza/backend/internal/service"
	"laroza/backend/internal/store"
)

type API struct {
	service       *service.Service
	sessions      *SessionManager
	log           *logger.Logger
	allowedOrigin string
}

func New(svc *service.Service, sessions *SessionManager, log *logger.Logger, allowedOrigin string) *API {
	if log == nil {
		log = logger.Nop()
	}
	return &API{
		service:       svc,
		sessions:      sessions,
		log:           log,
		allowedOrigin: allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		a.requestContext,
		a.logRequests,
		middleware.Recoverer,
		a.secureHeaders(),
		a.corsPolicy(),
		limitBody,
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", errors.New("route not found"), nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", errors.New("method not allowed"), nil)
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(a.sessionRateLimit()).Post("/session", a.handleCreateSession)
		r.Get("/employees", a.handleEmployees)
		r.Get("/payment-methods", a.handlePaymentMethods)
		r.Get("/products", a.handleListProducts)
		r.Get("/products/{id}", a.handleGetProduct)
		r.Get("/inventory", a.handleListInventory)
		r.Get("/sales", a.handleListSales)
		r.Get("/sales/{id}", a.handleGetSale)
		r.Get("/returns", a.handleListReturns)
		r.Get("/returns/{id}", a.handleGetReturn)
		r.Get("/expenses", a.handleListExpenses)
		r.Get("/purchases", a.handleListPurchases)
		r.Get("/dashboard/stats", a.handleDashboardStats)
		r.Get("/reports/summary", a.handleRangeSummary)
		r.Get("/reports/export", a.handleExportReport)
		r.Get("/audit-logs", a.handleAuditLogs)

		r.Group(func(r chi.Router) {
			r.Use(a.requireSession)
			r.Get("/session", a.handleCurrentSession)
			r.Post("/products", a.handleCreateProduct)
			r.Put("/products/{id}", a.handleUpdateProduct)
			r.Delete("/products/{id}", a.handleDeleteProduct)
			r.Put("/inventory", a.handleSetInventory)
			r.Post("/inventory/adjust", a.handleAdjustInventory)
			r.Post("/sales", a.handleCreateSale)
			r.Patch("/sales/{id}/order-status", a.handleUpdateOrderStatus)
			r.Post("/returns", a.handleCreateReturn)
			r.Post("/expenses", a.handleCreateExpense)
			r.Post("/purchases", a.handleCreatePurchase)
		})
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req domain.SessionRequest
	if !a.decode(w, r, &req) {
		return
	}
	resp, err := a.sessions.Issue(req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"session": actor})
}

func (a *API) handleEmployees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"employees": a.sessions.Employees()})
}

func (a *API) handlePaymentMethods(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.PaymentMethods(r.URL.Query().Get("store_type"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProductsWithStatus(r.Context(), r.URL.Query().Get("store_type"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListInventory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := a.service.ListInventory(r.Context(), q.Get("product_id"), q.Get("store_type"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": records})
}

func (a *API) handleSetInventory(w http.ResponseWriter, r *http.Request) {
	var req domain.InventorySetRequest
	if !a.decode(w, r, &req) {
		return
	}
	records, err := a.service.SetInventory(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": records})
}

func (a *API) handleAdjustInventory(w http.ResponseWriter, r *http.Request) {
	var req domain.InventoryAdjustRequest
	if !a.decode(w, r, &req) {
		return
	}
	adj, err := a.service.AdjustInventory(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"adjustment": adj})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	rng, ok := a.rangeFromQuery(w, r)
	if !ok {
		return
	}
	sales, err := a.service.SalesInRange(r.Context(), rng)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	sale, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderStatusUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	sale, err := a.service.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleListReturns(w http.ResponseWriter, r *http.Request) {
	rng, ok := a.rangeFromQuery(w, r)
	if !ok {
		return
	}
	returns, err := a.service.ListReturns(r.Context(), rng)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"returns": returns})
}

func (a *API) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	ret, err := a.service.CreateReturn(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"return": ret})
}

func (a *API) handleGetReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := a.service.GetReturn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"return": ret})
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	rng, ok := a.rangeFromQuery(w, r)
	if !ok {
		return
	}
	expenses, err := a.service.ExpensesInRange(r.Context(), rng)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	expense, err := a.service.CreateExpense(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
}

func (a *API) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	rng, ok := a.rangeFromQuery(w, r)
	if !ok {
		return
	}
	purchases, err := a.service.PurchasesInRange(r.Context(), rng)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}

func (a *API) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	purchase, err := a.service.CreatePurchase(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"purchase": purchase})
}

func (a *API) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.DashboardStats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleRangeSummary(w http.ResponseWriter, r *http.Request) {
	rng, ok := a.rangeFromQuery(w, r)
	if !ok {
		return
	}
	summary, err := a.service.RangeSummary(r.Context(), rng)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleExportReport(w http.ResponseWriter, r *http.Request) {
	rng, ok := a.rangeFromQuery(w, r)
	if !ok {
		return
	}

	// Buffer the workbook so a failure still gets a JSON error response.
	var buf bytes.Buffer
	if err := a.service.ExportWorkbook(r.Context(), rng, &buf); err != nil {
		a.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(q.Get("start"), q.Get("end"))))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), q.Get("date"), parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) rangeFromQuery(w http.ResponseWriter, r *http.Request) (domain.DateRange, bool) {
	q := r.URL.Query()
	rng, err := a.service.ParseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		a.fail(w, r, err)
		return domain.DateRange{}, false
	}
	return rng, true
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", errors.New("request body too large"), nil)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_json", err, nil)
		return false
	}
	return true
}

// fail maps service errors onto status codes. Anything unrecognized is a 500
// with a generic message.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var validation *store.ValidationError
	var short *store.InsufficientInventoryError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", err, validation.Fields)
	case errors.As(err, &short):
		writeError(w, http.StatusConflict, "insufficient_stock", err, map[string]any{
			"product_id": short.Variant.ProductID,
			"store_type": short.Variant.StoreType,
			"color":      short.Variant.Color,
			"size":       short.Variant.Size,
			"available":  short.Available,
			"requested":  short.Requested,
		})
	case errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "insufficient_stock", err, nil)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err, nil)
	case errors.Is(err, store.ErrDuplicateModelNumber):
		writeError(w, http.StatusConflict, "duplicate_model_number", err, nil)
	case errors.Is(err, service.ErrOverrideDenied):
		writeError(w, http.StatusForbidden, "override_denied", err, nil)
	case errors.Is(err, inventory.ErrLockBusy), errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "inventory_busy", errors.New("inventory is busy, retry"), nil)
	case errors.Is(err, ErrInvalidSession):
		writeError(w, http.StatusUnauthorized, "unauthorized", err, nil)
	default:
		a.log.Error(r.Context(), "request failed", err)
		writeError(w, http.StatusInternalServerError, "internal_error", errors.New("internal server error"), nil)
	}
}

func exportFilename(start string, end string) string {
	name := "laroza-report"
	for _, part := range []string{start, end} {
		part = strings.TrimSpace(part)
		if len(part) >= 10 {
			name += "-" + part[:10]
		}
	}
	return name + ".xlsx"
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

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code string, err error, details any) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
