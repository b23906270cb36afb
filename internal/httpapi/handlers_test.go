package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/inventory"
	"laroza/backend/internal/logger"
	"laroza/backend/internal/report"
	"laroza/backend/internal/service"
	"laroza/backend/internal/store"
	"laroza/backend/internal/store/memory"
)

const testSecret = "test-session-secret-0123456789abcdef"

// newTestAPI wires the real service over the seeded in-memory store so
// handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	ledger := inventory.NewLedger(repo, inventory.NewLocalLocker(time.Second))
	svc := service.New(repo, ledger, nil, logger.Nop(), service.Options{})
	sessions := NewSessionManager(testSecret, time.Hour, []string{"abdulrahman", "heba", "hadeel"})
	return New(svc, sessions, logger.Nop(), "http://127.0.0.1:5173")
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload == nil {
		body = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func openSession(t *testing.T, handler http.Handler, employee string, storeType string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/session", "", map[string]string{
		"employee":   employee,
		"store_type": storeType,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 from session, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return resp.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v (raw: %s)", err, rec.Body.String())
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected secure headers, got %v", rec.Header())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestSessionRejectsUnknownEmployee(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/session", "", map[string]string{
		"employee":   "mallory",
		"store_type": domain.StoreTypeBoutique,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["code"] != "validation_failed" {
		t.Fatalf("expected validation_failed, got %v", body["code"])
	}
}

func TestMutationsRequireSession(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", "", map[string]any{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", "not-a-token", map[string]any{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}

	token := openSession(t, handler, "hadeel", domain.StoreTypeOnline)
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/session", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	session, _ := decodeBody(t, rec)["session"].(map[string]any)
	if session["employee"] != "hadeel" || session["store_type"] != domain.StoreTypeOnline {
		t.Fatalf("unexpected session: %v", session)
	}
}

func TestCreateSaleAndRefundFlow(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := openSession(t, handler, "heba", domain.StoreTypeBoutique)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"payment_method": "visa",
		"customer_name":  "Mona",
		"customer_phone": "0790000000",
		"items": []map[string]any{{
			"product_id": memory.SeedDressID,
			"color":      "black",
			"size":       "M",
			"quantity":   1,
			"unit_price": "200",
		}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	sale, _ := decodeBody(t, rec)["sale"].(map[string]any)
	if sale["total"] != "210" || sale["fees"] != "10" || sale["employee"] != "heba" {
		t.Fatalf("unexpected sale: %v", sale)
	}
	saleID, _ := sale["id"].(string)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/returns", token, map[string]any{
		"original_sale_id": saleID,
		"return_type":      "refund",
		"items": []map[string]any{{
			"product_id": memory.SeedDressID,
			"color":      "black",
			"size":       "M",
			"quantity":   1,
		}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	ret, _ := decodeBody(t, rec)["return"].(map[string]any)
	if ret["refund_amount"] != "210" {
		t.Fatalf("expected refund 210, got %v", ret["refund_amount"])
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/inventory?product_id="+memory.SeedDressID+"&store_type=boutique", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	records, _ := decodeBody(t, rec)["inventory"].([]any)
	for _, raw := range records {
		record := raw.(map[string]any)
		if record["color"] == "black" && record["size"] == "M" && record["quantity"] != float64(5) {
			t.Fatalf("expected black M restored to 5, got %v", record["quantity"])
		}
	}
}

func TestCreateSaleReportsShortVariant(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := openSession(t, handler, "heba", domain.StoreTypeBoutique)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"payment_method": "cash",
		"customer_name":  "Mona",
		"customer_phone": "0790000000",
		"items": []map[string]any{{
			"product_id": memory.SeedDressID,
			"color":      "red",
			"size":       "L",
			"quantity":   4,
			"unit_price": "200",
		}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	details, _ := body["details"].(map[string]any)
	if body["code"] != "insufficient_stock" || details["available"] != float64(3) || details["requested"] != float64(4) {
		t.Fatalf("unexpected error body: %v", body)
	}
	if !strings.Contains(body["error"].(string), "Available: 3, Requested: 4") {
		t.Fatalf("expected availability in message, got %v", body["error"])
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := openSession(t, handler, "heba", domain.StoreTypeBoutique)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/expenses", token, map[string]any{
		"amount":      "12.5",
		"description": "tape",
		"category":    "supplies",
		"discount":    "5",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["code"] != "invalid_json" {
		t.Fatalf("expected invalid_json, got %v", body["code"])
	}
}

func TestProductsByStoreTypeAndNotFound(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products?store_type=online", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	products, _ := decodeBody(t, rec)["products"].([]any)
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/prod-missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/payment-methods?store_type=online", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	methods, _ := decodeBody(t, rec)["methods"].([]any)
	if len(methods) != 2 {
		t.Fatalf("expected 2 online payment methods, got %v", methods)
	}
}

func TestExportReportServesWorkbook(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/reports/export?start=2026-03-01&end=2026-03-31", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != report.ContentType {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "laroza-report-2026-03-01-2026-03-31.xlsx") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected workbook body")
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/summary?start=bad", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad date, got %d", rec.Code)
	}
}

func TestRetryableConflictsMapToInventoryBusy(t *testing.T) {
	api := newTestAPI(t)
	cases := map[string]error{
		"lock busy":     fmt.Errorf("%w: p1:boutique:black:M", inventory.ErrLockBusy),
		"serialization": fmt.Errorf("%w: could not serialize access", store.ErrConflict),
	}
	for name, err := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil)
			rec := httptest.NewRecorder()
			api.fail(rec, req, err)
			if rec.Code != http.StatusConflict {
				t.Fatalf("expected 409, got %d", rec.Code)
			}
			if body := decodeBody(t, rec); body["code"] != "inventory_busy" {
				t.Fatalf("expected inventory_busy, got %v", body["code"])
			}
		})
	}
}
