package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/service"
	"ashkicharm/backend/internal/session"
	"ashkicharm/backend/internal/store/memory"
)

const testPassphrase = "correct horse battery"

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	svc := service.New(repo, time.UTC)
	sessions := session.NewManager(svc, session.NewMemoryStore(0))
	auth := NewAuthManager("test-secret-key", time.Hour, testPassphrase)

	return New(svc, sessions, auth, "*")
}

func login(t *testing.T, api *API) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Passphrase: testPassphrase})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("login failed, status %d", res.Code)
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

// call sends an authenticated JSON request and decodes the response body.
func call(t *testing.T, api *API, token string, method string, path string, payload any) (int, map[string]any) {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	out := map[string]any{}
	if res.Body.Len() > 0 {
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			t.Fatalf("%s %s: decode body: %v", method, path, err)
		}
	}
	return res.Code, out
}

func seedCatalog(t *testing.T, api *API, token string) {
	t.Helper()

	code, body := call(t, api, token, http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{Name: "Elf Bar", Prices: "300 500 450"})
	if code != http.StatusCreated {
		t.Fatalf("create product: status %d body %v", code, body)
	}
	product := body["product"].(map[string]any)
	id := int64(product["id"].(float64))

	code, body = call(t, api, token, http.MethodPost, "/api/v1/products/"+strconv.FormatInt(id, 10)+"/flavors", domain.FlavorAddRequest{Lines: "Арбуз 4\nМанго 1"})
	if code != http.StatusCreated {
		t.Fatalf("add flavors: status %d body %v", code, body)
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestCatalogLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api)
	seedCatalog(t, api, token)

	code, body := call(t, api, token, http.MethodGet, "/api/v1/catalog", nil)
	if code != http.StatusOK {
		t.Fatalf("catalog: status %d", code)
	}
	products := body["products"].([]any)
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	flavors := products[0].(map[string]any)["flavors"].([]any)
	if len(flavors) != 2 {
		t.Fatalf("expected 2 flavors, got %d", len(flavors))
	}

	code, body = call(t, api, token, http.MethodPost, "/api/v1/products/1/flavors", domain.FlavorAddRequest{Lines: "арбуз 2"})
	if code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate flavor, got %d", code)
	}
	if dups, ok := body["duplicates"].([]any); !ok || len(dups) != 1 {
		t.Fatalf("expected duplicates listed, got %v", body)
	}

	code, _ = call(t, api, token, http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{Name: "HQD", Prices: "abc"})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad prices, got %d", code)
	}

	code, _ = call(t, api, token, http.MethodDelete, "/api/v1/products/1", nil)
	if code != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", code)
	}
	code, _ = call(t, api, token, http.MethodDelete, "/api/v1/products/1", nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", code)
	}
}

func TestCartCommitReportsShortLines(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api)
	seedCatalog(t, api, token)

	code, body := call(t, api, token, http.MethodPost, "/api/v1/sales/cart", domain.CartCommitRequest{
		Lines: []domain.CartLine{
			{Product: "Elf Bar", Flavor: "Арбуз", Quantity: 2},
			{Product: "Elf Bar", Flavor: "Манго", Quantity: 3},
		},
	})
	if code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body %v", code, body)
	}
	shortages := body["shortages"].([]any)
	if len(shortages) != 1 || shortages[0].(map[string]any)["flavor"] != "Манго" {
		t.Fatalf("expected only Манго reported, got %v", shortages)
	}

	code, body = call(t, api, token, http.MethodPost, "/api/v1/sales/cart", domain.CartCommitRequest{
		Lines:        []domain.CartLine{{Product: "Elf Bar", Flavor: "Арбуз", Quantity: 2}},
		CustomerName: "Аня",
	})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body %v", code, body)
	}
	receipt := body["receipt"].(map[string]any)
	if receipt["total_revenue"] != "900" {
		t.Fatalf("expected tier revenue 900, got %v", receipt["total_revenue"])
	}

	code, body = call(t, api, token, http.MethodGet, "/api/v1/income/current", nil)
	if code != http.StatusOK {
		t.Fatalf("income: status %d", code)
	}
	// 2 * (450 - 300) * 0.3
	if got := body["week"].(map[string]any)["income"]; got != "90" {
		t.Fatalf("expected income 90, got %v", got)
	}
}

func TestConversationSaleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api)
	seedCatalog(t, api, token)

	code, body := call(t, api, token, http.MethodPost, "/api/v1/conversations", map[string]string{"flow": "sale"})
	if code != http.StatusCreated {
		t.Fatalf("begin: status %d body %v", code, body)
	}
	id := body["conversation"].(map[string]any)["id"].(string)
	base := "/api/v1/conversations/" + id

	code, _ = call(t, api, token, http.MethodPost, base+"/lines", domain.CartLine{Product: "elf bar", Flavor: "манго", Quantity: 1})
	if code != http.StatusOK {
		t.Fatalf("add line: status %d", code)
	}
	code, _ = call(t, api, token, http.MethodPost, base+"/lines", domain.CartLine{Product: "Elf Bar", Flavor: "Киви", Quantity: 1})
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown flavor, got %d", code)
	}
	code, _ = call(t, api, token, http.MethodPost, base+"/commit", domain.CommitRequest{})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for commit before checkout, got %d", code)
	}
	code, _ = call(t, api, token, http.MethodPost, base+"/checkout", nil)
	if code != http.StatusOK {
		t.Fatalf("checkout: status %d", code)
	}
	code, body = call(t, api, token, http.MethodPost, base+"/commit", domain.CommitRequest{CustomerName: "Боря"})
	if code != http.StatusOK {
		t.Fatalf("commit: status %d body %v", code, body)
	}
	if body["closed"] != true {
		t.Fatalf("expected closed conversation, got %v", body)
	}

	code, _ = call(t, api, token, http.MethodGet, base, nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected committed conversation to be gone, got %d", code)
	}
}

func TestDefectAndReports(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api)
	seedCatalog(t, api, token)

	code, body := call(t, api, token, http.MethodPost, "/api/v1/defects", domain.CartLine{Product: "Elf Bar", Flavor: "Арбуз", Quantity: 1})
	if code != http.StatusCreated {
		t.Fatalf("defect: status %d body %v", code, body)
	}
	// loss 300, debit 30% of it
	if got := body["defect"].(map[string]any)["debit"]; got != "90" {
		t.Fatalf("expected debit 90, got %v", got)
	}

	code, body = call(t, api, token, http.MethodGet, "/api/v1/defects", nil)
	if code != http.StatusOK {
		t.Fatalf("defect history: status %d", code)
	}
	if got := body["total_quantity"]; got != float64(1) {
		t.Fatalf("expected 1 defect unit, got %v", got)
	}

	code, _ = call(t, api, token, http.MethodGet, "/api/v1/reports/daily?from=yesterday", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", code)
	}
	code, body = call(t, api, token, http.MethodGet, "/api/v1/reports/daily", nil)
	if code != http.StatusOK {
		t.Fatalf("daily report: status %d", code)
	}
	if rows := body["rows"].([]any); len(rows) != 0 {
		t.Fatalf("defects must not appear in sales report, got %v", rows)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	InitMetrics()
	InitMetrics()
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	api.Handler().ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("expected http_requests_total in metrics output")
	}
}
