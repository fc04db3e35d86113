package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/internal/checkout"
	"github.com/MarkoPoloResearchLab/bankroll/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/access"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/webhook"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningKey    = "secret-key"
	testWebhookSecret = "webhook-secret"
	testUserID        = "google-user-1"
	testUserEmail     = "player@example.com"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type testEnvironment struct {
	server   *httptest.Server
	cfg      Config
	access   *access.Service
	checkout *stubCheckout
}

func TestBankrollRoutesRequirePaidAccess(t *testing.T) {
	env := newTestEnvironment(t)
	cookie := buildSessionCookie(t, env.cfg, testUserID, testUserEmail)

	status, body := execRequest(t, env.server, http.MethodPost, "/api/session", cookie, nil)
	if status != http.StatusOK {
		t.Fatalf("session: expected 200, got %d", status)
	}
	if active := body["user"].(map[string]any)["active"]; active != false {
		t.Fatalf("expected inactive user, got %v", active)
	}

	status, body = execRequest(t, env.server, http.MethodPost, "/api/bets", cookie, map[string]any{
		"game": "Flamengo x Palmeiras", "market": "Over 2.5", "odd": "1.72", "stake": "20",
	})
	if status != http.StatusPaymentRequired || errorCode(body) != codeAccessRequired {
		t.Fatalf("expected 402 access_required, got %d %v", status, body)
	}

	status, body = execRequest(t, env.server, http.MethodGet, "/api/bankroll", cookie, nil)
	if status != http.StatusOK || balance(body) != "0.00" {
		t.Fatalf("expected empty bankroll, got %d %v", status, body)
	}
}

func TestBankrollFlowAfterPayment(t *testing.T) {
	env := newTestEnvironment(t)
	cookie := buildSessionCookie(t, env.cfg, testUserID, testUserEmail)
	mustStatus(t, env.server, http.MethodPost, "/api/session", cookie, nil, http.StatusOK)

	paidBody := paidEventBody("evt_1", testUserID, "monthly")
	status, body := postWebhook(t, env, paidBody, webhook.Sign(testWebhookSecret, []byte(paidBody)))
	if status != http.StatusOK || body["status"] != string(webhook.StatusProcessed) || body["received"] != true {
		t.Fatalf("expected processed delivery, got %d %v", status, body)
	}

	_, body = execRequest(t, env.server, http.MethodGet, "/api/me", cookie, nil)
	if body["user"].(map[string]any)["active"] != true {
		t.Fatalf("expected active user after payment, got %v", body)
	}

	body = mustStatus(t, env.server, http.MethodPost, "/api/bankroll/initial", cookie, map[string]any{"amount": "100"}, http.StatusOK)
	if balance(body) != "100.00" {
		t.Fatalf("expected 100.00, got %v", body)
	}

	body = mustStatus(t, env.server, http.MethodPost, "/api/bets", cookie, map[string]any{
		"game": "Flamengo x Palmeiras", "market": "Over 2.5", "sport": "football", "odd": "1.72", "stake": "20",
	}, http.StatusCreated)
	if balance(body) != "80.00" {
		t.Fatalf("expected stake debited, got %v", body)
	}
	betID := body["bet"].(map[string]any)["id"].(string)

	body = mustStatus(t, env.server, http.MethodPost, "/api/bets/"+betID+"/settle", cookie, map[string]any{"result": "green"}, http.StatusOK)
	if balance(body) != "114.40" || body["bet"].(map[string]any)["profit"] != "14.40" {
		t.Fatalf("unexpected settlement: %v", body)
	}

	status, body = execRequest(t, env.server, http.MethodPost, "/api/bets/"+betID+"/settle", cookie, map[string]any{"result": "red"})
	if status != http.StatusConflict || errorCode(body) != codeAlreadySettled {
		t.Fatalf("expected 409 already_settled, got %d %v", status, body)
	}

	body = mustStatus(t, env.server, http.MethodPatch, "/api/bets/"+betID, cookie, map[string]any{"stake": "10"}, http.StatusOK)
	if balance(body) != "107.20" {
		t.Fatalf("expected edit delta applied, got %v", body)
	}

	status, body = execRequest(t, env.server, http.MethodPost, "/api/bankroll/withdraw", cookie, map[string]any{"amount": "500"})
	if status != http.StatusConflict || errorCode(body) != codeInsufficientBalance {
		t.Fatalf("expected 409 insufficient_balance, got %d %v", status, body)
	}

	body = mustStatus(t, env.server, http.MethodPost, "/api/bankroll/deposit", cookie, map[string]any{"amount": "10.50"}, http.StatusCreated)
	if balance(body) != "117.70" {
		t.Fatalf("expected deposit credited, got %v", body)
	}

	body = mustStatus(t, env.server, http.MethodGet, "/api/history?limit=10", cookie, nil, http.StatusOK)
	if len(body["bets"].([]any)) != 1 || len(body["transactions"].([]any)) != 1 {
		t.Fatalf("unexpected history: %v", body)
	}

	body = mustStatus(t, env.server, http.MethodGet, "/api/statistics", cookie, nil, http.StatusOK)
	statistics := body["statistics"].(map[string]any)
	if statistics["winCount"] != float64(1) || statistics["totalProfit"] != "7.20" {
		t.Fatalf("unexpected statistics: %v", statistics)
	}

	body = mustStatus(t, env.server, http.MethodDelete, "/api/bets/"+betID, cookie, nil, http.StatusOK)
	if balance(body) != "110.50" {
		t.Fatalf("expected bet effect reversed, got %v", body)
	}

	status, body = execRequest(t, env.server, http.MethodDelete, "/api/bets/"+betID, cookie, nil)
	if status != http.StatusNotFound || errorCode(body) != codeNotFound {
		t.Fatalf("expected 404 not_found, got %d %v", status, body)
	}

	status, _ = execRequest(t, env.server, http.MethodGet, "/api/history?limit=abc", cookie, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", status)
	}

	status, body = postWebhook(t, env, paidBody, webhook.Sign(testWebhookSecret, []byte(paidBody)))
	if status != http.StatusOK || body["status"] != string(webhook.StatusDuplicate) {
		t.Fatalf("expected duplicate delivery, got %d %v", status, body)
	}
}

func TestBetValidationErrors(t *testing.T) {
	env := newTestEnvironment(t)
	cookie := buildSessionCookie(t, env.cfg, testUserID, testUserEmail)
	mustStatus(t, env.server, http.MethodPost, "/api/session", cookie, nil, http.StatusOK)
	paidBody := paidEventBody("evt_1", testUserID, "annual")
	if status, _ := postWebhook(t, env, paidBody, webhook.Sign(testWebhookSecret, []byte(paidBody))); status != http.StatusOK {
		t.Fatalf("payment failed: %d", status)
	}

	testCases := []struct {
		name    string
		payload map[string]any
	}{
		{name: "odd not above one", payload: map[string]any{"game": "A x B", "market": "1x2", "odd": "1", "stake": "10"}},
		{name: "odd precision", payload: map[string]any{"game": "A x B", "market": "1x2", "odd": "1.7255", "stake": "10"}},
		{name: "zero stake", payload: map[string]any{"game": "A x B", "market": "1x2", "odd": "1.5", "stake": "0"}},
		{name: "stake precision", payload: map[string]any{"game": "A x B", "market": "1x2", "odd": "1.5", "stake": "1.005"}},
		{name: "missing game", payload: map[string]any{"market": "1x2", "odd": "1.5", "stake": "10"}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			status, body := execRequest(t, env.server, http.MethodPost, "/api/bets", cookie, testCase.payload)
			if status != http.StatusBadRequest || errorCode(body) != codeInvalidInput {
				t.Fatalf("expected 400 invalid_input, got %d %v", status, body)
			}
		})
	}

	status, body := execRequest(t, env.server, http.MethodPost, "/api/bets/unknown-bet/settle", cookie, map[string]any{"result": "pending"})
	if status != http.StatusBadRequest || errorCode(body) != codeInvalidInput {
		t.Fatalf("expected pending settlement rejected, got %d %v", status, body)
	}
	status, body = execRequest(t, env.server, http.MethodPost, "/api/bets/unknown-bet/settle", cookie, map[string]any{"result": "green"})
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown bet, got %d %v", status, body)
	}
}

func TestPaymentWebhookFailures(t *testing.T) {
	env := newTestEnvironment(t)

	paidBody := paidEventBody("evt_1", testUserID, "monthly")
	testCases := []struct {
		name         string
		body         string
		signature    string
		expectedCode int
	}{
		{name: "missing signature", body: paidBody, signature: "", expectedCode: http.StatusUnauthorized},
		{name: "wrong secret", body: paidBody, signature: webhook.Sign("other", []byte(paidBody)), expectedCode: http.StatusUnauthorized},
		{name: "malformed", body: `{"event":"billing.paid"}`, signature: webhook.Sign(testWebhookSecret, []byte(`{"event":"billing.paid"}`)), expectedCode: http.StatusBadRequest},
		{name: "unregistered user", body: paidBody, signature: webhook.Sign(testWebhookSecret, []byte(paidBody)), expectedCode: http.StatusBadRequest},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			status, body := postWebhook(t, env, testCase.body, testCase.signature)
			if status != testCase.expectedCode {
				t.Fatalf("expected %d, got %d %v", testCase.expectedCode, status, body)
			}
		})
	}
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnvironment(t)
	cookie := buildSessionCookie(t, env.cfg, testUserID, testUserEmail)
	mustStatus(t, env.server, http.MethodPost, "/api/session", cookie, nil, http.StatusOK)

	status, body := execRequest(t, env.server, http.MethodGet, "/api/admin/revenue", cookie, nil)
	if status != http.StatusForbidden || errorCode(body) != codeForbidden {
		t.Fatalf("expected 403 for non-admin, got %d %v", status, body)
	}

	if _, err := env.access.PromoteAdmin(context.Background(), testUserEmail); err != nil {
		t.Fatalf("promote admin: %v", err)
	}

	body = mustStatus(t, env.server, http.MethodPost, "/api/bankroll/initial", cookie, map[string]any{"amount": "50"}, http.StatusOK)
	if balance(body) != "50.00" {
		t.Fatalf("expected admin to bypass paywall, got %v", body)
	}

	body = mustStatus(t, env.server, http.MethodPost, "/api/admin/grants", cookie, map[string]any{
		"identities": []string{"Friend@Example.com", "missing-user", "bad@"},
		"planId":     "quarterly",
	}, http.StatusOK)
	if body["granted"] != float64(1) {
		t.Fatalf("expected one grant, got %v", body)
	}
	results := body["results"].([]any)
	first := results[0].(map[string]any)
	if first["identity"] != "friend@example.com" || first["target"] != string(access.GrantTargetPreAuthorization) {
		t.Fatalf("unexpected pre-authorization outcome: %v", first)
	}
	if results[1].(map[string]any)["error"] == nil || results[2].(map[string]any)["error"] == nil {
		t.Fatalf("expected per-identity errors, got %v", results)
	}

	friendCookie := buildSessionCookie(t, env.cfg, "google-user-2", "friend@example.com")
	_, body = execRequest(t, env.server, http.MethodPost, "/api/session", friendCookie, nil)
	if body["user"].(map[string]any)["active"] != true {
		t.Fatalf("expected pre-authorization applied on sign-in, got %v", body)
	}

	status, body = execRequest(t, env.server, http.MethodPost, "/api/admin/grants", cookie, map[string]any{"identities": []string{"x@example.com"}})
	if status != http.StatusBadRequest || errorCode(body) != codeInvalidInput {
		t.Fatalf("expected 400 without plan or expiry, got %d %v", status, body)
	}

	paidBody := paidEventBody("evt_rev", "google-user-2", "monthly")
	if status, _ := postWebhook(t, env, paidBody, webhook.Sign(testWebhookSecret, []byte(paidBody))); status != http.StatusOK {
		t.Fatalf("payment failed: %d", status)
	}

	body = mustStatus(t, env.server, http.MethodGet, "/api/admin/revenue?since=2025-03-01", cookie, nil, http.StatusOK)
	if body["totalCents"] != float64(2990) || body["newUsers"] != float64(2) {
		t.Fatalf("unexpected revenue report: %v", body)
	}
	months := body["months"].([]any)
	if len(months) != 1 || months[0].(map[string]any)["month"] != "2025-03" {
		t.Fatalf("unexpected months: %v", months)
	}

	status, _ = execRequest(t, env.server, http.MethodGet, "/api/admin/revenue?since=yesterday", cookie, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid since, got %d", status)
	}
}

func TestCheckoutRoute(t *testing.T) {
	env := newTestEnvironment(t)
	cookie := buildSessionCookie(t, env.cfg, testUserID, testUserEmail)

	body := mustStatus(t, env.server, http.MethodPost, "/api/checkout", cookie, map[string]any{
		"planId": "annual", "taxId": "123.456.789-00", "cellphone": "+5511999999999",
	}, http.StatusOK)
	if body["url"] != stubCheckoutURL {
		t.Fatalf("unexpected checkout response: %v", body)
	}
	request := env.checkout.lastRequest()
	if request.Plan.ID != "annual" || request.Customer.ID != testUserID || request.Customer.Email != testUserEmail || request.Customer.TaxID != "123.456.789-00" {
		t.Fatalf("unexpected checkout request: %+v", request)
	}

	status, body := execRequest(t, env.server, http.MethodPost, "/api/checkout", cookie, map[string]any{"planId": "weekly", "taxId": "1"})
	if status != http.StatusBadRequest || errorCode(body) != codeInvalidInput {
		t.Fatalf("expected 400 for unknown plan, got %d %v", status, body)
	}

	env.checkout.setErr(checkout.ErrMissingAPIKey)
	status, body = execRequest(t, env.server, http.MethodPost, "/api/checkout", cookie, map[string]any{"planId": "monthly", "taxId": "1"})
	if status != http.StatusServiceUnavailable || errorCode(body) != codeCheckoutUnavailable {
		t.Fatalf("expected 503 checkout_unavailable, got %d %v", status, body)
	}
}

func TestSignInWithRegisteredEmailConflicts(t *testing.T) {
	env := newTestEnvironment(t)
	mustStatus(t, env.server, http.MethodGet, "/api/me", buildSessionCookie(t, env.cfg, testUserID, testUserEmail), nil, http.StatusOK)

	otherCookie := buildSessionCookie(t, env.cfg, "google-user-9", testUserEmail)
	for attempt := 0; attempt < 2; attempt++ {
		status, body := execRequest(t, env.server, http.MethodGet, "/api/me", otherCookie, nil)
		if status != http.StatusConflict || errorCode(body) != codeUserExists {
			t.Fatalf("attempt %d: expected 409 user_exists, got %d %v", attempt, status, body)
		}
	}
}

func TestHandleSessionWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &httpHandler{logger: zap.NewNop(), cfg: Config{RequestTimeout: time.Second}, nowFn: time.Now}
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/api/session", nil)

	handler.handleSession(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnvironment(t)
	for _, path := range []string{"/healthz", "/metrics"} {
		response, err := env.server.Client().Get(env.server.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		_ = response.Body.Close()
		if response.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, response.StatusCode)
		}
	}
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "bankroll.db")+"?_pragma=busy_timeout(5000)"), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open failed: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := gormstore.AutoMigrate(database); err != nil {
		t.Fatalf("automigrate failed: %v", err)
	}
	store := gormstore.New(database)
	clock := func() time.Time { return testNow }

	bankrollService, err := bankroll.NewService(store.Bankroll(), clock)
	if err != nil {
		t.Fatalf("bankroll service: %v", err)
	}
	accessService, err := access.NewService(store.Access(), clock)
	if err != nil {
		t.Fatalf("access service: %v", err)
	}
	processor, err := webhook.NewProcessor(store.Webhooks(), testWebhookSecret, clock)
	if err != nil {
		t.Fatalf("webhook processor: %v", err)
	}
	stub := &stubCheckout{}
	cfg := Config{
		AllowedOrigins:    []string{"http://localhost:5173"},
		SessionSigningKey: testSigningKey,
		SessionIssuer:     "tauth",
		SessionCookieName: "app_session",
		RequestTimeout:    5 * time.Second,
	}
	router, err := NewRouter(cfg, Dependencies{
		Bankroll: bankrollService,
		Access:   accessService,
		Webhooks: processor,
		Checkout: stub,
		Logger:   zap.NewNop(),
		Metrics: http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusOK)
		}),
		Now: clock,
	})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnvironment{server: server, cfg: cfg, access: accessService, checkout: stub}
}

func buildSessionCookie(t *testing.T, cfg Config, userID string, email string) *http.Cookie {
	t.Helper()
	claims := &sessionvalidator.Claims{
		UserID:          userID,
		UserEmail:       email,
		UserDisplayName: "Player",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.SessionIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.SessionSigningKey))
	if err != nil {
		t.Fatalf("token signing failed: %v", err)
	}
	return &http.Cookie{Name: cfg.SessionCookieName, Value: signed}
}

func execRequest(t *testing.T, server *httptest.Server, method, path string, cookie *http.Cookie, payload map[string]any) (int, map[string]any) {
	t.Helper()
	var body io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, server.URL+path, body)
	if err != nil {
		t.Fatalf("request init failed: %v", err)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		request.AddCookie(cookie)
	}
	return doRequest(t, server, request)
}

func mustStatus(t *testing.T, server *httptest.Server, method, path string, cookie *http.Cookie, payload map[string]any, expected int) map[string]any {
	t.Helper()
	status, body := execRequest(t, server, method, path, cookie, payload)
	if status != expected {
		t.Fatalf("%s %s: expected %d, got %d %v", method, path, expected, status, body)
	}
	return body
}

func postWebhook(t *testing.T, env *testEnvironment, body string, signature string) (int, map[string]any) {
	t.Helper()
	request, err := http.NewRequest(http.MethodPost, env.server.URL+"/webhooks/payments", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request init failed: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if signature != "" {
		request.Header.Set(defaultWebhookSignatureHeader, signature)
	}
	return doRequest(t, env.server, request)
}

func doRequest(t *testing.T, server *httptest.Server, request *http.Request) (int, map[string]any) {
	t.Helper()
	response, err := server.Client().Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	raw, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	decoded := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("failed to decode response %q: %v", raw, err)
		}
	}
	return response.StatusCode, decoded
}

func paidEventBody(eventID string, userID string, planID string) string {
	return `{"id":"` + eventID + `","event":"billing.paid","devMode":false,"data":{"billing":{"id":"bill_` + eventID +
		`","status":"PAID","amount":2990,"customer":{"id":"` + userID + `"},"metadata":{"planId":"` + planID + `","userId":"` + userID + `"}}}}`
}

func balance(body map[string]any) string {
	account, ok := body["bankroll"].(map[string]any)
	if !ok {
		return ""
	}
	value, _ := account["currentBalance"].(string)
	return value
}

func errorCode(body map[string]any) string {
	envelope, ok := body["error"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := envelope["code"].(string)
	return code
}

const stubCheckoutURL = "https://pay.example.com/checkout/abc"

type stubCheckout struct {
	mu       sync.Mutex
	requests []checkout.Request
	err      error
}

func (stub *stubCheckout) CreateCheckout(_ context.Context, request checkout.Request) (string, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.err != nil {
		return "", stub.err
	}
	stub.requests = append(stub.requests, request)
	return stubCheckoutURL, nil
}

func (stub *stubCheckout) lastRequest() checkout.Request {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.requests) == 0 {
		return checkout.Request{}
	}
	return stub.requests[len(stub.requests)-1]
}

func (stub *stubCheckout) setErr(err error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.err = err
}
