package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"fitstogo/internal/api"
	"fitstogo/internal/auth"
	"fitstogo/internal/billing"
	"fitstogo/internal/catalog"
	"fitstogo/internal/clicks"
	"fitstogo/internal/config"
	"fitstogo/internal/metrics"
	"fitstogo/internal/objectstore"
	"fitstogo/internal/photos"
	"fitstogo/internal/store"
	"fitstogo/internal/testsupport"
	"fitstogo/internal/tryon"
	"fitstogo/internal/workflow"
)

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryObjects) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return "https://cdn.test/fitstogo/" + key, nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjects) KeyFromURL(raw string) string {
	return strings.TrimPrefix(raw, "https://cdn.test/fitstogo/")
}

type staticStatus struct{}

func (staticStatus) Status(context.Context) workflow.StatusSummary {
	return workflow.StatusSummary{Running: true, Workers: 2}
}

type countingWaker struct {
	mu    sync.Mutex
	wakes int
}

func (w *countingWaker) Wake() {
	w.mu.Lock()
	w.wakes++
	w.mu.Unlock()
}

type testEnv struct {
	cfg     *config.Config
	store   *store.Store
	handler http.Handler
	metrics *metrics.Metrics
	waker   *countingWaker
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.TryOn.RequestRate = 100
	cfg.TryOn.RequestBurst = 100
	for _, fn := range mutate {
		fn(cfg)
	}
	st := testsupport.MustOpenStore(t, cfg)
	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	m := metrics.New()
	waker := &countingWaker{}
	server, err := api.New(api.Deps{
		Config:   cfg,
		Store:    st,
		Verifier: verifier,
		Catalog:  catalog.NewService(st, nil, time.Minute, time.Minute, nil),
		Photos:   photos.NewService(st, &memoryObjects{}, objectstore.PhotoKey, nil),
		TryOn:    tryon.NewService(st, tryon.ProviderKie, waker, nil),
		Billing:  billing.NewService(cfg, st, nil),
		Clicks:   clicks.NewService(st, nil, clicks.WithObserver(m.Click)),
		Metrics:  m,
		Workflow: staticStatus{},
	})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return &testEnv{cfg: cfg, store: st, handler: server, metrics: m, waker: waker}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	return testsupport.MintToken(t, e.cfg, userID, userID+"@example.com")
}

func (e *testEnv) do(t *testing.T, method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, target, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	return e.do(t, method, target, token, body, "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	got := decode[map[string]string](t, rec)
	if got["error"] != message {
		t.Fatalf("error = %q, want %q", got["error"], message)
	}
}

func photoUpload(t *testing.T, contentType string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="me.jpg"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	_, _ = part.Write([]byte("\xff\xd8\xff fake jpeg"))
	if err := mw.WriteField("photoType", "upper_body"); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health: %v", body)
	}
	wf, ok := body["workflow"].(map[string]any)
	if !ok || wf["running"] != true {
		t.Fatalf("workflow status missing: %v", body)
	}
}

func TestCatalogRoutes(t *testing.T) {
	env := newTestEnv(t)
	product := testsupport.SeedProduct(t, env.store, testsupport.WithTitle("Denim Jacket"), testsupport.WithPrice(990))
	testsupport.SeedProduct(t, env.store, testsupport.WithTitle("Silk Dress"), testsupport.WithPrice(1500))

	rec := env.do(t, http.MethodGet, "/api/products?search=denim&limit=abc", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body.String())
	}
	page := decode[catalog.Page](t, rec)
	if page.Total != 1 || page.Limit != 20 || len(page.Data) != 1 || page.Data[0].ID != product.ID {
		t.Fatalf("unexpected page: %+v", page)
	}

	rec = env.do(t, http.MethodGet, "/api/products?platform=ebay", "", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown platform status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/products/"+product.ID, "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decode[store.Product](t, rec); got.Title != "Denim Jacket" || len(got.Sizes) != 2 {
		t.Fatalf("unexpected product: %+v", got)
	}

	expectError(t, env.do(t, http.MethodGet, "/api/products/missing", "", nil, ""), http.StatusNotFound, "Product not found")

	if rec := env.do(t, http.MethodGet, "/api/categories", "", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("categories status = %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	for _, target := range []string{"/api/photos", "/api/tryon", "/api/subscription"} {
		expectError(t, env.do(t, http.MethodGet, target, "", nil, ""), http.StatusUnauthorized, "Unauthorized")
		expectError(t, env.do(t, http.MethodGet, target, "garbage", nil, ""), http.StatusUnauthorized, "Unauthorized")
	}

	rec := env.do(t, http.MethodGet, "/api/photos", env.token(t, "u1"), nil, "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("photos = %d %s", rec.Code, rec.Body.String())
	}
	user, err := env.store.GetUser(context.Background(), "u1")
	if err != nil || user == nil || user.Email != "u1@example.com" {
		t.Fatalf("verified user not recorded: %+v %v", user, err)
	}
}

func TestPhotoLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "u1")

	body, contentType := photoUpload(t, "image/jpeg")
	rec := env.do(t, http.MethodPost, "/api/photos", token, body, contentType)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	photo := decode[store.UserPhoto](t, rec)
	if !photo.IsDefault || photo.PhotoType != store.PhotoUpperBody {
		t.Fatalf("unexpected photo: %+v", photo)
	}

	body, contentType = photoUpload(t, "image/jpeg")
	expectError(t, env.do(t, http.MethodPost, "/api/photos", token, body, contentType),
		http.StatusBadRequest, "Photo limit reached. Maximum 1 photos allowed.")

	expectError(t, env.do(t, http.MethodPost, "/api/photos", token, strings.NewReader(""), "multipart/form-data; boundary=x"),
		http.StatusBadRequest, "No file provided")

	rec = env.doJSON(t, http.MethodPatch, "/api/photos/"+photo.ID, token, map[string]bool{"isDefault": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body.String())
	}

	expectError(t, env.do(t, http.MethodDelete, "/api/photos/"+photo.ID, env.token(t, "u2"), nil, ""), http.StatusNotFound, "Photo not found")

	rec = env.do(t, http.MethodDelete, "/api/photos/"+photo.ID, token, nil, "")
	if rec.Code != http.StatusOK || decode[map[string]bool](t, rec)["success"] != true {
		t.Fatalf("delete = %d %s", rec.Code, rec.Body.String())
	}
}

func TestTryOnRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "u1")
	product := testsupport.SeedProduct(t, env.store)
	photo := testsupport.SeedPhoto(t, env.store, "u1")

	expectError(t, env.doJSON(t, http.MethodPost, "/api/tryon", token, map[string]string{"productId": product.ID}),
		http.StatusBadRequest, "Product ID and photo ID are required")

	req := map[string]any{"productId": product.ID, "userPhotoId": photo.ID}
	rec := env.doJSON(t, http.MethodPost, "/api/tryon", token, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	session := decode[store.TryOnSession](t, rec)
	if session.Status != store.SessionPending || session.Product == nil || session.Product.ID != product.ID {
		t.Fatalf("unexpected session: %+v", session)
	}

	rec = env.doJSON(t, http.MethodPost, "/api/tryon", token, req)
	if rec.Code != http.StatusOK || decode[store.TryOnSession](t, rec).ID != session.ID {
		t.Fatalf("duplicate request should return the active session: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/tryon", token, nil, "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("list without history flag = %s", rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/api/tryon?history=true", token, nil, "")
	if history := decode[[]store.TryOnSession](t, rec); len(history) != 1 {
		t.Fatalf("history = %s", rec.Body.String())
	}

	if rec := env.do(t, http.MethodGet, "/api/tryon/"+session.ID, token, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/tryon/"+session.ID, env.token(t, "u2"), nil, ""),
		http.StatusNotFound, "Session not found")

	env.waker.mu.Lock()
	defer env.waker.mu.Unlock()
	if env.waker.wakes != 1 {
		t.Fatalf("expected one worker wake, got %d", env.waker.wakes)
	}
}

func TestTryOnRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.TryOn.RequestRate = 0.001
		cfg.TryOn.RequestBurst = 1
	})
	token := env.token(t, "u1")
	payload := map[string]string{"productId": "p", "userPhotoId": "ph"}

	if rec := env.doJSON(t, http.MethodPost, "/api/tryon", token, payload); rec.Code == http.StatusTooManyRequests {
		t.Fatalf("first request must not be limited")
	}
	rec := env.doJSON(t, http.MethodPost, "/api/tryon", token, payload)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec := env.doJSON(t, http.MethodPost, "/api/tryon", env.token(t, "u2"), payload); rec.Code == http.StatusTooManyRequests {
		t.Fatalf("limits must be per user")
	}
}

func TestRedirect(t *testing.T) {
	env := newTestEnv(t)
	product := testsupport.SeedProduct(t, env.store)

	req := httptest.NewRequest(http.MethodGet, "/api/redirect/"+product.ID, nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("Authorization", "Bearer "+env.token(t, "u1"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != product.AffiliateURL {
		t.Fatalf("redirect = %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = env.do(t, http.MethodGet, "/api/redirect/missing", "", nil, "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != env.cfg.Paths.AppURL+"/products" {
		t.Fatalf("missing redirect = %d %q", rec.Code, rec.Header().Get("Location"))
	}

	stats, err := env.store.ClickStats(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ClickStats: %v", err)
	}
	if stats[product.Platform] != 1 {
		t.Fatalf("expected one click, got %v", stats)
	}

	metricsRec := env.do(t, http.MethodGet, "/metrics", "", nil, "")
	want := fmt.Sprintf(`fitstogo_clicks_total{platform="%s"} 1`, product.Platform)
	if !strings.Contains(metricsRec.Body.String(), want) {
		t.Fatalf("metrics missing %s", want)
	}
	if !strings.Contains(metricsRec.Body.String(), `route="/api/redirect/:productId"`) {
		t.Fatalf("http metrics must use route patterns")
	}
}

func TestRedirectFallsBackWhenClickFails(t *testing.T) {
	env := newTestEnv(t)
	product := testsupport.SeedProduct(t, env.store)
	if err := env.store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/redirect/"+product.ID, "", nil, "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != env.cfg.Paths.AppURL+"/products" {
		t.Fatalf("redirect after store failure = %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestSubscriptionRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "u1")

	rec := env.do(t, http.MethodGet, "/api/subscription", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if sub := decode[store.Subscription](t, rec); sub.PlanType != store.PlanFree || sub.Status != store.SubscriptionActive {
		t.Fatalf("unexpected subscription: %+v", sub)
	}

	expectError(t, env.doJSON(t, http.MethodPost, "/api/subscription/checkout", token, map[string]string{"plan": "GOLD"}),
		http.StatusBadRequest, "Invalid plan")
	expectError(t, env.doJSON(t, http.MethodPost, "/api/subscription/checkout", token, map[string]string{"plan": "BASIC"}),
		http.StatusBadRequest, "Plan not available")

	expectError(t, env.do(t, http.MethodPost, "/api/webhooks/stripe", "", strings.NewReader("{}"), "application/json"),
		http.StatusBadRequest, "No signature")
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader("{}"))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusBadRequest, "Invalid signature")
}
