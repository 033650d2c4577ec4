package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"fitstogo/internal/metrics"
	"fitstogo/internal/store"
)

func TestCollectorsRecord(t *testing.T) {
	m := metrics.New()

	m.ObserveHTTP("get", "/api/products", 200, 20*time.Millisecond)
	m.ObserveHTTP("GET", "/api/products", 200, 10*time.Millisecond)
	m.ObserveHTTP("POST", "", 404, time.Millisecond)
	m.WorkerBusy(1)
	m.WorkerBusy(1)
	m.WorkerBusy(-1)
	m.SessionFinished("kie", store.SessionCompleted, 30*time.Second)
	m.SessionFinished("", store.SessionFailed, time.Second)
	m.SyncFinished(store.PlatformShopee, store.SyncCompleted, 12)
	m.Click(store.PlatformLazada)
	m.CacheResult("hit")
	m.BillingEvent("checkout.session.completed")

	tests := []struct {
		name   string
		metric string
	}{
		{"http", "fitstogo_http_requests_total"},
		{"sessions", "fitstogo_tryon_sessions_total"},
		{"sync", "fitstogo_affiliate_sync_products_total"},
		{"clicks", "fitstogo_clicks_total"},
		{"cache", "fitstogo_cache_requests_total"},
		{"billing", "fitstogo_billing_events_total"},
		{"busy", "fitstogo_workflow_workers_busy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testutil.GatherAndCount(m.Registry(), tt.metric)
			if err != nil {
				t.Fatalf("GatherAndCount: %v", err)
			}
			if got == 0 {
				t.Fatalf("%s not exported", tt.metric)
			}
		})
	}

	expected := `
# HELP fitstogo_http_requests_total Total HTTP requests handled.
# TYPE fitstogo_http_requests_total counter
fitstogo_http_requests_total{method="GET",route="/api/products",status="200"} 2
fitstogo_http_requests_total{method="POST",route="unmatched",status="404"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "fitstogo_http_requests_total"); err != nil {
		t.Fatalf("http counter mismatch: %v", err)
	}
	busy := `
# HELP fitstogo_workflow_workers_busy Workers currently processing a try-on session.
# TYPE fitstogo_workflow_workers_busy gauge
fitstogo_workflow_workers_busy 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(busy), "fitstogo_workflow_workers_busy"); err != nil {
		t.Fatalf("busy gauge mismatch: %v", err)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	m := metrics.New()
	m.Click(store.PlatformShopee)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(string(body), `fitstogo_clicks_total{platform="SHOPEE"} 1`) {
		t.Fatalf("clicks counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("go collector missing")
	}
}
