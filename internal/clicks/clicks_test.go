package clicks_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"fitstogo/internal/clicks"
	"fitstogo/internal/store"
	"fitstogo/internal/testsupport"
)

func TestRedirectRecordsClick(t *testing.T) {
	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	product := testsupport.SeedProduct(t, st, testsupport.WithPlatform(store.PlatformLazada))

	var observed []store.Platform
	svc := clicks.NewService(st, nil, clicks.WithObserver(func(p store.Platform) { observed = append(observed, p) }))

	target, found, err := svc.Redirect(ctx, clicks.Visit{ProductID: product.ID, UserID: "user-1", IP: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("Redirect: %v", err)
	}
	if !found || target != product.AffiliateURL {
		t.Fatalf("Redirect = %q, %v; want %q", target, found, product.AffiliateURL)
	}
	if _, _, err := svc.Redirect(ctx, clicks.Visit{ProductID: product.ID, IP: "unknown"}); err != nil {
		t.Fatalf("anonymous Redirect: %v", err)
	}
	if len(observed) != 2 || observed[0] != store.PlatformLazada {
		t.Fatalf("observer saw %v", observed)
	}

	stats, err := svc.Stats(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[store.PlatformLazada] != 2 || stats[store.PlatformShopee] != 0 {
		t.Fatalf("unexpected stats: %v", stats)
	}
	future, err := svc.Stats(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(future) != 0 {
		t.Fatalf("expected no clicks after now, got %v", future)
	}
}

func TestRedirectMissingProduct(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	svc := clicks.NewService(st, nil)

	target, found, err := svc.Redirect(context.Background(), clicks.Visit{ProductID: "missing"})
	if err != nil {
		t.Fatalf("Redirect: %v", err)
	}
	if found || target != "" {
		t.Fatalf("expected not found, got %q", target)
	}
	stats, err := svc.Stats(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 0 {
		t.Fatalf("missing product must not record a click: %v", stats)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1", "X-Real-IP": "10.0.0.2"}, "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"empty forwarded", map[string]string{"X-Forwarded-For": " , 10.0.0.1"}, "unknown"},
		{"none", nil, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			for k, v := range tt.header {
				header.Set(k, v)
			}
			if got := clicks.ClientIP(header); got != tt.want {
				t.Fatalf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
