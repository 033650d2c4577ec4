package tryon_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fitstogo/internal/services"
	"fitstogo/internal/services/kieai"
	"fitstogo/internal/store"
	"fitstogo/internal/testsupport"
	"fitstogo/internal/tryon"
)

type countingWaker struct{ n int }

func (w *countingWaker) Wake() { w.n++ }

func newService(t *testing.T) (*tryon.Service, *store.Store, *countingWaker) {
	t.Helper()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	waker := &countingWaker{}
	return tryon.NewService(st, tryon.ProviderKie, waker, nil), st, waker
}

func TestCreateQueuesSessionWithDefaults(t *testing.T) {
	svc, st, waker := newService(t)
	ctx := context.Background()
	product := testsupport.SeedProduct(t, st)
	photo := testsupport.SeedPhoto(t, st, "user-1")

	session, created, err := svc.Create(ctx, "user-1", tryon.CreateInput{
		ProductID:   product.ID,
		UserPhotoID: photo.ID,
		Mask:        &kieai.Mask{X: 10, Y: 20, Width: 30, Height: 40},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created || session.Status != store.SessionPending {
		t.Fatalf("unexpected session %+v created=%v", session, created)
	}
	if session.GarmentImageURL != product.ImageURL {
		t.Fatalf("garment url = %q, want product image", session.GarmentImageURL)
	}
	if session.Product == nil || session.Product.Title != product.Title || session.UserPhoto == nil {
		t.Fatalf("expected product summary and photo, got %+v", session)
	}
	if waker.n != 1 {
		t.Fatalf("expected one wake, got %d", waker.n)
	}
	stored, err := st.GetSession(ctx, session.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.MaskJSON == "" || stored.Provider != tryon.ProviderKie {
		t.Fatalf("expected mask and provider persisted, got %+v", stored)
	}
}

func TestCreateDeduplicatesActiveSession(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	product := testsupport.SeedProduct(t, st)
	photo := testsupport.SeedPhoto(t, st, "user-1")
	in := tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID}

	first, _, err := svc.Create(ctx, "user-1", in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, created, err := svc.Create(ctx, "user-1", in)
	if err != nil {
		t.Fatalf("Create duplicate: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected existing session %s, got %s created=%v", first.ID, second.ID, created)
	}
	other, created, err := svc.Create(ctx, "user-1", tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID, GarmentImageURL: "https://cdn.example/alt.jpg"})
	if err != nil || !created || other.ID == first.ID {
		t.Fatalf("different garment should create a new session: %v %v", err, created)
	}
}

func TestCreateEnforcesMonthlyQuota(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	photo := testsupport.SeedPhoto(t, st, "user-1")

	for i := 0; i < 5; i++ {
		product := testsupport.SeedProduct(t, st)
		if _, _, err := svc.Create(ctx, "user-1", tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID}); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	product := testsupport.SeedProduct(t, st)
	_, _, err := svc.Create(ctx, "user-1", tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID})
	if !errors.Is(err, services.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if got := services.Message(err); got != "Monthly try-on limit reached. Maximum 5 try-ons." {
		t.Fatalf("message = %q", got)
	}

	if err := st.ActivateSubscription(ctx, "user-1", "sub_1", store.PlanPremium); err != nil {
		t.Fatalf("ActivateSubscription: %v", err)
	}
	if _, _, err := svc.Create(ctx, "user-1", tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID}); err != nil {
		t.Fatalf("premium user should be unlimited: %v", err)
	}
}

func TestQuotaSurvivesPhotoDeletion(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	photo := testsupport.SeedPhoto(t, st, "user-1")
	for i := 0; i < 5; i++ {
		product := testsupport.SeedProduct(t, st)
		if _, _, err := svc.Create(ctx, "user-1", tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID}); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	if removed, err := st.DeletePhoto(ctx, "user-1", photo.ID); err != nil || !removed {
		t.Fatalf("DeletePhoto: %v %v", removed, err)
	}
	fresh := testsupport.SeedPhoto(t, st, "user-1")
	product := testsupport.SeedProduct(t, st)
	_, created, err := svc.Create(ctx, "user-1", tryon.CreateInput{ProductID: product.ID, UserPhotoID: fresh.ID})
	if created || !errors.Is(err, services.ErrQuotaExceeded) {
		t.Fatalf("expected quota error after replacing the photo, got created=%v err=%v", created, err)
	}

	history, err := svc.History(ctx, "user-1")
	if err != nil || len(history) != 5 {
		t.Fatalf("history after photo delete: %d %v", len(history), err)
	}
}

func TestCreateConcurrentDuplicatesShareSession(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	product := testsupport.SeedProduct(t, st)
	photo := testsupport.SeedPhoto(t, st, "user-1")
	in := tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID}

	const callers = 6
	ids := make([]string, callers)
	createdCount := 0
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, created, err := svc.Create(ctx, "user-1", in)
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[i] = session.ID
			if created {
				createdCount++
			}
		}()
	}
	wg.Wait()

	if createdCount != 1 {
		t.Fatalf("expected exactly one new session, got %d", createdCount)
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("callers got different sessions: %v", ids)
		}
	}
	if used, _ := st.CountUsageSince(ctx, "user-1", time.Now().Add(-time.Hour)); used != 1 {
		t.Fatalf("usage = %d, want 1", used)
	}
}

func TestHistoryHonorsPlanWindow(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	product := testsupport.SeedProduct(t, st)
	for _, user := range []string{"free-user", "premium-user"} {
		photo := testsupport.SeedPhoto(t, st, user)
		if _, _, err := svc.Create(ctx, user, tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID}); err != nil {
			t.Fatalf("Create %s: %v", user, err)
		}
	}
	if err := st.ActivateSubscription(ctx, "premium-user", "sub_1", store.PlanPremium); err != nil {
		t.Fatalf("ActivateSubscription: %v", err)
	}

	later := tryon.NewService(st, tryon.ProviderKie, nil, nil, tryon.WithClock(func() time.Time {
		return time.Now().AddDate(0, 0, 8)
	}))
	if history, err := later.History(ctx, "free-user"); err != nil || len(history) != 0 {
		t.Fatalf("free history outside 7 days: %d %v", len(history), err)
	}
	if history, err := later.History(ctx, "premium-user"); err != nil || len(history) != 1 {
		t.Fatalf("premium history is kept forever: %d %v", len(history), err)
	}
}

func TestCreateRejectsInactiveProduct(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	product := testsupport.SeedProduct(t, st, testsupport.WithPlatform(store.PlatformLazada))
	photo := testsupport.SeedPhoto(t, st, "user-1")
	if _, err := st.DeactivateProductsByPlatform(ctx, store.PlatformLazada); err != nil {
		t.Fatalf("DeactivateProductsByPlatform: %v", err)
	}
	_, _, err := svc.Create(ctx, "user-1", tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID})
	if !errors.Is(err, services.ErrNotFound) || services.Message(err) != "Product not found" {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	product := testsupport.SeedProduct(t, st)
	photo := testsupport.SeedPhoto(t, st, "owner")

	tests := []struct {
		name   string
		userID string
		in     tryon.CreateInput
		marker error
		msg    string
	}{
		{"missing ids", "owner", tryon.CreateInput{ProductID: product.ID}, services.ErrValidation, "Product ID and photo ID are required"},
		{"bad mask", "owner", tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID, Mask: &kieai.Mask{X: 120}}, services.ErrValidation, "Mask values must be percentages between 0 and 100"},
		{"unknown product", "owner", tryon.CreateInput{ProductID: "nope", UserPhotoID: photo.ID}, services.ErrNotFound, "Product not found"},
		{"foreign photo", "intruder", tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID}, services.ErrNotFound, "Photo not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Create(ctx, tc.userID, tc.in)
			if !errors.Is(err, tc.marker) || services.Message(err) != tc.msg {
				t.Fatalf("got %v, want %q", err, tc.msg)
			}
		})
	}
}

func TestHistoryAndGetAreOwnerScoped(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	product := testsupport.SeedProduct(t, st, testsupport.WithTitle("Denim Jacket"))
	photo := testsupport.SeedPhoto(t, st, "owner")
	session, _, err := svc.Create(ctx, "owner", tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	history, err := svc.History(ctx, "owner")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Product == nil || history[0].Product.Title != "Denim Jacket" {
		t.Fatalf("unexpected history %+v", history)
	}
	if other, _ := svc.History(ctx, "intruder"); len(other) != 0 {
		t.Fatalf("intruder history = %+v", other)
	}

	got, err := svc.Get(ctx, "owner", session.ID)
	if err != nil || got.UserPhoto == nil || got.UserPhoto.ID != photo.ID {
		t.Fatalf("Get: %+v %v", got, err)
	}
	if _, err := svc.Get(ctx, "intruder", session.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for intruder, got %v", err)
	}
}

func TestRetryOnlyFailedSessions(t *testing.T) {
	svc, st, waker := newService(t)
	ctx := context.Background()
	product := testsupport.SeedProduct(t, st)
	photo := testsupport.SeedPhoto(t, st, "owner")
	session, _, _ := svc.Create(ctx, "owner", tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID})

	if err := svc.Retry(ctx, session.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("pending session retry should fail validation, got %v", err)
	}
	if err := st.FailSession(ctx, session.ID, "boom"); err != nil {
		t.Fatalf("FailSession: %v", err)
	}
	if err := svc.Retry(ctx, session.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	got, _ := st.GetSession(ctx, session.ID)
	if got.Status != store.SessionPending || got.ErrorMsg != "" {
		t.Fatalf("unexpected session after retry %+v", got)
	}
	if waker.n != 2 {
		t.Fatalf("expected wake on create and retry, got %d", waker.n)
	}
	if err := svc.Retry(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInferProductType(t *testing.T) {
	tests := map[string]string{
		"Floral Maxi Dress":    "dress",
		"Evening GOWN":         "dress",
		"Wool Blazer":          "outerwear",
		"Knit Cardigan":        "outerwear",
		"Slim Jeans":           "bottom",
		"Pleated Skirt":        "bottom",
		"Oversized Cotton Tee": "top",
		"":                     "top",
	}
	for title, want := range tests {
		if got := tryon.InferProductType(title); got != want {
			t.Fatalf("InferProductType(%q) = %q, want %q", title, got, want)
		}
	}
}
