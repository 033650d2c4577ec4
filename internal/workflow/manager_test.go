package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"fitstogo/internal/config"
	"fitstogo/internal/services"
	"fitstogo/internal/stage"
	"fitstogo/internal/store"
	"fitstogo/internal/testsupport"
	"fitstogo/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubStage struct {
	mu          sync.Mutex
	executeHook func(context.Context, *store.TryOnSession) error
	prepareHook func(context.Context, *store.TryOnSession) error
	prepareErr  error
	executed    []string
}

func (s *stubStage) Prepare(ctx context.Context, session *store.TryOnSession) error {
	if s.prepareHook != nil {
		return s.prepareHook(ctx, session)
	}
	return s.prepareErr
}

func (s *stubStage) Execute(ctx context.Context, session *store.TryOnSession) error {
	s.mu.Lock()
	s.executed = append(s.executed, session.ID)
	s.mu.Unlock()
	if s.executeHook != nil {
		return s.executeHook(ctx, session)
	}
	session.ResultURL = "https://cdn.test/tryon/" + session.ID + ".png"
	return nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("tryon")
}

type recordingObserver struct {
	mu       sync.Mutex
	busy     int
	maxBusy  int
	finished map[store.SessionStatus]int
}

func (o *recordingObserver) WorkerBusy(delta int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy += delta
	o.maxBusy = max(o.maxBusy, o.busy)
}

func (o *recordingObserver) SessionFinished(_ string, status store.SessionStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished == nil {
		o.finished = map[store.SessionStatus]int{}
	}
	o.finished[status]++
}

func queueSession(t *testing.T, st *store.Store) *store.TryOnSession {
	t.Helper()
	product := testsupport.SeedProduct(t, st)
	photo := testsupport.SeedPhoto(t, st, "user-1")
	session := &store.TryOnSession{
		UserID:          "user-1",
		ProductID:       product.ID,
		UserPhotoID:     photo.ID,
		GarmentImageURL: product.ImageURL,
		Provider:        "kie",
	}
	if err := st.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return session
}

func waitForStatus(t *testing.T, st *store.Store, id string, want store.SessionStatus) *store.TryOnSession {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		default:
		}
		session, err := st.GetSession(context.Background(), id)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if session != nil && session.Status == want {
			return session
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func waitForCounters(t *testing.T, mgr *workflow.Manager, processed, failed int64) workflow.StatusSummary {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		status := mgr.Status(context.Background())
		if status.Processed == processed && status.Failed == failed {
			return status
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for counters, got %+v", status)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func startManager(t *testing.T, cfg *config.Config, st *store.Store, handler stage.Handler, opts ...workflow.ManagerOption) *workflow.Manager {
	t.Helper()
	mgr := workflow.NewManager(cfg, st, handler, nil, opts...)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return mgr
}

func TestManagerCompletesSessions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	observer := &recordingObserver{}
	handler := &stubStage{}
	mgr := startManager(t, cfg, st, handler, workflow.WithObserver(observer), workflow.WithWorkers(2))

	first := queueSession(t, st)
	second := queueSession(t, st)
	mgr.Wake()

	done := waitForStatus(t, st, first.ID, store.SessionCompleted)
	if done.ResultURL != "https://cdn.test/tryon/"+first.ID+".png" || done.CompletedAt == nil {
		t.Fatalf("unexpected completed session %+v", done)
	}
	waitForStatus(t, st, second.ID, store.SessionCompleted)

	status := waitForCounters(t, mgr, 2, 0)
	if !status.Running || status.Workers != 2 || status.Processed != 2 || !status.StageHealth.Ready {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.SessionStats[store.SessionCompleted] != 2 {
		t.Fatalf("unexpected stats %+v", status.SessionStats)
	}
	observer.mu.Lock()
	defer observer.mu.Unlock()
	if observer.finished[store.SessionCompleted] != 2 || observer.maxBusy < 1 {
		t.Fatalf("unexpected observer state %+v", observer)
	}
}

func TestManagerRecordsFailureMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	handler := &stubStage{executeHook: func(context.Context, *store.TryOnSession) error {
		return services.NewUserError(services.ErrTimeout, "Task timed out after maximum polling attempts")
	}}
	mgr := startManager(t, cfg, st, handler)

	session := queueSession(t, st)
	mgr.Wake()

	failed := waitForStatus(t, st, session.ID, store.SessionFailed)
	if failed.ErrorMsg != "Task timed out after maximum polling attempts" || failed.CompletedAt == nil {
		t.Fatalf("unexpected failed session %+v", failed)
	}
	status := waitForCounters(t, mgr, 0, 1)
	if status.Failed != 1 || status.LastError == "" || status.LastSessionID != session.ID {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestManagerPrepareFailureFailsSession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	handler := &stubStage{prepareErr: errors.New("")}
	mgr := startManager(t, cfg, st, handler)

	session := queueSession(t, st)
	mgr.Wake()

	failed := waitForStatus(t, st, session.ID, store.SessionFailed)
	if failed.ErrorMsg != "Processing failed" {
		t.Fatalf("expected default failure message, got %q", failed.ErrorMsg)
	}
	if len(handler.executed) != 0 {
		t.Fatal("execute must not run after prepare failure")
	}
}

func TestManagerStopInterruptsAndLeavesSessionReclaimable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	started := make(chan struct{})
	handler := &stubStage{executeHook: func(ctx context.Context, _ *store.TryOnSession) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	mgr := workflow.NewManager(cfg, st, handler, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	session := queueSession(t, st)
	mgr.Wake()
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("handler never started")
	}
	mgr.Stop()

	got, err := st.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != store.SessionProcessing {
		t.Fatalf("interrupted session should stay PROCESSING for reclaim, got %s", got.Status)
	}
	if mgr.Status(context.Background()).Running {
		t.Fatal("manager should report stopped")
	}
}

func TestManagerStopDuringPrepareLeavesSessionReclaimable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	started := make(chan struct{})
	handler := &stubStage{prepareHook: func(ctx context.Context, session *store.TryOnSession) error {
		close(started)
		<-ctx.Done()
		return services.Wrap(services.ErrTransient, "tryon", "load product", session.ProductID, ctx.Err())
	}}
	mgr := workflow.NewManager(cfg, st, handler, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	session := queueSession(t, st)
	mgr.Wake()
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("prepare never started")
	}
	mgr.Stop()

	got, err := st.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != store.SessionProcessing || got.ErrorMsg != "" {
		t.Fatalf("session interrupted in prepare must stay PROCESSING, got %s %q", got.Status, got.ErrorMsg)
	}
	if status := mgr.Status(context.Background()); status.Failed != 0 {
		t.Fatalf("shutdown must not count as a failure, got %+v", status)
	}
}

func TestManagerStartRequiresHandler(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, st, nil, nil)
	if err := mgr.Start(context.Background()); err == nil {
		mgr.Stop()
		t.Fatal("expected error without handler")
	}

	running := workflow.NewManager(cfg, st, &stubStage{}, nil)
	if err := running.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer running.Stop()
	if err := running.Start(context.Background()); err == nil {
		t.Fatal("expected error on double start")
	}
}
