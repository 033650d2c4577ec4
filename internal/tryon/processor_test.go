package tryon_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"fitstogo/internal/services"
	"fitstogo/internal/services/gemini"
	"fitstogo/internal/services/kieai"
	"fitstogo/internal/store"
	"fitstogo/internal/testsupport"
	"fitstogo/internal/tryon"
)

type fakeDescriber struct {
	description string
	err         error
	urls        []string
}

func (f *fakeDescriber) Configured() bool { return true }

func (f *fakeDescriber) Describe(_ context.Context, imageURL string) (string, error) {
	f.urls = append(f.urls, imageURL)
	return f.description, f.err
}

type fakeTasks struct {
	mu      sync.Mutex
	created int
	prompts []string
	images  [][2]string
	polled  []string
	result  string
	pollErr error
}

func (f *fakeTasks) Configured() bool { return true }

func (f *fakeTasks) CreateTask(_ context.Context, personURL, garmentURL, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.prompts = append(f.prompts, prompt)
	f.images = append(f.images, [2]string{personURL, garmentURL})
	return "task-1", nil
}

func (f *fakeTasks) Poll(_ context.Context, taskID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polled = append(f.polled, taskID)
	return f.result, f.pollErr
}

type fakeImages struct {
	prompt string
	person gemini.Image
}

func (f *fakeImages) Configured() bool { return true }

func (f *fakeImages) Generate(_ context.Context, person, _ gemini.Image, prompt string) ([]byte, string, error) {
	f.person = person
	f.prompt = prompt
	return []byte("generated"), "image/png", nil
}

type fakeResults struct {
	uploads map[string]string
	fetched []string
}

func (f *fakeResults) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	data, _ := io.ReadAll(body)
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	f.uploads[key] = string(data)
	return "https://cdn.test/fitstogo/" + key, nil
}

func (f *fakeResults) Fetch(_ context.Context, rawURL string) ([]byte, string, error) {
	f.fetched = append(f.fetched, rawURL)
	return []byte("src"), "image/jpeg", nil
}

func claimSession(t *testing.T, st *store.Store, provider string, title string, mask *kieai.Mask) *store.TryOnSession {
	t.Helper()
	ctx := context.Background()
	svc := tryon.NewService(st, provider, nil, nil)
	product := testsupport.SeedProduct(t, st, testsupport.WithTitle(title))
	photo := testsupport.SeedPhoto(t, st, "user-1")
	if _, _, err := svc.Create(ctx, "user-1", tryon.CreateInput{ProductID: product.ID, UserPhotoID: photo.ID, Mask: mask}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	session, err := st.ClaimNextPending(ctx)
	if err != nil || session == nil {
		t.Fatalf("ClaimNextPending: %v %v", session, err)
	}
	return session
}

func TestProcessorKieWithDescription(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	describer := &fakeDescriber{description: "A red linen shirt."}
	tasks := &fakeTasks{result: "https://kie.example/result.png"}
	proc := tryon.NewProcessor(st, "http://fitstogo.test", tryon.ProviderKie, true,
		tryon.ProcessorDeps{Describer: describer, Tasks: tasks}, nil)

	session := claimSession(t, st, tryon.ProviderKie, "Linen Shirt", &kieai.Mask{X: 10, Y: 20, Width: 30, Height: 40})
	if err := proc.Prepare(ctx, session); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := proc.Execute(ctx, session); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if session.ResultURL != "https://kie.example/result.png" {
		t.Fatalf("result url = %q", session.ResultURL)
	}
	if len(tasks.prompts) != 1 || !strings.Contains(tasks.prompts[0], "The garment is: A red linen shirt.") ||
		!strings.Contains(tasks.prompts[0], "10% from left, 20% from top") {
		t.Fatalf("unexpected prompt %q", tasks.prompts)
	}
	if tasks.images[0][0] != session.UserPhoto.PhotoURL || tasks.images[0][1] != session.GarmentImageURL {
		t.Fatalf("expected person then garment, got %v", tasks.images[0])
	}

	stored, _ := st.GetSession(ctx, session.ID)
	if stored.Description != "A red linen shirt." || stored.ProviderTaskID != "task-1" || stored.ProgressStage != store.StagePolling {
		t.Fatalf("expected description, task and stage persisted, got %+v", stored)
	}
}

func TestProcessorResumesPersistedTask(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	tasks := &fakeTasks{result: "https://kie.example/resumed.png"}
	proc := tryon.NewProcessor(st, "http://fitstogo.test", tryon.ProviderKie, false, tryon.ProcessorDeps{Tasks: tasks}, nil)

	session := claimSession(t, st, tryon.ProviderKie, "Shirt", nil)
	session.ProviderTaskID = "task-existing"
	if err := proc.Execute(ctx, session); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if tasks.created != 0 || len(tasks.polled) != 1 || tasks.polled[0] != "task-existing" {
		t.Fatalf("expected resume without create, created=%d polled=%v", tasks.created, tasks.polled)
	}
}

func TestProcessorDescriptionFailureContinues(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	tasks := &fakeTasks{result: "https://kie.example/r.png"}
	proc := tryon.NewProcessor(st, "http://fitstogo.test", tryon.ProviderKie, true,
		tryon.ProcessorDeps{Describer: &fakeDescriber{err: errors.New("glm down")}, Tasks: tasks}, nil)

	session := claimSession(t, st, tryon.ProviderKie, "Shirt", nil)
	if err := proc.Execute(context.Background(), session); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Contains(tasks.prompts[0], "The garment is:") {
		t.Fatalf("prompt should omit description, got %q", tasks.prompts[0])
	}
}

func TestProcessorPropagatesProviderFailure(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	tasks := &fakeTasks{pollErr: services.NewUserError(services.ErrExternalTool, "content policy")}
	proc := tryon.NewProcessor(st, "http://fitstogo.test", tryon.ProviderKie, false, tryon.ProcessorDeps{Tasks: tasks}, nil)

	session := claimSession(t, st, tryon.ProviderKie, "Shirt", nil)
	err := proc.Execute(context.Background(), session)
	if services.Message(err) != "content policy" {
		t.Fatalf("expected provider message, got %v", err)
	}
}

func TestProcessorGeminiUploadsResult(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	images := &fakeImages{}
	results := &fakeResults{}
	describer := &fakeDescriber{description: "A navy satin midi dress."}
	proc := tryon.NewProcessor(st, "http://fitstogo.test", tryon.ProviderGemini, true,
		tryon.ProcessorDeps{Describer: describer, Images: images, Results: results}, nil)

	session := claimSession(t, st, tryon.ProviderGemini, "Midi Dress", &kieai.Mask{X: 10, Y: 20, Width: 30, Height: 40})
	if err := proc.Execute(context.Background(), session); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if images.person.MIMEType != "image/jpeg" {
		t.Fatalf("unexpected generate call %+v", images)
	}
	for _, want := range []string{"wears the dress garment", "A navy satin midi dress.", "10% from left, 20% from top"} {
		if !strings.Contains(images.prompt, want) {
			t.Fatalf("gemini prompt %q missing %q", images.prompt, want)
		}
	}
	key := "tryon/" + session.ID + ".png"
	if results.uploads[key] != "generated" {
		t.Fatalf("expected upload at %s, got %v", key, results.uploads)
	}
	if session.ResultURL != "https://cdn.test/fitstogo/"+key {
		t.Fatalf("result url = %q", session.ResultURL)
	}
	if len(results.fetched) != 2 {
		t.Fatalf("expected person and garment fetched, got %v", results.fetched)
	}
}

func TestProcessorHealth(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if h := tryon.NewProcessor(st, "", tryon.ProviderKie, false, tryon.ProcessorDeps{}, nil).HealthCheck(ctx); h.Ready {
		t.Fatal("kie without client should be unhealthy")
	}
	if h := tryon.NewProcessor(st, "", tryon.ProviderGemini, false, tryon.ProcessorDeps{Images: &fakeImages{}}, nil).HealthCheck(ctx); h.Ready || h.Detail != "object storage not configured" {
		t.Fatalf("unexpected gemini health %+v", h)
	}
	if h := tryon.NewProcessor(st, "", tryon.ProviderKie, false, tryon.ProcessorDeps{Tasks: &fakeTasks{}}, nil).HealthCheck(ctx); !h.Ready {
		t.Fatalf("unexpected health %+v", h)
	}
}
