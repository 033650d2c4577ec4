package gemini

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"google.golang.org/genai"

	"fitstogo/internal/config"
	"fitstogo/internal/services"
)

type fakeModels struct {
	resp     *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	return f.resp, f.err
}

func TestGenerateReturnsInlineImage(t *testing.T) {
	fake := &fakeModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here you go"},
				{InlineData: &genai.Blob{Data: []byte("png-bytes"), MIMEType: "image/png"}},
			}},
		}},
	}}
	client := NewClient(config.Gemini{Model: "gemini-test"})
	client.models = fake

	data, mime, err := client.Generate(context.Background(),
		Image{Data: []byte("person"), MIMEType: "image/jpeg"},
		Image{Data: []byte("garment")}, Prompt("dress", "", ""))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(data) != "png-bytes" || mime != "image/png" {
		t.Fatalf("unexpected output %q %q", data, mime)
	}
	if fake.model != "gemini-test" {
		t.Fatalf("unexpected model %q", fake.model)
	}
	parts := fake.contents[0].Parts
	if len(parts) != 3 || parts[0].InlineData.MIMEType != "image/jpeg" || parts[1].InlineData.MIMEType != "image/png" {
		t.Fatalf("unexpected parts %+v", parts)
	}
	if parts[2].Text != Prompt("dress", "", "") {
		t.Fatalf("unexpected prompt %q", parts[2].Text)
	}
}

func TestGenerateWithoutImageFails(t *testing.T) {
	client := NewClient(config.Gemini{Model: "m"})
	client.models = &fakeModels{resp: &genai.GenerateContentResponse{}}
	_, _, err := client.Generate(context.Background(), Image{}, Image{}, Prompt("top", "", ""))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestGenerateWithoutKey(t *testing.T) {
	client := NewClient(config.Gemini{})
	if client.Configured() {
		t.Fatal("expected unconfigured client")
	}
	_, _, err := client.Generate(context.Background(), Image{}, Image{}, Prompt("top", "", ""))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPromptIncludesGarmentDetails(t *testing.T) {
	got := Prompt("outerwear", "A camel wool coat.", "The garment is located in the second image at approximately: 10% from left.")
	for _, want := range []string{"wears the outerwear garment", "A camel wool coat.", "10% from left", "Return only the edited image."} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt %q missing %q", got, want)
		}
	}
	if bare := Prompt("", " ", ""); strings.Contains(bare, "  ") || !strings.Contains(bare, "wears the top garment") {
		t.Fatalf("unexpected bare prompt %q", bare)
	}
}

func TestGeneratorIsCreatedOnce(t *testing.T) {
	client := NewClient(config.Gemini{APIKey: "test-key", Model: "m"})
	const callers = 8
	got := make([]contentGenerator, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			models, err := client.generator(context.Background())
			if err != nil {
				t.Errorf("generator: %v", err)
				return
			}
			got[i] = models
		}()
	}
	wg.Wait()
	for i := 1; i < callers; i++ {
		if got[i] == nil || got[i] != got[0] {
			t.Fatalf("caller %d got a different generator", i)
		}
	}
}
