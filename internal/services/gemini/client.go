// Package gemini generates try-on images directly with a Gemini image model.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"fitstogo/internal/config"
	"fitstogo/internal/services"
)

// Image is a source image passed inline to the model.
type Image struct {
	Data     []byte
	MIMEType string
}

// contentGenerator is the subset of *genai.Models the client needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client wraps the genai SDK. It is safe for concurrent use.
type Client struct {
	apiKey string
	model  string

	mu     sync.Mutex
	models contentGenerator
}

// NewClient constructs a client. The SDK client is created lazily on first use
// so an unconfigured deployment never dials Google.
func NewClient(cfg config.Gemini) *Client {
	return &Client{apiKey: strings.TrimSpace(cfg.APIKey), model: cfg.Model}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	if c == nil {
		return false
	}
	if c.apiKey != "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.models != nil
}

func (c *Client) generator(ctx context.Context) (contentGenerator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.models != nil {
		return c.models, nil
	}
	if c.apiKey == "" {
		return nil, services.NewUserError(services.ErrConfiguration, "Gemini API key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "generating", "gemini client", "failed to create client", err)
	}
	c.models = client.Models
	return c.models, nil
}

// Prompt builds the instruction for a garment of the given product type.
// description and location are optional sentences about the garment.
func Prompt(productType, description, location string) string {
	if productType == "" {
		productType = "top"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Edit the first image (person photo) so the person wears the %s garment shown in the second image.", productType)
	for _, extra := range []string{description, location} {
		if extra = strings.TrimSpace(extra); extra != "" {
			b.WriteString(" ")
			b.WriteString(extra)
		}
	}
	b.WriteString(" Keep the person's face, pose, body and background unchanged. Make it look natural and realistic. Return only the edited image.")
	return b.String()
}

// Generate returns the edited image bytes and their MIME type.
func (c *Client) Generate(ctx context.Context, person, garment Image, prompt string) ([]byte, string, error) {
	models, err := c.generator(ctx)
	if err != nil {
		return nil, "", err
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(person.Data, mimeOrDefault(person.MIMEType)),
		genai.NewPartFromBytes(garment.Data, mimeOrDefault(garment.MIMEType)),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return nil, "", services.Wrap(services.ErrExternalTool, "generating", "gemini generate", "request failed", err)
	}
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
					return part.InlineData.Data, mimeOrDefault(part.InlineData.MIMEType), nil
				}
			}
		}
	}
	return nil, "", services.NewUserError(services.ErrExternalTool, "No image returned from Gemini")
}

func mimeOrDefault(mime string) string {
	if strings.TrimSpace(mime) == "" {
		return "image/png"
	}
	return mime
}
