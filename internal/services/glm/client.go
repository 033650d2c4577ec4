// Package glm describes garment images with the Z.AI GLM vision model so the
// generation prompt can name what the person should be wearing.
package glm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fitstogo/internal/config"
	"fitstogo/internal/services/apiclient"
)

// DescribePrompt is sent alongside the garment image.
const DescribePrompt = `Analyze this clothing item image and provide a detailed description for virtual try-on purposes. Include:
1. Type of garment (e.g., t-shirt, dress, jacket, pants)
2. Color(s) and any patterns
3. Style details (neckline, sleeves, fit, length)
4. Notable design elements (logos, prints, embellishments)
5. Material appearance (if visible)

Provide a concise but comprehensive description in 2-3 sentences that would help an AI accurately place this garment on a person's body.`

// Client calls the chat completions endpoint with an image_url content part.
type Client struct {
	api         *apiclient.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewClient constructs a GLM client from config.
func NewClient(cfg config.GLM, opts ...apiclient.Option) *Client {
	base := []apiclient.Option{apiclient.WithTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)}
	return &Client{
		api:         apiclient.New("glm", cfg.BaseURL, cfg.APIKey, append(base, opts...)...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.api.Configured()
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Describe returns a short description of the garment in imageURL. An
// unconfigured client returns an empty description and no error.
func (c *Client) Describe(ctx context.Context, imageURL string) (string, error) {
	if !c.Configured() {
		return "", nil
	}
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return "", errors.New("glm describe: image url required")
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "image_url", ImageURL: &imageRef{URL: imageURL}},
				{Type: "text", Text: DescribePrompt},
			},
		}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	var resp chatResponse
	if err := c.api.DoJSON(ctx, apiclient.Request{Method: http.MethodPost, Path: "/chat/completions", Body: payload}, &resp); err != nil {
		return "", fmt.Errorf("glm describe: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("glm describe: api error: %s", strings.TrimSpace(resp.Error.Message))
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
