// Package kieai drives the Kie.ai task API: submit an image-edit job that puts
// a garment on a person photo, then poll the job until it reaches a terminal
// state.
package kieai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"fitstogo/internal/config"
	"fitstogo/internal/services"
	"fitstogo/internal/services/apiclient"
)

// Task states reported by recordInfo.
const (
	StateWaiting = "waiting"
	StateSuccess = "success"
	StateFail    = "fail"
)

const timedOutMessage = "Task timed out after maximum polling attempts"

// Mask is a percentage-based rectangle locating the garment in its image.
type Mask struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Status is one recordInfo observation.
type Status struct {
	State      string
	ResultURL  string
	FailReason string
}

// Client talks to api.kie.ai.
type Client struct {
	api          *apiclient.Client
	model        string
	outputFormat string
	imageSize    string
	pollInterval time.Duration
	maxAttempts  int
	sleeper      func(context.Context, time.Duration) error
	apiOpts      []apiclient.Option
}

// Option customizes the client.
type Option func(*Client)

// WithAPIOptions forwards options to the underlying HTTP client.
func WithAPIOptions(opts ...apiclient.Option) Option {
	return func(c *Client) {
		c.apiOpts = append(c.apiOpts, opts...)
	}
}

// WithPollSleeper overrides how Poll waits between attempts.
func WithPollSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// NewClient constructs a client from config.
func NewClient(cfg config.Kie, opts ...Option) *Client {
	client := &Client{
		model:        cfg.Model,
		outputFormat: cfg.OutputFormat,
		imageSize:    cfg.ImageSize,
		pollInterval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
		maxAttempts:  cfg.MaxPollAttempts,
		sleeper:      sleepContext,
		apiOpts:      []apiclient.Option{apiclient.WithTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)},
	}
	for _, opt := range opts {
		opt(client)
	}
	client.api = apiclient.New("kie.ai", cfg.BaseURL, cfg.APIKey, client.apiOpts...)
	if client.maxAttempts <= 0 {
		client.maxAttempts = 1
	}
	return client
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.api.Configured()
}

// BuildPrompt assembles the edit instruction sent with the two images.
func BuildPrompt(description string, mask *Mask) string {
	var b strings.Builder
	b.WriteString("Edit the first image (person photo) to wear the clothing from the second image (garment).")
	if description = strings.TrimSpace(description); description != "" {
		b.WriteString(" The garment is: ")
		b.WriteString(description)
	}
	if hint := LocationHint(mask); hint != "" {
		b.WriteString(" ")
		b.WriteString(hint)
	}
	b.WriteString(" Replace the person's current top/clothing with this garment. Keep the person's face, pose, and body unchanged. Make it look natural and realistic.")
	return b.String()
}

// LocationHint describes where the garment sits in the second image, or ""
// without a mask.
func LocationHint(mask *Mask) string {
	if mask == nil {
		return ""
	}
	return fmt.Sprintf("The garment is located in the second image at approximately: %d%% from left, %d%% from top, covering %d%% width and %d%% height of the image.",
		roundPercent(mask.X), roundPercent(mask.Y), roundPercent(mask.Width), roundPercent(mask.Height))
}

func roundPercent(v float64) int {
	return int(math.Floor(v + 0.5))
}

// PublicURL makes url absolute against appURL. Absolute http(s) URLs pass through.
func PublicURL(appURL, raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	appURL = strings.TrimRight(appURL, "/")
	if strings.HasPrefix(raw, "/") {
		return appURL + raw
	}
	return appURL + "/" + raw
}

type createTaskRequest struct {
	Model string          `json:"model"`
	Input createTaskInput `json:"input"`
}

type createTaskInput struct {
	Prompt       string   `json:"prompt"`
	ImageURLs    []string `json:"image_urls"`
	OutputFormat string   `json:"output_format"`
	ImageSize    string   `json:"image_size"`
}

// CreateTask submits a generation job and returns its task id.
func (c *Client) CreateTask(ctx context.Context, personURL, garmentURL, prompt string) (string, error) {
	if !c.Configured() {
		return "", services.NewUserError(services.ErrConfiguration, "Kie.ai API key not configured")
	}
	payload := createTaskRequest{
		Model: c.model,
		Input: createTaskInput{
			Prompt:       prompt,
			ImageURLs:    []string{personURL, garmentURL},
			OutputFormat: c.outputFormat,
			ImageSize:    c.imageSize,
		},
	}
	body, err := c.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: "/api/v1/jobs/createTask", Body: payload})
	if err != nil {
		var statusErr *apiclient.StatusError
		if errors.As(err, &statusErr) {
			return "", &services.UserError{
				Marker:  services.ErrExternalTool,
				Message: fmt.Sprintf("Failed to create task: %d - %s", statusErr.StatusCode, statusErr.Body),
			}
		}
		return "", services.Wrap(services.ErrExternalTool, "generating", "create task", "request failed", err)
	}
	taskID := gjson.GetBytes(body, "data.taskId").String()
	if taskID == "" {
		return "", services.NewUserError(services.ErrExternalTool, "No task ID returned from Kie.ai")
	}
	return taskID, nil
}

// TaskStatus fetches the current state of a task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (Status, error) {
	body, err := c.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/jobs/recordInfo",
		Query:  url.Values{"taskId": {taskID}},
	})
	if err != nil {
		var statusErr *apiclient.StatusError
		if errors.As(err, &statusErr) {
			return Status{}, &services.UserError{
				Marker:  services.ErrExternalTool,
				Message: fmt.Sprintf("Failed to check task status: %d", statusErr.StatusCode),
			}
		}
		return Status{}, services.Wrap(services.ErrExternalTool, "generating", "task status", "request failed", err)
	}
	return parseStatus(body)
}

func parseStatus(body []byte) (Status, error) {
	data := gjson.GetBytes(body, "data")
	status := Status{State: data.Get("state").String()}
	switch status.State {
	case StateSuccess:
		status.ResultURL = extractResultURL(data)
		if status.ResultURL == "" {
			return status, services.NewUserError(services.ErrExternalTool, "No result URLs returned")
		}
	case StateFail:
		status.FailReason = strings.TrimSpace(data.Get("failReason").String())
		if status.FailReason == "" {
			status.FailReason = "Task failed"
		}
	}
	return status, nil
}

// extractResultURL reads resultJson.resultUrls[0], where resultJson may be an
// object or a JSON-encoded string, falling back to output.image_url and
// output.images[0].
func extractResultURL(data gjson.Result) string {
	result := data.Get("resultJson")
	if result.Type == gjson.String {
		result = gjson.Parse(result.String())
	}
	if first := result.Get("resultUrls.0"); first.Exists() && first.String() != "" {
		return first.String()
	}
	if v := data.Get("output.image_url").String(); v != "" {
		return v
	}
	return data.Get("output.images.0").String()
}

// Poll waits for taskID to finish. A failed task is returned as an external
// tool error carrying the provider's reason.
func (c *Client) Poll(ctx context.Context, taskID string) (string, error) {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		status, err := c.TaskStatus(ctx, taskID)
		if err != nil {
			return "", err
		}
		switch status.State {
		case StateSuccess:
			return status.ResultURL, nil
		case StateFail:
			return "", services.NewUserError(services.ErrExternalTool, status.FailReason)
		}
		if err := c.sleeper(ctx, c.pollInterval); err != nil {
			return "", err
		}
	}
	return "", services.NewUserError(services.ErrTimeout, timedOutMessage)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
