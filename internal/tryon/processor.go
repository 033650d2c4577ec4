package tryon

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"

	"fitstogo/internal/logging"
	"fitstogo/internal/objectstore"
	"fitstogo/internal/services"
	"fitstogo/internal/services/gemini"
	"fitstogo/internal/services/kieai"
	"fitstogo/internal/stage"
	"fitstogo/internal/store"
)

// Provider names recorded on sessions.
const (
	ProviderKie    = "kie"
	ProviderGemini = "gemini"
)

// Describer produces a text description of a garment image.
type Describer interface {
	Configured() bool
	Describe(ctx context.Context, imageURL string) (string, error)
}

// TaskGenerator is a task-based image provider.
type TaskGenerator interface {
	Configured() bool
	CreateTask(ctx context.Context, personURL, garmentURL, prompt string) (string, error)
	Poll(ctx context.Context, taskID string) (string, error)
}

// ImageGenerator returns generated image bytes directly.
type ImageGenerator interface {
	Configured() bool
	Generate(ctx context.Context, person, garment gemini.Image, prompt string) ([]byte, string, error)
}

// ResultStore fetches source images and stores generated results.
type ResultStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Fetch(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Processor runs a claimed session through description and generation.
type Processor struct {
	store           *store.Store
	appURL          string
	provider        string
	describeGarment bool
	describer       Describer
	tasks           TaskGenerator
	images          ImageGenerator
	results         ResultStore
	logger          *slog.Logger
}

// ProcessorDeps bundles the provider clients. Nil entries disable the
// corresponding path.
type ProcessorDeps struct {
	Describer Describer
	Tasks     TaskGenerator
	Images    ImageGenerator
	Results   ResultStore
}

// NewProcessor builds the processing stage handler.
func NewProcessor(st *store.Store, appURL, provider string, describeGarment bool, deps ProcessorDeps, logger *slog.Logger) *Processor {
	if provider == "" {
		provider = ProviderKie
	}
	return &Processor{
		store:           st,
		appURL:          appURL,
		provider:        provider,
		describeGarment: describeGarment,
		describer:       deps.Describer,
		tasks:           deps.Tasks,
		images:          deps.Images,
		results:         deps.Results,
		logger:          logging.NewComponentLogger(logger, "tryon-processor"),
	}
}

// Prepare loads the product and photo the session refers to.
func (p *Processor) Prepare(ctx context.Context, session *store.TryOnSession) error {
	product, err := p.store.GetProduct(ctx, session.ProductID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "tryon", "load product", session.ProductID, err)
	}
	if product == nil {
		return services.NewUserError(services.ErrNotFound, "Product not found")
	}
	photo, err := p.store.GetPhoto(ctx, session.UserPhotoID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "tryon", "load photo", session.UserPhotoID, err)
	}
	if photo == nil {
		return services.NewUserError(services.ErrNotFound, "Photo not found")
	}
	session.Product = summarize(product)
	session.UserPhoto = photo
	if strings.TrimSpace(session.GarmentImageURL) == "" {
		session.GarmentImageURL = product.ImageURL
	}
	if session.Provider == "" {
		session.Provider = p.provider
	}
	return nil
}

// Execute describes the garment, generates the composite and records the
// result URL on the session.
func (p *Processor) Execute(ctx context.Context, session *store.TryOnSession) error {
	logger := logging.WithContext(ctx, p.logger)
	if session.UserPhoto == nil || session.Product == nil {
		if err := p.Prepare(ctx, session); err != nil {
			return err
		}
	}

	description := p.describe(ctx, logger, session)

	var (
		resultURL string
		err       error
	)
	switch session.Provider {
	case ProviderGemini:
		resultURL, err = p.generateDirect(ctx, session, description)
	default:
		resultURL, err = p.generateTask(ctx, logger, session, description)
	}
	if err != nil {
		return err
	}
	session.ResultURL = resultURL
	return nil
}

// describe never fails the session; a missing description only weakens the
// prompt.
func (p *Processor) describe(ctx context.Context, logger *slog.Logger, session *store.TryOnSession) string {
	if session.Description != "" {
		return session.Description
	}
	if !p.describeGarment || p.describer == nil || !p.describer.Configured() {
		return ""
	}
	p.setStage(ctx, logger, session, store.StageDescribing)
	description, err := p.describer.Describe(ctx, kieai.PublicURL(p.appURL, session.GarmentImageURL))
	if err != nil {
		logging.WarnWithContext(logger, "garment description failed; continuing without it", "describe_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check GLM API key and quota"),
			logging.String(logging.FieldImpact, "prompt omits garment description"),
		)
		return ""
	}
	if description == "" {
		return ""
	}
	if err := p.store.SetSessionDescription(ctx, session.ID, description); err != nil {
		logger.Warn("failed to persist garment description", logging.Error(err))
	}
	session.Description = description
	return description
}

func (p *Processor) generateTask(ctx context.Context, logger *slog.Logger, session *store.TryOnSession, description string) (string, error) {
	if p.tasks == nil || !p.tasks.Configured() {
		return "", services.NewUserError(services.ErrConfiguration, "Kie.ai API key not configured")
	}
	mask, err := stage.ParseMask(session.MaskJSON)
	if err != nil {
		return "", err
	}
	taskID := session.ProviderTaskID
	if taskID == "" {
		p.setStage(ctx, logger, session, store.StageGenerating)
		prompt := kieai.BuildPrompt(description, mask)
		taskID, err = p.tasks.CreateTask(ctx,
			kieai.PublicURL(p.appURL, session.UserPhoto.PhotoURL),
			kieai.PublicURL(p.appURL, session.GarmentImageURL),
			prompt)
		if err != nil {
			return "", err
		}
		if err := p.store.SetProviderTask(ctx, session.ID, ProviderKie, taskID); err != nil {
			return "", services.Wrap(services.ErrTransient, "tryon", "persist task", taskID, err)
		}
		session.ProviderTaskID = taskID
		logger.Info("generation task created", logging.String("task_id", taskID))
	} else {
		logger.Info("resuming generation task", logging.String("task_id", taskID))
	}
	p.setStage(ctx, logger, session, store.StagePolling)
	return p.tasks.Poll(ctx, taskID)
}

func (p *Processor) generateDirect(ctx context.Context, session *store.TryOnSession, description string) (string, error) {
	if p.images == nil || !p.images.Configured() {
		return "", services.NewUserError(services.ErrConfiguration, "Gemini API key not configured")
	}
	if p.results == nil {
		return "", services.Wrap(services.ErrConfiguration, "tryon", "upload result", "", objectstore.ErrNotConfigured)
	}
	mask, err := stage.ParseMask(session.MaskJSON)
	if err != nil {
		return "", err
	}
	logger := logging.WithContext(ctx, p.logger)
	p.setStage(ctx, logger, session, store.StageGenerating)

	person, personType, err := p.results.Fetch(ctx, kieai.PublicURL(p.appURL, session.UserPhoto.PhotoURL))
	if err != nil {
		return "", err
	}
	garment, garmentType, err := p.results.Fetch(ctx, kieai.PublicURL(p.appURL, session.GarmentImageURL))
	if err != nil {
		return "", err
	}
	data, mimeType, err := p.images.Generate(ctx,
		gemini.Image{Data: person, MIMEType: personType},
		gemini.Image{Data: garment, MIMEType: garmentType},
		gemini.Prompt(InferProductType(session.Product.Title), description, kieai.LocationHint(mask)))
	if err != nil {
		return "", err
	}

	p.setStage(ctx, logger, session, store.StageUploading)
	return p.results.Upload(ctx, objectstore.TryOnKey(session.ID), bytes.NewReader(data), int64(len(data)), mimeType)
}

func (p *Processor) setStage(ctx context.Context, logger *slog.Logger, session *store.TryOnSession, name string) {
	session.ProgressStage = name
	if err := p.store.UpdateSessionStage(ctx, session.ID, name); err != nil {
		logger.Warn("failed to record progress stage", logging.String(logging.FieldStage, name), logging.Error(err))
	}
}

// HealthCheck reports whether the configured provider can run.
func (p *Processor) HealthCheck(context.Context) stage.Health {
	const name = "tryon"
	switch p.provider {
	case ProviderGemini:
		if p.images == nil || !p.images.Configured() {
			return stage.Unhealthy(name, "Gemini API key not configured")
		}
		if p.results == nil {
			return stage.Unhealthy(name, "object storage not configured")
		}
	default:
		if p.tasks == nil || !p.tasks.Configured() {
			return stage.Unhealthy(name, "Kie.ai API key not configured")
		}
	}
	return stage.Healthy(name)
}
