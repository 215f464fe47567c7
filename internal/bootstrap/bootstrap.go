package bootstrap

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/rs/zerolog"

	"patternsvc/internal/imagegen"
	"patternsvc/internal/infra"
	"patternsvc/internal/infra/credentials"
	"patternsvc/internal/pipeline"
	"patternsvc/internal/storage"
)

// Service bundles the collaborators built from configuration.
type Service struct {
	Pipeline *pipeline.Pipeline
	Tokens   *credentials.ServiceAccount
	// StaticDir is non-empty when patterns are stored on local disk.
	StaticDir string
}

// NewService wires the token provider, Imagen client and media store
// selected by cfg into a pipeline.
func NewService(cfg *infra.Config, logger zerolog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	httpClient := infra.NewHTTPClient(cfg)

	tokens := credentials.NewServiceAccount(cfg.ServiceAccountJSON, httpClient, credentials.CloudPlatformScope)

	model, err := imagegen.NewVertexClient(imagegen.VertexOptions{
		BaseURL:       cfg.VertexBaseURL,
		ProjectID:     cfg.VertexProjectID,
		Location:      cfg.VertexLocation,
		Model:         cfg.ImagenModel,
		AspectRatio:   cfg.ImagenAspectRatio,
		UpscaleFactor: cfg.UpscaleFactor,
		HTTPClient:    httpClient,
	})
	if err != nil {
		return nil, err
	}

	uploader, staticDir, err := NewUploader(cfg, httpClient)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(tokens, model, uploader, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("model", cfg.ImagenModel).
		Str("endpoint", model.Endpoint()).
		Str("media_provider", cfg.MediaProvider).
		Msg("pattern pipeline configured")

	return &Service{Pipeline: p, Tokens: tokens, StaticDir: staticDir}, nil
}

// NewUploader builds the media store named by cfg.MediaProvider.
func NewUploader(cfg *infra.Config, httpClient *http.Client) (storage.Uploader, string, error) {
	switch cfg.MediaProvider {
	case infra.MediaProviderCloudinary:
		up, err := storage.NewCloudinaryUploader(storage.CloudinaryOptions{
			BaseURL:      cfg.CloudinaryBaseURL,
			CloudName:    cfg.CloudinaryCloudName,
			UploadPreset: cfg.CloudinaryUploadPreset,
			HTTPClient:   httpClient,
		})
		return up, "", err
	case infra.MediaProviderMinIO:
		up, err := storage.NewMinIOStore(storage.MinIOOptions{
			Endpoint:      cfg.MinIOEndpoint,
			AccessKey:     cfg.MinIOAccessKey,
			SecretKey:     cfg.MinIOSecretKey,
			Bucket:        cfg.MinIOBucket,
			Region:        cfg.MinIORegion,
			UseSSL:        cfg.MinIOUseSSL,
			PublicBaseURL: cfg.MinIOPublicBaseURL,
			Transport:     httpClient.Transport,
		})
		return up, "", err
	case infra.MediaProviderFilesystem:
		path := cfg.StoragePath
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		store, err := storage.NewFileStore(path, cfg.StorageBaseURL)
		if err != nil {
			return nil, "", err
		}
		return store, store.BasePath(), nil
	}
	return nil, "", fmt.Errorf("unsupported media provider %q", cfg.MediaProvider)
}
