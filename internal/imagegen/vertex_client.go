package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"patternsvc/internal/domain"
)

// maxResponseBytes bounds how much of a predict response is read. Upscaled
// PNGs come back base64 encoded and can be tens of megabytes.
const maxResponseBytes = 64 << 20

type VertexOptions struct {
	BaseURL     string
	ProjectID   string
	Location    string
	Model       string
	AspectRatio string
	// UpscaleFactor is sent with every upscale request, "x2" or "x4".
	UpscaleFactor string
	HTTPClient    *http.Client
	Timeout       time.Duration
}

// VertexClient talks to the Imagen predict endpoint. Generation and upscale
// share one URL; the upstream tells them apart by payload shape.
type VertexClient struct {
	httpClient    *http.Client
	endpoint      string
	aspectRatio   string
	upscaleFactor string
}

func NewVertexClient(opts VertexOptions) (*VertexClient, error) {
	if strings.TrimSpace(opts.ProjectID) == "" {
		return nil, errors.New("vertex: project id is required")
	}
	location := strings.TrimSpace(opts.Location)
	if location == "" {
		location = "us-central1"
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", location)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "imagen-3.0-generate-001"
	}
	factor := strings.TrimSpace(opts.UpscaleFactor)
	if factor == "" {
		factor = "x2"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &VertexClient{
		httpClient:    client,
		endpoint:      fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:predict", base, strings.TrimSpace(opts.ProjectID), location, model),
		aspectRatio:   strings.TrimSpace(opts.AspectRatio),
		upscaleFactor: factor,
	}, nil
}

// Endpoint returns the predict URL used for both operations.
func (c *VertexClient) Endpoint() string {
	return c.endpoint
}

// Generate asks for sampleCount candidates and returns the first one.
func (c *VertexClient) Generate(ctx context.Context, token, prompt string, sampleCount int) (GeneratedImage, error) {
	if sampleCount <= 0 {
		sampleCount = domain.DefaultSampleCount
	}
	payload := GenerationRequest{
		Instances: []GenerationInstance{{
			Prompt:      prompt,
			SampleCount: sampleCount,
			AspectRatio: c.aspectRatio,
		}},
	}
	var out GenerationResponse
	if err := c.predict(ctx, domain.StageGenerate, token, payload, &out); err != nil {
		return GeneratedImage{}, err
	}
	return out.FirstImage()
}

// Upscale submits a generated image for a higher resolution variant.
func (c *VertexClient) Upscale(ctx context.Context, token string, img GeneratedImage) (UpscaledImage, error) {
	if strings.TrimSpace(img.Encoded) == "" {
		return UpscaledImage{}, &domain.EmptyResultError{Stage: domain.StageUpscale, Reason: "no input image"}
	}
	payload := UpscaleRequest{
		Instances: []UpscaleInstance{{Image: ImageInput{BytesBase64Encoded: img.Encoded}}},
		Parameters: UpscaleParameters{
			Mode:          UpscaleMode,
			UpscaleConfig: UpscaleConfig{UpscaleFactor: c.upscaleFactor},
		},
	}
	var out UpscaleResponse
	if err := c.predict(ctx, domain.StageUpscale, token, payload, &out); err != nil {
		return UpscaledImage{}, err
	}
	return out.Image()
}

func (c *VertexClient) predict(ctx context.Context, stage domain.Stage, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.RemoteCallError{Stage: stage, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &domain.RemoteCallError{Stage: stage, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.RemoteCallError{Stage: stage, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.RemoteCallError{Stage: stage, StatusCode: resp.StatusCode, Body: string(raw), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
