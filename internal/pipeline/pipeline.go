package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"patternsvc/internal/domain"
	"patternsvc/internal/imagegen"
	"patternsvc/internal/infra/credentials"
	"patternsvc/internal/middleware"
	"patternsvc/internal/storage"
)

// maxLoggedBody keeps upstream bodies in logs readable.
const maxLoggedBody = 4 << 10

// ImageModel is the remote generate/upscale capability.
type ImageModel interface {
	Generate(ctx context.Context, token, prompt string, sampleCount int) (imagegen.GeneratedImage, error)
	Upscale(ctx context.Context, token string, img imagegen.GeneratedImage) (imagegen.UpscaledImage, error)
}

// Result is what a successful run hands back to the caller.
type Result struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
}

// Failure is returned for every failed run. Err keeps the typed cause.
type Failure struct {
	State State
	Stage domain.Stage
	Err   error
}

func (f *Failure) Error() string {
	if f.Stage != "" {
		return fmt.Sprintf("pipeline %s (%s): %v", f.State, f.Stage, f.Err)
	}
	return fmt.Sprintf("pipeline %s: %v", f.State, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Pipeline sequences validate, authenticate, generate, upscale and upload.
// It holds only immutable collaborators; each Run owns its own state.
type Pipeline struct {
	tokens   credentials.TokenProvider
	model    ImageModel
	uploader storage.Uploader
	logger   zerolog.Logger
}

func New(tokens credentials.TokenProvider, model ImageModel, uploader storage.Uploader, logger zerolog.Logger) (*Pipeline, error) {
	if tokens == nil {
		return nil, errors.New("pipeline: token provider is required")
	}
	if model == nil {
		return nil, errors.New("pipeline: image model is required")
	}
	if uploader == nil {
		return nil, errors.New("pipeline: uploader is required")
	}
	return &Pipeline{tokens: tokens, model: model, uploader: uploader, logger: logger}, nil
}

// run is the per-request state carried between transitions.
type run struct {
	state    State
	req      domain.PromptRequest
	prompt   string
	token    string
	image    imagegen.GeneratedImage
	upscaled imagegen.UpscaledImage
	result   Result
	failure  *Failure
}

// Run drives one request to Succeeded or Failed. Every state is entered at
// most once, and a failing stage skips all later ones.
func (p *Pipeline) Run(ctx context.Context, req domain.PromptRequest) (*Result, error) {
	log := p.logger.With().Str("component", "pipeline").Logger()
	if rid := middleware.RequestIDFromContext(ctx); rid != "" {
		log = log.With().Str("request_id", rid).Logger()
	}

	r := &run{state: StateValidating, req: req}
	for !r.state.Terminal() {
		from := r.state
		next, stage, err := p.step(ctx, r)
		if err != nil {
			r.failure = &Failure{State: from, Stage: stage, Err: err}
			next = StateFailed
			p.logFailure(log, r.failure)
		}
		log.Debug().Str("from", string(from)).Str("to", string(next)).Msg("pipeline transition")
		r.state = next
	}

	if r.failure != nil {
		return nil, r.failure
	}
	return &r.result, nil
}

func (p *Pipeline) step(ctx context.Context, r *run) (State, domain.Stage, error) {
	switch r.state {
	case StateValidating:
		r.req.Normalize()
		if err := r.req.Validate(); err != nil {
			return "", "", err
		}
		r.prompt = domain.BuildPatternPrompt(r.req)
		return StateAuthenticating, "", nil

	case StateAuthenticating:
		token, err := p.tokens.Token(ctx)
		if err != nil {
			var authErr *domain.AuthError
			if !errors.As(err, &authErr) {
				err = &domain.AuthError{Err: err}
			}
			return "", domain.StageAuthenticate, err
		}
		r.token = token
		return StateGenerating, "", nil

	case StateGenerating:
		img, err := p.model.Generate(ctx, r.token, r.prompt, r.req.Samples())
		if err != nil {
			return "", domain.StageGenerate, err
		}
		r.image = img
		return StateUpscaling, "", nil

	case StateUpscaling:
		up, err := p.model.Upscale(ctx, r.token, r.image)
		if err != nil {
			return "", domain.StageUpscale, err
		}
		r.upscaled = up
		return StateUploading, "", nil

	case StateUploading:
		data, err := r.upscaled.Bytes()
		if err != nil {
			return "", domain.StageUpload, &domain.EmptyResultError{Stage: domain.StageUpscale, Reason: err.Error()}
		}
		res, err := p.uploader.Upload(ctx, data, storage.DefaultFilename)
		if err != nil {
			return "", domain.StageUpload, err
		}
		if res.URL == "" {
			return "", domain.StageUpload, &domain.RemoteCallError{Stage: domain.StageUpload, Err: errors.New("media store returned no url")}
		}
		r.result = Result{ImageURL: res.URL, Prompt: r.prompt}
		return StateSucceeded, "", nil
	}
	return "", "", fmt.Errorf("pipeline: no transition from state %q", r.state)
}

func (p *Pipeline) logFailure(log zerolog.Logger, f *Failure) {
	var verr *domain.ValidationError
	if errors.As(f.Err, &verr) {
		log.Info().Str("state", string(f.State)).Str("field", verr.Field).Msg("request rejected")
		return
	}
	ev := log.Error().Err(f.Err).Str("state", string(f.State)).Str("stage", string(f.Stage))
	var remote *domain.RemoteCallError
	if errors.As(f.Err, &remote) {
		ev = ev.Int("status", remote.StatusCode).Str("upstream_body", clip(remote.Body))
	}
	ev.Msg("pipeline stage failed")
}

func clip(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "...(truncated)"
}
