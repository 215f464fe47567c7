package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"patternsvc/internal/domain"
	"patternsvc/internal/pipeline"
)

// DefaultMaxBodyBytes caps inbound JSON bodies when App.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 64 << 10

// PatternGenerator runs one prompt through generation, upscale and upload.
type PatternGenerator interface {
	Run(ctx context.Context, req domain.PromptRequest) (*pipeline.Result, error)
}

type App struct {
	Logger       zerolog.Logger
	Generator    PatternGenerator
	MaxBodyBytes int64
	// StaticDir, when set, is served under /static by the router.
	StaticDir string
}

func NewApp(logger zerolog.Logger, generator PatternGenerator) *App {
	return &App{Logger: logger, Generator: generator, MaxBodyBytes: DefaultMaxBodyBytes}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message, details string) {
	a.json(w, code, errorResponse{Error: message, Details: details})
}

// MethodNotAllowed answers any verb other than POST/OPTIONS.
func (a *App) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST, OPTIONS")
	a.json(w, http.StatusMethodNotAllowed, map[string]string{"message": "Only POST requests allowed"})
}
