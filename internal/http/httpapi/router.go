package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"patternsvc/internal/http/handlers"
	"patternsvc/internal/middleware"
)

// GeneratePath is the single public operation of the service.
const GeneratePath = "/api/generate-image"

func NewRouter(app *handlers.App, logger zerolog.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(logger),
		chimw.Recoverer,
		middleware.CORS(allowedOrigins, http.MethodPost, http.MethodOptions),
	)
	r.MethodNotAllowed(app.MethodNotAllowed)

	r.Get("/v1/healthz", app.Health)
	r.Get(handlers.OpenAPIPath, app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Post(GeneratePath, app.GeneratePattern)

	if app.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(app.StaticDir))))
	}

	return r
}
