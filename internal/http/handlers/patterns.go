package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"patternsvc/internal/domain"
)

const (
	msgMissingFields  = "Missing required fields."
	msgInvalidBody    = "Invalid request body."
	msgServerError    = "Something went wrong on the server."
	detailsAuthFailed = "authentication failed"
)

type generateResponse struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
}

// GeneratePattern turns the descriptive fields into a hosted, upscaled
// pattern image.
func (a *App) GeneratePattern(w http.ResponseWriter, r *http.Request) {
	limit := a.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	req, err := decodePromptRequest(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		if errors.Is(err, errWrongFieldType) {
			a.error(w, http.StatusBadRequest, msgMissingFields, "")
			return
		}
		a.error(w, http.StatusBadRequest, msgInvalidBody, "")
		return
	}

	// Remote calls run to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	res, err := a.Generator.Run(ctx, *req)
	if err != nil {
		a.pipelineError(w, err)
		return
	}
	a.json(w, http.StatusOK, generateResponse{ImageURL: res.ImageURL, Prompt: res.Prompt})
}

var errWrongFieldType = errors.New("descriptive field is not a string")

// decodePromptRequest reads exactly one JSON value. An empty body decodes to
// the zero request so validation reports the missing fields.
func decodePromptRequest(body io.Reader) (*domain.PromptRequest, error) {
	var req domain.PromptRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return &req, nil
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && isDescriptiveField(typeErr.Field) {
			return nil, errWrongFieldType
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after request body")
	}
	return &req, nil
}

func isDescriptiveField(name string) bool {
	switch name {
	case "text", "designStyle", "colorMood", "detailLevel":
		return true
	}
	return false
}

func (a *App) pipelineError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		if errors.Is(verr, domain.ErrInvalidSampleCount) {
			a.error(w, http.StatusBadRequest, fmt.Sprintf("sampleCount must be between 1 and %d.", domain.MaxSampleCount), "")
			return
		}
		a.error(w, http.StatusBadRequest, msgMissingFields, "")
		return
	}
	a.error(w, http.StatusInternalServerError, msgServerError, errorDetails(err))
}

// errorDetails is the best-effort explanation returned next to a 500.
func errorDetails(err error) string {
	var (
		authErr   *domain.AuthError
		remoteErr *domain.RemoteCallError
		emptyErr  *domain.EmptyResultError
	)
	switch {
	case errors.As(err, &authErr):
		return detailsAuthFailed
	case errors.As(err, &remoteErr):
		return remoteErr.Details()
	case errors.As(err, &emptyErr):
		return emptyErr.Error()
	}
	return ""
}
