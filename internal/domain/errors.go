package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrInvalidSampleCount = errors.New("invalid sample count")
	ErrGenerationEmpty    = errors.New("generation returned no image")
	ErrUpscaleEmpty       = errors.New("upscale returned no image")
)

// Stage names one remote-dependent step of the pipeline.
type Stage string

const (
	StageAuthenticate Stage = "authenticate"
	StageGenerate     Stage = "generate"
	StageUpscale      Stage = "upscale"
	StageUpload       Stage = "upload"
)

// maxDetailsLen bounds how much of an upstream body is echoed to clients.
const maxDetailsLen = 300

// ValidationError rejects a request before any remote call is made.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AuthError wraps any failure to obtain a bearer token.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RemoteCallError is a transport failure or a non-2xx answer from one of the
// outbound endpoints. StatusCode is zero when no response was received.
type RemoteCallError struct {
	Stage      Stage
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteCallError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d: %v", e.Stage, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s: http %d", e.Stage, e.StatusCode)
	}
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// Details extracts a human readable message from the upstream body.
func (e *RemoteCallError) Details() string {
	// A 2xx answer with an error means the body itself was unusable.
	if e.Err != nil && e.StatusCode >= 200 && e.StatusCode < 300 {
		return e.Err.Error()
	}
	if msg := UpstreamMessage(e.Body); msg != "" {
		return msg
	}
	if e.Err != nil {
		return transportDetails(e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream returned http %d", e.StatusCode)
	}
	return ""
}

// transportDetails drops the request URL from net/http errors; it carries the
// project id and is not fit for clients.
func transportDetails(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "upstream timed out"
		}
		return "upstream unreachable: " + urlErr.Err.Error()
	}
	return err.Error()
}

// EmptyResultError is a well-formed response without a usable image.
type EmptyResultError struct {
	Stage  Stage
	Reason string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s: no usable image: %s", e.Stage, e.Reason)
}

// Is lets callers match ErrGenerationEmpty / ErrUpscaleEmpty by stage.
func (e *EmptyResultError) Is(target error) bool {
	switch target {
	case ErrGenerationEmpty:
		return e.Stage == StageGenerate
	case ErrUpscaleEmpty:
		return e.Stage == StageUpscale
	}
	return false
}

// UpstreamMessage pulls the message out of common JSON error envelopes
// ({"error":{"message":..}}, {"error":".."}, {"message":".."}) and falls back
// to the trimmed raw body.
func UpstreamMessage(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil {
		if len(envelope.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
				return truncate(nested.Message)
			}
			var plain string
			if err := json.Unmarshal(envelope.Error, &plain); err == nil && plain != "" {
				return truncate(plain)
			}
		}
		if envelope.Message != "" {
			return truncate(envelope.Message)
		}
	}
	return truncate(body)
}

func truncate(s string) string {
	if len(s) <= maxDetailsLen {
		return s
	}
	return strings.ToValidUTF8(s[:maxDetailsLen], "") + "..."
}
