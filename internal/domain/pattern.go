package domain

import (
	"fmt"
	"strings"
)

const (
	// DefaultSampleCount is used when the request omits sampleCount.
	DefaultSampleCount = 1
	// MaxSampleCount caps the number of candidates asked from the model.
	MaxSampleCount = 4
)

// PromptRequest carries the descriptive fields submitted by the client.
type PromptRequest struct {
	Text        string `json:"text"`
	DesignStyle string `json:"designStyle"`
	ColorMood   string `json:"colorMood"`
	DetailLevel string `json:"detailLevel"`
	SampleCount *int   `json:"sampleCount,omitempty"`
}

// Normalize trims the descriptive fields in place.
func (r *PromptRequest) Normalize() {
	if r == nil {
		return
	}
	r.Text = strings.TrimSpace(r.Text)
	r.DesignStyle = strings.TrimSpace(r.DesignStyle)
	r.ColorMood = strings.TrimSpace(r.ColorMood)
	r.DetailLevel = strings.TrimSpace(r.DetailLevel)
}

// Validate reports the first problem with the request, if any. Missing
// descriptive fields take precedence over an out of range sample count.
func (r PromptRequest) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"text", r.Text},
		{"designStyle", r.DesignStyle},
		{"colorMood", r.ColorMood},
		{"detailLevel", r.DetailLevel},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Err: ErrMissingFields}
		}
	}
	if r.SampleCount != nil && (*r.SampleCount < 1 || *r.SampleCount > MaxSampleCount) {
		return &ValidationError{Field: "sampleCount", Err: ErrInvalidSampleCount}
	}
	return nil
}

// Samples returns the requested candidate count, applying the default.
func (r PromptRequest) Samples() int {
	if r.SampleCount == nil {
		return DefaultSampleCount
	}
	return *r.SampleCount
}

// BuildPatternPrompt renders the fabric-print prompt for the request. Callers
// validate the request first; the builder itself never fails.
func BuildPatternPrompt(r PromptRequest) string {
	return fmt.Sprintf(
		"A seamless, repeating pattern of %s, in %s style, with %s tones. The illustration is %s, no background, vector-friendly, made for real fabric printing.",
		r.Text, r.DesignStyle, r.ColorMood, r.DetailLevel,
	)
}
