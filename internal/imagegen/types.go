package imagegen

import (
	"encoding/base64"
	"strings"

	"patternsvc/internal/domain"
)

// UpscaleMode is the operation selector the predict endpoint keys upscale
// requests on.
const UpscaleMode = "upscale"

// GenerationRequest is the prompt-in predict payload.
type GenerationRequest struct {
	Instances []GenerationInstance `json:"instances"`
}

type GenerationInstance struct {
	Prompt      string `json:"prompt"`
	SampleCount int    `json:"sampleCount,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

// UpscaleRequest is the image-in predict payload. It has no sample count.
type UpscaleRequest struct {
	Instances  []UpscaleInstance `json:"instances"`
	Parameters UpscaleParameters `json:"parameters"`
}

type UpscaleInstance struct {
	Image ImageInput `json:"image"`
}

type ImageInput struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
}

type UpscaleParameters struct {
	Mode          string        `json:"mode"`
	UpscaleConfig UpscaleConfig `json:"upscaleConfig"`
}

type UpscaleConfig struct {
	UpscaleFactor string `json:"upscaleFactor"`
}

// Prediction is one entry of a predict response.
type Prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
	RaiFilteredReason  string `json:"raiFilteredReason,omitempty"`
}

type predictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// GenerationResponse is a decoded generation answer.
type GenerationResponse predictResponse

// UpscaleResponse is a decoded upscale answer.
type UpscaleResponse predictResponse

// GeneratedImage is the candidate chosen from a generation response.
type GeneratedImage struct {
	Encoded  string
	MimeType string
}

// UpscaledImage is the high resolution result of the upscale call.
type UpscaledImage struct {
	Encoded  string
	MimeType string
}

// Bytes decodes the payload. It was validated when the response was read.
func (i UpscaledImage) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(i.Encoded)
}

// FirstImage returns candidate 0. Other candidates are ignored.
func (r GenerationResponse) FirstImage() (GeneratedImage, error) {
	p, err := firstPrediction(domain.StageGenerate, r.Predictions)
	if err != nil {
		return GeneratedImage{}, err
	}
	return GeneratedImage{Encoded: p.BytesBase64Encoded, MimeType: p.MimeType}, nil
}

// Image returns the upscaled result.
func (r UpscaleResponse) Image() (UpscaledImage, error) {
	p, err := firstPrediction(domain.StageUpscale, r.Predictions)
	if err != nil {
		return UpscaledImage{}, err
	}
	return UpscaledImage{Encoded: p.BytesBase64Encoded, MimeType: p.MimeType}, nil
}

func firstPrediction(stage domain.Stage, predictions []Prediction) (Prediction, error) {
	if len(predictions) == 0 {
		return Prediction{}, &domain.EmptyResultError{Stage: stage, Reason: "response has no predictions"}
	}
	p := predictions[0]
	p.BytesBase64Encoded = strings.TrimSpace(p.BytesBase64Encoded)
	if p.BytesBase64Encoded == "" {
		reason := "first prediction has no image payload"
		if p.RaiFilteredReason != "" {
			reason += ": " + p.RaiFilteredReason
		}
		return Prediction{}, &domain.EmptyResultError{Stage: stage, Reason: reason}
	}
	if _, err := base64.StdEncoding.DecodeString(p.BytesBase64Encoded); err != nil {
		return Prediction{}, &domain.EmptyResultError{Stage: stage, Reason: "first prediction payload is not valid base64"}
	}
	return p, nil
}
