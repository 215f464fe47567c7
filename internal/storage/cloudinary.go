package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"patternsvc/internal/domain"
)

type CloudinaryOptions struct {
	BaseURL      string
	CloudName    string
	UploadPreset string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// CloudinaryUploader posts images to an unsigned Cloudinary upload preset.
type CloudinaryUploader struct {
	httpClient *http.Client
	endpoint   string
	preset     string
}

func NewCloudinaryUploader(opts CloudinaryOptions) (*CloudinaryUploader, error) {
	cloud := strings.TrimSpace(opts.CloudName)
	if cloud == "" {
		return nil, errors.New("cloudinary: cloud name is required")
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.cloudinary.com/v1_1"
	}
	preset := strings.TrimSpace(opts.UploadPreset)
	if preset == "" {
		preset = "ml_default"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &CloudinaryUploader{
		httpClient: client,
		endpoint:   fmt.Sprintf("%s/%s/image/upload", base, cloud),
		preset:     preset,
	}, nil
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
}

func (u *CloudinaryUploader) Upload(ctx context.Context, data []byte, filename string) (UploadResult, error) {
	if len(data) == 0 {
		return UploadResult{}, &domain.RemoteCallError{Stage: domain.StageUpload, Err: errors.New("cloudinary: no image data")}
	}
	if filename == "" {
		filename = DefaultFilename
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := part.Write(data); err != nil {
		return UploadResult{}, err
	}
	if err := form.WriteField("upload_preset", u.preset); err != nil {
		return UploadResult{}, err
	}
	if err := form.Close(); err != nil {
		return UploadResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return UploadResult{}, &domain.RemoteCallError{Stage: domain.StageUpload, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return UploadResult{}, &domain.RemoteCallError{Stage: domain.StageUpload, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return UploadResult{}, &domain.RemoteCallError{Stage: domain.StageUpload, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	var out cloudinaryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return UploadResult{}, &domain.RemoteCallError{Stage: domain.StageUpload, StatusCode: resp.StatusCode, Body: string(raw), Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(out.SecureURL) == "" {
		return UploadResult{}, &domain.RemoteCallError{Stage: domain.StageUpload, StatusCode: resp.StatusCode, Body: string(raw), Err: errors.New("cloudinary: response has no secure_url")}
	}
	return UploadResult{URL: out.SecureURL}, nil
}

var _ Uploader = (*CloudinaryUploader)(nil)
