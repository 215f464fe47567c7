package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"patternsvc/internal/domain"
)

type MinIOOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// PublicBaseURL prefixes object keys in returned URLs. Defaults to the
	// endpoint URL plus bucket.
	PublicBaseURL string
	Transport     http.RoundTripper
}

// MinIOStore uploads patterns to an S3-compatible bucket.
type MinIOStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewMinIOStore(opts MinIOOptions) (*MinIOStore, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	bucket := strings.TrimSpace(opts.Bucket)
	if endpoint == "" || bucket == "" {
		return nil, errors.New("minio: endpoint and bucket are required")
	}
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:    opts.UseSSL,
		Region:    region,
		Transport: opts.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	base := strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/")
	if base == "" {
		base = strings.TrimRight(client.EndpointURL().String(), "/") + "/" + bucket
	}
	return &MinIOStore{client: client, bucket: bucket, baseURL: base}, nil
}

func (s *MinIOStore) Upload(ctx context.Context, data []byte, filename string) (UploadResult, error) {
	if len(data) == 0 {
		return UploadResult{}, &domain.RemoteCallError{Stage: domain.StageUpload, Err: errors.New("minio: no image data")}
	}
	key := objectKey(filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: http.DetectContentType(data),
	})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		return UploadResult{}, &domain.RemoteCallError{
			Stage:      domain.StageUpload,
			StatusCode: resp.StatusCode,
			Body:       resp.Message,
			Err:        err,
		}
	}
	return UploadResult{URL: s.baseURL + "/" + key}, nil
}

var _ Uploader = (*MinIOStore)(nil)
