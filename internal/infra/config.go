package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Media store backends selectable through MEDIA_PROVIDER.
const (
	MediaProviderCloudinary = "cloudinary"
	MediaProviderMinIO      = "minio"
	MediaProviderFilesystem = "filesystem"
)

// Config represents application configuration loaded from environment variables.
// It is built once at startup and never mutated afterwards.
type Config struct {
	AppEnv string
	Port   string

	ServiceAccountJSON []byte
	VertexProjectID    string
	VertexLocation     string
	VertexBaseURL      string
	ImagenModel        string
	ImagenAspectRatio  string
	UpscaleFactor      string

	MediaProvider          string
	CloudinaryCloudName    string
	CloudinaryUploadPreset string
	CloudinaryBaseURL      string
	MinIOEndpoint          string
	MinIOAccessKey         string
	MinIOSecretKey         string
	MinIOBucket            string
	MinIORegion            string
	MinIOUseSSL            bool
	MinIOPublicBaseURL     string
	StoragePath            string
	StorageBaseURL         string

	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	HTTPClientTimeout  time.Duration
	MaxBodyBytes       int64
}

// remoteCallsPerRequest is the number of sequential outbound calls one
// generate request makes: token, generate, upscale and upload.
const remoteCallsPerRequest = 4

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	location := getEnv("VERTEX_LOCATION", "us-central1")

	readTimeout, err := getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", 15)
	if err != nil {
		return nil, err
	}
	idleTimeout, err := getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	clientTimeout, err := getEnvSeconds("HTTP_CLIENT_TIMEOUT_SECONDS", 120)
	if err != nil {
		return nil, err
	}
	// The response can only be written once every remote call has returned.
	writeTimeout, err := getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", remoteCallsPerRequest*int(clientTimeout/time.Second)+int(readTimeout/time.Second))
	if err != nil {
		return nil, err
	}
	maxBody, err := getEnvPositiveInt("MAX_BODY_BYTES", 64<<10)
	if err != nil {
		return nil, err
	}
	minioSSL, err := getEnvBool("MINIO_USE_SSL", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:                 getEnv("APP_ENV", "development"),
		Port:                   port,
		ServiceAccountJSON:     []byte(strings.TrimSpace(os.Getenv("SERVICE_ACCOUNT_JSON"))),
		VertexProjectID:        strings.TrimSpace(os.Getenv("VERTEX_PROJECT_ID")),
		VertexLocation:         location,
		VertexBaseURL:          strings.TrimRight(getEnv("VERTEX_BASE_URL", fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", location)), "/"),
		ImagenModel:            getEnv("IMAGEN_MODEL", "imagen-3.0-generate-001"),
		ImagenAspectRatio:      getEnv("IMAGEN_ASPECT_RATIO", "1:1"),
		UpscaleFactor:          strings.ToLower(getEnv("IMAGEN_UPSCALE_FACTOR", "x2")),
		MediaProvider:          strings.ToLower(getEnv("MEDIA_PROVIDER", MediaProviderCloudinary)),
		CloudinaryCloudName:    strings.TrimSpace(os.Getenv("CLOUDINARY_CLOUD_NAME")),
		CloudinaryUploadPreset: getEnv("CLOUDINARY_UPLOAD_PRESET", "ml_default"),
		CloudinaryBaseURL:      strings.TrimRight(getEnv("CLOUDINARY_BASE_URL", "https://api.cloudinary.com/v1_1"), "/"),
		MinIOEndpoint:          strings.TrimSpace(os.Getenv("MINIO_ENDPOINT")),
		MinIOAccessKey:         os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:         os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:            strings.TrimSpace(os.Getenv("MINIO_BUCKET")),
		MinIORegion:            getEnv("MINIO_REGION", "us-east-1"),
		MinIOUseSSL:            minioSSL,
		MinIOPublicBaseURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("MINIO_PUBLIC_BASE_URL")), "/"),
		StoragePath:            getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:         strings.TrimRight(getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)), "/"),
		CORSAllowedOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		HTTPReadTimeout:        readTimeout,
		HTTPWriteTimeout:       writeTimeout,
		HTTPIdleTimeout:        idleTimeout,
		HTTPClientTimeout:      clientTimeout,
		MaxBodyBytes:           int64(maxBody),
	}

	if len(cfg.ServiceAccountJSON) == 0 {
		return nil, fmt.Errorf("SERVICE_ACCOUNT_JSON is required")
	}
	if cfg.VertexProjectID == "" {
		cfg.VertexProjectID = projectIDFromCredential(cfg.ServiceAccountJSON)
	}
	if cfg.VertexProjectID == "" {
		return nil, fmt.Errorf("VERTEX_PROJECT_ID is required")
	}

	switch cfg.UpscaleFactor {
	case "x2", "x4":
	default:
		return nil, fmt.Errorf("IMAGEN_UPSCALE_FACTOR must be x2 or x4, got %q", cfg.UpscaleFactor)
	}

	switch cfg.MediaProvider {
	case MediaProviderCloudinary:
		if cfg.CloudinaryCloudName == "" {
			return nil, fmt.Errorf("CLOUDINARY_CLOUD_NAME is required")
		}
	case MediaProviderMinIO:
		if cfg.MinIOEndpoint == "" || cfg.MinIOBucket == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required")
		}
	case MediaProviderFilesystem:
	default:
		return nil, fmt.Errorf("unsupported MEDIA_PROVIDER %q", cfg.MediaProvider)
	}

	return cfg, nil
}

// projectIDFromCredential reads project_id from a service-account key. A
// malformed key yields "" here; the token provider reports the real error.
func projectIDFromCredential(raw []byte) string {
	var key struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(raw, &key); err != nil {
		return ""
	}
	return strings.TrimSpace(key.ProjectID)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvPositiveInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || i <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return i, nil
}

func getEnvSeconds(key string, fallback int) (time.Duration, error) {
	n, err := getEnvPositiveInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
