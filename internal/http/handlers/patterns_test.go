package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patternsvc/internal/domain"
	"patternsvc/internal/imagegen"
	"patternsvc/internal/infra/credentials"
	"patternsvc/internal/pipeline"
	"patternsvc/internal/storage"
)

const rosesPrompt = "A seamless, repeating pattern of roses, in watercolor style, with warm tones. The illustration is highly detailed, no background, vector-friendly, made for real fabric printing."

func rosesBody() map[string]any {
	return map[string]any{
		"text":        "roses",
		"designStyle": "watercolor",
		"colorMood":   "warm",
		"detailLevel": "highly detailed",
	}
}

// upstream fakes the predict endpoint and the media host in one server.
type upstream struct {
	mu           sync.Mutex
	generateHits int
	upscaleHits  int
	uploadHits   int
	bodies       []map[string]any
	uploaded     []byte

	generateStatus int
	generateBody   string
	uploadStatus   int
	uploadBody     string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if strings.HasSuffix(r.URL.Path, "/image/upload") {
		u.uploadHits++
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			if f, _, err := r.FormFile("file"); err == nil {
				u.uploaded, _ = io.ReadAll(f)
				f.Close()
			}
		}
		if u.uploadStatus != 0 {
			w.WriteHeader(u.uploadStatus)
			_, _ = io.WriteString(w, u.uploadBody)
			return
		}
		_, _ = io.WriteString(w, `{"secure_url":"https://res.cloudinary.com/demo/image/upload/pattern.png"}`)
		return
	}

	var payload map[string]any
	_ = json.NewDecoder(r.Body).Decode(&payload)
	u.bodies = append(u.bodies, payload)
	if _, ok := payload["parameters"]; ok {
		u.upscaleHits++
		_, _ = io.WriteString(w, `{"predictions":[{"bytesBase64Encoded":"`+base64.StdEncoding.EncodeToString([]byte("upscaled-png"))+`","mimeType":"image/png"}]}`)
		return
	}
	u.generateHits++
	if u.generateStatus != 0 {
		w.WriteHeader(u.generateStatus)
		_, _ = io.WriteString(w, u.generateBody)
		return
	}
	if u.generateBody != "" {
		_, _ = io.WriteString(w, u.generateBody)
		return
	}
	_, _ = io.WriteString(w, `{"predictions":[{"bytesBase64Encoded":"`+base64.StdEncoding.EncodeToString([]byte("small-png"))+`"}]}`)
}

func newEndToEndApp(t *testing.T, up *upstream) *App {
	t.Helper()
	ts := httptest.NewServer(up)
	t.Cleanup(ts.Close)

	model, err := imagegen.NewVertexClient(imagegen.VertexOptions{
		BaseURL:    ts.URL + "/v1",
		ProjectID:  "pattern-project",
		HTTPClient: ts.Client(),
	})
	require.NoError(t, err)
	uploader, err := storage.NewCloudinaryUploader(storage.CloudinaryOptions{
		BaseURL:    ts.URL + "/v1_1",
		CloudName:  "demo",
		HTTPClient: ts.Client(),
	})
	require.NoError(t, err)
	p, err := pipeline.New(credentials.Static("tok"), model, uploader, zerolog.Nop())
	require.NoError(t, err)
	return NewApp(zerolog.Nop(), p)
}

func post(t *testing.T, app *App, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	switch v := body.(type) {
	case string:
		raw = []byte(v)
	default:
		var err error
		raw, err = json.Marshal(v)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/generate-image", bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	app.GeneratePattern(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestGeneratePatternEndToEnd(t *testing.T) {
	up := &upstream{}
	app := newEndToEndApp(t, up)

	rr := post(t, app, rosesBody())

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode(t, rr)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/pattern.png", resp["imageUrl"])
	assert.Equal(t, rosesPrompt, resp["prompt"])

	assert.Equal(t, 1, up.generateHits)
	assert.Equal(t, 1, up.upscaleHits)
	assert.Equal(t, 1, up.uploadHits)
	assert.Equal(t, []byte("upscaled-png"), up.uploaded)

	require.Len(t, up.bodies, 2)
	genInstance := up.bodies[0]["instances"].([]any)[0].(map[string]any)
	assert.Equal(t, rosesPrompt, genInstance["prompt"])
	assert.Equal(t, float64(1), genInstance["sampleCount"])

	upInstance := up.bodies[1]["instances"].([]any)[0].(map[string]any)
	assert.NotContains(t, upInstance, "sampleCount")
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("small-png")), upInstance["image"].(map[string]any)["bytesBase64Encoded"])
	params := up.bodies[1]["parameters"].(map[string]any)
	assert.Equal(t, "upscale", params["mode"])
	assert.Equal(t, "x2", params["upscaleConfig"].(map[string]any)["upscaleFactor"])
}

func TestGeneratePatternMissingFields(t *testing.T) {
	for _, field := range []string{"text", "designStyle", "colorMood", "detailLevel"} {
		for _, mode := range []string{"empty", "absent"} {
			t.Run(field+"_"+mode, func(t *testing.T) {
				up := &upstream{}
				app := newEndToEndApp(t, up)
				body := rosesBody()
				if mode == "empty" {
					body[field] = ""
				} else {
					delete(body, field)
				}

				rr := post(t, app, body)

				assert.Equal(t, http.StatusBadRequest, rr.Code)
				assert.Equal(t, map[string]any{"error": "Missing required fields."}, decode(t, rr))
				assert.Zero(t, up.generateHits+up.upscaleHits+up.uploadHits, "no remote calls")
			})
		}
	}
}

func TestGeneratePatternEmptyBody(t *testing.T) {
	up := &upstream{}
	rr := post(t, newEndToEndApp(t, up), "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Missing required fields.", decode(t, rr)["error"])
}

func TestGeneratePatternInvalidBody(t *testing.T) {
	up := &upstream{}
	app := newEndToEndApp(t, up)

	valid := `{"text":"roses","designStyle":"watercolor","colorMood":"warm","detailLevel":"highly detailed"}`
	for _, body := range []string{`{"text":`, `{"text":"roses","sampleCount":"two"}`, `[]`, valid + ` garbage`, valid + valid, valid + `}`} {
		rr := post(t, app, body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, "Invalid request body.", decode(t, rr)["error"], body)
	}
	assert.Zero(t, up.generateHits)
}

func TestGeneratePatternTrailingWhitespaceAccepted(t *testing.T) {
	up := &upstream{}
	raw, err := json.Marshal(rosesBody())
	require.NoError(t, err)

	rr := post(t, newEndToEndApp(t, up), string(raw)+"\n\t ")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, up.generateHits)
}

func TestGeneratePatternNonStringFieldIsMissing(t *testing.T) {
	for _, field := range []string{"text", "designStyle", "colorMood", "detailLevel"} {
		t.Run(field, func(t *testing.T) {
			up := &upstream{}
			body := rosesBody()
			body[field] = 5

			rr := post(t, newEndToEndApp(t, up), body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "Missing required fields.", decode(t, rr)["error"])
			assert.Zero(t, up.generateHits+up.upscaleHits+up.uploadHits, "no remote calls")
		})
	}
}

func TestGeneratePatternSampleCountRange(t *testing.T) {
	up := &upstream{}
	app := newEndToEndApp(t, up)
	body := rosesBody()
	body["sampleCount"] = 9

	rr := post(t, app, body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "sampleCount must be between 1 and 4.", decode(t, rr)["error"])
	assert.Zero(t, up.generateHits)
}

func TestGeneratePatternSampleCountForwarded(t *testing.T) {
	up := &upstream{generateBody: `{"predictions":[{"bytesBase64Encoded":"` + base64.StdEncoding.EncodeToString([]byte("first")) + `"},{"bytesBase64Encoded":"` + base64.StdEncoding.EncodeToString([]byte("second")) + `"}]}`}
	app := newEndToEndApp(t, up)
	body := rosesBody()
	body["sampleCount"] = 2

	rr := post(t, app, body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	genInstance := up.bodies[0]["instances"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(2), genInstance["sampleCount"])
	upInstance := up.bodies[1]["instances"].([]any)[0].(map[string]any)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("first")), upInstance["image"].(map[string]any)["bytesBase64Encoded"])
	assert.Equal(t, 1, up.upscaleHits)
}

func TestGeneratePatternGenerationFailure(t *testing.T) {
	up := &upstream{generateStatus: http.StatusBadRequest, generateBody: `{"error":{"code":400,"message":"Invalid sampleCount","status":"INVALID_ARGUMENT"}}`}
	rr := post(t, newEndToEndApp(t, up), rosesBody())

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decode(t, rr)
	assert.Equal(t, "Something went wrong on the server.", resp["error"])
	assert.Equal(t, "Invalid sampleCount", resp["details"])
	assert.NotContains(t, resp, "imageUrl")
	assert.Zero(t, up.upscaleHits, "upscale must not run after generation fails")
	assert.Zero(t, up.uploadHits, "upload must not run after generation fails")
}

func TestGeneratePatternGenerationEmpty(t *testing.T) {
	up := &upstream{generateBody: `{"predictions":[]}`}
	rr := post(t, newEndToEndApp(t, up), rosesBody())

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, decode(t, rr)["details"], "no usable image")
	assert.Zero(t, up.upscaleHits)
	assert.Zero(t, up.uploadHits)
}

func TestGeneratePatternUploadFailure(t *testing.T) {
	up := &upstream{uploadStatus: http.StatusBadRequest, uploadBody: `{"error":{"message":"Upload preset must be whitelisted for unsigned uploads"}}`}
	rr := post(t, newEndToEndApp(t, up), rosesBody())

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decode(t, rr)
	assert.NotContains(t, resp, "imageUrl")
	assert.Equal(t, "Upload preset must be whitelisted for unsigned uploads", resp["details"])
	assert.Equal(t, 1, up.generateHits)
	assert.Equal(t, 1, up.upscaleHits)
}

type stubGenerator struct {
	err error
	ctx context.Context
}

func (s *stubGenerator) Run(ctx context.Context, req domain.PromptRequest) (*pipeline.Result, error) {
	s.ctx = ctx
	if s.err != nil {
		return nil, s.err
	}
	return &pipeline.Result{ImageURL: "https://cdn.example.com/x.png", Prompt: "p"}, nil
}

func TestGeneratePatternErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{"auth", &pipeline.Failure{State: pipeline.StateAuthenticating, Err: &domain.AuthError{Err: errors.New("private key: bad PEM")}}, http.StatusInternalServerError, "authentication failed"},
		{"upscale empty", &domain.EmptyResultError{Stage: domain.StageUpscale, Reason: "response has no predictions"}, http.StatusInternalServerError, "upscale: no usable image: response has no predictions"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
		{"validation", &domain.ValidationError{Field: "text", Err: domain.ErrMissingFields}, http.StatusBadRequest, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := NewApp(zerolog.Nop(), &stubGenerator{err: tc.err})
			rr := post(t, app, rosesBody())

			assert.Equal(t, tc.wantStatus, rr.Code)
			resp := decode(t, rr)
			if tc.wantDetail == "" {
				assert.NotContains(t, resp, "details")
			} else {
				assert.Equal(t, tc.wantDetail, resp["details"])
			}
			assert.NotContains(t, rr.Body.String(), "private key", "credential errors must not leak")
		})
	}
}

func TestGeneratePatternDetachesFromClientCancellation(t *testing.T) {
	gen := &stubGenerator{}
	app := NewApp(zerolog.Nop(), gen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	raw, _ := json.Marshal(rosesBody())
	req := httptest.NewRequest(http.MethodPost, "/api/generate-image", bytes.NewReader(raw)).WithContext(ctx)
	rr := httptest.NewRecorder()
	app.GeneratePattern(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, gen.ctx)
	assert.NoError(t, gen.ctx.Err())
}
