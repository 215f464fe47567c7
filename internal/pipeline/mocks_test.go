package pipeline

import (
	"context"
	"sync"

	"patternsvc/internal/imagegen"
	"patternsvc/internal/storage"
)

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) Token(ctx context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type generateCall struct {
	token       string
	prompt      string
	sampleCount int
}

type fakeModel struct {
	mu          sync.Mutex
	generated   imagegen.GeneratedImage
	upscaled    imagegen.UpscaledImage
	genErr      error
	upErr       error
	genCalls    []generateCall
	upscaleArgs []imagegen.GeneratedImage
}

func (f *fakeModel) Generate(ctx context.Context, token, prompt string, sampleCount int) (imagegen.GeneratedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genCalls = append(f.genCalls, generateCall{token: token, prompt: prompt, sampleCount: sampleCount})
	if f.genErr != nil {
		return imagegen.GeneratedImage{}, f.genErr
	}
	return f.generated, nil
}

func (f *fakeModel) Upscale(ctx context.Context, token string, img imagegen.GeneratedImage) (imagegen.UpscaledImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upscaleArgs = append(f.upscaleArgs, img)
	if f.upErr != nil {
		return imagegen.UpscaledImage{}, f.upErr
	}
	return f.upscaled, nil
}

type fakeUploader struct {
	url   string
	err   error
	calls int
	data  []byte
	name  string
}

func (f *fakeUploader) Upload(ctx context.Context, data []byte, filename string) (storage.UploadResult, error) {
	f.calls++
	f.data = data
	f.name = filename
	if f.err != nil {
		return storage.UploadResult{}, f.err
	}
	return storage.UploadResult{URL: f.url}, nil
}
