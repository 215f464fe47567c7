package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"patternsvc/internal/bootstrap"
	"patternsvc/internal/domain"
	"patternsvc/internal/infra"
	"patternsvc/internal/middleware"
)

func main() {
	var (
		textFlag    string
		styleFlag   string
		moodFlag    string
		detailFlag  string
		samplesFlag int
	)
	flag.StringVar(&textFlag, "text", "", "pattern subject, e.g. \"roses\"")
	flag.StringVar(&styleFlag, "style", "", "design style, e.g. \"watercolor\"")
	flag.StringVar(&moodFlag, "mood", "", "color mood, e.g. \"warm\"")
	flag.StringVar(&detailFlag, "detail", "", "detail level, e.g. \"highly detailed\"")
	flag.IntVar(&samplesFlag, "samples", domain.DefaultSampleCount, "candidates to request; only the first is used")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "generate").Logger()

	svc, err := bootstrap.NewService(cfg, logger)
	if err != nil {
		exitWithError(err)
	}

	req := domain.PromptRequest{
		Text:        textFlag,
		DesignStyle: styleFlag,
		ColorMood:   moodFlag,
		DetailLevel: detailFlag,
		SampleCount: &samplesFlag,
	}
	ctx := middleware.ContextWithRequestID(context.Background(), uuid.NewString())
	res, err := svc.Pipeline.Run(ctx, req)
	if err != nil {
		exitWithError(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "generate: %v\n", err)
	os.Exit(1)
}
