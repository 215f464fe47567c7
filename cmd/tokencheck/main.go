package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"patternsvc/internal/infra"
	"patternsvc/internal/infra/credentials"
)

func main() {
	var (
		keyFileFlag string
		scopeFlag   string
		timeoutFlag time.Duration
	)
	flag.StringVar(&keyFileFlag, "key-file", "", "service account JSON file (fallbacks to SERVICE_ACCOUNT_JSON)")
	flag.StringVar(&scopeFlag, "scope", credentials.CloudPlatformScope, "OAuth scope to request")
	flag.DurationVar(&timeoutFlag, "timeout", 15*time.Second, "token exchange timeout")
	flag.Parse()

	_ = godotenv.Load()

	var key []byte
	if path := strings.TrimSpace(keyFileFlag); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read key file: %v\n", err)
			os.Exit(1)
		}
		key = raw
	} else {
		key = []byte(strings.TrimSpace(os.Getenv("SERVICE_ACCOUNT_JSON")))
	}
	if len(key) == 0 {
		fmt.Fprintln(os.Stderr, "service account key is required via -key-file or SERVICE_ACCOUNT_JSON")
		os.Exit(1)
	}

	logger := infra.NewLogger("cli").With().Str("cmd", "tokencheck").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()

	tok, err := credentials.NewServiceAccount(key, nil, scopeFlag).Fetch(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("token exchange failed")
		os.Exit(1)
	}

	fmt.Printf("token acquired (type %s, expires %s)\n", tok.Type(), tok.Expiry.Format(time.RFC3339))
}
