// ABOUTME: Simulated agent execution service for manual end-to-end runs of agentchat
// ABOUTME: Usage: fake-agent [-addr localhost:8080] [-delay 80ms] [-api-key sk-...] [-secret s3cret]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/2389/agentchat/internal/auth"
	"github.com/2389/agentchat/internal/fakeagent"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "HTTP listen address")
	delay := flag.Duration("delay", 80*time.Millisecond, "Pause before each streamed frame")
	apiKey := flag.String("api-key", "", "Primary API key; when set, requests need X-API-Key (env FAKE_AGENT_API_KEY)")
	apiKeySecondary := flag.String("api-key-secondary", "", "Rotation API key also accepted (env FAKE_AGENT_API_KEY_SECONDARY)")
	requirePrefix := flag.Bool("require-prefix", true, "Reject API keys without the sk- prefix")
	secret := flag.String("secret", "", "HS256 secret; when set, bearer tokens are accepted (env FAKE_AGENT_SECRET)")
	mint := flag.String("mint", "", "Print a token for this subject signed with -secret and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: reading .env: %v\n", err)
	}
	if *secret == "" {
		*secret = os.Getenv("FAKE_AGENT_SECRET")
	}
	if *apiKey == "" {
		*apiKey = os.Getenv("FAKE_AGENT_API_KEY")
	}
	if *apiKeySecondary == "" {
		*apiKeySecondary = os.Getenv("FAKE_AGENT_API_KEY_SECONDARY")
	}

	var keys *auth.APIKeys
	if *apiKey != "" {
		keys = auth.NewAPIKeys(*requirePrefix, *apiKey, *apiKeySecondary)
	}

	if err := run(*addr, *delay, keys, *secret, *mint); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr string, delay time.Duration, keys *auth.APIKeys, secret, mint string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var verifier *auth.JWTVerifier
	if secret != "" {
		verifier = auth.NewJWTVerifier([]byte(secret))
	}

	if mint != "" {
		if verifier == nil {
			return errors.New("-mint needs -secret")
		}
		token, err := verifier.Generate(mint, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("generating token: %w", err)
		}
		fmt.Println(token)
		return nil
	}

	opts := fakeagent.Options{Delay: delay, APIKeys: keys}
	if verifier != nil {
		opts.Verifier = verifier
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           fakeagent.New(opts, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake agent listening", "addr", addr, "api_keys", keys != nil, "bearer", verifier != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
