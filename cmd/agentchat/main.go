// ABOUTME: Interactive terminal client for the streaming reasoning agent
// ABOUTME: Wires config, auth, transport, store and session controller into a REPL

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/2389/agentchat/internal/auth"
	"github.com/2389/agentchat/internal/config"
	"github.com/2389/agentchat/internal/conversation"
	"github.com/2389/agentchat/internal/render"
	"github.com/2389/agentchat/internal/session"
	"github.com/2389/agentchat/internal/transport"
)

// version is set at build time.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Config file (YAML or TOML)")
	server := flag.String("server", "", "Agent base URL (overrides config)")
	execute := flag.Bool("execute", false, "Use the non-streaming execute endpoint")
	token := flag.String("token", "", "API key or bearer token (overrides config and "+auth.TokenEnvVar+")")
	scheme := flag.String("auth-scheme", "", "How the credential is sent: api_key or bearer (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("agentchat", version)
		return
	}

	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: reading .env: %v\n", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		cfg.Server.BaseURL = *server
	}
	if *execute {
		cfg.Server.Mode = config.ModeExecute
	}
	if *token != "" {
		cfg.Auth.Token = *token
	}
	if *scheme != "" {
		cfg.Auth.Scheme = *scheme
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the explicit config file, else the default file when it
// exists, else built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if def := config.DefaultPath(); def != "" {
		if _, err := os.Stat(def); err == nil {
			return config.Load(def)
		}
	}
	return config.Default(), nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := setupLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	scheme, err := auth.ParseScheme(cfg.Auth.Scheme)
	if err != nil {
		return err
	}
	token := auth.LoadToken(cfg.Auth.Token, cfg.Auth.TokenFile)
	checkCredential(logger, scheme, token)

	client := transport.New(transport.Config{
		BaseURL:     cfg.Server.BaseURL,
		StreamPath:  cfg.Server.StreamPath,
		ExecutePath: cfg.Server.ExecutePath,
		Token:       token,
		Scheme:      scheme,
		DialTimeout: cfg.Server.DialTimeout,
	}, logger)

	opener := session.StreamOpener(client)
	if cfg.Server.Mode == config.ModeExecute {
		opener = session.ExecuteOpener(client)
	}

	store := conversation.NewStore(logger)
	defer store.Close()

	ctrl := session.New(store, opener, logger)
	printer := render.NewPrinter(os.Stdout, cfg.Display.Markdown)
	ctrl.SetNotifier(func(err error) {
		printer.Notice("request failed: %v", err)
	})

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	if interactive {
		cyan := color.New(color.FgCyan)
		cyan.Printf("agentchat %s ", version)
		fmt.Printf("connected to %s (%s mode)\n", cfg.Server.BaseURL, cfg.Server.Mode)
		if token != "" {
			fmt.Printf("Auth: %s configured\n", scheme)
		} else {
			fmt.Printf("Auth: none (set %s for authentication)\n", auth.TokenEnvVar)
		}
		fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C stops a reply, or quits when idle.")
		fmt.Println()
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	a := &app{
		store:       store,
		ctrl:        ctrl,
		printer:     printer,
		in:          os.Stdin,
		out:         os.Stdout,
		interrupts:  interrupts,
		interactive: interactive,
	}
	err = a.loop(ctx)

	if interactive {
		fmt.Println("\nGoodbye!")
	}
	return err
}

// checkCredential warns about credentials the agent is likely to reject: API
// keys without the sk- prefix and expired JWTs. Opaque bearer tokens are
// passed through unchecked.
func checkCredential(logger *slog.Logger, scheme auth.Scheme, token string) {
	if token == "" {
		return
	}
	if scheme == auth.SchemeAPIKey {
		if err := auth.CheckAPIKeyFormat(token); err != nil {
			logger.Warn("API key looks malformed", "key", auth.MaskAPIKey(token), "error", err)
		}
		return
	}
	info, err := auth.Inspect(token)
	if err != nil {
		logger.Debug("token is not a JWT, sending as-is", "error", err)
		return
	}
	if info.Expired(time.Now()) {
		logger.Warn("bearer token has expired", "subject", info.Subject, "expired_at", info.ExpiresAt)
	}
}
