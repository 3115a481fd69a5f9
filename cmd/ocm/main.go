// ABOUTME: Entry point for the ocm dashboard server and its admin commands
// ABOUTME: Brokers Git credentials and SSH host-key trust for agent sessions

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/ocm/internal/config"
	"github.com/2389/ocm/internal/server"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
   ___   ___ _ __ ___
  / _ \ / __| '_ ' _ \
 | (_) | (__| | | | | |
  \___/ \___|_| |_| |_|
`

// getConfigPath returns the path to the ocm config file.
// Priority: OCM_CONFIG env var > XDG_CONFIG_HOME/ocm/config.yaml > ~/.config/ocm/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("OCM_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "ocm", "config.yaml")
}

// getDataPath returns the path to the ocm data directory.
// Priority: XDG_DATA_HOME/ocm > ~/.local/share/ocm
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "ocm")
}

// loadConfig reads the config file when it exists and falls back to
// defaults otherwise. OCM_* environment overrides apply either way.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		cfg.Database.Path = filepath.Join(getDataPath(), "ocm.db")
	} else {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	return cfg, nil
}

func usage() {
	fmt.Println("Usage: ocm <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                       Start the dashboard server")
	fmt.Println("  init                        Create a new config file interactively")
	fmt.Println("  bootstrap                   Create the first API token on a fresh install")
	fmt.Println("  token create [--comment C]  Create an API token")
	fmt.Println("  token list                  List API tokens")
	fmt.Println("  token revoke ID             Revoke an API token")
	fmt.Println("  token delete ID             Delete an API token")
	fmt.Println("  health                      Check server health")
	fmt.Println("  git-env                     Print the environment for brokered Git commands")
	fmt.Println("  exec -- CMD [ARGS...]       Run a command with brokered Git credentials")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx)
	case "token":
		err = runToken(ctx, args)
	case "health":
		err = runHealth(ctx)
	case "git-env":
		err = runGitEnv(args)
	case "exec":
		var code int
		code, err = runExec(ctx, args)
		if err == nil {
			cancel()
			os.Exit(code)
		}
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Auth.Disabled {
		red.Println("    ! API authentication disabled")
	}
	fmt.Println()

	logger.Info("starting ocm",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"tailscale", cfg.Tailscale.Enabled,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	token, err := srv.Bootstrap(ctx)
	if err != nil {
		_ = srv.Shutdown(context.Background())
		return err
	}
	if token != "" {
		printBootstrapToken(token)
	}

	return srv.Run(ctx)
}

// printBootstrapToken shows a freshly created first token. It is never
// written to the log.
func printBootstrapToken(token string) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Println("  ✓ Created bootstrap API token")
	fmt.Println()
	fmt.Printf("    %s\n", token)
	fmt.Println()
	yellow.Println("  Store it now: it cannot be shown again.")
	fmt.Println()
}
