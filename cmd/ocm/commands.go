// ABOUTME: Admin subcommands: init, bootstrap, token management and health
// ABOUTME: Token commands open the SQLite store directly; health goes over HTTP

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/ocm/internal/auth"
	"github.com/2389/ocm/internal/config"
	"github.com/2389/ocm/internal/store"
)

// openTokenAuthority opens the configured store for offline token management.
func openTokenAuthority() (*auth.TokenAuthority, func(), error) {
	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return nil, nil, err
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return auth.NewTokenAuthority(s, quiet), func() { s.Close() }, nil
}

// runBootstrap creates the first API token when the token table is empty.
func runBootstrap(ctx context.Context) error {
	tokens, closeStore, err := openTokenAuthority()
	if err != nil {
		return err
	}
	defer closeStore()

	token, err := tokens.BootstrapFirstToken(ctx)
	if err != nil {
		return fmt.Errorf("bootstrapping token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("bootstrap already complete: api tokens exist (use 'ocm token create')")
	}
	printBootstrapToken(token)
	return nil
}

func runToken(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: ocm token <create|list|revoke|delete>")
	}

	tokens, closeStore, err := openTokenAuthority()
	if err != nil {
		return err
	}
	defer closeStore()

	switch args[0] {
	case "create":
		var comment string
		flags := pflag.NewFlagSet("token create", pflag.ContinueOnError)
		flags.StringVarP(&comment, "comment", "c", "", "label shown in token listings")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		plaintext, rec, err := tokens.CreateAPIToken(ctx, strings.TrimSpace(comment))
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Printf("  ✓ Created token %s\n", rec.ID)
		fmt.Printf("\n    %s\n\n", plaintext)
		color.New(color.FgYellow).Println("  Store it now: it cannot be shown again.")
		return nil

	case "list":
		list, err := tokens.ListAPITokens(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCOMMENT\tCREATED\tLAST USED\tACTIVE")
		for _, t := range list {
			comment := "-"
			if t.Comment != nil {
				comment = *t.Comment
			}
			lastUsed := "never"
			if t.LastUsedAt != nil {
				lastUsed = t.LastUsedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
				t.ID, comment, t.CreatedAt.Local().Format(time.DateTime), lastUsed, t.IsActive)
		}
		return w.Flush()

	case "revoke", "delete":
		if len(args) != 2 {
			return fmt.Errorf("usage: ocm token %s ID", args[0])
		}
		var ok bool
		if args[0] == "revoke" {
			ok, err = tokens.RevokeAPIToken(ctx, args[1])
		} else {
			ok, err = tokens.DeleteAPIToken(ctx, args[1])
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("token %s not found", args[1])
		}
		color.New(color.FgGreen).Printf("  ✓ Token %s %sd\n", args[1], args[0])
		return nil

	default:
		return fmt.Errorf("unknown token command: %s", args[0])
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/api/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("ocm configuration setup")
	fmt.Println("=======================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDbPath := filepath.Join(getDataPath(), "ocm.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Tailscale Configuration ---")
	tailscaleEnabled := isYes(prompt(reader, "Enable Tailscale?", "no"))
	var tsHostname, tsAuthKey string
	var tsEphemeral, tsHTTPS bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "ocm")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		tsEphemeral = isYes(prompt(reader, "Ephemeral node?", "no"))
		tsHTTPS = isYes(prompt(reader, "Serve HTTPS with tailnet certificates?", "yes"))
	}

	fmt.Println("\n--- Askpass Configuration ---")
	var jwtSecret string
	if isYes(prompt(reader, "Require askpass session tokens?", "yes")) {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generating askpass secret: %w", err)
		}
		jwtSecret = hex.EncodeToString(secret)
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", config.DefaultLogLevel)
	logFormat := prompt(reader, "Log format (text/json)", config.DefaultLogFormat)

	var cfg strings.Builder
	cfg.WriteString("# ocm configuration\n")
	cfg.WriteString("# Generated by ocm init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n\n", httpAddr))

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n\n", dbPath))

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
		cfg.WriteString(fmt.Sprintf("  https: %t\n", tsHTTPS))
	}
	cfg.WriteString("\n")

	cfg.WriteString("askpass:\n")
	if jwtSecret != "" {
		cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", jwtSecret))
	}
	cfg.WriteString("  session_ttl: \"12h\"\n\n")

	cfg.WriteString("credentials:\n")
	cfg.WriteString("  cache_ttl: \"60s\"\n\n")

	cfg.WriteString("ssh:\n")
	cfg.WriteString("  host_key_timeout: \"5m\"\n\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	if err := os.MkdirAll(filepath.Dir(outputFile), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// the file may hold the askpass secret and tailscale auth key
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  ocm serve\n")

	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
