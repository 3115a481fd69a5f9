// ABOUTME: Askpass bridge: forwards a Git/SSH prompt to the server and prints the answer
// ABOUTME: Fails fast with an empty line and non-zero exit on any transport problem

package askpass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Exit codes returned by Run.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

const maxResponseBytes = 64 << 10

// Env is the bridge's view of its environment.
type Env struct {
	URL     string
	Token   string
	Timeout time.Duration
	Cwd     string
	Debug   bool
}

// EnvFromOS reads Env from the process environment and working directory.
func EnvFromOS() Env {
	env := Env{
		URL:     os.Getenv(EnvURL),
		Token:   os.Getenv(EnvToken),
		Timeout: DefaultTimeout,
	}
	if env.URL == "" {
		env.URL = DefaultURL
	}
	if raw := os.Getenv(EnvTimeout); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			env.Timeout = d
		}
	}
	if debug, err := strconv.ParseBool(os.Getenv(EnvDebug)); err == nil {
		env.Debug = debug
	}
	if cwd, err := os.Getwd(); err == nil {
		env.Cwd = cwd
	}
	return env
}

// Run executes the bridge. args excludes the program name. The answer,
// or an empty line on failure, is written to stdout.
func Run(ctx context.Context, args []string, env Env, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return ExitUsage
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if env.Debug && stderr != nil {
		logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	logger = logger.With("component", "askpass")

	token, err := Ask(ctx, env, args[0])
	if err != nil {
		logger.Debug("askpass request failed", "error", err, "url", env.URL)
		fmt.Fprintln(stdout)
		return ExitFailure
	}

	logger.Debug("askpass answered", "empty", token == "")
	fmt.Fprintln(stdout, token)
	return ExitOK
}

// Ask posts prompt to the server and returns the token it answers with.
func Ask(ctx context.Context, env Env, prompt string) (string, error) {
	timeout := env.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(Request{Prompt: prompt, Cwd: env.Cwd})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if env.Token != "" {
		req.Header.Set(SessionHeader, env.Token)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("contacting server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return out.Token, nil
}
