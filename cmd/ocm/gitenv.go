// ABOUTME: git-env and exec subcommands that route Git prompts through ocm-askpass
// ABOUTME: Mints an askpass session token when the server requires one

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/2389/ocm/internal/askpass"
	"github.com/2389/ocm/internal/auth"
	"github.com/2389/ocm/internal/config"
)

const askpassBinary = "ocm-askpass"

// resolveAskpassPath prefers an explicit path, then a binary next to this
// executable, then $PATH.
func resolveAskpassPath(explicit string) (string, error) {
	if explicit != "" {
		return filepath.Abs(explicit)
	}
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), askpassBinary)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(askpassBinary)
	if err != nil {
		return "", fmt.Errorf("cannot find %s (use --askpass): %w", askpassBinary, err)
	}
	return filepath.Abs(path)
}

// gitEnvOptions builds the askpass wiring for cfg.
func gitEnvOptions(cfg *config.Config, askpassPath string) (askpass.GitEnvOptions, error) {
	opts := askpass.GitEnvOptions{
		AskpassPath: askpassPath,
		URL:         "http://" + cfg.Server.HTTPAddr + askpass.Path,
		Timeout:     askpass.BridgeTimeout(cfg.SSH.HostKeyTimeout),
	}
	if cfg.Askpass.JWTSecret == "" {
		return opts, nil
	}
	issuer, err := auth.NewSessionIssuer([]byte(cfg.Askpass.JWTSecret))
	if err != nil {
		return opts, err
	}
	opts.SessionToken, err = issuer.Issue("git", cfg.Askpass.SessionTTL)
	if err != nil {
		return opts, fmt.Errorf("issuing askpass session: %w", err)
	}
	return opts, nil
}

func parseAskpassFlags(name string, args []string) (*pflag.FlagSet, string, error) {
	var askpassPath string
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.StringVar(&askpassPath, "askpass", "", "path to the ocm-askpass binary")
	flags.SetInterspersed(false)
	if err := flags.Parse(args); err != nil {
		return nil, "", err
	}
	return flags, askpassPath, nil
}

// runGitEnv prints shell export lines for the askpass variables.
func runGitEnv(args []string) error {
	_, explicit, err := parseAskpassFlags("git-env", args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}
	askpassPath, err := resolveAskpassPath(explicit)
	if err != nil {
		return err
	}
	opts, err := gitEnvOptions(cfg, askpassPath)
	if err != nil {
		return err
	}

	for _, kv := range askpass.GitEnv(nil, opts) {
		key, value, _ := strings.Cut(kv, "=")
		fmt.Printf("export %s='%s'\n", key, strings.ReplaceAll(value, "'", `'\''`))
	}
	return nil
}

// runExec runs a command with the askpass environment and returns its exit code.
func runExec(ctx context.Context, args []string) (int, error) {
	flags, explicit, err := parseAskpassFlags("exec", args)
	if err != nil {
		return 0, err
	}
	cmdArgs := flags.Args()
	if len(cmdArgs) == 0 {
		return 0, fmt.Errorf("usage: ocm exec [--askpass PATH] -- CMD [ARGS...]")
	}

	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return 0, err
	}
	askpassPath, err := resolveAskpassPath(explicit)
	if err != nil {
		return 0, err
	}
	opts, err := gitEnvOptions(cfg, askpassPath)
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, cmdArgs[0], cmdArgs[1:]...)
	cmd.Env = askpass.GitEnv(os.Environ(), opts)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("running %s: %w", cmdArgs[0], err)
	}
	return 0, nil
}
