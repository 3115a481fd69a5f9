// ABOUTME: Environment for Git and SSH child processes that should use the bridge
// ABOUTME: Points GIT_ASKPASS and SSH_ASKPASS at ocm-askpass and disables terminal prompts

package askpass

import (
	"strings"
	"time"
)

// GitEnvOptions describes how a child process reaches the server.
type GitEnvOptions struct {
	// AskpassPath is the absolute path of the ocm-askpass binary.
	AskpassPath string
	// URL of the askpass endpoint; empty means DefaultURL.
	URL string
	// SessionToken is an askpass session token, if the server requires one.
	SessionToken string
	// Timeout overrides the bridge's DefaultTimeout when positive.
	Timeout time.Duration
}

// BridgeTimeout returns a bridge timeout that outlasts a server-side host-key
// wait of hostKeyTimeout, never below DefaultTimeout.
func BridgeTimeout(hostKeyTimeout time.Duration) time.Duration {
	if t := hostKeyTimeout + time.Minute; t > DefaultTimeout {
		return t
	}
	return DefaultTimeout
}

var managedKeys = []string{
	"GIT_ASKPASS",
	"SSH_ASKPASS",
	"SSH_ASKPASS_REQUIRE",
	"GIT_TERMINAL_PROMPT",
	EnvURL,
	EnvToken,
	EnvTimeout,
}

// GitEnv returns base with the askpass variables replaced by values from opts.
func GitEnv(base []string, opts GitEnvOptions) []string {
	out := make([]string, 0, len(base)+len(managedKeys))
	for _, kv := range base {
		if !isManaged(kv) {
			out = append(out, kv)
		}
	}

	url := opts.URL
	if url == "" {
		url = DefaultURL
	}
	out = append(out,
		"GIT_ASKPASS="+opts.AskpassPath,
		"SSH_ASKPASS="+opts.AskpassPath,
		"SSH_ASKPASS_REQUIRE=force",
		"GIT_TERMINAL_PROMPT=0",
		EnvURL+"="+url,
	)
	if opts.SessionToken != "" {
		out = append(out, EnvToken+"="+opts.SessionToken)
	}
	if opts.Timeout > 0 {
		out = append(out, EnvTimeout+"="+opts.Timeout.String())
	}
	return out
}

func isManaged(kv string) bool {
	key, _, _ := strings.Cut(kv, "=")
	for _, k := range managedKeys {
		if key == k {
			return true
		}
	}
	return false
}
