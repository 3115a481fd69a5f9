package askpass

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGitEnv_ReplacesManagedKeys(t *testing.T) {
	base := []string{
		"PATH=/usr/bin",
		"GIT_ASKPASS=/old/askpass",
		"SSH_ASKPASS=/old/askpass",
		"OCM_ASKPASS_TOKEN=stale",
		"HOME=/home/dev",
	}

	env := GitEnv(base, GitEnvOptions{AskpassPath: "/usr/local/bin/ocm-askpass", SessionToken: "fresh"})

	assert.Contains(t, env, "PATH=/usr/bin")
	assert.Contains(t, env, "HOME=/home/dev")
	assert.Contains(t, env, "GIT_ASKPASS=/usr/local/bin/ocm-askpass")
	assert.Contains(t, env, "SSH_ASKPASS=/usr/local/bin/ocm-askpass")
	assert.Contains(t, env, "SSH_ASKPASS_REQUIRE=force")
	assert.Contains(t, env, "GIT_TERMINAL_PROMPT=0")
	assert.Contains(t, env, EnvURL+"="+DefaultURL)
	assert.Contains(t, env, EnvToken+"=fresh")
	assert.NotContains(t, env, "GIT_ASKPASS=/old/askpass")
	assert.NotContains(t, env, "OCM_ASKPASS_TOKEN=stale")
}

func TestGitEnv_NoSessionToken(t *testing.T) {
	env := GitEnv(nil, GitEnvOptions{AskpassPath: "/bin/ocm-askpass", URL: "http://127.0.0.1:9/git/askpass"})
	assert.Contains(t, env, EnvURL+"=http://127.0.0.1:9/git/askpass")
	for _, kv := range env {
		assert.NotContains(t, kv, EnvToken+"=")
	}
}

func TestGitEnv_ExportsTimeout(t *testing.T) {
	base := []string{EnvTimeout + "=1s"}
	env := GitEnv(base, GitEnvOptions{AskpassPath: "/bin/ocm-askpass", Timeout: 11 * time.Minute})
	assert.Contains(t, env, EnvTimeout+"=11m0s")
	assert.NotContains(t, env, EnvTimeout+"=1s")
}

func TestBridgeTimeout_OutlastsHostKeyWait(t *testing.T) {
	assert.Equal(t, DefaultTimeout, BridgeTimeout(5*time.Minute))
	assert.Equal(t, DefaultTimeout, BridgeTimeout(0))
	assert.Equal(t, 11*time.Minute, BridgeTimeout(10*time.Minute))
}
