// ABOUTME: Adapters from the trust manager to golang.org/x/crypto/ssh clients
// ABOUTME: HostKeyCallback for in-process dials and known_hosts export of trusted keys

package sshtrust

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrHostKeyRejected is returned from HostKeyCallback when the key was not approved.
var ErrHostKeyRejected = errors.New("ssh host key not trusted")

// HostKeyCallback returns an ssh.HostKeyCallback that routes unknown keys
// through the manager. Each dial waits at most timeout for a decision; zero
// uses the manager timeout.
func (m *Manager) HostKeyCallback(ctx context.Context, timeout time.Duration) ssh.HostKeyCallback {
	if timeout <= 0 {
		timeout = m.timeout
	}
	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		verifyCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		hk := HostKeyFromPublicKey(hostname, key)
		decision, err := m.Verify(verifyCtx, hk)
		if err != nil {
			return err
		}
		if !decision.Trusted() {
			return fmt.Errorf("%w: %s %s (%s)", ErrHostKeyRejected, hk.Host, hk.Fingerprint, decision)
		}
		return nil
	}
}

// KnownHostsLines renders every trusted host whose full key is stored as a
// known_hosts line. Hosts trusted by fingerprint only are skipped.
func (m *Manager) KnownHostsLines(ctx context.Context) ([]string, error) {
	hosts, err := m.hosts.ListTrustedSSHHosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing trusted hosts: %w", err)
	}

	lines := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if strings.HasPrefix(h.PublicKey, "SHA256:") {
			continue
		}
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(h.PublicKey))
		if err != nil {
			m.logger.Warn("skipping unparseable trusted key", "host", h.Host, "error", err)
			continue
		}
		lines = append(lines, knownhosts.Line([]string{h.Host}, key))
	}
	return lines, nil
}
