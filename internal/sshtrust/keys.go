// ABOUTME: SSH host key parsing, fingerprints and OpenSSH prompt recognition
// ABOUTME: Key types are compared by family so prompt and wire names line up

package sshtrust

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKey is one presentation of a server key.
type HostKey struct {
	Host        string // known_hosts form: "host" or "[host]:port"
	KeyType     string // "ssh-ed25519", or "ED25519" when parsed from a prompt
	PublicKey   string // authorized_keys encoding, empty when only the fingerprint is known
	Fingerprint string // "SHA256:..."
}

// HostKeyFromPublicKey builds a HostKey from a parsed key.
func HostKeyFromPublicKey(host string, key ssh.PublicKey) HostKey {
	return HostKey{
		Host:        NormalizeHost(host),
		KeyType:     key.Type(),
		PublicKey:   strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key))),
		Fingerprint: ssh.FingerprintSHA256(key),
	}
}

// ParseAuthorizedKey parses an authorized_keys line into a HostKey for host.
func ParseAuthorizedKey(host, line string) (HostKey, error) {
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
	if err != nil {
		return HostKey{}, fmt.Errorf("parsing public key: %w", err)
	}
	return HostKeyFromPublicKey(host, key), nil
}

// NormalizeHost converts "host:22" to "host", "host:2222" to "[host]:2222",
// and lowercases the result.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}
	if !strings.Contains(host, ":") {
		return host
	}
	return knownhosts.Normalize(host)
}

// keyFamily maps wire names ("ssh-ed25519", "ecdsa-sha2-nistp256") and
// prompt names ("ED25519", "ECDSA") onto one label.
func keyFamily(keyType string) string {
	t := strings.ToLower(keyType)
	switch {
	case strings.Contains(t, "ed25519"):
		return "ED25519"
	case strings.Contains(t, "ecdsa"):
		return "ECDSA"
	case strings.Contains(t, "rsa"):
		return "RSA"
	case strings.Contains(t, "dss") || strings.Contains(t, "dsa"):
		return "DSA"
	default:
		return strings.ToUpper(keyType)
	}
}

// Fingerprint returns the fingerprint of a stored public_key column,
// which holds either a full key or a bare fingerprint.
func Fingerprint(stored string) string {
	if strings.HasPrefix(stored, "SHA256:") {
		return stored
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(stored))
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(key)
}

// storedKey is what goes into the public_key column for k.
func (k HostKey) storedKey() string {
	if k.PublicKey != "" {
		return k.PublicKey
	}
	return k.Fingerprint
}

var hostKeyPromptPattern = regexp.MustCompile(
	`(?s)authenticity of host '([^']+)' can't be established\..*?(\S+) key fingerprint is (SHA256:[A-Za-z0-9+/=]+)`)

// ParseHostKeyPrompt recognizes the OpenSSH first-connection prompt.
func ParseHostKeyPrompt(prompt string) (HostKey, bool) {
	m := hostKeyPromptPattern.FindStringSubmatch(prompt)
	if m == nil {
		return HostKey{}, false
	}
	host := m[1]
	// "github.com (140.82.112.3)" or "[git.corp]:2222 ([10.0.0.1]:2222)"
	if i := strings.Index(host, " ("); i >= 0 {
		host = host[:i]
	}
	return HostKey{
		Host:        NormalizeHost(host),
		KeyType:     m[2],
		Fingerprint: m[3],
	}, true
}

// IsHostKeyPrompt reports whether prompt is an OpenSSH host-key confirmation.
func IsHostKeyPrompt(prompt string) bool {
	_, ok := ParseHostKeyPrompt(prompt)
	return ok
}
