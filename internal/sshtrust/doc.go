// Package sshtrust implements trust-on-first-use for SSH host keys.
//
// A Manager holds host-key presentations that need an operator decision.
// Each one becomes a pending request with an opaque id; the dashboard polls
// Status and Pending, and answers with Respond. A request resolves exactly
// once: accepted, rejected, or timed out (treated as rejected).
//
// Keys already in the trust store for the same host and key type are
// accepted without asking. A different key for a trusted host is flagged
// KeyChanged and still requires a fresh approval; the stored key is only
// replaced when that approval arrives.
//
// Two entry points feed the manager: Verify for callers that have parsed
// the key themselves (including HostKeyCallback for golang.org/x/crypto/ssh
// clients), and ParseHostKeyPrompt for the OpenSSH confirmation prompt that
// arrives through SSH_ASKPASS.
package sshtrust
