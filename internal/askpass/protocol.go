// ABOUTME: Wire types and constants shared by the askpass bridge and server
// ABOUTME: JSON bodies for POST /git/askpass and environment variable names

package askpass

import "time"

// Environment variables read by the bridge.
const (
	EnvURL     = "OCM_ASKPASS_URL"
	EnvToken   = "OCM_ASKPASS_TOKEN"
	EnvTimeout = "OCM_ASKPASS_TIMEOUT"
	EnvDebug   = "OCM_ASKPASS_DEBUG"
)

// SessionHeader carries the askpass session token.
const SessionHeader = "X-OCM-Askpass-Token"

// Path is the server route the bridge posts to.
const Path = "/git/askpass"

// DefaultURL targets a server on the default loopback address.
const DefaultURL = "http://127.0.0.1:7420" + Path

// DefaultTimeout bounds one bridge call. It must exceed the server's SSH
// host-key timeout so the server's auto-reject reaches the bridge first;
// see BridgeTimeout for longer configured waits.
const DefaultTimeout = 6 * time.Minute

// Request is the body of POST /git/askpass.
type Request struct {
	Prompt string `json:"prompt"`
	Cwd    string `json:"cwd"`
}

// Response is the reply. Token is "" when nothing applies.
type Response struct {
	Token string `json:"token"`
	Error string `json:"error,omitempty"`
}
