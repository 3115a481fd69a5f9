// ABOUTME: Trust-on-first-use manager for SSH host keys with operator approval
// ABOUTME: Pending requests resolve exactly once: accepted, rejected or timed out

package sshtrust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/ocm/internal/store"
)

// DefaultTimeout is how long a pending request waits before auto-rejecting.
const DefaultTimeout = 5 * time.Minute

// Errors returned by the manager.
var (
	ErrRequestNotFound = errors.New("request not found")
	ErrInvalidHostKey  = errors.New("host key requires host, key type and fingerprint")
)

// Decision is the outcome of a host-key presentation.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
	DecisionTimedOut Decision = "timed_out"
)

// Trusted reports whether the connection may proceed.
func (d Decision) Trusted() bool { return d == DecisionAccepted }

// Status summarizes the manager for polling clients.
type Status struct {
	PendingCount int `json:"pendingCount"`
}

// PendingSnapshot is a copy of a pending request safe to serialize.
type PendingSnapshot struct {
	RequestID           string    `json:"requestId"`
	Host                string    `json:"host"`
	KeyType             string    `json:"keyType"`
	Fingerprint         string    `json:"fingerprint"`
	KeyChanged          bool      `json:"keyChanged"`
	PreviousKeyType     string    `json:"previousKeyType,omitempty"`
	PreviousFingerprint string    `json:"previousFingerprint,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	ExpiresAt           time.Time `json:"expiresAt"`
}

type pendingRequest struct {
	snapshot PendingSnapshot
	key      HostKey
	timer    *time.Timer
	waiters  int
	decision Decision
	done     chan struct{}
}

// Options configures a Manager.
type Options struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Manager tracks pending host-key approvals against a trust store.
type Manager struct {
	hosts   store.TrustedHostStore
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// NewManager creates a manager backed by hosts.
func NewManager(hosts store.TrustedHostStore, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		hosts:   hosts,
		timeout: opts.Timeout,
		logger:  opts.Logger.With("component", "sshtrust"),
		now:     time.Now,
		pending: make(map[string]*pendingRequest),
	}
}

// Timeout returns the auto-reject timeout.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Verify decides whether key may be trusted, blocking until an operator
// responds, the request times out, or ctx ends. A key already trusted for
// the host is accepted at once. The error is non-nil only for invalid input
// or a trust store failure.
func (m *Manager) Verify(ctx context.Context, key HostKey) (Decision, error) {
	key.Host = NormalizeHost(key.Host)
	if key.Host == "" || key.KeyType == "" || key.Fingerprint == "" {
		return DecisionRejected, ErrInvalidHostKey
	}

	trusted, err := m.hosts.GetTrustedSSHHost(ctx, key.Host)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return DecisionRejected, fmt.Errorf("loading trusted host: %w", err)
	}

	// One row per host, so approving any other key replaces the trusted one.
	var previous *store.TrustedSSHHost
	if trusted != nil {
		if keyFamily(trusted.KeyType) == keyFamily(key.KeyType) && Fingerprint(trusted.PublicKey) == key.Fingerprint {
			m.logger.Debug("host key already trusted", "host", key.Host, "key_type", key.KeyType)
			return DecisionAccepted, nil
		}
		previous = trusted
	}

	pr := m.enqueue(key, previous)
	defer m.leave(pr)

	select {
	case <-pr.done:
		return pr.decision, nil
	case <-ctx.Done():
		return DecisionTimedOut, nil
	}
}

// enqueue registers a waiter on a matching pending request, creating one if needed.
// previous is the trusted record the key would replace, or nil.
func (m *Manager) enqueue(key HostKey, previous *store.TrustedSSHHost) *pendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, pr := range m.pending {
		if pr.key.Host == key.Host && keyFamily(pr.key.KeyType) == keyFamily(key.KeyType) &&
			pr.key.Fingerprint == key.Fingerprint {
			pr.waiters++
			if pr.key.PublicKey == "" && key.PublicKey != "" {
				pr.key.PublicKey = key.PublicKey
			}
			return pr
		}
	}

	now := m.now()
	snap := PendingSnapshot{
		RequestID:   uuid.New().String(),
		Host:        key.Host,
		KeyType:     key.KeyType,
		Fingerprint: key.Fingerprint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.timeout),
	}
	if previous != nil {
		snap.KeyChanged = true
		snap.PreviousKeyType = previous.KeyType
		snap.PreviousFingerprint = Fingerprint(previous.PublicKey)
	}
	pr := &pendingRequest{
		snapshot: snap,
		key:      key,
		waiters:  1,
		decision: DecisionPending,
		done:     make(chan struct{}),
	}
	id := pr.snapshot.RequestID
	pr.timer = time.AfterFunc(m.timeout, func() {
		if m.resolve(id, DecisionTimedOut) {
			m.logger.Warn("host key request timed out", "request_id", id, "host", key.Host)
		}
	})
	m.pending[id] = pr

	if pr.snapshot.KeyChanged {
		m.logger.Warn("host key changed, approval required",
			"request_id", id,
			"host", key.Host,
			"key_type", key.KeyType,
			"fingerprint", key.Fingerprint,
			"previous_key_type", snap.PreviousKeyType,
			"previous_fingerprint", snap.PreviousFingerprint,
		)
	} else {
		m.logger.Info("unknown host key, approval required",
			"request_id", id,
			"host", key.Host,
			"key_type", key.KeyType,
			"fingerprint", key.Fingerprint,
		)
	}
	return pr
}

// leave drops a waiter. When the last waiter gives up on an unresolved
// request, the request times out.
func (m *Manager) leave(pr *pendingRequest) {
	m.mu.Lock()
	pr.waiters--
	abandoned := pr.waiters == 0
	m.mu.Unlock()

	if abandoned {
		m.resolve(pr.snapshot.RequestID, DecisionTimedOut)
	}
}

// claim removes the request from the pending map. Only the first caller
// for an id gets it.
func (m *Manager) claim(id string) (*pendingRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pr, ok := m.pending[id]
	if !ok {
		return nil, false
	}
	delete(m.pending, id)
	pr.timer.Stop()
	return pr, true
}

func (pr *pendingRequest) finish(d Decision) {
	pr.decision = d
	close(pr.done)
}

// resolve claims and finishes a request. Returns false if it was already resolved.
func (m *Manager) resolve(id string, d Decision) bool {
	pr, ok := m.claim(id)
	if !ok {
		return false
	}
	pr.finish(d)
	return true
}

// Respond records the operator's answer for requestID. Approval persists
// the key before the waiting connection is released. Unknown and already
// resolved ids return ErrRequestNotFound.
func (m *Manager) Respond(ctx context.Context, requestID string, approved bool) error {
	pr, ok := m.claim(requestID)
	if !ok {
		return ErrRequestNotFound
	}

	if !approved {
		pr.finish(DecisionRejected)
		m.logger.Info("host key rejected", "request_id", requestID, "host", pr.key.Host)
		return nil
	}

	trusted := &store.TrustedSSHHost{
		Host:      pr.key.Host,
		KeyType:   pr.key.KeyType,
		PublicKey: pr.key.storedKey(),
	}
	if err := m.hosts.UpsertTrustedSSHHost(ctx, trusted); err != nil {
		pr.finish(DecisionRejected)
		return fmt.Errorf("saving trusted host: %w", err)
	}

	pr.finish(DecisionAccepted)
	m.logger.Info("host key accepted",
		"request_id", requestID,
		"host", pr.key.Host,
		"key_changed", pr.snapshot.KeyChanged,
	)
	return nil
}

// Status returns the number of unresolved requests.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{PendingCount: len(m.pending)}
}

// Pending returns snapshots of unresolved requests, oldest first.
func (m *Manager) Pending() []PendingSnapshot {
	m.mu.Lock()
	out := make([]PendingSnapshot, 0, len(m.pending))
	for _, pr := range m.pending {
		out = append(out, pr.snapshot)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Close rejects every pending request so blocked callers return.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.resolve(id, DecisionRejected)
	}
}
