package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/grantflow/grantflow/pkg/credentials"
	"github.com/grantflow/grantflow/pkg/logger"
)

// Session memoizes expensive per-tenant client objects (SDK handles, bot
// connections) for the duration of one request scope. It replaces
// process-wide client globals: the cache key includes a credential
// fingerprint, so a rotated token never serves another tenant's client, and
// teardown is explicit via Close.
type Session struct {
	mu      sync.Mutex
	clients map[string]any
	closers []func() error
	closed  bool
}

// NewSession creates an empty session. The owner must call Close when the
// request scope ends.
func NewSession() *Session {
	return &Session{
		clients: make(map[string]any),
	}
}

// ClientKey derives the cache key for a (service, user, credential) triple.
// Only a short digest of the access token is used; the token itself never
// appears in the key.
func ClientKey(serviceName, userID string, cred *credentials.Credential) string {
	sum := sha256.Sum256([]byte(cred.AccessToken))
	return fmt.Sprintf("%s/%s/%s", serviceName, userID, hex.EncodeToString(sum[:4]))
}

// Client returns the cached client for key, building it on first use.
func (s *Session) Client(key string, build func() (any, error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}
	if client, ok := s.clients[key]; ok {
		return client, nil
	}

	client, err := build()
	if err != nil {
		return nil, err
	}
	s.clients[key] = client
	return client, nil
}

// OnClose registers a teardown hook, run in reverse order by Close.
func (s *Session) OnClose(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

// Close tears down the session. Hook failures are logged, not returned:
// teardown proceeds regardless.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warnf("Session teardown hook failed: %v", err)
		}
	}
	s.clients = nil
	s.closers = nil
}
