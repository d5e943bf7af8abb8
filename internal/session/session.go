// Package session owns the single bearer credential shared by every network
// operation. The slot is read by many and written only here.
package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/scribe/internal/storage"
)

// Reasons passed to invalidation hooks.
const (
	ReasonExpired  = "expired"  // the credential's exp claim has passed
	ReasonRejected = "rejected" // the backend answered 401
	ReasonLogout   = "logout"
	ReasonExternal = "external" // another process cleared the credential file
)

// Session is the process-wide credential slot.
type Session struct {
	store  storage.Provider
	logger *slog.Logger

	mu    sync.RWMutex
	token string
	hooks []func(reason string)
}

// New loads the persisted credential (if any) into a new Session.
func New(store storage.Provider, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	token, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("session: load credential: %w", err)
	}
	return &Session{store: store, logger: logger, token: token}, nil
}

// Token returns the current credential. ok is false when unauthenticated.
func (s *Session) Token() (token string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Authenticated reports whether a credential is present.
func (s *Session) Authenticated() bool {
	_, ok := s.Token()
	return ok
}

// OnInvalidate registers fn to run whenever a present credential is cleared.
// Hooks run synchronously on the goroutine that cleared the slot.
func (s *Session) OnInvalidate(fn func(reason string)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

func (s *Session) set(token string) error {
	if err := s.store.Save(token); err != nil {
		return fmt.Errorf("session: save credential: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// invalidate clears the slot unconditionally.
func (s *Session) invalidate(reason string) {
	s.clear("", reason)
}

// invalidateToken clears the slot only if it still holds token, so a 401 for
// a stale credential never discards a newer login.
func (s *Session) invalidateToken(token, reason string) {
	s.clear(token, reason)
}

func (s *Session) clear(expect, reason string) {
	s.mu.Lock()
	if s.token == "" || (expect != "" && s.token != expect) {
		s.mu.Unlock()
		return
	}
	s.token = ""
	hooks := append([]func(string){}, s.hooks...)
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		s.logger.Warn("session: clear credential failed", slog.String("error", err.Error()))
	}
	s.logger.Info("session: credential cleared", slog.String("reason", reason))
	for _, fn := range hooks {
		fn(reason)
	}
}

// reload re-reads the persisted credential after an external change.
func (s *Session) reload() error {
	token, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("session: reload credential: %w", err)
	}

	s.mu.Lock()
	prev := s.token
	s.token = token
	hooks := append([]func(string){}, s.hooks...)
	s.mu.Unlock()

	if prev != "" && token == "" {
		s.logger.Info("session: credential removed externally")
		for _, fn := range hooks {
			fn(ReasonExternal)
		}
	}
	return nil
}
