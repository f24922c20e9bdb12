package calculator

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultMaxSessions caps how many sessions a store holds at once.
	DefaultMaxSessions = 10000

	// DefaultIdleTimeout is how long a session may go unused before the
	// sweeper drops it.
	DefaultIdleTimeout = 30 * time.Minute
)

var (
	// ErrSessionNotFound is returned when no session has the requested id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionLimit is returned by Create when the store is full.
	ErrSessionLimit = errors.New("session limit reached")
)

// Session is one calculator instance with its own expression and history.
type Session struct {
	*Controller

	ID        string
	CreatedAt time.Time

	lastSeen atomic.Int64 // unix nanoseconds
}

// LastSeen reports when the session was created or last looked up.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// StoreOption configures a SessionStore.
type StoreOption func(*SessionStore)

// WithControllerOptions applies opts to every new session's controller.
func WithControllerOptions(opts ...Option) StoreOption {
	return func(s *SessionStore) {
		s.opts = append(s.opts, opts...)
	}
}

// WithMaxSessions bounds the number of live sessions. Non-positive values
// keep the default.
func WithMaxSessions(n int) StoreOption {
	return func(s *SessionStore) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithIdleTimeout drops sessions that have not been used for d. Zero or a
// negative value disables the sweeper.
func WithIdleTimeout(d time.Duration) StoreOption {
	return func(s *SessionStore) {
		s.idleTimeout = d
	}
}

// SessionStore keeps sessions in memory for the lifetime of the process.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	logger      *zap.Logger
	opts        []Option
	maxSessions int
	idleTimeout time.Duration

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// NewSessionStore creates an empty store. When an idle timeout is set, a
// sweeper goroutine runs until Close.
func NewSessionStore(logger *zap.Logger, opts ...StoreOption) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SessionStore{
		sessions:    make(map[string]*Session),
		logger:      logger,
		maxSessions: DefaultMaxSessions,
		idleTimeout: DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.idleTimeout > 0 {
		s.stopChan = make(chan struct{})
		s.doneChan = make(chan struct{})
		go s.sweep(sweepInterval(s.idleTimeout))
	}
	return s
}

// sweepInterval checks a few times per timeout, but not more often than
// every 10ms.
func sweepInterval(idle time.Duration) time.Duration {
	if every := idle / 4; every > 10*time.Millisecond {
		return every
	}
	return 10 * time.Millisecond
}

func (s *SessionStore) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	defer close(s.doneChan)

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			if n := s.Expire(now); n > 0 {
				s.logger.Info("expired idle sessions",
					zap.Int("expired", n),
					zap.Int("active_sessions", s.Len()),
				)
			}
		}
	}
}

// Create starts a new idle session. It fails with ErrSessionLimit when the
// store already holds the maximum number of sessions.
func (s *SessionStore) Create() (*Session, error) {
	id := uuid.New().String()
	logger := s.logger.With(zap.String("session_id", id))

	opts := append([]Option{}, s.opts...)
	opts = append(opts, WithOnReset(func(v View) {
		logger.Debug("error display reset", zap.String("expression", v.Expression))
	}))

	now := time.Now()
	session := &Session{
		Controller: NewController(opts...),
		ID:         id,
		CreatedAt:  now,
	}
	session.touch(now)

	s.mu.Lock()
	if len(s.sessions) >= s.maxSessions {
		s.mu.Unlock()
		session.Close()
		return nil, ErrSessionLimit
	}
	s.sessions[id] = session
	s.mu.Unlock()

	activeSessions.Inc()
	return session, nil
}

// Get returns the session with the given id and marks it as used.
func (s *SessionStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	session.touch(time.Now())
	return session, nil
}

// Delete removes a session and cancels its pending timers.
func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	session.Close()
	activeSessions.Dec()
	return nil
}

// Expire drops every session last seen more than the idle timeout before
// now and returns how many were removed.
func (s *SessionStore) Expire(now time.Time) int {
	if s.idleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-s.idleTimeout)

	var expired []*Session
	s.mu.Lock()
	for id, session := range s.sessions {
		if session.LastSeen().Before(cutoff) {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		session.Close()
		activeSessions.Dec()
	}
	return len(expired)
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the sweeper and drops every session.
func (s *SessionStore) Close() {
	s.closeOnce.Do(func() {
		if s.stopChan != nil {
			close(s.stopChan)
			<-s.doneChan
		}
	})

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
		activeSessions.Dec()
	}
}
