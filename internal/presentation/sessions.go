package presentation

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/oklog/ulid/v2"
)

const (
	defaultSessionTTL  = 30 * time.Minute
	defaultMaxSessions = 10000
)

// Session is one recipient's viewing of one card.
type Session struct {
	ID       string
	CardID   string
	Envelope *Envelope
	lastSeen time.Time
}

// Sessions keeps the envelope of every live view session. Sessions idle for
// longer than the TTL are torn down by Sweep. At most max sessions are live;
// starting one more evicts the least recently used.
type Sessions struct {
	mu       sync.Mutex
	sessions *simplelru.LRU[string, *Session]

	max       int
	ttl       time.Duration
	clock     func() time.Time
	newID     func() string
	envelopes []EnvelopeOption
}

// SessionsOption customises a Sessions store.
type SessionsOption func(*Sessions)

// WithSessionTTL sets the idle timeout.
func WithSessionTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxSessions caps the number of live sessions.
func WithMaxSessions(n int) SessionsOption {
	return func(s *Sessions) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithSessionClock overrides the time source used for idle tracking.
func WithSessionClock(clock func() time.Time) SessionsOption {
	return func(s *Sessions) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSessionIDGenerator overrides session id generation.
func WithSessionIDGenerator(fn func() string) SessionsOption {
	return func(s *Sessions) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithEnvelopeOptions applies opts to every envelope the store creates.
func WithEnvelopeOptions(opts ...EnvelopeOption) SessionsOption {
	return func(s *Sessions) {
		s.envelopes = append(s.envelopes, opts...)
	}
}

// NewSessions constructs an empty store.
func NewSessions(opts ...SessionsOption) *Sessions {
	s := &Sessions{
		max:   defaultMaxSessions,
		ttl:   defaultSessionTTL,
		clock: time.Now,
		newID: func() string {
			return ulid.MustNew(ulid.Now(), rand.Reader).String()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.sessions = newSessionLRU(s.max)
	return s
}

func newSessionLRU(size int) *simplelru.LRU[string, *Session] {
	// Only errors on a non-positive size, which the options rule out.
	lru, err := simplelru.NewLRU[string, *Session](size, nil)
	if err != nil {
		panic(err)
	}
	return lru
}

// Start opens a new session for cardID with a closed envelope. When the store
// is full the least recently used session is torn down first.
func (s *Sessions) Start(cardID string) *Session {
	session := &Session{
		ID:       s.newID(),
		CardID:   cardID,
		Envelope: NewEnvelope(s.envelopes...),
		lastSeen: s.clock(),
	}
	var evicted []*Session
	s.mu.Lock()
	for s.sessions.Len() >= s.max {
		_, oldest, ok := s.sessions.RemoveOldest()
		if !ok {
			break
		}
		evicted = append(evicted, oldest)
	}
	s.sessions.Add(session.ID, session)
	s.mu.Unlock()

	for _, old := range evicted {
		old.Envelope.Close()
	}
	return session
}

// Lookup returns the live session id and refreshes its idle timer.
// A session id presented with a different card id is treated as unknown.
func (s *Sessions) Lookup(id, cardID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions.Peek(id)
	if !ok || session.CardID != cardID {
		return nil, false
	}
	s.sessions.Get(id)
	session.lastSeen = s.clock()
	return session, true
}

// End tears the session down. Unknown ids are ignored.
func (s *Sessions) End(id string) {
	s.mu.Lock()
	session, ok := s.sessions.Peek(id)
	if ok {
		s.sessions.Remove(id)
	}
	s.mu.Unlock()
	if ok {
		session.Envelope.Close()
	}
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Len()
}

// Sweep tears down sessions idle for longer than the TTL and returns how many were removed.
func (s *Sessions) Sweep() int {
	cutoff := s.clock().Add(-s.ttl)

	s.mu.Lock()
	var expired []*Session
	for {
		_, oldest, ok := s.sessions.GetOldest()
		if !ok || !oldest.lastSeen.Before(cutoff) {
			break
		}
		s.sessions.RemoveOldest()
		expired = append(expired, oldest)
	}
	s.mu.Unlock()

	for _, session := range expired {
		session.Envelope.Close()
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done, then tears down every remaining session.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Sessions) closeAll() {
	s.mu.Lock()
	all := s.sessions.Values()
	s.sessions.Purge()
	s.mu.Unlock()
	for _, session := range all {
		session.Envelope.Close()
	}
}
