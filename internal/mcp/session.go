package mcp

import (
	"sync"
	"time"
)

// sinkBuffer bounds the per-stream notification queue. A stream that stops
// draining loses newest-first rather than stalling the broadcaster.
const sinkBuffer = 16

// Session is one client's connection state: initialization progress,
// resource subscriptions, and any open event streams.
type Session struct {
	ID string

	mu            sync.Mutex
	initialized   bool
	lastActive    time.Time
	subscriptions map[string]struct{}
	sinks         map[int]chan []byte
	nextSinkID    int
}

func newSession(id string) *Session {
	return &Session{
		ID:            id,
		lastActive:    time.Now(),
		subscriptions: make(map[string]struct{}),
		sinks:         make(map[int]chan []byte),
	}
}

// Touch records client activity for idle sweeping.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the most recent activity time.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// MarkInitialized records that the client completed the handshake.
func (s *Session) MarkInitialized() {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
}

// Initialized reports whether notifications/initialized arrived.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Subscribe registers interest in a resource URI.
func (s *Session) Subscribe(uri string) {
	s.mu.Lock()
	s.subscriptions[uri] = struct{}{}
	s.mu.Unlock()
}

// Unsubscribe drops interest in a resource URI.
func (s *Session) Unsubscribe(uri string) {
	s.mu.Lock()
	delete(s.subscriptions, uri)
	s.mu.Unlock()
}

// Subscribed reports whether the session watches the URI.
func (s *Session) Subscribed(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscriptions[uri]
	return ok
}

// Subscriptions returns a copy of the watched URIs.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	uris := make([]string, 0, len(s.subscriptions))
	for uri := range s.subscriptions {
		uris = append(uris, uri)
	}
	return uris
}

// AttachSink opens a notification channel for one event stream and returns
// its handle.
func (s *Session) AttachSink() (int, <-chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSinkID
	s.nextSinkID++
	ch := make(chan []byte, sinkBuffer)
	s.sinks[id] = ch
	return id, ch
}

// DetachSink closes and removes the stream's channel.
func (s *Session) DetachSink(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.sinks[id]; ok {
		delete(s.sinks, id)
		close(ch)
	}
}

// Deliver hands a payload to every open stream. A full sink drops the
// payload for that stream only; one slow consumer never blocks the rest.
func (s *Session) Deliver(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.sinks {
		select {
		case ch <- payload:
		default:
		}
	}
}

// closeSinks tears down every stream channel during session removal.
func (s *Session) closeSinks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.sinks {
		delete(s.sinks, id)
		close(ch)
	}
}
