package ime

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoSession is returned for unknown session ids.
var ErrNoSession = errors.New("ime: no such session")

// SessionOptions describes the input context a session serves.
type SessionOptions struct {
	// AppID identifies the application (bundle ID, package name, etc.)
	AppID string

	// DocID identifies the document or text field.
	DocID string

	// Context is optional host-provided context.
	Context string
}

// Session is one input context with its own engine.
type Session struct {
	ID        string
	StartTime time.Time
	AppID     string
	DocID     string
	Context   string

	Engine *Engine
}

// SessionInfo contains read-only session information.
type SessionInfo struct {
	ID        string
	StartTime time.Time
	AppID     string
	DocID     string
	State     State
}

// SessionManager owns the engines of all live input contexts. Engines are
// never shared between sessions.
type SessionManager struct {
	mu       sync.RWMutex
	factory  *Factory
	sessions map[string]*Session
}

// NewSessionManager creates a manager that builds engines with f.
func NewSessionManager(f *Factory) *SessionManager {
	return &SessionManager{
		factory:  f,
		sessions: make(map[string]*Session),
	}
}

// Open starts a session with a fresh engine.
func (m *SessionManager) Open(opts SessionOptions) *Session {
	if opts.AppID == "" {
		opts.AppID = "unknown"
	}
	if opts.DocID == "" {
		opts.DocID = "default"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{
		ID:        uuid.New().String(),
		StartTime: time.Now(),
		AppID:     opts.AppID,
		DocID:     opts.DocID,
		Context:   opts.Context,
		Engine:    m.factory.NewEngine(),
	}
	m.sessions[s.ID] = s
	return s
}

// Get returns the session with id.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close ends a session and returns the commands that flush its buffer.
func (m *SessionManager) Close(id string) ([]Command, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return nil, ErrNoSession
	}
	return s.Engine.Flush(), nil
}

// Describe updates the application and document a session serves. Empty
// fields are left unchanged.
func (m *SessionManager) Describe(id string, opts SessionOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNoSession
	}
	if opts.AppID != "" {
		s.AppID = opts.AppID
	}
	if opts.DocID != "" {
		s.DocID = opts.DocID
	}
	if opts.Context != "" {
		s.Context = opts.Context
	}
	return nil
}

// SetFactory replaces the factory. Open sessions keep their engines.
func (m *SessionManager) SetFactory(f *Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factory = f
}

// Factory returns the current factory.
func (m *SessionManager) Factory() *Factory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.factory
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Info lists open sessions, oldest first.
func (m *SessionManager) Info() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, SessionInfo{
			ID:        s.ID,
			StartTime: s.StartTime,
			AppID:     s.AppID,
			DocID:     s.DocID,
			State:     s.Engine.State(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// CommitObserver is told about every batch of commands a host applies.
// Implementations must not retain cmds.
type CommitObserver interface {
	Observe(cmds []Command)
}

// ObserverFunc adapts a function to CommitObserver.
type ObserverFunc func(cmds []Command)

// Observe calls f(cmds).
func (f ObserverFunc) Observe(cmds []Command) { f(cmds) }

// Observers fans out to every non-nil observer. It returns nil when none
// remain.
func Observers(obs ...CommitObserver) CommitObserver {
	var out multiObserver
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

type multiObserver []CommitObserver

func (m multiObserver) Observe(cmds []Command) {
	for _, o := range m {
		o.Observe(cmds)
	}
}
