// Package session keeps bounded, per-session conversation history in memory.
// Nothing survives a process restart; callers needing durable history must
// wrap the same contract around persistent storage.
package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// defaultMaxExchanges bounds how many user/assistant exchanges a session
// retains before the oldest is evicted.
const defaultMaxExchanges = 2

// Exchange is one user message paired with the assistant's reply.
type Exchange struct {
	UserText      string
	AssistantText string
}

// session is a single conversation. Its mutex serializes mutations so
// concurrent appends to the same session never interleave partially.
type session struct {
	mu        sync.Mutex
	exchanges []Exchange
}

// Manager tracks sessions by ID.
type Manager struct {
	mu           sync.RWMutex
	sessions     map[string]*session
	maxExchanges int
}

// NewManager creates a Manager retaining at most maxExchanges per session.
// Non-positive values use the default (2).
func NewManager(maxExchanges int) *Manager {
	if maxExchanges <= 0 {
		maxExchanges = defaultMaxExchanges
	}
	return &Manager{
		sessions:     make(map[string]*session),
		maxExchanges: maxExchanges,
	}
}

// Create registers a new empty session and returns its ID.
func (m *Manager) Create() string {
	id := uuid.New().String()
	m.get(id)
	return id
}

// get returns the session for id, creating an empty one on first reference.
func (m *Manager) get(id string) *session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s = &session{}
	m.sessions[id] = s
	return s
}

// GetHistory returns a copy of the retained exchanges in chronological order.
func (m *Manager) GetHistory(id string) []Exchange {
	s := m.get(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Exchange, len(s.exchanges))
	copy(out, s.exchanges)
	return out
}

// AppendExchange adds an exchange to the end of the session, evicting the
// oldest once the retained count would exceed the maximum (FIFO).
func (m *Manager) AppendExchange(id, userText, assistantText string) {
	s := m.get(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exchanges = append(s.exchanges, Exchange{UserText: userText, AssistantText: assistantText})
	if excess := len(s.exchanges) - m.maxExchanges; excess > 0 {
		s.exchanges = append([]Exchange(nil), s.exchanges[excess:]...)
	}
}

// FormatForPrompt renders the retained exchanges as a flat text block for
// inclusion in the next model call. Returns "" for an empty session.
func (m *Manager) FormatForPrompt(id string) string {
	history := m.GetHistory(id)
	if len(history) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, ex := range history {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s", ex.UserText, ex.AssistantText)
	}
	return sb.String()
}
