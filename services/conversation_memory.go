package services

import (
	"sync"
	"time"

	"rag-chatbot-platform/models"
)

// ConversationMemory keeps a bounded sliding window of recent exchanges
// per session. Sessions are created on first use and removed on explicit
// close; TTL policy is left to the hosting application. Append and
// eviction happen under one lock so the window bound holds even with
// concurrent queries against the same session.
type ConversationMemory struct {
	mu         sync.Mutex
	windowSize int
	sessions   map[string]*sessionState
}

type sessionState struct {
	knowledgeBase string
	exchanges     []models.Exchange
}

// NewConversationMemory creates a memory with the given window size (total
// exchanges retained per session). Exchanges are never truncated by
// length, only evicted whole, oldest first.
func NewConversationMemory(windowSize int) *ConversationMemory {
	if windowSize < 1 {
		windowSize = 1
	}
	return &ConversationMemory{
		windowSize: windowSize,
		sessions:   make(map[string]*sessionState),
	}
}

// Append records a completed exchange at the tail of the session window,
// evicting the head when the window is full.
func (m *ConversationMemory) Append(sessionID, question, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.session(sessionID)
	state.exchanges = append(state.exchanges, models.Exchange{
		Question:  question,
		Answer:    answer,
		Timestamp: time.Now().UTC(),
	})
	if len(state.exchanges) > m.windowSize {
		state.exchanges = state.exchanges[len(state.exchanges)-m.windowSize:]
	}
}

// Window returns the session's exchanges oldest first. The slice is a copy
// so callers can hold it across later appends.
func (m *ConversationMemory) Window(sessionID string) []models.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	window := make([]models.Exchange, len(state.exchanges))
	copy(window, state.exchanges)
	return window
}

// Clear empties the session's window but keeps the session alive.
func (m *ConversationMemory) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.sessions[sessionID]; ok {
		state.exchanges = nil
	}
}

// CloseSession tears the session down entirely.
func (m *ConversationMemory) CloseSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// SetKnowledgeBase switches the session's active knowledge base. This is a
// metadata-only operation: the conversation window is left untouched.
func (m *ConversationMemory) SetKnowledgeBase(sessionID, knowledgeBase string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session(sessionID).knowledgeBase = knowledgeBase
}

// KnowledgeBase returns the session's active knowledge base, if any.
func (m *ConversationMemory) KnowledgeBase(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.sessions[sessionID]; ok {
		return state.knowledgeBase
	}
	return ""
}

// session returns the session state, creating it on first use. Callers
// must hold the lock.
func (m *ConversationMemory) session(sessionID string) *sessionState {
	state, ok := m.sessions[sessionID]
	if !ok {
		state = &sessionState{}
		m.sessions[sessionID] = state
	}
	return state
}
