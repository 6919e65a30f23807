// Package session holds per-conversation context. The pipeline receives a
// Session from its caller and never keeps one between calls.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Turn - один обмен вопрос/ответ
type Turn struct {
	Question string    `json:"question"`
	Source   string    `json:"source,omitempty"`
	Query    string    `json:"query,omitempty"`
	Answer   string    `json:"answer,omitempty"`
	At       time.Time `json:"at"`
}

// Session is caller-owned conversation context.
type Session struct {
	ID      string
	History []Turn
}

// New creates a Session with a fresh id when id is empty.
func New(id string, history []Turn) Session {
	if id == "" {
		id = uuid.NewString()
	}
	return Session{ID: id, History: history}
}

// Recent returns at most n latest turns, oldest first.
func (s Session) Recent(n int) []Turn {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}
