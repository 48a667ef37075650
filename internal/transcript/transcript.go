// Package transcript holds the ordered, append-only record of a conversation.
package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SourceKind tells where an answer was grounded.
type SourceKind string

const (
	SourceRAG    SourceKind = "rag"
	SourceWeb    SourceKind = "web"
	SourceHybrid SourceKind = "hybrid"
)

type ActionKind string

const (
	ActionForm        ActionKind = "form"
	ActionLink        ActionKind = "link"
	ActionInstruction ActionKind = "instruction"
	ActionDocument    ActionKind = "document"
)

// ActionItem is a follow-up the user can take after an answer.
type ActionItem struct {
	Kind        ActionKind `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	URL         string     `json:"url,omitempty"`
	FormRef     string     `json:"form_id,omitempty"`
	Steps       []string   `json:"steps,omitempty"`
}

type Contact struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`
}

// Consultant is a recommended human advisor.
type Consultant struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Specialization  string   `json:"specialization"`
	Location        string   `json:"location,omitempty"`
	Rating          *float64 `json:"rating,omitempty"`
	SpokenLanguages []string `json:"languages"`
	Contact         *Contact `json:"contact_info,omitempty"`
}

// Turn is one transcript entry. Turns are never modified after Append.
type Turn struct {
	ID             string
	Role           Role
	Text           string
	CreatedAt      time.Time
	AttachmentName string
	Source         SourceKind
	Confidence     *float64
	Actions        []ActionItem
	Consultants    []Consultant
}

// NewTurn fills in ID and CreatedAt.
func NewTurn(role Role, text string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// Store is safe for concurrent use; insertion order is display order.
type Store struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewStore() *Store {
	return &Store{}
}

// Append adds a turn and returns its position.
func (s *Store) Append(t Turn) int {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return len(s.turns) - 1
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Turns returns a copy of the transcript.
func (s *Store) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Last returns the most recent turn.
func (s *Store) Last() (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}
