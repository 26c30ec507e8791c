package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// HistoryLimit is the number of conversation items kept per session.
	HistoryLimit = 10

	// ListOperation is the only query type that replaces LastEventsList.
	ListOperation = "listCalendarEvents"
)

// ErrEmptySessionID is returned when a store is called without a session id.
var ErrEmptySessionID = errors.New("session id is required")

// EventRef is the projection of a calendar event kept in the session.
type EventRef struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	AllDay    bool      `json:"allDay,omitempty"`
	Location  string    `json:"location,omitempty"`
	Attendees string    `json:"attendees,omitempty"`
}

// LastQuery records the most recent query-class tool call.
type LastQuery struct {
	Type      string          `json:"type"`
	Params    json.RawMessage `json:"params,omitempty"`
	Results   json.RawMessage `json:"results,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// HistoryItem is one entry of the conversation history.
type HistoryItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the context of one conversation.
type Session struct {
	ID             string        `json:"id"`
	LastQuery      *LastQuery    `json:"lastQuery,omitempty"`
	LastEventsList []EventRef    `json:"lastEventsList"`
	History        []HistoryItem `json:"history"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// EventLister is implemented by query results that carry an event list.
type EventLister interface {
	ContextEvents() []EventRef
}

// Store holds session contexts keyed by session id. GetSession creates the
// session on first access; only backend failures produce errors.
type Store interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateLastQuery(ctx context.Context, id, operation string, params, result any) error
	FindEventByReference(ctx context.Context, id, phrase string) (*EventRef, error)
	AddConversationItem(ctx context.Context, id, itemType, content string) error
	ClearSession(ctx context.Context, id string) error
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:             id,
		LastEventsList: []EventRef{},
		History:        []HistoryItem{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// clone returns a deep copy safe to hand out of a store.
func (s *Session) clone() *Session {
	c := *s
	if s.LastQuery != nil {
		q := *s.LastQuery
		q.Params = append(json.RawMessage(nil), s.LastQuery.Params...)
		q.Results = append(json.RawMessage(nil), s.LastQuery.Results...)
		c.LastQuery = &q
	}
	c.LastEventsList = append([]EventRef{}, s.LastEventsList...)
	c.History = append([]HistoryItem{}, s.History...)
	return &c
}

// recordQuery overwrites LastQuery and, for listings, LastEventsList.
func (s *Session) recordQuery(operation string, params, result any, now time.Time) error {
	p, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode query params: %w", err)
	}
	r, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode query result: %w", err)
	}
	s.LastQuery = &LastQuery{
		Type:      operation,
		Params:    p,
		Results:   r,
		Timestamp: now,
	}
	if operation == ListOperation {
		if lister, ok := result.(EventLister); ok {
			s.LastEventsList = append([]EventRef{}, lister.ContextEvents()...)
		}
	}
	s.UpdatedAt = now
	return nil
}

// appendHistory adds an item and drops the oldest beyond HistoryLimit.
func (s *Session) appendHistory(itemType, content string, now time.Time) {
	s.History = append(s.History, HistoryItem{
		ID:        uuid.NewString(),
		Type:      itemType,
		Content:   content,
		Timestamp: now,
	})
	if n := len(s.History); n > HistoryLimit {
		s.History = append([]HistoryItem{}, s.History[n-HistoryLimit:]...)
	}
	s.UpdatedAt = now
}
