// Package session keeps short-lived conversation state: recent turns, the
// current product referent, and clarification bookkeeping. Stores come in a
// memory flavor for single-process runs and a Redis flavor for deployments
// that survive restarts.
package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Update when the session does not exist.
var ErrNotFound = errors.New("session not found")

// ErrInvalidConfig is returned by NewStore when a driver's requirements are
// not met.
var ErrInvalidConfig = errors.New("invalid session store config")

// ErrInvalidStoreType is returned by NewStore for an unknown driver name.
var ErrInvalidStoreType = errors.New("invalid session store type")

// MaxTurns bounds the retained conversation window.
const MaxTurns = 8

// DefaultIdleTTL is how long a conversation may sit untouched before the
// store may drop it.
const DefaultIdleTTL = 30 * time.Minute

// Turn is one user/assistant exchange.
type Turn struct {
	UserText  string    `json:"user_text"`
	Reply     string    `json:"reply"`
	Intent    string    `json:"intent"`
	Satisfied bool      `json:"satisfied"`
	At        time.Time `json:"at"`
}

// Session is the per-conversation state.
type Session struct {
	ConversationID       string    `json:"conversation_id"`
	Tenant               string    `json:"tenant"`
	LastProductID        string    `json:"last_product_id,omitempty"`
	LastProductName      string    `json:"last_product_name,omitempty"`
	LastGarmentType      string    `json:"last_garment_type,omitempty"`
	LastIntent           string    `json:"last_intent,omitempty"`
	PendingClarification bool      `json:"pending_clarification"`
	Turns                []Turn    `json:"turns"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// AddTurn appends a turn, trimming the window to MaxTurns.
func (s *Session) AddTurn(t Turn) {
	s.Turns = append(s.Turns, t)
	if len(s.Turns) > MaxTurns {
		s.Turns = s.Turns[len(s.Turns)-MaxTurns:]
	}
}

// SetReferent records the product the conversation is currently about.
func (s *Session) SetReferent(productID, productName, garmentType string) {
	s.LastProductID = productID
	s.LastProductName = productName
	s.LastGarmentType = garmentType
}

// DropReferentOnTopicChange clears the referent when the user switches to a
// different garment type ("its price" must not bind across a topic change).
func (s *Session) DropReferentOnTopicChange(garmentType string) bool {
	if garmentType == "" || s.LastGarmentType == "" || garmentType == s.LastGarmentType {
		return false
	}
	s.LastProductID = ""
	s.LastProductName = ""
	s.LastGarmentType = ""
	return true
}

// RecentSatisfied reports whether any retained turn carried a satisfaction
// marker. The rule router's day-greeting disambiguation consumes this.
func (s *Session) RecentSatisfied() bool {
	for _, t := range s.Turns {
		if t.Satisfied {
			return true
		}
	}
	return false
}
