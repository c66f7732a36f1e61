package model

import "time"

// StateTransition is one row of the append-only transition audit. No row is
// written when old and new state are equal.
type StateTransition struct {
	ID             int64     `json:"-"`
	TransitionID   string    `json:"transition_id"`
	ConversationID string    `json:"conversation_id"`
	OldState       State     `json:"old_state"`
	NewState       State     `json:"new_state"`
	ChangedBy      string    `json:"changed_by"`
	CreatedAt      time.Time `json:"created_at"`
}
