package model

import (
	"time"
)

// State represents the funnel position of a conversation.
type State string

const (
	StateNew           State = "NEW"
	StateDrip          State = "DRIP"
	StateActive        State = "ACTIVE"
	StatePitchReady    State = "PITCH_READY"
	StateReadyToSubmit State = "READY_TO_SUBMIT"
	StateOfferReceived State = "OFFER_RECEIVED"
	StateSubmitted     State = "SUBMITTED"
	StateDead          State = "DEAD"
	StateArchived      State = "ARCHIVED"
)

// restrictedStates are hard status locks: no autonomous message is ever
// produced while a conversation sits in one of them. Only a manual
// instruction can.
var restrictedStates = map[State]bool{
	StateReadyToSubmit: true,
	StateOfferReceived: true,
	StateSubmitted:     true,
}

// terminalStates never leave autonomous scheduling again.
var terminalStates = map[State]bool{
	StateDead:     true,
	StateArchived: true,
}

// IsRestricted reports whether the state is a hard status lock.
func (s State) IsRestricted() bool {
	return restrictedStates[s]
}

// IsTerminal reports whether the state is terminal.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// Conversation is the persisted per-lead record driven through the funnel.
type Conversation struct {
	ID                     int64                  `json:"-"`
	ConversationID         string                 `json:"conversation_id"`
	LeadName               string                 `json:"lead_name"`
	LeadPhone              string                 `json:"lead_phone"`
	State                  State                  `json:"state"`
	NudgeCount             int                    `json:"nudge_count"`
	StallCount             int                    `json:"stall_count"`
	LastActivity           time.Time              `json:"last_activity"`
	WaitUntil              *time.Time             `json:"wait_until,omitempty"`
	PendingQuestion        string                 `json:"pending_question,omitempty"`
	AIEnabled              bool                   `json:"ai_enabled"`
	LastAIDecision         string                 `json:"last_ai_decision,omitempty"`
	LastAIDecisionAt       *time.Time             `json:"last_ai_decision_at,omitempty"`
	LastProcessedMessageID string                 `json:"last_processed_message_id,omitempty"`
	ProcessingLock         bool                   `json:"processing_lock"`
	ManualInstruction      string                 `json:"manual_instruction,omitempty"`
	CreatedAt              time.Time              `json:"created_at"`
	MetaData               map[string]interface{} `json:"meta_data,omitempty"`
}

// IsWaiting reports whether a future wait_until currently suppresses
// autonomous eligibility for this conversation.
func (c *Conversation) IsWaiting(now time.Time) bool {
	return c.WaitUntil != nil && c.WaitUntil.After(now)
}
