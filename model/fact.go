package model

import "time"

// Fact is a key/value datum extracted from a conversation. Writes are
// latest-wins upserts keyed on (conversation_id, key).
type Fact struct {
	ID             int64     `json:"-"`
	ConversationID string    `json:"conversation_id"`
	Key            string    `json:"key"`
	Value          string    `json:"value"`
	CollectedAt    time.Time `json:"collected_at"`
}

// FactPitchAccepted gates the ACTIVE -> READY_TO_SUBMIT transition: the
// oracle's ready_to_submit action is withheld until the lead has explicitly
// accepted the pitch.
const FactPitchAccepted = "pitch_accepted"
