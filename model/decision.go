package model

import (
	"encoding/json"
	"time"
)

// Oracle actions. The decision oracle returns exactly one of these per call.
const (
	ActionRespond       = "respond"
	ActionQualify       = "qualify"
	ActionMarkDead      = "mark_dead"
	ActionSyncDrive     = "sync_drive"
	ActionNoResponse    = "no_response"
	ActionReadyToSubmit = "ready_to_submit"
)

// Decision is the structured next action produced by the decision oracle.
type Decision struct {
	Action          string            `json:"action"`
	Message         string            `json:"message,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	PendingQuestion string            `json:"pending_question,omitempty"`
	WaitUntil       *time.Time        `json:"wait_until,omitempty"`
	ExtractedFacts  map[string]string `json:"extracted_facts,omitempty"`
}

var knownActions = map[string]bool{
	ActionRespond:       true,
	ActionQualify:       true,
	ActionMarkDead:      true,
	ActionSyncDrive:     true,
	ActionNoResponse:    true,
	ActionReadyToSubmit: true,
}

// fallbackAcknowledgement is sent when the oracle produces output we cannot
// use. A plain acknowledgement is always safe; failing the tick is not.
const fallbackAcknowledgement = "Thanks for the message — I'll get back to you shortly."

// ParseDecision decodes raw oracle output. Malformed payloads and unknown
// actions fall back to a plain respond acknowledgement instead of an error.
func ParseDecision(raw []byte) Decision {
	var decision Decision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return FallbackDecision("unparseable oracle output")
	}
	if !knownActions[decision.Action] {
		return FallbackDecision("unknown oracle action: " + decision.Action)
	}
	if decision.Action == ActionRespond && decision.Message == "" {
		return FallbackDecision("respond action without message")
	}
	return decision
}

// FallbackDecision returns the safe default decision used when oracle output
// is unusable.
func FallbackDecision(reason string) Decision {
	return Decision{
		Action:  ActionRespond,
		Message: fallbackAcknowledgement,
		Reason:  reason,
	}
}
