package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Offer statuses.
const (
	OfferStatusActive   = "active"
	OfferStatusAccepted = "accepted"
	OfferStatusExpired  = "expired"
)

// Offer is a priced funding offer attached to a conversation. Active offers
// are part of the context handed to the decision oracle.
type Offer struct {
	ID             int64           `json:"-"`
	OfferID        string          `json:"offer_id"`
	ConversationID string          `json:"conversation_id"`
	Lender         string          `json:"lender"`
	Amount         decimal.Decimal `json:"amount"`
	FactorRate     decimal.Decimal `json:"factor_rate"`
	TermMonths     int             `json:"term_months"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}
