/*
Copyright 2025 LeadLoop Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"github.com/shopspring/decimal"

	"github.com/leadloop/leadloop/model"
)

// CreateConversation is the request body for registering a new lead.
type CreateConversation struct {
	LeadName  string                 `json:"lead_name"`
	LeadPhone string                 `json:"lead_phone"`
	AIEnabled *bool                  `json:"ai_enabled,omitempty"`
	MetaData  map[string]interface{} `json:"meta_data,omitempty"`
}

// RecordInboundMessage is the request body for ingesting a lead reply.
type RecordInboundMessage struct {
	Content string `json:"content"`
}

// SendManualMessage is the request body for an operator-written outbound.
type SendManualMessage struct {
	Content string `json:"content"`
}

// SetManualInstruction is the request body for a one-shot operator
// instruction. An empty instruction clears any pending one.
type SetManualInstruction struct {
	Instruction string `json:"instruction"`
}

// ToggleAI is the request body for flipping autonomous processing.
type ToggleAI struct {
	Enabled *bool `json:"enabled"`
}

// CreateOffer is the request body for attaching a priced funding offer.
type CreateOffer struct {
	Lender     string          `json:"lender"`
	Amount     decimal.Decimal `json:"amount"`
	FactorRate decimal.Decimal `json:"factor_rate"`
	TermMonths int             `json:"term_months"`
}

// ToConversation converts the request to a model.Conversation. Autonomous
// processing defaults to on unless the request says otherwise.
func (c *CreateConversation) ToConversation() *model.Conversation {
	aiEnabled := true
	if c.AIEnabled != nil {
		aiEnabled = *c.AIEnabled
	}
	return &model.Conversation{
		LeadName:  c.LeadName,
		LeadPhone: c.LeadPhone,
		AIEnabled: aiEnabled,
		MetaData:  c.MetaData,
	}
}

// ToOffer converts the request to a model.Offer for the given conversation.
func (o *CreateOffer) ToOffer(conversationID string) *model.Offer {
	return &model.Offer{
		ConversationID: conversationID,
		Lender:         o.Lender,
		Amount:         o.Amount,
		FactorRate:     o.FactorRate,
		TermMonths:     o.TermMonths,
	}
}
