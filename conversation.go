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

package leadloop

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leadloop/leadloop/config"
	"github.com/leadloop/leadloop/internal/apierror"
	"github.com/leadloop/leadloop/model"
)

// CreateConversation registers a new lead. The conversation starts in NEW and
// is picked up by the drip loop on its next tick.
func (l *LeadLoop) CreateConversation(ctx context.Context, conversation *model.Conversation) (*model.Conversation, error) {
	if conversation.ConversationID == "" {
		conversation.ConversationID = model.GenerateUUIDWithSuffix("conv")
	}
	if conversation.State == "" {
		conversation.State = model.StateNew
	}
	now := time.Now()
	conversation.CreatedAt = now
	conversation.LastActivity = now

	created, err := l.datasource.CreateConversation(ctx, conversation)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to create conversation", err)
	}
	logrus.Infof("conversation %s created for %s", created.ConversationID, created.LeadName)
	return created, nil
}

// GetConversation retrieves a single conversation by its ID.
func (l *LeadLoop) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	conversation, err := l.datasource.GetConversation(ctx, id)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "conversation not found", err)
	}
	return conversation, nil
}

// GetAllConversations retrieves a page of conversations.
func (l *LeadLoop) GetAllConversations(ctx context.Context, limit, offset int) ([]model.Conversation, error) {
	return l.datasource.GetAllConversations(ctx, limit, offset)
}

// RecordInboundMessage appends a lead reply to the message log. The reply
// loop picks it up on its next tick; nothing is decided here.
func (l *LeadLoop) RecordInboundMessage(ctx context.Context, conversationID, content string) (*model.Message, error) {
	conversation, err := l.datasource.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "conversation not found", err)
	}

	message, err := l.datasource.RecordMessage(ctx, &model.Message{
		MessageID:      model.GenerateUUIDWithSuffix("msg"),
		ConversationID: conversation.ConversationID,
		Direction:      model.DirectionInbound,
		Content:        content,
		SentBy:         model.SentByCustomer,
		Status:         model.MessageStatusDelivered,
	})
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to record message", err)
	}

	conversation.LastActivity = time.Now()
	if err := l.datasource.UpdateConversation(ctx, conversation); err != nil {
		logrus.Errorf("failed to touch conversation %s after inbound: %v", conversationID, err)
	}

	l.events.Publish(ctx, EventMessageReceived, conversationID, message)
	return message, nil
}

// SendManualMessage dispatches an operator-written message immediately,
// bypassing the scheduler. The message is tagged as human so the grace
// window applies to subsequent autonomous replies.
func (l *LeadLoop) SendManualMessage(ctx context.Context, conversationID, content string) (*model.Message, error) {
	conversation, err := l.datasource.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "conversation not found", err)
	}

	message, err := l.dispatcher.Send(ctx, conversation, content, model.SentByHuman)
	if err != nil {
		return message, err
	}
	l.dedup.remember(ctx, conversationID, content)

	conversation.LastActivity = time.Now()
	if err := l.datasource.UpdateConversation(ctx, conversation); err != nil {
		logrus.Errorf("failed to touch conversation %s after manual send: %v", conversationID, err)
	}
	return message, nil
}

// SetManualInstruction stores a one-shot operator instruction. It is consumed
// by the next reply tick and can override hard status locks.
func (l *LeadLoop) SetManualInstruction(ctx context.Context, conversationID, instruction string) (*model.Conversation, error) {
	conversation, err := l.datasource.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "conversation not found", err)
	}
	conversation.ManualInstruction = instruction
	if err := l.datasource.UpdateConversation(ctx, conversation); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to update conversation", err)
	}
	return conversation, nil
}

// SetAIEnabled flips the autonomous-processing switch for a conversation.
func (l *LeadLoop) SetAIEnabled(ctx context.Context, conversationID string, enabled bool) (*model.Conversation, error) {
	conversation, err := l.datasource.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "conversation not found", err)
	}
	conversation.AIEnabled = enabled
	if err := l.datasource.UpdateConversation(ctx, conversation); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to update conversation", err)
	}
	logrus.Infof("conversation %s ai_enabled set to %t", conversationID, enabled)
	return conversation, nil
}

// UnlockConversation force-drops a processing lock. Operator escape hatch for
// a lock stranded by a crashed worker.
func (l *LeadLoop) UnlockConversation(ctx context.Context, conversationID string) error {
	if err := l.datasource.ReleaseConversation(ctx, conversationID); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to release lock", err)
	}
	logrus.Warnf("conversation %s force-unlocked", conversationID)
	return nil
}

// ReapStaleLocks frees every processing lock older than the configured
// stale-lock window. The scheduler runs this at startup; operators can invoke
// it on demand.
func (l *LeadLoop) ReapStaleLocks(ctx context.Context) (int64, error) {
	conf, err := config.Fetch()
	if err != nil {
		return 0, err
	}
	released, err := l.datasource.ReleaseStaleLocks(ctx,
		time.Duration(conf.Scheduler.StaleLockMinutes)*time.Minute)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "failed to release stale locks", err)
	}
	if released > 0 {
		logrus.Warnf("released %d stale conversation locks", released)
	}
	return released, nil
}

// GetConversationMessages retrieves a page of the message log, newest first.
func (l *LeadLoop) GetConversationMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	return l.datasource.GetMessages(ctx, conversationID, limit, offset)
}

// GetConversationTransitions retrieves the state transition audit trail.
func (l *LeadLoop) GetConversationTransitions(ctx context.Context, conversationID string, limit int) ([]model.StateTransition, error) {
	return l.datasource.GetStateTransitions(ctx, conversationID, limit)
}

// CreateOffer attaches a priced funding offer to a conversation. Active
// offers become part of the context handed to the decision oracle.
func (l *LeadLoop) CreateOffer(ctx context.Context, offer *model.Offer) (*model.Offer, error) {
	if _, err := l.datasource.GetConversation(ctx, offer.ConversationID); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "conversation not found", err)
	}
	if offer.OfferID == "" {
		offer.OfferID = model.GenerateUUIDWithSuffix("offer")
	}
	if offer.Status == "" {
		offer.Status = model.OfferStatusActive
	}
	created, err := l.datasource.CreateOffer(ctx, offer)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to create offer", err)
	}
	return created, nil
}

// GetActiveOffers retrieves the active offers for a conversation.
func (l *LeadLoop) GetActiveOffers(ctx context.Context, conversationID string) ([]model.Offer, error) {
	return l.datasource.GetActiveOffers(ctx, conversationID)
}
