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

package database

import (
	"context"
	"time"

	"github.com/leadloop/leadloop/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	conversation // Conversation store and claim operations
	message      // Append-only message log operations
	fact         // Key/value fact store operations
	transition   // State transition audit operations
	offer        // Funding offer operations
}

// conversation defines methods for the per-lead conversation record.
type conversation interface {
	CreateConversation(ctx context.Context, conversation *model.Conversation) (*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	GetAllConversations(ctx context.Context, limit, offset int) ([]model.Conversation, error)
	UpdateConversation(ctx context.Context, conversation *model.Conversation) error

	// TryClaimConversation is the sole concurrency primitive between
	// workers: an atomic processing_lock false->true compare-and-set that
	// succeeds iff exactly one row was updated.
	TryClaimConversation(ctx context.Context, id string) (bool, error)
	// ReleaseConversation unconditionally drops the processing lock.
	ReleaseConversation(ctx context.Context, id string) error
	// ReleaseStaleLocks frees locks held longer than olderThan, covering
	// workers that crashed mid-tick.
	ReleaseStaleLocks(ctx context.Context, olderThan time.Duration) (int64, error)

	// TransitionState moves a conversation to newState, resets nudge
	// bookkeeping and writes an audit row, all in one transaction. It is a
	// no-op returning nil when the state is unchanged.
	TransitionState(ctx context.Context, id string, newState model.State, changedBy string) (*model.StateTransition, error)

	GetReplyCandidates(ctx context.Context, recencyWindow, quietPeriod time.Duration) ([]model.Conversation, error)
	GetNudgeCandidates(ctx context.Context, lookback time.Duration, nudgeCap int) ([]model.Conversation, error)
	GetDripCandidates(ctx context.Context, cooldown time.Duration) ([]model.Conversation, error)
}

// message defines methods for the append-only message log.
type message interface {
	RecordMessage(ctx context.Context, message *model.Message) (*model.Message, error)
	UpdateMessageStatus(ctx context.Context, messageID string, status string) error
	GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
	GetLatestMessage(ctx context.Context, conversationID string) (*model.Message, error)
	GetLatestInboundMessage(ctx context.Context, conversationID string) (*model.Message, error)
	GetLastOutboundMessage(ctx context.Context, conversationID string) (*model.Message, error)
	GetRecentOutboundMessages(ctx context.Context, conversationID string, window time.Duration) ([]model.Message, error)
	CountInboundSince(ctx context.Context, conversationID string, since time.Time) (int, error)
	CountDripMessages(ctx context.Context, conversationID string) (int, error)
	// HasNewerInbound reports whether an inbound message newer than the one
	// identified by messageID has arrived. The pre-dispatch re-check uses it
	// to discard stale oracle responses.
	HasNewerInbound(ctx context.Context, conversationID string, messageID string) (bool, error)
}

// fact defines methods for the latest-wins fact store.
type fact interface {
	UpsertFact(ctx context.Context, fact *model.Fact) error
	GetFacts(ctx context.Context, conversationID string) ([]model.Fact, error)
	GetFact(ctx context.Context, conversationID, key string) (*model.Fact, error)
}

// transition defines read access to the append-only transition audit.
type transition interface {
	GetStateTransitions(ctx context.Context, conversationID string, limit int) ([]model.StateTransition, error)
}

// offer defines methods for funding offers handed to the oracle as context.
type offer interface {
	CreateOffer(ctx context.Context, offer *model.Offer) (*model.Offer, error)
	GetActiveOffers(ctx context.Context, conversationID string) ([]model.Offer, error)
}
