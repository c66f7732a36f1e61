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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/leadloop/leadloop/database/mocks"
	"github.com/leadloop/leadloop/model"
)

func activeConversation() *model.Conversation {
	return &model.Conversation{
		ConversationID:         "conv_1",
		LeadName:               "Maria Santos",
		LeadPhone:              "+15550001111",
		State:                  model.StateActive,
		AIEnabled:              true,
		LastProcessedMessageID: "msg_1",
		LastActivity:           time.Now().Add(-10 * time.Minute),
		CreatedAt:              time.Now().Add(-24 * time.Hour),
	}
}

// Lead replies with a real question; the oracle answers; the system waits,
// re-checks, dispatches and updates bookkeeping.
func TestProcessReply_OracleRespond(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	inbound := &model.Message{
		MessageID:      "msg_2",
		ConversationID: "conv_1",
		Direction:      model.DirectionInbound,
		Content:        "yes, what's the rate?",
		SentBy:         model.SentByCustomer,
		CreatedAt:      time.Now().Add(-3 * time.Minute),
	}

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(activeConversation(), nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(inbound, nil)
	ds.On("GetLastOutboundMessage", mock.Anything, "conv_1").Return(&model.Message{
		MessageID: "msg_1",
		Direction: model.DirectionOutbound,
		SentBy:    model.SentByAI,
		Content:   "Happy to walk you through the numbers.",
		CreatedAt: time.Now().Add(-30 * time.Minute),
	}, nil)
	ds.On("GetMessages", mock.Anything, "conv_1", messageHistoryLimit, 0).Return([]model.Message{*inbound}, nil)
	ds.On("GetFacts", mock.Anything, "conv_1").Return([]model.Fact{}, nil)
	ds.On("GetActiveOffers", mock.Anything, "conv_1").Return([]model.Offer{}, nil)
	ds.On("HasNewerInbound", mock.Anything, "conv_1", "msg_2").Return(false, nil)
	ds.On("GetRecentOutboundMessages", mock.Anything, "conv_1", mock.Anything).Return([]model.Message{}, nil)

	oracle.On("Decide", mock.Anything, mock.Anything).Return(model.Decision{
		Action:  model.ActionRespond,
		Message: "The factor rate starts at 1.18 for your revenue band.",
	}, nil)

	dispatcher.On("Send", mock.Anything, mock.Anything, "The factor rate starts at 1.18 for your revenue band.", model.SentByAI).
		Return(&model.Message{MessageID: "msg_3", Content: "The factor rate starts at 1.18 for your revenue band.", Status: model.MessageStatusSent}, nil)

	var updated *model.Conversation
	ds.On("UpdateConversation", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		updated = args.Get(1).(*model.Conversation)
	}).Return(nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	dispatcher.AssertNumberOfCalls(t, "Send", 1)
	assert.NotNil(t, updated)
	assert.Equal(t, "msg_2", updated.LastProcessedMessageID)
	assert.Equal(t, model.ActionRespond, updated.LastAIDecision)
	assert.Zero(t, updated.NudgeCount, "nudge_count resets on new inbound")
	assert.WithinDuration(t, time.Now(), updated.LastActivity, 5*time.Second)
	ds.AssertCalled(t, "ReleaseConversation", mock.Anything, "conv_1")
}

// Two ticks race on one conversation; the loser logs a skip and exits
// without touching the conversation.
func TestProcessReply_ClaimLost(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(false, nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	ds.AssertNotCalled(t, "GetConversation", mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "ReleaseConversation", mock.Anything, mock.Anything)
	oracle.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything)
	dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// "ok" in DRIP after a non-question outbound: nudge bookkeeping resets,
// activity updates, no oracle call, no message sent, state unchanged.
func TestProcessReply_PureAckShortCircuit(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	conversation := activeConversation()
	conversation.State = model.StateDrip
	conversation.NudgeCount = 2

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(conversation, nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(&model.Message{
		MessageID: "msg_2",
		Direction: model.DirectionInbound,
		Content:   "ok",
		SentBy:    model.SentByCustomer,
		CreatedAt: time.Now().Add(-3 * time.Minute),
	}, nil)
	ds.On("GetLastOutboundMessage", mock.Anything, "conv_1").Return(&model.Message{
		MessageID: "msg_1",
		Direction: model.DirectionOutbound,
		SentBy:    model.SentByDrip,
		Content:   "I'll send over some numbers this week.",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}, nil)

	var updated *model.Conversation
	ds.On("UpdateConversation", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		updated = args.Get(1).(*model.Conversation)
	}).Return(nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	oracle.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything)
	dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "TransitionState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.NotNil(t, updated)
	assert.Zero(t, updated.NudgeCount)
	assert.Equal(t, "msg_2", updated.LastProcessedMessageID)
	assert.Equal(t, model.StateDrip, updated.State, "a bare ack is not genuine engagement")
}

// Oracle wants ready_to_submit but no pitch_accepted fact exists: the
// transition is withheld and a clarifying question goes out instead.
func TestProcessReply_ReadyToSubmitWithheld(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	inbound := &model.Message{
		MessageID: "msg_2",
		Direction: model.DirectionInbound,
		Content:   "the numbers look reasonable",
		SentBy:    model.SentByCustomer,
		CreatedAt: time.Now().Add(-3 * time.Minute),
	}

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(activeConversation(), nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(inbound, nil)
	ds.On("GetLastOutboundMessage", mock.Anything, "conv_1").Return(nil, nil)
	ds.On("GetMessages", mock.Anything, "conv_1", messageHistoryLimit, 0).Return([]model.Message{*inbound}, nil)
	ds.On("GetFacts", mock.Anything, "conv_1").Return([]model.Fact{}, nil)
	ds.On("GetActiveOffers", mock.Anything, "conv_1").Return([]model.Offer{}, nil)
	ds.On("GetFact", mock.Anything, "conv_1", model.FactPitchAccepted).Return(nil, nil)
	ds.On("HasNewerInbound", mock.Anything, "conv_1", "msg_2").Return(false, nil)
	ds.On("GetRecentOutboundMessages", mock.Anything, "conv_1", mock.Anything).Return([]model.Message{}, nil)
	ds.On("UpdateConversation", mock.Anything, mock.Anything).Return(nil)

	oracle.On("Decide", mock.Anything, mock.Anything).Return(model.Decision{
		Action: model.ActionReadyToSubmit,
	}, nil)

	var sent string
	dispatcher.On("Send", mock.Anything, mock.Anything, mock.Anything, model.SentByAI).
		Run(func(args mock.Arguments) { sent = args.String(2) }).
		Return(&model.Message{MessageID: "msg_3", Content: "clarify", Status: model.MessageStatusSent}, nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	ds.AssertNotCalled(t, "TransitionState", mock.Anything, "conv_1", model.StateReadyToSubmit, mock.Anything)
	assert.Contains(t, sent, "happy with the offer", "a clarifying question replaces the withheld transition")
}

// With the pitch_accepted fact recorded, the same action advances the state.
func TestProcessReply_ReadyToSubmitAdvances(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, _ := newTestEngine(ds)

	inbound := &model.Message{
		MessageID: "msg_2",
		Direction: model.DirectionInbound,
		Content:   "yes let's do it",
		SentBy:    model.SentByCustomer,
		CreatedAt: time.Now().Add(-3 * time.Minute),
	}

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(activeConversation(), nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(inbound, nil)
	ds.On("GetLastOutboundMessage", mock.Anything, "conv_1").Return(nil, nil)
	ds.On("GetMessages", mock.Anything, "conv_1", messageHistoryLimit, 0).Return([]model.Message{*inbound}, nil)
	ds.On("GetFacts", mock.Anything, "conv_1").Return([]model.Fact{}, nil)
	ds.On("GetActiveOffers", mock.Anything, "conv_1").Return([]model.Offer{}, nil)
	ds.On("GetFact", mock.Anything, "conv_1", model.FactPitchAccepted).Return(&model.Fact{
		ConversationID: "conv_1",
		Key:            model.FactPitchAccepted,
		Value:          "true",
	}, nil)
	ds.On("TransitionState", mock.Anything, "conv_1", model.StateReadyToSubmit, "scheduler").
		Return(&model.StateTransition{OldState: model.StateActive, NewState: model.StateReadyToSubmit}, nil)
	ds.On("UpdateConversation", mock.Anything, mock.Anything).Return(nil)

	oracle.On("Decide", mock.Anything, mock.Anything).Return(model.Decision{
		Action: model.ActionReadyToSubmit,
	}, nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	ds.AssertCalled(t, "TransitionState", mock.Anything, "conv_1", model.StateReadyToSubmit, "scheduler")
}

// Reprocessing an already-processed inbound id produces no outbound message
// and no transition.
func TestProcessReply_Idempotent(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	conversation := activeConversation()
	conversation.LastProcessedMessageID = "msg_2"

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(conversation, nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(&model.Message{
		MessageID: "msg_2",
		Direction: model.DirectionInbound,
		Content:   "yes, what's the rate?",
		CreatedAt: time.Now().Add(-5 * time.Minute),
	}, nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	oracle.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything)
	dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "UpdateConversation", mock.Anything, mock.Anything)
}

// A fresher inbound message arriving during the pre-dispatch delay discards
// the stale response; bookkeeping still marks the old message processed.
func TestProcessReply_StaleResponseDiscarded(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	inbound := &model.Message{
		MessageID: "msg_2",
		Direction: model.DirectionInbound,
		Content:   "how long does approval take?",
		CreatedAt: time.Now().Add(-3 * time.Minute),
	}

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(activeConversation(), nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(inbound, nil)
	ds.On("GetLastOutboundMessage", mock.Anything, "conv_1").Return(nil, nil)
	ds.On("GetMessages", mock.Anything, "conv_1", messageHistoryLimit, 0).Return([]model.Message{*inbound}, nil)
	ds.On("GetFacts", mock.Anything, "conv_1").Return([]model.Fact{}, nil)
	ds.On("GetActiveOffers", mock.Anything, "conv_1").Return([]model.Offer{}, nil)
	ds.On("HasNewerInbound", mock.Anything, "conv_1", "msg_2").Return(true, nil)

	var updated *model.Conversation
	ds.On("UpdateConversation", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		updated = args.Get(1).(*model.Conversation)
	}).Return(nil)

	oracle.On("Decide", mock.Anything, mock.Anything).Return(model.Decision{
		Action:  model.ActionRespond,
		Message: "Usually one to two business days.",
	}, nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.NotNil(t, updated)
	assert.Equal(t, "msg_2", updated.LastProcessedMessageID)
}

// A candidate message matching a recently sent message's opening text is
// never dispatched.
func TestProcessReply_DuplicateSendRejected(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	inbound := &model.Message{
		MessageID: "msg_2",
		Direction: model.DirectionInbound,
		Content:   "what was the rate again?",
		CreatedAt: time.Now().Add(-3 * time.Minute),
	}

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(activeConversation(), nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(inbound, nil)
	ds.On("GetLastOutboundMessage", mock.Anything, "conv_1").Return(nil, nil)
	ds.On("GetMessages", mock.Anything, "conv_1", messageHistoryLimit, 0).Return([]model.Message{*inbound}, nil)
	ds.On("GetFacts", mock.Anything, "conv_1").Return([]model.Fact{}, nil)
	ds.On("GetActiveOffers", mock.Anything, "conv_1").Return([]model.Offer{}, nil)
	ds.On("HasNewerInbound", mock.Anything, "conv_1", "msg_2").Return(false, nil)
	ds.On("GetRecentOutboundMessages", mock.Anything, "conv_1", mock.Anything).Return([]model.Message{
		{Content: "The factor rate starts at 1.18 for your revenue band."},
	}, nil)
	ds.On("UpdateConversation", mock.Anything, mock.Anything).Return(nil)

	oracle.On("Decide", mock.Anything, mock.Anything).Return(model.Decision{
		Action:  model.ActionRespond,
		Message: "The factor rate starts at 1.18 for your revenue band.",
	}, nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// A transient oracle failure releases the claim and leaves the conversation
// eligible next tick: no bookkeeping update, no dispatch.
func TestProcessReply_OracleFailure(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	inbound := &model.Message{
		MessageID: "msg_2",
		Direction: model.DirectionInbound,
		Content:   "what are the terms?",
		CreatedAt: time.Now().Add(-3 * time.Minute),
	}

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(activeConversation(), nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(inbound, nil)
	ds.On("GetLastOutboundMessage", mock.Anything, "conv_1").Return(nil, nil)
	ds.On("GetMessages", mock.Anything, "conv_1", messageHistoryLimit, 0).Return([]model.Message{*inbound}, nil)
	ds.On("GetFacts", mock.Anything, "conv_1").Return([]model.Fact{}, nil)
	ds.On("GetActiveOffers", mock.Anything, "conv_1").Return([]model.Offer{}, nil)

	oracle.On("Decide", mock.Anything, mock.Anything).Return(model.Decision{}, errors.New("oracle timeout"))

	err := engine.processReply(context.Background(), "conv_1")
	assert.Error(t, err)

	dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "UpdateConversation", mock.Anything, mock.Anything)
	ds.AssertCalled(t, "ReleaseConversation", mock.Anything, "conv_1")
}

// mark_dead transitions the conversation and produces no outbound message.
func TestProcessReply_MarkDead(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	inbound := &model.Message{
		MessageID: "msg_2",
		Direction: model.DirectionInbound,
		Content:   "stop texting me",
		CreatedAt: time.Now().Add(-3 * time.Minute),
	}

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(activeConversation(), nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(inbound, nil)
	ds.On("GetLastOutboundMessage", mock.Anything, "conv_1").Return(nil, nil)
	ds.On("GetMessages", mock.Anything, "conv_1", messageHistoryLimit, 0).Return([]model.Message{*inbound}, nil)
	ds.On("GetFacts", mock.Anything, "conv_1").Return([]model.Fact{}, nil)
	ds.On("GetActiveOffers", mock.Anything, "conv_1").Return([]model.Offer{}, nil)
	ds.On("TransitionState", mock.Anything, "conv_1", model.StateDead, "scheduler").
		Return(&model.StateTransition{OldState: model.StateActive, NewState: model.StateDead}, nil)
	ds.On("UpdateConversation", mock.Anything, mock.Anything).Return(nil)

	oracle.On("Decide", mock.Anything, mock.Anything).Return(model.Decision{
		Action: model.ActionMarkDead,
		Reason: "lead asked to stop",
	}, nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	ds.AssertCalled(t, "TransitionState", mock.Anything, "conv_1", model.StateDead, "scheduler")
	dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// An inbound message observed in DRIP promotes the lead to ACTIVE before the
// oracle is consulted.
func TestProcessReply_PromotesDripToActive(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	conversation := activeConversation()
	conversation.State = model.StateDrip

	inbound := &model.Message{
		MessageID: "msg_2",
		Direction: model.DirectionInbound,
		Content:   "yes, tell me more about the funding",
		CreatedAt: time.Now().Add(-3 * time.Minute),
	}

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(conversation, nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(inbound, nil)
	ds.On("GetLastOutboundMessage", mock.Anything, "conv_1").Return(nil, nil)
	ds.On("TransitionState", mock.Anything, "conv_1", model.StateActive, "scheduler").
		Return(&model.StateTransition{OldState: model.StateDrip, NewState: model.StateActive}, nil)
	ds.On("GetMessages", mock.Anything, "conv_1", messageHistoryLimit, 0).Return([]model.Message{*inbound}, nil)
	ds.On("GetFacts", mock.Anything, "conv_1").Return([]model.Fact{}, nil)
	ds.On("GetActiveOffers", mock.Anything, "conv_1").Return([]model.Offer{}, nil)
	ds.On("HasNewerInbound", mock.Anything, "conv_1", "msg_2").Return(false, nil)
	ds.On("GetRecentOutboundMessages", mock.Anything, "conv_1", mock.Anything).Return([]model.Message{}, nil)
	ds.On("UpdateConversation", mock.Anything, mock.Anything).Return(nil)

	oracle.On("Decide", mock.Anything, mock.Anything).Return(model.Decision{
		Action:  model.ActionRespond,
		Message: "Great — here's how it works.",
	}, nil)

	dispatcher.On("Send", mock.Anything, mock.Anything, mock.Anything, model.SentByAI).
		Return(&model.Message{MessageID: "msg_3", Content: "Great — here's how it works.", Status: model.MessageStatusSent}, nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	ds.AssertCalled(t, "TransitionState", mock.Anything, "conv_1", model.StateActive, "scheduler")
}

// Extracted facts from the decision are upserted.
func TestProcessReply_ExtractedFacts(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	inbound := &model.Message{
		MessageID: "msg_2",
		Direction: model.DirectionInbound,
		Content:   "we do about 40k a month",
		CreatedAt: time.Now().Add(-3 * time.Minute),
	}

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(activeConversation(), nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(inbound, nil)
	ds.On("GetLastOutboundMessage", mock.Anything, "conv_1").Return(nil, nil)
	ds.On("GetMessages", mock.Anything, "conv_1", messageHistoryLimit, 0).Return([]model.Message{*inbound}, nil)
	ds.On("GetFacts", mock.Anything, "conv_1").Return([]model.Fact{}, nil)
	ds.On("GetActiveOffers", mock.Anything, "conv_1").Return([]model.Offer{}, nil)
	ds.On("UpsertFact", mock.Anything, mock.MatchedBy(func(f *model.Fact) bool {
		return f.Key == "monthly_revenue" && f.Value == "40000"
	})).Return(nil)
	ds.On("UpdateConversation", mock.Anything, mock.Anything).Return(nil)

	oracle.On("Decide", mock.Anything, mock.Anything).Return(model.Decision{
		Action:         model.ActionNoResponse,
		ExtractedFacts: map[string]string{"monthly_revenue": "40000"},
	}, nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	ds.AssertCalled(t, "UpsertFact", mock.Anything, mock.Anything)
	dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// The stall threshold triggers the scripted breakup and forces the lead
// dormant by capping the nudge counter.
func TestProcessReply_StallBreakup(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	conversation := activeConversation()
	conversation.StallCount = 2 // one below the default threshold

	inbound := &model.Message{
		MessageID: "msg_2",
		Direction: model.DirectionInbound,
		Content:   "let me think about it and circle back",
		CreatedAt: time.Now().Add(-3 * time.Minute),
	}

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(conversation, nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(inbound, nil)
	ds.On("GetLastOutboundMessage", mock.Anything, "conv_1").Return(nil, nil)
	ds.On("HasNewerInbound", mock.Anything, "conv_1", "msg_2").Return(false, nil)
	ds.On("GetRecentOutboundMessages", mock.Anything, "conv_1", mock.Anything).Return([]model.Message{}, nil)

	var updates []*model.Conversation
	ds.On("UpdateConversation", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		snapshot := *args.Get(1).(*model.Conversation)
		updates = append(updates, &snapshot)
	}).Return(nil)

	dispatcher.On("Send", mock.Anything, mock.Anything, breakupMessage, model.SentByAI).
		Return(&model.Message{MessageID: "msg_3", Content: breakupMessage, Status: model.MessageStatusSent}, nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	oracle.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything)
	dispatcher.AssertCalled(t, "Send", mock.Anything, mock.Anything, breakupMessage, model.SentByAI)
	assert.NotEmpty(t, updates)
	final := updates[len(updates)-1]
	assert.Equal(t, 3, final.StallCount)
	assert.GreaterOrEqual(t, final.NudgeCount, final.StallCount, "breakup forces the lead dormant via the nudge cap")
}

// A lead who stalled twice and then comes back with real information starts
// from a clean slate: the persisted stall counter drops back to zero.
func TestProcessReply_SubstantiveReplyClearsStallStreak(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, oracle, dispatcher := newTestEngine(ds)

	conversation := activeConversation()
	conversation.StallCount = 2

	inbound := &model.Message{
		MessageID:      "msg_2",
		ConversationID: "conv_1",
		Direction:      model.DirectionInbound,
		Content:        "I just sent over our bank statements, we want to move forward this week",
		SentBy:         model.SentByCustomer,
		CreatedAt:      time.Now().Add(-3 * time.Minute),
	}

	ds.On("TryClaimConversation", mock.Anything, "conv_1").Return(true, nil)
	ds.On("ReleaseConversation", mock.Anything, "conv_1").Return(nil)
	ds.On("GetConversation", mock.Anything, "conv_1").Return(conversation, nil)
	ds.On("GetLatestInboundMessage", mock.Anything, "conv_1").Return(inbound, nil)
	ds.On("GetLastOutboundMessage", mock.Anything, "conv_1").Return(nil, nil)
	ds.On("GetMessages", mock.Anything, "conv_1", messageHistoryLimit, 0).Return([]model.Message{*inbound}, nil)
	ds.On("GetFacts", mock.Anything, "conv_1").Return([]model.Fact{}, nil)
	ds.On("GetActiveOffers", mock.Anything, "conv_1").Return([]model.Offer{}, nil)
	ds.On("HasNewerInbound", mock.Anything, "conv_1", "msg_2").Return(false, nil)
	ds.On("GetRecentOutboundMessages", mock.Anything, "conv_1", mock.Anything).Return([]model.Message{}, nil)

	var updated *model.Conversation
	ds.On("UpdateConversation", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		updated = args.Get(1).(*model.Conversation)
	}).Return(nil)

	oracle.On("Decide", mock.Anything, mock.Anything).Return(model.Decision{
		Action:  model.ActionRespond,
		Message: "Perfect, I'll review the statements and send the next steps today.",
	}, nil)

	dispatcher.On("Send", mock.Anything, mock.Anything, mock.Anything, model.SentByAI).
		Return(&model.Message{MessageID: "msg_3", Content: "next steps", Status: model.MessageStatusSent}, nil)

	err := engine.processReply(context.Background(), "conv_1")
	assert.NoError(t, err)

	oracle.AssertCalled(t, "Decide", mock.Anything, mock.Anything)
	assert.NotNil(t, updated)
	assert.Zero(t, updated.StallCount, "a substantive reply resets the stall counter")
	assert.Equal(t, "msg_2", updated.LastProcessedMessageID)
}
