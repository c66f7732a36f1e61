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
package mocks

import (
	"context"
	"time"

	"github.com/leadloop/leadloop/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Conversation methods

func (m *MockDataSource) CreateConversation(ctx context.Context, conversation *model.Conversation) (*model.Conversation, error) {
	args := m.Called(ctx, conversation)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *MockDataSource) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *MockDataSource) GetAllConversations(ctx context.Context, limit, offset int) ([]model.Conversation, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Conversation), args.Error(1)
}

func (m *MockDataSource) UpdateConversation(ctx context.Context, conversation *model.Conversation) error {
	args := m.Called(ctx, conversation)
	return args.Error(0)
}

func (m *MockDataSource) TryClaimConversation(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) ReleaseConversation(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) ReleaseStaleLocks(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) TransitionState(ctx context.Context, id string, newState model.State, changedBy string) (*model.StateTransition, error) {
	args := m.Called(ctx, id, newState, changedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StateTransition), args.Error(1)
}

func (m *MockDataSource) GetReplyCandidates(ctx context.Context, recencyWindow, quietPeriod time.Duration) ([]model.Conversation, error) {
	args := m.Called(ctx, recencyWindow, quietPeriod)
	return args.Get(0).([]model.Conversation), args.Error(1)
}

func (m *MockDataSource) GetNudgeCandidates(ctx context.Context, lookback time.Duration, nudgeCap int) ([]model.Conversation, error) {
	args := m.Called(ctx, lookback, nudgeCap)
	return args.Get(0).([]model.Conversation), args.Error(1)
}

func (m *MockDataSource) GetDripCandidates(ctx context.Context, cooldown time.Duration) ([]model.Conversation, error) {
	args := m.Called(ctx, cooldown)
	return args.Get(0).([]model.Conversation), args.Error(1)
}

// Message methods

func (m *MockDataSource) RecordMessage(ctx context.Context, message *model.Message) (*model.Message, error) {
	args := m.Called(ctx, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockDataSource) UpdateMessageStatus(ctx context.Context, messageID string, status string) error {
	args := m.Called(ctx, messageID, status)
	return args.Error(0)
}

func (m *MockDataSource) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	args := m.Called(ctx, conversationID, limit, offset)
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *MockDataSource) GetLatestMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockDataSource) GetLatestInboundMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockDataSource) GetLastOutboundMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockDataSource) GetRecentOutboundMessages(ctx context.Context, conversationID string, window time.Duration) ([]model.Message, error) {
	args := m.Called(ctx, conversationID, window)
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *MockDataSource) CountInboundSince(ctx context.Context, conversationID string, since time.Time) (int, error) {
	args := m.Called(ctx, conversationID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockDataSource) CountDripMessages(ctx context.Context, conversationID string) (int, error) {
	args := m.Called(ctx, conversationID)
	return args.Int(0), args.Error(1)
}

func (m *MockDataSource) HasNewerInbound(ctx context.Context, conversationID string, messageID string) (bool, error) {
	args := m.Called(ctx, conversationID, messageID)
	return args.Bool(0), args.Error(1)
}

// Fact methods

func (m *MockDataSource) UpsertFact(ctx context.Context, fact *model.Fact) error {
	args := m.Called(ctx, fact)
	return args.Error(0)
}

func (m *MockDataSource) GetFacts(ctx context.Context, conversationID string) ([]model.Fact, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).([]model.Fact), args.Error(1)
}

func (m *MockDataSource) GetFact(ctx context.Context, conversationID, key string) (*model.Fact, error) {
	args := m.Called(ctx, conversationID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Fact), args.Error(1)
}

// Transition methods

func (m *MockDataSource) GetStateTransitions(ctx context.Context, conversationID string, limit int) ([]model.StateTransition, error) {
	args := m.Called(ctx, conversationID, limit)
	return args.Get(0).([]model.StateTransition), args.Error(1)
}

// Offer methods

func (m *MockDataSource) CreateOffer(ctx context.Context, offer *model.Offer) (*model.Offer, error) {
	args := m.Called(ctx, offer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Offer), args.Error(1)
}

func (m *MockDataSource) GetActiveOffers(ctx context.Context, conversationID string) ([]model.Offer, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).([]model.Offer), args.Error(1)
}
