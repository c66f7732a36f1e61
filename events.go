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
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis pub/sub channels for real-time observers. The scheduler itself never
// subscribes; events exist purely for external observability alongside the
// audit trail.
const (
	EventMessageSent     = "leadloop:events:message.sent"
	EventMessageReceived = "leadloop:events:message.received"
	EventStateChanged    = "leadloop:events:conversation.state_changed"
)

// Event is the envelope published on every channel.
type Event struct {
	Channel        string      `json:"channel"`
	ConversationID string      `json:"conversation_id"`
	Payload        interface{} `json:"payload,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

// EventPublisher fans events out over Redis pub/sub. Publish failures are
// logged and swallowed: events are advisory and must never fail a tick.
type EventPublisher struct {
	redis redis.UniversalClient
}

func NewEventPublisher(client redis.UniversalClient) *EventPublisher {
	return &EventPublisher{redis: client}
}

func (e *EventPublisher) Publish(ctx context.Context, channel, conversationID string, payload interface{}) {
	if e == nil || e.redis == nil {
		return
	}
	event := Event{
		Channel:        channel,
		ConversationID: conversationID,
		Payload:        payload,
		OccurredAt:     time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		logrus.Errorf("event marshal failed for %s: %v", channel, err)
		return
	}
	if err := e.redis.Publish(ctx, channel, data).Err(); err != nil {
		logrus.Errorf("event publish failed for %s: %v", channel, err)
	}
}
