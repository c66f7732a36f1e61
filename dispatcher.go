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
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/leadloop/leadloop/config"
	"github.com/leadloop/leadloop/database"
	"github.com/leadloop/leadloop/internal/request"
	"github.com/leadloop/leadloop/model"
)

// ErrNoDeliveryChannel marks a lead with no usable delivery address. Callers
// skip the send with a log; the conversation state is left unchanged.
var ErrNoDeliveryChannel = errors.New("conversation has no usable delivery channel")

// MessageDispatcher delivers outbound text. Implementations must persist the
// outbound message before attempting delivery and update its status after the
// attempt, so the message log never loses a send.
type MessageDispatcher interface {
	Send(ctx context.Context, conversation *model.Conversation, content, sentBy string) (*model.Message, error)
}

// HTTPDispatcher posts outbound messages to the delivery transport. Delivery
// attempts are retried with exponential backoff inside the single Send call;
// once Send returns an error there is no same-tick retry.
type HTTPDispatcher struct {
	datasource database.IDataSource
	client     *http.Client
	url        string
	events     *EventPublisher
}

func NewHTTPDispatcher(conf *config.DispatcherConfig, ds database.IDataSource, events *EventPublisher) *HTTPDispatcher {
	return &HTTPDispatcher{
		datasource: ds,
		client: &http.Client{
			Timeout: time.Duration(conf.TimeoutSec) * time.Second,
		},
		url:    conf.Url,
		events: events,
	}
}

func (d *HTTPDispatcher) Send(ctx context.Context, conversation *model.Conversation, content, sentBy string) (*model.Message, error) {
	if conversation.LeadPhone == "" {
		return nil, ErrNoDeliveryChannel
	}

	message, err := d.datasource.RecordMessage(ctx, &model.Message{
		ConversationID: conversation.ConversationID,
		Direction:      model.DirectionOutbound,
		Content:        content,
		SentBy:         sentBy,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to persist outbound message")
	}

	if err := d.deliver(ctx, conversation, message); err != nil {
		if statusErr := d.datasource.UpdateMessageStatus(ctx, message.MessageID, model.MessageStatusFailed); statusErr != nil {
			logrus.Errorf("failed to mark message %s failed: %v", message.MessageID, statusErr)
		}
		message.Status = model.MessageStatusFailed
		return message, errors.Wrap(err, "delivery failed")
	}

	if err := d.datasource.UpdateMessageStatus(ctx, message.MessageID, model.MessageStatusSent); err != nil {
		logrus.Errorf("failed to mark message %s sent: %v", message.MessageID, err)
	}
	message.Status = model.MessageStatusSent

	d.events.Publish(ctx, EventMessageSent, conversation.ConversationID, message)
	return message, nil
}

func (d *HTTPDispatcher) deliver(ctx context.Context, conversation *model.Conversation, message *model.Message) error {
	operation := func() error {
		payload, err := request.ToJsonReq(map[string]interface{}{
			"message_id":      message.MessageID,
			"conversation_id": conversation.ConversationID,
			"to":              conversation.LeadPhone,
			"content":         message.Content,
			"sent_by":         message.SentBy,
		})
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("transport returned status %d", resp.StatusCode)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return backoff.Permanent(fmt.Errorf("transport rejected message with status %d", resp.StatusCode))
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxElapsedTime = 10 * time.Second

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(expBackoff, 3), ctx))
}
