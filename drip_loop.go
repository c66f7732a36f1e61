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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leadloop/leadloop/config"
	"github.com/leadloop/leadloop/internal/notification"
	"github.com/leadloop/leadloop/model"
)

// dripOpener is the personalized first-contact hook.
const dripOpener = "Hi %s, this is Alex from LeadLoop Capital. We help businesses like yours get working capital fast — often within a day or two. Is growth funding something you've been thinking about?"

// dripFollowUps is the fixed, ordered, scripted follow-up sequence. None of
// these go through the oracle.
var dripFollowUps = []string{
	"Hi %s, just floating this back up. Most owners we work with are surprised how quick the process is — a few minutes to see your options, no obligation.",
	"%s, quick one: if an extra line of working capital would help this quarter, I can put together numbers for you today. Interested?",
	"Hi %s, I'll keep this short — funding offers move fast this time of year. Want me to check what you'd qualify for?",
	"%s, last note from me for now. If working capital ever becomes a priority, just reply here and I'll pick it right up.",
}

// DripTick runs one pass of the cold-outreach loop. It aborts outside the
// configured business-hours window before any claims are attempted.
func (l *LeadLoop) DripTick(ctx context.Context) {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Errorf("drip loop: config fetch failed: %v", err)
		return
	}

	if !WithinBusinessHours(&conf.BusinessHours, time.Now()) {
		logrus.Debug("drip loop: outside business hours, skipping tick")
		return
	}

	candidates, err := l.datasource.GetDripCandidates(ctx,
		time.Duration(conf.Scheduler.DripCooldownMinutes)*time.Minute)
	if err != nil {
		logrus.Errorf("drip loop: candidate query failed: %v", err)
		notification.NotifyError(err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	logrus.Infof("drip loop: evaluating %d conversations", len(candidates))
	for i, candidate := range candidates {
		if i > 0 {
			l.sleep(time.Duration(conf.Scheduler.PacingDelaySec) * time.Second)
		}
		if err := l.processDrip(ctx, candidate.ConversationID); err != nil {
			logrus.Errorf("drip loop: conversation %s failed: %v", candidate.ConversationID, err)
		}
	}
}

func (l *LeadLoop) processDrip(ctx context.Context, conversationID string) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	claimed, err := l.datasource.TryClaimConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !claimed {
		l.logSkip(conversationID, "already claimed by another worker", conf)
		return nil
	}
	defer func() {
		if err := l.datasource.ReleaseConversation(context.Background(), conversationID); err != nil {
			logrus.Errorf("failed to release conversation %s: %v", conversationID, err)
		}
	}()

	conversation, err := l.datasource.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	if !conversation.AIEnabled {
		return nil
	}
	if conversation.State != model.StateNew && conversation.State != model.StateDrip {
		// A reply promoted the lead out of cold outreach between the
		// candidate query and the claim.
		return nil
	}
	if conversation.IsWaiting(time.Now()) {
		return nil
	}

	sent, err := l.datasource.CountDripMessages(ctx, conversationID)
	if err != nil {
		return err
	}

	if sent == 0 {
		return l.sendDripOpener(ctx, conversation, conf)
	}
	return l.sendDripFollowUp(ctx, conversation, sent, conf)
}

func (l *LeadLoop) sendDripOpener(ctx context.Context, conversation *model.Conversation, conf *config.Configuration) error {
	cooldown := time.Duration(conf.Scheduler.DripCooldownMinutes) * time.Minute
	if time.Since(conversation.CreatedAt) < cooldown {
		return nil
	}

	content := fmt.Sprintf(dripOpener, firstName(conversation.LeadName))
	message, err := l.dispatcher.Send(ctx, conversation, content, model.SentByDrip)
	if err != nil {
		if err == ErrNoDeliveryChannel {
			l.logSkip(conversation.ConversationID, "no usable delivery channel", conf)
			return nil
		}
		return err
	}
	l.dedup.remember(ctx, conversation.ConversationID, message.Content)

	if err := l.transition(ctx, conversation, model.StateDrip, "drip"); err != nil {
		return err
	}
	conversation.LastActivity = time.Now()
	logrus.Infof("conversation %s: drip opener sent", conversation.ConversationID)
	return l.datasource.UpdateConversation(ctx, conversation)
}

func (l *LeadLoop) sendDripFollowUp(ctx context.Context, conversation *model.Conversation, sent int, conf *config.Configuration) error {
	followUpIndex := sent - 1 // sends so far beyond the opener
	if followUpIndex >= conf.Scheduler.DripCap || followUpIndex >= len(dripFollowUps) {
		return nil
	}

	lastOutbound, err := l.datasource.GetLastOutboundMessage(ctx, conversation.ConversationID)
	if err != nil {
		return err
	}
	if lastOutbound != nil && time.Since(lastOutbound.CreatedAt) < NextDripDelay(followUpIndex) {
		return nil
	}

	content := fmt.Sprintf(dripFollowUps[followUpIndex], firstName(conversation.LeadName))
	if l.dedup.isDuplicate(ctx, conversation.ConversationID, content) {
		l.logSkip(conversation.ConversationID, "drip follow-up matches a recent send", conf)
		return nil
	}

	message, err := l.dispatcher.Send(ctx, conversation, content, model.SentByDrip)
	if err != nil {
		if err == ErrNoDeliveryChannel {
			l.logSkip(conversation.ConversationID, "no usable delivery channel", conf)
			return nil
		}
		return err
	}
	l.dedup.remember(ctx, conversation.ConversationID, message.Content)

	conversation.LastActivity = time.Now()
	logrus.Infof("conversation %s: drip follow-up %d sent", conversation.ConversationID, followUpIndex+1)
	return l.datasource.UpdateConversation(ctx, conversation)
}
