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

// nudgeTemplates are the scripted re-engagement messages, indexed by
// nudge_count. Past the list the last template repeats.
var nudgeTemplates = []string{
	"Hey %s, just checking in — did you have any questions about what we discussed?",
	"Hi %s, circling back on this. Is there anything holding you up that I can help with?",
	"%s, still happy to walk you through the numbers whenever suits you. Want me to give you a quick rundown?",
	"Hi %s, I don't want this to slip through the cracks — should I keep your file open?",
	"Hey %s, last check-in from me for now. If the timing works out later, just reply here.",
}

// NudgeTick runs one pass of the nudge loop: re-engage leads that replied
// before but have gone quiet, on an escalating idle threshold.
func (l *LeadLoop) NudgeTick(ctx context.Context) {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Errorf("nudge loop: config fetch failed: %v", err)
		return
	}

	candidates, err := l.datasource.GetNudgeCandidates(ctx,
		time.Duration(conf.Scheduler.NudgeLookbackDays)*24*time.Hour,
		conf.Scheduler.NudgeCap)
	if err != nil {
		logrus.Errorf("nudge loop: candidate query failed: %v", err)
		notification.NotifyError(err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	logrus.Infof("nudge loop: evaluating %d conversations", len(candidates))
	for i, candidate := range candidates {
		if i > 0 {
			l.sleep(time.Duration(conf.Scheduler.PacingDelaySec) * time.Second)
		}
		if err := l.processNudge(ctx, candidate.ConversationID); err != nil {
			logrus.Errorf("nudge loop: conversation %s failed: %v", candidate.ConversationID, err)
		}
	}
}

func (l *LeadLoop) processNudge(ctx context.Context, conversationID string) error {
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

	if conversation.State != model.StateActive || !conversation.AIEnabled {
		return nil
	}
	if conversation.IsWaiting(time.Now()) {
		return nil
	}
	if conversation.NudgeCount >= conf.Scheduler.NudgeCap {
		// Permanently dormant until a fresh inbound resets the counter.
		return nil
	}

	idle := time.Since(conversation.LastActivity)
	if idle < NextNudgeDelay(conversation.NudgeCount) {
		return nil
	}

	// Re-check engagement under the claim; the candidate snapshot may be
	// stale. A lead with no reply inside the lookback window belongs to the
	// drip loop, not here.
	lookback := time.Duration(conf.Scheduler.NudgeLookbackDays) * 24 * time.Hour
	replies, err := l.datasource.CountInboundSince(ctx, conversationID, time.Now().Add(-lookback))
	if err != nil {
		return err
	}
	if replies == 0 {
		return nil
	}

	latest, err := l.datasource.GetLatestMessage(ctx, conversationID)
	if err != nil {
		return err
	}
	if latest != nil && latest.Direction == model.DirectionInbound &&
		latest.MessageID != conversation.LastProcessedMessageID {
		// An undecided inbound message belongs to the reply loop. Nudging
		// over it would talk past the lead.
		return nil
	}

	template := nudgeTemplates[min(conversation.NudgeCount, len(nudgeTemplates)-1)]
	content := fmt.Sprintf(template, firstName(conversation.LeadName))

	if l.dedup.isDuplicate(ctx, conversationID, content) {
		l.logSkip(conversationID, "nudge matches a recent send", conf)
		return nil
	}

	message, err := l.dispatcher.Send(ctx, conversation, content, model.SentByAI)
	if err != nil {
		if err == ErrNoDeliveryChannel {
			l.logSkip(conversationID, "no usable delivery channel", conf)
			return nil
		}
		return err
	}
	l.dedup.remember(ctx, conversationID, message.Content)

	conversation.NudgeCount++
	conversation.LastActivity = time.Now()
	logrus.Infof("conversation %s: nudge %d sent", conversationID, conversation.NudgeCount)
	return l.datasource.UpdateConversation(ctx, conversation)
}

func firstName(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == ' ' {
			return name[:i]
		}
	}
	return name
}
