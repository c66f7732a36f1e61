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
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leadloop/leadloop/config"
	"github.com/leadloop/leadloop/internal/notification"
	"github.com/leadloop/leadloop/model"
)

// messageHistoryLimit bounds how much chronological history is handed to the
// oracle per call.
const messageHistoryLimit = 50

// ReplyTick runs one pass of the reply-driven loop: select conversations
// whose latest message is inbound and unprocessed, then work through them
// sequentially with a pacing delay. A failure on one conversation never
// aborts the batch.
func (l *LeadLoop) ReplyTick(ctx context.Context) {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Errorf("reply loop: config fetch failed: %v", err)
		return
	}

	candidates, err := l.datasource.GetReplyCandidates(ctx,
		time.Duration(conf.Scheduler.RecencyWindowHours)*time.Hour,
		time.Duration(conf.Scheduler.QuietPeriodSec)*time.Second)
	if err != nil {
		logrus.Errorf("reply loop: candidate query failed: %v", err)
		notification.NotifyError(err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	logrus.Infof("reply loop: processing %d conversations", len(candidates))
	for i, candidate := range candidates {
		if i > 0 {
			l.sleep(time.Duration(conf.Scheduler.PacingDelaySec) * time.Second)
		}
		if err := l.processReply(ctx, candidate.ConversationID); err != nil {
			logrus.Errorf("reply loop: conversation %s failed: %v", candidate.ConversationID, err)
		}
	}
}

// processReply handles a single claimed conversation through the guard chain,
// the oracle and dispatch. The claim is always released on return.
func (l *LeadLoop) processReply(ctx context.Context, conversationID string) error {
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

	// Re-read under the claim; the candidate snapshot may be stale.
	conversation, err := l.datasource.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	manual := conversation.ManualInstruction
	if !conversation.AIEnabled && manual == "" {
		return nil
	}
	if conversation.State.IsTerminal() {
		return nil
	}
	if conversation.IsWaiting(time.Now()) && manual == "" {
		return nil
	}

	inbound, err := l.datasource.GetLatestInboundMessage(ctx, conversationID)
	if err != nil {
		return err
	}
	if inbound == nil {
		return nil
	}
	if conversation.LastProcessedMessageID == inbound.MessageID && manual == "" {
		// Already decided on this message; nothing new to do.
		return nil
	}

	conversation.NudgeCount = 0

	lastOutbound, err := l.datasource.GetLastOutboundMessage(ctx, conversationID)
	if err != nil {
		return err
	}

	rc := &replyContext{
		conversation: conversation,
		inbound:      inbound,
		lastOutbound: lastOutbound,
	}

	// Guards see the pre-promotion state: a pure acknowledgement during cold
	// outreach must not count as genuine engagement.
	if result := l.evaluateGuards(rc, conf); result != nil {
		logrus.Infof("conversation %s: guard %s fired", conversationID, result.guard)
		return l.applyDecision(ctx, rc, result.decision, conf)
	}

	// A real inbound message observed in NEW or DRIP promotes the lead to a
	// two-way conversation.
	if conversation.State == model.StateNew || conversation.State == model.StateDrip {
		if err := l.transition(ctx, conversation, model.StateActive, "scheduler"); err != nil {
			return err
		}
	}

	breakup, guidance := l.stallGuard(rc, conf)
	if breakup != nil {
		logrus.Infof("conversation %s: stall threshold reached, sending breakup", conversationID)
		if err := l.applyDecision(ctx, rc, breakup.decision, conf); err != nil {
			return err
		}
		// Force the lead dormant: the nudge loop sees a capped counter and
		// leaves the conversation alone until a fresh inbound resets it.
		conversation.NudgeCount = conf.Scheduler.NudgeCap
		return l.datasource.UpdateConversation(ctx, conversation)
	}
	if guidance == "" {
		// A substantive reply ends the stall streak. Only deferrals keep it
		// counting toward the breakup threshold.
		conversation.StallCount = 0
	}

	decision, err := l.consultOracle(ctx, rc, manual, guidance, conf)
	if err != nil {
		notification.NotifyError(err)
		return err
	}

	return l.applyDecision(ctx, rc, decision, conf)
}

// consultOracle assembles the full decision context and calls the oracle.
func (l *LeadLoop) consultOracle(ctx context.Context, rc *replyContext, manual, guidance string, conf *config.Configuration) (model.Decision, error) {
	conversationID := rc.conversation.ConversationID

	messages, err := l.datasource.GetMessages(ctx, conversationID, messageHistoryLimit, 0)
	if err != nil {
		return model.Decision{}, err
	}
	facts, err := l.datasource.GetFacts(ctx, conversationID)
	if err != nil {
		return model.Decision{}, err
	}
	offers, err := l.datasource.GetActiveOffers(ctx, conversationID)
	if err != nil {
		return model.Decision{}, err
	}

	now := time.Now()
	return l.oracle.Decide(ctx, &OracleContext{
		Conversation:      rc.conversation,
		Messages:          messages,
		Facts:             facts,
		Offers:            offers,
		ManualInstruction: manual,
		Guidance:          guidance,
		LocalTime:         now,
		BusinessHours:     WithinBusinessHours(&conf.BusinessHours, now),
	})
}

// applyDecision applies the oracle's (or a guard's) decision: state, facts,
// bookkeeping and, for message-producing actions, the delayed dispatch path.
// Bookkeeping is written even when nothing is sent, so the same inbound
// message is never decided on twice.
func (l *LeadLoop) applyDecision(ctx context.Context, rc *replyContext, decision model.Decision, conf *config.Configuration) error {
	conversation := rc.conversation
	now := time.Now()

	for key, value := range decision.ExtractedFacts {
		if err := l.datasource.UpsertFact(ctx, &model.Fact{
			ConversationID: conversation.ConversationID,
			Key:            key,
			Value:          value,
		}); err != nil {
			logrus.Errorf("conversation %s: fact upsert %s failed: %v", conversation.ConversationID, key, err)
		}
	}

	outbound := ""
	switch decision.Action {
	case model.ActionMarkDead:
		if err := l.transition(ctx, conversation, model.StateDead, "scheduler"); err != nil {
			return err
		}

	case model.ActionQualify, model.ActionSyncDrive:
		l.triggerEnrichment(conversation.ConversationID, decision.Action)
		outbound = decision.Message

	case model.ActionReadyToSubmit:
		accepted, err := l.datasource.GetFact(ctx, conversation.ConversationID, model.FactPitchAccepted)
		if err != nil {
			return err
		}
		if accepted != nil {
			if err := l.transition(ctx, conversation, model.StateReadyToSubmit, "scheduler"); err != nil {
				return err
			}
			outbound = decision.Message
		} else {
			// The transition is withheld until the lead explicitly accepts
			// the pitch; ask instead of advancing.
			outbound = decision.Message
			if outbound == "" {
				outbound = "Before I move this forward — are you happy with the offer we discussed?"
			}
			logrus.Infof("conversation %s: ready_to_submit withheld, pitch not accepted", conversation.ConversationID)
		}

	case model.ActionNoResponse:
		if decision.Reason != "" {
			l.logSkip(conversation.ConversationID, decision.Reason, conf)
		}

	case model.ActionRespond:
		outbound = decision.Message
	}

	if outbound != "" && !conversation.State.IsTerminal() {
		if err := l.dispatchReply(ctx, rc, outbound, conf); err != nil {
			return err
		}
	}

	conversation.LastAIDecision = decision.Action
	conversation.LastAIDecisionAt = &now
	conversation.LastActivity = now
	if rc.inbound != nil {
		conversation.LastProcessedMessageID = rc.inbound.MessageID
	}
	if decision.PendingQuestion != "" {
		conversation.PendingQuestion = decision.PendingQuestion
	}
	conversation.WaitUntil = decision.WaitUntil
	conversation.ManualInstruction = "" // one-shot

	return l.datasource.UpdateConversation(ctx, conversation)
}

// dispatchReply runs the human-like delay, the freshness re-check and the
// duplicate-send guard before handing the text to the dispatcher.
func (l *LeadLoop) dispatchReply(ctx context.Context, rc *replyContext, content string, conf *config.Configuration) error {
	minDelay, maxDelay := conf.Scheduler.ReplyDelay()
	l.sleep(minDelay + time.Duration(rand.Int63n(int64(maxDelay-minDelay)+1)))

	// A fresher inbound message invalidates the response we just composed:
	// discard it and let the next tick decide with full context.
	if rc.inbound != nil {
		newer, err := l.datasource.HasNewerInbound(ctx, rc.conversation.ConversationID, rc.inbound.MessageID)
		if err != nil {
			return err
		}
		if newer {
			logrus.Infof("conversation %s: fresher inbound arrived mid-delay, discarding stale response", rc.conversation.ConversationID)
			return nil
		}
	}

	if l.dedup.isDuplicate(ctx, rc.conversation.ConversationID, content) {
		logrus.Warnf("conversation %s: candidate message matches a recent send, rejecting dispatch", rc.conversation.ConversationID)
		return nil
	}

	message, err := l.dispatcher.Send(ctx, rc.conversation, content, model.SentByAI)
	if err != nil {
		if err == ErrNoDeliveryChannel {
			l.logSkip(rc.conversation.ConversationID, "no usable delivery channel", conf)
			return nil
		}
		return err
	}

	l.dedup.remember(ctx, rc.conversation.ConversationID, message.Content)
	return nil
}

// transition moves the conversation and publishes the state-changed event.
// The store resets nudge bookkeeping and writes the audit row atomically.
func (l *LeadLoop) transition(ctx context.Context, conversation *model.Conversation, newState model.State, changedBy string) error {
	transition, err := l.datasource.TransitionState(ctx, conversation.ConversationID, newState, changedBy)
	if err != nil {
		return err
	}
	conversation.State = newState
	if transition != nil {
		conversation.NudgeCount = 0
		l.events.Publish(ctx, EventStateChanged, conversation.ConversationID, transition)
	}
	return nil
}

func (l *LeadLoop) logSkip(conversationID, reason string, conf *config.Configuration) {
	interval := time.Duration(conf.Scheduler.SkipLogMinutes) * time.Minute
	if l.skips.shouldLog(conversationID+":"+reason, interval) {
		logrus.Infof("conversation %s: skipped (%s)", conversationID, reason)
	}
}
