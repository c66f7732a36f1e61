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
	"strings"
	"time"

	"github.com/leadloop/leadloop/config"
	"github.com/leadloop/leadloop/model"
)

// Guard names, recorded as the decision reason and in logs.
const (
	guardRestrictedState   = "restricted_state"
	guardHumanGrace        = "human_grace"
	guardCloseConfirmation = "close_confirmation"
	guardPureAck           = "pure_ack"
	guardStallBreakup      = "stall_breakup"
)

// closeFilePhrase is the scripted closing question. When the prior outbound
// asked it and the lead affirmed, the file is closed without an oracle call.
const closeFilePhrase = "close the file"

// breakupMessage is the scripted final message sent when a lead hits the
// stall threshold.
const breakupMessage = "It sounds like the timing isn't right, so I'll close the file on my end for now. If anything changes, just reply here and we'll pick it right back up."

// guardResult is a terminal outcome from the guard chain: the decision to
// apply instead of calling the oracle, tagged with which guard fired.
type guardResult struct {
	guard    string
	decision model.Decision
}

// replyContext carries everything the guard chain inspects for one inbound
// message.
type replyContext struct {
	conversation *model.Conversation
	inbound      *model.Message
	lastOutbound *model.Message // nil when nothing was ever sent
}

// evaluateGuards walks the prioritized guard chain, short-circuiting on the
// first match. A nil result means fall through to the general oracle call.
// Ordering matters: the close confirmation must win over the pure-ack
// short-circuit because a bare "ok" can be either.
func (l *LeadLoop) evaluateGuards(rc *replyContext, conf *config.Configuration) *guardResult {
	if result := restrictedStateGuard(rc); result != nil {
		return result
	}
	if result := humanGraceGuard(rc, conf); result != nil {
		return result
	}
	if result := l.closeConfirmationGuard(rc); result != nil {
		return result
	}
	if result := l.pureAckGuard(rc); result != nil {
		return result
	}
	return nil
}

// restrictedStateGuard enforces the hard status lock: no autonomous message
// while the conversation sits in a restricted state. A manual instruction is
// the only way through.
func restrictedStateGuard(rc *replyContext) *guardResult {
	if !rc.conversation.State.IsRestricted() {
		return nil
	}
	if rc.conversation.ManualInstruction != "" {
		return nil
	}
	return &guardResult{
		guard: guardRestrictedState,
		decision: model.Decision{
			Action: model.ActionNoResponse,
			Reason: "conversation is in a restricted state",
		},
	}
}

// humanGraceGuard stays silent while a human is actively working the lead:
// the most recent outbound was human-sent within the grace window and the
// lead has not replied since.
func humanGraceGuard(rc *replyContext, conf *config.Configuration) *guardResult {
	if rc.lastOutbound == nil || rc.lastOutbound.SentBy != model.SentByHuman {
		return nil
	}
	grace := time.Duration(conf.Scheduler.HumanGraceMinutes) * time.Minute
	if time.Since(rc.lastOutbound.CreatedAt) >= grace {
		return nil
	}
	if rc.inbound != nil && rc.inbound.CreatedAt.After(rc.lastOutbound.CreatedAt) {
		// The lead replied after the human; the floor is open again.
		return nil
	}
	return &guardResult{
		guard: guardHumanGrace,
		decision: model.Decision{
			Action: model.ActionNoResponse,
			Reason: "human operator sent the last message within the grace window",
		},
	}
}

// closeConfirmationGuard closes the file deterministically: we previously
// asked whether to close it and the lead affirmed. No oracle call is needed
// to mark a confirmed dead lead dead.
func (l *LeadLoop) closeConfirmationGuard(rc *replyContext) *guardResult {
	if rc.inbound == nil || rc.lastOutbound == nil {
		return nil
	}
	if !strings.Contains(strings.ToLower(rc.lastOutbound.Content), closeFilePhrase) {
		return nil
	}
	if !l.classifier.IsAffirmative(rc.inbound.Content) {
		return nil
	}
	return &guardResult{
		guard: guardCloseConfirmation,
		decision: model.Decision{
			Action: model.ActionMarkDead,
			Reason: "lead confirmed closing the file",
		},
	}
}

// pureAckGuard absorbs bare acknowledgements during cold outreach: when the
// prior outbound was not a question, an "ok" carries nothing for the oracle.
// Nudge bookkeeping and activity still reset.
func (l *LeadLoop) pureAckGuard(rc *replyContext) *guardResult {
	if rc.conversation.State != model.StateDrip {
		return nil
	}
	if rc.inbound == nil || !l.classifier.IsPureAck(rc.inbound.Content) {
		return nil
	}
	if rc.lastOutbound != nil && rc.lastOutbound.IsQuestion() {
		// An ack after a question is an answer; the oracle should see it.
		return nil
	}
	return &guardResult{
		guard: guardPureAck,
		decision: model.Decision{
			Action: model.ActionNoResponse,
			Reason: "pure acknowledgement during cold outreach",
		},
	}
}

// stallGuard runs after the pass-through guards. It increments the stall
// counter on deferral phrasing and, at the threshold, replaces the oracle
// call with the scripted breakup. Below the threshold it returns guidance for
// the oracle instead of a terminal decision.
func (l *LeadLoop) stallGuard(rc *replyContext, conf *config.Configuration) (*guardResult, string) {
	if rc.inbound == nil || !l.classifier.IsStall(rc.inbound.Content, "") {
		return nil, ""
	}

	rc.conversation.StallCount++

	if rc.conversation.StallCount >= conf.Scheduler.StallBreakupThreshold {
		return &guardResult{
			guard: guardStallBreakup,
			decision: model.Decision{
				Action:  model.ActionRespond,
				Message: breakupMessage,
				Reason:  "stall threshold reached",
			},
		}, ""
	}

	if rc.conversation.StallCount == 1 {
		return nil, "The lead is deferring for the first time. Keep the reply light and low-pressure."
	}
	return nil, "The lead keeps deferring. Create gentle urgency without being pushy."
}
