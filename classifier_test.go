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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPureAck(t *testing.T) {
	classifier := NewKeywordClassifier(20)

	acks := []string{"ok", "OK", "Okay.", "thanks", "Thank you!", "got it", "sounds good", "👍", "sounds goood"}
	for _, content := range acks {
		assert.True(t, classifier.IsPureAck(content), "%q should classify as a pure ack", content)
	}

	notAcks := []string{
		"ok but what's the rate?",
		"yes, what's the rate?",
		"thanks, can you send the paperwork over today",
		"",
		"I need to think about whether this is ok for us",
	}
	for _, content := range notAcks {
		assert.False(t, classifier.IsPureAck(content), "%q should not classify as a pure ack", content)
	}
}

func TestIsStall(t *testing.T) {
	classifier := NewKeywordClassifier(20)

	stalls := []string{
		"Let me think about it",
		"I'll get back to you next week",
		"not right now, maybe later",
		"kinda busy right now, circle back",
	}
	for _, content := range stalls {
		assert.True(t, classifier.IsStall(content, ""), "%q should classify as a stall", content)
	}

	assert.True(t, classifier.IsStall("hmm", "lead wants to circle back later"),
		"oracle reason should also trigger stall detection")

	notStalls := []string{
		"yes, what's the rate?",
		"send me the application",
		"how much can we qualify for?",
		"",
		"   ",
	}
	for _, content := range notStalls {
		assert.False(t, classifier.IsStall(content, ""), "%q should not classify as a stall", content)
	}
}

func TestIsAffirmative(t *testing.T) {
	classifier := NewKeywordClassifier(20)

	assert.True(t, classifier.IsAffirmative("yes"))
	assert.True(t, classifier.IsAffirmative("Yeah, go ahead."))
	assert.True(t, classifier.IsAffirmative("sure"))
	assert.False(t, classifier.IsAffirmative("no"))
	assert.False(t, classifier.IsAffirmative("yes but only if the rate drops below what we discussed"))
}
