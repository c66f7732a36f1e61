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

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Classifier labels inbound lead text. It sits behind an interface so a
// model-based detector can replace the keyword matcher without touching
// scheduling logic.
type Classifier interface {
	// IsPureAck reports whether content is a bare acknowledgement carrying
	// no new information ("ok", "thanks", a thumbs-up).
	IsPureAck(content string) bool
	// IsStall reports whether content (or the oracle's stated reason)
	// matches known non-committal deferral phrasing.
	IsStall(content, reason string) bool
	// IsAffirmative reports whether content reads as a plain yes.
	IsAffirmative(content string) bool
}

var ackPhrases = []string{
	"ok", "okay", "k", "kk", "thanks", "thank you", "thx", "ty",
	"got it", "sounds good", "cool", "sure", "alright", "great",
	"perfect", "no problem", "np", "will do", "👍", "🙏", "👌",
}

var stallPhrases = []string{
	"let me think", "thinking about it", "i'll get back to you",
	"get back to you", "not right now", "maybe later", "call me later",
	"busy right now", "next week", "next month", "check back",
	"we'll see", "let me talk to", "need some time", "still deciding",
	"circle back", "follow up later", "touch base later", "not a good time",
}

var affirmativePhrases = []string{
	"yes", "yeah", "yep", "yup", "sure", "go ahead", "please do",
	"ok", "okay", "sounds good", "that's fine", "fine by me",
}

// KeywordClassifier matches against fixed phrase lists with a levenshtein
// drift tolerance, so minor typos ("thansk") still classify.
type KeywordClassifier struct {
	allowableDrift float64 // percent of the longer string's length
}

func NewKeywordClassifier(driftPercent int) *KeywordClassifier {
	if driftPercent <= 0 {
		driftPercent = 20
	}
	return &KeywordClassifier{allowableDrift: float64(driftPercent)}
}

func (k *KeywordClassifier) IsPureAck(content string) bool {
	trimmed := strings.TrimSpace(strings.Trim(strings.TrimSpace(content), ".!"))
	if trimmed == "" {
		return false
	}
	// An acknowledgement is short. Anything longer carries information the
	// oracle should see.
	if len(strings.Fields(trimmed)) > 3 {
		return false
	}
	for _, phrase := range ackPhrases {
		if fuzzyEquals(trimmed, phrase, k.allowableDrift) {
			return true
		}
	}
	return false
}

func (k *KeywordClassifier) IsStall(content, reason string) bool {
	for _, phrase := range stallPhrases {
		if partialMatch(content, phrase, k.allowableDrift) {
			return true
		}
		if reason != "" && partialMatch(reason, phrase, k.allowableDrift) {
			return true
		}
	}
	return false
}

func (k *KeywordClassifier) IsAffirmative(content string) bool {
	trimmed := strings.TrimSpace(strings.Trim(strings.TrimSpace(content), ".!"))
	if trimmed == "" || len(strings.Fields(trimmed)) > 4 {
		return false
	}
	for _, phrase := range affirmativePhrases {
		if fuzzyEquals(trimmed, phrase, k.allowableDrift) {
			return true
		}
		// Multi-word affirmations ("go ahead") also count embedded in a
		// short reply ("yeah, go ahead").
		if strings.Contains(phrase, " ") && partialMatch(trimmed, phrase, k.allowableDrift) {
			return true
		}
	}
	return false
}

// partialMatch compares two strings and checks if they match within a certain
// allowable drift, using Levenshtein distance. Containment in either
// direction is always a match.
func partialMatch(str1, str2 string, allowableDrift float64) bool {
	str1 = strings.ToLower(strings.TrimSpace(str1))
	str2 = strings.ToLower(strings.TrimSpace(str2))

	// An empty string is a substring of everything; it matches nothing here.
	if str1 == "" || str2 == "" {
		return false
	}

	if strings.Contains(str1, str2) || strings.Contains(str2, str1) {
		return true
	}

	distance := levenshtein.DistanceForStrings([]rune(str1), []rune(str2), levenshtein.DefaultOptions)

	maxLength := float64(max(len(str1), len(str2)))
	maxAllowedDistance := int(maxLength * (allowableDrift / 100))

	return distance <= maxAllowedDistance
}

// fuzzyEquals is partialMatch without the containment shortcut: "ok" must not
// match inside "okay that works but what's the rate".
func fuzzyEquals(str1, str2 string, allowableDrift float64) bool {
	str1 = strings.ToLower(str1)
	str2 = strings.ToLower(str2)

	if str1 == str2 {
		return true
	}

	distance := levenshtein.DistanceForStrings([]rune(str1), []rune(str2), levenshtein.DefaultOptions)

	maxLength := float64(max(len(str1), len(str2)))
	maxAllowedDistance := int(maxLength * (allowableDrift / 100))

	return distance <= maxAllowedDistance
}
