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
	"github.com/leadloop/leadloop/database"
	"github.com/leadloop/leadloop/internal/cache"
)

// openingLength bounds how much of a message counts as its "opening text"
// for duplicate comparison. Long messages routinely share closings.
const openingLength = 60

// duplicateGuard rejects a candidate outbound message whose opening text
// closely matches something already sent to the same lead recently. Dispatch
// is at-least-once, so this guard is what keeps retried ticks from
// double-texting a lead.
type duplicateGuard struct {
	cache      cache.Cache
	datasource database.IDataSource
}

func newDuplicateGuard(c cache.Cache, ds database.IDataSource) *duplicateGuard {
	return &duplicateGuard{cache: c, datasource: ds}
}

func recentOutboundKey(conversationID string) string {
	return fmt.Sprintf("leadloop:recent-outbound:%s", conversationID)
}

// isDuplicate reports whether candidate matches a recently sent outbound
// message. Errors degrade open: a broken cache or store must not block a
// legitimate send, only log.
func (g *duplicateGuard) isDuplicate(ctx context.Context, conversationID, candidate string) bool {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Errorf("duplicate guard: config fetch failed: %v", err)
		return false
	}
	window := time.Duration(conf.Scheduler.DedupWindowMinutes) * time.Minute
	drift := float64(conf.Scheduler.DedupDriftPercent)

	recent := g.recentOutbound(ctx, conversationID, window)
	candidateOpening := openingText(candidate)
	for _, sent := range recent {
		if partialMatch(candidateOpening, openingText(sent), drift) {
			return true
		}
	}
	return false
}

// remember records a sent message so subsequent candidates within the window
// are checked against it without a store round trip.
func (g *duplicateGuard) remember(ctx context.Context, conversationID, content string) {
	conf, err := config.Fetch()
	if err != nil {
		return
	}
	window := time.Duration(conf.Scheduler.DedupWindowMinutes) * time.Minute

	recent := g.recentOutbound(ctx, conversationID, window)
	recent = append(recent, content)
	if err := g.cache.Set(ctx, recentOutboundKey(conversationID), recent, window); err != nil {
		logrus.Errorf("duplicate guard: cache set failed for %s: %v", conversationID, err)
	}
}

func (g *duplicateGuard) recentOutbound(ctx context.Context, conversationID string, window time.Duration) []string {
	var recent []string
	if err := g.cache.Get(ctx, recentOutboundKey(conversationID), &recent); err != nil {
		logrus.Errorf("duplicate guard: cache get failed for %s: %v", conversationID, err)
	}
	if recent != nil {
		return recent
	}

	messages, err := g.datasource.GetRecentOutboundMessages(ctx, conversationID, window)
	if err != nil {
		logrus.Errorf("duplicate guard: recent outbound query failed for %s: %v", conversationID, err)
		return nil
	}
	recent = []string{}
	for _, m := range messages {
		recent = append(recent, m.Content)
	}
	if err := g.cache.Set(ctx, recentOutboundKey(conversationID), recent, window); err != nil {
		logrus.Errorf("duplicate guard: cache set failed for %s: %v", conversationID, err)
	}
	return recent
}

func openingText(content string) string {
	runes := []rune(content)
	if len(runes) > openingLength {
		return string(runes[:openingLength])
	}
	return content
}
