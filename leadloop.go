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
	"embed"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadloop/leadloop/config"
	"github.com/leadloop/leadloop/database"
	"github.com/leadloop/leadloop/internal/cache"
	redis_db "github.com/leadloop/leadloop/internal/redis-db"
)

// LeadLoop represents the main struct for the LeadLoop scheduling engine.
type LeadLoop struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	oracle     DecisionOracle
	dispatcher MessageDispatcher
	classifier Classifier
	events     *EventPublisher
	dedup      *duplicateGuard
	skips      *skipLog
	sleep      func(time.Duration)
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewLeadLoop initializes a new LeadLoop instance wired to the provided
// datasource. It fetches the configuration and builds the Redis client,
// enrichment queue, oracle and dispatcher clients from it.
func NewLeadLoop(db database.IDataSource) (*LeadLoop, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient(configuration.Redis.Dns)
	if err != nil {
		return nil, err
	}

	events := NewEventPublisher(redisClient.Client())
	newLeadLoop := &LeadLoop{
		queue:      NewQueue(configuration),
		redis:      redisClient.Client(),
		datasource: db,
		oracle:     NewHTTPOracle(&configuration.Oracle),
		dispatcher: NewHTTPDispatcher(&configuration.Dispatcher, db, events),
		classifier: NewKeywordClassifier(configuration.Scheduler.DedupDriftPercent),
		events:     events,
		dedup:      newDuplicateGuard(cache.NewCache(redisClient.Client()), db),
		skips:      newSkipLog(),
		sleep:      time.Sleep,
	}
	return newLeadLoop, nil
}

// skipLog throttles repeated per-conversation skip logs so a lead that is
// skipped every tick produces one log line per interval, not hundreds.
type skipLog struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newSkipLog() *skipLog {
	return &skipLog{seen: make(map[string]time.Time)}
}

// shouldLog reports whether a skip for key should be logged now, and records
// the emission when it should.
func (s *skipLog) shouldLog(key string, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.seen[key]
	if ok && time.Since(last) < interval {
		return false
	}
	s.seen[key] = time.Now()
	return true
}
