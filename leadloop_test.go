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
	"sync"
	"time"

	"github.com/leadloop/leadloop/config"
	"github.com/leadloop/leadloop/database/mocks"
)

// memoryCache is an in-process cache.Cache for tests.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]string)}
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := value.([]string); ok {
		c.data[key] = v
	}
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		if target, ok := data.(*[]string); ok {
			*target = v
		}
	}
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// newTestEngine builds a LeadLoop wired to mocks, with sleeps disabled and a
// mock configuration loaded.
func newTestEngine(ds *mocks.MockDataSource) (*LeadLoop, *MockOracle, *MockDispatcher) {
	config.MockConfig(&config.Configuration{
		ProjectName: "LeadLoop",
		Scheduler: config.SchedulerConfig{
			MinReplyDelaySec: 1,
			MaxReplyDelaySec: 2,
		},
	})

	oracle := &MockOracle{}
	dispatcher := &MockDispatcher{}
	engine := &LeadLoop{
		datasource: ds,
		oracle:     oracle,
		dispatcher: dispatcher,
		classifier: NewKeywordClassifier(20),
		dedup:      newDuplicateGuard(newMemoryCache(), ds),
		skips:      newSkipLog(),
		sleep:      func(time.Duration) {},
	}
	return engine, oracle, dispatcher
}

func timePtr(t time.Time) *time.Time {
	return &t
}
