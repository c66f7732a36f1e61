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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/leadloop/leadloop/database/mocks"
	"github.com/leadloop/leadloop/model"
)

func newTestScheduler(t *testing.T, ds *mocks.MockDataSource) (*Scheduler, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	t.Cleanup(mr.Close)

	engine, _, _ := newTestEngine(ds)
	engine.redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewScheduler(engine), mr
}

func TestGuardedTick_RunsAndReleases(t *testing.T) {
	scheduler, mr := newTestScheduler(t, &mocks.MockDataSource{})

	ticks := 0
	scheduler.guardedTick(context.Background(), "reply", func(context.Context) { ticks++ })

	assert.Equal(t, 1, ticks)
	assert.False(t, mr.Exists("leadloop:loop:reply"), "the lease is released after the tick")
}

// A lease held by a previous (or remote) tick suppresses this one.
func TestGuardedTick_SuppressedWhileHeld(t *testing.T) {
	scheduler, mr := newTestScheduler(t, &mocks.MockDataSource{})

	err := mr.Set("leadloop:loop:reply", "tick_other")
	assert.NoError(t, err)
	mr.SetTTL("leadloop:loop:reply", 5*time.Minute)

	ticks := 0
	scheduler.guardedTick(context.Background(), "reply", func(context.Context) { ticks++ })

	assert.Zero(t, ticks)
	assert.True(t, mr.Exists("leadloop:loop:reply"), "a foreign lease is left untouched")
}

// A panicking tick is contained and still releases the lease.
func TestGuardedTick_RecoversPanic(t *testing.T) {
	scheduler, mr := newTestScheduler(t, &mocks.MockDataSource{})

	assert.NotPanics(t, func() {
		scheduler.guardedTick(context.Background(), "reply", func(context.Context) {
			panic("boom")
		})
	})
	assert.False(t, mr.Exists("leadloop:loop:reply"))
}

// Scheduler startup reaps conversation locks stranded by crashed workers.
func TestSchedulerStart_ReapsStaleLocks(t *testing.T) {
	ds := &mocks.MockDataSource{}
	scheduler, _ := newTestScheduler(t, ds)

	ds.On("ReleaseStaleLocks", mock.Anything, mock.Anything).Return(int64(2), nil)
	ds.On("GetReplyCandidates", mock.Anything, mock.Anything, mock.Anything).Return([]model.Conversation{}, nil).Maybe()
	ds.On("GetNudgeCandidates", mock.Anything, mock.Anything, mock.Anything).Return([]model.Conversation{}, nil).Maybe()
	ds.On("GetDripCandidates", mock.Anything, mock.Anything).Return([]model.Conversation{}, nil).Maybe()

	err := scheduler.Start(context.Background())
	assert.NoError(t, err)
	scheduler.Stop()

	ds.AssertCalled(t, "ReleaseStaleLocks", mock.Anything, mock.Anything)
}
