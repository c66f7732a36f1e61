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
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leadloop/leadloop/config"
	redlock "github.com/leadloop/leadloop/internal/lock"
	"github.com/leadloop/leadloop/model"
)

// Scheduler drives the three polling loops on independent tickers. Each loop
// self-serializes through a Redis lease: a tick that has not finished
// suppresses the next tick for the same loop, including across processes.
// The loops may overlap with each other; per-conversation exclusivity is the
// database claim's job.
type Scheduler struct {
	engine *LeadLoop
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewScheduler(engine *LeadLoop) *Scheduler {
	return &Scheduler{
		engine: engine,
		stopCh: make(chan struct{}),
	}
}

// Start launches the loops. Stale conversation locks left behind by crashed
// workers are reaped once before the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	released, err := s.engine.datasource.ReleaseStaleLocks(ctx,
		time.Duration(conf.Scheduler.StaleLockMinutes)*time.Minute)
	if err != nil {
		logrus.Errorf("scheduler: stale lock reaper failed: %v", err)
	} else if released > 0 {
		logrus.Warnf("scheduler: released %d stale conversation locks", released)
	}

	s.runLoop(ctx, "reply", time.Duration(conf.Scheduler.ReplyIntervalSec)*time.Second, s.engine.ReplyTick)
	s.runLoop(ctx, "nudge", time.Duration(conf.Scheduler.NudgeIntervalSec)*time.Second, s.engine.NudgeTick)
	s.runLoop(ctx, "drip", time.Duration(conf.Scheduler.DripIntervalSec)*time.Second, s.engine.DripTick)

	logrus.Info("scheduler started")
	return nil
}

// Stop signals all loops and waits for in-flight ticks to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	logrus.Info("scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context, name string, interval time.Duration, tick func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logrus.Infof("%s loop started with interval %v", name, interval)

		s.guardedTick(ctx, name, tick)

		for {
			select {
			case <-ticker.C:
				s.guardedTick(ctx, name, tick)
			case <-s.stopCh:
				logrus.Infof("%s loop stopping", name)
				return
			}
		}
	}()
}

// guardedTick runs one tick under the loop's Redis lease. Losing the lease
// means a previous tick (here or in another process) is still running, which
// is the intended suppression, not an error.
func (s *Scheduler) guardedTick(ctx context.Context, name string, tick func(context.Context)) {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Errorf("%s loop: config fetch failed: %v", name, err)
		return
	}
	ttl := time.Duration(conf.Scheduler.LoopLockTTLSec) * time.Second

	locker := redlock.NewLocker(s.engine.redis,
		fmt.Sprintf("leadloop:loop:%s", name),
		model.GenerateUUIDWithSuffix("tick"))
	if err := locker.Lock(ctx, ttl); err != nil {
		logrus.Debugf("%s loop: previous tick still running, skipping", name)
		return
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.Debugf("%s loop: lease release: %v", name, err)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("%s loop: tick panicked: %v", name, r)
		}
	}()

	tick(ctx)
}
