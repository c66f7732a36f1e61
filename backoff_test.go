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
	"time"

	"github.com/leadloop/leadloop/config"
	"github.com/stretchr/testify/assert"
)

func TestNextNudgeDelay(t *testing.T) {
	tests := []struct {
		nudgeCount int
		want       time.Duration
	}{
		{0, 15 * time.Minute},
		{1, 30 * time.Minute},
		{2, 1 * time.Hour},
		{3, 4 * time.Hour},
		{4, 8 * time.Hour},
		{5, 24 * time.Hour},
		{9, 24 * time.Hour},
		{-1, 15 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextNudgeDelay(tt.nudgeCount), "nudge_count %d", tt.nudgeCount)
	}
}

func TestNextDripDelay(t *testing.T) {
	tests := []struct {
		followUpIndex int
		want          time.Duration
	}{
		{0, 15 * time.Minute},
		{1, 30 * time.Minute},
		{2, 1 * time.Hour},
		{3, 4 * time.Hour},
		{7, 4 * time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextDripDelay(tt.followUpIndex), "follow-up %d", tt.followUpIndex)
	}
}

func TestWithinBusinessHours(t *testing.T) {
	conf := &config.BusinessHoursConfig{
		Timezone:  "UTC",
		StartHour: 9,
		EndHour:   18,
	}

	// Monday 2026-08-24.
	monday := func(hour int) time.Time {
		return time.Date(2026, 8, 24, hour, 30, 0, 0, time.UTC)
	}

	assert.False(t, WithinBusinessHours(conf, monday(8)))
	assert.True(t, WithinBusinessHours(conf, monday(9)))
	assert.True(t, WithinBusinessHours(conf, monday(17)))
	assert.False(t, WithinBusinessHours(conf, monday(18)))

	saturday := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	assert.False(t, WithinBusinessHours(conf, saturday))
	assert.False(t, WithinBusinessHours(conf, sunday))

	conf.IncludeSat = true
	assert.True(t, WithinBusinessHours(conf, saturday))
	assert.False(t, WithinBusinessHours(conf, sunday))
	conf.IncludeSun = true
	assert.True(t, WithinBusinessHours(conf, sunday))
}

func TestWithinBusinessHours_Timezone(t *testing.T) {
	conf := &config.BusinessHoursConfig{
		Timezone:  "America/New_York",
		StartHour: 9,
		EndHour:   18,
	}

	// 14:00 UTC on a Monday is 10:00 in New York (EDT).
	utcAfternoon := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
	assert.True(t, WithinBusinessHours(conf, utcAfternoon))

	// 02:00 UTC is 22:00 the previous evening in New York.
	utcNight := time.Date(2026, 8, 25, 2, 0, 0, 0, time.UTC)
	assert.False(t, WithinBusinessHours(conf, utcNight))
}
