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
	"time"

	"github.com/leadloop/leadloop/config"
)

// nudgeLadder is the escalating idle threshold indexed by nudge_count. Past
// the ladder the cadence flattens to nudgeCeiling.
var nudgeLadder = []time.Duration{
	15 * time.Minute,
	30 * time.Minute,
	1 * time.Hour,
	4 * time.Hour,
	8 * time.Hour,
}

const nudgeCeiling = 24 * time.Hour

// NextNudgeDelay returns how long a previously engaged lead must stay idle
// before the nudge indexed by nudgeCount may be sent.
func NextNudgeDelay(nudgeCount int) time.Duration {
	if nudgeCount < 0 {
		nudgeCount = 0
	}
	if nudgeCount < len(nudgeLadder) {
		return nudgeLadder[nudgeCount]
	}
	return nudgeCeiling
}

// dripLadder is the fixed interval between scripted cold-outreach follow-ups,
// indexed by how many follow-ups have already been sent. Past the ladder the
// cadence flattens to dripCeiling.
var dripLadder = []time.Duration{
	15 * time.Minute,
	30 * time.Minute,
	1 * time.Hour,
}

const dripCeiling = 4 * time.Hour

// NextDripDelay returns the wait between the previous drip send and the
// follow-up indexed by followUpIndex.
func NextDripDelay(followUpIndex int) time.Duration {
	if followUpIndex < 0 {
		followUpIndex = 0
	}
	if followUpIndex < len(dripLadder) {
		return dripLadder[followUpIndex]
	}
	return dripCeiling
}

// WithinBusinessHours reports whether now falls inside the configured
// local-time outreach window. The drip loop aborts an entire tick outside it,
// before any claims are attempted.
func WithinBusinessHours(conf *config.BusinessHoursConfig, now time.Time) bool {
	location, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		location = time.UTC
	}
	local := now.In(location)

	switch local.Weekday() {
	case time.Saturday:
		if !conf.IncludeSat {
			return false
		}
	case time.Sunday:
		if !conf.IncludeSun {
			return false
		}
	}

	hour := local.Hour()
	return hour >= conf.StartHour && hour < conf.EndHour
}
