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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/leadloop/leadloop/database/mocks"
	"github.com/leadloop/leadloop/model"
)

func TestDuplicateGuard_ExactRepeat(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, _, _ := newTestEngine(ds)

	ds.On("GetRecentOutboundMessages", mock.Anything, "conv_1", mock.Anything).Return([]model.Message{
		{Content: "Quick follow up — did you get a chance to look at the numbers?"},
	}, nil)

	duplicate := engine.dedup.isDuplicate(context.Background(), "conv_1",
		"Quick follow up — did you get a chance to look at the numbers?")
	assert.True(t, duplicate)
}

func TestDuplicateGuard_DriftedRepeat(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, _, _ := newTestEngine(ds)

	ds.On("GetRecentOutboundMessages", mock.Anything, "conv_1", mock.Anything).Return([]model.Message{
		{Content: "Quick follow up — did you get a chance to look at the numbers?"},
	}, nil)

	// Same opening with minor rephrasing drifts within tolerance.
	duplicate := engine.dedup.isDuplicate(context.Background(), "conv_1",
		"Quick follow-up — did you get a chance to look at those numbers?")
	assert.True(t, duplicate)
}

func TestDuplicateGuard_DifferentMessagePasses(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, _, _ := newTestEngine(ds)

	ds.On("GetRecentOutboundMessages", mock.Anything, "conv_1", mock.Anything).Return([]model.Message{
		{Content: "Quick follow up — did you get a chance to look at the numbers?"},
	}, nil)

	duplicate := engine.dedup.isDuplicate(context.Background(), "conv_1",
		"Great news: your file was approved this morning. Want to hop on a call?")
	assert.False(t, duplicate)
}

func TestDuplicateGuard_RememberAvoidsRequery(t *testing.T) {
	ds := &mocks.MockDataSource{}
	engine, _, _ := newTestEngine(ds)

	ds.On("GetRecentOutboundMessages", mock.Anything, "conv_1", mock.Anything).Return([]model.Message{}, nil).Once()

	assert.False(t, engine.dedup.isDuplicate(context.Background(), "conv_1", "Here are your numbers."))
	engine.dedup.remember(context.Background(), "conv_1", "Here are your numbers.")

	// Second check hits the cache, not the store.
	assert.True(t, engine.dedup.isDuplicate(context.Background(), "conv_1", "Here are your numbers."))
	ds.AssertNumberOfCalls(t, "GetRecentOutboundMessages", 1)
}
