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

	"github.com/stretchr/testify/mock"

	"github.com/leadloop/leadloop/model"
)

// MockOracle is a mock implementation of the DecisionOracle interface.
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Decide(ctx context.Context, octx *OracleContext) (model.Decision, error) {
	args := m.Called(ctx, octx)
	return args.Get(0).(model.Decision), args.Error(1)
}

// MockDispatcher is a mock implementation of the MessageDispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Send(ctx context.Context, conversation *model.Conversation, content, sentBy string) (*model.Message, error) {
	args := m.Called(ctx, conversation, content, sentBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}
