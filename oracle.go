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
	"io"
	"net/http"
	"time"

	"github.com/leadloop/leadloop/config"
	"github.com/leadloop/leadloop/internal/request"
	"github.com/leadloop/leadloop/model"
)

// OracleContext is everything the decision oracle sees for one call:
// chronological history, persisted facts, active offers, temporal context,
// current state and an optional manual operator instruction.
type OracleContext struct {
	Conversation      *model.Conversation `json:"conversation"`
	Messages          []model.Message     `json:"messages"`
	Facts             []model.Fact        `json:"facts,omitempty"`
	Offers            []model.Offer       `json:"offers,omitempty"`
	ManualInstruction string              `json:"manual_instruction,omitempty"`
	Guidance          string              `json:"guidance,omitempty"`
	LocalTime         time.Time           `json:"local_time"`
	BusinessHours     bool                `json:"business_hours"`
}

// DecisionOracle is the opaque external decision capability. Implementations
// must be swappable without touching scheduling logic.
type DecisionOracle interface {
	Decide(ctx context.Context, octx *OracleContext) (model.Decision, error)
}

// HTTPOracle calls a remote decision service over HTTP. Transport failures
// surface as errors (the conversation stays eligible next tick); unusable
// payloads degrade to the safe fallback decision instead.
type HTTPOracle struct {
	client        *http.Client
	url           string
	authorization string
}

func NewHTTPOracle(conf *config.OracleConfig) *HTTPOracle {
	return &HTTPOracle{
		client: &http.Client{
			Timeout: time.Duration(conf.TimeoutSec) * time.Second,
		},
		url:           conf.Url,
		authorization: conf.Authorization,
	}
}

func (o *HTTPOracle) Decide(ctx context.Context, octx *OracleContext) (model.Decision, error) {
	payload, err := request.ToJsonReq(octx)
	if err != nil {
		return model.Decision{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, payload)
	if err != nil {
		return model.Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.authorization != "" {
		req.Header.Set("Authorization", o.authorization)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return model.Decision{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Decision{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return model.Decision{}, fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, body)
	}

	return model.ParseDecision(body), nil
}
