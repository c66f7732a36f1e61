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
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/leadloop/leadloop/config"
	redis_db "github.com/leadloop/leadloop/internal/redis-db"
	"github.com/leadloop/leadloop/internal/request"
	"github.com/leadloop/leadloop/model"
)

// Queue represents the async task queue used for enrichment triggers.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// EnrichmentPayload is the task body for a document-sync/analysis job.
type EnrichmentPayload struct {
	ConversationID string    `json:"conversation_id"`
	Action         string    `json:"action"`
	RequestedAt    time.Time `json:"requested_at"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueEnrichment enqueues a fire-and-forget document-sync task. The
// scheduler records that the job was triggered but never awaits completion.
func (q *Queue) queueEnrichment(conversationID, action string) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(EnrichmentPayload{
		ConversationID: conversationID,
		Action:         action,
		RequestedAt:    time.Now(),
	})
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(model.GenerateUUIDWithSuffix("enr")),
		asynq.Queue(cfg.Enrichment.Queue),
	}
	task := asynq.NewTask(cfg.Enrichment.Queue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	logrus.Infof("enqueued enrichment %s for conversation %s", action, conversationID)
	return nil
}

// triggerEnrichment is the scheduler-side entry point: failures are logged,
// never propagated, because enrichment is advisory to the funnel.
func (l *LeadLoop) triggerEnrichment(conversationID, action string) {
	if l.queue == nil {
		return
	}
	if err := l.queue.queueEnrichment(conversationID, action); err != nil {
		logrus.Errorf("conversation %s: enrichment trigger failed: %v", conversationID, err)
	}
}

// ProcessEnrichment is the asynq handler run by the workers command. It
// forwards the job to the external enrichment service when one is configured.
func ProcessEnrichment(ctx context.Context, t *asynq.Task) error {
	var payload EnrichmentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	if cfg.Enrichment.Url == "" {
		logrus.Warnf("enrichment %s for conversation %s dropped: no enrichment url configured",
			payload.Action, payload.ConversationID)
		return nil
	}

	body, err := request.ToJsonReq(&payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Enrichment.Url, body)
	if err != nil {
		return err
	}

	var response map[string]interface{}
	if _, err := request.Call(req, &response); err != nil {
		return err
	}
	logrus.Infof("enrichment %s for conversation %s forwarded", payload.Action, payload.ConversationID)
	return nil
}
