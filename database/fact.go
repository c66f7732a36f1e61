package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/leadloop/leadloop/internal/apierror"
	"github.com/leadloop/leadloop/model"
)

// UpsertFact writes a fact with latest-wins semantics on
// (conversation_id, key).
func (d Datasource) UpsertFact(ctx context.Context, fact *model.Fact) error {
	if fact.CollectedAt.IsZero() {
		fact.CollectedAt = time.Now()
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO leadloop.facts (conversation_id, key, value, collected_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, key)
		DO UPDATE SET value = EXCLUDED.value, collected_at = EXCLUDED.collected_at
	`, fact.ConversationID, fact.Key, fact.Value, fact.CollectedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert fact", err)
	}
	return nil
}

func (d Datasource) GetFacts(ctx context.Context, conversationID string) ([]model.Fact, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT conversation_id, key, value, collected_at
		FROM leadloop.facts
		WHERE conversation_id = $1
		ORDER BY key ASC
	`, conversationID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve facts", err)
	}
	defer rows.Close()

	facts := []model.Fact{}
	for rows.Next() {
		fact := model.Fact{}
		err = rows.Scan(&fact.ConversationID, &fact.Key, &fact.Value, &fact.CollectedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan fact data", err)
		}
		facts = append(facts, fact)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over facts", err)
	}
	return facts, nil
}

// GetFact returns the fact for key or nil when none has been collected.
func (d Datasource) GetFact(ctx context.Context, conversationID, key string) (*model.Fact, error) {
	fact := model.Fact{}
	row := d.Conn.QueryRowContext(ctx, `
		SELECT conversation_id, key, value, collected_at
		FROM leadloop.facts
		WHERE conversation_id = $1 AND key = $2
	`, conversationID, key)

	err := row.Scan(&fact.ConversationID, &fact.Key, &fact.Value, &fact.CollectedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve fact", err)
	}
	return &fact, nil
}
