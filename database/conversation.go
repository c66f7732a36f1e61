package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/leadloop/leadloop/internal/apierror"
	"github.com/leadloop/leadloop/model"
	"github.com/lib/pq"
)

const conversationColumns = `
	conversation_id, lead_name, lead_phone, state, nudge_count, stall_count,
	last_activity, wait_until, pending_question, ai_enabled, last_ai_decision,
	last_ai_decision_at, last_processed_message_id, processing_lock,
	manual_instruction, created_at, meta_data
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	conversation := model.Conversation{}
	var waitUntil, decisionAt sql.NullTime
	var pendingQuestion, lastDecision, lastProcessed, manualInstruction, leadName, leadPhone sql.NullString
	var metaDataJSON []byte

	err := row.Scan(
		&conversation.ConversationID, &leadName, &leadPhone, &conversation.State,
		&conversation.NudgeCount, &conversation.StallCount, &conversation.LastActivity,
		&waitUntil, &pendingQuestion, &conversation.AIEnabled, &lastDecision,
		&decisionAt, &lastProcessed, &conversation.ProcessingLock,
		&manualInstruction, &conversation.CreatedAt, &metaDataJSON,
	)
	if err != nil {
		return nil, err
	}

	conversation.LeadName = leadName.String
	conversation.LeadPhone = leadPhone.String
	conversation.PendingQuestion = pendingQuestion.String
	conversation.LastAIDecision = lastDecision.String
	conversation.LastProcessedMessageID = lastProcessed.String
	conversation.ManualInstruction = manualInstruction.String
	if waitUntil.Valid {
		conversation.WaitUntil = &waitUntil.Time
	}
	if decisionAt.Valid {
		conversation.LastAIDecisionAt = &decisionAt.Time
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &conversation.MetaData); err != nil {
			return nil, err
		}
	}
	return &conversation, nil
}

func (d Datasource) CreateConversation(ctx context.Context, conversation *model.Conversation) (*model.Conversation, error) {
	metaDataJSON, err := json.Marshal(conversation.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	if conversation.ConversationID == "" {
		conversation.ConversationID = model.GenerateUUIDWithSuffix("conv")
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now()
		conversation.LastActivity = conversation.CreatedAt
	}
	if conversation.State == "" {
		conversation.State = model.StateNew
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO leadloop.conversations (conversation_id, lead_name, lead_phone, state, last_activity, ai_enabled, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, conversation.ConversationID, conversation.LeadName, conversation.LeadPhone, conversation.State,
		conversation.LastActivity, conversation.AIEnabled, conversation.CreatedAt, metaDataJSON)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Conversation already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create conversation", err)
	}

	return conversation, nil
}

func (d Datasource) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM leadloop.conversations
		WHERE conversation_id = $1
	`, id)

	conversation, err := scanConversation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Conversation not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve conversation", err)
	}
	return conversation, nil
}

func (d Datasource) GetAllConversations(ctx context.Context, limit, offset int) ([]model.Conversation, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM leadloop.conversations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve conversations", err)
	}
	defer rows.Close()

	return collectConversations(rows)
}

// UpdateConversation persists the mutable bookkeeping fields. State changes go
// through TransitionState and the processing lock through TryClaimConversation,
// never through this method.
func (d Datasource) UpdateConversation(ctx context.Context, conversation *model.Conversation) error {
	metaDataJSON, err := json.Marshal(conversation.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE leadloop.conversations
		SET nudge_count = $2, stall_count = $3, last_activity = $4, wait_until = $5,
			pending_question = $6, ai_enabled = $7, last_ai_decision = $8,
			last_ai_decision_at = $9, last_processed_message_id = $10,
			manual_instruction = $11, meta_data = $12
		WHERE conversation_id = $1
	`, conversation.ConversationID, conversation.NudgeCount, conversation.StallCount,
		conversation.LastActivity, conversation.WaitUntil, nullString(conversation.PendingQuestion),
		conversation.AIEnabled, nullString(conversation.LastAIDecision), conversation.LastAIDecisionAt,
		nullString(conversation.LastProcessedMessageID), nullString(conversation.ManualInstruction), metaDataJSON)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update conversation", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update conversation", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Conversation not found", nil)
	}
	return nil
}

// TryClaimConversation atomically flips processing_lock from false to true.
// Exactly one concurrent caller observes an affected row; everyone else gets
// false and must skip the conversation this tick.
func (d Datasource) TryClaimConversation(ctx context.Context, id string) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE leadloop.conversations
		SET processing_lock = TRUE, locked_at = NOW()
		WHERE conversation_id = $1 AND processing_lock = FALSE
	`, id)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim conversation", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim conversation", err)
	}
	return affected == 1, nil
}

// ReleaseConversation drops the processing lock no matter who holds it or how
// processing ended. Claim holders must call it from a defer.
func (d Datasource) ReleaseConversation(ctx context.Context, id string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE leadloop.conversations
		SET processing_lock = FALSE, locked_at = NULL
		WHERE conversation_id = $1
	`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release conversation", err)
	}
	return nil
}

func (d Datasource) ReleaseStaleLocks(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE leadloop.conversations
		SET processing_lock = FALSE, locked_at = NULL
		WHERE processing_lock = TRUE AND locked_at < NOW() - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release stale locks", err)
	}
	return result.RowsAffected()
}

// TransitionState applies a guarded state change. The current row is locked,
// compared, updated and audited in one transaction; equal states write
// nothing. Any real transition zeroes nudge_count.
func (d Datasource) TransitionState(ctx context.Context, id string, newState model.State, changedBy string) (*model.StateTransition, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var oldState model.State
	err = tx.QueryRowContext(ctx, `
		SELECT state FROM leadloop.conversations WHERE conversation_id = $1 FOR UPDATE
	`, id).Scan(&oldState)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Conversation not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read conversation state", err)
	}

	if oldState == newState {
		return nil, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE leadloop.conversations
		SET state = $2, nudge_count = 0, last_activity = NOW()
		WHERE conversation_id = $1
	`, id, newState)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update conversation state", err)
	}

	stateTransition := model.StateTransition{
		TransitionID:   model.GenerateUUIDWithSuffix("trs"),
		ConversationID: id,
		OldState:       oldState,
		NewState:       newState,
		ChangedBy:      changedBy,
		CreatedAt:      time.Now(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO leadloop.state_transitions (transition_id, conversation_id, old_state, new_state, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, stateTransition.TransitionID, stateTransition.ConversationID, stateTransition.OldState,
		stateTransition.NewState, stateTransition.ChangedBy, stateTransition.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record state transition", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit state transition", err)
	}
	return &stateTransition, nil
}

// GetReplyCandidates selects conversations whose latest message is an
// unprocessed inbound message that has settled past the quiet period but is
// still inside the recency window. Conversations carrying a manual
// instruction are always included; wait_until only suppresses the autonomous
// path. Ordering is oldest activity first.
func (d Datasource) GetReplyCandidates(ctx context.Context, recencyWindow, quietPeriod time.Duration) ([]model.Conversation, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+prefixedConversationColumns("c")+`
		FROM leadloop.conversations c
		JOIN LATERAL (
			SELECT m.id, m.message_id, m.direction, m.created_at
			FROM leadloop.messages m
			WHERE m.conversation_id = c.conversation_id
			ORDER BY m.id DESC
			LIMIT 1
		) latest ON TRUE
		WHERE c.ai_enabled = TRUE
		  AND c.processing_lock = FALSE
		  AND c.state NOT IN ('DEAD', 'ARCHIVED')
		  AND (
			COALESCE(c.manual_instruction, '') <> ''
			OR (
				latest.direction = 'inbound'
				AND latest.message_id IS DISTINCT FROM c.last_processed_message_id
				AND latest.id > COALESCE((
					SELECT mm.id FROM leadloop.messages mm
					WHERE mm.message_id = c.last_processed_message_id
				), 0)
				AND latest.created_at <= NOW() - make_interval(secs => $1)
				AND latest.created_at >= NOW() - make_interval(secs => $2)
				AND (c.wait_until IS NULL OR c.wait_until <= NOW())
			)
		  )
		ORDER BY c.last_activity ASC
		LIMIT 50
	`, quietPeriod.Seconds(), recencyWindow.Seconds())
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve reply candidates", err)
	}
	defer rows.Close()

	return collectConversations(rows)
}

// GetNudgeCandidates selects quiet-but-previously-engaged leads: ACTIVE,
// automation on, below the nudge cap, with at least one inbound message
// inside the lookback window. The escalating idle threshold indexed by
// nudge_count is applied by the caller.
func (d Datasource) GetNudgeCandidates(ctx context.Context, lookback time.Duration, nudgeCap int) ([]model.Conversation, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+prefixedConversationColumns("c")+`
		FROM leadloop.conversations c
		WHERE c.state = 'ACTIVE'
		  AND c.ai_enabled = TRUE
		  AND c.processing_lock = FALSE
		  AND c.nudge_count < $2
		  AND (c.wait_until IS NULL OR c.wait_until <= NOW())
		  AND EXISTS (
			SELECT 1 FROM leadloop.messages m
			WHERE m.conversation_id = c.conversation_id
			  AND m.direction = 'inbound'
			  AND m.created_at >= NOW() - make_interval(secs => $1)
		  )
		ORDER BY c.last_activity ASC
		LIMIT 50
	`, lookback.Seconds(), nudgeCap)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve nudge candidates", err)
	}
	defer rows.Close()

	return collectConversations(rows)
}

// GetDripCandidates selects never-engaged leads past the creation cool-down:
// NEW or DRIP with no inbound message at all.
func (d Datasource) GetDripCandidates(ctx context.Context, cooldown time.Duration) ([]model.Conversation, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+prefixedConversationColumns("c")+`
		FROM leadloop.conversations c
		WHERE c.state IN ('NEW', 'DRIP')
		  AND c.ai_enabled = TRUE
		  AND c.processing_lock = FALSE
		  AND (c.wait_until IS NULL OR c.wait_until <= NOW())
		  AND c.created_at <= NOW() - make_interval(secs => $1)
		  AND NOT EXISTS (
			SELECT 1 FROM leadloop.messages m
			WHERE m.conversation_id = c.conversation_id AND m.direction = 'inbound'
		  )
		ORDER BY c.created_at ASC
		LIMIT 50
	`, cooldown.Seconds())
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve drip candidates", err)
	}
	defer rows.Close()

	return collectConversations(rows)
}

func collectConversations(rows *sql.Rows) ([]model.Conversation, error) {
	conversations := []model.Conversation{}
	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan conversation data", err)
		}
		conversations = append(conversations, *conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over conversations", err)
	}
	return conversations, nil
}

func prefixedConversationColumns(alias string) string {
	return alias + `.conversation_id, ` + alias + `.lead_name, ` + alias + `.lead_phone, ` +
		alias + `.state, ` + alias + `.nudge_count, ` + alias + `.stall_count, ` +
		alias + `.last_activity, ` + alias + `.wait_until, ` + alias + `.pending_question, ` +
		alias + `.ai_enabled, ` + alias + `.last_ai_decision, ` + alias + `.last_ai_decision_at, ` +
		alias + `.last_processed_message_id, ` + alias + `.processing_lock, ` +
		alias + `.manual_instruction, ` + alias + `.created_at, ` + alias + `.meta_data`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
