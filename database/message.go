package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/leadloop/leadloop/internal/apierror"
	"github.com/leadloop/leadloop/model"
	"github.com/lib/pq"
)

func (d Datasource) RecordMessage(ctx context.Context, message *model.Message) (*model.Message, error) {
	if message.MessageID == "" {
		message.MessageID = model.GenerateUUIDWithSuffix("msg")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	if message.Status == "" {
		message.Status = model.MessageStatusPending
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO leadloop.messages (message_id, conversation_id, direction, content, sent_by, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, message.MessageID, message.ConversationID, message.Direction, message.Content,
		message.SentBy, message.Status, message.CreatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return nil, apierror.NewAPIError(apierror.ErrConflict, "Message with this ID already exists", err)
			case "foreign_key_violation":
				return nil, apierror.NewAPIError(apierror.ErrNotFound, "Conversation not found", err)
			}
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record message", err)
	}

	return message, nil
}

func (d Datasource) UpdateMessageStatus(ctx context.Context, messageID string, status string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE leadloop.messages SET status = $2 WHERE message_id = $1
	`, messageID, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update message status", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update message status", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Message not found", nil)
	}
	return nil
}

func (d Datasource) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT message_id, conversation_id, direction, content, sent_by, status, created_at
		FROM leadloop.messages
		WHERE conversation_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve messages", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		message := model.Message{}
		err = rows.Scan(&message.MessageID, &message.ConversationID, &message.Direction,
			&message.Content, &message.SentBy, &message.Status, &message.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan message data", err)
		}
		messages = append(messages, message)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over messages", err)
	}
	return messages, nil
}

func (d Datasource) getLatestMessageWhere(ctx context.Context, conversationID, condition string) (*model.Message, error) {
	message := model.Message{}
	row := d.Conn.QueryRowContext(ctx, `
		SELECT message_id, conversation_id, direction, content, sent_by, status, created_at
		FROM leadloop.messages
		WHERE conversation_id = $1 `+condition+`
		ORDER BY id DESC
		LIMIT 1
	`, conversationID)

	err := row.Scan(&message.MessageID, &message.ConversationID, &message.Direction,
		&message.Content, &message.SentBy, &message.Status, &message.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve message", err)
	}
	return &message, nil
}

// GetLatestMessage returns the newest message in the conversation or nil when
// the log is empty.
func (d Datasource) GetLatestMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	return d.getLatestMessageWhere(ctx, conversationID, "")
}

func (d Datasource) GetLatestInboundMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	return d.getLatestMessageWhere(ctx, conversationID, "AND direction = 'inbound'")
}

func (d Datasource) GetLastOutboundMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	return d.getLatestMessageWhere(ctx, conversationID, "AND direction = 'outbound'")
}

// GetRecentOutboundMessages returns outbound messages sent inside the window,
// newest first. The duplicate-send guard compares candidates against these.
func (d Datasource) GetRecentOutboundMessages(ctx context.Context, conversationID string, window time.Duration) ([]model.Message, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT message_id, conversation_id, direction, content, sent_by, status, created_at
		FROM leadloop.messages
		WHERE conversation_id = $1
		  AND direction = 'outbound'
		  AND created_at >= NOW() - make_interval(secs => $2)
		ORDER BY id DESC
	`, conversationID, window.Seconds())
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve recent outbound messages", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		message := model.Message{}
		err = rows.Scan(&message.MessageID, &message.ConversationID, &message.Direction,
			&message.Content, &message.SentBy, &message.Status, &message.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan message data", err)
		}
		messages = append(messages, message)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over messages", err)
	}
	return messages, nil
}

func (d Datasource) CountInboundSince(ctx context.Context, conversationID string, since time.Time) (int, error) {
	var count int
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM leadloop.messages
		WHERE conversation_id = $1 AND direction = 'inbound' AND created_at >= $2
	`, conversationID, since).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count inbound messages", err)
	}
	return count, nil
}

// CountDripMessages reports how many scripted drip messages have gone out.
// The count doubles as the index into the drip template sequence.
func (d Datasource) CountDripMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM leadloop.messages
		WHERE conversation_id = $1 AND direction = 'outbound' AND sent_by = 'drip'
	`, conversationID).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count drip messages", err)
	}
	return count, nil
}

// HasNewerInbound reports whether any inbound message arrived after the one
// identified by messageID.
func (d Datasource) HasNewerInbound(ctx context.Context, conversationID string, messageID string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM leadloop.messages
			WHERE conversation_id = $1
			  AND direction = 'inbound'
			  AND id > COALESCE((SELECT id FROM leadloop.messages WHERE message_id = $2), 0)
		)
	`, conversationID, messageID).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check for newer inbound message", err)
	}
	return exists, nil
}
