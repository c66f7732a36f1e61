package database

import (
	"context"

	"github.com/leadloop/leadloop/internal/apierror"
	"github.com/leadloop/leadloop/model"
)

func (d Datasource) GetStateTransitions(ctx context.Context, conversationID string, limit int) ([]model.StateTransition, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT transition_id, conversation_id, old_state, new_state, changed_by, created_at
		FROM leadloop.state_transitions
		WHERE conversation_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve state transitions", err)
	}
	defer rows.Close()

	transitions := []model.StateTransition{}
	for rows.Next() {
		transition := model.StateTransition{}
		err = rows.Scan(&transition.TransitionID, &transition.ConversationID, &transition.OldState,
			&transition.NewState, &transition.ChangedBy, &transition.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transition data", err)
		}
		transitions = append(transitions, transition)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over transitions", err)
	}
	return transitions, nil
}
