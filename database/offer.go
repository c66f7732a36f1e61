package database

import (
	"context"
	"time"

	"github.com/leadloop/leadloop/internal/apierror"
	"github.com/leadloop/leadloop/model"
	"github.com/lib/pq"
)

func (d Datasource) CreateOffer(ctx context.Context, offer *model.Offer) (*model.Offer, error) {
	offer.OfferID = model.GenerateUUIDWithSuffix("off")
	offer.CreatedAt = time.Now()
	if offer.Status == "" {
		offer.Status = model.OfferStatusActive
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO leadloop.offers (offer_id, conversation_id, lender, amount, factor_rate, term_months, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, offer.OfferID, offer.ConversationID, offer.Lender, offer.Amount, offer.FactorRate,
		offer.TermMonths, offer.Status, offer.CreatedAt)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "foreign_key_violation" {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Conversation not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create offer", err)
	}
	return offer, nil
}

func (d Datasource) GetActiveOffers(ctx context.Context, conversationID string) ([]model.Offer, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT offer_id, conversation_id, lender, amount, factor_rate, term_months, status, created_at
		FROM leadloop.offers
		WHERE conversation_id = $1 AND status = 'active'
		ORDER BY created_at DESC
	`, conversationID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve offers", err)
	}
	defer rows.Close()

	offers := []model.Offer{}
	for rows.Next() {
		offer := model.Offer{}
		err = rows.Scan(&offer.OfferID, &offer.ConversationID, &offer.Lender, &offer.Amount,
			&offer.FactorRate, &offer.TermMonths, &offer.Status, &offer.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan offer data", err)
		}
		offers = append(offers, offer)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over offers", err)
	}
	return offers, nil
}
