package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
)

// CampaignError converts a store error into the domain error callers see.
// Context errors pass through; missing rows become CAMPAIGN_NOT_FOUND;
// anything else becomes STORE_UNAVAILABLE with the engine error kept only
// as the unwrapped cause.
func CampaignError(campaignID, operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrNotFound):
		return campaign.NotFound(campaignID)
	default:
		return campaign.StoreUnavailable(campaignID, operation, err)
	}
}
