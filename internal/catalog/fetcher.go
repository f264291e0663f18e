package catalog

import (
	"context"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
)

// Fetcher is the per-gateway contract spec.md §4.3 requires: list_models
// producing normalized ModelRecords, or an error classified by
// internal/providererr.
type Fetcher interface {
	// Gateway is the source gateway slug this fetcher serves.
	Gateway() string
	// Fetch performs one authenticated listing call and normalizes every
	// entry. Implementations must apply Normalize before returning.
	Fetch(ctx context.Context) ([]domain.ModelRecord, error)
}
