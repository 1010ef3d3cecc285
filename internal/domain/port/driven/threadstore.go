package driven

import (
	"context"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

// ThreadStore records which confirmation thread was created for each month.
type ThreadStore interface {
	GetRotation(ctx context.Context, period string) (*model.ThreadRotation, error)
	SaveRotation(ctx context.Context, rotation model.ThreadRotation) error
}
