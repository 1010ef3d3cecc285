package driven

import (
	"context"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

// WatermarkStore defines the driven port for the discovery resume point.
// Save never moves the watermark backward: it reports false and leaves the
// stored state untouched when state.LastCommentID is not newer.
type WatermarkStore interface {
	Load(ctx context.Context) (model.WatermarkState, error)
	Save(ctx context.Context, state model.WatermarkState) (bool, error)
}
