package crawl

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/gradsync/internal/model"
)

// WatermarkReader reads the latest synced date and the identifiers stored
// on it. An empty store returns a zero Date.
type WatermarkReader interface {
	LatestWatermark(ctx context.Context) (model.Watermark, error)
}

// ResolveWatermark returns the boundary the crawl stops at. An empty store
// or a failed read both yield a cold start from epoch with no known ids.
func ResolveWatermark(ctx context.Context, r WatermarkReader, epoch model.Date) model.Watermark {
	log := zap.L().With(zap.String("component", "watermark"))
	cold := model.Watermark{Date: epoch, Known: map[int64]struct{}{}, ColdStart: true}

	wm, err := r.LatestWatermark(ctx)
	if err != nil {
		log.Error("watermark read failed, starting from epoch",
			zap.String("epoch", epoch.String()),
			zap.Error(err),
		)
		return cold
	}
	if wm.Date.IsZero() {
		log.Info("store is empty, starting from epoch", zap.String("epoch", epoch.String()))
		return cold
	}
	if wm.Known == nil {
		wm.Known = map[int64]struct{}{}
	}
	wm.ColdStart = false
	log.Info("resolved watermark",
		zap.String("date", wm.Date.String()),
		zap.Int("known_ids", len(wm.Known)),
	)
	return wm
}
