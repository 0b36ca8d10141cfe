package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gradsync/internal/batch"
	"github.com/sells-group/gradsync/internal/model"
)

// Merger writes records with insert-if-absent semantics.
type Merger interface {
	MergeApplicants(ctx context.Context, recs []model.ApplicantRecord) (int64, error)
}

// LoadResult summarizes a bulk load.
type LoadResult struct {
	Read     int   `json:"read"`
	Skipped  int   `json:"skipped"`
	Inserted int64 `json:"inserted"`
}

// Load merges a JSON or JSONL file of records into the store. Records
// whose pid already exists are left alone, so loading the same file twice
// inserts nothing the second time.
func Load(ctx context.Context, m Merger, path string) (*LoadResult, error) {
	res, err := batch.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	inserted, err := m.MergeApplicants(ctx, res.Records)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load %s", path)
	}
	out := &LoadResult{Read: len(res.Records), Skipped: res.Skipped, Inserted: inserted}
	zap.L().Info("load complete",
		zap.String("path", path),
		zap.Int("read", out.Read),
		zap.Int("skipped", out.Skipped),
		zap.Int64("inserted", out.Inserted),
	)
	return out, nil
}
