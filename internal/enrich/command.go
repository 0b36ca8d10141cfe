package enrich

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gradsync/internal/batch"
	"github.com/sells-group/gradsync/internal/model"
)

// Command runs an external normalizer. The records are written to a temp
// JSONL file passed as "--file <path>"; the process prints enriched JSONL
// on stdout.
type Command struct {
	bin     string
	args    []string
	timeout time.Duration
}

// NewCommand creates a Command enricher. A zero timeout means no limit
// beyond the caller's context.
func NewCommand(bin string, args []string, timeout time.Duration) (*Command, error) {
	if bin == "" {
		return nil, eris.New("enrich: command provider needs enrich.command")
	}
	return &Command{bin: bin, args: args, timeout: timeout}, nil
}

func (c *Command) Enrich(ctx context.Context, recs []model.ApplicantRecord) ([]model.ApplicantRecord, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	log := zap.L().With(zap.String("component", "enrich.command"))

	dir, err := os.MkdirTemp("", "gradsync-enrich-*")
	if err != nil {
		return nil, eris.Wrap(err, "enrich: temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	in := filepath.Join(dir, "raw.jsonl")
	if err := batch.WriteFile(in, recs); err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(append([]string{}, c.args...), "--file", in)
	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "enrich: %s failed: %s", c.bin, stderr.String())
	}

	res, err := batch.Read(ctx, &stdout)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: read command output")
	}
	log.Info("command enrichment complete",
		zap.Int("in", len(recs)),
		zap.Int("out", len(res.Records)),
		zap.Int("skipped_lines", res.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res.Records, nil
}
