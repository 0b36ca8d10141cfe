// Package batch reads and writes the line-delimited JSON files that carry
// newly crawled records between the crawl, enrichment, and merge steps.
package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gradsync/internal/model"
)

// maxLineBytes bounds a single JSONL line. Comments can be long.
const maxLineBytes = 4 << 20

// Result is the outcome of reading a batch.
type Result struct {
	Records []model.ApplicantRecord
	Skipped int // malformed or unidentified lines
}

// Write encodes recs to w, one JSON object per line.
func Write(w io.Writer, recs []model.ApplicantRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i := range recs {
		if err := enc.Encode(&recs[i]); err != nil {
			return eris.Wrapf(err, "batch: encode record %d", recs[i].ExternalID)
		}
	}
	return eris.Wrap(bw.Flush(), "batch: flush")
}

// WriteFile writes recs to path through a temp file in the same directory,
// so readers never see a half-written batch.
func WriteFile(path string, recs []model.ApplicantRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "batch: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "batch: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := Write(tmp, recs); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "batch: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "batch: rename to %s", path)
	}
	zap.L().Debug("batch: wrote file", zap.String("path", path), zap.Int("records", len(recs)))
	return nil
}

// Read decodes a batch from r. Line-delimited JSON is the normal form; a
// document that starts with '[' is read as a single JSON array instead.
// Malformed lines are skipped and counted, never fatal.
func Read(ctx context.Context, r io.Reader) (*Result, error) {
	br := bufio.NewReaderSize(r, 64<<10)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return &Result{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "batch: read")
	}
	if first == '[' {
		return readArray(ctx, br)
	}
	return readLines(ctx, br)
}

// ReadFile opens path and reads it with Read.
func ReadFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	res, err := Read(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", path)
	}
	if res.Skipped > 0 {
		zap.L().Warn("batch: skipped malformed lines",
			zap.String("path", path),
			zap.Int("skipped", res.Skipped),
			zap.Int("records", len(res.Records)),
		)
	}
	return res, nil
}

// readLines decodes one record per line. A line longer than maxLineBytes is
// drained up to its newline and counted as skipped.
func readLines(ctx context.Context, br *bufio.Reader) (*Result, error) {
	res := &Result{}
	var buf []byte
	lineNo := 0
	for {
		line, tooLong, err := readLine(br, buf[:0])
		buf = line
		if err != nil && err != io.EOF {
			return nil, eris.Wrapf(err, "batch: read line %d", lineNo+1)
		}
		if err == io.EOF && len(line) == 0 && !tooLong {
			return res, nil
		}
		lineNo++
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "batch: context cancelled")
		}
		if tooLong {
			zap.L().Warn("batch: skipping oversized line",
				zap.Int("line", lineNo),
				zap.Int("max_bytes", maxLineBytes),
			)
			res.Skipped++
		} else {
			decodeLine(res, lineNo, line)
		}
		if err == io.EOF {
			return res, nil
		}
	}
}

// readLine appends the next line to buf, stopping at maxLineBytes. The rest
// of an oversized line is consumed and dropped.
func readLine(br *bufio.Reader, buf []byte) ([]byte, bool, error) {
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxLineBytes {
				tooLong = true
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return buf, tooLong, err
	}
}

func decodeLine(res *Result, lineNo int, raw []byte) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return
	}
	var rec model.ApplicantRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		zap.L().Warn("batch: skipping malformed line", zap.Int("line", lineNo), zap.Error(err))
		res.Skipped++
		return
	}
	if rec.ExternalID == 0 {
		zap.L().Warn("batch: skipping line without pid", zap.Int("line", lineNo))
		res.Skipped++
		return
	}
	res.Records = append(res.Records, rec)
}

// readArray streams the elements of a JSON array. A malformed element
// cannot be resynchronized past, so it ends the read with what was decoded.
func readArray(ctx context.Context, r io.Reader) (*Result, error) {
	res := &Result{}
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, eris.Wrap(err, "batch: read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, eris.Errorf("batch: expected '[', got %v", tok)
	}

	for dec.More() {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "batch: context cancelled")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			zap.L().Warn("batch: truncated array", zap.Int("decoded", len(res.Records)), zap.Error(err))
			res.Skipped++
			return res, nil
		}
		var rec model.ApplicantRecord
		if err := json.Unmarshal(raw, &rec); err != nil || rec.ExternalID == 0 {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
