package crawl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/gradsync/internal/model"
)

type stubReader struct {
	wm  model.Watermark
	err error
}

func (s stubReader) LatestWatermark(context.Context) (model.Watermark, error) {
	return s.wm, s.err
}

var epoch = model.NewDate(2020, time.January, 1)

func TestResolveWatermark_EmptyStore(t *testing.T) {
	wm := ResolveWatermark(context.Background(), stubReader{}, epoch)
	assert.True(t, wm.ColdStart)
	assert.Equal(t, epoch, wm.Date)
	assert.Empty(t, wm.Known)
}

func TestResolveWatermark_ReadErrorDegradesToColdStart(t *testing.T) {
	wm := ResolveWatermark(context.Background(), stubReader{err: errors.New("connection refused")}, epoch)
	assert.True(t, wm.ColdStart)
	assert.Equal(t, epoch, wm.Date)
	assert.NotNil(t, wm.Known)
	assert.Empty(t, wm.Known)
}

func TestResolveWatermark_Existing(t *testing.T) {
	d := model.NewDate(2025, time.September, 22)
	wm := ResolveWatermark(context.Background(), stubReader{wm: watermark(d, 102, 103)}, epoch)
	assert.False(t, wm.ColdStart)
	assert.Equal(t, d, wm.Date)
	assert.True(t, wm.IsKnown(102))
	assert.True(t, wm.IsKnown(103))
	assert.False(t, wm.IsKnown(101))
}

func TestResolveWatermark_NilKnownSet(t *testing.T) {
	d := model.NewDate(2025, time.September, 22)
	wm := ResolveWatermark(context.Background(), stubReader{wm: model.Watermark{Date: d}}, epoch)
	assert.NotNil(t, wm.Known)
	assert.False(t, wm.IsKnown(1))
}
