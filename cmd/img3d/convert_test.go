package main

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/img3d/config"
	"github.com/BaSui01/img3d/threed"
	"github.com/BaSui01/img3d/tracker"
	"github.com/BaSui01/img3d/types"
)

type scriptedGateway struct {
	submitErr error
	statuses  []threed.Status
	polls     atomic.Int32
}

func (g *scriptedGateway) Submit(ctx context.Context, imageDataURL string) (string, error) {
	if g.submitErr != nil {
		return "", g.submitErr
	}
	return "job-7", nil
}

func (g *scriptedGateway) Status(ctx context.Context, taskID string) (*threed.ConversionTask, error) {
	n := int(g.polls.Add(1)) - 1
	if n >= len(g.statuses) {
		n = len(g.statuses) - 1
	}
	return &threed.ConversionTask{ID: taskID, Status: g.statuses[n], Progress: 50}, nil
}

func fastTrackerOptions() tracker.Options {
	opts := trackerOptions(config.DefaultTrackerConfig(), zap.NewNop(), nil)
	opts.PollInterval = 2 * time.Millisecond
	return opts
}

func TestConvert_Failed(t *testing.T) {
	gw := &scriptedGateway{statuses: []threed.Status{threed.StatusInProgress, threed.StatusFailed}}

	var out bytes.Buffer
	final, err := convert(context.Background(), gw, fastTrackerOptions(), pngImage, &out)
	require.NoError(t, err)

	assert.Equal(t, tracker.MsgConversionFailed, final.Error)
	require.NotNil(t, final.CurrentTask)
	assert.Equal(t, threed.StatusFailed, final.CurrentTask.Status)
	assert.Contains(t, out.String(), "error: "+tracker.MsgConversionFailed)
	assert.NotContains(t, out.String(), "model:")
}

func TestConvert_SubmissionFailed(t *testing.T) {
	gw := &scriptedGateway{submitErr: types.NewError(types.ErrUpstreamError, "boom").WithHTTPStatus(500)}

	var out bytes.Buffer
	final, err := convert(context.Background(), gw, fastTrackerOptions(), pngImage, &out)
	require.NoError(t, err)

	assert.Equal(t, tracker.MsgSubmissionFailed, final.Error)
	assert.Nil(t, final.CurrentTask)
	assert.Equal(t, int32(0), gw.polls.Load())
}

func TestConvert_EncodingFailed(t *testing.T) {
	gw := &scriptedGateway{statuses: []threed.Status{threed.StatusSucceeded}}

	_, err := convert(context.Background(), gw, fastTrackerOptions(), []byte("not an image"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, int32(0), gw.polls.Load())
}

func TestConvert_ContextCancelled(t *testing.T) {
	gw := &scriptedGateway{statuses: []threed.Status{threed.StatusInProgress}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := convert(ctx, gw, fastTrackerOptions(), pngImage, &bytes.Buffer{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTrackerOptions(t *testing.T) {
	cfg := config.DefaultTrackerConfig()
	cfg.MaxPollRetries = 4
	cfg.RetryInitialDelay = 10 * time.Millisecond
	cfg.RetryMaxDelay = time.Second

	opts := trackerOptions(cfg, zap.NewNop(), nil)
	require.NotNil(t, opts.Retry)
	assert.Equal(t, 4, opts.Retry.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, opts.Retry.InitialDelay)
	assert.Equal(t, time.Second, opts.Retry.MaxDelay)
	assert.Equal(t, cfg.Deadline, opts.Deadline)
	assert.True(t, opts.MonotonicProgress)
	assert.True(t, opts.CompleteOnSuccess)
	assert.Equal(t, 2.0, opts.Retry.Multiplier)
	assert.True(t, opts.Retry.Jitter)
}

func TestTrackerOptions_ZeroDelaysKeepDefaults(t *testing.T) {
	cfg := config.DefaultTrackerConfig()
	cfg.RetryInitialDelay = 0
	cfg.RetryMaxDelay = 0

	opts := trackerOptions(cfg, zap.NewNop(), nil)
	defaults := tracker.DefaultOptions()
	require.NotNil(t, opts.Retry)
	assert.Equal(t, defaults.Retry.InitialDelay, opts.Retry.InitialDelay)
	assert.Equal(t, defaults.Retry.MaxDelay, opts.Retry.MaxDelay)
}

func TestPrintState(t *testing.T) {
	var out bytes.Buffer
	printState(&out, tracker.State{IsConverting: true})
	printState(&out, tracker.State{CurrentTask: &threed.ConversionTask{
		ID:           "job-7",
		Status:       threed.StatusSucceeded,
		Progress:     100,
		ModelURLs:    &threed.ModelURLs{GLB: "https://example.com/m.glb"},
		ThumbnailURL: "https://example.com/t.png",
	}})

	assert.Contains(t, out.String(), "encoding and submitting image")
	assert.Contains(t, out.String(), "job-7 SUCCEEDED   100%")
	assert.Contains(t, out.String(), "model: https://example.com/m.glb")
	assert.Contains(t, out.String(), "thumbnail: https://example.com/t.png")
}
