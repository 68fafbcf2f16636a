package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollStateString(t *testing.T) {
	assert.Equal(t, "pending", PollPending.String())
	assert.Equal(t, "running", PollRunning.String())
	assert.Equal(t, "completed", PollCompleted.String())
	assert.Equal(t, "timed_out", PollTimedOut.String())
	assert.Equal(t, "unknown", PollState(99).String())
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
