package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func withStdin(t *testing.T, s string) {
	t.Helper()
	old := stdin
	stdin = strings.NewReader(s)
	t.Cleanup(func() { stdin = old })
}

func TestReadIDsFromStdin(t *testing.T) {
	withStdin(t, "abc\n\n  def  \nghi\n")
	ids, err := readIDsFromStdin()
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def", "ghi"}, ids)
}

func TestReadIDsFromStdinEmpty(t *testing.T) {
	withStdin(t, "\n \n")
	_, err := readIDsFromStdin()
	assert.EqualError(t, err, "no IDs received from stdin")
}

func TestCollectIDs(t *testing.T) {
	ids, err := collectIDs("m1", false, "message ID")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids)

	_, err = collectIDs("", false, "message ID")
	assert.EqualError(t, err, "either provide message ID or use --stdin")

	withStdin(t, "a\nb\n")
	ids, err = collectIDs("ignored", true, "message ID")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

type countingLimiter struct {
	calls    int
	backoffs int
}

func (c *countingLimiter) Wait(ctx context.Context) error {
	c.calls++
	return ctx.Err()
}

func (c *countingLimiter) Backoff(time.Duration) {
	c.backoffs++
}

func TestBatchProcessorCollectsErrors(t *testing.T) {
	l := &countingLimiter{}
	bp := newBatchProcessor(3, false, l)
	err := bp.process(context.Background(), []string{"a", "b", "c"}, func(ctx context.Context, id string) error {
		if id == "b" {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, l.calls)
	assert.Equal(t, 0, l.backoffs)
	assert.Equal(t, 2, bp.succeeded())
	assert.Equal(t, 1, bp.failed())
	require.Error(t, bp.err())
	assert.Contains(t, bp.err().Error(), "ID b: boom")

	var buf bytes.Buffer
	bp.report(&buf)
	assert.Equal(t, "Processed 2/3 items\nErrors: 1\n", buf.String())
}

func TestBatchProcessorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bp := newBatchProcessor(2, false, &countingLimiter{})
	err := bp.process(ctx, []string{"a", "b"}, func(context.Context, string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, bp.processed)
	assert.NoError(t, bp.err())
}

func TestBatchProcessorBacksOffOnRateLimit(t *testing.T) {
	l := &countingLimiter{}
	bp := newBatchProcessor(2, false, l)
	err := bp.process(context.Background(), []string{"a", "b"}, func(ctx context.Context, id string) error {
		if id == "a" {
			return &googleapi.Error{Code: 429}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, l.backoffs)
	assert.Equal(t, 1, bp.failed())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&googleapi.Error{Code: 404}))
	assert.False(t, isNotFound(&googleapi.Error{Code: 500}))
	assert.False(t, isNotFound(errors.New("x")))
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, isRateLimited(&googleapi.Error{Code: 429}))
	assert.False(t, isRateLimited(&googleapi.Error{Code: 404}))
	assert.False(t, isRateLimited(nil))
}
