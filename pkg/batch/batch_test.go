package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAllSucceed(t *testing.T) {
	var seen []string
	report := Run(context.Background(), []string{"a", "b", "c"}, func(ctx context.Context, item string) error {
		seen = append(seen, item)
		return nil
	})

	require.True(t, report.OK())
	assert.Equal(t, 3, report.SuccessCount)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestRunPartialFailure(t *testing.T) {
	report := Run(context.Background(), []string{"a", "b", "c"}, func(ctx context.Context, item string) error {
		if item == "b" {
			return errors.New("duplicate")
		}
		return nil
	})

	require.False(t, report.OK())
	assert.Equal(t, 2, report.SuccessCount)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "b", report.Failures[0].Item)
	assert.Equal(t, "duplicate", report.Failures[0].Reason)
}

func TestRunFailuresKeepInputOrder(t *testing.T) {
	report := Run(context.Background(), []int{1, 2, 3, 4}, func(ctx context.Context, item int) error {
		if item%2 == 0 {
			return errors.New("even")
		}
		return nil
	})

	require.Len(t, report.Failures, 2)
	assert.Equal(t, 2, report.Failures[0].Item)
	assert.Equal(t, 4, report.Failures[1].Item)
	assert.Equal(t, 2, report.SuccessCount)
}

func TestRunEmptyInput(t *testing.T) {
	report := Run(context.Background(), nil, func(ctx context.Context, item string) error {
		t.Fatal("op must not be called for empty input")
		return nil
	})

	assert.True(t, report.OK())
	assert.Zero(t, report.SuccessCount)
}

func TestRunLaterFailureDoesNotUndoEarlierSuccess(t *testing.T) {
	applied := map[string]bool{}
	report := Run(context.Background(), []string{"a", "b"}, func(ctx context.Context, item string) error {
		if item == "b" {
			return errors.New("boom")
		}
		applied[item] = true
		return nil
	})

	assert.True(t, applied["a"])
	assert.Equal(t, 1, report.SuccessCount)
	require.Len(t, report.Failures, 1)
}
