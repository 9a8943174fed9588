package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(ids ...string) []core.Record {
	out := make([]core.Record, len(ids))
	for i, id := range ids {
		out[i] = core.Record{core.FieldID: id}
	}
	return out
}

func TestBatchProcessor(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExecutor()
	exec.outcomes["note:skip"] = []string{executor.OutcomeSkipped}
	exec.outcomes["note:flaky"] = []string{executor.OutcomeFailed, executor.OutcomeDirect}
	exec.outcomes["note:dead"] = []string{executor.OutcomeFailed, executor.OutcomeFailed, executor.OutcomeFailed}
	exec.errs["note:transient"] = []error{errors.New("timeout")}

	bp := NewBatchProcessor(exec, 3, time.Millisecond, nil)
	result, err := bp.Process(ctx, core.TableNote, records("note:ok", "note:skip", "note:flaky", "note:dead", "note:transient"))
	require.NoError(t, err)

	assert.Equal(t, BatchResult{Embedded: 3, Skipped: 1, Failed: 1}, result)
	assert.Equal(t, 5, result.Total())
	assert.Equal(t, 1, exec.callCount("note:ok"))
	assert.Equal(t, 2, exec.callCount("note:flaky"))
	assert.Equal(t, 3, exec.callCount("note:dead"))
	assert.Equal(t, 2, exec.callCount("note:transient"))
}

func TestBatchProcessor_QueuedHandles(t *testing.T) {
	exec := newFakeExecutor()
	exec.fallback = "0190c8a2-job"

	bp := NewBatchProcessor(exec, 1, time.Millisecond, nil)
	result, err := bp.Process(context.Background(), core.TableSource, records("source:1", "source:2"))
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Queued: 2}, result)
}

func TestBatchProcessor_UnsupportedTable(t *testing.T) {
	bp := NewBatchProcessor(newFakeExecutor(), 1, time.Millisecond, nil)
	_, err := bp.Process(context.Background(), core.TableNotebook, records("notebook:1"))
	assert.ErrorIs(t, err, ErrUnsupportedTable)
}

func TestBatchProcessor_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := newFakeExecutor()
	exec.errs["note:1"] = []error{errors.New("timeout")}
	cancel()

	bp := NewBatchProcessor(exec, 3, time.Millisecond, nil)
	_, err := bp.Process(ctx, core.TableNote, records("note:1", "note:2"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, exec.callCount("note:2"))
}
