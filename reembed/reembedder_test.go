package reembed

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(tables ...string) *Config {
	return &Config{
		Tables:         tables,
		BatchSize:      3,
		ReportInterval: 3,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
	}
}

func TestReembedder_Run(t *testing.T) {
	repo := newRepo(t)
	notes := seed(t, repo, core.TableNote, 7)
	sources := seed(t, repo, core.TableSource, 2)

	exec := newFakeExecutor()
	exec.outcomes[notes[0]] = []string{executor.OutcomeSkipped}
	exec.outcomes[notes[1]] = []string{executor.OutcomeFailed, executor.OutcomeFailed}

	var buf bytes.Buffer
	summary, err := NewReembedder(repo, exec, testConfig(core.TableNote, core.TableSource), &buf).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, BatchResult{Embedded: 5, Skipped: 1, Failed: 1}, summary.Tables[core.TableNote])
	assert.Equal(t, BatchResult{Embedded: 2}, summary.Tables[core.TableSource])
	assert.Equal(t, 9, summary.Total().Total())
	for _, id := range sources {
		assert.Equal(t, 1, exec.callCount(id))
	}

	output := buf.String()
	assert.Contains(t, output, "note: 7/7")
	assert.Contains(t, output, "source: 2/2")
	assert.Contains(t, output, "7 embedded, 0 queued, 1 skipped, 1 failed")
}

func TestReembedder_EmptyTable(t *testing.T) {
	repo := newRepo(t)

	var buf bytes.Buffer
	summary, err := NewReembedder(repo, newFakeExecutor(), testConfig(core.TableSourceInsight), &buf).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Total().Total())
	assert.Contains(t, buf.String(), "No source_insight records found")
}

func TestReembedder_UnsupportedTable(t *testing.T) {
	repo := newRepo(t)
	exec := newFakeExecutor()
	seed(t, repo, core.TableNote, 1)

	_, err := NewReembedder(repo, exec, testConfig(core.TableNote, core.TableNotebook), nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedTable)
}

func TestReembedder_ContextCanceled(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, core.TableNote, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReembedder(repo, newFakeExecutor(), testConfig(core.TableNote), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{core.TableNote, core.TableSource, core.TableSourceInsight}, cfg.Tables)
	assert.Positive(t, cfg.BatchSize)
	assert.Positive(t, cfg.MaxRetries)
}
