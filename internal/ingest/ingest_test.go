package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/job-scraper/internal/normalize"
)

func sampleBatch() Batch {
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	b := NewBatch(started)
	b.FinishedAt = started.Add(40 * time.Second)
	b.Jobs = []normalize.Job{{
		ID:      "abc",
		Title:   "Backend Engineer",
		Company: "Acme",
		URL:     "https://acme.example/jobs/1",
		Source:  normalize.Source{Type: normalize.SourceATS, ATS: "greenhouse", ScrapeMethod: "api", TargetID: "acme"},
	}}
	b.Stats = Stats{CompaniesAttempted: 1, JobsFound: 2, JobsIngested: 1}
	return b
}

func TestNewBatch(t *testing.T) {
	b := NewBatch(time.Date(2025, 1, 1, 0, 0, 0, 0, time.FixedZone("x", 3600)))
	_, err := uuid.Parse(b.RunID)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, b.StartedAt.Location())
	assert.NotEqual(t, b.RunID, NewBatch(time.Now()).RunID)
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriter(&buf)
	want := sampleBatch()

	require.NoError(t, sink.Ingest(context.Background(), want))
	require.NoError(t, sink.Ingest(context.Background(), want))

	dec := json.NewDecoder(&buf)
	for i := 0; i < 2; i++ {
		var got Batch
		require.NoError(t, dec.Decode(&got))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("batch %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestJSONFile_ReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "jobs.json")
	sink := NewJSONFile(path)

	first := sampleBatch()
	require.NoError(t, sink.Ingest(context.Background(), first))
	second := sampleBatch()
	second.Jobs = nil
	require.NoError(t, sink.Ingest(context.Background(), second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Batch
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, second.RunID, got.RunID)
	assert.Empty(t, got.Jobs)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestJSONSink_CancelledContext(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewJSONWriter(&buf).Ingest(ctx, sampleBatch())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestMultiSink(t *testing.T) {
	boom := errors.New("boom")
	mem := NewMemory(1)
	var calls int
	multi := MultiSink{
		SinkFunc(func(context.Context, Batch) error { calls++; return boom }),
		nil,
		mem,
	}

	err := multi.Ingest(context.Background(), sampleBatch())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	_, ok := mem.Latest()
	assert.True(t, ok, "later sinks still run after a failure")

	assert.NoError(t, MultiSink{}.Ingest(context.Background(), sampleBatch()))
}

func TestMemory_KeepsLatest(t *testing.T) {
	mem := NewMemory(2)
	_, ok := mem.Latest()
	assert.False(t, ok)

	var ids []string
	for i := 0; i < 3; i++ {
		b := sampleBatch()
		ids = append(ids, b.RunID)
		require.NoError(t, mem.Ingest(context.Background(), b))
	}

	latest, ok := mem.Latest()
	require.True(t, ok)
	assert.Equal(t, ids[2], latest.RunID)

	batches := mem.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, ids[1], batches[0].RunID)
}
