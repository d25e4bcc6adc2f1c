package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shipfilter/internal/filterspec"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
	delay   time.Duration
}

func (w *fakeWriter) InsertAuditEvents(_ context.Context, events []Event) error {
	time.Sleep(w.delay)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, events)
	return w.err
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func TestBufferFlushesOnStop(t *testing.T) {
	w := &fakeWriter{}
	b := NewBuffer(w, zap.NewNop(), 100, 60_000)
	b.Record(Event{Action: ActionResolve, Status: StatusOK})
	b.Record(Event{Action: ActionCompile, Status: StatusOK, ID: "fixed"})
	assert.Equal(t, 2, b.Pending())

	b.Stop()
	require.Len(t, w.batches, 1)
	batch := w.batches[0]
	require.Len(t, batch, 2)
	assert.NotEmpty(t, batch[0].ID)
	assert.Equal(t, "fixed", batch[1].ID)
	assert.False(t, batch[0].CreatedAt.IsZero())
	assert.Equal(t, 0, b.Pending())
}

func TestBufferFlushesWhenFull(t *testing.T) {
	w := &fakeWriter{}
	b := NewBuffer(w, zap.NewNop(), 3, 60_000)
	defer b.Stop()
	for i := 0; i < 3; i++ {
		b.Record(Event{Action: ActionExecute, Status: StatusOK})
	}
	assert.Eventually(t, func() bool { return w.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestBufferStopWaitsForInFlightFlush(t *testing.T) {
	w := &fakeWriter{delay: 50 * time.Millisecond}
	b := NewBuffer(w, zap.NewNop(), 2, 60_000)
	b.Record(Event{Action: ActionResolve, Status: StatusOK})
	b.Record(Event{Action: ActionExecute, Status: StatusOK})

	b.Stop()
	assert.Equal(t, 2, w.count())

	b.Stop()
	b.Record(Event{Action: ActionCompile, Status: StatusOK})
	b.Record(Event{Action: ActionCompile, Status: StatusOK})
	assert.Equal(t, 4, w.count(), "a stopped buffer flushes inline")
}

func TestBufferFlushesOnTicker(t *testing.T) {
	w := &fakeWriter{}
	b := NewBuffer(w, zap.NewNop(), 100, 5)
	defer b.Stop()
	b.Record(Event{Action: ActionPreview, Status: StatusOK})
	assert.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBufferDropsFailedBatch(t *testing.T) {
	w := &fakeWriter{err: errors.New("disk full")}
	b := NewBuffer(w, zap.NewNop(), 100, 60_000)
	b.Record(Event{Action: ActionResolve})
	b.Flush()
	assert.Equal(t, 0, b.Pending())
	b.Stop()
	assert.Len(t, w.batches, 1)
}

func TestEventFail(t *testing.T) {
	e := Event{Action: ActionCompile, Status: StatusOK}
	e.Fail(filterspec.NewError(filterspec.CodeSchemaChanged, "drift"))
	assert.Equal(t, StatusError, e.Status)
	assert.Equal(t, filterspec.CodeSchemaChanged, e.Code)
}

type fakePruner struct{ cutoff time.Time }

func (p *fakePruner) DeleteAuditEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return 4, nil
}

func TestCleanupOldEvents(t *testing.T) {
	p := &fakePruner{}
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	n, err := CleanupOldEvents(context.Background(), p, 7, now, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC), p.cutoff)
}

func TestMemoryRecorder(t *testing.T) {
	var m Memory
	assert.Equal(t, Event{}, m.Last())
	m.Record(Event{Action: ActionResolve})
	m.Record(Event{Action: ActionConfirm})
	assert.Equal(t, ActionConfirm, m.Last().Action)
	assert.Len(t, m.Events(), 2)
}
