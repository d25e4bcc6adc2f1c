package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Buffer collects events in memory and periodically flushes them to a
// Writer in one batch.
type Buffer struct {
	mu      sync.Mutex
	events  []Event
	writer  Writer
	logger  *zap.Logger
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	stopped bool
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewBuffer creates a buffer that flushes on a timer or when full.
func NewBuffer(writer Writer, logger *zap.Logger, maxSize int, flushIntervalMs int) *Buffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Buffer{
		writer:  writer,
		logger:  logger,
		maxSize: maxSize,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	b.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	b.wg.Add(1)
	go b.run()
	return b
}

func (b *Buffer) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case <-b.ticker.C:
			b.Flush()
		}
	}
}

// Record adds an event to the buffer, assigning an ID and timestamp when
// missing. If the buffer is full, a flush is triggered asynchronously, or
// inline once the buffer has been stopped.
func (b *Buffer) Record(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = b.now().UTC()
	}
	b.mu.Lock()
	b.events = append(b.events, e)
	full := len(b.events) >= b.maxSize
	async := full && !b.stopped
	if async {
		b.wg.Add(1)
	}
	b.mu.Unlock()
	switch {
	case async:
		go func() {
			defer b.wg.Done()
			b.Flush()
		}()
	case full:
		b.Flush()
	}
}

// Pending returns the number of buffered events.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush writes all buffered events in a single batch. A failed batch is
// logged and dropped.
func (b *Buffer) Flush() {
	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.events
	b.events = nil
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.writer.InsertAuditEvents(ctx, batch); err != nil {
		b.logger.Error("audit flush failed", zap.Int("events", len(batch)), zap.Error(err))
	}
}

// Stop halts the background ticker, waits for in-flight flushes and flushes
// remaining events. It is safe to call more than once.
func (b *Buffer) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	b.ticker.Stop()
	close(b.done)
	b.wg.Wait()
	b.Flush()
}

var _ Recorder = (*Buffer)(nil)
