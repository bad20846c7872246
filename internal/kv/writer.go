package kv

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Writer is a write-behind queue in front of a Store. Save only records the
// latest value per key and wakes the Run loop; the durable write happens
// later and its failure is logged, never returned to the caller.
type Writer struct {
	store  Store
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]string

	// flushMu orders flushes so an older snapshot never lands after a newer one.
	flushMu  sync.Mutex
	notifyCh chan struct{}
}

func NewWriter(store Store, logger *zap.Logger) *Writer {
	return &Writer{
		store:    store,
		logger:   logger,
		pending:  map[string]string{},
		notifyCh: make(chan struct{}, 1),
	}
}

// Load reads a key, preferring a value that is still waiting to be written.
func (w *Writer) Load(ctx context.Context, key string) (string, bool, error) {
	w.mu.Lock()
	v, ok := w.pending[key]
	w.mu.Unlock()
	if ok {
		return v, true, nil
	}
	return w.store.Get(ctx, key)
}

// Save queues value for key, replacing any queued value for the same key.
func (w *Writer) Save(key, value string) {
	w.mu.Lock()
	w.pending[key] = value
	w.mu.Unlock()

	select {
	case w.notifyCh <- struct{}{}:
	default:
		// A flush is already pending
	}
}

// Pending returns the number of keys not yet written.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Run drains the queue whenever Save is called, until ctx is done. Whatever
// is still queued at shutdown is flushed with a fresh context.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Flush(context.WithoutCancel(ctx))
			return
		case <-w.notifyCh:
			w.Flush(ctx)
		}
	}
}

// Start runs the writer on its own context. The returned stop function
// ends the loop and returns once the final flush is done, so callers can
// shut down everything that saves before stopping the writer.
func (w *Writer) Start() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Flush writes every queued value synchronously.
func (w *Writer) Flush(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.pending
	w.pending = map[string]string{}
	w.mu.Unlock()

	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := w.store.Set(ctx, key, batch[key]); err != nil {
			w.logger.Error("failed to persist state", zap.String("key", key), zap.Error(err))
		}
	}
}
