package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config contains configuration for the usage recorder.
type Config struct {
	// Enabled enables usage recording. When false, Record is a no-op.
	Enabled bool

	// Buffer is the size of the async write channel buffer.
	// Default: 1000
	Buffer int

	// WriteTimeout is the timeout for writing a record to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		Buffer:       1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes usage records for proxied requests. Writes happen
// asynchronously on a background worker so request handling never waits
// on storage. When the buffer is full, records are dropped and counted
// rather than blocking the caller.
type Recorder struct {
	store   Store
	config  *Config
	records chan Record
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewRecorder creates a usage recorder over the provided storage backend
// and starts its background worker.
func NewRecorder(store Store, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}

	r := &Recorder{
		store:   store,
		config:  config,
		records: make(chan Record, config.Buffer),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "usage.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("usage recorder initialized",
		"enabled", config.Enabled,
		"buffer", config.Buffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// Record enqueues a usage record for async writing. It returns
// immediately: a full buffer drops the record instead of blocking the
// request path.
func (r *Recorder) Record(rec Record) {
	if !r.config.Enabled {
		return
	}

	select {
	case r.records <- rec:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("usage buffer full, dropping record",
			"request_id", rec.RequestID,
			"dropped_total", n,
		)
	}
}

// Recent returns the most recent usage records, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Record, error) {
	return r.store.Recent(ctx, limit)
}

// Query returns usage records matching the filters, newest first.
func (r *Recorder) Query(ctx context.Context, q Query) ([]Record, error) {
	return r.store.Query(ctx, q)
}

// Dropped returns how many records have been dropped due to a full
// buffer since the recorder started.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close shuts down the recorder, draining any buffered records before
// returning. The storage backend is not closed; its owner closes it
// after the recorder has drained.
func (r *Recorder) Close() error {
	r.logger.Info("shutting down usage recorder")

	close(r.done)
	r.wg.Wait()

	r.logger.Info("usage recorder shut down", "dropped_total", r.dropped.Load())
	return nil
}

// worker drains the record channel and writes records to storage.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.records:
			r.write(rec)

		case <-r.done:
			// Drain remaining records before exit.
			for {
				select {
				case rec := <-r.records:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

// write persists a single record to storage.
func (r *Recorder) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()

	if err := r.store.Insert(ctx, rec); err != nil {
		r.logger.Error("failed to write usage record",
			"record_id", rec.ID,
			"request_id", rec.RequestID,
			"error", err,
		)
		return
	}

	duration := time.Since(start)

	r.logger.Debug("usage record written",
		"record_id", rec.ID,
		"request_id", rec.RequestID,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow usage write",
			"record_id", rec.ID,
			"duration_ms", duration.Milliseconds(),
		)
	}
}
