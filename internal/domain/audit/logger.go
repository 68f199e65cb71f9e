package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoggerConfig tunes the buffered logger. Zero values use the defaults.
type LoggerConfig struct {
	// QueueSize bounds the in-memory buffer. When the queue is full new
	// events are dropped with a warning rather than blocking a scan request.
	QueueSize int
	// BatchSize is the maximum number of records written per flush.
	BatchSize int
	// FlushInterval is how long the flusher waits for a partial batch.
	FlushInterval time.Duration
}

func (c *LoggerConfig) setDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
}

// Logger records scan events without putting the write on the request path.
// Log enqueues and returns immediately; a single background flusher batches
// queued events into the store. LogSync bypasses the queue for callers that
// need the generated record ID before responding.
type Logger struct {
	store Store
	lg    *zap.Logger
	cfg   LoggerConfig
	queue chan Record
	done  chan struct{}
}

// NewLogger creates a buffered audit logger. Call Run to start the flusher.
func NewLogger(store Store, lg *zap.Logger, cfg LoggerConfig) *Logger {
	cfg.setDefaults()
	return &Logger{
		store: store,
		lg:    lg,
		cfg:   cfg,
		queue: make(chan Record, cfg.QueueSize),
		done:  make(chan struct{}),
	}
}

// Log queues a scan event for asynchronous writing. The record's CreatedAt is
// stamped here so the audit timestamp reflects scan time, not flush time.
// Never blocks: when the queue is full the event is dropped and counted as an
// audit write failure in the logs.
func (l *Logger) Log(rec Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	select {
	case l.queue <- rec:
	default:
		l.lg.Warn("audit queue full, dropping scan event",
			zap.Int64("user_id", rec.UserID),
			zap.String("search_term", rec.SearchTerm),
		)
	}
}

// LogSync writes the record immediately and returns its generated ID.
func (l *Logger) LogSync(ctx context.Context, rec Record) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return l.store.Insert(ctx, &rec)
}

// Run drains the queue, flushing batches until ctx is cancelled. On shutdown
// it performs a final drain so accepted events are not lost. Run must be
// called exactly once.
func (l *Logger) Run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, l.cfg.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Flushing uses a detached context: the originating requests have
		// already been answered.
		fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := l.store.InsertBatch(fctx, batch); err != nil {
			l.lg.Error("audit flush failed",
				zap.Int("records", len(batch)),
				zap.Error(err),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-l.queue:
			batch = append(batch, rec)
			if len(batch) >= l.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case rec := <-l.queue:
					batch = append(batch, rec)
					if len(batch) >= l.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned, for orderly shutdown.
func (l *Logger) Wait() {
	<-l.done
}
