package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"kanaime/internal/ime"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// BatchSize is the number of conversions buffered before a write.
	BatchSize int

	// FlushInterval is how often buffered conversions are written even if
	// the batch isn't full.
	FlushInterval time.Duration

	Logger *slog.Logger
}

// DefaultRecorderConfig returns sensible defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		BatchSize:     64,
		FlushInterval: 5 * time.Second,
	}
}

// RecorderStats contains recorder counters.
type RecorderStats struct {
	Observed int64
	Written  int64
	Failed   int64
	Flushes  int64
}

// Recorder collects converted commands from hosts and writes them to the
// store in batches. It implements ime.CommitObserver.
type Recorder struct {
	store  *Store
	config RecorderConfig
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	batch     []Conversion
	lastFlush time.Time
	stats     RecorderStats

	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

var _ ime.CommitObserver = (*Recorder)(nil)

// NewRecorder creates a recorder writing to s.
func NewRecorder(s *Store, config RecorderConfig) *Recorder {
	def := DefaultRecorderConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = def.FlushInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		store:     s,
		config:    config,
		logger:    logger.With("component", "recorder"),
		now:       time.Now,
		batch:     make([]Conversion, 0, config.BatchSize),
		lastFlush: time.Now(),
	}
}

// Start runs the periodic flush loop until ctx is cancelled or Close is
// called.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.flushLoop(ctx)
}

// Observe buffers the converted commands in cmds. Other kinds are ignored.
func (r *Recorder) Observe(cmds []ime.Command) {
	var full []Conversion

	r.mu.Lock()
	for _, c := range cmds {
		if c.Kind != ime.CommitConverted {
			continue
		}
		r.batch = append(r.batch, Conversion{Key: c.Source, Output: c.Text, At: r.now()})
		r.stats.Observed++
	}
	if len(r.batch) >= r.config.BatchSize {
		full = r.takeBatch()
	}
	r.mu.Unlock()

	if full != nil {
		r.write(full)
	}
}

// takeBatch must be called with r.mu held.
func (r *Recorder) takeBatch() []Conversion {
	if len(r.batch) == 0 {
		return nil
	}
	batch := make([]Conversion, len(r.batch))
	copy(batch, r.batch)
	r.batch = r.batch[:0]
	r.lastFlush = r.now()
	return batch
}

func (r *Recorder) write(batch []Conversion) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	err := r.store.RecordConversions(batch)

	r.mu.Lock()
	r.stats.Flushes++
	if err != nil {
		r.stats.Failed += int64(len(batch))
	} else {
		r.stats.Written += int64(len(batch))
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("failed to record conversions", "count", len(batch), "error", err)
		return
	}
	r.logger.Debug("recorded conversions", "count", len(batch))
}

// Flush writes any buffered conversions now.
func (r *Recorder) Flush() {
	r.mu.Lock()
	batch := r.takeBatch()
	r.mu.Unlock()

	if batch != nil {
		r.write(batch)
	}
}

// flushLoop periodically flushes conversion batches.
func (r *Recorder) flushLoop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			var batch []Conversion
			if r.now().Sub(r.lastFlush) >= r.config.FlushInterval {
				batch = r.takeBatch()
			}
			r.mu.Unlock()
			if batch != nil {
				r.write(batch)
			}
		}
	}
}

// Pending returns the number of buffered conversions.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batch)
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close stops the flush loop and writes what is left. It does not close the
// store.
func (r *Recorder) Close() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
		r.cancel = nil
	}
	r.Flush()
}
