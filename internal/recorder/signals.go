package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantview/livefeed/internal/model"
)

// signalRow is the database representation of a trading signal.
type signalRow struct {
	TS          int64 // Generation timestamp (seconds since epoch)
	ReceivedAt  int64 // Local receive timestamp (µs since epoch)
	Symbol      string
	Action      string
	Confidence  float64
	PriceTarget float64
	Strength    float64
	Reasoning   string
}

// SignalRecorder consumes signals and batch-writes them to the signals table.
type SignalRecorder struct {
	cfg    Config
	logger *slog.Logger

	input chan model.Signal

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []signalRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewSignalRecorder creates a new SignalRecorder.
func NewSignalRecorder(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *SignalRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalRecorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan model.Signal, cfg.BufferSize),
		batch:  make([]signalRow, 0, cfg.BatchSize),
	}
}

// Enqueue submits a signal for persistence. Never blocks.
func (r *SignalRecorder) Enqueue(sig model.Signal) {
	select {
	case r.input <- sig:
	default:
		r.batchMu.Lock()
		r.metrics.Dropped++
		r.batchMu.Unlock()
	}
}

// Start begins consuming signals and writing to the database.
func (r *SignalRecorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("signal recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder.
func (r *SignalRecorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping signal recorder")

	if r.cancel != nil {
		r.cancel()
	}
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("signal recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("signal recorder stop timed out")
	}

	// Final flush
	r.flush()

	return nil
}

// Stats returns current metrics.
func (r *SignalRecorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

func (r *SignalRecorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case sig := <-r.input:
			r.handleSignal(sig)
		}
	}
}

func (r *SignalRecorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush()
		}
	}
}

func (r *SignalRecorder) handleSignal(sig model.Signal) {
	row := r.transform(sig)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush()
	}
}

// transform converts a Signal to a signalRow.
func (r *SignalRecorder) transform(sig model.Signal) signalRow {
	ts := sig.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	return signalRow{
		TS:          ts,
		ReceivedAt:  time.Now().UnixMicro(),
		Symbol:      sig.Symbol,
		Action:      sig.Action,
		Confidence:  sig.Confidence,
		PriceTarget: sig.PriceTarget,
		Strength:    sig.Strength,
		Reasoning:   sig.Reasoning,
	}
}

// flush writes the current batch to the database.
func (r *SignalRecorder) flush() {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	batch := r.batch
	r.batch = make([]signalRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(batch)
	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch) - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed signals",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (r *SignalRecorder) batchInsert(rows []signalRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO signals (ts, received_at, symbol, action, confidence, price_target, strength, reasoning)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (symbol, ts) DO NOTHING
		`, row.TS, row.ReceivedAt, row.Symbol, row.Action, row.Confidence, row.PriceTarget, row.Strength, row.Reasoning)
	}

	results := r.db.SendBatch(r.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
