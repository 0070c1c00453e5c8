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

// quoteRow is the database representation of a quote.
type quoteRow struct {
	TS            int64 // Exchange timestamp (seconds since epoch)
	ReceivedAt    int64 // Local receive timestamp (µs since epoch)
	Symbol        string
	Price         float64
	Change        float64
	ChangePercent float64
	Volume        int64
	DayHigh       float64
	DayLow        float64
	Open          float64
	PrevClose     float64
}

// QuoteRecorder consumes quotes and batch-writes them to the quotes table.
type QuoteRecorder struct {
	cfg    Config
	logger *slog.Logger

	input chan model.Quote

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []quoteRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewQuoteRecorder creates a new QuoteRecorder.
func NewQuoteRecorder(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *QuoteRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteRecorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan model.Quote, cfg.BufferSize),
		batch:  make([]quoteRow, 0, cfg.BatchSize),
	}
}

// Enqueue submits a quote for persistence. Never blocks: when the buffer
// is full the quote is dropped and counted, so a slow database cannot
// stall the dispatch path.
func (r *QuoteRecorder) Enqueue(q model.Quote) {
	select {
	case r.input <- q:
	default:
		r.batchMu.Lock()
		r.metrics.Dropped++
		r.batchMu.Unlock()
	}
}

// Start begins consuming quotes and writing to the database.
func (r *QuoteRecorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("quote recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder.
func (r *QuoteRecorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping quote recorder")

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
		r.logger.Info("quote recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("quote recorder stop timed out")
	}

	// Final flush
	r.flush()

	return nil
}

// Stats returns current metrics.
func (r *QuoteRecorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

func (r *QuoteRecorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case q := <-r.input:
			r.handleQuote(q)
		}
	}
}

func (r *QuoteRecorder) flushLoop() {
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

func (r *QuoteRecorder) handleQuote(q model.Quote) {
	row := r.transform(q)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush()
	}
}

// transform converts a Quote to a quoteRow.
func (r *QuoteRecorder) transform(q model.Quote) quoteRow {
	ts := q.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	return quoteRow{
		TS:            ts,
		ReceivedAt:    time.Now().UnixMicro(),
		Symbol:        q.Symbol,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
		DayHigh:       q.DayHigh,
		DayLow:        q.DayLow,
		Open:          q.Open,
		PrevClose:     q.PrevClose,
	}
}

// flush writes the current batch to the database.
func (r *QuoteRecorder) flush() {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]quoteRow, 0, r.cfg.BatchSize)
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

	r.logger.Debug("flushed quotes",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (r *QuoteRecorder) batchInsert(rows []quoteRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO quotes (ts, received_at, symbol, price, change, change_percent, volume, day_high, day_low, open, prev_close)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (symbol, ts) DO NOTHING
		`, row.TS, row.ReceivedAt, row.Symbol, row.Price, row.Change, row.ChangePercent, row.Volume, row.DayHigh, row.DayLow, row.Open, row.PrevClose)
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
