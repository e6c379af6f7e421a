package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rvaughn/predfeed/internal/book"
	"github.com/rvaughn/predfeed/internal/model"
)

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// DefaultWriterConfig returns production defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// snapshotRow is one book update flattened for insert. Depth is stored
// as JSONB; best quotes are denormalized for cheap spread queries.
type snapshotRow struct {
	Venue      string
	MarketID   string
	AssetID    string
	Kind       string
	ExchangeTs int64
	ReceivedAt int64
	BestBid    float64
	BestAsk    float64
	Bids       []byte
	Asks       []byte
}

// tradeRow is one fill event flattened for insert.
type tradeRow struct {
	EventID         string
	Venue           string
	OrderID         string
	MarketID        string
	AssetID         string
	Side            string
	Price           float64
	Size            float64
	Fee             float64
	TransactionHash string
	Timestamp       int64
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	SnapshotInserts   int64
	SnapshotConflicts int64
	SnapshotErrors    int64
	TradeInserts      int64
	TradeErrors       int64
	Flushes           int64
}

// dbBatcher is the slice of pgxpool.Pool the writer needs. Tests
// substitute a recording fake.
type dbBatcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Writer consumes book updates and trades from its buffers and batch
// inserts them. One Writer serves all venue connections.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger
	db     dbBatcher

	books  *Buffer[snapshotRow]
	trades *Buffer[tradeRow]

	batchMu       sync.Mutex
	snapshotBatch []snapshotRow
	tradeBatch    []tradeRow
	metrics       WriterMetrics

	ctx         context.Context
	cancel      context.CancelFunc
	flushTicker *time.Ticker
	wg          sync.WaitGroup
}

// NewWriter creates a snapshot writer on db.
func NewWriter(cfg WriterConfig, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		books:         NewBuffer[snapshotRow](cfg.BufferSize),
		trades:        NewBuffer[tradeRow](cfg.BufferSize),
		snapshotBatch: make([]snapshotRow, 0, cfg.BatchSize),
		tradeBatch:    make([]tradeRow, 0, cfg.BatchSize),
	}
}

// BookSink returns a callback that enqueues book updates for venue.
// Safe to install as a connection's book tap; it never blocks.
func (w *Writer) BookSink(venue string) func(u book.Update) {
	return func(u book.Update) {
		bids, err := json.Marshal(u.Bids)
		if err != nil {
			w.logger.Error("marshal bids", "error", err, "asset", u.AssetID)
			return
		}
		asks, err := json.Marshal(u.Asks)
		if err != nil {
			w.logger.Error("marshal asks", "error", err, "asset", u.AssetID)
			return
		}

		row := snapshotRow{
			Venue:      venue,
			MarketID:   u.MarketID,
			AssetID:    u.AssetID,
			Kind:       string(u.Kind),
			ExchangeTs: u.Timestamp,
			ReceivedAt: time.Now().UnixMilli(),
			Bids:       bids,
			Asks:       asks,
		}
		if best, ok := u.BestBid(); ok {
			row.BestBid = best.Price
		}
		if best, ok := u.BestAsk(); ok {
			row.BestAsk = best.Price
		}
		w.books.Push(row)
	}
}

// TradeSink returns a callback that enqueues fills for venue.
func (w *Writer) TradeSink(venue string) func(t model.Trade) {
	return func(t model.Trade) {
		w.trades.Push(tradeRow{
			EventID:         t.EventID.String(),
			Venue:           venue,
			OrderID:         t.OrderID,
			MarketID:        t.MarketID,
			AssetID:         t.AssetID,
			Side:            string(t.Side),
			Price:           t.Price,
			Size:            t.Size,
			Fee:             t.Fee,
			TransactionHash: t.TransactionHash,
			Timestamp:       t.Timestamp,
		})
	}
}

// Start begins consuming and flushing.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("snapshot writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains and shuts down the writer. ctx bounds the wait.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping snapshot writer")

	w.books.Close()
	w.trades.Close()
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("snapshot writer stopped")
	case <-ctx.Done():
		w.logger.Warn("snapshot writer stop timed out")
	}

	// Final flush runs under the caller's context; w.ctx is already
	// cancelled and would fail every insert.
	w.flush(ctx)
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		row, gotRow := w.books.TryPop()
		trade, gotTrade := w.trades.TryPop()

		if !gotRow && !gotTrade {
			select {
			case <-w.ctx.Done():
				// Rows can land between the empty check and the cancel;
				// move any residue into the batches before exiting so
				// Stop's final flush sees them.
				w.drainResidue()
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		var shouldFlush bool
		w.batchMu.Lock()
		if gotRow {
			w.snapshotBatch = append(w.snapshotBatch, row)
		}
		if gotTrade {
			w.tradeBatch = append(w.tradeBatch, trade)
		}
		shouldFlush = len(w.snapshotBatch) >= w.cfg.BatchSize || len(w.tradeBatch) >= w.cfg.BatchSize
		w.batchMu.Unlock()

		if shouldFlush {
			w.flush(w.ctx)
		}
	}
}

// drainResidue empties both buffers into the pending batches.
func (w *Writer) drainResidue() {
	rows := w.books.Drain(0)
	trades := w.trades.Drain(0)
	if len(rows) == 0 && len(trades) == 0 {
		return
	}
	w.batchMu.Lock()
	w.snapshotBatch = append(w.snapshotBatch, rows...)
	w.tradeBatch = append(w.tradeBatch, trades...)
	w.batchMu.Unlock()
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes both batches to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	snapshots := w.snapshotBatch
	trades := w.tradeBatch
	w.snapshotBatch = make([]snapshotRow, 0, w.cfg.BatchSize)
	w.tradeBatch = make([]tradeRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if len(snapshots) == 0 && len(trades) == 0 {
		return
	}

	start := time.Now()

	if len(snapshots) > 0 {
		conflicts, err := w.batchInsertSnapshots(ctx, snapshots)
		w.batchMu.Lock()
		if err != nil {
			w.metrics.SnapshotErrors++
		} else {
			w.metrics.SnapshotInserts += int64(len(snapshots) - conflicts)
			w.metrics.SnapshotConflicts += int64(conflicts)
		}
		w.batchMu.Unlock()
		if err != nil {
			w.logger.Error("snapshot batch insert failed", "error", err, "count", len(snapshots))
		}
	}

	if len(trades) > 0 {
		err := w.batchInsertTrades(ctx, trades)
		w.batchMu.Lock()
		if err != nil {
			w.metrics.TradeErrors++
		} else {
			w.metrics.TradeInserts += int64(len(trades))
		}
		w.batchMu.Unlock()
		if err != nil {
			w.logger.Error("trade batch insert failed", "error", err, "count", len(trades))
		}
	}

	w.batchMu.Lock()
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed",
		"snapshots", len(snapshots),
		"trades", len(trades),
		"duration", time.Since(start),
	)
}

func (w *Writer) batchInsertSnapshots(ctx context.Context, rows []snapshotRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO book_snapshots (venue, market_id, asset_id, kind, exchange_ts, received_at, best_bid, best_ask, bids, asks)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (venue, asset_id, exchange_ts, kind) DO NOTHING
		`, r.Venue, r.MarketID, r.AssetID, r.Kind, r.ExchangeTs, r.ReceivedAt, r.BestBid, r.BestAsk, r.Bids, r.Asks)
	}

	results := w.db.SendBatch(ctx, batch)
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

func (w *Writer) batchInsertTrades(ctx context.Context, rows []tradeRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO trades (event_id, venue, order_id, market_id, asset_id, side, price, size, fee, transaction_hash, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (event_id) DO NOTHING
		`, r.EventID, r.Venue, r.OrderID, r.MarketID, r.AssetID, r.Side, r.Price, r.Size, r.Fee, r.TransactionHash, r.Timestamp)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
