package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"lockstats/internal/config"
	"lockstats/internal/domain"
	"lockstats/internal/metrics"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
)

var (
	ErrWriterClosed = errors.New("clickhouse writer closed")
	ErrQueueFull    = errors.New("clickhouse writer queue full")
)

type MovementRow struct {
	ID            string
	Class         string
	User          string
	Token         string
	Amount        *big.Int        // UInt256
	AmountUSD     decimal.Decimal // Decimal(76,18)
	BoostedAmount *big.Int        // UInt256, 0 when absent
	Time          time.Time
	BlockNumber   uint64
}

func NewMovementRow(mv *domain.Movement) MovementRow {
	boosted := mv.BoostedAmount
	if boosted == nil {
		boosted = new(big.Int)
	}
	return MovementRow{
		ID:            mv.ID,
		Class:         string(mv.Class),
		User:          mv.User,
		Token:         mv.Token,
		Amount:        new(big.Int).Set(mv.Amount),
		AmountUSD:     mv.AmountUSD,
		BoostedAmount: new(big.Int).Set(boosted),
		Time:          time.Unix(mv.Time, 0).UTC(),
		BlockNumber:   mv.BlockNumber,
	}
}

// subset of driver.Conn the writer needs
type batchConn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Ping(ctx context.Context) error
}

// Writer archives movements in batches off the hot path; failures are logged, never surfaced to the event
type Writer struct {
	log logger.Logger

	conn  batchConn
	cfg   config.ClickHouseWriterConfig
	query string

	inCh      chan MovementRow
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWriter(log logger.Logger, conn batchConn, cfg config.ClickHouseConfig) (*Writer, error) {
	if conn == nil {
		return nil, errors.New("clickhouse connection is required to the writer")
	}
	if err := validTable(cfg.Table); err != nil {
		return nil, err
	}

	wc := cfg.Writer
	// sane defaults
	if wc.QueueSize <= 0 {
		wc.QueueSize = 8192
	}
	if wc.BatchMaxRows <= 0 {
		wc.BatchMaxRows = 1000
	}
	if wc.BatchMaxInterval <= 0 {
		wc.BatchMaxInterval = 200 * time.Millisecond
	}
	if wc.MaxRetries < 0 {
		wc.MaxRetries = 0
	}
	if wc.RetryBackoff <= 0 {
		wc.RetryBackoff = 200 * time.Millisecond
	}

	w := &Writer{
		log:      log,
		conn:     conn,
		cfg:      wc,
		query:    insertMovementsSQL(cfg.Table),
		inCh:     make(chan MovementRow, wc.QueueSize),
		closedCh: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

// Enqueue never blocks the event pipeline
func (w *Writer) Enqueue(mv *domain.Movement) error {
	select {
	case <-w.closedCh:
		return ErrWriterClosed
	default:
	}

	select {
	case w.inCh <- NewMovementRow(mv):
		return nil
	default:
		metrics.ArchiveDropped.Inc()
		return ErrQueueFull
	}
}

func (w *Writer) Health(ctx context.Context) error {
	select {
	case <-w.closedCh:
		return ErrWriterClosed
	default:
	}
	return w.conn.Ping(ctx)
}

// Close stops accepting rows and flushes what is queued
func (w *Writer) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.closedCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	batch := make([]MovementRow, 0, w.cfg.BatchMaxRows)
	ticker := time.NewTicker(w.cfg.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		if err := w.insertBatch(context.Background(), batch); err != nil {
			metrics.ArchiveDropped.Add(float64(len(batch)))
			w.log.Errorf("Failed insert [%d] movements by batch to clickhouse, error=%v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case row := <-w.inCh:
			batch = append(batch, row)
			if len(batch) >= w.cfg.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.closedCh:
			for {
				select {
				case row := <-w.inCh:
					batch = append(batch, row)
					if len(batch) >= w.cfg.BatchMaxRows {
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

// insertBatch retries with exponential delay
func (w *Writer) insertBatch(ctx context.Context, rows []MovementRow) error {
	backoff := w.cfg.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if lastErr = w.insertOnce(ctx, rows); lastErr == nil {
			return nil
		}

		if attempt < w.cfg.MaxRetries {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	return lastErr
}

func (w *Writer) insertOnce(ctx context.Context, rows []MovementRow) error {
	batch, err := w.conn.PrepareBatch(ctx, w.query)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i := range rows {
		r := &rows[i]
		if err = batch.Append(
			r.ID,
			r.Class,
			r.User,
			r.Token,
			r.Amount,
			r.AmountUSD,
			r.BoostedAmount,
			r.Time,
			r.BlockNumber,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append %s: %w", r.ID, err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
