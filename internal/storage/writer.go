package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"apples-watch/internal/offers"
)

// RunWriter appends a snapshot's selections over a connection opened for the write only.
type RunWriter struct {
	dsn            string
	connectTimeout time.Duration
	logger         zerolog.Logger
	connect        func(ctx context.Context, dsn string) (conn, error)
}

// conn is the subset of *pgx.Conn the writer needs.
type conn interface {
	querier
	Close(ctx context.Context) error
}

// NewRunWriter builds the relational sink.
func NewRunWriter(dsn string, connectTimeout time.Duration, logger zerolog.Logger) *RunWriter {
	return &RunWriter{
		dsn:            dsn,
		connectTimeout: connectTimeout,
		logger:         logger.With().Str("component", "postgres_writer").Logger(),
		connect: func(ctx context.Context, dsn string) (conn, error) {
			return pgx.Connect(ctx, dsn)
		},
	}
}

// Name identifies the sink in logs and metrics.
func (w *RunWriter) Name() string { return "postgres" }

// WriteSnapshot opens a connection, appends every selection in one transaction and
// closes the connection on all paths.
func (w *RunWriter) WriteSnapshot(ctx context.Context, snap offers.Snapshot) error {
	records := RecordsFromSnapshot(snap)
	if len(records) == 0 {
		return nil
	}

	connectCtx := ctx
	if w.connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, w.connectTimeout)
		defer cancel()
	}

	c, err := w.connect(connectCtx, w.dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := c.Close(closeCtx); closeErr != nil {
			w.logger.Warn().Err(closeErr).Msg("close connection failed")
		}
	}()

	if err := appendSelections(ctx, c, records); err != nil {
		return err
	}
	w.logger.Debug().Str("run_id", snap.ID).Int("rows", len(records)).Msg("selections appended")
	return nil
}
