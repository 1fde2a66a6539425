package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"apples-watch/internal/offers"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertSelectionSQL = `INSERT INTO offers (
        snapshot_ts,
        run_id,
        supplier,
        price_dollars_per_kwh,
        rate_type,
        term_months,
        etf,
        etf_amount,
        monthly_fee,
        monthly_fee_amount,
        renewable,
        promo,
        intro_price,
        url,
        selection_type
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
    );`

	selectionColumns = `
        id,
        snapshot_ts,
        COALESCE(run_id, ''),
        supplier,
        price_dollars_per_kwh::text,
        COALESCE(rate_type, ''),
        term_months,
        etf,
        etf_amount::text,
        monthly_fee,
        monthly_fee_amount::text,
        renewable,
        promo,
        intro_price,
        url,
        selection_type,
        created_at`

	listRecentSelectionsSQL = `SELECT` + selectionColumns + `
    FROM offers
    ORDER BY snapshot_ts DESC, id
    LIMIT $1;`

	listSelectionsBetweenSQL = `SELECT` + selectionColumns + `
    FROM offers
    WHERE snapshot_ts >= $1
      AND snapshot_ts < $2
      AND ($3::text = '' OR selection_type = $3::text)
    ORDER BY snapshot_ts, id;`

	countSelectionsSQL = `SELECT COUNT(*) FROM offers;`
)

// querier is satisfied by both *pgx.Conn and *pgxpool.Pool.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SelectionStore defines read access to the selection history.
type SelectionStore interface {
	ListRecentSelections(ctx context.Context, limit int) ([]SelectionRecord, error)
	ListSelectionsBetween(ctx context.Context, from, to time.Time, selectionType offers.SelectionType) ([]SelectionRecord, error)
	CountSelections(ctx context.Context) (int64, error)
}

// Store serves reporting queries from a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// AppendSelections inserts records in a single transaction.
func (s *Store) AppendSelections(ctx context.Context, records []SelectionRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return appendSelections(ctx, pool, records)
}

// ListRecentSelections lists the most recent rows, newest snapshot first.
func (s *Store) ListRecentSelections(ctx context.Context, limit int) ([]SelectionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSelectionsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent selections: %w", queryErr)
	}
	return collectSelections(rows)
}

// ListSelectionsBetween lists rows inside [from, to). An empty selectionType matches both kinds.
func (s *Store) ListSelectionsBetween(ctx context.Context, from, to time.Time, selectionType offers.SelectionType) ([]SelectionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSelectionsBetweenSQL, from, to, string(selectionType))
	if queryErr != nil {
		return nil, fmt.Errorf("list selections between: %w", queryErr)
	}
	return collectSelections(rows)
}

// CountSelections counts stored rows.
func (s *Store) CountSelections(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSelectionsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count selections: %w", scanErr)
	}
	return count, nil
}

func appendSelections(ctx context.Context, q querier, records []SelectionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(insertSelectionSQL, insertArgs(rec)...)
	}
	results := tx.SendBatch(ctx, batch)
	for range records {
		if _, execErr := results.Exec(); execErr != nil {
			_ = results.Close()
			return fmt.Errorf("insert selection: %w", execErr)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertArgs(rec SelectionRecord) []any {
	var term any
	if rec.TermMonths != nil {
		term = *rec.TermMonths
	}
	return []any{
		rec.SnapshotTS,
		rec.RunID,
		rec.Supplier,
		rec.Price.String(),
		rec.RateType,
		term,
		rec.ETF,
		decimalText(rec.ETFAmount),
		rec.MonthlyFee,
		decimalText(rec.MonthlyFeeAmount),
		rec.Renewable,
		rec.Promo,
		rec.IntroPrice,
		rec.URL,
		string(rec.SelectionType),
	}
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func collectSelections(rows pgx.Rows) ([]SelectionRecord, error) {
	defer rows.Close()

	records := make([]SelectionRecord, 0)
	for rows.Next() {
		rec, scanErr := scanSelection(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanSelection(rows pgx.Rows) (SelectionRecord, error) {
	var (
		rec           SelectionRecord
		priceStr      string
		term          *int32
		etfAmount     *string
		monthlyAmount *string
		selType       string
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.SnapshotTS,
		&rec.RunID,
		&rec.Supplier,
		&priceStr,
		&rec.RateType,
		&term,
		&rec.ETF,
		&etfAmount,
		&rec.MonthlyFee,
		&monthlyAmount,
		&rec.Renewable,
		&rec.Promo,
		&rec.IntroPrice,
		&rec.URL,
		&selType,
		&rec.CreatedAt,
	); err != nil {
		return SelectionRecord{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return SelectionRecord{}, fmt.Errorf("parse price: %w", err)
	}
	rec.Price = price
	rec.SelectionType = offers.SelectionType(selType)

	if term != nil {
		months := int(*term)
		rec.TermMonths = &months
	}
	if rec.ETFAmount, err = parseOptionalDecimal(etfAmount); err != nil {
		return SelectionRecord{}, fmt.Errorf("parse etf amount: %w", err)
	}
	if rec.MonthlyFeeAmount, err = parseOptionalDecimal(monthlyAmount); err != nil {
		return SelectionRecord{}, fmt.Errorf("parse monthly fee amount: %w", err)
	}
	return rec, nil
}

func parseOptionalDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
