package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"PriceOpt/internal/domain/models"
	"PriceOpt/internal/domain/repository"
	pkgch "PriceOpt/pkg/clickhouse"
	applogger "PriceOpt/pkg/logger"
)

const (
	observationsTable = "price_observations"
	decisionsTable    = "pricing_decisions"
)

// HistorySchema returns the DDL for the history tables in database.
func HistorySchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            product_id String,
            ts DateTime64(3, 'UTC'),
            price Float64,
            quantity Int64,
            revenue Float64
        ) ENGINE = MergeTree ORDER BY (product_id, ts)`, database, observationsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            product_id String,
            ts DateTime64(3, 'UTC'),
            old_price Float64,
            new_price Float64,
            expected_demand Float64,
            expected_revenue Float64,
            revenue_lift Float64
        ) ENGINE = MergeTree ORDER BY (product_id, ts)`, database, decisionsTable),
	}
}

// ClickHouseHistoryStore implements HistoryStore backed by ClickHouse.
type ClickHouseHistoryStore struct {
	client   *pkgch.Client
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewClickHouseHistoryStore(client *pkgch.Client) *ClickHouseHistoryStore {
	return &ClickHouseHistoryStore{client: client, db: client.DB(), database: client.Database()}
}

// SetLogger injects a structured logger.
func (s *ClickHouseHistoryStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *ClickHouseHistoryStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, HistorySchema(s.database))
}

func (s *ClickHouseHistoryStore) table(name string) string {
	return s.database + "." + name
}

// AppendObservations inserts all rows in one batch.
func (s *ClickHouseHistoryStore) AppendObservations(ctx context.Context, obs []models.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}
	err := s.batch(ctx, "INSERT INTO "+s.table(observationsTable), func(stmt *sql.Stmt) error {
		for _, o := range obs {
			if _, err := stmt.ExecContext(ctx, o.ProductID, o.Timestamp.UTC(), o.Price, int64(o.QuantitySold), o.Revenue); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logError("clickhouse append_observations error", err, applogger.Int("rows", len(obs)))
		return fmt.Errorf("append observations: %w", err)
	}
	return nil
}

func (s *ClickHouseHistoryStore) Observations(ctx context.Context, productID string, from, to time.Time, limit int) ([]models.PriceObservation, error) {
	if limit <= 0 {
		limit = 10000
	}
	q := fmt.Sprintf(`
        SELECT product_id, ts, price, quantity, revenue
        FROM %s
        WHERE product_id = ? AND ts >= ? AND ts <= ?
        ORDER BY ts DESC
        LIMIT ?`, s.table(observationsTable))
	rows, err := s.db.QueryContext(ctx, q, productID, from.UTC(), to.UTC(), limit)
	if err != nil {
		s.logError("clickhouse observations query error", err, applogger.String("product_id", productID))
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	out := make([]models.PriceObservation, 0, 256)
	for rows.Next() {
		var (
			o   models.PriceObservation
			qty int64
		)
		if err := rows.Scan(&o.ProductID, &o.Timestamp, &o.Price, &qty, &o.Revenue); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.QuantitySold = int(qty)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (s *ClickHouseHistoryStore) AppendDecision(ctx context.Context, rec models.PricingRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s (product_id, ts, old_price, new_price, expected_demand, expected_revenue, revenue_lift)
        VALUES (?, ?, ?, ?, ?, ?, ?)`, s.table(decisionsTable))
	_, err := s.db.ExecContext(ctx, q,
		rec.ProductID,
		rec.Timestamp.UTC(),
		rec.OldPrice,
		rec.NewPrice,
		rec.ExpectedDemand,
		rec.ExpectedRevenue,
		rec.RevenueLiftPercent,
	)
	if err != nil {
		s.logError("clickhouse append_decision error", err, applogger.String("product_id", rec.ProductID))
		return fmt.Errorf("append decision: %w", err)
	}
	return nil
}

func (s *ClickHouseHistoryStore) Decisions(ctx context.Context, productID string, limit int) ([]models.PricingRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	where, args := "", []any{}
	if productID != "" {
		where, args = "WHERE product_id = ?", append(args, productID)
	}
	q := fmt.Sprintf(`
        SELECT product_id, ts, old_price, new_price, expected_demand, expected_revenue, revenue_lift
        FROM %s %s
        ORDER BY ts DESC
        LIMIT ?`, s.table(decisionsTable), where)
	rows, err := s.db.QueryContext(ctx, q, append(args, limit)...)
	if err != nil {
		s.logError("clickhouse decisions query error", err, applogger.String("product_id", productID))
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []models.PricingRecord
	for rows.Next() {
		var r models.PricingRecord
		if err := rows.Scan(&r.ProductID, &r.Timestamp, &r.OldPrice, &r.NewPrice, &r.ExpectedDemand, &r.ExpectedRevenue, &r.RevenueLiftPercent); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (s *ClickHouseHistoryStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseHistoryStore) Close() error {
	return nil // client is closed by the app
}

// batch runs fn against a prepared insert inside a transaction; the driver
// sends the rows as one block on commit.
func (s *ClickHouseHistoryStore) batch(ctx context.Context, query string, fn func(*sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	if err := fn(stmt); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *ClickHouseHistoryStore) logError(msg string, err error, fields ...applogger.Field) {
	if s.l == nil {
		return
	}
	s.l.Error(msg, append(fields, applogger.Error(err))...)
}

var _ repository.HistoryStore = (*ClickHouseHistoryStore)(nil)
