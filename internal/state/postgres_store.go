package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/types"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store on top of the shared connection pool.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open pool, normally the global DB after InitDB.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, ErrStoreClosed
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool is owned by InitDB/CloseDB.
func (s *PostgresStore) Close() error {
	return nil
}

const selectLedgerSQL = `
	SELECT contributed_a::text, contributed_b::text, call_id::text, put_id::text,
		hedge_budget_bps, hedge_moneyness_bps, hedge_period_seconds, min_time_to_maturity_seconds,
		cycle, invested_at, version, updated_at
	FROM joint_ledgers
	WHERE instance_id = $1`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedger(instanceID string, row rowScanner) (types.Ledger, error) {
	var (
		contributedA, contributedB, callID, putID string
		budget, moneyness                         int64
		periodSeconds, maturitySeconds            int64
		investedAt                                sql.NullTime
	)
	ledger := types.Ledger{InstanceID: instanceID}
	err := row.Scan(
		&contributedA, &contributedB, &callID, &putID,
		&budget, &moneyness, &periodSeconds, &maturitySeconds,
		&ledger.Cycle, &investedAt, &ledger.Version, &ledger.UpdatedAt,
	)
	if err != nil {
		return types.Ledger{}, err
	}

	amounts := []*sdkmath.Int{&ledger.ContributedA, &ledger.ContributedB, &ledger.Hedge.CallID, &ledger.Hedge.PutID}
	for i, raw := range []string{contributedA, contributedB, callID, putID} {
		v, ok := sdkmath.NewIntFromString(raw)
		if !ok {
			return types.Ledger{}, fmt.Errorf("invalid numeric value %q in ledger %s", raw, instanceID)
		}
		*amounts[i] = v
	}
	ledger.Params = types.Parameters{
		HedgeBudgetBps:    uint32(budget),
		HedgeMoneynessBps: uint32(moneyness),
		HedgePeriod:       time.Duration(periodSeconds) * time.Second,
		MinTimeToMaturity: time.Duration(maturitySeconds) * time.Second,
	}
	if investedAt.Valid {
		ledger.InvestedAt = investedAt.Time
	}
	return ledger, nil
}

// LoadLedger loads the committed ledger of an instance.
func (s *PostgresStore) LoadLedger(ctx context.Context, instanceID string) (types.Ledger, error) {
	ledger, err := scanLedger(instanceID, s.db.QueryRowContext(ctx, selectLedgerSQL, instanceID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Ledger{}, fmt.Errorf("%w: %s", ErrLedgerNotFound, instanceID)
	}
	if err != nil {
		return types.Ledger{}, fmt.Errorf("failed to load ledger %s: %w", instanceID, err)
	}
	return ledger, nil
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// SaveLedger commits a ledger with an optimistic version check under a row lock.
func (s *PostgresStore) SaveLedger(ctx context.Context, ledger types.Ledger) (committed types.Ledger, err error) {
	if err := ledger.Validate(); err != nil {
		return types.Ledger{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Ledger{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	var stored uint64
	err = tx.QueryRowContext(ctx, `SELECT version FROM joint_ledgers WHERE instance_id = $1 FOR UPDATE;`, ledger.InstanceID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Ledger{}, fmt.Errorf("%w: %s", ErrLedgerNotFound, ledger.InstanceID)
	}
	if err != nil {
		return types.Ledger{}, fmt.Errorf("failed to lock ledger %s: %w", ledger.InstanceID, err)
	}
	if stored != ledger.Version {
		err = fmt.Errorf("%w: %s stored version %d, staged from %d", ErrLedgerConflict, ledger.InstanceID, stored, ledger.Version)
		return types.Ledger{}, err
	}

	committed = nextVersion(ledger)
	_, err = tx.ExecContext(ctx, `
		UPDATE joint_ledgers SET
			contributed_a = $2, contributed_b = $3, call_id = $4, put_id = $5,
			hedge_budget_bps = $6, hedge_moneyness_bps = $7, hedge_period_seconds = $8, min_time_to_maturity_seconds = $9,
			cycle = $10, invested_at = $11, version = $12, updated_at = $13
		WHERE instance_id = $1;`,
		committed.InstanceID,
		committed.ContributedA.String(), committed.ContributedB.String(),
		committed.Hedge.CallID.String(), committed.Hedge.PutID.String(),
		committed.Params.HedgeBudgetBps, committed.Params.HedgeMoneynessBps,
		int64(committed.Params.HedgePeriod/time.Second), int64(committed.Params.MinTimeToMaturity/time.Second),
		committed.Cycle, nullableTime(committed.InvestedAt), committed.Version, committed.UpdatedAt,
	)
	if err != nil {
		return types.Ledger{}, fmt.Errorf("failed to update ledger %s: %w", ledger.InstanceID, err)
	}

	if err = tx.Commit(); err != nil {
		return types.Ledger{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Debug().
		Str("instance", committed.InstanceID).
		Uint64("version", committed.Version).
		Str("state", string(committed.State())).
		Msg("Ledger committed")
	return committed, nil
}

// CreateInstance inserts the identity and the initial ledger in one transaction.
func (s *PostgresStore) CreateInstance(ctx context.Context, inst types.Instance, ledger types.Ledger) (committed types.Ledger, err error) {
	if err := inst.Validate(); err != nil {
		return types.Ledger{}, err
	}
	if err := ledger.Validate(); err != nil {
		return types.Ledger{}, err
	}
	definition, err := json.Marshal(inst)
	if err != nil {
		return types.Ledger{}, fmt.Errorf("failed to marshal instance: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Ledger{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO joint_instances (instance_id, definition) VALUES ($1, $2) ON CONFLICT (instance_id) DO NOTHING;`,
		inst.ID, definition)
	if err != nil {
		return types.Ledger{}, fmt.Errorf("failed to insert instance %s: %w", inst.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return types.Ledger{}, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		err = fmt.Errorf("%w: %s", ErrInstanceExists, inst.ID)
		return types.Ledger{}, err
	}

	committed = nextVersion(ledger)
	committed.Version = 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO joint_ledgers (
			instance_id, contributed_a, contributed_b, call_id, put_id,
			hedge_budget_bps, hedge_moneyness_bps, hedge_period_seconds, min_time_to_maturity_seconds,
			cycle, invested_at, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`,
		committed.InstanceID,
		committed.ContributedA.String(), committed.ContributedB.String(),
		committed.Hedge.CallID.String(), committed.Hedge.PutID.String(),
		committed.Params.HedgeBudgetBps, committed.Params.HedgeMoneynessBps,
		int64(committed.Params.HedgePeriod/time.Second), int64(committed.Params.MinTimeToMaturity/time.Second),
		committed.Cycle, nullableTime(committed.InvestedAt), committed.Version, committed.UpdatedAt,
	)
	if err != nil {
		return types.Ledger{}, fmt.Errorf("failed to insert ledger %s: %w", inst.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return types.Ledger{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	log.Info().Str("instance", inst.ID).Msg("Instance created")
	return committed, nil
}

func (s *PostgresStore) LoadInstance(ctx context.Context, instanceID string) (types.Instance, error) {
	var definition []byte
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM joint_instances WHERE instance_id = $1;`, instanceID).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Instance{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}
	if err != nil {
		return types.Instance{}, fmt.Errorf("failed to load instance %s: %w", instanceID, err)
	}
	var inst types.Instance
	if err := json.Unmarshal(definition, &inst); err != nil {
		return types.Instance{}, fmt.Errorf("failed to unmarshal instance %s: %w", instanceID, err)
	}
	return inst, nil
}

func (s *PostgresStore) UpdateInstance(ctx context.Context, inst types.Instance) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	definition, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE joint_instances SET definition = $2 WHERE instance_id = $1;`, inst.ID, definition)
	if err != nil {
		return fmt.Errorf("failed to update instance %s: %w", inst.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, inst.ID)
	}
	return nil
}

func (s *PostgresStore) ListInstances(ctx context.Context) ([]types.Instance, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM joint_instances ORDER BY created_at;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var out []types.Instance
	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("failed to scan instance row: %w", err)
		}
		var inst types.Instance
		if err := json.Unmarshal(definition, &inst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// SaveReport stores an operation report as JSONB.
func (s *PostgresStore) SaveReport(ctx context.Context, report types.OperationReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operation_reports (operation_id, instance_id, operation, success, started_at, completed_at, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`,
		report.OperationID, report.InstanceID, report.Operation, report.Success,
		report.StartedAt, report.CompletedAt, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.OperationID, err)
	}
	return nil
}

func (s *PostgresStore) RecentReports(ctx context.Context, instanceID string, limit int) ([]types.OperationReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report FROM operation_reports
		WHERE instance_id = $1
		ORDER BY started_at DESC
		LIMIT $2;`, instanceID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []types.OperationReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			log.Error().Err(err).Msg("Failed to scan report row")
			continue // Skip this row and continue with others
		}
		var report types.OperationReport
		if err := json.Unmarshal(payload, &report); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal report")
			continue
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (s *PostgresStore) Summary(ctx context.Context, instanceID string) (ReportSummary, error) {
	summary := ReportSummary{InstanceID: instanceID}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT success),
			COUNT(*) FILTER (WHERE operation = 'invest'),
			COUNT(*) FILTER (WHERE operation = 'harvest')
		FROM operation_reports
		WHERE instance_id = $1;`, instanceID).Scan(
		&summary.TotalOperations, &summary.FailedOperations, &summary.Invests, &summary.Harvests,
	)
	if err != nil {
		return ReportSummary{}, fmt.Errorf("failed to summarize reports: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT operation, started_at FROM operation_reports
		WHERE instance_id = $1
		ORDER BY started_at DESC
		LIMIT 1;`, instanceID).Scan(&summary.LastOperation, &summary.LastOperationAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ReportSummary{}, fmt.Errorf("failed to load last operation: %w", err)
	}
	return summary, nil
}

var _ Store = (*PostgresStore)(nil)
