package state

import (
	"context"
	"errors"
	"time"

	"github.com/elys-network/joint/internal/types"
)

var (
	ErrLedgerNotFound   = errors.New("ledger not found")
	ErrLedgerConflict   = errors.New("ledger was modified by another operation")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrInstanceExists   = errors.New("instance already exists")
	ErrStoreClosed      = errors.New("store is not open")
)

// LedgerStore persists the ledger aggregate of every instance.
type LedgerStore interface {
	// LoadLedger returns the committed ledger of an instance.
	LoadLedger(ctx context.Context, instanceID string) (types.Ledger, error)

	// SaveLedger commits ledger if the stored version still equals ledger.Version and
	// returns the ledger with its new version. A mismatch yields ErrLedgerConflict.
	SaveLedger(ctx context.Context, ledger types.Ledger) (types.Ledger, error)
}

// InstanceStore persists instance identities.
type InstanceStore interface {
	// CreateInstance stores the identity and its initial ledger together.
	// It fails with ErrInstanceExists if the id is taken.
	CreateInstance(ctx context.Context, inst types.Instance, ledger types.Ledger) (types.Ledger, error)
	LoadInstance(ctx context.Context, instanceID string) (types.Instance, error)
	// UpdateInstance replaces the stored identity of an existing instance.
	UpdateInstance(ctx context.Context, inst types.Instance) error
	ListInstances(ctx context.Context) ([]types.Instance, error)
}

// ReportSummary aggregates the operation history of one instance.
type ReportSummary struct {
	InstanceID       string    `json:"instance_id"`
	TotalOperations  int       `json:"total_operations"`
	FailedOperations int       `json:"failed_operations"`
	Invests          int       `json:"invests"`
	Harvests         int       `json:"harvests"`
	LastOperation    string    `json:"last_operation,omitempty"`
	LastOperationAt  time.Time `json:"last_operation_at,omitempty"`
}

// ReportStore persists operation reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report types.OperationReport) error
	// RecentReports returns up to limit reports, newest first.
	RecentReports(ctx context.Context, instanceID string, limit int) ([]types.OperationReport, error)
	Summary(ctx context.Context, instanceID string) (ReportSummary, error)
}

// Store is the full persistence surface used by the keeper.
type Store interface {
	LedgerStore
	InstanceStore
	ReportStore
	Ping(ctx context.Context) error
	Close() error
}

const (
	defaultReportLimit = 20
	maxReportLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultReportLimit
	}
	if limit > maxReportLimit {
		return maxReportLimit
	}
	return limit
}

// nextVersion stamps a ledger for commit.
func nextVersion(ledger types.Ledger) types.Ledger {
	committed := ledger.Clone()
	committed.Version = ledger.Version + 1
	committed.UpdatedAt = time.Now().UTC()
	return committed
}

func summarize(instanceID string, reports []types.OperationReport) ReportSummary {
	s := ReportSummary{InstanceID: instanceID}
	for i, r := range reports {
		s.TotalOperations++
		if !r.Success {
			s.FailedOperations++
		}
		switch r.Operation {
		case types.OpInvest:
			s.Invests++
		case types.OpHarvest:
			s.Harvests++
		}
		if i == 0 {
			s.LastOperation = r.Operation
			s.LastOperationAt = r.StartedAt
		}
	}
	return s
}
