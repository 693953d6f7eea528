package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/elys-network/joint/internal/types"
	"github.com/rs/zerolog/log"
)

const (
	ledgerPrefix   = "ledger/"
	instancePrefix = "instance/"
	reportPrefix   = "report/"
)

// BadgerStore implements Store on an embedded badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens a store at path. An empty path opens an in-memory store.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}
	log.Info().Str("path", path).Bool("in_memory", path == "").Msg("Badger store opened")
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Ping(_ context.Context) error {
	if s.db == nil || s.db.IsClosed() {
		return ErrStoreClosed
	}
	return nil
}

// Reset deletes every instance, ledger and report.
func (s *BadgerStore) Reset() error {
	if s.db == nil || s.db.IsClosed() {
		return ErrStoreClosed
	}
	return s.db.DropAll()
}

func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

func ledgerKey(id string) []byte   { return []byte(ledgerPrefix + id) }
func instanceKey(id string) []byte { return []byte(instancePrefix + id) }

func reportKeyPrefix(id string) []byte { return []byte(reportPrefix + id + "/") }

// Reports sort by start time inside the instance prefix.
func reportKey(r types.OperationReport) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%s", reportPrefix, r.InstanceID, r.StartedAt.UnixNano(), r.OperationID))
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, payload)
}

func (s *BadgerStore) LoadLedger(_ context.Context, instanceID string) (types.Ledger, error) {
	var ledger types.Ledger
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, ledgerKey(instanceID), &ledger)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return types.Ledger{}, fmt.Errorf("%w: %s", ErrLedgerNotFound, instanceID)
	}
	if err != nil {
		return types.Ledger{}, fmt.Errorf("failed to load ledger %s: %w", instanceID, err)
	}
	return ledger, nil
}

func (s *BadgerStore) SaveLedger(_ context.Context, ledger types.Ledger) (types.Ledger, error) {
	if err := ledger.Validate(); err != nil {
		return types.Ledger{}, err
	}
	var committed types.Ledger
	err := s.db.Update(func(txn *badger.Txn) error {
		var stored types.Ledger
		if err := getJSON(txn, ledgerKey(ledger.InstanceID), &stored); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrLedgerNotFound, ledger.InstanceID)
			}
			return err
		}
		if stored.Version != ledger.Version {
			return fmt.Errorf("%w: %s stored version %d, staged from %d",
				ErrLedgerConflict, ledger.InstanceID, stored.Version, ledger.Version)
		}
		committed = nextVersion(ledger)
		return setJSON(txn, ledgerKey(ledger.InstanceID), committed)
	})
	if errors.Is(err, badger.ErrConflict) {
		return types.Ledger{}, fmt.Errorf("%w: %s", ErrLedgerConflict, ledger.InstanceID)
	}
	if err != nil {
		return types.Ledger{}, err
	}
	return committed, nil
}

func (s *BadgerStore) CreateInstance(_ context.Context, inst types.Instance, ledger types.Ledger) (types.Ledger, error) {
	if err := inst.Validate(); err != nil {
		return types.Ledger{}, err
	}
	if err := ledger.Validate(); err != nil {
		return types.Ledger{}, err
	}
	var committed types.Ledger
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(instanceKey(inst.ID))
		if err == nil {
			return fmt.Errorf("%w: %s", ErrInstanceExists, inst.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, instanceKey(inst.ID), inst); err != nil {
			return err
		}
		committed = nextVersion(ledger)
		committed.Version = 1
		return setJSON(txn, ledgerKey(inst.ID), committed)
	})
	if err != nil {
		return types.Ledger{}, err
	}
	return committed, nil
}

func (s *BadgerStore) LoadInstance(_ context.Context, instanceID string) (types.Instance, error) {
	var inst types.Instance
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, instanceKey(instanceID), &inst)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return types.Instance{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}
	if err != nil {
		return types.Instance{}, fmt.Errorf("failed to load instance %s: %w", instanceID, err)
	}
	return inst, nil
}

func (s *BadgerStore) UpdateInstance(_ context.Context, inst types.Instance) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(instanceKey(inst.ID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrInstanceNotFound, inst.ID)
			}
			return err
		}
		return setJSON(txn, instanceKey(inst.ID), inst)
	})
}

func (s *BadgerStore) ListInstances(_ context.Context) ([]types.Instance, error) {
	var out []types.Instance
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(instancePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var inst types.Instance
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &inst)
			}); err != nil {
				return err
			}
			out = append(out, inst)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) SaveReport(_ context.Context, report types.OperationReport) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, reportKey(report), report)
	})
}

func (s *BadgerStore) reports(instanceID string, limit int) ([]types.OperationReport, error) {
	var out []types.OperationReport
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := reportKeyPrefix(instanceID)
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var r types.OperationReport
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				log.Error().Err(err).Str("key", string(it.Item().Key())).Msg("Failed to decode report")
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) RecentReports(_ context.Context, instanceID string, limit int) ([]types.OperationReport, error) {
	return s.reports(instanceID, clampLimit(limit))
}

func (s *BadgerStore) Summary(_ context.Context, instanceID string) (ReportSummary, error) {
	all, err := s.reports(instanceID, 0)
	if err != nil {
		return ReportSummary{}, err
	}
	return summarize(instanceID, all), nil
}

var _ Store = (*BadgerStore)(nil)
