package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/evanofslack/dns-ip-sync/internal/metrics"
)

const (
	recordPrefix = "record:"
	addressKey   = "address"
)

type Manager interface {
	LoadState(ctx context.Context) (State, error)
	SaveState(ctx context.Context, state State) error
	Close() error
}

type badgerManager struct {
	db      *badger.DB
	metrics *metrics.Metrics
}

func New(path string, metrics *metrics.Metrics) (Manager, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable Badger's internal logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	m := &badgerManager{db: db, metrics: metrics}
	return m, nil
}

func (m *badgerManager) LoadState(ctx context.Context) (State, error) {
	state := State{
		Records: make(map[string]RecordState),
	}

	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(addressKey))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			err := item.Value(func(val []byte) error {
				var addr addressState
				if err := json.Unmarshal(val, &addr); err != nil {
					return err
				}
				state.Address = addr.Address
				state.UpdatedAt = addr.UpdatedAt
				return nil
			})
			if err != nil {
				return err
			}
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(recordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			name := string(item.Key())[len(recordPrefix):]

			err := item.Value(func(val []byte) error {
				var record RecordState
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				state.Records[name] = record
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	m.metrics.IncBadgerRequest("read", err == nil)
	return state, err
}

// SaveState replaces the stored ledger with state. Records absent from state
// are removed.
func (m *badgerManager) SaveState(ctx context.Context, state State) error {
	txn := m.db.NewTransaction(true)
	defer txn.Discard()

	existing := make(map[string]bool)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	prefix := []byte(recordPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		existing[string(it.Item().Key())[len(recordPrefix):]] = true
	}
	it.Close()

	addr, err := json.Marshal(addressState{Address: state.Address, UpdatedAt: state.UpdatedAt})
	if err != nil {
		m.metrics.IncBadgerRequest("update", false)
		return err
	}
	if err := txn.Set([]byte(addressKey), addr); err != nil {
		m.metrics.IncBadgerRequest("update", false)
		return err
	}

	for name, record := range state.Records {
		data, err := json.Marshal(record)
		if err != nil {
			m.metrics.IncBadgerRequest("update", false)
			return err
		}
		if err := txn.Set([]byte(recordPrefix+name), data); err != nil {
			m.metrics.IncBadgerRequest("update", false)
			return err
		}
		delete(existing, name)
	}

	for name := range existing {
		if err := txn.Delete([]byte(recordPrefix + name)); err != nil {
			m.metrics.IncBadgerRequest("update", false)
			return err
		}
	}
	err = txn.Commit()
	m.metrics.IncBadgerRequest("update", err == nil)
	return err
}

func (m *badgerManager) Close() error {
	return m.db.Close()
}
