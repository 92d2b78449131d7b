package store

import (
	"context"
	"encoding/json"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/blocksense-network/agentfs/pkg/ids"
)

// BadgerStore persists snapshot/branch identity records in a badger KV
// database, grounded on the teacher's BadgerMetadataStore
// (pkg/metadata/store/badger/server.go): one db.Update/db.View transaction
// per call, JSON-encoded values behind a namespaced key.
type BadgerStore struct {
	db *badgerdb.DB
}

// OpenBadgerStore opens (creating if absent) a badger database at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger snapshot store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func snapshotKey(id string) []byte { return []byte("snapshot:" + id) }
func branchKey(id string) []byte   { return []byte("branch:" + id) }

const snapshotPrefix = "snapshot:"
const branchPrefix = "branch:"

func (s *BadgerStore) PutSnapshot(ctx context.Context, rec SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(snapshotKey(rec.ID), data)
	})
}

func (s *BadgerStore) DeleteSnapshot(ctx context.Context, id ids.SnapshotId) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		err := txn.Delete(snapshotKey(id.String()))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func (s *BadgerStore) ListSnapshots(ctx context.Context) ([]SnapshotRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []SnapshotRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(snapshotPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				var rec SnapshotRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				out = append(out, rec)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) PutBranch(ctx context.Context, rec BranchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(branchKey(rec.ID), data)
	})
}

func (s *BadgerStore) ListBranches(ctx context.Context) ([]BranchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []BranchRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(branchPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				var rec BranchRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				out = append(out, rec)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }
