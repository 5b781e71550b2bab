package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "jobs/"

// PersistentStore keeps job records in badger so status queries survive
// a restart. Opt-in via DATA_DIR; the default store is in-memory.
type PersistentStore struct {
	db *badger.DB
}

func NewPersistentStore(dataDir string) (*PersistentStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "badger"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &PersistentStore{db: db}, nil
}

func (s *PersistentStore) Close() error {
	return s.db.Close()
}

func (s *PersistentStore) Add(j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+j.ID), data)
	})
}

func (s *PersistentStore) Get(id string) (*Job, error) {
	var j Job
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &j)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// update applies fn to the stored record inside a single transaction so
// a concurrent reader never sees a partially written record.
func (s *PersistentStore) update(id string, fn func(j *Job)) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}
		var j Job
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &j)
		}); err != nil {
			return err
		}

		fn(&j)

		data, err := json.Marshal(&j)
		if err != nil {
			return err
		}
		return txn.Set([]byte(keyPrefix+id), data)
	})
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *PersistentStore) SetStatus(id string, status Status) error {
	return s.update(id, func(j *Job) {
		j.Status = status
	})
}

func (s *PersistentStore) SetExternalTask(id, taskID string) error {
	return s.update(id, func(j *Job) {
		j.ExternalTaskID = taskID
	})
}

func (s *PersistentStore) Complete(id, resultText, imageURL string) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.ResultText = resultText
		j.ImageURL = imageURL
		now := time.Now().UTC()
		j.CompletedAt = &now
	})
}

func (s *PersistentStore) Fail(id string, errMsg string) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = errMsg
		now := time.Now().UTC()
		j.CompletedAt = &now
	})
}

func (s *PersistentStore) Stats() (pending, processing, completed, failed int) {
	s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var j Job
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &j)
			}); err != nil {
				continue
			}
			switch j.Status {
			case StatusPending:
				pending++
			case StatusProcessing:
				processing++
			case StatusCompleted:
				completed++
			case StatusFailed:
				failed++
			}
		}
		return nil
	})
	return
}
