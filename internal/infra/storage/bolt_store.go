package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

var (
	sessionBucket = []byte("session")
	versionKey    = []byte("version")
	payloadKey    = []byte("payload")
)

// BoltSessionStore keeps the saved session in a bbolt file. It is the alternative to
// the sqlite store for deployments that want a single embedded key/value file.
type BoltSessionStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bolt file at path.
func OpenBolt(path string) (*BoltSessionStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt file: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &BoltSessionStore{db: db}, nil
}

func (s *BoltSessionStore) SaveBlob(ctx context.Context, version int, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		v := make([]byte, 8)
		binary.BigEndian.PutUint64(v, uint64(version))
		if err := b.Put(versionKey, v); err != nil {
			return err
		}
		return b.Put(payloadKey, payload)
	})
	metrics.Get().RecordSessionSave(err)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *BoltSessionStore) LoadBlob(ctx context.Context) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	var version int
	var payload []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		v, p := b.Get(versionKey), b.Get(payloadKey)
		if v == nil || p == nil {
			return simerr.New(simerr.CodeNotFound, "bolt.LoadBlob", "no session saved")
		}
		version = int(binary.BigEndian.Uint64(v))
		// values are only valid inside the transaction
		payload = append([]byte(nil), p...)
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return version, payload, nil
}

// Close releases the file lock.
func (s *BoltSessionStore) Close() error {
	return s.db.Close()
}
