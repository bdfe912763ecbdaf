package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/herald/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketSubscriptions = []byte("subscriptions")
	bucketPeers         = []byte("peers")
)

// DatabaseFile is the journal file name inside the data directory
const DatabaseFile = "herald.db"

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, DatabaseFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSubscriptions, bucketPeers} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *BoltStore) Path() string {
	return s.db.Path()
}

// Subscription operations

// PutSubscription stores sub, replacing any entry with the same key
func (s *BoltStore) PutSubscription(sub *Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	sub.UpdatedAt = time.Now()
	return put(s.db, bucketSubscriptions, sub.Key(), sub)
}

func (s *BoltStore) GetSubscription(key string) (*Subscription, error) {
	var sub Subscription
	if err := get(s.db, bucketSubscriptions, key, &sub); err != nil {
		return nil, fmt.Errorf("subscription %s: %w", key, err)
	}
	return &sub, nil
}

func (s *BoltStore) ListSubscriptions() ([]*Subscription, error) {
	return list[Subscription](s.db, bucketSubscriptions, nil)
}

// ListSubscriptionsByProvider returns the subscriptions provided by the
// given address. Wildcard levels match any value.
func (s *BoltStore) ListSubscriptionsByProvider(provider types.Address) ([]*Subscription, error) {
	return list(s.db, bucketSubscriptions, func(sub *Subscription) bool {
		return sub.Provider.Matches(provider)
	})
}

func (s *BoltStore) DeleteSubscription(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubscriptions)
		return b.Delete([]byte(key))
	})
}

// Peer operations

func (s *BoltStore) PutPeer(peer *Peer) error {
	return put(s.db, bucketPeers, peer.Address.String(), peer)
}

func (s *BoltStore) GetPeer(addr types.Address) (*Peer, error) {
	var peer Peer
	if err := get(s.db, bucketPeers, addr.String(), &peer); err != nil {
		return nil, fmt.Errorf("peer %s: %w", addr, err)
	}
	return &peer, nil
}

func (s *BoltStore) ListPeers() ([]*Peer, error) {
	return list[Peer](s.db, bucketPeers, nil)
}

func (s *BoltStore) DeletePeer(addr types.Address) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeers)
		return b.Delete([]byte(addr.String()))
	})
}

func put(db *bolt.DB, bucket []byte, key string, v any) error {
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func get(db *bolt.DB, bucket []byte, key string, v any) error {
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		data := b.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, v)
	})
}

// list decodes every record of bucket in key order, keeping those accepted
// by keep (all when keep is nil)
func list[T any](db *bolt.DB, bucket []byte, keep func(*T) bool) ([]*T, error) {
	var out []*T
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		return b.ForEach(func(k, v []byte) error {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("failed to decode %s/%s: %w", bucket, k, err)
			}
			if keep == nil || keep(&item) {
				out = append(out, &item)
			}
			return nil
		})
	})
	return out, err
}
