package flatstore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/cuemby/flatshard/pkg/flatstate"
	"github.com/cuemby/flatshard/pkg/metrics"
	bolt "go.etcd.io/bbolt"
)

// Bucket names, mirroring the teacher's one-bucket-per-entity layout in
// pkg/storage/boltdb.go, adapted to flat storage's three entities:
// per-shard status, per-shard values (in a nested bucket), and
// per-shard deltas (also nested, keyed by block hash).
var (
	bucketStatuses = []byte("flat_status")
	bucketValues   = []byte("flat_values")
	bucketDeltas   = []byte("flat_deltas")
)

// BoltStore implements Store using bbolt, the same engine the teacher
// embeds for cluster state.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the flat storage database
// under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "flatstorage.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("flatstore: failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketStatuses, bucketValues, bucketDeltas} {
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

func (s *BoltStore) Close() error { return s.db.Close() }

func shardKey(shard flatstate.ShardUID) []byte {
	return []byte(shard.String())
}

func (s *BoltStore) GetStatus(shard flatstate.ShardUID) (flatstate.Status, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.FlatStoreReadDuration, "get_status")

	var status flatstate.Status
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStatuses)
		data := b.Get(shardKey(shard))
		if data == nil {
			status = flatstate.Empty()
			return nil
		}
		return json.Unmarshal(data, &status)
	})
	if err != nil {
		return flatstate.Status{}, fmt.Errorf("%w: reading status for %s: %v", ErrInconsistent, shard, err)
	}
	return status, nil
}

func (s *BoltStore) Iter(shard flatstate.ShardUID) (Iterator, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.FlatStoreReadDuration, "iter")

	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("%w: opening read transaction: %v", ErrInconsistent, err)
	}
	values := tx.Bucket(bucketValues)
	shardBucket := values.Bucket(shardKey(shard))
	if shardBucket == nil {
		tx.Rollback()
		return &emptyIterator{}, nil
	}
	return &boltIterator{tx: tx, cursor: shardBucket.Cursor()}, nil
}

type emptyIterator struct{}

func (e *emptyIterator) Next() bool                      { return false }
func (e *emptyIterator) Key() []byte                     { return nil }
func (e *emptyIterator) Value() flatstate.FlatStateValue { return flatstate.FlatStateValue{} }
func (e *emptyIterator) Err() error                      { return nil }
func (e *emptyIterator) Close() error                    { return nil }

// boltIterator walks a shard's value bucket in key order using a bbolt
// cursor, which already iterates keys in byte-lexicographic order.
type boltIterator struct {
	tx     *bolt.Tx
	cursor *bolt.Cursor
	key    []byte
	value  flatstate.FlatStateValue
	err    error
	begun  bool
}

func (it *boltIterator) Next() bool {
	if it.err != nil {
		return false
	}
	var k, v []byte
	if !it.begun {
		it.begun = true
		k, v = it.cursor.First()
	} else {
		k, v = it.cursor.Next()
	}
	if k == nil {
		return false
	}
	var value flatstate.FlatStateValue
	if err := json.Unmarshal(v, &value); err != nil {
		it.err = fmt.Errorf("%w: decoding value for key %s: %v", ErrInconsistent, hex.EncodeToString(k), err)
		return false
	}
	it.key = append([]byte(nil), k...)
	it.value = value
	return true
}

func (it *boltIterator) Key() []byte                     { return it.key }
func (it *boltIterator) Value() flatstate.FlatStateValue { return it.value }
func (it *boltIterator) Err() error                      { return it.err }
func (it *boltIterator) Close() error                    { return it.tx.Rollback() }

func (s *BoltStore) GetDelta(shard flatstate.ShardUID, blockHash string) (flatstate.Delta, bool, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.FlatStoreReadDuration, "get_delta")

	var delta flatstate.Delta
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		deltas := tx.Bucket(bucketDeltas)
		shardBucket := deltas.Bucket(shardKey(shard))
		if shardBucket == nil {
			return nil
		}
		data := shardBucket.Get([]byte(blockHash))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &delta)
	})
	if err != nil {
		return flatstate.Delta{}, false, fmt.Errorf("%w: reading delta for %s/%s: %v", ErrInconsistent, shard, blockHash, err)
	}
	delta.BlockHash = blockHash
	return delta, found, nil
}

func (s *BoltStore) StoreUpdate() Update {
	tx, err := s.db.Begin(true)
	return &boltUpdate{tx: tx, openErr: err, timer: metrics.NewTimer()}
}

// boltUpdate accumulates writes inside a single bbolt write transaction,
// the batch object the spec calls for: all writes land atomically on
// Commit, or not at all.
type boltUpdate struct {
	tx      *bolt.Tx
	openErr error
	err     error
	timer   *metrics.Timer
}

func (u *boltUpdate) fail(err error) {
	if u.err == nil {
		u.err = err
	}
}

func (u *boltUpdate) valuesBucketFor(shard flatstate.ShardUID) *bolt.Bucket {
	if u.err != nil || u.tx == nil {
		return nil
	}
	values := u.tx.Bucket(bucketValues)
	b, err := values.CreateBucketIfNotExists(shardKey(shard))
	if err != nil {
		u.fail(fmt.Errorf("flatstore: creating value bucket for %s: %w", shard, err))
		return nil
	}
	return b
}

func (u *boltUpdate) deltasBucketFor(shard flatstate.ShardUID) *bolt.Bucket {
	if u.err != nil || u.tx == nil {
		return nil
	}
	deltas := u.tx.Bucket(bucketDeltas)
	b, err := deltas.CreateBucketIfNotExists(shardKey(shard))
	if err != nil {
		u.fail(fmt.Errorf("flatstore: creating delta bucket for %s: %w", shard, err))
		return nil
	}
	return b
}

func (u *boltUpdate) SetStatus(shard flatstate.ShardUID, status flatstate.Status) {
	if u.err != nil || u.tx == nil {
		return
	}
	data, err := json.Marshal(status)
	if err != nil {
		u.fail(fmt.Errorf("flatstore: encoding status: %w", err))
		return
	}
	b := u.tx.Bucket(bucketStatuses)
	if err := b.Put(shardKey(shard), data); err != nil {
		u.fail(fmt.Errorf("flatstore: writing status for %s: %w", shard, err))
	}
}

func (u *boltUpdate) Set(shard flatstate.ShardUID, key []byte, value *flatstate.FlatStateValue) {
	b := u.valuesBucketFor(shard)
	if b == nil {
		return
	}
	if value == nil {
		if err := b.Delete(key); err != nil {
			u.fail(fmt.Errorf("flatstore: deleting key in %s: %w", shard, err))
		}
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		u.fail(fmt.Errorf("flatstore: encoding value: %w", err))
		return
	}
	if err := b.Put(key, data); err != nil {
		u.fail(fmt.Errorf("flatstore: writing key in %s: %w", shard, err))
	}
}

func (u *boltUpdate) SetDelta(shard flatstate.ShardUID, delta flatstate.Delta) {
	b := u.deltasBucketFor(shard)
	if b == nil {
		return
	}
	data, err := json.Marshal(delta)
	if err != nil {
		u.fail(fmt.Errorf("flatstore: encoding delta: %w", err))
		return
	}
	if err := b.Put([]byte(delta.BlockHash), data); err != nil {
		u.fail(fmt.Errorf("flatstore: writing delta for %s: %w", shard, err))
	}
}

func (u *boltUpdate) clearNestedBucket(parent []byte, shard flatstate.ShardUID) {
	if u.err != nil || u.tx == nil {
		return
	}
	p := u.tx.Bucket(parent)
	if p.Bucket(shardKey(shard)) == nil {
		return
	}
	if err := p.DeleteBucket(shardKey(shard)); err != nil {
		u.fail(fmt.Errorf("flatstore: clearing bucket for %s: %w", shard, err))
	}
}

func (u *boltUpdate) RemoveAllValues(shard flatstate.ShardUID) {
	u.clearNestedBucket(bucketValues, shard)
}

func (u *boltUpdate) RemoveAllDeltas(shard flatstate.ShardUID) {
	u.clearNestedBucket(bucketDeltas, shard)
}

func (u *boltUpdate) RemoveFlatStorage(shard flatstate.ShardUID) {
	if u.err != nil || u.tx == nil {
		return
	}
	statuses := u.tx.Bucket(bucketStatuses)
	if err := statuses.Delete(shardKey(shard)); err != nil {
		u.fail(fmt.Errorf("flatstore: removing status for %s: %w", shard, err))
		return
	}
	u.RemoveAllValues(shard)
	u.RemoveAllDeltas(shard)
}

func (u *boltUpdate) Commit() error {
	if u.openErr != nil {
		return fmt.Errorf("%w: opening write transaction: %v", ErrInconsistent, u.openErr)
	}
	if u.err != nil {
		u.tx.Rollback()
		return u.err
	}
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing batch: %v", ErrInconsistent, err)
	}
	u.timer.ObserveDuration(metrics.FlatStoreCommitDuration)
	return nil
}

func (u *boltUpdate) Discard() {
	if u.tx != nil {
		u.tx.Rollback()
	}
}

// sortedKeys is a small helper used by the in-memory store (memstore.go)
// to reproduce bbolt's lexicographic key ordering guarantee.
func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
