// Package checkpoint periodically persists enough chain state to a
// local bbolt database to resume an interrupted MCMC run, without
// affecting the statistical procedure itself.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

var log = logging.MustGetLogger("checkpoint")

// bucketName is the bolt bucket every Store's snapshots live in.
var bucketName = []byte("pfdeconv-chain")

// DefaultRetain is the number of most recent snapshots a Store keeps
// for a given key before pruning older ones on Save.
const DefaultRetain = 3

// Data stores the minimum state needed to resume a chain: the
// iteration reached, the RNG seed the chain was started with, the
// current strain proportions, and the running numeric-underflow
// counter.
type Data struct {
	Iteration int
	Seed      int64
	Pi        []float64
	Underflow int
	Final     bool
}

// Store saves and loads versioned chain snapshots under key. Save
// itself is not throttled: Old reports whether `seconds` of wall time
// have passed since the last Save, for callers that want to save at
// most that often. Every Save keeps
// the `retain` most recent snapshots and prunes anything older, so a
// truncated or corrupt latest write can't take every prior checkpoint
// down with it -- Load walks backward from the newest snapshot and
// falls back to the next-most-recent one if a snapshot fails to
// unmarshal.
type Store struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
	retain  int
}

// NewStore creates a Store retaining DefaultRetain snapshots per key.
func NewStore(db *bolt.DB, key []byte, seconds float64) *Store {
	return &Store{db: db, key: key, seconds: seconds, retain: DefaultRetain}
}

// snapshotKey orders a key's snapshots lexicographically by iteration
// (zero-padded decimal, so byte order matches numeric order), letting
// a bucket cursor walk them oldest-to-newest.
func (s *Store) snapshotKey(iteration int) []byte {
	return []byte(fmt.Sprintf("%s:%020d", s.key, iteration))
}

func (s *Store) prefix() []byte {
	return []byte(fmt.Sprintf("%s:", s.key))
}

// Save serializes data under a new iteration-keyed snapshot and prunes
// every snapshot for this key beyond the most recent `retain`.
func (s *Store) Save(data *Data) error {
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	if s.db == nil {
		return nil
	}
	dataB, err := json.Marshal(data)
	if err != nil {
		log.Errorf("error serializing checkpoint: %v", err)
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		if err := b.Put(s.snapshotKey(data.Iteration), dataB); err != nil {
			return err
		}
		return s.prune(b)
	})
	if err != nil {
		log.Errorf("error saving checkpoint: %v", err)
	}
	return err
}

// prune deletes every snapshot for this key beyond the most recent
// `retain`, oldest first. Must be called from within an Update.
func (s *Store) prune(b *bolt.Bucket) error {
	prefix := s.prefix()
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	if len(keys) <= s.retain {
		return nil
	}
	for _, k := range keys[:len(keys)-s.retain] {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the chain state from the most recent readable snapshot
// for this key, or nil if none exists. A snapshot that fails to
// unmarshal is skipped in favor of the next-most-recent one rather
// than failing the whole load.
func (s *Store) Load() (*Data, error) {
	if s.db == nil {
		return nil, nil
	}
	var keys [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		prefix := s.prefix()
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := len(keys) - 1; i >= 0; i-- {
		data, loadErr := s.loadSnapshot(keys[i])
		if loadErr != nil {
			log.Warningf("checkpoint snapshot %s is corrupt, trying the previous one: %v", keys[i], loadErr)
			continue
		}
		if data == nil {
			continue
		}
		if data.Final {
			log.Noticef("found finished chain checkpoint (iter=%v)", data.Iteration)
		} else {
			log.Noticef("found unfinished chain checkpoint (iter=%v)", data.Iteration)
		}
		return data, nil
	}
	return nil, nil
}

// loadSnapshot reads and unmarshals a single snapshot key, returning
// (nil, nil) if the key is absent or the stored proportions are empty.
func (s *Store) loadSnapshot(key []byte) (*Data, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, err
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if len(data.Pi) == 0 {
		return nil, nil
	}
	return &data, nil
}

// Old returns true if last checkpoint save time too long ago.
func (s *Store) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets last checkpoint time to now.
func (s *Store) SetNow() {
	s.last = time.Now()
}
