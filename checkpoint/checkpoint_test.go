package checkpoint

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoint.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, []byte("chain"), 30)

	data := &Data{Iteration: 42, Seed: 7, Pi: []float64{0.3, 0.7}, Underflow: 2}
	if err := s.Save(data); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected a checkpoint, got nil")
	}
	if got.Iteration != 42 || got.Seed != 7 || got.Underflow != 2 {
		t.Errorf("got %+v, want iteration=42 seed=7 underflow=2", got)
	}
	if len(got.Pi) != 2 || got.Pi[0] != 0.3 || got.Pi[1] != 0.7 {
		t.Errorf("got Pi=%v, want [0.3 0.7]", got.Pi)
	}
}

func TestLoadWithNoCheckpointReturnsNil(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, []byte("chain"), 30)

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil checkpoint, got %+v", got)
	}
}

func TestOldThrottle(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, []byte("chain"), 0.05)

	if !s.Old() {
		t.Error("expected Old() to be true before any save")
	}
	s.SetNow()
	if s.Old() {
		t.Error("expected Old() to be false immediately after SetNow")
	}
	time.Sleep(100 * time.Millisecond)
	if !s.Old() {
		t.Error("expected Old() to be true after exceeding the throttle window")
	}
}

// Save must prune every snapshot for a key beyond the most recent
// `retain`, and Load must still return the newest one.
func TestSavePrunesOldSnapshots(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, []byte("chain"), 30)
	s.retain = 2

	for iter := 1; iter <= 5; iter++ {
		if err := s.Save(&Data{Iteration: iter, Pi: []float64{1.0}}); err != nil {
			t.Fatal(err)
		}
	}

	var count int
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		prefix := s.prefix()
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 retained snapshots, got %d", count)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Iteration != 5 {
		t.Errorf("expected the latest snapshot (iter=5), got %+v", got)
	}
}

// A corrupt latest snapshot must not shadow an older readable one.
func TestLoadSkipsCorruptSnapshot(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, []byte("chain"), 30)

	if err := s.Save(&Data{Iteration: 1, Pi: []float64{0.5, 0.5}}); err != nil {
		t.Fatal(err)
	}
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put(s.snapshotKey(2), []byte("{not valid json"))
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Iteration != 1 {
		t.Errorf("expected fallback to the last valid snapshot (iter=1), got %+v", got)
	}
}

func TestNilDBIsNoop(t *testing.T) {
	s := NewStore(nil, []byte("chain"), 30)
	if err := s.Save(&Data{Iteration: 1}); err != nil {
		t.Fatalf("Save with nil db should not error, got %v", err)
	}
	got, err := s.Load()
	if err != nil || got != nil {
		t.Errorf("Load with nil db should return (nil, nil), got (%+v, %v)", got, err)
	}
}
