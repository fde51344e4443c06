package vectordb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

const boltDataFile = "chunks.bolt"

var bucketChunks = []byte("chunks")

// BoltBackend stores chunks as JSON values keyed by insertion sequence in a
// bbolt database file.
type BoltBackend struct {
	// ScratchDir holds databases under construction. Empty means os.TempDir().
	ScratchDir string
}

// NewBoltBackend creates the bolt backend.
func NewBoltBackend() *BoltBackend { return &BoltBackend{} }

// Kind returns "bolt".
func (*BoltBackend) Kind() string { return KindBolt }

// Build writes entries into a scratch database that is removed on Close.
func (b *BoltBackend) Build(ctx context.Context, entries []entities.IndexEntry) (ports.VectorIndex, error) {
	normalized, dims, err := prepare(entries)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(b.ScratchDir, "docurag-*.bolt")
	if err != nil {
		return nil, fmt.Errorf("creating scratch file: %w", err)
	}
	scratch := f.Name()
	f.Close()

	db, err := bbolt.Open(scratch, 0o600, &bbolt.Options{Timeout: 5 * time.Second, NoSync: true})
	if err != nil {
		os.Remove(scratch)
		return nil, fmt.Errorf("opening scratch database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketChunks)
		if err != nil {
			return err
		}
		for i, e := range normalized {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := json.Marshal(toRecord(e))
			if err != nil {
				return err
			}
			if err := bucket.Put(seqKey(uint64(i)), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		os.Remove(scratch)
		return nil, fmt.Errorf("writing chunks: %w", err)
	}
	return &BoltIndex{db: db, dims: dims, count: len(normalized), scratch: scratch}, nil
}

// Load opens chunks.bolt read-only.
func (*BoltBackend) Load(ctx context.Context, dir string) (ports.VectorIndex, error) {
	m, err := readManifestKind(dir, KindBolt)
	if err != nil {
		return nil, err
	}
	path, err := dataFile(dir, boltDataFile)
	if err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", entities.ErrIndexCorrupt, boltDataFile, err)
	}

	count := 0
	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketChunks)
		if bucket == nil {
			if m.Count == 0 {
				return nil
			}
			return errors.New("chunks bucket missing")
		}
		count = bucket.Stats().KeyN
		return nil
	})
	if err == nil {
		err = checkCount(m, count)
	}
	if err != nil {
		db.Close()
		if errors.Is(err, entities.ErrIndexCorrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", entities.ErrIndexCorrupt, err)
	}
	return &BoltIndex{db: db, dims: m.Dimensions, count: count}, nil
}

// BoltIndex searches by walking a cursor in key order, which is insertion order.
type BoltIndex struct {
	db      *bbolt.DB
	dims    int
	count   int
	scratch string // removed on Close when set
}

// Search finds the most similar chunks to a query embedding.
func (x *BoltIndex) Search(ctx context.Context, query []float32, k int) ([]entities.SearchHit, error) {
	if err := checkQuery(query, x.dims); err != nil {
		return nil, err
	}
	q := normalize(query)

	hits := make([]entities.SearchHit, 0, x.count)
	err := x.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketChunks)
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for key, value := c.First(); key != nil; key, value = c.Next() {
			var r record
			if err := json.Unmarshal(value, &r); err != nil {
				return fmt.Errorf("%w: chunk %d: %v", entities.ErrIndexCorrupt, binary.BigEndian.Uint64(key), err)
			}
			if len(r.Vector) != x.dims {
				return fmt.Errorf("%w: chunk %s has %d dimensions", entities.ErrIndexCorrupt, r.ID, len(r.Vector))
			}
			hits = append(hits, entities.SearchHit{Chunk: r.chunk(), Score: dot(q, r.Vector)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return topK(hits, k), nil
}

// Len returns the number of stored chunks.
func (x *BoltIndex) Len() int { return x.count }

// Dimensions returns the vector size.
func (x *BoltIndex) Dimensions() int { return x.dims }

// Kind returns "bolt".
func (x *BoltIndex) Kind() string { return KindBolt }

// Save copies a consistent snapshot of the database into dir and writes the manifest.
func (x *BoltIndex) Save(ctx context.Context, dir string, meta ports.IndexMeta) error {
	path := filepath.Join(dir, boltDataFile)
	err := x.db.View(func(tx *bbolt.Tx) error {
		return tx.CopyFile(path, 0o644)
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", boltDataFile, err)
	}
	return writeManifest(dir, newManifest(KindBolt, x.dims, x.count, meta))
}

// Close waits for open read transactions, closes the database and removes
// any scratch file.
func (x *BoltIndex) Close() error {
	err := x.db.Close()
	if x.scratch != "" {
		if rerr := os.Remove(x.scratch); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
			err = rerr
		}
	}
	return err
}

func seqKey(n uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, n)
	return key
}
