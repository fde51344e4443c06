package vectordb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

const sqliteDataFile = "chunks.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	seq INTEGER PRIMARY KEY,
	id TEXT NOT NULL,
	content TEXT NOT NULL,
	source_file TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	embedding BLOB NOT NULL
);`

// SQLiteBackend stores chunks and their embeddings as rows of a SQLite
// database file.
type SQLiteBackend struct{}

// NewSQLiteBackend creates the sqlite backend.
func NewSQLiteBackend() *SQLiteBackend { return &SQLiteBackend{} }

// Kind returns "sqlite".
func (*SQLiteBackend) Kind() string { return KindSQLite }

// Build writes entries into a private in-memory database.
func (*SQLiteBackend) Build(ctx context.Context, entries []entities.IndexEntry) (ports.VectorIndex, error) {
	normalized, dims, err := prepare(entries)
	if err != nil {
		return nil, err
	}

	// Shared cache keeps the in-memory database alive across pooled connections.
	dsn := fmt.Sprintf("file:docurag-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	if err := insertChunks(ctx, db, normalized); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteIndex{db: db, dims: dims, count: len(normalized)}, nil
}

func insertChunks(ctx context.Context, db *sql.DB, entries []entities.IndexEntry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (seq, id, content, source_file, page_number, chunk_index, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		embedding, err := encodeVector(e.Vector)
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}
		c := e.Chunk
		if _, err := stmt.ExecContext(ctx, i, c.ID, c.Text, c.SourceFile, c.PageNumber, c.Index, embedding); err != nil {
			return fmt.Errorf("inserting chunk: %w", err)
		}
	}
	return tx.Commit()
}

// Load opens chunks.db read-only.
func (*SQLiteBackend) Load(ctx context.Context, dir string) (ports.VectorIndex, error) {
	m, err := readManifestKind(dir, KindSQLite)
	if err != nil {
		return nil, err
	}
	path, err := dataFile(dir, sqliteDataFile)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", entities.ErrIndexCorrupt, sqliteDataFile, err)
	}

	db, err := sql.Open("sqlite3", "file:"+abs+"?mode=ro&_query_only=true")
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", entities.ErrIndexCorrupt, sqliteDataFile, err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: counting chunks: %v", entities.ErrIndexCorrupt, err)
	}
	if err := checkCount(m, count); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteIndex{db: db, dims: m.Dimensions, count: count}, nil
}

// SQLiteIndex searches by scanning rows in insertion order.
type SQLiteIndex struct {
	db    *sql.DB
	dims  int
	count int
}

// Search finds the most similar chunks to a query embedding.
func (x *SQLiteIndex) Search(ctx context.Context, query []float32, k int) ([]entities.SearchHit, error) {
	if err := checkQuery(query, x.dims); err != nil {
		return nil, err
	}
	q := normalize(query)

	rows, err := x.db.QueryContext(ctx, `
		SELECT id, content, source_file, page_number, chunk_index, embedding
		FROM chunks ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	hits := make([]entities.SearchHit, 0, x.count)
	for rows.Next() {
		var c entities.Chunk
		var embedding []byte
		if err := rows.Scan(&c.ID, &c.Text, &c.SourceFile, &c.PageNumber, &c.Index, &embedding); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		v, err := decodeVector(embedding, x.dims)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %s: %v", entities.ErrIndexCorrupt, c.ID, err)
		}
		hits = append(hits, entities.SearchHit{Chunk: c, Score: dot(q, v)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return topK(hits, k), nil
}

// Len returns the number of stored chunks.
func (x *SQLiteIndex) Len() int { return x.count }

// Dimensions returns the vector size.
func (x *SQLiteIndex) Dimensions() int { return x.dims }

// Kind returns "sqlite".
func (x *SQLiteIndex) Kind() string { return KindSQLite }

// Save copies the database into dir/chunks.db and writes the manifest.
func (x *SQLiteIndex) Save(ctx context.Context, dir string, meta ports.IndexMeta) error {
	path := filepath.Join(dir, sqliteDataFile)
	if _, err := x.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("writing %s: %w", sqliteDataFile, err)
	}
	return writeManifest(dir, newManifest(KindSQLite, x.dims, x.count, meta))
}

// Close closes the database connection after in-flight searches finish.
func (x *SQLiteIndex) Close() error {
	return x.db.Close()
}
