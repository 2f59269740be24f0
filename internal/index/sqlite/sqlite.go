// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlite provides the persistent index backend: a sqlite-vec vec0
// table for embeddings and a companion table for chunk text.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/wikiqa/internal/index"
	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const BackendName = "sqlite"

var collectionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func init() {
	sqlite_vec.Auto()
	index.RegisterBackend(BackendName, func(cfg index.Config) (index.Backend, error) {
		return Open(cfg.Path, cfg.Collection, cfg.Dimension)
	})
}

var _ index.Backend = (*Store)(nil)

// Store is one collection inside a SQLite database file. Several collections
// may share a file; each gets its own pair of tables.
type Store struct {
	db         *sql.DB
	collection string
	dimension  int

	vecTable   string
	chunkTable string
}

// Open opens (or creates) the collection at dbPath. Reopening a collection
// with a different dimension fails with index.dimension.mismatch.
func Open(dbPath, collection string, dimension int) (*Store, error) {
	if dbPath == "" {
		return nil, wikierr.New(wikierr.CodeConfigValidateInvalidValue, "sqlite index requires index.path")
	}
	if !collectionName.MatchString(collection) {
		return nil, wikierr.New(wikierr.CodeConfigValidateInvalidValue, "invalid collection name",
			wikierr.FieldCollection(collection))
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "opening sqlite db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "pinging sqlite db")
	}

	s := &Store{
		db:         db,
		collection: collection,
		dimension:  dimension,
		vecTable:   "vec_" + collection,
		chunkTable: "chunks_" + collection,
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const metaDDL = `
CREATE TABLE IF NOT EXISTS collection_meta (
	name      TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	metric    TEXT NOT NULL
)`
	if _, err := s.db.Exec(metaDDL); err != nil {
		return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "creating collection_meta table")
	}

	var existing int
	err := s.db.QueryRow(`SELECT dimension FROM collection_meta WHERE name = ?`, s.collection).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec(`INSERT INTO collection_meta(name, dimension, metric) VALUES (?, ?, ?)`,
			s.collection, s.dimension, index.MetricL2); err != nil {
			return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "recording collection metadata")
		}
	case err != nil:
		return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "reading collection metadata")
	case existing != s.dimension:
		return wikierr.New(wikierr.CodeIndexDimensionMismatch,
			"collection was created with a different embedding dimension",
			wikierr.FieldCollection(s.collection),
			wikierr.Field("expected", existing),
			wikierr.Field("actual", s.dimension),
		)
	}

	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d] distance_metric=l2)`,
		s.vecTable, s.dimension,
	)
	if _, err := s.db.Exec(vecDDL); err != nil {
		return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "creating vec0 table")
	}

	chunkDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	text          TEXT NOT NULL,
	sequence      INTEGER NOT NULL,
	source_offset INTEGER NOT NULL
)`, s.chunkTable)
	if _, err := s.db.Exec(chunkDDL); err != nil {
		return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "creating chunks table")
	}
	return nil
}

func (s *Store) Dimension() int { return s.dimension }

// Replace clears the collection and inserts entries in one transaction.
func (s *Store) Replace(ctx context.Context, entries []index.Entry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.clear(ctx, tx); err != nil {
			return err
		}
		return s.insert(ctx, tx, entries)
	})
}

func (s *Store) Insert(ctx context.Context, entries []index.Entry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.insert(ctx, tx, entries)
	})
}

func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.clear(ctx, tx)
	})
}

// Search runs a KNN query. Distance ties are broken by chunk id, which is
// insertion order.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]index.Result, error) {
	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, wikierr.Wrap(err, wikierr.CodeIndexSearchInvalid, "serializing query vector")
	}

	q := fmt.Sprintf(`SELECT c.text, c.sequence, c.source_offset, knn.distance
FROM (SELECT rowid, distance FROM %s WHERE embedding MATCH ? AND k = ?) knn
JOIN %s c ON c.id = knn.rowid
ORDER BY knn.distance, c.id`, s.vecTable, s.chunkTable)

	rows, err := s.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "searching vectors")
	}
	defer func() { _ = rows.Close() }()

	var results []index.Result
	for rows.Next() {
		var r index.Result
		if err := rows.Scan(&r.Text, &r.Sequence, &r.SourceOffset, &r.Distance); err != nil {
			return nil, wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "scanning search result")
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "iterating search results")
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.chunkTable)).Scan(&n); err != nil {
		return 0, wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "counting chunks")
	}
	return n, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "committing transaction")
	}
	return nil
}

func (s *Store) clear(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.vecTable)); err != nil {
		return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "clearing vectors")
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.chunkTable)); err != nil {
		return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "clearing chunks")
	}
	return nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, entries []index.Entry) error {
	chunkStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s(text, sequence, source_offset) VALUES (?, ?, ?)`, s.chunkTable))
	if err != nil {
		return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "preparing chunk insert")
	}
	defer func() { _ = chunkStmt.Close() }()

	vecStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, s.vecTable))
	if err != nil {
		return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "preparing vector insert")
	}
	defer func() { _ = vecStmt.Close() }()

	for i, e := range entries {
		blob, err := sqlite_vec.SerializeFloat32(e.Vector)
		if err != nil {
			return wikierr.Wrap(err, wikierr.CodeIndexInsertInvalid, "serializing embedding",
				wikierr.Field("index", i))
		}

		res, err := chunkStmt.ExecContext(ctx, e.Text, e.Sequence, e.SourceOffset)
		if err != nil {
			return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "inserting chunk",
				wikierr.Field("index", i))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "reading chunk id")
		}
		if _, err := vecStmt.ExecContext(ctx, id, blob); err != nil {
			return wikierr.Wrap(err, wikierr.CodeIndexDatabaseFailure, "inserting vector",
				wikierr.Field("index", i))
		}
	}
	return nil
}
