package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pedjoni/idiorag/internal/domain"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps chunks and embeddings in SQLite. Queries select only
// the caller's rows by owner_id and score them by exact cosine similarity.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates a store at path. ":memory:" is allowed.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create vector store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	if path == ":memory:" {
		// each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_owner ON chunks(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w\nSQL: %s", err, s)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, ownerID string, records []Record) error {
	if err := checkOwnership(ownerID, records); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, owner_id, document_id, position, text, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id, document_id = excluded.document_id,
			position = excluded.position, text = excluded.text,
			metadata = excluded.metadata, embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		md, err := json.Marshal(r.Chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for chunk %s: %w", r.Chunk.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.Chunk.ID, ownerID, r.Chunk.BackReference,
			r.Chunk.Position, r.Chunk.Text, string(md), float32SliceToBytes(r.Vector)); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", r.Chunk.ID, err)
		}
	}
	return tx.Commit()
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, ownerID string, vector []float32, k int) ([]domain.RetrievedMatch, error) {
	if k <= 0 {
		return []domain.RetrievedMatch{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, position, text, metadata, embedding
		FROM chunks WHERE owner_id = ? ORDER BY rowid
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	type scored struct {
		match domain.RetrievedMatch
		score float64
	}
	var all []scored
	for rows.Next() {
		var (
			c       domain.Chunk
			mdJSON  string
			embBlob []byte
		)
		if err := rows.Scan(&c.ID, &c.BackReference, &c.Position, &c.Text, &mdJSON, &embBlob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(mdJSON), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for chunk %s: %w", c.ID, err)
		}
		score := cosine(vector, bytesToFloat32Slice(embBlob))
		all = append(all, scored{match: toMatch(c, score), score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > k {
		all = all[:k]
	}
	out := make([]domain.RetrievedMatch, len(all))
	for i, s := range all {
		out[i] = s.match
	}
	return out, nil
}

// DeleteByDocument implements Store.
func (s *SQLiteStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", documentID, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
