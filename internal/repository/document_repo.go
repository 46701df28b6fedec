package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pedjoni/idiorag/internal/domain"
)

// DocumentRepository handles document persistence. Every read and write is
// scoped by owner.
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, owner_id, title, content, metadata, doc_type, source, chunker,
	content_fingerprint, index_status, index_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	doc := &domain.Document{}
	var metadataJSON, docType, source, chunkerName, indexError sql.NullString

	if err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.Content, &metadataJSON,
		&docType, &source, &chunkerName, &doc.ContentFingerprint, &doc.IndexStatus, &indexError,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}

	doc.DocType = docType.String
	doc.Source = source.String
	doc.Chunker = chunkerName.String
	doc.IndexError = indexError.String
	if metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for document %s: %w", doc.ID, err)
		}
	}
	return doc, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.IndexStatus == "" {
		doc.IndexStatus = domain.IndexStatusPending
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.OwnerID, doc.Title, doc.Content, string(metadataJSON),
		nullable(doc.DocType), nullable(doc.Source), nullable(doc.Chunker), doc.ContentFingerprint,
		doc.IndexStatus, nullable(doc.IndexError), doc.CreatedAt, doc.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("document with source %q already exists: %w", doc.Source, domain.ErrConflict)
	}
	return err
}

// Get retrieves a document owned by ownerID
func (r *DocumentRepository) Get(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	doc, err := scanDocument(r.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE id = ? AND owner_id = ?
	`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return doc, err
}

// GetByOwnerAndSource returns the document ingested from source, or nil
// if there is none.
func (r *DocumentRepository) GetByOwnerAndSource(ctx context.Context, ownerID, source string) (*domain.Document, error) {
	doc, err := scanDocument(r.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE owner_id = ? AND source = ?
	`, ownerID, source))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

// List returns a page of the owner's documents, newest first
func (r *DocumentRepository) List(ctx context.Context, ownerID string, skip, limit int) ([]*domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE owner_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, ownerID, limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountByOwner returns how many documents ownerID has
func (r *DocumentRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE owner_id = ?`, ownerID).Scan(&n)
	return n, err
}

// Update writes the mutable fields of doc
func (r *DocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE documents SET title = ?, content = ?, metadata = ?, doc_type = ?, chunker = ?,
			content_fingerprint = ?, index_status = ?, index_error = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, doc.Title, doc.Content, string(metadataJSON), nullable(doc.DocType), nullable(doc.Chunker),
		doc.ContentFingerprint, doc.IndexStatus, nullable(doc.IndexError), doc.UpdatedAt,
		doc.ID, doc.OwnerID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrNotFound)
	}
	return nil
}

// SetIndexStatus records the outcome of indexing
func (r *DocumentRepository) SetIndexStatus(ctx context.Context, ownerID, id, status, indexError string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE documents SET index_status = ?, index_error = ?
		WHERE id = ? AND owner_id = ?
	`, status, nullable(indexError), id, ownerID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Delete removes a document owned by ownerID
func (r *DocumentRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
