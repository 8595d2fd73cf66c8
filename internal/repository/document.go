package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

// Inspection is the advisory result of reading a marksheet PDF.
type Inspection string

const (
	InspectionReadable   Inspection = "readable"
	InspectionUnreadable Inspection = "unreadable"
)

// Document represents a row in the application_documents table.
type Document struct {
	ApplicationID  string      `json:"application_id"`
	Role           model.Role  `json:"role"`
	ObjectKey      string      `json:"object_key"`
	FileName       string      `json:"file_name"`
	Mime           string      `json:"mime"`
	SizeBytes      int64       `json:"size_bytes"`
	Inspection     *Inspection `json:"inspection,omitempty"`
	InspectionNote *string     `json:"inspection_note,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// DocumentRepository wraps the SQL used by the upload handler and the worker.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository constructs a repository.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// Put records the upload for a slot, replacing any earlier one. It returns
// the object key of the replaced upload so the caller can delete it.
func (r *DocumentRepository) Put(ctx context.Context, doc *Document) (replacedKey string, err error) {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.Inspection = nil
	doc.InspectionNote = nil

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		SELECT object_key FROM application_documents WHERE application_id=$1 AND role=$2 FOR UPDATE
	`, doc.ApplicationID, doc.Role).Scan(&replacedKey)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("select document: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO application_documents (application_id, role, object_key, file_name, mime, size_bytes, inspection, inspection_note, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULL,NULL,$7,$8)
		ON CONFLICT (application_id, role) DO UPDATE SET
			object_key = EXCLUDED.object_key,
			file_name = EXCLUDED.file_name,
			mime = EXCLUDED.mime,
			size_bytes = EXCLUDED.size_bytes,
			inspection = NULL,
			inspection_note = NULL,
			updated_at = EXCLUDED.updated_at
	`, doc.ApplicationID, doc.Role, doc.ObjectKey, doc.FileName, doc.Mime, doc.SizeBytes, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("upsert document: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return replacedKey, nil
}

// Get returns the upload of one slot.
func (r *DocumentRepository) Get(ctx context.Context, applicationID string, role model.Role) (*Document, error) {
	var (
		doc        Document
		inspection sql.NullString
		note       sql.NullString
	)
	row := r.pool.QueryRow(ctx, `
		SELECT application_id, role, object_key, file_name, mime, size_bytes, inspection, inspection_note, created_at, updated_at
		FROM application_documents WHERE application_id=$1 AND role=$2
	`, applicationID, role)
	if err := row.Scan(&doc.ApplicationID, &doc.Role, &doc.ObjectKey, &doc.FileName, &doc.Mime, &doc.SizeBytes, &inspection, &note, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s/%s: %w", applicationID, role, ErrNotFound)
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	if inspection.Valid {
		v := Inspection(inspection.String)
		doc.Inspection = &v
	}
	if note.Valid {
		msg := note.String
		doc.InspectionNote = &msg
	}
	return &doc, nil
}

// Roles lists the slots with a recorded upload.
func (r *DocumentRepository) Roles(ctx context.Context, applicationID string) ([]model.Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT role FROM application_documents WHERE application_id=$1 ORDER BY role`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	roles, err := pgx.CollectRows(rows, pgx.RowTo[model.Role])
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	return roles, nil
}

// MarkInspected stores the inspection result unless the slot has been
// replaced since the inspection was queued.
func (r *DocumentRepository) MarkInspected(ctx context.Context, applicationID string, role model.Role, objectKey string, result Inspection, note string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE application_documents
		SET inspection=$1, inspection_note=$2, updated_at=$3
		WHERE application_id=$4 AND role=$5 AND object_key=$6
	`, result, note, time.Now().UTC(), applicationID, role, objectKey)
	if err != nil {
		return fmt.Errorf("update inspection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s/%s with key %s: %w", applicationID, role, objectKey, ErrNotFound)
	}
	return nil
}
