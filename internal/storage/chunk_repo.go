package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks finsight/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"fmt"
)

// ChunkStore defines the interface for chunk storage operations.
type ChunkStore interface {
	// Upsert inserts or replaces a chunk row. Keyed by
	// (id, file_path, processing_strategy), so re-storing is idempotent.
	Upsert(ctx context.Context, chunk *ChunkRecord) error
	// GetByFile returns all chunks for a file, optionally narrowed to one
	// processing strategy. Returns an empty slice when none exist.
	GetByFile(ctx context.Context, filePath, strategy string) ([]ChunkRecord, error)
	// GetByID gets a chunk by its composite key. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id, filePath, strategy string) (*ChunkRecord, error)
	// DeleteByFile removes all chunks for a file and strategy.
	DeleteByFile(ctx context.Context, filePath, strategy string) error
	// DistinctCompanies lists every company_name present in chunk metadata, sorted.
	DistinctCompanies(ctx context.Context) ([]string, error)
	// DistinctYears lists every financial_year present in chunk metadata,
	// optionally narrowed to one company, sorted.
	DistinctYears(ctx context.Context, company string) ([]string, error)
	// Count returns the total number of chunk rows.
	Count(ctx context.Context) (int64, error)
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

const chunkColumns = `id, content, chunk_type, section, page_number, file_path, file_name,
	processing_strategy, table_count, content_length, metadata, created_at, updated_at`

// Upsert inserts or replaces a chunk row.
func (r *ChunkRepo) Upsert(ctx context.Context, chunk *ChunkRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO document_chunks
			(id, content, chunk_type, section, page_number, file_path, file_name,
			 processing_strategy, table_count, content_length, metadata, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		chunk.ID, chunk.Content, chunk.ChunkType, chunk.Section, chunk.PageNumber,
		chunk.FilePath, chunk.FileName, chunk.ProcessingStrategy,
		chunk.TableCount, chunk.ContentLength, chunk.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

// GetByFile returns all chunks for a file, ordered by page then id.
// An empty strategy matches all strategies.
func (r *ChunkRepo) GetByFile(ctx context.Context, filePath, strategy string) ([]ChunkRecord, error) {
	query := `SELECT ` + chunkColumns + ` FROM document_chunks WHERE file_path = ?`
	args := []any{filePath}
	if strategy != "" {
		query += ` AND processing_strategy = ?`
		args = append(args, strategy)
	}
	query += ` ORDER BY page_number, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	chunks := make([]ChunkRecord, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return chunks, nil
}

// GetByID gets a chunk by its composite key. Returns ErrNotFound if absent.
func (r *ChunkRepo) GetByID(ctx context.Context, id, filePath, strategy string) (*ChunkRecord, error) {
	var chunk ChunkRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM document_chunks
		 WHERE id = ? AND file_path = ? AND processing_strategy = ?`,
		id, filePath, strategy,
	).Scan(&chunk.ID, &chunk.Content, &chunk.ChunkType, &chunk.Section, &chunk.PageNumber,
		&chunk.FilePath, &chunk.FileName, &chunk.ProcessingStrategy,
		&chunk.TableCount, &chunk.ContentLength, &chunk.Metadata,
		&chunk.CreatedAt, &chunk.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk: %w", err)
	}

	return &chunk, nil
}

// DeleteByFile removes all chunks for a file and strategy.
func (r *ChunkRepo) DeleteByFile(ctx context.Context, filePath, strategy string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM document_chunks WHERE file_path = ? AND processing_strategy = ?",
		filePath, strategy,
	)
	if err != nil {
		return fmt.Errorf("failed to delete chunks by file: %w", err)
	}
	return nil
}

// DistinctCompanies lists every company_name present in chunk metadata, sorted.
func (r *ChunkRepo) DistinctCompanies(ctx context.Context) ([]string, error) {
	return r.distinctMetadataValues(ctx,
		`SELECT DISTINCT json_extract(metadata, '$.company_name') AS v
		 FROM document_chunks
		 WHERE json_extract(metadata, '$.company_name') IS NOT NULL
		   AND json_extract(metadata, '$.company_name') != ''
		 ORDER BY v`)
}

// DistinctYears lists every financial_year present in chunk metadata,
// optionally narrowed to one company, sorted.
func (r *ChunkRepo) DistinctYears(ctx context.Context, company string) ([]string, error) {
	if company == "" {
		return r.distinctMetadataValues(ctx,
			`SELECT DISTINCT json_extract(metadata, '$.financial_year') AS v
			 FROM document_chunks
			 WHERE json_extract(metadata, '$.financial_year') IS NOT NULL
			   AND json_extract(metadata, '$.financial_year') != ''
			 ORDER BY v`)
	}
	return r.distinctMetadataValues(ctx,
		`SELECT DISTINCT json_extract(metadata, '$.financial_year') AS v
		 FROM document_chunks
		 WHERE json_extract(metadata, '$.financial_year') IS NOT NULL
		   AND json_extract(metadata, '$.financial_year') != ''
		   AND json_extract(metadata, '$.company_name') = ?
		 ORDER BY v`, company)
}

// Count returns the total number of chunk rows.
func (r *ChunkRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM document_chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (r *ChunkRepo) distinctMetadataValues(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct values: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return values, nil
}

func scanChunk(rows *sql.Rows) (ChunkRecord, error) {
	var chunk ChunkRecord
	err := rows.Scan(&chunk.ID, &chunk.Content, &chunk.ChunkType, &chunk.Section, &chunk.PageNumber,
		&chunk.FilePath, &chunk.FileName, &chunk.ProcessingStrategy,
		&chunk.TableCount, &chunk.ContentLength, &chunk.Metadata,
		&chunk.CreatedAt, &chunk.UpdatedAt)
	if err != nil {
		return ChunkRecord{}, fmt.Errorf("failed to scan chunk: %w", err)
	}
	return chunk, nil
}
