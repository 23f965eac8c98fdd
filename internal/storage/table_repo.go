package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// TableRepo provides methods for extracted-table operations.
type TableRepo struct {
	db *sql.DB
}

// NewTableRepo creates a new TableRepo.
func NewTableRepo(db *sql.DB) *TableRepo {
	return &TableRepo{db: db}
}

const tableColumns = `id, title, table_data, headers, row_count, column_count, table_type,
	section, page_number, source_chunk_id, file_path, file_name, metadata, created_at, updated_at`

// Upsert inserts or replaces a table row, keyed by (id, file_path).
func (r *TableRepo) Upsert(ctx context.Context, table *TableRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO extracted_tables
			(id, title, table_data, headers, row_count, column_count, table_type,
			 section, page_number, source_chunk_id, file_path, file_name, metadata, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		table.ID, table.Title, table.TableData, table.Headers,
		table.RowCount, table.ColumnCount, table.TableType,
		table.Section, table.PageNumber, table.SourceChunkID,
		table.FilePath, table.FileName, table.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert table: %w", err)
	}
	return nil
}

// GetByChunk returns the tables stored against one chunk of a file.
func (r *TableRepo) GetByChunk(ctx context.Context, sourceChunkID, filePath string) ([]TableRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tableColumns+` FROM extracted_tables
		 WHERE source_chunk_id = ? AND file_path = ?
		 ORDER BY id`,
		sourceChunkID, filePath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return collectTables(rows)
}

// GetByFile returns all tables for a file, optionally narrowed to one
// table type.
func (r *TableRepo) GetByFile(ctx context.Context, filePath, tableType string) ([]TableRecord, error) {
	query := `SELECT ` + tableColumns + ` FROM extracted_tables WHERE file_path = ?`
	args := []any{filePath}
	if tableType != "" {
		query += ` AND table_type = ?`
		args = append(args, tableType)
	}
	query += ` ORDER BY page_number, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return collectTables(rows)
}

// DeleteByFile removes all tables for a file.
func (r *TableRepo) DeleteByFile(ctx context.Context, filePath string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM extracted_tables WHERE file_path = ?", filePath)
	if err != nil {
		return fmt.Errorf("failed to delete tables by file: %w", err)
	}
	return nil
}

// Count returns the total number of table rows.
func (r *TableRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM extracted_tables").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tables: %w", err)
	}
	return count, nil
}

func collectTables(rows *sql.Rows) ([]TableRecord, error) {
	defer func() {
		_ = rows.Close()
	}()

	tables := make([]TableRecord, 0)
	for rows.Next() {
		var t TableRecord
		err := rows.Scan(&t.ID, &t.Title, &t.TableData, &t.Headers,
			&t.RowCount, &t.ColumnCount, &t.TableType,
			&t.Section, &t.PageNumber, &t.SourceChunkID,
			&t.FilePath, &t.FileName, &t.Metadata,
			&t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tables, nil
}
