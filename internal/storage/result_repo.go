package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ResultRepo provides methods for processing-result audit rows.
type ResultRepo struct {
	db *sql.DB
}

// NewResultRepo creates a new ResultRepo.
func NewResultRepo(db *sql.DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// Insert appends one processing run to the audit log.
func (r *ResultRepo) Insert(ctx context.Context, record *ResultRecord) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO processing_results
			(file_path, file_name, processing_strategy, status, total_chunks, total_tables,
			 processing_time, was_cached, reused_existing, errors, warnings,
			 document_metadata, processing_metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.FilePath, record.FileName, record.ProcessingStrategy, record.Status,
		record.TotalChunks, record.TotalTables, record.ProcessingTime,
		record.WasCached, record.ReusedExisting, record.Errors, record.Warnings,
		record.DocumentMetadata, record.ProcessingMetadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert processing result: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

const resultColumns = `id, file_path, file_name, processing_strategy, status, total_chunks,
	total_tables, processing_time, was_cached, reused_existing, errors, warnings,
	document_metadata, processing_metadata, created_at`

// History returns past runs for a file, newest first. An empty strategy
// matches all strategies.
func (r *ResultRepo) History(ctx context.Context, filePath, strategy string) ([]ResultRecord, error) {
	query := `SELECT ` + resultColumns + ` FROM processing_results WHERE file_path = ?`
	args := []any{filePath}
	if strategy != "" {
		query += ` AND processing_strategy = ?`
		args = append(args, strategy)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query processing results: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := make([]ResultRecord, 0)
	for rows.Next() {
		var rec ResultRecord
		err := rows.Scan(&rec.ID, &rec.FilePath, &rec.FileName, &rec.ProcessingStrategy,
			&rec.Status, &rec.TotalChunks, &rec.TotalTables, &rec.ProcessingTime,
			&rec.WasCached, &rec.ReusedExisting, &rec.Errors, &rec.Warnings,
			&rec.DocumentMetadata, &rec.ProcessingMetadata, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan processing result: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// LatestSuccessful returns the most recent non-error run for a file and
// strategy, or ErrNotFound.
func (r *ResultRepo) LatestSuccessful(ctx context.Context, filePath, strategy string) (*ResultRecord, error) {
	var rec ResultRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM processing_results
		 WHERE file_path = ? AND processing_strategy = ? AND status IN ('success', 'partial')
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		filePath, strategy,
	).Scan(&rec.ID, &rec.FilePath, &rec.FileName, &rec.ProcessingStrategy,
		&rec.Status, &rec.TotalChunks, &rec.TotalTables, &rec.ProcessingTime,
		&rec.WasCached, &rec.ReusedExisting, &rec.Errors, &rec.Warnings,
		&rec.DocumentMetadata, &rec.ProcessingMetadata, &rec.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query processing result: %w", err)
	}

	return &rec, nil
}

// Count returns the total number of processing runs recorded.
func (r *ResultRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM processing_results").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count processing results: %w", err)
	}
	return count, nil
}
