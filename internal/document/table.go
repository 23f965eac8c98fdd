package document

import (
	"fmt"
	"strings"
)

// Table type tags. Inline tables found during segmentation carry TypeFinancial;
// the three canonical consolidated statements carry their bucket name.
const (
	TypeFinancial     = "financial"
	TypeBalanceSheet  = "consolidated_balance_sheet"
	TypeProfitAndLoss = "consolidated_profit_and_loss"
	TypeCashFlow      = "consolidated_cash_flow"
)

// Table is the single shape for every extracted table, whether it was found
// inline in a section or pulled out as a canonical financial statement.
type Table struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Headers       []string            `json:"headers"`
	Rows          []map[string]string `json:"rows"`
	RowCount      int                 `json:"row_count"`
	ColumnCount   int                 `json:"column_count"`
	TableType     string              `json:"table_type"`
	Section       string              `json:"section,omitempty"`
	PageNumber    int                 `json:"page_number,omitempty"`
	SourceChunkID string              `json:"source_chunk_id,omitempty"`
}

// Validate checks the table's internal consistency.
func (t *Table) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("table ID cannot be empty")
	}
	if t.RowCount != len(t.Rows) {
		return fmt.Errorf("row count mismatch: expected %d, got %d", t.RowCount, len(t.Rows))
	}
	if t.ColumnCount != len(t.Headers) {
		return fmt.Errorf("column count mismatch: expected %d, got %d", t.ColumnCount, len(t.Headers))
	}
	return nil
}

// NewTableFromRows builds a Table from raw parser cells: the first row becomes
// the header row, every following row becomes a record keyed by header.
// Returns an error when raw has no rows at all.
func NewTableFromRows(id, title string, raw [][]string, pageNumber int) (Table, error) {
	if len(raw) == 0 {
		return Table{}, fmt.Errorf("table %s has no rows", id)
	}

	headers := raw[0]
	records := make([]map[string]string, 0, len(raw)-1)
	for _, row := range raw[1:] {
		record := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				record[h] = row[i]
			} else {
				record[h] = ""
			}
		}
		records = append(records, record)
	}

	return Table{
		ID:          id,
		Title:       title,
		Headers:     headers,
		Rows:        records,
		RowCount:    len(records),
		ColumnCount: len(headers),
		TableType:   TypeFinancial,
		PageNumber:  pageNumber,
	}, nil
}

// Summary renders the one-line human-readable description used when building
// embedding input text.
func (t *Table) Summary() string {
	return fmt.Sprintf("Table: %s with %d rows", strings.Join(t.Headers, ", "), t.RowCount)
}

// Size returns the table dimensions as (rows, columns).
func (t *Table) Size() (int, int) {
	return t.RowCount, t.ColumnCount
}
