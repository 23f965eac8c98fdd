// Package extractor locates the canonical consolidated financial statements
// in a parsed document.
package extractor

import (
	"context"
	"fmt"
	"strings"

	"finsight/internal/contextutil"
	"finsight/internal/document"
)

// FinancialTables groups the extracted statements by canonical bucket name.
// A document can legitimately contribute several tables to one bucket when a
// statement spans pages.
type FinancialTables map[string][]document.Table

// Buckets lists the canonical statement names in a fixed order.
func Buckets() []string {
	return []string{
		document.TypeBalanceSheet,
		document.TypeProfitAndLoss,
		document.TypeCashFlow,
	}
}

// Count returns the total number of tables across all buckets.
func (ft FinancialTables) Count() int {
	n := 0
	for _, tables := range ft {
		n += len(tables)
	}
	return n
}

// ExtractFinancialTables scans every page for table items and classifies a
// page's tables by the page's opening item: a first item mentioning
// "Consolidated" together with "Balance Sheet", "Profit", or "Cash Flows"
// marks every table on that page as the corresponding statement. Pages whose
// first item matches no pattern contribute nothing. The scan never fails;
// empty or malformed tables are skipped.
func ExtractFinancialTables(ctx context.Context, doc document.Parsed) FinancialTables {
	logger := contextutil.LoggerFromContext(ctx)

	found := FinancialTables{
		document.TypeBalanceSheet:  nil,
		document.TypeProfitAndLoss: nil,
		document.TypeCashFlow:      nil,
	}

	for i := range doc {
		page := &doc[i]
		bucket := classifyPage(page)
		if bucket == "" {
			continue
		}
		for j, item := range page.Items {
			if item.Type != document.ItemTable || len(item.Rows) == 0 {
				continue
			}
			id := fmt.Sprintf("%s_p%d_%d", bucket, page.Page, j)
			table, err := document.NewTableFromRows(id, bucketTitle(bucket), item.Rows, page.Page)
			if err != nil {
				logger.Warn("skipping malformed financial table", "page", page.Page, "error", err)
				continue
			}
			table.TableType = bucket
			found[bucket] = append(found[bucket], table)
		}
	}

	logger.Info("financial table extraction complete",
		"balance_sheet", len(found[document.TypeBalanceSheet]),
		"profit_and_loss", len(found[document.TypeProfitAndLoss]),
		"cash_flow", len(found[document.TypeCashFlow]))

	return found
}

// classifyPage maps a page to a statement bucket from its first item.
func classifyPage(page *document.Page) string {
	first := page.FirstItem()
	if first == nil || first.Value == "" {
		return ""
	}
	if !strings.Contains(first.Value, "Consolidated") {
		return ""
	}
	switch {
	case strings.Contains(first.Value, "Balance Sheet"):
		return document.TypeBalanceSheet
	case strings.Contains(first.Value, "Profit") || strings.Contains(first.Value, "Loss"):
		return document.TypeProfitAndLoss
	case strings.Contains(first.Value, "Cash Flow"):
		return document.TypeCashFlow
	}
	return ""
}

func bucketTitle(bucket string) string {
	switch bucket {
	case document.TypeBalanceSheet:
		return "Consolidated Balance Sheet"
	case document.TypeProfitAndLoss:
		return "Consolidated Profit and Loss Statement"
	case document.TypeCashFlow:
		return "Consolidated Cash Flow Statement"
	}
	return bucket
}
