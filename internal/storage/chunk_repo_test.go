package storage

import (
	"context"
	"database/sql"
	"testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func testChunk(id string) *ChunkRecord {
	return &ChunkRecord{
		ID:                 id,
		Content:            "Revenue grew in the period.",
		ChunkType:          "text",
		Section:            "Financial Review",
		PageNumber:         12,
		FilePath:           "/data/acme-fy2023.pdf",
		FileName:           "acme-fy2023.pdf",
		ProcessingStrategy: "contents_based",
		TableCount:         0,
		ContentLength:      27,
		Metadata:           `{"company_name":"Acme Corp","financial_year":"FY2023"}`,
	}
}

func TestChunkRepo_UpsertAndGetByID(t *testing.T) {
	repo := NewChunkRepo(setupTestDB(t))
	ctx := context.Background()

	chunk := testChunk("section_financial_review")
	if err := repo.Upsert(ctx, chunk); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.GetByID(ctx, chunk.ID, chunk.FilePath, chunk.ProcessingStrategy)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Content != chunk.Content {
		t.Errorf("content = %q, want %q", got.Content, chunk.Content)
	}
	if got.Section != "Financial Review" {
		t.Errorf("section = %q", got.Section)
	}
}

func TestChunkRepo_UpsertIsIdempotent(t *testing.T) {
	repo := NewChunkRepo(setupTestDB(t))
	ctx := context.Background()

	chunk := testChunk("section_financial_review")
	if err := repo.Upsert(ctx, chunk); err != nil {
		t.Fatalf("Upsert() first error = %v", err)
	}

	chunk.Content = "Revenue declined in the period."
	if err := repo.Upsert(ctx, chunk); err != nil {
		t.Fatalf("Upsert() second error = %v", err)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d after double upsert, want 1", count)
	}

	got, err := repo.GetByID(ctx, chunk.ID, chunk.FilePath, chunk.ProcessingStrategy)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Content != "Revenue declined in the period." {
		t.Errorf("Upsert() did not replace content, got %q", got.Content)
	}
}

func TestChunkRepo_GetByID_NotFound(t *testing.T) {
	repo := NewChunkRepo(setupTestDB(t))

	_, err := repo.GetByID(context.Background(), "missing", "/data/x.pdf", "contents_based")
	if err != ErrNotFound {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestChunkRepo_GetByFile(t *testing.T) {
	repo := NewChunkRepo(setupTestDB(t))
	ctx := context.Background()

	first := testChunk("contents_page")
	first.PageNumber = 2
	second := testChunk("section_financial_review")
	other := testChunk("section_financial_review")
	other.ProcessingStrategy = "semantic"

	for _, c := range []*ChunkRecord{first, second, other} {
		if err := repo.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	chunks, err := repo.GetByFile(ctx, "/data/acme-fy2023.pdf", "contents_based")
	if err != nil {
		t.Fatalf("GetByFile() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("GetByFile() returned %d chunks, want 2", len(chunks))
	}
	if chunks[0].ID != "contents_page" {
		t.Errorf("chunks not ordered by page: first = %q", chunks[0].ID)
	}

	all, err := repo.GetByFile(ctx, "/data/acme-fy2023.pdf", "")
	if err != nil {
		t.Fatalf("GetByFile() without strategy error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("GetByFile() without strategy returned %d chunks, want 3", len(all))
	}

	none, err := repo.GetByFile(ctx, "/data/unknown.pdf", "")
	if err != nil {
		t.Fatalf("GetByFile() for unknown file error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("GetByFile() for unknown file returned %d chunks, want 0", len(none))
	}
}

func TestChunkRepo_DeleteByFile(t *testing.T) {
	repo := NewChunkRepo(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Upsert(ctx, testChunk("contents_page")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := repo.DeleteByFile(ctx, "/data/acme-fy2023.pdf", "contents_based"); err != nil {
		t.Fatalf("DeleteByFile() error = %v", err)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d after delete, want 0", count)
	}
}

func TestChunkRepo_DistinctCompaniesAndYears(t *testing.T) {
	repo := NewChunkRepo(setupTestDB(t))
	ctx := context.Background()

	records := []struct {
		id, path, meta string
	}{
		{"c1", "/data/acme-fy2023.pdf", `{"company_name":"Acme Corp","financial_year":"FY2023"}`},
		{"c2", "/data/acme-fy2022.pdf", `{"company_name":"Acme Corp","financial_year":"FY2022"}`},
		{"c3", "/data/beta-fy2023.pdf", `{"company_name":"Beta Ltd","financial_year":"FY2023"}`},
		{"c4", "/data/untagged.pdf", `{}`},
	}
	for _, rec := range records {
		chunk := testChunk(rec.id)
		chunk.FilePath = rec.path
		chunk.Metadata = rec.meta
		if err := repo.Upsert(ctx, chunk); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	companies, err := repo.DistinctCompanies(ctx)
	if err != nil {
		t.Fatalf("DistinctCompanies() error = %v", err)
	}
	if len(companies) != 2 || companies[0] != "Acme Corp" || companies[1] != "Beta Ltd" {
		t.Errorf("DistinctCompanies() = %v", companies)
	}

	years, err := repo.DistinctYears(ctx, "")
	if err != nil {
		t.Fatalf("DistinctYears() error = %v", err)
	}
	if len(years) != 2 || years[0] != "FY2022" || years[1] != "FY2023" {
		t.Errorf("DistinctYears() = %v", years)
	}

	acmeYears, err := repo.DistinctYears(ctx, "Acme Corp")
	if err != nil {
		t.Fatalf("DistinctYears(Acme Corp) error = %v", err)
	}
	if len(acmeYears) != 2 {
		t.Errorf("DistinctYears(Acme Corp) = %v, want 2 years", acmeYears)
	}

	betaYears, err := repo.DistinctYears(ctx, "Beta Ltd")
	if err != nil {
		t.Fatalf("DistinctYears(Beta Ltd) error = %v", err)
	}
	if len(betaYears) != 1 || betaYears[0] != "FY2023" {
		t.Errorf("DistinctYears(Beta Ltd) = %v", betaYears)
	}
}
