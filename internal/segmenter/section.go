package segmenter

import "finsight/internal/document"

// Section is one logical division of a report: either an entry resolved from
// the contents page, a single front-matter page, or (in heading mode) the span
// between two level-1 headings. Sections are transient; only the chunks built
// from them are persisted.
type Section struct {
	Title        string
	Category     string
	Content      string
	Tables       []document.Table
	StartPage    int
	EndPage      int
	FromContents bool
	// SpecialKind marks the front-matter and contents-page sections so the
	// chunk builder can assign their fixed chunk IDs.
	SpecialKind SpecialKind
}

// SpecialKind distinguishes the structural one-off sections.
type SpecialKind string

const (
	SpecialNone        SpecialKind = ""
	SpecialPreContents SpecialKind = "pre_contents_page"
	SpecialContents    SpecialKind = "contents_page"
)

// Entry is one (category, title, page) line parsed from the contents page.
type Entry struct {
	Category   string
	Title      string
	PageNumber int
}

// FullTitle joins category and title the way the contents page presents them.
func (e Entry) FullTitle() string {
	if e.Category == "" {
		return e.Title
	}
	return e.Category + " - " + e.Title
}
