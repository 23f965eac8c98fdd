// Package segmenter divides a parsed financial report into logical sections.
// The preferred strategy reads the document's own table of contents and maps
// each entry to a page range; when no contents page exists it falls back to
// level-1 heading boundaries.
package segmenter

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"finsight/internal/contextutil"
	"finsight/internal/document"
)

const contentsHeading = "Contents"

// contentsLine matches "<page-number><whitespace><title>" lines on the
// contents page, e.g. "03  Chairman's Statement".
var contentsLine = regexp.MustCompile(`^(\d+)\s+(.+?)\s*$`)

// FindContentsPage locates the table-of-contents page: the first page with a
// heading item whose text is exactly "Contents". Returns nil when absent.
func FindContentsPage(doc document.Parsed) *document.Page {
	for i := range doc {
		for _, item := range doc[i].Items {
			if item.Type == document.ItemHeading && strings.TrimSpace(normalizeText(item.Value)) == contentsHeading {
				return &doc[i]
			}
		}
	}
	return nil
}

// ParseContentsPage walks the contents page top to bottom: headings other
// than "Contents" open a category, text lines under a category are matched
// against the page-number/title pattern. Entries come back in document order.
func ParseContentsPage(page *document.Page) []Entry {
	var entries []Entry
	category := ""

	for _, item := range page.Items {
		value := strings.TrimSpace(normalizeText(item.Value))

		switch item.Type {
		case document.ItemHeading:
			if value != contentsHeading {
				category = value
			}
		case document.ItemText:
			if category == "" {
				continue
			}
			for _, line := range strings.Split(value, "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				m := contentsLine.FindStringSubmatch(line)
				if m == nil {
					continue
				}
				pageNum, err := strconv.Atoi(m[1])
				if err != nil {
					continue
				}
				entries = append(entries, Entry{
					Category:   category,
					Title:      strings.TrimSpace(m[2]),
					PageNumber: pageNum,
				})
			}
		}
	}

	return entries
}

// Segment produces sections for the contents-based strategy: one section per
// pre-contents page, one for the contents page itself, and one per contents
// entry. When the document has no contents page, it falls back to
// SegmentByHeadings. Sections whose resolved content is empty are dropped
// with a warning.
func Segment(ctx context.Context, doc document.Parsed) ([]Section, []string) {
	logger := contextutil.LoggerFromContext(ctx)

	contents := FindContentsPage(doc)
	if contents == nil {
		logger.WarnContext(ctx, "contents page not found, falling back to heading segmentation")
		return SegmentByHeadings(doc), []string{"contents page not found, used heading-based segmentation"}
	}

	var sections []Section
	var warnings []string

	// Front-matter pages (cover, disclaimers) become one section per page.
	for i := range doc {
		page := &doc[i]
		if page.Page >= contents.Page {
			break
		}
		title := fmt.Sprintf("Pre-Contents Page %d", page.Page)
		text, tables := pageContent(page, title)
		if strings.TrimSpace(text) == "" {
			continue
		}
		sections = append(sections, Section{
			Title:       title,
			Content:     text,
			Tables:      tables,
			StartPage:   page.Page,
			EndPage:     page.Page,
			SpecialKind: SpecialPreContents,
		})
	}

	contentsText, contentsTables := pageContent(contents, contentsHeading)
	sections = append(sections, Section{
		Title:       contentsHeading,
		Content:     contentsText,
		Tables:      contentsTables,
		StartPage:   contents.Page,
		EndPage:     contents.Page,
		SpecialKind: SpecialContents,
	})

	entries := ParseContentsPage(contents)
	logger.InfoContext(ctx, "parsed contents page", "page", contents.Page, "entries", len(entries))

	for _, entry := range entries {
		section := sectionContent(doc, entry, contents.Page)
		if strings.TrimSpace(section.Content) == "" {
			warnings = append(warnings, fmt.Sprintf("no content found for section %q", entry.Title))
			continue
		}
		sections = append(sections, section)
	}

	return sections, warnings
}

// SegmentByHeadings is the fallback (and the "semantic" strategy): every
// level-1 heading starts a section which accumulates the following text and
// table items until the next level-1 heading.
func SegmentByHeadings(doc document.Parsed) []Section {
	var sections []Section
	var current *Section

	for i := range doc {
		page := &doc[i]
		for j, item := range page.Items {
			switch item.Type {
			case document.ItemHeading:
				if item.Lvl == 1 {
					if current != nil {
						sections = append(sections, *current)
					}
					current = &Section{
						Title:     strings.TrimSpace(normalizeText(item.Value)),
						StartPage: page.Page,
						EndPage:   page.Page,
					}
				}
			case document.ItemText:
				if current == nil {
					continue
				}
				text := strings.TrimSpace(normalizeText(item.Value))
				if text != "" {
					current.Content += text + "\n"
					current.EndPage = page.Page
				}
			case document.ItemTable:
				if current == nil || len(item.Rows) == 0 {
					continue
				}
				id := fmt.Sprintf("%s_table_%d", document.Slug(current.Title), j)
				table, err := document.NewTableFromRows(id, current.Title, item.Rows, page.Page)
				if err != nil {
					continue
				}
				table.Section = current.Title
				current.Tables = append(current.Tables, table)
				current.Content += fmt.Sprintf("[Table: %s - %d rows x %d columns]\n", table.ID, table.RowCount, table.ColumnCount)
				current.EndPage = page.Page
			}
		}
	}
	if current != nil {
		sections = append(sections, *current)
	}

	return sections
}

// sectionContent resolves one contents entry to its page range and content.
// The entry's printed page number is offset when the contents page is not
// page 1, then pages are scanned forward for a heading that fuzzily matches
// the entry title; the section runs until a page opens with a top or
// second-level heading.
func sectionContent(doc document.Parsed, entry Entry, contentsPage int) Section {
	target := entry.PageNumber
	if contentsPage > 1 {
		target += contentsPage - 1
	}

	section := Section{
		Title:        entry.FullTitle(),
		Category:     entry.Category,
		StartPage:    target,
		EndPage:      target,
		FromContents: true,
	}

	found := false
	for i := range doc {
		page := &doc[i]
		if page.Page < target {
			continue
		}

		if !found {
			for _, item := range page.Items {
				if item.Type == document.ItemHeading && matchesTitle(normalizeText(item.Value), entry.Title) {
					found = true
					section.Title = strings.TrimSpace(normalizeText(item.Value))
					section.StartPage = page.Page
					break
				}
			}
			if !found {
				continue
			}
		} else {
			// Heuristic boundary: a page opening a new top/second-level
			// heading starts the next section.
			startsNew := false
			for _, item := range page.Items {
				if item.Type == document.ItemHeading && item.Lvl <= 2 {
					startsNew = true
					break
				}
			}
			if startsNew {
				break
			}
		}

		text, tables := pageContent(page, section.Title)
		section.Content += text
		section.Tables = append(section.Tables, tables...)
		section.EndPage = page.Page
	}

	return section
}

// pageContent renders one page: text items verbatim, headings with a
// level-appropriate "#" prefix, tables collected into Table values with a
// bracketed summary line left in the text stream.
func pageContent(page *document.Page, sectionTitle string) (string, []document.Table) {
	var b strings.Builder
	var tables []document.Table

	for i, item := range page.Items {
		switch item.Type {
		case document.ItemText:
			b.WriteString(normalizeText(item.Value))
			b.WriteString("\n")
		case document.ItemHeading:
			lvl := item.Lvl
			if lvl < 1 {
				lvl = 1
			}
			b.WriteString(strings.Repeat("#", lvl))
			b.WriteString(" ")
			b.WriteString(normalizeText(item.Value))
			b.WriteString("\n\n")
		case document.ItemTable:
			if len(item.Rows) == 0 {
				continue
			}
			id := fmt.Sprintf("%s_table_%d", document.Slug(sectionTitle), i)
			table, err := document.NewTableFromRows(id, sectionTitle, item.Rows, page.Page)
			if err != nil {
				continue
			}
			table.Section = sectionTitle
			tables = append(tables, table)
			fmt.Fprintf(&b, "[Table: %s - %d rows x %d columns]\n", table.ID, table.RowCount, table.ColumnCount)
		}
	}

	return b.String(), tables
}
