package document

// ItemType identifies the kind of a parsed page item.
type ItemType string

const (
	ItemHeading ItemType = "heading"
	ItemText    ItemType = "text"
	ItemTable   ItemType = "table"
)

// Item is a single typed block on a parsed page, as returned by the
// external structural parser. Value holds heading/text content; Rows holds
// raw table cells with the header row first.
type Item struct {
	Type  ItemType   `json:"type"`
	Value string     `json:"value,omitempty"`
	Lvl   int        `json:"lvl,omitempty"`
	Rows  [][]string `json:"rows,omitempty"`
}

// Page is one page of a parsed document.
type Page struct {
	Page  int    `json:"page"`
	Items []Item `json:"items"`
}

// Parsed is the full parser output for one document, in page order.
// It is produced once per source file and treated as immutable.
type Parsed []Page

// PageByNumber returns the page with the given number, or nil.
func (d Parsed) PageByNumber(n int) *Page {
	for i := range d {
		if d[i].Page == n {
			return &d[i]
		}
	}
	return nil
}

// FirstItem returns the first item on the page, or nil for an empty page.
func (p *Page) FirstItem() *Item {
	if len(p.Items) == 0 {
		return nil
	}
	return &p.Items[0]
}
