// Package table extracts HTML tables into named rows.
package table

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Row is one body row keyed by header text.
type Row struct {
	Cells map[string]string
	// Links holds every anchor href in the row, in document order.
	Links []string
}

// Table is the result of an extraction. An absent table yields the zero value.
type Table struct {
	Columns []string
	Rows    []Row
	// Dropped counts body rows discarded because their cell count did not
	// match the header count.
	Dropped int
}

// Found reports whether a header was located.
func (t Table) Found() bool { return len(t.Columns) > 0 }

// Extractor locates the first table matching a CSS selector.
type Extractor interface {
	Extract(doc []byte, selector string) (Table, error)
}

// GoqueryExtractor implements Extractor on top of goquery.
type GoqueryExtractor struct{}

// NewGoqueryExtractor returns the default Extractor.
func NewGoqueryExtractor() *GoqueryExtractor { return &GoqueryExtractor{} }

func (GoqueryExtractor) Extract(doc []byte, selector string) (Table, error) {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return Table{}, fmt.Errorf("parse document: %w", err)
	}
	node := d.Find(selector).First()
	if node.Length() == 0 {
		return Table{}, nil
	}

	var t Table
	node.ChildrenFiltered("thead").Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tr.ChildrenFiltered("th").Each(func(_ int, th *goquery.Selection) {
			t.Columns = append(t.Columns, collapse(th.Text()))
		})
	})

	node.ChildrenFiltered("tbody").ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.ChildrenFiltered("td")
		if tds.Length() != len(t.Columns) {
			t.Dropped++
			return
		}
		row := Row{Cells: make(map[string]string, len(t.Columns))}
		tds.Each(func(i int, td *goquery.Selection) {
			row.Cells[t.Columns[i]] = collapse(td.Text())
		})
		tr.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			if href, ok := a.Attr("href"); ok {
				row.Links = append(row.Links, href)
			}
		})
		t.Rows = append(t.Rows, row)
	})
	return t, nil
}

// collapse trims s and folds internal whitespace runs to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
