// Package html reads HTML tables (the gviz "out:html" export) into raw tables.
package html

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pbietl/internal/table"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoTable is returned when the selector matches no <table>.
var ErrNoTable = errors.New("html: no table found")

// ReadTable parses the first element matched by selector (default "table").
//
// Header detection: the first <tr> whose cells are all <th> becomes the column
// names; without one, columns are named by position ("0", "1", ...). Cell text
// is whitespace-collapsed; empty cells and &nbsp;-only cells become nil.
// colspan is honoured so later cells keep their positions.
func ReadTable(r io.Reader, selector string) (*table.Table, error) {
	if selector == "" {
		selector = "table"
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w (selector %q)", ErrNoTable, selector)
	}

	var (
		header []string
		rows   [][]any
		width  int
	)
	sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("th,td")
		if cells.Length() == 0 {
			return
		}
		if header == nil && cells.Length() == tr.ChildrenFiltered("th").Length() {
			cells.Each(func(_ int, c *goquery.Selection) {
				for i := 0; i < span(c); i++ {
					header = append(header, cellText(c))
				}
			})
			return
		}
		var row []any
		cells.Each(func(_ int, c *goquery.Selection) {
			txt := cellText(c)
			for i := 0; i < span(c); i++ {
				if txt == "" {
					row = append(row, nil)
				} else {
					row = append(row, txt)
				}
			}
		})
		if len(row) > width {
			width = len(row)
		}
		rows = append(rows, row)
	})

	if len(header) > width {
		width = len(header)
	}
	cols := make([]string, width)
	for i := range cols {
		if i < len(header) && header[i] != "" {
			cols[i] = header[i]
		} else {
			cols[i] = strconv.Itoa(i)
		}
	}
	out := table.New(cols...)
	for _, r := range rows {
		if len(r) < width {
			r = append(r, make([]any, width-len(r))...)
		}
		out.Rows = append(out.Rows, r)
	}
	return out, nil
}

func span(c *goquery.Selection) int {
	v, ok := c.Attr("colspan")
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func cellText(c *goquery.Selection) string {
	// Fields splits on U+00A0 too, so &nbsp;-only cells collapse to "".
	return strings.Join(strings.Fields(c.Text()), " ")
}
