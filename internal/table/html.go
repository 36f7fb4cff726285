package table

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/VishalVarwani/waterproject/internal/apperrors"
)

// htmlTable is one <table> of an HTML export with its sheet name.
type htmlTable struct {
	name string
	sel  *goquery.Selection
}

// HTMLSheets lists the sheet names of an HTML export: each top-level <table>
// is one sheet, named by its id, else its <caption>, else "table<N>" (1-based).
func HTMLSheets(r io.Reader) ([]string, error) {
	tables, err := htmlTables(r)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = t.name
	}
	return out, nil
}

// ReadHTML reads the table named sheet from an HTML export. An empty sheet
// selects the first table. It returns the sheet actually read.
func ReadHTML(r io.Reader, sheet string) (*Table, string, error) {
	tables, err := htmlTables(r)
	if err != nil {
		return nil, "", err
	}
	if len(tables) == 0 {
		return nil, "", fmt.Errorf("html: no <table> elements: %w", apperrors.ErrEmptyTable)
	}

	pick := tables[0]
	if sheet != "" {
		found := false
		for _, t := range tables {
			if t.name == sheet {
				pick, found = t, true
				break
			}
		}
		if !found {
			return nil, "", fmt.Errorf("html: sheet %q not found: %w", sheet, apperrors.ErrPrecondition)
		}
	}

	tbl, err := FromRecords(tableRecords(pick.sel))
	if err != nil {
		return nil, "", fmt.Errorf("html sheet %q: %w", pick.name, err)
	}
	return tbl, pick.name, nil
}

func htmlTables(r io.Reader) ([]htmlTable, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("html parse: %w", err)
	}

	var out []htmlTable
	doc.Find("table").Each(func(i int, s *goquery.Selection) {
		if s.ParentsFiltered("table").Length() > 0 {
			return
		}
		name := strings.TrimSpace(s.AttrOr("id", ""))
		if name == "" {
			name = CollapseSpace(s.ChildrenFiltered("caption").First().Text())
		}
		if name == "" {
			name = "table" + strconv.Itoa(len(out)+1)
		}
		out = append(out, htmlTable{name: name, sel: s})
	})
	return out, nil
}

// tableRecords flattens the rows of a table. A cell with colspan=n is repeated
// n times so columns stay aligned with the header.
func tableRecords(tbl *goquery.Selection) [][]string {
	var records [][]string
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.ParentsFiltered("table").First().Get(0) != tbl.Get(0) {
			return
		}
		var rec []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			text := CollapseSpace(cell.Text())
			span, err := strconv.Atoi(cell.AttrOr("colspan", "1"))
			if err != nil || span < 1 {
				span = 1
			}
			for k := 0; k < span; k++ {
				rec = append(rec, text)
			}
		})
		records = append(records, rec)
	})
	return records
}
