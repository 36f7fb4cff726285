package table

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/VishalVarwani/waterproject/internal/apperrors"
)

// Kind is the detected input format.
type Kind string

const (
	KindCSV  Kind = "csv"
	KindHTML Kind = "html"
)

// Source is a table read from an uploaded file.
type Source struct {
	Kind  Kind
	Table *Table
	// Sheet is the sheet that was read; empty for CSV.
	Sheet string
	// Sheets lists every sheet of the file; ["csv"] for CSV.
	Sheets []string
}

// DetectKind picks the reader from the file extension and, for spreadsheet
// extensions, from the content: HTML-table exports (.xls/.html/.htm) start
// with markup. Binary workbooks are not supported.
func DetectKind(fileName string, raw []byte) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	markup := looksLikeMarkup(raw)
	switch ext {
	case ".csv", ".tsv", ".txt":
		return KindCSV, nil
	case ".html", ".htm", ".xls":
		if markup {
			return KindHTML, nil
		}
	case "":
		if markup {
			return KindHTML, nil
		}
		return KindCSV, nil
	}
	return "", fmt.Errorf("file %q: %w", fileName, apperrors.ErrUnsupportedFormat)
}

// ListSheets reports the kind and sheet names of a file without mapping it.
func ListSheets(fileName string, raw []byte) (Kind, []string, error) {
	kind, err := DetectKind(fileName, raw)
	if err != nil {
		return "", nil, err
	}
	if kind == KindCSV {
		return kind, []string{CSVSheet}, nil
	}
	sheets, err := HTMLSheets(bytes.NewReader(raw))
	return kind, sheets, err
}

// Read parses raw as the format implied by fileName and returns the requested
// sheet (empty: first sheet). The sheet argument is ignored for CSV.
func Read(fileName string, raw []byte, sheet string) (*Source, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("file %q is empty: %w", fileName, apperrors.ErrEmptyTable)
	}
	kind, err := DetectKind(fileName, raw)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindCSV:
		t, err := ReadCSV(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		return &Source{Kind: kind, Table: t, Sheets: []string{CSVSheet}}, nil
	default:
		sheets, err := HTMLSheets(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		t, used, err := ReadHTML(bytes.NewReader(raw), sheet)
		if err != nil {
			return nil, err
		}
		return &Source{Kind: kind, Table: t, Sheet: used, Sheets: sheets}, nil
	}
}

func looksLikeMarkup(raw []byte) bool {
	head := raw
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.TrimPrefix(bytes.TrimSpace(head), []byte("\xef\xbb\xbf"))
	return len(head) > 0 && head[0] == '<'
}
