// Package persist writes fetched record sets to disk as raw JSON,
// flattened JSON and CSV.
package persist

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	gojson "github.com/goccy/go-json"

	"github.com/dvloznov/billing-reporter/internal/flatten"
	"github.com/dvloznov/billing-reporter/internal/kvtext"
)

// Layout selects how nested values become CSV columns.
type Layout int

const (
	// LayoutFlat writes one column per flattened leaf key.
	LayoutFlat Layout = iota
	// LayoutEmbedded writes one column per top-level key. Nested values are
	// embedded as single-quoted key/value text (see kvtext).
	LayoutEmbedded
)

func (l Layout) String() string {
	switch l {
	case LayoutFlat:
		return "flat"
	case LayoutEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

// Paths are the three artifacts produced for one record set.
type Paths struct {
	RawJSON  string
	FlatJSON string
	CSV      string
}

// Table is the tabular form of a record set. Columns is the union of keys
// across all rows in first-seen order; missing cells are empty strings.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Records returns each row as an ordered mapping of column to cell,
// skipping empty cells.
func (t *Table) Records() []*flatten.Object {
	out := make([]*flatten.Object, 0, len(t.Rows))
	for _, row := range t.Rows {
		obj := flatten.NewObject()
		for i, cell := range row {
			if cell != "" && i < len(t.Columns) {
				obj.Set(t.Columns[i], cell)
			}
		}
		out = append(out, obj)
	}
	return out
}

// Write converts every record, then writes the raw JSON, flattened JSON and
// CSV files. Nothing is written if any record fails to convert. An empty or
// nil record set is written as an empty JSON array.
func Write[T any](records []T, paths Paths, layout Layout) (*Table, error) {
	if records == nil {
		records = []T{}
	}

	raw, err := gojson.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("Write: marshal raw records: %w", err)
	}

	flat, err := flatten.Records(records)
	if err != nil {
		return nil, fmt.Errorf("Write: %w", err)
	}

	flatJSON, err := gojson.MarshalIndent(flat, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("Write: marshal flattened records: %w", err)
	}

	var rows []*flatten.Object
	switch layout {
	case LayoutFlat:
		rows = flat
	case LayoutEmbedded:
		rows, err = embedRows(records)
		if err != nil {
			return nil, fmt.Errorf("Write: %w", err)
		}
	default:
		return nil, fmt.Errorf("Write: unknown layout %d", layout)
	}

	table, err := buildTable(rows)
	if err != nil {
		return nil, fmt.Errorf("Write: %w", err)
	}

	var csvBuf bytes.Buffer
	if err := encodeCSV(&csvBuf, table); err != nil {
		return nil, fmt.Errorf("Write: encode csv: %w", err)
	}

	for _, f := range []struct {
		path string
		data []byte
	}{
		{paths.RawJSON, raw},
		{paths.FlatJSON, flatJSON},
		{paths.CSV, csvBuf.Bytes()},
	} {
		if f.path == "" {
			continue
		}
		if err := writeFile(f.path, f.data); err != nil {
			return nil, fmt.Errorf("Write: %w", err)
		}
	}
	return table, nil
}

// embedRows keeps top-level scalars and renders nested values as kvtext.
func embedRows[T any](records []T) ([]*flatten.Object, error) {
	out := make([]*flatten.Object, 0, len(records))
	for i, r := range records {
		doc, err := flatten.ObjectFromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		row := flatten.NewObject()
		for _, k := range doc.Keys() {
			v, _ := doc.Get(k)
			switch v.(type) {
			case *flatten.Object, []any:
				text, err := kvtext.Encode(v)
				if err != nil {
					return nil, fmt.Errorf("record %d: column %s: %w", i, k, err)
				}
				row.Set(k, text)
			default:
				row.Set(k, v)
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func buildTable(rows []*flatten.Object) (*Table, error) {
	t := &Table{}
	pos := map[string]int{}
	for _, r := range rows {
		for _, k := range r.Keys() {
			if _, ok := pos[k]; !ok {
				pos[k] = len(t.Columns)
				t.Columns = append(t.Columns, k)
			}
		}
	}

	for i, r := range rows {
		row := make([]string, len(t.Columns))
		for _, k := range r.Keys() {
			v, _ := r.Get(k)
			cell, err := Cell(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: column %s: %w", i, k, err)
			}
			row[pos[k]] = cell
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Cell renders a scalar as CSV text. nil becomes an empty cell.
func Cell(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case bool:
		return strconv.FormatBool(s), nil
	case json.Number:
		return s.String(), nil
	default:
		return "", fmt.Errorf("unsupported cell value %T", v)
	}
}

func encodeCSV(buf *bytes.Buffer, t *Table) error {
	w := csv.NewWriter(buf)
	if err := w.Write(t.Columns); err != nil {
		return err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return err
	}
	return w.Error()
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadCSV loads a CSV written by Write (or any CSV with a header row).
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadCSV: %w", err)
	}
	defer f.Close()

	t, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("ReadCSV: %s: %w", path, err)
	}
	return t, nil
}

// ParseCSV reads a header row followed by data rows. Short rows are padded
// with empty cells.
func ParseCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ParseCSV: %w", err)
	}
	if len(all) == 0 {
		return &Table{}, nil
	}

	t := &Table{Columns: all[0]}
	for _, rec := range all[1:] {
		row := make([]string, len(t.Columns))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteTable writes a table as CSV.
func WriteTable(path string, t *Table) error {
	var buf bytes.Buffer
	if err := encodeCSV(&buf, t); err != nil {
		return fmt.Errorf("WriteTable: %w", err)
	}
	if err := writeFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("WriteTable: %w", err)
	}
	return nil
}
