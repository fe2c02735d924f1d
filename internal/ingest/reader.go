package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Table is a parsed CSV file: a header row and string cells. Every row has
// exactly len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ReadTable decodes r to UTF-8 and parses it as CSV with a header row.
func ReadTable(r io.Reader) (Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Table{}, newError(KindRead, "Unable to read file: "+err.Error(), err)
	}
	data, err := decodeText(raw)
	if err != nil {
		return Table{}, newError(KindRead, "Unable to decode file: "+err.Error(), err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, newError(KindRead, "No columns to parse from file", err)
	}
	if err != nil {
		return Table{}, newError(KindRead, "Error tokenizing data: "+err.Error(), err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(h)
	}

	t := Table{Columns: cols}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, newError(KindRead, "Error tokenizing data: "+err.Error(), err)
		}
		if len(rec) > len(cols) {
			line, _ := cr.FieldPos(0)
			msg := fmt.Sprintf("Error tokenizing data. Expected %d fields in line %d, saw %d", len(cols), line, len(rec))
			return Table{}, newError(KindRead, msg, nil)
		}
		if len(rec) < len(cols) {
			padded := make([]string, len(cols))
			copy(padded, rec)
			rec = padded
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// decodeText strips a UTF-8 BOM, decodes UTF-16 announced by a BOM, and
// falls back to ISO-8859-1 for bytes that are not valid UTF-8.
func decodeText(b []byte) ([]byte, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), b)
	if err != nil {
		return nil, err
	}
	if utf8.Valid(out) {
		return out, nil
	}
	return charmap.ISO8859_1.NewDecoder().Bytes(b)
}
