package models

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Supported CSV encodings. An empty name means UTF-8.
const (
	ImportEncodingUTF8        = "utf-8"
	ImportEncodingWindows1252 = "windows-1252"
	ImportEncodingShiftJIS    = "shift_jis"
)

func importDecoder(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ImportEncodingUTF8, "utf8":
		return unicode.UTF8BOM, nil
	case ImportEncodingWindows1252, "cp1252":
		return charmap.Windows1252, nil
	case ImportEncodingShiftJIS, "sjis", "shift-jis":
		return japanese.ShiftJIS, nil
	}
	return nil, NewValidationError("encoding", "unsupported encoding %q", name)
}

// ReadProductRowsCSV reads a header row followed by data rows, decoding from enc first.
func ReadProductRowsCSV(r io.Reader, enc string) ([]ProductImportRow, error) {
	e, err := importDecoder(enc)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(transform.NewReader(r, e.NewDecoder()))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyImport
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows []ProductImportRow
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", line, err)
		}
		if row, ok := importRow(line, header, rec); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// ReadProductRowsXlsx reads sheet, or the first sheet when sheet is empty.
func ReadProductRowsXlsx(r io.Reader, sheet string) ([]ProductImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyImport
	}

	var rows []ProductImportRow
	for i, rec := range records[1:] {
		if row, ok := importRow(i+2, records[0], rec); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// importRow zips a record with the header; blank rows are skipped.
func importRow(line int, header []string, rec []string) (ProductImportRow, bool) {
	row := ProductImportRow{Row: line, Values: make(map[string]string, len(header))}
	blank := true
	for i, h := range header {
		if i >= len(rec) {
			break
		}
		v := strings.TrimSpace(rec[i])
		if v != "" {
			blank = false
		}
		row.Values[NormalizeImportHeader(h)] = v
	}
	return row, !blank
}
