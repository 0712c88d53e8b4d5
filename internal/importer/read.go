package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

type row struct {
	num    int
	values map[string]string
}

// lookup reports the cell under column and whether the column exists.
func (r row) lookup(column string) (string, bool) {
	value, ok := r.values[column]
	return value, ok
}

func (r row) value(column string) string {
	return strings.TrimSpace(r.values[column])
}

func readRows(req Request) ([]row, error) {
	var (
		header  []string
		records [][]string
		err     error
	)
	switch req.Format {
	case "", FormatCSV:
		var text string
		text, err = decode(req.Payload)
		if err != nil {
			return nil, err
		}
		header, records, err = readDelimited(text, req.Delimiter)
	case FormatXLSX:
		header, records, err = readWorkbook(req.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return nil, err
	}
	return toRows(header, records), nil
}

// decode returns the payload as text, reading it as UTF-8 when valid and
// as Latin-1 otherwise.
func decode(payload []byte) (string, error) {
	if utf8.Valid(payload) {
		return strings.TrimPrefix(string(payload), "\ufeff"), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(payload)
	if err != nil {
		return "", fmt.Errorf("importer: decode payload: %w", err)
	}
	return string(decoded), nil
}

func readDelimited(text string, delimiter rune) ([]string, [][]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("importer: read header: %w", err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("importer: read rows: %w", err)
	}
	return header, records, nil
}

func readWorkbook(payload []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("importer: open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("importer: read sheet %q: %w", sheet, err)
	}

	var records [][]string
	for _, cells := range rows {
		if isBlank(cells) {
			continue
		}
		records = append(records, cells)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

func isBlank(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// toRows keys every record by its normalised header. Data rows are
// numbered from 2, the header being row 1.
func toRows(header []string, records [][]string) []row {
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(name))
	}

	rows := make([]row, 0, len(records))
	for i, record := range records {
		values := make(map[string]string, len(columns))
		for j, column := range columns {
			if j < len(record) {
				values[column] = record[j]
			} else {
				values[column] = ""
			}
		}
		rows = append(rows, row{num: i + 2, values: values})
	}
	return rows
}
