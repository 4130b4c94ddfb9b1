package validation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// ReadCSV parses an uploaded comma-separated file into a Dataframe. The
// first row is the header. Cells matching a null token become nil; fields
// wrapped in single quotes are unwrapped, matching the upload format.
func ReadCSV(r io.Reader) (*Dataframe, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, domain.NewValidationError("uploaded file must not be empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	df := &Dataframe{Columns: make([]string, len(header))}
	for i, h := range header {
		df.Columns[i] = unquoteField(h)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV record: %w", err)
		}

		row := make([]*string, len(df.Columns))
		for i := range df.Columns {
			if i >= len(record) {
				continue
			}
			cell := unquoteField(record[i])
			if IsNullToken(cell) {
				continue
			}
			trimmed := strings.TrimSpace(cell)
			row[i] = &trimmed
		}
		df.Rows = append(df.Rows, row)
	}

	if len(df.Rows) == 0 {
		return nil, domain.NewValidationError("uploaded file contains no data rows")
	}
	return df, nil
}

// unquoteField strips a single-quote wrapping from a field, the quote
// character used by the upload format.
func unquoteField(field string) string {
	field = strings.TrimSpace(field)
	if len(field) >= 2 && field[0] == '\'' && field[len(field)-1] == '\'' {
		return field[1 : len(field)-1]
	}
	return field
}
