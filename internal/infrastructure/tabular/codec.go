package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"

	defaultSheet = "Sheet1"
)

// Codec reads .xlsx/.csv question tables and always writes .xlsx.
type Codec struct{}

func New() *Codec {
	return &Codec{}
}

// Decode treats the first row as the header. Fully empty rows are skipped and limit > 0 caps the data rows.
func (c *Codec) Decode(r io.Reader, format string, limit int) (*domain.BatchDocument, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(format) {
	case FormatXLSX:
		rows, err = readXLSX(r)
	case FormatCSV:
		rows, err = readCSV(r)
	default:
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "decode table", fmt.Errorf("format %q", format))
	}
	if err != nil {
		return nil, err
	}
	return buildDocument(rows, limit), nil
}

func (c *Codec) Encode(w io.Writer, doc *domain.BatchDocument) error {
	f := excelize.NewFile()
	defer f.Close()

	if doc == nil {
		doc = domain.NewBatchDocument()
	}
	header := make([]any, 0, len(doc.Columns))
	for _, col := range doc.Columns {
		header = append(header, col)
	}
	if err := f.SetSheetRow(defaultSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range doc.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name for row %d: %w", i, err)
		}
		values := make([]any, 0, len(doc.Columns))
		for _, col := range doc.Columns {
			values = append(values, fitCell(row.Cells[col]))
		}
		if err := f.SetSheetRow(defaultSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// fitCell cuts a value to the workbook's per-cell character limit.
func fitCell(v string) string {
	if utf8.RuneCountInString(v) <= excelize.TotalCellChars {
		return v
	}
	return string([]rune(v)[:excelize.TotalCellChars])
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, record)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func buildDocument(rows [][]string, limit int) *domain.BatchDocument {
	for len(rows) > 0 && blankRow(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return domain.NewBatchDocument()
	}

	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		header[i] = name
	}
	doc := domain.NewBatchDocument(header...)

	for _, row := range rows[1:] {
		if limit > 0 && doc.Len() >= limit {
			break
		}
		if blankRow(row) {
			continue
		}
		cells := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				cells[col] = row[i]
			}
		}
		doc.AppendRow(cells)
	}
	return doc
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
