package tabular

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

func TestEncodeDecodeXLSXKeepsColumnOrder(t *testing.T) {
	doc := domain.NewBatchDocument(domain.ColumnQuestion, domain.ColumnExpectedAnswer, domain.ColumnGraphContexts)
	doc.AppendRow(map[string]string{
		domain.ColumnQuestion:       "Tell me about Sarah.",
		domain.ColumnExpectedAnswer: "Sarah is an attorney.",
		domain.ColumnGraphContexts:  `["Sarah -[roommate]-> 李华"]`,
	})
	doc.AppendRow(map[string]string{domain.ColumnQuestion: "Who owns the car?"})

	codec := New()
	var buf bytes.Buffer
	if err := codec.Encode(&buf, doc); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := codec.Decode(bytes.NewReader(buf.Bytes()), FormatXLSX, 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if strings.Join(got.Columns, "|") != strings.Join(doc.Columns, "|") {
		t.Fatalf("unexpected columns %v", got.Columns)
	}
	if got.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", got.Len())
	}
	if got.Value(0, domain.ColumnGraphContexts) != `["Sarah -[roommate]-> 李华"]` {
		t.Fatalf("unexpected context cell %q", got.Value(0, domain.ColumnGraphContexts))
	}
	if got.Value(1, domain.ColumnExpectedAnswer) != "" {
		t.Fatalf("expected empty trailing cell, got %q", got.Value(1, domain.ColumnExpectedAnswer))
	}
}

func TestDecodeXLSXSkipsBlankRowsAndHonorsLimit(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]any{
		{"Question", "Expected Answer"},
		{"q1", "a1"},
		{"", ""},
		{"q2", "a2"},
		{"q3", "a3"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		values := row
		if err := f.SetSheetRow("Sheet1", cell, &values); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	doc, err := New().Decode(&buf, FormatXLSX, 2)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if doc.Len() != 2 || doc.Question(1) != "q2" {
		t.Fatalf("unexpected rows %+v", doc.Rows)
	}
}

func TestDecodeCSV(t *testing.T) {
	input := "\ufeffQuestion,Expected Answer\n\"Who is Sarah, exactly?\",attorney\n,\nWhere is Bob?\n"
	doc, err := New().Decode(strings.NewReader(input), FormatCSV, 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if doc.Columns[0] != "Question" {
		t.Fatalf("expected BOM stripped, got %q", doc.Columns[0])
	}
	if doc.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", doc.Len())
	}
	if doc.Question(0) != "Who is Sarah, exactly?" || doc.Question(1) != "Where is Bob?" {
		t.Fatalf("unexpected questions %q %q", doc.Question(0), doc.Question(1))
	}
}

func TestDecodeEmptyCSV(t *testing.T) {
	doc, err := New().Decode(strings.NewReader(""), FormatCSV, 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if doc.Len() != 0 || len(doc.Columns) != 0 {
		t.Fatalf("expected empty document, got %+v", doc)
	}
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	_, err := New().Decode(strings.NewReader("x"), "pdf", 0)
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestEncodeCutsOversizedCells(t *testing.T) {
	doc := domain.NewBatchDocument(domain.ColumnQuestion, domain.ColumnRawAnswer)
	doc.AppendRow(map[string]string{
		domain.ColumnQuestion:  "Tell me about Sarah.",
		domain.ColumnRawAnswer: strings.Repeat("я", excelize.TotalCellChars+500),
	})

	codec := New()
	var buf bytes.Buffer
	if err := codec.Encode(&buf, doc); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := codec.Decode(bytes.NewReader(buf.Bytes()), FormatXLSX, 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if n := len([]rune(got.Value(0, domain.ColumnRawAnswer))); n != excelize.TotalCellChars {
		t.Fatalf("expected answer cut to %d chars, got %d", excelize.TotalCellChars, n)
	}
}
