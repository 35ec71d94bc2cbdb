package domain

import "time"

const (
	ColumnQuestion            = "Question"
	ColumnGraphOnlyAnswer     = "Graph-only Answer"
	ColumnGraphVectorAnswer   = "Graph-Vector Answer"
	ColumnVectorOnlyAnswer    = "Vector-only Answer"
	ColumnRawAnswer           = "Basic LLM Answer"
	ColumnExpectedAnswer      = "Expected Answer"
	ColumnVectorContexts      = "Vector Contexts"
	ColumnGraphContexts       = "Graph Contexts"
	ColumnGraphVectorContexts = "Graph-Vector Contexts"

	// PreviewCap bounds every tabular preview shown to the caller.
	PreviewCap = 40
	// MaxCellChars is the most characters a spreadsheet cell accepts.
	MaxCellChars = 32767
)

// DisplayColumns is the canonical preview column order.
var DisplayColumns = []string{
	ColumnQuestion,
	ColumnGraphOnlyAnswer,
	ColumnGraphVectorAnswer,
	ColumnVectorOnlyAnswer,
	ColumnRawAnswer,
	ColumnExpectedAnswer,
}

// ContextColumns lists serialized context columns.
var ContextColumns = []string{
	ColumnVectorContexts,
	ColumnGraphContexts,
	ColumnGraphVectorContexts,
}

func AnswerColumn(mode AnswerMode) string {
	switch mode {
	case ModeRaw:
		return ColumnRawAnswer
	case ModeVectorOnly:
		return ColumnVectorOnlyAnswer
	case ModeGraphOnly:
		return ColumnGraphOnlyAnswer
	case ModeGraphVector:
		return ColumnGraphVectorAnswer
	default:
		return ""
	}
}

// ContextColumn returns the context column paired with a retrieval mode, or "" for raw.
func ContextColumn(mode AnswerMode) string {
	switch mode {
	case ModeVectorOnly:
		return ColumnVectorContexts
	case ModeGraphOnly:
		return ColumnGraphContexts
	case ModeGraphVector:
		return ColumnGraphVectorContexts
	default:
		return ""
	}
}

// ModeForAnswerColumn maps a context-backed answer column back to its mode.
func ModeForAnswerColumn(column string) (AnswerMode, bool) {
	switch column {
	case ColumnVectorOnlyAnswer:
		return ModeVectorOnly, true
	case ColumnGraphOnlyAnswer:
		return ModeGraphOnly, true
	case ColumnGraphVectorAnswer:
		return ModeGraphVector, true
	default:
		return "", false
	}
}

type BatchRow struct {
	Cells map[string]string
}

// BatchDocument is an ordered table of questions and, once processed, answers and contexts.
// The first column is the question column regardless of its header.
type BatchDocument struct {
	Columns []string
	Rows    []BatchRow
}

func NewBatchDocument(columns ...string) *BatchDocument {
	cols := make([]string, 0, len(columns))
	cols = append(cols, columns...)
	return &BatchDocument{Columns: cols}
}

func (d *BatchDocument) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

func (d *BatchDocument) HasColumn(name string) bool {
	if d == nil {
		return false
	}
	for _, col := range d.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// EnsureColumn appends the column when missing.
func (d *BatchDocument) EnsureColumn(name string) {
	if !d.HasColumn(name) {
		d.Columns = append(d.Columns, name)
	}
}

func (d *BatchDocument) AppendRow(cells map[string]string) {
	row := BatchRow{Cells: make(map[string]string, len(cells))}
	for k, v := range cells {
		row.Cells[k] = v
	}
	d.Rows = append(d.Rows, row)
}

// Set writes a cell, creating the column lazily.
func (d *BatchDocument) Set(row int, column, value string) {
	d.EnsureColumn(column)
	if d.Rows[row].Cells == nil {
		d.Rows[row].Cells = make(map[string]string)
	}
	d.Rows[row].Cells[column] = value
}

func (d *BatchDocument) Value(row int, column string) string {
	if d == nil || row < 0 || row >= len(d.Rows) {
		return ""
	}
	return d.Rows[row].Cells[column]
}

// Question reads the first column of a row.
func (d *BatchDocument) Question(row int) string {
	if d == nil || len(d.Columns) == 0 {
		return ""
	}
	return d.Value(row, d.Columns[0])
}

// Head returns a copy limited to the first n rows. n <= 0 keeps every row.
func (d *BatchDocument) Head(n int) *BatchDocument {
	out := NewBatchDocument(d.Columns...)
	rows := d.Rows
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	for _, row := range rows {
		out.AppendRow(row.Cells)
	}
	return out
}

// DropEmptyColumns removes every column whose cells are all empty.
func (d *BatchDocument) DropEmptyColumns() {
	kept := d.Columns[:0]
	for _, col := range d.Columns {
		empty := true
		for _, row := range d.Rows {
			if row.Cells[col] != "" {
				empty = false
				break
			}
		}
		if empty {
			for _, row := range d.Rows {
				delete(row.Cells, col)
			}
			continue
		}
		kept = append(kept, col)
	}
	d.Columns = kept
}

// Project returns a copy restricted to the given column order, skipping absent columns.
func (d *BatchDocument) Project(order []string) *BatchDocument {
	cols := make([]string, 0, len(order))
	for _, col := range order {
		if d.HasColumn(col) {
			cols = append(cols, col)
		}
	}
	out := NewBatchDocument(cols...)
	for _, row := range d.Rows {
		cells := make(map[string]string, len(cols))
		for _, col := range cols {
			if v, ok := row.Cells[col]; ok {
				cells[col] = v
			}
		}
		out.AppendRow(cells)
	}
	return out
}

// BatchParams are shared by every row of a batch run.
type BatchParams struct {
	Modes          ModeFlags    `json:"modes"`
	Fusion         FusionParams `json:"fusion"`
	PromptTemplate string       `json:"answer_prompt"`
	PreviewLines   int          `json:"answer_max_line_count"`
}

type ProgressFunc func(done, total int)

type BatchResult struct {
	Preview  *BatchDocument
	Document *BatchDocument
	Location string
	Warnings []string
	Rejected bool
}

type UploadResult struct {
	Preview  *BatchDocument
	Rows     int
	Warnings []string
}

type BatchRunStatus string

const (
	BatchRunQueued    BatchRunStatus = "queued"
	BatchRunRunning   BatchRunStatus = "running"
	BatchRunCompleted BatchRunStatus = "completed"
	BatchRunFailed    BatchRunStatus = "failed"
)

// BatchRun tracks an asynchronous batch execution.
type BatchRun struct {
	ID        string         `json:"id"`
	Status    BatchRunStatus `json:"status"`
	Params    BatchParams    `json:"params"`
	RowsDone  int            `json:"rows_done"`
	RowsTotal int            `json:"rows_total"`
	Location  string         `json:"location,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
