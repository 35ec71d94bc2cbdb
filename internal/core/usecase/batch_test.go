package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

type memoryStorageFake struct {
	files   map[string][]byte
	deleted []string
}

func newMemoryStorageFake() *memoryStorageFake {
	return &memoryStorageFake{files: make(map[string][]byte)}
}

func (s *memoryStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.files[key] = b
	return nil
}

func (s *memoryStorageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := s.files[key]
	if !ok {
		return nil, errors.New("missing " + key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *memoryStorageFake) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.files[key]
	return ok, nil
}

func (s *memoryStorageFake) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	delete(s.files, key)
	return nil
}

func (s *memoryStorageFake) Location(key string) string {
	return "mem://" + key
}

// jsonCodecFake stands in for the spreadsheet codec; every format is JSON.
type jsonCodecFake struct{}

type jsonDocument struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

func (jsonCodecFake) Decode(r io.Reader, _ string, limit int) (*domain.BatchDocument, error) {
	var raw jsonDocument
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}
	doc := domain.NewBatchDocument(raw.Columns...)
	for _, row := range raw.Rows {
		if limit > 0 && doc.Len() >= limit {
			break
		}
		doc.AppendRow(row)
	}
	return doc, nil
}

func (jsonCodecFake) Encode(w io.Writer, doc *domain.BatchDocument) error {
	raw := jsonDocument{Columns: doc.Columns}
	for _, row := range doc.Rows {
		raw.Rows = append(raw.Rows, row.Cells)
	}
	return json.NewEncoder(w).Encode(raw)
}

type rowAnswererFake struct {
	requests []domain.AnswerRequest
	fallback bool
	failOn   int
}

func (f *rowAnswererFake) AnswerRow(_ context.Context, req domain.AnswerRequest) (domain.AnswerOutcome, error) {
	f.requests = append(f.requests, req)
	if f.failOn > 0 && len(f.requests) == f.failOn {
		return domain.AnswerOutcome{}, domain.WrapError(domain.ErrUpstream, "rag answer", errors.New("llm down"))
	}
	var answers domain.Answers
	var bundle domain.ContextBundle
	for _, mode := range req.Modes.Active() {
		answers.Set(mode, fmt.Sprintf("%s answer to %s", mode, req.Question))
	}
	if req.Modes.GraphVector {
		bundle.GraphVectorContexts = []string{"Sarah -[lives_in]-> Seattle", "Сиэтл <b>"}
	}
	return domain.AnswerOutcome{
		Status: domain.OutcomeAnswered,
		Result: domain.AnswerResult{Answers: answers, Contexts: bundle, RerankFallback: f.fallback},
	}, nil
}

func questionsFile(t *testing.T, n int) io.Reader {
	t.Helper()
	doc := domain.NewBatchDocument(domain.ColumnQuestion, domain.ColumnExpectedAnswer)
	for i := 0; i < n; i++ {
		doc.AppendRow(map[string]string{
			domain.ColumnQuestion:       fmt.Sprintf("question %d", i+1),
			domain.ColumnExpectedAnswer: fmt.Sprintf("expected %d", i+1),
		})
	}
	var buf bytes.Buffer
	if err := (jsonCodecFake{}).Encode(&buf, doc); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return &buf
}

func TestBatchUseCaseUploadRejectsUnsupportedFormat(t *testing.T) {
	storage := newMemoryStorageFake()
	storage.files[AnswersKey] = []byte("old")
	uc := NewBatchUseCase(&rowAnswererFake{}, storage, jsonCodecFake{})

	_, err := uc.UploadQuestions(context.Background(), "questions.pdf", strings.NewReader("x"), 0)
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if _, ok := storage.files[AnswersKey]; ok {
		t.Fatalf("expected previous answers to be deleted")
	}
	if _, ok := storage.files[QuestionsKey]; ok {
		t.Fatalf("expected no questions file")
	}
}

func TestBatchUseCaseUploadEmptyFileReplacesQuestions(t *testing.T) {
	storage := newMemoryStorageFake()
	answerer := &rowAnswererFake{}
	uc := NewBatchUseCase(answerer, storage, jsonCodecFake{})

	if _, err := uc.UploadQuestions(context.Background(), "q.csv", questionsFile(t, 3), 0); err != nil {
		t.Fatalf("first UploadQuestions() error = %v", err)
	}
	result, err := uc.UploadQuestions(context.Background(), "q.csv", questionsFile(t, 0), 0)
	if err != nil {
		t.Fatalf("UploadQuestions() error = %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != domain.WarningEmptyUpload {
		t.Fatalf("expected empty upload warning, got %v", result.Warnings)
	}
	if result.Preview.Len() != 0 {
		t.Fatalf("expected empty preview, got %d rows", result.Preview.Len())
	}

	run, err := uc.Run(context.Background(), domain.BatchParams{Modes: domain.ModeFlags{Raw: true}}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(answerer.requests) != 0 {
		t.Fatalf("expected old questions to be discarded, got %d answered rows", len(answerer.requests))
	}
	if run.Document.Len() != 0 {
		t.Fatalf("expected empty answers document, got %d rows", run.Document.Len())
	}
}

func TestBatchUseCaseUploadCapsPreview(t *testing.T) {
	storage := newMemoryStorageFake()
	uc := NewBatchUseCase(&rowAnswererFake{}, storage, jsonCodecFake{})

	result, err := uc.UploadQuestions(context.Background(), "Q.XLSX", questionsFile(t, 55), 0)
	if err != nil {
		t.Fatalf("UploadQuestions() error = %v", err)
	}
	if result.Preview.Len() != domain.PreviewCap || result.Rows != domain.PreviewCap {
		t.Fatalf("expected preview capped at %d, got len=%d rows=%d", domain.PreviewCap, result.Preview.Len(), result.Rows)
	}

	stored, err := uc.loadDocument(context.Background(), QuestionsKey, 0)
	if err != nil {
		t.Fatalf("loadDocument() error = %v", err)
	}
	if stored.Len() != 55 {
		t.Fatalf("expected full question set stored, got %d", stored.Len())
	}
}

func TestBatchUseCaseUploadHonorsLineCount(t *testing.T) {
	uc := NewBatchUseCase(&rowAnswererFake{}, newMemoryStorageFake(), jsonCodecFake{})

	result, err := uc.UploadQuestions(context.Background(), "q.xlsx", questionsFile(t, 10), 3)
	if err != nil {
		t.Fatalf("UploadQuestions() error = %v", err)
	}
	if result.Rows != 3 {
		t.Fatalf("expected 3 rows, got %d", result.Rows)
	}
}

func TestBatchUseCaseRunRejectsWithoutModes(t *testing.T) {
	answerer := &rowAnswererFake{}
	uc := NewBatchUseCase(answerer, newMemoryStorageFake(), jsonCodecFake{})

	result, err := uc.Run(context.Background(), domain.BatchParams{}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Rejected || result.Warnings[0] != domain.WarningNoModeSelected {
		t.Fatalf("expected rejected result, got %+v", result)
	}
	if len(answerer.requests) != 0 {
		t.Fatalf("expected no rows answered")
	}
}

func TestBatchUseCaseRunWithFallbackEmitsSingleAdvisory(t *testing.T) {
	storage := newMemoryStorageFake()
	answerer := &rowAnswererFake{fallback: true}
	uc := NewBatchUseCase(answerer, storage, jsonCodecFake{})
	if _, err := uc.UploadQuestions(context.Background(), "q.xlsx", questionsFile(t, 3), 0); err != nil {
		t.Fatalf("UploadQuestions() error = %v", err)
	}

	var progress [][2]int
	result, err := uc.Run(context.Background(), domain.BatchParams{
		Modes:  domain.ModeFlags{GraphVector: true},
		Fusion: domain.FusionParams{RerankMethod: domain.RerankOnline},
	}, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Warnings) != 1 || result.Warnings[0] != domain.WarningRerankFallback {
		t.Fatalf("expected exactly one fallback advisory, got %v", result.Warnings)
	}
	if len(progress) != 3 || progress[2] != [2]int{3, 3} {
		t.Fatalf("unexpected progress updates: %v", progress)
	}
	if result.Location != "mem://"+AnswersKey {
		t.Fatalf("unexpected location %s", result.Location)
	}

	stored, err := uc.loadDocument(context.Background(), AnswersKey, 0)
	if err != nil {
		t.Fatalf("loadDocument() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if stored.Value(i, domain.ColumnGraphVectorAnswer) == "" {
			t.Fatalf("row %d missing graph-vector answer", i)
		}
		contexts, err := decodeContexts(stored.Value(i, domain.ColumnGraphVectorContexts))
		if err != nil || len(contexts) != 2 {
			t.Fatalf("row %d invalid contexts %q: %v", i, stored.Value(i, domain.ColumnGraphVectorContexts), err)
		}
	}
	if stored.HasColumn(domain.ColumnRawAnswer) || stored.HasColumn(domain.ColumnVectorContexts) {
		t.Fatalf("expected inactive columns to be absent, got %v", stored.Columns)
	}
	if result.Preview.HasColumn(domain.ColumnGraphVectorContexts) {
		t.Fatalf("preview must not show context columns")
	}
	if result.Preview.Columns[0] != domain.ColumnQuestion || result.Preview.Columns[1] != domain.ColumnGraphVectorAnswer {
		t.Fatalf("unexpected preview column order %v", result.Preview.Columns)
	}
}

func TestBatchUseCaseRunTwiceIsIdempotent(t *testing.T) {
	storage := newMemoryStorageFake()
	uc := NewBatchUseCase(&rowAnswererFake{}, storage, jsonCodecFake{})
	if _, err := uc.UploadQuestions(context.Background(), "q.xlsx", questionsFile(t, 4), 0); err != nil {
		t.Fatalf("UploadQuestions() error = %v", err)
	}
	params := domain.BatchParams{Modes: domain.ModeFlags{Raw: true, GraphVector: true}}

	if _, err := uc.Run(context.Background(), params, nil); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	first := append([]byte(nil), storage.files[AnswersKey]...)
	if _, err := uc.Run(context.Background(), params, nil); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if !bytes.Equal(first, storage.files[AnswersKey]) {
		t.Fatalf("expected byte-identical answers after rerun")
	}
}

func TestBatchUseCaseRunAbortsOnRowFailure(t *testing.T) {
	storage := newMemoryStorageFake()
	answerer := &rowAnswererFake{failOn: 2}
	uc := NewBatchUseCase(answerer, storage, jsonCodecFake{})
	if _, err := uc.UploadQuestions(context.Background(), "q.xlsx", questionsFile(t, 3), 0); err != nil {
		t.Fatalf("UploadQuestions() error = %v", err)
	}

	_, err := uc.Run(context.Background(), domain.BatchParams{Modes: domain.ModeFlags{Raw: true}}, nil)
	if !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(answerer.requests) != 2 {
		t.Fatalf("expected remaining rows to be skipped, got %d requests", len(answerer.requests))
	}
	if _, ok := storage.files[AnswersKey]; ok {
		t.Fatalf("expected no answers persisted for an aborted run")
	}
}

func TestBatchUseCaseRunWithoutQuestions(t *testing.T) {
	uc := NewBatchUseCase(&rowAnswererFake{}, newMemoryStorageFake(), jsonCodecFake{})
	_, err := uc.Run(context.Background(), domain.BatchParams{Modes: domain.ModeFlags{Raw: true}}, nil)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBatchUseCasePreviewPriority(t *testing.T) {
	storage := newMemoryStorageFake()
	uc := NewBatchUseCase(&rowAnswererFake{}, storage, jsonCodecFake{})
	if err := uc.EnsureTemplate(context.Background()); err != nil {
		t.Fatalf("EnsureTemplate() error = %v", err)
	}

	doc, err := uc.Preview(context.Background(), 5)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if doc.Question(0) != domain.DefaultQuestion {
		t.Fatalf("expected template preview, got %q", doc.Question(0))
	}

	if _, err := uc.UploadQuestions(context.Background(), "q.xlsx", questionsFile(t, 10), 0); err != nil {
		t.Fatalf("UploadQuestions() error = %v", err)
	}
	doc, _ = uc.Preview(context.Background(), 5)
	if doc.Len() != 5 || doc.Question(0) != "question 1" {
		t.Fatalf("expected questions preview, got len=%d first=%q", doc.Len(), doc.Question(0))
	}

	if _, err := uc.Run(context.Background(), domain.BatchParams{Modes: domain.ModeFlags{Raw: true}}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	doc, _ = uc.Preview(context.Background(), 0)
	if !doc.HasColumn(domain.ColumnRawAnswer) || doc.Len() != 10 {
		t.Fatalf("expected answers preview, got columns=%v len=%d", doc.Columns, doc.Len())
	}
}

func TestBatchUseCaseOpenAnswersMissing(t *testing.T) {
	uc := NewBatchUseCase(&rowAnswererFake{}, newMemoryStorageFake(), jsonCodecFake{})
	if _, err := uc.OpenAnswers(context.Background()); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEncodeContextsKeepsUnicodeAndHTML(t *testing.T) {
	got, err := encodeContexts([]string{"北京 <b>", "x"})
	if err != nil {
		t.Fatalf("encodeContexts() error = %v", err)
	}
	if got != `["北京 <b>","x"]` {
		t.Fatalf("unexpected encoding %s", got)
	}
	empty, _ := encodeContexts(nil)
	if empty != "[]" {
		t.Fatalf("expected [] for nil contexts, got %s", empty)
	}
}

func TestEncodeContextsFitsOneCell(t *testing.T) {
	long := strings.Repeat("Sarah lives in Seattle. ", 1000)
	contexts := []string{long, long, long}

	got, err := encodeContexts(contexts)
	if err != nil {
		t.Fatalf("encodeContexts() error = %v", err)
	}
	if n := len([]rune(got)); n > domain.MaxCellChars {
		t.Fatalf("encoded contexts take %d chars", n)
	}
	decoded, err := decodeContexts(got)
	if err != nil {
		t.Fatalf("expected valid JSON after trimming: %v", err)
	}
	if len(decoded) != 1 || decoded[0] != long {
		t.Fatalf("expected the leading context kept whole, got %d contexts", len(decoded))
	}

	huge, err := encodeContexts([]string{strings.Repeat("\"quoted\" ", 5000)})
	if err != nil {
		t.Fatalf("encodeContexts() error = %v", err)
	}
	if n := len([]rune(huge)); n > domain.MaxCellChars {
		t.Fatalf("single context takes %d chars", n)
	}
	if _, err := decodeContexts(huge); err != nil {
		t.Fatalf("expected valid JSON for a cut context: %v", err)
	}
}
