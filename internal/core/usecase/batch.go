package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/core/ports"
)

const (
	QuestionsKey = "questions.xlsx"
	AnswersKey   = "questions_answers.xlsx"
	TemplateKey  = "questions_template.xlsx"

	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

type BatchUseCase struct {
	answerer ports.RowAnswerer
	storage  ports.ObjectStorage
	codec    ports.TabularCodec
}

func NewBatchUseCase(answerer ports.RowAnswerer, storage ports.ObjectStorage, codec ports.TabularCodec) *BatchUseCase {
	return &BatchUseCase{
		answerer: answerer,
		storage:  storage,
		codec:    codec,
	}
}

// EnsureTemplate writes the downloadable question template when it does not exist yet.
func (uc *BatchUseCase) EnsureTemplate(ctx context.Context) error {
	exists, err := uc.storage.Exists(ctx, TemplateKey)
	if err != nil {
		return fmt.Errorf("check question template: %w", err)
	}
	if exists {
		return nil
	}

	doc := domain.NewBatchDocument(domain.ColumnQuestion, domain.ColumnExpectedAnswer)
	doc.AppendRow(map[string]string{
		domain.ColumnQuestion:       domain.DefaultQuestion,
		domain.ColumnExpectedAnswer: "Sarah is a 30-year-old attorney who lives in Seattle and shares a room with Bob.",
	})
	if err := uc.saveDocument(ctx, TemplateKey, doc); err != nil {
		return fmt.Errorf("write question template: %w", err)
	}
	return nil
}

// UploadQuestions replaces the question batch and discards answers produced for the previous one.
func (uc *BatchUseCase) UploadQuestions(ctx context.Context, filename string, body io.Reader, lineCount int) (domain.UploadResult, error) {
	if err := uc.storage.Delete(ctx, AnswersKey); err != nil {
		return domain.UploadResult{}, fmt.Errorf("delete previous answers: %w", err)
	}

	format, err := tabularFormat(filename)
	if err != nil {
		return domain.UploadResult{}, err
	}

	doc, err := uc.codec.Decode(body, format, lineCount)
	if err != nil {
		return domain.UploadResult{}, domain.WrapError(domain.ErrInvalidInput, "decode questions", err)
	}
	if err := uc.saveDocument(ctx, QuestionsKey, doc); err != nil {
		return domain.UploadResult{}, fmt.Errorf("store questions: %w", err)
	}
	if doc.Len() == 0 {
		return domain.UploadResult{
			Preview:  doc,
			Warnings: []string{domain.WarningEmptyUpload},
		}, nil
	}
	return domain.UploadResult{
		Preview: doc.Head(domain.PreviewCap),
		Rows:    min(doc.Len(), domain.PreviewCap),
	}, nil
}

// Preview shows the answers if present, otherwise the questions, otherwise the template.
func (uc *BatchUseCase) Preview(ctx context.Context, lineCount int) (*domain.BatchDocument, error) {
	limit := clampPreview(lineCount)
	for _, key := range []string{AnswersKey, QuestionsKey, TemplateKey} {
		exists, err := uc.storage.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", key, err)
		}
		if !exists {
			continue
		}
		doc, err := uc.loadDocument(ctx, key, limit)
		if err != nil {
			return nil, err
		}
		if key == AnswersKey {
			doc = doc.Project(displayOrder(doc))
		}
		return doc, nil
	}
	return domain.NewBatchDocument(domain.ColumnQuestion, domain.ColumnExpectedAnswer), nil
}

// Run answers every stored question sequentially and overwrites the answers file.
// The first failing row aborts the run and nothing is persisted.
func (uc *BatchUseCase) Run(ctx context.Context, params domain.BatchParams, progress domain.ProgressFunc) (domain.BatchResult, error) {
	if !params.Modes.Any() {
		return domain.BatchResult{Rejected: true, Warnings: []string{domain.WarningNoModeSelected}}, nil
	}

	exists, err := uc.storage.Exists(ctx, QuestionsKey)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("check questions: %w", err)
	}
	if !exists {
		return domain.BatchResult{}, domain.WrapError(domain.ErrNotFound, "run batch", errors.New("no questions uploaded"))
	}
	doc, err := uc.loadDocument(ctx, QuestionsKey, 0)
	if err != nil {
		return domain.BatchResult{}, err
	}

	var warnings []string
	fallbackReported := false
	total := doc.Len()
	for i := 0; i < total; i++ {
		outcome, err := uc.answerer.AnswerRow(ctx, domain.AnswerRequest{
			Question:       doc.Question(i),
			Modes:          params.Modes,
			Fusion:         params.Fusion,
			PromptTemplate: params.PromptTemplate,
		})
		if err != nil {
			return domain.BatchResult{}, fmt.Errorf("answer row %d: %w", i+1, err)
		}

		for _, mode := range params.Modes.Active() {
			doc.Set(i, domain.AnswerColumn(mode), outcome.Result.Answers.ForMode(mode))
			if column := domain.ContextColumn(mode); column != "" {
				encoded, err := encodeContexts(outcome.Result.Contexts.ForMode(mode))
				if err != nil {
					return domain.BatchResult{}, fmt.Errorf("encode row %d contexts: %w", i+1, err)
				}
				doc.Set(i, column, encoded)
			}
		}
		if outcome.Result.RerankFallback && !fallbackReported {
			warnings = append(warnings, domain.WarningRerankFallback)
			fallbackReported = true
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	doc.DropEmptyColumns()
	if err := uc.saveDocument(ctx, AnswersKey, doc); err != nil {
		return domain.BatchResult{}, fmt.Errorf("store answers: %w", err)
	}

	return domain.BatchResult{
		Preview:  doc.Project(displayOrder(doc)).Head(clampPreview(params.PreviewLines)),
		Document: doc,
		Location: uc.storage.Location(AnswersKey),
		Warnings: warnings,
	}, nil
}

func (uc *BatchUseCase) OpenAnswers(ctx context.Context) (io.ReadCloser, error) {
	return uc.open(ctx, AnswersKey)
}

func (uc *BatchUseCase) OpenTemplate(ctx context.Context) (io.ReadCloser, error) {
	return uc.open(ctx, TemplateKey)
}

func (uc *BatchUseCase) open(ctx context.Context, key string) (io.ReadCloser, error) {
	exists, err := uc.storage.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", key, err)
	}
	if !exists {
		return nil, domain.WrapError(domain.ErrNotFound, "open "+key, errors.New("file does not exist"))
	}
	rc, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return rc, nil
}

func (uc *BatchUseCase) loadDocument(ctx context.Context, key string, limit int) (*domain.BatchDocument, error) {
	rc, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()

	doc, err := uc.codec.Decode(rc, FormatXLSX, limit)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc, nil
}

func (uc *BatchUseCase) saveDocument(ctx context.Context, key string, doc *domain.BatchDocument) error {
	var buf bytes.Buffer
	if err := uc.codec.Encode(&buf, doc); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return uc.storage.Save(ctx, key, &buf)
}

func tabularFormat(filename string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", domain.WrapError(
			domain.ErrUnsupportedFormat,
			"upload questions",
			fmt.Errorf("only .xlsx and .csv files are supported, got %q", filepath.Base(filename)),
		)
	}
}

// displayOrder keeps the document's own question header in first position.
func displayOrder(doc *domain.BatchDocument) []string {
	order := make([]string, 0, len(domain.DisplayColumns))
	order = append(order, domain.DisplayColumns...)
	if len(doc.Columns) > 0 && doc.Columns[0] != domain.ColumnQuestion {
		order[0] = doc.Columns[0]
	}
	return order
}

func clampPreview(lines int) int {
	if lines <= 0 || lines > domain.PreviewCap {
		return domain.PreviewCap
	}
	return lines
}

// encodeContexts serializes a context list as a JSON array with non-ASCII text kept as is.
// Trailing contexts are dropped until the array fits in one spreadsheet cell; a lone
// oversized context is cut short instead.
func encodeContexts(contexts []string) (string, error) {
	if contexts == nil {
		contexts = []string{}
	}
	for {
		encoded, err := marshalContexts(contexts)
		if err != nil {
			return "", err
		}
		excess := utf8.RuneCountInString(encoded) - domain.MaxCellChars
		if excess <= 0 {
			return encoded, nil
		}
		if len(contexts) > 1 {
			contexts = contexts[:len(contexts)-1]
			continue
		}
		text := []rune(contexts[0])
		contexts = []string{string(text[:max(len(text)-excess, 0)])}
	}
}

func marshalContexts(contexts []string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(contexts); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func decodeContexts(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
