package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

func newBatchCmd(factory serviceFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Back-test the pipeline over a question spreadsheet",
	}
	cmd.AddCommand(
		newBatchUploadCmd(factory),
		newBatchPreviewCmd(factory),
		newBatchRunCmd(factory),
		newBatchExportCmd(factory),
	)
	return cmd
}

func newBatchUploadCmd(factory serviceFactory) *cobra.Command {
	var lineCount int
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Store a question spreadsheet (.xlsx or .csv)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open questions file: %w", err)
			}
			defer f.Close()

			return withServices(cmd, factory, func(svc *services) error {
				result, err := svc.Batch.UploadQuestions(cmd.Context(), filepath.Base(args[0]), f, lineCount)
				if err != nil {
					return err
				}
				printWarnings(cmd, result.Warnings)
				return printTable(cmd.OutOrStdout(), result.Preview)
			})
		},
	}
	cmd.Flags().IntVar(&lineCount, "line-count", 0, "Preview rows to show (0 shows the default)")
	return cmd
}

func newBatchPreviewCmd(factory serviceFactory) *cobra.Command {
	var lineCount int
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the stored answers, questions or template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, factory, func(svc *services) error {
				doc, err := svc.Batch.Preview(cmd.Context(), lineCount)
				if err != nil {
					return err
				}
				return printTable(cmd.OutOrStdout(), doc)
			})
		},
	}
	cmd.Flags().IntVar(&lineCount, "line-count", 0, "Preview rows to show (0 shows the default)")
	return cmd
}

func newBatchRunCmd(factory serviceFactory) *cobra.Command {
	var flags fusionFlags
	var lineCount int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Answer every stored question and save the answers spreadsheet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			modes, fusion, err := flags.params()
			if err != nil {
				return err
			}
			return withServices(cmd, factory, func(svc *services) error {
				result, err := svc.Batch.Run(cmd.Context(), domain.BatchParams{
					Modes:          modes,
					Fusion:         fusion,
					PromptTemplate: flags.prompt,
					PreviewLines:   lineCount,
				}, func(done, total int) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\ranswered %d/%d", done, total)
					if done == total {
						fmt.Fprintln(cmd.ErrOrStderr())
					}
				})
				if err != nil {
					return err
				}
				printWarnings(cmd, result.Warnings)
				if result.Rejected {
					return errors.New("batch rejected")
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "saved", result.Location)
				return printTable(cmd.OutOrStdout(), result.Preview)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&lineCount, "line-count", 0, "Preview rows to show (0 shows the default)")
	return cmd
}

func newBatchExportCmd(factory serviceFactory) *cobra.Command {
	var out string
	var template bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the answers spreadsheet (or the question template) to a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, factory, func(svc *services) error {
				open := svc.Batch.OpenAnswers
				if template {
					open = svc.Batch.OpenTemplate
				}
				rc, err := open(cmd.Context())
				if err != nil {
					return err
				}
				defer rc.Close()

				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				if _, err := io.Copy(f, rc); err != nil {
					_ = f.Close()
					return fmt.Errorf("write output file: %w", err)
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "questions_answers.xlsx", "Output path")
	cmd.Flags().BoolVar(&template, "template", false, "Export the question template instead of the answers")
	return cmd
}

func printWarnings(cmd *cobra.Command, warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", warning)
	}
}

func printTable(w io.Writer, doc *domain.BatchDocument) error {
	view := struct {
		Columns []string            `json:"columns"`
		Rows    []map[string]string `json:"rows"`
	}{Columns: []string{}, Rows: []map[string]string{}}
	if doc != nil {
		view.Columns = doc.Columns
		for i := range doc.Rows {
			row := make(map[string]string, len(doc.Columns))
			for _, col := range doc.Columns {
				row[col] = doc.Value(i, col)
			}
			view.Rows = append(view.Rows, row)
		}
	}
	return printJSON(w, view)
}
