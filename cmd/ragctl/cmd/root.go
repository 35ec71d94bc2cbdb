// Package cmd implements the ragctl command line client.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/graphrag-assistant/internal/adapters/mcp"
	"github.com/kirillkom/graphrag-assistant/internal/bootstrap"
	"github.com/kirillkom/graphrag-assistant/internal/config"
	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/core/ports"
	"github.com/kirillkom/graphrag-assistant/internal/observability/logging"
)

// services is what the subcommands need from the wired application.
type services struct {
	Answer     ports.AnswerService
	Prompts    ports.PromptConfigReader
	Batch      ports.BatchService
	Evaluation ports.EvaluationService
	Logger     *slog.Logger
	Close      func()
}

type serviceFactory func(ctx context.Context) (*services, error)

func localServices(ctx context.Context) (*services, error) {
	cfg := config.Load()
	// stdout carries command output and the MCP stream, so logs go to stderr.
	logger := logging.NewJSONLoggerTo(os.Stderr, "ragctl", cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.NewLocal(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &services{
		Answer:     app.AnswerUC,
		Prompts:    app.PromptConfig,
		Batch:      app.BatchUC,
		Evaluation: app.EvaluateUC,
		Logger:     logger,
		Close:      app.Close,
	}, nil
}

func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(localServices)
}

func newRootCmd(factory serviceFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ragctl",
		Short:         "Ask, back-test and evaluate the graph RAG pipeline",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newAnswerCmd(factory),
		newBatchCmd(factory),
		newEvaluateCmd(factory),
		newMCPCmd(factory),
	)
	return cmd
}

// withServices builds the services for one command run and closes them afterwards.
func withServices(cmd *cobra.Command, factory serviceFactory, fn func(*services) error) error {
	svc, err := factory(cmd.Context())
	if err != nil {
		return err
	}
	if svc.Close != nil {
		defer svc.Close()
	}
	return fn(svc)
}

func printJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// parseModes turns names like "raw,graph_vector" into mode flags.
func parseModes(names []string) (domain.ModeFlags, error) {
	var flags domain.ModeFlags
	for _, name := range names {
		switch domain.AnswerMode(strings.ToLower(strings.TrimSpace(name))) {
		case domain.ModeRaw:
			flags.Raw = true
		case domain.ModeVectorOnly:
			flags.VectorOnly = true
		case domain.ModeGraphOnly:
			flags.GraphOnly = true
		case domain.ModeGraphVector:
			flags.GraphVector = true
		case "":
		default:
			return domain.ModeFlags{}, fmt.Errorf("unknown mode %q", name)
		}
	}
	return flags, nil
}

type fusionFlags struct {
	modes             []string
	graphRatio        float64
	rerankMethod      string
	nearNeighborFirst bool
	rerankHint        string
	prompt            string
}

func (f *fusionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.modes, "modes", nil, "Answer modes: raw, vector_only, graph_only, graph_vector")
	cmd.Flags().Float64Var(&f.graphRatio, "graph-ratio", 0.5, "Share of graph contexts in the fused set (0..1)")
	cmd.Flags().StringVar(&f.rerankMethod, "rerank-method", "lexical", "Rerank method: lexical or online")
	cmd.Flags().BoolVar(&f.nearNeighborFirst, "near-neighbor-first", false, "Order graph contexts by hop distance after rerank")
	cmd.Flags().StringVar(&f.rerankHint, "rerank-hint", "", "Extra rerank terms")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "Answer prompt template with {context_str} and {query_str}")
}

func (f *fusionFlags) params() (domain.ModeFlags, domain.FusionParams, error) {
	modes, err := parseModes(f.modes)
	if err != nil {
		return domain.ModeFlags{}, domain.FusionParams{}, err
	}
	method, err := domain.ParseRerankMethod(f.rerankMethod)
	if err != nil {
		return domain.ModeFlags{}, domain.FusionParams{}, err
	}
	return modes, domain.FusionParams{
		GraphRatio:        f.graphRatio,
		RerankMethod:      method,
		NearNeighborFirst: f.nearNeighborFirst,
		RerankHint:        f.rerankHint,
	}, nil
}

func newAnswerCmd(factory serviceFactory) *cobra.Command {
	var flags fusionFlags
	var question string

	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Answer one question with the selected modes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			modes, fusion, err := flags.params()
			if err != nil {
				return err
			}
			return withServices(cmd, factory, func(svc *services) error {
				q := question
				if q == "" {
					q = svc.Prompts.Snapshot().DefaultQuestion
				}
				outcome, err := svc.Answer.Answer(cmd.Context(), domain.AnswerRequest{
					Question:       q,
					Modes:          modes,
					Fusion:         fusion,
					PromptTemplate: flags.prompt,
				})
				if err != nil {
					return err
				}
				for _, warning := range outcome.Warnings {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", warning)
				}
				if outcome.Status == domain.OutcomeRejected {
					return errors.New("request rejected")
				}
				return printJSON(cmd.OutOrStdout(), outcome.Result)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&question, "question", "q", "", "Question to ask (defaults to the stored default question)")
	return cmd
}

func newEvaluateCmd(factory serviceFactory) *cobra.Command {
	var metrics []string
	var rowLimit int
	var list bool

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score the stored batch answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, factory, func(svc *services) error {
				if list {
					return printJSON(cmd.OutOrStdout(), svc.Evaluation.MetricNames())
				}
				rows, err := svc.Evaluation.Evaluate(cmd.Context(), metrics, rowLimit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().StringSliceVar(&metrics, "metrics", nil, "Metric names (defaults to the first four)")
	cmd.Flags().IntVar(&rowLimit, "row-limit", 0, "Evaluate only the first N rows")
	cmd.Flags().BoolVar(&list, "list", false, "List available metrics and exit")
	return cmd
}

func newMCPCmd(factory serviceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve answer and evaluation tools over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, factory, func(svc *services) error {
				server, err := mcpadapter.NewServer(svc.Answer, svc.Evaluation, svc.Prompts, svc.Logger)
				if err != nil {
					return err
				}
				return server.ServeStdio()
			})
		},
	}
}
