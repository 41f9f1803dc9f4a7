package batchrag

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"batchrag/pkg/eval"
)

var evalTopK int

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Grade answer quality with LLM judges",
	Long: `Runs the built-in question set through the answering engine and grades
each answer for correctness, groundedness, relevance and retrieval
relevance with LLM judges, printing per-example and aggregate results.`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().IntVar(&evalTopK, "top-k", 0, "Documents to retrieve per question (0 = config default)")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	client, err := newLLMClient(log)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, client, log)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	engine := newEngine(store, client, log)
	graders := eval.NewGraders(client, log)

	topK := cfg.Retrieval.TopK
	if evalTopK > 0 {
		topK = evalTopK
	}

	runner := eval.NewRunner(engine, graders, topK, os.Stdout, log)
	if _, err := runner.Run(ctx); err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	return nil
}
