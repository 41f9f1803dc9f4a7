package eval

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"batchrag/pkg/rag"
)

// Asker answers a question end to end, retrieval included.
type Asker interface {
	Ask(ctx context.Context, query string, k int) (rag.Answer, error)
}

// Result holds one example's answer and grades.
type Result struct {
	Example           Example
	Answer            string
	Correct           bool
	Grounded          bool
	Relevant          bool
	RetrievalRelevant bool
}

// Summary aggregates grades across a run as percentages.
type Summary struct {
	Correctness        float64
	Groundedness       float64
	Relevance          float64
	RetrievalRelevance float64
}

// Summarize computes per-metric percentages over results.
func Summarize(results []Result) Summary {
	if len(results) == 0 {
		return Summary{}
	}
	var s Summary
	for _, r := range results {
		if r.Correct {
			s.Correctness++
		}
		if r.Grounded {
			s.Groundedness++
		}
		if r.Relevant {
			s.Relevance++
		}
		if r.RetrievalRelevant {
			s.RetrievalRelevance++
		}
	}
	n := float64(len(results))
	s.Correctness = s.Correctness / n * 100
	s.Groundedness = s.Groundedness / n * 100
	s.Relevance = s.Relevance / n * 100
	s.RetrievalRelevance = s.RetrievalRelevance / n * 100
	return s
}

// Runner grades an Asker against the built-in dataset.
type Runner struct {
	asker   Asker
	graders *Graders
	topK    int
	out     io.Writer
	logger  *zap.Logger
}

// NewRunner returns a Runner writing progress to out. A nil out means
// stdout.
func NewRunner(asker Asker, graders *Graders, topK int, out io.Writer, logger *zap.Logger) *Runner {
	if topK <= 0 {
		topK = 5
	}
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{asker: asker, graders: graders, topK: topK, out: out, logger: logger}
}

// Run asks and grades every example, printing per-example results and
// the overall percentages.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	examples := Dataset()
	results := make([]Result, 0, len(examples))

	for _, ex := range examples {
		res, err := r.evaluate(ctx, ex)
		if err != nil {
			return results, fmt.Errorf("evaluate %q: %w", ex.Question, err)
		}
		results = append(results, res)

		fmt.Fprintf(r.out, "\nEvaluating: %s\n", ex.Question)
		fmt.Fprintf(r.out, "Generated Answer: %s\n", res.Answer)
		fmt.Fprintf(r.out, "Expected Answer: %s\n", ex.ExpectedAnswer)
		fmt.Fprintln(r.out, "Metrics:")
		fmt.Fprintf(r.out, "- Correctness: %t\n", res.Correct)
		fmt.Fprintf(r.out, "- Groundedness: %t\n", res.Grounded)
		fmt.Fprintf(r.out, "- Relevance: %t\n", res.Relevant)
		fmt.Fprintf(r.out, "- Retrieval Relevance: %t\n", res.RetrievalRelevant)
	}

	s := Summarize(results)
	fmt.Fprintln(r.out, "\nOverall Evaluation Results:")
	fmt.Fprintf(r.out, "Correctness: %.2f%%\n", s.Correctness)
	fmt.Fprintf(r.out, "Groundedness: %.2f%%\n", s.Groundedness)
	fmt.Fprintf(r.out, "Relevance: %.2f%%\n", s.Relevance)
	fmt.Fprintf(r.out, "Retrieval relevance: %.2f%%\n", s.RetrievalRelevance)

	return results, nil
}

func (r *Runner) evaluate(ctx context.Context, ex Example) (Result, error) {
	answer, err := r.asker.Ask(ctx, ex.Question, r.topK)
	if err != nil {
		return Result{}, err
	}

	contents := make([]string, len(answer.Documents))
	for i, doc := range answer.Documents {
		contents[i] = doc.Content
	}
	sources := strings.Join(contents, " ")

	res := Result{Example: ex, Answer: answer.Text}
	if res.Correct, err = r.graders.Correctness(ctx, ex.Question, ex.ExpectedAnswer, answer.Text); err != nil {
		return res, err
	}
	if res.Grounded, err = r.graders.Groundedness(ctx, sources, answer.Text); err != nil {
		return res, err
	}
	if res.Relevant, err = r.graders.Relevance(ctx, ex.Question, answer.Text); err != nil {
		return res, err
	}
	if res.RetrievalRelevant, err = r.graders.RetrievalRelevance(ctx, ex.Question, sources); err != nil {
		return res, err
	}

	r.logger.Info("graded example",
		zap.String("question", ex.Question),
		zap.Bool("correct", res.Correct),
		zap.Bool("grounded", res.Grounded),
		zap.Bool("relevant", res.Relevant),
		zap.Bool("retrieval_relevant", res.RetrievalRelevant))
	return res, nil
}
