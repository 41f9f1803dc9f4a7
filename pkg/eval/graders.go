package eval

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

const correctnessSystem = `You are evaluating the factual correctness of an AI assistant's answer compared to a reference answer.

Grade based on these criteria:
1. All factual claims in the assistant's answer must be accurate according to the reference answer
2. The assistant's answer should not contradict any information in the reference answer
3. The assistant's answer can include additional correct information not in the reference answer
4. The assistant's answer can use different wording as long as the meaning is preserved

You must respond with a valid JSON object containing 'explanation' and 'correct' fields.
Do not include any text before or after the JSON object.
The JSON must be properly formatted with double quotes around strings.`

const correctnessHuman = `QUESTION: %s
REFERENCE ANSWER: %s
ASSISTANT'S ANSWER: %s

Analyze the answers step by step, then provide your evaluation in the required JSON format.`

const groundednessSystem = `You are evaluating if an AI assistant's answer is grounded in the provided source documents.

Grade based on these criteria:
1. All factual claims in the answer must be supported by the source documents
2. The answer should not contain information that cannot be derived from the sources
3. The answer can combine or rephrase information from sources, but cannot introduce new facts

A groundedness score of True means the answer is fully supported by the sources.
A groundedness score of False means the answer contains unsupported claims.

You must respond with a valid JSON object containing 'explanation' and 'grounded' fields.`

const groundednessHuman = `SOURCE DOCUMENTS: %s
ASSISTANT'S ANSWER: %s

Analyze the answer and sources step by step, then provide your evaluation in the required JSON format.`

const relevanceSystem = `You are evaluating if an AI assistant's answer is relevant to the user's question.

Grade based on these criteria:
1. The answer should directly address the main points of the question
2. The answer should provide information that helps solve the user's query
3. The answer should stay focused on the question topic
4. The answer should not include irrelevant or off-topic information

A relevance score of True means the answer is relevant and helpful.
A relevance score of False means the answer is off-topic or unhelpful.

You must respond with a valid JSON object containing 'explanation' and 'relevant' fields.`

const relevanceHuman = `QUESTION: %s
ASSISTANT'S ANSWER: %s

Analyze the question and answer step by step, then provide your evaluation in the required JSON format.`

const retrievalRelevanceSystem = `You are evaluating if the retrieved documents are relevant to the user's question.

Grade based on these criteria:
1. The documents should contain information relevant to answering the question
2. The documents should cover the main aspects of the question
3. The documents should not be primarily about unrelated topics
4. The combined documents should provide sufficient context to answer the question

A relevance score of True means the retrieved documents are helpful for answering the question.
A relevance score of False means the documents are not helpful or are off-topic.

You must respond with a valid JSON object containing 'explanation' and 'relevant' fields.`

const retrievalRelevanceHuman = `QUESTION: %s
RETRIEVED DOCUMENTS: %s

Analyze the question and documents step by step, then provide your evaluation in the required JSON format.`

// Judge returns a structured judgment as a JSON object.
type Judge interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

// judgment is the union of all grader responses. Pointer fields
// distinguish a missing field from an explicit false.
type judgment struct {
	Explanation string `json:"explanation"`
	Correct     *bool  `json:"correct"`
	Grounded    *bool  `json:"grounded"`
	Relevant    *bool  `json:"relevant"`
}

// Graders runs the four LLM-judge evaluations.
type Graders struct {
	judge  Judge
	logger *zap.Logger
}

// NewGraders returns Graders backed by judge.
func NewGraders(judge Judge, logger *zap.Logger) *Graders {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graders{judge: judge, logger: logger}
}

// Correctness grades the answer against the reference. A judgment
// that cannot be parsed counts as incorrect.
func (g *Graders) Correctness(ctx context.Context, question, reference, answer string) (bool, error) {
	raw, err := g.judge.CompleteJSON(ctx, correctnessSystem, fmt.Sprintf(correctnessHuman, question, reference, answer))
	if err != nil {
		return false, fmt.Errorf("judge request failed: %w", err)
	}
	j, err := parseJudgment(raw)
	if err != nil || j.Correct == nil {
		g.logger.Warn("unparseable correctness judgment, scoring false",
			zap.String("raw", raw), zap.Error(err))
		return false, nil
	}
	return *j.Correct, nil
}

// Groundedness grades whether the answer is supported by the source
// document contents.
func (g *Graders) Groundedness(ctx context.Context, sources, answer string) (bool, error) {
	j, err := g.grade(ctx, groundednessSystem, fmt.Sprintf(groundednessHuman, sources, answer))
	if err != nil {
		return false, err
	}
	if j.Grounded == nil {
		return false, fmt.Errorf("groundedness judgment missing the grounded field")
	}
	return *j.Grounded, nil
}

// Relevance grades whether the answer addresses the question.
func (g *Graders) Relevance(ctx context.Context, question, answer string) (bool, error) {
	j, err := g.grade(ctx, relevanceSystem, fmt.Sprintf(relevanceHuman, question, answer))
	if err != nil {
		return false, err
	}
	if j.Relevant == nil {
		return false, fmt.Errorf("relevance judgment missing the relevant field")
	}
	return *j.Relevant, nil
}

// RetrievalRelevance grades whether the retrieved document contents
// bear on the question.
func (g *Graders) RetrievalRelevance(ctx context.Context, question, sources string) (bool, error) {
	j, err := g.grade(ctx, retrievalRelevanceSystem, fmt.Sprintf(retrievalRelevanceHuman, question, sources))
	if err != nil {
		return false, err
	}
	if j.Relevant == nil {
		return false, fmt.Errorf("retrieval relevance judgment missing the relevant field")
	}
	return *j.Relevant, nil
}

func (g *Graders) grade(ctx context.Context, system, user string) (judgment, error) {
	raw, err := g.judge.CompleteJSON(ctx, system, user)
	if err != nil {
		return judgment{}, fmt.Errorf("judge request failed: %w", err)
	}
	return parseJudgment(raw)
}

func parseJudgment(raw string) (judgment, error) {
	var j judgment
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return judgment{}, fmt.Errorf("parse judgment %q: %w", raw, err)
	}
	return j, nil
}
