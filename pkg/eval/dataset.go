// Package eval grades the question answering pipeline with LLM
// judges over a built-in dataset.
package eval

// Example pairs a question with its reference answer.
type Example struct {
	Question       string
	ExpectedAnswer string
}

var dataset = []Example{
	{
		Question:       "What are the key concepts of deep learning?",
		ExpectedAnswer: "Deep learning involves neural networks processing data through multiple layers to learn hierarchical representations. The key concepts include backpropagation, activation functions, and gradient descent optimization.",
	},
	{
		Question:       "How does transfer learning work?",
		ExpectedAnswer: "Transfer learning allows models to apply knowledge learned from one task to another related task. It involves taking a pre-trained model and fine-tuning it on a new dataset or task while preserving learned features.",
	},
	{
		Question:       "What is the role of attention mechanisms in transformers?",
		ExpectedAnswer: "Attention mechanisms in transformers enable the model to focus on relevant parts of the input sequence when making predictions. They compute weighted relationships between all elements in the sequence, allowing for better handling of long-range dependencies.",
	},
	{
		Question:       "Explain the concept of embeddings in machine learning.",
		ExpectedAnswer: "Embeddings are dense vector representations that capture semantic relationships between items in a continuous space. They convert discrete data like words or categories into numerical vectors that preserve meaningful relationships.",
	},
	{
		Question:       "What impact did DeepSeek model have on OpenAI",
		ExpectedAnswer: "DeepSeek had a significant impact on OpenAI by challenging it with a competitive large language model, DeepSeek-R1. This model implemented run-time reasoning similar to OpenAI's o1 but displayed its reasoning steps, making it more transparent. DeepSeek-R1 outperformed OpenAI's o1 on several benchmarks.",
	},
}

// Dataset returns the built-in evaluation examples.
func Dataset() []Example {
	out := make([]Example, len(dataset))
	copy(out, dataset)
	return out
}
