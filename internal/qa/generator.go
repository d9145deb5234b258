package qa

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/jmcarthur/docqa/internal/embedding"
)

// generationTemperature favors determinism over creativity; answering from
// excerpts is a fact-grounded task.
const generationTemperature = 0.2

// ChatGenerator produces answers with an OpenAI chat model. Generation
// failures are not retried here: the engine surfaces them as a degraded
// Answer and the caller decides whether to ask again.
type ChatGenerator struct {
	client *openai.Client
	model  openai.ChatModel
}

// NewChatGenerator reuses the shared OpenAI client. An empty model selects
// GPT-4o.
func NewChatGenerator(client *embedding.Client, model openai.ChatModel) *ChatGenerator {
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	return &ChatGenerator{
		client: client.Client(),
		model:  model,
	}
}

// Generate runs one chat completion with bounded output length.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       g.model,
		Temperature: openai.Float(generationTemperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
