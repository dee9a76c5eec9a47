package decider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/marketgate/pkg/domain"
	openaisdk "github.com/openai/openai-go"
)

const defaultSystemPrompt = `You are a cautious crypto trading assistant. For each market update you
receive, reply with a single JSON object and nothing else:
{"action":"buy"|"sell"|"hold","symbol":string,"amount":number,"reason":string}
Hold unless the data gives a clear signal. Never invent symbols.`

// OpenAI delegates trade decisions to a chat model. The model must answer
// with the JSON decision shape; anything else fails the decision.
type OpenAI struct {
	client      *openaisdk.Client
	model       string
	prompt      string
	temperature float64
}

// OpenAIOption configures the model-backed strategy.
type OpenAIOption func(*OpenAI)

// WithSystemPrompt overrides the built-in instruction prompt.
func WithSystemPrompt(prompt string) OpenAIOption {
	return func(d *OpenAI) {
		if prompt != "" {
			d.prompt = prompt
		}
	}
}

// WithTemperature sets the sampling temperature. The default is 0.2.
func WithTemperature(temp float64) OpenAIOption {
	return func(d *OpenAI) {
		if temp >= 0 {
			d.temperature = temp
		}
	}
}

// NewOpenAI creates the model-backed strategy on an existing SDK client.
func NewOpenAI(client *openaisdk.Client, model string, opts ...OpenAIOption) *OpenAI {
	d := &OpenAI{
		client:      client,
		model:       model,
		prompt:      defaultSystemPrompt,
		temperature: 0.2,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decide sends the market payload to the model and parses its answer.
func (d *OpenAI) Decide(ctx context.Context, market map[string]any) (domain.Decision, error) {
	payload, err := json.Marshal(market)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("encode market payload: %w", err)
	}

	completion, err := d.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(d.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(d.prompt),
			openaisdk.UserMessage("Market update:\n" + string(payload)),
		},
		Temperature: openaisdk.Float(d.temperature),
	})
	if err != nil {
		return domain.Decision{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return domain.Decision{}, fmt.Errorf("chat completion returned no choices")
	}

	return parseDecision(completion.Choices[0].Message.Content)
}

// parseDecision decodes the model's answer, tolerating a markdown code
// fence around the JSON.
func parseDecision(text string) (domain.Decision, error) {
	var dec domain.Decision
	if err := json.Unmarshal([]byte(text), &dec); err != nil {
		trimmed := strings.TrimSpace(text)
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
		if err := json.Unmarshal([]byte(trimmed), &dec); err != nil {
			return domain.Decision{}, fmt.Errorf("model answer is not a decision: %w", err)
		}
	}
	if !dec.Action.Valid() {
		return domain.Decision{}, fmt.Errorf("model chose unknown action %q", dec.Action)
	}
	return dec, nil
}
