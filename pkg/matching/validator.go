// Package matching evaluates the supplier catalog against stored
// opportunities: cosine similarity over profile and tender embeddings,
// optionally gated by an LLM verdict before a match row is written.
package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/observability"
)

// chatCompleter is the slice of the OpenAI-compatible client the validator
// needs; *openai.Client satisfies it.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Verdict is the outcome of one LLM validation.
type Verdict struct {
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Validator asks an LLM whether a similarity hit is a genuine business fit.
// It is a secondary gate: embedding similarity shortlists, the LLM vetoes.
type Validator struct {
	client  chatCompleter
	model   string
	timeout time.Duration
	logger  observability.Logger
}

// DefaultValidatorTimeout bounds one verdict call.
const DefaultValidatorTimeout = 75 * time.Second

// NewValidator creates a validator on the given chat model; a zero timeout
// takes the default.
func NewValidator(client chatCompleter, model string, timeout time.Duration, logger observability.Logger) *Validator {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if timeout <= 0 {
		timeout = DefaultValidatorTimeout
	}
	return &Validator{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger.WithPrefix("llm_validator"),
	}
}

const validatorPrompt = `Você é um analista de licitações públicas brasileiras.
Avalie se a empresa abaixo tem capacidade real de fornecer o que a licitação pede.

EMPRESA:
%s

LICITAÇÃO:
%s

Responda SOMENTE com um JSON neste formato exato, sem texto adicional:
{"approved": true ou false, "confidence": número entre 0 e 1, "reasoning": "justificativa curta em português"}`

// Validate asks for a verdict on one (company, opportunity) pair. Any
// failure, including timeout, yields a rejected verdict rather than an
// error: a broken validator must not flood users with unvetted matches.
func (v *Validator) Validate(ctx context.Context, company *models.Company, opp *models.Opportunity) Verdict {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	prompt := fmt.Sprintf(validatorPrompt, company.ProfileText(), opportunityText(opp))

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		v.logger.Warn("llm validation failed, rejecting pair", map[string]interface{}{
			"company": company.ID.String(), "opportunity": opp.Key(), "error": err.Error(),
		})
		return Verdict{Approved: false, Reasoning: "validação indisponível: " + err.Error()}
	}
	if len(resp.Choices) == 0 {
		return Verdict{Approved: false, Reasoning: "validação retornou resposta vazia"}
	}

	return parseVerdict(resp.Choices[0].Message.Content)
}

// parseVerdict extracts the strict JSON object from the model output,
// tolerating surrounding prose. When no parseable object is found it falls
// back to scanning the raw text for an affirmative token.
func parseVerdict(content string) Verdict {
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			var verdict Verdict
			if err := json.Unmarshal([]byte(content[start:end+1]), &verdict); err == nil {
				return verdict
			}
		}
	}

	lower := strings.ToLower(content)
	approved := strings.Contains(lower, "true") ||
		strings.Contains(lower, "aprovado") ||
		strings.Contains(lower, "sim")
	return Verdict{Approved: approved, Reasoning: strings.TrimSpace(content)}
}
