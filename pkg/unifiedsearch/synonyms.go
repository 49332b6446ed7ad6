// Package unifiedsearch fans one search out to every registered provider
// adapter, expands keywords through the synonym service and merges the
// per-provider results into one ordered listing.
package unifiedsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/licitahub/licitahub/pkg/observability"
)

// ChatCompleter is the slice of the OpenAI-compatible client the synonym
// service needs; *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// SynonymExpander expands one keyword into related terms.
type SynonymExpander interface {
	Expand(ctx context.Context, term string, max int) ([]string, error)
}

// DefaultSynonymLimit is the number of synonyms requested per term.
const DefaultSynonymLimit = 5

const synonymPrompt = `Você é um assistente de licitações públicas brasileiras.
Liste até %d sinônimos ou termos relacionados para "%s", como apareceriam em
editais de compras governamentais. Responda apenas com um array JSON de
strings, sem explicação.`

// LLMSynonymService expands keywords via a chat model, caching results per
// process. The cache lives for the process lifetime; expansion is idempotent
// after warm-up.
type LLMSynonymService struct {
	client ChatCompleter
	model  string
	cache  *lru.Cache[string, []string]
	logger observability.Logger
}

// NewLLMSynonymService creates a synonym service backed by a chat model.
func NewLLMSynonymService(client ChatCompleter, model string, logger observability.Logger) (*LLMSynonymService, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	cache, err := lru.New[string, []string](2048)
	if err != nil {
		return nil, err
	}
	return &LLMSynonymService{
		client: client,
		model:  model,
		cache:  cache,
		logger: logger.WithPrefix("synonyms"),
	}, nil
}

// Expand returns the original term followed by up to max related terms. On
// any LLM failure the original term alone is returned; search still works,
// just without expansion.
func (s *LLMSynonymService) Expand(ctx context.Context, term string, max int) ([]string, error) {
	if max <= 0 {
		max = DefaultSynonymLimit
	}
	key := strings.ToLower(strings.TrimSpace(term))
	if key == "" {
		return nil, nil
	}

	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	expanded := []string{term}
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(synonymPrompt, max, term)},
		},
	})
	if err != nil {
		s.logger.Warn("synonym expansion failed", map[string]interface{}{
			"term": term, "error": err.Error(),
		})
		return expanded, nil
	}

	for _, candidate := range parseSynonymList(firstChoice(resp)) {
		if len(expanded) > max {
			break
		}
		if !containsFold(expanded, candidate) {
			expanded = append(expanded, candidate)
		}
	}

	s.cache.Add(key, expanded)
	return expanded, nil
}

// parseSynonymList reads the model's JSON array, tolerating surrounding
// prose and falling back to line splitting.
func parseSynonymList(content string) []string {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start >= 0 && end > start {
		var terms []string
		if err := json.Unmarshal([]byte(content[start:end+1]), &terms); err == nil {
			return trimAll(terms)
		}
	}

	var terms []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.Trim(strings.TrimSpace(line), `-*•"`)
		if line != "" {
			terms = append(terms, line)
		}
	}
	return trimAll(terms)
}

func trimAll(terms []string) []string {
	out := terms[:0]
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func firstChoice(resp openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}
