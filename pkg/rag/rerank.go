package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/licitahub/licitahub/pkg/vectorstore"
)

const rerankPrompt = `Avalie a relevância de cada trecho de edital para a pergunta.
Dê uma nota de 0 a 10 para cada trecho.

PERGUNTA: %s

TRECHOS:
%s

Responda SOMENTE com um array JSON de números, um por trecho, na mesma ordem.
Exemplo: [8, 2, 10, 0]`

// rerank asks the LLM to score the retrieved chunks 0-10 against the query
// and keeps the best limit. On any failure the hybrid order stands.
func (e *Engine) rerank(ctx context.Context, query string, hits []vectorstore.ScoredChunk, limit int) []vectorstore.ScoredChunk {
	if len(hits) <= limit {
		return hits
	}

	var sb strings.Builder
	for i, hit := range hits {
		text := hit.Text
		if len(text) > 600 {
			text = text[:600]
		}
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, text)
	}

	resp, err := e.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(rerankPrompt, query, sb.String())},
		},
	})
	if err != nil || len(resp.Choices) == 0 {
		e.logger.Warn("rerank failed, keeping hybrid order", map[string]interface{}{})
		return hits[:limit]
	}

	scores := parseScores(resp.Choices[0].Message.Content, len(hits))
	if scores == nil {
		return hits[:limit]
	}

	type scored struct {
		hit   vectorstore.ScoredChunk
		score float64
	}
	ranked := make([]scored, len(hits))
	for i, hit := range hits {
		ranked[i] = scored{hit: hit, score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]vectorstore.ScoredChunk, 0, limit)
	for i := 0; i < limit && i < len(ranked); i++ {
		out = append(out, ranked[i].hit)
	}
	return out
}

// parseScores extracts the JSON score array, tolerating surrounding prose.
// A wrong-length array is discarded.
func parseScores(content string, want int) []float64 {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil
	}

	var scores []float64
	if err := json.Unmarshal([]byte(content[start:end+1]), &scores); err != nil {
		return nil
	}
	if len(scores) != want {
		return nil
	}
	return scores
}
