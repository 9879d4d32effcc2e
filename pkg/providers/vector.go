package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/Makar0n1/art-automation/pkg/metrics"
	"github.com/Makar0n1/art-automation/pkg/types"
)

const (
	vectorTimeout     = 30 * time.Second
	matchCount        = 5
	minSimilarity     = 0.55
	maxAnswerLen      = 1000
	embeddingModel    = "text-embedding-3-small"
	matchDocumentsRPC = "match_documents"
)

// MatchedDocument is one similarity hit from the vector store.
type MatchedDocument struct {
	ID         any            `json:"id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Similarity float64        `json:"similarity"`
}

// VectorClient answers research questions against the owner's vector
// knowledge base. Embeddings come from the chat provider's embeddings
// endpoint; similarity search runs as a stored procedure on the vector
// store.
type VectorClient struct {
	projectURL string
	serviceKey string
	llmKey     string
	llmBaseURL string
	http       *http.Client
}

// NewVectorClient creates a client against the given vector store project.
// llmBaseURL falls back to the hosted chat provider when empty.
func NewVectorClient(projectURL, serviceKey, llmKey, llmBaseURL string) *VectorClient {
	if llmBaseURL == "" {
		llmBaseURL = defaultLLMURL
	}
	return &VectorClient{
		projectURL: strings.TrimRight(projectURL, "/"),
		serviceKey: serviceKey,
		llmKey:     llmKey,
		llmBaseURL: llmBaseURL,
		http:       &http.Client{Timeout: vectorTimeout},
	}
}

// Embed turns text into an embedding vector.
func (c *VectorClient) Embed(ctx context.Context, text string) ([]float64, error) {
	payload, err := json.Marshal(map[string]any{
		"model": embeddingModel,
		"input": text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.llmBaseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.llmKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding provider returned status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("embedding provider returned no vectors")
	}
	return out.Data[0].Embedding, nil
}

// MatchDocuments runs a similarity search and returns hits at or above the
// similarity floor, best first.
func (c *VectorClient) MatchDocuments(ctx context.Context, embedding []float64) ([]MatchedDocument, error) {
	payload, err := json.Marshal(map[string]any{
		"query_embedding": embedding,
		"match_count":     matchCount,
	})
	if err != nil {
		return nil, err
	}

	url := c.projectURL + "/rest/v1/rpc/" + matchDocumentsRPC
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("supabase", "error").Inc()
		return nil, fmt.Errorf("vector match request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ProviderRequestsTotal.WithLabelValues("supabase", "error").Inc()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vector store returned status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var docs []MatchedDocument
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("supabase", "error").Inc()
		return nil, fmt.Errorf("failed to decode vector matches: %w", err)
	}
	metrics.ProviderRequestsTotal.WithLabelValues("supabase", "ok").Inc()

	filtered := docs[:0]
	for _, doc := range docs {
		if doc.Similarity >= minSimilarity {
			filtered = append(filtered, doc)
		}
	}
	return filtered, nil
}

// FindAnswer answers one research question from the knowledge base. A nil
// result with nil error means the base holds nothing relevant.
func (c *VectorClient) FindAnswer(ctx context.Context, question string) (*types.AnsweredQuestion, error) {
	query := normalizeQuestion(question)

	embedding, err := c.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	docs, err := c.MatchDocuments(ctx, embedding)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	best := docs[0]
	answer := strings.TrimSpace(best.Content)
	if runes := []rune(answer); len(runes) > maxAnswerLen {
		answer = string(runes[:maxAnswerLen]) + "..."
	}

	source := ""
	if best.Metadata != nil {
		if url, ok := best.Metadata["url"].(string); ok {
			source = url
		}
	}

	return &types.AnsweredQuestion{
		Question:   question,
		Answer:     answer,
		Source:     source,
		Similarity: best.Similarity,
	}, nil
}

// Ping validates connectivity and the service key with a zero-vector match.
func (c *VectorClient) Ping(ctx context.Context) error {
	_, err := c.MatchDocuments(ctx, make([]float64, 1536))
	return err
}

// Stop words removed from questions before embedding, covering the
// supported interface languages.
var stopWords = map[string]bool{
	// English
	"the": true, "and": true, "for": true, "are": true, "what": true,
	"which": true, "how": true, "why": true, "when": true, "where": true,
	"does": true, "can": true, "should": true, "with": true, "that": true,
	"this": true, "from": true, "have": true, "has": true, "was": true,
	// Russian
	"как": true, "что": true, "это": true, "для": true, "или": true,
	"какой": true, "какие": true, "почему": true, "когда": true, "где": true,
	"есть": true, "быть": true, "можно": true, "нужно": true, "при": true,
	// German
	"der": true, "die": true, "das": true, "und": true, "für": true,
	"wie": true, "ist": true, "sind": true, "warum": true, "wann": true,
	"kann": true, "soll": true, "mit": true, "von": true, "dem": true,
}

// normalizeQuestion lowercases the question, strips punctuation and drops
// stop words and short tokens. When too little remains, the raw question
// is used instead.
func normalizeQuestion(question string) string {
	lowered := strings.ToLower(question)
	var sb strings.Builder
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte(' ')
		}
	}

	var kept []string
	for _, token := range strings.Fields(sb.String()) {
		if len([]rune(token)) <= 2 || stopWords[token] {
			continue
		}
		kept = append(kept, token)
	}

	result := strings.Join(kept, " ")
	if len([]rune(result)) < 6 {
		return question
	}
	return result
}
