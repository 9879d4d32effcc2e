package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"english stop words", "What is the best grinder for espresso?", "best grinder espresso"},
		{"russian stop words", "Какой кофе лучше для эспрессо?", "кофе лучше эспрессо"},
		{"punctuation stripped", "burr-grinder: worth it???", "burr grinder worth"},
		{"too little left falls back", "How is it?", "How is it?"},
		{"short cyrillic residue falls back", "Как мир?", "Как мир?"},
		{"empty falls back", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeQuestion(tt.in))
		})
	}
}

// vectorStub serves the embeddings endpoint and the match_documents RPC
// from one mux so a single client can exercise the full FindAnswer path.
type vectorStub struct {
	docs      []MatchedDocument
	lastInput string
}

func (s *vectorStub) start(t *testing.T) *VectorClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.lastInput = body.Input
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2}}},
		})
	})
	mux.HandleFunc("/rest/v1/rpc/match_documents", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(s.docs)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewVectorClient(srv.URL, "service-key", "llm-key", srv.URL)
}

func TestFindAnswer(t *testing.T) {
	stub := &vectorStub{docs: []MatchedDocument{
		{
			Content:    "Burr grinders give a uniform particle size.",
			Metadata:   map[string]any{"url": "https://kb.example/grinders"},
			Similarity: 0.82,
		},
		{Content: "second hit", Similarity: 0.61},
	}}
	c := stub.start(t)

	answer, err := c.FindAnswer(context.Background(), "What is the best grinder for espresso?")
	require.NoError(t, err)
	require.NotNil(t, answer)

	assert.Equal(t, "What is the best grinder for espresso?", answer.Question)
	assert.Equal(t, "Burr grinders give a uniform particle size.", answer.Answer)
	assert.Equal(t, "https://kb.example/grinders", answer.Source)
	assert.Equal(t, 0.82, answer.Similarity)
	// The embedded query is the normalized question, not the raw one.
	assert.Equal(t, "best grinder espresso", stub.lastInput)
}

func TestFindAnswerFiltersWeakMatches(t *testing.T) {
	stub := &vectorStub{docs: []MatchedDocument{
		{Content: "barely related", Similarity: 0.31},
	}}
	c := stub.start(t)

	answer, err := c.FindAnswer(context.Background(), "completely unrelated question here")
	require.NoError(t, err)
	assert.Nil(t, answer)
}

func TestFindAnswerTruncatesLongContent(t *testing.T) {
	stub := &vectorStub{docs: []MatchedDocument{
		{Content: strings.Repeat("x", 1500), Similarity: 0.9},
	}}
	c := stub.start(t)

	answer, err := c.FindAnswer(context.Background(), "question with enough tokens kept")
	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Len(t, answer.Answer, 1003)
	assert.True(t, strings.HasSuffix(answer.Answer, "..."))
}

func TestFindAnswerTruncationKeepsRunesIntact(t *testing.T) {
	stub := &vectorStub{docs: []MatchedDocument{
		{Content: strings.Repeat("к", 1500), Similarity: 0.9},
	}}
	c := stub.start(t)

	answer, err := c.FindAnswer(context.Background(), "question with enough tokens kept")
	require.NoError(t, err)
	require.NotNil(t, answer)

	// The cap counts characters; multi-byte content is never split mid-rune.
	assert.True(t, utf8.ValidString(answer.Answer))
	assert.Equal(t, 1003, len([]rune(answer.Answer)))
	assert.True(t, strings.HasSuffix(answer.Answer, "..."))
}

func TestMatchDocumentsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	c := NewVectorClient(srv.URL, "bad-key", "llm-key", srv.URL)

	_, err := c.MatchDocuments(context.Background(), []float64{0.1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
