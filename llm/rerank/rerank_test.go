package rerank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"docqa/llm"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/cohere-ai/cohere-go/v2/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedScorer struct {
	scores []float64
	err    error
	calls  int
}

func (f *fixedScorer) Name() string { return "fixed" }

func (f *fixedScorer) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	f.calls++
	return f.scores, f.err
}

func candidates(texts ...string) []llm.ScoredChunk {
	out := make([]llm.ScoredChunk, len(texts))
	for i, text := range texts {
		out[i] = llm.ScoredChunk{Chunk: llm.Chunk{Ordinal: 10 + i, Text: text}, Score: 0.9 - float32(i)/10, Rank: i}
	}
	return out
}

func TestRerankStableOnTies(t *testing.T) {
	scorer := &fixedScorer{scores: []float64{0.2, 0.8, 0.2, 0.8, 0.1}}
	r := New(scorer, 3)

	out, err := r.Rerank(context.Background(), "q", candidates("a", "b", "c", "d", "e"))
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, []string{"b", "d", "a"}, llm.Texts(out))
	assert.Equal(t, []int{1, 3, 0}, []int{out[0].Rank, out[1].Rank, out[2].Rank})
	assert.InDelta(t, 0.8, out[0].Score, 1e-6)
}

func TestRerankTopNClamp(t *testing.T) {
	in := candidates("a", "b")

	out, err := New(&fixedScorer{scores: []float64{0.1, 0.9}}, 10).Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, llm.Texts(out))

	out, err = New(&fixedScorer{scores: []float64{0.1, 0.9}}, 0).Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRerankEmptyCandidates(t *testing.T) {
	scorer := &fixedScorer{}
	out, err := New(scorer, 3).Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, scorer.calls)
}

func TestRerankScorerFailure(t *testing.T) {
	_, err := New(&fixedScorer{err: errors.New("boom")}, 3).Rerank(context.Background(), "q", candidates("a"))
	assert.ErrorIs(t, err, llm.ErrRerankProvider)

	_, err = New(&fixedScorer{scores: []float64{1}}, 3).Rerank(context.Background(), "q", candidates("a", "b"))
	assert.ErrorIs(t, err, llm.ErrRerankProvider)
}

func TestReplaceWithWindow(t *testing.T) {
	in := []llm.ScoredChunk{
		{Chunk: llm.Chunk{Text: "Paris.", Window: "France. Paris. Eiffel."}},
		{Chunk: llm.Chunk{Text: "Alone."}},
	}

	out := ReplaceWithWindow(in)
	assert.Equal(t, []string{"France. Paris. Eiffel.", "Alone."}, llm.Texts(out))
	assert.Equal(t, "Paris.", in[0].Chunk.Text)
}

func TestLexicalScorer(t *testing.T) {
	docs := []string{
		"Berlin is the capital of Germany.",
		"The capital of France is Paris.",
		"Bananas are yellow.",
	}

	scores, err := NewLexicalScorer().Score(context.Background(), "What is the capital of France?", docs)
	require.NoError(t, err)
	require.Len(t, scores, 3)

	assert.Greater(t, scores[1], scores[0])
	assert.Greater(t, scores[0], scores[2])
	assert.Zero(t, scores[2])

	scores, err = NewLexicalScorer().Score(context.Background(), "?!", docs)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, scores)
}

func TestCohereScorer(t *testing.T) {
	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body.Store(string(data))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"r1","results":[{"index":1,"relevance_score":0.9},{"index":0,"relevance_score":0.2}],"meta":{}}`)
	}))
	defer srv.Close()

	scorer, err := NewCohereScorer("key", "", option.WithBaseURL(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "cohere:"+DefaultCohereModel, scorer.Name())

	scores, err := scorer.Score(context.Background(), "capital of France", []string{"Berlin", "Paris"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.9}, scores)
	assert.Contains(t, body.Load(), `"query":"capital of France"`)

	_, err = NewCohereScorer("", "", option.WithBaseURL(srv.URL))
	assert.Error(t, err)
}

func TestCohereScorerIncompleteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"r1","results":[{"index":0,"relevance_score":0.2}],"meta":{}}`)
	}))
	defer srv.Close()

	scorer, err := NewCohereScorer("key", "rerank-v3.5", option.WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = scorer.Score(context.Background(), "q", []string{"a", "b"})
	assert.Error(t, err)
}

// judgeModel replies with a score depending on whether the prompt mentions Paris
type judgeModel struct {
	fail bool
}

func (m *judgeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if m.fail {
		return nil, errors.New("quota exceeded")
	}
	if strings.Contains(input[len(input)-1].Content, "Paris") {
		return schema.AssistantMessage("Score: 0.9", nil), nil
	}
	return schema.AssistantMessage("I am not sure", nil), nil
}

func (m *judgeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestLLMScorer(t *testing.T) {
	scorer := NewLLMScorer(&judgeModel{}, 2)

	scores, err := scorer.Score(context.Background(), "capital of France", []string{"Berlin", "Paris", "Rome"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.9, 0.5}, scores)

	_, err = NewLLMScorer(&judgeModel{fail: true}, 2).Score(context.Background(), "q", []string{"a", "b"})
	assert.Error(t, err)
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"0.8", 0.8, true},
		{"  1 ", 1, true},
		{"Relevance score: 0.35.", 0.35, true},
		{"**0.7**", 0.7, true},
		{"7 out of 10", 0.5, false},
		{"no idea", 0.5, false},
	}
	for _, tt := range tests {
		got, ok := ParseScore(tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}
