package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"docqa/config"
	"docqa/llm"
	"docqa/llm/parser"
	"docqa/llm/vector"
	"docqa/session"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()
	tv := viper.New()
	tv.Set("index.store", config.StoreMemory)
	tv.Set("embedding.provider", "hashing")
	tv.Set("embedding.dimensions", 64)
	tv.Set("session.file", filepath.Join(t.TempDir(), ".latest_session"))
	tv.Set("chunk.size", 80)
	tv.Set("chunk.overlap", 10)
	for k, val := range overrides {
		tv.Set(k, val)
	}
	c, err := config.Load(tv, "")
	require.NoError(t, err)
	return c
}

func TestNewStack_MemoryAndHashing(t *testing.T) {
	c := testConfig(t, nil)
	s, err := newStack(context.Background(), c, false)
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &vector.MemoryIndex{}, s.index)
	assert.Equal(t, "hashing-64", s.embedder.Model())
	assert.Nil(t, s.chatModel)
}

func TestNewReranker(t *testing.T) {
	c := testConfig(t, nil)
	r, err := newReranker(c, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, r.TopN())

	c.Retrieval.Reranker = config.RerankLLM
	_, err = newReranker(c, nil)
	assert.Error(t, err)
}

func TestOpenEngine_ResolvesLatestSession(t *testing.T) {
	ctx := context.Background()
	cfg = testConfig(t, nil)
	s, err := newStack(ctx, cfg, false)
	require.NoError(t, err)
	defer s.Close()

	_, err = openEngine(ctx, s, "", "", false)
	assert.ErrorIs(t, err, llm.ErrNotFound)

	e, err := newEngine(cfg, s, "sess-1", cfg.Mode())
	require.NoError(t, err)
	report, err := e.Build(ctx, &parser.Document{
		Title:   "Capitals",
		Content: "Paris is the capital of France. Berlin is the capital of Germany. Madrid is the capital of Spain.",
	})
	require.NoError(t, err)
	e.Close()
	assert.Equal(t, "sess-1", report.Session)
	assert.Greater(t, report.Chunks, 0)

	e, err = openEngine(ctx, s, "", "", false)
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, "sess-1", e.Session())

	info, err := s.index.Info(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 64, info.Dim)
	assert.Equal(t, "hashing-64", info.Model)
}

func TestOpenEngine_RejectsOtherEmbeddingModel(t *testing.T) {
	ctx := context.Background()
	cfg = testConfig(t, nil)
	s, err := newStack(ctx, cfg, false)
	require.NoError(t, err)
	defer s.Close()

	e, err := newEngine(cfg, s, "sess-1", cfg.Mode())
	require.NoError(t, err)
	_, err = e.Build(ctx, &parser.Document{Content: "Paris is the capital of France."})
	require.NoError(t, err)
	e.Close()

	other := testConfig(t, map[string]any{"embedding.dimensions": 32, "session.file": cfg.Session.File})
	s2, err := newStack(ctx, other, false)
	require.NoError(t, err)
	defer s2.Close()

	_, err = openEngine(ctx, s2, "", "", false)
	assert.ErrorIs(t, err, llm.ErrEmbeddingModelMismatch)
}

func TestOpenEngine_AdoptsSessionMode(t *testing.T) {
	ctx := context.Background()
	cfg = testConfig(t, map[string]any{"chunk.mode": string(llm.ModeSentenceWindow)})
	s, err := newStack(ctx, cfg, false)
	require.NoError(t, err)
	defer s.Close()

	e, err := newEngine(cfg, s, "sess-1", cfg.Mode())
	require.NoError(t, err)
	_, err = e.Build(ctx, &parser.Document{Content: "Paris is the capital of France. Berlin is the capital of Germany."})
	require.NoError(t, err)
	e.Close()

	// replayed under the default configuration
	cfg = testConfig(t, map[string]any{"session.file": cfg.Session.File})
	require.Equal(t, llm.ModeStandard, cfg.Mode())

	e, err = openEngine(ctx, s, "", "", false)
	require.NoError(t, err)
	assert.Equal(t, llm.ModeSentenceWindow, e.Mode())
	e.Close()

	e, err = openEngine(ctx, s, "sess-1", "", false)
	require.NoError(t, err)
	assert.Equal(t, llm.ModeSentenceWindow, e.Mode(), "an explicit id the registry knows keeps its mode")
	e.Close()

	e, err = openEngine(ctx, s, "sess-2", "", false)
	require.NoError(t, err)
	assert.Equal(t, llm.ModeStandard, e.Mode(), "unknown ids use the configured mode")
	e.Close()

	_, err = openEngine(ctx, s, "", "", true)
	assert.ErrorIs(t, err, llm.ErrModeMismatch)
}

func TestSessionMode(t *testing.T) {
	rec := session.Record{ID: "s", Mode: llm.ModeSentenceWindow}

	tests := []struct {
		name       string
		rec        session.Record
		configured llm.Mode
		modeSet    bool
		want       llm.Mode
		wantErr    error
	}{
		{"recorded mode wins over config", rec, llm.ModeStandard, false, llm.ModeSentenceWindow, nil},
		{"matching flag", rec, llm.ModeSentenceWindow, true, llm.ModeSentenceWindow, nil},
		{"conflicting flag", rec, llm.ModeStandard, true, "", llm.ErrModeMismatch},
		{"no recorded mode", session.Record{ID: "s"}, llm.ModeStandard, true, llm.ModeStandard, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sessionMode(tt.rec, tt.configured, tt.modeSet)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStackCloseRunsEveryCloser(t *testing.T) {
	var order []string
	s := &stack{closers: []func() error{
		func() error { order = append(order, "index"); return nil },
		func() error { order = append(order, "registry"); return errors.New("connection reset") },
		func() error { order = append(order, "client"); return nil },
	}}

	s.Close()
	assert.Equal(t, []string{"client", "registry", "index"}, order)
}
