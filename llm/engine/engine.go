// Package engine runs the question answering pipeline for one document session:
// build (chunk, embed, index) and query (condense, retrieve, rerank, generate).
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"docqa/llm"
	"docqa/llm/generator"
	"docqa/llm/memory"
	"docqa/llm/parser"
	"docqa/llm/rerank"
	"docqa/llm/vector"
	"docqa/pubsub"
	"docqa/session"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/kart-io/logger"
)

// ErrQueryInProgress is returned when a query starts before the previous answer was finished or closed
var ErrQueryInProgress = errors.New("a query is already in progress")

// Config wires an Engine to its components
type Config struct {
	// Session is the id every build and search is scoped to
	Session string
	Mode    llm.Mode
	Chunk   vector.ChunkConfig
	// TopK is the number of first-stage candidates, vector.DefaultTopK when zero
	TopK int

	Index     vector.Index
	Embedder  vector.Embedder
	Reranker  *rerank.Reranker
	Generator *generator.Generator
	Memory    memory.Store

	// Registry receives the session after a successful build; optional
	Registry session.Registry
	// Condenser rewrites follow-up questions when history exists; nil disables it
	Condenser model.BaseChatModel
}

// Event is published on the engine broker
type Event struct {
	Session  string
	Question string
	Fragment string
	Passages []llm.ScoredChunk
	Answer   string
	Err      error
}

// BuildReport summarizes a build
type BuildReport struct {
	Session   string        `json:"session"`
	Title     string        `json:"title"`
	Chunks    int           `json:"chunks"`
	Entries   int           `json:"entries"`
	Dimension int           `json:"dimension"`
	Model     string        `json:"model"`
	Took      time.Duration `json:"took"`
}

// Engine answers questions about one session and keeps its conversation
type Engine struct {
	cfg       Config
	condenser *condenser
	broker    *pubsub.Broker[Event]

	mu   sync.Mutex
	busy bool
}

// New validates the config and creates an engine
func New(cfg *Config) (*Engine, error) {
	switch {
	case cfg.Session == "":
		return nil, fmt.Errorf("session id cannot be empty")
	case cfg.Index == nil:
		return nil, fmt.Errorf("index is required")
	case cfg.Embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case cfg.Generator == nil:
		return nil, fmt.Errorf("generator is required")
	}

	c := *cfg
	if c.Mode == "" {
		c.Mode = llm.ModeStandard
	}
	if c.Chunk == (vector.ChunkConfig{}) {
		c.Chunk = vector.DefaultChunkConfig()
	}
	c.Chunk.Mode = c.Mode
	if c.TopK <= 0 {
		c.TopK = vector.DefaultTopK
	}
	if c.Reranker == nil {
		c.Reranker = rerank.New(rerank.NewLexicalScorer(), rerank.DefaultTopN)
	}
	if c.Memory == nil {
		c.Memory = memory.NewStore()
	}

	e := &Engine{
		cfg:    c,
		broker: pubsub.NewBroker[Event](),
	}
	if c.Condenser != nil {
		e.condenser = newCondenser(c.Condenser)
	}
	return e, nil
}

// Session returns the session id
func (e *Engine) Session() string {
	return e.cfg.Session
}

// Mode returns the retrieval mode
func (e *Engine) Mode() llm.Mode {
	return e.cfg.Mode
}

// Memory returns the conversation store
func (e *Engine) Memory() memory.Store {
	return e.cfg.Memory
}

// Broker returns the event broker
func (e *Engine) Broker() *pubsub.Broker[Event] {
	return e.broker
}

// Build chunks, embeds and indexes a document under the session.
// The session is registered only after the index accepted every entry.
func (e *Engine) Build(ctx context.Context, doc *parser.Document) (*BuildReport, error) {
	if doc == nil {
		return nil, llm.ErrInvalidDocument
	}
	start := time.Now()

	chunks, err := vector.Chunk(doc.Content, e.cfg.Chunk)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.cfg.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	entries, err := e.cfg.Index.Build(ctx, e.cfg.Session, chunks, vectors, e.cfg.Embedder.Model())
	if err != nil {
		return nil, err
	}

	if e.cfg.Registry != nil {
		rec := session.Record{
			ID:             e.cfg.Session,
			EmbeddingModel: e.cfg.Embedder.Model(),
			Mode:           e.cfg.Mode,
			CreatedAt:      time.Now().UTC(),
		}
		if err := e.cfg.Registry.Register(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to register session: %w", err)
		}
	}

	report := &BuildReport{
		Session:   e.cfg.Session,
		Title:     doc.Title,
		Chunks:    len(chunks),
		Entries:   entries,
		Dimension: len(vectors[0]),
		Model:     e.cfg.Embedder.Model(),
		Took:      time.Since(start),
	}
	logger.Infow("session built", "session", report.Session, "chunks", report.Chunks, "entries", report.Entries, "took", report.Took)
	return report, nil
}

// Query retrieves context for the question and opens the answer stream.
// The returned Response must be drained or closed before the next query.
func (e *Engine) Query(ctx context.Context, question string) (*Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}
	if err := e.acquire(); err != nil {
		return nil, err
	}

	resp, err := e.query(ctx, question)
	if err != nil {
		e.release()
		e.broker.Publish(pubsub.FailedEvent, Event{Session: e.cfg.Session, Question: question, Err: err})
		return nil, err
	}
	return resp, nil
}

func (e *Engine) query(ctx context.Context, question string) (*Response, error) {
	trace := &Trace{
		Session:            e.cfg.Session,
		Mode:               e.cfg.Mode,
		Question:           question,
		StandaloneQuestion: question,
	}
	e.broker.Publish(pubsub.CreatedEvent, Event{Session: e.cfg.Session, Question: question})

	if err := e.checkSession(ctx); err != nil {
		return nil, err
	}

	history, err := e.cfg.Memory.Render(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	if e.condenser != nil && len(history) > 0 {
		start := time.Now()
		standalone, err := e.condenser.Condense(ctx, question, history)
		if err != nil {
			return nil, err
		}
		trace.StandaloneQuestion = standalone
		trace.Durations.Condense = time.Since(start)
		logger.Debugw("question condensed", "session", e.cfg.Session, "standalone", standalone)
	}

	start := time.Now()
	vectors, err := e.cfg.Embedder.Embed(ctx, []string{trace.StandaloneQuestion})
	if err != nil {
		return nil, err
	}
	trace.Durations.Embed = time.Since(start)

	start = time.Now()
	retrieved, err := e.cfg.Index.Search(ctx, e.cfg.Session, vectors[0], e.cfg.TopK)
	if err != nil {
		return nil, err
	}
	trace.Durations.Search = time.Since(start)
	trace.Retrieved = passages(retrieved)

	candidates := retrieved
	if e.cfg.Mode == llm.ModeSentenceWindow {
		candidates = rerank.ReplaceWithWindow(retrieved)
	}

	start = time.Now()
	reranked, err := e.cfg.Reranker.Rerank(ctx, trace.StandaloneQuestion, candidates)
	if err != nil {
		return nil, err
	}
	trace.Durations.Rerank = time.Since(start)
	trace.Reranked = passages(reranked)

	e.broker.Publish(pubsub.RetrievedEvent, Event{Session: e.cfg.Session, Question: question, Passages: reranked})
	logger.Debugw("context retrieved", "session", e.cfg.Session, "retrieved", len(retrieved), "reranked", len(reranked))

	return &Response{
		engine:   e,
		stream:   e.cfg.Generator.Answer(ctx, question, llm.Texts(reranked), history),
		trace:    trace,
		question: question,
		started:  time.Now(),
	}, nil
}

// checkSession rejects a session built with another embedding model
func (e *Engine) checkSession(ctx context.Context) error {
	info, err := e.cfg.Index.Info(ctx, e.cfg.Session)
	if err != nil {
		return err
	}
	if info.Model != "" && info.Model != e.cfg.Embedder.Model() {
		return fmt.Errorf("%w: session %s was built with %q, configured %q",
			llm.ErrEmbeddingModelMismatch, e.cfg.Session, info.Model, e.cfg.Embedder.Model())
	}
	return nil
}

// Result is a completed answer with its trace
type Result struct {
	Answer string
	Trace  *Trace
}

// Chat runs a query and waits for the complete answer
func (e *Engine) Chat(ctx context.Context, question string) (*Result, error) {
	resp, err := e.Query(ctx, question)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	for {
		_, err := resp.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return &Result{Answer: resp.Text(), Trace: resp.Trace()}, nil
}

// Reset clears the conversation
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	if err := e.cfg.Memory.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear memory: %w", err)
	}
	e.broker.Publish(pubsub.DeletedEvent, Event{Session: e.cfg.Session})
	return nil
}

// Close shuts down the event broker
func (e *Engine) Close() {
	e.broker.Shutdown()
}

func (e *Engine) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrQueryInProgress
	}
	e.busy = true
	return nil
}

func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
}

// Response relays the answer stream of one query.
// The question and answer are added to memory only when the stream ends with io.EOF.
type Response struct {
	engine   *Engine
	stream   *generator.Stream
	trace    *Trace
	question string
	started  time.Time

	mu   sync.Mutex
	err  error
	once sync.Once
}

// Recv returns the next answer fragment, io.EOF at the end, or the terminal error.
// Generation failures wrap llm.ErrGenerationProvider.
func (r *Response) Recv() (string, error) {
	r.mu.Lock()
	if r.err != nil {
		defer r.mu.Unlock()
		return "", r.err
	}
	r.mu.Unlock()

	fragment, err := r.stream.Recv()
	if err == nil {
		r.engine.broker.Publish(pubsub.UpdatedEvent, Event{Session: r.engine.cfg.Session, Question: r.question, Fragment: fragment})
		return fragment, nil
	}

	r.once.Do(func() { r.complete(err) })

	r.mu.Lock()
	defer r.mu.Unlock()
	return "", r.err
}

// complete records the terminal result, stores the turn pair on success and frees the engine
func (r *Response) complete(err error) {
	defer r.engine.release()

	e := r.engine
	answer := r.stream.Text()
	r.trace.Answer = answer
	r.trace.Durations.Generate = time.Since(r.started)

	if errors.Is(err, io.EOF) {
		appendErr := e.cfg.Memory.Append(context.Background(),
			schema.UserMessage(r.question),
			schema.AssistantMessage(answer, nil),
		)
		if appendErr != nil {
			err = fmt.Errorf("failed to store conversation: %w", appendErr)
		}
	}

	r.mu.Lock()
	r.err = err
	r.mu.Unlock()

	if errors.Is(err, io.EOF) {
		e.broker.Publish(pubsub.FinishedEvent, Event{Session: e.cfg.Session, Question: r.question, Answer: answer})
		logger.Infow("answer complete", "session", e.cfg.Session, "fragments", r.stream.Delivered(), "took", r.trace.Durations.Generate)
		return
	}

	e.broker.Publish(pubsub.FailedEvent, Event{Session: e.cfg.Session, Question: r.question, Answer: answer, Err: err})
	logger.Warnw("answer failed", "session", e.cfg.Session, "fragments", r.stream.Delivered(), "error", err)
}

// Close stops the answer. An unfinished answer is discarded and memory is left unchanged.
func (r *Response) Close() {
	r.stream.Close()
	r.once.Do(func() { r.complete(generator.ErrClosed) })
}

// Text returns the answer received so far
func (r *Response) Text() string {
	return r.stream.Text()
}

// Trace returns the query trace. Answer and Generate are set once the stream ended.
func (r *Response) Trace() *Trace {
	return r.trace
}
