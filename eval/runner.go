package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"docqa/llm"
	"docqa/llm/engine"
	"docqa/session"

	"github.com/kart-io/logger"
	"golang.org/x/time/rate"
)

// Chatter is the part of the chat engine the runner drives
type Chatter interface {
	Chat(ctx context.Context, question string) (*engine.Result, error)
	Reset(ctx context.Context) error
}

// Record is one line of the results file
type Record struct {
	Question  Question      `json:"question"`
	Trace     *engine.Trace `json:"trace,omitempty"`
	Scores    *Scores       `json:"scores,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
}

// Summary aggregates a run
type Summary struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
	Scored int `json:"scored"`
	// Mean is averaged over scored questions
	Mean Scores `json:"mean"`
}

// Runner replays questions one at a time, resetting memory before each
type Runner struct {
	chat    Chatter
	judge   *Judge
	limiter *rate.Limiter
	out     io.Writer
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithJudge scores every answer with the judge
func WithJudge(j *Judge) RunnerOption {
	return func(r *Runner) {
		r.judge = j
	}
}

// WithInterval spaces questions at least d apart; zero disables pacing
func WithInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		r.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewRunner creates a runner writing JSON lines to out
func NewRunner(chat Chatter, out io.Writer, opts ...RunnerOption) *Runner {
	r := &Runner{
		chat:    chat,
		out:     out,
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates every question. A failed question is recorded and the run goes on;
// only context cancellation and output errors stop it.
func (r *Runner) Run(ctx context.Context, questions []Question) (*Summary, error) {
	enc := json.NewEncoder(r.out)
	summary := &Summary{}
	var total Scores

	for _, q := range questions {
		if err := r.limiter.Wait(ctx); err != nil {
			return summary, err
		}

		logger.Infow("evaluating question", "index", q.Index+1, "total", len(questions), "question", q.Text)
		rec := r.evaluate(ctx, q)
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		summary.Total++
		if rec.Error != "" {
			summary.Failed++
			logger.Warnw("question failed", "index", q.Index+1, "error", rec.Error)
		}
		if rec.Scores != nil {
			summary.Scored++
			total.Groundedness += rec.Scores.Groundedness
			total.AnswerRelevance += rec.Scores.AnswerRelevance
			total.ContextRelevance += rec.Scores.ContextRelevance
		}

		if err := enc.Encode(rec); err != nil {
			return summary, fmt.Errorf("failed to write result: %w", err)
		}
	}

	if summary.Scored > 0 {
		n := float64(summary.Scored)
		summary.Mean = Scores{
			Groundedness:     total.Groundedness / n,
			AnswerRelevance:  total.AnswerRelevance / n,
			ContextRelevance: total.ContextRelevance / n,
		}
	}
	logger.Infow("evaluation complete", "total", summary.Total, "failed", summary.Failed, "scored", summary.Scored)
	return summary, nil
}

func (r *Runner) evaluate(ctx context.Context, q Question) *Record {
	rec := &Record{Question: q, StartedAt: time.Now().UTC()}

	if err := r.chat.Reset(ctx); err != nil {
		rec.Error = fmt.Sprintf("reset memory: %v", err)
		return rec
	}

	res, err := r.chat.Chat(ctx, q.Text)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.Trace = res.Trace

	if r.judge != nil {
		scores, err := r.judge.Score(ctx, q.Text, res.Answer, res.Trace.Contexts())
		if err != nil {
			rec.Error = err.Error()
			return rec
		}
		rec.Scores = scores
	}
	return rec
}

// ResolveSession returns the registered session and checks it was built with embeddingModel
func ResolveSession(ctx context.Context, reg session.Registry, embeddingModel string) (session.Record, error) {
	rec, err := reg.Resolve(ctx)
	if err != nil {
		return session.Record{}, err
	}
	if rec.EmbeddingModel != "" && rec.EmbeddingModel != embeddingModel {
		return session.Record{}, fmt.Errorf("%w: session %s was built with %q, configured %q",
			llm.ErrEmbeddingModelMismatch, rec.ID, rec.EmbeddingModel, embeddingModel)
	}
	return rec, nil
}
