package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"docqa/llm"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/kart-io/logger"
)

// ErrClosed is returned by Recv after the stream was closed by the caller
var ErrClosed = errors.New("answer stream closed")

// Error is a generation failure.
// Delivered counts the fragments the caller received before the failure.
type Error struct {
	Delivered int
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generation failed after %d fragments: %v", e.Delivered, e.Err)
}

// Unwrap exposes both the error kind and the provider cause
func (e *Error) Unwrap() []error {
	return []error{llm.ErrGenerationProvider, e.Err}
}

// Generator streams grounded answers from a chat model
type Generator struct {
	model      model.BaseChatModel
	template   prompt.ChatTemplate
	maxRetries uint64
	retryWait  time.Duration
}

// Option configures a Generator
type Option func(*Generator)

// WithMaxRetries sets how many times opening the stream is retried
func WithMaxRetries(n uint64) Option {
	return func(g *Generator) {
		g.maxRetries = n
	}
}

// WithRetryWait sets the initial backoff between open attempts
func WithRetryWait(d time.Duration) Option {
	return func(g *Generator) {
		g.retryWait = d
	}
}

// WithTemplate replaces the mode's default prompt
func WithTemplate(t prompt.ChatTemplate) Option {
	return func(g *Generator) {
		g.template = t
	}
}

// New creates a generator using the prompt of the given mode
func New(chatModel model.BaseChatModel, mode llm.Mode, opts ...Option) *Generator {
	g := &Generator{
		model:      chatModel,
		template:   NewTemplate(mode),
		maxRetries: 2,
		retryWait:  time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Messages renders the prompt sent to the model
func (g *Generator) Messages(ctx context.Context, query string, contexts []string, history []*schema.Message) ([]*schema.Message, error) {
	return g.template.Format(ctx, map[string]any{
		keyContext: JoinContexts(contexts),
		keyQuery:   query,
		keyHistory: history,
	})
}

// Answer returns a lazy stream of answer fragments.
// Nothing is sent to the provider until the first Recv.
func (g *Generator) Answer(ctx context.Context, query string, contexts []string, history []*schema.Message) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	return &Stream{
		ctx:    ctx,
		cancel: cancel,
		open: func(ctx context.Context) (*schema.StreamReader[*schema.Message], error) {
			msgs, err := g.Messages(ctx, query, contexts, history)
			if err != nil {
				return nil, fmt.Errorf("failed to render prompt: %w", err)
			}
			return g.openWithRetry(ctx, msgs)
		},
	}
}

// openWithRetry opens the provider stream; retries happen only here, before any fragment
func (g *Generator) openWithRetry(ctx context.Context, msgs []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	var reader *schema.StreamReader[*schema.Message]

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.retryWait
	policy.MaxInterval = 10 * g.retryWait

	op := func() error {
		r, err := g.model.Stream(ctx, msgs)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		reader = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warnw("opening answer stream failed, retrying", "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, g.maxRetries), ctx), notify); err != nil {
		return nil, err
	}
	return reader, nil
}

// Stream is a finite, non-restartable sequence of answer fragments.
// Once Recv returns an error, every later call returns the same error.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	open   func(ctx context.Context) (*schema.StreamReader[*schema.Message], error)

	mu        sync.Mutex
	reader    *schema.StreamReader[*schema.Message]
	opened    bool
	closed    atomic.Bool
	delivered int
	text      strings.Builder
	err       error
}

// Recv returns the next non-empty fragment, or io.EOF when the answer is complete
func (s *Stream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return "", s.err
	}

	if !s.opened {
		s.opened = true
		reader, err := s.open(s.ctx)
		if err != nil {
			return "", s.fail(err)
		}
		s.reader = reader
	}

	for {
		msg, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			s.finish(io.EOF)
			return "", io.EOF
		}
		if err != nil {
			return "", s.fail(err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}

		s.delivered++
		s.text.WriteString(msg.Content)
		return msg.Content, nil
	}
}

// fail records the terminal error for a failed open or read
func (s *Stream) fail(err error) error {
	switch {
	case s.closed.Load():
		s.finish(ErrClosed)
	case s.ctx.Err() != nil:
		s.finish(s.ctx.Err())
	default:
		s.finish(&Error{Delivered: s.delivered, Err: err})
	}
	return s.err
}

func (s *Stream) finish(err error) {
	s.err = err
	if s.reader != nil {
		s.reader.Close()
	}
	s.cancel()
}

// Close cancels the provider call. It is safe to call from another goroutine and more than once.
func (s *Stream) Close() {
	s.closed.Store(true)
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.finish(ErrClosed)
	}
}

// Text returns the fragments delivered so far, concatenated
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Delivered returns the number of fragments delivered so far
func (s *Stream) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}
