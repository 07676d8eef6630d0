// Package llmtest provides scripted chat models for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Reply scripts one model call
type Reply struct {
	// OpenErr fails the call before any output
	OpenErr error
	// Fragments are streamed in order
	Fragments []string
	// Err is delivered after the fragments, ending the stream
	Err error
}

// Text returns the fragments joined
func (r Reply) Text() string {
	return strings.Join(r.Fragments, "")
}

// ScriptedModel is a model.BaseChatModel that plays back scripted replies.
// When Respond is set it decides every reply; otherwise replies are used in order
// and the last one repeats.
type ScriptedModel struct {
	Respond func(input []*schema.Message) Reply

	mu      sync.Mutex
	replies []Reply
	inputs  [][]*schema.Message
}

var _ model.BaseChatModel = (*ScriptedModel)(nil)

// NewScriptedModel creates a model replying with the given scripts in order
func NewScriptedModel(replies ...Reply) *ScriptedModel {
	return &ScriptedModel{replies: replies}
}

// Answering returns a model that always streams the given fragments
func Answering(fragments ...string) *ScriptedModel {
	return NewScriptedModel(Reply{Fragments: fragments})
}

func (m *ScriptedModel) next(input []*schema.Message) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := len(m.inputs)
	m.inputs = append(m.inputs, input)

	if m.Respond != nil {
		return m.Respond(input)
	}
	if len(m.replies) == 0 {
		return Reply{}
	}
	if call >= len(m.replies) {
		call = len(m.replies) - 1
	}
	return m.replies[call]
}

// Generate implements model.BaseChatModel
func (m *ScriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	r := m.next(input)
	if r.OpenErr != nil {
		return nil, r.OpenErr
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return schema.AssistantMessage(r.Text(), nil), nil
}

// Stream implements model.BaseChatModel
func (m *ScriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	r := m.next(input)
	if r.OpenErr != nil {
		return nil, r.OpenErr
	}

	sr, sw := schema.Pipe[*schema.Message](len(r.Fragments) + 1)
	for _, f := range r.Fragments {
		sw.Send(schema.AssistantMessage(f, nil), nil)
	}
	if r.Err != nil {
		sw.Send(nil, r.Err)
	}
	sw.Close()
	return sr, nil
}

// Calls returns the number of Generate and Stream calls so far
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// Input returns the messages of the i-th call
func (m *ScriptedModel) Input(i int) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs[i]
}

// LastInput returns the messages of the latest call
func (m *ScriptedModel) LastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inputs) == 0 {
		return nil
	}
	return m.inputs[len(m.inputs)-1]
}
