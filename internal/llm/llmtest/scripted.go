// Package llmtest provides chat model doubles for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ScriptedModel is a BaseChatModel whose replies come from a function.
type ScriptedModel struct {
	mu      sync.Mutex
	reply   func(ctx context.Context, input []*schema.Message) (string, error)
	prompts [][]*schema.Message
}

var _ model.BaseChatModel = (*ScriptedModel)(nil)

// NewScriptedModel creates a model answering with reply
func NewScriptedModel(reply func(ctx context.Context, input []*schema.Message) (string, error)) *ScriptedModel {
	return &ScriptedModel{reply: reply}
}

// Generate records the prompt and returns the scripted reply
func (s *ScriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, input)
	s.mu.Unlock()

	content, err := s.reply(ctx, input)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(content, nil), nil
}

// Stream returns the scripted reply as a single chunk
func (s *ScriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := s.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Calls returns how many prompts were generated
func (s *ScriptedModel) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// LastPrompt returns the messages of the latest call
func (s *ScriptedModel) LastPrompt() []*schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return nil
	}
	return s.prompts[len(s.prompts)-1]
}
