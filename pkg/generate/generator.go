// Package generate turns natural-language workflow descriptions into pipeline
// definitions by prompting a hosted model and decoding its JSON reply.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pipeloom/pipeloom/pkg/llm"
	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

const defaultMaxTokens = 4096

// MalformedReplyError reports a model reply that could not be decoded into a
// pipeline document. Raw carries the reply so hosts can surface it.
type MalformedReplyError struct {
	Raw string
	Err error
}

func (e *MalformedReplyError) Error() string {
	return fmt.Sprintf("model reply is not a pipeline document: %v", e.Err)
}

func (e *MalformedReplyError) Unwrap() error { return e.Err }

// Generator produces and revises pipeline definitions through an LLM client.
type Generator struct {
	client      llm.Client
	maxTokens   int
	temperature float64
}

// NewGenerator wraps an LLM client with the prompting and decoding logic.
func NewGenerator(client llm.Client) *Generator {
	return &Generator{client: client, maxTokens: defaultMaxTokens, temperature: 0.2}
}

// Generate designs a new pipeline from a free-form description. The result
// carries a fresh id, revision 1, and creation timestamps; steps start out
// pending.
func (g *Generator) Generate(ctx context.Context, description string) (*pipeline.Pipeline, error) {
	p, err := g.complete(ctx, []llm.Message{
		{Role: llm.RoleUser, Text: generatePrompt(description)},
	})
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.Revision = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	slog.Info("pipeline generated", "pipeline", p.ID, "name", p.Name, "steps", len(p.Steps))
	return p, nil
}

// Refine applies a change request to an existing pipeline and returns the
// next revision. The input pipeline is not modified. Identity and creation
// time carry over; the new revision starts unaccepted.
func (g *Generator) Refine(ctx context.Context, p *pipeline.Pipeline, request string) (*pipeline.Pipeline, error) {
	if p == nil {
		return nil, fmt.Errorf("refine: no pipeline to refine")
	}
	next, err := g.complete(ctx, []llm.Message{
		{Role: llm.RoleUser, Text: refinePrompt(p, request)},
	})
	if err != nil {
		return nil, err
	}
	next.ID = p.ID
	next.Revision = p.Revision + 1
	next.CreatedAt = p.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	slog.Info("pipeline refined", "pipeline", next.ID, "revision", next.Revision, "steps", len(next.Steps))
	return next, nil
}

func (g *Generator) complete(ctx context.Context, msgs []llm.Message) (*pipeline.Pipeline, error) {
	resp, err := g.client.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    msgs,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("completing pipeline design: %w", err)
	}
	if resp.StopReason == llm.StopReasonMaxTokens {
		slog.Warn("pipeline design hit the token limit", "output_tokens", resp.Usage.OutputTokens)
	}
	p, err := DecodePipeline(resp.Text)
	if err != nil {
		return nil, &MalformedReplyError{Raw: resp.Text, Err: err}
	}
	return p, nil
}
