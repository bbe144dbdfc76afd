// Package studio tracks one design conversation per pipeline: the transcript
// between the user and the model, every revision the model produced, and
// which revision is current.
package studio

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pipeloom/pipeloom/pkg/generate"
	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

// EntryKind identifies who produced a transcript entry.
type EntryKind string

const (
	EntryRequest EntryKind = "request"
	EntryReply   EntryKind = "reply"
	EntryError   EntryKind = "error"
)

// Entry is one line of the conversation shown next to the graph.
type Entry struct {
	Kind EntryKind `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is a single design conversation. It is not safe for concurrent
// use; hosts serialize access.
type Session struct {
	ID        string
	CreatedAt time.Time

	gen        *generate.Generator
	transcript []Entry
	revisions  []*pipeline.Pipeline
	current    *pipeline.Pipeline
}

// NewSession opens an empty conversation backed by gen.
func NewSession(gen *generate.Generator) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		gen:       gen,
	}
}

// Describe designs the first revision from a free-form description. Calling
// it again starts the design over with a fresh revision history.
func (s *Session) Describe(ctx context.Context, description string) (*pipeline.Pipeline, error) {
	s.record(EntryRequest, description)
	p, err := s.gen.Generate(ctx, description)
	if err != nil {
		s.record(EntryError, err.Error())
		return nil, err
	}
	s.revisions = s.revisions[:0]
	s.adopt(p)
	return p, nil
}

// Open seeds the session with an existing pipeline, e.g. one loaded from
// storage, keeping its revision number. Like Describe it restarts the
// revision history.
func (s *Session) Open(p *pipeline.Pipeline) {
	s.revisions = s.revisions[:0]
	s.revisions = append(s.revisions, p.Clone())
	s.current = p
	s.record(EntryReply, fmt.Sprintf("Opened %q at revision %d.", p.Name, p.Revision))
}

// Refine asks the model to revise the current pipeline. The previous revision
// stays in the history.
func (s *Session) Refine(ctx context.Context, request string) (*pipeline.Pipeline, error) {
	if s.current == nil {
		return nil, fmt.Errorf("studio: nothing to refine, describe a pipeline first")
	}
	s.record(EntryRequest, request)
	p, err := s.gen.Refine(ctx, s.current, request)
	if err != nil {
		s.record(EntryError, err.Error())
		return nil, err
	}
	s.adopt(p)
	return p, nil
}

func (s *Session) adopt(p *pipeline.Pipeline) {
	s.revisions = append(s.revisions, p.Clone())
	s.current = p
	s.record(EntryReply, fmt.Sprintf("Revision %d: %q with %d steps.", p.Revision, p.Name, len(p.Steps)))
}

// Current returns the live current pipeline, or nil before the first
// successful Describe.
func (s *Session) Current() *pipeline.Pipeline {
	return s.current
}

// Revisions reports how many revisions the session holds.
func (s *Session) Revisions() int {
	return len(s.revisions)
}

// Revision returns a copy of the n-th revision recorded in this session
// (1-based). For sessions opened from storage the session-local position and
// the pipeline's own revision number can differ.
func (s *Session) Revision(n int) (*pipeline.Pipeline, error) {
	if n < 1 || n > len(s.revisions) {
		return nil, fmt.Errorf("studio: no revision %d", n)
	}
	return s.revisions[n-1].Clone(), nil
}

// RevertTo makes the n-th recorded revision current again, recorded as a new
// revision so the history stays linear.
func (s *Session) RevertTo(n int) (*pipeline.Pipeline, error) {
	old, err := s.Revision(n)
	if err != nil {
		return nil, err
	}
	old.Revision = s.current.Revision + 1
	old.Accepted = false
	old.UpdatedAt = time.Now().UTC()
	s.revisions = append(s.revisions, old.Clone())
	s.current = old
	s.record(EntryReply, fmt.Sprintf("Reverted to revision %d (now revision %d).", n, old.Revision))
	return old, nil
}

// Accept marks the current pipeline as accepted by the user.
func (s *Session) Accept() error {
	if s.current == nil {
		return fmt.Errorf("studio: nothing to accept")
	}
	s.current.Accepted = true
	s.current.UpdatedAt = time.Now().UTC()
	return nil
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []Entry {
	out := make([]Entry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) record(kind EntryKind, text string) {
	s.transcript = append(s.transcript, Entry{Kind: kind, Text: text, At: time.Now().UTC()})
}
