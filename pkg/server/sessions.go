package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pipeloom/pipeloom/pkg/generate"
	"github.com/pipeloom/pipeloom/pkg/graphview"
	"github.com/pipeloom/pipeloom/pkg/pipeline"
	"github.com/pipeloom/pipeloom/pkg/simulate"
	"github.com/pipeloom/pipeloom/pkg/studio"
)

// session couples a design conversation with its graph scene. All access to
// the fields below goes through mu; the scene and studio session are not
// concurrency-safe on their own.
type session struct {
	mu     sync.Mutex
	studio *studio.Session
	scene  *graphview.Scene

	// saved is the override layer fed to the scene on rebuilds: positions
	// loaded from storage plus any explicitly saved drags. Unsaved drags
	// live only in the scene and do not survive a rebuild.
	saved map[string]graphview.Point

	running   bool
	cancelRun context.CancelFunc
}

func (s *session) id() string { return s.studio.ID }

// setPipeline points the scene at p, keeping only explicitly saved
// positions.
func (s *session) setPipeline(p *pipeline.Pipeline) {
	s.scene.SetPipeline(p, s.saved)
	s.scene.SetActive("")
}

// markSaved records merged as the new override layer, in the scene too, so
// saved drags stop counting as pending ones. No rebuild: the view must not
// jump on save.
func (s *session) markSaved(merged map[string]graphview.Point) {
	s.saved = merged
	s.scene.CommitSaved(merged)
}

// startRun launches a simulated run. Events are folded into step statuses
// and the active-node glow until the stream closes.
func (s *session) startRun(runner *simulate.Runner) error {
	if s.running {
		return fmt.Errorf("a run is already in progress")
	}
	p := s.studio.Current()
	if p == nil {
		return fmt.Errorf("nothing to run")
	}
	ctx, cancel := context.WithCancel(context.Background())
	events, err := runner.Run(ctx, p)
	if err != nil {
		cancel()
		return err
	}
	s.running = true
	s.cancelRun = cancel
	go s.consumeRun(events, cancel)
	return nil
}

func (s *session) consumeRun(events <-chan simulate.Event, cancel context.CancelFunc) {
	defer cancel()
	for ev := range events {
		s.mu.Lock()
		s.applyRunEvent(ev)
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.running = false
	s.cancelRun = nil
	s.scene.SetActive("")
	s.mu.Unlock()
}

func (s *session) applyRunEvent(ev simulate.Event) {
	p := s.studio.Current()
	simulate.Apply(p, ev)
	if ev.StepID != "" {
		if n := s.scene.Graph().Node(ev.StepID); n != nil && p != nil {
			if st := p.StepByID(ev.StepID); st != nil {
				n.Status = st.Status
			}
		}
	}
	switch ev.Kind {
	case simulate.EventRunStarted:
		for _, n := range s.scene.Graph().Nodes {
			n.Status = pipeline.StatusPending
		}
	case simulate.EventStepStarted:
		s.scene.SetActive(ev.StepID)
	case simulate.EventStepCompleted, simulate.EventStepErrored:
		if s.scene.Active() == ev.StepID {
			s.scene.SetActive("")
		}
	case simulate.EventRunFailed:
		slog.Warn("simulated run failed", "session", s.id(), "error", ev.Err)
	}
}

// stopRun cancels an in-flight run, if any.
func (s *session) stopRun() {
	if s.cancelRun != nil {
		s.cancelRun()
	}
}

// ─── registry ───

type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session)}
}

func (r *sessionRegistry) create(gen *generate.Generator, theme graphview.Theme) *session {
	s := &session{
		studio: studio.NewSession(gen),
		scene:  graphview.NewScene(theme),
	}
	r.mu.Lock()
	r.sessions[s.id()] = s
	r.mu.Unlock()
	return s
}

func (r *sessionRegistry) get(id string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.mu.Lock()
		s.stopRun()
		s.mu.Unlock()
	}
}
