// Package server hosts the studio over HTTP: the single-page app shell, the
// design conversation endpoints, the interaction event channel that drives
// the SVG view, and pipeline storage.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/pipeloom/pipeloom/pkg/config"
	"github.com/pipeloom/pipeloom/pkg/export"
	"github.com/pipeloom/pipeloom/pkg/generate"
	"github.com/pipeloom/pipeloom/pkg/graphview"
	"github.com/pipeloom/pipeloom/pkg/llm"
	"github.com/pipeloom/pipeloom/pkg/pipeline"
	"github.com/pipeloom/pipeloom/pkg/simulate"
	"github.com/pipeloom/pipeloom/pkg/store"
	"github.com/pipeloom/pipeloom/pkg/studio"
)

// Server wires the studio together behind a Fiber app.
type Server struct {
	app      *fiber.App
	cfg      *config.Config
	store    store.Store
	gen      *generate.Generator
	theme    graphview.Theme
	sessions *sessionRegistry
}

// New builds the server. The generator may be nil for hosts that only browse
// and render stored pipelines; design endpoints then return an error.
func New(cfg *config.Config, st store.Store, gen *generate.Generator) (*Server, error) {
	theme, err := graphview.ThemeByName(cfg.Server.Theme)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:      fiber.New(),
		cfg:      cfg,
		store:    st,
		gen:      gen,
		theme:    theme,
		sessions: newSessionRegistry(),
	}
	s.app.Use(requestLogger)
	s.routes()
	return s, nil
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until the listener fails or Shutdown is called.
func (s *Server) Listen() error {
	slog.Info("listening", "addr", s.cfg.Server.Addr)
	return s.app.Listen(s.cfg.Server.Addr)
}

// Shutdown stops the server, waiting for in-flight requests up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func requestLogger(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	slog.Info("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start).Round(time.Millisecond))
	return err
}

func (s *Server) routes() {
	s.app.Get("/", s.handleIndex)

	api := s.app.Group("/api")
	api.Post("/sessions", s.handleCreateSession)
	api.Get("/sessions/:id", s.handleSessionState)
	api.Delete("/sessions/:id", s.handleCloseSession)
	api.Post("/sessions/:id/describe", s.handleDescribe)
	api.Post("/sessions/:id/refine", s.handleRefine)
	api.Post("/sessions/:id/revert", s.handleRevert)
	api.Post("/sessions/:id/accept", s.handleAccept)
	api.Post("/sessions/:id/theme", s.handleTheme)
	api.Post("/sessions/:id/events", s.handleEvents)
	api.Post("/sessions/:id/positions/save", s.handleSavePositions)
	api.Post("/sessions/:id/run", s.handleRun)
	api.Post("/sessions/:id/run/stop", s.handleStopRun)
	api.Get("/sessions/:id/view", s.handleView)

	api.Get("/pipelines", s.handleListPipelines)
	api.Post("/pipelines/import", s.handleImport)
	api.Get("/pipelines/:id", s.handleGetPipeline)
	api.Delete("/pipelines/:id", s.handleDeletePipeline)
	api.Put("/pipelines/:id/schedule", s.handleSchedule)
	api.Get("/pipelines/:id/export", s.handleExport)
	api.Get("/pipelines/:id/svg", s.handlePipelineSVG)
}

// ─── session lifecycle ───

type createSessionRequest struct {
	Description string `json:"description"`
	PipelineID  string `json:"pipeline_id"`
}

func (s *Server) handleCreateSession(c fiber.Ctx) error {
	var req createSessionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("invalid body"))
		}
	}
	if req.Description != "" && req.PipelineID != "" {
		return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("give either description or pipeline_id, not both"))
	}

	var loaded *pipeline.Pipeline
	if req.PipelineID != "" {
		p, err := s.store.LoadPipeline(c.Context(), req.PipelineID)
		if err != nil {
			return jsonError(c, storeStatus(err), err)
		}
		loaded = p
	}

	entry := s.sessions.create(s.gen, s.theme)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	switch {
	case loaded != nil:
		entry.studio.Open(loaded)
		entry.saved = s.loadPositions(c.Context(), loaded)
		entry.setPipeline(loaded)

	case req.Description != "":
		if err := s.describe(c.Context(), entry, req.Description); err != nil {
			// The session survives; the payload carries its id so the client
			// can retry with POST /sessions/:id/describe.
			status, body := designBody(err)
			body["session_id"] = entry.id()
			return c.Status(status).JSON(body)
		}
	}
	return c.Status(fiber.StatusCreated).JSON(s.state(entry))
}

func (s *Server) handleSessionState(c fiber.Ctx) error {
	return s.withSession(c, func(entry *session) error {
		return c.JSON(s.state(entry))
	})
}

func (s *Server) handleCloseSession(c fiber.Ctx) error {
	s.sessions.remove(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

// ─── design conversation ───

func (s *Server) handleDescribe(c fiber.Ctx) error {
	var req struct {
		Description string `json:"description"`
	}
	if err := c.Bind().JSON(&req); err != nil || req.Description == "" {
		return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("description required"))
	}
	return s.withSession(c, func(entry *session) error {
		if err := s.describe(c.Context(), entry, req.Description); err != nil {
			return designError(c, err)
		}
		return c.JSON(s.state(entry))
	})
}

func (s *Server) describe(ctx context.Context, entry *session, description string) error {
	if s.gen == nil {
		return fmt.Errorf("no model configured")
	}
	p, err := entry.studio.Describe(ctx, description)
	if err != nil {
		return err
	}
	entry.saved = s.loadPositions(ctx, p)
	entry.setPipeline(p)
	return nil
}

func (s *Server) handleRefine(c fiber.Ctx) error {
	var req struct {
		Request string `json:"request"`
	}
	if err := c.Bind().JSON(&req); err != nil || req.Request == "" {
		return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("request required"))
	}
	return s.withSession(c, func(entry *session) error {
		if s.gen == nil {
			return jsonError(c, fiber.StatusServiceUnavailable, fmt.Errorf("no model configured"))
		}
		p, err := entry.studio.Refine(c.Context(), req.Request)
		if err != nil {
			return designError(c, err)
		}
		entry.setPipeline(p)
		return c.JSON(s.state(entry))
	})
}

func (s *Server) handleRevert(c fiber.Ctx) error {
	var req struct {
		Revision int `json:"revision"`
	}
	if err := c.Bind().JSON(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("invalid body"))
	}
	return s.withSession(c, func(entry *session) error {
		p, err := entry.studio.RevertTo(req.Revision)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, err)
		}
		entry.setPipeline(p)
		return c.JSON(s.state(entry))
	})
}

func (s *Server) handleAccept(c fiber.Ctx) error {
	return s.withSession(c, func(entry *session) error {
		if err := entry.studio.Accept(); err != nil {
			return jsonError(c, fiber.StatusBadRequest, err)
		}
		if err := s.store.SavePipeline(c.Context(), entry.studio.Current()); err != nil {
			return jsonError(c, fiber.StatusInternalServerError, err)
		}
		return c.JSON(s.state(entry))
	})
}

func (s *Server) handleTheme(c fiber.Ctx) error {
	var req struct {
		Theme string `json:"theme"`
	}
	if err := c.Bind().JSON(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("invalid body"))
	}
	theme, err := graphview.ThemeByName(req.Theme)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, err)
	}
	return s.withSession(c, func(entry *session) error {
		entry.scene.SetTheme(theme)
		return c.JSON(s.state(entry))
	})
}

// ─── view interaction ───

func (s *Server) handleEvents(c fiber.Ctx) error {
	var evs []graphview.Event
	if err := c.Bind().JSON(&evs); err != nil {
		return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("invalid event batch"))
	}
	return s.withSession(c, func(entry *session) error {
		for _, ev := range evs {
			if err := entry.scene.Handle(ev); err != nil {
				return jsonError(c, fiber.StatusBadRequest, err)
			}
		}
		return c.JSON(fiber.Map{
			"svg":    entry.scene.Render(),
			"cursor": entry.scene.Cursor(),
		})
	})
}

func (s *Server) handleSavePositions(c fiber.Ctx) error {
	return s.withSession(c, func(entry *session) error {
		p := entry.studio.Current()
		if p == nil {
			return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("nothing to save"))
		}
		merged := entry.scene.PositionsForSave()
		key := store.PositionKey(p)
		if err := s.store.SavePositions(c.Context(), key, merged); err != nil {
			return jsonError(c, fiber.StatusInternalServerError, err)
		}
		entry.markSaved(merged)
		slog.Info("positions saved", "key", key, "count", len(merged))
		return c.JSON(fiber.Map{"key": key, "saved": len(merged)})
	})
}

func (s *Server) handleView(c fiber.Ctx) error {
	return s.withSession(c, func(entry *session) error {
		return c.JSON(fiber.Map{
			"svg":     entry.scene.Render(),
			"cursor":  entry.scene.Cursor(),
			"running": entry.running,
			"active":  entry.scene.Active(),
		})
	})
}

// ─── simulated runs ───

func (s *Server) handleRun(c fiber.Ctx) error {
	var req struct {
		FailAt string `json:"fail_at"`
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("invalid body"))
		}
	}
	return s.withSession(c, func(entry *session) error {
		runner := simulate.NewRunner(s.cfg.StepDuration())
		runner.FailAt = req.FailAt
		if err := entry.startRun(runner); err != nil {
			return jsonError(c, fiber.StatusConflict, err)
		}
		return c.JSON(fiber.Map{"running": true})
	})
}

func (s *Server) handleStopRun(c fiber.Ctx) error {
	return s.withSession(c, func(entry *session) error {
		entry.stopRun()
		return c.JSON(fiber.Map{"running": false})
	})
}

// ─── stored pipelines ───

func (s *Server) handleListPipelines(c fiber.Ctx) error {
	list, err := s.store.ListPipelines(c.Context())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(fiber.Map{"pipelines": list})
}

func (s *Server) handleGetPipeline(c fiber.Ctx) error {
	p, err := s.store.LoadPipeline(c.Context(), c.Params("id"))
	if err != nil {
		return jsonError(c, storeStatus(err), err)
	}
	return c.JSON(p)
}

func (s *Server) handleDeletePipeline(c fiber.Ctx) error {
	if err := s.store.DeletePipeline(c.Context(), c.Params("id")); err != nil {
		return jsonError(c, storeStatus(err), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSchedule(c fiber.Ctx) error {
	var req struct {
		Cron    string `json:"cron"`
		Enabled bool   `json:"enabled"`
	}
	if err := c.Bind().JSON(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("invalid body"))
	}
	p, err := s.store.LoadPipeline(c.Context(), c.Params("id"))
	if err != nil {
		return jsonError(c, storeStatus(err), err)
	}

	if req.Cron == "" {
		p.Schedule = nil
	} else {
		if err := pipeline.ValidateCron(req.Cron); err != nil {
			return jsonError(c, fiber.StatusUnprocessableEntity, err)
		}
		p.Schedule = &pipeline.Schedule{Cron: req.Cron, Enabled: req.Enabled}
	}
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.SavePipeline(c.Context(), p); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(p)
}

func (s *Server) handleExport(c fiber.Ctx) error {
	p, err := s.store.LoadPipeline(c.Context(), c.Params("id"))
	if err != nil {
		return jsonError(c, storeStatus(err), err)
	}
	data, err := export.Bundle(p)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, err)
	}
	name := p.Name
	if name == "" {
		name = p.ID
	}
	c.Set("Content-Type", "application/zip")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".zip"))
	return c.Send(data)
}

func (s *Server) handlePipelineSVG(c fiber.Ctx) error {
	p, err := s.store.LoadPipeline(c.Context(), c.Params("id"))
	if err != nil {
		return jsonError(c, storeStatus(err), err)
	}
	theme := s.theme
	if name := c.Query("theme"); name != "" {
		theme, err = graphview.ThemeByName(name)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, err)
		}
	}

	sc := graphview.NewScene(theme)
	sc.SetPipeline(p, s.loadPositions(c.Context(), p))
	if w := c.Query("width"); w != "" {
		width, err := strconv.ParseFloat(w, 64)
		if err != nil || width <= 0 {
			return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("invalid width %q", w))
		}
		if err := sc.Handle(graphview.Event{Kind: graphview.EventResize, Width: width}); err != nil {
			return jsonError(c, fiber.StatusInternalServerError, err)
		}
	}
	c.Set("Content-Type", "image/svg+xml")
	return c.SendString(sc.Render())
}

type importRequest struct {
	Format string `json:"format"`
	Source string `json:"source"`
}

func (s *Server) handleImport(c fiber.Ctx) error {
	var req importRequest
	if err := c.Bind().JSON(&req); err != nil || req.Source == "" {
		return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("format and source required"))
	}

	var (
		p   *pipeline.Pipeline
		err error
	)
	switch req.Format {
	case "json":
		p = &pipeline.Pipeline{}
		err = json.Unmarshal([]byte(req.Source), p)
	case "dot":
		p, err = pipeline.ParseDOT(req.Source)
	case "hcl":
		p, err = pipeline.ParseHCL([]byte(req.Source), "import.hcl")
	default:
		return jsonError(c, fiber.StatusBadRequest, fmt.Errorf("unknown format %q", req.Format))
	}
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, err)
	}

	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Revision == 0 {
		p.Revision = 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := s.store.SavePipeline(c.Context(), p); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// ─── shared plumbing ───

// sessionState is the payload the app shell refreshes from. Dockerfile is a
// preview of what export would package, for the code panel.
type sessionState struct {
	SessionID  string               `json:"session_id"`
	Pipeline   *pipeline.Pipeline   `json:"pipeline,omitempty"`
	Transcript []studio.Entry       `json:"transcript"`
	Revisions  int                  `json:"revisions"`
	Findings   []pipeline.LintError `json:"findings,omitempty"`
	SVG        string               `json:"svg"`
	Cursor     string               `json:"cursor"`
	Running    bool                 `json:"running"`
	Theme      string               `json:"theme"`
	Dockerfile string               `json:"dockerfile,omitempty"`
}

// state snapshots a session; callers hold entry.mu.
func (s *Server) state(entry *session) sessionState {
	st := sessionState{
		SessionID:  entry.id(),
		Transcript: entry.studio.Transcript(),
		Revisions:  entry.studio.Revisions(),
		SVG:        entry.scene.Render(),
		Cursor:     entry.scene.Cursor(),
		Running:    entry.running,
		Theme:      entry.scene.Theme().Name,
	}
	if p := entry.studio.Current(); p != nil {
		st.Pipeline = p
		st.Findings = pipeline.Lint(p)
		st.Dockerfile = string(export.Dockerfile(p))
	}
	return st
}

// withSession runs fn with the session locked, or answers 404.
func (s *Server) withSession(c fiber.Ctx, fn func(*session) error) error {
	entry, ok := s.sessions.get(c.Params("id"))
	if !ok {
		return jsonError(c, fiber.StatusNotFound, fmt.Errorf("no such session"))
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry)
}

// loadPositions fetches the saved layout for p, treating a missing snapshot
// as empty.
func (s *Server) loadPositions(ctx context.Context, p *pipeline.Pipeline) map[string]graphview.Point {
	pos, err := s.store.LoadPositions(ctx, store.PositionKey(p))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("loading positions failed", "key", store.PositionKey(p), "error", err)
		}
		return nil
	}
	return pos
}

func jsonError(c fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// designError maps generation failures: malformed model replies carry the
// raw reply for display, provider failures surface as bad gateway.
func designError(c fiber.Ctx, err error) error {
	status, body := designBody(err)
	return c.Status(status).JSON(body)
}

func designBody(err error) (int, fiber.Map) {
	var mErr *generate.MalformedReplyError
	if errors.As(err, &mErr) {
		return fiber.StatusBadGateway, fiber.Map{"error": mErr.Error(), "raw": mErr.Raw}
	}
	var aErr *llm.APIError
	if errors.As(err, &aErr) {
		return fiber.StatusBadGateway, fiber.Map{"error": err.Error()}
	}
	return fiber.StatusInternalServerError, fiber.Map{"error": err.Error()}
}

func storeStatus(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}
