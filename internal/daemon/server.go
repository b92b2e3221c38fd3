package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/stagecraft/stagehand/internal/agent"
	"github.com/stagecraft/stagehand/internal/archive"
	"github.com/stagecraft/stagehand/internal/notify"
	"github.com/stagecraft/stagehand/internal/task"
	"github.com/stagecraft/stagehand/internal/theater"
	"github.com/stagecraft/stagehand/pkg/cerr"
	"github.com/stagecraft/stagehand/pkg/clog"
	"github.com/stagecraft/stagehand/pkg/storage"
)

// Server is the daemon's HTTP surface: JSON over chi with CORS and h2c
// so browser frontends can talk to it directly.
type Server struct {
	addr     string
	manager  *task.Manager
	registry *agent.Registry
	archive  *archive.Store
	subs     *notify.SubscriptionStore
	store    storage.Storage
	stage    *theater.Client

	server *http.Server
}

func NewServer(addr string, manager *task.Manager, registry *agent.Registry, arch *archive.Store, subs *notify.SubscriptionStore, store storage.Storage, stage *theater.Client) *Server {
	return &Server{
		addr:     addr,
		manager:  manager,
		registry: registry,
		archive:  arch,
		subs:     subs,
		store:    store,
		stage:    stage,
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(clog.SlogChiMiddleware())

		r.Get("/status", s.getStatus)
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.createTask)
			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Delete("/", s.cancelTask)
				r.Post("/deliverables/{name}", s.recordDeliverable)
				r.Post("/deliverables/{name}/asset", s.uploadAsset)
				r.Get("/deliverables/{name}/asset", s.getAsset)
				r.Post("/gates/{name}", s.recordGate)
				r.Post("/feedback", s.addFeedback)
				r.Post("/blockers", s.reportBlocker)
			})
		})
		r.Get("/agents", s.listAgents)
		r.Get("/stage", s.getStage)
		r.Get("/archive", s.listArchive)
		r.Post("/push/subscriptions", s.addSubscription)
	})
	return r
}

// ListenAndServe runs the HTTP server until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	handler := h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router()), &http2.Server{})

	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type statusResponse struct {
	Scheduler task.Snapshot `json:"scheduler"`
	Agents    []agentView   `json:"agents"`
}

type agentView struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	TaskID   string `json:"taskId,omitempty"`
	Progress int    `json:"progress,omitempty"`
}

func (s *Server) agentViews() []agentView {
	agents := s.registry.List()
	out := make([]agentView, 0, len(agents))
	for _, a := range agents {
		v := agentView{
			ID:     a.ID(),
			Role:   a.Role(),
			Status: string(a.Status()),
			TaskID: a.CurrentTask(),
		}
		if v.TaskID != "" {
			if pct, ok := a.TaskProgress(v.TaskID); ok {
				v.Progress = pct
			}
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	cerr.WriteJSON(r.Context(), w, statusResponse{
		Scheduler: s.manager.Status(),
		Agents:    s.agentViews(),
	})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	cerr.WriteJSON(r.Context(), w, map[string]any{"tasks": s.manager.List()})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var def task.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.InvalidArgument, "invalid task definition", err))
		return
	}
	t, err := s.manager.CreateTask(r.Context(), def)
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	cerr.WriteJSON(r.Context(), w, t)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.manager.Get(chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, t)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Cancel(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, map[string]string{"status": "cancelled"})
}

func (s *Server) recordDeliverable(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AssetRef string `json:"assetRef"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.InvalidArgument, "invalid request body", err))
		return
	}
	err := s.manager.RecordDeliverable(r.Context(), chi.URLParam(r, "taskID"), chi.URLParam(r, "name"), body.AssetRef)
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, map[string]string{"status": "recorded"})
}

// uploadAsset stores a deliverable payload and records the resulting
// asset ref against the task in one step.
func (s *Server) uploadAsset(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.Unimplemented, "asset storage is not enabled", nil))
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.InvalidArgument, "failed to read asset payload", err))
		return
	}
	if len(data) == 0 {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.InvalidArgument, "asset payload is empty", nil))
		return
	}

	taskID := chi.URLParam(r, "taskID")
	name := chi.URLParam(r, "name")
	path := storage.AssetPath(taskID, name)
	if err := s.store.Write(r.Context(), path, data); err != nil {
		cerr.WriteJSONError(r.Context(), w, cerr.Errorf(cerr.Internal, err, "failed to store asset"))
		return
	}
	ref := s.store.Ref(path)
	if err := s.manager.RecordDeliverable(r.Context(), taskID, name, ref); err != nil {
		// The task rejected the deliverable, so the payload has no owner.
		_ = s.store.Delete(r.Context(), path)
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	cerr.WriteJSON(r.Context(), w, map[string]string{"assetRef": ref})
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.Unimplemented, "asset storage is not enabled", nil))
		return
	}
	path := storage.AssetPath(chi.URLParam(r, "taskID"), chi.URLParam(r, "name"))
	data, err := s.store.Read(r.Context(), path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			cerr.WriteJSONError(r.Context(), w, cerr.Errorf(cerr.NotFound, err, "no asset stored for %s", path))
			return
		}
		cerr.WriteJSONError(r.Context(), w, cerr.Errorf(cerr.Internal, err, "failed to read asset"))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *Server) recordGate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.InvalidArgument, "invalid request body", err))
		return
	}
	err := s.manager.RecordGateResult(r.Context(), chi.URLParam(r, "taskID"), chi.URLParam(r, "name"), body.Result)
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, map[string]string{"status": "recorded"})
}

func (s *Server) addFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.InvalidArgument, "invalid request body", err))
		return
	}
	if err := s.manager.AddFeedback(r.Context(), chi.URLParam(r, "taskID"), body.Note); err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, map[string]string{"status": "recorded"})
}

func (s *Server) reportBlocker(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason     string `json:"reason"`
		ReportedBy string `json:"reportedBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.InvalidArgument, "invalid request body", err))
		return
	}
	if err := s.manager.ReportBlocker(r.Context(), chi.URLParam(r, "taskID"), body.Reason, body.ReportedBy); err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, map[string]string{"status": "blocked"})
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	cerr.WriteJSON(r.Context(), w, map[string]any{"agents": s.agentViews()})
}

// getStage proxies the theater backend so frontends see stage state and
// the cue sheet without hitting the house systems directly.
func (s *Server) getStage(w http.ResponseWriter, r *http.Request) {
	if s.stage == nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.Unimplemented, "theater backend is not configured", nil))
		return
	}
	state, err := s.stage.StageState(r.Context())
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cues, err := s.stage.CueSheet(r.Context())
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, map[string]any{"stage": state, "cues": cues})
}

func (s *Server) listArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.Unimplemented, "archive is not enabled", nil))
		return
	}
	records, err := s.archive.Recent(r.Context(), 50)
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	stats, err := s.archive.Stats(r.Context())
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, map[string]any{"records": records, "stats": stats})
}

func (s *Server) addSubscription(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.Unimplemented, "push notifications are not enabled", nil))
		return
	}
	var body struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.InvalidArgument, "invalid subscription", err))
		return
	}
	sub, err := s.subs.Add(body.Endpoint, body.Keys.P256dh, body.Keys.Auth)
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	cerr.WriteJSON(r.Context(), w, sub)
}
