package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/sitecraft/sitecraft/docs/swagger" // generated API docs
	"github.com/sitecraft/sitecraft/internal/app"
	"github.com/sitecraft/sitecraft/internal/buildstore"
	"github.com/sitecraft/sitecraft/internal/logging"
	"github.com/sitecraft/sitecraft/internal/provider"
	"github.com/sitecraft/sitecraft/internal/registry"
	"github.com/sitecraft/sitecraft/internal/resolver"
	"github.com/sitecraft/sitecraft/internal/slugs"
	"github.com/sitecraft/sitecraft/internal/status"
)

// Server is the HTTP + WebSocket API surface for sitecraft.
type Server struct {
	cfg      Config
	app      *app.Application
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewServer creates a new Server with its own Application.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	application, err := app.New(cfg.AppConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("creating application: %w", err)
	}

	r := chi.NewRouter()
	s := &Server{
		cfg:    cfg,
		app:    application,
		router: r,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: tighten for production
				return true
			},
		},
	}

	s.routes()
	return s, nil
}

// App returns the underlying application for advanced use (tests, etc.).
func (s *Server) App() *app.Application {
	return s.app
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// Public, token-gated status check plus its CORS preflight. The deployed
	// site's banner script calls this cross-origin.
	r.Get("/public/projects/{project}/publish-status", s.handlePublishStatus)
	r.Options("/public/projects/{project}/publish-status", s.optionsHandler("GET"))

	r.Get("/swagger/*", httpSwagger.Handler())

	// Everything else requires a bearer token.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Options("/projects", s.optionsHandler("GET, POST"))
		r.Options("/projects/{project}/builds", s.optionsHandler("POST"))
		r.Options("/projects/{project}/deployments", s.optionsHandler("POST"))
		r.Options("/jobs", s.optionsHandler("GET"))
		r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))

		// Projects
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects", s.handleListProjects)

		// Build write surface
		r.Post("/projects/{project}/builds", s.handleStartBuild)
		r.Post("/projects/{project}/builds/{build}/files", s.handleAppendBuildFile)
		r.Post("/projects/{project}/builds/{build}/complete", s.handleCompleteBuild)

		// Archive download
		r.Get("/projects/{project}/build/download", s.handleDownloadBuild)

		// Publishing
		r.Post("/projects/{project}/deployments", s.handleCreateDeployment)
		r.Get("/projects/{project}/slug-availability", s.handleSlugAvailability)
		r.Get("/projects/{project}/publish-diff", s.handlePublishDiff)
		r.Delete("/projects/{project}/site", s.handleRemoveSite)

		// Deploy jobs
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Delete("/jobs/{jobID}", s.handleCancelJob)

		// WebSocket for deploy progress
		r.Get("/ws/projects/{project}/deploy", s.handleDeployWS)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down the application and underlying resources.
func (s *Server) Close() {
	if s.app != nil {
		s.app.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeOpError translates failures from application operations into status
// codes. Missing or cross-owner resources read as 404/401, caller mistakes as
// 400, credential problems as 401, everything else as 500.
func (s *Server) writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrProjectNotFound),
		errors.Is(err, buildstore.ErrBuildNotFound),
		errors.Is(err, buildstore.ErrSiteNotFound),
		errors.Is(err, resolver.ErrNoUsableBuild),
		errors.Is(err, status.ErrNotPublished):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrNotOwner),
		errors.Is(err, status.ErrInvalidToken),
		errors.Is(err, provider.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrMissingToken),
		errors.Is(err, slugs.ErrInvalidSlug):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// --- HTTP handlers ---

// Projects

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	p, err := s.app.CreateProject(r.Context(), userID(r), body.Slug, body.Name, body.Description, registry.Framework(body.Framework))
	if err != nil {
		s.logger.Warn("creating project", logging.Field{Key: "error", Value: err.Error()})
		s.writeOpError(w, err)
		return
	}
	s.logger.Info("created project", logging.Field{Key: "slug", Value: p.Slug})
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ps, err := s.app.ListProjects(r.Context(), userID(r))
	if err != nil {
		s.logger.Warn("listing projects", logging.Field{Key: "error", Value: err.Error()})
		s.writeOpError(w, err)
		return
	}
	if ps == nil {
		ps = []registry.Project{}
	}
	writeJSON(w, http.StatusOK, ps)
}

// Build write surface

func (s *Server) handleStartBuild(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	b, err := s.app.StartBuild(r.Context(), userID(r), project)
	if err != nil {
		s.logger.Warn("starting build", logging.Field{Key: "error", Value: err.Error()})
		s.writeOpError(w, err)
		return
	}
	s.logger.Info("started build",
		logging.Field{Key: "project", Value: project},
		logging.Field{Key: "build", Value: b.ID})
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleAppendBuildFile(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	build := chi.URLParam(r, "build")

	var body AppendFileRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := s.app.AppendBuildFile(r.Context(), userID(r), project, build, body.Path, body.Content); err != nil {
		s.logger.Warn("appending build file", logging.Field{Key: "error", Value: err.Error()})
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCompleteBuild(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	build := chi.URLParam(r, "build")

	if err := s.app.CompleteBuild(r.Context(), userID(r), project, build); err != nil {
		s.logger.Warn("completing build", logging.Field{Key: "error", Value: err.Error()})
		s.writeOpError(w, err)
		return
	}
	s.logger.Info("completed build",
		logging.Field{Key: "project", Value: project},
		logging.Field{Key: "build", Value: build})
	writeJSON(w, http.StatusNoContent, nil)
}

// Archive download

func (s *Server) handleDownloadBuild(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	arc, err := s.app.DownloadArchive(r.Context(), userID(r), project)
	if err != nil {
		s.logger.Warn("packaging build", logging.Field{Key: "error", Value: err.Error()})
		s.writeOpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", arc.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(arc.Data)
}

// Publishing

func (s *Server) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	var body CreateDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	dep, err := s.app.Deploy(r.Context(), userID(r), project, body.Token, body.Preview, nil)
	if err != nil {
		s.logger.Warn("deploying", logging.Field{Key: "error", Value: err.Error()})
		s.writeOpError(w, err)
		return
	}
	s.logger.Info("deployed",
		logging.Field{Key: "project", Value: project},
		logging.Field{Key: "deployment_id", Value: dep.ID})
	writeJSON(w, http.StatusOK, DeploymentResponse{URL: dep.URL, DeploymentID: dep.ID})
}

func (s *Server) handlePublishStatus(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	token := r.URL.Query().Get("token")

	st, err := s.app.PublishStatus(r.Context(), project, token)
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PublishStatusResponse{
		Published: st.Published,
		IsStale:   st.IsStale,
		URL:       st.URL,
	})
}

func (s *Server) handleSlugAvailability(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	slug := r.URL.Query().Get("slug")
	domain := r.URL.Query().Get("domain")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing slug query parameter")
		return
	}

	available, reason, err := s.app.SlugAvailability(r.Context(), userID(r), project, slug, domain)
	if err != nil {
		s.logger.Warn("checking slug availability", logging.Field{Key: "error", Value: err.Error()})
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SlugAvailabilityResponse{Available: available, Reason: reason})
}

func (s *Server) handlePublishDiff(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	changes, err := s.app.PublishDiff(r.Context(), userID(r), project)
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	if changes == nil {
		changes = []status.PathChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) handleRemoveSite(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	if err := s.app.RemoveSite(r.Context(), userID(r), project); err != nil {
		s.logger.Warn("removing site", logging.Field{Key: "error", Value: err.Error()})
		s.writeOpError(w, err)
		return
	}
	s.logger.Info("removed site", logging.Field{Key: "project", Value: project})
	writeJSON(w, http.StatusNoContent, nil)
}

// Jobs (REST)

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.app.GetJob(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	s.app.CancelJob(jobID)
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.app.ListJobs()
	writeJSON(w, http.StatusOK, jobs)
}

// WebSockets

func (s *Server) handleDeployWS(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	owner := userID(r)

	accessToken := r.URL.Query().Get("token")
	preview := r.URL.Query().Get("preview") == "true"

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	job, err := s.app.StartDeployJob(r.Context(), owner, project, accessToken, preview)
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"error": err.Error()})
		s.logger.Warn("starting deploy job", logging.Field{Key: "error", Value: err.Error()})
		return
	}

	s.logger.Info("started deploy job", logging.Field{Key: "job_id", Value: job.ID})
	_ = conn.WriteJSON(job)

	for ev := range job.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel job
			s.app.CancelJob(job.ID)
			return
		}
	}
}
