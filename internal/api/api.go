// Package api is the HTTP status and control interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/config"
	"github.com/alanbriolat/shiodome/internal/orchestrator"
	"github.com/alanbriolat/shiodome/internal/scheduler"
	"github.com/alanbriolat/shiodome/internal/session"
	"github.com/alanbriolat/shiodome/probe"
)

type Submitter interface {
	Submit(ctx context.Context, source shiodome.ChannelSource, candidate shiodome.LiveCandidate) (*session.Job, error)
}

type Trigger interface {
	Trigger(family shiodome.Platform) error
}

// Resolver turns a user-supplied URL into something that can be submitted.
type Resolver func(ctx context.Context, rawURL string, outPath string) (shiodome.ChannelSource, shiodome.LiveCandidate, error)

type Server struct {
	Registry  *session.Registry
	Submitter Submitter
	Trigger   Trigger
	History   session.History
	Config    func() *config.Config
	Resolve   Resolver

	log *zap.SugaredLogger
}

// Handler builds the router. Routes whose dependency is nil are not registered.
func (s *Server) Handler() http.Handler {
	s.log = zap.S().Named("api")
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": shiodome.Version})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/jobs", s.listJobs)
		r.Get("/jobs/{identity}", s.getJob)
		if s.Submitter != nil && s.Resolve != nil {
			r.Post("/jobs", s.submitJob)
		}
		if s.Trigger != nil {
			r.Post("/poll/{family}", s.poll)
		}
		if s.History != nil {
			r.Get("/history", s.history)
		}
		if s.Config != nil {
			r.Get("/config", s.config)
		}
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func snapshots(jobs []*session.Job) []session.JobSnapshot {
	out := make([]session.JobSnapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	return out
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshots(s.Registry.List()))
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job := s.Registry.Get(chi.URLParam(r, "identity"))
	if job == nil {
		writeError(w, http.StatusNotFound, errors.New("no such job"))
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

type submitRequest struct {
	VideoURL        string `json:"video_url"`
	OutputDirectory string `json:"output_directory"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.VideoURL == "" {
		writeError(w, http.StatusBadRequest, errors.New("video_url is required"))
		return
	}
	ctx := shiodome.WithLogger(r.Context(), s.log)
	source, candidate, err := s.Resolve(ctx, req.VideoURL, req.OutputDirectory)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := s.Submitter.Submit(ctx, source, candidate)
	switch {
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, job.Snapshot())
	case err != nil && job == nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		// A launch failure is reported through the job's state
		writeJSON(w, http.StatusAccepted, job.Snapshot())
	}
}

func (s *Server) poll(w http.ResponseWriter, r *http.Request) {
	family := shiodome.Platform(chi.URLParam(r, "family"))
	err := s.Trigger.Trigger(family)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"family": family.String(), "status": "started"})
	case errors.Is(err, scheduler.ErrPollRunning):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, scheduler.ErrUnknownFamily):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusServiceUnavailable, err)
	}
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.History.ListJobs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// Newest first
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].AdmittedAt.After(jobs[j].AdmittedAt)
	})
	if jobs == nil {
		jobs = []session.JobSnapshot{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Config().Sanitized())
}

// DefaultResolver resolves URLs with probe.Resolve.
func DefaultResolver(client *http.Client) Resolver {
	return func(ctx context.Context, rawURL string, outPath string) (shiodome.ChannelSource, shiodome.LiveCandidate, error) {
		return probe.Resolve(ctx, client, rawURL, outPath)
	}
}

// ListenAndServe serves handler on addr until ctx is done, then shuts the server down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		zap.S().Named("api").Infow("listening", "addr", addr)
		errs <- server.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
