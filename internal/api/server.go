// Package api exposes the HTTP interface of the service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/diskseek/diskseek/internal/search"
	"github.com/diskseek/diskseek/internal/tasks"
	"github.com/diskseek/diskseek/internal/telemetry"
)

// Server wires HTTP handlers to the task lifecycle service.
type Server struct {
	router  chi.Router
	service *tasks.Service
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service *tasks.Service, logger *zap.Logger) *Server {
	s := &Server{service: service, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.submitTask)
			r.Route("/{related_id}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Get("/export", s.exportTask)
				r.Get("/verify", s.verifyTask)
			})
		})
		r.Get("/resources/recent", s.recentResources)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRequest struct {
	Keyword     string `json:"keyword"`
	Email       string `json:"email"`
	NotifyEmail *bool  `json:"notify_email"`
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	notify := true
	if req.NotifyEmail != nil {
		notify = *req.NotifyEmail
	}

	result, err := s.service.Submit(r.Context(), req.Keyword, req.Email, notify)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":         result.Task.TaskID,
		"related_task_id": result.Task.RelatedTaskID,
		"cached":          result.Coalesced,
		"status":          result.Task.Status,
	})
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	var rl *search.RateLimitedError
	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(rl.WindowSeconds))
		writeError(w, http.StatusTooManyRequests, rl.Error())
	case errors.Is(err, search.ErrEmailNotAllowed):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, search.ErrInvalidEmail), errors.Is(err, tasks.ErrEmptyKeyword):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("Submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type resourceResponse struct {
	Title      string    `json:"title"`
	DiskType   string    `json:"disk_type"`
	URL        string    `json:"url"`
	SiteSource string    `json:"site_source"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	relatedID, ok := s.parseTaskID(w, r)
	if !ok {
		return
	}
	view, err := s.service.View(r.Context(), relatedID)
	if err != nil {
		s.writeViewError(w, err)
		return
	}

	resources := make([]resourceResponse, 0, len(view.Resources))
	for _, res := range view.Resources {
		resources = append(resources, resourceResponse{
			Title:      res.Title,
			DiskType:   res.DiskType,
			URL:        res.URL,
			SiteSource: res.SiteSource,
			CreatedAt:  res.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":         view.Task.TaskID,
		"related_task_id": view.Task.RelatedTaskID,
		"keyword":         view.Task.Keyword,
		"email":           view.Task.MaskedEmail(),
		"status":          view.Task.Status,
		"cached":          view.Task.IsCache,
		"expired":         view.Expired,
		"expire_time":     view.Task.ExpireTime,
		"created_at":      view.Task.CreatedAt,
		"resources":       resources,
	})
}

func (s *Server) exportTask(w http.ResponseWriter, r *http.Request) {
	relatedID, ok := s.parseTaskID(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "resources-"+relatedID.String()+".csv"))
	if err := s.service.ExportCSV(r.Context(), relatedID, w); err != nil {
		// Headers may already be out; log instead of rewriting the status.
		s.logger.Error("CSV export failed", zap.String("related_id", relatedID.String()), zap.Error(err))
	}
}

func (s *Server) verifyTask(w http.ResponseWriter, r *http.Request) {
	relatedID, ok := s.parseTaskID(w, r)
	if !ok {
		return
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email query parameter required")
		return
	}
	owned, err := s.service.Verify(r.Context(), relatedID, email)
	if err != nil {
		s.writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"owned": owned})
}

func (s *Server) recentResources(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))

	feed, err := s.service.RecentFeed(r.Context(), time.Duration(hours)*time.Hour, limit, r.URL.Query().Get("q"))
	if err != nil {
		s.logger.Error("Recent feed failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resources := make([]resourceResponse, 0, len(feed))
	for _, res := range feed {
		resources = append(resources, resourceResponse{
			Title:      res.Title,
			DiskType:   res.DiskType,
			URL:        res.URL,
			SiteSource: res.SiteSource,
			CreatedAt:  res.CreatedAt,
		})
	}

	searches := []map[string]any{}
	if recent, err := s.service.RecentTasks(r.Context(), 20); err != nil {
		s.logger.Warn("Recent tasks lookup failed", zap.Error(err))
	} else {
		for _, task := range recent {
			searches = append(searches, map[string]any{
				"keyword":    task.Keyword,
				"email":      task.MaskedEmail(),
				"status":     task.Status,
				"created_at": task.CreatedAt,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resources":       resources,
		"recent_searches": searches,
	})
}

func (s *Server) parseTaskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "related_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeViewError(w http.ResponseWriter, err error) {
	if errors.Is(err, search.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.logger.Error("Task lookup failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("Request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("Write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
