package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds JSON request bodies of the HTTP API
const maxBodyBytes = 1 << 20

// Server exposes the stores over HTTP and mounts the realtime channel
type Server struct {
	router   *chi.Mux
	storage  interfaces.Storage
	channels http.Handler
	logger   *logrus.Logger
}

// NewServer - builds the router; channels serves GET /ws
func NewServer(storage interfaces.Storage, channels http.Handler, logger *logrus.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		storage:  storage,
		channels: channels,
		logger:   logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(logger))
	s.router.Use(middleware.Recoverer)

	s.RegisterHTTP(s.router)
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RegisterHTTP mounts every endpoint on r
func (s *Server) RegisterHTTP(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/locators", func(r chi.Router) {
		r.Get("/", s.listLocators)
		r.Put("/{name}", s.putLocator)
	})

	r.Route("/api/scripts", func(r chi.Router) {
		r.Get("/", s.listScripts)
		r.Post("/", s.saveScript)
	})

	if s.channels != nil {
		r.Get("/ws", s.channels.ServeHTTP)
	}
}

func (s *Server) listLocators(w http.ResponseWriter, r *http.Request) {
	locators, err := s.storage.Locators().List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, locators)
}

func (s *Server) putLocator(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req struct {
		Selector string `json:"selector"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Selector = strings.TrimSpace(req.Selector)
	if name == "" || req.Selector == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: name and selector are required", entities.ErrInvalidRequest))
		return
	}

	if err := s.storage.Locators().Put(r.Context(), name, req.Selector); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.WithFields(logrus.Fields{"name": name, "selector": req.Selector}).Info("Locator seeded")
	writeJSON(w, http.StatusOK, entities.Locator{Name: name, Selector: req.Selector})
}

func (s *Server) listScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := s.storage.Scripts().List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if scripts == nil {
		scripts = []entities.Script{}
	}
	writeJSON(w, http.StatusOK, scripts)
}

func (s *Server) saveScript(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: code is required", entities.ErrInvalidRequest))
		return
	}

	script, err := s.storage.Scripts().Save(r.Context(), req.Name, req.Code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.WithFields(logrus.Fields{"id": script.ID, "name": script.Name}).Info("Script saved")
	writeJSON(w, http.StatusCreated, script)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", entities.ErrInvalidRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError && errors.Is(err, entities.ErrInvalidRequest) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// requestLogger logs one line per request through logrus
func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.WithFields(logrus.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"bytes":      ww.BytesWritten(),
					"duration":   time.Since(start).String(),
				}).Debug("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
