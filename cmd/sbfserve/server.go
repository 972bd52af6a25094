package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/sirupsen/logrus"

	sbf "github.com/mattkeenan/smallblockforensics/pkg"
)

// Result texts of a successful response
const (
	textResults = "RESULTS"
	textStored  = "Successfully stored hashes"
)

// Server answers scan requests over HTTP, running one scan at a time
type Server struct {
	mux    *http.ServeMux
	engine sbf.EngineConfig
	log    *logrus.Logger
	slot   chan struct{} // one scan at a time
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger for request events; nil keeps the package logger
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithEngineConfig sets the engine defaults every request runs with; the
// request's parameters replace block size and target probability.
func WithEngineConfig(cfg sbf.EngineConfig) Option {
	return func(s *Server) {
		s.engine = cfg
	}
}

// NewServer returns a Server with its routes registered
func NewServer(opts ...Option) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		engine: sbf.DefaultEngineConfig(),
		log:    sbf.Logger(),
		slot:   make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /execute", s.handleExecute)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type inputPath struct {
	Path string `json:"path"`
}

type executeRequest struct {
	Inputs     map[string]inputPath `json:"inputs"`
	Parameters *sbf.Parameters      `json:"parameters"`
}

type textResult struct {
	Text   string `json:"text"`
	Result any    `json:"result"`
}

type resultsResponse struct {
	Status  string         `json:"status"`
	Results []textResult   `json:"results"`
	Stats   *sbf.ScanStats `json:"stats,omitempty"`
}

type errorResponse struct {
	Errors []string `json:"errors"`
}

// toRequest converts the wire shape into a typed request. Roles are visited in
// sorted order so an unknown role is always reported the same way.
func (er *executeRequest) toRequest() (*sbf.Request, error) {
	if er.Parameters == nil {
		return nil, &sbf.InputError{Field: "parameters", Reason: "are required"}
	}
	req := &sbf.Request{Parameters: *er.Parameters}

	roles := make([]string, 0, len(er.Inputs))
	for role := range er.Inputs {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, role := range roles {
		in, err := sbf.NewInput(role, er.Inputs[role].Path)
		if err != nil {
			return nil, err
		}
		req.Inputs = append(req.Inputs, in)
	}
	return req, nil
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeErrors(w, http.StatusBadRequest, fmt.Sprintf("failed to read body: %v", err))
		return
	}

	var wire executeRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		writeErrors(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}

	req, err := wire.toRequest()
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := req.Validate(s.engine.Backend)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	select {
	case s.slot <- struct{}{}:
		defer func() { <-s.slot }()
	case <-r.Context().Done():
		writeErrors(w, http.StatusServiceUnavailable, "request cancelled while waiting for a running scan")
		return
	}

	s.log.WithFields(logrus.Fields{
		"mode":   job.Mode,
		"target": job.TargetDir,
		"known":  job.KnownDir,
		"index":  job.IndexPath,
	}).Info("executing scan")

	report, err := job.Run(s.engine, r.Context().Done())
	if err != nil {
		switch {
		case sbf.IsInputError(err):
			writeErrors(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, sbf.ErrInterrupted):
			s.log.WithError(err).Warn("scan abandoned by client")
			writeErrors(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.log.WithError(err).Error("an error occurred while executing the scan")
			writeErrors(w, http.StatusInternalServerError, fmt.Sprintf("Server Error: %v", err))
		}
		return
	}

	response := resultsResponse{
		Status:  "SUCCESS",
		Results: []textResult{{Text: textResults, Result: report.Result}},
		Stats:   &report.Stats,
	}
	if job.Mode == sbf.ModeBuild {
		response.Results = append(response.Results, textResult{Text: textStored, Result: job.IndexPath})
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeErrors(w http.ResponseWriter, status int, messages ...string) {
	writeJSON(w, status, errorResponse{Errors: messages})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
