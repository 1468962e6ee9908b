package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/batchgate/internal/core"
	"github.com/JonMunkholm/batchgate/internal/diagnostics"
	"github.com/JonMunkholm/batchgate/internal/logging"
	"github.com/JonMunkholm/batchgate/internal/remote"
)

// DefaultErrorLogLimit is the number of log entries returned when the
// request does not ask for a specific amount.
const DefaultErrorLogLimit = 100

type connectRequest struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type connectResponse struct {
	Connected bool   `json:"connected"`
	Host      string `json:"host"`
}

type filesResponse struct {
	Files []string `json:"files"`
}

type errorLogsResponse struct {
	Entries []diagnostics.Event `json:"entries"`
}

type statusResponse struct {
	Status     string             `json:"status"`
	Connected  bool               `json:"connected"`
	Host       string             `json:"host,omitempty"`
	Attempted  []string           `json:"attempted"`
	Downloads  core.LimiterStatus `json:"downloads"`
	Rejections int64              `json:"rejections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConnect opens the remote connection. Missing fields fall back to
// the configured FTP defaults.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, r, errBadRequest, http.StatusBadRequest)
			return
		}
	}
	if req.Host == "" {
		req.Host = s.cfg.FTP.Host
	}
	if req.User == "" {
		req.User = s.cfg.FTP.User
	}
	if req.Password == "" {
		req.Password = s.cfg.FTP.Password
	}
	if req.Host == "" {
		respondError(w, r, errBadRequest, http.StatusBadRequest)
		return
	}

	if err := s.service.Connect(r.Context(), req.Host, req.User, req.Password); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{Connected: true, Host: req.Host})
}

// handleListFiles lists remote files, filtered by the q parameter.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.service.SearchFiles(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, filesResponse{Files: nonNil(files)})
}

// handleDownload runs the download pipeline for one remote file.
// Accepted files answer 200, rejected files 422 with the reason.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		respondError(w, r, errBadRequest, http.StatusBadRequest)
		return
	}

	ctx := withRequestMetadata(r.Context(), r)
	result, err := s.service.Download(ctx, name)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	status := http.StatusOK
	if !result.Accepted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rejections, err := s.service.RejectionCount(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Warn("count rejections failed", "error", err)
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:     s.service.Status(),
		Connected:  s.service.IsConnected(),
		Host:       s.service.Host(),
		Attempted:  s.service.Attempted(),
		Downloads:  s.service.Limiter().Status(),
		Rejections: rejections,
	})
}

func (s *Server) handleResetAttempts(w http.ResponseWriter, r *http.Request) {
	s.service.ResetAttempts()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.service.ValidFiles()
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, filesResponse{Files: nonNil(files)})
}

// handleValidFile serves the content of one stored file as CSV.
func (s *Server) handleValidFile(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		respondError(w, r, errBadRequest, http.StatusBadRequest)
		return
	}

	content, err := s.service.ValidFile(name)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// handleErrorLogs returns recorded rejections, oldest first.
func (s *Server) handleErrorLogs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultErrorLogLimit)

	entries, err := s.service.ErrorLogs(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []diagnostics.Event{}
	}
	writeJSON(w, http.StatusOK, errorLogsResponse{Entries: entries})
}

// handleValidate checks a raw CSV body without storing it.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Download.MaxFileSize
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, remote.ErrFileTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, errBadRequest, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, core.ValidateContent(body))
}

// parseIntParam parses a positive integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
