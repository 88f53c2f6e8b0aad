package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/zombor/auditguard/internal/rules"
)

// maxUploadSize bounds multipart uploads, large enough for scanned PDF batches
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// thresholdsFromForm overrides the service defaults with any thresholds in the form
func (s *Server) thresholdsFromForm(r *http.Request) (rules.Config, error) {
	cfg := s.service.Config()
	fields := []struct {
		name string
		dst  *float64
	}{
		{"approval_limit", &cfg.ApprovalLimit},
		{"high_value_threshold", &cfg.HighValueThreshold},
	}
	for _, field := range fields {
		raw := strings.TrimSpace(r.FormValue(field.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return cfg, fmt.Errorf("%s must be a number", field.name)
		}
		*field.dst = v
	}
	return cfg, nil
}

// handleCreateAnalysis runs an analysis on an uploaded invoice file
func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		jsonError(w, "File is too large. Maximum size is 50MB.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	cfg, err := s.thresholdsFromForm(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	analysis, err := s.service.Analyze(r.Context(), header.Filename, data, cfg)
	if errors.Is(err, ErrNoRecords) {
		jsonError(w, ErrNoRecords.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		slog.Error("Error analyzing file", "filename", header.Filename, "error", err)
		jsonError(w, "Error analyzing file", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(analysis); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleListReports returns the names of stored reports
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.Reports()
	if err != nil {
		slog.Error("Error listing reports", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(names); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetReport returns a stored CSV report
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, err := s.service.Report(name)
	if errors.Is(err, ErrReportNotFound) {
		corsError(w, "Report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error getting report", "name", name, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

// handleDeleteReport deletes a stored report
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	err := s.service.DeleteReport(name)
	if errors.Is(err, ErrReportNotFound) {
		corsError(w, "Report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error deleting report", "name", name, "error", err)
		corsError(w, "Error deleting report", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}
