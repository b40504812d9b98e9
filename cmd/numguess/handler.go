package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	pageSizeStr := r.URL.Query().Get("page_size")

	pageSize := 0
	if pageSizeStr != "" {
		n, err := strconv.Atoi(pageSizeStr)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid page_size parameter")
			return
		}
		pageSize = n
	}

	page, err := s.traces.List(r.Context(), pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		slog.Error("failed to list traces", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list traces")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("id")
	if traceID == "" {
		writeError(w, http.StatusBadRequest, "trace ID is required")
		return
	}

	t, err := s.traces.Load(r.Context(), traceID)
	if err != nil {
		slog.Error("failed to get trace", slog.Any("error", err), slog.String("traceID", traceID))
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

type listResultsResponse struct {
	Results []recordFile `json:"results"`
}

func (s *server) handleListResults(w http.ResponseWriter, r *http.Request) {
	files, err := listRecords(s.resultDir)
	if err != nil {
		slog.Error("failed to list results", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	writeJSON(w, http.StatusOK, listResultsResponse{Results: files})
}
