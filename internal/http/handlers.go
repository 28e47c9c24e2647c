package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"facturas/internal/core"
	"facturas/internal/export"
)

// writeJSON serializes v with the canonical content type. Encoding failures
// after the header is out can only be logged.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// parseRange reads the optional from/to query parameters. They arrive in
// display form (dd/mm/yyyy) and are converted to the ISO form the store
// filters on.
func parseRange(r *http.Request) (from, to string, err error) {
	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		from, err = core.ToISO(v)
		if err != nil {
			return "", "", fmt.Errorf("invalid 'from' date %q: expected dd/mm/yyyy", v)
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		to, err = core.ToISO(v)
		if err != nil {
			return "", "", fmt.Errorf("invalid 'to' date %q: expected dd/mm/yyyy", v)
		}
	}
	return from, to, nil
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListCategories(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List categories failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := s.store.ListRecords(r.Context(), from, to)
	if err != nil {
		slog.ErrorContext(r.Context(), "List records failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if recs == nil {
		recs = []core.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var in core.RecordInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.writer.Create(r.Context(), in)
	if err != nil {
		slog.ErrorContext(r.Context(), "Create record failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save record")
		return
	}

	s.invalidateSummaries()
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	var in core.RecordInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ok, err := s.writer.Update(r.Context(), id, in)
	if err != nil {
		slog.ErrorContext(r.Context(), "Update record failed", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to update record")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("record %d not found", id))
		return
	}

	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	ok, err := s.writer.Delete(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "Delete record failed", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to delete record")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("record %d not found", id))
		return
	}

	s.invalidateSummaries()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategorySummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := "cat:" + from + ":" + to
	if sums, found := s.categorySummaryCache.Get(key); found {
		slog.DebugContext(r.Context(), "Category summary cache hit", "from", from, "to", to)
		writeJSON(w, http.StatusOK, sums)
		return
	}

	sums, err := s.store.SummaryByCategory(r.Context(), from, to)
	if err != nil {
		slog.ErrorContext(r.Context(), "Category summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	if sums == nil {
		sums = []core.CategorySummary{}
	}

	s.categorySummaryCache.Set(key, sums)
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	year := 0
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1900 || y > 9999 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid year %q", v))
			return
		}
		year = y
	}

	key := "month:" + strconv.Itoa(year)
	if sums, found := s.monthSummaryCache.Get(key); found {
		slog.DebugContext(r.Context(), "Monthly summary cache hit", "year", year)
		writeJSON(w, http.StatusOK, sums)
		return
	}

	sums, err := s.store.SummaryByMonth(r.Context(), year)
	if err != nil {
		slog.ErrorContext(r.Context(), "Monthly summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	if sums == nil {
		sums = []core.MonthSummary{}
	}

	s.monthSummaryCache.Set(key, sums)
	writeJSON(w, http.StatusOK, sums)
}

// handleExport streams the full workbook. Built on demand so the download
// never lags behind the store the way the worker's periodic snapshot can.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filename := "facturas_" + time.Now().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if err := export.Stream(r.Context(), s.store, w); err != nil {
		// Headers are already out; the truncated body is the only signal.
		slog.ErrorContext(r.Context(), "Export stream failed", "error", err)
	}
}
