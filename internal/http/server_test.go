package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"facturas/internal/core"
	"facturas/internal/services"
	"facturas/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.Open(storage.MemoryPath)
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	svc := services.NewRecordService(store, nil)
	t.Cleanup(func() {
		svc.Close()
	})
	return NewServer(":0", store, svc)
}

func doJSON(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	if rec := doJSON(t, s, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", rec.Code)
	}
}

func TestListCategories(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/categories", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var cats []core.Category
	if err := json.Unmarshal(rec.Body.Bytes(), &cats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(cats) != 14 {
		t.Fatalf("got %d seeded categories, want 14", len(cats))
	}
}

func TestRecordLifecycle(t *testing.T) {
	s := newTestServer(t)

	// Create
	rec := doJSON(t, s, http.MethodPost, "/api/records", core.RecordInput{
		Date: "15/03/2026", Category: "Mercado", Description: "verduras", Amount: 25000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var created map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	id := created["id"]
	if id == 0 {
		t.Fatal("create returned zero id")
	}

	// List shows the record with the display date
	rec = doJSON(t, s, http.MethodGet, "/api/records", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var records []core.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(records) != 1 || records[0].Date != "15/03/2026" {
		t.Fatalf("unexpected listing: %+v", records)
	}

	// Update
	rec = doJSON(t, s, http.MethodPut, fmt.Sprintf("/api/records/%d", id), core.RecordInput{
		Date: "16/03/2026", Category: "Mercado", Description: "frutas", Amount: 18000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	// Delete
	rec = doJSON(t, s, http.MethodDelete, fmt.Sprintf("/api/records/%d", id), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	// Deleting again reports not found
	rec = doJSON(t, s, http.MethodDelete, fmt.Sprintf("/api/records/%d", id), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestCreateRecordValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		input core.RecordInput
	}{
		{"empty category", core.RecordInput{Date: "01/01/2026", Description: "x", Amount: 100}},
		{"empty description", core.RecordInput{Date: "01/01/2026", Category: "Mercado", Amount: 100}},
		{"non-positive amount", core.RecordInput{Date: "01/01/2026", Category: "Mercado", Description: "x", Amount: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/records", tt.input)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422: %s", rec.Code, rec.Body.String())
			}
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/records", bytes.NewBufferString("{broken"))
		rec := httptest.NewRecorder()
		s.Server.Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestUpdateMissingRecord(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPut, "/api/records/9999", core.RecordInput{
		Date: "01/01/2026", Category: "Mercado", Description: "x", Amount: 100,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestCategorySummaryEndpoint(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, s, http.MethodPost, "/api/records", core.RecordInput{
			Date: "10/01/2026", Category: "Mercado", Description: "compra", Amount: 1000,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed record: status %d", rec.Code)
		}
	}

	rec := doJSON(t, s, http.MethodGet, "/api/summary/categories", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var sums []core.CategorySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sums); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(sums) != 14 {
		t.Fatalf("got %d summary rows, want 14", len(sums))
	}
	if sums[0].Category != "Mercado" || sums[0].Count != 3 || sums[0].Total != 3000 {
		t.Fatalf("top summary row = %+v", sums[0])
	}

	// Second read hits the cache and must agree
	rec = doJSON(t, s, http.MethodGet, "/api/summary/categories", nil)
	var cached []core.CategorySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &cached); err != nil {
		t.Fatalf("decode cached summary: %v", err)
	}
	if len(cached) != len(sums) {
		t.Fatalf("cached summary rows = %d, want %d", len(cached), len(sums))
	}

	// A write invalidates the cache
	rec = doJSON(t, s, http.MethodPost, "/api/records", core.RecordInput{
		Date: "11/01/2026", Category: "Mercado", Description: "otra", Amount: 500,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post-cache record: status %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/api/summary/categories", nil)
	var refreshed []core.CategorySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("decode refreshed summary: %v", err)
	}
	if refreshed[0].Count != 4 || refreshed[0].Total != 3500 {
		t.Fatalf("summary not refreshed after write: %+v", refreshed[0])
	}
}

func TestMonthlySummaryEndpoint(t *testing.T) {
	s := newTestServer(t)

	for _, in := range []core.RecordInput{
		{Date: "10/01/2026", Category: "Mercado", Description: "enero", Amount: 1000},
		{Date: "20/02/2026", Category: "Mercado", Description: "febrero", Amount: 2000},
	} {
		if rec := doJSON(t, s, http.MethodPost, "/api/records", in); rec.Code != http.StatusCreated {
			t.Fatalf("seed record: status %d", rec.Code)
		}
	}

	rec := doJSON(t, s, http.MethodGet, "/api/summary/monthly?year=2026", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var sums []core.MonthSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sums); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(sums) != 2 || sums[0].Month != "2026-01" || sums[1].Month != "2026-02" {
		t.Fatalf("unexpected monthly summary: %+v", sums)
	}

	if rec := doJSON(t, s, http.MethodGet, "/api/summary/monthly?year=banana", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid year status = %d, want 400", rec.Code)
	}
}

func TestListRecordsRangeValidation(t *testing.T) {
	s := newTestServer(t)

	if rec := doJSON(t, s, http.MethodGet, "/api/records?from=2026-01-01", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("ISO-form bound status = %d, want 400", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodGet, "/api/records?from=01/01/2026&to=31/12/2026", nil); rec.Code != http.StatusOK {
		t.Fatalf("display-form bounds status = %d, want 200", rec.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	s := newTestServer(t)

	if rec := doJSON(t, s, http.MethodPost, "/api/records", core.RecordInput{
		Date: "10/01/2026", Category: "Mercado", Description: "compra", Amount: 1000,
	}); rec.Code != http.StatusCreated {
		t.Fatalf("seed record: status %d", rec.Code)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("content type = %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("export produced no bytes")
	}
}
