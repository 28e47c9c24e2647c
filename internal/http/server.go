// Package http exposes the record store as a JSON API. The desktop UI and
// any scripting against the tracker go through these endpoints.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"facturas/internal/core"
	"facturas/internal/storage"
)

// RecordWriter is the write side of the API. Implemented by
// services.RecordService so every mutation goes through the change feed.
type RecordWriter interface {
	Create(ctx context.Context, in core.RecordInput) (int64, error)
	Update(ctx context.Context, id int64, in core.RecordInput) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type Server struct {
	http.Server
	store       *storage.Store
	writer      RecordWriter
	rateLimiter *rateLimiter

	// Summary caches with eviction policy; cleared on every write.
	categorySummaryCache *lruCache[[]core.CategorySummary]
	monthSummaryCache    *lruCache[[]core.MonthSummary]

	// Cache cleanup management
	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, store *storage.Store, writer RecordWriter) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:                store,
		writer:               writer,
		rateLimiter:          newRateLimiter(),
		categorySummaryCache: newLRUCache[[]core.CategorySummary](100, 5*time.Minute),
		monthSummaryCache:    newLRUCache[[]core.MonthSummary](100, 5*time.Minute),
		stopCacheCleanup:     make(chan struct{}),
	}

	// Start periodic cache cleanup
	go s.startCacheCleanup()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/categories", s.withSecurityHeaders(s.handleListCategories))
	mux.HandleFunc("GET /api/records", s.withSecurityHeaders(s.handleListRecords))
	mux.HandleFunc("POST /api/records", s.withSecurityHeaders(s.handleCreateRecord))
	mux.HandleFunc("PUT /api/records/{id}", s.withSecurityHeaders(s.handleUpdateRecord))
	mux.HandleFunc("DELETE /api/records/{id}", s.withSecurityHeaders(s.handleDeleteRecord))
	mux.HandleFunc("GET /api/summary/categories", s.withSecurityHeaders(s.handleCategorySummary))
	mux.HandleFunc("GET /api/summary/monthly", s.withSecurityHeaders(s.handleMonthlySummary))
	mux.HandleFunc("GET /api/export", s.withSecurityHeaders(s.handleExport))

	return s
}

// startCacheCleanup runs periodic cleanup for both caches
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			categoryCleaned := s.categorySummaryCache.CleanExpired()
			monthCleaned := s.monthSummaryCache.CleanExpired()
			if categoryCleaned > 0 || monthCleaned > 0 {
				slog.Debug("Cache cleanup completed",
					"category_entries_removed", categoryCleaned,
					"month_entries_removed", monthCleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// invalidateSummaries drops every cached summary. Writes are rare enough
// that per-key invalidation is not worth tracking which months changed.
func (s *Server) invalidateSummaries() {
	s.categorySummaryCache.Clear()
	s.monthSummaryCache.Clear()
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	// Ensure shutdown logic runs only once
	s.shutdownOnce.Do(func() {
		// Stop cache cleanup goroutine
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}

		// Stop rate limiter cleanup goroutine
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}

		// Shutdown HTTP server
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		// Generate request ID for tracing
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Apply rate limiting to mutating requests
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Create a custom response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		// Log request completion
		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.CountRecords(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Readiness probe failed", "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
