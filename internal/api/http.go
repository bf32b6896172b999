// Package api exposes the question answering system over HTTP and over the
// Model Context Protocol.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lectern/lectern/internal/index"
	"github.com/lectern/lectern/internal/rag"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxIngestBodySize = 10 << 20 // 10MB

// RAGService is the application surface the HTTP and MCP layers expose.
type RAGService interface {
	Query(ctx context.Context, text, sessionID string) (rag.QueryResult, error)
	IngestText(ctx context.Context, raw string) (rag.IngestResult, error)
	CourseAnalytics() (rag.Analytics, error)
	RecentQueries(limit int) ([]index.QueryRecord, error)
}

// AppDeps holds dependencies for the HTTP handler. Token guards the ingest
// endpoint; when empty, ingest over HTTP is disabled.
type AppDeps struct {
	System RAGService
	Token  string
}

// NewAppHandler returns the REST API handler.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/api/query", handleQuery(deps))
	r.Get("/api/courses", handleCourses(deps))
	r.Get("/api/queries", handleRecentQueries(deps))
	r.With(BearerAuth(deps.Token)).Post("/api/ingest", handleIngest(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func handleQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		result, err := deps.System.Query(r.Context(), req.Query, req.SessionID)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "query failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleCourses(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analytics, err := deps.System.CourseAnalytics()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read catalog: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(analytics)
	}
}

func handleRecentQueries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		records, err := deps.System.RecentQueries(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read query log: %v", err)
			return
		}
		if records == nil {
			records = []index.QueryRecord{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
	}
}

type ingestRequest struct {
	Content string `json:"content"`
}

type ingestResponse struct {
	CourseTitle string `json:"course_title"`
	ChunkCount  int    `json:"chunk_count"`
	Skipped     bool   `json:"skipped"`
}

func handleIngest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		res, err := deps.System.IngestText(r.Context(), req.Content)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "ingest failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ingestResponse{
			CourseTitle: res.CourseTitle,
			ChunkCount:  res.ChunkCount,
			Skipped:     res.Skipped,
		})
	}
}

// BearerAuth rejects requests whose Authorization header does not carry the
// expected token. An empty token disables the guarded endpoint entirely.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				httpError(w, http.StatusForbidden, "authentication_error", "ingest over HTTP is disabled: no token configured")
				return
			}
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
