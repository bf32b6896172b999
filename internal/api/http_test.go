package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lectern/lectern/internal/index"
	"github.com/lectern/lectern/internal/rag"
	"github.com/lectern/lectern/internal/search"
)

// --- mocks ---

type mockSystem struct {
	queryResult  rag.QueryResult
	queryErr     error
	ingestResult rag.IngestResult
	ingestErr    error
	analytics    rag.Analytics
	records      []index.QueryRecord

	lastQuery     string
	lastSessionID string
	lastIngest    string
}

func (m *mockSystem) Query(_ context.Context, text, sessionID string) (rag.QueryResult, error) {
	m.lastQuery = text
	m.lastSessionID = sessionID
	return m.queryResult, m.queryErr
}

func (m *mockSystem) IngestText(_ context.Context, raw string) (rag.IngestResult, error) {
	m.lastIngest = raw
	return m.ingestResult, m.ingestErr
}

func (m *mockSystem) CourseAnalytics() (rag.Analytics, error) {
	return m.analytics, nil
}

func (m *mockSystem) RecentQueries(limit int) ([]index.QueryRecord, error) {
	if limit < len(m.records) {
		return m.records[:limit], nil
	}
	return m.records, nil
}

func newTestServer(t *testing.T, sys *mockSystem, token string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewAppHandler(AppDeps{System: sys, Token: token}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// --- tests ---

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &mockSystem{}, "")

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q", body["status"])
	}
}

func TestQuery_Success(t *testing.T) {
	sys := &mockSystem{queryResult: rag.QueryResult{
		Answer:    "The answer.",
		Sources:   []string{"Course A - Lesson 1"},
		SessionID: "sess-1",
	}}
	srv := newTestServer(t, sys, "")

	resp := postJSON(t, srv.URL+"/api/query", `{"query":"what is it?","session_id":"sess-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var result rag.QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if result.Answer != "The answer." || result.SessionID != "sess-1" {
		t.Errorf("result = %+v", result)
	}
	if len(result.Sources) != 1 {
		t.Errorf("sources = %v", result.Sources)
	}
	if sys.lastQuery != "what is it?" || sys.lastSessionID != "sess-1" {
		t.Errorf("system received query %q session %q", sys.lastQuery, sys.lastSessionID)
	}
}

func TestQuery_EmptyQueryRejected(t *testing.T) {
	srv := newTestServer(t, &mockSystem{}, "")

	resp := postJSON(t, srv.URL+"/api/query", `{"query":"  "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestQuery_SystemFailure(t *testing.T) {
	sys := &mockSystem{queryErr: errors.New("model unavailable")}
	srv := newTestServer(t, sys, "")

	resp := postJSON(t, srv.URL+"/api/query", `{"query":"hello"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	var body map[string]map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if !strings.Contains(body["error"]["message"], "model unavailable") {
		t.Errorf("error = %+v", body)
	}
}

func TestCourses(t *testing.T) {
	sys := &mockSystem{analytics: rag.Analytics{
		TotalCourses: 2,
		TotalChunks:  40,
		CourseTitles: []string{"Course A", "Course B"},
	}}
	srv := newTestServer(t, sys, "")

	resp, err := http.Get(srv.URL + "/api/courses")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var a rag.Analytics
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if a.TotalCourses != 2 || len(a.CourseTitles) != 2 {
		t.Errorf("analytics = %+v", a)
	}
}

func TestRecentQueries_NilBecomesEmptyArray(t *testing.T) {
	srv := newTestServer(t, &mockSystem{}, "")

	resp, err := http.Get(srv.URL + "/api/queries")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var records []index.QueryRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if records == nil {
		t.Error("body decoded to nil, want []")
	}
}

func TestIngest_RequiresToken(t *testing.T) {
	sys := &mockSystem{ingestResult: rag.IngestResult{CourseTitle: "Course A", ChunkCount: 3}}
	srv := newTestServer(t, sys, "secret")

	// No token.
	resp := postJSON(t, srv.URL+"/api/ingest", `{"content":"Course Title: Course A"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", resp.StatusCode)
	}

	// Correct token.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/ingest", strings.NewReader(`{"content":"Course Title: Course A"}`))
	req.Header.Set("Authorization", "Bearer secret")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d", resp2.StatusCode)
	}
	var body ingestResponse
	if err := json.NewDecoder(resp2.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.CourseTitle != "Course A" || body.ChunkCount != 3 {
		t.Errorf("body = %+v", body)
	}
}

func TestIngest_DisabledWithoutConfiguredToken(t *testing.T) {
	srv := newTestServer(t, &mockSystem{}, "")

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/ingest", strings.NewReader(`{"content":"x"}`))
	req.Header.Set("Authorization", "Bearer anything")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestIngest_MalformedDocument(t *testing.T) {
	sys := &mockSystem{ingestErr: errors.New("processing document: missing course title header")}
	srv := newTestServer(t, sys, "secret")

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/ingest", strings.NewReader(`{"content":"no headers"}`))
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

var _ MCPSearcher = (*mockSearcher)(nil)

type mockSearcher struct {
	results  []search.Result
	err      error
	lastOpts search.Options
}

func (m *mockSearcher) Search(_ context.Context, _ string, opts search.Options) ([]search.Result, error) {
	m.lastOpts = opts
	return m.results, m.err
}
