package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// tagsJSON builds a /api/tags response with the given model names.
func tagsJSON(names ...string) []byte {
	type entry struct {
		Name string `json:"name"`
	}
	type resp struct {
		Models []entry `json:"models"`
	}
	r := resp{}
	for _, n := range names {
		r.Models = append(r.Models, entry{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

func TestIsRunning_Up(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("qwen3:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
}

func TestIsRunning_Down(t *testing.T) {
	// Point at a closed server to simulate connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	if c.IsRunning(context.Background()) {
		t.Error("IsRunning() = true, want false")
	}
}

func TestHasModel_MatchesWithoutTagSuffix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("qwen3:latest", "nomic-embed-text:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.HasModel(context.Background(), "qwen3") {
		t.Error("HasModel(qwen3) = false, want true")
	}
	if c.HasModel(context.Background(), "mistral") {
		t.Error("HasModel(mistral) = true, want false")
	}
}

func TestChat_TextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshalling request: %v", err)
		}
		if req["stream"] != false {
			t.Error("stream should be false")
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"hello there"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	msg, err := c.Chat(context.Background(), "qwen3", []Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if msg.Content != "hello there" {
		t.Errorf("content = %q", msg.Content)
	}
	if len(msg.ToolCalls) != 0 {
		t.Errorf("unexpected tool calls: %v", msg.ToolCalls)
	}
}

func TestChat_ToolCallResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Tools []Tool `json:"tools"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshalling request: %v", err)
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "search_course_content" {
			t.Errorf("tools = %+v", req.Tools)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[
			{"function":{"name":"search_course_content","arguments":{"query":"what is MCP","lesson_number":3}}}
		]}}`))
	}))
	defer srv.Close()

	tool := NewFunctionTool("search_course_content", "Search course materials", ToolParams{
		Type: "object",
		Properties: map[string]ToolProperty{
			"query": {Type: "string", Description: "What to search for"},
		},
		Required: []string{"query"},
	})

	c := New(srv.URL)
	msg, err := c.Chat(context.Background(), "qwen3", []Message{{Role: "user", Content: "q"}}, []Tool{tool})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(msg.ToolCalls))
	}
	call := msg.ToolCalls[0].Function
	if call.Name != "search_course_content" {
		t.Errorf("tool name = %q", call.Name)
	}
	if call.Arguments["query"] != "what is MCP" {
		t.Errorf("query arg = %v", call.Arguments["query"])
	}
	// JSON numbers decode as float64.
	if n, ok := call.Arguments["lesson_number"].(float64); !ok || n != 3 {
		t.Errorf("lesson_number arg = %v", call.Arguments["lesson_number"])
	}
}

func TestChat_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Chat(context.Background(), "qwen3", []Message{{Role: "user", Content: "hi"}}, nil); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	vec, err := c.Embed(context.Background(), "nomic-embed-text", "some text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("got %d dims, want 3", len(vec))
	}
}

func TestEmbed_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Embed(context.Background(), "nomic-embed-text", "text"); err == nil {
		t.Fatal("expected error for empty embeddings")
	}
}
