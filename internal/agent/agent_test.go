package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lectern/lectern/internal/index"
	"github.com/lectern/lectern/internal/ollama"
	"github.com/lectern/lectern/internal/search"
)

type chatTurn struct {
	msg ollama.Message
	err error
}

// scriptedChat replays a fixed sequence of model responses and records the
// requests it receives.
type scriptedChat struct {
	turns []chatTurn
	calls []chatCall
}

type chatCall struct {
	messages []ollama.Message
	tools    []ollama.Tool
}

func (c *scriptedChat) Chat(_ context.Context, _ string, messages []ollama.Message, tools []ollama.Tool) (ollama.Message, error) {
	c.calls = append(c.calls, chatCall{messages: messages, tools: tools})
	if len(c.turns) == 0 {
		return ollama.Message{}, errors.New("no scripted turns left")
	}
	turn := c.turns[0]
	c.turns = c.turns[1:]
	return turn.msg, turn.err
}

type fakeSearcher struct {
	results  []search.Result
	err      error
	lastOpts search.Options
	queries  []string
}

func (s *fakeSearcher) Search(_ context.Context, query string, opts search.Options) ([]search.Result, error) {
	s.queries = append(s.queries, query)
	s.lastOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func textTurn(content string) chatTurn {
	return chatTurn{msg: ollama.Message{Role: "assistant", Content: content}}
}

func searchCallTurn(args map[string]any) chatTurn {
	return chatTurn{msg: ollama.Message{
		Role: "assistant",
		ToolCalls: []ollama.ToolCall{{
			Function: ollama.ToolCallFunction{Name: SearchToolName, Arguments: args},
		}},
	}}
}

func intPtr(n int) *int { return &n }

func newTestRunner(t *testing.T, client ChatClient, searcher CourseSearcher) *Runner {
	t.Helper()
	registry := NewRegistry(NewSearchTool(searcher))
	return NewRunner(client, "test-model", registry, nil)
}

func TestRun_DirectAnswerWithoutTools(t *testing.T) {
	chat := &scriptedChat{turns: []chatTurn{textTurn("Paris.")}}
	searcher := &fakeSearcher{}
	runner := newTestRunner(t, chat, searcher)

	answer, sources, err := runner.Run(context.Background(), "What is the capital of France?", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "Paris." {
		t.Errorf("answer = %q, want %q", answer, "Paris.")
	}
	if len(sources) != 0 {
		t.Errorf("sources = %v, want none", sources)
	}
	if len(searcher.queries) != 0 {
		t.Errorf("search invoked %d times, want 0", len(searcher.queries))
	}
	if len(chat.calls[0].tools) == 0 {
		t.Error("first round should offer tools")
	}
}

func TestRun_SingleSearchCall(t *testing.T) {
	chat := &scriptedChat{turns: []chatTurn{
		searchCallTurn(map[string]any{
			"query":         "retrieval basics",
			"course_name":   "Intro to RAG",
			"lesson_number": float64(3),
		}),
		textTurn("Lesson 3 covers retrieval basics."),
	}}
	searcher := &fakeSearcher{results: []search.Result{
		{Content: "Retrieval pairs queries with chunks.", CourseTitle: "Intro to RAG", LessonNumber: intPtr(3)},
		{Content: "Embeddings are compared by cosine.", CourseTitle: "Intro to RAG", LessonNumber: intPtr(3)},
	}}
	runner := newTestRunner(t, chat, searcher)

	answer, sources, err := runner.Run(context.Background(), "What does lesson 3 cover?", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "Lesson 3 covers retrieval basics." {
		t.Errorf("answer = %q", answer)
	}
	want := []string{"Intro to RAG - Lesson 3", "Intro to RAG - Lesson 3"}
	if len(sources) != len(want) {
		t.Fatalf("sources = %v, want %v", sources, want)
	}
	for i := range want {
		if sources[i] != want[i] {
			t.Errorf("sources[%d] = %q, want %q", i, sources[i], want[i])
		}
	}
	if searcher.lastOpts.CourseName != "Intro to RAG" {
		t.Errorf("course filter = %q", searcher.lastOpts.CourseName)
	}
	if searcher.lastOpts.LessonNumber == nil || *searcher.lastOpts.LessonNumber != 3 {
		t.Errorf("lesson filter = %v, want 3", searcher.lastOpts.LessonNumber)
	}

	// The second round must carry the assistant tool-call message and a
	// tool result message.
	second := chat.calls[1].messages
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolName != SearchToolName {
		t.Errorf("last message = role %q tool %q, want tool result", last.Role, last.ToolName)
	}
	if !strings.Contains(last.Content, "[Intro to RAG - Lesson 3]") {
		t.Errorf("tool result missing source header: %q", last.Content)
	}
}

func TestRun_UnknownToolRecovers(t *testing.T) {
	chat := &scriptedChat{turns: []chatTurn{
		{msg: ollama.Message{
			Role: "assistant",
			ToolCalls: []ollama.ToolCall{{
				Function: ollama.ToolCallFunction{Name: "delete_everything"},
			}},
		}},
		textTurn("I could not do that."),
	}}
	runner := newTestRunner(t, chat, &fakeSearcher{})

	answer, sources, err := runner.Run(context.Background(), "do something", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "I could not do that." {
		t.Errorf("answer = %q", answer)
	}
	if len(sources) != 0 {
		t.Errorf("sources = %v, want none", sources)
	}
	second := chat.calls[1].messages
	last := second[len(second)-1]
	if !strings.Contains(last.Content, "unknown tool") {
		t.Errorf("tool result = %q, want unknown tool error text", last.Content)
	}
}

func TestRun_ToolErrorFoldedIntoConversation(t *testing.T) {
	chat := &scriptedChat{turns: []chatTurn{
		searchCallTurn(map[string]any{"query": "anything"}),
		textTurn("Search is unavailable right now."),
	}}
	searcher := &fakeSearcher{err: errors.New("index closed")}
	runner := newTestRunner(t, chat, searcher)

	answer, _, err := runner.Run(context.Background(), "find it", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "Search is unavailable right now." {
		t.Errorf("answer = %q", answer)
	}
	second := chat.calls[1].messages
	last := second[len(second)-1]
	if !strings.Contains(last.Content, "index closed") {
		t.Errorf("tool result = %q, want folded error", last.Content)
	}
}

func TestRun_ModelErrorIsFatal(t *testing.T) {
	chat := &scriptedChat{turns: []chatTurn{{err: errors.New("connection refused")}}}
	runner := newTestRunner(t, chat, &fakeSearcher{})

	_, _, err := runner.Run(context.Background(), "hello", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v", err)
	}
}

func TestRun_RoundBudgetForcesFinalAnswer(t *testing.T) {
	// The model keeps asking for tools; on the final round no tools are
	// offered and its text is taken as the answer.
	chat := &scriptedChat{turns: []chatTurn{
		searchCallTurn(map[string]any{"query": "first"}),
		searchCallTurn(map[string]any{"query": "second"}),
		textTurn("Final synthesis."),
	}}
	searcher := &fakeSearcher{results: []search.Result{
		{Content: "chunk", CourseTitle: "Course A", LessonNumber: intPtr(1)},
	}}
	runner := newTestRunner(t, chat, searcher)

	answer, _, err := runner.Run(context.Background(), "dig deep", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "Final synthesis." {
		t.Errorf("answer = %q", answer)
	}
	if len(chat.calls) != 3 {
		t.Fatalf("chat called %d times, want 3", len(chat.calls))
	}
	if len(chat.calls[2].tools) != 0 {
		t.Error("final round should not offer tools")
	}
	if len(searcher.queries) != 2 {
		t.Errorf("search invoked %d times, want 2", len(searcher.queries))
	}
}

func TestRun_HistoryInSystemPrompt(t *testing.T) {
	chat := &scriptedChat{turns: []chatTurn{textTurn("ok")}}
	runner := newTestRunner(t, chat, &fakeSearcher{})

	history := "User: hi\nAssistant: hello"
	if _, _, err := runner.Run(context.Background(), "again", history); err != nil {
		t.Fatalf("Run: %v", err)
	}
	system := chat.calls[0].messages[0]
	if system.Role != "system" {
		t.Fatalf("first message role = %q", system.Role)
	}
	if !strings.Contains(system.Content, "Previous conversation:") {
		t.Error("system prompt missing history header")
	}
	if !strings.Contains(system.Content, history) {
		t.Error("system prompt missing history body")
	}
}

func TestSearchTool_UnresolvedCourseBecomesResultText(t *testing.T) {
	searcher := &fakeSearcher{err: fmt.Errorf("resolve: %w", index.ErrUnresolvedFilter)}
	tool := NewSearchTool(searcher)

	text, sources, err := tool.Execute(context.Background(), map[string]any{
		"query":       "anything",
		"course_name": "Underwater Basket Weaving",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if text != "No course found matching 'Underwater Basket Weaving'" {
		t.Errorf("text = %q", text)
	}
	if len(sources) != 0 {
		t.Errorf("sources = %v, want none", sources)
	}
}

func TestSearchTool_EmptyResultsNameFilters(t *testing.T) {
	tool := NewSearchTool(&fakeSearcher{})

	text, _, err := tool.Execute(context.Background(), map[string]any{
		"query":         "unmatched",
		"course_name":   "Intro to RAG",
		"lesson_number": float64(7),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "No relevant content found in course 'Intro to RAG' in lesson 7."
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestSearchTool_MissingQuery(t *testing.T) {
	tool := NewSearchTool(&fakeSearcher{})
	if _, _, err := tool.Execute(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error for missing query")
	}
}

func TestSearchTool_NilLessonLabel(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{
		{Content: "intro text", CourseTitle: "Course A"},
	}}
	tool := NewSearchTool(searcher)

	text, sources, err := tool.Execute(context.Background(), map[string]any{"query": "intro"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sources[0] != "Course A" {
		t.Errorf("source = %q, want bare course title", sources[0])
	}
	if !strings.Contains(text, "[Course A]\nintro text") {
		t.Errorf("text = %q", text)
	}
}

func TestRegistry_OrderAndReplace(t *testing.T) {
	a := NewSearchTool(&fakeSearcher{})
	registry := NewRegistry(a)

	defs := registry.Definitions()
	if len(defs) != 1 || defs[0].Function.Name != SearchToolName {
		t.Fatalf("definitions = %+v", defs)
	}

	// Re-registering under the same name replaces without duplicating.
	registry.Register(NewSearchTool(&fakeSearcher{}))
	if len(registry.Definitions()) != 1 {
		t.Errorf("definitions grew after replace: %d", len(registry.Definitions()))
	}

	if _, ok := registry.Get("nope"); ok {
		t.Error("Get returned a tool for an unknown name")
	}
}
