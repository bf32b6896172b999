package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lectern/lectern/internal/index"
	"github.com/lectern/lectern/internal/ollama"
	"github.com/lectern/lectern/internal/search"
)

// SearchToolName is the registered name of the course-content search tool.
const SearchToolName = "search_course_content"

// CourseSearcher is the retrieval capability the search tool wraps.
type CourseSearcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// SearchTool exposes filtered semantic search over course materials to the
// model. Results are projected into human-readable blocks headed by
// "[<course_title> - Lesson <n>]", with a parallel list of source labels.
type SearchTool struct {
	searcher CourseSearcher
}

// NewSearchTool creates the built-in course search tool.
func NewSearchTool(searcher CourseSearcher) *SearchTool {
	return &SearchTool{searcher: searcher}
}

func (t *SearchTool) Name() string { return SearchToolName }

func (t *SearchTool) Definition() ollama.Tool {
	return ollama.NewFunctionTool(
		SearchToolName,
		"Search course materials with smart course name matching and lesson filtering",
		ollama.ToolParams{
			Type: "object",
			Properties: map[string]ollama.ToolProperty{
				"query": {
					Type:        "string",
					Description: "What to search for in the course content",
				},
				"course_name": {
					Type:        "string",
					Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
				"lesson_number": {
					Type:        "integer",
					Description: "Specific lesson number to search within (e.g. 1, 2, 3)",
				},
			},
			Required: []string{"query"},
		},
	)
}

// Execute runs the search. An unresolvable course-name filter is reported as
// result text so the model can recover; other failures are returned as
// errors for the orchestrator to fold back into the conversation.
func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (string, []string, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return "", nil, fmt.Errorf("missing required parameter %q", "query")
	}

	opts := search.Options{}
	if name, ok := args["course_name"].(string); ok {
		opts.CourseName = name
	}
	// JSON numbers arrive as float64.
	if n, ok := args["lesson_number"].(float64); ok {
		lesson := int(n)
		opts.LessonNumber = &lesson
	}

	results, err := t.searcher.Search(ctx, query, opts)
	if errors.Is(err, index.ErrUnresolvedFilter) {
		return fmt.Sprintf("No course found matching '%s'", opts.CourseName), nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	if len(results) == 0 {
		return emptyResultText(opts), nil, nil
	}

	var blocks []string
	var sources []string
	for _, r := range results {
		label := sourceLabel(r.CourseTitle, r.LessonNumber)
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", label, r.Content))
		sources = append(sources, label)
	}
	return strings.Join(blocks, "\n\n"), sources, nil
}

// sourceLabel renders "<course_title> - Lesson <n>", or just the title when
// the lesson is unknown.
func sourceLabel(courseTitle string, lessonNumber *int) string {
	if lessonNumber != nil {
		return fmt.Sprintf("%s - Lesson %d", courseTitle, *lessonNumber)
	}
	return courseTitle
}

// emptyResultText describes a valid zero-result search, naming the filters
// that were applied.
func emptyResultText(opts search.Options) string {
	var sb strings.Builder
	sb.WriteString("No relevant content found")
	if opts.CourseName != "" {
		fmt.Fprintf(&sb, " in course '%s'", opts.CourseName)
	}
	if opts.LessonNumber != nil {
		fmt.Fprintf(&sb, " in lesson %d", *opts.LessonNumber)
	}
	sb.WriteString(".")
	return sb.String()
}
