package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lectern/lectern/internal/index"
	"github.com/lectern/lectern/internal/search"
)

// MCPSearcher abstracts filtered semantic search for the MCP layer.
type MCPSearcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// MCPCatalog abstracts catalog reads for the MCP layer.
type MCPCatalog interface {
	ListCourses() ([]index.Course, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Searcher MCPSearcher
	Catalog  MCPCatalog
}

// NewMCPServer creates an MCP server exposing course search and the course
// catalog to external model clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"lectern",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("lectern — semantic search over indexed course materials."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_course_content",
			mcp.WithDescription("Semantically search indexed course materials, optionally filtered by course and lesson."),
			mcp.WithString("query", mcp.Description("What to search for"), mcp.Required()),
			mcp.WithString("course_name", mcp.Description("Course title filter; partial names are resolved")),
			mcp.WithNumber("lesson_number", mcp.Description("Lesson number filter")),
		),
		mcpSearchCourseContent(deps),
	)

	s.AddTool(
		mcp.NewTool("get_course_outline",
			mcp.WithDescription("Return a course's lesson list from the catalog."),
			mcp.WithString("course_name", mcp.Description("Course title; partial matches work"), mcp.Required()),
		),
		mcpCourseOutline(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"courses://catalog",
			"Course Catalog",
			mcp.WithResourceDescription("All indexed courses with their lesson lists as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCatalog(deps),
	)

	return s
}

func mcpSearchCourseContent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		opts := search.Options{CourseName: req.GetString("course_name", "")}
		// Lesson numbering starts at zero in some courses, so presence of the
		// argument decides whether to filter, not its value.
		if _, ok := req.GetArguments()["lesson_number"]; ok {
			n := req.GetInt("lesson_number", 0)
			opts.LessonNumber = &n
		}

		results, err := deps.Searcher.Search(ctx, query, opts)
		if errors.Is(err, index.ErrUnresolvedFilter) {
			return mcpError(fmt.Sprintf("no course found matching %q", opts.CourseName)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		type hit struct {
			Content      string  `json:"content"`
			CourseTitle  string  `json:"course_title"`
			LessonNumber *int    `json:"lesson_number,omitempty"`
			Distance     float32 `json:"distance"`
		}
		hits := make([]hit, len(results))
		for i, r := range results {
			hits[i] = hit{
				Content:      r.Content,
				CourseTitle:  r.CourseTitle,
				LessonNumber: r.LessonNumber,
				Distance:     r.Distance,
			}
		}

		b, err := json.Marshal(hits)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCourseOutline(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("course_name")
		if err != nil {
			return mcpError("course_name is required"), nil
		}

		courses, err := deps.Catalog.ListCourses()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read catalog: %v", err)), nil
		}

		lower := strings.ToLower(name)
		for _, c := range courses {
			if !strings.Contains(strings.ToLower(c.Title), lower) {
				continue
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "%s\n", c.Title)
			if c.Link != "" {
				fmt.Fprintf(&sb, "Link: %s\n", c.Link)
			}
			if c.Instructor != "" {
				fmt.Fprintf(&sb, "Instructor: %s\n", c.Instructor)
			}
			for _, l := range c.Lessons {
				fmt.Fprintf(&sb, "Lesson %d: %s\n", l.Number, l.Title)
			}
			return mcpText(sb.String()), nil
		}
		return mcpError(fmt.Sprintf("no course found matching %q", name)), nil
	}
}

func mcpResourceCatalog(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		courses, err := deps.Catalog.ListCourses()
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		if courses == nil {
			courses = []index.Course{}
		}

		b, err := json.Marshal(courses)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal catalog: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
