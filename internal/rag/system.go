// Package rag wires document processing, the vector index, retrieval and
// the tool-calling model into one question answering system over course
// materials.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lectern/lectern/internal/agent"
	"github.com/lectern/lectern/internal/docproc"
	"github.com/lectern/lectern/internal/index"
	"github.com/lectern/lectern/internal/search"
	"github.com/lectern/lectern/internal/session"
)

// QueryRunner answers one user query, given the formatted session history.
type QueryRunner interface {
	Run(ctx context.Context, query, history string) (string, []string, error)
}

// System is the top-level facade. It owns ingestion, querying and the
// per-session conversation memory.
type System struct {
	processor *docproc.Processor
	embedder  *search.Embedder
	index     *index.Index
	runner    QueryRunner
	sessions  *session.Manager
	logger    *slog.Logger
}

// New assembles a System from its parts.
func New(processor *docproc.Processor, embedder *search.Embedder, idx *index.Index, runner QueryRunner, sessions *session.Manager, logger *slog.Logger) *System {
	if logger == nil {
		logger = slog.Default()
	}
	return &System{
		processor: processor,
		embedder:  embedder,
		index:     idx,
		runner:    runner,
		sessions:  sessions,
		logger:    logger,
	}
}

// QueryResult is one answered question.
type QueryResult struct {
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	SessionID string   `json:"session_id"`
}

// Query answers a natural-language question. An empty sessionID starts a
// new conversation; the returned result carries the session to continue
// with. The exchange is appended to session memory and recorded in the
// query log.
func (s *System) Query(ctx context.Context, text, sessionID string) (QueryResult, error) {
	if sessionID == "" {
		sessionID = s.sessions.Create()
	}
	history := s.sessions.FormatForPrompt(sessionID)

	answer, sources, err := s.runner.Run(ctx, text, history)
	if err != nil {
		return QueryResult{}, fmt.Errorf("answering query: %w", err)
	}

	s.sessions.AppendExchange(sessionID, text, answer)

	if err := s.index.LogQuery(index.QueryRecord{
		SessionID: sessionID,
		UserQuery: text,
		Answer:    answer,
		Sources:   sources,
	}); err != nil {
		s.logger.Warn("query log write failed", "error", err)
	}

	if sources == nil {
		sources = []string{}
	}
	return QueryResult{Answer: answer, Sources: sources, SessionID: sessionID}, nil
}

// IngestResult reports what one document contributed to the index.
type IngestResult struct {
	CourseTitle string
	ChunkCount  int
	Skipped     bool
}

// AddCourseDocument parses, chunks, embeds and stores one course document.
// A course already present in the catalog is skipped, keeping startup
// re-ingestion idempotent.
func (s *System) AddCourseDocument(ctx context.Context, path string) (IngestResult, error) {
	raw, err := ReadDocument(path)
	if err != nil {
		return IngestResult{}, err
	}
	res, err := s.IngestText(ctx, raw)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%s: %w", path, err)
	}
	if res.Skipped {
		s.logger.Info("course already indexed, skipping", "course", res.CourseTitle, "path", path)
	}
	return res, nil
}

// IngestText indexes one course document given as raw text.
func (s *System) IngestText(ctx context.Context, raw string) (IngestResult, error) {
	course, chunks, err := s.processor.Process(raw)
	if err != nil {
		return IngestResult{}, fmt.Errorf("processing document: %w", err)
	}

	exists, err := s.index.HasCourse(course.Title)
	if err != nil {
		return IngestResult{}, fmt.Errorf("checking catalog for %q: %w", course.Title, err)
	}
	if exists {
		return IngestResult{CourseTitle: course.Title, Skipped: true}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embedding chunks for %q: %w", course.Title, err)
	}

	metadataText := course.Title
	if course.Instructor != "" {
		metadataText += " by " + course.Instructor
	}
	courseVec, err := s.embedder.Embed(ctx, metadataText)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embedding course metadata %q: %w", course.Title, err)
	}

	records := make([]index.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = index.ChunkRecord{
			ID:           uuid.New().String(),
			CourseTitle:  c.CourseTitle,
			LessonNumber: c.LessonNumber,
			ChunkIndex:   c.ChunkIndex,
			Content:      c.Content,
			Embedding:    vectors[i],
		}
	}

	lessons := make([]index.Lesson, len(course.Lessons))
	for i, l := range course.Lessons {
		lessons[i] = index.Lesson{Number: l.Number, Title: l.Title, Link: l.Link}
	}
	catalogEntry := index.Course{
		Title:      course.Title,
		Link:       course.Link,
		Instructor: course.Instructor,
		Lessons:    lessons,
	}

	if err := s.index.AddCourse(catalogEntry, courseVec, records); err != nil {
		return IngestResult{}, fmt.Errorf("storing course %q: %w", course.Title, err)
	}

	s.logger.Info("course indexed", "course", course.Title, "chunks", len(records))
	return IngestResult{CourseTitle: course.Title, ChunkCount: len(records)}, nil
}

// FolderResult summarizes an AddCourseFolder run.
type FolderResult struct {
	CoursesAdded int
	ChunksAdded  int
	Skipped      int
	Failed       []string
}

var documentExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".pdf":  true,
	".html": true,
	".htm":  true,
}

// AddCourseFolder ingests every recognized document in dir. Files are
// processed concurrently; a single bad file is reported in the result
// rather than aborting the batch. A missing directory is not an error.
func (s *System) AddCourseFolder(ctx context.Context, dir string) (FolderResult, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		s.logger.Info("documents directory missing, nothing to ingest", "dir", dir)
		return FolderResult{}, nil
	}
	if err != nil {
		return FolderResult{}, fmt.Errorf("reading %s: %w", dir, err)
	}

	var mu sync.Mutex
	var result FolderResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for _, entry := range entries {
		if entry.IsDir() || !documentExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		g.Go(func() error {
			res, err := s.AddCourseDocument(gctx, path)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				s.logger.Warn("document ingest failed", "path", path, "error", err)
				result.Failed = append(result.Failed, filepath.Base(path))
			case res.Skipped:
				result.Skipped++
			default:
				result.CoursesAdded++
				result.ChunksAdded += res.ChunkCount
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	sort.Strings(result.Failed)
	return result, nil
}

// Analytics is a snapshot of the indexed catalog.
type Analytics struct {
	TotalCourses int      `json:"total_courses"`
	TotalChunks  int      `json:"total_chunks"`
	CourseTitles []string `json:"course_titles"`
}

// CourseAnalytics reports how much material the index holds.
func (s *System) CourseAnalytics() (Analytics, error) {
	courses, err := s.index.ListCourses()
	if err != nil {
		return Analytics{}, fmt.Errorf("listing courses: %w", err)
	}
	chunks, err := s.index.ChunkCount("")
	if err != nil {
		return Analytics{}, fmt.Errorf("counting chunks: %w", err)
	}

	titles := make([]string, len(courses))
	for i, c := range courses {
		titles[i] = c.Title
	}
	return Analytics{
		TotalCourses: len(courses),
		TotalChunks:  chunks,
		CourseTitles: titles,
	}, nil
}

// RecentQueries returns the newest entries from the query log.
func (s *System) RecentQueries(limit int) ([]index.QueryRecord, error) {
	return s.index.RecentQueries(limit)
}

// ClearCourse removes a course, or every course when title is empty.
func (s *System) ClearCourse(title string) error {
	return s.index.Clear(title)
}

var _ QueryRunner = (*agent.Runner)(nil)
