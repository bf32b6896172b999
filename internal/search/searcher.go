package search

import (
	"context"
	"fmt"

	"github.com/lectern/lectern/internal/index"
)

// defaultLimit is the number of results returned when the caller doesn't ask
// for a specific count.
const defaultLimit = 5

// ChunkIndex is the slice of the vector index the searcher needs.
type ChunkIndex interface {
	ResolveCourse(vec []float32) (string, error)
	SearchChunks(vec []float32, topK int, courseTitle string, lessonNumber *int) ([]index.ScoredChunk, error)
}

// Options restricts a search. CourseName is fuzzy-matched against the course
// catalog; LessonNumber is an exact filter. A zero Limit uses the default.
type Options struct {
	CourseName   string
	LessonNumber *int
	Limit        int
}

// Result is one retrieved chunk with its distance (smaller = closer).
type Result struct {
	Content      string
	CourseTitle  string
	LessonNumber *int
	Distance     float32
}

// Searcher embeds queries and runs filtered nearest-neighbor search.
type Searcher struct {
	embedder *Embedder
	index    ChunkIndex
	limit    int
}

// NewSearcher creates a Searcher backed by the given Embedder and index.
func NewSearcher(embedder *Embedder, idx ChunkIndex) *Searcher {
	return &Searcher{embedder: embedder, index: idx, limit: defaultLimit}
}

// SetDefaultLimit overrides the result count used when Options.Limit is zero.
func (s *Searcher) SetDefaultLimit(n int) {
	if n > 0 {
		s.limit = n
	}
}

// Search embeds the query and returns the closest chunks, ascending by
// distance. When opts.CourseName is set it is first resolved against the
// catalog; an unresolvable name fails with index.ErrUnresolvedFilter, which
// is distinct from a valid empty result.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	courseTitle := ""
	if opts.CourseName != "" {
		nameVec, err := s.embedder.Embed(ctx, opts.CourseName)
		if err != nil {
			return nil, fmt.Errorf("embedding course name filter: %w", err)
		}
		courseTitle, err = s.index.ResolveCourse(nameVec)
		if err != nil {
			return nil, err
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.limit
	}

	scored, err := s.index.SearchChunks(vec, limit, courseTitle, opts.LessonNumber)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(scored))
	for i, c := range scored {
		results[i] = Result{
			Content:      c.Content,
			CourseTitle:  c.CourseTitle,
			LessonNumber: c.LessonNumber,
			Distance:     c.Distance,
		}
	}
	return results, nil
}
