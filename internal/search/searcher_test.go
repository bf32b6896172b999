package search

import (
	"context"
	"errors"
	"testing"

	"github.com/lectern/lectern/internal/index"
)

// fakeEmbedClient returns a canned vector per input text.
type fakeEmbedClient struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

// fakeIndex records the filters it was called with.
type fakeIndex struct {
	resolved     string
	resolveErr   error
	results      []index.ScoredChunk
	gotTitle     string
	gotLesson    *int
	gotTopK      int
	resolveCalls int
}

func (f *fakeIndex) ResolveCourse(vec []float32) (string, error) {
	f.resolveCalls++
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return f.resolved, nil
}

func (f *fakeIndex) SearchChunks(vec []float32, topK int, courseTitle string, lessonNumber *int) ([]index.ScoredChunk, error) {
	f.gotTopK = topK
	f.gotTitle = courseTitle
	f.gotLesson = lessonNumber
	return f.results, nil
}

func TestSearch_NoFilters(t *testing.T) {
	two := 2
	fi := &fakeIndex{results: []index.ScoredChunk{
		{Content: "first", CourseTitle: "C", LessonNumber: &two, Distance: 0.1},
		{Content: "second", CourseTitle: "C", Distance: 0.4},
	}}
	s := NewSearcher(NewEmbedder(&fakeEmbedClient{}, "embed-model"), fi)

	results, err := s.Search(context.Background(), "what is retrieval", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if fi.resolveCalls != 0 {
		t.Errorf("ResolveCourse called %d times without a filter", fi.resolveCalls)
	}
	if fi.gotTopK != defaultLimit {
		t.Errorf("topK = %d, want default %d", fi.gotTopK, defaultLimit)
	}
	if results[0].Content != "first" || results[0].Distance != 0.1 {
		t.Errorf("result[0] = %+v", results[0])
	}
}

func TestSearch_CourseFilterResolvesFirst(t *testing.T) {
	fi := &fakeIndex{resolved: "Exact Course Title"}
	s := NewSearcher(NewEmbedder(&fakeEmbedClient{}, "embed-model"), fi)

	lesson := 3
	_, err := s.Search(context.Background(), "q", Options{CourseName: "exct corse", LessonNumber: &lesson, Limit: 7})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if fi.resolveCalls != 1 {
		t.Errorf("ResolveCourse calls = %d, want 1", fi.resolveCalls)
	}
	if fi.gotTitle != "Exact Course Title" {
		t.Errorf("search used title %q", fi.gotTitle)
	}
	if fi.gotLesson == nil || *fi.gotLesson != 3 {
		t.Errorf("lesson filter = %v", fi.gotLesson)
	}
	if fi.gotTopK != 7 {
		t.Errorf("topK = %d, want 7", fi.gotTopK)
	}
}

func TestSearch_UnresolvedFilterPassesThrough(t *testing.T) {
	fi := &fakeIndex{resolveErr: index.ErrUnresolvedFilter}
	s := NewSearcher(NewEmbedder(&fakeEmbedClient{}, "embed-model"), fi)

	_, err := s.Search(context.Background(), "q", Options{CourseName: "Nonexistent Course"})
	if !errors.Is(err, index.ErrUnresolvedFilter) {
		t.Fatalf("err = %v, want ErrUnresolvedFilter", err)
	}
}

func TestSearch_EmbedFailure(t *testing.T) {
	s := NewSearcher(NewEmbedder(&fakeEmbedClient{err: errors.New("backend down")}, "embed-model"), &fakeIndex{})
	if _, err := s.Search(context.Background(), "q", Options{}); err == nil {
		t.Fatal("expected error when embedding fails")
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	e := NewEmbedder(&fakeEmbedClient{}, "embed-model")
	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vecs != nil {
		t.Errorf("got %v, want nil", vecs)
	}
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	client := &fakeEmbedClient{vectors: map[string][]float32{
		"a": {1},
		"b": {2},
		"c": {3},
	}}
	e := NewEmbedder(client, "embed-model")

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	for i, want := range []float32{1, 2, 3} {
		if vecs[i][0] != want {
			t.Errorf("vecs[%d] = %v, want [%f]", i, vecs[i], want)
		}
	}
}
