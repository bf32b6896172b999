// Package docproc parses raw course documents into structured courses and
// overlapping text chunks ready for embedding.
package docproc

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedDocument is returned when a document lacks the required
// "Course Title:" header.
var ErrMalformedDocument = errors.New("malformed document: missing course title header")

// Course is the parsed metadata of one course document. Title is the unique
// key across all storage.
type Course struct {
	Title      string
	Link       string
	Instructor string
	Lessons    []Lesson
}

// Lesson is a single lesson entry within a course.
type Lesson struct {
	Number int
	Title  string
	Link   string
}

// Chunk is a bounded span of enriched lesson text, the unit of retrieval.
// LessonNumber is nil for course-level text that precedes the first lesson
// marker. ChunkIndex increases strictly across the whole course.
type Chunk struct {
	Content      string
	CourseTitle  string
	LessonNumber *int
	ChunkIndex   int
}

const (
	headerTitle      = "Course Title:"
	headerLink       = "Course Link:"
	headerInstructor = "Course Instructor:"
	lessonLinkPrefix = "Lesson Link:"
)

var lessonMarker = regexp.MustCompile(`^Lesson\s+(\d+):\s*(.*)$`)

// Processor parses documents and chunks their lesson bodies.
type Processor struct {
	chunker *Chunker
}

// New creates a Processor using the given chunking parameters.
// Non-positive values fall back to the defaults (800/100).
func New(maxChars, overlapChars int) *Processor {
	return &Processor{chunker: NewChunker(maxChars, overlapChars)}
}

// lessonBlock accumulates one lesson's metadata and body during parsing.
type lessonBlock struct {
	lesson Lesson
	body   []string
}

// Process parses rawText into a Course and its ordered chunks.
// Lesson bodies are chunked in ascending lesson-number order so that a later
// lesson's first chunk always has a higher index than an earlier lesson's
// last chunk. Returns ErrMalformedDocument when the title header is absent.
func (p *Processor) Process(rawText string) (Course, []Chunk, error) {
	lines := strings.Split(rawText, "\n")

	course := Course{}
	var intro []string
	var blocks []*lessonBlock
	byNumber := make(map[int]*lessonBlock)
	var current *lessonBlock
	inHeader := true

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		trimmed := strings.TrimSpace(line)

		if m := lessonMarker.FindStringSubmatch(trimmed); m != nil {
			inHeader = false
			number, err := strconv.Atoi(m[1])
			if err != nil {
				return Course{}, nil, fmt.Errorf("parsing lesson number in %q: %w", trimmed, err)
			}

			// Duplicate lesson markers merge into the first block so chunk
			// indexes stay unique per lesson number.
			if existing, ok := byNumber[number]; ok {
				current = existing
				continue
			}

			current = &lessonBlock{lesson: Lesson{Number: number, Title: strings.TrimSpace(m[2])}}

			// An optional "Lesson Link:" line directly follows the marker.
			if i+1 < len(lines) {
				next := strings.TrimSpace(strings.TrimRight(lines[i+1], "\r"))
				if rest, ok := strings.CutPrefix(next, lessonLinkPrefix); ok {
					current.lesson.Link = strings.TrimSpace(rest)
					i++
				}
			}

			byNumber[number] = current
			blocks = append(blocks, current)
			continue
		}

		if inHeader {
			switch {
			case strings.HasPrefix(trimmed, headerTitle):
				course.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, headerTitle))
				continue
			case strings.HasPrefix(trimmed, headerLink):
				course.Link = strings.TrimSpace(strings.TrimPrefix(trimmed, headerLink))
				continue
			case strings.HasPrefix(trimmed, headerInstructor):
				course.Instructor = strings.TrimSpace(strings.TrimPrefix(trimmed, headerInstructor))
				continue
			}
		}

		if current != nil {
			current.body = append(current.body, line)
		} else if trimmed != "" {
			intro = append(intro, line)
		}
	}

	if course.Title == "" {
		return Course{}, nil, ErrMalformedDocument
	}

	// Chunk bodies in ascending lesson-number order.
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].lesson.Number < blocks[j].lesson.Number
	})

	var chunks []Chunk
	index := 0

	if body := strings.TrimSpace(strings.Join(intro, "\n")); body != "" {
		for _, text := range p.chunker.Split(body) {
			chunks = append(chunks, Chunk{
				Content:     fmt.Sprintf("Course %s content: %s", course.Title, text),
				CourseTitle: course.Title,
				ChunkIndex:  index,
			})
			index++
		}
	}

	for _, b := range blocks {
		course.Lessons = append(course.Lessons, b.lesson)

		body := strings.TrimSpace(strings.Join(b.body, "\n"))
		if body == "" {
			continue
		}
		number := b.lesson.Number
		for _, text := range p.chunker.Split(body) {
			chunks = append(chunks, Chunk{
				Content:      fmt.Sprintf("Course %s Lesson %d content: %s", course.Title, number, text),
				CourseTitle:  course.Title,
				LessonNumber: &number,
				ChunkIndex:   index,
			})
			index++
		}
	}

	return course, chunks, nil
}
