package index

import (
	"container/heap"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Course is a catalog entry: the metadata collection holds one embedding per
// course, derived from its title and instructor, used only for fuzzy name
// resolution.
type Course struct {
	Title      string   `json:"title"`
	Link       string   `json:"link,omitempty"`
	Instructor string   `json:"instructor,omitempty"`
	Lessons    []Lesson `json:"lessons"`
}

// Lesson is one lesson entry stored with its course's catalog row.
type Lesson struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Link   string `json:"link,omitempty"`
}

// ChunkRecord is one row of the content collection.
type ChunkRecord struct {
	ID           string
	CourseTitle  string
	LessonNumber *int
	ChunkIndex   int
	Content      string
	Embedding    []float32
}

// ScoredChunk is a search hit. Distance is 1 - cosine similarity, so smaller
// means a closer semantic match.
type ScoredChunk struct {
	Content      string
	CourseTitle  string
	LessonNumber *int
	ChunkIndex   int
	Distance     float32
}

// AddCourse replaces the course's catalog entry and entire chunk set in a
// single transaction (clear-then-write), so a concurrent search never
// observes a partially replaced course.
func (x *Index) AddCourse(course Course, courseVec []float32, chunks []ChunkRecord) error {
	lessons, err := json.Marshal(course.Lessons)
	if err != nil {
		return fmt.Errorf("marshalling lessons for %q: %w", course.Title, err)
	}

	tx, err := x.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning add transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM course_chunks WHERE course_title = ?", course.Title); err != nil {
		return fmt.Errorf("clearing chunks for %q: %w", course.Title, err)
	}
	if _, err := tx.Exec("DELETE FROM course_catalog WHERE title = ?", course.Title); err != nil {
		return fmt.Errorf("clearing catalog entry for %q: %w", course.Title, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`
		INSERT INTO course_catalog (title, link, instructor, lessons, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		course.Title, course.Link, course.Instructor, string(lessons), encodeFloat32s(courseVec), now,
	); err != nil {
		return fmt.Errorf("inserting catalog entry for %q: %w", course.Title, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO course_chunks (id, course_title, lesson_number, chunk_index, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		var lesson any
		if c.LessonNumber != nil {
			lesson = *c.LessonNumber
		}
		if _, err := stmt.Exec(c.ID, c.CourseTitle, lesson, c.ChunkIndex, c.Content, encodeFloat32s(c.Embedding), now); err != nil {
			return fmt.Errorf("inserting chunk %d of %q: %w", c.ChunkIndex, c.CourseTitle, err)
		}
	}

	return tx.Commit()
}

// HasCourse reports whether a catalog entry exists for the exact title.
func (x *Index) HasCourse(title string) (bool, error) {
	var count int
	if err := x.db.QueryRow("SELECT COUNT(*) FROM course_catalog WHERE title = ?", title).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Clear removes one course's catalog entry and chunks, or everything when
// title is empty. Clearing an absent title returns ErrNotFound.
func (x *Index) Clear(title string) error {
	tx, err := x.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning clear transaction: %w", err)
	}
	defer tx.Rollback()

	if title == "" {
		if _, err := tx.Exec("DELETE FROM course_chunks"); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM course_catalog"); err != nil {
			return err
		}
		return tx.Commit()
	}

	if _, err := tx.Exec("DELETE FROM course_chunks WHERE course_title = ?", title); err != nil {
		return err
	}
	res, err := tx.Exec("DELETE FROM course_catalog WHERE title = ?", title)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// CourseCount returns the number of catalog entries.
func (x *Index) CourseCount() (int, error) {
	var count int
	err := x.db.QueryRow("SELECT COUNT(*) FROM course_catalog").Scan(&count)
	return count, err
}

// ChunkCount returns the number of stored chunks, for one course or in total
// when title is empty.
func (x *Index) ChunkCount(title string) (int, error) {
	var count int
	var err error
	if title == "" {
		err = x.db.QueryRow("SELECT COUNT(*) FROM course_chunks").Scan(&count)
	} else {
		err = x.db.QueryRow("SELECT COUNT(*) FROM course_chunks WHERE course_title = ?", title).Scan(&count)
	}
	return count, err
}

// ListCourses returns all catalog entries ordered by title.
func (x *Index) ListCourses() ([]Course, error) {
	rows, err := x.db.Query("SELECT title, link, instructor, lessons FROM course_catalog ORDER BY title ASC")
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var courses []Course
	for rows.Next() {
		var c Course
		var lessons string
		if err := rows.Scan(&c.Title, &c.Link, &c.Instructor, &lessons); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		if err := json.Unmarshal([]byte(lessons), &c.Lessons); err != nil {
			return nil, fmt.Errorf("parsing lessons for %q: %w", c.Title, err)
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// ResolveCourse finds the catalog entry nearest to the given vector,
// supporting partial and misspelled course names. It fails with
// ErrUnresolvedFilter when the catalog is empty or the best match's cosine
// similarity falls below the configured floor.
func (x *Index) ResolveCourse(vec []float32) (string, error) {
	rows, err := x.db.Query("SELECT title, embedding FROM course_catalog")
	if err != nil {
		return "", fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vec)
	if queryNorm == 0 {
		return "", ErrUnresolvedFilter
	}

	var bestTitle string
	var bestScore float32
	seen := false
	var buf []float32

	for rows.Next() {
		var title string
		var blob []byte
		if err := rows.Scan(&title, &blob); err != nil {
			return "", fmt.Errorf("scanning catalog row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return "", fmt.Errorf("decoding embedding for %q: %w", title, err)
		}
		score := cosine(vec, buf, queryNorm)
		if !seen || score > bestScore {
			bestTitle, bestScore, seen = title, score, true
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating catalog: %w", err)
	}

	if !seen {
		return "", fmt.Errorf("%w: no courses in catalog", ErrUnresolvedFilter)
	}
	if bestScore < x.minResolveScore {
		return "", fmt.Errorf("%w: nearest course %q scored %.2f", ErrUnresolvedFilter, bestTitle, bestScore)
	}
	return bestTitle, nil
}

// SearchChunks performs brute-force nearest-neighbor search over the content
// collection, optionally restricted to an exact course title and lesson
// number. Results are ordered by ascending distance and truncated to topK.
// Zero matches after filtering is a valid empty result.
func (x *Index) SearchChunks(vec []float32, topK int, courseTitle string, lessonNumber *int) ([]ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	where, args := chunkFilter(courseTitle, lessonNumber)

	// Phase 1: scan only id + embedding to find top-K candidates.
	rows, err := x.db.Query("SELECT id, embedding FROM course_chunks"+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vec)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &idDistanceHeap{}
	heap.Init(h)

	var buf []float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		distance := 1 - cosine(vec, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idDistance{ID: id, Distance: distance})
		} else if distance < (*h)[0].Distance {
			(*h)[0] = idDistance{ID: id, Distance: distance}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full rows only for the winners.
	ids := make([]string, h.Len())
	distances := make(map[string]float32, h.Len())
	for i := len(ids) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idDistance)
		ids[i] = item.ID
		distances[item.ID] = item.Distance
	}

	queryArgs := make([]any, len(ids))
	for i, id := range ids {
		queryArgs[i] = id
	}
	fullQuery := `SELECT id, course_title, lesson_number, chunk_index, content
		FROM course_chunks WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	fullRows, err := x.db.Query(fullQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K chunks: %w", err)
	}
	defer fullRows.Close()

	byID := make(map[string]ScoredChunk, len(ids))
	for fullRows.Next() {
		var id string
		var c ScoredChunk
		var lesson sql.NullInt64
		if err := fullRows.Scan(&id, &c.CourseTitle, &lesson, &c.ChunkIndex, &c.Content); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if lesson.Valid {
			n := int(lesson.Int64)
			c.LessonNumber = &n
		}
		c.Distance = distances[id]
		byID[id] = c
	}
	if err := fullRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}

	// ids is already sorted by ascending distance (IN query doesn't preserve order).
	results := make([]ScoredChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			results = append(results, c)
		}
	}
	return results, nil
}

// chunkFilter builds the WHERE clause for the optional search filters.
func chunkFilter(courseTitle string, lessonNumber *int) (string, []any) {
	var clauses []string
	var args []any
	if courseTitle != "" {
		clauses = append(clauses, "course_title = ?")
		args = append(args, courseTitle)
	}
	if lessonNumber != nil {
		clauses = append(clauses, "lesson_number = ?")
		args = append(args, *lessonNumber)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
