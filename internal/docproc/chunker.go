package docproc

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	defaultMaxChars     = 800
	defaultOverlapChars = 100
)

// sentencePattern matches a run of text up to and including its terminating
// punctuation, plus any closing quotes or brackets that follow it.
var sentencePattern = regexp.MustCompile(`(?s)[^.!?]+[.!?]+["')\]]*`)

// Chunker splits text into overlapping windows bounded by a character budget,
// breaking only at sentence boundaries. A single sentence longer than the
// budget is kept whole.
type Chunker struct {
	maxChars     int
	overlapChars int
}

// NewChunker creates a Chunker. Non-positive maxChars defaults to 800 and a
// negative overlapChars defaults to 100.
func NewChunker(maxChars, overlapChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	if overlapChars < 0 {
		overlapChars = defaultOverlapChars
	}
	return &Chunker{maxChars: maxChars, overlapChars: overlapChars}
}

// SplitSentences breaks text into trimmed sentences. Text without terminating
// punctuation is returned as a single sentence.
func SplitSentences(text string) []string {
	matches := sentencePattern.FindAllStringIndex(text, -1)

	var sentences []string
	last := 0
	for _, m := range matches {
		if s := strings.TrimSpace(text[m[0]:m[1]]); s != "" {
			sentences = append(sentences, s)
		}
		last = m[1]
	}
	// Trailing text without a terminator still counts as a sentence.
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// Split returns overlapping chunks of text. Consecutive chunks share roughly
// overlapChars of trailing sentences, rounded down to sentence boundaries.
func (c *Chunker) Split(text string) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	i := 0
	for i < len(sentences) {
		var window []string
		size := 0
		j := i
		for j < len(sentences) {
			add := utf8.RuneCountInString(sentences[j])
			if len(window) > 0 {
				add++ // joining space
			}
			if size+add > c.maxChars && len(window) > 0 {
				break
			}
			window = append(window, sentences[j])
			size += add
			j++
		}
		chunks = append(chunks, strings.Join(window, " "))

		if j >= len(sentences) {
			break
		}

		// Walk back over trailing sentences until the overlap budget is spent.
		next := j
		overlap := 0
		for next > i {
			n := utf8.RuneCountInString(sentences[next-1])
			if overlap+n > c.overlapChars {
				break
			}
			overlap += n + 1
			next--
		}
		if next <= i {
			next = i + 1 // always make forward progress
		}
		i = next
	}
	return chunks
}
