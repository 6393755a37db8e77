package chunker

import "strings"

const (
	defaultChunkSize = 1000
	defaultOverlap   = 200
)

// Splitter cuts document text into overlapping chunks, preferring natural
// boundaries. Cut points are chosen in priority order: paragraph break,
// line break, sentence punctuation, whitespace, hard cut. A cut never lands
// earlier than size-overlap into the chunk, so every chunk makes progress
// and no chunk exceeds the configured size.
type Splitter struct {
	size    int
	overlap int
}

// New creates a Splitter with the given chunk size and overlap (in runes).
// Non-positive values fall back to the defaults (1000/200); an overlap that
// would stall progress is clamped to a fifth of the size.
func New(size, overlap int) *Splitter {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultOverlap
	}
	if overlap*2 >= size {
		overlap = size / 5
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split cuts text into overlapping chunks. Chunks are verbatim substrings
// of the input: every input character appears in at least one chunk, and
// consecutive chunks share an overlap region.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for {
		if len(runes)-start <= s.size {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}

		end := start + s.size
		cut := s.cutPoint(runes, end)
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - s.overlap
		// Don't begin a chunk mid-word: advance to just past the next
		// whitespace, giving back at most a quarter of the overlap.
		limit := next + s.overlap/4
		for i := next; i < limit && i < cut; i++ {
			if isSpace(runes[i]) {
				next = i + 1
				break
			}
		}
		start = next
	}
}

// cutPoint returns the index to cut at for a chunk ending no later than end.
// The search window is the last overlap-sized span of the chunk, so the cut
// stays within [end-overlap, end].
func (s *Splitter) cutPoint(runes []rune, end int) int {
	minCut := end - s.overlap

	// Paragraph break.
	for i := end - 2; i >= minCut; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i + 2
		}
	}
	// Line break.
	for i := end - 1; i >= minCut; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	// Sentence punctuation.
	for i := end - 1; i >= minCut; i-- {
		if isSentenceEnd(runes[i]) {
			return i + 1
		}
	}
	// Whitespace.
	for i := end - 1; i >= minCut; i-- {
		if isSpace(runes[i]) {
			return i + 1
		}
	}
	// Hard cut.
	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ':':
		return true
	}
	return false
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
