package docqa

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Splitter breaks document text into overlapping chunks for retrieval.
// It splits on the coarsest separator that produces pieces below the
// chunk size, falling back from paragraphs to lines to words to runes.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter. Overlap must be smaller than chunkSize;
// out-of-range values are clamped so rune splitting always advances.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

var separators = []string{"\n\n", "\n", " ", ""}

// Split returns the chunks of text. Whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []string {
	pieces := s.split(text, 0)

	chunks := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece != "" {
			chunks = append(chunks, piece)
		}
	}
	return chunks
}

func (s *Splitter) split(text string, level int) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}
	if level >= len(separators) {
		return []string{text}
	}

	sep := separators[level]
	if sep == "" {
		return s.splitRunes(text)
	}

	var pieces []string
	for _, part := range strings.Split(text, sep) {
		if len(part) > s.chunkSize {
			pieces = append(pieces, s.split(part, level+1)...)
			continue
		}
		pieces = append(pieces, part)
	}

	return s.merge(pieces, sep)
}

// merge joins consecutive small pieces back together up to the chunk
// size, carrying the configured overlap between adjacent chunks.
func (s *Splitter) merge(pieces []string, sep string) []string {
	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, sep))

		// Keep a tail of pieces as overlap for the next chunk.
		var tail []string
		tailLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			pieceLen := len(current[i]) + len(sep)
			if tailLen+pieceLen > s.overlap {
				break
			}
			tail = append([]string{current[i]}, tail...)
			tailLen += pieceLen
		}
		current = tail
		currentLen = tailLen
	}

	for _, piece := range pieces {
		pieceLen := len(piece) + len(sep)
		if currentLen+pieceLen > s.chunkSize && currentLen > 0 {
			flush()
		}
		current = append(current, piece)
		currentLen += pieceLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, sep))
	}
	return chunks
}

// splitRunes hard-splits text that has no usable separator, respecting
// rune boundaries.
func (s *Splitter) splitRunes(text string) []string {
	var pieces []string
	step := s.chunkSize - s.overlap

	runes := []rune(text)
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return pieces
}

// Plain-text formats accepted for upload. Binary formats like PDF and
// DOCX need an extraction step this service does not carry.
var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
}

// ExtractText returns the text content of an uploaded file, rejecting
// unsupported extensions and non-UTF-8 payloads.
func ExtractText(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !supportedExtensions[ext] {
		return "", ErrUnsupportedFormat
	}
	if !utf8.Valid(data) {
		return "", ErrUnsupportedFormat
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}
