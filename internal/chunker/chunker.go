// Package chunker splits a text blob into delivery-sized pieces.
//
// Cuts prefer semantic boundaries over hard offsets: a paragraph break beats
// a sentence end, which beats a plain space. Only when no boundary qualifies
// does the splitter cut at the raw target size (long URLs, code blocks).
package chunker

import (
	"strings"
	"unicode/utf8"
)

// Boundary search floors, as fractions of the target size.
//
// A paragraph or sentence break only counts if it lands in the second half of
// the window; a bare space only counts past 70%. This keeps pieces reasonably
// even instead of degenerating into tiny fragments.
const (
	semanticFloor = 2
	spaceFloorNum = 7
	spaceFloorDen = 10
)

// Split cuts text into ordered, trimmed, non-empty pieces of at most
// targetSize bytes. Empty or whitespace-only input yields no pieces.
// targetSize must be positive; callers validate it at config time.
func Split(text string, targetSize int) []string {
	if targetSize <= 0 {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []string
	remaining := text
	for len(remaining) > targetSize {
		cut := findCut(remaining, targetSize)
		piece := strings.TrimSpace(remaining[:cut])
		if piece != "" {
			out = append(out, piece)
		}
		remaining = remaining[cut:]
	}
	if tail := strings.TrimSpace(remaining); tail != "" {
		out = append(out, tail)
	}
	return out
}

// findCut returns the byte offset to cut at, 0 < cut <= targetSize.
func findCut(s string, targetSize int) int {
	window := s[:targetSize]
	half := targetSize / semanticFloor

	// Paragraph boundary: cut after the double line break.
	if i := strings.LastIndex(window, "\n\n"); i >= half {
		return i + 2
	}

	// Sentence boundary: terminator followed by whitespace. The follower may
	// sit just past the window, so probe s rather than window.
	for i := targetSize - 1; i >= half; i-- {
		c := window[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(s) && isSpace(s[i+1]) {
			return i + 1
		}
	}

	// Plain space, only late in the window.
	if i := strings.LastIndexByte(window, ' '); i >= targetSize*spaceFloorNum/spaceFloorDen {
		return i
	}

	// Hard cut. Back up to a rune boundary so multi-byte characters survive.
	cut := targetSize
	for cut > 1 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return cut
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}
