// internal/alignment/segmenter.go
package alignment

import (
	"regexp"
	"strings"

	"github.com/Corphon/LectureCompanion/internal/models"
)

// MaxSegments bounds how many segments one transcript produces.
const MaxSegments = 40

// paragraphBreak matches a blank line, including lines holding only spaces or tabs.
var paragraphBreak = regexp.MustCompile(`\n[ \t\f\v]*\n\s*`)

// Segment splits a transcript into at most MaxSegments paragraphs indexed
// 0..n-1. It never returns an empty slice: input without any non-empty
// paragraph yields a single segment holding the trimmed input.
func Segment(text string) []models.Segment {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var parts []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return []models.Segment{{Index: 0, Text: strings.TrimSpace(text)}}
	}

	if len(parts) > MaxSegments {
		size := (len(parts) + MaxSegments - 1) / MaxSegments
		grouped := make([]string, 0, MaxSegments)
		for i := 0; i < len(parts); i += size {
			end := min(i+size, len(parts))
			grouped = append(grouped, strings.Join(parts[i:end], "\n\n"))
		}
		parts = grouped
	}

	segments := make([]models.Segment, len(parts))
	for i, p := range parts {
		segments[i] = models.Segment{Index: i, Text: p}
	}
	return segments
}
