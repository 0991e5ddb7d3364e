// internal/transcript/timestamps.go
package transcript

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Corphon/LectureCompanion/internal/models"
)

// rangeSeparator sits between the two timestamps of a line.
const rangeSeparator = " – "

var (
	linePattern = regexp.MustCompile(`^\[([^\]\-–]+?)\s*[-–]\s*([^\]]+?)\]\s*(.*)$`)
	spaceRun    = regexp.MustCompile(`\s+`)
)

// FormatTimestamp renders seconds as HH:MM:SS. Negative and non-finite
// values render as 00:00:00.
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatLine renders one segment as "[HH:MM:SS – HH:MM:SS] text".
func FormatLine(seg models.TimedSegment) string {
	return "[" + FormatTimestamp(seg.Start) + rangeSeparator + FormatTimestamp(seg.End) + "] " + strings.TrimSpace(seg.Text)
}

// Assemble joins segments into a timestamped transcript, one line each.
// Segments with blank text are skipped.
func Assemble(segments []models.TimedSegment) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		lines = append(lines, FormatLine(seg))
	}
	return strings.Join(lines, "\n")
}

// Parse extracts timed segments from "[a – b] text" lines. Both en dash and
// hyphen separate the range; timestamps may be HH:MM:SS, MM:SS or plain
// seconds. Lines that do not match are ignored.
func Parse(text string) []models.TimedSegment {
	var out []models.TimedSegment
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		m := linePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		start, ok := ParseTimestamp(m[1])
		if !ok {
			continue
		}
		end, ok := ParseTimestamp(m[2])
		if !ok {
			continue
		}
		out = append(out, models.TimedSegment{
			Start: start,
			End:   end,
			Text:  strings.TrimSpace(spaceRun.ReplaceAllString(m[3], " ")),
		})
	}
	return out
}

// ParseTimestamp reads HH:MM:SS, MM:SS or a seconds value.
func ParseTimestamp(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, false
	}
	total := 0.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, false
		}
		total = total*60 + v
	}
	return total, true
}
