// internal/alignment/merger.go
package alignment

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/Corphon/LectureCompanion/internal/models"
)

// Merge reconciles untrusted model records with the base segments. The
// result has one entry per base segment, in order, carrying that segment's
// index and text. Records whose index is not an integer or whose lo_links
// is not a list are ignored, and the first valid record for an index wins.
// Links with a blank lo_id or lo_title or a non-finite confidence are
// dropped; remaining confidences are clamped to [0,1].
func Merge(base []models.Segment, raw []map[string]any) []models.AlignedSegment {
	lookup := make(map[int][]models.LoLink, len(raw))
	for _, rec := range raw {
		idx, ok := integerValue(rec["index"])
		if !ok {
			continue
		}
		rawLinks, ok := rec["lo_links"].([]any)
		if !ok {
			continue
		}
		if _, seen := lookup[idx]; seen {
			continue
		}
		lookup[idx] = validLinks(rawLinks)
	}

	out := make([]models.AlignedSegment, len(base))
	for i, seg := range base {
		links := lookup[seg.Index]
		if links == nil {
			links = []models.LoLink{}
		}
		out[i] = models.AlignedSegment{Index: seg.Index, Text: seg.Text, LoLinks: links}
	}
	return out
}

// Unmatched counts base segments that ended up without links.
func Unmatched(aligned []models.AlignedSegment) int {
	n := 0
	for _, s := range aligned {
		if len(s.LoLinks) == 0 {
			n++
		}
	}
	return n
}

func validLinks(raw []any) []models.LoLink {
	links := make([]models.LoLink, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["lo_id"].(string)
		title, _ := m["lo_title"].(string)
		id, title = strings.TrimSpace(id), strings.TrimSpace(title)
		if id == "" || title == "" {
			continue
		}
		conf, ok := finiteNumber(m["confidence"])
		if !ok {
			continue
		}
		links = append(links, models.LoLink{
			LoID:       id,
			LoTitle:    title,
			Confidence: math.Max(0, math.Min(1, conf)),
		})
	}
	return links
}

// integerValue accepts JSON numbers without a fractional part.
func integerValue(v any) (int, bool) {
	f, ok := finiteNumber(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func finiteNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
