// internal/alignment/requester.go
package alignment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/llm"
	"github.com/Corphon/LectureCompanion/internal/models"
	"github.com/Corphon/LectureCompanion/internal/prompts"
)

const (
	// MaxPayloadChars caps the serialized segment list sent to the model.
	MaxPayloadChars = 12000
	// MaxSlideHintChars caps the optional slide text appended to the prompt.
	MaxSlideHintChars = 4000
)

// RawResponse is the parsed but unvalidated model reply.
type RawResponse struct {
	Segments     []map[string]any
	SentSegments int  // segments that fit into the payload
	Clipped      bool // the first segment's text was cut to fit
	Model        string
	Provider     string
	TokensUsed   int
}

// Requester sends one alignment prompt per call.
type Requester struct {
	completer llm.Completer
	prompt    *prompts.Prompt
	model     string
}

// NewRequester binds a completer to the alignment prompt. model may be empty
// to use the provider's default.
func NewRequester(completer llm.Completer, prompt *prompts.Prompt, model string) *Requester {
	return &Requester{completer: completer, prompt: prompt, model: model}
}

// RequestAlignment asks the model which outcomes each segment evidences.
// It makes exactly one completion call and never retries.
func (r *Requester) RequestAlignment(ctx context.Context, segments []models.Segment, outcomes []models.LearningOutcome, slideHint string) (*RawResponse, error) {
	if len(outcomes) == 0 {
		return nil, apperrors.EmptyOutcomesError()
	}
	if len(segments) == 0 {
		return nil, apperrors.EmptyTranscriptError()
	}

	payload, sent, clipped, err := serializeSegments(segments, MaxPayloadChars)
	if err != nil {
		return nil, apperrors.NewProcessingError("serialize segments", err)
	}

	req, err := r.prompt.Request(struct {
		Outcomes     []models.LearningOutcome
		SegmentsJSON string
		SlideHint    string
	}{
		Outcomes:     outcomes,
		SegmentsJSON: payload,
		SlideHint:    truncateRunes(slideHint, MaxSlideHintChars),
	})
	if err != nil {
		return nil, apperrors.NewProcessingError("build alignment prompt", err)
	}
	req.Model = r.model

	resp, err := r.completer.CompleteText(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewAppError(apperrors.ErrorTypeCancelled, "alignment request cancelled", ctx.Err())
		}
		return nil, apperrors.WrapError(err, "model request failed", apperrors.ErrorTypeUpstream)
	}

	raw, err := ParseResponse(resp.Text)
	if err != nil {
		return nil, err
	}
	raw.SentSegments = sent
	raw.Clipped = clipped
	raw.Model = resp.ModelName
	raw.Provider = resp.ProviderName
	raw.TokensUsed = resp.TokensUsed
	return raw, nil
}

// ParseResponse cleans model text and checks the top-level shape.
func ParseResponse(text string) (*RawResponse, error) {
	cleaned := llm.CleanJSON(text)

	var top any
	if err := json.Unmarshal([]byte(cleaned), &top); err != nil {
		return nil, apperrors.ResponseParseError(err)
	}

	obj, ok := top.(map[string]any)
	if !ok {
		return nil, apperrors.ResponseSchemaError(fmt.Sprintf("top level is %s, not an object", jsonKind(top)))
	}
	list, ok := obj["segments"].([]any)
	if !ok {
		if _, present := obj["segments"]; !present {
			return nil, apperrors.ResponseSchemaError("segments key is missing")
		}
		return nil, apperrors.ResponseSchemaError(fmt.Sprintf("segments is %s, not a list", jsonKind(obj["segments"])))
	}

	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return &RawResponse{Segments: records}, nil
}

// serializeSegments encodes {index,text} records as a JSON array, keeping
// whole segments only while the result stays within limit characters. The
// first segment is always included; if it alone overflows, its text is cut
// and clipped is reported.
func serializeSegments(segments []models.Segment, limit int) (payload string, sent int, clipped bool, err error) {
	var b strings.Builder
	b.WriteByte('[')
	size := 2
	for _, s := range segments {
		item, err := json.Marshal(s)
		if err != nil {
			return "", 0, false, err
		}
		n := utf8.RuneCount(item)
		if sent > 0 {
			n++
			if size+n > limit {
				break
			}
			b.WriteByte(',')
		} else if size+n > limit {
			if item, err = fitSegment(s, limit-size); err != nil {
				return "", 0, false, err
			}
			n = utf8.RuneCount(item)
			clipped = true
		}
		b.Write(item)
		size += n
		sent++
	}
	b.WriteByte(']')
	return b.String(), sent, clipped, nil
}

// fitSegment shortens the text of s until its encoding fits in room
// characters. The index is never dropped, so a room smaller than the empty
// record yields the empty record.
func fitSegment(s models.Segment, room int) ([]byte, error) {
	text := []rune(s.Text)
	keep := len(text)
	for {
		item, err := json.Marshal(models.Segment{Index: s.Index, Text: string(text[:keep])})
		if err != nil {
			return nil, err
		}
		over := utf8.RuneCount(item) - room
		if over <= 0 || keep == 0 {
			return item, nil
		}
		// every rune encodes to at least one character
		keep = max(keep-over, 0)
	}
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "a list"
	case map[string]any:
		return "an object"
	case string:
		return "a string"
	case float64:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
