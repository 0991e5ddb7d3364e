// internal/alignment/aligner.go
package alignment

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/models"
)

// Align runs the whole pipeline for one transcript: validate, segment,
// normalize outcomes, request and merge. Empty input fails before any
// model call.
func (r *Requester) Align(ctx context.Context, transcript string, rawOutcomes []string, slideHint string) (*models.AlignmentResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, apperrors.EmptyTranscriptError()
	}

	segments := Segment(transcript)
	outcomes, err := NormalizeOutcomes(rawOutcomes)
	if err != nil {
		return nil, err
	}

	raw, err := r.RequestAlignment(ctx, segments, outcomes, slideHint)
	if err != nil {
		return nil, err
	}

	return &models.AlignmentResult{
		Segments:  Merge(segments, raw.Segments),
		Outcomes:  outcomes,
		Provider:  raw.Provider,
		Model:     raw.Model,
		Truncated: raw.SentSegments < len(segments) || raw.Clipped,
		CreatedAt: time.Now().UTC(),
	}, nil
}
