// internal/services/transcribe_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/models"
	"github.com/Corphon/LectureCompanion/internal/transcript"
	"github.com/Corphon/LectureCompanion/internal/utils"
)

// ProgressFunc receives progress in percent and a short message.
type ProgressFunc func(progress int, message string)

// TranscribeService turns a media file into a timed transcript.
type TranscribeService interface {
	Transcribe(ctx context.Context, mediaPath string, onProgress ProgressFunc) (*models.Transcript, error)
}

// transcriberEvent is one JSON line written by the transcriber command.
type transcriberEvent struct {
	Type     string  `json:"type"`
	Duration float64 `json:"duration"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	Progress float64 `json:"progress"`
}

// CommandTranscriber runs an external transcriber. The media path is
// appended as the last argument; the command writes JSON lines of type
// meta, segment and done on stdout. Other lines are ignored.
type CommandTranscriber struct {
	argv []string
}

// NewCommandTranscriber parses a command line such as
// "python3 'transcribe/run.py' --lang en". An empty command yields a
// transcriber that reports itself as not configured.
func NewCommandTranscriber(command string) (*CommandTranscriber, error) {
	argv, err := splitCommand(command)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid transcription command", err)
	}
	return &CommandTranscriber{argv: argv}, nil
}

// Transcribe runs the command and assembles its segments.
func (t *CommandTranscriber) Transcribe(ctx context.Context, mediaPath string, onProgress ProgressFunc) (*models.Transcript, error) {
	if len(t.argv) == 0 {
		return nil, apperrors.NewUnavailableError("transcription is not configured", ErrCommandNotConfigured)
	}
	if onProgress == nil {
		onProgress = func(int, string) {}
	}

	var (
		result   models.Transcript
		done     bool
		skipped  int
		lastSent = -1
	)
	argv := append(append([]string{}, t.argv...), mediaPath)

	err := runLines(ctx, argv, func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		var ev transcriberEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			skipped++
			return
		}
		switch ev.Type {
		case "meta":
			result.Duration = ev.Duration
			onProgress(0, "transcribing")
		case "segment":
			text := strings.TrimSpace(ev.Text)
			if text != "" {
				result.Segments = append(result.Segments, models.TimedSegment{Start: ev.Start, End: ev.End, Text: text})
			}
			// 100 is reserved for the done event.
			pct := int(math.Min(99, math.Max(0, ev.Progress*100)))
			if pct != lastSent {
				lastSent = pct
				onProgress(pct, "transcribing")
			}
		case "done":
			done = true
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewAppError(apperrors.ErrorTypeCancelled, "transcription cancelled", err)
		}
		return nil, apperrors.NewUpstreamError("transcriber failed", err)
	}
	if !done {
		return nil, apperrors.NewUpstreamError("transcriber exited before finishing", nil)
	}
	if skipped > 0 {
		utils.GetLogger().Debug("transcriber wrote non-JSON lines", map[string]interface{}{"lines": skipped})
	}

	result.Text = transcript.Assemble(result.Segments)
	if result.Segments == nil {
		result.Segments = []models.TimedSegment{}
	}
	return &result, nil
}
