// internal/services/ocr_service.go
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
)

const (
	ocrStartMarker = "===OCR_START==="
	ocrEndMarker   = "===OCR_END==="
)

var (
	ocrNoiseLines = []*regexp.Regexp{
		regexp.MustCompile(`^\s*\d+\.\d+\s*$`),
		regexp.MustCompile(`^\s*\d+\s*$`),
		regexp.MustCompile(`(?i)^\s*slide \d+\s*$`),
		regexp.MustCompile(`^\s*\[\[\[IMAGE_ANALYSIS_REQUIRED:.*\]\]\]\s*$`),
	}
	orphanBullet = regexp.MustCompile(`(?m)^\s*([•\-\*])\s*\n\s*(.+)`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

// OcrService extracts slide text from a PDF or image.
type OcrService interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// CommandOCR runs an external OCR command with the file path as last
// argument and reads the text between the OCR markers on stdout.
type CommandOCR struct {
	argv []string
}

// NewCommandOCR parses a command line such as "python3 ocr_service.py".
func NewCommandOCR(command string) (*CommandOCR, error) {
	argv, err := splitCommand(command)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid ocr command", err)
	}
	return &CommandOCR{argv: argv}, nil
}

// ExtractText runs the command and returns cleaned text.
func (o *CommandOCR) ExtractText(ctx context.Context, path string) (string, error) {
	if len(o.argv) == 0 {
		return "", apperrors.NewUnavailableError("ocr is not configured", ErrCommandNotConfigured)
	}

	var lines []string
	argv := append(append([]string{}, o.argv...), path)
	err := runLines(ctx, argv, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.NewAppError(apperrors.ErrorTypeCancelled, "ocr cancelled", err)
		}
		return "", apperrors.NewUpstreamError("ocr command failed", err)
	}

	raw, ok := betweenMarkers(lines)
	if !ok {
		return "", apperrors.NewUpstreamError("ocr output has no text markers", nil)
	}
	return CleanOCRText(raw), nil
}

// betweenMarkers returns the lines between the start and end markers.
// A missing end marker takes everything after the start marker.
func betweenMarkers(lines []string) (string, bool) {
	start := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == ocrStartMarker {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == ocrEndMarker {
			end = i
			break
		}
	}
	return strings.Join(lines[start+1:end], "\n"), true
}

// CleanOCRText drops page-number and slide-label lines, merges bullets
// stranded on their own line with the following line and collapses runs
// of blank lines.
func CleanOCRText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	kept := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		noise := false
		for _, re := range ocrNoiseLines {
			if re.MatchString(line) {
				noise = true
				break
			}
		}
		if !noise {
			kept = append(kept, line)
		}
	}
	text = strings.Join(kept, "\n")
	text = orphanBullet.ReplaceAllString(text, "$1 $2")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
