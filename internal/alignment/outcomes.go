// internal/alignment/outcomes.go
package alignment

import (
	"strconv"
	"strings"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/models"
)

// NormalizeOutcomes trims raw outcome statements, drops blanks and assigns
// ids LO1..LOn by position in the surviving list.
func NormalizeOutcomes(raw []string) ([]models.LearningOutcome, error) {
	outcomes := make([]models.LearningOutcome, 0, len(raw))
	for _, r := range raw {
		title := strings.TrimSpace(r)
		if title == "" {
			continue
		}
		outcomes = append(outcomes, models.LearningOutcome{
			ID:    "LO" + strconv.Itoa(len(outcomes)+1),
			Title: title,
		})
	}
	if len(outcomes) == 0 {
		return nil, apperrors.EmptyOutcomesError()
	}
	return outcomes, nil
}
