// internal/deviation/analyzer.go
package deviation

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Corphon/LectureCompanion/internal/models"
)

const (
	slideChunkWords   = 220
	topicSlideChars   = 500
	maxTopicsReported = 8
	defaultTopicText  = "general lecture content"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}']+`)

var stopWords = toSet(`a an the and or but if then so because to of in on at for with without as is are was were be been being
i you he she it we they me my your our their this that these those here there`)

var fillers = toSet(`um uh erm hmm like okay ok right yeah yep yup kinda sort of basically actually literally`)

var banterHints = []string{
	"how are you", "guys", "everyone", "good morning", "good afternoon", "weekend", "coffee",
	"let's take a break", "break", "pause", "attendance", "zoom", "microphone", "can you hear",
	"exam", "midterm", "final", "project deadline", "homework", "assignment",
}

// Analyze compares transcript segments with the slide text. title feeds the
// topic vector together with the opening of the slides.
func Analyze(segments []models.TimedSegment, slideText, title string) *models.DeviationReport {
	chunks := splitIntoChunks(slideText, slideChunkWords)
	chunkVecs := make([]termVector, 0, len(chunks))
	for _, c := range chunks {
		chunkVecs = append(chunkVecs, vectorize(c))
	}
	topicVec := vectorize(topicText(title, slideText))

	counts := map[models.DeviationStatus]int{
		models.DeviationOnSlide:  0,
		models.DeviationExpanded: 0,
		models.DeviationOffSlide: 0,
		models.DeviationBanter:   0,
	}

	results := make([]models.SegmentDeviation, 0, len(segments))
	for i, seg := range segments {
		text := cleanWhitespace(seg.Text)
		vec := vectorize(text)

		best := 0.0
		for _, cv := range chunkVecs {
			if sim := cosine(vec, cv); sim > best {
				best = sim
			}
		}
		topic := cosine(vec, topicVec)
		banter := BanterScore(text)
		status, conf, reason := Classify(best, banter, topic)
		counts[status]++

		results = append(results, models.SegmentDeviation{
			Index:          i,
			Text:           text,
			Start:          seg.Start,
			End:            seg.End,
			Status:         status,
			Confidence:     round(conf, 3),
			Reason:         reason,
			SlideCoverage:  round(best, 4),
			TopicRelevance: round(topic, 4),
			BanterScore:    round(banter, 4),
		})
	}

	summary := models.DeviationSummary{
		Total:    len(results),
		Counts:   counts,
		Percents: make(map[models.DeviationStatus]int, len(counts)),
	}
	for status, n := range counts {
		if len(results) > 0 {
			summary.Percents[status] = int(math.Round(float64(n) * 100 / float64(len(results))))
		} else {
			summary.Percents[status] = 0
		}
	}
	summary.OverallScore = OverallScore(counts, len(results))
	summary.MissedTopics, summary.ExtraTopics = missedAndExtraTopics(results, slideText)
	summary.Interpretation = Interpret(summary.OverallScore)

	return &models.DeviationReport{
		Segments:  results,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}
}

// BanterScore rates how much a segment looks like small talk, from 0 to 1.
// Empty text scores 1.
func BanterScore(text string) float64 {
	lower := strings.ToLower(text)
	toks := tokenize(lower)
	if len(toks) == 0 {
		return 1
	}

	short := 0.0
	if len(toks) < 6 {
		short = 1
	}

	fillerCount, contentCount := 0, 0
	for _, w := range toks {
		_, isFiller := fillers[w]
		_, isStop := stopWords[w]
		if isFiller {
			fillerCount++
		}
		if !isFiller && !isStop {
			contentCount++
		}
	}
	fillerRatio := float64(fillerCount) / float64(len(toks))
	lowContent := 0.0
	if float64(contentCount)/float64(len(toks)) < 0.35 {
		lowContent = 1
	}

	hints := 0
	for _, h := range banterHints {
		if strings.Contains(lower, h) {
			hints++
		}
	}
	hintScore := math.Min(1, float64(hints)/2)

	score := 0.35*short + 0.30*math.Min(1, fillerRatio*3) + 0.25*lowContent + 0.10*hintScore
	return clamp01(score)
}

// Classify maps slide similarity, banter score and topic similarity to a status.
func Classify(sim, banter, topic float64) (models.DeviationStatus, float64, string) {
	switch {
	case banter >= 0.65 && sim < 0.25 && topic < 0.30:
		return models.DeviationBanter, 0.85,
			fmt.Sprintf("Low slide match (sim=%.2f) with banter cues (score=%.2f)", sim, banter)
	case sim >= 0.60:
		return models.DeviationOnSlide, math.Min(0.95, 0.60+sim/2),
			fmt.Sprintf("High slide match (sim=%.2f)", sim)
	case sim >= 0.35:
		return models.DeviationExpanded, 0.75,
			fmt.Sprintf("Medium slide match (sim=%.2f), likely elaboration", sim)
	case topic >= 0.30:
		return models.DeviationExpanded, 0.70,
			fmt.Sprintf("Low slide match (sim=%.2f) but on topic (topic=%.2f)", sim, topic)
	case sim < 0.20 && banter >= 0.45:
		return models.DeviationBanter, 0.75,
			fmt.Sprintf("Very low slide match (sim=%.2f) with social or filler patterns", sim)
	case topic < 0.25:
		return models.DeviationOffSlide, 0.70,
			fmt.Sprintf("Low slide match (sim=%.2f) and low topic match (topic=%.2f)", sim, topic)
	default:
		return models.DeviationExpanded, 0.60,
			fmt.Sprintf("Borderline slide match (sim=%.2f), topic relevant (topic=%.2f)", sim, topic)
	}
}

// OverallScore weights statuses 100/80/40/10 into a 0-100 score. No
// segments scores 50.
func OverallScore(counts map[models.DeviationStatus]int, total int) int {
	if total <= 0 {
		return 50
	}
	weighted := counts[models.DeviationOnSlide]*100 +
		counts[models.DeviationExpanded]*80 +
		counts[models.DeviationOffSlide]*40 +
		counts[models.DeviationBanter]*10
	score := int(math.Round(float64(weighted) / float64(total)))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Interpret describes an overall score.
func Interpret(score int) string {
	switch {
	case score >= 80:
		return "Excellent alignment: the lecture follows the slides closely"
	case score >= 60:
		return "Good alignment: the lecture stays on topic with some elaboration"
	case score >= 40:
		return "Moderate alignment: noticeable drift from the slides"
	default:
		return "Low alignment: the lecture departs from the slides substantially"
	}
}

// KeyPhrases returns the topN most frequent content words longer than two
// characters. Ties keep first-occurrence order.
func KeyPhrases(text string, topN int) []string {
	type entry struct {
		word  string
		count int
		first int
	}
	byWord := map[string]*entry{}
	order := 0
	for _, w := range tokenize(strings.ToLower(text)) {
		if !isContent(w) || utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if e, ok := byWord[w]; ok {
			e.count++
			continue
		}
		byWord[w] = &entry{word: w, count: 1, first: order}
		order++
	}

	entries := make([]*entry, 0, len(byWord))
	for _, e := range byWord {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].first < entries[j].first
	})

	if len(entries) > topN {
		entries = entries[:topN]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.word
	}
	return out
}

// missedAndExtraTopics lists slide phrases the lecture never covered and
// phrases from off-slide segments the slides never mention.
func missedAndExtraTopics(segments []models.SegmentDeviation, slideText string) ([]string, []string) {
	var onTexts, offTexts []string
	for _, s := range segments {
		switch s.Status {
		case models.DeviationOnSlide, models.DeviationExpanded:
			onTexts = append(onTexts, s.Text)
		case models.DeviationOffSlide:
			offTexts = append(offTexts, s.Text)
		}
	}

	slidePhrases := KeyPhrases(slideText, 20)
	covered := toSet(strings.Join(KeyPhrases(strings.Join(onTexts, " "), 30), " "))
	slideSet := toSet(strings.Join(slidePhrases, " "))

	missed := make([]string, 0, maxTopicsReported)
	for _, p := range slidePhrases {
		if _, ok := covered[p]; !ok && len(missed) < maxTopicsReported {
			missed = append(missed, p)
		}
	}
	extra := make([]string, 0, maxTopicsReported)
	for _, p := range KeyPhrases(strings.Join(offTexts, " "), 15) {
		if _, ok := slideSet[p]; !ok && len(extra) < maxTopicsReported {
			extra = append(extra, p)
		}
	}
	return missed, extra
}

type termVector map[string]float64

func vectorize(text string) termVector {
	v := termVector{}
	for _, w := range tokenize(strings.ToLower(text)) {
		if isContent(w) {
			v[w]++
		}
	}
	return v
}

func cosine(a, b termVector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k, x := range a {
		na += x * x
		if y, ok := b[k]; ok {
			dot += x * y
		}
	}
	for _, y := range b {
		nb += y * y
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom <= 1e-9 {
		return 0
	}
	return dot / denom
}

func splitIntoChunks(text string, words int) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return []string{""}
	}
	var chunks []string
	for i := 0; i < len(fields); i += words {
		end := i + words
		if end > len(fields) {
			end = len(fields)
		}
		chunks = append(chunks, strings.Join(fields[i:end], " "))
	}
	return chunks
}

func topicText(title, slideText string) string {
	opening := slideText
	if utf8.RuneCountInString(opening) > topicSlideChars {
		opening = string([]rune(opening)[:topicSlideChars])
	}
	t := strings.TrimSpace(strings.TrimSpace(title) + " " + opening)
	if t == "" {
		return defaultTopicText
	}
	return t
}

func tokenize(s string) []string {
	return tokenPattern.FindAllString(s, -1)
}

func isContent(w string) bool {
	if _, ok := stopWords[w]; ok {
		return false
	}
	_, ok := fillers[w]
	return !ok
}

func cleanWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func toSet(words string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
