package utils

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLLMRequestOutcomes(t *testing.T) {
	m := NewMetricsCollector(false)

	m.RecordLLMRequest("openai", "gpt-4o-mini", 120, 2*time.Second, nil)
	m.RecordLLMRequest("openai", "gpt-4o-mini", 0, time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(m.llmRequests.WithLabelValues("openai", "ok")); got != 1 {
		t.Errorf("ok requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.llmRequests.WithLabelValues("openai", "error")); got != 1 {
		t.Errorf("error requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.llmTokens.WithLabelValues("openai", "gpt-4o-mini")); got != 120 {
		t.Errorf("tokens = %v, want 120", got)
	}
}

func TestJobGauge(t *testing.T) {
	m := NewMetricsCollector(false)
	m.JobStarted("transcribe")
	m.JobStarted("transcribe")
	m.JobFinished("transcribe", "completed")

	if got := testutil.ToFloat64(m.jobsActive.WithLabelValues("transcribe")); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.jobsFinished.WithLabelValues("transcribe", "completed")); got != 1 {
		t.Errorf("finished = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesAlignment(t *testing.T) {
	m := NewMetricsCollector(false)
	m.RecordAlignment("ok", 12, 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	for _, want := range []string{
		`lecture_companion_alignment_runs_total{outcome="ok"} 1`,
		`lecture_companion_alignment_segments_unmatched_total 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
