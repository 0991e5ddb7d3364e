package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/utils"
)

const twoSegmentReply = "```json\n" + `{"segments":[
  {"index":0,"lo_links":[{"lo_id":"LO1","lo_title":"Explain round robin","confidence":1.4}]},
  {"index":1,"lo_links":[]}
]}` + "\n```"

func newAlignmentFixture(t *testing.T, reply string) (*AlignmentService, *LessonService, *fakeCompleter) {
	t.Helper()
	lessons := newTestLessons(t)
	fake := &fakeCompleter{reply: reply}
	svc := NewAlignmentService(fake, lessons, newTestCatalogue(t), utils.NewMetricsCollector(false))
	return svc, lessons, fake
}

func TestAlignLessonStoresResult(t *testing.T) {
	svc, lessons, fake := newAlignmentFixture(t, twoSegmentReply)
	ctx := context.Background()
	l, _ := lessons.Create(ctx, CreateLessonRequest{
		Title:      "Scheduling",
		Transcript: "Round robin uses a time quantum.\n\nPriority scheduling can starve.",
		SlideText:  "Round robin; priority",
		Outcomes:   []string{" Explain round robin ", ""},
	})

	result, err := svc.AlignLesson(ctx, l.ID, AlignRequest{})
	if err != nil {
		t.Fatalf("AlignLesson: %v", err)
	}
	if fake.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", fake.Calls())
	}
	if len(result.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(result.Segments))
	}
	links := result.Segments[0].LoLinks
	if len(links) != 1 || links[0].Confidence != 1 {
		t.Errorf("segment 0 links = %+v, want one clamped link", links)
	}
	if !strings.Contains(fake.lastReq.Prompt, "Round robin; priority") {
		t.Error("slide text not passed as hint")
	}

	stored, err := svc.GetAlignment(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetAlignment: %v", err)
	}
	if len(stored.Segments) != 2 || stored.Outcomes[0].ID != "LO1" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestAlignLessonOverridesOutcomes(t *testing.T) {
	svc, lessons, _ := newAlignmentFixture(t, twoSegmentReply)
	ctx := context.Background()
	l, _ := lessons.Create(ctx, CreateLessonRequest{Title: "T", Transcript: "a\n\nb"})

	hint := ""
	if _, err := svc.AlignLesson(ctx, l.ID, AlignRequest{Outcomes: []string{"Explain round robin"}, SlideHint: &hint}); err != nil {
		t.Fatalf("AlignLesson: %v", err)
	}
	got, _ := lessons.Get(ctx, l.ID)
	if len(got.Outcomes) != 1 || got.Outcomes[0] != "Explain round robin" {
		t.Errorf("outcomes = %v, want the override persisted", got.Outcomes)
	}
}

func TestAlignLessonFailuresWriteNothing(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		outcomes []string
		check    func(error) bool
		calls    int
	}{
		{"empty outcomes", twoSegmentReply, []string{" ", ""}, func(err error) bool { return errors.Is(err, apperrors.ErrEmptyOutcomes) }, 0},
		{"prose reply", "I cannot help with that.", []string{"x"}, func(err error) bool { return errors.Is(err, apperrors.ErrResponseParse) }, 1},
		{"wrong shape", `{"results":[]}`, []string{"x"}, func(err error) bool { return errors.Is(err, apperrors.ErrResponseSchema) }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, lessons, fake := newAlignmentFixture(t, tt.reply)
			ctx := context.Background()
			l, _ := lessons.Create(ctx, CreateLessonRequest{Title: "T", Transcript: "a\n\nb", Outcomes: tt.outcomes})

			_, err := svc.AlignLesson(ctx, l.ID, AlignRequest{})
			if !tt.check(err) {
				t.Fatalf("err = %v", err)
			}
			if fake.Calls() != tt.calls {
				t.Errorf("model calls = %d, want %d", fake.Calls(), tt.calls)
			}
			got, _ := lessons.Get(ctx, l.ID)
			if got.Alignment != nil {
				t.Error("alignment written after failure")
			}
		})
	}
}

func TestAlignLessonEmptyTranscript(t *testing.T) {
	svc, lessons, fake := newAlignmentFixture(t, twoSegmentReply)
	ctx := context.Background()
	l, _ := lessons.Create(ctx, CreateLessonRequest{Title: "T", Transcript: " \n\n ", Outcomes: []string{"x"}})

	_, err := svc.AlignLesson(ctx, l.ID, AlignRequest{})
	if !errors.Is(err, apperrors.ErrEmptyTranscript) {
		t.Fatalf("err = %v, want empty transcript", err)
	}
	if fake.Calls() != 0 {
		t.Errorf("model calls = %d, want 0", fake.Calls())
	}
}

func TestAlignTextIsStateless(t *testing.T) {
	svc, _, _ := newAlignmentFixture(t, twoSegmentReply)
	result, err := svc.AlignText(context.Background(), AlignTextRequest{
		Transcript: "one\n\ntwo",
		Outcomes:   []string{"Explain round robin"},
	})
	if err != nil {
		t.Fatalf("AlignText: %v", err)
	}
	if len(result.Segments) != 2 || result.Segments[1].LoLinks == nil {
		t.Errorf("result = %+v", result)
	}
}

func TestGetAlignmentMissing(t *testing.T) {
	svc, lessons, _ := newAlignmentFixture(t, twoSegmentReply)
	l, _ := lessons.Create(context.Background(), CreateLessonRequest{Title: "T"})
	if _, err := svc.GetAlignment(context.Background(), l.ID); !apperrors.IsNotFoundError(err) {
		t.Errorf("err = %v, want not found", err)
	}
}
