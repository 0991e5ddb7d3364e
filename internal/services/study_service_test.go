package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/models"
)

func TestGenerateArtifactStoresCleanJSON(t *testing.T) {
	lessons := newTestLessons(t)
	fake := &fakeCompleter{reply: "Here is your quiz:\n```json\n{\"questions\": [{\"question\": \"What is a quantum?\"}]}\n```\nGood luck!"}
	svc := NewStudyService(fake, lessons, newTestCatalogue(t), nil)
	ctx := context.Background()

	l, _ := lessons.Create(ctx, CreateLessonRequest{
		Title:      "Scheduling",
		Transcript: "Round robin uses a time quantum.",
		Outcomes:   []string{"Explain round robin", " "},
	})

	body, err := svc.Generate(ctx, l.ID, models.ArtifactQuiz)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(body) != `{"questions":[{"question":"What is a quantum?"}]}` {
		t.Errorf("body = %s", body)
	}
	if !fake.lastReq.JSONMode || !strings.Contains(fake.lastReq.Prompt, "Explain round robin") {
		t.Errorf("request = %+v", fake.lastReq)
	}

	stored, err := svc.Get(ctx, l.ID, models.ArtifactQuiz)
	if err != nil || string(stored) != string(body) {
		t.Errorf("Get = %s, %v", stored, err)
	}
	if _, err := svc.Get(ctx, l.ID, models.ArtifactMindMap); !apperrors.IsNotFoundError(err) {
		t.Errorf("missing artifact err = %v, want not found", err)
	}
}

func TestGenerateArtifactValidation(t *testing.T) {
	lessons := newTestLessons(t)
	fake := &fakeCompleter{reply: "{}"}
	svc := NewStudyService(fake, lessons, newTestCatalogue(t), nil)
	ctx := context.Background()
	l, _ := lessons.Create(ctx, CreateLessonRequest{Title: "Empty"})

	if _, err := svc.Generate(ctx, l.ID, models.ArtifactKind("poem")); !apperrors.IsValidationError(err) {
		t.Errorf("unknown kind err = %v, want validation", err)
	}
	if _, err := svc.Generate(ctx, l.ID, models.ArtifactSummary); !errors.Is(err, apperrors.ErrEmptyTranscript) {
		t.Errorf("empty transcript err = %v", err)
	}
	if fake.Calls() != 0 {
		t.Errorf("model calls = %d, want 0", fake.Calls())
	}
}

func TestGenerateArtifactUpstreamFailure(t *testing.T) {
	lessons := newTestLessons(t)
	fake := &fakeCompleter{err: errors.New("503 from vendor")}
	svc := NewStudyService(fake, lessons, newTestCatalogue(t), nil)
	ctx := context.Background()
	l, _ := lessons.Create(ctx, CreateLessonRequest{Title: "T", Transcript: "text"})

	if _, err := svc.Generate(ctx, l.ID, models.ArtifactSummary); !apperrors.IsUpstreamError(err) {
		t.Errorf("err = %v, want upstream", err)
	}
	got, _ := lessons.Get(ctx, l.ID)
	if len(got.Artifacts) != 0 {
		t.Errorf("artifacts = %v, want none", got.Artifacts)
	}
}

func TestDecodeArtifact(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{`[1, 2]`, `[1,2]`, nil},
		{"prefix {\"a\": \"b\"} suffix", `{"a":"b"}`, nil},
		{`no json here`, "", apperrors.ErrResponseParse},
		{`42`, "", apperrors.ErrResponseSchema},
	}
	for _, tt := range tests {
		got, err := DecodeArtifact(tt.in)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeArtifact(%q) err = %v, want %v", tt.in, err, tt.wantErr)
			}
			continue
		}
		if err != nil || string(got) != tt.want {
			t.Errorf("DecodeArtifact(%q) = %s, %v, want %s", tt.in, got, err, tt.want)
		}
	}
}
