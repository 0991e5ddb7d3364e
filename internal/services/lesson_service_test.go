package services

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/models"
)

func TestLessonCRUD(t *testing.T) {
	lessons := newTestLessons(t)
	ctx := context.Background()

	if _, err := lessons.Create(ctx, CreateLessonRequest{Title: "  "}); !apperrors.IsValidationError(err) {
		t.Fatalf("blank title err = %v, want validation", err)
	}

	created, err := lessons.Create(ctx, CreateLessonRequest{
		Title:      " CPU Scheduling ",
		Transcript: "Round robin.\n\nPriority.",
		Outcomes:   []string{"Explain round robin"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Title != "CPU Scheduling" {
		t.Errorf("title = %q", created.Title)
	}

	got, err := lessons.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Transcript != created.Transcript || len(got.Outcomes) != 1 {
		t.Errorf("Get = %+v", got)
	}

	if err := lessons.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := lessons.Get(ctx, created.ID); !apperrors.IsNotFoundError(err) {
		t.Errorf("Get after delete err = %v, want not found", err)
	}
	if err := lessons.Delete(ctx, created.ID); !apperrors.IsNotFoundError(err) {
		t.Errorf("second Delete err = %v, want not found", err)
	}
}

func TestLessonRejectsPathLikeIDs(t *testing.T) {
	lessons := newTestLessons(t)
	for _, id := range []string{"../etc", "", "lessons/x"} {
		if _, err := lessons.Get(context.Background(), id); !apperrors.IsNotFoundError(err) {
			t.Errorf("Get(%q) err = %v, want not found", id, err)
		}
	}
}

func TestLessonUpdateDropsStaleAlignment(t *testing.T) {
	lessons := newTestLessons(t)
	ctx := context.Background()
	l, _ := lessons.Create(ctx, CreateLessonRequest{Title: "T", Transcript: "old"})

	if err := lessons.SaveAlignment(ctx, l.ID, &models.AlignmentResult{}); err != nil {
		t.Fatalf("SaveAlignment: %v", err)
	}

	title := "Renamed"
	updated, err := lessons.Update(ctx, l.ID, models.LessonPatch{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Alignment == nil {
		t.Error("title change should keep the alignment")
	}

	transcript := "new"
	updated, err = lessons.Update(ctx, l.ID, models.LessonPatch{Transcript: &transcript})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Alignment != nil {
		t.Error("transcript change should drop the alignment")
	}
	if !updated.UpdatedAt.After(l.UpdatedAt) && !updated.UpdatedAt.Equal(l.UpdatedAt) {
		t.Error("UpdatedAt moved backwards")
	}

	empty := " "
	if _, err := lessons.Update(ctx, l.ID, models.LessonPatch{Title: &empty}); !apperrors.IsValidationError(err) {
		t.Errorf("empty title err = %v, want validation", err)
	}
}

func TestLessonListNewestFirst(t *testing.T) {
	lessons := newTestLessons(t)
	ctx := context.Background()
	first, _ := lessons.Create(ctx, CreateLessonRequest{Title: "first"})
	time.Sleep(5 * time.Millisecond)
	second, _ := lessons.Create(ctx, CreateLessonRequest{Title: "second"})

	list, err := lessons.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("List = %+v", list)
	}
}

func TestSaveArtifactAndAlignmentOverwrite(t *testing.T) {
	lessons := newTestLessons(t)
	ctx := context.Background()
	l, _ := lessons.Create(ctx, CreateLessonRequest{Title: "T"})

	for i := 1; i <= 2; i++ {
		result := &models.AlignmentResult{Model: strings.Repeat("m", i)}
		if err := lessons.SaveAlignment(ctx, l.ID, result); err != nil {
			t.Fatalf("SaveAlignment: %v", err)
		}
	}
	if err := lessons.SaveArtifact(ctx, l.ID, models.ArtifactQuiz, json.RawMessage(`{"questions":[]}`)); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	got, _ := lessons.Get(ctx, l.ID)
	if got.Alignment == nil || got.Alignment.Model != "mm" {
		t.Errorf("alignment = %+v, want the second one", got.Alignment)
	}
	if string(got.Artifacts[models.ArtifactQuiz]) != `{"questions":[]}` {
		t.Errorf("quiz = %s", got.Artifacts[models.ArtifactQuiz])
	}
}

func TestMutateSkipsWriteWhenCancelled(t *testing.T) {
	lessons := newTestLessons(t)
	l, _ := lessons.Create(context.Background(), CreateLessonRequest{Title: "T"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := lessons.SaveAlignment(ctx, l.ID, &models.AlignmentResult{})
	if !apperrors.IsType(err, apperrors.ErrorTypeCancelled) {
		t.Fatalf("err = %v, want cancelled", err)
	}
	got, _ := lessons.Get(context.Background(), l.ID)
	if got.Alignment != nil {
		t.Error("alignment written despite cancellation")
	}
}

func TestSaveUpload(t *testing.T) {
	lessons := newTestLessons(t)
	ctx := context.Background()
	l, _ := lessons.Create(ctx, CreateLessonRequest{Title: "T"})

	path, err := lessons.SaveUpload(ctx, l.ID, "../../slides.pdf", strings.NewReader("pdf-bytes"), 100)
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if !strings.HasSuffix(path, "-slides.pdf") || !strings.Contains(path, l.ID) {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "pdf-bytes" {
		t.Errorf("read upload = %q, %v", data, err)
	}

	_, err = lessons.SaveUpload(ctx, l.ID, "big.mp4", strings.NewReader(strings.Repeat("x", 101)), 100)
	if !apperrors.IsValidationError(err) {
		t.Errorf("oversized err = %v, want validation", err)
	}
}
