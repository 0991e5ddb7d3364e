package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type record struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestSaveAndLoadJSON(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}

	if err := s.SaveJSONFile("lessons/a", "lesson.json", record{ID: "a", Count: 1}); err != nil {
		t.Fatalf("SaveJSONFile: %v", err)
	}
	var got record
	if err := s.LoadJSONFile("lessons/a", "lesson.json", &got); err != nil {
		t.Fatalf("LoadJSONFile: %v", err)
	}
	if got.ID != "a" || got.Count != 1 {
		t.Errorf("got %+v", got)
	}

	// A write through the storage invalidates the cached copy.
	if err := s.SaveJSONFile("lessons/a", "lesson.json", record{ID: "a", Count: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadJSONFile("lessons/a", "lesson.json", &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 2 {
		t.Errorf("Count = %d, want 2", got.Count)
	}

	entries, _ := os.ReadDir(filepath.Join(s.BaseDir, "lessons", "a"))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, _ := NewFileStorage(t.TempDir())
	_, err := s.LoadTextFile("lessons/none", "lesson.json")
	if !errors.Is(err, ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
	if s.FileExists("lessons/none", "lesson.json") {
		t.Error("FileExists = true for missing file")
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	s, _ := NewFileStorage(t.TempDir())
	if err := s.SaveTextFile("../outside", "x.txt", []byte("x")); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
	if _, err := s.LoadTextFile("lessons", "../../etc/passwd"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
	if err := s.DeleteDir(""); err == nil {
		t.Fatal("expected refusal to delete root")
	}
}

func TestListAndDeleteDirs(t *testing.T) {
	s, _ := NewFileStorage(t.TempDir())
	for _, id := range []string{"b", "a", "c"} {
		if err := s.SaveTextFile("lessons/"+id, "lesson.json", []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}

	dirs, err := s.ListDirs("lessons")
	if err != nil {
		t.Fatalf("ListDirs: %v", err)
	}
	if strings.Join(dirs, ",") != "a,b,c" {
		t.Errorf("dirs = %v", dirs)
	}

	if _, err := s.LoadTextFile("lessons/b", "lesson.json"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDir("lessons/b"); err != nil {
		t.Fatalf("DeleteDir: %v", err)
	}
	if _, err := s.LoadTextFile("lessons/b", "lesson.json"); !errors.Is(err, ErrNotExist) {
		t.Errorf("deleted file still readable: %v", err)
	}
	if err := s.DeleteDir("lessons/b"); !errors.Is(err, ErrNotExist) {
		t.Errorf("second delete err = %v, want ErrNotExist", err)
	}

	empty, err := s.ListDirs("nothing-here")
	if err != nil || len(empty) != 0 {
		t.Errorf("ListDirs(missing) = %v, %v", empty, err)
	}
}

func TestSaveStreamEnforcesLimit(t *testing.T) {
	s, _ := NewFileStorage(t.TempDir())

	n, err := s.SaveStream("uploads", "audio.wav", strings.NewReader("12345"), 10)
	if err != nil || n != 5 {
		t.Fatalf("SaveStream = %d, %v", n, err)
	}
	if _, err := s.SaveStream("uploads", "big.wav", strings.NewReader(strings.Repeat("x", 11)), 10); err == nil {
		t.Fatal("expected limit error")
	}
	if s.FileExists("uploads", "big.wav") {
		t.Error("oversized upload was kept")
	}
}

func TestConcurrentWritesStayValid(t *testing.T) {
	s, _ := NewFileStorage(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.SaveJSONFile("lessons/x", "lesson.json", record{ID: "x", Count: i}); err != nil {
				t.Errorf("save %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	var got record
	if err := s.LoadJSONFile("lessons/x", "lesson.json", &got); err != nil {
		t.Fatalf("file corrupted by concurrent writes: %v", err)
	}
}

func TestStartCacheCleanupStops(t *testing.T) {
	s, _ := NewFileStorage(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	s.StartCacheCleanup(ctx)
	cancel()
}
