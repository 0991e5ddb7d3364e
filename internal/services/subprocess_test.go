package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
)

// runHelperProcess plays the external transcriber or OCR command when the
// test binary re-executes itself.
func runHelperProcess() {
	input := ""
	if len(os.Args) > 1 {
		input = os.Args[len(os.Args)-1]
	}
	switch os.Getenv("LC_HELPER_MODE") {
	case "transcribe-ok":
		fmt.Println(`{"type":"meta","duration":20,"model":"small"}`)
		fmt.Println("loading model weights...")
		fmt.Println(`{"type":"segment","start":0,"end":9.5,"text":" Welcome to ` + input + `. ","progress":0.475}`)
		fmt.Println(`{"type":"segment","start":9.5,"end":20,"text":"Today we cover paging.","progress":1.0}`)
		fmt.Println(`{"type":"done","progress":1.0}`)
	case "transcribe-nodone":
		fmt.Println(`{"type":"meta","duration":20}`)
		fmt.Println(`{"type":"segment","start":0,"end":1,"text":"cut off","progress":0.05}`)
	case "fail":
		fmt.Fprintln(os.Stderr, "model file missing")
		os.Exit(3)
	case "sleep":
		time.Sleep(30 * time.Second)
	case "ocr-ok":
		fmt.Println("[*] Checking Tesseract paths...")
		fmt.Println("===OCR_START===")
		fmt.Println("--- Slide 1 (Extracted) ---")
		fmt.Println("Virtual Memory")
		fmt.Println("•")
		fmt.Println("Demand paging")
		fmt.Println("")
		fmt.Println("")
		fmt.Println("")
		fmt.Println("12")
		fmt.Println("Slide 3")
		fmt.Println("6.2")
		fmt.Println("Page faults")
		fmt.Println("===OCR_END===")
	case "ocr-nomarkers":
		fmt.Println("Unsupported file format.")
	}
	os.Exit(0)
}

func helperCommand(t *testing.T, mode string) string {
	t.Helper()
	t.Setenv("LC_HELPER_PROCESS", "1")
	t.Setenv("LC_HELPER_MODE", mode)
	return "'" + os.Args[0] + "'"
}

func newTranscriber(t *testing.T, command string) *CommandTranscriber {
	t.Helper()
	tr, err := NewCommandTranscriber(command)
	if err != nil {
		t.Fatalf("NewCommandTranscriber: %v", err)
	}
	return tr
}

func newOCR(t *testing.T, command string) *CommandOCR {
	t.Helper()
	o, err := NewCommandOCR(command)
	if err != nil {
		t.Fatalf("NewCommandOCR: %v", err)
	}
	return o
}

func TestCommandTranscriberAssemblesSegments(t *testing.T) {
	tr := newTranscriber(t, helperCommand(t, "transcribe-ok"))

	var progress []int
	result, err := tr.Transcribe(context.Background(), "lecture.mp4", func(p int, msg string) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	want := "[00:00:00 – 00:00:09] Welcome to lecture.mp4.\n[00:00:09 – 00:00:20] Today we cover paging."
	if result.Text != want {
		t.Errorf("text =\n%q\nwant\n%q", result.Text, want)
	}
	if result.Duration != 20 || len(result.Segments) != 2 {
		t.Errorf("result = %+v", result)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 99 {
		t.Errorf("progress = %v, want to end at 99", progress)
	}
}

func TestCommandTranscriberErrors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		_, err := newTranscriber(t, "").Transcribe(context.Background(), "x", nil)
		if !apperrors.IsType(err, apperrors.ErrorTypeUnavailable) {
			t.Errorf("err = %v, want unavailable", err)
		}
	})
	t.Run("no done event", func(t *testing.T) {
		_, err := newTranscriber(t, helperCommand(t, "transcribe-nodone")).Transcribe(context.Background(), "x", nil)
		if !apperrors.IsUpstreamError(err) {
			t.Errorf("err = %v, want upstream", err)
		}
	})
	t.Run("non-zero exit", func(t *testing.T) {
		_, err := newTranscriber(t, helperCommand(t, "fail")).Transcribe(context.Background(), "x", nil)
		if !apperrors.IsUpstreamError(err) || !strings.Contains(err.Error(), "model file missing") {
			t.Errorf("err = %v, want upstream with stderr tail", err)
		}
	})
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := newTranscriber(t, helperCommand(t, "sleep")).Transcribe(ctx, "x", nil)
		if !apperrors.IsType(err, apperrors.ErrorTypeCancelled) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want cancelled", err)
		}
		if time.Since(start) > 10*time.Second {
			t.Error("subprocess was not killed on cancellation")
		}
	})
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"python3 run.py --lang en", []string{"python3", "run.py", "--lang", "en"}},
		{`"/opt/My Tools/whisper" --model 'small en'`, []string{"/opt/My Tools/whisper", "--model", "small en"}},
		{`/opt/My\ Tools/ocr.sh`, []string{"/opt/My Tools/ocr.sh"}},
	}
	for _, tt := range tests {
		got, err := splitCommand(tt.in)
		if err != nil {
			t.Errorf("splitCommand(%q): %v", tt.in, err)
			continue
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("splitCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{`run.py "unclosed`, "run.py | tee log"} {
		if _, err := splitCommand(bad); err == nil {
			t.Errorf("splitCommand(%q) accepted", bad)
		}
	}
	if _, err := NewCommandOCR(`ocr "unclosed`); !apperrors.IsValidationError(err) {
		t.Errorf("NewCommandOCR err = %v, want validation", err)
	}
}

func TestCommandOCRExtractsMarkedText(t *testing.T) {
	ocr := newOCR(t, helperCommand(t, "ocr-ok"))
	text, err := ocr.ExtractText(context.Background(), "slides.pdf")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	want := "--- Slide 1 (Extracted) ---\nVirtual Memory\n• Demand paging\n\nPage faults"
	if text != want {
		t.Errorf("text =\n%q\nwant\n%q", text, want)
	}
}

func TestCommandOCRWithoutMarkers(t *testing.T) {
	_, err := newOCR(t, helperCommand(t, "ocr-nomarkers")).ExtractText(context.Background(), "x.docx")
	if !apperrors.IsUpstreamError(err) {
		t.Errorf("err = %v, want upstream", err)
	}
}

func TestCleanOCRText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"page numbers", "Intro\n15\n  7.3 \nBody", "Intro\nBody"},
		{"slide labels", "slide 11\nSLIDE 2\nSlide deck notes", "Slide deck notes"},
		{"orphan bullets", "-\nfirst\n*\n  second", "- first\n* second"},
		{"blank runs", "a\n\n\n\n\nb\r\n\r\n\r\nc", "a\n\nb\n\nc"},
		{"image markers", "x\n[[[IMAGE_ANALYSIS_REQUIRED:/tmp/a.png]]]\ny", "x\ny"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanOCRText(tt.in); got != tt.want {
				t.Errorf("CleanOCRText = %q, want %q", got, tt.want)
			}
		})
	}
}
