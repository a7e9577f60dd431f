package audio

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestTranscode_MissingEncoderFails(t *testing.T) {
	tr := NewTranscoder(TranscoderConfig{
		FFmpegPath: filepath.Join(t.TempDir(), "no-such-ffmpeg"),
		Logger:     testLogger(),
	})
	input := filepath.Join(t.TempDir(), "in.aac")
	if err := os.WriteFile(input, []byte("not really audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := tr.Transcode(context.Background(), input, "mp3")
	if err == nil {
		os.Remove(out)
		t.Fatal("expected error for missing encoder binary")
	}
}

func TestTranscode_FailureLeavesNoTempFile(t *testing.T) {
	tr := NewTranscoder(TranscoderConfig{
		FFmpegPath: "/nonexistent/ffmpeg",
		Logger:     testLogger(),
	})
	before := tempFileCount(t)
	_, err := tr.Transcode(context.Background(), "/nonexistent/input.aac", "mp3")
	if err == nil {
		t.Fatal("expected error")
	}
	if after := tempFileCount(t); after > before {
		t.Errorf("transcode failure leaked temp files: %d -> %d", before, after)
	}
}

func tempFileCount(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "signalbridge-audio-*"))
	if err != nil {
		t.Fatal(err)
	}
	return len(matches)
}
