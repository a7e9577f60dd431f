// Package audio normalizes voice-note encodings. Signal voice notes
// arrive as AAC in an MP4 container, which most transcription
// backends reject, so they get re-encoded with ffmpeg first.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

const defaultTranscodeTimeout = 60 * time.Second

// Transcoder converts audio files to a target format by invoking an
// external encoder process.
type Transcoder struct {
	ffmpegPath string
	timeout    time.Duration
	logger     *slog.Logger
}

// TranscoderConfig configures the transcoder.
type TranscoderConfig struct {
	FFmpegPath string // defaults to "ffmpeg" on PATH
	Timeout    time.Duration
	Logger     *slog.Logger
}

// NewTranscoder creates a transcoder.
func NewTranscoder(cfg TranscoderConfig) *Transcoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTranscodeTimeout
	}
	return &Transcoder{
		ffmpegPath: cfg.FFmpegPath,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
}

// Transcode re-encodes inputPath into a temp file with the given
// extension (e.g. "mp3") and returns its path. The caller owns the
// output file and must remove it. The encoder run is bounded by the
// configured timeout; failure scope is the single attachment being
// processed, never the whole bridge.
func (t *Transcoder) Transcode(ctx context.Context, inputPath, targetExt string) (string, error) {
	out, err := os.CreateTemp("", "signalbridge-audio-*."+targetExt)
	if err != nil {
		return "", fmt.Errorf("create transcode output: %w", err)
	}
	outPath := out.Name()
	out.Close()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffmpegPath, "-y", "-i", inputPath, outPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outPath)
		if ctx.Err() != nil {
			return "", fmt.Errorf("transcode timed out or cancelled")
		}
		return "", fmt.Errorf("ffmpeg: %w: %s", err, tail(output, 512))
	}

	t.logger.Debug("transcoded audio", "input", inputPath, "output", outPath)
	return outPath, nil
}

// tail returns the last n bytes of encoder output: ffmpeg puts the
// actual error at the end of a long banner.
func tail(output []byte, n int) string {
	if len(output) > n {
		output = output[len(output)-n:]
	}
	return string(output)
}
