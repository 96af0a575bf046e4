// Package ffmpeg renders a still image plus an audio track into an H.264
// video by shelling out to ffmpeg/ffprobe.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/port"
)

type Renderer struct {
	ffmpegPath  string
	ffprobePath string
}

func NewRenderer() *Renderer {
	return &Renderer{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
	}
}

// NewRendererWithTools overrides the binary locations for non-PATH installs.
func NewRendererWithTools(ffmpegPath, ffprobePath string) *Renderer {
	return &Renderer{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// Render produces outputPath from one image and one audio file. The output
// duration is the probed audio duration: the deliverable is audio with a
// static visual, so over- or underrunning the audio is a correctness bug.
func (r *Renderer) Render(ctx context.Context, audioPath, imagePath, outputPath string) (string, error) {
	duration, err := r.probeDuration(ctx, audioPath)
	if err != nil {
		return "", err
	}

	args := renderArgs(audioPath, imagePath, outputPath, duration)
	cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &domain.RenderError{Output: stderr.String(), Err: err}
	}
	return outputPath, nil
}

// probeDuration reads the audio duration in seconds from ffprobe's format
// section. An unparsable duration is a content-validation error; it is never
// silently defaulted to zero.
func (r *Renderer) probeDuration(ctx context.Context, audioPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, r.ffprobePath, "-v", "error", "-show_format", audioPath)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", audioPath, err, stderr.String())
	}
	return parseDuration(string(output))
}

// parseDuration scans ffprobe -show_format output for the duration=<seconds>
// line.
func parseDuration(output string) (float64, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		value, found := strings.CutPrefix(line, "duration=")
		if !found {
			continue
		}
		duration, err := strconv.ParseFloat(value, 64)
		if err != nil || duration <= 0 {
			return 0, &domain.ValidationError{Field: "audio", Message: fmt.Sprintf("unparsable duration %q", value)}
		}
		return duration, nil
	}
	return 0, &domain.ValidationError{Field: "audio", Message: "no duration in probe output"}
}

// renderArgs builds the ffmpeg invocation: single-image loop at one frame per
// second, H.264 with lossless quantization and the fastest preset (this is a
// batch pipeline, throughput beats compression ratio), output truncated to
// the probed audio duration. The scale filter rounds both dimensions up to
// the nearest multiple of 2, required by yuv420p chroma subsampling.
func renderArgs(audioPath, imagePath, outputPath string, duration float64) []string {
	return []string{
		"-loop", "1",
		"-framerate", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-vf", "scale=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "0",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
		"-y", outputPath,
	}
}

var _ port.Renderer = (*Renderer)(nil)
