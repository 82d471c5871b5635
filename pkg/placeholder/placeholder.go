// Package placeholder synthesizes stand-in media for assets that have no
// remote locator to download from.
package placeholder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/draftfix/pkg/bundle"
	"github.com/fulmenhq/draftfix/pkg/logger"
)

// Generator writes a synthetic asset of the given kind to destPath.
type Generator interface {
	Generate(ctx context.Context, kind bundle.Kind, destPath string) error
}

// ErrNotAvailable is returned when the ffmpeg binary cannot be found.
var ErrNotAvailable = errors.New("placeholder generator not available")

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() // #nosec G204 -- binary from config, args built here
}

// FFmpeg generates placeholders with ffmpeg's lavfi sources.
type FFmpeg struct {
	Path     string
	Duration time.Duration
	Width    int
	Height   int
	Run      Runner
}

// NewFFmpeg resolves path (a binary name or a file path) and returns a generator.
func NewFFmpeg(path string, duration time.Duration) (*FFmpeg, error) {
	if path == "" {
		path = "ffmpeg"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	return &FFmpeg{Path: resolved, Duration: duration}, nil
}

func (f *FFmpeg) seconds() string {
	d := f.Duration
	if d <= 0 {
		d = 5 * time.Second
	}
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func (f *FFmpeg) size() string {
	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 {
		w, h = 1920, 1080
	}
	return fmt.Sprintf("%dx%d", w, h)
}

// Args returns the ffmpeg arguments that render kind into out.
func (f *FFmpeg) Args(kind bundle.Kind, out string) ([]string, error) {
	secs := f.seconds()
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	switch kind {
	case bundle.KindVideo:
		args = append(args,
			"-f", "lavfi", "-i", fmt.Sprintf("testsrc=duration=%s:size=%s:rate=30", secs, f.size()),
			"-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=1000:duration=%s", secs),
			"-c:v", "libx264", "-pix_fmt", "yuv420p", "-c:a", "aac", "-shortest")
	case bundle.KindAudio:
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=1000:duration=%s", secs))
	case bundle.KindImage:
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("color=c=black:s=%s", f.size()), "-frames:v", "1")
	default:
		return nil, fmt.Errorf("unknown asset kind %q", kind)
	}
	return append(args, out), nil
}

// Generate renders into a temp file next to destPath, keeping its extension
// so ffmpeg picks the container, then renames it into place.
func (f *FFmpeg) Generate(ctx context.Context, kind bundle.Kind, destPath string) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	ext := filepath.Ext(destPath)
	if ext == "" {
		ext = defaultExt(kind)
	}
	tmp, err := os.CreateTemp(dir, ".placeholder-*"+ext)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpName) }()

	args, err := f.Args(kind, tmpName)
	if err != nil {
		return err
	}
	run := f.Run
	if run == nil {
		run = execRunner
	}
	start := time.Now()
	if out, err := run(ctx, f.Path, args...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg %s placeholder: %w: %s", kind, err, strings.TrimSpace(string(out)))
	}
	if st, err := os.Stat(tmpName); err != nil || st.Size() == 0 {
		return fmt.Errorf("ffmpeg %s placeholder: no output written", kind)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		return fmt.Errorf("place %s: %w", destPath, err)
	}
	logger.Debug("generated placeholder",
		logger.String("kind", string(kind)),
		logger.String("path", filepath.Base(destPath)),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

func defaultExt(kind bundle.Kind) string {
	switch kind {
	case bundle.KindVideo:
		return ".mp4"
	case bundle.KindAudio:
		return ".mp3"
	default:
		return ".png"
	}
}
