package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
)

// MaxFrameEdge bounds each captured frame: frames are scaled down to fit
// inside MaxFrameEdge x MaxFrameEdge before JPEG encoding, so payload
// size stays predictable regardless of the source resolution.
const MaxFrameEdge = 1024

const jpegMIMEType = "image/jpeg"

// VideoMode selects the frame source for a session.
type VideoMode string

const (
	ModeCamera VideoMode = "camera"
	ModeScreen VideoMode = "screen"
	ModeNone   VideoMode = "none"
)

// ParseVideoMode validates a mode selector string.
func ParseVideoMode(s string) (VideoMode, error) {
	switch VideoMode(s) {
	case ModeCamera, ModeScreen, ModeNone:
		return VideoMode(s), nil
	default:
		return "", fmt.Errorf("invalid video mode %q: must be 'camera', 'screen' or 'none'", s)
	}
}

// FrameSource grabs one scaled JPEG frame per call by running a one-shot
// ffmpeg capture. Each Grab is a fresh process, so the device is not
// polled between the pipeline's pacing intervals.
type FrameSource struct {
	mode VideoMode

	mu     sync.Mutex
	closed bool
}

// OpenFrameSource validates that ffmpeg is available for the given mode.
// ModeNone yields no source at all.
func OpenFrameSource(mode VideoMode) (*FrameSource, error) {
	if mode == ModeNone {
		return nil, errors.New("no frame source in mode 'none'")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for video capture (install ffmpeg and ensure it is in PATH)")
	}
	if _, err := frameArgs(runtime.GOOS, mode); err != nil {
		return nil, err
	}
	return &FrameSource{mode: mode}, nil
}

// Grab captures, scales and JPEG-encodes one frame. It returns io.EOF
// after Close, which the pipeline treats as capture end-of-stream.
func (f *FrameSource) Grab(ctx context.Context) (string, []byte, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return "", nil, io.EOF
	}

	args, err := frameArgs(runtime.GOOS, f.mode)
	if err != nil {
		return "", nil, err
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stderr = io.Discard
	data, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		return "", nil, fmt.Errorf("ffmpeg %s capture failed: %w", f.mode, err)
	}
	return jpegMIMEType, data, nil
}

// Close marks the source exhausted; the next Grab reports end-of-stream.
func (f *FrameSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// scaleFilter shrinks frames to fit MaxFrameEdge while keeping aspect
// ratio; smaller frames pass through unscaled.
func scaleFilter() string {
	return fmt.Sprintf("scale=w='min(%d,iw)':h='min(%d,ih)':force_original_aspect_ratio=decrease", MaxFrameEdge, MaxFrameEdge)
}

func frameArgs(goos string, mode VideoMode) ([]string, error) {
	common := []string{"-hide_banner", "-loglevel", "error"}
	tail := []string{
		"-frames:v", "1",
		"-vf", scaleFilter(),
		"-f", "image2", "-vcodec", "mjpeg", "pipe:1",
	}

	switch goos {
	case "linux":
		switch mode {
		case ModeCamera:
			return append(append(common, "-f", "v4l2", "-i", "/dev/video0"), tail...), nil
		case ModeScreen:
			display := os.Getenv("DISPLAY")
			if display == "" {
				display = ":0.0"
			}
			return append(append(common, "-f", "x11grab", "-i", display), tail...), nil
		}
	case "darwin":
		switch mode {
		case ModeCamera:
			return append(append(common, "-f", "avfoundation", "-framerate", "30", "-i", "0"), tail...), nil
		case ModeScreen:
			return append(append(common, "-f", "avfoundation", "-framerate", "30", "-i", "Capture screen 0"), tail...), nil
		}
	default:
		return nil, fmt.Errorf("video capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
	return nil, fmt.Errorf("unsupported video mode %q", mode)
}
