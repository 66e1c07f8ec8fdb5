// Package capture adapts local audio and video devices to the pipeline
// through ffmpeg/sox subprocess pipes, so no cgo audio bindings are
// needed.
package capture

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
)

// Mic streams raw s16le mono PCM at the given sample rate from the
// default input device via an ffmpeg child process.
type Mic struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	mu     sync.Mutex
	closed bool
}

// OpenMic starts the capture process. It fails when ffmpeg is missing or
// the default input device cannot be opened; callers are expected to
// degrade to a mic-less session rather than abort.
func OpenMic(sampleRate int) (*Mic, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for microphone capture (install ffmpeg and ensure it is in PATH)")
	}
	args, err := micArgs(runtime.GOOS, sampleRate)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg mic capture: %w", err)
	}
	return &Mic{cmd: cmd, stdout: stdout}, nil
}

func micArgs(goos string, sampleRate int) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRate),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRate),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("microphone capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

func (m *Mic) Read(p []byte) (int, error) {
	if m == nil || m.stdout == nil {
		return 0, io.EOF
	}
	return m.stdout.Read(p)
}

// Close kills the capture process and unblocks any in-flight Read.
// Safe to call more than once.
func (m *Mic) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	return nil
}
