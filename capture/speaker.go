package capture

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// Speaker plays raw s16le mono PCM through the default output device via
// a sox child process.
type Speaker struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu     sync.Mutex
	closed bool
}

// OpenSpeaker starts the playback process at the given sample rate.
func OpenSpeaker(sampleRate int) (*Speaker, error) {
	if _, err := exec.LookPath("sox"); err != nil {
		return nil, errors.New("sox is required for audio playback (install sox and ensure it is in PATH)")
	}

	cmd := exec.Command("sox",
		"-t", "raw",
		"-r", strconv.Itoa(sampleRate),
		"-b", "16",
		"-c", "1",
		"-e", "signed-integer",
		"-",
		"-d",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open sox stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start sox: %w", err)
	}
	return &Speaker{cmd: cmd, stdin: stdin}, nil
}

func (s *Speaker) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.stdin == nil {
		return 0, errors.New("speaker is closed")
	}
	return s.stdin.Write(p)
}

// Close stops playback and releases the device. Safe to call more than
// once.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	return nil
}
