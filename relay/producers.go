package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

// MicChunkSize is the fixed read size for microphone capture:
// 1024 samples of 16-bit PCM.
const MicChunkSize = 2048

// FrameInterval paces camera/screen capture. Frames are deliberately not
// polled continuously; one per second bounds bandwidth and CPU cost.
const FrameInterval = time.Second

// Producer is one concurrent source feeding the outbound queue. Run
// returns nil on normal completion (user quit, capture end-of-stream)
// and an error on failure; either way the coordinator tears the session
// down.
type Producer interface {
	Name() string
	Run(ctx context.Context, out *OutQueue) error
}

// FrameGrabber captures one compressed image frame per call.
// Grab returns io.EOF when the underlying device reports end-of-stream.
type FrameGrabber interface {
	Grab(ctx context.Context) (mimeType string, data []byte, err error)
}

// MicProducer reads fixed-size PCM chunks from an audio source and
// enqueues them continuously. Chunks do not end the turn; Gemini's voice
// activity detection segments the utterances.
type MicProducer struct {
	Source io.Reader // nil when no input device exists
}

func (m *MicProducer) Name() string { return "mic" }

func (m *MicProducer) Run(ctx context.Context, out *OutQueue) error {
	if m.Source == nil {
		// No microphone: stay inert instead of aborting the session.
		log.Println("⚠️ No audio input device, microphone disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	buf := make([]byte, MicChunkSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := m.Source.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := out.Put(ctx, AudioChunk(chunk)); err != nil {
				return err
			}
		}
		// Zero-length reads are dropped, never enqueued.
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("mic read failed: %w", err)
		}
	}
}

// FrameProducer captures one image frame roughly every FrameInterval and
// enqueues it. It stops normally when the grabber reports end-of-stream.
type FrameProducer struct {
	Grabber  FrameGrabber
	Interval time.Duration // defaults to FrameInterval
}

func (f *FrameProducer) Name() string { return "frames" }

func (f *FrameProducer) Run(ctx context.Context, out *OutQueue) error {
	interval := f.Interval
	if interval <= 0 {
		interval = FrameInterval
	}

	for {
		mimeType, data, err := f.Grabber.Grab(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("frame capture failed: %w", err)
		}
		if len(data) > 0 {
			if err := out.Put(ctx, ImageFrame(mimeType, data)); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// QuitSentinel ends the session when typed on its own line.
const QuitSentinel = "q"

// TextInput reads operator lines and enqueues each as a turn-ending text
// payload. An empty line still sends a "." placeholder so Gemini always
// receives an explicit turn boundary; only non-empty lines count toward
// the session stats.
type TextInput struct {
	In     io.Reader
	Prompt io.Writer // receives the "message > " prompt, may be nil
	Stats  *Stats
}

func (t *TextInput) Name() string { return "text-input" }

func (t *TextInput) Run(ctx context.Context, out *OutQueue) error {
	scanner := bufio.NewScanner(t.In)
	for {
		if t.Prompt != nil {
			fmt.Fprint(t.Prompt, "\nmessage > ")
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			// EOF on the input counts as a normal quit.
			return nil
		}
		line := scanner.Text()
		if strings.EqualFold(strings.TrimSpace(line), QuitSentinel) {
			return nil
		}

		if strings.TrimSpace(line) != "" {
			t.Stats.AddMessage()
		} else {
			line = "."
		}
		if err := out.Put(ctx, TextTurn(line)); err != nil {
			return err
		}
	}
}
