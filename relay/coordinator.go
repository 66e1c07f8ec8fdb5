package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"
)

// State is the coordinator lifecycle. States are never re-entered; a new
// session needs a fresh coordinator.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TextSink receives model text output in stream-arrival order.
type TextSink interface {
	WriteText(text string) error
}

// DefaultDrainTimeout bounds how long teardown waits for sibling tasks
// after cancellation. A blocking read that cannot be interrupted (stdin)
// must not hang the session close.
const DefaultDrainTimeout = 3 * time.Second

// Config wires one session's collaborators into the coordinator.
type Config struct {
	// Connect opens the remote session. Called once, in the connecting
	// state.
	Connect func(ctx context.Context) (LiveSession, error)

	// Producers feed the outbound queue. The session ends as soon as any
	// of them returns.
	Producers []Producer

	// Speaker receives inbound model audio in arrival order. Nil
	// discards playback audio.
	Speaker io.Writer

	// Display receives inbound model text. Nil falls back to the log.
	Display TextSink

	// Interrupt is invoked once on entering the draining state, before
	// waiting for siblings. It must unblock reads that do not observe
	// context cancellation (device pipes, socket reads).
	Interrupt func()

	DrainTimeout time.Duration
	Stats        *Stats
}

// Coordinator owns the remote session handle and supervises the pipeline
// tasks: producers, outbound pump, inbound demux and playback sink. The
// first task to finish, successfully or not, ends the session for all.
type Coordinator struct {
	cfg     Config
	out     *OutQueue
	audioIn *AudioQueue
	stats   *Stats
	state   atomic.Int32
}

func NewCoordinator(cfg Config) *Coordinator {
	stats := cfg.Stats
	if stats == nil {
		stats = NewStats()
	}
	return &Coordinator{
		cfg:     cfg,
		out:     NewOutQueue(),
		audioIn: NewAudioQueue(),
		stats:   stats,
	}
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// Stats exposes the session counters, shared with the frontend adapters.
func (c *Coordinator) Stats() *Stats {
	return c.stats
}

type taskResult struct {
	name string
	err  error
}

// Run drives the session from connect to close and returns the final
// summary on every exit path. The returned error is nil for a normal
// exit (user quit, capture end-of-stream) and the causing failure
// otherwise.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	session, err := c.cfg.Connect(ctx)
	if err != nil {
		c.setState(StateClosed)
		return c.stats.Summary(), fmt.Errorf("failed to open live session: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type task struct {
		name string
		run  func(context.Context) error
	}
	tasks := []task{
		{"outbound-pump", func(ctx context.Context) error { return c.sendLoop(ctx, session) }},
		{"inbound-demux", func(ctx context.Context) error { return c.receiveLoop(ctx, session) }},
		{"playback", c.playLoop},
	}
	for _, p := range c.cfg.Producers {
		producer := p
		tasks = append(tasks, task{producer.Name(), func(ctx context.Context) error {
			return producer.Run(ctx, c.out)
		}})
	}

	done := make(chan taskResult, len(tasks))
	for _, t := range tasks {
		t := t
		go func() {
			done <- taskResult{name: t.name, err: t.run(ctx)}
		}()
	}
	c.setState(StateActive)
	log.Printf("✅ Session active (%d tasks)", len(tasks))

	// First completion, success or failure, ends the session.
	first := <-done

	c.setState(StateDraining)
	if first.err == nil {
		log.Printf("🛑 Task %s finished, draining session", first.name)
	} else {
		log.Printf("❌ Task %s failed: %v, draining session", first.name, first.err)
	}

	cancel()
	if c.cfg.Interrupt != nil {
		c.cfg.Interrupt()
	}
	if err := session.Close(); err != nil {
		log.Printf("⚠️ Error closing live session: %v", err)
	}

	c.waitSiblings(done, len(tasks)-1)
	c.setState(StateClosed)
	log.Println("🔌 Session closed")

	summary := c.stats.Summary()
	if first.err != nil && !errors.Is(first.err, context.Canceled) {
		return summary, fmt.Errorf("task %s failed: %w", first.name, first.err)
	}
	return summary, nil
}

// waitSiblings collects the remaining task results, bounded by the drain
// timeout so an uninterruptible blocking read cannot hang teardown.
func (c *Coordinator) waitSiblings(done <-chan taskResult, remaining int) {
	timeout := c.cfg.DrainTimeout
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for i := 0; i < remaining; i++ {
		select {
		case res := <-done:
			if res.err != nil && !errors.Is(res.err, context.Canceled) {
				log.Printf("⚠️ Task %s exited during drain: %v", res.name, res.err)
			}
		case <-deadline.C:
			log.Printf("⚠️ %d task(s) still blocked after %s, abandoning", remaining-i, timeout)
			return
		}
	}
}

// sendLoop drains the outbound queue into the live session, strictly in
// dequeue order. No reordering, no batching.
func (c *Coordinator) sendLoop(ctx context.Context, session LiveSession) error {
	for {
		payload, err := c.out.Get(ctx)
		if err != nil {
			return err
		}
		if err := session.Send(payload, payload.EndOfTurn); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to send %s payload: %w", payload.Kind, err)
		}
	}
}

// receiveLoop demultiplexes the server event stream: audio is queued for
// playback without blocking, text goes straight to the display sink, and
// a turn-complete discards whatever audio of that turn is still unplayed.
func (c *Coordinator) receiveLoop(ctx context.Context, session LiveSession) error {
	for {
		ev, err := session.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("live session receive failed: %w", err)
		}

		switch {
		case ev.TurnComplete:
			if dropped := c.audioIn.DrainAll(); dropped > 0 {
				log.Printf("🔊 Turn complete, dropped %d unplayed audio chunk(s)", dropped)
			}
		case len(ev.Audio) > 0:
			c.audioIn.PutNowait(ev.Audio)
		case ev.Text != "":
			if c.cfg.Display != nil {
				if err := c.cfg.Display.WriteText(ev.Text); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return fmt.Errorf("failed to emit model text: %w", err)
				}
			} else {
				log.Printf("💬 Model text: %s", ev.Text)
			}
		}
		// Heartbeat events carry nothing and are skipped.
	}
}

// playLoop writes queued model audio to the output device in arrival
// order, blocking only on the device write.
func (c *Coordinator) playLoop(ctx context.Context) error {
	for {
		chunk, err := c.audioIn.Get(ctx)
		if err != nil {
			return err
		}
		if c.cfg.Speaker == nil {
			continue
		}
		if _, err := c.cfg.Speaker.Write(chunk); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("playback write failed: %w", err)
		}
	}
}
