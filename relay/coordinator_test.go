package relay

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSession is a scripted remote endpoint. Events pushed into the
// events channel come out of Receive; sends are recorded.
type fakeSession struct {
	events chan ServerEvent

	mu    sync.Mutex
	sends []sentItem

	closeOnce  sync.Once
	closeCount atomic.Int32
	closed     chan struct{}
}

type sentItem struct {
	payload   MediaPayload
	endOfTurn bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan ServerEvent, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeSession) Send(payload MediaPayload, endOfTurn bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentItem{payload: payload, endOfTurn: endOfTurn})
	return nil
}

func (f *fakeSession) Receive() (*ServerEvent, error) {
	select {
	case ev := <-f.events:
		return &ev, nil
	case <-f.closed:
		return nil, errors.New("session closed")
	}
}

func (f *fakeSession) Close() error {
	f.closeCount.Add(1)
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSession) sentItems() []sentItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentItem(nil), f.sends...)
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	if !pollUntil(cond) {
		t.Fatalf("timed out waiting for %s", what)
	}
}

// pollUntil is waitFor without the test dependency, safe from helper
// goroutines.
func pollUntil(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

// recordingSpeaker collects written chunks; writes can be gated.
type recordingSpeaker struct {
	mu     sync.Mutex
	chunks [][]byte
	gate   chan struct{} // nil means writes pass through
}

func (s *recordingSpeaker) Write(p []byte) (int, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.chunks = append(s.chunks, p)
	s.mu.Unlock()
	return len(p), nil
}

func (s *recordingSpeaker) played() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.chunks...)
}

type recordingDisplay struct {
	mu    sync.Mutex
	lines []string
}

func (d *recordingDisplay) WriteText(text string) error {
	d.mu.Lock()
	d.lines = append(d.lines, text)
	d.mu.Unlock()
	return nil
}

func TestCoordinator_TextTurnEndToEnd(t *testing.T) {
	fake := newFakeSession()
	stats := NewStats()

	// Feed the quit sentinel only after the turn reached the session, so
	// teardown cannot race the outbound pump.
	pr, pw := io.Pipe()
	coord := NewCoordinator(Config{
		Connect: func(ctx context.Context) (LiveSession, error) { return fake, nil },
		Producers: []Producer{
			&TextInput{In: pr, Stats: stats},
		},
		Stats:        stats,
		DrainTimeout: 200 * time.Millisecond,
	})

	go func() {
		pw.Write([]byte("hello\n"))
		pollUntil(func() bool { return len(fake.sentItems()) == 1 })
		pw.Write([]byte("q\n"))
	}()

	summary, err := coord.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if coord.State() != StateClosed {
		t.Fatalf("state = %s, want closed", coord.State())
	}

	sends := fake.sentItems()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	if got := sends[0]; got.payload.Text != "hello" || !got.endOfTurn {
		t.Fatalf("send = %+v, want turn-ending 'hello'", got)
	}
	if summary.Messages != 1 {
		t.Fatalf("summary messages = %d, want 1", summary.Messages)
	}
	if fake.closeCount.Load() == 0 {
		t.Fatal("live session was not closed")
	}
}

func TestCoordinator_EmptyLineStillEndsTurn(t *testing.T) {
	fake := newFakeSession()
	stats := NewStats()

	pr, pw := io.Pipe()
	coord := NewCoordinator(Config{
		Connect: func(ctx context.Context) (LiveSession, error) { return fake, nil },
		Producers: []Producer{
			&TextInput{In: pr, Stats: stats},
		},
		Stats:        stats,
		DrainTimeout: 200 * time.Millisecond,
	})

	go func() {
		pw.Write([]byte("\n"))
		pollUntil(func() bool { return len(fake.sentItems()) == 1 })
		pw.Write([]byte("q\n"))
	}()

	summary, err := coord.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	sends := fake.sentItems()
	if len(sends) != 1 || sends[0].payload.Text != "." || !sends[0].endOfTurn {
		t.Fatalf("sends = %+v, want one turn-ending '.'", sends)
	}
	if summary.Messages != 0 {
		t.Fatalf("summary messages = %d, want 0", summary.Messages)
	}
}

// blockingProducer holds its task open until cancelled.
type blockingProducer struct{}

func (blockingProducer) Name() string { return "blocking" }
func (blockingProducer) Run(ctx context.Context, out *OutQueue) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCoordinator_OutboundOrderPreserved(t *testing.T) {
	fake := newFakeSession()

	// One producer enqueueing a deterministic mixed sequence.
	seq := producerFunc{name: "seq", run: func(ctx context.Context, out *OutQueue) error {
		items := []MediaPayload{
			AudioChunk([]byte{1}),
			ImageFrame("image/jpeg", []byte{2}),
			TextTurn("three"),
			AudioChunk([]byte{4}),
		}
		for _, item := range items {
			if err := out.Put(ctx, item); err != nil {
				return err
			}
		}
		// Hold the task open until every item cleared the pump, so the
		// teardown cannot cut the queue short.
		for len(fake.sentItems()) < len(items) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Millisecond):
			}
		}
		return nil
	}}

	coord := NewCoordinator(Config{
		Connect:      func(ctx context.Context) (LiveSession, error) { return fake, nil },
		Producers:    []Producer{seq},
		DrainTimeout: 200 * time.Millisecond,
	})
	if _, err := coord.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	sends := fake.sentItems()
	wantKinds := []PayloadKind{KindAudio, KindImage, KindText, KindAudio}
	if len(sends) != len(wantKinds) {
		t.Fatalf("sends = %d, want %d", len(sends), len(wantKinds))
	}
	for i, want := range wantKinds {
		if sends[i].payload.Kind != want {
			t.Fatalf("send %d kind = %s, want %s", i, sends[i].payload.Kind, want)
		}
	}
}

type producerFunc struct {
	name string
	run  func(ctx context.Context, out *OutQueue) error
}

func (p producerFunc) Name() string                                  { return p.name }
func (p producerFunc) Run(ctx context.Context, out *OutQueue) error { return p.run(ctx, out) }

func TestCoordinator_TurnCompleteDiscardsUnplayedAudio(t *testing.T) {
	fake := newFakeSession()
	speaker := &recordingSpeaker{gate: make(chan struct{})}

	coord := NewCoordinator(Config{
		Connect:      func(ctx context.Context) (LiveSession, error) { return fake, nil },
		Producers:    []Producer{blockingProducer{}},
		Speaker:      speaker,
		DrainTimeout: 200 * time.Millisecond,
	})

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		// The session is torn down by closing the fake remote, which the
		// demux reports as a failure; that exit path is not under test.
		coord.Run(context.Background())
	}()
	waitFor(t, "active state", func() bool { return coord.State() == StateActive })

	a1, a2, a3 := []byte{0xA1}, []byte{0xA2}, []byte{0xA3}

	// A1 is dequeued by the playback sink (blocked in the device write);
	// A2 is still queued when the turn completes, so it must be dropped.
	fake.events <- ServerEvent{Audio: a1}
	fake.events <- ServerEvent{Audio: a2}
	waitFor(t, "A2 queued behind blocked playback", func() bool { return coord.audioIn.Len() == 1 })

	fake.events <- ServerEvent{TurnComplete: true}
	waitFor(t, "turn-complete drain", func() bool { return coord.audioIn.Len() == 0 })

	// The next turn's audio plays normally.
	fake.events <- ServerEvent{Audio: a3}
	speaker.gate <- struct{}{} // release A1
	speaker.gate <- struct{}{} // release A3
	waitFor(t, "A3 played", func() bool { return len(speaker.played()) == 2 })

	played := speaker.played()
	if played[0][0] != 0xA1 || played[1][0] != 0xA3 {
		t.Fatalf("played = %v, want [A1 A3]", played)
	}
	for _, chunk := range played {
		if chunk[0] == 0xA2 {
			t.Fatal("A2 was played after its turn completed")
		}
	}

	fake.Close()
	<-runDone
}

func TestCoordinator_TextForwardedInOrder(t *testing.T) {
	fake := newFakeSession()
	display := &recordingDisplay{}

	coord := NewCoordinator(Config{
		Connect:      func(ctx context.Context) (LiveSession, error) { return fake, nil },
		Producers:    []Producer{blockingProducer{}},
		Display:      display,
		DrainTimeout: 200 * time.Millisecond,
	})

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		coord.Run(context.Background())
	}()
	waitFor(t, "active state", func() bool { return coord.State() == StateActive })

	fake.events <- ServerEvent{Text: "first"}
	fake.events <- ServerEvent{} // heartbeat, carries nothing
	fake.events <- ServerEvent{Text: "second"}
	waitFor(t, "text forwarded", func() bool {
		display.mu.Lock()
		defer display.mu.Unlock()
		return len(display.lines) == 2
	})

	display.mu.Lock()
	got := append([]string(nil), display.lines...)
	display.mu.Unlock()
	if got[0] != "first" || got[1] != "second" {
		t.Fatalf("display = %v, want [first second]", got)
	}

	fake.Close()
	<-runDone
}

func TestCoordinator_ProducerFailureTearsEverythingDown(t *testing.T) {
	fake := newFakeSession()
	boom := errors.New("capture device disappeared")

	var interrupted atomic.Bool
	coord := NewCoordinator(Config{
		Connect: func(ctx context.Context) (LiveSession, error) { return fake, nil },
		Producers: []Producer{
			blockingProducer{},
			producerFunc{name: "doomed", run: func(ctx context.Context, out *OutQueue) error {
				return boom
			}},
		},
		Interrupt:    func() { interrupted.Store(true) },
		DrainTimeout: 200 * time.Millisecond,
	})

	_, err := coord.Run(context.Background())
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("run = %v, want wrapped capture error", err)
	}
	if !strings.Contains(err.Error(), "doomed") {
		t.Fatalf("error %q does not name the failed task", err)
	}
	if coord.State() != StateClosed {
		t.Fatalf("state = %s, want closed", coord.State())
	}
	if !interrupted.Load() {
		t.Fatal("interrupt hook was not invoked")
	}
	if fake.closeCount.Load() == 0 {
		t.Fatal("live session was not closed")
	}
}

func TestCoordinator_RemoteCloseTearsDown(t *testing.T) {
	fake := newFakeSession()
	coord := NewCoordinator(Config{
		Connect:      func(ctx context.Context) (LiveSession, error) { return fake, nil },
		Producers:    []Producer{blockingProducer{}},
		DrainTimeout: 200 * time.Millisecond,
	})

	runDone := make(chan error, 1)
	go func() {
		_, err := coord.Run(context.Background())
		runDone <- err
	}()
	waitFor(t, "active state", func() bool { return coord.State() == StateActive })

	// Remote session drops: the demux fails, everything drains.
	fake.Close()

	select {
	case err := <-runDone:
		if err == nil || !strings.Contains(err.Error(), "inbound-demux") {
			t.Fatalf("run = %v, want inbound-demux failure", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not tear down after remote close")
	}
	if coord.State() != StateClosed {
		t.Fatalf("state = %s, want closed", coord.State())
	}
}

func TestCoordinator_ConnectFailure(t *testing.T) {
	dialErr := errors.New("no network")
	coord := NewCoordinator(Config{
		Connect: func(ctx context.Context) (LiveSession, error) { return nil, dialErr },
	})

	_, err := coord.Run(context.Background())
	if err == nil || !errors.Is(err, dialErr) {
		t.Fatalf("run = %v, want connect error", err)
	}
	if coord.State() != StateClosed {
		t.Fatalf("state = %s, want closed", coord.State())
	}
}
