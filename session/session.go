package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Druvith/Gemini-Real-time-Web-Demo/relay"
	"github.com/Druvith/Gemini-Real-time-Web-Demo/wire"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	maxFrameSize    = 512 * 1024
)

// ClientSession bridges one WebSocket connection to one Gemini Live
// session through the relay pipeline. The socket replaces the local
// devices: inbound frames act as the capture/input producer, outbound
// frames act as the playback and display sinks.
type ClientSession struct {
	ID           string
	ClientConn   *websocket.Conn
	CreatedAt    time.Time
	LastActivity time.Time

	coord *relay.Coordinator
	stats *relay.Stats

	// All socket writes funnel through writeChan into writePump.
	writeChan chan outFrame

	mu        sync.RWMutex
	closed    bool
	CloseChan chan struct{}
	cancel    context.CancelFunc
}

type outFrame struct {
	messageType int
	data        []byte
}

// NewClientSession wires a connection into a fresh relay coordinator.
// The Gemini session itself is opened lazily when Start runs the
// coordinator, after the client has received the ready ack.
func NewClientSession(id string, clientConn *websocket.Conn, connect func(ctx context.Context) (relay.LiveSession, error)) *ClientSession {
	clientConn.SetReadLimit(maxFrameSize)

	cs := &ClientSession{
		ID:           id,
		ClientConn:   clientConn,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		stats:        relay.NewStats(),
		writeChan:    make(chan outFrame, writeBufferSize),
		CloseChan:    make(chan struct{}),
	}

	cs.coord = relay.NewCoordinator(relay.Config{
		Connect:   connect,
		Producers: []relay.Producer{&socketProducer{session: cs}},
		Speaker:   &socketAudioSink{session: cs},
		Display:   &socketTextSink{session: cs},
		// The reader blocks inside ReadMessage; closing the connection
		// is how teardown unblocks it.
		Interrupt: func() { _ = clientConn.Close() },
		Stats:     cs.stats,
	})
	return cs
}

// Start acknowledges the client and runs the pipeline until either
// direction ends, then closes the session. Non-blocking; callers wait on
// CloseChan.
func (cs *ClientSession) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	cs.cancel = cancel

	go cs.writePump()

	// Ready ack goes out before the Gemini session is established.
	cs.queueFrame(websocket.TextMessage, []byte(wire.ServerReady))

	go func() {
		summary, err := cs.coord.Run(ctx)
		if err != nil {
			log.Printf("❌ [%s] Session ended with error: %v", cs.ID[:8], err)
		}
		log.Printf("📊 [%s] Session summary: duration %s, %d message(s)",
			cs.ID[:8], summary.Duration.Round(time.Millisecond), summary.Messages)
		cs.Close()
	}()
}

// writePump is the single writer on the connection. It drains bursts of
// queued frames before blocking again.
func (cs *ClientSession) writePump() {
	defer func() {
		cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		cs.ClientConn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}()

	for {
		select {
		case <-cs.CloseChan:
			return
		case f := <-cs.writeChan:
			cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cs.ClientConn.WriteMessage(f.messageType, f.data); err != nil {
				return
			}

			n := len(cs.writeChan)
			for i := 0; i < n; i++ {
				select {
				case f := <-cs.writeChan:
					if err := cs.ClientConn.WriteMessage(f.messageType, f.data); err != nil {
						return
					}
				default:
				}
			}
		}
	}
}

// queueFrame enqueues one outbound frame without blocking.
func (cs *ClientSession) queueFrame(messageType int, data []byte) {
	cs.mu.RLock()
	closed := cs.closed
	cs.mu.RUnlock()
	if closed {
		return
	}
	select {
	case cs.writeChan <- outFrame{messageType: messageType, data: data}:
		cs.touch()
	default:
		// Queue full, drop frame (shouldn't happen with proper sizing)
	}
}

func (cs *ClientSession) touch() {
	cs.mu.Lock()
	cs.LastActivity = time.Now()
	cs.mu.Unlock()
}

// Close terminates the session and releases the connection. Idempotent;
// every exit path funnels through here exactly once.
func (cs *ClientSession) Close() error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil
	}
	cs.closed = true
	cs.mu.Unlock()

	if cs.cancel != nil {
		cs.cancel()
	}
	close(cs.CloseChan)
	return cs.ClientConn.Close()
}

// IsClosed returns whether the session is closed.
func (cs *ClientSession) IsClosed() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.closed
}

// socketProducer reads client frames and feeds the outbound queue:
// text frames become turn-ending text sends, binary frames become
// turn-ending audio sends. The session ends when the client disconnects.
type socketProducer struct {
	session *ClientSession
}

func (p *socketProducer) Name() string { return "socket-reader" }

func (p *socketProducer) Run(ctx context.Context, out *relay.OutQueue) error {
	cs := p.session
	for {
		messageType, message, err := cs.ClientConn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || cs.IsClosed() {
				log.Printf("🔌 [%s] Client disconnected", cs.ID[:8])
				return nil
			}
			return fmt.Errorf("client read failed: %w", err)
		}
		cs.touch()

		switch messageType {
		case websocket.BinaryMessage:
			// Raw 16kHz PCM; each frame is one complete utterance.
			if len(message) == 0 {
				continue
			}
			log.Printf("🎤 [%s] Client audio: %d bytes", cs.ID[:8], len(message))
			if err := out.Put(ctx, relay.AudioTurn(message)); err != nil {
				return err
			}

		case websocket.TextMessage:
			frame, err := wire.ParseClientText(string(message))
			if err != nil {
				log.Printf("⚠️ [%s] %v", cs.ID[:8], err)
				continue
			}
			switch frame.Kind {
			case wire.FrameAck:
				log.Printf("📥 [%s] Client ack: %s", cs.ID[:8], frame.Text)
			case wire.FrameText:
				text := frame.Text
				if text != "" {
					cs.stats.AddMessage()
				} else {
					text = "."
				}
				log.Printf("💬 [%s] Client text: %s", cs.ID[:8], text)
				if err := out.Put(ctx, relay.TextTurn(text)); err != nil {
					return err
				}
			}
		}
	}
}

// socketAudioSink frames model PCM for the client.
type socketAudioSink struct {
	session *ClientSession
}

func (s *socketAudioSink) Write(pcm []byte) (int, error) {
	s.session.queueFrame(websocket.BinaryMessage, wire.EncodeAudio(pcm))
	return len(pcm), nil
}

// socketTextSink frames model text for the client.
type socketTextSink struct {
	session *ClientSession
}

func (s *socketTextSink) WriteText(text string) error {
	s.session.queueFrame(websocket.TextMessage, wire.EncodeText(text))
	return nil
}
