package gemini

import (
	"context"
	"fmt"
	"log"
	"sync"

	"google.golang.org/genai"

	"github.com/Druvith/Gemini-Real-time-Web-Demo/relay"
)

const modelName = "models/gemini-2.0-flash-exp"

// systemInstruction is the fixed persona for every session.
const systemInstruction = "You're an expert assistant, you work by the principles of scientific method, " +
	"you're curious, you ask questions to understand user's problem deeply. " +
	"You provide detailed, clear and concise answers without leaving any room for ambiguity. " +
	"Please introduce yourself (nicely!) and ask the user how they're feeling today."

// Live wraps a Gemini Live API session behind relay.LiveSession. One
// Live per relay session; Receive is single-consumer (the inbound demux).
type Live struct {
	client  *genai.Client
	session *genai.Session

	// Flattened events not yet handed out by Receive. A single
	// LiveServerMessage can carry several parts plus a turn-complete.
	pending []relay.ServerEvent

	mu     sync.RWMutex
	closed bool
}

// Connect creates the GenAI client and opens the Live session with audio
// responses, the fixed system instruction and the Google Search tool.
func Connect(ctx context.Context, apiKey string) (*Live, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{"AUDIO"},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: systemInstruction},
			},
		},
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	}

	session, err := client.Live.Connect(ctx, modelName, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Live API: %w", err)
	}

	log.Printf("✅ Connected to Gemini Live (%s)", modelName)
	return &Live{client: client, session: session}, nil
}

func (l *Live) liveSession() (*genai.Session, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed || l.session == nil {
		return nil, fmt.Errorf("live session is closed")
	}
	return l.session, nil
}

// Send forwards one payload to Gemini. Text always carries the turn
// boundary; audio gets an explicit stream-end marker when endOfTurn is
// set; image frames are realtime input and never end the turn.
func (l *Live) Send(payload relay.MediaPayload, endOfTurn bool) error {
	session, err := l.liveSession()
	if err != nil {
		return err
	}

	switch payload.Kind {
	case relay.KindText:
		turnComplete := endOfTurn
		err := session.SendClientContent(genai.LiveSendClientContentParameters{
			Turns: []*genai.Content{
				{
					Role:  "user",
					Parts: []*genai.Part{{Text: payload.Text}},
				},
			},
			TurnComplete: &turnComplete,
		})
		if err != nil {
			return fmt.Errorf("failed to send text: %w", err)
		}
		return nil

	case relay.KindAudio:
		err := session.SendRealtimeInput(genai.LiveRealtimeInput{
			Media: &genai.Blob{
				MIMEType: fmt.Sprintf("audio/pcm;rate=%d", payload.SampleRate),
				Data:     payload.Data,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to send audio: %w", err)
		}
		if endOfTurn {
			// Tells Gemini the utterance is complete and a response
			// should begin.
			err := session.SendRealtimeInput(genai.LiveRealtimeInput{
				AudioStreamEnd: true,
			})
			if err != nil {
				return fmt.Errorf("failed to send audio stream end: %w", err)
			}
		}
		return nil

	case relay.KindImage:
		err := session.SendRealtimeInput(genai.LiveRealtimeInput{
			Media: &genai.Blob{
				MIMEType: payload.MIMEType,
				Data:     payload.Data,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to send image frame: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown payload kind %d", payload.Kind)
	}
}

// Receive returns the next server event, blocking until one arrives.
func (l *Live) Receive() (*relay.ServerEvent, error) {
	for {
		if len(l.pending) > 0 {
			ev := l.pending[0]
			l.pending = l.pending[1:]
			return &ev, nil
		}

		session, err := l.liveSession()
		if err != nil {
			return nil, err
		}
		resp, err := session.Receive()
		if err != nil {
			return nil, fmt.Errorf("live receive failed: %w", err)
		}
		l.pending = flatten(resp)
	}
}

// flatten turns one LiveServerMessage into ordered single-typed events,
// with the turn-complete marker last.
func flatten(resp *genai.LiveServerMessage) []relay.ServerEvent {
	var events []relay.ServerEvent
	if resp.ServerContent == nil {
		return nil
	}
	if resp.ServerContent.ModelTurn != nil {
		for _, part := range resp.ServerContent.ModelTurn.Parts {
			if part.Text != "" {
				events = append(events, relay.ServerEvent{Text: part.Text})
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				events = append(events, relay.ServerEvent{Audio: part.InlineData.Data})
			}
		}
	}
	if resp.ServerContent.TurnComplete {
		events = append(events, relay.ServerEvent{TurnComplete: true})
	}
	return events
}

// Close terminates the Gemini connection. Safe to call more than once.
func (l *Live) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.session != nil {
		return l.session.Close()
	}
	return nil
}
