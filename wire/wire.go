// Package wire defines the framed protocol between the browser client
// and the relay server. Text frames are prefix-tagged UTF-8; binary
// frames are raw PCM from the client and "AUDIO:"-prefixed PCM from the
// server.
package wire

import (
	"fmt"
	"strings"
)

const (
	// TextPrefix tags a text message in either direction.
	TextPrefix = "TEXT:"
	// AckPrefix tags an acknowledgement; client acks are logged and
	// otherwise ignored.
	AckPrefix = "ACK:"
	// ServerReady is sent once right after the connection is accepted,
	// before the Gemini session is established.
	ServerReady = AckPrefix + "SERVER_READY"
)

// audioPrefix tags server-to-client binary frames carrying 24kHz PCM.
var audioPrefix = []byte("AUDIO:")

// ClientFrameKind discriminates parsed client text frames.
type ClientFrameKind int

const (
	FrameText ClientFrameKind = iota
	FrameAck
)

// ClientFrame is one parsed client-to-server text frame.
type ClientFrame struct {
	Kind ClientFrameKind
	Text string
}

// ParseClientText parses a text frame from the client. Text payloads are
// whitespace-trimmed; ack payloads are kept verbatim for logging.
func ParseClientText(msg string) (ClientFrame, error) {
	switch {
	case strings.HasPrefix(msg, TextPrefix):
		return ClientFrame{Kind: FrameText, Text: strings.TrimSpace(msg[len(TextPrefix):])}, nil
	case strings.HasPrefix(msg, AckPrefix):
		return ClientFrame{Kind: FrameAck, Text: msg[len(AckPrefix):]}, nil
	default:
		return ClientFrame{}, fmt.Errorf("unknown text frame %q", truncate(msg, 32))
	}
}

// EncodeText frames model text for the client.
func EncodeText(text string) []byte {
	return []byte(TextPrefix + text)
}

// EncodeAudio frames one chunk of model PCM for the client.
func EncodeAudio(pcm []byte) []byte {
	frame := make([]byte, 0, len(audioPrefix)+len(pcm))
	frame = append(frame, audioPrefix...)
	return append(frame, pcm...)
}

// DecodeAudio strips the audio prefix from a server binary frame.
// Used by test clients reading the protocol back.
func DecodeAudio(frame []byte) ([]byte, bool) {
	if len(frame) < len(audioPrefix) || string(frame[:len(audioPrefix)]) != string(audioPrefix) {
		return nil, false
	}
	return frame[len(audioPrefix):], true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
