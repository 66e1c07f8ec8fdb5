package wire

import (
	"bytes"
	"testing"
)

func TestParseClientText(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantKind ClientFrameKind
		wantText string
		wantErr  bool
	}{
		{"text", "TEXT:hello there", FrameText, "hello there", false},
		{"text trimmed", "TEXT:  spaced out  ", FrameText, "spaced out", false},
		{"empty text", "TEXT:", FrameText, "", false},
		{"ack", "ACK:CLIENT_READY", FrameAck, "CLIENT_READY", false},
		{"unknown", "PING:whatever", 0, "", true},
		{"bare", "hello", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseClientText(tt.msg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseClientText(%q) = %+v, want error", tt.msg, frame)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClientText(%q): %v", tt.msg, err)
			}
			if frame.Kind != tt.wantKind || frame.Text != tt.wantText {
				t.Fatalf("ParseClientText(%q) = %+v, want kind %d text %q", tt.msg, frame, tt.wantKind, tt.wantText)
			}
		})
	}
}

func TestEncodeAudioRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	frame := EncodeAudio(pcm)

	if !bytes.HasPrefix(frame, []byte("AUDIO:")) {
		t.Fatalf("frame %q missing audio prefix", frame)
	}
	got, ok := DecodeAudio(frame)
	if !ok {
		t.Fatal("DecodeAudio rejected its own encoding")
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("round trip = %v, want %v", got, pcm)
	}
}

func TestEncodeAudioDoesNotAliasInput(t *testing.T) {
	pcm := []byte{9, 9}
	frame := EncodeAudio(pcm)
	frame[len(frame)-1] = 0
	if pcm[1] != 9 {
		t.Fatal("EncodeAudio aliases the caller's buffer")
	}
}

func TestDecodeAudioRejectsOtherFrames(t *testing.T) {
	if _, ok := DecodeAudio([]byte("TEXT:nope")); ok {
		t.Fatal("DecodeAudio accepted a text frame")
	}
	if _, ok := DecodeAudio([]byte("AUD")); ok {
		t.Fatal("DecodeAudio accepted a short frame")
	}
}

func TestEncodeText(t *testing.T) {
	if got := string(EncodeText("hi")); got != "TEXT:hi" {
		t.Fatalf("EncodeText = %q, want %q", got, "TEXT:hi")
	}
}
