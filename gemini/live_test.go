package gemini

import (
	"bytes"
	"testing"

	"google.golang.org/genai"

	"github.com/Druvith/Gemini-Real-time-Web-Demo/relay"
)

func TestFlattenOrdersPartsBeforeTurnComplete(t *testing.T) {
	resp := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{
				Parts: []*genai.Part{
					{Text: "first"},
					{InlineData: &genai.Blob{MIMEType: "audio/pcm", Data: []byte{1, 2, 3}}},
					{Text: "second"},
				},
			},
			TurnComplete: true,
		},
	}

	events := flatten(resp)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4: %+v", len(events), events)
	}
	if events[0].Text != "first" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if !bytes.Equal(events[1].Audio, []byte{1, 2, 3}) {
		t.Errorf("events[1] = %+v", events[1])
	}
	if events[2].Text != "second" {
		t.Errorf("events[2] = %+v", events[2])
	}
	if !events[3].TurnComplete {
		t.Errorf("events[3] = %+v, want turn complete last", events[3])
	}
}

func TestFlattenEmptyMessage(t *testing.T) {
	if got := flatten(&genai.LiveServerMessage{}); got != nil {
		t.Fatalf("flatten without server content = %+v, want nil", got)
	}

	resp := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{
				Parts: []*genai.Part{
					{Text: ""},
					{InlineData: &genai.Blob{MIMEType: "audio/pcm"}},
				},
			},
		},
	}
	if got := flatten(resp); len(got) != 0 {
		t.Fatalf("empty parts produced events: %+v", got)
	}
}

func TestSendAfterClose(t *testing.T) {
	l := &Live{}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Send(relay.TextTurn("hi"), true); err == nil {
		t.Fatal("Send after Close should fail")
	}
	if _, err := l.Receive(); err == nil {
		t.Fatal("Receive after Close should fail")
	}
}
