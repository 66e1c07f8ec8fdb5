// Command test-text does a direct text round-trip against Gemini Live,
// bypassing the relay server. Useful as a credentials/API sanity check.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/Druvith/Gemini-Real-time-Web-Demo/gemini"
	"github.com/Druvith/Gemini-Real-time-Web-Demo/relay"
)

func main() {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY not set")
	}

	live, err := gemini.Connect(context.Background(), apiKey)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer live.Close()

	if err := live.Send(relay.TextTurn("Hello! Say hi back in one sentence."), true); err != nil {
		log.Fatalf("Failed to send text: %v", err)
	}

	log.Println("Waiting for response...")
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		ev, err := live.Receive()
		if err != nil {
			log.Fatalf("Receive error: %v", err)
		}
		switch {
		case ev.TurnComplete:
			log.Println("✅ Turn complete")
			return
		case len(ev.Audio) > 0:
			log.Printf("🔊 Received audio: %d bytes", len(ev.Audio))
		case ev.Text != "":
			log.Printf("💬 Received text: %s", ev.Text)
		}
	}
	log.Println("Done")
}
