// Command test is a smoke client for the relay server: it streams a PCM
// file over the WebSocket in paced chunks and plays returned audio
// frames through sox.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Druvith/Gemini-Real-time-Web-Demo/capture"
	"github.com/Druvith/Gemini-Real-time-Web-Demo/relay"
	"github.com/Druvith/Gemini-Real-time-Web-Demo/wire"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "WebSocket server URL")
	audioFile := flag.String("file", "examples/user.pcm", "Audio file to send (PCM or WAV)")
	text := flag.String("text", "", "Send a text turn instead of audio")
	flag.Parse()

	log.Printf("🔌 Connecting to %s...", *serverURL)
	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Println("✅ Connected!")

	player, err := capture.OpenSpeaker(relay.ReceiveSampleRate)
	if err != nil {
		log.Fatalf("Failed to create audio player: %v", err)
	}
	defer player.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})

	// Read responses from server
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}

			switch messageType {
			case websocket.BinaryMessage:
				pcm, ok := wire.DecodeAudio(message)
				if !ok {
					log.Printf("⚠️ Unexpected binary frame: %d bytes", len(message))
					continue
				}
				log.Printf("🔊 Playing audio: %d bytes", len(pcm))
				player.Write(pcm)

			case websocket.TextMessage:
				msg := string(message)
				switch {
				case strings.HasPrefix(msg, wire.TextPrefix):
					fmt.Printf("📝 %s\n", msg[len(wire.TextPrefix):])
				case msg == wire.ServerReady:
					log.Println("📊 Server ready")
				default:
					log.Printf("📊 %s", msg)
				}
			}
		}
	}()

	// Wait for the ready ack
	time.Sleep(500 * time.Millisecond)

	if *text != "" {
		log.Printf("📤 Sending text: %s", *text)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(wire.TextPrefix+*text)); err != nil {
			log.Fatalf("Send error: %v", err)
		}
	} else {
		log.Printf("📤 Sending audio file: %s", *audioFile)
		audioData, err := loadAudioFile(*audioFile)
		if err != nil {
			log.Fatalf("Failed to load audio: %v", err)
		}

		// Send audio in chunks (simulating real-time streaming)
		chunkSize := 3200 // 100ms at 16kHz
		for i := 0; i < len(audioData); i += chunkSize {
			end := i + chunkSize
			if end > len(audioData) {
				end = len(audioData)
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, audioData[i:end]); err != nil {
				log.Printf("Send error: %v", err)
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	log.Println("✅ Sent, waiting for response...")

	select {
	case <-done:
		log.Println("Connection closed")
	case <-interrupt:
		log.Println("\n👋 Interrupted, closing...")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case <-time.After(30 * time.Second):
		log.Println("⏰ Timeout waiting for response")
	}
}

// loadAudioFile loads PCM or WAV file and returns raw PCM bytes
func loadAudioFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Check if it's a WAV file (starts with "RIFF")
	if len(data) > 44 && string(data[0:4]) == "RIFF" {
		// Skip WAV header (44 bytes for standard WAV)
		log.Println("📁 Detected WAV file, skipping header")
		return data[44:], nil
	}

	log.Println("📁 Detected raw PCM file")
	return data, nil
}
