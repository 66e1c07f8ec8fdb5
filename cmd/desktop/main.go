// Command desktop runs the local loop: microphone, optional camera or
// screen frames and typed text go to Gemini Live; model audio plays on
// the default output device. Type 'q' to end the session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Druvith/Gemini-Real-time-Web-Demo/capture"
	"github.com/Druvith/Gemini-Real-time-Web-Demo/gemini"
	"github.com/Druvith/Gemini-Real-time-Web-Demo/relay"
)

const banner = `
   /\                             *    .
  /**\          *       .    *        .
 /****\   *            .         .  *
/      \       .   *    *   .
============================================
  G E M I N I   L I V E   -   D E S K T O P
============================================
`

func printGreeting() {
	fmt.Print(banner)
	fmt.Println("The model accepts audio (from your microphone) and text,")
	fmt.Println("and responds with audio in real time.")
	fmt.Println()
	fmt.Println(" 1. Wear headphones to avoid echo or feedback loops.")
	fmt.Println(" 2. Type your message after the prompt `message > ` and press ENTER.")
	fmt.Println(" 3. Type 'q' and press ENTER to end the session.")
	fmt.Println()
	fmt.Println("Video modes: --mode camera (default), --mode screen, --mode none.")
	fmt.Println()
}

func printSummary(summary relay.Summary) {
	fmt.Println("\n============================================")
	fmt.Println("SESSION SUMMARY")
	fmt.Printf(" - Duration: %.2f seconds\n", summary.Duration.Seconds())
	fmt.Printf(" - Number of messages you sent: %d\n", summary.Messages)
	fmt.Println("Thanks for trying the demo, have a great day!")
	fmt.Println("============================================")
}

// consoleSink prints model text on its own line so it doesn't clobber
// the input prompt.
type consoleSink struct{}

func (consoleSink) WriteText(text string) error {
	fmt.Printf("\n[Model Text]: %s\n", text)
	return nil
}

func main() {
	mode := flag.String("mode", string(capture.ModeCamera), "video mode: 'camera', 'screen' or 'none'")
	flag.Parse()

	videoMode, err := capture.ParseVideoMode(*mode)
	if err != nil {
		log.Fatalf("Invalid --mode: %v", err)
	}

	// Required API credential; absence is a startup error, never a
	// runtime one.
	_ = godotenv.Load()
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	printGreeting()

	// Acquire devices up front; each Close is idempotent and deferred,
	// so every exit path releases them exactly once.
	speaker, err := capture.OpenSpeaker(relay.ReceiveSampleRate)
	if err != nil {
		log.Fatalf("Failed to open audio output: %v", err)
	}
	defer speaker.Close()

	mic, err := capture.OpenMic(relay.SendSampleRate)
	if err != nil {
		// Mic-less sessions still work over text.
		log.Printf("⚠️ %v", err)
		log.Println("⚠️ Continuing without microphone input")
	} else {
		defer mic.Close()
	}

	var frames *capture.FrameSource
	if videoMode != capture.ModeNone {
		frames, err = capture.OpenFrameSource(videoMode)
		if err != nil {
			log.Fatalf("Failed to open %s capture: %v", videoMode, err)
		}
		defer frames.Close()
	}

	stats := relay.NewStats()
	producers := []relay.Producer{
		&relay.TextInput{In: os.Stdin, Prompt: os.Stdout, Stats: stats},
	}
	if mic != nil {
		producers = append(producers, &relay.MicProducer{Source: mic})
	} else {
		producers = append(producers, &relay.MicProducer{})
	}
	if frames != nil {
		producers = append(producers, &relay.FrameProducer{Grabber: frames})
	}

	coord := relay.NewCoordinator(relay.Config{
		Connect: func(ctx context.Context) (relay.LiveSession, error) {
			return gemini.Connect(ctx, apiKey)
		},
		Producers: producers,
		Speaker:   speaker,
		Display:   consoleSink{},
		Interrupt: func() {
			// Unblock device reads/writes that don't observe the
			// context.
			if mic != nil {
				mic.Close()
			}
			if frames != nil {
				frames.Close()
			}
			speaker.Close()
		},
		Stats: stats,
	})

	summary, err := coord.Run(context.Background())
	if err != nil {
		log.Printf("❌ Session ended with error: %v", err)
	}
	printSummary(summary)

	// Give sox a beat to flush the last buffered samples.
	time.Sleep(100 * time.Millisecond)
	if err != nil {
		os.Exit(1)
	}
}
