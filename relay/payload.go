package relay

// Audio rates used across the pipeline. The client side captures and
// sends 16kHz mono PCM16; Gemini responds with 24kHz mono PCM16.
const (
	SendSampleRate    = 16000
	ReceiveSampleRate = 24000
)

// PayloadKind discriminates the outbound media variants.
type PayloadKind int

const (
	KindAudio PayloadKind = iota
	KindImage
	KindText
)

func (k PayloadKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindImage:
		return "image"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// MediaPayload is one outbound item: a PCM audio chunk, a compressed
// image frame, or a line of user text. EndOfTurn marks the item as the
// end of the client's utterance, telling Gemini a response should begin.
type MediaPayload struct {
	Kind       PayloadKind
	SampleRate int    // audio only
	MIMEType   string // image only, e.g. "image/jpeg"
	Data       []byte // audio or image bytes
	Text       string // text only
	EndOfTurn  bool
}

// AudioChunk wraps a raw PCM chunk captured at SendSampleRate.
func AudioChunk(pcm []byte) MediaPayload {
	return MediaPayload{Kind: KindAudio, SampleRate: SendSampleRate, Data: pcm}
}

// AudioTurn wraps a PCM chunk that also closes the client's turn.
// Used by the server relay, where each binary frame is a complete utterance.
func AudioTurn(pcm []byte) MediaPayload {
	p := AudioChunk(pcm)
	p.EndOfTurn = true
	return p
}

// ImageFrame wraps one compressed video/screen frame.
func ImageFrame(mimeType string, data []byte) MediaPayload {
	return MediaPayload{Kind: KindImage, MIMEType: mimeType, Data: data}
}

// TextTurn wraps one line of user text; text always ends the turn.
func TextTurn(text string) MediaPayload {
	return MediaPayload{Kind: KindText, Text: text, EndOfTurn: true}
}

// Empty reports whether the payload carries no content. Empty payloads
// are dropped by producers before they ever reach the outbound queue.
func (p MediaPayload) Empty() bool {
	if p.Kind == KindText {
		return p.Text == ""
	}
	return len(p.Data) == 0
}

// ServerEvent is one flattened item from the Gemini response stream.
// Exactly one of the fields is meaningful per event.
type ServerEvent struct {
	Audio        []byte // raw PCM at ReceiveSampleRate
	Text         string
	TurnComplete bool
}

// LiveSession is the narrow view of the remote conversational endpoint
// the pipeline depends on. gemini.Live implements it; tests substitute
// scripted fakes.
type LiveSession interface {
	// Send forwards one payload, optionally marking the end of the
	// client's turn. Blocking here is expected and back-pressures
	// producers through the outbound queue.
	Send(payload MediaPayload, endOfTurn bool) error
	// Receive blocks until the next server event arrives. It returns an
	// error when the stream ends or the session is closed.
	Receive() (*ServerEvent, error)
	Close() error
}
