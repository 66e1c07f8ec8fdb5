package relay

import (
	"context"
	"sync"
)

// OutQueueCapacity bounds the outbound multiplex buffer. Sized to the
// slowest-cadence producer (video frames at ~1/s) so that a stalled
// network send back-pressures capture instead of growing memory.
const OutQueueCapacity = 5

// OutQueue is the bounded outbound buffer: multiple producers (mic,
// frames, text) feed it, one pump drains it. FIFO in wall-clock arrival
// order across all producers combined. The queue never drops items;
// producers block when it is full.
type OutQueue struct {
	ch chan MediaPayload
}

func NewOutQueue() *OutQueue {
	return &OutQueue{ch: make(chan MediaPayload, OutQueueCapacity)}
}

// Put enqueues one payload, blocking while the queue is at capacity.
func (q *OutQueue) Put(ctx context.Context, p MediaPayload) error {
	select {
	case q.ch <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the oldest payload, blocking while the queue is empty.
func (q *OutQueue) Get(ctx context.Context) (MediaPayload, error) {
	select {
	case p := <-q.ch:
		return p, nil
	case <-ctx.Done():
		return MediaPayload{}, ctx.Err()
	}
}

// Len returns the number of queued payloads.
func (q *OutQueue) Len() int {
	return len(q.ch)
}

// AudioQueue buffers inbound playback audio. The demux side must never
// stall while reading the network, so PutNowait never blocks and the
// queue is unbounded. DrainAll discards everything queued so far in one
// step, which is how stale audio is cut off when a response turn ends.
type AudioQueue struct {
	mu     sync.Mutex
	chunks [][]byte
	wake   chan struct{}
}

func NewAudioQueue() *AudioQueue {
	return &AudioQueue{wake: make(chan struct{}, 1)}
}

// PutNowait appends one audio chunk without blocking.
func (q *AudioQueue) PutNowait(chunk []byte) {
	q.mu.Lock()
	q.chunks = append(q.chunks, chunk)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Get removes and returns the oldest chunk, blocking until one is
// available or the context is cancelled.
func (q *AudioQueue) Get(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.chunks) > 0 {
			chunk := q.chunks[0]
			q.chunks = q.chunks[1:]
			q.mu.Unlock()
			return chunk, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

// DrainAll atomically discards every queued chunk and returns how many
// were dropped. Chunks inserted after the drain completes are kept.
func (q *AudioQueue) DrainAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.chunks)
	q.chunks = nil
	return n
}

// Len returns the number of queued chunks.
func (q *AudioQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}
