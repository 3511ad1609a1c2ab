package interview

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"time"
)

// ErrSpeechDisabled resolves narrations when speech is off for the session.
var ErrSpeechDisabled = errors.New("speech is disabled")

// Narration pairs an interviewer turn with its synthesized audio. Speech runs in
// the background; readers wait on Ready before revealing the text, which happens
// with or without audio.
type Narration struct {
	TurnID string
	Text   string

	ready chan struct{}
	once  sync.Once
	audio []byte
	err   error
}

func newNarration(turnID, text string) *Narration {
	return &Narration{TurnID: turnID, Text: text, ready: make(chan struct{})}
}

func (n *Narration) resolve(audio []byte, err error) {
	n.once.Do(func() {
		n.audio = audio
		n.err = err
		close(n.ready)
	})
}

// Ready is closed once audio is available or speech has failed.
func (n *Narration) Ready() <-chan struct{} {
	return n.ready
}

// Audio returns the synthesized audio, or the reason there is none.
// It must only be called after Ready is closed.
func (n *Narration) Audio() ([]byte, error) {
	return n.audio, n.err
}

// Wait blocks until the narration is ready or ctx is done.
func (n *Narration) Wait(ctx context.Context) error {
	select {
	case <-n.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Words yields the text word by word, one every delay. It stops early when ctx
// is done or the consumer stops ranging.
func (n *Narration) Words(ctx context.Context, delay time.Duration) iter.Seq[string] {
	return func(yield func(string) bool) {
		words := strings.Fields(n.Text)
		if len(words) == 0 {
			return
		}

		var ticker *time.Ticker
		if delay > 0 {
			ticker = time.NewTicker(delay)
			defer ticker.Stop()
		}

		for _, w := range words {
			if ticker != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			} else if ctx.Err() != nil {
				return
			}
			if !yield(w) {
				return
			}
		}
	}
}
