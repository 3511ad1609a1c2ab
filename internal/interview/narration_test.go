package interview

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestNarrationResolveOnce(t *testing.T) {
	t.Parallel()

	n := newNarration("t1", "hello there")
	select {
	case <-n.Ready():
		t.Fatal("narration should not be ready yet")
	default:
	}

	n.resolve([]byte("wav"), nil)
	n.resolve(nil, errors.New("late"))

	if err := n.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	audio, err := n.Audio()
	if err != nil || string(audio) != "wav" {
		t.Errorf("expected first resolution to win, got %q, %v", audio, err)
	}
}

func TestNarrationWaitCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := newNarration("t1", "x").Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNarrationWords(t *testing.T) {
	t.Parallel()

	n := newNarration("t1", "  Tell me   about\nyourself ")
	got := slices.Collect(n.Words(context.Background(), time.Millisecond))
	want := []string{"Tell", "me", "about", "yourself"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNarrationWordsStopsEarly(t *testing.T) {
	t.Parallel()

	n := newNarration("t1", "one two three four")
	var got []string
	for w := range n.Words(context.Background(), 0) {
		got = append(got, w)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 {
		t.Errorf("expected 2 words, got %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if words := slices.Collect(n.Words(ctx, time.Hour)); len(words) != 0 {
		t.Errorf("expected no words after cancel, got %v", words)
	}
}
