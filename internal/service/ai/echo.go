package ai

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/jmallory/streamchat/internal/model/chat"
)

// EchoGenerator is the credential-less fallback: it streams a canned reply
// word by word so the full wire contract can be exercised locally without a
// model backend.
type EchoGenerator struct {
	// Delay between words, to make streaming visible. Zero in tests.
	Delay time.Duration
}

// NewEchoGenerator creates a generator with a small inter-word delay.
func NewEchoGenerator() *EchoGenerator {
	return &EchoGenerator{Delay: 20 * time.Millisecond}
}

// Stream implements Generator.
func (g *EchoGenerator) Stream(ctx context.Context, history []chat.Message, prompt string) (TokenStream, error) {
	reply := "You said: " + strings.TrimSpace(prompt) +
		". No model is configured, so this is an echo of your message."

	return &wordStream{
		ctx:   ctx,
		words: strings.Fields(reply),
		delay: g.Delay,
	}, nil
}

type wordStream struct {
	ctx   context.Context
	words []string
	delay time.Duration
	sent  int
}

func (w *wordStream) Recv() (string, error) {
	if err := w.ctx.Err(); err != nil {
		return "", err
	}
	if w.sent >= len(w.words) {
		return "", io.EOF
	}

	if w.delay > 0 {
		select {
		case <-w.ctx.Done():
			return "", w.ctx.Err()
		case <-time.After(w.delay):
		}
	}

	token := w.words[w.sent]
	if w.sent > 0 {
		token = " " + token
	}
	w.sent++
	return token, nil
}

func (w *wordStream) Close() {}
