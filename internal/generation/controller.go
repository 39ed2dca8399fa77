package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmallory/streamchat/internal/model/chat"
	"github.com/jmallory/streamchat/internal/session"
	"github.com/jmallory/streamchat/internal/stream"
	"github.com/jmallory/streamchat/internal/transcript"
)

// StopMarker is appended to a partial assistant reply when the user stops
// generation.
const StopMarker = "\n\n[Generation stopped]"

// fallbackReply replaces an assistant message that failed before any content
// arrived, so the transcript never shows an empty turn.
const fallbackReply = "Sorry, I encountered an error. Please try again."

// ErrTransportInterrupted marks a connection that dropped without a terminal
// event.
var ErrTransportInterrupted = errors.New("transport interrupted")

// StreamOpener issues the generation request and hands back the streamed
// response body. A non-success status must be returned as an error carrying
// the diagnostic body, with no reader.
type StreamOpener interface {
	OpenStream(ctx context.Context, prompt, sessionID string) (io.ReadCloser, error)
}

// Controller orchestrates one generation turn: it appends the user message
// and the assistant placeholder, opens the cancellable stream request, pumps
// decoded events through the interpreter and resolves the terminal state. At
// most one generation is in flight; concurrent submissions are rejected, not
// queued.
type Controller struct {
	backend    StreamOpener
	transcript *transcript.Store
	sessions   *session.Lifecycle

	// OnToken, when set, receives each token delta so a presentation layer
	// can render incrementally. Invoked from the turn loop.
	OnToken func(delta string)

	mu        sync.Mutex
	cancel    context.CancelFunc
	streaming bool
}

// New wires a controller to its collaborators.
func New(backend StreamOpener, store *transcript.Store, sessions *session.Lifecycle) *Controller {
	return &Controller{
		backend:    backend,
		transcript: store,
		sessions:   sessions,
	}
}

// Streaming reports whether a generation turn is in flight.
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// Cancel signals the held cancellation handle. No-op while idle. The
// in-flight read resolves into a cancellation outcome before any further
// bytes are interpreted.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Submit runs one turn to completion. Blank input and submissions while a
// turn is already streaming are no-ops. Returns the turn's outcome:
// nil on normal completion, context.Canceled when the user stopped it, a
// *client request error or ErrTransportInterrupted wrap on failure, or a
// *stream.RemoteError when the backend reported a generation error.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return nil
	}
	turnCtx, cancel := context.WithCancel(ctx)
	c.streaming = true
	c.cancel = cancel
	c.mu.Unlock()

	// Terminal paths all release the handle and revert to idle.
	defer func() {
		c.mu.Lock()
		c.streaming = false
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	now := time.Now().UTC()
	if err := c.transcript.Append(chat.Message{
		ID:        uuid.NewString(),
		Role:      chat.RoleUser,
		Content:   text,
		Timestamp: now,
	}); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}

	assistantID := uuid.NewString()
	if err := c.transcript.Append(chat.Message{
		ID:        assistantID,
		Role:      chat.RoleAssistant,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("append assistant placeholder: %w", err)
	}

	body, err := c.backend.OpenStream(turnCtx, text, c.sessions.ID())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.markStopped(assistantID, "")
			return context.Canceled
		}
		// Failed before streaming began: no content was ever written, so
		// back the placeholder out entirely.
		c.transcript.RemoveLast()
		return err
	}
	defer body.Close()

	return c.pump(turnCtx, body, assistantID)
}

// pump drives the decoder/interpreter loop until end-of-stream, cancellation
// or an error, then applies the matching terminal transcript fixup.
func (c *Controller) pump(ctx context.Context, body io.Reader, assistantID string) error {
	frames := stream.NewFrameReader(body)
	interp := stream.NewInterpreter(c.transcript, c.sessions, assistantID)

	for {
		payload, err := frames.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			c.markStopped(assistantID, interp.Content())
			return context.Canceled
		}
		if err != nil {
			c.settleFailedTurn(assistantID, interp)
			return fmt.Errorf("%w: %v", ErrTransportInterrupted, err)
		}

		ev, err := stream.ParseEvent(payload)
		if err != nil {
			// One bad payload is not fatal to the stream.
			log.Printf("[generation] skipping malformed event: %v", err)
			continue
		}

		if err := interp.Apply(ev); err != nil {
			var remote *stream.RemoteError
			if errors.As(err, &remote) {
				c.settleFailedTurn(assistantID, interp)
				return remote
			}
			return err
		}

		if ev.Type == stream.EventToken && c.OnToken != nil {
			c.OnToken(ev.Content)
		}
	}
}

// markStopped appends the stop marker to the assistant placeholder, but only
// when it is still the most recent message and still an assistant turn. A
// clear that raced the cancellation leaves nothing to mark.
func (c *Controller) markStopped(assistantID, content string) {
	last, ok := c.transcript.Last()
	if !ok || last.ID != assistantID || last.Role != chat.RoleAssistant {
		return
	}
	if err := c.transcript.ReplaceContent(assistantID, content+StopMarker); err != nil {
		log.Printf("[generation] failed to mark stopped turn: %v", err)
	}
}

// settleFailedTurn resolves a mid-stream failure: partial output stays
// visible, a turn with zero tokens gets the fallback reply instead of an
// empty message.
func (c *Controller) settleFailedTurn(assistantID string, interp *stream.Interpreter) {
	if interp.ContentLen() > 0 {
		return
	}
	if err := c.transcript.ReplaceContent(assistantID, fallbackReply); err != nil {
		log.Printf("[generation] failed to settle turn: %v", err)
	}
}
