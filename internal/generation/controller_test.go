package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jmallory/streamchat/internal/model/chat"
	"github.com/jmallory/streamchat/internal/session"
	"github.com/jmallory/streamchat/internal/stream"
	"github.com/jmallory/streamchat/internal/transcript"
)

type fakeBackend struct {
	body      io.ReadCloser
	err       error
	prompt    string
	sessionID string
}

func (f *fakeBackend) OpenStream(ctx context.Context, prompt, sessionID string) (io.ReadCloser, error) {
	f.prompt = prompt
	f.sessionID = sessionID
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func newHarness(wire string, openErr error) (*Controller, *transcript.Store, *session.Lifecycle, *fakeBackend) {
	store := transcript.NewStore()
	life := session.New(store)
	backend := &fakeBackend{body: io.NopCloser(strings.NewReader(wire)), err: openErr}
	ctrl := New(backend, store, life)
	life.SetInterrupt(ctrl.Cancel)
	return ctrl, store, life, backend
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func sse(events ...string) string {
	var b strings.Builder
	for _, ev := range events {
		b.WriteString("data: ")
		b.WriteString(ev)
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestSubmitNormalCompletion(t *testing.T) {
	wire := sse(
		`{"type":"start","session_id":"s-1"}`,
		`{"type":"token","content":"Hel"}`,
		`{"type":"token","content":"lo"}`,
		`{"type":"done","timestamp":"2024-01-01T00:00:00"}`,
	)
	ctrl, store, life, backend := newHarness(wire, nil)

	var deltas []string
	ctrl.OnToken = func(d string) { deltas = append(deltas, d) }

	if err := ctrl.Submit(context.Background(), "  hi there  "); err != nil {
		t.Fatalf("Submit err: %v", err)
	}

	messages := store.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != chat.RoleUser || messages[0].Content != "hi there" {
		t.Fatalf("unexpected user message: %+v", messages[0])
	}
	if messages[1].Role != chat.RoleAssistant || messages[1].Content != "Hello" {
		t.Fatalf("unexpected assistant message: %+v", messages[1])
	}
	if life.ID() != "s-1" {
		t.Fatalf("session not bound: %q", life.ID())
	}
	if backend.prompt != "hi there" || backend.sessionID != "" {
		t.Fatalf("unexpected request: prompt=%q session=%q", backend.prompt, backend.sessionID)
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Fatalf("unexpected deltas: %v", deltas)
	}
	if ctrl.Streaming() {
		t.Fatal("controller should be idle after completion")
	}
}

func TestSubmitCarriesBoundSession(t *testing.T) {
	ctrl, _, life, backend := newHarness(sse(`{"type":"done"}`), nil)
	life.BindSessionIfUnset("s-99")

	if err := ctrl.Submit(context.Background(), "again"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if backend.sessionID != "s-99" {
		t.Fatalf("expected bound session on request, got %q", backend.sessionID)
	}
}

func TestSubmitBlankTextIsNoOp(t *testing.T) {
	ctrl, store, _, _ := newHarness("", nil)

	if err := ctrl.Submit(context.Background(), "   \n\t "); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("blank submit mutated transcript: %d messages", store.Len())
	}
}

func TestSubmitWhileStreamingIsRejected(t *testing.T) {
	pr, pw := io.Pipe()
	store := transcript.NewStore()
	life := session.New(store)
	ctrl := New(&fakeBackend{body: pr}, store, life)

	done := make(chan error, 1)
	go func() { done <- ctrl.Submit(context.Background(), "first") }()
	waitFor(t, ctrl.Streaming)

	if err := ctrl.Submit(context.Background(), "second"); err != nil {
		t.Fatalf("concurrent Submit err: %v", err)
	}
	if got := store.Len(); got != 2 {
		t.Fatalf("concurrent submit mutated transcript: %d messages", got)
	}

	pw.Write([]byte(sse(`{"type":"done"}`)))
	pw.Close()
	if err := <-done; err != nil {
		t.Fatalf("first Submit err: %v", err)
	}
}

func TestCancelMidStreamAppendsStopMarkerOnce(t *testing.T) {
	pr, pw := io.Pipe()
	store := transcript.NewStore()
	life := session.New(store)
	ctrl := New(&fakeBackend{body: pr}, store, life)

	done := make(chan error, 1)
	go func() { done <- ctrl.Submit(context.Background(), "tell me more") }()

	pw.Write([]byte(sse(`{"type":"token","content":"partial "}`, `{"type":"token","content":"answer"}`)))
	waitFor(t, func() bool {
		last, ok := store.Last()
		return ok && last.Content == "partial answer"
	})

	ctrl.Cancel()
	// An aborted request resolves the blocked body read, as the transport
	// does for a real response.
	pw.CloseWithError(context.Canceled)
	err := <-done

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	last, _ := store.Last()
	want := "partial answer" + StopMarker
	if last.Content != want {
		t.Fatalf("got %q want %q", last.Content, want)
	}
	if strings.Count(last.Content, StopMarker) != 1 {
		t.Fatalf("stop marker applied more than once: %q", last.Content)
	}
	if ctrl.Streaming() {
		t.Fatal("controller should be idle after cancellation")
	}
}

func TestCancelBeforeAnyTokens(t *testing.T) {
	pr, pw := io.Pipe()
	store := transcript.NewStore()
	life := session.New(store)
	ctrl := New(&fakeBackend{body: pr}, store, life)

	done := make(chan error, 1)
	go func() { done <- ctrl.Submit(context.Background(), "never answered") }()
	waitFor(t, func() bool { return store.Len() == 2 && ctrl.Streaming() })

	ctrl.Cancel()
	pw.CloseWithError(context.Canceled)

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	last, _ := store.Last()
	if last.Role != chat.RoleAssistant || last.Content != StopMarker {
		t.Fatalf("expected bare stop marker, got %+v", last)
	}
}

func TestCancelWhileIdleIsNoOp(t *testing.T) {
	ctrl, store, _, _ := newHarness("", nil)
	ctrl.Cancel()
	if ctrl.Streaming() || store.Len() != 0 {
		t.Fatal("idle cancel changed state")
	}
}

func TestRequestFailureRemovesPlaceholder(t *testing.T) {
	openErr := fmt.Errorf("backend returned 500: server overloaded")
	ctrl, store, _, _ := newHarness("", openErr)

	err := ctrl.Submit(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "server overloaded") {
		t.Fatalf("expected diagnostic body in error, got %v", err)
	}

	messages := store.Messages()
	if len(messages) != 1 || messages[0].Role != chat.RoleUser {
		t.Fatalf("placeholder not removed: %+v", messages)
	}
	if ctrl.Streaming() {
		t.Fatal("controller should be idle after request failure")
	}
}

func TestTransportFailureKeepsPartialContent(t *testing.T) {
	body := io.MultiReader(
		strings.NewReader(sse(`{"type":"token","content":"half an ans"}`)),
		&brokenReader{},
	)
	ctrl, store, _, _ := newHarness("", nil)
	ctrl.backend = &fakeBackend{body: io.NopCloser(body)}

	err := ctrl.Submit(context.Background(), "question")
	if !errors.Is(err, ErrTransportInterrupted) {
		t.Fatalf("expected ErrTransportInterrupted, got %v", err)
	}

	last, _ := store.Last()
	if last.Content != "half an ans" {
		t.Fatalf("partial content lost: %q", last.Content)
	}
}

func TestTransportFailureWithZeroTokensSubstitutesFallback(t *testing.T) {
	ctrl, store, _, _ := newHarness("", nil)
	ctrl.backend = &fakeBackend{body: io.NopCloser(&brokenReader{})}

	err := ctrl.Submit(context.Background(), "question")
	if !errors.Is(err, ErrTransportInterrupted) {
		t.Fatalf("expected ErrTransportInterrupted, got %v", err)
	}

	last, _ := store.Last()
	if last.Role != chat.RoleAssistant || last.Content != fallbackReply {
		t.Fatalf("expected fallback reply, got %+v", last)
	}
}

func TestRemoteErrorEventSurfacesAndKeepsPartial(t *testing.T) {
	wire := sse(
		`{"type":"token","content":"so far so good"}`,
		`{"type":"error","message":"model crashed"}`,
		`{"type":"token","content":"never applied"}`,
	)
	ctrl, store, _, _ := newHarness(wire, nil)

	err := ctrl.Submit(context.Background(), "question")
	var remote *stream.RemoteError
	if !errors.As(err, &remote) || remote.Message != "model crashed" {
		t.Fatalf("expected RemoteError, got %v", err)
	}

	last, _ := store.Last()
	if last.Content != "so far so good" {
		t.Fatalf("partial content lost or extended: %q", last.Content)
	}
}

func TestMalformedEventIsSkipped(t *testing.T) {
	wire := "data: {broken json\n\n" + sse(`{"type":"token","content":"ok"}`, `{"type":"done"}`)
	ctrl, store, _, _ := newHarness(wire, nil)

	if err := ctrl.Submit(context.Background(), "question"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	last, _ := store.Last()
	if last.Content != "ok" {
		t.Fatalf("stream did not continue past malformed event: %q", last.Content)
	}
}

type brokenReader struct{}

func (*brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}
