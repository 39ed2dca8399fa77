package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// chunkReader yields the payload in fixed-size chunks, optionally emitting an
// empty read between chunks.
type chunkReader struct {
	data       []byte
	size       int
	emptyReads bool
	emitEmpty  bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	if r.emptyReads {
		r.emitEmpty = !r.emitEmpty
		if r.emitEmpty {
			return 0, nil
		}
	}
	n := r.size
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func collectPayloads(t *testing.T, r io.Reader) []string {
	t.Helper()
	reader := NewFrameReader(r)
	var got []string
	for {
		payload, err := reader.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return got
		}
		if err != nil {
			t.Fatalf("Next err: %v", err)
		}
		got = append(got, payload)
	}
}

const wireSample = "data: {\"type\":\"start\",\"session_id\":\"s1\"}\n\n" +
	": keepalive\n\n" +
	"data: {\"type\":\"token\",\"content\":\"héllo \"}\n\n" +
	"data: {\"type\":\"token\",\"content\":\"世界\"}\n\n" +
	"data: {\"type\":\"done\"}\n\n"

func TestDecodingIsChunkBoundaryInvariant(t *testing.T) {
	want := collectPayloads(t, strings.NewReader(wireSample))
	if len(want) != 4 {
		t.Fatalf("expected 4 data events, got %d: %v", len(want), want)
	}

	// Every chunking, including ones that split multi-byte characters and
	// the event terminator itself, must decode identically.
	for size := 1; size <= len(wireSample); size++ {
		got := collectPayloads(t, &chunkReader{data: []byte(wireSample), size: size})
		if len(got) != len(want) {
			t.Fatalf("size %d: got %d events, want %d", size, len(got), len(want))
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("size %d event %d: got %q want %q", size, i, got[i], want[i])
			}
		}
	}
}

func TestEmptyChunksAreNoOps(t *testing.T) {
	got := collectPayloads(t, &chunkReader{data: []byte(wireSample), size: 7, emptyReads: true})
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d", len(got))
	}
}

func TestNonDataFramingIsDropped(t *testing.T) {
	wire := ": comment\n\nevent: ping\n\ndata: {\"type\":\"done\"}\n\n"
	got := collectPayloads(t, strings.NewReader(wire))
	if len(got) != 1 || got[0] != "{\"type\":\"done\"}" {
		t.Fatalf("unexpected payloads: %v", got)
	}
}

func TestTrailingIncompleteEventIsNotDelivered(t *testing.T) {
	wire := "data: {\"type\":\"token\",\"content\":\"a\"}\n\ndata: {\"type\":\"tok"
	got := collectPayloads(t, strings.NewReader(wire))
	if len(got) != 1 {
		t.Fatalf("expected only the complete event, got %v", got)
	}
}

func TestNextChecksCancellationFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewFrameReader(strings.NewReader(wireSample))
	if _, err := reader.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTransportErrorSurfacesAfterCompleteEvents(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("data: {\"type\":\"token\",\"content\":\"a\"}\n\n"), &failingReader{err: boom})

	reader := NewFrameReader(r)
	if _, err := reader.Next(context.Background()); err != nil {
		t.Fatalf("expected buffered event first, got err %v", err)
	}
	if _, err := reader.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

type failingReader struct{ err error }

func (f *failingReader) Read([]byte) (int, error) { return 0, f.err }
