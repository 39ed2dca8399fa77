package stream

import (
	"bytes"
	"context"
	"io"
)

// dataPrefix and eventTerminator frame one wire event: "data: " + payload + "\n\n".
var (
	dataPrefix      = []byte("data: ")
	eventTerminator = []byte("\n\n")
)

// FrameReader splits an incrementally delivered byte stream into the raw JSON
// payloads of its data events. Bytes may arrive chunked at arbitrary
// boundaries; the reader keeps any incomplete tail (including a partial
// multi-byte character) buffered until the next chunk, so re-chunking the
// same stream never changes the decoded sequence. Events without the data
// prefix (comments, keepalives) are dropped.
type FrameReader struct {
	r       io.Reader
	buf     []byte
	pending []string
	scratch []byte
	err     error
}

// NewFrameReader wraps the response body of a stream request.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:       r,
		scratch: make([]byte, 4096),
	}
}

// Next returns the payload of the next complete data event, or io.EOF once
// the underlying stream ends. Cancellation is checked before any decoding so
// a cancelled turn never interprets further bytes. The sequence is finite and
// not restartable.
func (f *FrameReader) Next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if len(f.pending) > 0 {
			payload := f.pending[0]
			f.pending = f.pending[1:]
			return payload, nil
		}

		if f.err != nil {
			return "", f.err
		}

		n, err := f.r.Read(f.scratch)
		if n > 0 {
			f.buf = append(f.buf, f.scratch[:n]...)
			f.splitEvents()
		}
		if err != nil {
			// Deliver already-complete events before surfacing the error.
			f.err = err
		}
	}
}

// splitEvents cuts complete events off the front of the buffer. The trailing
// incomplete tail stays buffered for the next chunk; a tail never followed by
// a terminator is discarded with the stream.
func (f *FrameReader) splitEvents() {
	for {
		i := bytes.Index(f.buf, eventTerminator)
		if i < 0 {
			return
		}

		event := f.buf[:i]
		f.buf = f.buf[i+len(eventTerminator):]

		payload, ok := bytes.CutPrefix(event, dataPrefix)
		if !ok {
			continue
		}
		f.pending = append(f.pending, string(payload))
	}
}
