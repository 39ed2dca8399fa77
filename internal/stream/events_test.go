package stream

import (
	"errors"
	"testing"
	"time"
)

func TestParseEventMalformedPayload(t *testing.T) {
	if _, err := ParseEvent("{not json"); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
}

func TestParseEventShapes(t *testing.T) {
	ev, err := ParseEvent(`{"type":"start","session_id":"s-42","message_id":"m-1"}`)
	if err != nil {
		t.Fatalf("ParseEvent err: %v", err)
	}
	if ev.Type != EventStart || ev.SessionID != "s-42" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	ev, err = ParseEvent(`{"type":"error","message":"model unavailable"}`)
	if err != nil {
		t.Fatalf("ParseEvent err: %v", err)
	}
	if ev.Message != "model unavailable" {
		t.Fatalf("unexpected message: %q", ev.Message)
	}
}

func TestParseServerTimestampAssumesUTCWithoutZone(t *testing.T) {
	got, ok := ParseServerTimestamp("2024-01-01T00:00:00")
	if !ok {
		t.Fatal("expected zone-less timestamp to parse")
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseServerTimestampRespectsExplicitOffset(t *testing.T) {
	got, ok := ParseServerTimestamp("2024-01-01T08:00:00+08:00")
	if !ok {
		t.Fatal("expected offset timestamp to parse")
	}
	if !got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("offset not respected: %v", got)
	}

	// Compact offsets without a colon occur in the wild too.
	got, ok = ParseServerTimestamp("2024-01-01T00:00:00-0500")
	if !ok {
		t.Fatal("expected compact offset to parse")
	}
	if !got.Equal(time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)) {
		t.Fatalf("compact offset not respected: %v", got)
	}
}

func TestParseServerTimestampFractionalSeconds(t *testing.T) {
	// The backend emits microsecond precision without a zone suffix.
	got, ok := ParseServerTimestamp("2024-05-14T10:20:30.123456")
	if !ok {
		t.Fatal("expected fractional timestamp to parse")
	}
	if got.Location() != time.UTC || got.Nanosecond() != 123456000 {
		t.Fatalf("unexpected parse: %v", got)
	}
}

func TestParseServerTimestampUnparsable(t *testing.T) {
	for _, raw := range []string{"", "yesterday", "2024-13-45T99:00:00"} {
		if _, ok := ParseServerTimestamp(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}
