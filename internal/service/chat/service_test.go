package chat_test

import (
	"context"
	"errors"
	"testing"

	model "github.com/jmallory/streamchat/internal/model/chat"
	chat "github.com/jmallory/streamchat/internal/service/chat"
)

func TestServiceSessionRoundTrip(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if got.ID != session.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, session.ID)
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := chat.NewService()

	if _, err := svc.GetSession(context.Background(), "missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestServiceSaveAndLoadMessages(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx)
	if err := svc.SaveMessage(ctx, session.ID, model.Message{Role: model.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("SaveMessage err: %v", err)
	}
	if err := svc.SaveMessage(ctx, session.ID, model.Message{Role: model.RoleAssistant, Content: "hello"}); err != nil {
		t.Fatalf("SaveMessage err: %v", err)
	}

	messages, err := svc.LoadTranscript(ctx, session.ID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].ID == "" || messages[0].Timestamp.IsZero() {
		t.Fatalf("message not normalized: %+v", messages[0])
	}
}

func TestServiceSaveMessageUnknownSession(t *testing.T) {
	svc := chat.NewService()

	err := svc.SaveMessage(context.Background(), "missing", model.Message{Role: model.RoleUser})
	if !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestServiceDeleteSession(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx)
	if err := svc.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}
	if _, err := svc.LoadTranscript(ctx, session.ID); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("messages survived delete: %v", err)
	}
	if err := svc.DeleteSession(ctx, session.ID); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestServiceListSessions(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	first, _ := svc.CreateSession(ctx)
	second, _ := svc.CreateSession(ctx)

	sessions := svc.ListSessions(ctx)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	ids := map[string]bool{first.ID: false, second.ID: false}
	for _, s := range sessions {
		ids[s.ID] = true
	}
	for id, seen := range ids {
		if !seen {
			t.Fatalf("session %s missing from list", id)
		}
	}
}
