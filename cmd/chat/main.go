// Command chat is the terminal client: a REPL that streams assistant replies
// token by token, keeps the transcript in memory, and remembers the bound
// session across restarts.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/jmallory/streamchat/internal/auth"
	"github.com/jmallory/streamchat/internal/client"
	"github.com/jmallory/streamchat/internal/config"
	"github.com/jmallory/streamchat/internal/generation"
	"github.com/jmallory/streamchat/internal/model/chat"
	"github.com/jmallory/streamchat/internal/session"
	"github.com/jmallory/streamchat/internal/stream"
	"github.com/jmallory/streamchat/internal/transcript"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	app.restoreLastSession(ctx)
	app.run(ctx)
}

// app wires the client engine together for the REPL.
type app struct {
	store    *transcript.Store
	sessions *session.Lifecycle
	backend  *client.Backend
	ctrl     *generation.Controller
	notifier *auth.LogoutNotifier
	cache    *session.FileCache

	// listing maps the indices shown by /history to session ids so /open
	// and /delete can reference them.
	listing []string
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store := transcript.NewStore()
	sessions := session.New(store)

	var cache *session.FileCache
	if path, err := session.DefaultCachePath(); err != nil {
		log.Printf("warning: session cache unavailable: %v", err)
	} else {
		cache = session.NewFileCache(path)
		sessions.SetPointerCache(cache)
	}

	backend := client.New(cfg.Client.BaseURL, auth.StaticSource(cfg.Client.Token))
	ctrl := generation.New(backend, store, sessions)
	ctrl.OnToken = func(delta string) {
		fmt.Print(delta)
	}
	sessions.SetInterrupt(ctrl.Cancel)

	notifier := auth.NewLogoutNotifier()
	go sessions.WatchLogout(ctx, notifier.Subscribe())

	return &app{
		store:    store,
		sessions: sessions,
		backend:  backend,
		ctrl:     ctrl,
		notifier: notifier,
		cache:    cache,
	}, nil
}

// restoreLastSession reopens the session saved by a previous run, if any.
func (a *app) restoreLastSession(ctx context.Context) {
	if a.cache == nil {
		return
	}
	id, err := a.cache.Load()
	if err != nil || id == "" {
		return
	}

	record, err := a.backend.GetSession(ctx, id)
	if err != nil {
		log.Printf("warning: could not restore session %s: %v", id, err)
		return
	}
	a.sessions.Restore(record.SessionID, client.TranscriptMessages(record))
	fmt.Printf("restored session %s (%d messages)\n", record.SessionID, a.store.Len())
	a.printTranscript()
}

func (a *app) run(ctx context.Context) {
	// Ctrl-C stops an in-flight generation; a second one (or one while
	// idle) quits.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	go func() {
		for range interrupts {
			if a.ctrl.Streaming() {
				a.ctrl.Cancel()
				continue
			}
			fmt.Println()
			os.Exit(0)
		}
	}()

	fmt.Println("streamchat — /new /history /open N /delete N /logout /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := a.dispatch(ctx, line); quit {
				return
			}
			continue
		}

		a.submit(ctx, line)
	}
}

// dispatch handles a slash command. Reports true when the REPL should exit.
func (a *app) dispatch(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/new":
		a.sessions.ClearForNewChat()
		fmt.Println("started a new chat")
	case "/history":
		a.showHistory(ctx)
	case "/open":
		a.openSession(ctx, arg)
	case "/delete":
		a.deleteSession(ctx, arg)
	case "/logout":
		a.notifier.NotifyLogout()
		fmt.Println("logged out")
	default:
		fmt.Printf("unknown command %s\n", cmd)
	}
	return false
}

func (a *app) submit(ctx context.Context, text string) {
	fmt.Print("assistant> ")
	err := a.ctrl.Submit(ctx, text)
	fmt.Println()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		fmt.Println(strings.TrimSpace(generation.StopMarker))
	default:
		a.reportError(err)
	}
}

func (a *app) reportError(err error) {
	var reqErr *client.RequestError
	var remoteErr *stream.RemoteError
	switch {
	case errors.As(err, &reqErr):
		fmt.Printf("request failed: %v\n", reqErr)
	case errors.As(err, &remoteErr):
		fmt.Printf("generation aborted: %s\n", remoteErr.Message)
	case errors.Is(err, generation.ErrTransportInterrupted):
		fmt.Println("connection lost mid-reply; partial answer kept")
	default:
		fmt.Printf("error: %v\n", err)
	}
}

func (a *app) showHistory(ctx context.Context) {
	records, err := a.backend.ListSessions(ctx)
	if err != nil {
		a.reportError(err)
		return
	}
	if len(records) == 0 {
		fmt.Println("no stored sessions")
		a.listing = nil
		return
	}

	a.listing = a.listing[:0]
	for i, record := range records {
		a.listing = append(a.listing, record.SessionID)
		marker := " "
		if record.SessionID == a.sessions.ID() {
			marker = "*"
		}
		fmt.Printf("%s %2d. %s  %s\n", marker, i+1, record.SessionID,
			record.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}

// resolveListing maps a /history index argument to a session id.
func (a *app) resolveListing(arg string) (string, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(a.listing) {
		fmt.Println("run /history first, then pass one of its numbers")
		return "", false
	}
	return a.listing[n-1], true
}

func (a *app) openSession(ctx context.Context, arg string) {
	id, ok := a.resolveListing(arg)
	if !ok {
		return
	}

	record, err := a.backend.GetSession(ctx, id)
	if err != nil {
		a.reportError(err)
		return
	}
	a.sessions.Restore(record.SessionID, client.TranscriptMessages(record))
	fmt.Printf("opened session %s\n", record.SessionID)
	a.printTranscript()
}

func (a *app) deleteSession(ctx context.Context, arg string) {
	id, ok := a.resolveListing(arg)
	if !ok {
		return
	}

	if err := a.backend.DeleteSession(ctx, id); err != nil {
		a.reportError(err)
		return
	}
	if id == a.sessions.ID() {
		a.sessions.ClearForNewChat()
	}
	fmt.Printf("deleted session %s\n", id)
}

func (a *app) printTranscript() {
	for _, m := range a.store.Messages() {
		switch m.Role {
		case chat.RoleUser:
			fmt.Printf("you> %s\n", m.Content)
		case chat.RoleAssistant:
			fmt.Printf("assistant> %s\n", m.Content)
		}
	}
}
