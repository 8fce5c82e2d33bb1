// Command client is a line-oriented terminal client for the chat relay.
//
// Lines typed on stdin are sent to the current room. "/join <room>" switches
// rooms and "/quit" exits.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/gochat-rooms/internal/protocol"
	"github.com/Tyrowin/gochat-rooms/internal/session"
)

var errQuit = errors.New("quit")

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "relay websocket url")
	origin := flag.String("origin", "http://localhost:8080", "Origin header sent with the handshake")
	name := flag.String("name", defaultName(), "display name")
	roomID := flag.String("room", "general", "room to join on start; empty to stay in the lobby")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *url, *origin, *name, *roomID); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		logger.Error("client stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, url, origin, name, roomID string) error {
	conn, err := session.Dial(ctx, url, session.DialOptions{Origin: origin, Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	sess := session.New(conn, name,
		session.WithLogger(logger),
		session.WithEntryHandler(printEntry),
		session.WithPresenceHandler(func(event string, p protocol.Presence) {
			logger.Debug("presence", "event", event, "room", p.RoomID, "user", p.Username)
		}),
	)

	if roomID != "" {
		if err := sess.Join(ctx, roomID); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sess.Run(ctx); err != nil {
			return err
		}
		if err := conn.Err(); err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
		return errQuit
	})
	g.Go(func() error {
		return readInput(ctx, sess)
	})

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	return g.Wait()
}

// readInput turns stdin lines into commands and messages until ctx ends or
// stdin is exhausted.
func readInput(ctx context.Context, sess *session.Session) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return err
				}
				return errQuit
			}
			line = l
		}

		if err := handleLine(ctx, sess, line); err != nil {
			return err
		}
	}
}

func handleLine(ctx context.Context, sess *session.Session, line string) error {
	fields := strings.Fields(line)
	if len(fields) > 0 {
		switch fields[0] {
		case "/quit":
			return errQuit
		case "/join":
			if len(fields) != 2 {
				fmt.Println("-- usage: /join <room>")
				return nil
			}
			return sess.Join(ctx, fields[1])
		}
	}

	if _, ok := sess.CurrentRoom(); !ok {
		fmt.Println("-- not in a room; use /join <room>")
		return nil
	}
	sess.SetDraft(line)
	return sess.SubmitDraft(ctx)
}

func printEntry(m protocol.ChatMessage) {
	if m.IsSystemMessage {
		fmt.Printf("-- %s\n", m.Message)
		return
	}
	fmt.Printf("[%s] %s: %s\n", m.Time, m.Author, m.Message)
}

func defaultName() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "guest"
}
