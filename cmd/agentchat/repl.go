// ABOUTME: Read-eval loop of the terminal client: slash commands and agent turns
// ABOUTME: Follows store changes to print the live answer until the turn ends

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/2389/agentchat/internal/conversation"
	"github.com/2389/agentchat/internal/render"
	"github.com/2389/agentchat/internal/session"
)

// recheckInterval bounds how long a dropped change notification can delay
// noticing the end of a turn.
const recheckInterval = 250 * time.Millisecond

type app struct {
	store       *conversation.Store
	ctrl        *session.Controller
	printer     *render.Printer
	in          io.Reader
	out         io.Writer
	interrupts  <-chan os.Signal
	interactive bool

	lines   <-chan string
	readErr <-chan error
	// pending holds lines typed during a reply that run once it ends.
	pending []string
}

// loop reads lines until EOF, /quit, an idle interrupt, or ctx is done.
func (a *app) loop(ctx context.Context) error {
	a.lines, a.readErr = readLines(ctx, a.in)

	for {
		var input string
		if len(a.pending) > 0 {
			input, a.pending = a.pending[0], a.pending[1:]
		} else {
			a.prompt()

			select {
			case <-ctx.Done():
				a.ctrl.StopGeneration()
				return nil
			case <-a.interrupts:
				return nil
			case err := <-a.readErr:
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("reading input: %w", err)
			case input = <-a.lines:
			}
		}

		if quit := a.handle(ctx, input); quit {
			return nil
		}
	}
}

// readLines scans r on its own goroutine. The error channel receives io.EOF
// or the scan error once input ends.
func readLines(ctx context.Context, r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			readErr <- err
			return
		}
		readErr <- io.EOF
	}()
	return lines, readErr
}

// handle runs one input line and reports whether the client should exit.
func (a *app) handle(ctx context.Context, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}

	if strings.HasPrefix(input, "/") {
		return a.command(input)
	}

	turn, err := a.ctrl.SendMessage(ctx, input)
	if err != nil {
		a.printer.Notice("[error] %v", err)
		return false
	}
	return a.follow(ctx, turn)
}

func (a *app) prompt() {
	if !a.interactive {
		return
	}
	fmt.Fprint(a.out, "> ")
}

// follow prints the turn's answer as it grows until it stops streaming, and
// reports whether the client should exit. Input is still read meanwhile so
// /stop and an interrupt can stop the reply. /quit stops it and exits, and a
// new message replaces it. Other commands wait until the reply ends, and so
// does everything typed after them.
func (a *app) follow(ctx context.Context, turn session.Turn) bool {
	subCtx, cancel := context.WithCancel(ctx)
	defer func() { cancel() }()
	changes, _ := a.store.Subscribe(subCtx, turn.ConversationID)

	ticker := time.NewTicker(recheckInterval)
	defer ticker.Stop()

	done := ctx.Done()
	for {
		msg, err := a.store.Message(turn.ConversationID, turn.MessageID)
		if err != nil {
			return false
		}
		a.printer.Update(msg)
		if !msg.Streaming {
			return false
		}

		select {
		case <-done:
			a.ctrl.StopGeneration()
			done = nil
		case <-a.interrupts:
			a.ctrl.StopGeneration()
		case _, ok := <-changes:
			if !ok {
				changes = nil
			}
		case <-ticker.C:
		case line := <-a.lines:
			next, quit := a.interject(ctx, turn, line)
			if quit {
				return true
			}
			if next.ConversationID != turn.ConversationID {
				cancel()
				subCtx, cancel = context.WithCancel(ctx)
				changes, _ = a.store.Subscribe(subCtx, next.ConversationID)
			}
			turn = next
		}
	}
}

// interject handles a line typed while turn is streaming and returns the turn
// to keep following.
func (a *app) interject(ctx context.Context, turn session.Turn, line string) (session.Turn, bool) {
	input := strings.TrimSpace(line)
	if input == "" {
		return turn, false
	}
	name, _, _ := strings.Cut(input, " ")
	if name == "/stop" {
		a.ctrl.StopGeneration()
		return turn, false
	}
	if len(a.pending) > 0 {
		a.pending = append(a.pending, input)
		return turn, false
	}

	switch {
	case name == "/quit" || name == "/exit" || name == "/q":
		a.ctrl.StopGeneration()
		return turn, true
	case strings.HasPrefix(input, "/"):
		a.pending = append(a.pending, input)
		return turn, false
	}

	// The new turn aborts the live one before its own message exists; show
	// the stopped reply before following the new one.
	next, err := a.ctrl.SendMessage(ctx, input)
	if msg, mErr := a.store.Message(turn.ConversationID, turn.MessageID); mErr == nil {
		a.printer.Update(msg)
	}
	if err != nil {
		a.printer.Notice("[error] %v", err)
		return turn, false
	}
	return next, false
}

// command runs a slash command and reports whether the client should exit.
func (a *app) command(input string) bool {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit", "/q":
		return true

	case "/help":
		a.help()

	case "/new":
		a.ctrl.NewConversation()
		fmt.Fprintln(a.out, "Started a new conversation; your next message opens it.")

	case "/list":
		a.printer.Conversations(a.store.Conversations(), a.store.Active())

	case "/select":
		conv, ok := a.pick(arg)
		if !ok {
			return false
		}
		if err := a.ctrl.SelectConversation(conv.ID); err != nil {
			a.printer.Notice("[error] %v", err)
			return false
		}
		a.printer.Transcript(conv)

	case "/delete":
		conv, ok := a.pick(arg)
		if !ok {
			return false
		}
		if err := a.ctrl.DeleteConversation(conv.ID); err != nil {
			a.printer.Notice("[error] %v", err)
			return false
		}
		fmt.Fprintf(a.out, "Deleted %q\n", conv.Title)

	case "/stop":
		if !a.ctrl.StopGeneration() {
			fmt.Fprintln(a.out, "Nothing to stop.")
		}

	case "/steps":
		msg, ok := a.lastAnswer()
		if !ok {
			fmt.Fprintln(a.out, "No answer yet in this conversation.")
			return false
		}
		a.printer.Steps(msg)

	default:
		a.printer.Notice("unknown command %s (try /help)", name)
	}
	return false
}

// pick resolves a 1-based index from /list.
func (a *app) pick(arg string) (conversation.Conversation, bool) {
	convs := a.store.Conversations()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(convs) {
		a.printer.Notice("expected a conversation number between 1 and %d", len(convs))
		return conversation.Conversation{}, false
	}
	return convs[n-1], true
}

// lastAnswer returns the newest assistant message of the active conversation.
func (a *app) lastAnswer() (conversation.Message, bool) {
	conv, ok := a.store.Conversation(a.store.Active())
	if !ok {
		return conversation.Message{}, false
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == conversation.RoleAssistant {
			return conv.Messages[i], true
		}
	}
	return conversation.Message{}, false
}

func (a *app) help() {
	fmt.Fprintln(a.out, "Commands:")
	fmt.Fprintln(a.out, "  /new           Start a new conversation")
	fmt.Fprintln(a.out, "  /list          List conversations, newest first")
	fmt.Fprintln(a.out, "  /select <n>    Switch to conversation n and show it")
	fmt.Fprintln(a.out, "  /delete <n>    Delete conversation n")
	fmt.Fprintln(a.out, "  /stop          Stop the reply being generated")
	fmt.Fprintln(a.out, "  /steps         Show the reasoning steps of the last answer")
	fmt.Fprintln(a.out, "  /help          Show this help")
	fmt.Fprintln(a.out, "  /quit          Exit")
}
