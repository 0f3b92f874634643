// ABOUTME: Incremental terminal printer for conversation snapshots
// ABOUTME: Prints only what changed since the last snapshot of each message

package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/agentchat/internal/conversation"
)

var (
	userStyle    = color.New(color.FgGreen, color.Bold)
	agentStyle   = color.New(color.FgCyan, color.Bold)
	toolStyle    = color.New(color.FgYellow)
	dimStyle     = color.New(color.Faint)
	failureStyle = color.New(color.FgRed)
	activeStyle  = color.New(color.FgGreen)
)

// progress is what has already been printed for one message.
type progress struct {
	content string
	toolLog int
	done    bool
}

// Printer writes conversation output to a terminal. Safe for concurrent use.
type Printer struct {
	out      io.Writer
	markdown bool

	mu   sync.Mutex
	seen map[string]*progress
}

// NewPrinter creates a printer. When markdown is set, full transcripts are
// rendered with Markdown; streamed text is always printed raw.
func NewPrinter(out io.Writer, markdown bool) *Printer {
	return &Printer{
		out:      out,
		markdown: markdown,
		seen:     make(map[string]*progress),
	}
}

// Update prints whatever msg gained since the previous call for the same
// message: new text, new tool log lines, and the final status once.
func (p *Printer) Update(msg conversation.Message) {
	if msg.Role != conversation.RoleAssistant {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.seen[msg.ID]
	if !ok {
		st = &progress{}
		p.seen[msg.ID] = st
		agentStyle.Fprint(p.out, "agent> ")
	}
	if st.done {
		return
	}

	for _, line := range msg.ToolLog[min(st.toolLog, len(msg.ToolLog)):] {
		toolStyle.Fprintf(p.out, "\n  %s\n", line)
	}
	st.toolLog = len(msg.ToolLog)

	switch {
	case strings.HasPrefix(msg.Content, st.content):
		fmt.Fprint(p.out, msg.Content[len(st.content):])
	default:
		// Replaced wholesale, as with a non-streaming result.
		fmt.Fprint(p.out, "\n"+msg.Content)
	}
	st.content = msg.Content

	if !msg.Streaming {
		st.done = true
		fmt.Fprintln(p.out)
		p.status(msg)
	}
}

// status prints the terminal line of a finished message.
func (p *Printer) status(msg conversation.Message) {
	switch msg.Outcome {
	case conversation.OutcomeFailure:
		failureStyle.Fprintln(p.out, "✗ failed")
	case conversation.OutcomeSuccess:
		if msg.TokenStats != nil {
			dimStyle.Fprintf(p.out, "tokens: %d (in %d, out %d)\n",
				msg.TokenStats.TotalTokens, msg.TokenStats.InputTokens, msg.TokenStats.OutputTokens)
		}
	default:
		dimStyle.Fprintln(p.out, "stopped")
	}
}

// Transcript prints a whole conversation and marks every message as printed.
func (p *Printer) Transcript(conv conversation.Conversation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dimStyle.Fprintf(p.out, "── %s ──\n", conv.Title)
	for _, msg := range conv.Messages {
		switch msg.Role {
		case conversation.RoleUser:
			userStyle.Fprint(p.out, "you> ")
			fmt.Fprintln(p.out, msg.Content)
		case conversation.RoleAssistant:
			agentStyle.Fprint(p.out, "agent> ")
			body := msg.Content
			if p.markdown && !msg.Streaming {
				body = Markdown(body)
			}
			fmt.Fprintln(p.out, body)
			if !msg.Streaming {
				p.status(msg)
			}
			p.seen[msg.ID] = &progress{
				content: msg.Content,
				toolLog: len(msg.ToolLog),
				done:    !msg.Streaming,
			}
		}
	}
}

// Steps prints the reasoning trace of a message.
func (p *Printer) Steps(msg conversation.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(msg.Steps) == 0 {
		dimStyle.Fprintln(p.out, "no reasoning steps")
		return
	}
	for i, step := range msg.Steps {
		toolStyle.Fprintf(p.out, "%2d. %-11s ", i+1, step.Kind)
		fmt.Fprintln(p.out, step.Content)
	}
}

// Conversations prints the numbered conversation list, marking the active
// one. Numbers start at 1 and follow the order given.
func (p *Printer) Conversations(convs []conversation.Conversation, active string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(convs) == 0 {
		dimStyle.Fprintln(p.out, "no conversations yet")
		return
	}
	for i, conv := range convs {
		marker := "  "
		if conv.ID == active {
			marker = activeStyle.Sprint("* ")
		}
		fmt.Fprintf(p.out, "%s%d. %s ", marker, i+1, conv.Title)
		dimStyle.Fprintf(p.out, "(%d messages, %s)\n", len(conv.Messages), conv.CreatedAt.Format("15:04"))
	}
}

// Notice prints an out-of-band message such as a transport failure.
func (p *Printer) Notice(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	failureStyle.Fprintf(p.out, format+"\n", args...)
}
