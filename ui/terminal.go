// Package ui renders the lobby in a terminal: roster tables, colored
// chat lines, and a slash-command input loop. It is a replaceable
// presentation collaborator; nothing here mutates session state except
// through dispatched commands.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"lobby-lab/domain"
	"lobby-lab/domain/event"
	"lobby-lab/internal"
)

// Dispatcher is the command intake of the session manager.
type Dispatcher interface {
	Dispatch(cmd domain.Command)
}

// Terminal is both an EventSink (rendering session events) and a Worker
// (reading user input). Output goes to a single writer so lines never
// interleave mid-row.
type Terminal struct {
	log      *slog.Logger
	dispatch Dispatcher
	out      io.Writer
	in       io.Reader
	// self lets the renderer mark the local participant in the roster.
	self domain.ConnectionID
	// names resolves sender connection ids to display names. Only the
	// fanout goroutine (Consume) touches it.
	names map[domain.ConnectionID]string
}

func NewTerminal(log *slog.Logger, dispatch Dispatcher, self domain.ConnectionID) *Terminal {
	return &Terminal{
		log:      log,
		dispatch: dispatch,
		out:      os.Stdout,
		in:       os.Stdin,
		self:     self,
		names:    make(map[domain.ConnectionID]string),
	}
}

func (t *Terminal) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.SessionReady:
		fmt.Fprintln(t.out, color.FgGreen.Render(fmt.Sprintf("Session %q ready, you are the %s", evt.SessionName, evt.Role)))
	case event.RosterChanged:
		t.renderRoster(evt)
	case event.ChatReceived:
		t.renderChat(evt)
	case event.SystemNotice:
		fmt.Fprintln(t.out, color.FgDarkGray.Render(fmt.Sprintf("-- %s --", evt.Text)))
	case event.ErrorReported:
		fmt.Fprintln(t.out, color.FgRed.Render("error: "+evt.Reason))
	case event.Disconnected:
		fmt.Fprintln(t.out, color.FgYellow.Render(fmt.Sprintf("Disconnected (%s)", evt.Reason)))
	}
	return nil
}

func (t *Terminal) renderRoster(evt event.RosterChanged) {
	t.names = make(map[domain.ConnectionID]string, len(evt.Snapshot))
	for _, p := range evt.Snapshot {
		t.names[p.ConnectionID] = p.DisplayName
	}

	table := tablewriter.NewWriter(t.out)
	table.SetHeader([]string{"Name", "Identity", "Ready"})
	for _, p := range evt.Snapshot {
		name := p.DisplayName
		if p.ConnectionID == t.self {
			name += " (you)"
		}
		ready := "no"
		if p.Ready {
			ready = "yes"
		}
		table.Append([]string{name, string(p.Identity), ready})
	}
	table.Render()
	if evt.AllReady {
		fmt.Fprintln(t.out, color.FgGreen.Render("All players ready, the host may start"))
	}
}

func (t *Terminal) renderChat(evt event.ChatReceived) {
	tag := ""
	if evt.Language != "" {
		tag = fmt.Sprintf(" [%s]", evt.Language)
	}
	sender, ok := t.names[evt.Message.Sender]
	if !ok {
		sender = string(evt.Message.Sender)
		if len(sender) > 8 {
			sender = sender[:8]
		}
	}
	line := fmt.Sprintf("<%s>%s %s", sender, tag, evt.Message.Text)
	if evt.Message.Sender == t.self {
		fmt.Fprintln(t.out, color.FgCyan.Render(line))
		return
	}
	fmt.Fprintln(t.out, line)
}

// Run reads user input until ctx is canceled or stdin closes.
// Slash commands drive the session; any other line is chat.
func (t *Terminal) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	t.printHelp()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			t.handleLine(strings.TrimSpace(line))
		}
	}
}

func (t *Terminal) handleLine(line string) {
	if line == "" {
		return
	}
	if !strings.HasPrefix(line, "/") {
		t.dispatch.Dispatch(domain.ChatCommand{Text: line})
		return
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/host":
		if len(fields) < 2 {
			fmt.Fprintln(t.out, color.FgRed.Render("usage: /host <name> [capacity]"))
			return
		}
		if err := internal.ValidateNames(internal.NamesRequest{DisplayName: "x", SessionName: fields[1]}); err != nil {
			fmt.Fprintln(t.out, color.FgRed.Render(fmt.Sprintf("invalid session name: %v", err)))
			return
		}
		capacity := 4
		if len(fields) > 2 {
			if n, err := strconv.Atoi(fields[2]); err == nil && n > 0 {
				capacity = n
			}
		}
		t.dispatch.Dispatch(domain.HostCommand{SessionName: fields[1], Capacity: capacity})
	case "/join":
		if len(fields) < 2 {
			fmt.Fprintln(t.out, color.FgRed.Render("usage: /join <name|host:port>"))
			return
		}
		t.dispatch.Dispatch(domain.JoinCommand{Target: fields[1]})
	case "/ready":
		t.dispatch.Dispatch(domain.ReadyCommand{Ready: true})
	case "/unready":
		t.dispatch.Dispatch(domain.ReadyCommand{Ready: false})
	case "/leave":
		t.dispatch.Dispatch(domain.DisconnectCommand{})
	case "/help":
		t.printHelp()
	default:
		fmt.Fprintln(t.out, color.FgRed.Render("unknown command "+fields[0]))
	}
}

func (t *Terminal) printHelp() {
	fmt.Fprintln(t.out, "commands: /host <name> [capacity], /join <name|host:port>, /ready, /unready, /leave, /help")
}
