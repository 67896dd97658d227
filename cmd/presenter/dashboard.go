package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"github.com/rivo/tview"

	"github.com/aura-pulse/backend/internal/presenter"
)

// command is one parsed line from the input field.
type command struct {
	name  string
	index int
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	switch fields[0] {
	case "q", "quit", "exit":
		return command{name: "quit"}, nil
	case "end":
		return command{name: "end"}, nil
	case "rm", "remove":
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: rm N")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("participant number must be a positive integer")
		}
		return command{name: "rm", index: n}, nil
	}
	return command{}, fmt.Errorf("unknown command %q", fields[0])
}

func runDashboard(ctx context.Context, opts presenter.Options) error {
	app := tview.NewApplication()

	board := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetScrollable(true)
	board.SetBorder(true).SetTitle(" live session ")

	status := tview.NewTextView().SetDynamicColors(true)

	input := tview.NewInputField().
		SetLabel("❯ ").
		SetFieldWidth(0).
		SetAcceptanceFunc(tview.InputFieldMaxLength(64))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(board, 0, 1, false).
		AddItem(status, 1, 0, false).
		AddItem(input, 1, 0, true)
	app.SetRoot(flex, true).SetFocus(input)

	// The latest participant order, for "rm N".
	var (
		mu      sync.Mutex
		ordered []uuid.UUID
	)
	opts.Render = func(fr presenter.Frame) {
		ids := make([]uuid.UUID, len(fr.Participants))
		for i, p := range fr.Participants {
			ids[i] = p.ID
		}
		mu.Lock()
		ordered = ids
		mu.Unlock()
		text := formatFrame(fr)
		app.QueueUpdateDraw(func() { board.SetText(text) })
	}
	say := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		app.QueueUpdateDraw(func() { status.SetText(msg) })
	}

	view, err := presenter.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer view.Close()

	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		line := input.GetText()
		input.SetText("")
		cmd, err := parseCommand(line)
		if err != nil {
			status.SetText("[red]" + err.Error())
			return
		}
		switch cmd.name {
		case "quit":
			app.Stop()
		case "end":
			status.SetText("[yellow]ending session…")
			go func() {
				if err := view.EndSession(ctx); err != nil {
					say("[red]end failed: %v", err)
					return
				}
				say("[green]session ended")
			}()
		case "rm":
			mu.Lock()
			var id uuid.UUID
			if cmd.index <= len(ordered) {
				id = ordered[cmd.index-1]
			}
			mu.Unlock()
			if id == uuid.Nil {
				status.SetText(fmt.Sprintf("[red]no participant %d", cmd.index))
				return
			}
			status.SetText(fmt.Sprintf("[yellow]removing %d…", cmd.index))
			go func() {
				if err := view.RemoveParticipant(ctx, id); err != nil {
					say("[red]remove failed: %v", err)
					return
				}
				say("[green]participant removed")
			}()
		}
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			app.Stop()
			return nil
		}
		return event
	})

	return app.Run()
}
