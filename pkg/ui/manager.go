package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tierone/installd/pkg/types"
)

// Watcher renders the event stream of a service until the watched
// operation ends.
type Watcher struct {
	out          io.Writer
	interactive  bool
	exitOnSettle bool
}

// WatcherOption configures a watcher.
type WatcherOption func(*Watcher)

// WithInteractive selects the Bubbletea view instead of line output.
func WithInteractive(interactive bool) WatcherOption {
	return func(w *Watcher) {
		w.interactive = interactive
	}
}

// WithExitOnSettle stops the watcher once a phase run ends.
func WithExitOnSettle(exit bool) WatcherOption {
	return func(w *Watcher) {
		w.exitOnSettle = exit
	}
}

// NewWatcher creates a watcher writing to out.
func NewWatcher(out io.Writer, opts ...WatcherOption) *Watcher {
	w := &Watcher{out: out}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run renders events until done yields, events is closed or ctx is done.
// done may be nil. The error received from done is returned.
func (w *Watcher) Run(ctx context.Context, events <-chan types.Event, done <-chan error) error {
	if w.interactive {
		return w.runInteractive(ctx, events, done)
	}
	return w.runSimple(ctx, events, done)
}

func (w *Watcher) runInteractive(ctx context.Context, events <-chan types.Event, done <-chan error) error {
	p := tea.NewProgram(NewModel(w.exitOnSettle), tea.WithOutput(w.out))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					p.Send(DoneMsg{})
					return
				}
				p.Send(EventMsg(ev))
			case err := <-done:
				p.Send(DoneMsg{Err: err})
				return
			case <-ctx.Done():
				p.Quit()
				return
			case <-stop:
				return
			}
		}
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if m, ok := final.(Model); ok {
		return m.Err()
	}
	return nil
}

func (w *Watcher) runSimple(ctx context.Context, events <-chan types.Event, done <-chan error) error {
	printer := NewPrinter(w.out)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				printer.Complete(nil)
				return nil
			}
			if err := printer.Update(ev); err != nil {
				return err
			}
			if w.exitOnSettle && printer.state.settled() {
				printer.Complete(nil)
				return nil
			}
		case err := <-done:
			printer.Complete(err)
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Printer writes one line per state change for non-interactive output.
type Printer struct {
	out   io.Writer
	state *watchState
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, state: newWatchState()}
}

// Update applies ev and prints what changed.
func (p *Printer) Update(ev types.Event) error {
	before := *p.state
	prevSnap, hadSnap := p.state.progress[ev.Source]

	if err := p.state.apply(ev); err != nil {
		return err
	}
	s := p.state

	switch ev.Type {
	case types.EventManager:
		fmt.Fprintf(p.out, "● phase %s, %s\n", s.phase, s.status)
	case types.EventPhase:
		if before.phase != s.phase {
			fmt.Fprintf(p.out, "%s phase %s\n", SymbolSuccess, s.phase)
		}
	case types.EventStatus:
		if before.status != s.status {
			fmt.Fprintf(p.out, "● %s\n", s.status)
		}
	case types.EventBusy:
		if len(s.busy) > 0 {
			fmt.Fprintf(p.out, "● busy: %s\n", strings.Join(s.busy, ", "))
		}
	case types.EventProgress:
		snap := s.progress[ev.Source]
		if hadSnap && prevSnap == snap {
			return nil
		}
		if label := stepLabel(snap); label != "" && snap.CurrentStep > 0 {
			fmt.Fprintf(p.out, "  %s: %s\n", ev.Source, label)
		}
	case types.EventProduct:
		fmt.Fprintf(p.out, "● product %s selected\n", s.product)
	case types.EventRegistration:
		if s.registered {
			fmt.Fprintln(p.out, "● system registered")
		} else {
			fmt.Fprintln(p.out, "● system not registered")
		}
	}
	return nil
}

// Complete prints the final line.
func (p *Printer) Complete(err error) {
	if err != nil {
		fmt.Fprintf(p.out, "\n%s %v\n", SymbolError, err)
		return
	}
	fmt.Fprintf(p.out, "\n%s %s phase reached\n", SymbolSuccess, p.state.phase)
}

// Watch renders events on stdout until the stream ends or ctx is done.
// With exitOnFinish it returns once a phase run seen on the stream ends.
func Watch(ctx context.Context, events <-chan types.Event, interactive, exitOnFinish bool) error {
	w := NewWatcher(os.Stdout, WithInteractive(interactive), WithExitOnSettle(exitOnFinish))
	return w.Run(ctx, events, nil)
}
