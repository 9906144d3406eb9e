package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"selfheal/domain/entities"

	"github.com/sirupsen/logrus"
)

// ErrAborted is returned by Run when the operator quits while a correction is awaited
var ErrAborted = errors.New("execution aborted by operator")

// Runner is the part of the execution controller the console drives
type Runner interface {
	Execute(ctx context.Context, req entities.ExecuteRequest) error
	Correct(selector string) bool
	Close()
}

// Console runs a single script from the terminal. It is the event sink of
// its controller: events are printed as they arrive and a pending
// correction is answered with a selector typed on the input.
type Console struct {
	in     io.Reader
	out    io.Writer
	logger *logrus.Logger

	mu     sync.Mutex
	events chan entities.Event
}

// NewConsole - creates a console reading corrections from in and printing events to out
func NewConsole(in io.Reader, out io.Writer, logger *logrus.Logger) *Console {
	return &Console{
		in:     in,
		out:    out,
		logger: logger,
		events: make(chan entities.Event, 16),
	}
}

// Send prints the event and hands it to Run
func (c *Console) Send(ctx context.Context, event entities.Event) error {
	c.print(event)

	select {
	case c.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes req and blocks until it reaches a terminal state.
// It returns nil on success.
func (c *Console) Run(ctx context.Context, runner Runner, req entities.ExecuteRequest) error {
	defer runner.Close()

	if err := runner.Execute(ctx, req); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)

	lines := readLines(c.in, done)
	waiting := false

	for {
		// input is only consumed while a correction is awaited
		var input <-chan string
		if waiting {
			input = lines
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case event := <-c.events:
			switch event.Name {
			case entities.EventWaitingForClick:
				waiting = true
			case entities.EventLocatorUpdated:
				waiting = false
			case entities.EventStatus:
				status, _ := event.Data.(entities.Status)
				switch status.Type {
				case entities.StatusSuccess:
					return nil
				case entities.StatusError:
					return errors.New(strings.TrimPrefix(status.Message, "Error: "))
				}
			}

		case line, ok := <-input:
			if !ok {
				return fmt.Errorf("%w: input closed", ErrAborted)
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "quit", "exit", "q":
				return ErrAborted
			}
			// one answer per prompt; the outcome of the heal arrives as events
			waiting = false
			if !runner.Correct(line) {
				c.logger.WithField("selector", line).Debug("Correction not accepted")
			}
		}
	}
}

func (c *Console) print(event entities.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch data := event.Data.(type) {
	case entities.Status:
		fmt.Fprintf(c.out, "[%s] %s\n", data.Type, data.Message)
	case entities.PendingCorrection:
		fmt.Fprintf(c.out, "\nElement not found for %s (%s).\n", data.Action, data.Selector)
		fmt.Fprintln(c.out, "Click the intended element in the browser or type a selector, 'quit' to abort.")
		fmt.Fprint(c.out, "> ")
	case entities.LocatorUpdate:
		fmt.Fprintf(c.out, "Locator %s updated: %s -> %s\n", data.Name, data.Old, data.New)
	default:
		fmt.Fprintf(c.out, "%s: %v\n", event.Name, event.Data)
	}
}

// readLines feeds the lines of r to the returned channel and closes it at
// EOF. It stops handing out lines once done is closed.
func readLines(r io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}
