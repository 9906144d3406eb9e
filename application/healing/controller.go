package healing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"selfheal/application/script"
	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultAdvisorTimeout = 15 * time.Second

// Option configures a Controller
type Option func(*Controller)

// WithGuard sets the validator applied to execute requests
func WithGuard(guard interfaces.RequestGuard) Option {
	return func(c *Controller) { c.guard = guard }
}

// WithAdvisor enables locator suggestions while waiting for a correction
func WithAdvisor(advisor interfaces.LocatorAdvisor, timeout time.Duration) Option {
	return func(c *Controller) {
		c.advisor = advisor
		if timeout > 0 {
			c.advisorTimeout = timeout
		}
	}
}

// WithInPagePicker lets the operator click the element in the browser
// window when the page supports it
func WithInPagePicker(enabled bool) Option {
	return func(c *Controller) { c.inPagePicker = enabled }
}

// Controller drives one channel's execution sessions through the
// Running / WaitingForCorrection state machine. At most one session is
// active at a time.
type Controller struct {
	driver   interfaces.BrowserDriver
	locators interfaces.LocatorStore
	sink     interfaces.EventSink
	guard    interfaces.RequestGuard
	advisor  interfaces.LocatorAdvisor
	logger   *logrus.Logger

	advisorTimeout time.Duration
	inPagePicker   bool

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu          sync.Mutex
	session     *entities.ExecutionSession
	corrections chan string
	closed      bool
}

// NewController - creates a controller bound to one event sink
func NewController(driver interfaces.BrowserDriver, locators interfaces.LocatorStore, sink interfaces.EventSink, logger *logrus.Logger, opts ...Option) *Controller {
	ctx, stop := context.WithCancel(context.Background())
	c := &Controller{
		driver:         driver,
		locators:       locators,
		sink:           sink,
		logger:         logger,
		advisorTimeout: defaultAdvisorTimeout,
		ctx:            ctx,
		stop:           stop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute validates the request and starts a session in the background.
// Invalid requests are reported with an error status event and an error
// wrapping entities.ErrInvalidRequest; no session is created for them.
func (c *Controller) Execute(ctx context.Context, req entities.ExecuteRequest) error {
	actions, err := c.prepare(req)
	if err != nil {
		c.logger.WithError(err).Warn("Rejected execute request")
		if sendErr := c.sink.Send(ctx, entities.StatusEvent(entities.StatusError, "Error: "+err.Error())); sendErr != nil {
			c.logger.WithError(sendErr).Debug("Failed to report rejected request")
		}
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: channel is closed", entities.ErrInvalidRequest)
	}
	if c.session != nil && c.session.State.Active() {
		c.mu.Unlock()
		err := fmt.Errorf("%w: an execution is already in progress", entities.ErrInvalidRequest)
		c.logger.WithError(err).Warn("Rejected execute request")
		if sendErr := c.sink.Send(ctx, entities.StatusEvent(entities.StatusError, "Error: "+err.Error())); sendErr != nil {
			c.logger.WithError(sendErr).Debug("Failed to report rejected request")
		}
		return err
	}

	session := &entities.ExecutionSession{
		ID:      uuid.NewString(),
		Actions: actions,
		URL:     strings.TrimSpace(req.URL),
		State:   entities.StateRunning,
	}
	c.session = session
	c.corrections = make(chan string, 1)
	corrections := c.corrections
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.run(c.ctx, session, corrections)
	}()
	return nil
}

// Correct delivers a replacement selector for the pending action.
// It reports false and changes nothing when no correction is awaited.
func (c *Controller) Correct(selector string) bool {
	selector = strings.TrimSpace(selector)

	c.mu.Lock()
	defer c.mu.Unlock()

	if selector == "" || c.session == nil || c.session.State != entities.StateWaitingForCorrection {
		c.logger.WithField("selector", selector).Debug("Dropped correction outside of WaitingForCorrection")
		return false
	}

	select {
	case c.corrections <- selector:
		return true
	default:
		c.logger.WithField("selector", selector).Debug("Dropped correction, one is already pending")
		return false
	}
}

// State returns the state of the current session, Idle when there is none
func (c *Controller) State() entities.ExecutionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return entities.StateIdle
	}
	return c.session.State
}

// Session returns a copy of the current session
func (c *Controller) Session() (entities.ExecutionSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return entities.ExecutionSession{}, false
	}
	s := *c.session
	s.Actions = append([]entities.Action(nil), c.session.Actions...)
	return s, true
}

// Close cancels any running session without emitting further events and
// waits for it to tear down.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
}

// prepare validates the request and parses the script
func (c *Controller) prepare(req entities.ExecuteRequest) ([]entities.Action, error) {
	if c.guard != nil {
		if err := c.guard.ValidateExecute(req); err != nil {
			return nil, err
		}
	} else if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.URL) == "" {
		return nil, fmt.Errorf("%w: code and url are required", entities.ErrInvalidRequest)
	}

	actions, err := script.Parse(req.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrInvalidRequest, err)
	}
	return actions, nil
}
