package healing

import (
	"context"
	"errors"
	"fmt"

	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// errCanceled ends a session silently; the channel is gone
var errCanceled = errors.New("session canceled")

// run executes the session until it reaches a terminal state or ctx is canceled
func (c *Controller) run(ctx context.Context, session *entities.ExecutionSession, corrections <-chan string) {
	log := c.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"url":        session.URL,
		"actions":    len(session.Actions),
	})
	log.Info("Session started")

	// the session stays active until its final event is out, so a new
	// execution on the channel cannot interleave with it
	err := c.drive(ctx, log, session, corrections)
	switch {
	case err == nil:
		log.Info("Session succeeded")
		c.emit(ctx, entities.StatusEvent(entities.StatusSuccess, "Execution completed successfully!"))
		c.finish(session, entities.StateSucceeded)

	case errors.Is(err, errCanceled) || ctx.Err() != nil:
		log.Info("Session canceled")
		c.finish(session, entities.StateFailed)

	default:
		log.WithError(err).Warn("Session failed")
		c.emit(ctx, entities.StatusEvent(entities.StatusError, "Error: "+err.Error()))
		c.finish(session, entities.StateFailed)
	}
}

func (c *Controller) drive(ctx context.Context, log *logrus.Entry, session *entities.ExecutionSession, corrections <-chan string) error {
	if err := c.emit(ctx, entities.StatusEvent(entities.StatusInfo, "Starting execution...")); err != nil {
		return err
	}

	page, err := c.driver.NewPage(ctx)
	if err != nil {
		return c.classify(ctx, fmt.Errorf("failed to open page: %w", err))
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.WithError(err).Debug("Failed to close page")
		}
	}()

	if err := page.Navigate(ctx, session.URL); err != nil {
		return c.classify(ctx, fmt.Errorf("failed to navigate to %s: %w", session.URL, err))
	}

	for {
		action, ok := session.Current()
		if !ok {
			return nil
		}
		if err := c.step(ctx, log, session, page, action, corrections); err != nil {
			return err
		}
		if !c.advance(session) {
			return nil
		}
	}
}

// step performs the action under the cursor, healing its locator once if needed
func (c *Controller) step(ctx context.Context, log *logrus.Entry, session *entities.ExecutionSession, page interfaces.BrowserPage, action entities.Action, corrections <-chan string) error {
	log = log.WithFields(logrus.Fields{"cursor": session.Cursor, "action": action.Type})

	selector, err := c.resolve(ctx, action)
	if err != nil {
		return err
	}

	outcome := c.perform(ctx, page, action, selector)
	if outcome == nil {
		log.WithField("selector", selector).Debug("Action succeeded")
		return c.emit(ctx, entities.StatusEvent(entities.StatusInfo, action.Describe(selector)))
	}
	if !errors.Is(outcome, entities.ErrLocatorNotFound) {
		return c.classify(ctx, outcome)
	}

	log.WithField("selector", selector).Info("Locator not found, waiting for correction")
	healed, err := c.awaitCorrection(ctx, log, page, action, selector, corrections)
	if err != nil {
		return err
	}

	if err := c.locators.Put(ctx, action.Name, healed); err != nil {
		if ctx.Err() != nil {
			return errCanceled
		}
		return fmt.Errorf("%w: saving locator %q: %v", entities.ErrStoreWrite, action.Name, err)
	}
	log.WithFields(logrus.Fields{"name": action.Name, "old": selector, "new": healed}).Info("Locator healed")

	if err := c.emit(ctx, entities.LocatorUpdatedEvent(action.Name, selector, healed)); err != nil {
		return err
	}

	outcome = c.perform(ctx, page, action, healed)
	if outcome == nil {
		return c.emit(ctx, entities.StatusEvent(entities.StatusInfo, healedMessage(action, healed)))
	}
	if errors.Is(outcome, entities.ErrLocatorNotFound) && ctx.Err() == nil {
		return fmt.Errorf("%w: %s still not found after healing", entities.ErrDriver, healed)
	}
	return c.classify(ctx, outcome)
}

// resolve looks the locator name up just in time, the literal selector is the fallback
func (c *Controller) resolve(ctx context.Context, action entities.Action) (string, error) {
	if !action.NeedsLocator() {
		return "", nil
	}
	selector, found, err := c.locators.Get(ctx, action.Name)
	if err != nil {
		if ctx.Err() != nil {
			return "", errCanceled
		}
		return "", fmt.Errorf("failed to read locator %q: %w", action.Name, err)
	}
	if !found || selector == "" {
		return action.Selector, nil
	}
	return selector, nil
}

func (c *Controller) perform(ctx context.Context, page interfaces.BrowserPage, action entities.Action, selector string) error {
	switch action.Type {
	case entities.ActionClick:
		return page.Click(ctx, selector)
	case entities.ActionFill:
		return page.Fill(ctx, selector, action.Value)
	case entities.ActionWait:
		return page.Wait(ctx, action.Duration())
	default:
		return fmt.Errorf("%w: unsupported action %q", entities.ErrDriver, action.Type)
	}
}

// awaitCorrection enters WaitingForCorrection and blocks until a correction
// arrives over the channel or from the in-page picker
func (c *Controller) awaitCorrection(ctx context.Context, log *logrus.Entry, page interfaces.BrowserPage, action entities.Action, selector string, corrections <-chan string) (string, error) {
	c.setState(entities.StateWaitingForCorrection, corrections)

	if err := c.emit(ctx, entities.WaitingForClickEvent(action.Name, selector)); err != nil {
		return "", err
	}

	pickCtx, stopPicker := context.WithCancel(ctx)
	pickerDone := c.startPicker(pickCtx, log, page, action, selector)
	defer func() {
		stopPicker()
		<-pickerDone
	}()

	c.suggest(ctx, log, action, selector)

	select {
	case <-ctx.Done():
		return "", errCanceled
	case healed := <-corrections:
		c.setState(entities.StateRunning, nil)
		return healed, nil
	}
}

// startPicker runs the in-page picker when enabled; the returned channel is
// closed once the picker goroutine has exited
func (c *Controller) startPicker(ctx context.Context, log *logrus.Entry, page interfaces.BrowserPage, action entities.Action, selector string) <-chan struct{} {
	done := make(chan struct{})
	picker, ok := page.(interfaces.ElementPicker)
	if !c.inPagePicker || !ok {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		picked, err := picker.PickElement(ctx, selector, string(action.Type))
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("In-page picker failed")
			}
			return
		}
		c.Correct(picked)
	}()
	return done
}

// suggest asks the advisor for a replacement and shows it to the operator
func (c *Controller) suggest(ctx context.Context, log *logrus.Entry, action entities.Action, selector string) {
	if c.advisor == nil {
		return
	}
	actx, cancel := context.WithTimeout(ctx, c.advisorTimeout)
	defer cancel()

	suggestion, err := c.advisor.SuggestLocator(actx, action, selector)
	if err != nil || suggestion == "" || suggestion == selector {
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("Locator advisor failed")
		}
		return
	}
	c.emit(ctx, entities.StatusEvent(entities.StatusInfo, "Suggested locator: "+suggestion))
}

// setState changes the session state; entering WaitingForCorrection drains
// any stale correction first
func (c *Controller) setState(state entities.ExecutionState, corrections <-chan string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state == entities.StateWaitingForCorrection {
		for drained := false; !drained; {
			select {
			case <-corrections:
			default:
				drained = true
			}
		}
	}
	if c.session != nil {
		c.session.State = state
	}
}

// advance moves the cursor under the lock Session() reads it with
func (c *Controller) advance(session *entities.ExecutionSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return session.Advance()
}

func (c *Controller) finish(session *entities.ExecutionSession, state entities.ExecutionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session.State = state
}

// classify maps a failure onto the error taxonomy
func (c *Controller) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errCanceled
	}
	if errors.Is(err, entities.ErrDriver) {
		return err
	}
	return fmt.Errorf("%w: %v", entities.ErrDriver, err)
}

// emit sends an event unless the session has been canceled
func (c *Controller) emit(ctx context.Context, event entities.Event) error {
	if ctx.Err() != nil {
		return errCanceled
	}
	if err := c.sink.Send(ctx, event); err != nil {
		return errCanceled
	}
	return nil
}

func healedMessage(action entities.Action, selector string) string {
	switch action.Type {
	case entities.ActionFill:
		return fmt.Sprintf("Filled with new locator: %s", selector)
	default:
		return fmt.Sprintf("Clicked with new locator: %s", selector)
	}
}
