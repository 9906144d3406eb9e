package healing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDriver hands out fakePages that know a fixed set of selectors
type fakeDriver struct {
	page interfaces.BrowserPage
	err  error
}

func (d *fakeDriver) NewPage(ctx context.Context) (interfaces.BrowserPage, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.page, nil
}

func (d *fakeDriver) Close() error { return nil }

type fakePage struct {
	mu       sync.Mutex
	present  map[string]bool
	clickErr error
	gate     chan struct{}
	entered  chan struct{}
	clicked  []string
	filled   map[string]string
	url      string
	closed   bool
}

func newFakePage(selectors ...string) *fakePage {
	p := &fakePage{present: map[string]bool{}, filled: map[string]string{}}
	for _, s := range selectors {
		p.present[s] = true
	}
	return p
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	if p.gate != nil {
		if p.entered != nil {
			close(p.entered)
			p.entered = nil
		}
		select {
		case <-p.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clickErr != nil {
		return p.clickErr
	}
	if !p.present[selector] {
		return fmt.Errorf("click %s: %w", selector, entities.ErrLocatorNotFound)
	}
	p.clicked = append(p.clicked, selector)
	return nil
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present[selector] {
		return fmt.Errorf("fill %s: %w", selector, entities.ErrLocatorNotFound)
	}
	p.filled[selector] = value
	return nil
}

func (p *fakePage) Wait(ctx context.Context, d time.Duration) error { return nil }

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// pickingPage answers the in-page picker with a fixed selector
type pickingPage struct {
	*fakePage
	picked string
}

func (p *pickingPage) PickElement(ctx context.Context, failedSelector, action string) (string, error) {
	return p.picked, nil
}

type memoryLocators struct {
	mu     sync.Mutex
	data   map[string]string
	putErr error
}

func newMemoryLocators() *memoryLocators {
	return &memoryLocators{data: map[string]string{}}
}

func (s *memoryLocators) Get(ctx context.Context, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.data[name]
	return sel, ok, nil
}

func (s *memoryLocators) Put(ctx context.Context, name, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.data[name] = selector
	return nil
}

func (s *memoryLocators) List(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []entities.Event
}

func (s *recordingSink) Send(ctx context.Context, event entities.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) snapshot() []entities.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.Event(nil), s.events...)
}

func (s *recordingSink) count(name string) int {
	n := 0
	for _, e := range s.snapshot() {
		if e.Name == name {
			n++
		}
	}
	return n
}

// gatedSink holds back the success event until release is closed
type gatedSink struct {
	recordingSink
	once    sync.Once
	held    chan struct{}
	release chan struct{}
}

func newGatedSink() *gatedSink {
	return &gatedSink{held: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedSink) Send(ctx context.Context, event entities.Event) error {
	if st, ok := event.Data.(entities.Status); ok && st.Type == entities.StatusSuccess {
		s.once.Do(func() { close(s.held) })
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.recordingSink.Send(ctx, event)
}

type fixedAdvisor struct{ suggestion string }

func (a fixedAdvisor) SuggestLocator(ctx context.Context, action entities.Action, failedSelector string) (string, error) {
	return a.suggestion, nil
}

func newTestController(page interfaces.BrowserPage, locators *memoryLocators, opts ...Option) (*Controller, *recordingSink) {
	logger, _ := test.NewNullLogger()
	sink := &recordingSink{}
	c := NewController(&fakeDriver{page: page}, locators, sink, logger, opts...)
	return c, sink
}

func waitForState(t *testing.T, c *Controller, state entities.ExecutionState) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == state }, 2*time.Second, 5*time.Millisecond,
		"controller never reached %s, last state %s", state, c.State())
}

// waitForFinished waits for the terminal state and for the status event
// reporting it, which is emitted after the state changes
func waitForFinished(t *testing.T, c *Controller, sink *recordingSink, state entities.ExecutionState) {
	t.Helper()
	waitForState(t, c, state)
	want := entities.StatusSuccess
	if state == entities.StateFailed {
		want = entities.StatusError
	}
	require.Eventually(t, func() bool { return statusCount(sink.snapshot(), want) > 0 }, 2*time.Second, 5*time.Millisecond)
}

func waitForEvent(t *testing.T, sink *recordingSink, name string) {
	t.Helper()
	require.Eventually(t, func() bool { return sink.count(name) > 0 }, 2*time.Second, 5*time.Millisecond,
		"event %s never emitted", name)
}

func status(t entities.StatusType, msg string) entities.Event {
	return entities.StatusEvent(t, msg)
}

func statusCount(events []entities.Event, t entities.StatusType) int {
	n := 0
	for _, e := range events {
		if s, ok := e.Data.(entities.Status); ok && s.Type == t {
			n++
		}
	}
	return n
}

func TestExecute_AllActionsResolve(t *testing.T) {
	page := newFakePage("#a", "#b")
	c, sink := newTestController(page, newMemoryLocators())
	defer c.Close()

	err := c.Execute(context.Background(), entities.ExecuteRequest{
		Code: "click('#a')\nfill('#b', 'hello')\nwait(10)",
		URL:  "https://example.com",
	})
	require.NoError(t, err)
	waitForFinished(t, c, sink, entities.StateSucceeded)

	assert.Equal(t, []entities.Event{
		status(entities.StatusInfo, "Starting execution..."),
		status(entities.StatusInfo, "Clicked: #a"),
		status(entities.StatusInfo, `Filled: #b with "hello"`),
		status(entities.StatusInfo, "Waited 10ms"),
		status(entities.StatusSuccess, "Execution completed successfully!"),
	}, sink.snapshot())

	session, ok := c.Session()
	require.True(t, ok)
	assert.Equal(t, len(session.Actions), session.Cursor)
	assert.Equal(t, "https://example.com", page.url)
	assert.Equal(t, "hello", page.filled["#b"])
	assert.Eventually(t, page.isClosed, time.Second, 5*time.Millisecond)
}

func TestExecute_HealsBrokenLocator(t *testing.T) {
	page := newFakePage("#submit")
	locators := newMemoryLocators()
	c, sink := newTestController(page, locators)
	defer c.Close()

	require.NoError(t, c.Execute(context.Background(), entities.ExecuteRequest{
		Code: "click('#submit-button', 'submitBtn')",
		URL:  "https://example.com/form",
	}))

	waitForEvent(t, sink, entities.EventWaitingForClick)
	waitForState(t, c, entities.StateWaitingForCorrection)
	assert.Equal(t, 0, sink.count(entities.EventLocatorUpdated))

	require.True(t, c.Correct("#submit"))
	waitForFinished(t, c, sink, entities.StateSucceeded)

	assert.Equal(t, []entities.Event{
		status(entities.StatusInfo, "Starting execution..."),
		entities.WaitingForClickEvent("submitBtn", "#submit-button"),
		entities.LocatorUpdatedEvent("submitBtn", "#submit-button", "#submit"),
		status(entities.StatusInfo, "Clicked with new locator: #submit"),
		status(entities.StatusSuccess, "Execution completed successfully!"),
	}, sink.snapshot())

	sel, found, _ := locators.Get(context.Background(), "submitBtn")
	assert.True(t, found)
	assert.Equal(t, "#submit", sel)
}

func TestExecute_StoredSelectorWins(t *testing.T) {
	page := newFakePage("#real")
	locators := newMemoryLocators()
	locators.data["loginBtn"] = "#real"
	c, sink := newTestController(page, locators)
	defer c.Close()

	require.NoError(t, c.Execute(context.Background(), entities.ExecuteRequest{
		Code: "click('#stale', 'loginBtn')",
		URL:  "https://example.com",
	}))
	waitForFinished(t, c, sink, entities.StateSucceeded)

	assert.Equal(t, 0, sink.count(entities.EventWaitingForClick))
	assert.Equal(t, []string{"#real"}, page.clicked)
}

func TestExecute_HealIsVisibleToLaterActions(t *testing.T) {
	page := newFakePage("#new")
	c, sink := newTestController(page, newMemoryLocators())
	defer c.Close()

	require.NoError(t, c.Execute(context.Background(), entities.ExecuteRequest{
		Code: "click('#old', 'btn')\nclick('#old', 'btn')",
		URL:  "https://example.com",
	}))
	waitForEvent(t, sink, entities.EventWaitingForClick)
	waitForState(t, c, entities.StateWaitingForCorrection)
	require.True(t, c.Correct("#new"))
	waitForFinished(t, c, sink, entities.StateSucceeded)

	assert.Equal(t, 1, sink.count(entities.EventWaitingForClick))
	events := sink.snapshot()
	assert.Equal(t, status(entities.StatusInfo, "Clicked: #new"), events[len(events)-2])
	assert.Equal(t, []string{"#new", "#new"}, page.clicked)
}

func TestCorrect_DroppedWhileRunning(t *testing.T) {
	page := newFakePage("#a")
	page.gate = make(chan struct{})
	page.entered = make(chan struct{})
	entered := page.entered
	c, sink := newTestController(page, newMemoryLocators())
	defer c.Close()

	assert.False(t, c.Correct("#x"), "no session")

	require.NoError(t, c.Execute(context.Background(), entities.ExecuteRequest{Code: "click('#a')", URL: "https://example.com"}))
	<-entered

	before := len(sink.snapshot())
	assert.False(t, c.Correct("#x"))
	assert.Equal(t, entities.StateRunning, c.State())
	assert.Len(t, sink.snapshot(), before)

	close(page.gate)
	waitForFinished(t, c, sink, entities.StateSucceeded)
	assert.Equal(t, 0, sink.count(entities.EventLocatorUpdated))
}

func TestExecute_SecondNotFoundFails(t *testing.T) {
	page := newFakePage()
	c, sink := newTestController(page, newMemoryLocators())
	defer c.Close()

	require.NoError(t, c.Execute(context.Background(), entities.ExecuteRequest{Code: "click('#gone', 'gone')", URL: "https://example.com"}))
	waitForEvent(t, sink, entities.EventWaitingForClick)
	waitForState(t, c, entities.StateWaitingForCorrection)
	require.True(t, c.Correct("#still-gone"))
	waitForFinished(t, c, sink, entities.StateFailed)

	events := sink.snapshot()
	assert.Equal(t, 1, statusCount(events, entities.StatusError))
	assert.Equal(t, 0, statusCount(events, entities.StatusSuccess))
	last := events[len(events)-1].Data.(entities.Status)
	assert.Equal(t, entities.StatusError, last.Type)
	assert.Contains(t, last.Message, "#still-gone")
}

func TestExecute_DriverErrorIsNotHealed(t *testing.T) {
	page := newFakePage("#a")
	page.clickErr = errors.New("browser crashed")
	c, sink := newTestController(page, newMemoryLocators())
	defer c.Close()

	require.NoError(t, c.Execute(context.Background(), entities.ExecuteRequest{Code: "click('#a')", URL: "https://example.com"}))
	waitForFinished(t, c, sink, entities.StateFailed)

	events := sink.snapshot()
	assert.Equal(t, 0, sink.count(entities.EventWaitingForClick))
	assert.Equal(t, 1, statusCount(events, entities.StatusError))
	assert.Contains(t, events[len(events)-1].Data.(entities.Status).Message, "browser crashed")
}

func TestExecute_StoreWriteFailureAborts(t *testing.T) {
	page := newFakePage("#new")
	locators := newMemoryLocators()
	locators.putErr = errors.New("disk full")
	c, sink := newTestController(page, locators)
	defer c.Close()

	require.NoError(t, c.Execute(context.Background(), entities.ExecuteRequest{Code: "click('#old', 'btn')", URL: "https://example.com"}))
	waitForEvent(t, sink, entities.EventWaitingForClick)
	waitForState(t, c, entities.StateWaitingForCorrection)
	require.True(t, c.Correct("#new"))
	waitForFinished(t, c, sink, entities.StateFailed)

	events := sink.snapshot()
	assert.Equal(t, 0, sink.count(entities.EventLocatorUpdated))
	assert.Empty(t, page.clicked)
	assert.Contains(t, events[len(events)-1].Data.(entities.Status).Message, entities.ErrStoreWrite.Error())
}

func TestExecute_RejectsWhileActive(t *testing.T) {
	page := newFakePage()
	c, sink := newTestController(page, newMemoryLocators())
	defer c.Close()

	req := entities.ExecuteRequest{Code: "click('#gone')", URL: "https://example.com"}
	require.NoError(t, c.Execute(context.Background(), req))
	waitForState(t, c, entities.StateWaitingForCorrection)

	err := c.Execute(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrInvalidRequest))
	assert.Equal(t, entities.StateWaitingForCorrection, c.State())
	assert.Equal(t, 1, statusCount(sink.snapshot(), entities.StatusError))
}

func TestExecute_RejectsUntilFinalEventIsSent(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sink := newGatedSink()
	c := NewController(&fakeDriver{page: newFakePage("#a")}, newMemoryLocators(), sink, logger)
	defer c.Close()

	req := entities.ExecuteRequest{Code: "click('#a')", URL: "https://example.com"}
	require.NoError(t, c.Execute(context.Background(), req))

	select {
	case <-sink.held:
	case <-time.After(2 * time.Second):
		t.Fatal("success event never sent")
	}

	err := c.Execute(context.Background(), entities.ExecuteRequest{Code: "wait(1)", URL: "https://example.com"})
	require.ErrorIs(t, err, entities.ErrInvalidRequest)
	assert.Equal(t, entities.StateRunning, c.State())

	close(sink.release)
	waitForFinished(t, c, &sink.recordingSink, entities.StateSucceeded)

	assert.Equal(t, []entities.Event{
		status(entities.StatusInfo, "Starting execution..."),
		status(entities.StatusInfo, "Clicked: #a"),
		status(entities.StatusError, "Error: invalid request: an execution is already in progress"),
		status(entities.StatusSuccess, "Execution completed successfully!"),
	}, sink.snapshot())
}

func TestSession_ReadableWhileRunning(t *testing.T) {
	c, sink := newTestController(newFakePage(), newMemoryLocators())
	defer c.Close()

	code := ""
	for i := 0; i < 50; i++ {
		code += "wait(1)\n"
	}
	require.NoError(t, c.Execute(context.Background(), entities.ExecuteRequest{Code: code, URL: "https://example.com"}))

	last := 0
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != entities.StateSucceeded {
		require.True(t, time.Now().Before(deadline), "session never finished")
		session, ok := c.Session()
		require.True(t, ok)
		require.GreaterOrEqual(t, session.Cursor, last)
		last = session.Cursor
		time.Sleep(time.Millisecond)
	}
	waitForFinished(t, c, sink, entities.StateSucceeded)

	session, _ := c.Session()
	assert.Equal(t, 50, session.Cursor)
}

func TestExecute_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  entities.ExecuteRequest
	}{
		{"empty code", entities.ExecuteRequest{Code: "  ", URL: "https://example.com"}},
		{"empty url", entities.ExecuteRequest{Code: "wait(1)"}},
		{"unparsable", entities.ExecuteRequest{Code: "hover('#a')", URL: "https://example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sink := newTestController(newFakePage(), newMemoryLocators())
			defer c.Close()

			err := c.Execute(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, entities.ErrInvalidRequest))
			assert.Equal(t, entities.StateIdle, c.State())

			events := sink.snapshot()
			require.Len(t, events, 1)
			assert.Equal(t, entities.StatusError, events[0].Data.(entities.Status).Type)
		})
	}
}

func TestClose_CancelsWithoutEvents(t *testing.T) {
	page := newFakePage()
	c, sink := newTestController(page, newMemoryLocators())

	require.NoError(t, c.Execute(context.Background(), entities.ExecuteRequest{Code: "click('#gone')\nwait(5)", URL: "https://example.com"}))
	waitForState(t, c, entities.StateWaitingForCorrection)
	before := sink.snapshot()

	c.Close()

	assert.Equal(t, before, sink.snapshot())
	assert.False(t, c.Correct("#late"))
	assert.True(t, page.isClosed())
	err := c.Execute(context.Background(), entities.ExecuteRequest{Code: "wait(1)", URL: "https://example.com"})
	assert.True(t, errors.Is(err, entities.ErrInvalidRequest))
}

func TestExecute_AdvisorSuggestionIsNotPersisted(t *testing.T) {
	page := newFakePage("#chosen")
	locators := newMemoryLocators()
	c, sink := newTestController(page, locators, WithAdvisor(fixedAdvisor{suggestion: "#suggested"}, time.Second))
	defer c.Close()

	require.NoError(t, c.Execute(context.Background(), entities.ExecuteRequest{Code: "click('#old', 'btn')", URL: "https://example.com"}))
	require.Eventually(t, func() bool {
		for _, e := range sink.snapshot() {
			if e == status(entities.StatusInfo, "Suggested locator: #suggested") {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	_, found, _ := locators.Get(context.Background(), "btn")
	assert.False(t, found)

	require.True(t, c.Correct("#chosen"))
	waitForFinished(t, c, sink, entities.StateSucceeded)
	sel, _, _ := locators.Get(context.Background(), "btn")
	assert.Equal(t, "#chosen", sel)
}

func TestExecute_InPagePickerHeals(t *testing.T) {
	page := &pickingPage{fakePage: newFakePage("#picked"), picked: "#picked"}
	c, sink := newTestController(page, newMemoryLocators(), WithInPagePicker(true))
	defer c.Close()

	require.NoError(t, c.Execute(context.Background(), entities.ExecuteRequest{Code: "click('#old', 'btn')", URL: "https://example.com"}))
	waitForFinished(t, c, sink, entities.StateSucceeded)

	assert.Contains(t, sink.snapshot(), entities.LocatorUpdatedEvent("btn", "#old", "#picked"))
}
