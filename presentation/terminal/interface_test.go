package terminal

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"selfheal/application/healing"
	"selfheal/domain/entities"
	"selfheal/domain/interfaces"
	"selfheal/infrastructure/storage"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubDriver struct{ present map[string]bool }

func (d *stubDriver) NewPage(ctx context.Context) (interfaces.BrowserPage, error) {
	return &stubPage{present: d.present}, nil
}

func (d *stubDriver) Close() error { return nil }

type stubPage struct{ present map[string]bool }

func (p *stubPage) Navigate(ctx context.Context, url string) error { return nil }

func (p *stubPage) Click(ctx context.Context, selector string) error {
	if !p.present[selector] {
		return fmt.Errorf("%s: %w", selector, entities.ErrLocatorNotFound)
	}
	return nil
}

func (p *stubPage) Fill(ctx context.Context, selector, value string) error {
	return p.Click(ctx, selector)
}

func (p *stubPage) Wait(ctx context.Context, d time.Duration) error { return nil }
func (p *stubPage) Close() error                                   { return nil }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func setup(t *testing.T, input string, present ...string) (*Console, *healing.Controller, interfaces.LocatorStore, *syncBuffer) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store, err := storage.NewFileStorage(t.TempDir(), logger)
	require.NoError(t, err)

	driver := &stubDriver{present: map[string]bool{}}
	for _, s := range present {
		driver.present[s] = true
	}

	out := &syncBuffer{}
	console := NewConsole(strings.NewReader(input), out, logger)
	ctrl := healing.NewController(driver, store.Locators(), console, logger)
	return console, ctrl, store.Locators(), out
}

func request(code string) entities.ExecuteRequest {
	return entities.ExecuteRequest{Code: code, URL: "https://example.com"}
}

func TestConsole_Succeeds(t *testing.T) {
	console, ctrl, _, out := setup(t, "", "#a")

	err := console.Run(context.Background(), ctrl, request("click('#a')\nwait(10)"))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "[info] Starting execution...")
	assert.Contains(t, out.String(), "[info] Clicked: #a")
	assert.Contains(t, out.String(), "[success] Execution completed successfully!")
}

func TestConsole_HealsFromTypedSelector(t *testing.T) {
	console, ctrl, locators, out := setup(t, "\n#submit\n", "#submit")

	err := console.Run(context.Background(), ctrl, request("click('#submit-button', 'submitBtn')"))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Element not found for submitBtn (#submit-button).")
	assert.Contains(t, out.String(), "Locator submitBtn updated: #submit-button -> #submit")

	sel, found, err := locators.Get(context.Background(), "submitBtn")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "#submit", sel)
}

func TestConsole_QuitAborts(t *testing.T) {
	console, ctrl, _, _ := setup(t, "quit\n")

	err := console.Run(context.Background(), ctrl, request("click('#gone')"))
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, entities.StateFailed, ctrl.State())
}

func TestConsole_InputClosedAborts(t *testing.T) {
	console, ctrl, _, _ := setup(t, "")

	err := console.Run(context.Background(), ctrl, request("click('#gone')"))
	assert.ErrorIs(t, err, ErrAborted)
}

func TestConsole_ReportsFailure(t *testing.T) {
	console, ctrl, _, out := setup(t, "#still-missing\n")

	err := console.Run(context.Background(), ctrl, request("click('#gone')"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still not found after healing")
	assert.Contains(t, out.String(), "[error] Error:")
}

func TestConsole_RejectsInvalidRequest(t *testing.T) {
	console, ctrl, _, out := setup(t, "")

	err := console.Run(context.Background(), ctrl, entities.ExecuteRequest{Code: "click('#a')"})
	assert.ErrorIs(t, err, entities.ErrInvalidRequest)
	assert.Contains(t, out.String(), "[error]")
}

func TestConsole_PipedCorrectionThenEOFHeals(t *testing.T) {
	// input ends right after the answer, the accepted heal must still finish
	for i := 0; i < 20; i++ {
		console, ctrl, _, out := setup(t, "#submit", "#submit")

		err := console.Run(context.Background(), ctrl, request("click('#submit-button', 'submitBtn')\nclick('#submit-button', 'submitBtn')"))
		require.NoError(t, err)
		assert.Contains(t, out.String(), "[info] Clicked with new locator: #submit")
		assert.Contains(t, out.String(), "[info] Clicked: #submit")
	}
}

func TestReadLines_StopsWhenDone(t *testing.T) {
	done := make(chan struct{})
	lines := readLines(strings.NewReader("first\nsecond\nthird\n"), done)

	assert.Equal(t, "first", <-lines)
	close(done)

	closed := make(chan struct{})
	go func() {
		for range lines {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("reader goroutine did not stop")
	}
}
