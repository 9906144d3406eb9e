package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/playwright-community/playwright-go"
	"github.com/sirupsen/logrus"
)

type playwrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
	logger  *logrus.Logger
}

// NewPlaywrightDriver - starts playwright and launches chromium
func NewPlaywrightDriver(opts Options, logger *logrus.Logger) (interfaces.BrowserDriver, error) {
	opts = opts.withDefaults()

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	args := []string{
		"--disable-popup-blocking",
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
	}
	if opts.Headless {
		args = append(args, "--no-sandbox", "--disable-setuid-sandbox")
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		SlowMo:   playwright.Float(millis(opts.SlowMo)),
		Args:     args,
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	logger.WithField("headless", opts.Headless).Info("Playwright browser launched")
	return &playwrightDriver{pw: pw, browser: browser, opts: opts, logger: logger}, nil
}

// NewPage - opens a page in a fresh browser context
func (d *playwrightDriver) NewPage(ctx context.Context) (interfaces.BrowserPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bctx, err := d.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  d.opts.ViewportWidth,
			Height: d.opts.ViewportHeight,
		},
		JavaScriptEnabled: playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.OnDialog(func(dialog playwright.Dialog) {
		dialog.Accept()
	})

	return &playwrightPage{context: bctx, page: page, opts: d.opts}, nil
}

// Close - closes the browser and stops playwright
func (d *playwrightDriver) Close() error {
	var closeErr error
	if d.browser != nil {
		if err := d.browser.Close(); err != nil && !isClosedErr(err) {
			closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
		d.browser = nil
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("failed to stop playwright: %w", err)
		}
		d.pw = nil
	}
	return closeErr
}

type playwrightPage struct {
	context playwright.BrowserContext
	page    playwright.Page
	opts    Options
}

// Navigate - navigates to the specified URL
func (p *playwrightPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(millis(p.opts.NavigationTimeout)),
	})
	return err
}

// Click - clicks the first element matching selector
func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(millis(p.opts.ActionTimeout)),
	})
	return mapPlaywrightErr(selector, err)
}

// Fill - replaces the value of the first input matching selector
func (p *playwrightPage) Fill(ctx context.Context, selector string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: playwright.Float(millis(p.opts.ActionTimeout)),
	})
	return mapPlaywrightErr(selector, err)
}

// Wait - pauses the script
func (p *playwrightPage) Wait(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// PickElement - lets the operator click the intended element in the page
func (p *playwrightPage) PickElement(ctx context.Context, failedSelector string, action string) (string, error) {
	return pickElement(ctx, p, p.opts.PickerInterval, failedSelector, action)
}

// Close - closes the page together with its context
func (p *playwrightPage) Close() error {
	if err := p.page.Close(); err != nil && !isClosedErr(err) {
		return err
	}
	if err := p.context.Close(); err != nil && !isClosedErr(err) {
		return err
	}
	return nil
}

func (p *playwrightPage) install() error {
	_, err := p.page.Evaluate(overlayScript)
	return err
}

func (p *playwrightPage) show(selector, action string) error {
	_, err := p.page.Evaluate(`([s, a]) => window.__selfhealShowPicker(s, a, true)`, []interface{}{selector, action})
	return err
}

func (p *playwrightPage) take() (string, error) {
	result, err := p.page.Evaluate(`() => window.__selfhealTakePicked ? window.__selfhealTakePicked() : null`)
	if err != nil {
		return "", err
	}
	picked, _ := result.(string)
	return picked, nil
}

func (p *playwrightPage) hide() error {
	_, err := p.page.Evaluate(`() => window.__selfhealHidePicker && window.__selfhealHidePicker()`)
	return err
}

// mapPlaywrightErr turns playwright timeouts into entities.ErrLocatorNotFound
func mapPlaywrightErr(selector string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w", selector, entities.ErrLocatorNotFound)
	}
	return fmt.Errorf("%w: %v", entities.ErrDriver, err)
}

func isClosedErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "closed") || strings.Contains(msg, "target closed")
}
