package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

type rodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	opts     Options
	logger   *logrus.Logger
}

// NewRodDriver - launches chromium over the devtools protocol
func NewRodDriver(opts Options, logger *logrus.Logger) (interfaces.BrowserDriver, error) {
	opts = opts.withDefaults()

	l := launcher.New().Headless(opts.Headless)
	if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u).SlowMotion(opts.SlowMo)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	logger.WithField("headless", opts.Headless).Info("Rod browser launched")
	return &rodDriver{launcher: l, browser: browser, opts: opts, logger: logger}, nil
}

// NewPage - opens a blank page
func (d *rodDriver) NewPage(ctx context.Context) (interfaces.BrowserPage, error) {
	page, err := d.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	// drop the creation context, each call below binds its own
	page = page.Context(context.Background())

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             d.opts.ViewportWidth,
		Height:            d.opts.ViewportHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	return &rodPage{page: page, opts: d.opts}, nil
}

// Close - closes the browser and kills the launched process
func (d *rodDriver) Close() error {
	err := d.browser.Close()
	d.launcher.Kill()
	return err
}

type rodPage struct {
	page *rod.Page
	opts Options
}

// Navigate - navigates and waits for the load event
func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx).Timeout(p.opts.NavigationTimeout)
	defer page.CancelTimeout()

	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

// Click - clicks the first element matching selector
func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("%w: %v", entities.ErrDriver, err)
	}
	return nil
}

// Fill - selects the current value and types the new one over it
func (p *rodPage) Fill(ctx context.Context, selector string, value string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	el = el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("%w: %v", entities.ErrDriver, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("%w: %v", entities.ErrDriver, err)
	}
	return nil
}

// Wait - pauses the script
func (p *rodPage) Wait(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// PickElement - lets the operator click the intended element in the page
func (p *rodPage) PickElement(ctx context.Context, failedSelector string, action string) (string, error) {
	return pickElement(ctx, p, p.opts.PickerInterval, failedSelector, action)
}

// Close - closes the page
func (p *rodPage) Close() error {
	return p.page.Close()
}

// element waits up to the action timeout for selector to match
func (p *rodPage) element(ctx context.Context, selector string) (*rod.Element, error) {
	page := p.page.Context(ctx).Timeout(p.opts.ActionTimeout)
	defer page.CancelTimeout()

	el, err := page.Element(selector)
	if err == nil {
		return el, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%s: %w", selector, entities.ErrLocatorNotFound)
	}
	return nil, fmt.Errorf("%w: %v", entities.ErrDriver, err)
}

func (p *rodPage) install() error {
	_, err := p.page.Eval(overlayScript)
	return err
}

func (p *rodPage) show(selector, action string) error {
	_, err := p.page.Eval(`(s, a) => window.__selfhealShowPicker(s, a, false)`, selector, action)
	return err
}

func (p *rodPage) take() (string, error) {
	obj, err := p.page.Eval(`() => window.__selfhealTakePicked ? window.__selfhealTakePicked() : null`)
	if err != nil {
		return "", err
	}
	if obj.Value.Nil() {
		return "", nil
	}
	return obj.Value.Str(), nil
}

func (p *rodPage) hide() error {
	_, err := p.page.Eval(`() => window.__selfhealHidePicker && window.__selfhealHidePicker()`)
	return err
}
