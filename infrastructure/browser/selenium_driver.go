package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/sirupsen/logrus"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
)

// seleniumDriver drives Chrome through a WebDriver endpoint. One
// WebDriver session is opened per page.
type seleniumDriver struct {
	service *selenium.Service
	hubURL  string
	opts    Options
	logger  *logrus.Logger
}

// findChromeDriver - finds ChromeDriver executable path
func findChromeDriver(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
	}

	commonPaths := []string{
		"/usr/local/bin/chromedriver",
		"/usr/bin/chromedriver",
		"/opt/homebrew/bin/chromedriver",
		filepath.Join(os.Getenv("HOME"), "bin", "chromedriver"),
	}

	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if path, err := exec.LookPath("chromedriver"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("chromedriver not found, install it or set browser.chromedriver_path")
}

// NewSeleniumDriver - connects to webdriver_url, or starts a local chromedriver when it is empty
func NewSeleniumDriver(opts Options, logger *logrus.Logger) (interfaces.BrowserDriver, error) {
	opts = opts.withDefaults()

	d := &seleniumDriver{hubURL: opts.WebDriverURL, opts: opts, logger: logger}
	if d.hubURL != "" {
		logger.Infof("Using remote WebDriver at: %s", d.hubURL)
		return d, nil
	}

	driverPath, err := findChromeDriver(opts.ChromeDriverPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find chromedriver: %w", err)
	}
	logger.Infof("Using ChromeDriver at: %s", driverPath)

	service, err := selenium.NewChromeDriverService(driverPath, opts.ChromeDriverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to start chromedriver: %w", err)
	}
	d.service = service
	d.hubURL = fmt.Sprintf("http://localhost:%d/wd/hub", opts.ChromeDriverPort)
	return d, nil
}

// NewPage - opens a new WebDriver session
func (s *seleniumDriver) NewPage(ctx context.Context) (interfaces.BrowserPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	caps := selenium.Capabilities{"browserName": "chrome"}
	args := []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		fmt.Sprintf("--window-size=%d,%d", s.opts.ViewportWidth, s.opts.ViewportHeight),
	}
	if s.opts.Headless {
		args = append(args, "--headless=new", "--no-sandbox")
	}
	caps.AddChrome(chrome.Capabilities{Args: args})

	wd, err := selenium.NewRemote(caps, s.hubURL)
	if err != nil {
		if strings.Contains(err.Error(), "cannot find Chrome binary") {
			return nil, fmt.Errorf("failed to create webdriver: Chrome browser not found: %w", err)
		}
		return nil, fmt.Errorf("failed to create webdriver: %w", err)
	}

	if err := wd.SetPageLoadTimeout(s.opts.NavigationTimeout); err != nil {
		s.logger.Warnf("Failed to set page load timeout: %v", err)
	}
	return &seleniumPage{wd: wd, opts: s.opts}, nil
}

// Close - stops the local chromedriver service
func (s *seleniumDriver) Close() error {
	if s.service != nil {
		return s.service.Stop()
	}
	return nil
}

type seleniumPage struct {
	wd   selenium.WebDriver
	opts Options
}

// Navigate - navigates browser to specified URL
func (p *seleniumPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.wd.Get(url)
}

// Click - clicks on element identified by CSS selector
func (p *seleniumPage) Click(ctx context.Context, selector string) error {
	element, err := p.findElement(ctx, selector)
	if err != nil {
		return err
	}

	// Scroll element into view, a click outside the viewport is rejected
	script := `arguments[0].scrollIntoView({block: 'center'}); return true;`
	if _, err := p.wd.ExecuteScript(script, []interface{}{element}); err != nil {
		element.MoveTo(0, 0)
	}

	if err := element.Click(); err != nil {
		return fmt.Errorf("%w: %v", entities.ErrDriver, err)
	}
	return nil
}

// Fill - clears the input and types value
func (p *seleniumPage) Fill(ctx context.Context, selector string, value string) error {
	element, err := p.findElement(ctx, selector)
	if err != nil {
		return err
	}
	if err := element.Clear(); err != nil {
		return fmt.Errorf("%w: %v", entities.ErrDriver, err)
	}
	if err := element.SendKeys(value); err != nil {
		return fmt.Errorf("%w: %v", entities.ErrDriver, err)
	}
	return nil
}

// Wait - pauses the script
func (p *seleniumPage) Wait(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// PickElement - lets the operator click the intended element in the page
func (p *seleniumPage) PickElement(ctx context.Context, failedSelector string, action string) (string, error) {
	return pickElement(ctx, p, p.opts.PickerInterval, failedSelector, action)
}

// Close - ends the WebDriver session
func (p *seleniumPage) Close() error {
	return p.wd.Quit()
}

// findElement - polls for the CSS selector until the action timeout
func (p *seleniumPage) findElement(ctx context.Context, selector string) (selenium.WebElement, error) {
	var found selenium.WebElement
	condition := func(wd selenium.WebDriver) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		el, err := wd.FindElement(selenium.ByCSSSelector, selector)
		if err != nil {
			return false, nil
		}
		found = el
		return true, nil
	}

	err := p.wd.WaitWithTimeoutAndInterval(condition, p.opts.ActionTimeout, 100*time.Millisecond)
	switch {
	case err == nil:
		return found, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, fmt.Errorf("%s: %w", selector, entities.ErrLocatorNotFound)
	}
}

func (p *seleniumPage) install() error {
	_, err := p.wd.ExecuteScript("return ("+overlayScript+")();", nil)
	return err
}

func (p *seleniumPage) show(selector, action string) error {
	_, err := p.wd.ExecuteScript("return window.__selfhealShowPicker(arguments[0], arguments[1], false);", []interface{}{selector, action})
	return err
}

func (p *seleniumPage) take() (string, error) {
	result, err := p.wd.ExecuteScript("return window.__selfhealTakePicked ? window.__selfhealTakePicked() : null;", nil)
	if err != nil {
		return "", err
	}
	picked, _ := result.(string)
	return picked, nil
}

func (p *seleniumPage) hide() error {
	_, err := p.wd.ExecuteScript("if (window.__selfhealHidePicker) window.__selfhealHidePicker(); return true;", nil)
	return err
}
