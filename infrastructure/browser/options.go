package browser

import (
	"fmt"
	"strings"
	"time"

	"selfheal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// Supported browser engines
const (
	EnginePlaywright = "playwright"
	EngineRod        = "rod"
	EngineSelenium   = "selenium"
)

// Options configures the browser drivers
type Options struct {
	Engine   string
	Headless bool
	SlowMo   time.Duration

	// ActionTimeout bounds how long a click or fill waits for its element
	// before the locator counts as not found
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
	PickerInterval    time.Duration

	ViewportWidth  int
	ViewportHeight int

	// Selenium only
	WebDriverURL     string
	ChromeDriverPath string
	ChromeDriverPort int
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Engine:            EnginePlaywright,
		ActionTimeout:     5 * time.Second,
		NavigationTimeout: 30 * time.Second,
		PickerInterval:    500 * time.Millisecond,
		ViewportWidth:     1280,
		ViewportHeight:    720,
		ChromeDriverPort:  9515,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = d.ActionTimeout
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = d.NavigationTimeout
	}
	if o.PickerInterval <= 0 {
		o.PickerInterval = d.PickerInterval
	}
	if o.ViewportWidth <= 0 || o.ViewportHeight <= 0 {
		o.ViewportWidth, o.ViewportHeight = d.ViewportWidth, d.ViewportHeight
	}
	if o.ChromeDriverPort == 0 {
		o.ChromeDriverPort = d.ChromeDriverPort
	}
	return o
}

// NewDriver - launches the browser engine selected in opts
func NewDriver(opts Options, logger *logrus.Logger) (interfaces.BrowserDriver, error) {
	opts = opts.withDefaults()
	switch strings.ToLower(opts.Engine) {
	case "", EnginePlaywright:
		return NewPlaywrightDriver(opts, logger)
	case EngineRod:
		return NewRodDriver(opts, logger)
	case EngineSelenium:
		return NewSeleniumDriver(opts, logger)
	default:
		return nil, fmt.Errorf("unknown browser engine %q", opts.Engine)
	}
}

func millis(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}
