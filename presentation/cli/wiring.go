package cli

import (
	"context"
	"fmt"

	"selfheal/application/healing"
	"selfheal/domain/interfaces"
	"selfheal/infrastructure/ai"
	"selfheal/infrastructure/browser"
	"selfheal/infrastructure/security"
	"selfheal/infrastructure/storage"
)

func (a *app) openStorage(ctx context.Context) (interfaces.Storage, error) {
	return storage.Open(ctx, storage.Options{
		Backend: a.cfg.Storage.Backend,
		Dir:     a.cfg.Storage.Dir,
		Path:    a.cfg.Storage.Path,
		DSN:     a.cfg.Storage.DSN,
	}, a.logger)
}

func (a *app) browserOptions() browser.Options {
	b := a.cfg.Browser
	return browser.Options{
		Engine:            b.Engine,
		Headless:          b.Headless,
		SlowMo:            b.SlowMo,
		ActionTimeout:     b.ActionTimeout,
		NavigationTimeout: b.NavigationTimeout,
		PickerInterval:    b.PickerInterval,
		ViewportWidth:     b.ViewportWidth,
		ViewportHeight:    b.ViewportHeight,
		WebDriverURL:      b.WebDriverURL,
		ChromeDriverPath:  b.ChromeDriverPath,
		ChromeDriverPort:  b.ChromeDriverPort,
	}
}

// controllerOptions assembles the guard, the optional advisor and the picker setting
func (a *app) controllerOptions() ([]healing.Option, error) {
	guard := security.NewRequestGuard(a.logger, a.cfg.Healing.MaxCodeBytes, a.cfg.Healing.AllowedHosts)

	opts := []healing.Option{
		healing.WithGuard(guard),
		healing.WithInPagePicker(a.cfg.Healing.InPagePicker && !a.cfg.Browser.Headless),
	}

	if a.cfg.Advisor.Enabled {
		advisor, err := ai.NewOpenAIAdvisor(a.cfg.Advisor.APIKey, a.cfg.Advisor.Model, a.cfg.Advisor.BaseURL, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize locator advisor: %w", err)
		}
		opts = append(opts, healing.WithAdvisor(advisor, a.cfg.Advisor.Timeout))
	}
	return opts, nil
}
