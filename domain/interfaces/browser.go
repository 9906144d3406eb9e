package interfaces

import (
	"context"
	"time"
)

// BrowserDriver defines the interface for launching browser pages
type BrowserDriver interface {
	// NewPage opens a fresh page for one execution session
	NewPage(ctx context.Context) (BrowserPage, error)

	// Close shuts the underlying browser down
	Close() error
}

// BrowserPage performs actions against one live page.
// Click and Fill return an error wrapping entities.ErrLocatorNotFound when
// the selector matches nothing; any other error is a driver failure.
type BrowserPage interface {
	// Navigate navigates to a URL
	Navigate(ctx context.Context, url string) error

	// Click clicks on an element by selector
	Click(ctx context.Context, selector string) error

	// Fill replaces the value of an input element
	Fill(ctx context.Context, selector string, value string) error

	// Wait pauses for the given duration
	Wait(ctx context.Context, d time.Duration) error

	// Close closes the page
	Close() error
}

// ElementPicker is implemented by pages that can let the operator click
// the intended element directly in the browser window.
type ElementPicker interface {
	// PickElement shows the overlay for the failed selector and blocks
	// until the operator clicks an element, returning a selector for it
	PickElement(ctx context.Context, failedSelector string, action string) (string, error)
}
