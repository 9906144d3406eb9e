package entities

import "errors"

var (
	// ErrLocatorNotFound is returned by drivers when the selector matches no element.
	// It is recoverable and triggers healing.
	ErrLocatorNotFound = errors.New("locator not found")

	// ErrDriver marks any other failure of the browser driver
	ErrDriver = errors.New("driver error")

	// ErrStoreWrite marks a rejected write in the persistence layer
	ErrStoreWrite = errors.New("store write failed")

	// ErrInvalidRequest marks a malformed or conflicting execute request
	ErrInvalidRequest = errors.New("invalid request")
)
