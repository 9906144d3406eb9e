package interfaces

import (
	"context"

	"selfheal/domain/entities"
)

// LocatorAdvisor suggests a replacement selector for a broken locator
type LocatorAdvisor interface {
	// SuggestLocator returns a candidate selector; it is only ever shown
	// to the operator, never written to the store
	SuggestLocator(ctx context.Context, action entities.Action, failedSelector string) (string, error)
}
