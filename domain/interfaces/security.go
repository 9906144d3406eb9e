package interfaces

import "selfheal/domain/entities"

// RequestGuard validates execute requests before a session is created
type RequestGuard interface {
	// ValidateExecute returns an error wrapping entities.ErrInvalidRequest
	// when the request must be rejected
	ValidateExecute(req entities.ExecuteRequest) error
}
