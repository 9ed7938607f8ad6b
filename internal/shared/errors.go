package shared

import "errors"

var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the referenced resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a state-incompatible operation or duplicate.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock indicates a consumption exceeding available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUnauthorized indicates a missing or invalid credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the actor lacks the required role or assignment.
	ErrForbidden = errors.New("forbidden")
	// ErrPolicy indicates an operation blocked by a business rule from settings.
	ErrPolicy = errors.New("blocked by policy")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserSafeMessage returns a message suitable for API clients. Internal
// errors are collapsed to a generic message so details stay in the logs.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrPolicy),
		errors.Is(err, ErrInvalidCredentials):
		return err.Error()
	default:
		return "internal error"
	}
}
