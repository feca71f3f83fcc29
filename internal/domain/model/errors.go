package model

import "errors"

// Domain errors. The message doubles as the wire code.
var (
	ErrRoundNotActive     = errors.New("round_not_active")
	ErrTapNotFound        = errors.New("tap_not_found")
	ErrRoundNotFound      = errors.New("round_not_found")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("validation_error")
	ErrInvalidCredentials = errors.New("invalid_credentials")
)

var coded = []error{
	ErrRoundNotActive,
	ErrTapNotFound,
	ErrRoundNotFound,
	ErrUserNotFound,
	ErrUnauthorized,
	ErrForbidden,
	ErrInvalidInput,
	ErrInvalidCredentials,
}

// Code returns the wire code of the first domain error in err's chain,
// or "internal_error".
func Code(err error) string {
	for _, target := range coded {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "internal_error"
}
