package fanout

import "errors"

// Sentinel kinds for fanout errors.
var (
	ErrClosed       = errors.New("fanout closed")
	ErrInvalidRound = errors.New("invalid round id")
)
