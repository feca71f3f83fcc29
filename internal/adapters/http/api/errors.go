package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/clicker/internal/adapters/mq/queue"
	"github.com/okian/clicker/internal/adapters/mq/worker"
	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/internal/domain/types"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrDuplicateTap = errors.New("duplicate_tap")
)

// Error ties a failure to the handler operation that produced it.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap annotates err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapKind annotates err with op and classifies it as kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Form    map[string]string `json:"form,omitempty"`
}

// classify maps an error chain to a status code and a wire code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrDuplicateTap):
		return http.StatusConflict, ErrDuplicateTap.Error()
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, ErrBadRequest), errors.Is(err, types.ErrInvalidSort):
		return http.StatusBadRequest, model.ErrInvalidInput.Error()
	case errors.Is(err, model.ErrUnauthorized), errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized, model.Code(err)
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, model.Code(err)
	case errors.Is(err, model.ErrRoundNotActive), errors.Is(err, model.ErrRoundNotFound), errors.Is(err, model.ErrUserNotFound):
		return http.StatusNotFound, model.Code(err)
	case errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, worker.ErrJobTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, worker.ErrStopped):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, model.Code(err)
}

// formErrors lists failed validation rules by JSON field name.
func formErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	form := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		form[fe.Field()] = fe.Tag()
	}
	return form
}
