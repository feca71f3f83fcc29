package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/clicker/internal/adapters/mq/queue"
	"github.com/okian/clicker/internal/adapters/mq/worker"
	"github.com/okian/clicker/internal/domain/model"
)

func TestClassify(t *testing.T) {
	Convey("Given errors coming out of the service", t, func() {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{Wrap("api.tap", fmt.Errorf("enqueue: %w", queue.ErrQueueFull)), http.StatusTooManyRequests, "backpressure"},
			{Wrap("api.tap", worker.ErrJobTimeout), http.StatusGatewayTimeout, "timeout"},
			{Wrap("api.tap", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
			{Wrap("api.tap", worker.ErrStopped), http.StatusServiceUnavailable, "unavailable"},
			{NewKind("api.tap", ErrDuplicateTap), http.StatusConflict, "duplicate_tap"},
			{NewKind("api.create_round", model.ErrForbidden), http.StatusForbidden, model.Code(model.ErrForbidden)},
			{Wrap("api.tap", fmt.Errorf("round r1: %w", model.ErrRoundNotActive)), http.StatusNotFound, "round_not_active"},
		}

		Convey("Each maps to its status and code", func() {
			for _, c := range cases {
				status, code := classify(c.err)
				So(status, ShouldEqual, c.status)
				So(code, ShouldEqual, c.code)
			}
		})

		Convey("Anything unknown is a 500", func() {
			status, _ := classify(errors.New("boom"))
			So(status, ShouldEqual, http.StatusInternalServerError)
		})
	})
}
