package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"

	service "github.com/okian/clicker/internal/app"
	"github.com/okian/clicker/internal/config"
	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/internal/domain/types"
	"github.com/okian/clicker/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func newTestService(clock clockwork.Clock, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithWorkerCount(4),
		service.WithQueueSize(1000),
		service.WithDedupeSize(100),
		service.WithAuth("test-secret", time.Hour, bcrypt.MinCost),
		service.WithDurations(30*time.Second, time.Minute),
		service.WithClock(clock),
		service.WithLogger(logger.Nop()),
	}
	return service.New(append(base, opts...)...)
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["queueSize"], ShouldEqual, 100_000)
			So(stats["dedupeSize"], ShouldEqual, 50_000)
			So(stats["store"], ShouldEqual, config.DriverMemory)
		})
	})

	Convey("Given a new service built from a config", t, func() {
		cfg := config.New()
		cfg.WorkerCount = 3
		cfg.QueueSize = 42
		cfg.DedupeSize = 7
		svc := service.New(service.WithConfig(cfg))

		Convey("Then the config values are applied", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 3)
			So(stats["queueSize"], ShouldEqual, 42)
			So(stats["dedupeSize"], ShouldEqual, 7)
		})
	})

	Convey("Given non-positive option values", t, func() {
		svc := service.New(service.WithWorkerCount(0), service.WithQueueSize(-1))

		Convey("Then the defaults are kept", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldBeGreaterThan, 0)
			So(stats["queueSize"], ShouldEqual, 100_000)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := newTestService(clockwork.NewFakeClock())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When it is used before Start", func() {
			_, err := svc.CreateRound(ctx, nil, nil)

			Convey("Then operations report it is not started", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				_, err = svc.SubmitTap(ctx, "u", "r", "")
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				_, err = svc.Login(ctx, "alice", "pw")
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})

			Convey("Then idempotency keys are neither checked nor stored", func() {
				So(func() { svc.Unrecord(ctx, "u1:k1") }, ShouldNotPanic)
				So(svc.SeenAndRecord(ctx, "u1:k1"), ShouldBeFalse)
				So(svc.SeenAndRecord(ctx, "u1:k1"), ShouldBeFalse)
				So(svc.Size(), ShouldEqual, 0)
			})
		})

		Convey("When starting the service", func() {
			err := svc.Start(ctx)
			defer svc.Stop()

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				So(svc.GetStats()["started"], ShouldEqual, true)
			})

			Convey("And starting twice is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})

		Convey("When stopping a started service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("And stopping again is safe", func() {
				So(func() { svc.Stop() }, ShouldNotPanic)
			})

			Convey("And it can be started again", func() {
				So(svc.Start(ctx), ShouldBeNil)
				svc.Stop()
			})
		})

		Convey("When the caller's start context is cancelled", func() {
			startCtx, startCancel := context.WithCancel(ctx)
			So(svc.Start(startCtx), ShouldBeNil)
			defer svc.Stop()
			startCancel()

			Convey("Then the service keeps serving", func() {
				_, err := svc.CreateRound(ctx, nil, nil)
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestService_Rounds(t *testing.T) {
	Convey("Given a started service on a fake clock", t, func() {
		clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
		svc := newTestService(clock)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a round is created with defaults", func() {
			v, err := svc.CreateRound(ctx, nil, nil)

			Convey("Then it starts after the cooldown", func() {
				So(err, ShouldBeNil)
				So(v.Status, ShouldEqual, model.StatusCooldown)
				So(v.Start, ShouldEqual, clock.Now().Add(30*time.Second))
				So(v.End, ShouldEqual, clock.Now().Add(90*time.Second))
				So(v.Cooldown, ShouldEqual, 30)
			})

			Convey("Then it can be fetched and becomes active", func() {
				clock.Advance(31 * time.Second)
				got, err := svc.GetRound(ctx, v.ID)
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.StatusActive)
			})

			Convey("Then it is counted and listed", func() {
				n, err := svc.CountRounds(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)

				page, err := svc.ListRounds(ctx, types.ListQuery{Page: 1, PageSize: 10})
				So(err, ShouldBeNil)
				So(page.Total, ShouldEqual, 1)
				So(page.Rows[0].ID, ShouldEqual, v.ID)
				So(page.Rows[0].Status, ShouldEqual, model.StatusCooldown)
			})
		})

		Convey("When the window is inverted", func() {
			start := clock.Now()
			end := start.Add(-time.Second)
			_, err := svc.CreateRound(ctx, &start, &end)

			Convey("Then it is a validation error", func() {
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			})
		})

		Convey("When an unknown round is fetched", func() {
			_, err := svc.GetRound(ctx, "missing")
			So(errors.Is(err, model.ErrRoundNotFound), ShouldBeTrue)

			_, err = svc.EnsureUserTap(ctx, "u1", "missing")
			So(errors.Is(err, model.ErrRoundNotFound), ShouldBeTrue)

			_, err = svc.SubscribeToRound(ctx, "missing")
			So(errors.Is(err, model.ErrRoundNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Dedupe(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newTestService(clockwork.NewFakeClock())
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When an idempotency key is replayed", func() {
			first := svc.SeenAndRecord(ctx, "u1:k1")
			second := svc.SeenAndRecord(ctx, "u1:k1")

			Convey("Then only the first is new", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(svc.Size(), ShouldEqual, 1)
			})

			Convey("Then unrecording frees the key", func() {
				svc.Unrecord(ctx, "u1:k1")
				So(svc.SeenAndRecord(ctx, "u1:k1"), ShouldBeFalse)
			})
		})
	})
}
