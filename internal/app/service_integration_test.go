package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/clicker/internal/domain/model"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given a started service with an active round", t, func() {
		clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
		svc := newTestService(clock)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		alice, err := svc.Login(ctx, "alice", "pw")
		So(err, ShouldBeNil)
		nikita, err := svc.Login(ctx, "nikita", "pw")
		So(err, ShouldBeNil)
		admin, err := svc.Login(ctx, "admin", "pw")
		So(err, ShouldBeNil)
		So(admin.Role, ShouldEqual, model.RoleAdmin)

		start := clock.Now().Add(-time.Second)
		end := start.Add(time.Minute)
		round, err := svc.CreateRound(ctx, &start, &end)
		So(err, ShouldBeNil)
		So(round.Status, ShouldEqual, model.StatusActive)

		Convey("When a session token is resolved", func() {
			u, err := svc.CurrentUser(ctx, alice.Token)

			Convey("Then it returns the logged-in user", func() {
				So(err, ShouldBeNil)
				So(u.ID, ShouldEqual, alice.ID)
				_, err = svc.CurrentUser(ctx, "bogus")
				So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
			})
		})

		Convey("When a player opens the round", func() {
			tap, err := svc.EnsureUserTap(ctx, alice.ID, round.ID)

			Convey("Then a zero record is created", func() {
				So(err, ShouldBeNil)
				So(tap.Taps, ShouldEqual, 0)
				So(tap.Score, ShouldEqual, 0)
			})
		})

		Convey("When players tap", func() {
			r1, err := svc.SubmitTap(ctx, alice.ID, round.ID, "e1")
			So(err, ShouldBeNil)
			r2, err := svc.SubmitTap(ctx, nikita.ID, round.ID, "")
			So(err, ShouldBeNil)

			Convey("Then scores follow the roles", func() {
				So(r1.ScoreDelta, ShouldEqual, 1)
				So(r1.Score, ShouldEqual, 1)
				So(r2.ScoreDelta, ShouldEqual, 0)
				So(r2.Taps, ShouldEqual, 1)
			})

			Convey("Then the round reflects them with the winner resolved", func() {
				v, err := svc.GetRound(ctx, round.ID)
				So(err, ShouldBeNil)
				So(v.Taps, ShouldEqual, 2)
				So(v.TotalScore, ShouldEqual, 1)
				So(v.BestScore, ShouldEqual, 1)
				So(v.WinnerUser, ShouldNotBeNil)
				So(v.WinnerUser.Username, ShouldEqual, "alice")
			})
		})

		Convey("When a subscriber listens to the round", func() {
			sub, err := svc.SubscribeToRound(ctx, round.ID)
			So(err, ShouldBeNil)
			defer sub.Close()

			_, err = svc.SubmitTap(ctx, alice.ID, round.ID, "echo-7")
			So(err, ShouldBeNil)

			Convey("Then it receives the update with the echo id", func() {
				select {
				case u := <-sub.Updates():
					So(u.EchoID, ShouldEqual, "echo-7")
					So(u.Tap, ShouldNotBeNil)
					So(u.Round.Taps, ShouldEqual, 1)
				case <-time.After(2 * time.Second):
					So("no update received", ShouldBeEmpty)
				}
			})
		})

		Convey("When the round has finished", func() {
			clock.Advance(2 * time.Minute)
			_, err := svc.SubmitTap(ctx, alice.ID, round.ID, "")

			Convey("Then the tap is rejected", func() {
				So(errors.Is(err, model.ErrRoundNotActive), ShouldBeTrue)
			})
		})

		Convey("When tap ids are missing", func() {
			_, err := svc.SubmitTap(ctx, "", round.ID, "")
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When many players tap concurrently", func() {
			const players, perPlayer = 10, 22
			ids := make([]string, players)
			for i := range ids {
				s, err := svc.Login(ctx, fmt.Sprintf("p%d", i), "pw")
				So(err, ShouldBeNil)
				ids[i] = s.ID
			}

			var wg sync.WaitGroup
			errs := make(chan error, players*perPlayer)
			for _, id := range ids {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					for j := 0; j < perPlayer; j++ {
						if _, err := svc.SubmitTap(ctx, id, round.ID, ""); err != nil {
							errs <- err
						}
					}
				}(id)
			}
			wg.Wait()
			close(errs)

			Convey("Then every tap is counted and bonuses total correctly", func() {
				So(len(errs), ShouldEqual, 0)
				v, err := svc.GetRound(ctx, round.ID)
				So(err, ShouldBeNil)
				total := int64(players * perPlayer)
				bonuses := total / 11
				So(v.Taps, ShouldEqual, total)
				So(v.TotalScore, ShouldEqual, total-bonuses+bonuses*10)
			})
		})
	})
}
