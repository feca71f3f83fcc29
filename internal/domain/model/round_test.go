package model_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	model "github.com/okian/clicker/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestRoundApply(t *testing.T) {
	convey.Convey("Given a stored round", t, func() {
		start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		r := model.Round{ID: "r1", Start: start, End: start.Add(time.Minute), Taps: 4, TotalScore: 4, BestScore: 3, Winner: "u1"}

		convey.Convey("When applying a partial patch", func() {
			taps, total := int64(5), int64(5)
			out := r.Apply(model.RoundPatch{Taps: &taps, TotalScore: &total})

			convey.Convey("Then only supplied fields change", func() {
				convey.So(out.ID, convey.ShouldEqual, "r1")
				convey.So(out.Taps, convey.ShouldEqual, 5)
				convey.So(out.TotalScore, convey.ShouldEqual, 5)
				convey.So(out.BestScore, convey.ShouldEqual, 3)
				convey.So(out.Winner, convey.ShouldEqual, "u1")
				convey.So(out.Start, convey.ShouldEqual, start)
			})
		})

		convey.Convey("When the patch is empty", func() {
			convey.So(model.RoundPatch{}.IsEmpty(), convey.ShouldBeTrue)
			convey.So(r.Apply(model.RoundPatch{}), convey.ShouldResemble, r)
		})

		convey.Convey("When the winner is cleared", func() {
			empty := ""
			out := r.Apply(model.RoundPatch{Winner: &empty})
			convey.So(out.HasWinner(), convey.ShouldBeFalse)
		})
	})
}

func TestRoundUpdateForUser(t *testing.T) {
	convey.Convey("Given an update produced by u1's tap", t, func() {
		u := model.RoundUpdate{
			Tap:    &model.TapResult{Tap: model.Tap{UserID: "u1", RoundID: "r1", Taps: 1, Score: 1}, ScoreDelta: 1},
			Round:  model.RoundView{Round: model.Round{ID: "r1"}, Status: model.StatusActive},
			EchoID: "e-1",
		}

		convey.Convey("Then u1 receives the tap and echo id", func() {
			got := u.ForUser("u1")
			convey.So(got.Tap, convey.ShouldNotBeNil)
			convey.So(got.EchoID, convey.ShouldEqual, "e-1")
		})

		convey.Convey("Then anyone else receives the round only", func() {
			got := u.ForUser("u2")
			convey.So(got.Tap, convey.ShouldBeNil)
			convey.So(got.EchoID, convey.ShouldBeEmpty)
			convey.So(got.Round.ID, convey.ShouldEqual, "r1")
		})

		convey.Convey("Then the JSON shape flattens the round view", func() {
			raw, err := json.Marshal(u)
			convey.So(err, convey.ShouldBeNil)
			var m map[string]any
			convey.So(json.Unmarshal(raw, &m), convey.ShouldBeNil)
			round := m["round"].(map[string]any)
			convey.So(round["id"], convey.ShouldEqual, "r1")
			convey.So(round["status"], convey.ShouldEqual, "active")
			tap := m["tap"].(map[string]any)
			convey.So(tap["addScore"], convey.ShouldEqual, float64(1))
		})
	})

	convey.Convey("Given a rejection produced by u1's tap", t, func() {
		u := model.RoundUpdate{
			Round:  model.RoundView{Round: model.Round{ID: "r1"}, Status: model.StatusFinished},
			UserID: "u1",
			EchoID: "e-7",
			Error:  "round_not_active",
		}

		convey.Convey("Then u1 still receives its echo id", func() {
			got := u.ForUser("u1")
			convey.So(got.EchoID, convey.ShouldEqual, "e-7")
			convey.So(got.Error, convey.ShouldEqual, "round_not_active")
		})

		convey.Convey("Then anyone else receives the error without the echo id", func() {
			got := u.ForUser("u2")
			convey.So(got.EchoID, convey.ShouldBeEmpty)
			convey.So(got.UserID, convey.ShouldBeEmpty)
			convey.So(got.Error, convey.ShouldEqual, "round_not_active")
		})

		convey.Convey("Then an anonymous listener gets nothing private", func() {
			convey.So(u.ForUser("").EchoID, convey.ShouldBeEmpty)
		})
	})
}

func TestTapExpired(t *testing.T) {
	convey.Convey("Given tap records", t, func() {
		now := time.Now()
		convey.So(model.Tap{}.Expired(now), convey.ShouldBeFalse)
		convey.So(model.Tap{ExpiresAt: now.Add(time.Second)}.Expired(now), convey.ShouldBeFalse)
		convey.So(model.Tap{ExpiresAt: now}.Expired(now), convey.ShouldBeTrue)
	})
}

func TestRoles(t *testing.T) {
	convey.Convey("Given the known roles", t, func() {
		convey.So(model.RoleNikita.ScoresZero(), convey.ShouldBeTrue)
		convey.So(model.RoleAdmin.ScoresZero(), convey.ShouldBeFalse)
		convey.So(model.RoleSurvivor.Valid(), convey.ShouldBeTrue)
		convey.So(model.Role("guest").Valid(), convey.ShouldBeFalse)
	})
}

func TestCode(t *testing.T) {
	convey.Convey("Given wrapped domain errors", t, func() {
		convey.So(model.Code(fmt.Errorf("tap r1: %w", model.ErrRoundNotActive)), convey.ShouldEqual, "round_not_active")
		convey.So(model.Code(model.ErrUnauthorized), convey.ShouldEqual, "unauthorized")
		convey.So(model.Code(errors.New("disk on fire")), convey.ShouldEqual, "internal_error")
	})
}
