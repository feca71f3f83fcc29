package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/pkg/logger"
)

func update(taps int64) model.RoundUpdate {
	return model.RoundUpdate{Round: model.RoundView{Round: model.Round{ID: "r1", Taps: taps}, Status: model.StatusActive}}
}

func receive(s *Subscription) (model.RoundUpdate, bool) {
	select {
	case u, ok := <-s.Updates():
		return u, ok
	case <-time.After(time.Second):
		return model.RoundUpdate{}, false
	}
}

func TestHub(t *testing.T) {
	Convey("Given a hub with tiny buffers", t, func() {
		ctx := context.Background()
		hub := NewHub(WithBuffer(2), WithLogger(logger.Nop()))

		Convey("When two listeners subscribe to a round", func() {
			a, err := hub.Subscribe(ctx, "r1")
			So(err, ShouldBeNil)
			b, err := hub.Subscribe(ctx, "r1")
			So(err, ShouldBeNil)
			other, _ := hub.Subscribe(ctx, "r2")

			So(hub.Publish(ctx, "r1", update(1)), ShouldBeNil)
			So(hub.Publish(ctx, "r1", update(2)), ShouldBeNil)

			Convey("Then each receives every update in order", func() {
				for _, s := range []*Subscription{a, b} {
					u, ok := receive(s)
					So(ok, ShouldBeTrue)
					So(u.Round.Taps, ShouldEqual, 1)
					u, ok = receive(s)
					So(ok, ShouldBeTrue)
					So(u.Round.Taps, ShouldEqual, 2)
				}
			})

			Convey("Then other rounds hear nothing", func() {
				select {
				case <-other.Updates():
					So("unexpected update", ShouldBeEmpty)
				default:
				}
			})

			Convey("Then a listener that falls behind is dropped", func() {
				_, _ = receive(a)
				_, _ = receive(a)
				So(hub.Publish(ctx, "r1", update(3)), ShouldBeNil)

				So(b.Dropped(), ShouldBeTrue)
				So(a.Dropped(), ShouldBeFalse)
				So(hub.Subscribers("r1"), ShouldEqual, 1)

				// b still drains what it had, then sees the close
				_, _ = receive(b)
				_, _ = receive(b)
				_, ok := receive(b)
				So(ok, ShouldBeFalse)

				u, ok := receive(a)
				So(ok, ShouldBeTrue)
				So(u.Round.Taps, ShouldEqual, 3)
			})

			Convey("Then closing a subscription is idempotent", func() {
				a.Close()
				a.Close()
				So(hub.Subscribers("r1"), ShouldEqual, 1)
			})
		})

		Convey("When the subscriber context ends", func() {
			sctx, cancel := context.WithCancel(ctx)
			s, err := hub.Subscribe(sctx, "r1")
			So(err, ShouldBeNil)
			cancel()

			Convey("Then it is unsubscribed", func() {
				_, ok := receive(s)
				So(ok, ShouldBeFalse)
				So(hub.Subscribers("r1"), ShouldEqual, 0)
			})
		})

		Convey("When a late listener joins", func() {
			So(hub.Publish(ctx, "r1", update(1)), ShouldBeNil)
			s, _ := hub.Subscribe(ctx, "r1")

			Convey("Then there is no replay", func() {
				select {
				case <-s.Updates():
					So("unexpected replay", ShouldBeEmpty)
				default:
				}
			})
		})

		Convey("When the hub closes", func() {
			s, _ := hub.Subscribe(ctx, "r1")
			So(hub.Close(), ShouldBeNil)

			_, ok := receive(s)
			So(ok, ShouldBeFalse)
			So(errors.Is(hub.Publish(ctx, "r1", update(1)), ErrClosed), ShouldBeTrue)
			_, err := hub.Subscribe(ctx, "r1")
			So(errors.Is(err, ErrClosed), ShouldBeTrue)
		})

		Convey("An empty round id is refused", func() {
			_, err := hub.Subscribe(ctx, "")
			So(errors.Is(err, ErrInvalidRound), ShouldBeTrue)
		})
	})
}

func TestSubjects(t *testing.T) {
	Convey("Round subjects", t, func() {
		s, err := Subject("clicker.rounds", "abc")
		So(err, ShouldBeNil)
		So(s, ShouldEqual, "clicker.rounds.abc")

		_, err = Subject("clicker.rounds", "a.b")
		So(errors.Is(err, ErrInvalidRound), ShouldBeTrue)
		_, err = Subject("clicker.rounds", "")
		So(errors.Is(err, ErrInvalidRound), ShouldBeTrue)

		id, ok := RoundFromSubject("clicker.rounds", "clicker.rounds.abc")
		So(ok, ShouldBeTrue)
		So(id, ShouldEqual, "abc")

		_, ok = RoundFromSubject("clicker.rounds", "other.abc")
		So(ok, ShouldBeFalse)
		_, ok = RoundFromSubject("clicker.rounds", "clicker.rounds.a.b")
		So(ok, ShouldBeFalse)
	})
}

func TestBridgeRelay(t *testing.T) {
	Convey("Given a bridge into a local hub", t, func() {
		ctx := context.Background()
		hub := NewHub(WithLogger(logger.Nop()))
		bridge := NewBridge(nil, "clicker.rounds", hub, WithLogger(logger.Nop()))
		sub, _ := hub.Subscribe(ctx, "r1")

		Convey("When a valid message arrives", func() {
			data, err := json.Marshal(update(7))
			So(err, ShouldBeNil)
			bridge.relay(ctx, &nats.Msg{Subject: "clicker.rounds.r1", Data: data})

			Convey("Then local subscribers receive it", func() {
				u, ok := receive(sub)
				So(ok, ShouldBeTrue)
				So(u.Round.Taps, ShouldEqual, 7)
				So(u.Round.Status, ShouldEqual, model.StatusActive)
			})
		})

		Convey("When garbage arrives", func() {
			bridge.relay(ctx, &nats.Msg{Subject: "clicker.rounds.r1", Data: []byte("{")})
			bridge.relay(ctx, &nats.Msg{Subject: "elsewhere", Data: []byte("{}")})

			Convey("Then it is dropped", func() {
				select {
				case <-sub.Updates():
					So("unexpected update", ShouldBeEmpty)
				default:
				}
			})
		})

		Convey("Stopping before starting is harmless", func() {
			So(bridge.Stop(), ShouldBeNil)
		})
	})
}
