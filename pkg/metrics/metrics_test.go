package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom names", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithPrometheusRegistry(registry),
			)
			m.tapsAccepted.Inc()

			Convey("Then collectors are registered under the namespace", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_taps_accepted_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording taps by delta", func() {
			before := testutil.ToFloat64(globalManager.scoreAwarded.WithLabelValues("bonus"))
			RecordTapAccepted(10)
			RecordTapAccepted(1)
			RecordTapAccepted(0)

			Convey("Then bonus score is attributed to the bonus label", func() {
				after := testutil.ToFloat64(globalManager.scoreAwarded.WithLabelValues("bonus"))
				So(after-before, ShouldEqual, 10)
			})
		})

		Convey("When recording the remaining series", func() {
			So(func() {
				RecordTapRejected("round_not_active")
				RecordScoringLatency(1.5)
				RecordRoundCreated()
				UpdateRoundsTracked(3)
				UpdateQueueSize(2)
				UpdateQueueCapacity(100)
				UpdateQueueLanes(1)
				RecordQueueEnqueue()
				RecordQueueRejected("full")
				RecordJobLatency(2)
				RecordJobWait(1)
				RecordJobTimeout()
				UpdateWorkerCount(4)
				AddSubscribers(1)
				AddSubscribers(-1)
				RecordPublished()
				RecordSubscriberDropped()
				RecordBridgeForwarded()
				RecordHTTPRequest("rounds", "GET", "200")
				RecordHTTPRequestDuration("rounds", "GET", "200", 3)
				RecordErrorByComponent("queue", "full")
				RecordErrorByEndpoint("tap", "POST", "not_found")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)

			Convey("Then the registry exposes them", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				joined := strings.Join(names, ",")
				So(joined, ShouldContainSubstring, "clicker_game_serializer_job_timeouts_total")
				So(joined, ShouldContainSubstring, "clicker_game_fanout_subscribers")
			})
		})
	})
}
