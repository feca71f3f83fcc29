package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/okian/clicker/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*4)
			convey.So(cfg.JobTimeout, convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.JWTSecret, convey.ShouldEqual, "fluffy cat")
			convey.So(cfg.PageSizeMin, convey.ShouldEqual, 2)
			convey.So(cfg.PageSizeMax, convey.ShouldEqual, 25)
		})
	})
}
