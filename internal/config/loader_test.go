package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/clicker/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then the game timings match the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.CooldownDuration, convey.ShouldEqual, 30*time.Second)
				convey.So(cfg.RoundDuration, convey.ShouldEqual, 60*time.Second)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
				convey.So(cfg.PageSizeDefault, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CLICKER_ADDR", ":8080")
			_ = os.Setenv("CLICKER_ROUND_DURATION", "2m")
			_ = os.Setenv("CLICKER_COOLDOWN_DURATION", "5s")
			_ = os.Setenv("CLICKER_WORKER_COUNT", "16")
			_ = os.Setenv("CLICKER_JWT_SECRET", "s3cret")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env overrides defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.RoundDuration, convey.ShouldEqual, 2*time.Minute)
				convey.So(cfg.CooldownDuration, convey.ShouldEqual, 5*time.Second)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.JWTSecret, convey.ShouldEqual, "s3cret")
			})
		})

		convey.Convey("When loading config from a YAML file with env on top", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
queue_size: 500
job_timeout: 2s
nats_url: "nats://localhost:4222"
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CLICKER_CONFIG", tmpFile)
			_ = os.Setenv("CLICKER_QUEUE_SIZE", "700")

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 700)
				convey.So(cfg.JobTimeout, convey.ShouldEqual, 2*time.Second)
				convey.So(cfg.NATSURL, convey.ShouldEqual, "nats://localhost:4222")
				convey.So(cfg.RoundDuration, convey.ShouldEqual, 60*time.Second)
			})
		})

		convey.Convey("When the YAML file is invalid", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CLICKER_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then a load error is returned", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the file does not exist", func() {
			_ = os.Setenv("CLICKER_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When addr is empty", func() {
			_ = os.Setenv("CLICKER_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			})
		})

		convey.Convey("When postgres is selected without a DSN", func() {
			_ = os.Setenv("CLICKER_STORE_DRIVER", "postgres")

			_, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestConfigValidate(t *testing.T) {
	convey.Convey("Given default config", t, func() {
		cfg := config.New()
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		convey.Convey("Unknown drivers are rejected", func() {
			cfg.StoreDriver = "redis"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("Incoherent page bounds are rejected", func() {
			cfg.PageSizeMin = 30
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("A non-positive round duration is rejected", func() {
			cfg.RoundDuration = 0
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})
	})
}

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"CLICKER_CONFIG",
		"CLICKER_ADDR",
		"CLICKER_QUEUE_SIZE",
		"CLICKER_WORKER_COUNT",
		"CLICKER_ROUND_DURATION",
		"CLICKER_COOLDOWN_DURATION",
		"CLICKER_JWT_SECRET",
		"CLICKER_STORE_DRIVER",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "clicker-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
