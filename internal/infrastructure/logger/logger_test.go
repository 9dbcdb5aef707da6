package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given the Logger package", t, func() {
		Convey("New function", func() {
			Convey("When creating a logger with console output only", func() {
				logger, err := New(Options{Level: "info"})

				Convey("It should create a logger successfully", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)
					So(func() { logger.Infof("[%s] test", "shop.example") }, ShouldNotPanic)
				})
			})

			Convey("When creating a logger with a log file", func() {
				logFile := filepath.Join(t.TempDir(), "logs", "wpfleet.log")
				logger, err := New(Options{Level: "debug", File: logFile, Quiet: true})

				Convey("It should write JSON lines to the file", func() {
					So(err, ShouldBeNil)
					logger.Component("retention").Infof("pruned %d", 2)
					logger.Close()

					content, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					line := strings.TrimSpace(string(content))
					So(line, ShouldStartWith, "{")
					So(line, ShouldContainSubstring, `"component":"retention"`)
					So(line, ShouldContainSubstring, "pruned 2")
				})
			})

			Convey("When creating a logger with an invalid log level", func() {
				logger, err := New(Options{Level: "invalid"})

				Convey("It should default to Info level", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)
					So(logger.Desugar().Core().Enabled(-1), ShouldBeFalse)
				})
			})

			Convey("When the log directory cannot be created", func() {
				blocker := filepath.Join(t.TempDir(), "file")
				So(os.WriteFile(blocker, nil, 0644), ShouldBeNil)

				logger, err := New(Options{Level: "info", File: filepath.Join(blocker, "sub", "x.log")})

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to create log directory")
					So(logger, ShouldBeNil)
				})
			})
		})

		Convey("Close method", func() {
			logger, err := New(Options{Level: "info"})
			So(err, ShouldBeNil)
			So(func() { logger.Close() }, ShouldNotPanic)
		})
	})
}
