package execx

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRun(t *testing.T) {
	Convey("Given the execx runner", t, func() {
		ctx := context.Background()

		Convey("When the command succeeds", func() {
			out, err := Run(ctx, "sh", "-c", "echo hello")

			Convey("It returns the output", func() {
				So(err, ShouldBeNil)
				So(strings.TrimSpace(string(out)), ShouldEqual, "hello")
			})
		})

		Convey("When the command exits non-zero", func() {
			_, err := Run(ctx, "sh", "-c", "echo broken >&2; exit 3")

			Convey("The error carries the exit status and output", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "sh failed")
				So(err.Error(), ShouldContainSubstring, "broken")

				var exitErr *exec.ExitError
				So(errors.As(err, &exitErr), ShouldBeTrue)
				So(exitErr.ExitCode(), ShouldEqual, 3)
			})
		})

		Convey("When the context expires", func() {
			ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := Run(ctx, "sh", "-c", "sleep 30 & sleep 30; wait")

			Convey("The process group is killed promptly", func() {
				So(err, ShouldNotBeNil)
				So(time.Since(start), ShouldBeLessThan, 10*time.Second)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})

		Convey("Failure truncates long output", func() {
			long := strings.Repeat("x", maxOutput*2)
			err := Failure("tool", errors.New("exit status 1"), []byte(long))
			So(len(err.Error()), ShouldBeLessThan, maxOutput+100)
			So(err.Error(), ShouldContainSubstring, "...")
		})
	})
}
