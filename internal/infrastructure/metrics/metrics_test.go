package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRecorder(t *testing.T) {
	Convey("Given a Recorder", t, func() {
		r := NewRecorder()
		started := time.Unix(1748748600, 0)
		finished := started.Add(90 * time.Second)

		Convey("When a run is observed", func() {
			r.ObserveRun("daily", map[string]int{"ok": 3, "upload_failed": 1}, started, finished, true)
			r.ObservePruned("daily", 2)

			families, err := r.Gatherer().Gather()
			So(err, ShouldBeNil)

			names := map[string]bool{}
			for _, f := range families {
				names[f.GetName()] = true
			}

			Convey("The families are exported", func() {
				So(names["wpfleet_backup_sites"], ShouldBeTrue)
				So(names["wpfleet_backup_run_duration_seconds"], ShouldBeTrue)
				So(names["wpfleet_retention_artifacts_deleted_total"], ShouldBeTrue)
			})

			Convey("A failed run does not set the success timestamp", func() {
				So(names["wpfleet_backup_last_success_timestamp_seconds"], ShouldBeFalse)
			})

			Convey("The textfile is written", func() {
				path := filepath.Join(t.TempDir(), "wpfleet.prom")
				So(r.WriteTextfile(path), ShouldBeNil)

				content, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(string(content), ShouldContainSubstring, `wpfleet_backup_sites{class="daily",status="ok"} 3`)
				So(string(content), ShouldContainSubstring, `wpfleet_backup_run_duration_seconds{class="daily"} 90`)
			})
		})
	})

	Convey("A clean run after a failing one clears the stale failure count", t, func() {
		r := NewRecorder()
		started := time.Unix(1748748600, 0)
		path := filepath.Join(t.TempDir(), "wpfleet.prom")

		r.ObserveRun("daily", map[string]int{"ok": 1, "upload_failed": 1}, started, started.Add(time.Minute), true)
		r.ObserveRun("weekly", map[string]int{"dump_failed": 1}, started, started.Add(time.Minute), true)
		r.ObserveRun("daily", map[string]int{"ok": 2}, started.Add(24*time.Hour), started.Add(25*time.Hour), false)
		So(r.WriteTextfile(path), ShouldBeNil)

		content, err := os.ReadFile(path)
		So(err, ShouldBeNil)
		So(string(content), ShouldContainSubstring, `wpfleet_backup_sites{class="daily",status="ok"} 2`)
		So(string(content), ShouldNotContainSubstring, `wpfleet_backup_sites{class="daily",status="upload_failed"}`)
		So(string(content), ShouldContainSubstring, `wpfleet_backup_sites{class="weekly",status="dump_failed"} 1`)
		So(string(content), ShouldContainSubstring, `wpfleet_backup_last_success_timestamp_seconds{class="daily"}`)
	})
}
