package domain

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestArtifactNaming(t *testing.T) {
	Convey("Given the artifact naming convention", t, func() {
		at := time.Date(2025, 6, 1, 3, 30, 0, 0, time.Local)

		Convey("NewArtifact encodes all four fields", func() {
			a := NewArtifact("shop.example", KindDatabase, ClassWeekly, at)
			So(a.Name(), ShouldEqual, "shop.example-db-20250601-033000-weekly.sql.gz")

			f := NewArtifact("shop.example", KindFiles, ClassDaily, at)
			So(f.Name(), ShouldEqual, "shop.example-files-20250601-033000-daily.tar.gz")
		})

		Convey("Monthly artifacts carry a year-month token", func() {
			a := NewArtifact("shop.example", KindDatabase, ClassMonthly, at)
			So(a.Stamp, ShouldEqual, "2025-06")
			So(a.Name(), ShouldEqual, "shop.example-db-2025-06-monthly.sql.gz")
		})

		Convey("Parsing is the inverse of encoding", func() {
			domains := []string{"shop.example", "my-shop.example.co.uk", "a", "db-files.example"}
			classes := []BackupClass{ClassManual, ClassDaily, ClassWeekly, ClassMonthly, ClassMigrate}
			kinds := []ArtifactKind{KindDatabase, KindFiles}

			for _, d := range domains {
				for _, c := range classes {
					for _, k := range kinds {
						want := NewArtifact(d, k, c, at)
						got, err := ParseArtifactName(want.Name())
						So(err, ShouldBeNil)
						So(got.Domain, ShouldEqual, d)
						So(got.Kind, ShouldEqual, k)
						So(got.Class, ShouldEqual, c)
						So(got.Stamp, ShouldEqual, want.Stamp)
						So(got.CreatedAt.Equal(want.CreatedAt), ShouldBeTrue)
						So(got.Name(), ShouldEqual, want.Name())
					}
				}
			}
		})

		Convey("Malformed names are rejected", func() {
			bad := []string{
				"",
				"shop.example-db-20250601-033000-daily.tar.gz",
				"shop.example-files-20250601-033000-daily.sql.gz",
				"shop.example-db-2025-06-daily.sql.gz",
				"shop.example-db-20250601-033000-monthly.sql.gz",
				"shop.example-db-20250601-033000-hourly.sql.gz",
				"shop.example-db-2025061-033000-daily.sql.gz",
				"shop.example-db-20251341-033000-daily.sql.gz",
				"notes.txt",
			}
			for _, name := range bad {
				_, err := ParseArtifactName(name)
				So(errors.Is(err, ErrInvalidArtifactName), ShouldBeTrue)
			}
		})

		Convey("Promote keeps the token except for monthly", func() {
			daily := NewArtifact("shop.example", KindFiles, ClassDaily, at)
			So(daily.Promote(ClassWeekly).Name(), ShouldEqual, "shop.example-files-20250601-033000-weekly.tar.gz")
			So(daily.Promote(ClassMonthly).Name(), ShouldEqual, "shop.example-files-2025-06-monthly.tar.gz")
		})

		Convey("Lexicographic order of fixed-width stamps is chronological", func() {
			earlier := NewArtifact("s", KindDatabase, ClassDaily, at)
			later := NewArtifact("s", KindDatabase, ClassDaily, at.Add(9*time.Hour+time.Second))
			So(earlier.Name() < later.Name(), ShouldBeTrue)

			list := []Artifact{later, earlier}
			SortArtifacts(list)
			So(list[0].Name(), ShouldEqual, earlier.Name())
		})

		Convey("ParseClass accepts only known classes", func() {
			c, err := ParseClass("daily")
			So(err, ShouldBeNil)
			So(c, ShouldEqual, ClassDaily)

			_, err = ParseClass("yearly")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRetentionPolicy(t *testing.T) {
	Convey("Given the default retention policy", t, func() {
		p := DefaultRetentionPolicy()

		Convey("It keeps 7 daily, 4 weekly and 2 monthly", func() {
			So(p.Validate(), ShouldBeNil)
			So(p.Keep(ClassDaily), ShouldEqual, 7)
			So(p.Keep(ClassWeekly), ShouldEqual, 4)
			So(p.Keep(ClassMonthly), ShouldEqual, 2)
			So(p.Keep(ClassManual), ShouldEqual, 0)
			So(p.Keep(ClassMigrate), ShouldEqual, 0)
		})

		Convey("Sunday is the week boundary and the first is the month boundary", func() {
			sunday := time.Date(2025, 6, 1, 3, 30, 0, 0, time.Local)
			monday := sunday.AddDate(0, 0, 1)
			So(ISOWeekday(sunday), ShouldEqual, 7)
			So(p.IsWeekBoundary(sunday), ShouldBeTrue)
			So(p.IsWeekBoundary(monday), ShouldBeFalse)
			So(p.IsMonthBoundary(sunday), ShouldBeTrue)
			So(p.IsMonthBoundary(monday), ShouldBeFalse)
		})

		Convey("Invalid values are rejected", func() {
			p.DailyKeep = 0
			So(p.Validate(), ShouldNotBeNil)

			p = DefaultRetentionPolicy()
			p.WeekBoundary = 0
			So(p.Validate(), ShouldNotBeNil)
		})
	})
}

func TestRestoreStepError(t *testing.T) {
	Convey("A RestoreStepError matches the taxonomy and its cause", t, func() {
		cause := errors.New("boom")
		err := error(&RestoreStepError{Step: StepResolve, Err: cause})
		So(errors.Is(err, ErrRestoreStepFailed), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, StepResolve)

		var stepErr *RestoreStepError
		So(errors.As(err, &stepErr), ShouldBeTrue)
		So(stepErr.Step, ShouldEqual, StepResolve)
	})
}
