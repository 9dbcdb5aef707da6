package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func writeConfig(dir, body string) string {
	path := filepath.Join(dir, "config.yaml")
	So(os.WriteFile(path, []byte(body), 0644), ShouldBeNil)
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given a config file", t, func() {
		dir := t.TempDir()

		Convey("When only the remote is configured", func() {
			path := writeConfig(dir, `
remote:
  type: rclone
  rclone_remote: b2
`)
			cfg, err := Load(path)

			Convey("Defaults fill in the rest", func() {
				So(err, ShouldBeNil)
				So(cfg.App.Name, ShouldEqual, "wpfleet")
				So(cfg.Sites.Root, ShouldEqual, "/var/www")
				So(cfg.Sites.Marker, ShouldEqual, "wp-config.php")
				So(cfg.Sites.ScanDepth, ShouldEqual, 3)
				So(cfg.Backup.Concurrency, ShouldEqual, 2)
				So(cfg.Backup.SiteTimeout, ShouldEqual, 2*time.Hour)
				So(cfg.Restore.MaxPairSkew, ShouldEqual, 36*time.Hour)
				So(cfg.Restore.FallbackOwner, ShouldEqual, "www-data")
				So(cfg.Migration.KnownHosts, ShouldEqual, "/root/.ssh/known_hosts")
				So(cfg.Backup.CompressionLevel, ShouldEqual, -1)

				p := cfg.RetentionPolicy()
				So(p.DailyKeep, ShouldEqual, 7)
				So(p.WeeklyKeep, ShouldEqual, 4)
				So(p.MonthlyKeep, ShouldEqual, 2)
				So(p.WeekBoundary, ShouldEqual, 7)
				So(p.MonthDay, ShouldEqual, 1)
			})
		})

		Convey("When retention is overridden", func() {
			path := writeConfig(dir, `
backup:
  retention:
    daily_keep: 14
    week_boundary: 1
remote:
  type: local
  root: /srv/backups
`)
			cfg, err := Load(path)

			Convey("The policy reflects the file", func() {
				So(err, ShouldBeNil)
				So(cfg.RetentionPolicy().DailyKeep, ShouldEqual, 14)
				So(cfg.RetentionPolicy().WeekBoundary, ShouldEqual, 1)
				So(cfg.RetentionPolicy().WeeklyKeep, ShouldEqual, 4)
			})
		})

		Convey("When the remote type is unknown", func() {
			path := writeConfig(dir, "remote:\n  type: ftp\n")
			_, err := Load(path)

			Convey("It should fail validation", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unsupported type")
			})
		})

		Convey("When s3 has no bucket", func() {
			path := writeConfig(dir, "remote:\n  type: s3\n")
			_, err := Load(path)

			Convey("It should fail validation", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "remote.bucket")
			})
		})

		Convey("When retention keeps nothing", func() {
			path := writeConfig(dir, `
backup:
  retention:
    monthly_keep: 0
remote:
  type: local
`)
			_, err := Load(path)

			Convey("It should fail validation", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "backup.retention")
			})
		})

		Convey("When the compression level is set", func() {
			path := writeConfig(dir, `
backup:
  compression_level: 9
remote:
  type: local
`)
			cfg, err := Load(path)

			Convey("It is carried into the backup config", func() {
				So(err, ShouldBeNil)
				So(cfg.Backup.CompressionLevel, ShouldEqual, 9)
			})
		})

		Convey("When the compression level is out of range", func() {
			path := writeConfig(dir, `
backup:
  compression_level: 12
remote:
  type: local
`)
			_, err := Load(path)

			Convey("It should fail validation", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "backup.compression_level")
			})
		})

		Convey("When the file does not exist", func() {
			_, err := Load(filepath.Join(dir, "missing.yaml"))

			Convey("It should return an error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to read config")
			})
		})
	})
}

func TestMigrationReady(t *testing.T) {
	Convey("Given a config without a migration host", t, func() {
		cfg := &Config{}
		So(cfg.MigrationReady(), ShouldNotBeNil)

		Convey("Adding a host and key makes it ready", func() {
			cfg.Migration.Host = "new.example"
			cfg.Migration.KeyPath = "/root/.ssh/id_ed25519"
			cfg.Migration.KnownHosts = "/root/.ssh/known_hosts"
			So(cfg.MigrationReady(), ShouldBeNil)
		})

		Convey("A host and key without a known_hosts path is not ready", func() {
			cfg.Migration.Host = "new.example"
			cfg.Migration.KeyPath = "/root/.ssh/id_ed25519"
			err := cfg.MigrationReady()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "known_hosts")
		})
	})
}
