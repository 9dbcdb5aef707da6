package database

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/wpfleet/internal/config"
	"github.com/semmidev/wpfleet/internal/domain"
)

// fakeTool writes an executable shell script standing in for a MySQL client.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMySQLDump(t *testing.T) {
	Convey("Given a MySQL adapter with a fake dump binary", t, func() {
		// Prints the defaults file followed by the remaining arguments.
		tool := fakeTool(t, `f="${1#--defaults-extra-file=}"; cat "$f"; shift; echo "$@"`)
		cfg := &config.DatabaseConfig{DumpBinary: tool}
		m := NewMySQL(cfg)

		creds := domain.Credentials{Name: "wp_shop", User: "shop", Password: `p"a\ss`, Host: "db.internal:3307"}

		Convey("Site credentials go into a temporary defaults file", func() {
			var out bytes.Buffer
			So(m.Dump(context.Background(), creds, &out), ShouldBeNil)

			got := out.String()
			So(got, ShouldContainSubstring, "[client]")
			So(got, ShouldContainSubstring, `user="shop"`)
			So(got, ShouldContainSubstring, `password="p\"a\\ss"`)
			So(got, ShouldContainSubstring, "host=db.internal")
			So(got, ShouldContainSubstring, "port=3307")
			So(got, ShouldContainSubstring, "--single-transaction")
			So(strings.TrimSpace(got), ShouldEndWith, "wp_shop")
		})

		Convey("A configured defaults file takes precedence", func() {
			defaults := filepath.Join(t.TempDir(), "my.cnf")
			So(os.WriteFile(defaults, []byte("[client]\nuser=root\n"), 0600), ShouldBeNil)
			cfg.DefaultsFile = defaults

			var out bytes.Buffer
			So(m.Dump(context.Background(), domain.Credentials{Name: "wp_shop"}, &out), ShouldBeNil)
			So(out.String(), ShouldContainSubstring, "user=root")
		})

		Convey("Without any credentials the dump fails fast", func() {
			cfg.DefaultsFile = filepath.Join(t.TempDir(), "missing.cnf")
			var out bytes.Buffer
			err := m.Dump(context.Background(), domain.Credentials{Name: "wp_shop"}, &out)
			So(errors.Is(err, domain.ErrCredentialsUnavailable), ShouldBeTrue)
			So(out.Len(), ShouldEqual, 0)
		})

		Convey("A failing dump reports stderr", func() {
			cfg.DumpBinary = fakeTool(t, `echo "Access denied" >&2; exit 2`)
			var out bytes.Buffer
			err := m.Dump(context.Background(), creds, &out)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "Access denied")
		})

		Convey("An unsafe database name is rejected", func() {
			var out bytes.Buffer
			err := m.Dump(context.Background(), domain.Credentials{Name: "wp`; DROP", User: "x"}, &out)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestMySQLImport(t *testing.T) {
	Convey("Import pipes the dump into the client's stdin", t, func() {
		target := filepath.Join(t.TempDir(), "received.sql")
		tool := fakeTool(t, `cat > "`+target+`"`)
		m := NewMySQL(&config.DatabaseConfig{ClientBinary: tool})

		So(m.Import(context.Background(), "wp_shop", strings.NewReader("CREATE TABLE t (id int);")), ShouldBeNil)

		got, err := os.ReadFile(target)
		So(err, ShouldBeNil)
		So(string(got), ShouldEqual, "CREATE TABLE t (id int);")
	})

	Convey("Given a provisioning server other than the local default", t, func() {
		dir := t.TempDir()
		argv := filepath.Join(dir, "argv")
		defaults := filepath.Join(dir, "defaults")
		// Records the arguments, one per line, and a copy of the defaults file.
		tool := fakeTool(t, `for a in "$@"; do echo "$a"; done > "`+argv+`"
case "$1" in --defaults-extra-file=*) cat "${1#--defaults-extra-file=}" > "`+defaults+`";; esac
cat > /dev/null`)
		cfg := &config.DatabaseConfig{
			ClientBinary:  tool,
			Host:          "db.internal",
			Port:          3307,
			AdminUser:     "admin",
			AdminPassword: "secret",
		}
		m := NewMySQL(cfg)

		readLines := func(path string) []string {
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			return strings.Split(strings.TrimSpace(string(data)), "\n")
		}

		Convey("The import targets the same host and port as the admin connection", func() {
			So(m.Import(context.Background(), "wp_shop", strings.NewReader("--")), ShouldBeNil)

			args := readLines(argv)
			So(args[0], ShouldStartWith, "--defaults-extra-file=")
			So(args[1:], ShouldResemble, []string{"--protocol=TCP", "--host=db.internal", "--port=3307", "wp_shop"})
			So(m.adminDSN(), ShouldStartWith, "admin:secret@tcp(db.internal:3307)/")

			So(readLines(defaults), ShouldResemble, []string{"[client]", `user="admin"`, `password="secret"`})

			_, err := os.Stat(strings.TrimPrefix(args[0], "--defaults-extra-file="))
			So(os.IsNotExist(err), ShouldBeTrue)
		})

		Convey("A configured socket wins over the host", func() {
			cfg.Socket = "/run/mysqld/mysqld.sock"
			So(m.Import(context.Background(), "wp_shop", strings.NewReader("--")), ShouldBeNil)
			So(readLines(argv)[1:], ShouldResemble, []string{"--protocol=SOCKET", "--socket=/run/mysqld/mysqld.sock", "wp_shop"})
		})

		Convey("Without an admin user the configured defaults file authenticates", func() {
			cfg.AdminUser = ""
			cfg.DefaultsFile = filepath.Join(dir, "root.cnf")
			So(os.WriteFile(cfg.DefaultsFile, []byte("[client]\nuser=root\n"), 0600), ShouldBeNil)

			So(m.Import(context.Background(), "wp_shop", strings.NewReader("--")), ShouldBeNil)
			args := readLines(argv)
			So(args[0], ShouldEqual, "--defaults-extra-file="+cfg.DefaultsFile)
			So(args[len(args)-1], ShouldEqual, "wp_shop")
			So(args, ShouldContain, "--host=db.internal")
		})
	})
}

func TestProvisioningSQL(t *testing.T) {
	Convey("Provisioning statements", t, func() {
		Convey("Create the database idempotently", func() {
			So(createDatabaseSQL("wp_shop"), ShouldStartWith, "CREATE DATABASE IF NOT EXISTS `wp_shop`")
		})

		Convey("Grant privileges on the site database only", func() {
			stmts := userSQL(domain.Credentials{Name: "wp_shop", User: "shop", Password: `it's\x`}, "localhost")
			So(stmts, ShouldHaveLength, 4)
			So(stmts[0], ShouldEqual, `CREATE USER IF NOT EXISTS 'shop'@'localhost' IDENTIFIED BY 'it\'s\\x'`)
			So(stmts[2], ShouldEqual, "GRANT ALL PRIVILEGES ON `wp_shop`.* TO 'shop'@'localhost'")
			So(stmts[3], ShouldEqual, "FLUSH PRIVILEGES")
		})

		Convey("Identifiers are validated", func() {
			So(validateName("wp_shop-2"), ShouldBeNil)
			So(validateName(""), ShouldNotBeNil)
			So(validateName("a'b"), ShouldNotBeNil)
			So(validateName(strings.Repeat("a", 65)), ShouldNotBeNil)
		})

		Convey("The admin DSN prefers the socket", func() {
			m := NewMySQL(&config.DatabaseConfig{Host: "localhost", Port: 3306, Socket: "/run/mysqld/mysqld.sock", AdminUser: "root"})
			So(m.adminDSN(), ShouldContainSubstring, "unix(/run/mysqld/mysqld.sock)")

			m = NewMySQL(&config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, AdminUser: "root"})
			So(m.adminDSN(), ShouldContainSubstring, "tcp(127.0.0.1:3306)")
		})
	})
}
