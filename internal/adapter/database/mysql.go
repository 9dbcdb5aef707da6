package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"

	"github.com/semmidev/wpfleet/internal/config"
	"github.com/semmidev/wpfleet/internal/domain"
	"github.com/semmidev/wpfleet/internal/infrastructure/execx"
)

// validNameRe limits database and user identifiers to characters that are
// safe inside backquotes and single quotes.
var validNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// MySQL dumps site databases with mysqldump, provisions databases and users
// over an admin connection and imports dumps with the mysql client.
type MySQL struct {
	config *config.DatabaseConfig

	mu sync.Mutex
	db *sql.DB
}

func NewMySQL(cfg *config.DatabaseConfig) *MySQL {
	return &MySQL{config: cfg}
}

// Dump streams a logical dump of creds.Name into w. Authentication comes
// from the configured defaults file when it exists, otherwise from the
// site's own credentials written to a private temporary defaults file.
func (m *MySQL) Dump(ctx context.Context, creds domain.Credentials, w io.Writer) error {
	if err := validateName(creds.Name); err != nil {
		return err
	}

	defaults, cleanup, err := m.defaultsFile(creds)
	if err != nil {
		return err
	}
	defer cleanup()

	args := []string{
		"--defaults-extra-file=" + defaults,
		"--single-transaction",
		"--quick",
		"--lock-tables=false",
		"--routines",
		"--triggers",
		"--events",
		creds.Name,
	}

	var stderr strings.Builder
	cmd := execx.Command(ctx, m.config.DumpBinary, args...)
	cmd.Stdout = w
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s interrupted: %w", m.config.DumpBinary, ctxErr)
		}
		return execx.Failure(m.config.DumpBinary, err, []byte(stderr.String()))
	}
	return nil
}

func (m *MySQL) defaultsFile(creds domain.Credentials) (string, func(), error) {
	noop := func() {}

	if m.config.DefaultsFile != "" {
		if _, err := os.Stat(m.config.DefaultsFile); err == nil {
			return m.config.DefaultsFile, noop, nil
		}
	}

	if !creds.Complete() {
		return "", noop, fmt.Errorf("%w: no defaults file and no user for %s", domain.ErrCredentialsUnavailable, creds.Name)
	}

	return writeDefaults(clientSection(creds))
}

// writeDefaults stores an option file readable only by the current user.
func writeDefaults(content string) (string, func(), error) {
	noop := func() {}

	f, err := os.CreateTemp("", "wpfleet-my-*.cnf")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create defaults file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }

	if err := f.Chmod(0600); err != nil {
		f.Close()
		cleanup()
		return "", noop, fmt.Errorf("failed to protect defaults file: %w", err)
	}

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		cleanup()
		return "", noop, fmt.Errorf("failed to write defaults file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("failed to write defaults file: %w", err)
	}

	return f.Name(), cleanup, nil
}

// clientSection renders a [client] option group for creds. DB_HOST may
// carry a port or a socket path after the colon.
func clientSection(creds domain.Credentials) string {
	var b strings.Builder
	b.WriteString("[client]\n")
	fmt.Fprintf(&b, "user=%s\n", optionValue(creds.User))
	if creds.Password != "" {
		fmt.Fprintf(&b, "password=%s\n", optionValue(creds.Password))
	}

	host, rest, found := strings.Cut(creds.Host, ":")
	if host != "" {
		fmt.Fprintf(&b, "host=%s\n", host)
	}
	if found && rest != "" {
		if _, err := strconv.Atoi(rest); err == nil {
			fmt.Fprintf(&b, "port=%s\n", rest)
		} else {
			fmt.Fprintf(&b, "socket=%s\n", rest)
		}
	}
	return b.String()
}

// optionValue quotes v for an option file.
func optionValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

func (m *MySQL) admin() (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db, nil
	}

	db, err := sql.Open("mysql", m.adminDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open admin connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	m.db = db
	return db, nil
}

func (m *MySQL) adminDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = m.config.AdminUser
	cfg.Passwd = m.config.AdminPassword
	if m.config.Socket != "" {
		cfg.Net = "unix"
		cfg.Addr = m.config.Socket
	} else {
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))
	}
	return cfg.FormatDSN()
}

// serverArgs points the mysql client at the server adminDSN connects to.
// Command line options override anything the defaults file says.
func (m *MySQL) serverArgs() []string {
	if m.config.Socket != "" {
		return []string{"--protocol=SOCKET", "--socket=" + m.config.Socket}
	}
	if m.config.Host == "" {
		return nil
	}
	args := []string{"--protocol=TCP", "--host=" + m.config.Host}
	if m.config.Port > 0 {
		args = append(args, "--port="+strconv.Itoa(m.config.Port))
	}
	return args
}

// importAuth returns the option file the import authenticates with: the
// admin account when one is configured, else the configured defaults file.
func (m *MySQL) importAuth() (string, func(), error) {
	noop := func() {}

	if m.config.AdminUser != "" {
		var b strings.Builder
		b.WriteString("[client]\n")
		fmt.Fprintf(&b, "user=%s\n", optionValue(m.config.AdminUser))
		if m.config.AdminPassword != "" {
			fmt.Fprintf(&b, "password=%s\n", optionValue(m.config.AdminPassword))
		}
		return writeDefaults(b.String())
	}

	if m.config.DefaultsFile != "" {
		if _, err := os.Stat(m.config.DefaultsFile); err == nil {
			return m.config.DefaultsFile, noop, nil
		}
	}
	return "", noop, nil
}

func (m *MySQL) exec(ctx context.Context, stmt string) error {
	db, err := m.admin()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("mysql statement failed: %w", err)
	}
	return nil
}

// EnsureDatabase creates the database if it does not exist.
func (m *MySQL) EnsureDatabase(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	return m.exec(ctx, createDatabaseSQL(name))
}

// EnsureUser creates the user if needed, resets its password and grants it
// every privilege on its own database and nothing else.
func (m *MySQL) EnsureUser(ctx context.Context, creds domain.Credentials) error {
	if err := validateName(creds.Name); err != nil {
		return err
	}
	if err := validateName(creds.User); err != nil {
		return err
	}

	for _, stmt := range userSQL(creds, m.config.UserHost) {
		if err := m.exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Import feeds an uncompressed dump into the mysql client, on the same
// server and as the same account EnsureDatabase and EnsureUser use.
func (m *MySQL) Import(ctx context.Context, name string, r io.Reader) error {
	if err := validateName(name); err != nil {
		return err
	}

	defaults, cleanup, err := m.importAuth()
	if err != nil {
		return err
	}
	defer cleanup()

	var args []string
	if defaults != "" {
		// must be the first option
		args = append(args, "--defaults-extra-file="+defaults)
	}
	args = append(args, m.serverArgs()...)
	args = append(args, name)

	var out strings.Builder
	cmd := execx.Command(ctx, m.config.ClientBinary, args...)
	cmd.Stdin = r
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s interrupted: %w", m.config.ClientBinary, ctxErr)
		}
		return execx.Failure(m.config.ClientBinary, err, []byte(out.String()))
	}
	return nil
}

func (m *MySQL) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

func validateName(name string) error {
	if !validNameRe.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func createDatabaseSQL(name string) string {
	return fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", name)
}

func userSQL(creds domain.Credentials, userHost string) []string {
	account := fmt.Sprintf("'%s'@'%s'", creds.User, escapeString(userHost))
	password := escapeString(creds.Password)
	return []string{
		fmt.Sprintf("CREATE USER IF NOT EXISTS %s IDENTIFIED BY '%s'", account, password),
		fmt.Sprintf("ALTER USER %s IDENTIFIED BY '%s'", account, password),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON `%s`.* TO %s", creds.Name, account),
		"FLUSH PRIVILEGES",
	}
}

// escapeString escapes a value for a single-quoted SQL literal.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
