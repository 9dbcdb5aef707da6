package domain

// Credentials is the database triple a site's marker file declares. Host is
// optional and defaults to the local server when empty.
type Credentials struct {
	Name     string
	User     string
	Password string
	Host     string
}

// Complete reports whether the triple is usable for an explicit login.
func (c Credentials) Complete() bool {
	return c.Name != "" && c.User != ""
}

// Site is one WordPress installation found under the sites root. It is
// rebuilt from the filesystem on every run and never mutated.
type Site struct {
	Domain     string
	RootPath   string
	ConfigPath string
	Database   Credentials
}

// Valid reports whether the site can be backed up.
func (s Site) Valid() bool {
	return s.Domain != "" && s.Database.Name != ""
}
