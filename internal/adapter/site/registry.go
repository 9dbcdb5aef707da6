package site

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/semmidev/wpfleet/internal/domain"
)

type Logger interface {
	Warnf(template string, args ...interface{})
}

// Registry finds WordPress installations by their marker configuration file.
type Registry struct {
	marker   string
	maxDepth int
	logger   Logger
}

func NewRegistry(marker string, maxDepth int, logger Logger) *Registry {
	return &Registry{marker: marker, maxDepth: maxDepth, logger: logger}
}

// Discover scans root up to the configured depth. The directory holding the
// marker is the site root and its parent's name is the domain, as in
// /var/www/<domain>/public_html/wp-config.php. Sites whose marker lacks
// DB_NAME are returned but not Valid. Results are ordered by root path.
func (r *Registry) Discover(root string) ([]domain.Site, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDiscovery, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrDiscovery, root)
	}

	markers, err := FindMarkers(root, r.marker, r.maxDepth)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDiscovery, err)
	}

	sites := make([]domain.Site, 0, len(markers))
	for _, marker := range markers {
		siteRoot := filepath.Dir(marker)
		s := domain.Site{
			Domain:     filepath.Base(filepath.Dir(siteRoot)),
			RootPath:   siteRoot,
			ConfigPath: marker,
		}

		creds, err := ReadCredentials(marker)
		if err != nil {
			r.logger.Warnf("[%s] Skipping site: %v", s.Domain, err)
		} else {
			s.Database = creds
			if creds.Name == "" {
				r.logger.Warnf("[%s] Skipping site: %v: DB_NAME not found in %s", s.Domain, domain.ErrSiteInvalid, marker)
			}
		}

		sites = append(sites, s)
	}

	sort.Slice(sites, func(i, j int) bool { return sites[i].RootPath < sites[j].RootPath })
	return sites, nil
}

// Locate finds the marker inside an extracted archive and reads the
// credentials from it. The shallowest marker wins.
func (r *Registry) Locate(root string) (string, domain.Credentials, error) {
	markers, err := FindMarkers(root, r.marker, r.maxDepth)
	if err != nil {
		return "", domain.Credentials{}, err
	}
	if len(markers) == 0 {
		return "", domain.Credentials{}, fmt.Errorf("%w: no %s under %s", domain.ErrSiteInvalid, r.marker, root)
	}

	sort.SliceStable(markers, func(i, j int) bool {
		return depthOf(root, markers[i]) < depthOf(root, markers[j])
	})

	creds, err := ReadCredentials(markers[0])
	if err != nil {
		return "", domain.Credentials{}, err
	}
	if creds.Name == "" {
		return "", creds, fmt.Errorf("%w: DB_NAME not found in %s", domain.ErrSiteInvalid, markers[0])
	}

	return filepath.Dir(markers[0]), creds, nil
}

// FindMarkers returns every file named marker at most maxDepth levels below
// root, sorted by path. Unreadable subdirectories are skipped.
func FindMarkers(root, marker string, maxDepth int) ([]string, error) {
	root = filepath.Clean(root)
	var found []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		depth := depthOf(root, path)
		if d.IsDir() {
			if depth >= maxDepth {
				return fs.SkipDir
			}
			return nil
		}

		if d.Name() == marker && d.Type().IsRegular() {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(found)
	return found, nil
}

func depthOf(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

var defineRe = regexp.MustCompile(`define\(\s*['"](DB_NAME|DB_USER|DB_PASSWORD|DB_HOST)['"]\s*,\s*'([^']*)'\s*\)`)

// ReadCredentials extracts the database triple from a PHP define() file.
// Missing or malformed entries come back empty.
func ReadCredentials(path string) (domain.Credentials, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("%w: read %s: %v", domain.ErrSiteInvalid, path, err)
	}
	return ParseCredentials(string(content)), nil
}

func ParseCredentials(content string) domain.Credentials {
	var creds domain.Credentials
	seen := map[string]bool{}

	for _, m := range defineRe.FindAllStringSubmatch(content, -1) {
		// The first definition wins, as it does in PHP.
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true

		switch m[1] {
		case "DB_NAME":
			creds.Name = m[2]
		case "DB_USER":
			creds.User = m[2]
		case "DB_PASSWORD":
			creds.Password = m[2]
		case "DB_HOST":
			creds.Host = m[2]
		}
	}

	return creds
}

// Select narrows sites to the requested domains, preserving discovery order.
// An empty request selects everything. Unknown domains are returned so the
// caller can report them.
func Select(sites []domain.Site, domains []string) ([]domain.Site, []string) {
	if len(domains) == 0 {
		return sites, nil
	}

	want := make(map[string]bool, len(domains))
	for _, d := range domains {
		want[d] = true
	}

	var selected []domain.Site
	for _, s := range sites {
		if want[s.Domain] {
			selected = append(selected, s)
			delete(want, s.Domain)
		}
	}

	var unknown []string
	for _, d := range domains {
		if want[d] {
			unknown = append(unknown, d)
			delete(want, d)
		}
	}

	return selected, unknown
}
