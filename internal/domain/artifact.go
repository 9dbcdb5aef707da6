package domain

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

type BackupClass string

const (
	ClassManual  BackupClass = "manual"
	ClassDaily   BackupClass = "daily"
	ClassWeekly  BackupClass = "weekly"
	ClassMonthly BackupClass = "monthly"
	ClassMigrate BackupClass = "migrate"
)

func ParseClass(s string) (BackupClass, error) {
	switch c := BackupClass(s); c {
	case ClassManual, ClassDaily, ClassWeekly, ClassMonthly, ClassMigrate:
		return c, nil
	}
	return "", fmt.Errorf("unknown backup class %q", s)
}

// Retained reports whether retention manages artifacts of this class.
// Manual and migrate artifacts are never pruned automatically.
func (c BackupClass) Retained() bool {
	return c == ClassDaily || c == ClassWeekly || c == ClassMonthly
}

type ArtifactKind string

const (
	KindDatabase ArtifactKind = "db"
	KindFiles    ArtifactKind = "files"
)

func (k ArtifactKind) Ext() string {
	if k == KindDatabase {
		return "sql.gz"
	}
	return "tar.gz"
}

const (
	// StampLayout is fixed width so lexicographic order is chronological.
	StampLayout = "20060102-150405"
	// MonthLayout is the token used by monthly artifacts.
	MonthLayout = "2006-01"
)

var artifactNameRe = regexp.MustCompile(
	`^(.+)-(db|files)-(\d{8}-\d{6}|\d{4}-\d{2})-(manual|daily|weekly|monthly|migrate)\.(sql\.gz|tar\.gz)$`)

// Artifact is one backup file. Its name encodes every field, so a remote
// listing can be turned back into artifacts without extra metadata.
type Artifact struct {
	Domain    string
	Kind      ArtifactKind
	Class     BackupClass
	Stamp     string
	CreatedAt time.Time
}

// StampFor renders t as the timestamp token used by class.
func StampFor(class BackupClass, t time.Time) string {
	if class == ClassMonthly {
		return t.Format(MonthLayout)
	}
	return t.Format(StampLayout)
}

func parseStamp(stamp string) (time.Time, error) {
	if len(stamp) == len(MonthLayout) {
		return time.ParseInLocation(MonthLayout, stamp, time.Local)
	}
	return time.ParseInLocation(StampLayout, stamp, time.Local)
}

func NewArtifact(domain string, kind ArtifactKind, class BackupClass, at time.Time) Artifact {
	stamp := StampFor(class, at)
	created, _ := parseStamp(stamp)
	return Artifact{Domain: domain, Kind: kind, Class: class, Stamp: stamp, CreatedAt: created}
}

// Name encodes the artifact as <domain>-<kind>-<timestamp>-<class>.<ext>.
func (a Artifact) Name() string {
	return fmt.Sprintf("%s-%s-%s-%s.%s", a.Domain, a.Kind, a.Stamp, a.Class, a.Kind.Ext())
}

// Promote returns the copy of a under class. Monthly copies collapse the
// token to the year-month so a month holds a single artifact.
func (a Artifact) Promote(class BackupClass) Artifact {
	return NewArtifact(a.Domain, a.Kind, class, a.CreatedAt)
}

// ParseArtifactName is the inverse of Artifact.Name.
func ParseArtifactName(name string) (Artifact, error) {
	m := artifactNameRe.FindStringSubmatch(name)
	if m == nil {
		return Artifact{}, fmt.Errorf("%w: %s", ErrInvalidArtifactName, name)
	}

	kind := ArtifactKind(m[2])
	if kind.Ext() != m[5] {
		return Artifact{}, fmt.Errorf("%w: %s: extension does not match kind", ErrInvalidArtifactName, name)
	}

	class := BackupClass(m[4])
	if (class == ClassMonthly) != (len(m[3]) == len(MonthLayout)) {
		return Artifact{}, fmt.Errorf("%w: %s: timestamp does not match class", ErrInvalidArtifactName, name)
	}

	created, err := parseStamp(m[3])
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %s: %v", ErrInvalidArtifactName, name, err)
	}

	return Artifact{
		Domain:    m[1],
		Kind:      kind,
		Class:     class,
		Stamp:     m[3],
		CreatedAt: created,
	}, nil
}

// BackupSet is the database dump and file archive of one backup event.
type BackupSet struct {
	Database Artifact
	Files    Artifact
}

// NewBackupSet names both halves of one backup event.
func NewBackupSet(domain string, class BackupClass, at time.Time) BackupSet {
	return BackupSet{
		Database: NewArtifact(domain, KindDatabase, class, at),
		Files:    NewArtifact(domain, KindFiles, class, at),
	}
}

func (s BackupSet) Artifacts() []Artifact {
	return []Artifact{s.Database, s.Files}
}

// SortArtifacts orders artifacts oldest first. Equal timestamps fall back
// to the encoded name so the order is total.
func SortArtifacts(list []Artifact) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].Name() < list[j].Name()
	})
}
