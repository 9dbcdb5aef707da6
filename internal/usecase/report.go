package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/semmidev/wpfleet/internal/domain"
)

type SiteStatus string

const (
	StatusOK            SiteStatus = "ok"
	StatusSkipped       SiteStatus = "skipped"
	StatusDumpFailed    SiteStatus = "dump_failed"
	StatusArchiveFailed SiteStatus = "archive_failed"
	StatusUploadFailed  SiteStatus = "upload_failed"
	StatusCancelled     SiteStatus = "cancelled"
)

// Failed reports whether the status counts against the run. Skipped sites
// had nothing to back up and do not.
func (s SiteStatus) Failed() bool {
	return s != StatusOK && s != StatusSkipped
}

type SiteResult struct {
	Domain    string        `json:"domain"`
	Status    SiteStatus    `json:"status"`
	Error     string        `json:"error,omitempty"`
	Artifacts []string      `json:"artifacts,omitempty"`
	Promoted  []string      `json:"promoted,omitempty"`
	Pruned    []string      `json:"pruned,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

type RunReport struct {
	RunID      string             `json:"run_id"`
	Class      domain.BackupClass `json:"class"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Results    []SiteResult       `json:"results"`
}

func (r *RunReport) Count(status SiteStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

func (r *RunReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status.Failed() {
			n++
		}
	}
	return n
}

// StatusCounts returns the number of sites per status.
func (r *RunReport) StatusCounts() map[string]int {
	counts := make(map[string]int)
	for _, res := range r.Results {
		counts[string(res.Status)]++
	}
	return counts
}

// Lines renders one line per site followed by the totals.
func (r *RunReport) Lines() []string {
	lines := make([]string, 0, len(r.Results)+1)
	for _, res := range r.Results {
		line := fmt.Sprintf("%-40s %s", res.Domain, res.Status)
		if res.Error != "" {
			line += ": " + res.Error
		}
		lines = append(lines, line)
	}
	lines = append(lines, r.Summary())
	return lines
}

func (r *RunReport) Summary() string {
	return fmt.Sprintf("%d site(s): %d ok, %d failed, %d skipped in %s",
		len(r.Results), r.Count(StatusOK), r.Failed(), r.Count(StatusSkipped),
		r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
}

// Message is the notification text for a finished run.
func (r *RunReport) Message(appName string) string {
	var b strings.Builder

	icon := "✅"
	if r.Failed() > 0 {
		icon = "❌"
	}
	fmt.Fprintf(&b, "%s %s %s backup\n\n", icon, appName, r.Class)
	fmt.Fprintf(&b, "🆔 Run: %s\n", r.RunID)
	fmt.Fprintf(&b, "📊 %s\n", r.Summary())

	var failed []string
	for _, res := range r.Results {
		if res.Status.Failed() {
			failed = append(failed, fmt.Sprintf("• %s (%s)", res.Domain, res.Status))
		}
	}
	sort.Strings(failed)
	if len(failed) > 0 {
		b.WriteString("\nFailed:\n")
		b.WriteString(strings.Join(failed, "\n"))
	}

	return b.String()
}
