package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/semmidev/wpfleet/internal/domain"
	"github.com/semmidev/wpfleet/internal/usecase"
)

var (
	backupClass string
	backupJSON  bool
)

var backupCmd = &cobra.Command{
	Use:   "backup [domain...]",
	Short: "Snapshot sites and upload them to the remote",
	Long: `Snapshot every discovered site, or only the named domains, and upload the
database dump and file archive to the configured remote.

A daily run also applies retention: daily artifacts beyond the keep count are
deleted, and on boundary days the new set is promoted to weekly or monthly.

The exit status is 1 when any site failed. Sites without a database name are
skipped and do not count as failures.`,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringVar(&backupClass, "class", string(domain.ClassManual), "backup class: manual or daily")
	backupCmd.Flags().BoolVar(&backupJSON, "json", false, "print the run report as JSON")
}

func runBackup(cmd *cobra.Command, args []string) error {
	class, err := domain.ParseClass(backupClass)
	if err != nil {
		return err
	}
	if class != domain.ClassManual && class != domain.ClassDaily {
		return fmt.Errorf("--class must be manual or daily, got %s", class)
	}

	a, err := newApp(cmd.Context(), backupJSON)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	report, err := a.Backup(cmd.Context(), class, args)
	if err != nil {
		return err
	}

	if err := printReport(report); err != nil {
		return err
	}
	if report.Failed() > 0 {
		return errRunFailed
	}
	return nil
}

func printReport(report *usecase.RunReport) error {
	if backupJSON {
		return writeJSON(report)
	}
	for _, line := range report.Lines() {
		fmt.Println(line)
	}
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
