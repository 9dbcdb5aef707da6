package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateJSON bool

var migrateCmd = &cobra.Command{
	Use:   "migrate [domain...]",
	Short: "Snapshot sites locally and push them to the migration host",
	Long: `Migrate takes a migrate-class snapshot of every site, or only the named
domains, into backup.local_path and copies that directory to
migration.host:migration.remote_path over SFTP. Existing files on the target
are never deleted. Restore the sites there with
"wpfleet restore <domain> --from-local <remote_path>".`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateJSON, "json", false, "print the report as JSON")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), migrateJSON)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	report, err := a.Migrate(cmd.Context(), args)
	if report != nil {
		if migrateJSON {
			if jerr := writeJSON(report); jerr != nil {
				return jerr
			}
		} else {
			for _, line := range report.Run.Lines() {
				fmt.Println(line)
			}
			if report.Transfer != nil {
				fmt.Printf("pushed %d file(s), %d bytes to %s\n", report.Transfer.Files, report.Transfer.Bytes, cfg.Migration.Host)
			}
		}
	}
	if err != nil {
		return err
	}
	if report.Run.Failed() > 0 {
		return errRunFailed
	}
	return nil
}
